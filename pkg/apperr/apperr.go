// Package apperr classifies failures across the video generation pipeline.
// Every stage records a coded error on its job so polling clients can tell
// a rejected submission from a timed-out generation or a broken download.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type Code string

const (
	CodeValidation Code = "VALIDATION_ERROR"
	CodeSubmission Code = "SUBMISSION_ERROR"
	CodeGeneration Code = "GENERATION_ERROR"
	CodeTimeout    Code = "TIMEOUT_ERROR"
	CodeDownload   Code = "DOWNLOAD_ERROR"
	CodeProcessing Code = "PROCESSING_ERROR"
	CodeNotFound   Code = "NOT_FOUND"
	CodeStorage    Code = "STORAGE_ERROR"
	CodeInternal   Code = "INTERNAL_ERROR"
)

type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(string(e.Code))
	b.WriteString("] ")
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on code so callers can compare against a sentinel
// like &Error{Code: CodeDownload}.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the classification from err, walking wrapped errors.
// Unclassified errors report CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// HTTPStatus maps a classification to the status the HTTP layer returns.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeSubmission, CodeGeneration, CodeDownload, CodeProcessing:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
