package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestErrorString(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name:     "simple error",
			err:      New(CodeValidation, "product name is required"),
			contains: []string{"VALIDATION_ERROR", "product name is required"},
		},
		{
			name:     "wrapped error",
			err:      Wrap(fmt.Errorf("connection refused"), CodeDownload, "fetch failed"),
			contains: []string{"DOWNLOAD_ERROR", "fetch failed", "connection refused"},
		},
		{
			name:     "formatted message",
			err:      Newf(CodeNotFound, "job %s not found", "abc"),
			contains: []string{"NOT_FOUND", "job abc not found"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.err.Error()
			for _, c := range tt.contains {
				if !strings.Contains(s, c) {
					t.Errorf("expected %q in error string, got: %s", c, s)
				}
			}
		})
	}
}

func TestCodeOf(t *testing.T) {
	base := New(CodeTimeout, "generation exceeded ceiling")
	wrapped := fmt.Errorf("job failed: %w", base)

	if got := CodeOf(wrapped); got != CodeTimeout {
		t.Errorf("expected %s, got %s", CodeTimeout, got)
	}
	if got := CodeOf(fmt.Errorf("plain")); got != CodeInternal {
		t.Errorf("expected %s for unclassified error, got %s", CodeInternal, got)
	}
}

func TestIsMatchesOnCode(t *testing.T) {
	err := Wrap(fmt.Errorf("object missing"), CodeDownload, "fetch failed")

	if !errors.Is(err, &Error{Code: CodeDownload}) {
		t.Error("expected errors.Is to match on code")
	}
	if errors.Is(err, &Error{Code: CodeProcessing}) {
		t.Error("expected errors.Is not to match a different code")
	}
}

func TestUnwrap(t *testing.T) {
	inner := fmt.Errorf("disk full")
	err := Wrap(inner, CodeStorage, "save failed")

	if !errors.Is(err, inner) {
		t.Error("expected wrapped error to be reachable via errors.Is")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeValidation, http.StatusBadRequest},
		{CodeNotFound, http.StatusNotFound},
		{CodeTimeout, http.StatusGatewayTimeout},
		{CodeSubmission, http.StatusBadGateway},
		{CodeProcessing, http.StatusBadGateway},
		{CodeStorage, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := HTTPStatus(New(tt.code, "x")); got != tt.want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", tt.code, got, tt.want)
		}
	}
}
