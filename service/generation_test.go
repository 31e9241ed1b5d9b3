package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/garystafford/product-video-generator-app/config"
	"github.com/garystafford/product-video-generator-app/entities"
	"github.com/garystafford/product-video-generator-app/pkg/apperr"
)

func writeFrame(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func submitRequest(t *testing.T, endFrame string) SubmitRequest {
	t.Helper()
	return SubmitRequest{
		ProductName:    "watch",
		Prompt:         "smooth rotation from start to end position",
		S3Bucket:       "test-bucket",
		StartFramePath: writeFrame(t, "start.jpg", "start-bytes"),
		EndFramePath:   endFrame,
		Settings: entities.VideoSettings{
			AspectRatio: "16:9",
			Duration:    "5s",
			Resolution:  "720p",
		},
	}
}

func TestSubmitSendsKeyframePayload(t *testing.T) {
	var got invokeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/async-invoke" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(invokeResponse{InvocationArn: "arn:test:123"})
	}))
	defer server.Close()

	gen := NewGenerator(config.Generation{BaseURL: server.URL, ModelID: "luma.ray-v2:0"})
	handle, err := gen.Submit(context.Background(), submitRequest(t, ""))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if handle != "arn:test:123" {
		t.Errorf("expected handle from response, got %s", handle)
	}

	if got.ModelID != "luma.ray-v2:0" {
		t.Errorf("expected model id forwarded, got %s", got.ModelID)
	}
	if got.ModelInput.Prompt != "smooth rotation from start to end position" {
		t.Errorf("prompt not forwarded: %s", got.ModelInput.Prompt)
	}
	frame0, ok := got.ModelInput.Keyframes["frame0"]
	if !ok {
		t.Fatal("frame0 missing from payload")
	}
	if frame0.Source.MediaType != "image/jpeg" {
		t.Errorf("expected image/jpeg, got %s", frame0.Source.MediaType)
	}
	data, err := base64.StdEncoding.DecodeString(frame0.Source.Data)
	if err != nil || string(data) != "start-bytes" {
		t.Errorf("frame0 data not base64 of the start frame")
	}
	if _, ok := got.ModelInput.Keyframes["frame1"]; ok {
		t.Error("frame1 present without an end frame")
	}
	if got.OutputDataConfig.S3OutputDataConfig.S3Uri == "" {
		t.Error("expected output data config with an s3 uri")
	}
}

func TestSubmitIncludesEndFrame(t *testing.T) {
	var got invokeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(invokeResponse{InvocationArn: "arn:test:123"})
	}))
	defer server.Close()

	gen := NewGenerator(config.Generation{BaseURL: server.URL})
	end := writeFrame(t, "end.png", "end-bytes")
	if _, err := gen.Submit(context.Background(), submitRequest(t, end)); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	frame1, ok := got.ModelInput.Keyframes["frame1"]
	if !ok {
		t.Fatal("frame1 missing when end frame provided")
	}
	if frame1.Source.MediaType != "image/png" {
		t.Errorf("expected image/png, got %s", frame1.Source.MediaType)
	}
}

func TestSubmitRejectionIsSubmissionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	gen := NewGenerator(config.Generation{BaseURL: server.URL})
	_, err := gen.Submit(context.Background(), submitRequest(t, ""))
	if !errors.Is(err, &apperr.Error{Code: apperr.CodeSubmission}) {
		t.Errorf("expected SUBMISSION error, got %v", err)
	}
}

func TestSubmitMissingStartFrame(t *testing.T) {
	gen := NewGenerator(config.Generation{BaseURL: "http://example.invalid"})
	req := submitRequest(t, "")
	req.StartFramePath = filepath.Join(t.TempDir(), "absent.jpg")

	_, err := gen.Submit(context.Background(), req)
	if !errors.Is(err, &apperr.Error{Code: apperr.CodeValidation}) {
		t.Errorf("expected VALIDATION error, got %v", err)
	}
}

func TestPollStates(t *testing.T) {
	tests := []struct {
		name     string
		response invokeStatusResponse
		want     PollResult
	}{
		{
			name:     "in progress",
			response: invokeStatusResponse{Status: "InProgress"},
			want:     PollResult{Status: PollInProgress},
		},
		{
			name: "completed",
			response: invokeStatusResponse{
				Status: "Completed",
				OutputDataConfig: outputDataConfig{
					S3OutputDataConfig: s3OutputDataConfig{S3Uri: "s3://bucket/out/"},
				},
			},
			want: PollResult{Status: PollCompleted, OutputLocation: "s3://bucket/out/"},
		},
		{
			name:     "failed",
			response: invokeStatusResponse{Status: "Failed", FailureMessage: "content policy"},
			want:     PollResult{Status: PollFailed, FailureMessage: "content policy"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/async-invoke/arn:test:123" {
					t.Errorf("unexpected poll path: %s", r.URL.Path)
				}
				json.NewEncoder(w).Encode(tt.response)
			}))
			defer server.Close()

			gen := NewGenerator(config.Generation{BaseURL: server.URL})
			got, err := gen.Poll(context.Background(), "arn:test:123")
			if err != nil {
				t.Fatalf("Poll: %v", err)
			}
			if got != tt.want {
				t.Errorf("Poll = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestWaitForCompletionPollsUntilDone(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) < 3 {
			json.NewEncoder(w).Encode(invokeStatusResponse{Status: "InProgress"})
			return
		}
		json.NewEncoder(w).Encode(invokeStatusResponse{
			Status: "Completed",
			OutputDataConfig: outputDataConfig{
				S3OutputDataConfig: s3OutputDataConfig{S3Uri: "s3://bucket/out/"},
			},
		})
	}))
	defer server.Close()

	gen := NewGenerator(config.Generation{
		BaseURL:      server.URL,
		PollInterval: 5 * time.Millisecond,
		Timeout:      5 * time.Second,
	})
	output, err := gen.WaitForCompletion(context.Background(), "arn:test:123")
	if err != nil {
		t.Fatalf("WaitForCompletion: %v", err)
	}
	if output != "s3://bucket/out/" {
		t.Errorf("unexpected output location: %s", output)
	}
	if polls.Load() < 3 {
		t.Errorf("expected at least 3 polls, got %d", polls.Load())
	}
}

func TestWaitForCompletionTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(invokeStatusResponse{Status: "InProgress"})
	}))
	defer server.Close()

	gen := NewGenerator(config.Generation{
		BaseURL:      server.URL,
		PollInterval: 5 * time.Millisecond,
		Timeout:      30 * time.Millisecond,
	})
	_, err := gen.WaitForCompletion(context.Background(), "arn:test:123")
	if !errors.Is(err, &apperr.Error{Code: apperr.CodeTimeout}) {
		t.Errorf("expected TIMEOUT error, got %v", err)
	}
}

func TestWaitForCompletionReportedFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(invokeStatusResponse{Status: "Failed", FailureMessage: "bad keyframes"})
	}))
	defer server.Close()

	gen := NewGenerator(config.Generation{
		BaseURL:      server.URL,
		PollInterval: 5 * time.Millisecond,
		Timeout:      5 * time.Second,
	})
	_, err := gen.WaitForCompletion(context.Background(), "arn:test:123")
	if !errors.Is(err, &apperr.Error{Code: apperr.CodeGeneration}) {
		t.Errorf("expected GENERATION error, got %v", err)
	}
}

func TestWaitForCompletionCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(invokeStatusResponse{Status: "InProgress"})
	}))
	defer server.Close()

	gen := NewGenerator(config.Generation{
		BaseURL:      server.URL,
		PollInterval: 5 * time.Millisecond,
		Timeout:      5 * time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := gen.WaitForCompletion(ctx, "arn:test:123")
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context cancellation to surface, got %v", err)
	}
}
