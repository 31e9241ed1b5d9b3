package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/garystafford/product-video-generator-app/config"
	"github.com/garystafford/product-video-generator-app/entities"
	"github.com/garystafford/product-video-generator-app/pkg/apperr"
)

// SubmitRequest carries everything the generation service needs for one clip.
type SubmitRequest struct {
	ProductName    string
	Prompt         string
	S3Bucket       string
	StartFramePath string
	EndFramePath   string
	Settings       entities.VideoSettings
}

type PollStatus string

const (
	PollInProgress PollStatus = "InProgress"
	PollCompleted  PollStatus = "Completed"
	PollFailed     PollStatus = "Failed"
)

type PollResult struct {
	Status         PollStatus
	OutputLocation string
	FailureMessage string
}

// Generator wraps submission to, and polling of, the external asynchronous
// video generation operation.
type Generator interface {
	// Submit starts an async generation and returns its opaque handle.
	Submit(ctx context.Context, req SubmitRequest) (string, error)
	// Poll reports the current state of a submitted generation. It is
	// side-effect free and may be called repeatedly.
	Poll(ctx context.Context, handle string) (PollResult, error)
	// WaitForCompletion polls at the configured interval until the
	// generation completes, fails, or the configured ceiling is exceeded.
	WaitForCompletion(ctx context.Context, handle string) (string, error)
}

type generator struct {
	cfg    config.Generation
	client *http.Client
}

func NewGenerator(cfg config.Generation) Generator {
	return &generator{
		cfg:    cfg,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// Wire types for the async-invoke API.

type keyframeSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type keyframe struct {
	Type   string         `json:"type"`
	Source keyframeSource `json:"source"`
}

type modelInput struct {
	Prompt      string              `json:"prompt"`
	Keyframes   map[string]keyframe `json:"keyframes"`
	Loop        bool                `json:"loop"`
	AspectRatio string              `json:"aspect_ratio"`
	Duration    string              `json:"duration,omitempty"`
	Resolution  string              `json:"resolution,omitempty"`
}

type s3OutputDataConfig struct {
	S3Uri string `json:"s3Uri"`
}

type outputDataConfig struct {
	S3OutputDataConfig s3OutputDataConfig `json:"s3OutputDataConfig"`
}

type invokeRequest struct {
	ModelID          string           `json:"modelId"`
	ModelInput       modelInput       `json:"modelInput"`
	OutputDataConfig outputDataConfig `json:"outputDataConfig"`
}

type invokeResponse struct {
	InvocationArn string `json:"invocationArn"`
}

type invokeStatusResponse struct {
	Status           string           `json:"status"`
	FailureMessage   string           `json:"failureMessage"`
	OutputDataConfig outputDataConfig `json:"outputDataConfig"`
}

func (g *generator) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	keyframes, err := buildKeyframes(req.StartFramePath, req.EndFramePath)
	if err != nil {
		return "", err
	}

	outputPrefix := fmt.Sprintf("product-videos/%s/%s/", req.ProductName, time.Now().Format("20060102_150405"))
	body := invokeRequest{
		ModelID: g.cfg.ModelID,
		ModelInput: modelInput{
			Prompt:      req.Prompt,
			Keyframes:   keyframes,
			Loop:        req.Settings.Loop,
			AspectRatio: req.Settings.AspectRatio,
			Duration:    req.Settings.Duration,
			Resolution:  req.Settings.Resolution,
		},
		OutputDataConfig: outputDataConfig{
			S3OutputDataConfig: s3OutputDataConfig{
				S3Uri: fmt.Sprintf("s3://%s/%s", req.S3Bucket, outputPrefix),
			},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", apperr.Wrap(err, apperr.CodeSubmission, "failed to encode generation request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/async-invoke", bytes.NewReader(payload))
	if err != nil {
		return "", apperr.Wrap(err, apperr.CodeSubmission, "failed to build generation request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", apperr.Wrap(err, apperr.CodeSubmission, "generation service unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", apperr.Newf(apperr.CodeSubmission, "generation service rejected the request: %d %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var out invokeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apperr.Wrap(err, apperr.CodeSubmission, "failed to decode generation response")
	}
	if out.InvocationArn == "" {
		return "", apperr.New(apperr.CodeSubmission, "generation service returned no invocation arn")
	}

	zerolog.Ctx(ctx).Info().Str("invocation_arn", out.InvocationArn).Str("product", req.ProductName).Msg("generation submitted")
	return out.InvocationArn, nil
}

func (g *generator) Poll(ctx context.Context, handle string) (PollResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.BaseURL+"/async-invoke/"+handle, nil)
	if err != nil {
		return PollResult{}, apperr.Wrap(err, apperr.CodeGeneration, "failed to build poll request")
	}
	if g.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return PollResult{}, apperr.Wrap(err, apperr.CodeGeneration, "failed to poll generation status")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return PollResult{}, apperr.Newf(apperr.CodeGeneration, "poll returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var out invokeStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return PollResult{}, apperr.Wrap(err, apperr.CodeGeneration, "failed to decode poll response")
	}

	switch PollStatus(out.Status) {
	case PollCompleted:
		return PollResult{Status: PollCompleted, OutputLocation: out.OutputDataConfig.S3OutputDataConfig.S3Uri}, nil
	case PollFailed:
		return PollResult{Status: PollFailed, FailureMessage: out.FailureMessage}, nil
	default:
		return PollResult{Status: PollInProgress}, nil
	}
}

func (g *generator) WaitForCompletion(ctx context.Context, handle string) (string, error) {
	interval := g.cfg.PollInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ceiling := g.cfg.Timeout
	if ceiling <= 0 {
		ceiling = 30 * time.Minute
	}

	deadline := time.NewTimer(ceiling)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	started := time.Now()
	for {
		select {
		case <-ctx.Done():
			return "", apperr.Wrap(ctx.Err(), apperr.CodeGeneration, "generation wait cancelled")
		case <-deadline.C:
			return "", apperr.Newf(apperr.CodeTimeout, "generation did not complete within %s", ceiling)
		case <-ticker.C:
			result, err := g.pollWithRetry(ctx, handle)
			if err != nil {
				return "", err
			}

			switch result.Status {
			case PollCompleted:
				zerolog.Ctx(ctx).Info().
					Str("invocation_arn", handle).
					Dur("elapsed", time.Since(started)).
					Str("output", result.OutputLocation).
					Msg("generation completed")
				return result.OutputLocation, nil
			case PollFailed:
				msg := result.FailureMessage
				if msg == "" {
					msg = "unknown error"
				}
				return "", apperr.Newf(apperr.CodeGeneration, "generation failed: %s", msg)
			default:
				zerolog.Ctx(ctx).Debug().Str("invocation_arn", handle).Msg("generation in progress")
			}
		}
	}
}

// pollWithRetry absorbs transient transport failures between polls. The
// poll call is idempotent so retrying here does not re-run any stage.
func (g *generator) pollWithRetry(ctx context.Context, handle string) (PollResult, error) {
	operation := func() (PollResult, error) {
		return g.Poll(ctx, handle)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	return backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(3))
}

func buildKeyframes(startPath, endPath string) (map[string]keyframe, error) {
	start, err := encodeKeyframe(startPath)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeValidation, "failed to read start frame")
	}
	keyframes := map[string]keyframe{"frame0": start}

	if endPath != "" {
		end, err := encodeKeyframe(endPath)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.CodeValidation, "failed to read end frame")
		}
		keyframes["frame1"] = end
	}
	return keyframes, nil
}

func encodeKeyframe(path string) (keyframe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return keyframe{}, err
	}
	return keyframe{
		Type: "image",
		Source: keyframeSource{
			Type:      "base64",
			MediaType: imageMediaType(path),
			Data:      base64.StdEncoding.EncodeToString(data),
		},
	}, nil
}

func imageMediaType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
