package service

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"github.com/garystafford/product-video-generator-app/pkg/apperr"
)

// CommandRunner executes one external media tool invocation. The pipeline
// steps go through it so each step's argument contract is testable without
// ffmpeg installed.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// Pipeline applies the boomerang effect to a downloaded source clip:
// reverse, concatenate, speed up to 1.33x, and strip audio. Intermediates
// are removed on every exit path; the final file is only visible once it
// is complete.
type Pipeline interface {
	Process(ctx context.Context, inputPath string) (string, error)
}

type boomerang struct {
	run CommandRunner
}

func NewBoomerangPipeline() Pipeline {
	return &boomerang{run: runFFmpeg}
}

func newBoomerangWithRunner(run CommandRunner) Pipeline {
	return &boomerang{run: run}
}

func (b *boomerang) Process(ctx context.Context, inputPath string) (finalPath string, err error) {
	if _, statErr := os.Stat(inputPath); statErr != nil {
		return "", apperr.Wrap(statErr, apperr.CodeProcessing, "source video not found")
	}

	base := strings.TrimSuffix(inputPath, ".mp4")
	reversedFile := base + "_reversed.mp4"
	combinedFile := base + "_combined.mp4"
	listFile := base + "_list.txt"
	finalFile := base + "_final.mp4"
	partFile := finalFile + ".part"

	defer func() {
		for _, f := range []string{reversedFile, combinedFile, listFile, partFile} {
			os.Remove(f)
		}
	}()

	zerolog.Ctx(ctx).Info().Str("input", inputPath).Msg("creating reversed copy")
	if err = b.reverseStep(ctx, inputPath, reversedFile); err != nil {
		return "", err
	}

	zerolog.Ctx(ctx).Info().Msg("concatenating original and reversed")
	if err = b.concatStep(ctx, listFile, inputPath, reversedFile, combinedFile); err != nil {
		return "", err
	}

	zerolog.Ctx(ctx).Info().Msg("applying speed adjustment and muting audio")
	if err = b.speedMuteStep(ctx, combinedFile, partFile); err != nil {
		return "", err
	}

	if err = os.Rename(partFile, finalFile); err != nil {
		return "", apperr.Wrap(err, apperr.CodeProcessing, "failed to finalize processed video")
	}

	return finalFile, nil
}

// reverseStep writes a time-reversed copy of in to out.
func (b *boomerang) reverseStep(ctx context.Context, in, out string) error {
	if err := b.run(ctx, "ffmpeg", "-y", "-i", in, "-vf", "reverse", out); err != nil {
		return apperr.Wrap(err, apperr.CodeProcessing, "reverse step failed")
	}
	return nil
}

// concatStep joins original and reversed through the concat demuxer,
// stream-copying so the loop point stays seamless.
func (b *boomerang) concatStep(ctx context.Context, listFile, original, reversed, out string) error {
	list := fmt.Sprintf("file '%s'\nfile '%s'\n", original, reversed)
	if err := os.WriteFile(listFile, []byte(list), 0644); err != nil {
		return apperr.Wrap(err, apperr.CodeProcessing, "failed to write concat list")
	}
	if err := b.run(ctx, "ffmpeg", "-y", "-f", "concat", "-safe", "0", "-i", listFile, "-c", "copy", out); err != nil {
		return apperr.Wrap(err, apperr.CodeProcessing, "concatenate step failed")
	}
	return nil
}

// speedMuteStep rescales presentation timestamps to 0.75 (1.33x playback)
// and drops the audio track.
func (b *boomerang) speedMuteStep(ctx context.Context, in, out string) error {
	if err := b.run(ctx, "ffmpeg", "-y", "-i", in, "-filter:v", "setpts=0.75*PTS", "-an", "-f", "mp4", out); err != nil {
		return apperr.Wrap(err, apperr.CodeProcessing, "speed adjustment step failed")
	}
	return nil
}

func runFFmpeg(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		zerolog.Ctx(ctx).Error().Str("output", string(output)).Msg("ffmpeg execution failed")
		return fmt.Errorf("%s execution failed: %w", name, err)
	}
	return nil
}
