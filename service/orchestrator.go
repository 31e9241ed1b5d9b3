package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/garystafford/product-video-generator-app/constant"
	"github.com/garystafford/product-video-generator-app/dto"
	"github.com/garystafford/product-video-generator-app/entities"
	"github.com/garystafford/product-video-generator-app/pkg/apperr"
	"github.com/garystafford/product-video-generator-app/repository"
)

// Orchestrator drives a submitted job through upload, generation, download,
// and post-processing, recording every stage in the job registry so polling
// clients always see the last completed stage. Validation failures are the
// only errors returned to the submitter; everything later lands on the job
// record.
type Orchestrator interface {
	SubmitJob(ctx context.Context, req dto.GenerationRequest) (entities.Job, error)
	// Wait blocks until all in-flight jobs have reached a terminal state.
	Wait()
}

type orchestrator struct {
	repo       repository.Repository
	generator  Generator
	downloader Downloader
	pipeline   Pipeline
	videosDir  string

	// baseCtx detaches job execution from the submitting request; jobs
	// outlive the HTTP call that created them.
	baseCtx context.Context
	// sem bounds simultaneous jobs: each holds an external generation slot
	// and later a local ffmpeg process.
	sem chan struct{}
	wg  sync.WaitGroup
}

func NewOrchestrator(
	ctx context.Context,
	repo repository.Repository,
	gen Generator,
	dl Downloader,
	pipe Pipeline,
	videosDir string,
	maxConcurrent int,
) Orchestrator {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &orchestrator{
		repo:       repo,
		generator:  gen,
		downloader: dl,
		pipeline:   pipe,
		videosDir:  videosDir,
		baseCtx:    ctx,
		sem:        make(chan struct{}, maxConcurrent),
	}
}

func (o *orchestrator) SubmitJob(ctx context.Context, req dto.GenerationRequest) (entities.Job, error) {
	applySettingsDefaults(&req.Settings)
	if err := validateRequest(req); err != nil {
		return entities.Job{}, err
	}

	kf, err := o.repo.GetKeyframes(req.ProductName)
	if err != nil {
		return entities.Job{}, apperr.Newf(apperr.CodeValidation,
			"no keyframes found for product: %s, please upload keyframes first", req.ProductName)
	}

	job, err := o.repo.CreateJob(repository.JobSpec{
		ProductName:  req.ProductName,
		Prompt:       req.Prompt,
		TargetBucket: req.S3Bucket,
		Settings:     req.Settings,
	})
	if err != nil {
		return entities.Job{}, err
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run(job, kf)
	}()

	return job, nil
}

func (o *orchestrator) Wait() {
	o.wg.Wait()
}

// run executes one job end to end. Each stage records its status before the
// stage work begins, so a crash mid-stage leaves the record at the last
// completed transition.
func (o *orchestrator) run(job entities.Job, kf entities.Keyframe) {
	ctx := o.baseCtx
	logger := zerolog.Ctx(ctx).With().Str("job_id", job.ID).Str("product", job.ProductName).Logger()
	ctx = logger.WithContext(ctx)

	select {
	case o.sem <- struct{}{}:
	case <-ctx.Done():
		o.fail(ctx, job.ID, apperr.Wrap(ctx.Err(), apperr.CodeInternal, "job cancelled before start"))
		return
	}
	defer func() { <-o.sem }()

	// UPLOADING: confirm the keyframe assets are still available.
	o.setStage(ctx, job.ID, constant.JobStatusUploading, 5, "Validating keyframes...")
	if _, err := os.Stat(kf.StartFrame); err != nil {
		o.fail(ctx, job.ID, apperr.Wrap(err, apperr.CodeValidation, "start frame missing"))
		return
	}
	if kf.EndFrame != "" {
		if _, err := os.Stat(kf.EndFrame); err != nil {
			o.fail(ctx, job.ID, apperr.Wrap(err, apperr.CodeValidation, "end frame missing"))
			return
		}
	}

	// GENERATING: submit and wait for the external async operation.
	o.setStage(ctx, job.ID, constant.JobStatusGenerating, 10, "Generating video...")
	handle, err := o.generator.Submit(ctx, SubmitRequest{
		ProductName:    job.ProductName,
		Prompt:         job.Prompt,
		S3Bucket:       job.TargetBucket,
		StartFramePath: kf.StartFrame,
		EndFramePath:   kf.EndFrame,
		Settings:       job.Settings,
	})
	if err != nil {
		o.fail(ctx, job.ID, err)
		return
	}
	o.repo.UpdateJob(job.ID, func(j *entities.Job) {
		j.InvocationARN = handle
	})

	outputLocation, err := o.generator.WaitForCompletion(ctx, handle)
	if err != nil {
		o.fail(ctx, job.ID, err)
		return
	}

	// DOWNLOADING: fetch the raw clip into this job's working file.
	o.setStage(ctx, job.ID, constant.JobStatusDownloading, 50, "Video generated! Downloading...")
	o.repo.UpdateJob(job.ID, func(j *entities.Job) {
		j.OutputLocation = outputLocation
	})

	baseName := fmt.Sprintf("%s_%s", job.ProductName, shortID(job.ID))
	originalPath := filepath.Join(o.videosDir, baseName+".mp4")
	if err := o.downloader.Fetch(ctx, outputLocation, originalPath); err != nil {
		o.fail(ctx, job.ID, err)
		return
	}

	if ctx.Err() != nil {
		o.fail(ctx, job.ID, apperr.Wrap(ctx.Err(), apperr.CodeInternal, "job cancelled"))
		return
	}

	// PROCESSING: the media pipeline runs detached from cancellation so a
	// shutdown never kills ffmpeg mid-write.
	o.setStage(ctx, job.ID, constant.JobStatusProcessing, 70, "Applying boomerang effect...")
	finalPath, err := o.pipeline.Process(context.WithoutCancel(ctx), originalPath)
	if err != nil {
		os.Remove(originalPath)
		o.fail(ctx, job.ID, err)
		return
	}

	o.setStage(ctx, job.ID, constant.JobStatusProcessing, 90, "Uploading final video...")
	finalKey := fmt.Sprintf("product-videos/%s/%s/%s", job.ProductName,
		time.Now().Format("20060102_150405"), filepath.Base(finalPath))
	remoteURI, err := o.downloader.Upload(context.WithoutCancel(ctx), finalPath, job.TargetBucket, finalKey)
	if err != nil {
		o.fail(ctx, job.ID, err)
		return
	}

	// COMPLETED: exactly one catalog entry per successful job.
	video := entities.Video{
		ID:             job.ID,
		ProductName:    job.ProductName,
		Prompt:         job.Prompt,
		Settings:       job.Settings,
		StartKeyframe:  kf.StartFrame,
		EndKeyframe:    kf.EndFrame,
		OutputLocation: outputLocation,
		OriginalPath:   originalPath,
		FinalPath:      finalPath,
		RemoteURI:      remoteURI,
		CreatedAt:      job.CreatedAt,
	}
	if err := o.repo.UpsertVideo(video); err != nil {
		o.fail(ctx, job.ID, err)
		return
	}

	o.repo.UpdateJob(job.ID, func(j *entities.Job) {
		j.Status = constant.JobStatusCompleted
		j.Progress = 100
		j.Message = "Video processing completed!"
		j.VideoID = video.ID
	})
	logger.Info().Msg("job completed")
}

func (o *orchestrator) setStage(ctx context.Context, id string, status constant.JobStatus, progress int, message string) {
	_, err := o.repo.UpdateJob(id, func(j *entities.Job) {
		j.Status = status
		j.Progress = progress
		j.Message = message
	})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("status", status.String()).Msg("failed to record stage")
	}
}

func (o *orchestrator) fail(ctx context.Context, id string, cause error) {
	zerolog.Ctx(ctx).Error().Err(cause).Msg("job failed")
	_, err := o.repo.UpdateJob(id, func(j *entities.Job) {
		j.Status = constant.JobStatusFailed
		j.Message = fmt.Sprintf("Error: %s", cause.Error())
		j.Error = cause.Error()
	})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to record job failure")
	}
}

func applySettingsDefaults(s *entities.VideoSettings) {
	if s.AspectRatio == "" {
		s.AspectRatio = "16:9"
	}
	if s.Duration == "" {
		s.Duration = "5s"
	}
	if s.Resolution == "" {
		s.Resolution = "720p"
	}
	if s.Region == "" {
		s.Region = "us-west-2"
	}
}

func validateRequest(req dto.GenerationRequest) error {
	if req.ProductName == "" {
		return apperr.New(apperr.CodeValidation, "product name is required")
	}
	if req.Prompt == "" {
		return apperr.New(apperr.CodeValidation, "prompt is required")
	}
	if req.S3Bucket == "" {
		return apperr.New(apperr.CodeValidation, "target bucket is required")
	}
	if !contains(constant.Durations, req.Settings.Duration) {
		return apperr.Newf(apperr.CodeValidation, "invalid duration: %s", req.Settings.Duration)
	}
	if !contains(constant.Resolutions, req.Settings.Resolution) {
		return apperr.Newf(apperr.CodeValidation, "invalid resolution: %s", req.Settings.Resolution)
	}
	if !contains(constant.AspectRatios, req.Settings.AspectRatio) {
		return apperr.Newf(apperr.CodeValidation, "invalid aspect ratio: %s", req.Settings.AspectRatio)
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
