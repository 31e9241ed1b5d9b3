package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/garystafford/product-video-generator-app/config"
	"github.com/garystafford/product-video-generator-app/constant"
	"github.com/garystafford/product-video-generator-app/dto"
	"github.com/garystafford/product-video-generator-app/entities"
	"github.com/garystafford/product-video-generator-app/repository"
	"github.com/garystafford/product-video-generator-app/service"
)

// batchConfig is the on-disk shape of video_configs.json.
type batchConfig struct {
	KeyframeBased []batchEntry `json:"keyframe_based"`
}

type batchEntry struct {
	ProductName string                 `json:"product_name"`
	Prompt      string                 `json:"prompt"`
	S3Bucket    string                 `json:"s3_bucket"`
	StartFrame  string                 `json:"start_frame"`
	EndFrame    string                 `json:"end_frame"`
	Settings    entities.VideoSettings `json:"settings"`
}

// batch submits every configured product sequentially, pacing between jobs
// so the generation service's rate limits are respected, and continues past
// individual failures.
func batch(cfg *config.Config) *cobra.Command {
	var (
		configFile string
		bucket     string
		delay      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "generate videos for every product in a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cfg, configFile, bucket, delay)
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "video_configs.json", "batch config file")
	cmd.Flags().StringVar(&bucket, "bucket", "", "target bucket for entries without one")
	cmd.Flags().DurationVar(&delay, "delay", 10*time.Second, "pause between jobs")
	return cmd
}

func runBatch(cfg *config.Config, configFile, bucket string, delay time.Duration) error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ctx, cancel := signal.NotifyContext(logger.WithContext(context.Background()), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	data, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("failed to read batch config: %w", err)
	}
	var batchCfg batchConfig
	if err := json.Unmarshal(data, &batchCfg); err != nil {
		return fmt.Errorf("invalid batch config: %w", err)
	}
	if len(batchCfg.KeyframeBased) == 0 {
		return fmt.Errorf("no keyframe-based entries in %s", configFile)
	}

	for _, dir := range []string{cfg.Paths.KeyframesDir, cfg.Paths.VideosDir} {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return err
		}
	}

	repo, err := repository.NewRepo(cfg.Paths.DatabaseFile)
	if err != nil {
		return err
	}

	orchestrator := service.NewOrchestrator(
		ctx,
		repo,
		service.NewGenerator(cfg.Generation),
		service.NewDownloader(cfg.Storage),
		service.NewBoomerangPipeline(),
		cfg.Paths.VideosDir,
		1,
	)

	completed, failed := 0, 0
	for i, entry := range batchCfg.KeyframeBased {
		if ctx.Err() != nil {
			break
		}
		if entry.S3Bucket == "" {
			entry.S3Bucket = bucket
		}

		log := logger.With().Str("product", entry.ProductName).Int("index", i+1).Logger()
		log.Info().Int("total", len(batchCfg.KeyframeBased)).Msg("submitting batch entry")

		if err := repo.PutKeyframes(entities.Keyframe{
			ProductName: entry.ProductName,
			StartFrame:  entry.StartFrame,
			EndFrame:    entry.EndFrame,
			UploadedAt:  time.Now(),
		}); err != nil {
			log.Error().Err(err).Msg("failed to register keyframes")
			failed++
			continue
		}

		job, err := orchestrator.SubmitJob(ctx, dto.GenerationRequest{
			ProductName: entry.ProductName,
			Prompt:      entry.Prompt,
			S3Bucket:    entry.S3Bucket,
			Settings:    entry.Settings,
		})
		if err != nil {
			log.Error().Err(err).Msg("submission rejected")
			failed++
			continue
		}

		final := waitForTerminal(ctx, repo, job.ID)
		if final.Status == constant.JobStatusCompleted {
			log.Info().Str("job_id", job.ID).Msg("batch entry completed")
			completed++
		} else {
			log.Error().Str("job_id", job.ID).Str("error", final.Error).Msg("batch entry failed")
			failed++
		}

		if i < len(batchCfg.KeyframeBased)-1 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
			}
		}
	}

	logger.Info().Int("completed", completed).Int("failed", failed).Msg("batch run finished")
	if failed > 0 {
		return fmt.Errorf("%d of %d batch entries failed", failed, completed+failed)
	}
	return nil
}

func waitForTerminal(ctx context.Context, repo repository.Repository, jobID string) entities.Job {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		job, err := repo.GetJob(jobID)
		if err == nil && job.Status.IsTerminal() {
			return job
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			job, _ := repo.GetJob(jobID)
			return job
		}
	}
}
