package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/garystafford/product-video-generator-app/config"
	"github.com/garystafford/product-video-generator-app/constant"
	jobHandler "github.com/garystafford/product-video-generator-app/handler"
	"github.com/garystafford/product-video-generator-app/pkg/rabbitmq"
	"github.com/garystafford/product-video-generator-app/repository"
	"github.com/garystafford/product-video-generator-app/service"
)

func RunHttp(cfg *config.Config) {
	ctx, cancel := signal.NotifyContext(setupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Bool("isProduction", cfg.App.Environment == constant.EnvironmentProduction.String()).Send()
	if cfg.App.Environment == constant.EnvironmentProduction.String() {
		gin.SetMode(gin.ReleaseMode)
	}

	for _, dir := range []string{cfg.Paths.KeyframesDir, cfg.Paths.VideosDir} {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			zerolog.Ctx(ctx).Fatal().Err(err).Str("dir", dir).Msg("failed to create data directory")
		}
	}

	repo, err := repository.NewRepo(cfg.Paths.DatabaseFile)
	if err != nil {
		zerolog.Ctx(ctx).Fatal().Err(err).Msg("failed to open database")
	}

	generator := service.NewGenerator(cfg.Generation)
	downloader := service.NewDownloader(cfg.Storage)
	pipeline := service.NewBoomerangPipeline()
	orchestrator := service.NewOrchestrator(ctx, repo, generator, downloader, pipeline, cfg.Paths.VideosDir, cfg.Server.Workers)

	serviceDeps := jobHandler.ServiceDependencies{
		Orchestrator: orchestrator,
		Repo:         repo,
		KeyframesDir: cfg.Paths.KeyframesDir,
	}

	// Generation requests can also arrive over the queue, e.g. from a
	// backend publishing on behalf of batch tooling.
	if cfg.Queue != nil && cfg.Queue.Host != "" {
		conn, err := config.NewRabbitMQConn(ctx, cfg.Queue)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("NewRabbitMQConn")
		} else {
			generationConsumer := rabbitmq.NewConsumer(conn, cfg.Queue, cfg.Server.Workers, jobHandler.GenerationHandler)
			go func() {
				if err := generationConsumer.Consume(ctx, serviceDeps); err != nil {
					zerolog.Ctx(ctx).Error().Err(err).Msg("Generation consumer error")
				}
			}()
		}
	}

	r := gin.Default()
	addHealth(r)
	jobHandler.New(serviceDeps).Register(r)

	handler := http.Server{
		Handler:           r,
		Addr:              fmt.Sprintf(":%s", cfg.Server.HttpPort),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("start http server")
		if err := handler.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
		}
	}()

	<-ctx.Done()
	zerolog.Ctx(ctx).Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := handler.Shutdown(shutdownCtx); err != nil {
		zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
	}

	// Jobs already inside the media pipeline finish on their own; wait for
	// them so no partial files are left behind.
	orchestrator.Wait()

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("server shutdown")
}

func addHealth(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})
}

func setupLogger(cfg *config.Config) context.Context {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.App.Environment == constant.EnvironmentDevelop.String() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	// Log to standard output
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ctx := logger.WithContext(context.Background())

	return ctx
}
