// Package main runs the standalone generation worker pool.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-studio/backend/config"
	"github.com/aura-studio/backend/internal/assets"
	"github.com/aura-studio/backend/internal/contentgen"
	"github.com/aura-studio/backend/internal/jobs"
	"github.com/aura-studio/backend/internal/pipeline"
	"github.com/aura-studio/backend/internal/worker"
	"github.com/aura-studio/backend/pkg/database"
	"github.com/aura-studio/backend/pkg/redis"
	"github.com/aura-studio/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var mirror worker.Mirror
	if cfg.AWS.VideosBucket != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			VideosBucket:         cfg.AWS.VideosBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Fatal("s3", zap.Error(err))
		}
		mirror = s3Client
	}

	gen, err := contentgen.NewClient(contentgen.Options{
		BaseURL:    cfg.ContentGen.BaseURL,
		APIKey:     cfg.ContentGen.APIKey,
		DummyMode:  cfg.ContentGen.DummyMode,
		HTTPClient: &http.Client{Timeout: time.Duration(cfg.ContentGen.TimeoutSec) * time.Second},
		Logger:     logger.Named("contentgen"),
	})
	if err != nil {
		logger.Fatal("contentgen", zap.Error(err))
	}
	ttsProvider, err := contentgen.ParseTTSProvider(cfg.ContentGen.TTSProvider)
	if err != nil {
		logger.Fatal("contentgen tts provider", zap.Error(err))
	}
	videoMode, err := contentgen.ParseVideoMode(cfg.Pipeline.VideoMode)
	if err != nil {
		logger.Fatal("pipeline video mode", zap.Error(err))
	}

	assetRepo := assets.NewRepository(pool)
	scripts := assets.NewScriptService(assetRepo, gen, logger)
	videos := assets.NewVideoService(assetRepo, gen, assets.VideoDefaults{
		Mode:               videoMode,
		TransitionDuration: cfg.Pipeline.TransitionDuration,
	}, logger)
	orchestrator := pipeline.NewOrchestrator(pipeline.Deps{
		Scripts: scripts,
		Audios:  assets.NewAudioService(assetRepo, assetRepo, gen, ttsProvider, logger),
		Prompts: gen,
		Images:  assets.NewImageService(assetRepo, gen, logger),
		Videos:  videos,
	}, pipeline.Options{StageTimeout: cfg.Pipeline.StageTimeout(), Logger: logger.Named("pipeline")})

	processor := worker.NewGenerationProcessor(jobs.NewRepository(pool), orchestrator, mirror, videos, logger)
	srv := worker.NewServer(
		rdb.AsynqOpt(),
		worker.ServerConfig{Concurrency: cfg.Queue.Concurrency, RetryBackoff: cfg.Queue.RetryBackoff()},
		processor, logger,
	)
	if err := srv.Start(); err != nil {
		logger.Fatal("worker", zap.Error(err))
	}
	logger.Info("worker started", zap.Int("concurrency", cfg.Queue.Concurrency))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	srv.Shutdown()
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
