// Package main runs the studio HTTP API, optionally with the generation worker pool in-process.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-studio/backend/config"
	"github.com/aura-studio/backend/internal/assets"
	"github.com/aura-studio/backend/internal/auth"
	"github.com/aura-studio/backend/internal/channels"
	"github.com/aura-studio/backend/internal/contentgen"
	"github.com/aura-studio/backend/internal/jobs"
	"github.com/aura-studio/backend/internal/middleware"
	"github.com/aura-studio/backend/internal/models"
	"github.com/aura-studio/backend/internal/pipeline"
	"github.com/aura-studio/backend/internal/platformauth"
	"github.com/aura-studio/backend/internal/publishing"
	"github.com/aura-studio/backend/internal/tokenstore"
	"github.com/aura-studio/backend/internal/worker"
	"github.com/aura-studio/backend/pkg/database"
	"github.com/aura-studio/backend/pkg/queue"
	"github.com/aura-studio/backend/pkg/redis"
	"github.com/aura-studio/backend/pkg/response"
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
	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.VideosBucket != "" {
		s3Client, err = storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			VideosBucket:         cfg.AWS.VideosBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Fatal("s3", zap.Error(err))
		}
	} else {
		logger.Warn("AWS_S3_VIDEOS_BUCKET not set, generated videos will not be mirrored")
	}

	sealer, err := tokenstore.NewSealer(cfg.OAuth.TokenEncryptionKey)
	if err != nil {
		logger.Fatal("token sealer", zap.Error(err))
	}
	tokens := tokenstore.New(tokenstore.NewRedisBackend(rdb.Client), sealer, logger)
	platformAuth := platformauth.NewManager(platformauth.Options{
		OAuth:         platformauth.NewOAuthConfig(cfg.OAuth),
		Store:         tokens,
		RefreshWindow: time.Duration(cfg.OAuth.RefreshWindowSec) * time.Second,
		Logger:        logger.Named("platformauth"),
	})

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

	// Repositories
	userRepo := auth.NewRepository(pool)
	assetRepo := assets.NewRepository(pool)
	jobRepo := jobs.NewRepository(pool)
	pubRepo := publishing.NewRepository(pool)

	// Asset services
	scripts := assets.NewScriptService(assetRepo, gen, logger)
	audios := assets.NewAudioService(assetRepo, assetRepo, gen, ttsProvider, logger)
	images := assets.NewImageService(assetRepo, gen, logger)
	videos := assets.NewVideoService(assetRepo, gen, assets.VideoDefaults{
		Mode:               videoMode,
		TransitionDuration: cfg.Pipeline.TransitionDuration,
	}, logger)
	if s3Client != nil {
		videos.UsePresigner(s3Client)
	}

	redisOpt := rdb.AsynqOpt()
	jobQueue := queue.NewQueue(redisOpt, queue.Options{
		MaxRetry:  cfg.Queue.MaxRetry,
		Timeout:   cfg.Queue.JobTimeout(),
		Retention: cfg.Queue.Retention(),
	}, logger)
	defer jobQueue.Close()

	var objects publishing.ObjectOpener
	if s3Client != nil {
		objects = s3Client
	}
	publisher := publishing.NewPublisher(assetRepo, pubRepo, platformAuth, publishing.NewVideoSource(objects, nil),
		map[models.Platform]publishing.Uploader{models.PlatformYouTube: publishing.YouTubeUploader{}}, logger.Named("publishing"))
	channelSvc := channels.NewService(platformAuth, tokens, channels.YouTubeFetcher{}, assetRepo, pubRepo, logger.Named("channels"))

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	authHandler := auth.NewHandler(userRepo, jwtService, logger)
	assetHandler := assets.NewHandler(scripts, audios, images, videos)
	jobHandler := jobs.NewHandler(jobs.NewService(jobRepo, jobQueue, logger), jobQueue, logger)
	publishHandler := publishing.NewHandler(publisher, time.Duration(cfg.Server.PublishTimeout)*time.Second)
	channelHandler := channels.NewHandler(channelSvc)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) {
		response.OK(c, gin.H{"status": "ok"})
	})

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}
	// OAuth consent redirect lands here without a bearer token; the user is carried in state.
	channelHandler.RegisterCallback(router.Group(""))

	// Protected API (JWT required; job streams may pass ?token=)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	assetHandler.Register(api)
	jobHandler.Register(api)
	publishHandler.Register(api)
	channelHandler.Register(api)

	admin := api.Group("/admin")
	admin.Use(middleware.RequireRole(models.RoleAdmin))
	admin.GET("/users", authHandler.List)
	jobHandler.RegisterAdmin(admin)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	var workers *worker.Server
	if cfg.Server.WorkerInProcess {
		orchestrator := pipeline.NewOrchestrator(pipeline.Deps{
			Scripts: scripts,
			Audios:  audios,
			Prompts: gen,
			Images:  images,
			Videos:  videos,
		}, pipeline.Options{StageTimeout: cfg.Pipeline.StageTimeout(), Logger: logger.Named("pipeline")})
		var mirror worker.Mirror
		if s3Client != nil {
			mirror = s3Client
		}
		processor := worker.NewGenerationProcessor(jobRepo, orchestrator, mirror, videos, logger)
		workers = worker.NewServer(redisOpt, worker.ServerConfig{
			Concurrency:  cfg.Queue.Concurrency,
			RetryBackoff: cfg.Queue.RetryBackoff(),
		}, processor, logger)
		if err := workers.Start(); err != nil {
			logger.Fatal("worker", zap.Error(err))
		}
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	if workers != nil {
		workers.Shutdown()
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
