package worker

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/aura-studio/backend/pkg/queue"
)

// ServerConfig bounds the worker pool.
type ServerConfig struct {
	Concurrency  int
	RetryBackoff time.Duration // per-retry linear step; zero uses asynq's exponential default
}

// Server consumes the generation queue with a bounded pool of workers.
type Server struct {
	srv    *asynq.Server
	mux    *asynq.ServeMux
	logger *zap.Logger
}

// NewServer wires p into an asynq server on redisOpt.
func NewServer(redisOpt asynq.RedisConnOpt, cfg ServerConfig, p *GenerationProcessor, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:    cfg.Concurrency,
		Queues:         map[string]int{queue.QueueDefault: 1},
		RetryDelayFunc: retryDelay(cfg.RetryBackoff),
		Logger:         logger.Named("asynq").Sugar(),
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, t *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			logger.Warn("task failed", zap.String("type", t.Type()), zap.Int("retried", retried), zap.Error(err))
		}),
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeGenerateVideo, p.HandleGenerateVideo)
	return &Server{srv: srv, mux: mux, logger: logger}
}

func retryDelay(step time.Duration) asynq.RetryDelayFunc {
	if step <= 0 {
		return asynq.DefaultRetryDelayFunc
	}
	return func(n int, _ error, _ *asynq.Task) time.Duration {
		return step * time.Duration(n+1)
	}
}

// Start begins processing in the background.
func (s *Server) Start() error {
	if err := s.srv.Start(s.mux); err != nil {
		return err
	}
	s.logger.Info("worker pool started")
	return nil
}

// Shutdown stops fetching tasks and waits for active ones up to asynq's shutdown timeout.
func (s *Server) Shutdown() {
	s.srv.Shutdown()
	s.logger.Info("worker pool stopped")
}
