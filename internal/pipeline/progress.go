package pipeline

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/aura-studio/backend/internal/models"
)

// Tracker forwards checkpoints to a Reporter, dropping any that would lower progress.
type Tracker struct {
	mu     sync.Mutex
	rep    Reporter
	last   int
	logger *zap.Logger
}

// NewTracker wraps rep. A nil rep discards checkpoints.
func NewTracker(rep Reporter, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{rep: rep, last: -1, logger: logger}
}

// Report emits a checkpoint. Reporter failures are logged; they never fail the job.
func (t *Tracker) Report(ctx context.Context, stage models.JobStage, progress int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if progress < t.last {
		return
	}
	t.last = progress
	t.logger.Info("checkpoint", zap.String("stage", string(stage)), zap.Int("progress", progress))
	if t.rep == nil {
		return
	}
	if err := t.rep.Report(ctx, stage, progress); err != nil {
		t.logger.Warn("progress report failed", zap.String("stage", string(stage)), zap.Int("progress", progress), zap.Error(err))
	}
}

// Last returns the highest progress emitted so far, or -1.
func (t *Tracker) Last() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}
