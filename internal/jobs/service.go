// Package jobs tracks generation jobs from submission to a terminal status.
package jobs

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-studio/backend/internal/apperror"
	"github.com/aura-studio/backend/internal/models"
	"github.com/aura-studio/backend/pkg/database"
	"github.com/aura-studio/backend/pkg/queue"
)

// Failure describes why a job failed.
type Failure struct {
	Stage  string
	Code   string
	Reason string
}

// NewFailure builds the Failure recorded for err raised in stage. Reasons of persistence and
// internal errors are replaced with their public message.
func NewFailure(stage models.JobStage, err error) Failure {
	code := apperror.CodeOf(err)
	if code == "" {
		code = string(apperror.KindOf(err))
	}
	reason := err.Error()
	switch apperror.KindOf(err) {
	case apperror.KindPersistence, apperror.KindInternal:
		reason = apperror.PublicMessage(err)
	}
	return Failure{Stage: string(stage), Code: code, Reason: reason}
}

// Store is the job persistence the service needs.
type Store interface {
	Create(ctx context.Context, j *models.GenerationJob) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.GenerationJob, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.GenerationJob, int, error)
	MarkFailed(ctx context.Context, id uuid.UUID, f Failure) error
}

// Enqueuer hands a job to the worker pool.
type Enqueuer interface {
	EnqueueGenerateVideo(ctx context.Context, p queue.GenerateVideoPayload) error
}

// SubmitInput is the body of a generation request.
type SubmitInput struct {
	ScriptID  uuid.UUID `json:"script_id"`
	Scripts   []string  `json:"scripts"`
	ImageURLs []string  `json:"image_urls"`
}

// Service submits jobs and reports their status.
type Service struct {
	store  Store
	queue  Enqueuer
	logger *zap.Logger
}

// NewService creates a job service.
func NewService(store Store, q Enqueuer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, queue: q, logger: logger}
}

// Submit records a queued job and enqueues it.
func (s *Service) Submit(ctx context.Context, userID uuid.UUID, in SubmitInput) (*models.GenerationJob, error) {
	if in.ScriptID == uuid.Nil {
		return nil, apperror.InvalidInput("jobs.submit", "script_id is required")
	}
	for _, list := range [][]string{in.Scripts, in.ImageURLs} {
		for _, v := range list {
			if strings.TrimSpace(v) == "" {
				return nil, apperror.InvalidInput("jobs.submit", "provided scripts and image_urls must not contain blank entries")
			}
		}
	}
	j := &models.GenerationJob{
		ID:                uuid.New(),
		UserID:            userID,
		ScriptID:          in.ScriptID,
		ProvidedScripts:   in.Scripts,
		ProvidedImageURLs: in.ImageURLs,
		Status:            models.JobStatusQueued,
		Stage:             models.StageQueued,
	}
	if err := s.store.Create(ctx, j); err != nil {
		return nil, apperror.Persistence("jobs.submit", err)
	}
	err := s.queue.EnqueueGenerateVideo(ctx, queue.GenerateVideoPayload{
		JobID:     j.ID,
		UserID:    userID,
		ScriptID:  in.ScriptID,
		Scripts:   in.Scripts,
		ImageURLs: in.ImageURLs,
	})
	if err != nil {
		s.logger.Error("enqueue generation job", zap.String("job_id", j.ID.String()), zap.Error(err))
		f := Failure{Stage: string(models.StageQueued), Code: string(apperror.KindInternal), Reason: "could not enqueue job"}
		if merr := s.store.MarkFailed(ctx, j.ID, f); merr != nil {
			s.logger.Warn("mark unqueued job failed", zap.String("job_id", j.ID.String()), zap.Error(merr))
		}
		return nil, apperror.Wrap("jobs.submit", err)
	}
	s.logger.Info("job submitted",
		zap.String("job_id", j.ID.String()),
		zap.String("user_id", userID.String()),
		zap.Bool("reuse", len(in.Scripts) > 0 && len(in.ImageURLs) > 0),
	)
	return j, nil
}

// Status returns one of the caller's jobs.
func (s *Service) Status(ctx context.Context, userID, id uuid.UUID) (*models.GenerationJob, error) {
	j, err := s.store.GetByID(ctx, id)
	if errors.Is(err, database.ErrNotFound) || (err == nil && j.UserID != userID) {
		return nil, apperror.NotFound("jobs.status", "job", id.String())
	}
	if err != nil {
		return nil, apperror.Wrap("jobs.status", err)
	}
	return j, nil
}

// List returns one page of the caller's jobs, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, page, limit int) (models.Page[models.GenerationJob], error) {
	page, limit = models.NormalizePage(page, limit)
	items, total, err := s.store.ListByUser(ctx, userID, limit, database.Offset(page, limit))
	if err != nil {
		return models.Page[models.GenerationJob]{}, apperror.Wrap("jobs.list", err)
	}
	return models.NewPage(items, total, page, limit), nil
}
