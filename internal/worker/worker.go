package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/aura-studio/backend/internal/apperror"
	"github.com/aura-studio/backend/internal/jobs"
	"github.com/aura-studio/backend/internal/models"
	"github.com/aura-studio/backend/internal/pipeline"
	"github.com/aura-studio/backend/pkg/database"
	"github.com/aura-studio/backend/pkg/queue"
	"github.com/aura-studio/backend/pkg/storage"
)

// JobStore is the job persistence the processor drives.
type JobStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.GenerationJob, error)
	MarkRunning(ctx context.Context, id uuid.UUID) (*models.GenerationJob, error)
	UpdateProgress(ctx context.Context, id uuid.UUID, stage models.JobStage, progress int) error
	MarkSucceeded(ctx context.Context, id, videoID uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, f jobs.Failure) error
}

// Runner executes the generation pipeline.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request, rep pipeline.Reporter) (*models.Video, error)
}

// Mirror copies an assembled video into object storage.
type Mirror interface {
	MirrorFromURL(ctx context.Context, srcURL, key string) error
}

// VideoAttacher records the object key of a mirrored video.
type VideoAttacher interface {
	AttachMirror(ctx context.Context, id uuid.UUID, key string) error
}

// GenerationProcessor runs video generation tasks: load the job, run the pipeline, mirror the
// result and record the terminal status.
type GenerationProcessor struct {
	jobs     JobStore
	runner   Runner
	mirror   Mirror
	videos   VideoAttacher
	attempts func(ctx context.Context) (retried, maxRetry int)
	logger   *zap.Logger
}

// NewGenerationProcessor creates a processor. mirror may be nil when object storage is not configured.
func NewGenerationProcessor(js JobStore, runner Runner, mirror Mirror, videos VideoAttacher, logger *zap.Logger) *GenerationProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerationProcessor{jobs: js, runner: runner, mirror: mirror, videos: videos, attempts: taskAttempts, logger: logger}
}

// taskAttempts reads the retry counters asynq attaches to the handler context. Outside a
// worker both are zero, so every run counts as the last one.
func taskAttempts(ctx context.Context) (int, int) {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	return retried, maxRetry
}

// HandleGenerateVideo is the asynq handler for queue.TypeGenerateVideo.
func (p *GenerationProcessor) HandleGenerateVideo(ctx context.Context, t *asynq.Task) error {
	payload, err := queue.ParseGenerateVideo(t)
	if err != nil {
		return fmt.Errorf("generate video: %v: %w", err, asynq.SkipRetry)
	}
	log := p.logger.With(zap.String("job_id", payload.JobID.String()), zap.String("user_id", payload.UserID.String()))

	job, err := p.jobs.GetByID(ctx, payload.JobID)
	if errors.Is(err, database.ErrNotFound) {
		log.Warn("job row missing, dropping task")
		return fmt.Errorf("job %s not found: %w", payload.JobID, asynq.SkipRetry)
	}
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if job.Status.Terminal() {
		log.Info("job already finished", zap.String("status", string(job.Status)))
		return nil
	}
	job, err = p.jobs.MarkRunning(ctx, job.ID)
	if errors.Is(err, jobs.ErrTerminal) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	log.Info("job running", zap.Int("attempt", job.Attempts))

	rep := pipeline.ReporterFunc(func(ctx context.Context, stage models.JobStage, progress int) error {
		return p.jobs.UpdateProgress(ctx, job.ID, stage, progress)
	})
	video, err := p.runner.Run(ctx, pipeline.Request{
		JobID:     job.ID,
		UserID:    job.UserID,
		ScriptID:  job.ScriptID,
		Scripts:   job.ProvidedScripts,
		ImageURLs: job.ProvidedImageURLs,
	}, rep)
	if err != nil {
		return p.fail(ctx, log, job, err)
	}

	p.mirrorVideo(ctx, log, video)

	// Terminal writes must land even when the task deadline has just expired.
	wctx := context.WithoutCancel(ctx)
	if err := p.jobs.MarkSucceeded(wctx, job.ID, video.ID); err != nil && !errors.Is(err, jobs.ErrTerminal) {
		log.Error("mark job succeeded", zap.String("video_id", video.ID.String()), zap.Error(err))
		// Never leave the row running: retry the task or record the failure.
		return p.fail(ctx, log, job, &pipeline.StageError{
			Stage: models.StageAssemblingVideo,
			Err:   apperror.Persistence("jobs.mark_succeeded", err),
		})
	}
	log.Info("job succeeded", zap.String("video_id", video.ID.String()))
	return nil
}

// fail records the failure when no retry remains and tells asynq whether to retry.
func (p *GenerationProcessor) fail(ctx context.Context, log *zap.Logger, job *models.GenerationJob, err error) error {
	stage := pipeline.StageOf(err)
	// A cancelled task context means the server is shutting down. asynq requeues the task and
	// the redelivery resumes the running row, so nothing is recorded here. Stage and task
	// timeouts surface as DeadlineExceeded and take the normal path.
	if errors.Is(ctx.Err(), context.Canceled) {
		log.Warn("job interrupted, left for redelivery", zap.String("stage", string(stage)), zap.Error(err))
		return fmt.Errorf("stage %s interrupted: %w", stage, err)
	}
	retried, maxRetry := p.attempts(ctx)
	permanent := apperror.IsKind(err, apperror.KindInvalidInput) || apperror.IsKind(err, apperror.KindNotFound)
	if !permanent && retried < maxRetry {
		log.Warn("job attempt failed, will retry",
			zap.String("stage", string(stage)),
			zap.Int("retried", retried),
			zap.Int("max_retry", maxRetry),
			zap.Error(err),
		)
		return fmt.Errorf("stage %s: %w", stage, err)
	}

	f := jobs.NewFailure(stage, err)
	if merr := p.jobs.MarkFailed(context.WithoutCancel(ctx), job.ID, f); merr != nil && !errors.Is(merr, jobs.ErrTerminal) {
		log.Error("mark job failed", zap.Error(merr))
	}
	log.Error("job failed", zap.String("stage", f.Stage), zap.String("code", f.Code), zap.Error(err))
	return fmt.Errorf("stage %s: %v: %w", stage, err, asynq.SkipRetry)
}

// mirrorVideo copies the assembled artifact to object storage. Failures keep the upstream URL.
func (p *GenerationProcessor) mirrorVideo(ctx context.Context, log *zap.Logger, video *models.Video) {
	if p.mirror == nil || video.VideoURL == "" {
		return
	}
	key := storage.VideoKey(video.OwnerID.String(), video.ID.String())
	if err := p.mirror.MirrorFromURL(ctx, video.VideoURL, key); err != nil {
		log.Warn("mirror video to s3", zap.String("video_id", video.ID.String()), zap.Error(err))
		return
	}
	if err := p.videos.AttachMirror(ctx, video.ID, key); err != nil {
		log.Warn("record mirrored video key", zap.String("video_id", video.ID.String()), zap.Error(err))
		return
	}
	video.S3Key = key
	log.Info("video mirrored", zap.String("video_id", video.ID.String()), zap.String("key", key))
}
