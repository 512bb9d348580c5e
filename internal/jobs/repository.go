package jobs

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-studio/backend/internal/models"
	"github.com/aura-studio/backend/pkg/database"
)

// ErrTerminal is returned when a write targets a job that already succeeded or failed.
var ErrTerminal = errors.New("job already finished")

// Repository handles generation_jobs persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a job repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const jobColumns = `id, user_id, script_id, provided_scripts, provided_image_urls, status, stage, progress,
	video_id, failure_stage, failure_code, failure_reason, attempts, created_at, updated_at, finished_at`

func scanJob(row pgx.Row) (*models.GenerationJob, error) {
	var j models.GenerationJob
	err := row.Scan(&j.ID, &j.UserID, &j.ScriptID, &j.ProvidedScripts, &j.ProvidedImageURLs, &j.Status, &j.Stage, &j.Progress,
		&j.VideoID, &j.FailureStage, &j.FailureCode, &j.FailureReason, &j.Attempts, &j.CreatedAt, &j.UpdatedAt, &j.FinishedAt)
	if err != nil {
		return nil, database.NotFound(err)
	}
	return &j, nil
}

// Create inserts a queued job. The caller assigns the ID so it can double as the task id.
func (r *Repository) Create(ctx context.Context, j *models.GenerationJob) error {
	const q = `INSERT INTO generation_jobs (id, user_id, script_id, provided_scripts, provided_image_urls, status, stage, progress)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0)
		RETURNING created_at, updated_at`
	scripts, urls := j.ProvidedScripts, j.ProvidedImageURLs
	if scripts == nil {
		scripts = []string{}
	}
	if urls == nil {
		urls = []string{}
	}
	return r.pool.QueryRow(ctx, q, j.ID, j.UserID, j.ScriptID, scripts, urls, models.JobStatusQueued, models.StageQueued).
		Scan(&j.CreatedAt, &j.UpdatedAt)
}

// GetByID returns a job.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.GenerationJob, error) {
	return scanJob(r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM generation_jobs WHERE id = $1`, id))
}

// ListByUser returns one page of a user's jobs, newest first, and the total count.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.GenerationJob, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM generation_jobs WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+jobColumns+` FROM generation_jobs WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var list []models.GenerationJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, *j)
	}
	return list, total, rows.Err()
}

// MarkRunning moves a non-terminal job to running and counts the attempt.
func (r *Repository) MarkRunning(ctx context.Context, id uuid.UUID) (*models.GenerationJob, error) {
	q := `UPDATE generation_jobs SET status = $2, attempts = attempts + 1, updated_at = NOW()
		WHERE id = $1 AND status NOT IN ($3, $4)
		RETURNING ` + jobColumns
	j, err := scanJob(r.pool.QueryRow(ctx, q, id, models.JobStatusRunning, models.JobStatusSucceeded, models.JobStatusFailed))
	return j, r.terminalOr(ctx, id, err)
}

// UpdateProgress records a checkpoint. Stored progress never decreases, so a redelivered job
// replaying early checkpoints leaves the row unchanged.
func (r *Repository) UpdateProgress(ctx context.Context, id uuid.UUID, stage models.JobStage, progress int) error {
	const q = `UPDATE generation_jobs
		SET stage = CASE WHEN $3 >= progress THEN $2 ELSE stage END,
			progress = GREATEST(progress, $3), updated_at = NOW()
		WHERE id = $1 AND status NOT IN ($4, $5)`
	_, err := r.pool.Exec(ctx, q, id, stage, progress, models.JobStatusSucceeded, models.JobStatusFailed)
	return err
}

// MarkSucceeded completes a job with its video.
func (r *Repository) MarkSucceeded(ctx context.Context, id, videoID uuid.UUID) error {
	const q = `UPDATE generation_jobs SET status = $2, stage = $3, progress = 100, video_id = $4,
			updated_at = NOW(), finished_at = NOW()
		WHERE id = $1 AND status NOT IN ($2, $5)`
	tag, err := r.pool.Exec(ctx, q, id, models.JobStatusSucceeded, models.StageCompleted, videoID, models.JobStatusFailed)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.terminalOr(ctx, id, pgx.ErrNoRows)
	}
	return nil
}

// MarkFailed fails a job, keeping the stage it failed in and the highest progress reached.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, f Failure) error {
	const q = `UPDATE generation_jobs SET status = $2, stage = $3, failure_stage = $4, failure_code = $5,
			failure_reason = $6, updated_at = NOW(), finished_at = NOW()
		WHERE id = $1 AND status NOT IN ($2, $7)`
	tag, err := r.pool.Exec(ctx, q, id, models.JobStatusFailed, models.StageFailed, f.Stage, f.Code, f.Reason, models.JobStatusSucceeded)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.terminalOr(ctx, id, pgx.ErrNoRows)
	}
	return nil
}

// terminalOr distinguishes "guard rejected the write" from "no such job".
func (r *Repository) terminalOr(ctx context.Context, id uuid.UUID, err error) error {
	if err == nil || !errors.Is(database.NotFound(err), database.ErrNotFound) {
		return err
	}
	var exists bool
	if qerr := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM generation_jobs WHERE id = $1)`, id).Scan(&exists); qerr != nil {
		return qerr
	}
	if exists {
		return ErrTerminal
	}
	return database.ErrNotFound
}
