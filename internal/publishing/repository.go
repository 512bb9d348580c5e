package publishing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-studio/backend/internal/models"
)

// Repository handles publishing_records and the video status transitions around a publish.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a publishing repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TransitionVideoStatus moves a live video from one status to another. It reports false when
// the video was not in from.
func (r *Repository) TransitionVideoStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error) {
	const q = `UPDATE videos SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2 AND deleted_at IS NULL`
	tag, err := r.pool.Exec(ctx, q, id, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

const insertRecord = `INSERT INTO publishing_records (video_id, user_id, platform, platform_video_id, status, error, raw_response)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING id, created_at, updated_at`

// CommitSuccess inserts the success record and marks the video published in one transaction.
func (r *Repository) CommitSuccess(ctx context.Context, rec *models.PublishingRecord) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, insertRecord, rec.VideoID, rec.UserID, rec.Platform, rec.PlatformVideoID,
			rec.Status, rec.Error, rawJSON(rec.RawResponse)).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert publishing record: %w", err)
		}
		tag, err := tx.Exec(ctx, `UPDATE videos SET status = $2, updated_at = NOW() WHERE id = $1 AND status = $3`,
			rec.VideoID, models.VideoStatusPublished, models.VideoStatusPublishing)
		if err != nil {
			return fmt.Errorf("mark video published: %w", err)
		}
		if tag.RowsAffected() != 1 {
			return fmt.Errorf("video %s left publishing state during upload", rec.VideoID)
		}
		return nil
	})
}

// InsertRecord inserts a publishing record outside any transaction.
func (r *Repository) InsertRecord(ctx context.Context, rec *models.PublishingRecord) error {
	return r.pool.QueryRow(ctx, insertRecord, rec.VideoID, rec.UserID, rec.Platform, rec.PlatformVideoID,
		rec.Status, rec.Error, rawJSON(rec.RawResponse)).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
}

// ListByVideo returns a video's publish attempts, newest first.
func (r *Repository) ListByVideo(ctx context.Context, videoID uuid.UUID) ([]models.PublishingRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, video_id, user_id, platform, platform_video_id, status, error,
		COALESCE(raw_response, 'null'::jsonb), created_at, updated_at
		FROM publishing_records WHERE video_id = $1 ORDER BY created_at DESC`, videoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.PublishingRecord
	for rows.Next() {
		var rec models.PublishingRecord
		var raw []byte
		if err := rows.Scan(&rec.ID, &rec.VideoID, &rec.UserID, &rec.Platform, &rec.PlatformVideoID, &rec.Status,
			&rec.Error, &raw, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		if string(raw) != "null" {
			rec.RawResponse = raw
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

// LatestSuccess returns the platform id of the most recent successful publish to platform, or "".
func (r *Repository) LatestSuccess(ctx context.Context, videoID uuid.UUID, platform models.Platform) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, `SELECT platform_video_id FROM publishing_records
		WHERE video_id = $1 AND platform = $2 AND status = $3 ORDER BY created_at DESC LIMIT 1`,
		videoID, platform, models.PublishStatusSuccess).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return id, err
}

func rawJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
