package assets

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-studio/backend/internal/models"
	"github.com/aura-studio/backend/pkg/database"
)

// Repository handles script, audio, image and video persistence. Every read filters out
// soft-deleted rows.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an asset repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const scriptColumns = `id, owner_id, title, style, language, content, created_at, updated_at, deleted_at`

func scanScript(row pgx.Row) (*models.Script, error) {
	var s models.Script
	if err := row.Scan(&s.ID, &s.OwnerID, &s.Title, &s.Style, &s.Language, &s.Content, &s.CreatedAt, &s.UpdatedAt, &s.DeletedAt); err != nil {
		return nil, database.NotFound(err)
	}
	return &s, nil
}

// CreateScript inserts a script.
func (r *Repository) CreateScript(ctx context.Context, s *models.Script) error {
	const q = `INSERT INTO scripts (owner_id, title, style, language, content)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, s.OwnerID, s.Title, s.Style, s.Language, s.Content).
		Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

// GetScript returns a live script by ID.
func (r *Repository) GetScript(ctx context.Context, id uuid.UUID) (*models.Script, error) {
	q := `SELECT ` + scriptColumns + ` FROM scripts WHERE id = $1 AND deleted_at IS NULL`
	return scanScript(r.pool.QueryRow(ctx, q, id))
}

// ListScripts returns one page of the owner's live scripts, newest first, and the total count.
func (r *Repository) ListScripts(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]models.Script, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM scripts WHERE owner_id = $1 AND deleted_at IS NULL`, ownerID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count scripts: %w", err)
	}
	q := `SELECT ` + scriptColumns + ` FROM scripts WHERE owner_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, q, ownerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []models.Script
	for rows.Next() {
		s, err := scanScript(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, *s)
	}
	return list, total, rows.Err()
}

// UpdateScript applies non-nil patch fields to a live script.
func (r *Repository) UpdateScript(ctx context.Context, id uuid.UUID, p ScriptPatch) (*models.Script, error) {
	q := `UPDATE scripts SET title = COALESCE($2, title), style = COALESCE($3, style),
		language = COALESCE($4, language), content = COALESCE($5, content), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING ` + scriptColumns
	return scanScript(r.pool.QueryRow(ctx, q, id, p.Title, p.Style, p.Language, p.Content))
}

// SoftDeleteScript stamps deleted_at on a live script.
func (r *Repository) SoftDeleteScript(ctx context.Context, id uuid.UUID) (*models.Script, error) {
	q := `UPDATE scripts SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL RETURNING ` + scriptColumns
	return scanScript(r.pool.QueryRow(ctx, q, id))
}

const audioColumns = `id, owner_id, script_id, provider, content, audio_url, audio_duration, created_at, updated_at, deleted_at`

func scanAudio(row pgx.Row) (*models.Audio, error) {
	var a models.Audio
	if err := row.Scan(&a.ID, &a.OwnerID, &a.ScriptID, &a.Provider, &a.Content, &a.AudioURL, &a.AudioDuration, &a.CreatedAt, &a.UpdatedAt, &a.DeletedAt); err != nil {
		return nil, database.NotFound(err)
	}
	return &a, nil
}

// CreateAudio inserts an audio track.
func (r *Repository) CreateAudio(ctx context.Context, a *models.Audio) error {
	const q = `INSERT INTO audios (owner_id, script_id, provider, content, audio_url, audio_duration)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, a.OwnerID, a.ScriptID, a.Provider, a.Content, a.AudioURL, a.AudioDuration).
		Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
}

// GetAudio returns a live audio track by ID.
func (r *Repository) GetAudio(ctx context.Context, id uuid.UUID) (*models.Audio, error) {
	q := `SELECT ` + audioColumns + ` FROM audios WHERE id = $1 AND deleted_at IS NULL`
	return scanAudio(r.pool.QueryRow(ctx, q, id))
}

// ListAudios returns one page of the owner's live audio tracks, newest first.
func (r *Repository) ListAudios(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]models.Audio, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audios WHERE owner_id = $1 AND deleted_at IS NULL`, ownerID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audios: %w", err)
	}
	q := `SELECT ` + audioColumns + ` FROM audios WHERE owner_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, q, ownerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []models.Audio
	for rows.Next() {
		a, err := scanAudio(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, *a)
	}
	return list, total, rows.Err()
}

// UpdateAudio applies non-nil patch fields to a live audio track.
func (r *Repository) UpdateAudio(ctx context.Context, id uuid.UUID, p AudioPatch) (*models.Audio, error) {
	q := `UPDATE audios SET content = COALESCE($2, content), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING ` + audioColumns
	return scanAudio(r.pool.QueryRow(ctx, q, id, p.Content))
}

// SoftDeleteAudio stamps deleted_at on a live audio track.
func (r *Repository) SoftDeleteAudio(ctx context.Context, id uuid.UUID) (*models.Audio, error) {
	q := `UPDATE audios SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL RETURNING ` + audioColumns
	return scanAudio(r.pool.QueryRow(ctx, q, id))
}

const imageColumns = `id, owner_id, script_id, prompt, style, content, image_url, created_at, updated_at, deleted_at`

func scanImage(row pgx.Row) (*models.Image, error) {
	var i models.Image
	if err := row.Scan(&i.ID, &i.OwnerID, &i.ScriptID, &i.Prompt, &i.Style, &i.Content, &i.ImageURL, &i.CreatedAt, &i.UpdatedAt, &i.DeletedAt); err != nil {
		return nil, database.NotFound(err)
	}
	return &i, nil
}

// CreateImage inserts an image.
func (r *Repository) CreateImage(ctx context.Context, i *models.Image) error {
	const q = `INSERT INTO images (owner_id, script_id, prompt, style, content, image_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, i.OwnerID, i.ScriptID, i.Prompt, i.Style, i.Content, i.ImageURL).
		Scan(&i.ID, &i.CreatedAt, &i.UpdatedAt)
}

// GetImage returns a live image by ID.
func (r *Repository) GetImage(ctx context.Context, id uuid.UUID) (*models.Image, error) {
	q := `SELECT ` + imageColumns + ` FROM images WHERE id = $1 AND deleted_at IS NULL`
	return scanImage(r.pool.QueryRow(ctx, q, id))
}

// ListImages returns one page of the owner's live images, newest first.
func (r *Repository) ListImages(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]models.Image, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM images WHERE owner_id = $1 AND deleted_at IS NULL`, ownerID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count images: %w", err)
	}
	q := `SELECT ` + imageColumns + ` FROM images WHERE owner_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, q, ownerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []models.Image
	for rows.Next() {
		i, err := scanImage(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, *i)
	}
	return list, total, rows.Err()
}

// UpdateImage applies non-nil patch fields to a live image.
func (r *Repository) UpdateImage(ctx context.Context, id uuid.UUID, p ImagePatch) (*models.Image, error) {
	q := `UPDATE images SET prompt = COALESCE($2, prompt), style = COALESCE($3, style),
		content = COALESCE($4, content), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING ` + imageColumns
	return scanImage(r.pool.QueryRow(ctx, q, id, p.Prompt, p.Style, p.Content))
}

// SoftDeleteImage stamps deleted_at on a live image.
func (r *Repository) SoftDeleteImage(ctx context.Context, id uuid.UUID) (*models.Image, error) {
	q := `UPDATE images SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL RETURNING ` + imageColumns
	return scanImage(r.pool.QueryRow(ctx, q, id))
}

const videoColumns = `id, owner_id, script_id, title, mode, image_urls, scripts, audio_url, transition_duration,
	video_url, s3_key, status, created_at, updated_at, deleted_at`

func scanVideo(row pgx.Row) (*models.Video, error) {
	var v models.Video
	if err := row.Scan(&v.ID, &v.OwnerID, &v.ScriptID, &v.Title, &v.Mode, &v.ImageURLs, &v.Scripts, &v.AudioURL,
		&v.TransitionDuration, &v.VideoURL, &v.S3Key, &v.Status, &v.CreatedAt, &v.UpdatedAt, &v.DeletedAt); err != nil {
		return nil, database.NotFound(err)
	}
	return &v, nil
}

// CreateVideo inserts a video.
func (r *Repository) CreateVideo(ctx context.Context, v *models.Video) error {
	const q = `INSERT INTO videos (owner_id, script_id, title, mode, image_urls, scripts, audio_url, transition_duration, video_url, s3_key, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, v.OwnerID, v.ScriptID, v.Title, v.Mode, v.ImageURLs, v.Scripts, v.AudioURL,
		v.TransitionDuration, v.VideoURL, v.S3Key, v.Status).
		Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
}

// GetVideo returns a live video by ID.
func (r *Repository) GetVideo(ctx context.Context, id uuid.UUID) (*models.Video, error) {
	q := `SELECT ` + videoColumns + ` FROM videos WHERE id = $1 AND deleted_at IS NULL`
	return scanVideo(r.pool.QueryRow(ctx, q, id))
}

// ListVideos returns one page of the owner's live videos, newest first.
func (r *Repository) ListVideos(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]models.Video, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM videos WHERE owner_id = $1 AND deleted_at IS NULL`, ownerID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count videos: %w", err)
	}
	q := `SELECT ` + videoColumns + ` FROM videos WHERE owner_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, q, ownerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []models.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, *v)
	}
	return list, total, rows.Err()
}

// UpdateVideo applies non-nil patch fields to a live video.
func (r *Repository) UpdateVideo(ctx context.Context, id uuid.UUID, p VideoPatch) (*models.Video, error) {
	q := `UPDATE videos SET title = COALESCE($2, title), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING ` + videoColumns
	return scanVideo(r.pool.QueryRow(ctx, q, id, p.Title))
}

// SetVideoS3Key records where the video was mirrored.
func (r *Repository) SetVideoS3Key(ctx context.Context, id uuid.UUID, key string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE videos SET s3_key = $2, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id, key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return database.ErrNotFound
	}
	return nil
}

// SoftDeleteVideo stamps deleted_at on a live video.
func (r *Repository) SoftDeleteVideo(ctx context.Context, id uuid.UUID) (*models.Video, error) {
	q := `UPDATE videos SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL RETURNING ` + videoColumns
	return scanVideo(r.pool.QueryRow(ctx, q, id))
}
