package publishing

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-studio/backend/internal/models"
	"github.com/aura-studio/backend/pkg/database"
)

// testPool connects to TEST_DATABASE_URL and applies the schema. Tests skip without it.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, dsn, 4, nil)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, database.Migrate(ctx, pool))
	return pool
}

func insertVideo(t *testing.T, pool *pgxpool.Pool, owner uuid.UUID) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := pool.QueryRow(context.Background(),
		`INSERT INTO videos (owner_id, audio_url, video_url) VALUES ($1, 'a.mp3', 'v.mp4') RETURNING id`, owner).Scan(&id)
	require.NoError(t, err)
	return id
}

func videoStatus(t *testing.T, pool *pgxpool.Pool, id uuid.UUID) string {
	t.Helper()
	var status string
	require.NoError(t, pool.QueryRow(context.Background(), `SELECT status FROM videos WHERE id = $1`, id).Scan(&status))
	return status
}

func TestRepositoryCommitSuccess(t *testing.T) {
	pool := testPool(t)
	repo := NewRepository(pool)
	ctx := context.Background()
	owner := uuid.New()
	videoID := insertVideo(t, pool, owner)

	ok, err := repo.TransitionVideoStatus(ctx, videoID, models.VideoStatusCompleted, models.VideoStatusPublishing)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = repo.TransitionVideoStatus(ctx, videoID, models.VideoStatusCompleted, models.VideoStatusPublishing)
	require.NoError(t, err)
	assert.False(t, ok, "a second publish cannot claim the video")

	rec := &models.PublishingRecord{
		VideoID: videoID, UserID: owner, Platform: models.PlatformYouTube,
		PlatformVideoID: "yt-1", Status: models.PublishStatusSuccess, RawResponse: []byte(`{"id":"yt-1"}`),
	}
	require.NoError(t, repo.CommitSuccess(ctx, rec))
	assert.NotEqual(t, uuid.Nil, rec.ID)
	assert.Equal(t, models.VideoStatusPublished, videoStatus(t, pool, videoID))

	latest, err := repo.LatestSuccess(ctx, videoID, models.PlatformYouTube)
	require.NoError(t, err)
	assert.Equal(t, "yt-1", latest)

	list, err := repo.ListByVideo(ctx, videoID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.JSONEq(t, `{"id":"yt-1"}`, string(list[0].RawResponse))
}

func TestRepositoryCommitSuccessRollsBack(t *testing.T) {
	pool := testPool(t)
	repo := NewRepository(pool)
	ctx := context.Background()
	owner := uuid.New()
	// Never moved to publishing, so the status update matches no row.
	videoID := insertVideo(t, pool, owner)

	err := repo.CommitSuccess(ctx, &models.PublishingRecord{
		VideoID: videoID, UserID: owner, Platform: models.PlatformYouTube,
		PlatformVideoID: "yt-2", Status: models.PublishStatusSuccess,
	})
	require.Error(t, err)

	list, err := repo.ListByVideo(ctx, videoID)
	require.NoError(t, err)
	assert.Empty(t, list, "record insert rolled back with the status update")
	assert.Equal(t, models.VideoStatusCompleted, videoStatus(t, pool, videoID))

	latest, err := repo.LatestSuccess(ctx, videoID, models.PlatformYouTube)
	require.NoError(t, err)
	assert.Empty(t, latest)
}
