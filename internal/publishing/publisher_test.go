package publishing

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-studio/backend/internal/apperror"
	"github.com/aura-studio/backend/internal/models"
	"github.com/aura-studio/backend/internal/platformauth"
	"github.com/aura-studio/backend/pkg/database"
)

// world fakes every collaborator and records the order of side effects.
type world struct {
	mu        sync.Mutex
	video     *models.Video
	records   []models.PublishingRecord
	events    []string
	authErr   error
	uploadErr error
	commitErr error
}

func (w *world) log(e string) {
	w.events = append(w.events, e)
}

func (w *world) GetVideo(_ context.Context, id uuid.UUID) (*models.Video, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.video == nil || w.video.ID != id {
		return nil, database.ErrNotFound
	}
	cp := *w.video
	return &cp, nil
}

func (w *world) TransitionVideoStatus(_ context.Context, _ uuid.UUID, from, to string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.video.Status != from {
		return false, nil
	}
	w.video.Status = to
	w.log("status:" + to)
	return true, nil
}

func (w *world) CommitSuccess(_ context.Context, rec *models.PublishingRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.commitErr != nil {
		return w.commitErr
	}
	w.log("commit:" + rec.PlatformVideoID)
	rec.ID = uuid.New()
	w.records = append(w.records, *rec)
	w.video.Status = models.VideoStatusPublished
	return nil
}

func (w *world) InsertRecord(_ context.Context, rec *models.PublishingRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.log("record:" + rec.Status)
	w.records = append(w.records, *rec)
	return nil
}

func (w *world) ListByVideo(context.Context, uuid.UUID) ([]models.PublishingRecord, error) {
	return w.records, nil
}

func (w *world) ClientForUser(_ context.Context, userID string) (*platformauth.Session, error) {
	w.log("auth")
	if w.authErr != nil {
		return nil, w.authErr
	}
	return &platformauth.Session{UserID: userID, HTTPClient: http.DefaultClient}, nil
}

func (w *world) Open(context.Context, *models.Video) (io.ReadCloser, error) {
	w.log("open")
	return io.NopCloser(strings.NewReader("mp4")), nil
}

type fakeUploader struct{ w *world }

func (u fakeUploader) Upload(_ context.Context, _ *http.Client, meta Upload, media io.Reader) (string, json.RawMessage, error) {
	body, _ := io.ReadAll(media)
	u.w.log("upload:" + meta.Title + ":" + string(meta.Privacy) + ":" + string(body))
	if u.w.uploadErr != nil {
		return "", nil, u.w.uploadErr
	}
	return "yt-123", json.RawMessage(`{"id":"yt-123"}`), nil
}

func setup() (*world, *Publisher, uuid.UUID) {
	owner := uuid.New()
	w := &world{video: &models.Video{
		ID: uuid.New(), OwnerID: owner, Title: "Deep Sea",
		VideoURL: "https://cdn/v.mp4", Status: models.VideoStatusCompleted,
	}}
	p := NewPublisher(w, w, w, w, map[models.Platform]Uploader{models.PlatformYouTube: fakeUploader{w}}, nil)
	return w, p, owner
}

func TestPublishCommitsOnlyAfterUpload(t *testing.T) {
	w, p, owner := setup()

	rec, err := p.Publish(context.Background(), owner, w.video.ID, PublishInput{Platform: models.PlatformYouTube})
	require.NoError(t, err)
	assert.Equal(t, "yt-123", rec.PlatformVideoID)
	assert.Equal(t, models.PublishStatusSuccess, rec.Status)
	assert.Equal(t, models.VideoStatusPublished, w.video.Status)
	assert.Equal(t, []string{
		"auth",
		"status:publishing",
		"open",
		"upload:Deep Sea:private:mp4",
		"commit:yt-123",
	}, w.events)
}

func TestPublishUploadFailureRollsBack(t *testing.T) {
	w, p, owner := setup()
	w.uploadErr = errors.New("quota exceeded")

	_, err := p.Publish(context.Background(), owner, w.video.ID, PublishInput{Platform: models.PlatformYouTube, Title: "T", Privacy: models.PrivacyUnlisted})
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindPublish))
	assert.Equal(t, models.VideoStatusCompleted, w.video.Status)
	assert.Equal(t, []string{
		"auth",
		"status:publishing",
		"open",
		"upload:T:unlisted:mp4",
		"status:completed",
		"record:failure",
	}, w.events)
	require.Len(t, w.records, 1)
	assert.Contains(t, w.records[0].Error, "quota exceeded")
	assert.Empty(t, w.records[0].PlatformVideoID)
}

func TestPublishCommitFailureRollsBack(t *testing.T) {
	w, p, owner := setup()
	w.commitErr = errors.New("tx aborted")

	_, err := p.Publish(context.Background(), owner, w.video.ID, PublishInput{Platform: models.PlatformYouTube})
	assert.True(t, apperror.IsKind(err, apperror.KindPublish))
	assert.Equal(t, models.VideoStatusCompleted, w.video.Status)
}

func TestPublishUnsupportedPlatformMakesNoCalls(t *testing.T) {
	w, p, owner := setup()

	_, err := p.Publish(context.Background(), owner, w.video.ID, PublishInput{Platform: "tiktok"})
	assert.True(t, apperror.IsKind(err, apperror.KindUnsupportedPlatform))
	assert.Empty(t, w.events)
}

func TestPublishRequiresCompletedVideo(t *testing.T) {
	w, p, owner := setup()
	w.video.Status = models.VideoStatusPublished

	_, err := p.Publish(context.Background(), owner, w.video.ID, PublishInput{Platform: models.PlatformYouTube})
	assert.True(t, apperror.IsKind(err, apperror.KindInvalidState))
	assert.Empty(t, w.events)

	w.video.Status = models.VideoStatusCompleted
	w.video.VideoURL = ""
	_, err = p.Publish(context.Background(), owner, w.video.ID, PublishInput{Platform: models.PlatformYouTube})
	assert.True(t, apperror.IsKind(err, apperror.KindInvalidState))
}

func TestPublishAuthRequiredLeavesStatus(t *testing.T) {
	w, p, owner := setup()
	w.authErr = apperror.AuthRequired(owner.String())

	_, err := p.Publish(context.Background(), owner, w.video.ID, PublishInput{Platform: models.PlatformYouTube})
	assert.True(t, apperror.IsKind(err, apperror.KindAuthRequired))
	assert.Equal(t, []string{"auth"}, w.events)
	assert.Equal(t, models.VideoStatusCompleted, w.video.Status)
}

func TestPublishValidation(t *testing.T) {
	w, p, owner := setup()

	_, err := p.Publish(context.Background(), owner, w.video.ID, PublishInput{Platform: models.PlatformYouTube, Privacy: "friends"})
	assert.True(t, apperror.IsKind(err, apperror.KindInvalidInput))

	_, err = p.Publish(context.Background(), uuid.New(), w.video.ID, PublishInput{Platform: models.PlatformYouTube})
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound))
}

type fakeObjects struct{ keys []string }

func (f *fakeObjects) OpenVideo(_ context.Context, key string) (io.ReadCloser, error) {
	f.keys = append(f.keys, key)
	return io.NopCloser(strings.NewReader("from-s3")), nil
}

func TestVideoSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.mp4" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("from-url"))
	}))
	defer srv.Close()

	objects := &fakeObjects{}
	src := NewVideoSource(objects, srv.Client())

	rc, err := src.Open(context.Background(), &models.Video{S3Key: "videos/o/v.mp4", VideoURL: srv.URL + "/v.mp4"})
	require.NoError(t, err)
	b, _ := io.ReadAll(rc)
	assert.Equal(t, "from-s3", string(b))
	assert.Equal(t, []string{"videos/o/v.mp4"}, objects.keys)

	rc, err = src.Open(context.Background(), &models.Video{VideoURL: srv.URL + "/v.mp4"})
	require.NoError(t, err)
	b, _ = io.ReadAll(rc)
	assert.Equal(t, "from-url", string(b))

	_, err = src.Open(context.Background(), &models.Video{VideoURL: srv.URL + "/missing.mp4"})
	assert.Error(t, err)
}
