// Package publishing uploads finished videos to external platforms and keeps an audit trail
// of every attempt.
package publishing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-studio/backend/internal/apperror"
	"github.com/aura-studio/backend/internal/models"
	"github.com/aura-studio/backend/internal/platformauth"
	"github.com/aura-studio/backend/pkg/database"
)

// Upload is the metadata sent with a video.
type Upload struct {
	Title       string
	Description string
	Tags        []string
	Privacy     models.Privacy
}

// Uploader pushes one video to a platform with an authenticated client and returns the
// platform-assigned id and the raw response.
type Uploader interface {
	Upload(ctx context.Context, client *http.Client, meta Upload, media io.Reader) (string, json.RawMessage, error)
}

// Videos loads video assets.
type Videos interface {
	GetVideo(ctx context.Context, id uuid.UUID) (*models.Video, error)
}

// Store persists publish outcomes.
type Store interface {
	TransitionVideoStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error)
	CommitSuccess(ctx context.Context, rec *models.PublishingRecord) error
	InsertRecord(ctx context.Context, rec *models.PublishingRecord) error
	ListByVideo(ctx context.Context, videoID uuid.UUID) ([]models.PublishingRecord, error)
}

// Authenticator yields a platform client for a user.
type Authenticator interface {
	ClientForUser(ctx context.Context, userID string) (*platformauth.Session, error)
}

// Source opens the bytes of a video.
type Source interface {
	Open(ctx context.Context, v *models.Video) (io.ReadCloser, error)
}

// PublishInput is the body of a publish request.
type PublishInput struct {
	Platform    models.Platform `json:"platform"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Tags        []string        `json:"tags"`
	Privacy     models.Privacy  `json:"privacy"`
}

// Publisher implements publish-then-commit with a compensating status rollback.
type Publisher struct {
	videos    Videos
	store     Store
	auth      Authenticator
	source    Source
	uploaders map[models.Platform]Uploader
	logger    *zap.Logger
}

// NewPublisher creates a Publisher. uploaders maps each supported platform to its handler.
func NewPublisher(videos Videos, store Store, auth Authenticator, source Source, uploaders map[models.Platform]Uploader, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{videos: videos, store: store, auth: auth, source: source, uploaders: uploaders, logger: logger}
}

// Publish uploads a completed video. The video is marked published only after the platform
// has returned its id; any failure past the speculative "publishing" flip restores "completed".
func (p *Publisher) Publish(ctx context.Context, userID, videoID uuid.UUID, in PublishInput) (*models.PublishingRecord, error) {
	uploader, ok := p.uploaders[in.Platform]
	if !ok {
		return nil, apperror.UnsupportedPlatform(string(in.Platform))
	}
	if in.Privacy == "" {
		in.Privacy = models.PrivacyPrivate
	}
	if !in.Privacy.Valid() {
		return nil, apperror.InvalidInput("publishing.publish", "privacy must be private, public or unlisted")
	}

	video, err := p.load(ctx, userID, videoID)
	if err != nil {
		return nil, err
	}
	if video.Status != models.VideoStatusCompleted || (video.VideoURL == "" && video.S3Key == "") {
		return nil, apperror.InvalidState("publishing.publish", "video %s is %q, not a completed upload candidate", videoID, video.Status)
	}

	session, err := p.auth.ClientForUser(ctx, userID.String())
	if err != nil {
		return nil, err
	}

	log := p.logger.With(
		zap.String("video_id", videoID.String()),
		zap.String("user_id", userID.String()),
		zap.String("platform", string(in.Platform)),
	)
	flipped, err := p.store.TransitionVideoStatus(ctx, videoID, models.VideoStatusCompleted, models.VideoStatusPublishing)
	if err != nil {
		return nil, apperror.Persistence("publishing.publish", err)
	}
	if !flipped {
		return nil, apperror.InvalidState("publishing.publish", "video %s is already being published", videoID)
	}

	meta := Upload{
		Title:       firstNonBlank(in.Title, video.Title),
		Description: in.Description,
		Tags:        in.Tags,
		Privacy:     in.Privacy,
	}
	platformID, raw, err := p.upload(ctx, uploader, session, video, meta)
	if err != nil {
		return nil, p.rollback(ctx, log, userID, video, in.Platform, err)
	}

	rec := &models.PublishingRecord{
		VideoID:         videoID,
		UserID:          userID,
		Platform:        in.Platform,
		PlatformVideoID: platformID,
		Status:          models.PublishStatusSuccess,
		RawResponse:     raw,
	}
	if err := p.store.CommitSuccess(ctx, rec); err != nil {
		log.Error("commit publish after successful upload", zap.String("platform_video_id", platformID), zap.Error(err))
		return nil, p.rollback(ctx, log, userID, video, in.Platform, fmt.Errorf("record upload %s: %w", platformID, err))
	}
	log.Info("video published", zap.String("platform_video_id", platformID))
	return rec, nil
}

func (p *Publisher) upload(ctx context.Context, u Uploader, s *platformauth.Session, v *models.Video, meta Upload) (string, json.RawMessage, error) {
	media, err := p.source.Open(ctx, v)
	if err != nil {
		return "", nil, fmt.Errorf("open video source: %w", err)
	}
	defer media.Close()
	id, raw, err := u.Upload(ctx, s.HTTPClient, meta, media)
	if err != nil {
		return "", nil, err
	}
	if id == "" {
		return "", raw, errors.New("platform returned no video id")
	}
	return id, raw, nil
}

// rollback restores the prior status, records the failed attempt and returns the PublishError.
func (p *Publisher) rollback(ctx context.Context, log *zap.Logger, userID uuid.UUID, v *models.Video, platform models.Platform, cause error) error {
	wctx := context.WithoutCancel(ctx)
	restored, err := p.store.TransitionVideoStatus(wctx, v.ID, models.VideoStatusPublishing, models.VideoStatusCompleted)
	switch {
	case err != nil:
		log.Error("roll back video status", zap.Error(err))
	case !restored:
		log.Warn("video was not in publishing state at rollback")
	default:
		log.Warn("video status rolled back", zap.String("status", models.VideoStatusCompleted), zap.Error(cause))
	}
	rec := &models.PublishingRecord{
		VideoID:  v.ID,
		UserID:   userID,
		Platform: platform,
		Status:   models.PublishStatusFailure,
		Error:    cause.Error(),
	}
	if err := p.store.InsertRecord(wctx, rec); err != nil {
		log.Error("record failed publish", zap.Error(err))
	}
	return apperror.Publish(string(platform), cause)
}

// Records lists the publish attempts of one of the caller's videos.
func (p *Publisher) Records(ctx context.Context, userID, videoID uuid.UUID) ([]models.PublishingRecord, error) {
	if _, err := p.load(ctx, userID, videoID); err != nil {
		return nil, err
	}
	list, err := p.store.ListByVideo(ctx, videoID)
	if err != nil {
		return nil, apperror.Wrap("publishing.records", err)
	}
	if list == nil {
		list = []models.PublishingRecord{}
	}
	return list, nil
}

func (p *Publisher) load(ctx context.Context, userID, videoID uuid.UUID) (*models.Video, error) {
	v, err := p.videos.GetVideo(ctx, videoID)
	if errors.Is(err, database.ErrNotFound) || (err == nil && v.OwnerID != userID) {
		return nil, apperror.NotFound("publishing.load", "video", videoID.String())
	}
	if err != nil {
		return nil, apperror.Wrap("publishing.load", err)
	}
	return v, nil
}

func firstNonBlank(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
