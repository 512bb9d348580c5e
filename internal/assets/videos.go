package assets

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-studio/backend/internal/apperror"
	"github.com/aura-studio/backend/internal/contentgen"
	"github.com/aura-studio/backend/internal/models"
	"github.com/aura-studio/backend/pkg/database"
)

// DefaultTransitionDuration is the seconds between stills when the caller gives none.
const DefaultTransitionDuration = 0.5

// VideoStore persists videos.
type VideoStore interface {
	CreateVideo(ctx context.Context, v *models.Video) error
	GetVideo(ctx context.Context, id uuid.UUID) (*models.Video, error)
	ListVideos(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]models.Video, int, error)
	UpdateVideo(ctx context.Context, id uuid.UUID, p VideoPatch) (*models.Video, error)
	SetVideoS3Key(ctx context.Context, id uuid.UUID, key string) error
	SoftDeleteVideo(ctx context.Context, id uuid.UUID) (*models.Video, error)
}

// CreateVideoInput is the body for POST /videos.
type CreateVideoInput struct {
	ScriptID           *uuid.UUID `json:"script_id"`
	Title              string     `json:"title"`
	ImageURLs          []string   `json:"image_urls"`
	Scripts            []string   `json:"scripts"`
	AudioURL           string     `json:"audio_url"`
	Mode               string     `json:"mode"`
	TransitionDuration *float64   `json:"transition_duration"`
}

// VideoDefaults configures assembly when the caller leaves fields empty.
type VideoDefaults struct {
	Mode               contentgen.VideoMode
	TransitionDuration float64
}

// Presigner issues short-lived links to mirrored objects.
type Presigner interface {
	PresignVideo(ctx context.Context, key string) (string, time.Time, error)
}

// VideoService assembles and manages videos.
type VideoService struct {
	store    VideoStore
	gen      Generator
	defaults VideoDefaults
	links    Presigner
	logger   *zap.Logger
}

// NewVideoService creates a video service.
func NewVideoService(store VideoStore, gen Generator, defaults VideoDefaults, logger *zap.Logger) *VideoService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaults.Mode == "" {
		defaults.Mode = contentgen.VideoModeSimple
	}
	if defaults.TransitionDuration <= 0 {
		defaults.TransitionDuration = DefaultTransitionDuration
	}
	return &VideoService{store: store, gen: gen, defaults: defaults, logger: logger}
}

// Create assembles a video from stills and narration and persists it as completed.
func (s *VideoService) Create(ctx context.Context, in CreateVideoInput, ownerID uuid.UUID) (*models.Video, error) {
	if len(in.ImageURLs) == 0 {
		return nil, apperror.InvalidInput("videos.create", "image_urls must not be empty")
	}
	for _, u := range in.ImageURLs {
		if blank(u) {
			return nil, apperror.InvalidInput("videos.create", "image_urls must not contain empty values")
		}
	}
	if blank(in.AudioURL) {
		return nil, apperror.InvalidInput("videos.create", "audio_url is required")
	}
	mode := s.defaults.Mode
	if in.Mode != "" {
		m, err := contentgen.ParseVideoMode(in.Mode)
		if err != nil {
			return nil, err
		}
		mode = m
	}
	transition := s.defaults.TransitionDuration
	if in.TransitionDuration != nil && *in.TransitionDuration > 0 {
		transition = *in.TransitionDuration
	}

	url, err := s.gen.GenerateVideo(ctx, contentgen.VideoRequest{
		ImageURLs:          in.ImageURLs,
		Scripts:            in.Scripts,
		AudioURL:           in.AudioURL,
		Mode:               mode,
		TransitionDuration: transition,
	})
	if err != nil {
		return nil, upstreamErr(contentgen.StageVideo, err)
	}

	scripts := in.Scripts
	if scripts == nil {
		scripts = []string{}
	}
	v := &models.Video{
		OwnerID:            ownerID,
		ScriptID:           in.ScriptID,
		Title:              in.Title,
		Mode:               string(mode),
		ImageURLs:          in.ImageURLs,
		Scripts:            scripts,
		AudioURL:           in.AudioURL,
		TransitionDuration: transition,
		VideoURL:           url,
		Status:             models.VideoStatusCompleted,
	}
	if err := s.store.CreateVideo(ctx, v); err != nil {
		s.logger.Error("assembled video not persisted", zap.String("video_url", url), zap.Error(err))
		return nil, apperror.Persistence("videos.create", err)
	}
	return v, nil
}

// FindAll returns one page of the owner's videos, newest first.
func (s *VideoService) FindAll(ctx context.Context, ownerID uuid.UUID, p, limit int) (models.Page[models.Video], error) {
	p, limit = models.NormalizePage(p, limit)
	list, total, err := s.store.ListVideos(ctx, ownerID, limit, database.Offset(p, limit))
	if err != nil {
		return models.Page[models.Video]{}, apperror.Wrap("videos.list", err)
	}
	return page(list, total, p, limit), nil
}

// FindOne returns a live video.
func (s *VideoService) FindOne(ctx context.Context, ownerID, id uuid.UUID) (*models.Video, error) {
	v, err := s.store.GetVideo(ctx, id)
	if err != nil {
		return nil, readErr("videos.get", "video", id, err)
	}
	if !owned(ownerID, v.OwnerID) {
		return nil, apperror.NotFound("videos.get", "video", id.String())
	}
	return v, nil
}

// Update applies patch to a live video.
func (s *VideoService) Update(ctx context.Context, ownerID, id uuid.UUID, patch VideoPatch) (*models.Video, error) {
	if _, err := s.FindOne(ctx, ownerID, id); err != nil {
		return nil, apperror.Wrap("videos.update", err)
	}
	v, err := s.store.UpdateVideo(ctx, id, patch)
	if err != nil {
		return nil, writeErr("videos.update", "video", id, err)
	}
	return v, nil
}

// AttachMirror records the object key of the mirrored artifact.
func (s *VideoService) AttachMirror(ctx context.Context, id uuid.UUID, key string) error {
	if err := s.store.SetVideoS3Key(ctx, id, key); err != nil {
		return writeErr("videos.mirror", "video", id, err)
	}
	return nil
}

// UsePresigner serves mirrored videos through pre-signed links.
func (s *VideoService) UsePresigner(p Presigner) {
	s.links = p
}

// Download is where a video's bytes can be fetched.
type Download struct {
	URL       string     `json:"url"`
	Source    string     `json:"source"` // "mirror" or "origin"
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Download prefers the mirrored copy and falls back to the generation backend's URL.
func (s *VideoService) Download(ctx context.Context, ownerID, id uuid.UUID) (*Download, error) {
	v, err := s.FindOne(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if v.S3Key != "" && s.links != nil {
		url, exp, err := s.links.PresignVideo(ctx, v.S3Key)
		if err == nil {
			return &Download{URL: url, Source: "mirror", ExpiresAt: &exp}, nil
		}
		s.logger.Warn("presign mirrored video", zap.String("video_id", id.String()), zap.Error(err))
	}
	if v.VideoURL == "" {
		return nil, apperror.InvalidState("videos.download", "video %s has no artifact yet", id)
	}
	return &Download{URL: v.VideoURL, Source: "origin"}, nil
}

// SoftDelete tombstones a live video.
func (s *VideoService) SoftDelete(ctx context.Context, ownerID, id uuid.UUID) (*models.Video, error) {
	if _, err := s.FindOne(ctx, ownerID, id); err != nil {
		return nil, apperror.Wrap("videos.delete", err)
	}
	v, err := s.store.SoftDeleteVideo(ctx, id)
	if err != nil {
		return nil, writeErr("videos.delete", "video", id, err)
	}
	return v, nil
}
