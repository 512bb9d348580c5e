package assets

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-studio/backend/internal/apperror"
	"github.com/aura-studio/backend/internal/contentgen"
	"github.com/aura-studio/backend/internal/models"
	"github.com/aura-studio/backend/pkg/database"
)

// AudioStore persists audio tracks.
type AudioStore interface {
	CreateAudio(ctx context.Context, a *models.Audio) error
	GetAudio(ctx context.Context, id uuid.UUID) (*models.Audio, error)
	ListAudios(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]models.Audio, int, error)
	UpdateAudio(ctx context.Context, id uuid.UUID, p AudioPatch) (*models.Audio, error)
	SoftDeleteAudio(ctx context.Context, id uuid.UUID) (*models.Audio, error)
}

// CreateAudioInput is the body for POST /audios. An empty provider uses the service default.
type CreateAudioInput struct {
	ScriptID uuid.UUID `json:"script_id"`
	Provider string    `json:"provider"`
}

// AudioService synthesizes and manages narration tracks.
type AudioService struct {
	store    AudioStore
	scripts  ScriptStore
	gen      Generator
	provider contentgen.TTSProvider
	logger   *zap.Logger
}

// NewAudioService creates an audio service. provider is the default TTS provider.
func NewAudioService(store AudioStore, scripts ScriptStore, gen Generator, provider contentgen.TTSProvider, logger *zap.Logger) *AudioService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if provider == "" {
		provider = contentgen.TTSOpenAI
	}
	return &AudioService{store: store, scripts: scripts, gen: gen, provider: provider, logger: logger}
}

// Create synthesizes the referenced script's content.
func (s *AudioService) Create(ctx context.Context, in CreateAudioInput, ownerID uuid.UUID) (*models.Audio, error) {
	if in.ScriptID == uuid.Nil {
		return nil, apperror.InvalidInput("audios.create", "script_id is required")
	}
	sc, err := s.scripts.GetScript(ctx, in.ScriptID)
	if err != nil {
		return nil, readErr("audios.create", "script", in.ScriptID, err)
	}
	if !owned(ownerID, sc.OwnerID) {
		return nil, apperror.NotFound("audios.create", "script", in.ScriptID.String())
	}
	return s.Synthesize(ctx, sc.OwnerID, sc.ID, sc.Content, in.Provider)
}

// Synthesize generates a track for text and persists it against scriptID.
func (s *AudioService) Synthesize(ctx context.Context, ownerID, scriptID uuid.UUID, text, provider string) (*models.Audio, error) {
	if blank(text) {
		return nil, apperror.InvalidInput("audios.create", "script %s has no content", scriptID)
	}
	p := s.provider
	if provider != "" {
		parsed, err := contentgen.ParseTTSProvider(provider)
		if err != nil {
			return nil, err
		}
		p = parsed
	}
	url, duration, err := s.gen.GenerateAudio(ctx, text, p)
	if err != nil {
		return nil, upstreamErr(contentgen.StageAudio, err)
	}
	a := &models.Audio{
		OwnerID:       ownerID,
		ScriptID:      scriptID,
		Provider:      string(p),
		Content:       text,
		AudioURL:      url,
		AudioDuration: duration,
	}
	if err := s.store.CreateAudio(ctx, a); err != nil {
		s.logger.Error("generated audio not persisted", zap.String("audio_url", url), zap.Error(err))
		return nil, apperror.Persistence("audios.create", err)
	}
	return a, nil
}

// FindAll returns one page of the owner's audio tracks, newest first.
func (s *AudioService) FindAll(ctx context.Context, ownerID uuid.UUID, p, limit int) (models.Page[models.Audio], error) {
	p, limit = models.NormalizePage(p, limit)
	list, total, err := s.store.ListAudios(ctx, ownerID, limit, database.Offset(p, limit))
	if err != nil {
		return models.Page[models.Audio]{}, apperror.Wrap("audios.list", err)
	}
	return page(list, total, p, limit), nil
}

// FindOne returns a live audio track.
func (s *AudioService) FindOne(ctx context.Context, ownerID, id uuid.UUID) (*models.Audio, error) {
	a, err := s.store.GetAudio(ctx, id)
	if err != nil {
		return nil, readErr("audios.get", "audio", id, err)
	}
	if !owned(ownerID, a.OwnerID) {
		return nil, apperror.NotFound("audios.get", "audio", id.String())
	}
	return a, nil
}

// Update applies patch to a live audio track.
func (s *AudioService) Update(ctx context.Context, ownerID, id uuid.UUID, patch AudioPatch) (*models.Audio, error) {
	if _, err := s.FindOne(ctx, ownerID, id); err != nil {
		return nil, apperror.Wrap("audios.update", err)
	}
	a, err := s.store.UpdateAudio(ctx, id, patch)
	if err != nil {
		return nil, writeErr("audios.update", "audio", id, err)
	}
	return a, nil
}

// SoftDelete tombstones a live audio track.
func (s *AudioService) SoftDelete(ctx context.Context, ownerID, id uuid.UUID) (*models.Audio, error) {
	if _, err := s.FindOne(ctx, ownerID, id); err != nil {
		return nil, apperror.Wrap("audios.delete", err)
	}
	a, err := s.store.SoftDeleteAudio(ctx, id)
	if err != nil {
		return nil, writeErr("audios.delete", "audio", id, err)
	}
	return a, nil
}
