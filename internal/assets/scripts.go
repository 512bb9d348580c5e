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

// ScriptStore persists scripts.
type ScriptStore interface {
	CreateScript(ctx context.Context, s *models.Script) error
	GetScript(ctx context.Context, id uuid.UUID) (*models.Script, error)
	ListScripts(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]models.Script, int, error)
	UpdateScript(ctx context.Context, id uuid.UUID, p ScriptPatch) (*models.Script, error)
	SoftDeleteScript(ctx context.Context, id uuid.UUID) (*models.Script, error)
}

// CreateScriptInput is the body for POST /scripts.
type CreateScriptInput struct {
	Title    string `json:"title"`
	Style    string `json:"style"`
	Language string `json:"language"`
}

// ScriptService generates and manages scripts.
type ScriptService struct {
	store  ScriptStore
	gen    Generator
	logger *zap.Logger
}

// NewScriptService creates a script service.
func NewScriptService(store ScriptStore, gen Generator, logger *zap.Logger) *ScriptService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScriptService{store: store, gen: gen, logger: logger}
}

// Create generates narration text for the title and persists it.
func (s *ScriptService) Create(ctx context.Context, in CreateScriptInput, ownerID uuid.UUID) (*models.Script, error) {
	if blank(in.Title) {
		return nil, apperror.InvalidInput("scripts.create", "title is required")
	}
	if blank(in.Style) {
		return nil, apperror.InvalidInput("scripts.create", "style is required")
	}
	content, err := s.gen.GenerateScript(ctx, in.Title, in.Style, in.Language)
	if err != nil {
		return nil, upstreamErr(contentgen.StageScript, err)
	}
	sc := &models.Script{OwnerID: ownerID, Title: in.Title, Style: in.Style, Language: in.Language, Content: content}
	if err := s.store.CreateScript(ctx, sc); err != nil {
		s.logger.Error("generated script not persisted", zap.String("owner_id", ownerID.String()), zap.Error(err))
		return nil, apperror.Persistence("scripts.create", err)
	}
	return sc, nil
}

// FindAll returns one page of the owner's scripts, newest first.
func (s *ScriptService) FindAll(ctx context.Context, ownerID uuid.UUID, p, limit int) (models.Page[models.Script], error) {
	p, limit = models.NormalizePage(p, limit)
	list, total, err := s.store.ListScripts(ctx, ownerID, limit, database.Offset(p, limit))
	if err != nil {
		return models.Page[models.Script]{}, apperror.Wrap("scripts.list", err)
	}
	return page(list, total, p, limit), nil
}

// FindOne returns a live script.
func (s *ScriptService) FindOne(ctx context.Context, ownerID, id uuid.UUID) (*models.Script, error) {
	sc, err := s.store.GetScript(ctx, id)
	if err != nil {
		return nil, readErr("scripts.get", "script", id, err)
	}
	if !owned(ownerID, sc.OwnerID) {
		return nil, apperror.NotFound("scripts.get", "script", id.String())
	}
	return sc, nil
}

// Update applies patch to a live script.
func (s *ScriptService) Update(ctx context.Context, ownerID, id uuid.UUID, patch ScriptPatch) (*models.Script, error) {
	if _, err := s.FindOne(ctx, ownerID, id); err != nil {
		return nil, apperror.Wrap("scripts.update", err)
	}
	sc, err := s.store.UpdateScript(ctx, id, patch)
	if err != nil {
		return nil, writeErr("scripts.update", "script", id, err)
	}
	return sc, nil
}

// UpdateContent overwrites the script body.
func (s *ScriptService) UpdateContent(ctx context.Context, id uuid.UUID, content string) error {
	_, err := s.Update(ctx, uuid.Nil, id, ScriptPatch{Content: &content})
	return err
}

// SoftDelete tombstones a live script.
func (s *ScriptService) SoftDelete(ctx context.Context, ownerID, id uuid.UUID) (*models.Script, error) {
	if _, err := s.FindOne(ctx, ownerID, id); err != nil {
		return nil, apperror.Wrap("scripts.delete", err)
	}
	sc, err := s.store.SoftDeleteScript(ctx, id)
	if err != nil {
		return nil, writeErr("scripts.delete", "script", id, err)
	}
	return sc, nil
}
