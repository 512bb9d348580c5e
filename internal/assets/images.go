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

// ImageStore persists images.
type ImageStore interface {
	CreateImage(ctx context.Context, i *models.Image) error
	GetImage(ctx context.Context, id uuid.UUID) (*models.Image, error)
	ListImages(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]models.Image, int, error)
	UpdateImage(ctx context.Context, id uuid.UUID, p ImagePatch) (*models.Image, error)
	SoftDeleteImage(ctx context.Context, id uuid.UUID) (*models.Image, error)
}

// CreateImageInput is the body for POST /images.
type CreateImageInput struct {
	Prompt   string     `json:"prompt"`
	Style    string     `json:"style"`
	Content  string     `json:"content"` // script fragment the prompt illustrates
	ScriptID *uuid.UUID `json:"script_id"`
}

// ImageService generates and manages stills.
type ImageService struct {
	store  ImageStore
	gen    Generator
	logger *zap.Logger
}

// NewImageService creates an image service.
func NewImageService(store ImageStore, gen Generator, logger *zap.Logger) *ImageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImageService{store: store, gen: gen, logger: logger}
}

// Create renders the prompt and persists the result.
func (s *ImageService) Create(ctx context.Context, in CreateImageInput, ownerID uuid.UUID) (*models.Image, error) {
	if blank(in.Prompt) {
		return nil, apperror.InvalidInput("images.create", "prompt is required")
	}
	url, err := s.gen.GenerateImage(ctx, in.Prompt)
	if err != nil {
		return nil, upstreamErr(contentgen.StageImage, err)
	}
	img := &models.Image{
		OwnerID:  ownerID,
		ScriptID: in.ScriptID,
		Prompt:   in.Prompt,
		Style:    in.Style,
		Content:  in.Content,
		ImageURL: url,
	}
	if err := s.store.CreateImage(ctx, img); err != nil {
		s.logger.Error("generated image not persisted", zap.String("image_url", url), zap.Error(err))
		return nil, apperror.Persistence("images.create", err)
	}
	return img, nil
}

// FindAll returns one page of the owner's images, newest first.
func (s *ImageService) FindAll(ctx context.Context, ownerID uuid.UUID, p, limit int) (models.Page[models.Image], error) {
	p, limit = models.NormalizePage(p, limit)
	list, total, err := s.store.ListImages(ctx, ownerID, limit, database.Offset(p, limit))
	if err != nil {
		return models.Page[models.Image]{}, apperror.Wrap("images.list", err)
	}
	return page(list, total, p, limit), nil
}

// FindOne returns a live image.
func (s *ImageService) FindOne(ctx context.Context, ownerID, id uuid.UUID) (*models.Image, error) {
	img, err := s.store.GetImage(ctx, id)
	if err != nil {
		return nil, readErr("images.get", "image", id, err)
	}
	if !owned(ownerID, img.OwnerID) {
		return nil, apperror.NotFound("images.get", "image", id.String())
	}
	return img, nil
}

// Update applies patch to a live image. The rendered image is not regenerated.
func (s *ImageService) Update(ctx context.Context, ownerID, id uuid.UUID, patch ImagePatch) (*models.Image, error) {
	if _, err := s.FindOne(ctx, ownerID, id); err != nil {
		return nil, apperror.Wrap("images.update", err)
	}
	img, err := s.store.UpdateImage(ctx, id, patch)
	if err != nil {
		return nil, writeErr("images.update", "image", id, err)
	}
	return img, nil
}

// SoftDelete tombstones a live image.
func (s *ImageService) SoftDelete(ctx context.Context, ownerID, id uuid.UUID) (*models.Image, error) {
	if _, err := s.FindOne(ctx, ownerID, id); err != nil {
		return nil, apperror.Wrap("images.delete", err)
	}
	img, err := s.store.SoftDeleteImage(ctx, id)
	if err != nil {
		return nil, writeErr("images.delete", "image", id, err)
	}
	return img, nil
}
