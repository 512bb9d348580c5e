// Package assets implements the generate-then-persist services for scripts, audio tracks,
// images and videos, and their HTTP handlers.
package assets

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/aura-studio/backend/internal/apperror"
	"github.com/aura-studio/backend/internal/contentgen"
	"github.com/aura-studio/backend/internal/models"
	"github.com/aura-studio/backend/pkg/database"
)

// Generator is the subset of contentgen.Client the asset services call.
type Generator interface {
	GenerateScript(ctx context.Context, title, style, language string) (string, error)
	GenerateImage(ctx context.Context, prompt string) (string, error)
	GenerateAudio(ctx context.Context, scriptText string, provider contentgen.TTSProvider) (string, float64, error)
	GenerateVideo(ctx context.Context, req contentgen.VideoRequest) (string, error)
}

// ScriptPatch holds optional script fields for update.
type ScriptPatch struct {
	Title    *string `json:"title"`
	Style    *string `json:"style"`
	Language *string `json:"language"`
	Content  *string `json:"content"`
}

// AudioPatch holds optional audio fields for update.
type AudioPatch struct {
	Content *string `json:"content"`
}

// ImagePatch holds optional image fields for update.
type ImagePatch struct {
	Prompt  *string `json:"prompt"`
	Style   *string `json:"style"`
	Content *string `json:"content"`
}

// VideoPatch holds optional video fields for update.
type VideoPatch struct {
	Title *string `json:"title"`
}

// readErr converts a repository read error into the taxonomy.
func readErr(op, entity string, id uuid.UUID, err error) error {
	if errors.Is(err, database.ErrNotFound) {
		return apperror.NotFound(op, entity, id.String())
	}
	return apperror.Wrap(op, err)
}

// writeErr converts a repository write error into the taxonomy.
func writeErr(op, entity string, id uuid.UUID, err error) error {
	if errors.Is(err, database.ErrNotFound) {
		return apperror.NotFound(op, entity, id.String())
	}
	return apperror.Persistence(op, err)
}

// upstreamErr keeps contentgen errors as they are and tags anything else with stage.
func upstreamErr(stage string, err error) error {
	if apperror.IsKind(err, apperror.KindUpstream) || apperror.IsKind(err, apperror.KindInvalidInput) {
		return err
	}
	return apperror.Upstream(stage, err)
}

// owned reports whether ownerID may see an asset owned by assetOwner. uuid.Nil means an internal
// caller acting on behalf of whoever owns the asset.
func owned(ownerID, assetOwner uuid.UUID) bool {
	return ownerID == uuid.Nil || ownerID == assetOwner
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func page[T any](items []T, total, p, limit int) models.Page[T] {
	return models.NewPage(items, total, p, limit)
}
