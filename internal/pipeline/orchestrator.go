// Package pipeline runs the staged video generation workflow for one job.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aura-studio/backend/internal/apperror"
	"github.com/aura-studio/backend/internal/assets"
	"github.com/aura-studio/backend/internal/contentgen"
	"github.com/aura-studio/backend/internal/models"
)

// Scripts loads and reconciles the input script.
type Scripts interface {
	FindOne(ctx context.Context, ownerID, id uuid.UUID) (*models.Script, error)
	UpdateContent(ctx context.Context, id uuid.UUID, content string) error
}

// Audios synthesizes narration for a script.
type Audios interface {
	Synthesize(ctx context.Context, ownerID, scriptID uuid.UUID, text, provider string) (*models.Audio, error)
}

// Prompts derives image prompts from script content.
type Prompts interface {
	GenerateImagePrompts(ctx context.Context, content, style string) ([]models.ImagePrompt, error)
}

// Images renders and persists one still.
type Images interface {
	Create(ctx context.Context, in assets.CreateImageInput, ownerID uuid.UUID) (*models.Image, error)
}

// Videos assembles and persists the final video.
type Videos interface {
	Create(ctx context.Context, in assets.CreateVideoInput, ownerID uuid.UUID) (*models.Video, error)
}

// Reporter receives checkpoint updates.
type Reporter interface {
	Report(ctx context.Context, stage models.JobStage, progress int) error
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, stage models.JobStage, progress int) error

func (f ReporterFunc) Report(ctx context.Context, stage models.JobStage, progress int) error {
	return f(ctx, stage, progress)
}

// Request is the input of one pipeline run.
type Request struct {
	JobID     uuid.UUID
	UserID    uuid.UUID
	ScriptID  uuid.UUID
	Scripts   []string // pre-rendered fragments, optional
	ImageURLs []string // pre-rendered stills, optional
}

// Reuse reports whether both provided lists are non-empty.
func (r Request) Reuse() bool {
	return len(r.Scripts) > 0 && len(r.ImageURLs) > 0
}

// StageError carries the pipeline stage that failed.
type StageError struct {
	Stage models.JobStage
	Err   error
}

func (e *StageError) Error() string { return string(e.Stage) + ": " + e.Err.Error() }

func (e *StageError) Unwrap() error { return e.Err }

// StageOf returns the failing stage of err, or StageFailed when unknown.
func StageOf(err error) models.JobStage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return models.StageFailed
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Scripts Scripts
	Audios  Audios
	Prompts Prompts
	Images  Images
	Videos  Videos
}

// Options configures an Orchestrator.
type Options struct {
	StageTimeout time.Duration // zero means no limit beyond the caller's context
	Logger       *zap.Logger
}

// Orchestrator sequences Validating, an asset branch, and AssemblingVideo. Side effects of
// a failed run are not rolled back: assets generated before the failure stay persisted.
type Orchestrator struct {
	deps    Deps
	timeout time.Duration
	logger  *zap.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(deps Deps, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{deps: deps, timeout: opts.StageTimeout, logger: logger}
}

// Run executes the pipeline and returns the persisted video.
func (o *Orchestrator) Run(ctx context.Context, req Request, rep Reporter) (*models.Video, error) {
	log := o.logger.With(zap.String("job_id", req.JobID.String()), zap.String("user_id", req.UserID.String()))
	track := NewTracker(rep, log)

	track.Report(ctx, models.StageValidating, models.ProgressStarted)
	var script *models.Script
	err := o.stage(ctx, models.StageValidating, func(ctx context.Context) error {
		var err error
		script, err = o.validate(ctx, req, log)
		return err
	})
	if err != nil {
		return nil, err
	}
	track.Report(ctx, models.StageValidating, models.ProgressValidated)

	var (
		audio     *models.Audio
		imageURLs []string
		fragments []string
	)
	if req.Reuse() {
		log.Info("reusing provided assets", zap.Int("fragments", len(req.Scripts)), zap.Int("images", len(req.ImageURLs)))
		err = o.stage(ctx, models.StageReusingProvided, func(ctx context.Context) error {
			var err error
			audio, err = o.deps.Audios.Synthesize(ctx, req.UserID, script.ID, script.Content, "")
			return err
		})
		if err != nil {
			return nil, err
		}
		track.Report(ctx, models.StageReusingProvided, models.ProgressGenerated)
		imageURLs, fragments = req.ImageURLs, req.Scripts
	} else {
		var prompts []models.ImagePrompt
		err = o.stage(ctx, models.StageGeneratingFromScratch, func(ctx context.Context) error {
			var err error
			audio, prompts, err = o.audioAndPrompts(ctx, req, script)
			return err
		})
		if err != nil {
			return nil, err
		}
		track.Report(ctx, models.StageGeneratingFromScratch, models.ProgressGenerated)

		err = o.stage(ctx, models.StageGeneratingFromScratch, func(ctx context.Context) error {
			var err error
			imageURLs, err = o.renderImages(ctx, req, script, prompts)
			return err
		})
		if err != nil {
			return nil, err
		}
		fragments = make([]string, len(prompts))
		for i, p := range prompts {
			fragments[i] = p.Fragment
		}
		log.Info("images rendered", zap.Int("count", len(imageURLs)))
	}
	track.Report(ctx, models.StageAssemblingVideo, models.ProgressImages)

	var video *models.Video
	err = o.stage(ctx, models.StageAssemblingVideo, func(ctx context.Context) error {
		var err error
		video, err = o.deps.Videos.Create(ctx, assets.CreateVideoInput{
			ScriptID:  &script.ID,
			Title:     script.Title,
			ImageURLs: imageURLs,
			Scripts:   fragments,
			AudioURL:  audio.AudioURL,
		}, req.UserID)
		return err
	})
	if err != nil {
		return nil, err
	}
	track.Report(ctx, models.StageCompleted, models.ProgressDone)
	log.Info("pipeline completed", zap.String("video_id", video.ID.String()))
	return video, nil
}

// validate loads the script and makes provided fragments authoritative over its content.
func (o *Orchestrator) validate(ctx context.Context, req Request, log *zap.Logger) (*models.Script, error) {
	if req.ScriptID == uuid.Nil {
		return nil, apperror.InvalidInput("pipeline.validate", "script_id is required")
	}
	script, err := o.deps.Scripts.FindOne(ctx, req.UserID, req.ScriptID)
	if err != nil {
		return nil, err
	}
	if len(req.Scripts) > 0 {
		joined := strings.Join(req.Scripts, " ")
		if joined != script.Content {
			if err := o.deps.Scripts.UpdateContent(ctx, script.ID, joined); err != nil {
				return nil, err
			}
			script.Content = joined
			log.Info("script content reconciled with provided fragments", zap.String("script_id", script.ID.String()))
		}
	}
	if strings.TrimSpace(script.Content) == "" {
		return nil, apperror.InvalidInput("pipeline.validate", "script %s has no content", script.ID)
	}
	return script, nil
}

// audioAndPrompts runs narration and prompt derivation concurrently; the first failure cancels the other.
func (o *Orchestrator) audioAndPrompts(ctx context.Context, req Request, script *models.Script) (*models.Audio, []models.ImagePrompt, error) {
	var (
		audio   *models.Audio
		prompts []models.ImagePrompt
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		audio, err = o.deps.Audios.Synthesize(gctx, req.UserID, script.ID, script.Content, "")
		return err
	})
	g.Go(func() error {
		var err error
		prompts, err = o.deps.Prompts.GenerateImagePrompts(gctx, script.Content, script.Style)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if len(prompts) == 0 {
		return nil, nil, apperror.Upstream(contentgen.StageImagePrompts, errors.New("no image prompts derived"))
	}
	return audio, prompts, nil
}

// renderImages issues one image call per prompt, all at once. URLs keep prompt order.
func (o *Orchestrator) renderImages(ctx context.Context, req Request, script *models.Script, prompts []models.ImagePrompt) ([]string, error) {
	urls := make([]string, len(prompts))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range prompts {
		i, p := i, p
		g.Go(func() error {
			img, err := o.deps.Images.Create(gctx, assets.CreateImageInput{
				Prompt:   p.Prompt,
				Style:    script.Style,
				Content:  p.Fragment,
				ScriptID: &script.ID,
			}, req.UserID)
			if err != nil {
				return fmt.Errorf("image %d of %d: %w", i+1, len(prompts), err)
			}
			urls[i] = img.ImageURL
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return urls, nil
}

// stage runs fn under the optional stage timeout and tags failures with stage.
func (o *Orchestrator) stage(ctx context.Context, stage models.JobStage, fn func(context.Context) error) error {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	if err := fn(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
			err = apperror.Upstream(string(stage), fmt.Errorf("stage timed out after %s: %w", o.timeout, err))
		}
		o.logger.Warn("pipeline stage failed", zap.String("stage", string(stage)), zap.Error(err))
		return &StageError{Stage: stage, Err: err}
	}
	return nil
}
