package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-studio/backend/internal/apperror"
	"github.com/aura-studio/backend/internal/assets"
	"github.com/aura-studio/backend/internal/contentgen"
	"github.com/aura-studio/backend/internal/models"
)

// fakeDeps implements every collaborator and counts calls.
type fakeDeps struct {
	mu sync.Mutex

	script       *models.Script
	updates      []string
	audioTexts   []string
	promptCalls  int
	imagePrompts []string
	videoInputs  []assets.CreateVideoInput

	prompts    []models.ImagePrompt
	failImage  string // prompt whose render fails
	failAudio  error
	audioDelay time.Duration
}

func newFakeDeps(content string) *fakeDeps {
	return &fakeDeps{
		script: &models.Script{ID: uuid.New(), OwnerID: uuid.New(), Title: "S1", Style: "documentary", Content: content},
		prompts: []models.ImagePrompt{
			{Prompt: "p1", Fragment: "f1"},
			{Prompt: "p2", Fragment: "f2"},
			{Prompt: "p3", Fragment: "f3"},
		},
	}
}

func (f *fakeDeps) deps() Deps {
	return Deps{Scripts: f, Audios: f, Prompts: f, Images: f, Videos: videoMaker{f}}
}

func (f *fakeDeps) FindOne(_ context.Context, _, id uuid.UUID) (*models.Script, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id != f.script.ID {
		return nil, apperror.NotFound("scripts.get", "script", id.String())
	}
	cp := *f.script
	return &cp, nil
}

func (f *fakeDeps) UpdateContent(_ context.Context, _ uuid.UUID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, content)
	f.script.Content = content
	return nil
}

func (f *fakeDeps) Synthesize(ctx context.Context, ownerID, scriptID uuid.UUID, text, _ string) (*models.Audio, error) {
	if f.audioDelay > 0 {
		select {
		case <-time.After(f.audioDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audioTexts = append(f.audioTexts, text)
	if f.failAudio != nil {
		return nil, apperror.Upstream(contentgen.StageAudio, f.failAudio)
	}
	return &models.Audio{ID: uuid.New(), OwnerID: ownerID, ScriptID: scriptID, AudioURL: "https://cdn/a.mp3"}, nil
}

func (f *fakeDeps) GenerateImagePrompts(context.Context, string, string) ([]models.ImagePrompt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.promptCalls++
	return f.prompts, nil
}

func (f *fakeDeps) Create(_ context.Context, in assets.CreateImageInput, ownerID uuid.UUID) (*models.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imagePrompts = append(f.imagePrompts, in.Prompt)
	if in.Prompt == f.failImage {
		return nil, apperror.Upstream(contentgen.StageImage, errors.New("nsfw filter"))
	}
	return &models.Image{ID: uuid.New(), OwnerID: ownerID, Prompt: in.Prompt, ImageURL: "https://cdn/" + in.Prompt + ".png"}, nil
}

// videoMaker is split out because fakeDeps already has an image Create method.
type videoMaker struct{ f *fakeDeps }

func (v videoMaker) Create(_ context.Context, in assets.CreateVideoInput, ownerID uuid.UUID) (*models.Video, error) {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	v.f.videoInputs = append(v.f.videoInputs, in)
	return &models.Video{ID: uuid.New(), OwnerID: ownerID, VideoURL: "https://cdn/v.mp4", Status: models.VideoStatusCompleted}, nil
}

type recorder struct {
	mu     sync.Mutex
	values []int
	stages []models.JobStage
}

func (r *recorder) Report(_ context.Context, stage models.JobStage, progress int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, progress)
	r.stages = append(r.stages, stage)
	return nil
}

func newOrchestrator(f *fakeDeps) *Orchestrator {
	return NewOrchestrator(f.deps(), Options{})
}

func TestFromScratchPipeline(t *testing.T) {
	f := newFakeDeps("original narration")
	rec := &recorder{}

	video, err := newOrchestrator(f).Run(context.Background(), Request{
		JobID: uuid.New(), UserID: f.script.OwnerID, ScriptID: f.script.ID,
	}, rec)
	require.NoError(t, err)
	require.NotNil(t, video)

	assert.Equal(t, []int{5, 10, 40, 70, 100}, rec.values)
	assert.Equal(t, models.StageCompleted, rec.stages[len(rec.stages)-1])
	assert.Len(t, f.audioTexts, 1)
	assert.Equal(t, 1, f.promptCalls)
	assert.ElementsMatch(t, []string{"p1", "p2", "p3"}, f.imagePrompts, "one image call per prompt")
	assert.Empty(t, f.updates)

	require.Len(t, f.videoInputs, 1)
	in := f.videoInputs[0]
	assert.Equal(t, []string{"https://cdn/p1.png", "https://cdn/p2.png", "https://cdn/p3.png"}, in.ImageURLs, "stills keep prompt order")
	assert.Equal(t, []string{"f1", "f2", "f3"}, in.Scripts)
	assert.Equal(t, "https://cdn/a.mp3", in.AudioURL)
}

func TestReuseProvidedPipeline(t *testing.T) {
	f := newFakeDeps("stale narration")
	rec := &recorder{}

	_, err := newOrchestrator(f).Run(context.Background(), Request{
		JobID: uuid.New(), UserID: f.script.OwnerID, ScriptID: f.script.ID,
		Scripts: []string{"frag1", "frag2"}, ImageURLs: []string{"u1", "u2"},
	}, rec)
	require.NoError(t, err)

	assert.Equal(t, []int{5, 10, 40, 70, 100}, rec.values)
	assert.Equal(t, []string{"frag1 frag2"}, f.updates)
	assert.Equal(t, []string{"frag1 frag2"}, f.audioTexts)
	assert.Zero(t, f.promptCalls)
	assert.Empty(t, f.imagePrompts)

	require.Len(t, f.videoInputs, 1)
	assert.Equal(t, []string{"u1", "u2"}, f.videoInputs[0].ImageURLs)
	assert.Equal(t, []string{"frag1", "frag2"}, f.videoInputs[0].Scripts)
}

func TestReconcileSkippedWhenContentMatches(t *testing.T) {
	f := newFakeDeps("frag1 frag2")
	_, err := newOrchestrator(f).Run(context.Background(), Request{
		UserID: f.script.OwnerID, ScriptID: f.script.ID,
		Scripts: []string{"frag1", "frag2"}, ImageURLs: []string{"u1"},
	}, nil)
	require.NoError(t, err)
	assert.Empty(t, f.updates)
}

func TestOneEmptyProvidedListFallsThroughToScratch(t *testing.T) {
	f := newFakeDeps("narration")
	_, err := newOrchestrator(f).Run(context.Background(), Request{
		UserID: f.script.OwnerID, ScriptID: f.script.ID,
		Scripts: []string{"frag1"}, ImageURLs: []string{},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, f.promptCalls)
	assert.Len(t, f.imagePrompts, 3)
	assert.Equal(t, []string{"frag1"}, f.updates, "fragments still reconcile the script")
}

func TestImageFailureAbortsJob(t *testing.T) {
	f := newFakeDeps("narration")
	f.failImage = "p2"
	rec := &recorder{}

	_, err := newOrchestrator(f).Run(context.Background(), Request{UserID: f.script.OwnerID, ScriptID: f.script.ID}, rec)
	require.Error(t, err)
	assert.Equal(t, models.StageGeneratingFromScratch, StageOf(err))
	assert.Equal(t, apperror.KindUpstream, apperror.KindOf(err))
	assert.Empty(t, f.videoInputs, "no assembly after a failed image")
	assert.Equal(t, []int{5, 10, 40}, rec.values)
}

func TestAudioFailureAbortsBeforeImages(t *testing.T) {
	f := newFakeDeps("narration")
	f.failAudio = errors.New("tts quota")

	_, err := newOrchestrator(f).Run(context.Background(), Request{UserID: f.script.OwnerID, ScriptID: f.script.ID}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tts quota")
	assert.Empty(t, f.imagePrompts)
	assert.Empty(t, f.videoInputs)
}

func TestMissingScriptFailsValidation(t *testing.T) {
	f := newFakeDeps("narration")
	rec := &recorder{}

	_, err := newOrchestrator(f).Run(context.Background(), Request{UserID: f.script.OwnerID, ScriptID: uuid.New()}, rec)
	assert.Equal(t, models.StageValidating, StageOf(err))
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound))
	assert.Equal(t, []int{5}, rec.values)
}

func TestStageTimeout(t *testing.T) {
	f := newFakeDeps("narration")
	f.audioDelay = time.Second
	o := NewOrchestrator(f.deps(), Options{StageTimeout: 20 * time.Millisecond})

	_, err := o.Run(context.Background(), Request{UserID: f.script.OwnerID, ScriptID: f.script.ID}, nil)
	require.Error(t, err)
	assert.Equal(t, models.StageGeneratingFromScratch, StageOf(err))
	assert.Equal(t, apperror.KindUpstream, apperror.KindOf(err))
}

func TestTrackerNeverLowersProgress(t *testing.T) {
	rec := &recorder{}
	tr := NewTracker(rec, nil)
	for _, p := range []int{5, 10, 7, 40, 40, 30, 100} {
		tr.Report(context.Background(), models.StageValidating, p)
	}
	assert.Equal(t, []int{5, 10, 40, 40, 100}, rec.values)
	assert.Equal(t, 100, tr.Last())
}

func TestReporterErrorsDoNotFailJob(t *testing.T) {
	f := newFakeDeps("narration")
	rep := ReporterFunc(func(context.Context, models.JobStage, int) error { return fmt.Errorf("db down") })
	_, err := newOrchestrator(f).Run(context.Background(), Request{UserID: f.script.OwnerID, ScriptID: f.script.ID}, rep)
	assert.NoError(t, err)
}
