// Package contentgen is the HTTP client for the external script/image/audio/video generation backend.
package contentgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aura-studio/backend/internal/apperror"
	"github.com/aura-studio/backend/internal/models"
)

// Stage names carried by upstream errors.
const (
	StageScript       = "script"
	StageImage        = "image"
	StageImagePrompts = "image_prompts"
	StageAudio        = "audio"
	StageVideo        = "video"
)

// dummySuffix is appended to every path in dummy mode.
const dummySuffix = "/dummy"

// VideoMode selects the assembly strategy.
type VideoMode string

const (
	VideoModeSimple VideoMode = "simple" // slideshow
	VideoModeFull   VideoMode = "full"   // transition-aware
)

// ParseVideoMode returns the mode for s; empty selects simple.
func ParseVideoMode(s string) (VideoMode, error) {
	switch VideoMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", VideoModeSimple:
		return VideoModeSimple, nil
	case VideoModeFull:
		return VideoModeFull, nil
	}
	return "", apperror.InvalidInput("contentgen.mode", "unknown video mode %q", s)
}

// TTSProvider selects the speech synthesis engine.
type TTSProvider string

const (
	TTSOpenAI     TTSProvider = "openai"
	TTSElevenLabs TTSProvider = "elevenlabs"
)

// ttsPaths dispatches each provider to its synthesis endpoint. Adding a provider means adding one entry.
var ttsPaths = map[TTSProvider]string{
	TTSOpenAI:     "/audio/openai",
	TTSElevenLabs: "/audio/elevenlabs",
}

// ParseTTSProvider validates s against the registered providers.
func ParseTTSProvider(s string) (TTSProvider, error) {
	p := TTSProvider(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := ttsPaths[p]; !ok {
		return "", apperror.InvalidInput("contentgen.provider", "unknown tts provider %q", s)
	}
	return p, nil
}

// VideoRequest is the input of video assembly.
type VideoRequest struct {
	ImageURLs          []string
	Scripts            []string
	AudioURL           string
	Mode               VideoMode
	TransitionDuration float64 // zero omits the field
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	APIKey     string
	DummyMode  bool
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client calls the generation backend. It keeps no state between calls and never retries.
type Client struct {
	baseURL    string
	apiKey     string
	dummy      bool
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a generation backend client.
func NewClient(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("contentgen: base url is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{baseURL: base, apiKey: opts.APIKey, dummy: opts.DummyMode, httpClient: httpClient, logger: logger}, nil
}

type scriptRequest struct {
	Title    string `json:"title"`
	Style    string `json:"style"`
	Language string `json:"language,omitempty"`
}

type scriptResponse struct {
	Content string `json:"content"`
}

// GenerateScript writes narration for title in style.
func (c *Client) GenerateScript(ctx context.Context, title, style, language string) (string, error) {
	var out scriptResponse
	if err := c.post(ctx, StageScript, "/script", scriptRequest{Title: title, Style: style, Language: language}, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.Content) == "" {
		return "", apperror.Upstream(StageScript, fmt.Errorf("empty content"))
	}
	return out.Content, nil
}

type imageRequest struct {
	Prompt string `json:"prompt"`
}

type imageResponse struct {
	ImageURL string `json:"image_url"`
}

// GenerateImage renders prompt and returns the image URL.
func (c *Client) GenerateImage(ctx context.Context, prompt string) (string, error) {
	var out imageResponse
	if err := c.post(ctx, StageImage, "/image", imageRequest{Prompt: prompt}, &out); err != nil {
		return "", err
	}
	if out.ImageURL == "" {
		return "", apperror.Upstream(StageImage, fmt.Errorf("empty image_url"))
	}
	return out.ImageURL, nil
}

type imagePromptRequest struct {
	Content string `json:"content"`
	Style   string `json:"style"`
}

type imagePromptResponse struct {
	Prompts []models.ImagePrompt `json:"prompts"`
}

// GenerateImagePrompts splits content into fragments and derives one image prompt per fragment.
func (c *Client) GenerateImagePrompts(ctx context.Context, content, style string) ([]models.ImagePrompt, error) {
	var out imagePromptResponse
	if err := c.post(ctx, StageImagePrompts, "/image-prompt", imagePromptRequest{Content: content, Style: style}, &out); err != nil {
		return nil, err
	}
	if len(out.Prompts) == 0 {
		return nil, apperror.Upstream(StageImagePrompts, fmt.Errorf("no prompts derived"))
	}
	return out.Prompts, nil
}

type audioRequest struct {
	Script string `json:"script"`
}

type audioResponse struct {
	AudioURL      string  `json:"audio_url"`
	AudioDuration float64 `json:"audio_duration"`
}

// GenerateAudio synthesizes scriptText with provider and returns the audio URL and duration in seconds.
func (c *Client) GenerateAudio(ctx context.Context, scriptText string, provider TTSProvider) (string, float64, error) {
	path, ok := ttsPaths[provider]
	if !ok {
		return "", 0, apperror.InvalidInput("contentgen.audio", "unknown tts provider %q", provider)
	}
	var out audioResponse
	if err := c.post(ctx, StageAudio, path, audioRequest{Script: scriptText}, &out); err != nil {
		return "", 0, err
	}
	if out.AudioURL == "" {
		return "", 0, apperror.Upstream(StageAudio, fmt.Errorf("empty audio_url"))
	}
	return out.AudioURL, out.AudioDuration, nil
}

type videoRequest struct {
	ImageURLs          []string `json:"image_urls"`
	Scripts            []string `json:"scripts"`
	AudioURL           string   `json:"audio_url"`
	TransitionDuration *float64 `json:"transition_duration,omitempty"`
}

type videoResponse struct {
	VideoURL string `json:"video_url"`
}

// GenerateVideo assembles a video from images, narration fragments and audio.
func (c *Client) GenerateVideo(ctx context.Context, req VideoRequest) (string, error) {
	mode := req.Mode
	if mode == "" {
		mode = VideoModeSimple
	}
	body := videoRequest{ImageURLs: req.ImageURLs, Scripts: req.Scripts, AudioURL: req.AudioURL}
	if req.TransitionDuration > 0 {
		td := req.TransitionDuration
		body.TransitionDuration = &td
	}
	var out videoResponse
	if err := c.post(ctx, StageVideo, "/video/"+string(mode), body, &out); err != nil {
		return "", err
	}
	if out.VideoURL == "" {
		return "", apperror.Upstream(StageVideo, fmt.Errorf("empty video_url"))
	}
	return out.VideoURL, nil
}

// upstreamError is the error body returned by the backend.
type upstreamError struct {
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

func (c *Client) post(ctx context.Context, stage, path string, in, out any) error {
	if c.dummy {
		path += dummySuffix
	}
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", stage, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", stage, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperror.Upstream(stage, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return apperror.Upstream(stage, fmt.Errorf("read body: %w", err))
	}
	c.logger.Debug("contentgen call",
		zap.String("stage", stage),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ue upstreamError
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &ue) == nil {
			if ue.Message != "" {
				msg = ue.Message
			} else if ue.Detail != "" {
				msg = ue.Detail
			}
		}
		return apperror.Upstream(stage, fmt.Errorf("status %d: %s", resp.StatusCode, msg))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperror.Upstream(stage, fmt.Errorf("decode response: %w", err))
	}
	return nil
}
