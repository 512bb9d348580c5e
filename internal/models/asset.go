package models

import (
	"time"

	"github.com/google/uuid"
)

// VideoStatus represents the video asset lifecycle.
const (
	VideoStatusCompleted  = "completed"
	VideoStatusPublishing = "publishing"
	VideoStatusPublished  = "published"
)

// Script is generated narration text owned by a user.
type Script struct {
	ID        uuid.UUID  `json:"id"`
	OwnerID   uuid.UUID  `json:"owner_id"`
	Title     string     `json:"title"`
	Style     string     `json:"style"`
	Language  string     `json:"language,omitempty"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Audio is a narration track synthesized from a script.
type Audio struct {
	ID            uuid.UUID  `json:"id"`
	OwnerID       uuid.UUID  `json:"owner_id"`
	ScriptID      uuid.UUID  `json:"script_id"`
	Provider      string     `json:"provider"`
	Content       string     `json:"content"`
	AudioURL      string     `json:"audio_url"`
	AudioDuration float64    `json:"audio_duration"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
}

// Image is a generated still.
type Image struct {
	ID        uuid.UUID  `json:"id"`
	OwnerID   uuid.UUID  `json:"owner_id"`
	ScriptID  *uuid.UUID `json:"script_id,omitempty"`
	Prompt    string     `json:"prompt"`
	Style     string     `json:"style,omitempty"`
	Content   string     `json:"content,omitempty"` // script fragment the prompt was derived from
	ImageURL  string     `json:"image_url"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Video is an assembled video artifact.
type Video struct {
	ID                 uuid.UUID  `json:"id"`
	OwnerID            uuid.UUID  `json:"owner_id"`
	ScriptID           *uuid.UUID `json:"script_id,omitempty"`
	Title              string     `json:"title"`
	Mode               string     `json:"mode"`
	ImageURLs          []string   `json:"image_urls"`
	Scripts            []string   `json:"scripts"`
	AudioURL           string     `json:"audio_url"`
	TransitionDuration float64    `json:"transition_duration"`
	VideoURL           string     `json:"video_url"`
	S3Key              string     `json:"s3_key,omitempty"`
	Status             string     `json:"status"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	DeletedAt          *time.Time `json:"deleted_at,omitempty"`
}

// ImagePrompt is an ephemeral prompt derived from a script fragment; never persisted.
type ImagePrompt struct {
	Prompt   string `json:"prompt"`
	Fragment string `json:"script"`
}
