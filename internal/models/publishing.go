package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Platform identifies a publish target.
type Platform string

const PlatformYouTube Platform = "youtube"

// Privacy is the visibility of an uploaded video.
type Privacy string

const (
	PrivacyPrivate  Privacy = "private"
	PrivacyPublic   Privacy = "public"
	PrivacyUnlisted Privacy = "unlisted"
)

// Valid reports whether p is a known visibility.
func (p Privacy) Valid() bool {
	switch p {
	case PrivacyPrivate, PrivacyPublic, PrivacyUnlisted:
		return true
	}
	return false
}

// PublishStatus is the outcome of one publish attempt.
const (
	PublishStatusSuccess = "success"
	PublishStatusFailure = "failure"
)

// PublishingRecord is the audit row of one publish attempt.
type PublishingRecord struct {
	ID              uuid.UUID       `json:"id"`
	VideoID         uuid.UUID       `json:"video_id"`
	UserID          uuid.UUID       `json:"user_id"`
	Platform        Platform        `json:"platform"`
	PlatformVideoID string          `json:"platform_video_id,omitempty"`
	Status          string          `json:"status"`
	Error           string          `json:"error,omitempty"`
	RawResponse     json.RawMessage `json:"raw_response,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}
