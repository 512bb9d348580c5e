package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the coarse lifecycle of a generation job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// JobStage is the pipeline stage a job is in.
type JobStage string

const (
	StageQueued                JobStage = "queued"
	StageValidating            JobStage = "validating"
	StageReusingProvided       JobStage = "reusing_provided"
	StageGeneratingFromScratch JobStage = "generating_from_scratch"
	StageAssemblingVideo       JobStage = "assembling_video"
	StageCompleted             JobStage = "completed"
	StageFailed                JobStage = "failed"
)

// Progress checkpoints.
const (
	ProgressStarted   = 5
	ProgressValidated = 10
	ProgressGenerated = 40
	ProgressImages    = 70
	ProgressDone      = 100
)

// GenerationJob is one run of the video generation pipeline.
type GenerationJob struct {
	ID                uuid.UUID  `json:"id"`
	UserID            uuid.UUID  `json:"user_id"`
	ScriptID          uuid.UUID  `json:"script_id"`
	ProvidedScripts   []string   `json:"provided_scripts,omitempty"`
	ProvidedImageURLs []string   `json:"provided_image_urls,omitempty"`
	Status            JobStatus  `json:"status"`
	Stage             JobStage   `json:"stage"`
	Progress          int        `json:"progress"`
	VideoID           *uuid.UUID `json:"video_id,omitempty"`
	FailureStage      string     `json:"failure_stage,omitempty"`
	FailureCode       string     `json:"failure_code,omitempty"`
	FailureReason     string     `json:"failure_reason,omitempty"`
	Attempts          int        `json:"attempts"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	FinishedAt        *time.Time `json:"finished_at,omitempty"`
}
