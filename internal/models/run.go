package models

import (
	"time"

	"github.com/google/uuid"
)

// Processing run statuses.
const (
	RunStatusQueued      = "queued"
	RunStatusSampling    = "sampling"
	RunStatusCaptioning  = "captioning"
	RunStatusSummarizing = "summarizing"
	RunStatusCompleted   = "completed"
	RunStatusFailed      = "failed"
)

// ProcessingRun ties one video to one sampling → captioning → summarization
// execution. At most one run is active at a time; a new upload or a new run
// retires the previous one.
type ProcessingRun struct {
	ID           uuid.UUID  `json:"id"`
	Status       string     `json:"status"`
	StageName    string     `json:"stage_name"`
	Progress     float64    `json:"progress"` // 0..100, cosmetic
	ErrorMessage *string    `json:"error_message"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at"`
}

// WebSocket message types

type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type StatusUpdate struct {
	RunID     uuid.UUID `json:"run_id"`
	Status    string    `json:"status"`
	StageName string    `json:"stage_name"`
	Progress  float64   `json:"progress"`
}

type CompletedEvent struct {
	RunID      uuid.UUID `json:"run_id"`
	FrameCount int       `json:"frame_count"`
}

type ErrorEvent struct {
	RunID        uuid.UUID `json:"run_id"`
	Stage        string    `json:"stage"`
	ErrorMessage string    `json:"error_message"`
}

// API Error response

type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
