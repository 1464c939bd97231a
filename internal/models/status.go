package models

import "time"

// Status event constants.
const (
	StatusEventQueued   = "queued"
	StatusEventAttempt  = "attempt"
	StatusEventSent     = "sent"
	StatusEventRejected = "rejected"
	StatusEventFailed   = "failed"
	StatusEventDLQ      = "dlq"
)

// StatusEvent represents lifecycle events emitted for deferred dispatches.
type StatusEvent struct {
	JobID      string         `json:"job_id"`
	Driver     string         `json:"driver"`
	Queue      string         `json:"queue,omitempty"`
	EventType  string         `json:"event_type"`
	Attempt    int            `json:"attempt,omitempty"`
	Recipients int            `json:"recipients,omitempty"`
	Success    *bool          `json:"success,omitempty"`
	Response   map[string]any `json:"response,omitempty"`
	Error      string         `json:"error,omitempty"`
	DurationMs int64          `json:"duration_ms,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}
