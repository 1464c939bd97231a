package models

import (
	"encoding/json"
	"time"
)

// Failure types for DLQ records.
const (
	FailureTypePermanent  = "permanent"
	FailureTypeTransient  = "transient"
	FailureTypeValidation = "validation"
	FailureTypeUnknown    = "unknown"
)

// DLQRecord is written when a deferred dispatch is abandoned.
type DLQRecord struct {
	JobID         string          `json:"job_id"`
	Driver        string          `json:"driver,omitempty"`
	Queue         string          `json:"queue,omitempty"`
	OriginalJob   json.RawMessage `json:"original_job,omitempty"`
	Attempts      int             `json:"attempts"`
	FailureType   string          `json:"failure_type"`
	LastError     string          `json:"last_error,omitempty"`
	FirstFailedAt time.Time       `json:"first_failed_at"`
	LastAttemptAt time.Time       `json:"last_attempt_at"`
}
