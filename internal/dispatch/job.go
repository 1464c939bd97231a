package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/bdsms/internal/phone"
)

// Job is the serialisable snapshot of a deferred dispatch.
type Job struct {
	ID         string    `json:"id"`
	Driver     string    `json:"driver"`
	Recipients []string  `json:"recipients"`
	Message    string    `json:"message"`
	QueuedAt   time.Time `json:"queued_at"`
}

// PendingDispatch is returned to callers once a job has been handed off.
type PendingDispatch struct {
	JobID      string    `json:"job_id"`
	Driver     string    `json:"driver"`
	Queue      string    `json:"queue"`
	Connection string    `json:"connection"`
	QueuedAt   time.Time `json:"queued_at"`
}

// NewJob snapshots a dispatch with a fresh identifier.
func NewJob(driver string, recipients []string, message string, queuedAt time.Time) Job {
	return Job{
		ID:         uuid.NewString(),
		Driver:     driver,
		Recipients: append([]string(nil), recipients...),
		Message:    message,
		QueuedAt:   queuedAt.UTC(),
	}
}

// Validate checks a decoded job before it is replayed.
func (j Job) Validate() error {
	var errs []error
	if strings.TrimSpace(j.Driver) == "" {
		errs = append(errs, errors.New("driver is required"))
	}
	if len(j.Recipients) == 0 {
		errs = append(errs, ErrMissingRecipient)
	}
	for idx, r := range j.Recipients {
		if !phone.Valid(r) {
			errs = append(errs, fmt.Errorf("recipients[%d]: %w", idx, &phone.InvalidNumberError{Raw: r}))
		}
	}
	if j.Message == "" {
		errs = append(errs, ErrMissingMessage)
	}
	if len(errs) > 0 {
		return fmt.Errorf("dispatch: invalid job: %w", errors.Join(errs...))
	}
	return nil
}

// Encode marshals the job as JSON.
func (j Job) Encode() ([]byte, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("dispatch: encode job: %w", err)
	}
	return data, nil
}

// DecodeJob parses a JSON job payload.
func DecodeJob(data []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return Job{}, fmt.Errorf("dispatch: decode job: %w", err)
	}
	return job, nil
}
