package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/bdsms/internal/dispatch"
	"github.com/example/bdsms/internal/transport"
)

// ErrTransient and ErrPermanent classify replay failures. Transient failures
// are retried with backoff, permanent ones go straight to the DLQ.
var (
	ErrTransient = errors.New("transient error")
	ErrPermanent = errors.New("permanent error")
)

// WrapTransient annotates an error so callers can detect transient failures.
func WrapTransient(err error) error {
	if err == nil {
		return ErrTransient
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// WrapPermanent annotates an error as permanent.
func WrapPermanent(err error) error {
	if err == nil {
		return ErrPermanent
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// Classify maps a replay error onto ErrTransient or ErrPermanent. Errors that
// already carry a classification are returned as is, as are bare context
// errors. Exhausted transport retries count as transient even when the last
// attempt hit its own deadline.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, ErrPermanent) {
		return err
	}

	var perr *dispatch.ProviderError
	if errors.As(err, &perr) && perr.Temporary() {
		return WrapTransient(err)
	}
	if errors.Is(err, transport.ErrRetriesExhausted) {
		return WrapTransient(err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return WrapPermanent(err)
}
