package dispatch

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/example/bdsms/internal/phone"
	"github.com/example/bdsms/internal/transport"
)

var (
	// ErrMissingRecipient is returned when Send or Queue runs with no recipients.
	ErrMissingRecipient = errors.New("dispatch: recipient is required")
	// ErrMissingMessage is returned when Send or Queue runs with an empty body.
	ErrMissingMessage = errors.New("dispatch: message is required")
	// ErrConfiguration matches every ConfigError.
	ErrConfiguration = errors.New("dispatch: driver configuration error")
	// ErrUnknownProvider matches every UnknownProviderError.
	ErrUnknownProvider = errors.New("dispatch: unknown provider")
	// ErrProvider matches every ProviderError.
	ErrProvider = errors.New("dispatch: provider error")
	// ErrEnqueue is returned when a job cannot be handed to the queue.
	ErrEnqueue = errors.New("dispatch: enqueue failed")
)

// ConfigError names a required driver setting that is missing and where it is
// expected to come from.
type ConfigError struct {
	Driver string
	Field  string
	Source string
}

func (e *ConfigError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("dispatch: please set %s for %s", e.Field, e.Driver)
	}
	return fmt.Sprintf("dispatch: please set %s for %s (%s)", e.Field, e.Driver, e.Source)
}

// Is reports whether target is ErrConfiguration.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}

// UnknownProviderError is returned when a driver name cannot be resolved.
type UnknownProviderError struct {
	Name string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("dispatch: driver %q is not supported", e.Name)
}

// Is reports whether target is ErrUnknownProvider.
func (e *UnknownProviderError) Is(target error) bool {
	return target == ErrUnknownProvider
}

// ProviderError reports a gateway rejection or an unusable response.
type ProviderError struct {
	Driver     string
	Message    string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("dispatch: %s: %s (http %d)", e.Driver, msg, e.StatusCode)
	}
	return fmt.Sprintf("dispatch: %s: %s", e.Driver, msg)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrProvider.
func (e *ProviderError) Is(target error) bool {
	return target == ErrProvider
}

// Temporary reports whether repeating the call later could succeed.
func (e *ProviderError) Temporary() bool {
	if errors.Is(e.Err, transport.ErrRetriesExhausted) {
		return true
	}
	return e.StatusCode != 0 && transport.Retryable(e.StatusCode)
}

// NewProviderError builds a ProviderError from a gateway response. The
// fallback is used when the gateway gave no message of its own.
func NewProviderError(driver, message, fallback string, resp *transport.Response) *ProviderError {
	if message == "" {
		message = fallback
	}
	pe := &ProviderError{Driver: driver, Message: message}
	if resp != nil {
		pe.StatusCode = resp.StatusCode
		if message == "" {
			pe.Message = http.StatusText(resp.StatusCode)
		}
	}
	return pe
}

// TransportFailure wraps an error from the HTTP layer.
func TransportFailure(driver string, err error) *ProviderError {
	return &ProviderError{Driver: driver, Message: err.Error(), Err: err}
}

// IsValidation reports errors caused by the caller's input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrMissingRecipient) ||
		errors.Is(err, ErrMissingMessage) ||
		errors.Is(err, phone.ErrInvalidNumber)
}
