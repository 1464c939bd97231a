package transport

import "time"

const (
	DefaultTimeout    = 10 * time.Second
	DefaultRetry      = 3
	DefaultRetryDelay = 300 * time.Millisecond
)

// Policy bounds a single outbound call. Retry counts extra attempts, so the
// worst case is Timeout*(Retry+1) plus Retry*RetryDelay.
type Policy struct {
	Timeout    time.Duration
	Retry      int
	RetryDelay time.Duration
}

// DefaultPolicy returns the process-wide defaults.
func DefaultPolicy() Policy {
	return Policy{
		Timeout:    DefaultTimeout,
		Retry:      DefaultRetry,
		RetryDelay: DefaultRetryDelay,
	}
}

// Sanitize clamps negative values to zero. A zero timeout disables the
// per-attempt deadline.
func (p Policy) Sanitize() Policy {
	if p.Timeout < 0 {
		p.Timeout = 0
	}
	if p.Retry < 0 {
		p.Retry = 0
	}
	if p.RetryDelay < 0 {
		p.RetryDelay = 0
	}
	return p
}

// MaxDuration is the upper bound a call governed by p can block for.
func (p Policy) MaxDuration() time.Duration {
	p = p.Sanitize()
	return p.Timeout*time.Duration(p.Retry+1) + p.RetryDelay*time.Duration(p.Retry)
}
