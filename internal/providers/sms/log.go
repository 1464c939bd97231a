package sms

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/example/bdsms/internal/config"
	"github.com/example/bdsms/internal/dispatch"
	"github.com/example/bdsms/internal/transport"
)

// LogDriver writes dispatches to the logger instead of calling a gateway.
type LogDriver struct {
	base
}

// NewLogDriver constructs the log driver.
func NewLogDriver(cfg config.DriverConfig, logger zerolog.Logger, opts ...Option) *LogDriver {
	return &LogDriver{base: newBase("log", "", cfg, nopCaller{}, logger, opts)}
}

// Validate always succeeds; the log driver has no settings.
func (d *LogDriver) Validate() error {
	return nil
}

// Execute logs the recipients and message.
func (d *LogDriver) Execute(ctx context.Context, req dispatch.Request) (*dispatch.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.logger.Info().
		Strs("recipients", req.Recipients).
		Str("body", req.Message).
		Msg("sms dispatched to log")
	return &dispatch.Outcome{
		Success: true,
		Data:    map[string]any{"message": "Message sent successfully"},
	}, nil
}

type nopCaller struct{}

func (nopCaller) Do(context.Context, transport.Request, transport.Policy) (*transport.Response, error) {
	return nil, errors.New("sms: driver performs no http calls")
}
