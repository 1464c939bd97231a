package sms

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/example/bdsms/internal/config"
	"github.com/example/bdsms/internal/dispatch"
	"github.com/example/bdsms/internal/transport"
)

const greenwebURL = "https://api.greenweb.com.bd"

// GreenwebDriver sends through GreenWeb BD.
type GreenwebDriver struct {
	base
}

// NewGreenwebDriver constructs the GreenWeb driver.
func NewGreenwebDriver(cfg config.DriverConfig, client Caller, logger zerolog.Logger, opts ...Option) *GreenwebDriver {
	return &GreenwebDriver{base: newBase("greenweb", greenwebURL, cfg, client, logger, opts)}
}

// Validate checks the token.
func (d *GreenwebDriver) Validate() error {
	return d.require("token")
}

// Execute issues the query-string send request.
func (d *GreenwebDriver) Execute(ctx context.Context, req dispatch.Request) (*dispatch.Outcome, error) {
	resp, err := d.call(ctx, transport.Request{
		Method: http.MethodGet,
		URL:    d.endpoint("/api.php"),
		Query: url.Values{
			"json":    {""},
			"token":   {d.cfg.Get("token")},
			"to":      {joinRecipients(req.Recipients)},
			"message": {req.Message},
		},
	}, req)
	if err != nil {
		return nil, err
	}

	data := resp.Data()
	if msg := str(data["error"]); data["error"] != nil {
		return nil, d.fail(resp, msg, "GreenWeb API error")
	}
	if first := str(path(data["response"], 0)); strings.Contains(first, "Error") {
		return nil, d.fail(resp, first, "GreenWeb API error")
	}
	if !resp.OK() {
		return nil, d.fail(resp, "", "GreenWeb API error")
	}
	return &dispatch.Outcome{Success: true, Data: data}, nil
}
