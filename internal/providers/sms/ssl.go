package sms

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/bdsms/internal/config"
	"github.com/example/bdsms/internal/dispatch"
	"github.com/example/bdsms/internal/transport"
)

const sslURL = "https://smsplus.sslwireless.com/api/v3"

// SSLDriver sends through SSL Wireless SMS Plus.
type SSLDriver struct {
	base
}

// NewSSLDriver constructs the SSL Wireless driver.
func NewSSLDriver(cfg config.DriverConfig, client Caller, logger zerolog.Logger, opts ...Option) *SSLDriver {
	b := newBase("ssl", sslURL, cfg, client, logger, opts)
	if b.newID == nil {
		b.newID = func() string { return "bdsms_" + uuid.NewString() }
	}
	return &SSLDriver{base: b}
}

// Validate checks the token and sender id.
func (d *SSLDriver) Validate() error {
	return d.require("api_token", "sender_id")
}

// Execute posts to the single or bulk endpoint depending on recipient count.
func (d *SSLDriver) Execute(ctx context.Context, req dispatch.Request) (*dispatch.Outcome, error) {
	endpoint := "/send-sms"
	if len(req.Recipients) > 1 {
		endpoint = "/send-sms/bulk"
	}

	resp, err := d.call(ctx, transport.Request{
		Method: http.MethodPost,
		URL:    d.endpoint(endpoint),
		JSON: map[string]string{
			"api_token": d.cfg.Get("api_token"),
			"sid":       d.cfg.Get("sender_id"),
			"msisdn":    joinRecipients(req.Recipients),
			"sms":       req.Message,
			"csms_id":   d.cfg.GetDefault("csms_id", d.newID()),
		},
	}, req)
	if err != nil {
		return nil, err
	}

	body := resp.Object()
	status := str(body["status"])
	if status == "FAILED" || body["error"] != nil {
		return nil, d.fail(resp, firstNonEmpty(str(body["error"]), str(body["status_message"])), "SSL Wireless API error")
	}
	if !resp.OK() {
		return nil, d.fail(resp, "", "SSL Wireless API error")
	}
	return outcome(status == "SUCCESS", resp), nil
}
