package sms

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/example/bdsms/internal/config"
	"github.com/example/bdsms/internal/dispatch"
	"github.com/example/bdsms/internal/transport"
)

const (
	esmsURL   = "https://login.esms.com.bd/api/v3"
	smsnocURL = "https://app.smsnoc.com/api/v3"
)

// BearerV3Driver speaks the token-authenticated v3 JSON API shared by ESMS and
// SMSNOC.
type BearerV3Driver struct {
	base
	required []string
	fallback string
}

// NewESMSDriver constructs the ESMS driver.
func NewESMSDriver(cfg config.DriverConfig, client Caller, logger zerolog.Logger, opts ...Option) *BearerV3Driver {
	return &BearerV3Driver{
		base:     newBase("esms", esmsURL, cfg, client, logger, opts),
		required: []string{"sender_id", "api_token"},
		fallback: "ESMS API error",
	}
}

// NewSMSNOCDriver constructs the SMSNOC driver.
func NewSMSNOCDriver(cfg config.DriverConfig, client Caller, logger zerolog.Logger, opts ...Option) *BearerV3Driver {
	return &BearerV3Driver{
		base:     newBase("smsnoc", smsnocURL, cfg, client, logger, opts),
		required: []string{"api_token", "sender_id"},
		fallback: "SMSNOC API error",
	}
}

// Validate checks the token and sender id.
func (d *BearerV3Driver) Validate() error {
	return d.require(d.required...)
}

// Execute posts one batch send.
func (d *BearerV3Driver) Execute(ctx context.Context, req dispatch.Request) (*dispatch.Outcome, error) {
	resp, err := d.call(ctx, transport.Request{
		Method:      http.MethodPost,
		URL:         d.endpoint("/sms/send"),
		BearerToken: d.cfg.Get("api_token"),
		JSON: map[string]string{
			"recipient": joinRecipients(req.Recipients),
			"sender_id": d.cfg.Get("sender_id"),
			"type":      "plain",
			"message":   req.Message,
		},
	}, req)
	if err != nil {
		return nil, err
	}

	body := resp.Object()
	status := str(body["status"])
	if status == "error" {
		return nil, d.fail(resp, str(body["message"]), d.fallback)
	}
	if !resp.OK() {
		return nil, d.fail(resp, "", d.fallback)
	}
	return outcome(status == "success", resp), nil
}
