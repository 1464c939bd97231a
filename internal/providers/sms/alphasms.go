package sms

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/example/bdsms/internal/config"
	"github.com/example/bdsms/internal/dispatch"
	"github.com/example/bdsms/internal/transport"
)

const alphasmsURL = "https://api.sms.net.bd"

// AlphaSMSDriver sends through Alpha SMS (sms.net.bd).
type AlphaSMSDriver struct {
	base
}

// NewAlphaSMSDriver constructs the Alpha SMS driver.
func NewAlphaSMSDriver(cfg config.DriverConfig, client Caller, logger zerolog.Logger, opts ...Option) *AlphaSMSDriver {
	return &AlphaSMSDriver{base: newBase("alphasms", alphasmsURL, cfg, client, logger, opts)}
}

// Validate checks the api key.
func (d *AlphaSMSDriver) Validate() error {
	return d.require("api_key")
}

// Execute posts the send request. Sender id and schedule are optional.
func (d *AlphaSMSDriver) Execute(ctx context.Context, req dispatch.Request) (*dispatch.Outcome, error) {
	params := map[string]string{
		"api_key": d.cfg.Get("api_key"),
		"msg":     req.Message,
		"to":      joinRecipients(req.Recipients),
	}
	if sender := d.cfg.Get("sender_id"); sender != "" {
		params["sender_id"] = sender
	}
	if schedule := d.cfg.Get("schedule"); schedule != "" {
		params["schedule"] = schedule
	}

	resp, err := d.call(ctx, transport.Request{
		Method: http.MethodPost,
		URL:    d.endpoint("/sendsms"),
		JSON:   params,
	}, req)
	if err != nil {
		return nil, err
	}

	body := resp.Object()
	code, present := num(body["error"])
	if present && code != 0 {
		return nil, d.fail(resp, str(body["msg"]), "Alpha SMS API error")
	}
	if !resp.OK() {
		return nil, d.fail(resp, str(body["msg"]), "Alpha SMS API error")
	}
	return outcome(present && code == 0, resp), nil
}
