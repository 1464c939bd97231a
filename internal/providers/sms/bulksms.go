package sms

import (
	"context"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/example/bdsms/internal/config"
	"github.com/example/bdsms/internal/dispatch"
	"github.com/example/bdsms/internal/transport"
)

const bulksmsURL = "https://bulksmsbd.net/api"

// BulkSMSDriver sends through BulkSMSBD.
type BulkSMSDriver struct {
	base
}

// NewBulkSMSDriver constructs the BulkSMSBD driver.
func NewBulkSMSDriver(cfg config.DriverConfig, client Caller, logger zerolog.Logger, opts ...Option) *BulkSMSDriver {
	return &BulkSMSDriver{base: newBase("bulksms", bulksmsURL, cfg, client, logger, opts)}
}

// Validate checks the api key and sender id.
func (d *BulkSMSDriver) Validate() error {
	return d.require("api_key", "sender_id")
}

// Execute issues the query-string send request. The gateway answers 202 in
// response_code on acceptance.
func (d *BulkSMSDriver) Execute(ctx context.Context, req dispatch.Request) (*dispatch.Outcome, error) {
	resp, err := d.call(ctx, transport.Request{
		Method: http.MethodGet,
		URL:    d.endpoint("/smsapi"),
		Query: url.Values{
			"api_key":  {d.cfg.Get("api_key")},
			"senderid": {d.cfg.Get("sender_id")},
			"type":     {"text"},
			"number":   {joinRecipients(req.Recipients)},
			"message":  {req.Message},
		},
	}, req)
	if err != nil {
		return nil, err
	}

	body := resp.Object()
	if code, _ := num(body["response_code"]); code != http.StatusAccepted {
		return nil, d.fail(resp, str(body["error_message"]), "BulkSMS API error")
	}
	return outcome(true, resp), nil
}
