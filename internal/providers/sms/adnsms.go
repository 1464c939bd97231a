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

const adnsmsURL = "https://portal.adnsms.com/api/v1/secure"

// ADNSMSDriver sends through ADN SMS. A failed final response is interpreted
// like any other reply rather than raised by the transport.
type ADNSMSDriver struct {
	base
}

// NewADNSMSDriver constructs the ADN SMS driver.
func NewADNSMSDriver(cfg config.DriverConfig, client Caller, logger zerolog.Logger, opts ...Option) *ADNSMSDriver {
	return &ADNSMSDriver{base: newBase("adnsms", adnsmsURL, cfg, client, logger, opts)}
}

// Validate checks the api key and secret.
func (d *ADNSMSDriver) Validate() error {
	return d.require("api_key", "api_secret")
}

// Execute posts the send form.
func (d *ADNSMSDriver) Execute(ctx context.Context, req dispatch.Request) (*dispatch.Outcome, error) {
	form := url.Values{
		"api_key":      {d.cfg.Get("api_key")},
		"api_secret":   {d.cfg.Get("api_secret")},
		"request_type": {d.cfg.GetDefault("request_type", "SINGLE_SMS")},
		"message_type": {d.cfg.GetDefault("message_type", "TEXT")},
		"mobile":       {joinRecipients(req.Recipients)},
		"message_body": {req.Message},
	}
	if sender := d.cfg.Get("sender_id"); sender != "" {
		form.Set("senderid", sender)
	}

	resp, err := d.call(ctx, transport.Request{
		Method: http.MethodPost,
		URL:    d.endpoint("/send-sms"),
		Form:   form,
	}, req)
	if err != nil {
		return nil, err
	}

	body := resp.Object()
	if code, _ := num(body["api_response_code"]); code != http.StatusOK {
		return nil, d.fail(resp, str(body["api_response_message"]), "ADN SMS API error")
	}
	return outcome(true, resp), nil
}
