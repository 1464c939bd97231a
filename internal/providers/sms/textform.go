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

const (
	banglalinkURL = "https://vas.banglalink.net/sendSMS/sendSMS"
	robiURL       = "https://bmpws.robi.com.bd/ApacheGearWS/SendTextMessage"
)

// TextFormDriver posts a form and treats any reply mentioning an error or
// failure as a rejection. Banglalink, Robi and Elitbuzz reply in plain text.
type TextFormDriver struct {
	base
	required []string
	form     func(cfg config.DriverConfig, req dispatch.Request) url.Values
	url      func(b *base) string
	fallback string
}

// NewBanglalinkDriver constructs the Banglalink driver.
func NewBanglalinkDriver(cfg config.DriverConfig, client Caller, logger zerolog.Logger, opts ...Option) *TextFormDriver {
	return &TextFormDriver{
		base:     newBase("banglalink", banglalinkURL, cfg, client, logger, opts),
		required: []string{"user_id", "password", "sender_id"},
		fallback: "Banglalink API error",
		url:      func(b *base) string { return b.baseURL },
		form: func(cfg config.DriverConfig, req dispatch.Request) url.Values {
			return url.Values{
				"userID":  {cfg.Get("user_id")},
				"passwd":  {cfg.Get("password")},
				"sender":  {cfg.Get("sender_id")},
				"msisdn":  {joinRecipients(req.Recipients)},
				"message": {req.Message},
			}
		},
	}
}

// NewRobiDriver constructs the Robi driver.
func NewRobiDriver(cfg config.DriverConfig, client Caller, logger zerolog.Logger, opts ...Option) *TextFormDriver {
	return &TextFormDriver{
		base:     newBase("robi", robiURL, cfg, client, logger, opts),
		required: []string{"username", "password"},
		fallback: "Robi API error",
		url:      func(b *base) string { return b.baseURL },
		form: func(cfg config.DriverConfig, req dispatch.Request) url.Values {
			return url.Values{
				"username": {cfg.Get("username")},
				"password": {cfg.Get("password")},
				"To":       {joinRecipients(req.Recipients)},
				"Message":  {req.Message},
			}
		},
	}
}

// NewElitbuzzDriver constructs the Elitbuzz driver. Its endpoint is the
// configured url.
func NewElitbuzzDriver(cfg config.DriverConfig, client Caller, logger zerolog.Logger, opts ...Option) *TextFormDriver {
	return &TextFormDriver{
		base:     newBase("elitbuzz", cfg.Get("url"), cfg, client, logger, opts),
		required: []string{"url", "api_key", "sender_id"},
		fallback: "Elitbuzz API error",
		url:      func(b *base) string { return b.endpoint("/smsapi") },
		form: func(cfg config.DriverConfig, req dispatch.Request) url.Values {
			return url.Values{
				"api_key":  {cfg.Get("api_key")},
				"type":     {cfg.GetDefault("type", "text")},
				"senderid": {cfg.Get("sender_id")},
				"contacts": {joinRecipients(req.Recipients)},
				"msg":      {req.Message},
			}
		},
	}
}

// Validate checks the driver's required settings.
func (d *TextFormDriver) Validate() error {
	return d.require(d.required...)
}

// Execute posts the form and inspects the textual reply.
func (d *TextFormDriver) Execute(ctx context.Context, req dispatch.Request) (*dispatch.Outcome, error) {
	resp, err := d.call(ctx, transport.Request{
		Method: http.MethodPost,
		URL:    d.url(&d.base),
		Form:   d.form(d.cfg, req),
	}, req)
	if err != nil {
		return nil, err
	}

	text := resp.Text()
	if textFailure(text) {
		return nil, d.fail(resp, text, d.fallback)
	}
	if !resp.OK() {
		return nil, d.fail(resp, "", d.fallback)
	}
	return &dispatch.Outcome{Success: true, Data: map[string]any{"response": text}}, nil
}
