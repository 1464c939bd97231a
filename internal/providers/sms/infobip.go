package sms

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/example/bdsms/internal/config"
	"github.com/example/bdsms/internal/dispatch"
	"github.com/example/bdsms/internal/transport"
)

// InfobipDriver sends through the Infobip advanced text API. The base url is
// per account.
type InfobipDriver struct {
	base
}

// NewInfobipDriver constructs the Infobip driver.
func NewInfobipDriver(cfg config.DriverConfig, client Caller, logger zerolog.Logger, opts ...Option) *InfobipDriver {
	return &InfobipDriver{base: newBase("infobip", cfg.Get("base_url"), cfg, client, logger, opts)}
}

// Validate checks the account url, credentials and sender.
func (d *InfobipDriver) Validate() error {
	return d.require("base_url", "username", "password", "sender_id")
}

type infobipDestination struct {
	To string `json:"to"`
}

type infobipMessage struct {
	From         string               `json:"from"`
	Destinations []infobipDestination `json:"destinations"`
	Text         string               `json:"text"`
}

// Execute sends one message with a destination per recipient.
func (d *InfobipDriver) Execute(ctx context.Context, req dispatch.Request) (*dispatch.Outcome, error) {
	destinations := make([]infobipDestination, 0, len(req.Recipients))
	for _, r := range req.Recipients {
		destinations = append(destinations, infobipDestination{To: r})
	}

	resp, err := d.call(ctx, transport.Request{
		Method:   http.MethodPost,
		URL:      d.endpoint("/sms/2/text/advanced"),
		Username: d.cfg.Get("username"),
		Password: d.cfg.Get("password"),
		JSON: map[string][]infobipMessage{
			"messages": {{
				From:         d.cfg.Get("sender_id"),
				Destinations: destinations,
				Text:         req.Message,
			}},
		},
	}, req)
	if err != nil {
		return nil, err
	}

	body := resp.Object()
	group := str(path(body, "messages", 0, "status", "groupName"))
	if group == "REJECTED" || body["requestError"] != nil {
		msg := firstNonEmpty(
			str(path(body, "requestError", "serviceException", "text")),
			str(path(body, "messages", 0, "status", "description")),
		)
		return nil, d.fail(resp, msg, "Infobip API error")
	}
	if !resp.OK() {
		return nil, d.fail(resp, "", "Infobip API error")
	}

	switch group {
	case "PENDING", "SENT", "DELIVERED":
		return outcome(true, resp), nil
	default:
		return outcome(false, resp), nil
	}
}
