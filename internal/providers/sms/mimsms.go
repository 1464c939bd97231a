package sms

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/example/bdsms/internal/config"
	"github.com/example/bdsms/internal/dispatch"
	"github.com/example/bdsms/internal/transport"
)

const mimsmsURL = "https://api.mimsms.com/api/SmsSending"

// MiMSMSDriver sends through MiM SMS.
type MiMSMSDriver struct {
	base
}

// NewMiMSMSDriver constructs the MiM SMS driver.
func NewMiMSMSDriver(cfg config.DriverConfig, client Caller, logger zerolog.Logger, opts ...Option) *MiMSMSDriver {
	return &MiMSMSDriver{base: newBase("mimsms", mimsmsURL, cfg, client, logger, opts)}
}

// Validate checks the account credentials and sender.
func (d *MiMSMSDriver) Validate() error {
	return d.require("username", "api_key", "sender_id")
}

// Execute posts a transactional send.
func (d *MiMSMSDriver) Execute(ctx context.Context, req dispatch.Request) (*dispatch.Outcome, error) {
	resp, err := d.call(ctx, transport.Request{
		Method: http.MethodPost,
		URL:    d.endpoint("/Send"),
		JSON: map[string]string{
			"UserName":        d.cfg.Get("username"),
			"ApiKey":          d.cfg.Get("api_key"),
			"SenderName":      d.cfg.Get("sender_id"),
			"TransactionType": "T",
			"CampaignId":      "null",
			"MobileNumber":    joinRecipients(req.Recipients),
			"Message":         req.Message,
		},
	}, req)
	if err != nil {
		return nil, err
	}

	body := resp.Object()
	if code, _ := num(body["statusCode"]); code != http.StatusOK {
		return nil, d.fail(resp, str(body["responseResult"]), "MiMSMS API error")
	}
	return outcome(true, resp), nil
}
