package sms

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/example/bdsms/internal/config"
	"github.com/example/bdsms/internal/dispatch"
	"github.com/example/bdsms/internal/transport"
)

const grameenphoneURL = "https://gpcmp.grameenphone.com/ecmapigw/webresources/ecmapigw.v2"

// GrameenphoneDriver sends through the Grameenphone enterprise gateway.
type GrameenphoneDriver struct {
	base
}

// NewGrameenphoneDriver constructs the Grameenphone driver.
func NewGrameenphoneDriver(cfg config.DriverConfig, client Caller, logger zerolog.Logger, opts ...Option) *GrameenphoneDriver {
	return &GrameenphoneDriver{base: newBase("grameenphone", grameenphoneURL, cfg, client, logger, opts)}
}

// Validate checks the account credentials.
func (d *GrameenphoneDriver) Validate() error {
	return d.require("username", "password")
}

// Execute posts one send request.
func (d *GrameenphoneDriver) Execute(ctx context.Context, req dispatch.Request) (*dispatch.Outcome, error) {
	resp, err := d.call(ctx, transport.Request{
		Method: http.MethodPost,
		URL:    d.baseURL,
		JSON: map[string]any{
			"username":    d.cfg.Get("username"),
			"password":    d.cfg.Get("password"),
			"apicode":     1,
			"msisdn":      joinRecipients(req.Recipients),
			"countrycode": "880",
			"cli":         d.cfg.GetDefault("cli", "2222"),
			"messagetype": d.cfg.Int("message_type", 1),
			"messageid":   0,
			"message":     req.Message,
		},
	}, req)
	if err != nil {
		return nil, err
	}

	body := resp.Object()
	if code, ok := num(body["statusCode"]); !ok || code != http.StatusOK {
		return nil, d.fail(resp, str(body["statusDescription"]), "Grameenphone API error")
	}
	return outcome(true, resp), nil
}
