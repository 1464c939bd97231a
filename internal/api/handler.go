package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/example/bdsms/internal/dispatch"
)

// Registry is the subset of the provider registry the handlers use.
type Registry interface {
	DefaultDriver() string
	Names() []string
	SMS(name string, opts ...dispatch.Option) (*dispatch.SMS, error)
}

// Handler serves the SMS endpoints.
type Handler struct {
	registry Registry
	logger   zerolog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(registry Registry, logger zerolog.Logger) *Handler {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &Handler{registry: registry, logger: logger.With().Str("component", "api").Logger()}
}

// recipients accepts either a single number or a list of numbers.
type recipients []string

func (r *recipients) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var single string
		if err := json.Unmarshal(data, &single); err != nil {
			return err
		}
		*r = recipients{single}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("api: \"to\" must be a number or a list of numbers: %w", err)
	}
	*r = list
	return nil
}

type sendRequest struct {
	Driver     string     `json:"driver"`
	To         recipients `json:"to"`
	Message    string     `json:"message"`
	Queue      string     `json:"queue"`
	Connection string     `json:"connection"`
}

// SendSMS sends synchronously through the requested driver.
func (h *Handler) SendSMS(c *gin.Context) {
	sms, _, ok := h.prepare(c)
	if !ok {
		return
	}

	start := time.Now()
	outcome, err := sms.Send(c.Request.Context())
	if err != nil {
		h.fail(c, sms.Driver().Name(), err)
		return
	}

	h.logger.Info().
		Str("driver", sms.Driver().Name()).
		Int("recipients", len(sms.Recipients())).
		Bool("success", outcome.Success).
		Dur("duration", time.Since(start)).
		Msg("sms sent")

	c.JSON(http.StatusOK, gin.H{
		"driver":     sms.Driver().Name(),
		"recipients": sms.Recipients(),
		"success":    outcome.Success,
		"data":       outcome.Data,
	})
}

// QueueSMS defers the dispatch onto the configured queue.
func (h *Handler) QueueSMS(c *gin.Context) {
	sms, body, ok := h.prepare(c)
	if !ok {
		return
	}

	pending, err := sms.Queue(c.Request.Context(),
		dispatch.OnQueue(body.Queue),
		dispatch.OnConnection(body.Connection),
	)
	if err != nil {
		h.fail(c, sms.Driver().Name(), err)
		return
	}

	c.JSON(http.StatusAccepted, pending)
}

// ListDrivers reports every resolvable driver and the default.
func (h *Handler) ListDrivers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"default": h.registry.DefaultDriver(),
		"drivers": h.registry.Names(),
	})
}

// Health is a liveness probe.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) prepare(c *gin.Context) (*dispatch.SMS, sendRequest, bool) {
	var body sendRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, body, false
	}

	sms, err := h.registry.SMS(body.Driver)
	if err != nil {
		h.fail(c, body.Driver, err)
		return nil, body, false
	}
	return sms.To(body.To...).Message(body.Message), body, true
}

func (h *Handler) fail(c *gin.Context, driver string, err error) {
	status := StatusFor(err)
	evt := h.logger.Warn()
	if status >= http.StatusInternalServerError {
		evt = h.logger.Error()
	}
	evt.Err(err).Str("driver", driver).Int("status", status).Msg("sms request failed")
	c.JSON(status, gin.H{"error": err.Error()})
}

// StatusFor maps dispatch errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case dispatch.IsValidation(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, dispatch.ErrUnknownProvider):
		return http.StatusBadRequest
	case errors.Is(err, dispatch.ErrConfiguration):
		return http.StatusInternalServerError
	case errors.Is(err, dispatch.ErrEnqueue):
		return http.StatusServiceUnavailable
	case errors.Is(err, dispatch.ErrProvider):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
