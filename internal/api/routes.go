package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// NewRouter builds a gin engine with recovery and request logging.
func NewRouter(h *Handler, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(logger))
	RegisterRoutes(r, h)
	return r
}

// RegisterRoutes mounts the SMS endpoints.
func RegisterRoutes(r *gin.Engine, h *Handler) {
	r.GET("/healthz", h.Health)

	v1 := r.Group("/v1")
	{
		v1.GET("/drivers", h.ListDrivers)
		v1.POST("/sms/send", h.SendSMS)
		v1.POST("/sms/queue", h.QueueSMS)
	}
}

// RequestLogger logs one line per request, skipping health probes.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Str("remote_ip", c.ClientIP()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	}
}
