package server

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	apperr "github.com/mintoctopus/reserve/internal/errors"
	"github.com/mintoctopus/reserve/internal/telegram"
	"github.com/mintoctopus/reserve/server/bridge"
)

// secretTokenHeader is the header Telegram echoes back when a webhook
// was registered with a secret token.
const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

func (s *Server) registerRoutes() {
	s.e.GET("/health", s.handleHealth)
	s.e.POST("/webhook", s.handleWebhook)
}

// handleHealth reports liveness from process-local state only: no
// store round-trip, no dispatch-loop hand-off. A wedged loop must not
// take the health endpoint down with it.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"metrics":   s.metrics.Snapshot(),
	})
}

// handleWebhook decodes a platform update and hands it to the dispatch
// loop. Status codes tell the platform what happened: 200 processed,
// 202 accepted but still in flight, 503 shed, 400 undecodable.
func (s *Server) handleWebhook(c echo.Context) error {
	if !s.checkSecret(c) {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid secret token"})
	}

	var upd telegram.Update
	if err := c.Bind(&upd); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "undecodable payload"})
	}
	if upd.SenderID() == 0 && upd.ChatID() == 0 {
		// Nothing actionable; ack so the platform does not retry.
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
	}

	event := bridge.NewInboundEvent(&upd, "webhook")
	if err := s.bridge.Submit(c.Request().Context(), event); err != nil {
		switch apperr.CodeOf(err) {
		case apperr.ErrCodeHandoffTimeout:
			return c.JSON(http.StatusAccepted, map[string]string{"status": "accepted"})
		case apperr.ErrCodeQueueFull:
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "try again later"})
		default:
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "processing failed"})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "processed"})
}

// checkSecret compares the webhook secret in constant time. With no
// secret configured every delivery is accepted.
func (s *Server) checkSecret(c echo.Context) bool {
	secret := s.Profile.WebhookSecret
	if secret == "" {
		return true
	}
	got := c.Request().Header.Get(secretTokenHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(secret)) == 1
}
