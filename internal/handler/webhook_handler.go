package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shinelocal/spotlight/internal/gateway"
	"github.com/shinelocal/spotlight/internal/metrics"
	"github.com/shinelocal/spotlight/internal/service"
	"github.com/shinelocal/spotlight/pkg/response"
)

// WebhookHandler receives billing provider webhooks and feeds them to the
// reconciler. The signature is verified before any payload field is read.
type WebhookHandler struct {
	reconciler *service.ReconcilerService
	billing    gateway.BillingGateway
	logger     *zap.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(reconciler *service.ReconcilerService, billing gateway.BillingGateway, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler, billing: billing, logger: logger}
}

// HandleBillingWebhook handles POST /stripe-webhook.
func (h *WebhookHandler) HandleBillingWebhook(c *gin.Context) {
	start := time.Now()
	if metrics.WebhooksReceived != nil {
		metrics.WebhooksReceived.Inc(c.Request.Context())
	}

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.BadRequest(c, "failed to read request body")
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	event, err := h.billing.ConstructWebhookEvent(payload, signature)
	if err != nil {
		h.logger.Warn("webhook signature verification failed", zap.Error(err))
		response.BadRequest(c, "invalid webhook signature")
		return
	}

	outcome, err := h.reconciler.HandleEvent(c.Request.Context(), event)
	if err != nil {
		// Provider retries on non-2xx; a processing failure is worth a retry.
		if metrics.WebhooksFailed != nil {
			metrics.WebhooksFailed.Inc(c.Request.Context())
		}
		h.logger.Error("webhook processing failed",
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
		response.InternalError(c, err)
		return
	}

	if metrics.WebhookProcessingTime != nil {
		metrics.WebhookProcessingTime.Record(c.Request.Context(), time.Since(start).Seconds())
	}

	h.logger.Info("webhook processed",
		zap.String("event_type", string(event.Type)),
		zap.String("action", outcome.Action),
		zap.String("reason", outcome.Reason))

	c.JSON(http.StatusOK, gin.H{"received": true, "action": outcome.Action})
}
