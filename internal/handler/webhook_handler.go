package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academy-billing-api/internal/dto"
	"github.com/noah-isme/academy-billing-api/pkg/response"
)

type webhookProcessor interface {
	Handle(ctx context.Context, notification dto.PaymentNotification) (bool, error)
}

// WebhookHandler receives payment provider notifications. The route
// is unauthenticated: the provider does not log in, and nothing in the
// body is trusted without re-verification anyway.
type WebhookHandler struct {
	webhooks webhookProcessor
}

// NewWebhookHandler constructs WebhookHandler.
func NewWebhookHandler(webhooks webhookProcessor) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks}
}

// Receive godoc
// @Summary Receive a payment provider notification
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body dto.PaymentNotification true "Provider notification"
// @Success 200 {object} response.Envelope
// @Router /payments/webhook [post]
func (h *WebhookHandler) Receive(c *gin.Context) {
	var notification dto.PaymentNotification
	if err := c.ShouldBindJSON(&notification); err != nil {
		// An unparseable body is an anomaly to drop, not a failure to
		// retry; acknowledging stops provider redelivery.
		response.JSON(c, http.StatusOK, gin.H{"status": "ignored"}, nil)
		return
	}

	if _, err := h.webhooks.Handle(c.Request.Context(), notification); err != nil {
		// Non-2xx makes the provider redeliver later.
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"status": "ok"}, nil)
}
