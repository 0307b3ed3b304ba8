package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academy-billing-api/internal/dto"
	"github.com/noah-isme/academy-billing-api/internal/service"
	appErrors "github.com/noah-isme/academy-billing-api/pkg/errors"
	"github.com/noah-isme/academy-billing-api/pkg/response"
)

// PaymentHandler exposes the payment endpoints of an invoice.
type PaymentHandler struct {
	payments *service.PaymentService
}

// NewPaymentHandler constructs PaymentHandler.
func NewPaymentHandler(payments *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// Checkout godoc
// @Summary Create a hosted checkout session for an invoice
// @Tags Payments
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 200 {object} response.Envelope
// @Router /invoices/{id}/checkout [post]
func (h *PaymentHandler) Checkout(c *gin.Context) {
	session, err := h.payments.Checkout(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Pay godoc
// @Summary Charge an invoice directly
// @Tags Payments
// @Accept json
// @Produce json
// @Param id path string true "Invoice ID"
// @Param payload body dto.DirectPaymentRequest true "Payment method payload"
// @Success 200 {object} response.Envelope
// @Router /invoices/{id}/pay [post]
func (h *PaymentHandler) Pay(c *gin.Context) {
	var req dto.DirectPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.payments.PayDirect(c.Request.Context(), c.Param("id"), claimsFromContext(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
