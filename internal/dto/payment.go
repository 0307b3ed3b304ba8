package dto

import "github.com/noah-isme/academy-billing-api/internal/gateway"

// DirectPaymentRequest carries the processor-specific payment method
// payload for a server-to-server charge.
type DirectPaymentRequest struct {
	PaymentType string `json:"payment_type" validate:"omitempty,oneof=bank_transfer gopay qris credit_card"`
	Bank        string `json:"bank,omitempty"`
	CardToken   string `json:"card_token,omitempty"`
}

// Payment result statuses surfaced to clients.
const (
	PaymentResultSuccess = "success"
	PaymentResultPending = "pending"
	PaymentResultFailed  = "failed"
)

// PaymentResultResponse is the outcome of a direct payment. A failed
// result leaves the invoice pending and payable; Message carries the
// provider's decline reason verbatim when one exists.
type PaymentResultResponse struct {
	Status            string                   `json:"status"`
	Message           string                   `json:"message"`
	ProviderPaymentID *string                  `json:"provider_payment_id,omitempty"`
	VirtualAccounts   []gateway.VirtualAccount `json:"virtual_accounts,omitempty"`
}

// CheckoutResponse returns the hosted-checkout handle for redirect.
type CheckoutResponse struct {
	InvoiceID   string `json:"invoice_id"`
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}
