package models

import "time"

// PaymentAttemptStatus classifies a recorded attempt outcome.
type PaymentAttemptStatus string

const (
	PaymentAttemptDeclined PaymentAttemptStatus = "DECLINED"
	PaymentAttemptFailed   PaymentAttemptStatus = "FAILED"
)

// PaymentAttempt is an audit record of a charge that did not confirm
// the invoice. The invoice itself stays PENDING and remains payable;
// attempts exist for support and reconciliation, not state.
type PaymentAttempt struct {
	ID                string               `db:"id" json:"id"`
	InvoiceID         string               `db:"invoice_id" json:"invoice_id"`
	Status            PaymentAttemptStatus `db:"status" json:"status"`
	ProviderPaymentID *string              `db:"provider_payment_id" json:"provider_payment_id,omitempty"`
	ProviderStatus    string               `db:"provider_status" json:"provider_status"`
	Message           string               `db:"message" json:"message"`
	Source            string               `db:"source" json:"source"`
	CreatedAt         time.Time            `db:"created_at" json:"created_at"`
}

// Attempt sources.
const (
	PaymentAttemptSourceDirect  = "DIRECT"
	PaymentAttemptSourceWebhook = "WEBHOOK"
)
