package dto

// PaymentNotification is the inbound provider notification body. Only
// the transaction ID is acted on: status and amount fields are
// informational and re-verified against the provider before any state
// change. Non-payment events (subscription and account linking hooks)
// carry an event name and are acknowledged without processing.
type PaymentNotification struct {
	EventName         string `json:"event_name,omitempty"`
	TransactionID     string `json:"transaction_id"`
	OrderID           string `json:"order_id"`
	TransactionStatus string `json:"transaction_status"`
	PaymentType       string `json:"payment_type"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
}

// IsPaymentEvent reports whether the notification describes a payment
// transaction rather than a lifecycle event.
func (n PaymentNotification) IsPaymentEvent() bool {
	return n.EventName == "" && n.TransactionID != ""
}
