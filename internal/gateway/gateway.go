package gateway

import "context"

// PaymentStatus is the normalized provider decision for a transaction.
type PaymentStatus string

const (
	StatusApproved PaymentStatus = "APPROVED"
	StatusPending  PaymentStatus = "PENDING"
	StatusDeclined PaymentStatus = "DECLINED"
	StatusUnknown  PaymentStatus = "UNKNOWN"
)

// CheckoutRequest describes a hosted-checkout session to create. The
// order ID carries our invoice ID so every provider callback can be
// correlated back to exactly one invoice.
type CheckoutRequest struct {
	OrderID       string
	Amount        int64
	Description   string
	CustomerName  string
	CustomerEmail string
}

// CheckoutSession is the provider handle the client is redirected to.
type CheckoutSession struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

// ChargeRequest describes a direct (server-to-server) charge.
type ChargeRequest struct {
	OrderID     string
	Amount      int64
	Description string
	PaymentType string
	Bank        string
	CardToken   string
}

// Transaction is the normalized view of a provider payment object.
// ExternalReference echoes the order ID we embedded at creation time.
type Transaction struct {
	ProviderPaymentID string
	ExternalReference string
	Status            PaymentStatus
	RawStatus         string
	Method            string
	GrossAmount       int64
	Message           string
	VirtualAccounts   []VirtualAccount
}

// VirtualAccount is a bank-transfer destination issued by the provider.
type VirtualAccount struct {
	Bank   string `json:"bank"`
	Number string `json:"number"`
}

// Client abstracts the payment provider. Implementations must never
// be trusted for invoice state: callers decide transitions from the
// normalized Transaction they return.
type Client interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	Charge(ctx context.Context, req ChargeRequest) (*Transaction, error)
	GetTransaction(ctx context.Context, providerPaymentID string) (*Transaction, error)
}
