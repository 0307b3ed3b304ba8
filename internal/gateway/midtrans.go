package gateway

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"

	"github.com/noah-isme/academy-billing-api/pkg/config"
)

// MidtransClient implements Client on top of the Midtrans Snap and
// Core APIs. Snap serves hosted checkout, Core API serves direct
// charges and the canonical status re-fetch used by reconciliation.
type MidtransClient struct {
	snap        snap.Client
	core        coreapi.Client
	checkoutTTL time.Duration
	finishURL   string
}

// NewMidtransClient configures Snap and Core API clients from config.
func NewMidtransClient(cfg config.MidtransConfig) *MidtransClient {
	env := midtrans.Sandbox
	if cfg.Production {
		env = midtrans.Production
	}

	c := &MidtransClient{checkoutTTL: cfg.CheckoutTTL, finishURL: cfg.FinishURL}
	c.snap.New(cfg.ServerKey, env)
	c.core.New(cfg.ServerKey, env)
	return c
}

// CreateCheckout opens a Snap transaction whose order ID is the
// invoice ID, so notifications and status lookups map back to it.
func (c *MidtransClient) CreateCheckout(_ context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	snapReq := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  req.OrderID,
			GrossAmt: req.Amount,
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:    req.OrderID,
				Price: req.Amount,
				Qty:   1,
				Name:  itemName(req.Description),
			},
		},
	}

	if req.CustomerName != "" || req.CustomerEmail != "" {
		snapReq.CustomerDetail = &midtrans.CustomerDetails{
			FName: req.CustomerName,
			Email: req.CustomerEmail,
		}
	}
	if c.checkoutTTL > 0 {
		snapReq.Expiry = &snap.ExpiryDetails{
			Unit:     "minute",
			Duration: int64(c.checkoutTTL / time.Minute),
		}
	}
	if c.finishURL != "" {
		snapReq.Callbacks = &snap.Callbacks{Finish: c.finishURL}
	}

	resp, err := c.snap.CreateTransaction(snapReq)
	if err != nil {
		return nil, fmt.Errorf("snap create transaction: %w", err)
	}
	return &CheckoutSession{Token: resp.Token, RedirectURL: resp.RedirectURL}, nil
}

// Charge performs a Core API charge and normalizes the response.
func (c *MidtransClient) Charge(_ context.Context, req ChargeRequest) (*Transaction, error) {
	chargeReq, err := buildChargeRequest(req)
	if err != nil {
		return nil, err
	}

	resp, mErr := c.core.ChargeTransaction(chargeReq)
	if mErr != nil {
		return nil, fmt.Errorf("core charge: %w", mErr)
	}

	tx := &Transaction{
		ProviderPaymentID: resp.TransactionID,
		ExternalReference: resp.OrderID,
		Status:            NormalizeStatus(resp.TransactionStatus, resp.FraudStatus),
		RawStatus:         resp.TransactionStatus,
		Method:            resp.PaymentType,
		GrossAmount:       parseGross(resp.GrossAmount),
		Message:           resp.StatusMessage,
	}
	for _, va := range resp.VaNumbers {
		tx.VirtualAccounts = append(tx.VirtualAccounts, VirtualAccount{Bank: va.Bank, Number: va.VANumber})
	}
	return tx, nil
}

// GetTransaction fetches the canonical payment object by provider
// payment ID. Webhook payload fields are never trusted; this lookup
// is the source of truth during reconciliation.
func (c *MidtransClient) GetTransaction(_ context.Context, providerPaymentID string) (*Transaction, error) {
	resp, mErr := c.core.CheckTransaction(providerPaymentID)
	if mErr != nil {
		return nil, fmt.Errorf("core check transaction %s: %w", providerPaymentID, mErr)
	}

	return &Transaction{
		ProviderPaymentID: resp.TransactionID,
		ExternalReference: resp.OrderID,
		Status:            NormalizeStatus(resp.TransactionStatus, resp.FraudStatus),
		RawStatus:         resp.TransactionStatus,
		Method:            resp.PaymentType,
		GrossAmount:       parseGross(resp.GrossAmount),
		Message:           resp.StatusMessage,
	}, nil
}

func buildChargeRequest(req ChargeRequest) (*coreapi.ChargeReq, error) {
	chargeReq := &coreapi.ChargeReq{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  req.OrderID,
			GrossAmt: req.Amount,
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:    req.OrderID,
				Price: req.Amount,
				Qty:   1,
				Name:  itemName(req.Description),
			},
		},
	}

	switch strings.ToLower(req.PaymentType) {
	case "bank_transfer", "":
		chargeReq.PaymentType = coreapi.PaymentTypeBankTransfer
		chargeReq.BankTransfer = &coreapi.BankTransferDetails{Bank: bankFromString(req.Bank)}
	case "gopay":
		chargeReq.PaymentType = coreapi.PaymentTypeGopay
	case "qris":
		chargeReq.PaymentType = coreapi.PaymentTypeQris
	case "credit_card":
		if req.CardToken == "" {
			return nil, fmt.Errorf("credit_card charge requires a card token")
		}
		chargeReq.PaymentType = coreapi.PaymentTypeCreditCard
		chargeReq.CreditCard = &coreapi.CreditCardDetails{TokenID: req.CardToken, Authentication: true}
	default:
		return nil, fmt.Errorf("unsupported payment type %q", req.PaymentType)
	}

	return chargeReq, nil
}

// NormalizeStatus maps Midtrans transaction/fraud status pairs to the
// provider-neutral decision used by the billing core. Card captures
// count as approved only when fraud screening accepted them.
func NormalizeStatus(transactionStatus, fraudStatus string) PaymentStatus {
	switch strings.ToLower(transactionStatus) {
	case "settlement":
		return StatusApproved
	case "capture":
		if fs := strings.ToLower(fraudStatus); fs == "" || fs == "accept" {
			return StatusApproved
		}
		return StatusDeclined
	case "pending", "authorize":
		return StatusPending
	case "deny", "cancel", "expire", "failure":
		return StatusDeclined
	default:
		return StatusUnknown
	}
}

func bankFromString(bank string) midtrans.Bank {
	switch strings.ToLower(bank) {
	case "bni":
		return midtrans.BankBni
	case "bri":
		return midtrans.BankBri
	case "cimb":
		return midtrans.BankCimb
	case "permata":
		return midtrans.BankPermata
	default:
		return midtrans.BankBca
	}
}

func parseGross(raw string) int64 {
	if raw == "" {
		return 0
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return int64(f)
}

func itemName(description string) string {
	if description == "" {
		return "Academy invoice"
	}
	// Midtrans rejects item names above 50 characters.
	if len(description) > 50 {
		return description[:50]
	}
	return description
}
