package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-billing-api/internal/dto"
	"github.com/noah-isme/academy-billing-api/internal/gateway"
	"github.com/noah-isme/academy-billing-api/internal/models"
)

func settlementNotification(transactionID string) dto.PaymentNotification {
	return dto.PaymentNotification{
		TransactionID:     transactionID,
		OrderID:           "inv-1",
		TransactionStatus: "settlement",
		PaymentType:       "gopay",
		GrossAmount:       "200000.00",
	}
}

func TestWebhookConfirmsSettledTransaction(t *testing.T) {
	store := &fakeInvoiceStore{invoices: map[string]*models.Invoice{
		"inv-1": pendingInvoice("inv-1", "stu-1", 200000),
	}}
	provider := &fakeGateway{transactions: map[string]*gateway.Transaction{
		"mid-1": {
			ProviderPaymentID: "mid-1",
			ExternalReference: "inv-1",
			Status:            gateway.StatusApproved,
			RawStatus:         "settlement",
			Method:            "gopay",
			GrossAmount:       200000,
		},
	}}
	svc := NewWebhookService(store, &fakeAttemptSink{}, provider, nil, nil, nil)

	acknowledged, err := svc.Handle(context.Background(), settlementNotification("mid-1"))
	require.NoError(t, err)
	require.True(t, acknowledged)
	require.Equal(t, models.InvoiceStatusPaid, store.invoices["inv-1"].Status)
	require.Equal(t, "mid-1", *store.invoices["inv-1"].ExternalPaymentID)
}

func TestWebhookIgnoresForgedStatus(t *testing.T) {
	// Payload claims settlement but the provider says the transaction
	// is still pending. The payload must not win.
	store := &fakeInvoiceStore{invoices: map[string]*models.Invoice{
		"inv-1": pendingInvoice("inv-1", "stu-1", 200000),
	}}
	provider := &fakeGateway{transactions: map[string]*gateway.Transaction{
		"mid-1": {
			ProviderPaymentID: "mid-1",
			ExternalReference: "inv-1",
			Status:            gateway.StatusPending,
			RawStatus:         "pending",
			GrossAmount:       200000,
		},
	}}
	svc := NewWebhookService(store, &fakeAttemptSink{}, provider, nil, nil, nil)

	acknowledged, err := svc.Handle(context.Background(), settlementNotification("mid-1"))
	require.NoError(t, err)
	require.True(t, acknowledged)
	require.Equal(t, models.InvoiceStatusPending, store.invoices["inv-1"].Status)
}

func TestWebhookDuplicateNotificationIsAcknowledged(t *testing.T) {
	store := &fakeInvoiceStore{invoices: map[string]*models.Invoice{
		"inv-1": pendingInvoice("inv-1", "stu-1", 200000),
	}}
	provider := &fakeGateway{transactions: map[string]*gateway.Transaction{
		"mid-1": {
			ProviderPaymentID: "mid-1",
			ExternalReference: "inv-1",
			Status:            gateway.StatusApproved,
			RawStatus:         "settlement",
			Method:            "gopay",
			GrossAmount:       200000,
		},
	}}
	svc := NewWebhookService(store, &fakeAttemptSink{}, provider, nil, nil, nil)

	for i := 0; i < 3; i++ {
		acknowledged, err := svc.Handle(context.Background(), settlementNotification("mid-1"))
		require.NoError(t, err)
		require.True(t, acknowledged)
	}
	require.Equal(t, models.InvoiceStatusPaid, store.invoices["inv-1"].Status)
	require.Equal(t, "mid-1", *store.invoices["inv-1"].ExternalPaymentID)
}

func TestWebhookDeclineRecordsAttempt(t *testing.T) {
	store := &fakeInvoiceStore{invoices: map[string]*models.Invoice{
		"inv-1": pendingInvoice("inv-1", "stu-1", 200000),
	}}
	provider := &fakeGateway{transactions: map[string]*gateway.Transaction{
		"mid-1": {
			ProviderPaymentID: "mid-1",
			ExternalReference: "inv-1",
			Status:            gateway.StatusDeclined,
			RawStatus:         "expire",
			GrossAmount:       200000,
		},
	}}
	attempts := &fakeAttemptSink{}
	svc := NewWebhookService(store, attempts, provider, nil, nil, nil)

	acknowledged, err := svc.Handle(context.Background(), settlementNotification("mid-1"))
	require.NoError(t, err)
	require.True(t, acknowledged)
	require.Equal(t, models.InvoiceStatusPending, store.invoices["inv-1"].Status)
	require.Len(t, attempts.attempts, 1)
	require.Equal(t, models.PaymentAttemptSourceWebhook, attempts.attempts[0].Source)
	require.Equal(t, "expire", attempts.attempts[0].ProviderStatus)
}

func TestWebhookAmountMismatchDoesNotConfirm(t *testing.T) {
	store := &fakeInvoiceStore{invoices: map[string]*models.Invoice{
		"inv-1": pendingInvoice("inv-1", "stu-1", 200000),
	}}
	provider := &fakeGateway{transactions: map[string]*gateway.Transaction{
		"mid-1": {
			ProviderPaymentID: "mid-1",
			ExternalReference: "inv-1",
			Status:            gateway.StatusApproved,
			RawStatus:         "settlement",
			GrossAmount:       50000,
		},
	}}
	svc := NewWebhookService(store, &fakeAttemptSink{}, provider, nil, nil, nil)

	acknowledged, err := svc.Handle(context.Background(), settlementNotification("mid-1"))
	require.NoError(t, err)
	require.True(t, acknowledged)
	require.Equal(t, models.InvoiceStatusPending, store.invoices["inv-1"].Status)
}

func TestWebhookUnknownInvoiceIsAcknowledged(t *testing.T) {
	store := &fakeInvoiceStore{invoices: map[string]*models.Invoice{}}
	provider := &fakeGateway{transactions: map[string]*gateway.Transaction{
		"mid-1": {
			ProviderPaymentID: "mid-1",
			ExternalReference: "inv-missing",
			Status:            gateway.StatusApproved,
			GrossAmount:       200000,
		},
	}}
	svc := NewWebhookService(store, &fakeAttemptSink{}, provider, nil, nil, nil)

	acknowledged, err := svc.Handle(context.Background(), settlementNotification("mid-1"))
	require.NoError(t, err)
	require.True(t, acknowledged)
}

func TestWebhookNonPaymentEventIsIgnored(t *testing.T) {
	provider := &fakeGateway{lookupErr: errors.New("should not be called")}
	svc := NewWebhookService(&fakeInvoiceStore{}, &fakeAttemptSink{}, provider, nil, nil, nil)

	acknowledged, err := svc.Handle(context.Background(), dto.PaymentNotification{
		EventName: "subscription.created",
	})
	require.NoError(t, err)
	require.True(t, acknowledged)
}

func TestConcurrentConfirmationsApplyOnce(t *testing.T) {
	// A direct charge and a webhook notification for the same invoice
	// land at the same time; the conditional paid transition must apply
	// exactly once and the loser must not surface it as a failure.
	store := &fakeInvoiceStore{invoices: map[string]*models.Invoice{
		"inv-1": pendingInvoice("inv-1", "stu-1", 200000),
	}}
	approved := &gateway.Transaction{
		ProviderPaymentID: "mid-1",
		ExternalReference: "inv-1",
		Status:            gateway.StatusApproved,
		RawStatus:         "settlement",
		Method:            "gopay",
		GrossAmount:       200000,
	}
	provider := &fakeGateway{
		chargeTx:     approved,
		transactions: map[string]*gateway.Transaction{"mid-1": approved},
	}
	payments := NewPaymentService(store, &fakeAttemptSink{}, provider, nil, nil, nil)
	webhooks := NewWebhookService(store, &fakeAttemptSink{}, provider, nil, nil, nil)

	var wg sync.WaitGroup
	var payErr, hookErr error
	var acknowledged bool
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, payErr = payments.PayDirect(context.Background(), "inv-1", studentClaims("stu-1"), &dto.DirectPaymentRequest{PaymentType: "gopay"})
	}()
	go func() {
		defer wg.Done()
		acknowledged, hookErr = webhooks.Handle(context.Background(), settlementNotification("mid-1"))
	}()
	wg.Wait()

	require.NoError(t, hookErr)
	require.True(t, acknowledged)
	// The direct path may have found the invoice already paid when the
	// webhook won the race; that conflict is the only acceptable error.
	if payErr != nil {
		require.Contains(t, payErr.Error(), "already paid")
	}
	require.Equal(t, models.InvoiceStatusPaid, store.invoice("inv-1").Status)
	require.Equal(t, 1, store.applied)
}

func TestWebhookProviderFailureAsksForRetry(t *testing.T) {
	provider := &fakeGateway{lookupErr: errors.New("timeout")}
	svc := NewWebhookService(&fakeInvoiceStore{}, &fakeAttemptSink{}, provider, nil, nil, nil)

	acknowledged, err := svc.Handle(context.Background(), settlementNotification("mid-1"))
	require.Error(t, err)
	require.False(t, acknowledged)
}
