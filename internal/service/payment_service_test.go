package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-billing-api/internal/dto"
	"github.com/noah-isme/academy-billing-api/internal/gateway"
	"github.com/noah-isme/academy-billing-api/internal/models"
)

type fakeInvoiceStore struct {
	mu          sync.Mutex
	invoices    map[string]*models.Invoice
	findErr     error
	markPaidErr error
	markCalls   int
	applied     int
}

func (f *fakeInvoiceStore) FindByID(ctx context.Context, id string) (*models.Invoice, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	invoice, ok := f.invoices[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *invoice
	return &clone, nil
}

func (f *fakeInvoiceStore) MarkPaid(ctx context.Context, id, providerPaymentID, method string, paidAt time.Time) (bool, error) {
	if f.markPaidErr != nil {
		return false, f.markPaidErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markCalls++
	invoice, ok := f.invoices[id]
	if !ok || invoice.Status != models.InvoiceStatusPending {
		return false, nil
	}
	invoice.Status = models.InvoiceStatusPaid
	invoice.ExternalPaymentID = &providerPaymentID
	invoice.PaymentMethod = &method
	invoice.PaymentDate = &paidAt
	f.applied++
	return true, nil
}

func (f *fakeInvoiceStore) invoice(id string) models.Invoice {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.invoices[id]
}

type fakeAttemptSink struct {
	attempts []models.PaymentAttempt
	err      error
}

func (f *fakeAttemptSink) Create(ctx context.Context, attempt *models.PaymentAttempt) error {
	if f.err != nil {
		return f.err
	}
	f.attempts = append(f.attempts, *attempt)
	return nil
}

type fakeGateway struct {
	session      *gateway.CheckoutSession
	sessionErr   error
	chargeTx     *gateway.Transaction
	chargeErr    error
	transactions map[string]*gateway.Transaction
	lookupErr    error
}

func (f *fakeGateway) CreateCheckout(ctx context.Context, req gateway.CheckoutRequest) (*gateway.CheckoutSession, error) {
	if f.sessionErr != nil {
		return nil, f.sessionErr
	}
	return f.session, nil
}

func (f *fakeGateway) Charge(ctx context.Context, req gateway.ChargeRequest) (*gateway.Transaction, error) {
	if f.chargeErr != nil {
		return nil, f.chargeErr
	}
	return f.chargeTx, nil
}

func (f *fakeGateway) GetTransaction(ctx context.Context, providerPaymentID string) (*gateway.Transaction, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	tx, ok := f.transactions[providerPaymentID]
	if !ok {
		return nil, errors.New("transaction not found")
	}
	return tx, nil
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin, FullName: "Admin"}
}

func studentClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleStudent, FullName: "Student", Email: "student@example.com"}
}

func pendingInvoice(id, studentID string, amount int64) *models.Invoice {
	return &models.Invoice{
		ID:          id,
		StudentID:   studentID,
		Amount:      amount,
		Status:      models.InvoiceStatusPending,
		Type:        models.InvoiceTypeTuition,
		Description: "Tuition 2026-02",
		DueDate:     time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
	}
}

func TestCheckoutReturnsSession(t *testing.T) {
	store := &fakeInvoiceStore{invoices: map[string]*models.Invoice{
		"inv-1": pendingInvoice("inv-1", "stu-1", 200000),
	}}
	provider := &fakeGateway{session: &gateway.CheckoutSession{Token: "tok-1", RedirectURL: "https://pay.example/tok-1"}}
	svc := NewPaymentService(store, &fakeAttemptSink{}, provider, nil, nil, nil)

	resp, err := svc.Checkout(context.Background(), "inv-1", studentClaims("stu-1"))
	require.NoError(t, err)
	require.Equal(t, "inv-1", resp.InvoiceID)
	require.Equal(t, "tok-1", resp.Token)
	require.Equal(t, "https://pay.example/tok-1", resp.RedirectURL)
}

func TestCheckoutRejectsForeignInvoice(t *testing.T) {
	store := &fakeInvoiceStore{invoices: map[string]*models.Invoice{
		"inv-1": pendingInvoice("inv-1", "stu-1", 200000),
	}}
	svc := NewPaymentService(store, &fakeAttemptSink{}, &fakeGateway{}, nil, nil, nil)

	_, err := svc.Checkout(context.Background(), "inv-1", studentClaims("stu-2"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "another student")
}

func TestCheckoutRejectsPaidInvoice(t *testing.T) {
	invoice := pendingInvoice("inv-1", "stu-1", 200000)
	invoice.Status = models.InvoiceStatusPaid
	store := &fakeInvoiceStore{invoices: map[string]*models.Invoice{"inv-1": invoice}}
	svc := NewPaymentService(store, &fakeAttemptSink{}, &fakeGateway{}, nil, nil, nil)

	_, err := svc.Checkout(context.Background(), "inv-1", studentClaims("stu-1"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "already paid")
}

func TestPayDirectApprovedConfirmsInvoice(t *testing.T) {
	store := &fakeInvoiceStore{invoices: map[string]*models.Invoice{
		"inv-1": pendingInvoice("inv-1", "stu-1", 200000),
	}}
	provider := &fakeGateway{chargeTx: &gateway.Transaction{
		ProviderPaymentID: "mid-1",
		ExternalReference: "inv-1",
		Status:            gateway.StatusApproved,
		RawStatus:         "settlement",
		Method:            "gopay",
		GrossAmount:       200000,
	}}
	attempts := &fakeAttemptSink{}
	svc := NewPaymentService(store, attempts, provider, nil, nil, nil)

	resp, err := svc.PayDirect(context.Background(), "inv-1", studentClaims("stu-1"), &dto.DirectPaymentRequest{PaymentType: "gopay"})
	require.NoError(t, err)
	require.Equal(t, dto.PaymentResultSuccess, resp.Status)
	require.Equal(t, models.InvoiceStatusPaid, store.invoices["inv-1"].Status)
	require.Equal(t, "mid-1", *store.invoices["inv-1"].ExternalPaymentID)
	require.Empty(t, attempts.attempts)
}

func TestPayDirectDeclinedLeavesInvoicePending(t *testing.T) {
	store := &fakeInvoiceStore{invoices: map[string]*models.Invoice{
		"inv-1": pendingInvoice("inv-1", "stu-1", 200000),
	}}
	provider := &fakeGateway{chargeTx: &gateway.Transaction{
		ProviderPaymentID: "mid-2",
		Status:            gateway.StatusDeclined,
		RawStatus:         "deny",
		Message:           "insufficient funds",
	}}
	attempts := &fakeAttemptSink{}
	svc := NewPaymentService(store, attempts, provider, nil, nil, nil)

	resp, err := svc.PayDirect(context.Background(), "inv-1", studentClaims("stu-1"), &dto.DirectPaymentRequest{PaymentType: "credit_card", CardToken: "card-tok"})
	require.NoError(t, err)
	require.Equal(t, dto.PaymentResultFailed, resp.Status)
	require.Equal(t, "insufficient funds", resp.Message)

	require.Equal(t, models.InvoiceStatusPending, store.invoices["inv-1"].Status)
	require.Len(t, attempts.attempts, 1)
	require.Equal(t, models.PaymentAttemptDeclined, attempts.attempts[0].Status)
	require.Equal(t, models.PaymentAttemptSourceDirect, attempts.attempts[0].Source)
	require.Equal(t, "deny", attempts.attempts[0].ProviderStatus)
}

func TestPayDirectPendingReturnsVirtualAccounts(t *testing.T) {
	store := &fakeInvoiceStore{invoices: map[string]*models.Invoice{
		"inv-1": pendingInvoice("inv-1", "stu-1", 200000),
	}}
	provider := &fakeGateway{chargeTx: &gateway.Transaction{
		ProviderPaymentID: "mid-3",
		Status:            gateway.StatusPending,
		RawStatus:         "pending",
		VirtualAccounts:   []gateway.VirtualAccount{{Bank: "bca", Number: "1234567890"}},
	}}
	svc := NewPaymentService(store, &fakeAttemptSink{}, provider, nil, nil, nil)

	resp, err := svc.PayDirect(context.Background(), "inv-1", studentClaims("stu-1"), &dto.DirectPaymentRequest{PaymentType: "bank_transfer", Bank: "bca"})
	require.NoError(t, err)
	require.Equal(t, dto.PaymentResultPending, resp.Status)
	require.Len(t, resp.VirtualAccounts, 1)
	require.Equal(t, models.InvoiceStatusPending, store.invoices["inv-1"].Status)
}

func TestPayDirectProviderFailureReturnsFailedResult(t *testing.T) {
	store := &fakeInvoiceStore{invoices: map[string]*models.Invoice{
		"inv-1": pendingInvoice("inv-1", "stu-1", 200000),
	}}
	provider := &fakeGateway{chargeErr: errors.New("connection refused")}
	attempts := &fakeAttemptSink{}
	svc := NewPaymentService(store, attempts, provider, nil, nil, nil)

	resp, err := svc.PayDirect(context.Background(), "inv-1", studentClaims("stu-1"), &dto.DirectPaymentRequest{PaymentType: "gopay"})
	require.NoError(t, err)
	require.Equal(t, dto.PaymentResultFailed, resp.Status)
	// Generic message only; provider internals stay in the logs.
	require.Equal(t, "payment provider unavailable", resp.Message)
	require.NotContains(t, resp.Message, "connection refused")

	require.Equal(t, models.InvoiceStatusPending, store.invoices["inv-1"].Status)
	require.Len(t, attempts.attempts, 1)
	require.Equal(t, models.PaymentAttemptFailed, attempts.attempts[0].Status)
}

func TestPayDirectRejectsNonPositiveAmount(t *testing.T) {
	store := &fakeInvoiceStore{invoices: map[string]*models.Invoice{
		"inv-1": pendingInvoice("inv-1", "stu-1", 0),
	}}
	provider := &fakeGateway{chargeErr: errors.New("provider must not be contacted")}
	svc := NewPaymentService(store, &fakeAttemptSink{}, provider, nil, nil, nil)

	_, err := svc.PayDirect(context.Background(), "inv-1", studentClaims("stu-1"), &dto.DirectPaymentRequest{PaymentType: "gopay"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "amount")
}

func TestPayDirectUnknownInvoice(t *testing.T) {
	svc := NewPaymentService(&fakeInvoiceStore{invoices: map[string]*models.Invoice{}}, &fakeAttemptSink{}, &fakeGateway{}, nil, nil, nil)

	_, err := svc.PayDirect(context.Background(), "missing", adminClaims(), &dto.DirectPaymentRequest{PaymentType: "gopay"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found")
}
