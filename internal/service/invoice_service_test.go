package service

import (
	"bytes"
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-billing-api/internal/dto"
	"github.com/noah-isme/academy-billing-api/internal/models"
)

type fakeInvoiceLedger struct {
	invoices   map[string]*models.Invoice
	listFilter models.InvoiceFilter
	listResult []models.Invoice
}

func (f *fakeInvoiceLedger) Create(ctx context.Context, invoice *models.Invoice) error {
	if invoice.ID == "" {
		invoice.ID = "inv-generated"
	}
	if f.invoices == nil {
		f.invoices = map[string]*models.Invoice{}
	}
	f.invoices[invoice.ID] = invoice
	return nil
}

func (f *fakeInvoiceLedger) FindByID(ctx context.Context, id string) (*models.Invoice, error) {
	invoice, ok := f.invoices[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *invoice
	return &clone, nil
}

func (f *fakeInvoiceLedger) List(ctx context.Context, filter models.InvoiceFilter) ([]models.Invoice, int, error) {
	f.listFilter = filter
	return f.listResult, len(f.listResult), nil
}

type fakeAttemptLog struct {
	attempts []models.PaymentAttempt
}

func (f *fakeAttemptLog) ListByInvoice(ctx context.Context, invoiceID string) ([]models.PaymentAttempt, error) {
	return f.attempts, nil
}

func TestInvoiceGetEnforcesOwnership(t *testing.T) {
	ledger := &fakeInvoiceLedger{invoices: map[string]*models.Invoice{
		"inv-1": pendingInvoice("inv-1", "stu-1", 200000),
	}}
	svc := NewInvoiceService(ledger, &fakeAttemptLog{}, "Academy", nil)

	invoice, err := svc.Get(context.Background(), "inv-1", studentClaims("stu-1"))
	require.NoError(t, err)
	require.Equal(t, "inv-1", invoice.ID)

	_, err = svc.Get(context.Background(), "inv-1", studentClaims("stu-2"))
	require.Error(t, err)

	_, err = svc.Get(context.Background(), "inv-1", adminClaims())
	require.NoError(t, err)
}

func TestInvoiceListPinsStudentsToOwnRows(t *testing.T) {
	ledger := &fakeInvoiceLedger{listResult: []models.Invoice{}}
	svc := NewInvoiceService(ledger, &fakeAttemptLog{}, "Academy", nil)

	_, _, err := svc.List(context.Background(), models.InvoiceFilter{StudentID: "stu-other"}, studentClaims("stu-1"))
	require.NoError(t, err)
	require.Equal(t, "stu-1", ledger.listFilter.StudentID)

	_, _, err = svc.List(context.Background(), models.InvoiceFilter{StudentID: "stu-other"}, adminClaims())
	require.NoError(t, err)
	require.Equal(t, "stu-other", ledger.listFilter.StudentID)
}

func TestCreateAdhocInvoice(t *testing.T) {
	ledger := &fakeInvoiceLedger{}
	svc := NewInvoiceService(ledger, &fakeAttemptLog{}, "Academy", nil)

	invoice, err := svc.CreateAdhoc(context.Background(), &dto.CreateAdhocInvoiceRequest{
		StudentID:   "2f8a6f0e-9a1d-4c3b-8f6e-0b1c2d3e4f5a",
		Amount:      75000,
		Description: "Final exam fee",
		DueDate:     "2026-03-20",
	})
	require.NoError(t, err)
	require.Equal(t, models.InvoiceTypeAdhoc, invoice.Type)
	require.Equal(t, models.InvoiceStatusPending, invoice.Status)
	require.Equal(t, 2026, invoice.ReferenceYear)
	require.Equal(t, 3, invoice.ReferenceMonth)
	require.Equal(t, time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC), invoice.DueDate)
}

func TestCreateAdhocInvoiceRejectsNonPositiveAmount(t *testing.T) {
	svc := NewInvoiceService(&fakeInvoiceLedger{}, &fakeAttemptLog{}, "Academy", nil)

	_, err := svc.CreateAdhoc(context.Background(), &dto.CreateAdhocInvoiceRequest{
		StudentID:   "2f8a6f0e-9a1d-4c3b-8f6e-0b1c2d3e4f5a",
		Amount:      0,
		Description: "Free",
		DueDate:     "2026-03-20",
	})
	require.Error(t, err)
}

func TestReceiptRequiresPaidInvoice(t *testing.T) {
	paidAt := time.Date(2026, 2, 5, 10, 0, 0, 0, time.UTC)
	method := "gopay"
	paid := pendingInvoice("inv-1", "stu-1", 200000)
	paid.Status = models.InvoiceStatusPaid
	paid.PaymentDate = &paidAt
	paid.PaymentMethod = &method
	ledger := &fakeInvoiceLedger{invoices: map[string]*models.Invoice{
		"inv-1": paid,
		"inv-2": pendingInvoice("inv-2", "stu-1", 100000),
	}}
	svc := NewInvoiceService(ledger, &fakeAttemptLog{}, "Academy", nil)

	data, filename, err := svc.Receipt(context.Background(), "inv-1", studentClaims("stu-1"))
	require.NoError(t, err)
	require.Equal(t, "receipt-inv-1.pdf", filename)
	require.True(t, bytes.HasPrefix(data, []byte("%PDF")))

	_, _, err = svc.Receipt(context.Background(), "inv-2", studentClaims("stu-1"))
	require.Error(t, err)
}
