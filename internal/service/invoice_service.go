package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/academy-billing-api/internal/dto"
	"github.com/noah-isme/academy-billing-api/internal/models"
	appErrors "github.com/noah-isme/academy-billing-api/pkg/errors"
	"github.com/noah-isme/academy-billing-api/pkg/export"
)

type invoiceStore interface {
	Create(ctx context.Context, invoice *models.Invoice) error
	FindByID(ctx context.Context, id string) (*models.Invoice, error)
	List(ctx context.Context, filter models.InvoiceFilter) ([]models.Invoice, int, error)
}

type attemptReader interface {
	ListByInvoice(ctx context.Context, invoiceID string) ([]models.PaymentAttempt, error)
}

// InvoiceService exposes the invoice ledger to clients: lookups,
// listings, ad-hoc charges and paid receipts. Students only ever see
// their own invoices; admins see everything.
type InvoiceService struct {
	invoices      invoiceStore
	attempts      attemptReader
	pdf           *export.PDFExporter
	validate      *validator.Validate
	logger        *zap.Logger
	receiptIssuer string
	now           func() time.Time
}

// NewInvoiceService constructs InvoiceService.
func NewInvoiceService(invoices invoiceStore, attempts attemptReader, receiptIssuer string, logger *zap.Logger) *InvoiceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InvoiceService{
		invoices:      invoices,
		attempts:      attempts,
		pdf:           export.NewPDFExporter(),
		validate:      validator.New(),
		logger:        logger,
		receiptIssuer: receiptIssuer,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Get returns a single invoice, enforcing ownership for students.
func (s *InvoiceService) Get(ctx context.Context, id string, claims *models.JWTClaims) (*models.Invoice, error) {
	invoice, err := s.invoices.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "invoice not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load invoice")
	}
	if claims.Role != models.RoleAdmin && invoice.StudentID != claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invoice belongs to another student")
	}
	return invoice, nil
}

// List returns invoices matching the filter. Students are pinned to
// their own rows regardless of what the filter asks for.
func (s *InvoiceService) List(ctx context.Context, filter models.InvoiceFilter, claims *models.JWTClaims) ([]models.Invoice, *models.Pagination, error) {
	if claims.Role != models.RoleAdmin {
		filter.StudentID = claims.UserID
	}
	invoices, total, err := s.invoices.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list invoices")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return invoices, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// CreateAdhoc records a one-off charge outside the recurring cycle,
// such as an exam fee or replacement materials.
func (s *InvoiceService) CreateAdhoc(ctx context.Context, req *dto.CreateAdhocInvoiceRequest) (*models.Invoice, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid invoice request")
	}
	dueDate, err := time.ParseInLocation("2006-01-02", req.DueDate, time.UTC)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid due date")
	}

	invoice := &models.Invoice{
		StudentID:      req.StudentID,
		Amount:         req.Amount,
		ReferenceYear:  dueDate.Year(),
		ReferenceMonth: int(dueDate.Month()),
		DueDay:         dueDate.Day(),
		DueDate:        dueDate,
		Status:         models.InvoiceStatusPending,
		Type:           models.InvoiceTypeAdhoc,
		Description:    req.Description,
	}
	if err := s.invoices.Create(ctx, invoice); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create invoice")
	}

	s.logger.Info("adhoc invoice created",
		zap.String("invoice_id", invoice.ID),
		zap.String("student_id", invoice.StudentID),
		zap.Int64("amount", invoice.Amount),
	)
	return invoice, nil
}

// ListAttempts returns the decline and failure history of an invoice.
func (s *InvoiceService) ListAttempts(ctx context.Context, invoiceID string, claims *models.JWTClaims) ([]models.PaymentAttempt, error) {
	if _, err := s.Get(ctx, invoiceID, claims); err != nil {
		return nil, err
	}
	attempts, err := s.attempts.ListByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payment attempts")
	}
	return attempts, nil
}

// Receipt renders a PDF receipt for a paid invoice.
func (s *InvoiceService) Receipt(ctx context.Context, invoiceID string, claims *models.JWTClaims) ([]byte, string, error) {
	invoice, err := s.Get(ctx, invoiceID, claims)
	if err != nil {
		return nil, "", err
	}
	if invoice.Status != models.InvoiceStatusPaid {
		return nil, "", appErrors.Clone(appErrors.ErrPreconditionFailed, "receipt available for paid invoices only")
	}

	paymentDate := ""
	if invoice.PaymentDate != nil {
		paymentDate = invoice.PaymentDate.Format("2006-01-02 15:04")
	}
	paymentMethod := ""
	if invoice.PaymentMethod != nil {
		paymentMethod = *invoice.PaymentMethod
	}
	dataset := export.Dataset{
		Headers: []string{"Field", "Value"},
		Rows: []map[string]string{
			{"Field": "Invoice", "Value": invoice.ID},
			{"Field": "Student", "Value": invoice.StudentID},
			{"Field": "Description", "Value": invoice.Description},
			{"Field": "Amount", "Value": strconv.FormatInt(invoice.Amount, 10)},
			{"Field": "Paid At", "Value": paymentDate},
			{"Field": "Method", "Value": paymentMethod},
			{"Field": "Issued By", "Value": s.receiptIssuer},
		},
	}
	data, err := s.pdf.Render(dataset, fmt.Sprintf("Payment Receipt %s", invoice.ID))
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render receipt")
	}
	return data, fmt.Sprintf("receipt-%s.pdf", invoice.ID), nil
}
