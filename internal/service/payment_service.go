package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/academy-billing-api/internal/dto"
	"github.com/noah-isme/academy-billing-api/internal/gateway"
	"github.com/noah-isme/academy-billing-api/internal/models"
	appErrors "github.com/noah-isme/academy-billing-api/pkg/errors"
)

type paymentInvoiceStore interface {
	FindByID(ctx context.Context, id string) (*models.Invoice, error)
	MarkPaid(ctx context.Context, id, providerPaymentID, method string, paidAt time.Time) (bool, error)
}

type attemptWriter interface {
	Create(ctx context.Context, attempt *models.PaymentAttempt) error
}

// PaymentService drives both payment paths: hosted checkout sessions
// and direct server-to-server charges. The provider's answer is the
// only thing that can move an invoice to paid, and only through the
// conditional MarkPaid update, so concurrent confirmations collapse
// to a single effective transition.
type PaymentService struct {
	invoices paymentInvoiceStore
	attempts attemptWriter
	provider gateway.Client
	cache    *CacheService
	metrics  *MetricsService
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
}

// NewPaymentService constructs PaymentService.
func NewPaymentService(invoices paymentInvoiceStore, attempts attemptWriter, provider gateway.Client, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *PaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		invoices: invoices,
		attempts: attempts,
		provider: provider,
		cache:    cache,
		metrics:  metrics,
		validate: validator.New(),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Checkout creates a hosted-checkout session for a pending invoice.
// The session's order ID is the invoice ID, which is how the later
// webhook notification finds its way back.
func (s *PaymentService) Checkout(ctx context.Context, invoiceID string, claims *models.JWTClaims) (*dto.CheckoutResponse, error) {
	invoice, err := s.loadPayable(ctx, invoiceID, claims)
	if err != nil {
		return nil, err
	}

	session, err := s.provider.CreateCheckout(ctx, gateway.CheckoutRequest{
		OrderID:       invoice.ID,
		Amount:        invoice.Amount,
		Description:   invoice.Description,
		CustomerName:  claims.FullName,
		CustomerEmail: claims.Email,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrProvider.Code, appErrors.ErrProvider.Status, "failed to create checkout session")
	}

	s.logger.Info("checkout session created",
		zap.String("invoice_id", invoice.ID),
		zap.Int64("amount", invoice.Amount),
	)
	return &dto.CheckoutResponse{
		InvoiceID:   invoice.ID,
		Token:       session.Token,
		RedirectURL: session.RedirectURL,
	}, nil
}

// PayDirect charges the invoice synchronously. Approval confirms the
// invoice in the same request; a decline is recorded as an attempt
// and leaves the invoice pending and payable.
func (s *PaymentService) PayDirect(ctx context.Context, invoiceID string, claims *models.JWTClaims, req *dto.DirectPaymentRequest) (*dto.PaymentResultResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment request")
	}

	invoice, err := s.loadPayable(ctx, invoiceID, claims)
	if err != nil {
		return nil, err
	}

	tx, err := s.provider.Charge(ctx, gateway.ChargeRequest{
		OrderID:     invoice.ID,
		Amount:      invoice.Amount,
		Description: invoice.Description,
		PaymentType: req.PaymentType,
		Bank:        req.Bank,
		CardToken:   req.CardToken,
	})
	if err != nil {
		s.recordAttempt(ctx, invoice.ID, models.PaymentAttemptFailed, nil, "", err.Error(), models.PaymentAttemptSourceDirect)
		s.logger.Error("charge failed",
			zap.String("invoice_id", invoice.ID),
			zap.Error(err),
		)
		// Provider trouble on this path is a payment outcome, not a
		// transport error: the invoice stays pending and payable, and
		// the client sees a generic failure without provider internals.
		return &dto.PaymentResultResponse{
			Status:  dto.PaymentResultFailed,
			Message: "payment provider unavailable",
		}, nil
	}

	switch tx.Status {
	case gateway.StatusApproved:
		if err := s.confirm(ctx, invoice, tx, models.PaymentAttemptSourceDirect); err != nil {
			return nil, err
		}
		providerID := tx.ProviderPaymentID
		return &dto.PaymentResultResponse{
			Status:            dto.PaymentResultSuccess,
			Message:           "payment approved",
			ProviderPaymentID: &providerID,
		}, nil
	case gateway.StatusPending:
		providerID := tx.ProviderPaymentID
		return &dto.PaymentResultResponse{
			Status:            dto.PaymentResultPending,
			Message:           "awaiting payment",
			ProviderPaymentID: &providerID,
			VirtualAccounts:   tx.VirtualAccounts,
		}, nil
	default:
		providerID := tx.ProviderPaymentID
		s.recordAttempt(ctx, invoice.ID, models.PaymentAttemptDeclined, &providerID, tx.RawStatus, tx.Message, models.PaymentAttemptSourceDirect)
		message := tx.Message
		if message == "" {
			message = "payment declined"
		}
		return &dto.PaymentResultResponse{
			Status:            dto.PaymentResultFailed,
			Message:           message,
			ProviderPaymentID: &providerID,
		}, nil
	}
}

// loadPayable fetches the invoice and enforces that the caller may pay
// it and that it is still pending.
func (s *PaymentService) loadPayable(ctx context.Context, invoiceID string, claims *models.JWTClaims) (*models.Invoice, error) {
	invoice, err := s.invoices.FindByID(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "invoice not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load invoice")
	}
	if claims.Role != models.RoleAdmin && invoice.StudentID != claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invoice belongs to another student")
	}
	if invoice.Status == models.InvoiceStatusPaid {
		return nil, appErrors.Clone(appErrors.ErrConflict, "invoice already paid")
	}
	if invoice.Amount <= 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "invoice amount must be positive")
	}
	return invoice, nil
}

// confirm applies the pending-to-paid transition. When the conditional
// update reports zero rows, another confirmation already landed; that
// is success, not an error.
func (s *PaymentService) confirm(ctx context.Context, invoice *models.Invoice, tx *gateway.Transaction, source string) error {
	applied, err := s.invoices.MarkPaid(ctx, invoice.ID, tx.ProviderPaymentID, tx.Method, s.now())
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to confirm payment")
	}
	if !applied {
		s.logger.Info("payment confirmation raced, invoice already paid",
			zap.String("invoice_id", invoice.ID),
			zap.String("provider_payment_id", tx.ProviderPaymentID),
		)
		return nil
	}

	s.metrics.RecordPaymentConfirmed(source)
	if s.cache.Enabled() {
		if err := s.cache.Invalidate(ctx, summaryCachePattern); err != nil {
			s.logger.Warn("summary cache invalidation failed", zap.Error(err))
		}
	}
	s.logger.Info("invoice paid",
		zap.String("invoice_id", invoice.ID),
		zap.String("provider_payment_id", tx.ProviderPaymentID),
		zap.String("method", tx.Method),
		zap.String("source", source),
	)
	return nil
}

func (s *PaymentService) recordAttempt(ctx context.Context, invoiceID string, status models.PaymentAttemptStatus, providerPaymentID *string, providerStatus, message, source string) {
	if s.attempts == nil {
		return
	}
	attempt := &models.PaymentAttempt{
		InvoiceID:         invoiceID,
		Status:            status,
		ProviderPaymentID: providerPaymentID,
		ProviderStatus:    providerStatus,
		Message:           message,
		Source:            source,
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		s.logger.Warn("failed to record payment attempt",
			zap.String("invoice_id", invoiceID),
			zap.Error(err),
		)
	}
}
