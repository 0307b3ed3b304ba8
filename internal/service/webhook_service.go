package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/academy-billing-api/internal/dto"
	"github.com/noah-isme/academy-billing-api/internal/gateway"
	"github.com/noah-isme/academy-billing-api/internal/models"
	appErrors "github.com/noah-isme/academy-billing-api/pkg/errors"
)

// Webhook outcomes reported to metrics.
const (
	webhookOutcomeConfirmed      = "confirmed"
	webhookOutcomeDuplicate      = "duplicate"
	webhookOutcomeDeclined       = "declined"
	webhookOutcomePending        = "pending"
	webhookOutcomeIgnored        = "ignored"
	webhookOutcomeOrphaned       = "orphaned"
	webhookOutcomeAmountMismatch = "amount_mismatch"
	webhookOutcomeUnknown        = "unknown"
)

// WebhookService reconciles inbound provider notifications. The
// notification body is treated as a hint only: the transaction is
// re-fetched from the provider and every decision is made from that
// canonical answer, so a forged or stale payload can never flip an
// invoice. Processing the same notification twice converges on the
// same final state.
type WebhookService struct {
	invoices paymentInvoiceStore
	attempts attemptWriter
	provider gateway.Client
	cache    *CacheService
	metrics  *MetricsService
	logger   *zap.Logger
	now      func() time.Time
}

// NewWebhookService constructs WebhookService.
func NewWebhookService(invoices paymentInvoiceStore, attempts attemptWriter, provider gateway.Client, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *WebhookService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookService{
		invoices: invoices,
		attempts: attempts,
		provider: provider,
		cache:    cache,
		metrics:  metrics,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Handle processes one notification. It returns true when the
// notification is consumed and the provider should stop retrying,
// including anomalies we can only log. It returns an error, and false,
// only for transient failures where a retry can succeed.
func (s *WebhookService) Handle(ctx context.Context, notification dto.PaymentNotification) (bool, error) {
	if !notification.IsPaymentEvent() {
		s.metrics.RecordWebhookEvent(webhookOutcomeIgnored)
		s.logger.Debug("ignoring non-payment notification",
			zap.String("event_name", notification.EventName),
		)
		return true, nil
	}

	// Never act on the payload's own status or amount.
	tx, err := s.provider.GetTransaction(ctx, notification.TransactionID)
	if err != nil {
		s.logger.Error("failed to verify transaction with provider",
			zap.String("transaction_id", notification.TransactionID),
			zap.Error(err),
		)
		return false, appErrors.Wrap(err, appErrors.ErrProvider.Code, appErrors.ErrProvider.Status, "transaction verification failed")
	}

	invoiceID := tx.ExternalReference
	invoice, err := s.invoices.FindByID(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.RecordWebhookEvent(webhookOutcomeOrphaned)
			s.logger.Warn("notification references unknown invoice",
				zap.String("invoice_id", invoiceID),
				zap.String("transaction_id", notification.TransactionID),
			)
			return true, nil
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load invoice")
	}

	if tx.GrossAmount != invoice.Amount {
		s.metrics.RecordWebhookEvent(webhookOutcomeAmountMismatch)
		s.logger.Warn("transaction amount does not match invoice",
			zap.String("invoice_id", invoice.ID),
			zap.Int64("invoice_amount", invoice.Amount),
			zap.Int64("transaction_amount", tx.GrossAmount),
		)
		return true, nil
	}

	switch tx.Status {
	case gateway.StatusApproved:
		applied, err := s.invoices.MarkPaid(ctx, invoice.ID, tx.ProviderPaymentID, tx.Method, s.now())
		if err != nil {
			return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to confirm payment")
		}
		if !applied {
			s.metrics.RecordWebhookEvent(webhookOutcomeDuplicate)
			s.logger.Info("invoice already paid, notification is a duplicate",
				zap.String("invoice_id", invoice.ID),
			)
			return true, nil
		}
		s.metrics.RecordWebhookEvent(webhookOutcomeConfirmed)
		s.metrics.RecordPaymentConfirmed(models.PaymentAttemptSourceWebhook)
		if s.cache.Enabled() {
			if err := s.cache.Invalidate(ctx, summaryCachePattern); err != nil {
				s.logger.Warn("summary cache invalidation failed", zap.Error(err))
			}
		}
		s.logger.Info("invoice paid via webhook",
			zap.String("invoice_id", invoice.ID),
			zap.String("provider_payment_id", tx.ProviderPaymentID),
			zap.String("method", tx.Method),
		)
		return true, nil
	case gateway.StatusDeclined:
		s.recordDecline(ctx, invoice.ID, tx)
		s.metrics.RecordWebhookEvent(webhookOutcomeDeclined)
		return true, nil
	case gateway.StatusPending:
		s.metrics.RecordWebhookEvent(webhookOutcomePending)
		return true, nil
	default:
		s.metrics.RecordWebhookEvent(webhookOutcomeUnknown)
		s.logger.Warn("unrecognized transaction status",
			zap.String("invoice_id", invoice.ID),
			zap.String("raw_status", tx.RawStatus),
		)
		return true, nil
	}
}

func (s *WebhookService) recordDecline(ctx context.Context, invoiceID string, tx *gateway.Transaction) {
	if s.attempts == nil {
		return
	}
	providerID := tx.ProviderPaymentID
	attempt := &models.PaymentAttempt{
		InvoiceID:         invoiceID,
		Status:            models.PaymentAttemptDeclined,
		ProviderPaymentID: &providerID,
		ProviderStatus:    tx.RawStatus,
		Message:           tx.Message,
		Source:            models.PaymentAttemptSourceWebhook,
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		s.logger.Warn("failed to record declined attempt",
			zap.String("invoice_id", invoiceID),
			zap.Error(err),
		)
	}
}
