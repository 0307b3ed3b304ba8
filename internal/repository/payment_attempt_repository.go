package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academy-billing-api/internal/models"
)

// PaymentAttemptRepository persists the audit trail of declined and
// failed charges. Rows are append-only.
type PaymentAttemptRepository struct {
	db *sqlx.DB
}

// NewPaymentAttemptRepository constructs the repository.
func NewPaymentAttemptRepository(db *sqlx.DB) *PaymentAttemptRepository {
	return &PaymentAttemptRepository{db: db}
}

// Create appends an attempt record.
func (r *PaymentAttemptRepository) Create(ctx context.Context, attempt *models.PaymentAttempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO payment_attempts (id, invoice_id, status, provider_payment_id, provider_status, message, source, created_at)
        VALUES (:id, :invoice_id, :status, :provider_payment_id, :provider_status, :message, :source, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, attempt); err != nil {
		return fmt.Errorf("create payment attempt: %w", err)
	}
	return nil
}

// ListByInvoice returns attempts for an invoice, newest first.
func (r *PaymentAttemptRepository) ListByInvoice(ctx context.Context, invoiceID string) ([]models.PaymentAttempt, error) {
	const query = `SELECT id, invoice_id, status, provider_payment_id, provider_status, message, source, created_at
        FROM payment_attempts WHERE invoice_id = $1 ORDER BY created_at DESC`
	var attempts []models.PaymentAttempt
	if err := r.db.SelectContext(ctx, &attempts, query, invoiceID); err != nil {
		return nil, fmt.Errorf("list payment attempts: %w", err)
	}
	return attempts, nil
}
