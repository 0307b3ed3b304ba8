package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/academy-billing-api/internal/models"
)

// uniqueViolation is the Postgres error code raised when two
// generation runs race on the same (enrollment, year, month) slot.
const uniqueViolation = "23505"

// InvoiceRepository handles persistence of invoices. Status and
// payment fields are mutated exclusively through MarkPaid; inserts
// never touch existing rows.
type InvoiceRepository struct {
	db *sqlx.DB
}

// NewInvoiceRepository constructs the repository.
func NewInvoiceRepository(db *sqlx.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

const invoiceColumns = `id, student_id, enrollment_id, amount, reference_year, reference_month, due_day, due_date,
        status, type, description, payment_date, payment_method, external_payment_id, created_at, updated_at`

// Create persists a new invoice record.
func (r *InvoiceRepository) Create(ctx context.Context, invoice *models.Invoice) error {
	now := time.Now().UTC()
	if invoice.ID == "" {
		invoice.ID = uuid.NewString()
	}
	if invoice.Status == "" {
		invoice.Status = models.InvoiceStatusPending
	}
	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = now
	}
	invoice.UpdatedAt = now

	const query = `INSERT INTO invoices (id, student_id, enrollment_id, amount, reference_year, reference_month,
        due_day, due_date, status, type, description, payment_date, payment_method, external_payment_id, created_at, updated_at)
        VALUES (:id, :student_id, :enrollment_id, :amount, :reference_year, :reference_month,
        :due_day, :due_date, :status, :type, :description, :payment_date, :payment_method, :external_payment_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, invoice); err != nil {
		return fmt.Errorf("create invoice: %w", err)
	}
	return nil
}

// IsUniqueViolation reports whether err is the duplicate-slot error
// from the partial unique index on recurring invoices.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	return false
}

// FindByID returns an invoice by its ID.
func (r *InvoiceRepository) FindByID(ctx context.Context, id string) (*models.Invoice, error) {
	query := fmt.Sprintf(`SELECT %s FROM invoices WHERE id = $1`, invoiceColumns)
	var invoice models.Invoice
	if err := r.db.GetContext(ctx, &invoice, query, id); err != nil {
		return nil, err
	}
	return &invoice, nil
}

// ExistsForPeriod checks whether a recurring invoice already exists
// for the enrollment in the reference month.
func (r *InvoiceRepository) ExistsForPeriod(ctx context.Context, enrollmentID string, year, month int) (bool, error) {
	const query = `SELECT 1 FROM invoices WHERE enrollment_id = $1 AND reference_year = $2 AND reference_month = $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, enrollmentID, year, month); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check invoice period: %w", err)
	}
	return true, nil
}

// MarkPaid applies the pending to paid transition as a single
// conditional update. It returns false when the invoice was not
// pending anymore, which callers treat as "already paid". Status and
// payment fields change together or not at all.
func (r *InvoiceRepository) MarkPaid(ctx context.Context, id, providerPaymentID, method string, paidAt time.Time) (bool, error) {
	const query = `UPDATE invoices
        SET status = $2, payment_date = $3, payment_method = $4, external_payment_id = $5, updated_at = $6
        WHERE id = $1 AND status = $7`
	res, err := r.db.ExecContext(ctx, query, id, models.InvoiceStatusPaid, paidAt, method, providerPaymentID, time.Now().UTC(), models.InvoiceStatusPending)
	if err != nil {
		return false, fmt.Errorf("mark invoice paid: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark invoice paid result: %w", err)
	}
	return affected == 1, nil
}

// List returns invoices filtered by the provided criteria.
func (r *InvoiceRepository) List(ctx context.Context, filter models.InvoiceFilter) ([]models.Invoice, int, error) {
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.EnrollmentID != "" {
		conditions = append(conditions, fmt.Sprintf("enrollment_id = $%d", len(args)+1))
		args = append(args, filter.EnrollmentID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)+1))
		args = append(args, filter.Type)
	}
	if filter.ReferenceYear != 0 {
		conditions = append(conditions, fmt.Sprintf("reference_year = $%d", len(args)+1))
		args = append(args, filter.ReferenceYear)
	}
	if filter.ReferenceMonth != 0 {
		conditions = append(conditions, fmt.Sprintf("reference_month = $%d", len(args)+1))
		args = append(args, filter.ReferenceMonth)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"due_date":   "due_date",
		"amount":     "amount",
		"created_at": "created_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "due_date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM invoices%s ORDER BY %s %s LIMIT %d OFFSET %d`,
		invoiceColumns, clause, orderBy, order, size, offset)

	var invoices []models.Invoice
	if err := r.db.SelectContext(ctx, &invoices, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list invoices: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM invoices" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count invoices: %w", err)
	}
	return invoices, total, nil
}

// SummarizeMonth aggregates amounts for a reference month partitioned
// into paid, pending and overdue. Overdue is computed against the
// caller's clock, never stored.
func (r *InvoiceRepository) SummarizeMonth(ctx context.Context, year, month int, now time.Time) (*models.MonthlySummary, error) {
	const query = `SELECT
        $1::int AS reference_year,
        $2::int AS reference_month,
        COALESCE(SUM(CASE WHEN status = 'PAID' THEN amount END), 0) AS total_paid,
        COALESCE(SUM(CASE WHEN status = 'PENDING' AND due_date >= $3 THEN amount END), 0) AS total_pending,
        COALESCE(SUM(CASE WHEN status = 'PENDING' AND due_date < $3 THEN amount END), 0) AS total_overdue,
        COUNT(*) FILTER (WHERE status = 'PAID') AS count_paid,
        COUNT(*) FILTER (WHERE status = 'PENDING' AND due_date >= $3) AS count_pending,
        COUNT(*) FILTER (WHERE status = 'PENDING' AND due_date < $3) AS count_overdue
        FROM invoices WHERE reference_year = $1 AND reference_month = $2`
	var summary models.MonthlySummary
	if err := r.db.GetContext(ctx, &summary, query, year, month, now); err != nil {
		return nil, fmt.Errorf("summarize month: %w", err)
	}
	return &summary, nil
}
