package models

import "time"

// InvoiceStatus represents the persisted lifecycle of an invoice.
// PENDING is the initial state, PAID is terminal; there is no stored
// overdue state, overdue is derived from due_date at read time.
type InvoiceStatus string

const (
	InvoiceStatusPending InvoiceStatus = "PENDING"
	InvoiceStatusPaid    InvoiceStatus = "PAID"
)

// InvoiceType distinguishes recurring tuition charges from ad-hoc ones.
type InvoiceType string

const (
	InvoiceTypeTuition InvoiceType = "TUITION"
	InvoiceTypeAdhoc   InvoiceType = "ADHOC"
)

// Invoice is a single billable charge tied to a student. Amounts are
// whole rupiah, matching the provider's gross amount unit.
type Invoice struct {
	ID                string        `db:"id" json:"id"`
	StudentID         string        `db:"student_id" json:"student_id"`
	EnrollmentID      *string       `db:"enrollment_id" json:"enrollment_id,omitempty"`
	Amount            int64         `db:"amount" json:"amount"`
	ReferenceYear     int           `db:"reference_year" json:"reference_year"`
	ReferenceMonth    int           `db:"reference_month" json:"reference_month"`
	DueDay            int           `db:"due_day" json:"due_day"`
	DueDate           time.Time     `db:"due_date" json:"due_date"`
	Status            InvoiceStatus `db:"status" json:"status"`
	Type              InvoiceType   `db:"type" json:"type"`
	Description       string        `db:"description" json:"description"`
	PaymentDate       *time.Time    `db:"payment_date" json:"payment_date,omitempty"`
	PaymentMethod     *string       `db:"payment_method" json:"payment_method,omitempty"`
	ExternalPaymentID *string       `db:"external_payment_id" json:"external_payment_id,omitempty"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time     `db:"updated_at" json:"updated_at"`
}

// Overdue reports whether the invoice is pending past its due date.
func (i *Invoice) Overdue(now time.Time) bool {
	return i.Status == InvoiceStatusPending && i.DueDate.Before(now)
}

// InvoiceFilter provides filters for listing invoices.
type InvoiceFilter struct {
	StudentID      string
	EnrollmentID   string
	Status         InvoiceStatus
	Type           InvoiceType
	ReferenceYear  int
	ReferenceMonth int
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}

// GenerationResult summarises a monthly generation run.
type GenerationResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// MonthlySummary aggregates invoice amounts for a reference month,
// partitioned into paid, pending and overdue at query time.
type MonthlySummary struct {
	ReferenceYear  int   `db:"reference_year" json:"reference_year"`
	ReferenceMonth int   `db:"reference_month" json:"reference_month"`
	TotalPaid      int64 `db:"total_paid" json:"total_paid"`
	TotalPending   int64 `db:"total_pending" json:"total_pending"`
	TotalOverdue   int64 `db:"total_overdue" json:"total_overdue"`
	CountPaid      int   `db:"count_paid" json:"count_paid"`
	CountPending   int   `db:"count_pending" json:"count_pending"`
	CountOverdue   int   `db:"count_overdue" json:"count_overdue"`
}
