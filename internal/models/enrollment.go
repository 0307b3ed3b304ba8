package models

import "time"

// EnrollmentStatus represents the lifecycle of a billing contract.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusActive   EnrollmentStatus = "ACTIVE"
	EnrollmentStatusInactive EnrollmentStatus = "INACTIVE"
)

// Enrollment is the billing contract between a student and a class:
// it fixes the monthly fee, discount and due day used to derive the
// student's recurring invoices.
type Enrollment struct {
	ID             string           `db:"id" json:"id"`
	StudentID      string           `db:"student_id" json:"student_id"`
	ClassID        string           `db:"class_id" json:"class_id"`
	Status         EnrollmentStatus `db:"status" json:"status"`
	BaseMonthlyFee int64            `db:"base_monthly_fee" json:"base_monthly_fee"`
	DiscountAmount int64            `db:"discount_amount" json:"discount_amount"`
	DiscountReason *string          `db:"discount_reason" json:"discount_reason,omitempty"`
	DueDay         int              `db:"due_day" json:"due_day"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
}

// NetAmount is the monthly charge after discount. A non-positive net
// amount means the enrollment is fully subsidised and never invoiced.
func (e *Enrollment) NetAmount() int64 {
	return e.BaseMonthlyFee - e.DiscountAmount
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	ClassID   string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
