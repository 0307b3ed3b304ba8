package dto

// CreateEnrollmentRequest registers a billing contract for a student.
type CreateEnrollmentRequest struct {
	StudentID      string  `json:"student_id" validate:"required,uuid"`
	ClassID        string  `json:"class_id" validate:"required,uuid"`
	BaseMonthlyFee int64   `json:"base_monthly_fee" validate:"required,gt=0"`
	DiscountAmount int64   `json:"discount_amount" validate:"gte=0"`
	DiscountReason *string `json:"discount_reason,omitempty"`
	DueDay         int     `json:"due_day" validate:"required,min=1,max=31"`
}
