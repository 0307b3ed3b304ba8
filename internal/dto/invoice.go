package dto

// GenerateInvoicesRequest triggers a monthly generation run.
type GenerateInvoicesRequest struct {
	Year  int `json:"year" validate:"required,min=2000,max=2100"`
	Month int `json:"month" validate:"required,min=1,max=12"`
}

// CreateAdhocInvoiceRequest creates a one-off charge outside the
// recurring tuition cycle. The due date is an ISO date (YYYY-MM-DD).
type CreateAdhocInvoiceRequest struct {
	StudentID   string `json:"student_id" validate:"required"`
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	Description string `json:"description" validate:"required"`
	DueDate     string `json:"due_date" validate:"required,datetime=2006-01-02"`
}
