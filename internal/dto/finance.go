package dto

import "github.com/noah-isme/academy-billing-api/internal/models"

// MonthlySummaryResponse wraps the aggregated totals with the moment
// they were computed, since overdue is a function of the clock.
type MonthlySummaryResponse struct {
	models.MonthlySummary
	ComputedAt string `json:"computed_at"`
}
