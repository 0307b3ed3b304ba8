package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academy-billing-api/internal/service"
	appErrors "github.com/noah-isme/academy-billing-api/pkg/errors"
	"github.com/noah-isme/academy-billing-api/pkg/response"
)

// FinanceHandler exposes financial reporting endpoints.
type FinanceHandler struct {
	finance *service.FinanceService
}

// NewFinanceHandler constructs FinanceHandler.
func NewFinanceHandler(finance *service.FinanceService) *FinanceHandler {
	return &FinanceHandler{finance: finance}
}

func referencePeriod(c *gin.Context) (int, int, error) {
	year, err := strconv.Atoi(c.Query("year"))
	if err != nil {
		return 0, 0, appErrors.Clone(appErrors.ErrValidation, "year is required")
	}
	month, err := strconv.Atoi(c.Query("month"))
	if err != nil {
		return 0, 0, appErrors.Clone(appErrors.ErrValidation, "month is required")
	}
	return year, month, nil
}

// Summary godoc
// @Summary Monthly financial summary
// @Tags Finance
// @Produce json
// @Param year query int true "Reference year"
// @Param month query int true "Reference month"
// @Success 200 {object} response.Envelope
// @Router /finance/summary [get]
func (h *FinanceHandler) Summary(c *gin.Context) {
	year, month, err := referencePeriod(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	summary, err := h.finance.MonthlySummary(c.Request.Context(), year, month)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Export godoc
// @Summary Export a month's invoices as CSV
// @Tags Finance
// @Produce text/csv
// @Param year query int true "Reference year"
// @Param month query int true "Reference month"
// @Success 200 {file} binary
// @Router /finance/export [get]
func (h *FinanceHandler) Export(c *gin.Context) {
	year, month, err := referencePeriod(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	data, filename, err := h.finance.ExportMonthlyCSV(c.Request.Context(), year, month)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "text/csv", data)
}
