package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academy-billing-api/internal/dto"
	"github.com/noah-isme/academy-billing-api/internal/models"
	"github.com/noah-isme/academy-billing-api/internal/service"
	appErrors "github.com/noah-isme/academy-billing-api/pkg/errors"
	"github.com/noah-isme/academy-billing-api/pkg/response"
)

// InvoiceHandler exposes invoice endpoints.
type InvoiceHandler struct {
	invoices  *service.InvoiceService
	generator *service.GeneratorService
}

// NewInvoiceHandler constructs InvoiceHandler.
func NewInvoiceHandler(invoices *service.InvoiceService, generator *service.GeneratorService) *InvoiceHandler {
	return &InvoiceHandler{invoices: invoices, generator: generator}
}

// List godoc
// @Summary List invoices
// @Tags Invoices
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param status query string false "Filter by status"
// @Param type query string false "Filter by type"
// @Param year query int false "Reference year"
// @Param month query int false "Reference month"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /invoices [get]
func (h *InvoiceHandler) List(c *gin.Context) {
	var filter models.InvoiceFilter
	filter.StudentID = c.Query("studentId")
	filter.EnrollmentID = c.Query("enrollmentId")
	filter.Status = models.InvoiceStatus(strings.ToUpper(c.Query("status")))
	filter.Type = models.InvoiceType(strings.ToUpper(c.Query("type")))
	if year, err := strconv.Atoi(c.Query("year")); err == nil {
		filter.ReferenceYear = year
	}
	if month, err := strconv.Atoi(c.Query("month")); err == nil {
		filter.ReferenceMonth = month
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	invoices, pagination, err := h.invoices.List(c.Request.Context(), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, invoices, pagination)
}

// Get godoc
// @Summary Get invoice by ID
// @Tags Invoices
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 200 {object} response.Envelope
// @Router /invoices/{id} [get]
func (h *InvoiceHandler) Get(c *gin.Context) {
	invoice, err := h.invoices.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, invoice, nil)
}

// Generate godoc
// @Summary Generate recurring invoices for a reference month
// @Tags Invoices
// @Accept json
// @Produce json
// @Param payload body dto.GenerateInvoicesRequest true "Reference period"
// @Success 200 {object} response.Envelope
// @Router /invoices/generate [post]
func (h *InvoiceHandler) Generate(c *gin.Context) {
	var req dto.GenerateInvoicesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.generator.Generate(c.Request.Context(), req.Year, req.Month)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// CreateAdhoc godoc
// @Summary Create an ad-hoc invoice
// @Tags Invoices
// @Accept json
// @Produce json
// @Param payload body dto.CreateAdhocInvoiceRequest true "Invoice payload"
// @Success 201 {object} response.Envelope
// @Router /invoices [post]
func (h *InvoiceHandler) CreateAdhoc(c *gin.Context) {
	var req dto.CreateAdhocInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	invoice, err := h.invoices.CreateAdhoc(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, invoice)
}

// Attempts godoc
// @Summary List payment attempts of an invoice
// @Tags Invoices
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 200 {object} response.Envelope
// @Router /invoices/{id}/attempts [get]
func (h *InvoiceHandler) Attempts(c *gin.Context) {
	attempts, err := h.invoices.ListAttempts(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, attempts, nil)
}

// Receipt godoc
// @Summary Download the PDF receipt of a paid invoice
// @Tags Invoices
// @Produce application/pdf
// @Param id path string true "Invoice ID"
// @Success 200 {file} binary
// @Router /invoices/{id}/receipt [get]
func (h *InvoiceHandler) Receipt(c *gin.Context) {
	data, filename, err := h.invoices.Receipt(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/pdf", data)
}
