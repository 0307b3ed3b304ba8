package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/academy-billing-api/internal/dto"
	"github.com/noah-isme/academy-billing-api/internal/models"
	appErrors "github.com/noah-isme/academy-billing-api/pkg/errors"
	"github.com/noah-isme/academy-billing-api/pkg/export"
)

// summaryCachePattern matches every cached summary; payment
// confirmations invalidate the lot rather than computing which months
// a payment touches.
const summaryCachePattern = "billing:summary:*"

func summaryCacheKey(year, month int) string {
	return fmt.Sprintf("billing:summary:%04d-%02d", year, month)
}

type financeInvoiceReader interface {
	SummarizeMonth(ctx context.Context, year, month int, now time.Time) (*models.MonthlySummary, error)
	List(ctx context.Context, filter models.InvoiceFilter) ([]models.Invoice, int, error)
}

// FinanceService serves read-only financial views over the invoice
// ledger. Totals are aggregated in the database; nothing here mutates
// state.
type FinanceService struct {
	invoices financeInvoiceReader
	cache    *CacheService
	exporter *export.CSVExporter
	logger   *zap.Logger
	cacheTTL time.Duration
	now      func() time.Time
}

// NewFinanceService constructs FinanceService.
func NewFinanceService(invoices financeInvoiceReader, cache *CacheService, cacheTTL time.Duration, logger *zap.Logger) *FinanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FinanceService{
		invoices: invoices,
		cache:    cache,
		exporter: export.NewCSVExporter(),
		logger:   logger,
		cacheTTL: cacheTTL,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// MonthlySummary returns paid, pending and overdue totals for the
// reference month. Overdue depends on the clock, so cached entries
// carry the moment they were computed and expire on a short TTL;
// payment confirmations invalidate them eagerly.
func (s *FinanceService) MonthlySummary(ctx context.Context, year, month int) (*dto.MonthlySummaryResponse, error) {
	if year < 2000 || year > 2100 || month < 1 || month > 12 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid reference period")
	}

	key := summaryCacheKey(year, month)
	var cached dto.MonthlySummaryResponse
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return &cached, nil
	}

	now := s.now()
	summary, err := s.invoices.SummarizeMonth(ctx, year, month, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarize month")
	}

	response := &dto.MonthlySummaryResponse{
		MonthlySummary: *summary,
		ComputedAt:     now.Format(time.RFC3339),
	}
	if err := s.cache.Set(ctx, key, response, s.cacheTTL); err != nil {
		s.logger.Warn("failed to cache summary", zap.String("key", key), zap.Error(err))
	}
	return response, nil
}

// ExportMonthlyCSV renders every invoice of the reference month as a
// CSV document and returns the bytes together with a filename.
func (s *FinanceService) ExportMonthlyCSV(ctx context.Context, year, month int) ([]byte, string, error) {
	if year < 2000 || year > 2100 || month < 1 || month > 12 {
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "invalid reference period")
	}

	now := s.now()
	headers := []string{"invoice_id", "student_id", "type", "amount", "due_date", "status", "payment_date", "payment_method"}
	dataset := export.Dataset{Headers: headers}

	page := 1
	for {
		invoices, total, err := s.invoices.List(ctx, models.InvoiceFilter{
			ReferenceYear:  year,
			ReferenceMonth: month,
			Page:           page,
			PageSize:       100,
			SortBy:         "due_date",
			SortOrder:      "ASC",
		})
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list invoices")
		}
		for i := range invoices {
			dataset.Rows = append(dataset.Rows, invoiceRow(&invoices[i], now))
		}
		if page*100 >= total || len(invoices) == 0 {
			break
		}
		page++
	}

	data, err := s.exporter.Render(dataset)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
	}
	filename := fmt.Sprintf("invoices-%04d-%02d.csv", year, month)
	return data, filename, nil
}

func invoiceRow(invoice *models.Invoice, now time.Time) map[string]string {
	status := string(invoice.Status)
	if invoice.Overdue(now) {
		status = "OVERDUE"
	}
	paymentDate := ""
	if invoice.PaymentDate != nil {
		paymentDate = invoice.PaymentDate.Format(time.RFC3339)
	}
	paymentMethod := ""
	if invoice.PaymentMethod != nil {
		paymentMethod = *invoice.PaymentMethod
	}
	return map[string]string{
		"invoice_id":     invoice.ID,
		"student_id":     invoice.StudentID,
		"type":           string(invoice.Type),
		"amount":         strconv.FormatInt(invoice.Amount, 10),
		"due_date":       invoice.DueDate.Format("2006-01-02"),
		"status":         status,
		"payment_date":   paymentDate,
		"payment_method": paymentMethod,
	}
}
