package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/academy-billing-api/internal/models"
	"github.com/noah-isme/academy-billing-api/internal/repository"
	appErrors "github.com/noah-isme/academy-billing-api/pkg/errors"
)

type billableEnrollmentReader interface {
	ListActiveBillable(ctx context.Context) ([]models.Enrollment, error)
}

type invoiceInserter interface {
	Create(ctx context.Context, invoice *models.Invoice) error
	ExistsForPeriod(ctx context.Context, enrollmentID string, year, month int) (bool, error)
}

// GeneratorService produces one recurring invoice per active
// enrollment per reference month. Runs are idempotent: re-running the
// same (year, month) re-derives the same skip/create decisions, so a
// crash mid-batch is safe to resume. The generator only ever inserts;
// it never mutates an existing invoice.
type GeneratorService struct {
	enrollments billableEnrollmentReader
	invoices    invoiceInserter
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewGeneratorService constructs GeneratorService.
func NewGeneratorService(enrollments billableEnrollmentReader, invoices invoiceInserter, metrics *MetricsService, logger *zap.Logger) *GeneratorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeneratorService{enrollments: enrollments, invoices: invoices, metrics: metrics, logger: logger}
}

// Generate creates the month's invoices and reports how many
// enrollments were invoiced versus skipped. An enrollment is skipped
// when its invoice already exists or its net amount is not positive.
func (s *GeneratorService) Generate(ctx context.Context, year, month int) (*models.GenerationResult, error) {
	if year < 2000 || year > 2100 || month < 1 || month > 12 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid reference period")
	}

	enrollments, err := s.enrollments.ListActiveBillable(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list active enrollments")
	}

	result := &models.GenerationResult{}
	for i := range enrollments {
		enrollment := &enrollments[i]

		amount := enrollment.NetAmount()
		if amount <= 0 {
			result.Skipped++
			continue
		}

		exists, err := s.invoices.ExistsForPeriod(ctx, enrollment.ID, year, month)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing invoice")
		}
		if exists {
			result.Skipped++
			continue
		}

		enrollmentID := enrollment.ID
		invoice := &models.Invoice{
			StudentID:      enrollment.StudentID,
			EnrollmentID:   &enrollmentID,
			Amount:         amount,
			ReferenceYear:  year,
			ReferenceMonth: month,
			DueDay:         enrollment.DueDay,
			DueDate:        DueDate(year, month, enrollment.DueDay),
			Status:         models.InvoiceStatusPending,
			Type:           models.InvoiceTypeTuition,
			Description:    fmt.Sprintf("Tuition %04d-%02d", year, month),
		}

		if err := s.invoices.Create(ctx, invoice); err != nil {
			// A concurrent run won the slot; same outcome as the
			// existence check above.
			if repository.IsUniqueViolation(err) {
				result.Skipped++
				continue
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create invoice")
		}
		result.Created++
	}

	s.metrics.RecordGeneration(result.Created, result.Skipped)
	s.logger.Info("invoice generation finished",
		zap.Int("year", year),
		zap.Int("month", month),
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

// DueDate resolves the billing due date for a reference month,
// clamping the contract due day to the month's last day (due day 31
// in February yields Feb 28, or Feb 29 in a leap year).
func DueDate(year, month, dueDay int) time.Time {
	lastDay := time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if dueDay > lastDay {
		dueDay = lastDay
	}
	if dueDay < 1 {
		dueDay = 1
	}
	return time.Date(year, time.Month(month), dueDay, 0, 0, 0, 0, time.UTC)
}
