package service

import (
	"context"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-billing-api/internal/models"
)

type fakeEnrollmentFeed struct {
	items []models.Enrollment
	err   error
}

func (f *fakeEnrollmentFeed) ListActiveBillable(ctx context.Context) ([]models.Enrollment, error) {
	return f.items, f.err
}

type fakeInvoiceSink struct {
	existing  map[string]bool
	created   []*models.Invoice
	createErr error
}

func (f *fakeInvoiceSink) ExistsForPeriod(ctx context.Context, enrollmentID string, year, month int) (bool, error) {
	return f.existing[enrollmentID], nil
}

func (f *fakeInvoiceSink) Create(ctx context.Context, invoice *models.Invoice) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, invoice)
	if f.existing == nil {
		f.existing = map[string]bool{}
	}
	f.existing[*invoice.EnrollmentID] = true
	return nil
}

func activeEnrollment(id string, fee, discount int64, dueDay int) models.Enrollment {
	return models.Enrollment{
		ID:             id,
		StudentID:      "stu-" + id,
		ClassID:        "class-1",
		Status:         models.EnrollmentStatusActive,
		BaseMonthlyFee: fee,
		DiscountAmount: discount,
		DueDay:         dueDay,
	}
}

func TestGeneratorCreatesInvoicesWithClampedDueDate(t *testing.T) {
	feed := &fakeEnrollmentFeed{items: []models.Enrollment{
		activeEnrollment("enr-1", 200000, 0, 10),
		activeEnrollment("enr-2", 250000, 50000, 31),
	}}
	sink := &fakeInvoiceSink{}
	svc := NewGeneratorService(feed, sink, nil, nil)

	result, err := svc.Generate(context.Background(), 2026, 2)
	require.NoError(t, err)
	require.Equal(t, 2, result.Created)
	require.Equal(t, 0, result.Skipped)
	require.Len(t, sink.created, 2)

	first := sink.created[0]
	require.Equal(t, "stu-enr-1", first.StudentID)
	require.EqualValues(t, 200000, first.Amount)
	require.Equal(t, models.InvoiceStatusPending, first.Status)
	require.Equal(t, models.InvoiceTypeTuition, first.Type)
	require.Equal(t, time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC), first.DueDate)

	second := sink.created[1]
	require.EqualValues(t, 200000, second.Amount)
	require.Equal(t, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), second.DueDate)
}

func TestGeneratorSkipsExistingAndFullySubsidised(t *testing.T) {
	feed := &fakeEnrollmentFeed{items: []models.Enrollment{
		activeEnrollment("enr-1", 200000, 0, 10),
		activeEnrollment("enr-2", 150000, 150000, 10),
		activeEnrollment("enr-3", 100000, 120000, 10),
	}}
	sink := &fakeInvoiceSink{existing: map[string]bool{"enr-1": true}}
	svc := NewGeneratorService(feed, sink, nil, nil)

	result, err := svc.Generate(context.Background(), 2026, 3)
	require.NoError(t, err)
	require.Equal(t, 0, result.Created)
	require.Equal(t, 3, result.Skipped)
	require.Empty(t, sink.created)
}

func TestGeneratorRerunIsIdempotent(t *testing.T) {
	feed := &fakeEnrollmentFeed{items: []models.Enrollment{
		activeEnrollment("enr-1", 200000, 0, 10),
		activeEnrollment("enr-2", 300000, 0, 15),
	}}
	sink := &fakeInvoiceSink{}
	svc := NewGeneratorService(feed, sink, nil, nil)

	first, err := svc.Generate(context.Background(), 2026, 4)
	require.NoError(t, err)
	require.Equal(t, 2, first.Created)

	second, err := svc.Generate(context.Background(), 2026, 4)
	require.NoError(t, err)
	require.Equal(t, 0, second.Created)
	require.Equal(t, 2, second.Skipped)
	require.Len(t, sink.created, 2)
}

func TestGeneratorTreatsDuplicateInsertAsSkip(t *testing.T) {
	feed := &fakeEnrollmentFeed{items: []models.Enrollment{
		activeEnrollment("enr-1", 200000, 0, 10),
	}}
	sink := &fakeInvoiceSink{createErr: &pq.Error{Code: "23505"}}
	svc := NewGeneratorService(feed, sink, nil, nil)

	result, err := svc.Generate(context.Background(), 2026, 5)
	require.NoError(t, err)
	require.Equal(t, 0, result.Created)
	require.Equal(t, 1, result.Skipped)
}

func TestGeneratorRejectsInvalidPeriod(t *testing.T) {
	svc := NewGeneratorService(&fakeEnrollmentFeed{}, &fakeInvoiceSink{}, nil, nil)

	_, err := svc.Generate(context.Background(), 2026, 13)
	require.Error(t, err)

	_, err = svc.Generate(context.Background(), 1999, 1)
	require.Error(t, err)
}

func TestDueDateClamping(t *testing.T) {
	cases := []struct {
		year, month, dueDay int
		want                time.Time
	}{
		{2026, 2, 31, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)},
		{2024, 2, 30, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)},
		{2026, 4, 31, time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC)},
		{2026, 1, 15, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, DueDate(tc.year, tc.month, tc.dueDay))
	}
}
