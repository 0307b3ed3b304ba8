package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-billing-api/internal/dto"
	"github.com/noah-isme/academy-billing-api/internal/models"
)

type fakeEnrollmentStore struct {
	enrollments map[string]*models.Enrollment
	listFilter  models.EnrollmentFilter
	statusSet   map[string]models.EnrollmentStatus
}

func (f *fakeEnrollmentStore) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = "enr-generated"
	}
	if f.enrollments == nil {
		f.enrollments = map[string]*models.Enrollment{}
	}
	f.enrollments[enrollment.ID] = enrollment
	return nil
}

func (f *fakeEnrollmentStore) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, ok := f.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *enrollment
	return &clone, nil
}

func (f *fakeEnrollmentStore) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	f.listFilter = filter
	return nil, 0, nil
}

func (f *fakeEnrollmentStore) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	if f.statusSet == nil {
		f.statusSet = map[string]models.EnrollmentStatus{}
	}
	f.statusSet[id] = status
	if enrollment, ok := f.enrollments[id]; ok {
		enrollment.Status = status
	}
	return nil
}

func TestEnrollmentCreate(t *testing.T) {
	store := &fakeEnrollmentStore{}
	svc := NewEnrollmentService(store, nil)

	enrollment, err := svc.Create(context.Background(), &dto.CreateEnrollmentRequest{
		StudentID:      "2f8a6f0e-9a1d-4c3b-8f6e-0b1c2d3e4f5a",
		ClassID:        "7c1b9a2d-3e4f-4a5b-8c6d-9e0f1a2b3c4d",
		BaseMonthlyFee: 250000,
		DiscountAmount: 50000,
		DueDay:         10,
	})
	require.NoError(t, err)
	require.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	require.EqualValues(t, 200000, enrollment.NetAmount())
}

func TestEnrollmentCreateRejectsDiscountAboveFee(t *testing.T) {
	svc := NewEnrollmentService(&fakeEnrollmentStore{}, nil)

	_, err := svc.Create(context.Background(), &dto.CreateEnrollmentRequest{
		StudentID:      "2f8a6f0e-9a1d-4c3b-8f6e-0b1c2d3e4f5a",
		ClassID:        "7c1b9a2d-3e4f-4a5b-8c6d-9e0f1a2b3c4d",
		BaseMonthlyFee: 100000,
		DiscountAmount: 150000,
		DueDay:         10,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "discount")
}

func TestEnrollmentListPinsStudents(t *testing.T) {
	store := &fakeEnrollmentStore{}
	svc := NewEnrollmentService(store, nil)

	_, _, err := svc.List(context.Background(), models.EnrollmentFilter{StudentID: "someone-else"}, studentClaims("stu-1"))
	require.NoError(t, err)
	require.Equal(t, "stu-1", store.listFilter.StudentID)
}

func TestEnrollmentDeactivateIsIdempotent(t *testing.T) {
	store := &fakeEnrollmentStore{enrollments: map[string]*models.Enrollment{
		"enr-1": {ID: "enr-1", StudentID: "stu-1", Status: models.EnrollmentStatusActive},
	}}
	svc := NewEnrollmentService(store, nil)

	enrollment, err := svc.Deactivate(context.Background(), "enr-1")
	require.NoError(t, err)
	require.Equal(t, models.EnrollmentStatusInactive, enrollment.Status)

	enrollment, err = svc.Deactivate(context.Background(), "enr-1")
	require.NoError(t, err)
	require.Equal(t, models.EnrollmentStatusInactive, enrollment.Status)
}
