package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/academy-billing-api/internal/dto"
	"github.com/noah-isme/academy-billing-api/internal/models"
	appErrors "github.com/noah-isme/academy-billing-api/pkg/errors"
)

type enrollmentStore interface {
	Create(ctx context.Context, enrollment *models.Enrollment) error
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error)
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error
}

// EnrollmentService manages the ledger of billing contracts the
// generator derives invoices from. Deactivating a contract stops
// future invoices; it never touches invoices already issued.
type EnrollmentService struct {
	enrollments enrollmentStore
	validate    *validator.Validate
	logger      *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(enrollments enrollmentStore, logger *zap.Logger) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{enrollments: enrollments, validate: validator.New(), logger: logger}
}

// Create registers a new billing contract.
func (s *EnrollmentService) Create(ctx context.Context, req *dto.CreateEnrollmentRequest) (*models.Enrollment, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment request")
	}
	if req.DiscountAmount > req.BaseMonthlyFee {
		return nil, appErrors.Clone(appErrors.ErrValidation, "discount exceeds base fee")
	}

	enrollment := &models.Enrollment{
		StudentID:      req.StudentID,
		ClassID:        req.ClassID,
		Status:         models.EnrollmentStatusActive,
		BaseMonthlyFee: req.BaseMonthlyFee,
		DiscountAmount: req.DiscountAmount,
		DiscountReason: req.DiscountReason,
		DueDay:         req.DueDay,
	}
	if err := s.enrollments.Create(ctx, enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	s.logger.Info("enrollment created",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("student_id", enrollment.StudentID),
		zap.Int64("net_amount", enrollment.NetAmount()),
	)
	return enrollment, nil
}

// Get returns an enrollment by ID. Students may only read their own.
func (s *EnrollmentService) Get(ctx context.Context, id string, claims *models.JWTClaims) (*models.Enrollment, error) {
	enrollment, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if claims.Role != models.RoleAdmin && enrollment.StudentID != claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "enrollment belongs to another student")
	}
	return enrollment, nil
}

// List returns enrollments matching the filter. Students are pinned
// to their own rows.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter, claims *models.JWTClaims) ([]models.Enrollment, *models.Pagination, error) {
	if claims.Role != models.RoleAdmin {
		filter.StudentID = claims.UserID
	}
	enrollments, total, err := s.enrollments.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return enrollments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Deactivate marks the contract inactive so future generation runs
// skip it.
func (s *EnrollmentService) Deactivate(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Status == models.EnrollmentStatusInactive {
		return enrollment, nil
	}
	if err := s.enrollments.UpdateStatus(ctx, id, models.EnrollmentStatusInactive); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate enrollment")
	}
	enrollment.Status = models.EnrollmentStatusInactive
	s.logger.Info("enrollment deactivated", zap.String("enrollment_id", id))
	return enrollment, nil
}
