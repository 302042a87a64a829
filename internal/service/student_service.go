package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/student-records-api/internal/dto"
	"github.com/noah-isme/student-records-api/internal/models"
	"github.com/noah-isme/student-records-api/internal/repository"
	appErrors "github.com/noah-isme/student-records-api/pkg/errors"
)

type studentRepository interface {
	Save(ctx context.Context, student *models.Student) (*models.Student, error)
	FindByID(ctx context.Context, id int64) (*models.Student, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	FindByEmail(ctx context.Context, email string) (*models.Student, error)
	FindAll(ctx context.Context) ([]models.Student, error)
	FindByNameContainingIgnoreCase(ctx context.Context, substring string) ([]models.Student, error)
	FindByCourse(ctx context.Context, course string) ([]models.Student, error)
	FindByAgeBetween(ctx context.Context, minAge, maxAge int) ([]models.Student, error)
	ExistsByID(ctx context.Context, id int64) (bool, error)
	DeleteByID(ctx context.Context, id int64) error
}

// StudentService owns the business rules for student records: field
// validation, email uniqueness and timestamp bookkeeping.
type StudentService struct {
	repo      studentRepository
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
	now       func() time.Time
}

// NewStudentService constructs the student service. The validator is
// shared, not copied: the student rules and a JSON tag-name function are
// registered on it, so field errors from validate report JSON names
// afterwards. Pass nil to get a private validator.
func NewStudentService(repo studentRepository, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if err := dto.RegisterStudentRules(validate); err != nil {
		panic(err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{
		repo:      repo,
		validator: validate,
		logger:    logger,
		metrics:   metrics,
		now:       utcNow,
	}
}

// utcNow drops sub-microsecond precision so returned entities compare equal
// to what TIMESTAMPTZ stores and reads back.
func utcNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Create validates and persists a new student.
func (s *StudentService) Create(ctx context.Context, req dto.StudentRequest) (*models.Student, error) {
	if err := s.validate(req); err != nil {
		s.metrics.RecordStudentMutation("create", "invalid")
		return nil, err
	}
	exists, err := s.repo.ExistsByEmail(ctx, req.Email)
	if err != nil {
		return nil, s.storeFailure(err, "failed to validate email")
	}
	if exists {
		return nil, s.duplicateEmail("create", req.Email, 0)
	}

	now := s.now()
	created, err := s.repo.Save(ctx, &models.Student{
		Name:      req.Name,
		Email:     req.Email,
		Age:       req.Age,
		Course:    req.Course,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		// The unique index catches a concurrent create that passed the check above.
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, s.duplicateEmail("create", req.Email, 0)
		}
		return nil, s.storeFailure(err, "failed to create student")
	}

	s.metrics.RecordStudentMutation("create", "ok")
	s.logger.Info("student created", zap.Int64("student_id", created.ID), zap.String("email", created.Email))
	return created, nil
}

// GetByID returns the student or nil when no student has the id.
func (s *StudentService) GetByID(ctx context.Context, id int64) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.storeFailure(err, "failed to load student")
	}
	return student, nil
}

// List returns all students.
func (s *StudentService) List(ctx context.Context) ([]models.Student, error) {
	students, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, s.storeFailure(err, "failed to list students")
	}
	return students, nil
}

// Update overwrites the mutable fields of an existing student and refreshes
// its updated timestamp. Keeping the current email is never a conflict.
func (s *StudentService) Update(ctx context.Context, id int64, req dto.StudentRequest) (*models.Student, error) {
	if err := s.validate(req); err != nil {
		s.metrics.RecordStudentMutation("update", "invalid")
		return nil, err
	}
	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.storeFailure(err, "failed to load student")
	}
	if current == nil {
		s.metrics.RecordStudentMutation("update", "not_found")
		return nil, studentNotFound()
	}

	if req.Email != current.Email {
		exists, err := s.repo.ExistsByEmail(ctx, req.Email)
		if err != nil {
			return nil, s.storeFailure(err, "failed to validate email")
		}
		if exists {
			return nil, s.duplicateEmail("update", req.Email, id)
		}
	}

	student := *current
	student.Name = req.Name
	student.Email = req.Email
	student.Age = req.Age
	student.Course = req.Course
	student.UpdatedAt = s.now()
	if student.UpdatedAt.Before(current.UpdatedAt) {
		student.UpdatedAt = current.UpdatedAt
	}

	updated, err := s.repo.Save(ctx, &student)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateEmail):
			return nil, s.duplicateEmail("update", req.Email, id)
		case errors.Is(err, repository.ErrStudentNotFound):
			s.metrics.RecordStudentMutation("update", "not_found")
			return nil, studentNotFound()
		}
		return nil, s.storeFailure(err, "failed to update student")
	}

	s.metrics.RecordStudentMutation("update", "ok")
	s.logger.Info("student updated", zap.Int64("student_id", updated.ID))
	return updated, nil
}

// Delete removes the student permanently.
func (s *StudentService) Delete(ctx context.Context, id int64) error {
	exists, err := s.repo.ExistsByID(ctx, id)
	if err != nil {
		return s.storeFailure(err, "failed to load student")
	}
	if !exists {
		s.metrics.RecordStudentMutation("delete", "not_found")
		return studentNotFound()
	}
	if err := s.repo.DeleteByID(ctx, id); err != nil {
		return s.storeFailure(err, "failed to delete student")
	}

	s.metrics.RecordStudentMutation("delete", "ok")
	s.logger.Info("student deleted", zap.Int64("student_id", id))
	return nil
}

// FindByName returns students whose name contains substring, ignoring case.
// An empty substring matches everyone.
func (s *StudentService) FindByName(ctx context.Context, substring string) ([]models.Student, error) {
	students, err := s.repo.FindByNameContainingIgnoreCase(ctx, substring)
	if err != nil {
		return nil, s.storeFailure(err, "failed to search students")
	}
	return students, nil
}

// FindByEmail returns the student with exactly this email, or nil.
func (s *StudentService) FindByEmail(ctx context.Context, email string) (*models.Student, error) {
	student, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, s.storeFailure(err, "failed to load student")
	}
	return student, nil
}

// FindByCourse returns students whose course matches exactly.
func (s *StudentService) FindByCourse(ctx context.Context, course string) ([]models.Student, error) {
	students, err := s.repo.FindByCourse(ctx, course)
	if err != nil {
		return nil, s.storeFailure(err, "failed to list students by course")
	}
	return students, nil
}

// FindByAgeRange returns students aged within [minAge, maxAge]. An inverted
// range yields an empty result.
func (s *StudentService) FindByAgeRange(ctx context.Context, minAge, maxAge int) ([]models.Student, error) {
	if minAge > maxAge {
		return []models.Student{}, nil
	}
	students, err := s.repo.FindByAgeBetween(ctx, minAge, maxAge)
	if err != nil {
		return nil, s.storeFailure(err, "failed to list students by age")
	}
	return students, nil
}

// ExistsByID reports whether a student with the id exists.
func (s *StudentService) ExistsByID(ctx context.Context, id int64) (bool, error) {
	exists, err := s.repo.ExistsByID(ctx, id)
	if err != nil {
		return false, s.storeFailure(err, "failed to check student")
	}
	return exists, nil
}

func (s *StudentService) validate(req dto.StudentRequest) error {
	if err := s.validator.Struct(req); err != nil {
		if details := dto.FieldErrors(err); details != nil {
			return appErrors.Validation("invalid student payload", details)
		}
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	return nil
}

func (s *StudentService) duplicateEmail(op, email string, id int64) error {
	s.metrics.RecordStudentMutation(op, "duplicate_email")
	s.logger.Warn("student email already in use", zap.String("op", op), zap.String("email", email), zap.Int64("student_id", id))
	return appErrors.Clone(appErrors.ErrDuplicateEmail, "student with email "+email+" already exists")
}

func (s *StudentService) storeFailure(err error, message string) error {
	s.logger.Error(message, zap.Error(err))
	return appErrors.StoreUnavailable(err, message)
}

func studentNotFound() error {
	return appErrors.Clone(appErrors.ErrNotFound, "student not found")
}
