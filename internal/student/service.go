package student

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"rollbook/internal/apperr"
	"rollbook/internal/model"
	"rollbook/internal/validation"
)

// Store is the persistence the service needs.
type Store interface {
	CreateStudent(ctx context.Context, st model.Student) (model.Student, error)
	GetStudent(ctx context.Context, ownerID, id string) (model.Student, error)
	DeleteStudent(ctx context.Context, ownerID, id string) error
}

// CreateInput carries the fields accepted when adding a student.
type CreateInput struct {
	Username string `validate:"required"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,password"`
	Grade    string `validate:"omitempty,grade"`
}

// Service manages an owner's students.
type Service struct {
	store      Store
	validate   *validator.Validate
	bcryptCost int
}

// NewService creates a service hashing credentials with bcryptCost.
func NewService(store Store, bcryptCost int) *Service {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{store: store, validate: validation.New(), bcryptCost: bcryptCost}
}

// Normalize trims and lower-cases a username or email.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Create adds a student to ownerID's roster.
func (s *Service) Create(ctx context.Context, ownerID string, in CreateInput) (model.Student, error) {
	in.Username = Normalize(in.Username)
	in.Email = Normalize(in.Email)
	in.Grade = strings.TrimSpace(in.Grade)
	if err := s.validate.Struct(in); err != nil {
		return model.Student{}, invalid(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return model.Student{}, fmt.Errorf("hash password: %w", err)
	}
	grade := model.Grade(in.Grade)
	if grade == "" {
		grade = model.DefaultGrade
	}
	return s.store.CreateStudent(ctx, model.Student{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hash),
		Grade:        grade,
		OwnerID:      ownerID,
	})
}

// Delete removes an owned student together with its attendance history.
func (s *Service) Delete(ctx context.Context, ownerID, id string) (model.Student, error) {
	st, err := s.store.GetStudent(ctx, ownerID, id)
	if err != nil {
		return model.Student{}, err
	}
	if err := s.store.DeleteStudent(ctx, ownerID, id); err != nil {
		return model.Student{}, err
	}
	return st, nil
}

// invalid turns the first validation failure into a message naming the field.
func invalid(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.New(apperr.ErrInvalidInput, "Invalid student")
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return apperr.Newf(apperr.ErrInvalidInput, "%s is required", field)
	case "email":
		return apperr.New(apperr.ErrInvalidInput, "email is invalid")
	case validation.PasswordTag:
		return apperr.Newf(apperr.ErrInvalidInput, "password must be at least %d characters", model.MinPasswordLen)
	case validation.GradeTag:
		return apperr.Newf(apperr.ErrInvalidInput, "grade must be one of Grade 7 to Grade 12")
	}
	return apperr.Newf(apperr.ErrInvalidInput, "%s is invalid", field)
}
