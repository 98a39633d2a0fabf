// Package account handles teacher signup, login and password resets.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"rollbook/internal/apperr"
	"rollbook/internal/auth"
	"rollbook/internal/mailer"
	"rollbook/internal/model"
	"rollbook/internal/validation"
)

var errBadCredentials = apperr.New(apperr.ErrUnauthorized, "Invalid email or password")

// Store persists teachers.
type Store interface {
	CreateTeacher(ctx context.Context, t model.Teacher) (model.Teacher, error)
	TeacherByEmail(ctx context.Context, email string) (model.Teacher, error)
	TeacherByID(ctx context.Context, id string) (model.Teacher, error)
	UpdateTeacherPassword(ctx context.Context, id, hash string) error
}

// Limiter throttles forgot-password requests per email.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Emailer hands an email off for delivery.
type Emailer interface {
	Email(ctx context.Context, msg mailer.Message) error
}

type SignupInput struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,password"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type ResetInput struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,password"`
}

// Session is what a successful login returns to the client.
type Session struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Options tune the password reset flow.
type Options struct {
	BcryptCost int
	OTPTTL     time.Duration
}

// Service implements the account operations.
type Service struct {
	store    Store
	issuer   *auth.Issuer
	otps     OTPStore
	limiter  Limiter
	emailer  Emailer
	validate *validator.Validate
	opts     Options
}

func NewService(store Store, issuer *auth.Issuer, otps OTPStore, limiter Limiter, emailer Emailer, opts Options) *Service {
	if opts.BcryptCost < bcrypt.MinCost || opts.BcryptCost > bcrypt.MaxCost {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.OTPTTL <= 0 {
		opts.OTPTTL = 10 * time.Minute
	}
	return &Service{
		store:    store,
		issuer:   issuer,
		otps:     otps,
		limiter:  limiter,
		emailer:  emailer,
		validate: validation.New(),
		opts:     opts,
	}
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Signup registers a teacher and returns the stored record.
func (s *Service) Signup(ctx context.Context, in SignupInput) (model.Teacher, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	if err := s.validate.Struct(in); err != nil {
		return model.Teacher{}, invalid(err, "Name, email and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.opts.BcryptCost)
	if err != nil {
		return model.Teacher{}, fmt.Errorf("hash password: %w", err)
	}
	return s.store.CreateTeacher(ctx, model.Teacher{Name: in.Name, Email: in.Email, PasswordHash: string(hash)})
}

// Login checks credentials and issues an access token.
func (s *Service) Login(ctx context.Context, in LoginInput) (Session, error) {
	in.Email = normalizeEmail(in.Email)
	if err := s.validate.Struct(in); err != nil {
		return Session{}, apperr.New(apperr.ErrInvalidInput, "Email and password are required")
	}
	t, err := s.store.TeacherByEmail(ctx, in.Email)
	if errors.Is(err, apperr.ErrNotFound) {
		return Session{}, errBadCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(t.PasswordHash), []byte(in.Password)) != nil {
		return Session{}, errBadCredentials
	}
	tok, err := s.issuer.Issue(t.ID, t.Email)
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}
	return Session{ID: t.ID, Name: t.Name, Email: t.Email, Token: tok.AccessToken, ExpiresAt: tok.ExpiresAt}, nil
}

// ForgotPassword emails a reset code when the address belongs to a teacher.
// Unknown addresses succeed silently.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return apperr.New(apperr.ErrInvalidInput, "Email is required")
	}
	ok, err := s.limiter.Allow(ctx, email)
	if err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	if !ok {
		return apperr.New(apperr.ErrTooManyRequests, "Too many requests. Try again later.")
	}

	t, err := s.store.TeacherByEmail(ctx, email)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	code, err := s.saveCode(ctx, t.ID)
	if err != nil {
		return err
	}
	msg, err := mailer.OTPMessage(t.Email, code, s.opts.OTPTTL)
	if err != nil {
		return fmt.Errorf("render otp email: %w", err)
	}
	return s.emailer.Email(ctx, msg)
}

func (s *Service) saveCode(ctx context.Context, teacherID string) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		code, err := newCode()
		if err != nil {
			return "", fmt.Errorf("generate otp: %w", err)
		}
		err = s.otps.Save(ctx, teacherID, code, s.opts.OTPTTL)
		if errors.Is(err, ErrCodeTaken) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("save otp: %w", err)
		}
		return code, nil
	}
	return "", errors.New("save otp: no free code")
}

// ResetPassword sets a new password for the teacher holding the code.
func (s *Service) ResetPassword(ctx context.Context, in ResetInput) error {
	in.Token = strings.TrimSpace(in.Token)
	if err := s.validate.Struct(in); err != nil {
		return invalid(err, "Token and new password are required")
	}
	id, err := s.otps.Consume(ctx, in.Token)
	if errors.Is(err, ErrCodeInvalid) {
		return apperr.New(apperr.ErrInvalidInput, "Invalid or expired OTP")
	}
	if err != nil {
		return fmt.Errorf("consume otp: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.NewPassword), s.opts.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.store.UpdateTeacherPassword(ctx, id, string(hash))
}

func invalid(err error, fallback string) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Tag() == validation.PasswordTag {
		return apperr.Newf(apperr.ErrInvalidInput, "Password must be at least %d characters", model.MinPasswordLen)
	}
	if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Tag() == "email" {
		return apperr.New(apperr.ErrInvalidInput, "Email is invalid")
	}
	return apperr.New(apperr.ErrInvalidInput, fallback)
}
