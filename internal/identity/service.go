package identity

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

var (
	// ErrInvalidCredentials hides whether the email or the password was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidEmail is returned for malformed email addresses.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrWeakPassword is returned when the password is too short.
	ErrWeakPassword = errors.New("password must be at least 8 characters")
)

// Service manages identity lifecycle.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService creates a new identity service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Register creates a user and stores a hashed password.
func (s *Service) Register(ctx context.Context, creds Credentials) (User, error) {
	email, err := normalizeEmail(creds.Email)
	if err != nil {
		return User{}, err
	}
	if len(creds.Password) < minPasswordLength {
		return User{}, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	orgID := creds.OrgID
	if orgID == uuid.Nil {
		orgID = uuid.New()
	}
	user := User{
		ID:           uuid.New(),
		OrgID:        orgID,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}
	s.logger.Info("user registered", slog.String("user_id", user.ID.String()), slog.String("organization_id", orgID.String()))
	return user, nil
}

// Authenticate verifies credentials and stamps the login time.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (User, error) {
	email, err := normalizeEmail(creds.Email)
	if err != nil {
		return User{}, ErrInvalidCredentials
	}
	user, err := s.repo.FindByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(creds.Password)); err != nil {
		return User{}, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	if err := s.repo.TouchLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("record login failed", slog.String("user_id", user.ID.String()), slog.String("error", err.Error()))
	} else {
		user.LastLogin = &now
	}
	return user, nil
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (User, error) {
	return s.repo.FindByID(ctx, id)
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil || addr.Name != "" {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(addr.Address), nil
}
