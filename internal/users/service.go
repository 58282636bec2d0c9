package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/inkwell-labs/inkwell/internal/auth"
)

var (
	// ErrEmailTaken indicates a registration attempt with an already-registered email.
	ErrEmailTaken = errors.New("users: email already registered")
	// ErrInvalidCredentials indicates a failed login attempt.
	ErrInvalidCredentials = errors.New("users: invalid credentials")
	// ErrUserNotFound indicates no account matches the supplied identifier.
	ErrUserNotFound = errors.New("users: user not found")
	// ErrInvalidRegistration indicates missing or malformed registration input.
	ErrInvalidRegistration = errors.New("users: invalid registration")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
)

// IDProvider issues identifiers for new accounts.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies required for account management.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
}

// Service manages account registration and credential verification.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
}

// NewService constructs the user service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
	}, nil
}

// Register creates a new account with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, username, email, password string) (User, error) {
	username = strings.TrimSpace(username)
	email = normalizeEmail(email)
	if username == "" || email == "" || !strings.Contains(email, "@") {
		return User{}, ErrInvalidRegistration
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrInvalidRegistration, err)
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		return User{}, err
	}

	user := User{
		ID:           id,
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing User
		err := tx.Where("email = ?", email).Take(&existing).Error
		if err == nil {
			return ErrEmailTaken
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Create(&user).Error
	})
	if txErr != nil {
		return User{}, txErr
	}

	return user, nil
}

// Authenticate verifies credentials and returns the matched account.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if err := auth.VerifyPassword(user.PasswordHash, password); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

// GetByID returns the account with the given identifier.
func (s *Service) GetByID(ctx context.Context, id string) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// GetByEmail returns the account registered under the given email.
func (s *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
