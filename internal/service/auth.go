// Package service holds the business rules of the dashboard.
//
// Handlers parse HTTP and render responses; repositories and stores move
// bytes. Everything in between (validation, uniqueness, which error a
// caller sees) lives here, behind plain Go method calls that tests can
// drive without a browser or a database.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/sakif/mediahub/internal/apperror"
	"github.com/sakif/mediahub/internal/auth"
	"github.com/sakif/mediahub/internal/model"
	"github.com/sakif/mediahub/internal/repository"
)

// MaxUsernameLength is counted in characters.
const MaxUsernameLength = 64

// ErrInvalidCredentials is returned by Authenticate for an unknown user and
// for a wrong password alike.
var ErrInvalidCredentials = errors.New("invalid credentials")

// AuthService registers accounts and checks credentials.
type AuthService struct {
	users  repository.UserRepository
	hasher *auth.PasswordHasher
	logger *slog.Logger

	// dummyDigest is verified against when the username is unknown, so a
	// failed login costs one bcrypt comparison either way.
	dummyOnce   sync.Once
	dummyDigest string
}

func NewAuthService(users repository.UserRepository, hasher *auth.PasswordHasher, logger *slog.Logger) *AuthService {
	return &AuthService{
		users:  users,
		hasher: hasher,
		logger: logger,
	}
}

// Register creates an account. A taken username yields a conflict whose
// message is "User exists".
func (s *AuthService) Register(ctx context.Context, username, password string) (*model.User, error) {
	username, err := validateUsername(username)
	if err != nil {
		return nil, err
	}
	digest, err := s.hashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &model.User{Username: username, HashedPassword: digest}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, userExists()
		}
		s.logger.Error("failed to register user",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service: registering user: %w", err)
	}

	s.logger.Info("user registered",
		slog.Int64("id", user.ID),
		slog.String("username", user.Username),
	)
	return user, nil
}

// Authenticate returns the user when password matches. Unknown usernames
// and wrong passwords both return ErrInvalidCredentials.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	username = strings.TrimSpace(username)

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			return nil, fmt.Errorf("service: looking up %q: %w", username, err)
		}
		s.hasher.Verify(password, s.dummy())
		return nil, ErrInvalidCredentials
	}

	if !s.hasher.Verify(password, user.HashedPassword) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// LookupUser resolves the username carried by a session cookie. It has the
// shape of auth.UserLookup.
func (s *AuthService) LookupUser(ctx context.Context, username string) (*model.User, error) {
	return s.users.GetByUsername(ctx, username)
}

func (s *AuthService) hashPassword(password string) (string, error) {
	if password == "" {
		return "", apperror.ValidationFailed("password", "Password is required")
	}
	digest, err := s.hasher.Hash(password)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		return "", apperror.ValidationFailed("password", "Password must be 72 bytes or fewer")
	}
	if err != nil {
		return "", fmt.Errorf("service: hashing password: %w", err)
	}
	return digest, nil
}

func (s *AuthService) dummy() string {
	s.dummyOnce.Do(func() {
		d, err := s.hasher.Hash("mediahub-timing-equaliser")
		if err != nil {
			s.logger.Warn("could not prepare dummy digest", slog.String("error", err.Error()))
			return
		}
		s.dummyDigest = d
	})
	return s.dummyDigest
}

func validateUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	switch {
	case username == "":
		return "", apperror.ValidationFailed("username", "Username is required")
	case utf8.RuneCountInString(username) > MaxUsernameLength:
		return "", apperror.ValidationFailed("username",
			fmt.Sprintf("Username must be %d characters or fewer", MaxUsernameLength))
	case strings.ContainsFunc(username, isControl):
		return "", apperror.ValidationFailed("username", "Username contains invalid characters")
	}
	return username, nil
}

func isControl(r rune) bool {
	return r < 0x20 || r == 0x7f
}

func userExists() *apperror.AppError {
	return &apperror.AppError{
		Err:     apperror.ErrConflict,
		Message: "User exists",
		Field:   "username",
	}
}
