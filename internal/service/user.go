package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/mediahub/internal/apperror"
	"github.com/sakif/mediahub/internal/auth"
	"github.com/sakif/mediahub/internal/model"
	"github.com/sakif/mediahub/internal/repository"
)

// UserService manages existing accounts. Any signed-in user may edit or
// delete any account; there are no roles.
type UserService struct {
	users  repository.UserRepository
	hasher *auth.PasswordHasher
	logger *slog.Logger
}

func NewUserService(users repository.UserRepository, hasher *auth.PasswordHasher, logger *slog.Logger) *UserService {
	return &UserService{users: users, hasher: hasher, logger: logger}
}

func (s *UserService) List(ctx context.Context) ([]model.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: listing users: %w", err)
	}
	return users, nil
}

// Get returns apperror.ErrNotFound for an unknown id.
func (s *UserService) Get(ctx context.Context, id int64) (*model.User, error) {
	return s.users.GetByID(ctx, id)
}

// Update renames user id and, when password is non-empty, replaces its
// password. An empty password keeps the current one.
func (s *UserService) Update(ctx context.Context, id int64, username, password string) (*model.User, error) {
	username, err := validateUsername(username)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	user.Username = username
	if password != "" {
		digest, err := s.hasher.Hash(password)
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return nil, apperror.ValidationFailed("password", "Password must be 72 bytes or fewer")
		}
		if err != nil {
			return nil, fmt.Errorf("service: hashing password: %w", err)
		}
		user.HashedPassword = digest
	}

	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, userExists()
		}
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		s.logger.Error("failed to update user",
			slog.Int64("id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service: updating user %d: %w", id, err)
	}

	s.logger.Info("user updated",
		slog.Int64("id", user.ID),
		slog.String("username", user.Username),
		slog.Bool("password_changed", password != ""),
	)
	return user, nil
}

// Delete removes user id. Sessions held by that user stop resolving on
// their next request.
func (s *UserService) Delete(ctx context.Context, id int64) error {
	if err := s.users.Delete(ctx, id); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return err
		}
		return fmt.Errorf("service: deleting user %d: %w", id, err)
	}
	s.logger.Info("user deleted", slog.Int64("id", id))
	return nil
}
