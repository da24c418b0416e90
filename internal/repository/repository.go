// Package repository declares the storage interfaces the services depend
// on. Implementations live in subpackages (sqldb).
package repository

import (
	"context"

	"github.com/sakif/mediahub/internal/model"
)

// UserRepository stores dashboard accounts.
//
// Lookups of a missing user return an error wrapping apperror.ErrNotFound.
// Create and Update return apperror.ErrConflict when the username is taken.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	List(ctx context.Context) ([]model.User, error)
	Update(ctx context.Context, user *model.User) error
	Delete(ctx context.Context, id int64) error
}

// NoteRepository stores the single shared scratch note.
type NoteRepository interface {
	// Get returns the note; an empty note (never saved or cleared) is not an error.
	Get(ctx context.Context) (*model.Note, error)
	Save(ctx context.Context, text string) (*model.Note, error)
}
