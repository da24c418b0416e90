// Package filestore keeps the shared upload area: one flat namespace of
// files that every signed-in user can list, download and delete.
//
// Two backends implement Store: a local directory and an S3 bucket. Both
// offer an exclusive Create that fails with ErrExists instead of
// overwriting, which is what lets SaveUnique pick a free name without a
// check-then-write race.
package filestore

import (
	"context"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/sakif/mediahub/internal/apperror"
	"github.com/sakif/mediahub/internal/model"
)

// ErrExists is returned by Store.Create when the name is already taken.
var ErrExists = errors.New("filestore: name already exists")

// MaxNameBytes bounds client-supplied names. It leaves room for the
// " - <unix>-<n>" suffix within the usual 255-byte file name limit.
const MaxNameBytes = 200

// Store is a flat, single-directory file namespace.
type Store interface {
	// List returns every visible entry, sorted by name.
	List(ctx context.Context) ([]model.StoredFile, error)
	// Exists reports whether name is taken.
	Exists(ctx context.Context, name string) (bool, error)
	// Create writes r under name only if name is free. The content becomes
	// visible all at once; a reader never sees a partial file.
	Create(ctx context.Context, name string, r io.Reader) (int64, error)
	// Open returns the content of name. Missing names yield apperror.ErrNotFound.
	Open(ctx context.Context, name string) (io.ReadCloser, *model.StoredFile, error)
	// Remove deletes name. Missing names yield apperror.ErrNotFound.
	Remove(ctx context.Context, name string) error
}

// ValidateName rejects names that could escape the upload area or clash
// with the store's own bookkeeping.
//
// Names are used as-is otherwise: no case folding or character
// substitution, so what the user uploaded is what they see listed.
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return apperror.ValidationFailed("filename", "file name is required")
	case name == "." || name == "..":
		return apperror.ValidationFailed("filename", "invalid file name")
	case strings.ContainsAny(name, `/\`):
		return apperror.ValidationFailed("filename", "file name must not contain path separators")
	case strings.ContainsRune(name, 0):
		return apperror.ValidationFailed("filename", "file name must not contain NUL")
	case strings.HasPrefix(name, "."):
		return apperror.ValidationFailed("filename", "file name must not start with a dot")
	case len(name) > MaxNameBytes:
		return apperror.ValidationFailed("filename", "file name is too long")
	case !utf8.ValidString(name):
		return apperror.ValidationFailed("filename", "file name must be valid UTF-8")
	}
	return nil
}
