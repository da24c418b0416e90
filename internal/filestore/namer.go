package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sakif/mediahub/internal/apperror"
)

// DefaultMaxAttempts bounds how many names SaveUnique tries per upload.
const DefaultMaxAttempts = 8

// Namer decides final upload names.
//
// RENAME RULE:
// A free name is kept as-is. A taken name "stem.ext" becomes
// "stem - T.ext" where T is the current Unix time in seconds. Names with
// no extension get the suffix with no trailing dot ("notes" -> "notes - T").
//
// Two uploads of the same name in the same second would both want
// "stem - T.ext", so later attempts add a counter: "stem - T-2.ext",
// "stem - T-3.ext", and so on.
type Namer struct {
	now         func() time.Time
	maxAttempts int
}

// NewNamer returns a Namer reading the given clock. A nil clock means time.Now.
func NewNamer(now func() time.Time) *Namer {
	if now == nil {
		now = time.Now
	}
	return &Namer{now: now, maxAttempts: DefaultMaxAttempts}
}

// Resolve returns proposed when no entry by that name exists, otherwise
// the timestamped variant. The answer is only true at the instant of the
// check; uploads go through SaveUnique, which does not have that gap.
func (n *Namer) Resolve(ctx context.Context, store Store, proposed string) (string, error) {
	taken, err := store.Exists(ctx, proposed)
	if err != nil {
		return "", fmt.Errorf("filestore: checking %q: %w", proposed, err)
	}
	if !taken {
		return proposed, nil
	}
	return Candidate(proposed, 1, n.now().Unix()), nil
}

// Candidate returns the name to try on the given attempt (0-based).
func Candidate(name string, attempt int, unix int64) string {
	if attempt <= 0 {
		return name
	}
	stem, ext := splitExt(name)
	if attempt == 1 {
		return fmt.Sprintf("%s - %d%s", stem, unix, ext)
	}
	return fmt.Sprintf("%s - %d-%d%s", stem, unix, attempt, ext)
}

// SaveUnique stores r under proposed, or under the first free candidate
// name, and returns the name used.
//
// Each attempt is an exclusive Create, so two concurrent uploads of the
// same name can never land on one file: the loser sees ErrExists and
// moves on to the next candidate. r is rewound before every retry.
//
// All candidates of one call share the Unix second read at its start, so
// at most maxAttempts uploads of one name fit in a single second; the next
// one fails with apperror.ErrConflict. A call in a later second starts
// over with fresh candidates.
func (n *Namer) SaveUnique(ctx context.Context, store Store, proposed string, r io.ReadSeeker) (string, int64, error) {
	if err := ValidateName(proposed); err != nil {
		return "", 0, err
	}

	unix := n.now().Unix()
	for attempt := 0; attempt < n.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", 0, err
		}

		if attempt > 0 {
			if _, err := r.Seek(0, io.SeekStart); err != nil {
				return "", 0, fmt.Errorf("filestore: rewinding upload: %w", err)
			}
		}

		name := Candidate(proposed, attempt, unix)
		size, err := store.Create(ctx, name, r)
		if err == nil {
			return name, size, nil
		}
		if !errors.Is(err, ErrExists) {
			return "", 0, fmt.Errorf("filestore: saving %q: %w", name, err)
		}
	}

	return "", 0, apperror.Conflict("file", proposed)
}

// splitExt splits name into stem and extension the way most tools do:
// the extension starts at the last dot, and leading dots belong to the
// stem (".profile" has no extension).
func splitExt(name string) (stem, ext string) {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 || strings.Trim(name[:i], ".") == "" {
		return name, ""
	}
	return name[:i], name[i:]
}
