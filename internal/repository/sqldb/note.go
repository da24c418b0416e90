package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/mediahub/internal/model"
	"github.com/sakif/mediahub/internal/repository"
)

var _ repository.NoteRepository = (*NoteStore)(nil)

// noteID is the key of the single scratch-pad row.
const noteID = 1

// NoteStore handles the notes table.
type NoteStore struct {
	db *DB
}

// Get returns the note, or an empty one if nothing was ever saved.
func (s *NoteStore) Get(ctx context.Context) (*model.Note, error) {
	var n model.Note
	err := s.db.conn.QueryRowContext(ctx, s.db.rebind(
		`SELECT body, updated_at FROM notes WHERE id = ?`), noteID,
	).Scan(&n.Text, &n.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &model.Note{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqldb: getting note: %w", err)
	}
	return &n, nil
}

// Save replaces the note body. The row is created on first save.
func (s *NoteStore) Save(ctx context.Context, text string) (*model.Note, error) {
	now := time.Now().UTC().Truncate(time.Microsecond)

	_, err := s.db.conn.ExecContext(ctx, s.db.rebind(
		`INSERT INTO notes (id, body, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`),
		noteID, text, now,
	)
	if err != nil {
		return nil, fmt.Errorf("sqldb: saving note: %w", err)
	}
	return &model.Note{Text: text, UpdatedAt: now}, nil
}
