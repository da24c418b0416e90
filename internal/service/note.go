package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/mediahub/internal/apperror"
	"github.com/sakif/mediahub/internal/model"
	"github.com/sakif/mediahub/internal/repository"
)

// MaxNoteBytes caps the scratch pad.
const MaxNoteBytes = 1 << 20

// NoteService reads and writes the scratch pad. There is one note for the
// whole installation, not one per user; concurrent saves are last-write-wins.
type NoteService struct {
	notes  repository.NoteRepository
	logger *slog.Logger
}

func NewNoteService(notes repository.NoteRepository, logger *slog.Logger) *NoteService {
	return &NoteService{notes: notes, logger: logger}
}

func (s *NoteService) Get(ctx context.Context) (*model.Note, error) {
	note, err := s.notes.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: reading note: %w", err)
	}
	return note, nil
}

// Save replaces the note. The text is stored verbatim.
func (s *NoteService) Save(ctx context.Context, text string) (*model.Note, error) {
	if len(text) > MaxNoteBytes {
		return nil, apperror.ValidationFailed("text",
			fmt.Sprintf("Note must be %d bytes or fewer", MaxNoteBytes))
	}
	note, err := s.notes.Save(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("service: saving note: %w", err)
	}
	s.logger.Debug("note saved", slog.Int("bytes", len(text)))
	return note, nil
}

func (s *NoteService) Clear(ctx context.Context) error {
	_, err := s.Save(ctx, "")
	return err
}
