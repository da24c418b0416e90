package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/sakif/mediahub/internal/filestore"
	"github.com/sakif/mediahub/internal/model"
)

// Upload is one file from a multipart form.
type Upload struct {
	Name string
	Body io.ReadSeeker
}

// UploadResult reports where an upload ended up.
type UploadResult struct {
	Original string
	Stored   string
	Size     int64
}

// Renamed reports whether the upload was stored under a new name.
func (r UploadResult) Renamed() bool {
	return r.Original != r.Stored
}

// FileService manages the shared upload area.
type FileService struct {
	store  filestore.Store
	namer  *filestore.Namer
	logger *slog.Logger
}

func NewFileService(store filestore.Store, namer *filestore.Namer, logger *slog.Logger) *FileService {
	return &FileService{store: store, namer: namer, logger: logger}
}

func (s *FileService) List(ctx context.Context) ([]model.StoredFile, error) {
	files, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: listing files: %w", err)
	}
	return files, nil
}

// Upload stores every file, renaming on collision. Names are validated up
// front so a bad name rejects the batch before anything is written.
//
// If a store error stops the batch midway, the results for files already
// written are returned with the error.
func (s *FileService) Upload(ctx context.Context, uploads []Upload) ([]UploadResult, error) {
	for _, u := range uploads {
		if err := filestore.ValidateName(u.Name); err != nil {
			return nil, err
		}
	}

	results := make([]UploadResult, 0, len(uploads))
	for _, u := range uploads {
		stored, size, err := s.namer.SaveUnique(ctx, s.store, u.Name, u.Body)
		if err != nil {
			s.logger.Error("upload failed",
				slog.String("name", u.Name),
				slog.String("error", err.Error()),
			)
			return results, err
		}

		res := UploadResult{Original: u.Name, Stored: stored, Size: size}
		s.logger.Info("file uploaded",
			slog.String("name", stored),
			slog.Int64("size", size),
			slog.Bool("renamed", res.Renamed()),
		)
		results = append(results, res)
	}
	return results, nil
}

// Open returns the file content and metadata. The caller closes the reader.
func (s *FileService) Open(ctx context.Context, name string) (io.ReadCloser, *model.StoredFile, error) {
	if err := filestore.ValidateName(name); err != nil {
		return nil, nil, err
	}
	return s.store.Open(ctx, name)
}

// Delete removes name; a missing file is apperror.ErrNotFound.
func (s *FileService) Delete(ctx context.Context, name string) error {
	if err := filestore.ValidateName(name); err != nil {
		return err
	}
	if err := s.store.Remove(ctx, name); err != nil {
		return err
	}
	s.logger.Info("file deleted", slog.String("name", name))
	return nil
}
