package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/mediahub/internal/apperror"
	"github.com/sakif/mediahub/internal/model"
)

// stagingDirName holds in-flight uploads. Names starting with a dot are
// refused by ValidateName and hidden from List, so it never collides with
// a user file.
const stagingDirName = ".staging"

// LocalStore keeps uploads in one directory on disk.
//
// ATOMIC EXCLUSIVE CREATE:
// Create writes the bytes to a uniquely named staging file first, then
// publishes it with os.Link. link(2) fails with EEXIST when the target is
// taken and never replaces it, so publishing is both exclusive and
// all-or-nothing: readers see either no file or the complete file.
type LocalStore struct {
	root    string
	staging string
}

var _ Store = (*LocalStore)(nil)

// NewLocalStore opens (and creates if needed) the upload directory.
func NewLocalStore(root string) (*LocalStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("filestore: resolving %q: %w", root, err)
	}
	staging := filepath.Join(abs, stagingDirName)
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return nil, fmt.Errorf("filestore: creating upload directory: %w", err)
	}
	return &LocalStore{root: abs, staging: staging}, nil
}

// Root returns the absolute upload directory.
func (s *LocalStore) Root() string {
	return s.root
}

func (s *LocalStore) List(ctx context.Context) ([]model.StoredFile, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("filestore: listing %s: %w", s.root, err)
	}

	files := make([]model.StoredFile, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") || !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		files = append(files, model.StoredFile{
			Name:    e.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func (s *LocalStore) Exists(ctx context.Context, name string) (bool, error) {
	path, err := s.path(name)
	if err != nil {
		return false, err
	}
	_, err = os.Lstat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("filestore: stat %q: %w", name, err)
	}
}

func (s *LocalStore) Create(ctx context.Context, name string, r io.Reader) (int64, error) {
	target, err := s.path(name)
	if err != nil {
		return 0, err
	}

	tmpPath := filepath.Join(s.staging, xid.New().String())
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("filestore: creating staging file: %w", err)
	}
	// The staging name is always removed; after a successful link the
	// published name keeps the inode alive.
	defer os.Remove(tmpPath)

	size, err := io.Copy(tmp, r)
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return 0, fmt.Errorf("filestore: writing %q: %w", name, err)
	}

	if err := os.Link(tmpPath, target); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return 0, ErrExists
		}
		return 0, fmt.Errorf("filestore: publishing %q: %w", name, err)
	}
	return size, nil
}

func (s *LocalStore) Open(ctx context.Context, name string) (io.ReadCloser, *model.StoredFile, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, apperror.NotFound("file", name)
		}
		return nil, nil, fmt.Errorf("filestore: opening %q: %w", name, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("filestore: stat %q: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, nil, apperror.NotFound("file", name)
	}

	return f, &model.StoredFile{Name: name, Size: info.Size(), ModTime: info.ModTime()}, nil
}

func (s *LocalStore) Remove(ctx context.Context, name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}

	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return apperror.NotFound("file", name)
		}
		return fmt.Errorf("filestore: stat %q: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		return apperror.NotFound("file", name)
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return apperror.NotFound("file", name)
		}
		return fmt.Errorf("filestore: removing %q: %w", name, err)
	}
	return nil
}

// path validates name and joins it to the root.
func (s *LocalStore) path(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.root, name), nil
}
