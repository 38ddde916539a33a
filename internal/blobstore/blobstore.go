// Package blobstore persists uploaded cough audio on disk. Stored blobs are
// addressed by a relative path of the form /uploads/<uuid><ext> so database
// records stay valid when the base directory moves.
package blobstore

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/swarahealth/coughwatch-go/internal/errors"
	"github.com/swarahealth/coughwatch-go/internal/logging"
)

// prefix under which stored blobs are addressed.
const pathPrefix = "/uploads/"

// allowedExtensions lists the audio container formats accepted from
// devices and browsers.
var allowedExtensions = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".ogg":  true,
	".flac": true,
	".webm": true,
	".m4a":  true,
}

// Store is a disk-backed audio blob store rooted at a single directory.
type Store struct {
	baseDir string
	logger  *slog.Logger
}

// New creates a Store rooted at baseDir, creating the directory if needed.
func New(baseDir string) (*Store, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, errors.New(err).
			Component("blobstore").
			Category(errors.CategoryConfiguration).
			Context("base_dir", baseDir).
			Build()
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, errors.New(err).
			Component("blobstore").
			Category(errors.CategoryFileIO).
			Context("base_dir", abs).
			Build()
	}

	return &Store{
		baseDir: abs,
		logger:  logging.ForService("blobstore"),
	}, nil
}

// Save writes the audio stream to a new file and returns its relative
// blob path. The original filename is only consulted for its extension.
func (s *Store) Save(src io.Reader, origName string) (string, error) {
	ext := strings.ToLower(path.Ext(origName))
	if !allowedExtensions[ext] {
		return "", errors.Newf("unsupported audio format %q", ext).
			Component("blobstore").
			Category(errors.CategoryValidation).
			Context("filename", origName).
			Build()
	}

	name := uuid.New().String() + ext
	dst, err := os.Create(filepath.Join(s.baseDir, name))
	if err != nil {
		return "", errors.New(err).
			Component("blobstore").
			Category(errors.CategoryFileIO).
			Context("operation", "create").
			Build()
	}

	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(dst.Name())
		return "", errors.New(err).
			Component("blobstore").
			Category(errors.CategoryFileIO).
			Context("operation", "write").
			Build()
	}

	if err := dst.Close(); err != nil {
		_ = os.Remove(dst.Name())
		return "", errors.New(err).
			Component("blobstore").
			Category(errors.CategoryFileIO).
			Context("operation", "close").
			Build()
	}

	relPath := pathPrefix + name
	s.logger.Debug("stored audio blob", "path", relPath)
	return relPath, nil
}

// Open returns a reader for a stored blob.
func (s *Store) Open(relPath string) (io.ReadCloser, error) {
	abs, err := s.resolve(relPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(abs)
	if err != nil {
		return nil, errors.New(err).
			Component("blobstore").
			Category(errors.CategoryFileIO).
			Context("path", relPath).
			Build()
	}
	return f, nil
}

// Delete removes a stored blob. Deleting a blob that is already gone is
// not an error; the compensation path in event creation may race a
// partially written record.
func (s *Store) Delete(relPath string) error {
	abs, err := s.resolve(relPath)
	if err != nil {
		return err
	}

	if err := os.Remove(abs); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.New(err).
			Component("blobstore").
			Category(errors.CategoryFileIO).
			Context("path", relPath).
			Build()
	}

	s.logger.Debug("deleted audio blob", "path", relPath)
	return nil
}

// AbsolutePath maps a blob path to its location on disk.
func (s *Store) AbsolutePath(relPath string) (string, error) {
	return s.resolve(relPath)
}

// resolve validates a blob path and confines it to the base directory.
func (s *Store) resolve(relPath string) (string, error) {
	name, ok := strings.CutPrefix(relPath, pathPrefix)
	if !ok || name == "" {
		return "", errors.Newf("invalid blob path %q", relPath).
			Component("blobstore").
			Category(errors.CategoryValidation).
			Build()
	}

	// Blob names are flat uuid filenames; anything with path structure is
	// an attempted escape.
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", errors.Newf("blob path %q escapes storage directory", relPath).
			Component("blobstore").
			Category(errors.CategoryValidation).
			Build()
	}
	return filepath.Join(s.baseDir, name), nil
}

// String implements fmt.Stringer for logging.
func (s *Store) String() string {
	return fmt.Sprintf("blobstore(%s)", s.baseDir)
}
