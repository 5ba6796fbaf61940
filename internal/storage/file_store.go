package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrUnsupportedType is returned for uploads with a disallowed extension
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrFileTooLarge is returned when an upload exceeds the size cap
	ErrFileTooLarge = errors.New("file too large")
	// ErrNoFilename is returned for uploads without an original filename
	ErrNoFilename = errors.New("no filename provided")
)

// FileStore owns the temporary media uploads directory: it validates and
// saves incoming files under unique names, deletes them on request, and
// sweeps files past their retention age.
type FileStore struct {
	dir     string
	maxSize int64
	allowed map[string]struct{}
	logger  *zap.Logger
}

// NewFileStore creates a FileStore rooted at dir, creating the directory if
// needed. allowedExtensions are compared case-insensitively including the
// leading dot.
func NewFileStore(dir string, maxSize int64, allowedExtensions []string, logger *zap.Logger) (*FileStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory %s: %w", dir, err)
	}

	allowed := make(map[string]struct{}, len(allowedExtensions))
	for _, ext := range allowedExtensions {
		allowed[strings.ToLower(ext)] = struct{}{}
	}

	return &FileStore{
		dir:     dir,
		maxSize: maxSize,
		allowed: allowed,
		logger:  logger,
	}, nil
}

// ValidateFilename checks the original upload name against the extension
// allowlist.
func (fs *FileStore) ValidateFilename(filename string) error {
	if filename == "" {
		return ErrNoFilename
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := fs.allowed[ext]; !ok {
		return fmt.Errorf("%w: %s (allowed: %s)", ErrUnsupportedType, ext, fs.allowedList())
	}
	return nil
}

// Save streams an upload to a uniquely named file in the store and returns
// its path. The partial file is removed when the size cap is exceeded.
func (fs *FileStore) Save(filename string, r io.Reader) (string, error) {
	if err := fs.ValidateFilename(filename); err != nil {
		return "", err
	}

	ext := strings.ToLower(filepath.Ext(filename))
	path := filepath.Join(fs.dir, uuid.NewString()+ext)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}

	// Read one byte past the cap so an exactly-at-limit file is accepted
	written, err := io.Copy(f, io.LimitReader(r, fs.maxSize+1))
	closeErr := f.Close()

	if err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to save upload: %w", err)
	}
	if written > fs.maxSize {
		os.Remove(path)
		return "", fmt.Errorf("%w: maximum size %.1fMB", ErrFileTooLarge, float64(fs.maxSize)/1024/1024)
	}

	fs.logger.Debug("upload saved",
		zap.String("path", path),
		zap.Int64("size_bytes", written))

	return path, nil
}

// Delete removes a stored file. Paths outside the store directory are
// refused so callers cannot delete arbitrary files.
func (fs *FileStore) Delete(path string) bool {
	if filepath.Dir(path) != filepath.Clean(fs.dir) {
		fs.logger.Warn("refusing to delete file outside upload directory",
			zap.String("path", path))
		return false
	}

	if err := os.Remove(path); err != nil {
		if !os.IsNotExist(err) {
			fs.logger.Warn("failed to delete file",
				zap.String("path", path),
				zap.Error(err))
		}
		return false
	}
	return true
}

// SweepOlderThan deletes files whose modification time is older than the
// retention period and returns the number removed.
func (fs *FileStore) SweepOlderThan(retention time.Duration) int {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		fs.logger.Warn("failed to read upload directory for sweep", zap.Error(err))
		return 0
	}

	removed := 0
	cutoff := time.Now().Add(-retention)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(fs.dir, entry.Name())
		if err := os.Remove(path); err != nil {
			fs.logger.Warn("failed to remove stale upload",
				zap.String("path", path),
				zap.Error(err))
			continue
		}

		fs.logger.Info("removed stale upload", zap.String("path", path))
		removed++
	}

	return removed
}

func (fs *FileStore) allowedList() string {
	exts := make([]string, 0, len(fs.allowed))
	for ext := range fs.allowed {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return strings.Join(exts, ", ")
}
