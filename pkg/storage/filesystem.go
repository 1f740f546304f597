package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidKey is returned for keys that escape the storage root.
var ErrInvalidKey = errors.New("invalid storage key")

// StoredFile describes a blob persisted by a FileStore.
type StoredFile struct {
	Key  string
	URL  string
	Size int64
}

// LocalStorage persists uploaded documents on disk under a base directory and
// exposes them below a public base URL.
type LocalStorage struct {
	baseDir string
	baseURL string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir, baseURL string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./uploads"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Store writes data under folder using a collision-free name derived from fileName.
func (s *LocalStorage) Store(ctx context.Context, data []byte, fileName, folder string) (StoredFile, error) {
	if err := ctx.Err(); err != nil {
		return StoredFile{}, err
	}
	key := path.Join(cleanFolder(folder), uuid.NewString()+"-"+sanitizeName(fileName))
	target, err := s.resolve(key)
	if err != nil {
		return StoredFile{}, err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return StoredFile{}, fmt.Errorf("prepare storage directory: %w", err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return StoredFile{}, fmt.Errorf("write stored file: %w", err)
	}
	return StoredFile{Key: key, URL: s.baseURL + "/" + key, Size: int64(len(data))}, nil
}

// Open returns a read-only handle for the stored file.
func (s *LocalStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	target, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(target)
	if err != nil {
		return nil, fmt.Errorf("open stored file: %w", err)
	}
	return file, nil
}

// Delete removes a stored file if present.
func (s *LocalStorage) Delete(_ context.Context, key string) error {
	target, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete stored file: %w", err)
	}
	return nil
}

func (s *LocalStorage) resolve(key string) (string, error) {
	for _, segment := range strings.Split(key, "/") {
		if segment == ".." {
			return "", ErrInvalidKey
		}
	}
	cleaned := path.Clean("/" + key)
	if cleaned == "/" {
		return "", ErrInvalidKey
	}
	return filepath.Join(s.baseDir, filepath.FromSlash(strings.TrimPrefix(cleaned, "/"))), nil
}

func cleanFolder(folder string) string {
	parts := strings.Split(folder, "/")
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		part = unsafeChars.ReplaceAllString(part, "_")
		if part == "" || part == "." || part == ".." || strings.Trim(part, "_.") == "" {
			continue
		}
		kept = append(kept, part)
	}
	return path.Join(kept...)
}

func sanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "file"
	}
	if len(name) > 120 {
		name = name[len(name)-120:]
	}
	return name
}
