package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileStore persists artifacts onto the local filesystem. It is intended for
// development and test environments where an object storage service is not
// available. Its "signed" URLs are plain paths under the configured base URL.
type FileStore struct {
	basePath string
	baseURL  string
}

// NewFileStore initializes a FileStore rooted at basePath.
func NewFileStore(basePath, baseURL string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &FileStore{basePath: basePath, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Upload writes the bytes for a file:// URI. The MIME type is recorded only
// in the job's file metadata, not on disk.
func (s *FileStore) Upload(ctx context.Context, uri string, data []byte, mimeType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := s.keyFor(uri)
	if err != nil {
		return err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("storage: ensure directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return fmt.Errorf("storage: write file: %w", err)
	}
	return nil
}

// OutputURI derives the canonical storage URI for one job output.
func (s *FileStore) OutputURI(jobID, filename string) string {
	return fmt.Sprintf("file://local/generated/%s/%s", jobID, filename)
}

// SignedURL maps a file:// URI onto the store's public base URL. Local files
// carry no expiry.
func (s *FileStore) SignedURL(ctx context.Context, uri string, expiry time.Duration) (string, error) {
	key, err := s.keyFor(uri)
	if err != nil {
		return "", err
	}
	if s.baseURL == "" {
		return "file://" + key, nil
	}
	return s.baseURL + "/" + key, nil
}

func (s *FileStore) keyFor(uri string) (string, error) {
	_, key, err := splitURI(uri)
	if err != nil {
		return "", err
	}
	return sanitizeKey(key)
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.Clean(key)
	cleaned = strings.ReplaceAll(cleaned, "\\", "/")
	if cleaned == "." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}

var _ Store = (*FileStore)(nil)
