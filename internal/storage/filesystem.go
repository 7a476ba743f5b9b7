package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// FileStore persists assets onto the local filesystem and serves them from
// publicBaseURL. It is intended for development and test environments where
// a CDN is not available.
type FileStore struct {
	basePath      string
	publicBaseURL string
}

// NewFileStore initializes a FileStore rooted at basePath.
func NewFileStore(basePath, publicBaseURL string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &FileStore{basePath: basePath, publicBaseURL: strings.TrimRight(publicBaseURL, "/")}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// Write stores data under key and returns the cleaned key. The file is
// written to a temporary name first so the static handler never serves a
// half-written model.
func (s *FileStore) Write(ctx context.Context, key string, data []byte) (string, error) {
	if s == nil {
		return "", errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	target := filepath.Join(s.basePath, filepath.FromSlash(clean))
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*")
	if err != nil {
		return "", fmt.Errorf("storage: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("storage: write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("storage: write file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", fmt.Errorf("storage: chmod: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("storage: publish file: %w", err)
	}
	return clean, nil
}

// Upload writes every file under Directory/AssetID and returns URLs rooted
// at the public base URL.
func (s *FileStore) Upload(ctx context.Context, files []File, opts UploadOptions) (*UploadResult, error) {
	result := &UploadResult{Success: true, Files: make([]UploadedFile, 0, len(files))}
	for _, f := range files {
		key, err := s.Write(ctx, objectKey(opts, f.Name), f.Data)
		if err != nil {
			return nil, err
		}
		result.Files = append(result.Files, UploadedFile{
			Path: key,
			URL:  s.publicBaseURL + "/" + key,
			Size: int64(len(f.Data)),
		})
	}
	return result, nil
}

var _ Uploader = (*FileStore)(nil)

// sanitizeKey turns key into a slash-separated path that stays inside the
// storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.ReplaceAll(strings.TrimSpace(key), "\\", "/")
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	clean := path.Clean("/" + key)[1:]
	if clean == "" || strings.Contains(key, "../") || key == ".." || strings.HasSuffix(key, "/..") {
		return "", errors.New("storage: invalid key")
	}
	return clean, nil
}
