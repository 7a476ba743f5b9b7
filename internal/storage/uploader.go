package storage

import (
	"context"
	"path"
	"strings"
)

// File is one artifact to publish.
type File struct {
	Name        string
	Data        []byte
	ContentType string
}

// UploadOptions places files under Directory/AssetID.
type UploadOptions struct {
	AssetID   string
	Directory string
}

// UploadedFile describes a published artifact.
type UploadedFile struct {
	Path string `json:"path"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

// UploadResult is returned by every Uploader.
type UploadResult struct {
	Success bool           `json:"success"`
	Files   []UploadedFile `json:"files"`
}

// URLFor returns the public URL of the uploaded file with the given name.
func (r *UploadResult) URLFor(name string) string {
	if r == nil {
		return ""
	}
	for _, f := range r.Files {
		if path.Base(f.Path) == name {
			return f.URL
		}
	}
	return ""
}

// Uploader publishes artifacts to a publicly reachable location.
type Uploader interface {
	Upload(ctx context.Context, files []File, opts UploadOptions) (*UploadResult, error)
}

func objectKey(opts UploadOptions, name string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{opts.Directory, opts.AssetID, name} {
		if p = strings.Trim(strings.TrimSpace(p), "/"); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "/")
}
