package image

import (
	"context"
	"encoding/base64"
	"strings"
)

// GenerateRequest describes a normalized request passed to any image provider.
type GenerateRequest struct {
	Prompt    string
	AssetType string
	Style     string
	Size      string
	Quality   string
	Quantity  int
	RequestID string
}

// Asset represents a generated image. Either URL or Data is set.
type Asset struct {
	URL    string
	Format string
	Width  int
	Height int
	Data   []byte
}

// Location returns the URL of the asset, or an inline data URI when the
// provider returned bytes only.
func (a Asset) Location() string {
	if a.URL != "" {
		return a.URL
	}
	if len(a.Data) == 0 {
		return ""
	}
	format := a.Format
	if format == "" {
		format = "image/png"
	}
	return "data:" + format + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
}

// Generator is the contract implemented by all image providers.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) ([]Asset, error)
}

// SizeForQuality maps a quality tier onto a supported square size token.
func SizeForQuality(quality string) string {
	switch strings.ToLower(strings.TrimSpace(quality)) {
	case "high", "ultra":
		return "1536x1536"
	default:
		return "1024x1024"
	}
}
