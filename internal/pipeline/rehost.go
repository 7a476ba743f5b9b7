package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"net/url"
	"slices"
	"strings"

	"github.com/Dexploarer/hyper-forge-sub006/internal/domain"
	"github.com/Dexploarer/hyper-forge-sub006/internal/storage"
)

const maxSourceImageBytes = 32 << 20

// ensurePublic returns a URL the model vendor can fetch. Inline images and
// images on allowed private hosts are uploaded to the artifact store first.
// Any other private host is refused.
func (s *Service) ensurePublic(ctx context.Context, assetID, src string) (string, error) {
	if strings.HasPrefix(src, "data:") {
		data, contentType, err := decodeDataURI(src)
		if err != nil {
			return "", err
		}
		return s.rehost(ctx, assetID, "concept-art"+extensionFor(contentType), data, contentType)
	}
	u, err := url.Parse(src)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("unsupported image reference %q", truncate(src, 64))
	}
	if isPublicHost(u.Hostname()) {
		return src, nil
	}
	if !s.rehostAllowed(u.Hostname()) {
		return "", &domain.ValidationError{Field: "referenceImage.url", Message: "image host is not reachable"}
	}
	data, contentType, err := s.fetch(ctx, src)
	if err != nil {
		return "", err
	}
	return s.rehost(ctx, assetID, "source-image"+extensionFor(contentType), data, contentType)
}

func (s *Service) rehost(ctx context.Context, assetID, name string, data []byte, contentType string) (string, error) {
	up, err := s.deps.Uploader.Upload(ctx, []storage.File{{Name: name, Data: data, ContentType: contentType}},
		storage.UploadOptions{AssetID: assetID, Directory: dirConceptArt})
	if err != nil {
		return "", err
	}
	public := up.URLFor(name)
	if public == "" {
		return "", fmt.Errorf("no url returned for %s", name)
	}
	s.logger.Debug().Str("asset_id", assetID).Str("url", public).Msg("pipeline: image rehosted")
	return public, nil
}

func (s *Service) fetch(ctx context.Context, src string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build image request: %w", err)
	}
	client := *s.deps.HTTPClient
	client.CheckRedirect = func(next *http.Request, via []*http.Request) error {
		if len(via) >= 5 {
			return errors.New("too many redirects")
		}
		if h := next.URL.Hostname(); !isPublicHost(h) && !s.rehostAllowed(h) {
			return fmt.Errorf("redirect to disallowed host %q", h)
		}
		return nil
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}
	if len(data) > maxSourceImageBytes {
		return nil, "", errors.New("fetch image: image too large")
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}

func decodeDataURI(uri string) ([]byte, string, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, "", errors.New("malformed data uri")
	}
	contentType, params, _ := strings.Cut(meta, ";")
	if contentType == "" {
		contentType = "image/png"
	}
	if !strings.Contains(params, "base64") {
		return nil, "", errors.New("data uri must be base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode data uri: %w", err)
	}
	if len(data) == 0 {
		return nil, "", errors.New("empty data uri")
	}
	return data, contentType, nil
}

func extensionFor(contentType string) string {
	ct, _, _ := strings.Cut(contentType, ";")
	switch strings.TrimSpace(strings.ToLower(ct)) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

// isPublicHost reports whether an external service could reach host.
func isPublicHost(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" || host == "localhost" {
		return false
	}
	for _, suffix := range []string{".localhost", ".local", ".internal"} {
		if strings.HasSuffix(host, suffix) {
			return false
		}
	}
	addr, err := netip.ParseAddr(strings.Trim(host, "[]"))
	if err != nil {
		return true
	}
	addr = addr.Unmap()
	return !(addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() || addr.IsUnspecified())
}

func (s *Service) rehostAllowed(host string) bool {
	return slices.Contains(s.deps.RehostHosts, strings.ToLower(strings.TrimSuffix(host, ".")))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
