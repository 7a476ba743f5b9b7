package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Dexploarer/hyper-forge-sub006/internal/infra"
)

// StatusError is a non-2xx answer from the CDN upload endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("storage: cdn upload status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the request may succeed when repeated.
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500
}

// CDNOptions configures the CDN uploader.
type CDNOptions struct {
	Endpoint    string
	APIKey      string
	HTTPClient  *http.Client
	MaxAttempts int
	BaseDelay   time.Duration
	Logger      *infra.Logger
	// Sleep defaults to a context-aware timer; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// CDNUploader publishes artifacts through a multipart upload endpoint.
type CDNUploader struct {
	endpoint    string
	apiKey      string
	client      *http.Client
	maxAttempts int
	baseDelay   time.Duration
	logger      *infra.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewCDNUploader validates options and applies defaults (3 attempts, 500ms).
func NewCDNUploader(opts CDNOptions) (*CDNUploader, error) {
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		return nil, errors.New("storage: cdn endpoint is required")
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	delay := opts.BaseDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return &CDNUploader{
		endpoint:    endpoint,
		apiKey:      strings.TrimSpace(opts.APIKey),
		client:      client,
		maxAttempts: attempts,
		baseDelay:   delay,
		logger:      logger,
		sleep:       sleep,
	}, nil
}

// Upload posts all files in one multipart request. Network errors and 5xx
// answers are retried with exponential backoff; 4xx answers are not.
func (u *CDNUploader) Upload(ctx context.Context, files []File, opts UploadOptions) (*UploadResult, error) {
	if len(files) == 0 {
		return &UploadResult{Success: true}, nil
	}
	body, contentType, err := encodeMultipart(files, opts)
	if err != nil {
		return nil, err
	}
	var lastErr error
	for attempt := 1; attempt <= u.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := u.baseDelay << (attempt - 2)
			u.logger.Warn().Err(lastErr).
				Str("asset_id", opts.AssetID).
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("storage: retrying cdn upload")
			if err := u.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
		result, err := u.post(ctx, body, contentType)
		if err == nil {
			return result, nil
		}
		lastErr = err
		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Retryable() {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("storage: cdn upload failed after %d attempts: %w", u.maxAttempts, lastErr)
}

func (u *CDNUploader) post(ctx context.Context, body []byte, contentType string) (*UploadResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("storage: build upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if u.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+u.apiKey)
	}
	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("storage: cdn request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("storage: read cdn response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	var result UploadResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("storage: decode cdn response: %w", err)
	}
	if !result.Success {
		return nil, errors.New("storage: cdn reported failure")
	}
	return &result, nil
}

func encodeMultipart(files []File, opts UploadOptions) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("assetId", opts.AssetID); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("directory", opts.Directory); err != nil {
		return nil, "", err
	}
	for _, f := range files {
		ct := f.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, f.Name))
		h.Set("Content-Type", ct)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("storage: create part: %w", err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", fmt.Errorf("storage: write part: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ Uploader = (*CDNUploader)(nil)
