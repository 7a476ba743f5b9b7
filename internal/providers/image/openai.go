package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Dexploarer/hyper-forge-sub006/internal/infra"
)

// ErrMissingAPIKey indicates that the generator was configured without credentials.
var ErrMissingAPIKey = errors.New("openai images: api key is required")

// OpenAIOptions configures the OpenAI Images generator.
type OpenAIOptions struct {
	APIKey         string
	BaseURL        string
	Model          string
	Organization   string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// OpenAIGenerator calls the OpenAI Images API.
type OpenAIGenerator struct {
	apiKey       string
	baseURL      string
	model        string
	organization string
	httpClient   *http.Client
	logger       *infra.Logger
}

type openAIImageRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	N       int    `json:"n"`
	Size    string `json:"size,omitempty"`
	Quality string `json:"quality,omitempty"`
}

type openAIImageResponse struct {
	Data []struct {
		URL     string `json:"url"`
		B64JSON string `json:"b64_json"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// NewOpenAIGenerator constructs a generator with sane defaults.
func NewOpenAIGenerator(opts OpenAIOptions) (*OpenAIGenerator, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gpt-image-1"
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &OpenAIGenerator{
		apiKey:       strings.TrimSpace(opts.APIKey),
		baseURL:      baseURL,
		model:        model,
		organization: strings.TrimSpace(opts.Organization),
		httpClient:   httpClient,
		logger:       logger,
	}, nil
}

// Generate fulfils the Generator interface.
func (g *OpenAIGenerator) Generate(ctx context.Context, req GenerateRequest) ([]Asset, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, errors.New("openai images: prompt is required")
	}
	quantity := req.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	size := strings.TrimSpace(req.Size)
	if size == "" {
		size = SizeForQuality(req.Quality)
	}
	payload := openAIImageRequest{
		Model:  g.model,
		Prompt: prompt,
		N:      quantity,
		Size:   size,
	}
	if q := strings.ToLower(strings.TrimSpace(req.Quality)); q == "high" || q == "ultra" {
		payload.Quality = "high"
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("openai images: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/images/generations", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai images: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	if g.organization != "" {
		httpReq.Header.Set("OpenAI-Organization", g.organization)
	}

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai images: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai images: read response: %w", err)
	}
	var decoded openAIImageResponse
	decodeErr := json.Unmarshal(raw, &decoded)
	if resp.StatusCode >= 300 {
		if decodeErr == nil && decoded.Error != nil && decoded.Error.Message != "" {
			return nil, fmt.Errorf("openai images: status %d: %s", resp.StatusCode, decoded.Error.Message)
		}
		return nil, fmt.Errorf("openai images: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("openai images: decode response: %w", decodeErr)
	}

	assets := make([]Asset, 0, len(decoded.Data))
	for _, item := range decoded.Data {
		switch {
		case strings.TrimSpace(item.URL) != "":
			assets = append(assets, Asset{URL: strings.TrimSpace(item.URL), Format: "image/png"})
		case item.B64JSON != "":
			data, err := base64.StdEncoding.DecodeString(item.B64JSON)
			if err != nil {
				return nil, fmt.Errorf("openai images: decode image bytes: %w", err)
			}
			assets = append(assets, Asset{Data: data, Format: "image/png"})
		}
	}
	if len(assets) == 0 {
		return nil, errors.New("openai images: empty response")
	}
	g.logger.Debug().
		Str("model", g.model).
		Str("request_id", req.RequestID).
		Int("count", len(assets)).
		Msg("openai images: generated concept art")
	return assets, nil
}

var _ Generator = (*OpenAIGenerator)(nil)
