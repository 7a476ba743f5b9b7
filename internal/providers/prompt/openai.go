package prompt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type OpenAIOptions struct {
	APIKey       string
	Model        string
	BaseURL      string
	Organization string
	HTTPClient   *http.Client
	// Fallback answers whenever the chat call cannot; defaults to the static
	// enhancer.
	Fallback   Enhancer
	OnFallback func(reason string, err error)
	OnWarning  func(reason, detail string)
}

// OpenAIEnhancer rewrites descriptions with a chat-completions model and
// never fails the caller for provider trouble: every provider error is
// answered by the fallback, tagged with a reason.
type OpenAIEnhancer struct {
	apiKey       string
	model        string
	endpoint     string
	organization string
	client       *http.Client
	fallback     Enhancer
	onFallback   func(reason string, err error)
}

const (
	defaultOpenAIModel = "gpt-4o-mini"
	maxErrorBody       = 4 << 10
)

// openAIModels maps accepted spellings to the model sent upstream. Canonical
// names map to themselves.
var openAIModels = map[string]string{
	"gpt-4o":                 "gpt-4o",
	"gpt-4o-mini":            "gpt-4o-mini",
	"gpt-4.1-mini":           "gpt-4.1-mini",
	"gpt4o":                  "gpt-4o",
	"gpt4o-mini":             "gpt-4o-mini",
	"gpt4omini":              "gpt-4o-mini",
	"gpt-4o-2024-08-06":      "gpt-4o",
	"gpt-4o-mini-2024-07-18": "gpt-4o-mini",
	"gpt4.1-mini":            "gpt-4.1-mini",
	"gpt-41-mini":            "gpt-4.1-mini",
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// providerError carries the short reason recorded as fallback_reason.
type providerError struct {
	reason string
	err    error
}

func (e *providerError) Error() string { return e.reason + ": " + e.err.Error() }

func (e *providerError) Unwrap() error { return e.err }

func fail(reason string, err error) *providerError {
	return &providerError{reason: reason, err: err}
}

func NewOpenAIEnhancer(opts OpenAIOptions) (*OpenAIEnhancer, error) {
	key := strings.TrimSpace(opts.APIKey)
	if key == "" {
		return nil, errors.New("openai api key is required")
	}
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	requested := strings.TrimSpace(opts.Model)
	model, adjusted := normalizeOpenAIModel(requested)
	if adjusted != "" && opts.OnWarning != nil {
		opts.OnWarning("model_"+adjusted, fmt.Sprintf("requested=%s resolved=%s", requested, model))
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	fallback := opts.Fallback
	if fallback == nil {
		fallback = NewStaticEnhancer()
	}
	return &OpenAIEnhancer{
		apiKey:       key,
		model:        model,
		endpoint:     base + "/chat/completions",
		organization: strings.TrimSpace(opts.Organization),
		client:       client,
		fallback:     fallback,
		onFallback:   opts.OnFallback,
	}, nil
}

func (o *OpenAIEnhancer) Enhance(ctx context.Context, req EnhanceRequest) (*EnhanceResponse, error) {
	if strings.TrimSpace(req.Description) == "" {
		return nil, errors.New("prompt: description is required")
	}
	text, perr := o.chat(ctx, []chatMessage{
		{Role: "system", Content: buildSystemPrompt(req)},
		{Role: "user", Content: buildUserPrompt(req)},
	})
	if perr == nil {
		parsed, err := parseModelPayload[modelEnhancePayload](text)
		switch {
		case err != nil:
			perr = fail("parse_payload", err)
		case strings.TrimSpace(parsed.Prompt) == "":
			perr = fail("empty_prompt", errors.New("model returned no prompt"))
		default:
			return &EnhanceResponse{
				Prompt:   strings.TrimSpace(parsed.Prompt),
				Keywords: normalizeKeywords(parsed.Keywords, req.AssetType),
				Metadata: map[string]string{"asset_type": req.AssetType, "model": o.model},
				Provider: openAIProviderName,
			}, nil
		}
	}
	// A cancelled caller gets its own error, not a substitute prompt.
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return o.useFallback(ctx, req, perr)
}

// chat performs one completion and returns the first choice's content.
func (o *OpenAIEnhancer) chat(ctx context.Context, messages []chatMessage) (string, *providerError) {
	body, err := json.Marshal(openAIChatRequest{
		Model:          o.model,
		Messages:       messages,
		Temperature:    0.4,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return "", fail("encode_request", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fail("build_request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	if o.organization != "" {
		httpReq.Header.Set("OpenAI-Organization", o.organization)
	}
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", fail("http_request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fail(fmt.Sprintf("http_%d", resp.StatusCode), statusError(resp))
	}
	var out openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fail("decode_response", err)
	}
	if len(out.Choices) == 0 {
		return "", fail("empty_choices", errors.New("no choices"))
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return "", fail("empty_response", errors.New("empty response"))
	}
	return text, nil
}

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var decoded openAIChatResponse
	if json.Unmarshal(raw, &decoded) == nil && decoded.Error != nil && decoded.Error.Message != "" {
		return fmt.Errorf("openai status %d: %s", resp.StatusCode, decoded.Error.Message)
	}
	return fmt.Errorf("openai status %d", resp.StatusCode)
}

func (o *OpenAIEnhancer) useFallback(ctx context.Context, req EnhanceRequest, cause *providerError) (*EnhanceResponse, error) {
	if o.onFallback != nil {
		o.onFallback(cause.reason, cause.err)
	}
	res, err := o.fallback.Enhance(ctx, req)
	if res == nil {
		return nil, err
	}
	if res.Provider == "" {
		res.Provider = staticProviderName
	}
	if res.Metadata == nil {
		res.Metadata = map[string]string{}
	}
	res.Metadata["fallback_reason"] = cause.reason
	return res, err
}

var _ Enhancer = (*OpenAIEnhancer)(nil)

// normalizeOpenAIModel resolves name against openAIModels. The second value
// is "alias" or "defaulted" when the result differs from what was asked for.
func normalizeOpenAIModel(name string) (string, string) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return defaultOpenAIModel, ""
	}
	key = strings.NewReplacer("_", "-", " ", "-").Replace(key)
	model, ok := openAIModels[key]
	switch {
	case !ok:
		return defaultOpenAIModel, "defaulted"
	case model != key:
		return model, "alias"
	}
	return model, ""
}
