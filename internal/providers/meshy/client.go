// Package meshy talks to the Meshy image-to-3D, retexture and rigging APIs.
package meshy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Dexploarer/hyper-forge-sub006/internal/infra"
	"github.com/Dexploarer/hyper-forge-sub006/internal/poller"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("meshy: api key is required")

// APIError is a non-2xx answer from the vendor.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("meshy: status %d: %s", e.StatusCode, e.Message)
}

// Options configures the Meshy client.
type Options struct {
	APIKey         string
	BaseURL        string
	AIModel        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls against the Meshy open API.
type Client struct {
	apiKey     string
	baseURL    string
	aiModel    string
	httpClient *http.Client
	logger     *infra.Logger
}

// ImageTo3DRequest carries the conversion inputs.
type ImageTo3DRequest struct {
	ImageURL          string
	EnablePBR         bool
	TargetPolycount   int
	TextureResolution int
	Topology          string
}

// RetextureRequest restyles the model produced by a previous task.
type RetextureRequest struct {
	InputTaskID      string
	StylePrompt      string
	EnablePBR        bool
	EnableOriginalUV bool
}

// RiggingRequest rigs a humanoid model produced by a previous task.
type RiggingRequest struct {
	InputTaskID  string
	HeightMeters float64
}

// ModelOutput is the payload of a finished conversion or retexture task.
type ModelOutput struct {
	ModelURL     string
	ThumbnailURL string
}

// RiggingOutput is the payload of a finished rigging task.
type RiggingOutput struct {
	RiggedModelURL string
	WalkingURL     string
	RunningURL     string
}

type createResponse struct {
	Result string `json:"result"`
}

type taskError struct {
	Message string `json:"message"`
}

type modelTaskResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Progress  int    `json:"progress"`
	ModelURLs struct {
		GLB string `json:"glb"`
	} `json:"model_urls"`
	ThumbnailURL string    `json:"thumbnail_url"`
	TaskError    taskError `json:"task_error"`
}

type riggingTaskResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Result   struct {
		RiggedCharacterGLBURL string `json:"rigged_character_glb_url"`
		BasicAnimations       struct {
			WalkingGLBURL string `json:"walking_glb_url"`
			RunningGLBURL string `json:"running_glb_url"`
		} `json:"basic_animations"`
	} `json:"result"`
	TaskError taskError `json:"task_error"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.meshy.ai"
	}
	aiModel := strings.TrimSpace(opts.AIModel)
	if aiModel == "" {
		aiModel = "meshy-5"
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		aiModel:    aiModel,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// CreateImageTo3D submits a conversion task and returns its id.
func (c *Client) CreateImageTo3D(ctx context.Context, req ImageTo3DRequest) (string, error) {
	if strings.TrimSpace(req.ImageURL) == "" {
		return "", errors.New("meshy: image url is required")
	}
	topology := req.Topology
	if topology == "" {
		topology = "triangle"
	}
	payload := map[string]any{
		"image_url":        req.ImageURL,
		"ai_model":         c.aiModel,
		"enable_pbr":       req.EnablePBR,
		"should_remesh":    true,
		"should_texture":   true,
		"topology":         topology,
		"target_polycount": req.TargetPolycount,
	}
	if req.TextureResolution > 0 {
		payload["texture_resolution"] = req.TextureResolution
	}
	return c.create(ctx, "/openapi/v1/image-to-3d", payload)
}

// GetImageTo3DTask fetches the state of a conversion task.
func (c *Client) GetImageTo3DTask(ctx context.Context, taskID string) (poller.Task[ModelOutput], error) {
	var resp modelTaskResponse
	if err := c.doJSON(ctx, http.MethodGet, "/openapi/v1/image-to-3d/"+url.PathEscape(taskID), nil, &resp); err != nil {
		return poller.Task[ModelOutput]{}, err
	}
	return resp.toTask(taskID), nil
}

// CreateRetexture submits a retexture task against a finished conversion.
func (c *Client) CreateRetexture(ctx context.Context, req RetextureRequest) (string, error) {
	if req.InputTaskID == "" {
		return "", errors.New("meshy: input task id is required")
	}
	payload := map[string]any{
		"input_task_id":      req.InputTaskID,
		"text_style_prompt":  req.StylePrompt,
		"enable_pbr":         req.EnablePBR,
		"enable_original_uv": req.EnableOriginalUV,
		"ai_model":           c.aiModel,
	}
	return c.create(ctx, "/openapi/v1/retexture", payload)
}

// GetRetextureTask fetches the state of a retexture task.
func (c *Client) GetRetextureTask(ctx context.Context, taskID string) (poller.Task[ModelOutput], error) {
	var resp modelTaskResponse
	if err := c.doJSON(ctx, http.MethodGet, "/openapi/v1/retexture/"+url.PathEscape(taskID), nil, &resp); err != nil {
		return poller.Task[ModelOutput]{}, err
	}
	return resp.toTask(taskID), nil
}

// CreateRigging submits a rigging task against a finished conversion.
func (c *Client) CreateRigging(ctx context.Context, req RiggingRequest) (string, error) {
	if req.InputTaskID == "" {
		return "", errors.New("meshy: input task id is required")
	}
	payload := map[string]any{"input_task_id": req.InputTaskID}
	if req.HeightMeters > 0 {
		payload["height_meters"] = req.HeightMeters
	}
	return c.create(ctx, "/openapi/v1/rigging", payload)
}

// GetRiggingTask fetches the state of a rigging task.
func (c *Client) GetRiggingTask(ctx context.Context, taskID string) (poller.Task[RiggingOutput], error) {
	var resp riggingTaskResponse
	if err := c.doJSON(ctx, http.MethodGet, "/openapi/v1/rigging/"+url.PathEscape(taskID), nil, &resp); err != nil {
		return poller.Task[RiggingOutput]{}, err
	}
	id := resp.ID
	if id == "" {
		id = taskID
	}
	return poller.Task[RiggingOutput]{
		ID:       id,
		Status:   normalizeStatus(resp.Status),
		Progress: resp.Progress,
		Error:    resp.TaskError.Message,
		Result: RiggingOutput{
			RiggedModelURL: resp.Result.RiggedCharacterGLBURL,
			WalkingURL:     resp.Result.BasicAnimations.WalkingGLBURL,
			RunningURL:     resp.Result.BasicAnimations.RunningGLBURL,
		},
	}, nil
}

// Download fetches a produced artifact.
func (c *Client) Download(ctx context.Context, assetURL string) ([]byte, error) {
	parsed, err := url.Parse(strings.TrimSpace(assetURL))
	if err != nil || parsed.Scheme == "" {
		return nil, fmt.Errorf("meshy: invalid asset url: %s", assetURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("meshy: build download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("meshy: download asset: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "download failed"}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("meshy: read asset: %w", err)
	}
	return data, nil
}

func (c *Client) create(ctx context.Context, path string, payload map[string]any) (string, error) {
	var resp createResponse
	if err := c.doJSON(ctx, http.MethodPost, path, payload, &resp); err != nil {
		return "", err
	}
	if resp.Result == "" {
		return "", errors.New("meshy: empty task id")
	}
	c.logger.Debug().
		Str("endpoint", path).
		Str("task_id", resp.Result).
		Msg("meshy: task submitted")
	return resp.Result, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any, out any) error {
	if !c.HasCredentials() {
		return ErrMissingAPIKey
	}
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("meshy: encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("meshy: build request: %w", err)
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("meshy: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("meshy: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(raw))
		var detail errorResponse
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Message != "" {
			msg = detail.Message
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("meshy: decode response: %w", err)
	}
	return nil
}

func (r modelTaskResponse) toTask(fallbackID string) poller.Task[ModelOutput] {
	id := r.ID
	if id == "" {
		id = fallbackID
	}
	return poller.Task[ModelOutput]{
		ID:       id,
		Status:   normalizeStatus(r.Status),
		Progress: r.Progress,
		Error:    r.TaskError.Message,
		Result:   ModelOutput{ModelURL: r.ModelURLs.GLB, ThumbnailURL: r.ThumbnailURL},
	}
}

func normalizeStatus(s string) poller.Status {
	switch st := poller.Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case poller.StatusPending, poller.StatusInProgress, poller.StatusSucceeded,
		poller.StatusFailed, poller.StatusCanceled, poller.StatusExpired:
		return st
	case "CANCELLED":
		return poller.StatusCanceled
	default:
		return poller.StatusPending
	}
}
