package prompt

import (
	"context"
	"strings"
)

// EnhanceRequest describes the asset whose generation prompt should be improved.
type EnhanceRequest struct {
	Description  string
	AssetType    string
	Subtype      string
	Style        string
	Avatar       bool
	CustomPrompt string
}

// EnhanceResponse is the improved prompt. Metadata["fallback_reason"] is set
// when a provider could not answer and a fallback produced the result.
type EnhanceResponse struct {
	Prompt   string            `json:"prompt"`
	Keywords []string          `json:"keywords"`
	Metadata map[string]string `json:"metadata"`
	Provider string            `json:"-"`
}

// FallbackReason returns the recorded fallback reason, if any.
func (r *EnhanceResponse) FallbackReason() string {
	if r == nil || r.Metadata == nil {
		return ""
	}
	return r.Metadata["fallback_reason"]
}

type Enhancer interface {
	Enhance(ctx context.Context, req EnhanceRequest) (*EnhanceResponse, error)
}

// StaticEnhancer returns the description unchanged.
type StaticEnhancer struct{}

func NewStaticEnhancer() *StaticEnhancer {
	return &StaticEnhancer{}
}

func (s *StaticEnhancer) Enhance(ctx context.Context, req EnhanceRequest) (*EnhanceResponse, error) {
	desc := strings.TrimSpace(req.Description)
	return &EnhanceResponse{
		Prompt:   desc,
		Keywords: normalizeKeywords(strings.Fields(desc), req.AssetType),
		Metadata: map[string]string{"asset_type": req.AssetType},
		Provider: staticProviderName,
	}, nil
}

var _ Enhancer = (*StaticEnhancer)(nil)
