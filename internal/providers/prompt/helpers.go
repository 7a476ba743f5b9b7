package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	staticProviderName = "static"
	openAIProviderName = "openai"
)

type modelEnhancePayload struct {
	Prompt   string   `json:"prompt"`
	Keywords []string `json:"keywords"`
}

func buildSystemPrompt(req EnhanceRequest) string {
	sb := &strings.Builder{}
	sb.WriteString("You write prompts for an image model whose output is converted into a game-ready 3D asset. ")
	sb.WriteString(`Respond strictly with JSON matching this schema: {"prompt":string,"keywords":string[]}. `)
	sb.WriteString("Rules:")
	for _, rule := range Rules(req.AssetType, req.Avatar) {
		sb.WriteString("\n- ")
		sb.WriteString(rule)
	}
	if custom := strings.TrimSpace(req.CustomPrompt); custom != "" {
		fmt.Fprintf(sb, "\nAdditional instructions from the user: %s", custom)
	}
	return sb.String()
}

func buildUserPrompt(req EnhanceRequest) string {
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "Asset type: %s.", coalesce(req.AssetType, "prop"))
	if sub := strings.TrimSpace(req.Subtype); sub != "" {
		fmt.Fprintf(sb, " Subtype: %s.", sub)
	}
	if style := strings.TrimSpace(req.Style); style != "" {
		fmt.Fprintf(sb, " Art style: %s.", style)
	}
	fmt.Fprintf(sb, " Description: %q", strings.TrimSpace(req.Description))
	return sb.String()
}

// maxKeywords bounds what is stored on the pipeline record.
const maxKeywords = 12

// normalizeKeywords trims punctuation, drops case-insensitive duplicates and
// falls back to the asset type when nothing is left.
func normalizeKeywords(keywords []string, fallback string) []string {
	seen := make(map[string]bool, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.Trim(strings.TrimSpace(kw), ".,;:!?\"'")
		key := strings.ToLower(kw)
		if kw == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, kw)
		if len(out) == maxKeywords {
			break
		}
	}
	if len(out) == 0 && fallback != "" {
		return []string{fallback}
	}
	return out
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// parseModelPayload decodes the JSON object embedded in a model answer,
// tolerating markdown fences and chatter around it.
func parseModelPayload[T any](raw string) (T, error) {
	var out T
	fragment := jsonFragment(raw)
	if fragment == "" {
		return out, errors.New("empty payload")
	}
	err := json.Unmarshal([]byte(fragment), &out)
	return out, err
}

func jsonFragment(raw string) string {
	text := strings.TrimSpace(raw)
	if body, ok := strings.CutPrefix(text, "```"); ok {
		// Drop the info string ("json", "JSON") on the fence line.
		if _, rest, found := strings.Cut(body, "\n"); found {
			body = rest
		}
		if idx := strings.LastIndex(body, "```"); idx >= 0 {
			body = body[:idx]
		}
		text = strings.TrimSpace(body)
	}
	start := strings.IndexAny(text, "{[")
	end := strings.LastIndexAny(text, "]}")
	if start < 0 || end < start {
		return text
	}
	return text[start : end+1]
}
