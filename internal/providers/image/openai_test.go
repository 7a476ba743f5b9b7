package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func TestOpenAIGeneratorInlineImage(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	var captured openAIImageRequest
	gen, err := NewOpenAIGenerator(OpenAIOptions{
		APIKey: "sk-test",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			if r.URL.Path != "/v1/images/generations" {
				t.Fatalf("path = %s", r.URL.Path)
			}
			if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
				t.Fatalf("decode: %v", err)
			}
			body, _ := json.Marshal(map[string]any{
				"data": []any{map[string]any{"b64_json": base64.StdEncoding.EncodeToString(png)}},
			})
			return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(body))}, nil
		})},
	})
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	assets, err := gen.Generate(context.Background(), GenerateRequest{Prompt: "bronze sword", Quality: "high"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(assets) != 1 || !bytes.Equal(assets[0].Data, png) {
		t.Fatalf("assets = %+v", assets)
	}
	if !strings.HasPrefix(assets[0].Location(), "data:image/png;base64,") {
		t.Fatalf("location = %q", assets[0].Location())
	}
	if captured.Size != "1536x1536" || captured.Quality != "high" || captured.N != 1 {
		t.Fatalf("request = %+v", captured)
	}
}

func TestOpenAIGeneratorErrorStatus(t *testing.T) {
	gen, _ := NewOpenAIGenerator(OpenAIOptions{
		APIKey: "sk-test",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			body := `{"error":{"message":"content policy violation","code":"moderation"}}`
			return &http.Response{StatusCode: http.StatusBadRequest, Body: io.NopCloser(strings.NewReader(body))}, nil
		})},
	})
	_, err := gen.Generate(context.Background(), GenerateRequest{Prompt: "x"})
	if err == nil || !strings.Contains(err.Error(), "content policy violation") {
		t.Fatalf("err = %v", err)
	}
}

func TestBuildAssetPromptDirectives(t *testing.T) {
	got := BuildAssetPrompt("a knight", "character", "low poly", false)
	if !strings.Contains(got, "T-pose") || !strings.Contains(got, "Art style: low poly.") {
		t.Fatalf("prompt = %s", got)
	}
	weapon := BuildAssetPrompt("bronze sword", "weapon", "", false)
	if !strings.Contains(weapon, "blade or head up") {
		t.Fatalf("weapon prompt = %s", weapon)
	}
}
