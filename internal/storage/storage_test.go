package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func okResponse() *http.Response {
	body, _ := json.Marshal(UploadResult{Success: true, Files: []UploadedFile{{Path: "models/a1/model.glb", URL: "https://cdn.test/models/a1/model.glb", Size: 3}}})
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(string(body)))}
}

func statusResponse(code int) *http.Response {
	return &http.Response{StatusCode: code, Body: io.NopCloser(strings.NewReader("nope"))}
}

func newUploader(t *testing.T, fn roundTripFunc, delays *[]time.Duration) *CDNUploader {
	t.Helper()
	u, err := NewCDNUploader(CDNOptions{
		Endpoint:   "https://cdn.test/upload",
		HTTPClient: &http.Client{Transport: fn},
		Sleep: func(_ context.Context, d time.Duration) error {
			*delays = append(*delays, d)
			return nil
		},
	})
	require.NoError(t, err)
	return u
}

func TestCDNUploaderRetriesServerErrors(t *testing.T) {
	calls := 0
	var delays []time.Duration
	u := newUploader(t, func(r *http.Request) (*http.Response, error) {
		calls++
		if calls < 3 {
			return statusResponse(http.StatusBadGateway), nil
		}
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "a1", r.FormValue("assetId"))
		assert.Len(t, r.MultipartForm.File["files"], 1)
		return okResponse(), nil
	}, &delays)

	res, err := u.Upload(context.Background(), []File{{Name: "model.glb", Data: []byte("glb")}}, UploadOptions{AssetID: "a1", Directory: "models"})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, delays)
	assert.Equal(t, "https://cdn.test/models/a1/model.glb", res.URLFor("model.glb"))
}

func TestCDNUploaderDoesNotRetryClientErrors(t *testing.T) {
	calls := 0
	var delays []time.Duration
	u := newUploader(t, func(*http.Request) (*http.Response, error) {
		calls++
		return statusResponse(http.StatusForbidden), nil
	}, &delays)

	_, err := u.Upload(context.Background(), []File{{Name: "x.glb", Data: []byte("x")}}, UploadOptions{AssetID: "a1"})
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
	assert.Equal(t, 1, calls)
	assert.Empty(t, delays)
}

func TestCDNUploaderGivesUpAfterThreeAttempts(t *testing.T) {
	calls := 0
	var delays []time.Duration
	u := newUploader(t, func(*http.Request) (*http.Response, error) {
		calls++
		return nil, errors.New("connection refused")
	}, &delays)

	_, err := u.Upload(context.Background(), []File{{Name: "x.glb", Data: []byte("x")}}, UploadOptions{AssetID: "a1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, calls)
}

func TestFileStoreUpload(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, "http://localhost:8080/static/")
	require.NoError(t, err)

	res, err := store.Upload(context.Background(), []File{{Name: "model.glb", Data: []byte("abc")}}, UploadOptions{AssetID: "bronze-sword", Directory: "models"})
	require.NoError(t, err)
	require.Len(t, res.Files, 1)
	assert.Equal(t, "models/bronze-sword/model.glb", res.Files[0].Path)
	assert.Equal(t, "http://localhost:8080/static/models/bronze-sword/model.glb", res.Files[0].URL)
	assert.EqualValues(t, 3, res.Files[0].Size)

	data, err := os.ReadFile(filepath.Join(dir, "models", "bronze-sword", "model.glb"))
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
}

func TestSanitizeKeyRejectsTraversal(t *testing.T) {
	for _, key := range []string{"", "..", "../etc/passwd", "a/../../b"} {
		_, err := sanitizeKey(key)
		assert.Error(t, err, key)
	}
	got, err := sanitizeKey("/models//a1/./x.glb")
	require.NoError(t, err)
	assert.Equal(t, "models/a1/x.glb", got)
}

func TestFileStoreWriteReplacesWithoutLeftovers(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, "https://assets.example.com")
	require.NoError(t, err)

	for _, body := range []string{"first", "second"} {
		_, err := store.Write(context.Background(), "models/a1/model.glb", []byte(body))
		require.NoError(t, err)
	}
	entries, err := os.ReadDir(filepath.Join(dir, "models", "a1"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "model.glb", entries[0].Name())

	data, err := os.ReadFile(filepath.Join(dir, "models", "a1", "model.glb"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestFileStoreWriteHonorsContext(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.Write(ctx, "x.bin", []byte("x"))
	require.ErrorIs(t, err, context.Canceled)
}
