package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Dexploarer/hyper-forge-sub006/internal/domain"
	"github.com/Dexploarer/hyper-forge-sub006/internal/glb"
	"github.com/Dexploarer/hyper-forge-sub006/internal/poller"
	"github.com/Dexploarer/hyper-forge-sub006/internal/providers/image"
	"github.com/Dexploarer/hyper-forge-sub006/internal/providers/meshy"
	"github.com/Dexploarer/hyper-forge-sub006/internal/providers/prompt"
	"github.com/Dexploarer/hyper-forge-sub006/internal/storage"
)

const testPipelineID = "0b7f3c1e-9d2a-4c55-8f61-2a9e7d3b4c10"

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// boxGLB builds a model whose only mesh spans the given box. The accessor
// has no buffer view, so bounds come from its declared min/max.
func boxGLB(t *testing.T, min, max [3]float64, extra map[string]any) []byte {
	t.Helper()
	doc := map[string]any{
		"asset":  map[string]any{"version": "2.0"},
		"scene":  0,
		"scenes": []any{map[string]any{"nodes": []int{0}}},
		"nodes":  []any{map[string]any{"name": "Body", "mesh": 0}},
		"meshes": []any{map[string]any{"primitives": []any{map[string]any{"attributes": map[string]int{"POSITION": 0}}}}},
		"accessors": []any{map[string]any{
			"componentType": 5126,
			"count":         8,
			"type":          "VEC3",
			"min":           min[:],
			"max":           max[:],
		}},
	}
	for k, v := range extra {
		doc[k] = v
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	c := &glb.Container{Version: 2, Chunks: []glb.Chunk{{Type: [4]byte{'J', 'S', 'O', 'N'}, Data: raw}}}
	return c.Bytes()
}

type fakeVendor struct {
	mu sync.Mutex

	// convertPending is how many polls report IN_PROGRESS before success.
	convertPending int
	convertFail    bool
	convertPolls   int
	onConvertPoll  func(n int)
	created        []meshy.ImageTo3DRequest

	retextures    []meshy.RetextureRequest
	failingStyles map[string]bool

	riggingFail bool
	rigged      []meshy.RiggingRequest

	model   []byte
	walking []byte
	running []byte
}

func (f *fakeVendor) CreateImageTo3D(_ context.Context, req meshy.ImageTo3DRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, req)
	return "conv-1", nil
}

func (f *fakeVendor) GetImageTo3DTask(_ context.Context, taskID string) (poller.Task[meshy.ModelOutput], error) {
	f.mu.Lock()
	f.convertPolls++
	n := f.convertPolls
	hook := f.onConvertPoll
	f.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	switch {
	case f.convertFail:
		return poller.Task[meshy.ModelOutput]{ID: taskID, Status: poller.StatusFailed, Error: "unprocessable image"}, nil
	case n <= f.convertPending:
		return poller.Task[meshy.ModelOutput]{ID: taskID, Status: poller.StatusInProgress, Progress: 40}, nil
	}
	return poller.Task[meshy.ModelOutput]{
		ID:     taskID,
		Status: poller.StatusSucceeded,
		Result: meshy.ModelOutput{ModelURL: "https://assets.vendor.test/" + taskID + "/model.glb"},
	}, nil
}

func (f *fakeVendor) CreateRetexture(_ context.Context, req meshy.RetextureRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retextures = append(f.retextures, req)
	return fmt.Sprintf("rt-%d", len(f.retextures)), nil
}

func (f *fakeVendor) GetRetextureTask(_ context.Context, taskID string) (poller.Task[meshy.ModelOutput], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var idx int
	fmt.Sscanf(taskID, "rt-%d", &idx)
	if idx > 0 && f.failingStyles[f.retextures[idx-1].StylePrompt] {
		return poller.Task[meshy.ModelOutput]{ID: taskID, Status: poller.StatusFailed, Error: "texture generation failed"}, nil
	}
	return poller.Task[meshy.ModelOutput]{
		ID:     taskID,
		Status: poller.StatusSucceeded,
		Result: meshy.ModelOutput{ModelURL: "https://assets.vendor.test/" + taskID + "/model.glb"},
	}, nil
}

func (f *fakeVendor) CreateRigging(_ context.Context, req meshy.RiggingRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rigged = append(f.rigged, req)
	return "rig-1", nil
}

func (f *fakeVendor) GetRiggingTask(_ context.Context, taskID string) (poller.Task[meshy.RiggingOutput], error) {
	if f.riggingFail {
		return poller.Task[meshy.RiggingOutput]{ID: taskID, Status: poller.StatusFailed, Error: "pose estimation failed"}, nil
	}
	return poller.Task[meshy.RiggingOutput]{
		ID:     taskID,
		Status: poller.StatusSucceeded,
		Result: meshy.RiggingOutput{
			RiggedModelURL: "https://assets.vendor.test/rig-1/rigged.glb",
			WalkingURL:     "https://assets.vendor.test/rig-1/walking.glb",
			RunningURL:     "https://assets.vendor.test/rig-1/running.glb",
		},
	}, nil
}

func (f *fakeVendor) Download(_ context.Context, url string) ([]byte, error) {
	switch {
	case strings.HasSuffix(url, "walking.glb"):
		return f.walking, nil
	case strings.HasSuffix(url, "running.glb"):
		return f.running, nil
	}
	return f.model, nil
}

type upload struct {
	Opts  storage.UploadOptions
	Names []string
}

type fakeUploader struct {
	mu      sync.Mutex
	uploads []upload
	err     error
}

func (u *fakeUploader) Upload(_ context.Context, files []storage.File, opts storage.UploadOptions) (*storage.UploadResult, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return nil, u.err
	}
	rec := upload{Opts: opts}
	res := &storage.UploadResult{Success: true}
	for _, f := range files {
		rec.Names = append(rec.Names, f.Name)
		key := opts.Directory + "/" + opts.AssetID + "/" + f.Name
		res.Files = append(res.Files, storage.UploadedFile{Path: key, URL: "https://cdn.test/" + key, Size: int64(len(f.Data))})
	}
	u.uploads = append(u.uploads, rec)
	return res, nil
}

func (u *fakeUploader) names(dir string) []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	var out []string
	for _, rec := range u.uploads {
		if rec.Opts.Directory == dir {
			out = append(out, rec.Names...)
		}
	}
	return out
}

type fakeImages struct {
	mu       sync.Mutex
	requests []image.GenerateRequest
	assets   []image.Asset
	err      error
}

func (g *fakeImages) Generate(_ context.Context, req image.GenerateRequest) ([]image.Asset, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return nil, g.err
	}
	if g.assets != nil {
		return g.assets, nil
	}
	return []image.Asset{{URL: "https://images.test/concept.png", Format: "image/png"}}, nil
}

type fakeEnhancer struct {
	calls int
	resp  *prompt.EnhanceResponse
	err   error
}

func (e *fakeEnhancer) Enhance(_ context.Context, req prompt.EnhanceRequest) (*prompt.EnhanceResponse, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	if e.resp != nil {
		return e.resp, nil
	}
	return &prompt.EnhanceResponse{Prompt: "Enhanced: " + req.Description, Keywords: []string{req.AssetType}, Provider: "fake"}, nil
}

type fakeJobs struct {
	mu      sync.Mutex
	updates []domain.JobUpdate
	expired int64
	failed  int64
}

func (j *fakeJobs) CreateJob(context.Context, string, domain.PipelineConfig, domain.Priority) (*domain.GenerationJob, error) {
	return nil, fmt.Errorf("not implemented")
}

func (j *fakeJobs) GetJob(context.Context, string) (*domain.GenerationJob, error) {
	return nil, domain.ErrNotFound
}

func (j *fakeJobs) GetJobByPipelineID(context.Context, string) (*domain.GenerationJob, error) {
	return nil, domain.ErrNotFound
}

func (j *fakeJobs) UpdateJob(_ context.Context, _ string, u domain.JobUpdate) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.updates = append(j.updates, u)
	return nil
}

func (j *fakeJobs) DeleteJob(context.Context, string) error { return nil }

func (j *fakeJobs) CleanupExpiredJobs(context.Context) (int64, error) { return j.expired, nil }

func (j *fakeJobs) CleanupOldFailedJobs(context.Context) (int64, error) { return j.failed, nil }

type harness struct {
	svc      *Service
	repo     *MemoryRepository
	vendor   *fakeVendor
	uploader *fakeUploader
	images   *fakeImages
	jobs     *fakeJobs
}

func newHarness(t *testing.T, mutate func(*Dependencies)) *harness {
	t.Helper()
	h := &harness{
		repo:     NewMemoryRepository(),
		vendor:   &fakeVendor{model: []byte("not a binary model")},
		uploader: &fakeUploader{},
		images:   &fakeImages{},
		jobs:     &fakeJobs{},
	}
	deps := Dependencies{
		Repo:      h.repo,
		Jobs:      h.jobs,
		Images:    h.images,
		Models:    h.vendor,
		Uploader:  h.uploader,
		Now:       func() time.Time { return fixedNow },
		NewID:     func() string { return testPipelineID },
		PollSleep: func(context.Context, time.Duration) error { return nil },
	}
	if mutate != nil {
		mutate(&deps)
	}
	svc, err := NewService(context.Background(), deps)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	h.svc = svc
	return h
}

// start runs a pipeline to completion and returns the stored record.
func (h *harness) start(t *testing.T, cfg domain.PipelineConfig) *domain.Pipeline {
	t.Helper()
	res, err := h.svc.StartPipeline(context.Background(), cfg)
	require.NoError(t, err)
	h.svc.Wait()
	p, err := h.svc.GetPipelineStatus(context.Background(), res.PipelineID)
	require.NoError(t, err)
	return p
}
