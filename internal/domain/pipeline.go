package domain

import (
	"fmt"
	"time"
)

// PipelineStatus enumerates pipeline (and job) lifecycle states.
type PipelineStatus string

const (
	PipelineStatusInitializing PipelineStatus = "initializing"
	PipelineStatusProcessing   PipelineStatus = "processing"
	PipelineStatusCompleted    PipelineStatus = "completed"
	PipelineStatusFailed       PipelineStatus = "failed"
	PipelineStatusCancelled    PipelineStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are possible.
func (s PipelineStatus) IsTerminal() bool {
	switch s {
	case PipelineStatusCompleted, PipelineStatusFailed, PipelineStatusCancelled:
		return true
	default:
		return false
	}
}

// IsActive reports whether a job in this state may still be picked up.
func (s PipelineStatus) IsActive() bool {
	return s == PipelineStatusInitializing || s == PipelineStatusProcessing
}

var allowedTransitions = map[PipelineStatus][]PipelineStatus{
	PipelineStatusInitializing: {PipelineStatusProcessing, PipelineStatusFailed, PipelineStatusCancelled},
	PipelineStatusProcessing:   {PipelineStatusCompleted, PipelineStatusFailed, PipelineStatusCancelled},
}

// StageName identifies a pipeline stage. Values double as JSON keys.
type StageName string

const (
	StagePromptOptimization StageName = "promptOptimization"
	StageImageGeneration    StageName = "imageGeneration"
	StageImage3D            StageName = "image3D"
	StageTextureGeneration  StageName = "textureGeneration"
	StageRigging            StageName = "rigging"
)

// StageOrder is the fixed execution order.
var StageOrder = []StageName{
	StagePromptOptimization,
	StageImageGeneration,
	StageImage3D,
	StageTextureGeneration,
	StageRigging,
}

// StageStatus enumerates per-stage states.
type StageStatus string

const (
	StageStatusPending    StageStatus = "pending"
	StageStatusProcessing StageStatus = "processing"
	StageStatusCompleted  StageStatus = "completed"
	StageStatusFailed     StageStatus = "failed"
	StageStatusSkipped    StageStatus = "skipped"
)

// IsTerminal reports whether the stage has finished one way or another.
func (s StageStatus) IsTerminal() bool {
	return s == StageStatusCompleted || s == StageStatusFailed || s == StageStatusSkipped
}

// Dimensions are model extents in meters after normalization.
type Dimensions struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Depth  float64 `json:"depth"`
}

// StageResult is the per-stage sub-record. The stage payload lives in
// Pipeline.Results under the same key.
type StageResult struct {
	Status      StageStatus `json:"status"`
	Progress    int         `json:"progress"`
	Error       string      `json:"error,omitempty"`
	Normalized  bool        `json:"normalized,omitempty"`
	Dimensions  *Dimensions `json:"dimensions,omitempty"`
	StartedAt   *time.Time  `json:"startedAt,omitempty"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
}

// Pipeline is the execution record of one asset-generation run.
type Pipeline struct {
	ID            string                     `json:"id"`
	Config        PipelineConfig             `json:"config"`
	Status        PipelineStatus             `json:"status"`
	Progress      int                        `json:"progress"`
	Stages        map[StageName]*StageResult `json:"stages"`
	Results       PipelineResults            `json:"results"`
	FinalAsset    *FinalAsset                `json:"finalAsset,omitempty"`
	Error         string                     `json:"error,omitempty"`
	ErrorStage    StageName                  `json:"errorStage,omitempty"`
	ErrorCategory string                     `json:"errorCategory,omitempty"`
	Warnings      []string                   `json:"warnings,omitempty"`
	CreatedAt     time.Time                  `json:"createdAt"`
	StartedAt     *time.Time                 `json:"startedAt,omitempty"`
	CompletedAt   *time.Time                 `json:"completedAt,omitempty"`
	UpdatedAt     time.Time                  `json:"updatedAt"`
	ExpiresAt     *time.Time                 `json:"expiresAt,omitempty"`
}

// Stage returns the stage record, creating a pending one if missing.
func (p *Pipeline) Stage(name StageName) *StageResult {
	if p.Stages == nil {
		p.Stages = make(map[StageName]*StageResult)
	}
	sr, ok := p.Stages[name]
	if !ok || sr == nil {
		sr = &StageResult{Status: StageStatusPending}
		p.Stages[name] = sr
	}
	return sr
}

// Transition moves the pipeline to next, rejecting backward moves.
func (p *Pipeline) Transition(next PipelineStatus, now time.Time) error {
	if p.Status == next {
		return nil
	}
	for _, allowed := range allowedTransitions[p.Status] {
		if allowed != next {
			continue
		}
		p.Status = next
		p.UpdatedAt = now
		switch {
		case next == PipelineStatusProcessing && p.StartedAt == nil:
			p.StartedAt = &now
		case next.IsTerminal():
			p.CompletedAt = &now
		}
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, next)
}

// AdvanceProgress raises progress to pct; it never lowers it.
func (p *Pipeline) AdvanceProgress(pct int) {
	if pct > 100 {
		pct = 100
	}
	if pct > p.Progress {
		p.Progress = pct
	}
}

// Clone returns a deep-enough copy for handing out snapshots.
func (p *Pipeline) Clone() *Pipeline {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Stages = make(map[StageName]*StageResult, len(p.Stages))
	for k, v := range p.Stages {
		if v == nil {
			continue
		}
		sr := *v
		cp.Stages[k] = &sr
	}
	cp.Warnings = append([]string(nil), p.Warnings...)
	return &cp
}
