package domain

import "time"

// Priority selects the queue lane a job is placed on.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// ParsePriority maps free-form input onto a supported lane.
func ParsePriority(s string) Priority {
	switch Priority(s) {
	case PriorityHigh, PriorityLow:
		return Priority(s)
	default:
		return PriorityNormal
	}
}

// GenerationJob is the durable, restart-safe counterpart of a Pipeline.
type GenerationJob struct {
	ID            string                     `json:"id"`
	PipelineID    string                     `json:"pipelineId"`
	AssetID       string                     `json:"assetId"`
	AssetName     string                     `json:"assetName"`
	UserID        string                     `json:"userId"`
	Config        PipelineConfig             `json:"config"`
	Priority      Priority                   `json:"priority"`
	Status        PipelineStatus             `json:"status"`
	Progress      int                        `json:"progress"`
	Stages        map[StageName]*StageResult `json:"stages"`
	Results       PipelineResults            `json:"results"`
	Error         string                     `json:"error,omitempty"`
	RetryCount    int                        `json:"retryCount"`
	FinalAsset    *FinalAsset                `json:"finalAsset,omitempty"`
	CreatedAt     time.Time                  `json:"createdAt"`
	StartedAt     *time.Time                 `json:"startedAt,omitempty"`
	CompletedAt   *time.Time                 `json:"completedAt,omitempty"`
	LastUpdatedAt time.Time                  `json:"lastUpdatedAt"`
	ExpiresAt     *time.Time                 `json:"expiresAt,omitempty"`
}

// JobUpdate is a partial update; nil fields are left untouched.
type JobUpdate struct {
	Status      *PipelineStatus
	Progress    *int
	Stages      map[StageName]*StageResult
	Results     *PipelineResults
	Error       *string
	RetryCount  *int
	FinalAsset  *FinalAsset
	StartedAt   *time.Time
	CompletedAt *time.Time
	ExpiresAt   *time.Time
}

// Apply merges the update into job. Used by in-memory implementations and tests.
func (u JobUpdate) Apply(job *GenerationJob, now time.Time) {
	if u.Status != nil {
		job.Status = *u.Status
	}
	if u.Progress != nil {
		job.Progress = *u.Progress
	}
	if u.Stages != nil {
		job.Stages = u.Stages
	}
	if u.Results != nil {
		job.Results = *u.Results
	}
	if u.Error != nil {
		job.Error = *u.Error
	}
	if u.RetryCount != nil {
		job.RetryCount = *u.RetryCount
	}
	if u.FinalAsset != nil {
		job.FinalAsset = u.FinalAsset
	}
	if u.StartedAt != nil {
		job.StartedAt = u.StartedAt
	}
	if u.CompletedAt != nil {
		job.CompletedAt = u.CompletedAt
	}
	if u.ExpiresAt != nil {
		job.ExpiresAt = u.ExpiresAt
	}
	job.LastUpdatedAt = now
}

// Ptr is a small helper for building partial updates.
func Ptr[T any](v T) *T {
	return &v
}
