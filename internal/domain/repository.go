package domain

import (
	"context"
	"time"
)

// PipelineRepository persists Pipeline aggregates. Update writes the whole
// aggregate so a stage transition lands atomically.
type PipelineRepository interface {
	Create(ctx context.Context, p *Pipeline) error
	FindByID(ctx context.Context, id string) (*Pipeline, error)
	Update(ctx context.Context, p *Pipeline) error
	Delete(ctx context.Context, id string) error
	CleanupOlderThan(ctx context.Context, cutoff time.Time, statuses ...PipelineStatus) (int64, error)
}

// JobService persists durable generation jobs.
type JobService interface {
	CreateJob(ctx context.Context, pipelineID string, cfg PipelineConfig, priority Priority) (*GenerationJob, error)
	GetJob(ctx context.Context, jobID string) (*GenerationJob, error)
	GetJobByPipelineID(ctx context.Context, pipelineID string) (*GenerationJob, error)
	UpdateJob(ctx context.Context, pipelineID string, update JobUpdate) error
	DeleteJob(ctx context.Context, pipelineID string) error
	CleanupExpiredJobs(ctx context.Context) (int64, error)
	CleanupOldFailedJobs(ctx context.Context) (int64, error)
}
