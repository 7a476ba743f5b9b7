package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Dexploarer/hyper-forge-sub006/internal/domain"
	"github.com/Dexploarer/hyper-forge-sub006/internal/infra"
	"github.com/Dexploarer/hyper-forge-sub006/internal/sqlinline"
)

// FailedJobRetention is how long failed jobs are kept.
const FailedJobRetention = 7 * 24 * time.Hour

// JobRepositoryPG implements domain.JobService backed by PostgreSQL.
type JobRepositoryPG struct {
	db  infra.SQLExecutor
	now func() time.Time
}

// NewJobRepository creates a job repository. now defaults to time.Now in UTC.
func NewJobRepository(db infra.SQLExecutor, now func() time.Time) *JobRepositoryPG {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &JobRepositoryPG{db: db, now: now}
}

// CreateJob inserts a job in the initializing state.
func (r *JobRepositoryPG) CreateJob(ctx context.Context, pipelineID string, cfg domain.PipelineConfig, priority domain.Priority) (*domain.GenerationJob, error) {
	if err := cfg.RequireOwner(); err != nil {
		return nil, err
	}
	rawCfg, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	row := r.db.QueryRow(ctx, sqlinline.QInsertGenerationJob,
		uuid.NewString(),
		pipelineID,
		cfg.AssetID,
		cfg.Name,
		cfg.User.UserID,
		rawCfg,
		string(domain.ParsePriority(string(priority))),
		string(domain.PipelineStatusInitializing),
		r.now(),
	)
	return scanJob(row)
}

func (r *JobRepositoryPG) GetJob(ctx context.Context, jobID string) (*domain.GenerationJob, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, domain.ErrNotFound
	}
	return scanJob(r.db.QueryRow(ctx, sqlinline.QSelectGenerationJobByID, jobID))
}

func (r *JobRepositoryPG) GetJobByPipelineID(ctx context.Context, pipelineID string) (*domain.GenerationJob, error) {
	return scanJob(r.db.QueryRow(ctx, sqlinline.QSelectGenerationJobByPipelineID, pipelineID))
}

// UpdateJob writes the non-nil fields of update.
func (r *JobRepositoryPG) UpdateJob(ctx context.Context, pipelineID string, update domain.JobUpdate) error {
	var status *string
	if update.Status != nil {
		status = domain.Ptr(string(*update.Status))
	}
	stages, err := nullableJSON(update.Stages, update.Stages != nil)
	if err != nil {
		return err
	}
	results, err := nullableJSON(update.Results, update.Results != nil)
	if err != nil {
		return err
	}
	finalAsset, err := nullableJSON(update.FinalAsset, update.FinalAsset != nil)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, sqlinline.QUpdateGenerationJob,
		pipelineID,
		status,
		update.Progress,
		stages,
		results,
		update.Error,
		update.RetryCount,
		finalAsset,
		update.StartedAt,
		update.CompletedAt,
		update.ExpiresAt,
		r.now(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *JobRepositoryPG) DeleteJob(ctx context.Context, pipelineID string) error {
	tag, err := r.db.Exec(ctx, sqlinline.QDeleteGenerationJob, pipelineID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CleanupExpiredJobs deletes jobs whose expiry has passed.
func (r *JobRepositoryPG) CleanupExpiredJobs(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, sqlinline.QDeleteExpiredGenerationJobs, r.now())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CleanupOldFailedJobs deletes failed jobs untouched for FailedJobRetention.
func (r *JobRepositoryPG) CleanupOldFailedJobs(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, sqlinline.QDeleteOldFailedGenerationJobs, r.now().Add(-FailedJobRetention))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.GenerationJob, error) {
	var (
		job                           domain.GenerationJob
		priority, status              string
		rawCfg, rawStages, rawResults []byte
		rawFinal                      []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.PipelineID,
		&job.AssetID,
		&job.AssetName,
		&job.UserID,
		&rawCfg,
		&priority,
		&status,
		&job.Progress,
		&rawStages,
		&rawResults,
		&job.Error,
		&job.RetryCount,
		&rawFinal,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
		&job.LastUpdatedAt,
		&job.ExpiresAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	job.Priority = domain.Priority(priority)
	job.Status = domain.PipelineStatus(status)
	if err := json.Unmarshal(rawCfg, &job.Config); err != nil {
		return nil, fmt.Errorf("decode job config: %w", err)
	}
	if len(rawStages) > 0 {
		if err := json.Unmarshal(rawStages, &job.Stages); err != nil {
			return nil, fmt.Errorf("decode job stages: %w", err)
		}
	}
	if len(rawResults) > 0 {
		if err := json.Unmarshal(rawResults, &job.Results); err != nil {
			return nil, fmt.Errorf("decode job results: %w", err)
		}
	}
	if len(rawFinal) > 0 && string(rawFinal) != "null" {
		job.FinalAsset = &domain.FinalAsset{}
		if err := json.Unmarshal(rawFinal, job.FinalAsset); err != nil {
			return nil, fmt.Errorf("decode final asset: %w", err)
		}
	}
	return &job, nil
}

// nullableJSON encodes v, or returns nil so the column keeps its value.
func nullableJSON(v any, present bool) ([]byte, error) {
	if !present {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode job field: %w", err)
	}
	return b, nil
}

var _ domain.JobService = (*JobRepositoryPG)(nil)
