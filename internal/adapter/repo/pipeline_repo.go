package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Dexploarer/hyper-forge-sub006/internal/domain"
	"github.com/Dexploarer/hyper-forge-sub006/internal/infra"
	"github.com/Dexploarer/hyper-forge-sub006/internal/sqlinline"
)

// PipelineRepositoryPG implements domain.PipelineRepository. The aggregate is
// stored as one jsonb document; status and timestamps are duplicated into
// columns for cleanup.
type PipelineRepositoryPG struct {
	db infra.SQLExecutor
}

func NewPipelineRepository(db infra.SQLExecutor) *PipelineRepositoryPG {
	return &PipelineRepositoryPG{db: db}
}

func (r *PipelineRepositoryPG) Create(ctx context.Context, p *domain.Pipeline) error {
	record, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode pipeline: %w", err)
	}
	tag, err := r.db.Exec(ctx, sqlinline.QInsertPipeline, p.ID, string(p.Status), p.Progress, record, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pipeline %s already exists", p.ID)
	}
	return nil
}

func (r *PipelineRepositoryPG) FindByID(ctx context.Context, id string) (*domain.Pipeline, error) {
	var record []byte
	if err := r.db.QueryRow(ctx, sqlinline.QSelectPipelineByID, id).Scan(&record); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	var p domain.Pipeline
	if err := json.Unmarshal(record, &p); err != nil {
		return nil, fmt.Errorf("decode pipeline %s: %w", id, err)
	}
	return &p, nil
}

func (r *PipelineRepositoryPG) Update(ctx context.Context, p *domain.Pipeline) error {
	record, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode pipeline: %w", err)
	}
	tag, err := r.db.Exec(ctx, sqlinline.QUpdatePipeline, p.ID, string(p.Status), p.Progress, record, p.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PipelineRepositoryPG) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, sqlinline.QDeletePipeline, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CleanupOlderThan removes pipelines in any of statuses last touched before cutoff.
func (r *PipelineRepositoryPG) CleanupOlderThan(ctx context.Context, cutoff time.Time, statuses ...domain.PipelineStatus) (int64, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	tag, err := r.db.Exec(ctx, sqlinline.QDeletePipelinesOlderThan, cutoff, names)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ domain.PipelineRepository = (*PipelineRepositoryPG)(nil)
