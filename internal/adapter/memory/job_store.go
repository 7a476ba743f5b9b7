// Package memory holds in-process implementations of the domain stores for
// tests and single-node development runs.
package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Dexploarer/hyper-forge-sub006/internal/domain"
)

// FailedJobRetention is how long failed jobs are kept before cleanup.
const FailedJobRetention = 7 * 24 * time.Hour

// JobStore is a domain.JobService backed by a map keyed on pipeline id.
// Jobs are copied on the way in and out.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string][]byte
	now  func() time.Time
}

func NewJobStore(now func() time.Time) *JobStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &JobStore{jobs: make(map[string][]byte), now: now}
}

func (s *JobStore) CreateJob(_ context.Context, pipelineID string, cfg domain.PipelineConfig, priority domain.Priority) (*domain.GenerationJob, error) {
	if err := cfg.RequireOwner(); err != nil {
		return nil, err
	}
	now := s.now()
	job := &domain.GenerationJob{
		ID:            uuid.NewString(),
		PipelineID:    pipelineID,
		AssetID:       cfg.AssetID,
		AssetName:     cfg.Name,
		UserID:        cfg.User.UserID,
		Config:        cfg,
		Priority:      domain.ParsePriority(string(priority)),
		Status:        domain.PipelineStatusInitializing,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
	if err := s.put(job); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *JobStore) GetJob(_ context.Context, jobID string) (*domain.GenerationJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, raw := range s.jobs {
		job, err := decode(raw)
		if err != nil {
			return nil, err
		}
		if job.ID == jobID {
			return job, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *JobStore) GetJobByPipelineID(_ context.Context, pipelineID string) (*domain.GenerationJob, error) {
	s.mu.RLock()
	raw, ok := s.jobs[pipelineID]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return decode(raw)
}

func (s *JobStore) UpdateJob(_ context.Context, pipelineID string, update domain.JobUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.jobs[pipelineID]
	if !ok {
		return domain.ErrNotFound
	}
	job, err := decode(raw)
	if err != nil {
		return err
	}
	update.Apply(job, s.now())
	raw, err = json.Marshal(job)
	if err != nil {
		return err
	}
	s.jobs[pipelineID] = raw
	return nil
}

func (s *JobStore) DeleteJob(_ context.Context, pipelineID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[pipelineID]; !ok {
		return domain.ErrNotFound
	}
	delete(s.jobs, pipelineID)
	return nil
}

func (s *JobStore) CleanupExpiredJobs(context.Context) (int64, error) {
	now := s.now()
	return s.deleteWhere(func(j *domain.GenerationJob) bool {
		return j.ExpiresAt != nil && j.ExpiresAt.Before(now)
	})
}

func (s *JobStore) CleanupOldFailedJobs(context.Context) (int64, error) {
	cutoff := s.now().Add(-FailedJobRetention)
	return s.deleteWhere(func(j *domain.GenerationJob) bool {
		return j.Status == domain.PipelineStatusFailed && j.LastUpdatedAt.Before(cutoff)
	})
}

// Len reports the number of stored jobs.
func (s *JobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

func (s *JobStore) put(job *domain.GenerationJob) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.PipelineID] = raw
	return nil
}

func (s *JobStore) deleteWhere(match func(*domain.GenerationJob) bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, raw := range s.jobs {
		job, err := decode(raw)
		if err != nil {
			return n, err
		}
		if match(job) {
			delete(s.jobs, id)
			n++
		}
	}
	return n, nil
}

func decode(raw []byte) (*domain.GenerationJob, error) {
	var job domain.GenerationJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

var _ domain.JobService = (*JobStore)(nil)
