package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Dexploarer/hyper-forge-sub006/internal/domain"
)

// MemoryRepository keeps pipelines in process. Records are stored encoded
// so callers never share pointers with the store.
type MemoryRepository struct {
	mu    sync.RWMutex
	items map[string][]byte
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[string][]byte)}
}

func (r *MemoryRepository) Create(_ context.Context, p *domain.Pipeline) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[p.ID]; ok {
		return fmt.Errorf("pipeline %s already exists", p.ID)
	}
	r.items[p.ID] = raw
	return nil
}

func (r *MemoryRepository) FindByID(_ context.Context, id string) (*domain.Pipeline, error) {
	r.mu.RLock()
	raw, ok := r.items[id]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	var p domain.Pipeline
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *MemoryRepository) Update(_ context.Context, p *domain.Pipeline) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[p.ID]; !ok {
		return domain.ErrNotFound
	}
	r.items[p.ID] = raw
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

// CleanupOlderThan removes pipelines in one of statuses last updated before cutoff.
func (r *MemoryRepository) CleanupOlderThan(_ context.Context, cutoff time.Time, statuses ...domain.PipelineStatus) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, raw := range r.items {
		var p domain.Pipeline
		if err := json.Unmarshal(raw, &p); err != nil {
			return n, err
		}
		if !p.UpdatedAt.Before(cutoff) {
			continue
		}
		for _, st := range statuses {
			if p.Status == st {
				delete(r.items, id)
				n++
				break
			}
		}
	}
	return n, nil
}

var _ domain.PipelineRepository = (*MemoryRepository)(nil)
