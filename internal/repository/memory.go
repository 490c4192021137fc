package repository

import (
	"context"
	"sync"

	"tasksync/internal/models"
)

// MemoryRunRepository keeps the last sync run in process memory. Used
// standalone in single-node deployments and as the failover target when redis
// is down.
type MemoryRunRepository struct {
	mu   sync.RWMutex
	last *models.SyncRun
}

func NewMemoryRunRepository() *MemoryRunRepository {
	return &MemoryRunRepository{}
}

func (r *MemoryRunRepository) SaveRun(ctx context.Context, run *models.SyncRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *run
	r.last = &copied
	return nil
}

func (r *MemoryRunRepository) LastRun(ctx context.Context) (*models.SyncRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.last == nil {
		return nil, nil
	}
	copied := *r.last
	return &copied, nil
}
