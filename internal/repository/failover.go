package repository

import (
	"context"
	"sync/atomic"
	"time"

	"tasksync/internal/domain"
	"tasksync/internal/models"

	"github.com/rs/zerolog"
)

// FailoverRunRepository prefers the primary (redis) and silently degrades to
// the fallback (memory) when the primary errors, probing the primary again
// after a recovery window.
type FailoverRunRepository struct {
	primary   domain.RunStateRepository
	fallback  domain.RunStateRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck time.Time
}

func NewFailoverRunRepository(primary, fallback domain.RunStateRepository, logger *zerolog.Logger) *FailoverRunRepository {
	return &FailoverRunRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverRunRepository) SaveRun(ctx context.Context, run *models.SyncRun) error {
	if !r.isDown.Load() {
		err := r.primary.SaveRun(ctx, run)
		if err == nil {
			// Mirror into the fallback so a later failover still has data.
			_ = r.fallback.SaveRun(ctx, run)
			return nil
		}
		r.logger.Error().Err(err).Msg("Primary run repository failed, falling back to memory")
		r.isDown.Store(true)
		r.lastCheck = time.Now()
	}

	return r.fallback.SaveRun(ctx, run)
}

func (r *FailoverRunRepository) LastRun(ctx context.Context) (*models.SyncRun, error) {
	if !r.isDown.Load() {
		run, err := r.primary.LastRun(ctx)
		if err == nil {
			return run, nil
		}
		r.logger.Error().Err(err).Msg("Primary run repository failed, falling back to memory")
		r.isDown.Store(true)
		r.lastCheck = time.Now()
	}

	// Try to recover after 1 minute
	if r.isDown.Load() && time.Since(r.lastCheck) > time.Minute {
		run, err := r.primary.LastRun(ctx)
		if err == nil {
			r.isDown.Store(false)
			return run, nil
		}
		r.lastCheck = time.Now()
	}

	return r.fallback.LastRun(ctx)
}
