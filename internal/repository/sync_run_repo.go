package repository

import (
	"context"
	"time"

	"qonto-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SyncRunRepository struct {
	db *gorm.DB
}

func NewSyncRunRepository(db *gorm.DB) *SyncRunRepository {
	return &SyncRunRepository{db: db}
}

func (r *SyncRunRepository) Create(ctx context.Context, run *models.SyncRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *SyncRunRepository) Save(ctx context.Context, run *models.SyncRun) error {
	return r.db.WithContext(ctx).Save(run).Error
}

// FindRunning returns the open run for resource, or nil
func (r *SyncRunRepository) FindRunning(ctx context.Context, resource string) (*models.SyncRun, error) {
	return r.first(ctx, r.db.WithContext(ctx).
		Where("resource = ? AND status = ?", resource, models.SyncRunning).
		Order("started_at DESC"))
}

// LastSuccessful returns the latest run that finished without failures, or nil
func (r *SyncRunRepository) LastSuccessful(ctx context.Context, resource string) (*models.SyncRun, error) {
	return r.first(ctx, r.db.WithContext(ctx).
		Where("resource = ? AND status = ? AND finished_at IS NOT NULL", resource, models.SyncSuccess).
		Order("finished_at DESC"))
}

// Last returns the most recent run whatever its status, or nil
func (r *SyncRunRepository) Last(ctx context.Context, resource string) (*models.SyncRun, error) {
	return r.first(ctx, r.db.WithContext(ctx).
		Where("resource = ?", resource).
		Order("started_at DESC"))
}

// ExpireStale fails running runs started before cutoff; their owner is gone
func (r *SyncRunRepository) ExpireStale(ctx context.Context, resource string, cutoff time.Time, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.SyncRun{}).
		Where("resource = ? AND status = ? AND started_at < ?", resource, models.SyncRunning, cutoff).
		Updates(map[string]interface{}{
			"status":      models.SyncFailed,
			"finished_at": now,
			"message":     "abandoned: run exceeded its lock duration",
		})
	return result.RowsAffected, result.Error
}

func (r *SyncRunRepository) first(ctx context.Context, q *gorm.DB) (*models.SyncRun, error) {
	var run models.SyncRun
	if err := q.Limit(1).Find(&run).Error; err != nil {
		return nil, err
	}
	if run.ID == uuid.Nil {
		return nil, nil
	}
	return &run, nil
}
