package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// GormLeaseStore hands out named time-bounded leases backed by the shard the
// work runs against. Ticks lease in their region shard, global sweeps in the
// global shard, so a shard and its lease always live or die together.
type GormLeaseStore struct {
	db *gorm.DB
}

// NewGormLeaseStore creates a new GORM lease store
func NewGormLeaseStore(db *gorm.DB) *GormLeaseStore {
	return &GormLeaseStore{db: db}
}

// Acquire takes or renews the named lease. Returns false when a live lease
// belongs to another holder.
func (s *GormLeaseStore) Acquire(ctx context.Context, name, holder string, ttl time.Duration, now time.Time) (bool, error) {
	acquired := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model SchedulerLeaseModel
		err := tx.Where("name = ?", name).First(&model).Error
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("failed to read lease: %w", err)
			}
			model = SchedulerLeaseModel{Name: name, Holder: holder, ExpiresAt: now.Add(ttl)}
			if err := tx.Create(&model).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					// Lost the race to another holder
					return nil
				}
				return fmt.Errorf("failed to create lease: %w", err)
			}
			acquired = true
			return nil
		}
		if model.Holder != holder && model.ExpiresAt.After(now) {
			return nil
		}
		result := tx.Model(&SchedulerLeaseModel{}).
			Where("name = ? AND (holder = ? OR expires_at <= ?)", name, holder, now).
			Updates(map[string]any{"holder": holder, "expires_at": now.Add(ttl)})
		if result.Error != nil {
			return fmt.Errorf("failed to renew lease: %w", result.Error)
		}
		acquired = result.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return acquired, nil
}

// Release gives the lease up early. Only the current holder's release has any
// effect.
func (s *GormLeaseStore) Release(ctx context.Context, name, holder string) error {
	result := s.db.WithContext(ctx).
		Where("name = ? AND holder = ?", name, holder).
		Delete(&SchedulerLeaseModel{})
	if result.Error != nil {
		return fmt.Errorf("failed to release lease: %w", result.Error)
	}
	return nil
}
