package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/sectorwars/gameserver/internal/domain/bounty"
	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// GormBountyRepository implements bounty.Repository on a region shard
type GormBountyRepository struct {
	db *gorm.DB
}

// NewGormBountyRepository creates a new GORM bounty repository
func NewGormBountyRepository(db *gorm.DB) *GormBountyRepository {
	return &GormBountyRepository{db: db}
}

// Create persists a newly posted bounty
func (r *GormBountyRepository) Create(ctx context.Context, b *bounty.Bounty) error {
	result := r.db.WithContext(ctx).Create(r.bountyToModel(b))
	if result.Error != nil {
		return fmt.Errorf("failed to create bounty: %w", result.Error)
	}
	return nil
}

// FindByID retrieves a bounty by ID
func (r *GormBountyRepository) FindByID(ctx context.Context, regionID shared.RegionID, id string) (*bounty.Bounty, error) {
	var model BountyModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND id = ?", regionID.String(), id).
		First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("bounty")
		}
		return nil, fmt.Errorf("failed to find bounty: %w", result.Error)
	}
	return r.modelToBounty(&model), nil
}

// ListOpen retrieves the bounty board, richest first
func (r *GormBountyRepository) ListOpen(ctx context.Context, regionID shared.RegionID, limit int) ([]*bounty.Bounty, error) {
	if limit < 1 {
		limit = 50
	}
	var models []BountyModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND status = ?", regionID.String(), string(bounty.StatusOpen)).
		Order("amount DESC").
		Limit(limit).
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list bounties: %w", result.Error)
	}
	return r.modelsToBounties(models), nil
}

// ListOpenByTarget finds open bounties on a player, checked when combat
// resolves against them
func (r *GormBountyRepository) ListOpenByTarget(ctx context.Context, regionID shared.RegionID, target shared.PlayerID) ([]*bounty.Bounty, error) {
	var models []BountyModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND target_id = ? AND status = ?",
			regionID.String(), target.String(), string(bounty.StatusOpen)).
		Order("created_at").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list bounties on target: %w", result.Error)
	}
	return r.modelsToBounties(models), nil
}

// ListOpenExpiredBefore finds open bounties past their expiry, the refund
// sweep's work list
func (r *GormBountyRepository) ListOpenExpiredBefore(ctx context.Context, regionID shared.RegionID, cutoff time.Time) ([]*bounty.Bounty, error) {
	var models []BountyModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND status = ? AND expires_at < ?",
			regionID.String(), string(bounty.StatusOpen), cutoff).
		Order("expires_at").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list expired bounties: %w", result.Error)
	}
	return r.modelsToBounties(models), nil
}

// Update saves bounty changes guarded by the version check
func (r *GormBountyRepository) Update(ctx context.Context, b *bounty.Bounty) error {
	model := r.bountyToModel(b)
	model.Version = b.Version + 1
	result := r.db.WithContext(ctx).
		Where("version = ?", b.Version).
		Save(model)
	if result.Error != nil {
		return fmt.Errorf("failed to update bounty: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewConflictError("bounty changed concurrently")
	}
	b.Version = model.Version
	return nil
}

func (r *GormBountyRepository) modelsToBounties(models []BountyModel) []*bounty.Bounty {
	bounties := make([]*bounty.Bounty, 0, len(models))
	for i := range models {
		bounties = append(bounties, r.modelToBounty(&models[i]))
	}
	return bounties
}

func (r *GormBountyRepository) bountyToModel(b *bounty.Bounty) *BountyModel {
	return &BountyModel{
		ID:        b.ID,
		RegionID:  b.RegionID.String(),
		PostedBy:  b.PostedBy.String(),
		TargetID:  b.TargetID.String(),
		Amount:    int64(b.Amount),
		Reason:    b.Reason,
		Status:    string(b.Status),
		ClaimedBy: b.ClaimedBy.String(),
		ClaimedAt: b.ClaimedAt,
		ExpiresAt: b.ExpiresAt,
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
		Version:   b.Version,
	}
}

func (r *GormBountyRepository) modelToBounty(model *BountyModel) *bounty.Bounty {
	return &bounty.Bounty{
		ID:        model.ID,
		RegionID:  shared.RegionID(model.RegionID),
		PostedBy:  shared.PlayerID(model.PostedBy),
		TargetID:  shared.PlayerID(model.TargetID),
		Amount:    shared.Credits(model.Amount),
		Reason:    model.Reason,
		Status:    bounty.Status(model.Status),
		ClaimedBy: shared.PlayerID(model.ClaimedBy),
		ClaimedAt: model.ClaimedAt,
		ExpiresAt: model.ExpiresAt,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
		Version:   model.Version,
	}
}
