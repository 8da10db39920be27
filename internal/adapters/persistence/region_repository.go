package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/sectorwars/gameserver/internal/domain/region"
	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// GormRegionRepository implements region.Repository on the global shard.
type GormRegionRepository struct {
	db *gorm.DB
}

// NewGormRegionRepository creates a new GORM region repository
func NewGormRegionRepository(db *gorm.DB) *GormRegionRepository {
	return &GormRegionRepository{db: db}
}

// Create persists a new region
func (r *GormRegionRepository) Create(ctx context.Context, reg *region.Region) error {
	model, err := r.regionToModel(reg)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).Create(model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return shared.NewConflictError("region name already taken")
		}
		return fmt.Errorf("failed to create region: %w", result.Error)
	}
	return nil
}

// FindByID retrieves a region by ID
func (r *GormRegionRepository) FindByID(ctx context.Context, id shared.RegionID) (*region.Region, error) {
	var model RegionModel
	result := r.db.WithContext(ctx).Where("id = ?", id.String()).First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("region")
		}
		return nil, fmt.Errorf("failed to find region: %w", result.Error)
	}
	return r.modelToRegion(&model)
}

// FindByName retrieves a region by its unique name
func (r *GormRegionRepository) FindByName(ctx context.Context, name string) (*region.Region, error) {
	var model RegionModel
	result := r.db.WithContext(ctx).Where("name = ?", name).First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("region")
		}
		return nil, fmt.Errorf("failed to find region: %w", result.Error)
	}
	return r.modelToRegion(&model)
}

// List retrieves every registered region
func (r *GormRegionRepository) List(ctx context.Context) ([]*region.Region, error) {
	var models []RegionModel
	result := r.db.WithContext(ctx).Order("created_at").Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list regions: %w", result.Error)
	}
	return r.modelsToRegions(models)
}

// ListByStatus retrieves regions in one lifecycle state
func (r *GormRegionRepository) ListByStatus(ctx context.Context, status region.Status) ([]*region.Region, error) {
	var models []RegionModel
	result := r.db.WithContext(ctx).Where("status = ?", string(status)).Order("created_at").Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list regions: %w", result.Error)
	}
	return r.modelsToRegions(models)
}

// Update saves a region guarded by its version
func (r *GormRegionRepository) Update(ctx context.Context, reg *region.Region) error {
	model, err := r.regionToModel(reg)
	if err != nil {
		return err
	}
	model.Version = reg.Version + 1
	result := r.db.WithContext(ctx).Where("version = ?", reg.Version).Save(model)
	if result.Error != nil {
		return fmt.Errorf("failed to update region: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewConflictError("region changed concurrently")
	}
	reg.Version = model.Version
	return nil
}

func (r *GormRegionRepository) modelsToRegions(models []RegionModel) ([]*region.Region, error) {
	regions := make([]*region.Region, 0, len(models))
	for i := range models {
		reg, err := r.modelToRegion(&models[i])
		if err != nil {
			return nil, err
		}
		regions = append(regions, reg)
	}
	return regions, nil
}

func (r *GormRegionRepository) regionToModel(reg *region.Region) (*RegionModel, error) {
	bonuses := "{}"
	if len(reg.TradeBonuses) > 0 {
		raw, err := json.Marshal(reg.TradeBonuses)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal trade bonuses: %w", err)
		}
		bonuses = string(raw)
	}
	culture := ""
	if len(reg.Culture) > 0 {
		culture = string(reg.Culture)
	}
	return &RegionModel{
		ID:               reg.ID.String(),
		Name:             reg.Name,
		DisplayName:      reg.DisplayName,
		OwnerAccountID:   reg.OwnerAccountID.String(),
		Status:           string(reg.Status),
		Governance:       string(reg.Governance),
		GovernorPlayerID: reg.GovernorPlayerID.String(),
		TaxRate:          reg.TaxRate,
		VotingThreshold:  reg.VotingThreshold,
		ElectionCadence:  reg.ElectionCadence,
		TradeBonuses:     bonuses,
		Culture:          culture,
		Specialization:   reg.Specialization,
		StartingShip:     reg.StartingShip,
		SectorCount:      reg.SectorCount,
		Seed:             reg.Seed,
		NexusGateSector:  reg.NexusGateSector,
		SubscriptionID:   reg.SubscriptionID,
		EvacuationAt:     reg.EvacuationAt,
		CreatedAt:        reg.CreatedAt,
		UpdatedAt:        reg.UpdatedAt,
		Version:          reg.Version,
	}, nil
}

func (r *GormRegionRepository) modelToRegion(model *RegionModel) (*region.Region, error) {
	var bonuses map[string]float64
	if model.TradeBonuses != "" {
		if err := json.Unmarshal([]byte(model.TradeBonuses), &bonuses); err != nil {
			return nil, fmt.Errorf("corrupt trade bonuses for region %s: %w", model.ID, err)
		}
	}
	var culture json.RawMessage
	if model.Culture != "" {
		culture = json.RawMessage(model.Culture)
	}
	return &region.Region{
		ID:               shared.RegionID(model.ID),
		Name:             model.Name,
		DisplayName:      model.DisplayName,
		OwnerAccountID:   shared.AccountID(model.OwnerAccountID),
		Status:           region.Status(model.Status),
		Governance:       region.GovernanceType(model.Governance),
		GovernorPlayerID: shared.PlayerID(model.GovernorPlayerID),
		TaxRate:          model.TaxRate,
		VotingThreshold:  model.VotingThreshold,
		ElectionCadence:  model.ElectionCadence,
		TradeBonuses:     bonuses,
		Culture:          culture,
		Specialization:   model.Specialization,
		StartingShip:     model.StartingShip,
		SectorCount:      model.SectorCount,
		Seed:             model.Seed,
		NexusGateSector:  model.NexusGateSector,
		SubscriptionID:   model.SubscriptionID,
		EvacuationAt:     model.EvacuationAt,
		CreatedAt:        model.CreatedAt,
		UpdatedAt:        model.UpdatedAt,
		Version:          model.Version,
	}, nil
}

// GormMembershipRepository implements region.MembershipRepository on the
// global shard.
type GormMembershipRepository struct {
	db *gorm.DB
}

// NewGormMembershipRepository creates a new GORM membership repository
func NewGormMembershipRepository(db *gorm.DB) *GormMembershipRepository {
	return &GormMembershipRepository{db: db}
}

// Create persists a first-visit membership
func (r *GormMembershipRepository) Create(ctx context.Context, m *region.Membership) error {
	result := r.db.WithContext(ctx).Create(r.membershipToModel(m))
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return shared.NewConflictError("membership already exists")
		}
		return fmt.Errorf("failed to create membership: %w", result.Error)
	}
	return nil
}

// Find retrieves one player's standing in one region
func (r *GormMembershipRepository) Find(ctx context.Context, playerID shared.PlayerID, regionID shared.RegionID) (*region.Membership, error) {
	var model MembershipModel
	result := r.db.WithContext(ctx).
		Where("player_id = ? AND region_id = ?", playerID.String(), regionID.String()).
		First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("membership")
		}
		return nil, fmt.Errorf("failed to find membership: %w", result.Error)
	}
	return r.modelToMembership(&model), nil
}

// ListByPlayer retrieves a player's standing across all regions
func (r *GormMembershipRepository) ListByPlayer(ctx context.Context, playerID shared.PlayerID) ([]*region.Membership, error) {
	var models []MembershipModel
	result := r.db.WithContext(ctx).Where("player_id = ?", playerID.String()).Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", result.Error)
	}
	return r.modelsToMemberships(models), nil
}

// ListByRegion retrieves every membership a region has granted
func (r *GormMembershipRepository) ListByRegion(ctx context.Context, regionID shared.RegionID) ([]*region.Membership, error) {
	var models []MembershipModel
	result := r.db.WithContext(ctx).Where("region_id = ?", regionID.String()).Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", result.Error)
	}
	return r.modelsToMemberships(models), nil
}

// ListCitizens retrieves the region's voting membership
func (r *GormMembershipRepository) ListCitizens(ctx context.Context, regionID shared.RegionID) ([]*region.Membership, error) {
	var models []MembershipModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND type = ?", regionID.String(), string(region.MembershipCitizen)).
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list citizens: %w", result.Error)
	}
	return r.modelsToMemberships(models), nil
}

// Update saves a membership guarded by its version
func (r *GormMembershipRepository) Update(ctx context.Context, m *region.Membership) error {
	model := r.membershipToModel(m)
	model.Version = m.Version + 1
	result := r.db.WithContext(ctx).Where("version = ?", m.Version).Save(model)
	if result.Error != nil {
		return fmt.Errorf("failed to update membership: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewConflictError("membership changed concurrently")
	}
	m.Version = model.Version
	return nil
}

func (r *GormMembershipRepository) modelsToMemberships(models []MembershipModel) []*region.Membership {
	memberships := make([]*region.Membership, 0, len(models))
	for i := range models {
		memberships = append(memberships, r.modelToMembership(&models[i]))
	}
	return memberships
}

func (r *GormMembershipRepository) membershipToModel(m *region.Membership) *MembershipModel {
	return &MembershipModel{
		PlayerID:     m.PlayerID.String(),
		RegionID:     m.RegionID.String(),
		Type:         string(m.Type),
		Reputation:   m.Reputation,
		VotingWeight: m.VotingWeight,
		VisitCount:   m.VisitCount,
		FirstVisitAt: m.FirstVisitAt,
		LastVisitAt:  m.LastVisitAt,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
		Version:      m.Version,
	}
}

func (r *GormMembershipRepository) modelToMembership(model *MembershipModel) *region.Membership {
	return &region.Membership{
		PlayerID:     shared.PlayerID(model.PlayerID),
		RegionID:     shared.RegionID(model.RegionID),
		Type:         region.MembershipType(model.Type),
		Reputation:   model.Reputation,
		VotingWeight: model.VotingWeight,
		VisitCount:   model.VisitCount,
		FirstVisitAt: model.FirstVisitAt,
		LastVisitAt:  model.LastVisitAt,
		CreatedAt:    model.CreatedAt,
		UpdatedAt:    model.UpdatedAt,
		Version:      model.Version,
	}
}
