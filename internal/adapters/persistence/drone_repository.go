package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/sectorwars/gameserver/internal/domain/drone"
	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// GormDroneRepository implements drone.Repository on a region shard.
type GormDroneRepository struct {
	db *gorm.DB
}

// NewGormDroneRepository creates a new GORM drone repository
func NewGormDroneRepository(db *gorm.DB) *GormDroneRepository {
	return &GormDroneRepository{db: db}
}

// Create persists a new deployment
func (r *GormDroneRepository) Create(ctx context.Context, d *drone.Deployment) error {
	model, err := r.deploymentToModel(d)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).Create(model)
	if result.Error != nil {
		return fmt.Errorf("failed to create deployment: %w", result.Error)
	}
	return nil
}

// FindByID retrieves a deployment by ID
func (r *GormDroneRepository) FindByID(ctx context.Context, regionID shared.RegionID, id shared.DroneDeploymentID) (*drone.Deployment, error) {
	var model DroneDeploymentModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND id = ?", regionID.String(), id.String()).
		First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("deployment")
		}
		return nil, fmt.Errorf("failed to find deployment: %w", result.Error)
	}
	return r.modelToDeployment(&model)
}

// ListBySector retrieves the drone stacks pinned in a sector
func (r *GormDroneRepository) ListBySector(ctx context.Context, regionID shared.RegionID, sector int) ([]*drone.Deployment, error) {
	var models []DroneDeploymentModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND sector = ?", regionID.String(), sector).
		Order("deployed_at").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list deployments: %w", result.Error)
	}
	return r.modelsToDeployments(models)
}

// ListByOwner retrieves a player's deployments across the region
func (r *GormDroneRepository) ListByOwner(ctx context.Context, regionID shared.RegionID, owner shared.PlayerID) ([]*drone.Deployment, error) {
	var models []DroneDeploymentModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND owner_id = ?", regionID.String(), owner.String()).
		Order("deployed_at").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list deployments: %w", result.Error)
	}
	return r.modelsToDeployments(models)
}

// Update saves a deployment guarded by its version
func (r *GormDroneRepository) Update(ctx context.Context, d *drone.Deployment) error {
	model, err := r.deploymentToModel(d)
	if err != nil {
		return err
	}
	model.Version = d.Version + 1
	result := r.db.WithContext(ctx).Where("version = ?", d.Version).Save(model)
	if result.Error != nil {
		return fmt.Errorf("failed to update deployment: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewConflictError("deployment changed concurrently")
	}
	d.Version = model.Version
	return nil
}

// Delete removes a deployment once its stack is destroyed or recalled
func (r *GormDroneRepository) Delete(ctx context.Context, regionID shared.RegionID, id shared.DroneDeploymentID) error {
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND id = ?", regionID.String(), id.String()).
		Delete(&DroneDeploymentModel{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete deployment: %w", result.Error)
	}
	return nil
}

func (r *GormDroneRepository) modelsToDeployments(models []DroneDeploymentModel) ([]*drone.Deployment, error) {
	deployments := make([]*drone.Deployment, 0, len(models))
	for i := range models {
		d, err := r.modelToDeployment(&models[i])
		if err != nil {
			return nil, err
		}
		deployments = append(deployments, d)
	}
	return deployments, nil
}

func (r *GormDroneRepository) deploymentToModel(d *drone.Deployment) (*DroneDeploymentModel, error) {
	behavior, err := json.Marshal(d.Behavior)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal behavior: %w", err)
	}
	return &DroneDeploymentModel{
		ID:         d.ID.String(),
		RegionID:   d.RegionID.String(),
		OwnerID:    d.OwnerID.String(),
		TeamID:     d.TeamID.String(),
		Kind:       string(d.Kind),
		Sector:     d.Sector,
		PinnedToID: d.PinnedToID,
		Count:      d.Count,
		Behavior:   string(behavior),
		DeployedAt: d.DeployedAt,
		UpdatedAt:  d.UpdatedAt,
		Version:    d.Version,
	}, nil
}

func (r *GormDroneRepository) modelToDeployment(model *DroneDeploymentModel) (*drone.Deployment, error) {
	var behavior drone.Behavior
	if model.Behavior != "" {
		if err := json.Unmarshal([]byte(model.Behavior), &behavior); err != nil {
			return nil, fmt.Errorf("corrupt behavior for deployment %s: %w", model.ID, err)
		}
	}
	return &drone.Deployment{
		ID:         shared.DroneDeploymentID(model.ID),
		RegionID:   shared.RegionID(model.RegionID),
		OwnerID:    shared.PlayerID(model.OwnerID),
		TeamID:     shared.TeamID(model.TeamID),
		Kind:       drone.PinKind(model.Kind),
		Sector:     model.Sector,
		PinnedToID: model.PinnedToID,
		Count:      model.Count,
		Behavior:   behavior,
		DeployedAt: model.DeployedAt,
		UpdatedAt:  model.UpdatedAt,
		Version:    model.Version,
	}, nil
}
