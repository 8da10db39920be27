package drone

import (
	"context"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// Repository persists drone deployments in a region shard.
type Repository interface {
	Create(ctx context.Context, d *Deployment) error
	FindByID(ctx context.Context, regionID shared.RegionID, id shared.DroneDeploymentID) (*Deployment, error)
	ListBySector(ctx context.Context, regionID shared.RegionID, sector int) ([]*Deployment, error)
	ListByOwner(ctx context.Context, regionID shared.RegionID, owner shared.PlayerID) ([]*Deployment, error)
	Update(ctx context.Context, d *Deployment) error
	Delete(ctx context.Context, regionID shared.RegionID, id shared.DroneDeploymentID) error
}
