package ship

import (
	"context"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// FleetCount tallies one hull class, flying and wrecked apart.
type FleetCount struct {
	Active    int64
	Destroyed int64
}

// Repository persists ships in a region shard.
type Repository interface {
	Create(ctx context.Context, s *Ship) error
	FindByID(ctx context.Context, regionID shared.RegionID, id shared.ShipID) (*Ship, error)
	ListByOwner(ctx context.Context, regionID shared.RegionID, owner shared.PlayerID) ([]*Ship, error)
	ListBySector(ctx context.Context, regionID shared.RegionID, sector int) ([]*Ship, error)
	// Census tallies the region fleet per hull class.
	Census(ctx context.Context, regionID shared.RegionID) (map[HullClass]FleetCount, error)
	Update(ctx context.Context, s *Ship) error
	Delete(ctx context.Context, regionID shared.RegionID, id shared.ShipID) error
}
