package planet

import (
	"context"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// Repository persists planets in a region shard.
type Repository interface {
	Create(ctx context.Context, p *Planet) error
	CreateBatch(ctx context.Context, planets []*Planet) error
	FindByID(ctx context.Context, regionID shared.RegionID, id shared.PlanetID) (*Planet, error)
	ListBySector(ctx context.Context, regionID shared.RegionID, sector int) ([]*Planet, error)
	ListByOwner(ctx context.Context, regionID shared.RegionID, owner shared.PlayerID) ([]*Planet, error)
	ListColonized(ctx context.Context, regionID shared.RegionID) ([]*Planet, error)
	Update(ctx context.Context, p *Planet) error
}
