package station

import (
	"context"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// Repository persists stations in a region shard.
type Repository interface {
	Create(ctx context.Context, s *Station) error
	CreateBatch(ctx context.Context, stations []*Station) error
	FindByID(ctx context.Context, regionID shared.RegionID, id shared.StationID) (*Station, error)
	FindBySector(ctx context.Context, regionID shared.RegionID, sector int) (*Station, error)
	List(ctx context.Context, regionID shared.RegionID) ([]*Station, error)
	Update(ctx context.Context, s *Station) error
}
