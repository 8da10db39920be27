package sector

import (
	"context"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// Repository persists sectors and warp links in a region shard.
type Repository interface {
	CreateBatch(ctx context.Context, sectors []*Sector, links []*WarpLink) error
	FindByIndex(ctx context.Context, regionID shared.RegionID, index int) (*Sector, error)
	List(ctx context.Context, regionID shared.RegionID) ([]*Sector, error)
	LinksFrom(ctx context.Context, regionID shared.RegionID, index int) ([]*WarpLink, error)
	Links(ctx context.Context, regionID shared.RegionID) ([]*WarpLink, error)
	Update(ctx context.Context, s *Sector) error
	Count(ctx context.Context, regionID shared.RegionID) (int, error)
}
