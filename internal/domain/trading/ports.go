package trading

import (
	"context"
	"time"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// AlertRepository persists price alerts in a region shard.
type AlertRepository interface {
	Create(ctx context.Context, a *PriceAlert) error
	FindByID(ctx context.Context, regionID shared.RegionID, id string) (*PriceAlert, error)
	ListArmedByStation(ctx context.Context, regionID shared.RegionID, stationID shared.StationID) ([]*PriceAlert, error)
	ListByPlayer(ctx context.Context, regionID shared.RegionID, playerID shared.PlayerID) ([]*PriceAlert, error)
	Update(ctx context.Context, a *PriceAlert) error
	Delete(ctx context.Context, regionID shared.RegionID, id string) error
}

// ContractRepository persists standing market orders in a region shard.
type ContractRepository interface {
	Create(ctx context.Context, c *Contract) error
	FindByID(ctx context.Context, regionID shared.RegionID, id string) (*Contract, error)
	ListOpenByStation(ctx context.Context, regionID shared.RegionID, stationID shared.StationID) ([]*Contract, error)
	ListByPlayer(ctx context.Context, regionID shared.RegionID, playerID shared.PlayerID) ([]*Contract, error)
	ListOpenExpiredBefore(ctx context.Context, regionID shared.RegionID, cutoff time.Time) ([]*Contract, error)
	Update(ctx context.Context, c *Contract) error
}

// LedgerRepository appends immutable trade records in a region shard.
type LedgerRepository interface {
	Record(ctx context.Context, r *TradeRecord) error
	ListByPlayer(ctx context.Context, regionID shared.RegionID, playerID shared.PlayerID, limit int) ([]*TradeRecord, error)
}

// PriceHistoryRepository appends quote samples in a region shard.
type PriceHistoryRepository interface {
	Record(ctx context.Context, p *PricePoint) error
	List(ctx context.Context, regionID shared.RegionID, stationID shared.StationID, c shared.Commodity, since time.Time, limit int) ([]*PricePoint, error)
}
