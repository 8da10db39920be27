package trading

import (
	"time"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// PricePoint is a sampled station quote, recorded after every fill and on
// each restock tick. History powers charts and the price-alert sweep.
type PricePoint struct {
	RegionID   shared.RegionID
	StationID  shared.StationID
	Commodity  shared.Commodity
	UnitBuy    int64 // price the station charges, 0 when it does not sell
	UnitSell   int64 // price the station pays, 0 when it does not buy
	Stock      int
	RecordedAt time.Time
}

// NewPricePoint freezes one sample.
func NewPricePoint(regionID shared.RegionID, stationID shared.StationID, q Quote, now time.Time) *PricePoint {
	return &PricePoint{
		RegionID:   regionID,
		StationID:  stationID,
		Commodity:  q.Commodity,
		UnitBuy:    q.UnitBuy,
		UnitSell:   q.UnitSell,
		Stock:      q.Stock,
		RecordedAt: now,
	}
}
