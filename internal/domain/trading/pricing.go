// Package trading derives station prices. There is no stored price: every
// quote is computed from the station's class base price, the region's
// specialization, the buyer's reputation with the owning faction, and the
// live supply factor of the market slot. Trades mutate inventory inside the
// same transaction, so the next quote sees the post-trade supply.
package trading

import (
	"math"

	"github.com/sectorwars/gameserver/internal/domain/faction"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/domain/station"
)

// specializationFactors discount what a specialized region produces and
// mark up what it has to import. Missing entries mean 1.0.
var specializationFactors = map[string]map[shared.Commodity]float64{
	"mining": {
		shared.CommodityOre:      0.75,
		shared.CommodityFuel:     0.90,
		shared.CommodityOrganics: 1.20,
	},
	"agricultural": {
		shared.CommodityOrganics:  0.75,
		shared.CommodityColonists: 0.85,
		shared.CommodityEquipment: 1.15,
	},
	"industrial": {
		shared.CommodityEquipment: 0.80,
		shared.CommodityOre:       1.15,
	},
	"commerce": {
		shared.CommodityLuxuries: 0.90,
		shared.CommodityFuel:     0.95,
	},
	"research": {
		shared.CommodityTechnology: 0.80,
		shared.CommodityMedical:    0.90,
	},
	"frontier": {
		shared.CommodityFuel:      1.20,
		shared.CommodityEquipment: 1.15,
		shared.CommodityMedical:   1.25,
	},
}

// SpecializationFactor returns the regional production multiplier for a
// commodity.
func SpecializationFactor(specialization string, c shared.Commodity) float64 {
	if table, ok := specializationFactors[specialization]; ok {
		if f, ok := table[c]; ok {
			return f
		}
	}
	return 1.0
}

// Quote is a computed price pair for one commodity at one station.
type Quote struct {
	Commodity shared.Commodity `json:"commodity"`
	UnitBuy   int64            `json:"unit_buy"`  // player pays per unit, 0 when not sold
	UnitSell  int64            `json:"unit_sell"` // player receives per unit, 0 when not bought
	Stock     int              `json:"stock"`
	Capacity  int              `json:"capacity"`
}

// Pricing carries the per-request context a quote depends on.
type Pricing struct {
	Specialization string
	// ReputationScore is the player's standing with the station's owning
	// faction; zero for independent stations.
	ReputationScore int
	// TradeBonuses are the region's per-commodity bonus multipliers; missing
	// commodities price at 1.
	TradeBonuses map[shared.Commodity]float64
	// TreatyBonus is the best trade-agreement factor the player carries into
	// this region, default 1. It always works in the trader's favor.
	TreatyBonus float64
}

// QuoteSlot prices one market slot under the given context.
func QuoteSlot(slot *station.MarketSlot, p Pricing) Quote {
	bonus := p.TradeBonuses[slot.Commodity]
	if bonus == 0 {
		bonus = 1.0
	}
	treaty := p.TreatyBonus
	if treaty == 0 {
		treaty = 1.0
	}
	spec := SpecializationFactor(p.Specialization, slot.Commodity)
	repBuy, repSell := faction.PriceFactors(p.ReputationScore)
	supply := slot.SupplyFactor()

	q := Quote{Commodity: slot.Commodity, Stock: slot.Quantity, Capacity: slot.Capacity}
	base := float64(slot.BasePrice) * spec * supply * bonus
	if slot.Sells {
		q.UnitBuy = ceilPrice(base * repBuy / treaty)
	}
	if slot.Buys {
		q.UnitSell = floorPrice(base * repSell * treaty)
	}
	return q
}

// QuoteStation prices every slot of a station's market in stable commodity
// order.
func QuoteStation(st *station.Station, p Pricing) []Quote {
	quotes := make([]Quote, 0, len(st.Inventory))
	for _, c := range shared.Commodities() {
		slot, ok := st.Slot(c)
		if !ok {
			continue
		}
		quotes = append(quotes, QuoteSlot(slot, p))
	}
	return quotes
}

// ceilPrice rounds in the station's favor on purchases.
func ceilPrice(v float64) int64 {
	p := int64(math.Ceil(v))
	if p < 1 {
		p = 1
	}
	return p
}

// floorPrice rounds in the station's favor on sales.
func floorPrice(v float64) int64 {
	p := int64(math.Floor(v))
	if p < 1 {
		p = 1
	}
	return p
}
