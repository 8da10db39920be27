package trading_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/domain/station"
	"github.com/sectorwars/gameserver/internal/domain/trading"
)

func fuelSlot(quantity, capacity int, base int64) *station.MarketSlot {
	return &station.MarketSlot{
		Commodity: shared.CommodityFuel,
		Quantity:  quantity,
		Capacity:  capacity,
		BasePrice: base,
		Buys:      true,
		Sells:     true,
	}
}

func TestQuoteAtNeutralStandingAndHalfStockIsTheBasePrice(t *testing.T) {
	q := trading.QuoteSlot(fuelSlot(500, 1000, 40), trading.Pricing{})
	assert.Equal(t, int64(40), q.UnitBuy)
	assert.Equal(t, int64(40), q.UnitSell)
	assert.Equal(t, 500, q.Stock)
	assert.Equal(t, 1000, q.Capacity)
}

func TestSupplyFactorPricesScarcity(t *testing.T) {
	empty := trading.QuoteSlot(fuelSlot(0, 1000, 40), trading.Pricing{})
	assert.Equal(t, int64(60), empty.UnitBuy, "an empty slot trades at 1.5x base")

	full := trading.QuoteSlot(fuelSlot(1000, 1000, 40), trading.Pricing{})
	assert.Equal(t, int64(20), full.UnitBuy, "a full slot trades at 0.5x base")
}

func TestReputationMovesBothSidesOfTheQuote(t *testing.T) {
	nemesis := trading.QuoteSlot(fuelSlot(500, 1000, 40), trading.Pricing{ReputationScore: -1000})
	assert.Equal(t, int64(50), nemesis.UnitBuy, "a nemesis pays 1.25x")
	assert.Equal(t, int64(30), nemesis.UnitSell, "a nemesis receives 0.75x")

	exalted := trading.QuoteSlot(fuelSlot(500, 1000, 40), trading.Pricing{ReputationScore: 1000})
	assert.Less(t, exalted.UnitBuy, int64(40))
	assert.Greater(t, exalted.UnitSell, int64(40))
}

func TestSpecializationDiscountsLocalProduction(t *testing.T) {
	ore := &station.MarketSlot{
		Commodity: shared.CommodityOre,
		Quantity:  500,
		Capacity:  1000,
		BasePrice: 40,
		Sells:     true,
	}
	q := trading.QuoteSlot(ore, trading.Pricing{Specialization: "mining"})
	assert.Equal(t, int64(30), q.UnitBuy, "a mining region sells ore at 0.75x")

	assert.Equal(t, 1.0, trading.SpecializationFactor("", shared.CommodityOre))
	assert.Equal(t, 1.0, trading.SpecializationFactor("mining", shared.CommodityLuxuries))
}

func TestTreatyBonusAlwaysFavorsTheTrader(t *testing.T) {
	p := trading.Pricing{TreatyBonus: 1.25}
	q := trading.QuoteSlot(fuelSlot(500, 1000, 40), p)
	assert.Equal(t, int64(32), q.UnitBuy, "purchases divide by the treaty factor")
	assert.Equal(t, int64(50), q.UnitSell, "sales multiply by the treaty factor")
}

func TestQuotesNeverDropBelowOneCredit(t *testing.T) {
	q := trading.QuoteSlot(fuelSlot(1000, 1000, 1), trading.Pricing{ReputationScore: -1000})
	assert.Equal(t, int64(1), q.UnitBuy)
	assert.Equal(t, int64(1), q.UnitSell)
}

func TestOneSidedSlotsQuoteZeroForTheMissingSide(t *testing.T) {
	sellOnly := fuelSlot(500, 1000, 40)
	sellOnly.Buys = false
	q := trading.QuoteSlot(sellOnly, trading.Pricing{})
	assert.Equal(t, int64(40), q.UnitBuy)
	assert.Zero(t, q.UnitSell)
}

func TestQuoteStationReturnsStableCommodityOrder(t *testing.T) {
	st, err := station.New(shared.NewRegionID(), 1, "Meridian Exchange", 0, 1000, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	quotes := trading.QuoteStation(st, trading.Pricing{})
	assert.Len(t, quotes, len(st.Inventory))

	order := map[shared.Commodity]int{}
	for i, c := range shared.Commodities() {
		order[c] = i
	}
	for i := 1; i < len(quotes); i++ {
		assert.Less(t, order[quotes[i-1].Commodity], order[quotes[i].Commodity])
	}
}
