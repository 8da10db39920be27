package trade_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sectorwars/gameserver/internal/adapters/persistence"
	"github.com/sectorwars/gameserver/internal/application/common"
	"github.com/sectorwars/gameserver/internal/application/federation"
	"github.com/sectorwars/gameserver/internal/application/trade"
	"github.com/sectorwars/gameserver/internal/domain/account"
	"github.com/sectorwars/gameserver/internal/domain/player"
	"github.com/sectorwars/gameserver/internal/domain/region"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/domain/ship"
	"github.com/sectorwars/gameserver/internal/domain/station"
	"github.com/sectorwars/gameserver/internal/domain/trading"
	"github.com/sectorwars/gameserver/test/helpers"
)

type testShards struct {
	t  *testing.T
	mu sync.Mutex

	gateways map[string]*common.RegionGateways
}

func newTestShards(t *testing.T) *testShards {
	return &testShards{t: t, gateways: map[string]*common.RegionGateways{}}
}

func (s *testShards) Region(_ context.Context, name string) (*common.RegionGateways, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gw, ok := s.gateways[name]; ok {
		return gw, nil
	}
	gw := persistence.NewRegionGateways(helpers.NewRegionTestDB(s.t))
	s.gateways[name] = gw
	return gw, nil
}

func (s *testShards) Evict(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.gateways, name)
	return nil
}

type eventSink struct {
	mu     sync.Mutex
	events []shared.Event
}

func (s *eventSink) Publish(_ context.Context, events ...shared.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

func (s *eventSink) byType(t shared.EventType) []shared.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []shared.Event
	for _, e := range s.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// stubEffects grants the same treaty fold to every region pair.
type stubEffects struct {
	bonus float64
}

func (s stubEffects) TreatyEffects(context.Context, shared.RegionID, shared.RegionID) (federation.Effects, error) {
	eff := federation.NeutralEffects()
	if s.bonus > 0 {
		eff.TradeBonusFactor = s.bonus
	}
	return eff, nil
}

type fixture struct {
	svc         *trade.Service
	clock       *shared.MockClock
	shards      *testShards
	events      *eventSink
	regions     *persistence.GormRegionRepository
	players     *persistence.GormPlayerRepository
	memberships *persistence.GormMembershipRepository
}

func newFixture(t *testing.T, clock *shared.MockClock, effects trade.EffectsSource) *fixture {
	t.Helper()
	db := helpers.NewGlobalTestDB(t)
	shards := newTestShards(t)
	events := &eventSink{}
	regions := persistence.NewGormRegionRepository(db)
	players := persistence.NewGormPlayerRepository(db)
	memberships := persistence.NewGormMembershipRepository(db)
	svc := trade.NewService(
		regions,
		memberships,
		players,
		persistence.NewGormReputationRepository(db),
		effects,
		shards,
		events,
		clock,
	)
	return &fixture{
		svc:         svc,
		clock:       clock,
		shards:      shards,
		events:      events,
		regions:     regions,
		players:     players,
		memberships: memberships,
	}
}

func (f *fixture) seedRegion(t *testing.T, name, specialization string) *region.Region {
	t.Helper()
	ctx := context.Background()
	now := f.clock.Now()
	r, err := region.New(region.Spec{Name: name, SectorCount: 100, Seed: 1, Specialization: specialization}, shared.NewAccountID(), now)
	require.NoError(t, err)
	require.NoError(t, r.Activate(0, now))
	require.NoError(t, f.regions.Create(ctx, r))
	return r
}

// seedTrader docks a freighter pilot at a fresh Mining Depot in sector 1.
func (f *fixture) seedTrader(t *testing.T, r *region.Region, credits shared.Credits) (common.Actor, *player.Player, *ship.Ship, *station.Station) {
	t.Helper()
	ctx := context.Background()
	now := f.clock.Now()

	gw, err := f.shards.Region(ctx, r.Name)
	require.NoError(t, err)
	st, err := station.New(r.ID, 1, "Depot Theta", 1, 100, now)
	require.NoError(t, err)
	require.NoError(t, gw.Stations.Create(ctx, st))

	p, err := player.New(shared.NewAccountID(), "trader-"+r.Name, region.NexusName, now)
	require.NoError(t, err)
	p.Credits = credits
	p.Relocate(r.Name, 1, now)
	require.NoError(t, f.memberships.Create(ctx, region.NewMembership(p.ID, r.ID, now)))

	sh, err := ship.New(p.ID, r.ID, 1, ship.HullLightFreighter, "", now)
	require.NoError(t, err)
	require.NoError(t, gw.Ships.Create(ctx, sh))
	p.BoardShip(sh.ID, now)
	require.NoError(t, f.players.Create(ctx, p))

	actor := common.Actor{AccountID: p.AccountID, PlayerID: p.ID, Role: account.RolePlayer}
	return actor, p, sh, st
}

func TestService_BuyMovesStockCargoAndCredits(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 6, 1, 12, 0, 0, 0, time.UTC))
	f := newFixture(t, clock, nil)
	ctx := context.Background()
	r := f.seedRegion(t, "ore-belt", "mining")
	actor, p, sh, st := f.seedTrader(t, r, 100_000)

	// Act
	receipt, err := f.svc.Buy(ctx, actor, st.ID, shared.CommodityOre, 10)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 10, receipt.Quantity)
	assert.Equal(t, int64(10)*receipt.UnitPrice, receipt.Total)
	assert.Equal(t, shared.Credits(100_000)-shared.Credits(receipt.Total), receipt.Balance)

	gw, err := f.shards.Region(ctx, r.Name)
	require.NoError(t, err)
	freshStation, err := gw.Stations.FindByID(ctx, r.ID, st.ID)
	require.NoError(t, err)
	slot, _ := freshStation.Slot(shared.CommodityOre)
	assert.Equal(t, 40, slot.Quantity, "half-capacity stock of 50 minus the fill")

	freshShip, err := gw.Ships.FindByID(ctx, r.ID, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, freshShip.Cargo.Quantity(shared.CommodityOre))

	freshPlayer, err := f.players.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, receipt.Balance, freshPlayer.Credits)

	lines, err := gw.Ledger.ListByPlayer(ctx, r.ID, p.ID, 10)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, trading.TradeBuy, lines[0].Direction)
	assert.Equal(t, receipt.Total, lines[0].Total)

	executed := f.events.byType(shared.EventTradeExecuted)
	require.Len(t, executed, 1)
	assert.Contains(t, executed[0].Scopes, shared.PlayerScope(p.ID))
}

func TestService_SellRequiresCargo(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 6, 1, 12, 0, 0, 0, time.UTC))
	f := newFixture(t, clock, nil)
	ctx := context.Background()
	r := f.seedRegion(t, "ore-belt", "mining")
	actor, _, sh, st := f.seedTrader(t, r, 10_000)

	// Act: nothing aboard to sell.
	_, err := f.svc.Sell(ctx, actor, st.ID, shared.CommodityOrganics, 5)

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))

	// Load cargo and the same sale clears.
	gw, gwErr := f.shards.Region(ctx, r.Name)
	require.NoError(t, gwErr)
	require.NoError(t, sh.Cargo.Load(shared.CommodityOrganics, 5))
	require.NoError(t, gw.Ships.Update(ctx, sh))

	receipt, err := f.svc.Sell(ctx, actor, st.ID, shared.CommodityOrganics, 5)
	require.NoError(t, err)
	assert.Equal(t, trading.TradeSell, receipt.Direction)
	assert.Equal(t, shared.Credits(10_000)+shared.Credits(receipt.Total), receipt.Balance)

	freshStation, err := gw.Stations.FindByID(ctx, r.ID, st.ID)
	require.NoError(t, err)
	slot, _ := freshStation.Slot(shared.CommodityOrganics)
	assert.Equal(t, 55, slot.Quantity, "stock absorbs the sale")
}

func TestService_PricesFollowInventory(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 6, 1, 12, 0, 0, 0, time.UTC))
	f := newFixture(t, clock, nil)
	ctx := context.Background()
	r := f.seedRegion(t, "ore-belt", "mining")
	actor, _, _, st := f.seedTrader(t, r, 1_000_000)

	before, err := f.svc.Market(ctx, actor, st.ID)
	require.NoError(t, err)
	oreBefore := quoteFor(t, before.Quotes, shared.CommodityOre)

	// Act: drain most of the ore stock.
	_, err = f.svc.Buy(ctx, actor, st.ID, shared.CommodityOre, 40)
	require.NoError(t, err)

	// Assert: scarcity raises the asking price.
	after, err := f.svc.Market(ctx, actor, st.ID)
	require.NoError(t, err)
	oreAfter := quoteFor(t, after.Quotes, shared.CommodityOre)
	assert.Greater(t, oreAfter.UnitBuy, oreBefore.UnitBuy)
	assert.Equal(t, 10, oreAfter.Stock)
}

func TestService_TradeRequiresPresence(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 6, 1, 12, 0, 0, 0, time.UTC))
	f := newFixture(t, clock, nil)
	ctx := context.Background()
	r := f.seedRegion(t, "ore-belt", "mining")
	actor, _, sh, st := f.seedTrader(t, r, 10_000)

	gw, err := f.shards.Region(ctx, r.Name)
	require.NoError(t, err)
	sh.Sector = 2
	require.NoError(t, gw.Ships.Update(ctx, sh))

	// Act
	_, err = f.svc.Buy(ctx, actor, st.ID, shared.CommodityOre, 1)

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))
}

func TestService_AlertFiresOnce(t *testing.T) {
	// Arrange: threshold 1 trips on the first posted price.
	clock := shared.NewMockClock(time.Date(2102, 6, 1, 12, 0, 0, 0, time.UTC))
	f := newFixture(t, clock, nil)
	ctx := context.Background()
	r := f.seedRegion(t, "ore-belt", "mining")
	actor, p, _, st := f.seedTrader(t, r, 100_000)

	alert, err := f.svc.CreateAlert(ctx, actor, st.ID, shared.CommodityOre, trading.AlertAbove, 1)
	require.NoError(t, err)

	// Act
	_, err = f.svc.Buy(ctx, actor, st.ID, shared.CommodityOre, 1)
	require.NoError(t, err)
	_, err = f.svc.Buy(ctx, actor, st.ID, shared.CommodityOre, 1)
	require.NoError(t, err)

	// Assert
	fired := f.events.byType(shared.EventPriceAlertTriggered)
	require.Len(t, fired, 1, "a fired alert stays quiet")
	assert.Contains(t, fired[0].Scopes, shared.PlayerScope(p.ID))
	assert.Equal(t, alert.ID, fired[0].Payload["alert_id"])

	alerts, err := f.svc.ListAlerts(ctx, actor)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.True(t, alerts[0].Triggered)
}

func TestService_ContractSettlesAtStrike(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 6, 1, 12, 0, 0, 0, time.UTC))
	f := newFixture(t, clock, nil)
	ctx := context.Background()
	r := f.seedRegion(t, "ore-belt", "mining")
	actor, _, _, st := f.seedTrader(t, r, 1_000_000)

	ct, err := f.svc.OpenContract(ctx, actor, trade.ContractInput{
		StationID: st.ID,
		Commodity: shared.CommodityOre,
		Side:      trading.ContractBuy,
		Quantity:  10,
		TTL:       24 * time.Hour,
	})
	require.NoError(t, err)

	// The market moves against the holder.
	_, err = f.svc.Buy(ctx, actor, st.ID, shared.CommodityOre, 30)
	require.NoError(t, err)
	view, err := f.svc.Market(ctx, actor, st.ID)
	require.NoError(t, err)
	live := quoteFor(t, view.Quotes, shared.CommodityOre)
	require.Greater(t, live.UnitBuy, ct.StrikePrice, "scarcity must have raised the live price")

	// Act
	receipt, err := f.svc.SettleContract(ctx, actor, ct.ID)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, ct.StrikePrice, receipt.UnitPrice, "settlement fills at the strike")

	contracts, err := f.svc.ListContracts(ctx, actor)
	require.NoError(t, err)
	require.Len(t, contracts, 1)
	assert.Equal(t, trading.ContractFilled, contracts[0].Status)

	// A filled contract cannot settle twice.
	_, err = f.svc.SettleContract(ctx, actor, ct.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))
}

func TestService_ExpireContractsSweep(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 6, 1, 12, 0, 0, 0, time.UTC))
	f := newFixture(t, clock, nil)
	ctx := context.Background()
	r := f.seedRegion(t, "ore-belt", "mining")
	actor, _, _, st := f.seedTrader(t, r, 100_000)

	_, err := f.svc.OpenContract(ctx, actor, trade.ContractInput{
		StationID: st.ID,
		Commodity: shared.CommodityOre,
		Side:      trading.ContractBuy,
		Quantity:  5,
		TTL:       time.Hour,
	})
	require.NoError(t, err)
	clock.Advance(2 * time.Hour)

	// Act
	expired, err := f.svc.ExpireContracts(ctx, r.Name, clock.Now())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, expired)
	contracts, err := f.svc.ListContracts(ctx, actor)
	require.NoError(t, err)
	require.Len(t, contracts, 1)
	assert.Equal(t, trading.ContractExpired, contracts[0].Status)

	again, err := f.svc.ExpireContracts(ctx, r.Name, clock.Now())
	require.NoError(t, err)
	assert.Zero(t, again)
}

func TestService_TreatyBonusImprovesPrices(t *testing.T) {
	// Arrange: every pair holds a 1.25x trade agreement in the stub.
	clock := shared.NewMockClock(time.Date(2102, 6, 1, 12, 0, 0, 0, time.UTC))
	f := newFixture(t, clock, stubEffects{bonus: 1.25})
	ctx := context.Background()
	r := f.seedRegion(t, "ore-belt", "mining")
	home := f.seedRegion(t, "old-home", "commerce")
	actor, p, _, st := f.seedTrader(t, r, 100_000)

	baseline, err := f.svc.Market(ctx, actor, st.ID)
	require.NoError(t, err)
	oreBase := quoteFor(t, baseline.Quotes, shared.CommodityOre)

	// Citizenship elsewhere unlocks the agreement.
	m := region.NewMembership(p.ID, home.ID, f.clock.Now())
	require.NoError(t, m.Promote(region.MembershipCitizen, f.clock.Now()))
	require.NoError(t, f.memberships.Create(ctx, m))

	// Act
	view, err := f.svc.Market(ctx, actor, st.ID)
	require.NoError(t, err)
	oreTreaty := quoteFor(t, view.Quotes, shared.CommodityOre)

	// Assert: cheaper to buy, better to sell.
	assert.Less(t, oreTreaty.UnitBuy, oreBase.UnitBuy)
	organicsBase := quoteFor(t, baseline.Quotes, shared.CommodityOrganics)
	organicsTreaty := quoteFor(t, view.Quotes, shared.CommodityOrganics)
	assert.Greater(t, organicsTreaty.UnitSell, organicsBase.UnitSell)
}

func quoteFor(t *testing.T, quotes []trading.Quote, c shared.Commodity) trading.Quote {
	t.Helper()
	for _, q := range quotes {
		if q.Commodity == c {
			return q
		}
	}
	t.Fatalf("no quote for %s", c)
	return trading.Quote{}
}
