package movement_test

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
	"github.com/sectorwars/gameserver/internal/application/movement"
	"github.com/sectorwars/gameserver/internal/domain/account"
	"github.com/sectorwars/gameserver/internal/domain/combat"
	"github.com/sectorwars/gameserver/internal/domain/planet"
	"github.com/sectorwars/gameserver/internal/domain/player"
	"github.com/sectorwars/gameserver/internal/domain/region"
	"github.com/sectorwars/gameserver/internal/domain/sector"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/domain/ship"
	"github.com/sectorwars/gameserver/internal/domain/station"
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

type fixture struct {
	svc         *movement.Service
	clock       *shared.MockClock
	shards      *testShards
	events      *eventSink
	regions     *persistence.GormRegionRepository
	players     *persistence.GormPlayerRepository
	memberships *persistence.GormMembershipRepository
}

func newFixture(t *testing.T, clock *shared.MockClock) *fixture {
	t.Helper()
	db := helpers.NewGlobalTestDB(t)
	shards := newTestShards(t)
	events := &eventSink{}
	regions := persistence.NewGormRegionRepository(db)
	players := persistence.NewGormPlayerRepository(db)
	memberships := persistence.NewGormMembershipRepository(db)
	svc := movement.NewService(regions, memberships, players, shards, events, clock)
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

// link describes one test edge, bidirectional unless oneWay.
type link struct {
	from, to    int
	cost        int
	toll        int64
	restriction sector.Restriction
	oneWay      bool
}

// seedRegion lays out an active region with the given hand-built topology.
func (f *fixture) seedRegion(t *testing.T, name string, sectorCount int, topology []link) *region.Region {
	t.Helper()
	ctx := context.Background()
	now := f.clock.Now()

	r, err := region.New(region.Spec{Name: name, SectorCount: 100, Seed: 1}, shared.NewAccountID(), now)
	require.NoError(t, err)
	require.NoError(t, r.Activate(0, now))
	require.NoError(t, f.regions.Create(ctx, r))

	gw, err := f.shards.Region(ctx, name)
	require.NoError(t, err)
	sectors := make([]*sector.Sector, 0, sectorCount)
	for i := 1; i <= sectorCount; i++ {
		sec, err := sector.New(r.ID, i, "", sector.TypeNormal, 0, 0, 5, now)
		require.NoError(t, err)
		sectors = append(sectors, sec)
	}
	var links []*sector.WarpLink
	for _, l := range topology {
		edge, err := sector.NewWarpLink(r.ID, l.from, l.to, l.cost, now)
		require.NoError(t, err)
		require.NoError(t, edge.SetToll(l.toll))
		require.NoError(t, edge.SetRestriction(l.restriction))
		edge.OneWay = l.oneWay
		links = append(links, edge)
		if !l.oneWay {
			back, err := sector.NewWarpLink(r.ID, l.to, l.from, l.cost, now)
			require.NoError(t, err)
			require.NoError(t, back.SetToll(l.toll))
			require.NoError(t, back.SetRestriction(l.restriction))
			links = append(links, back)
		}
	}
	require.NoError(t, gw.Sectors.CreateBatch(ctx, sectors, links))
	return r
}

// seedPilot places a persona in the region at sector 1 with a boarded scout.
func (f *fixture) seedPilot(t *testing.T, name string, r *region.Region, credits shared.Credits) (common.Actor, *player.Player, *ship.Ship) {
	t.Helper()
	ctx := context.Background()
	now := f.clock.Now()

	p, err := player.New(shared.NewAccountID(), name, region.NexusName, now)
	require.NoError(t, err)
	p.Credits = credits
	p.Relocate(r.Name, 1, now)
	require.NoError(t, f.memberships.Create(ctx, region.NewMembership(p.ID, r.ID, now)))

	gw, err := f.shards.Region(ctx, r.Name)
	require.NoError(t, err)
	sh, err := ship.New(p.ID, r.ID, 1, ship.HullScout, "", now)
	require.NoError(t, err)
	require.NoError(t, gw.Ships.Create(ctx, sh))

	p.BoardShip(sh.ID, now)
	require.NoError(t, f.players.Create(ctx, p))
	return common.Actor{AccountID: p.AccountID, PlayerID: p.ID, Role: account.RolePlayer}, p, sh
}

func TestService_MoveBurnsFuelAndAnnounces(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 5, 2, 10, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "calm-expanse", 3, []link{{from: 1, to: 2, cost: 2}, {from: 2, to: 3, cost: 1}})
	actor, p, sh := f.seedPilot(t, "drifter", r, 500)
	fuelBefore := sh.Fuel

	// Act
	res, err := f.svc.Move(ctx, actor, 2)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 2, res.Sector.Index)
	assert.Equal(t, 2, res.TurnCost)
	assert.Equal(t, fuelBefore-2, res.FuelRemaining)
	assert.Greater(t, res.Sector.Traffic, 1, "arrival bumps traffic")

	fresh, err := f.players.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.CurrentSector)

	entered := f.events.byType(shared.EventShipEnteredSector)
	require.Len(t, entered, 1)
	assert.Contains(t, entered[0].Scopes, shared.SectorScope(r.Name, 2))
	left := f.events.byType(shared.EventShipLeftSector)
	require.Len(t, left, 1)
	assert.Contains(t, left[0].Scopes, shared.SectorScope(r.Name, 1))
}

func TestService_MoveRequiresALink(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 5, 2, 10, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "calm-expanse", 3, []link{{from: 1, to: 2, cost: 1}})
	actor, _, _ := f.seedPilot(t, "drifter", r, 500)

	// Act
	_, err := f.svc.Move(ctx, actor, 3)

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))
}

func TestService_TollsChargeThePilot(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 5, 2, 10, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "toll-run", 2, []link{{from: 1, to: 2, cost: 1, toll: 50}})
	broke, _, brokeShip := f.seedPilot(t, "pauper", r, 40)
	rich, richPersona, _ := f.seedPilot(t, "magnate", r, 200)

	// Act
	_, brokeErr := f.svc.Move(ctx, broke, 2)
	res, richErr := f.svc.Move(ctx, rich, 2)

	// Assert
	require.Error(t, brokeErr)
	assert.Equal(t, shared.CodeInsufficientCred, shared.CodeOf(brokeErr))
	gw, err := f.shards.Region(ctx, r.Name)
	require.NoError(t, err)
	held, err := gw.Ships.FindByID(ctx, r.ID, brokeShip.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, held.Sector, "a refused toll leaves the ship in place")

	require.NoError(t, richErr)
	assert.Equal(t, int64(50), res.TollPaid)
	fresh, err := f.players.FindByID(ctx, richPersona.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.Credits(150), fresh.Credits)
}

func TestService_RestrictedLinkNeedsTier(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 5, 2, 10, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "gated-reach", 2, []link{{from: 1, to: 2, cost: 1, restriction: sector.RestrictCitizens}})
	actor, p, _ := f.seedPilot(t, "newcomer", r, 500)

	// Act: a visitor is turned away.
	_, err := f.svc.Move(ctx, actor, 2)

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrForbidden))

	// A citizen clears the same link.
	m, err := f.memberships.Find(ctx, p.ID, r.ID)
	require.NoError(t, err)
	require.NoError(t, m.Promote(region.MembershipCitizen, f.clock.Now()))
	require.NoError(t, f.memberships.Update(ctx, m))

	res, err := f.svc.Move(ctx, actor, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Sector.Index)
}

func TestService_ReservedShipsHoldPosition(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 5, 2, 10, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "calm-expanse", 2, []link{{from: 1, to: 2, cost: 1}})
	actor, _, sh := f.seedPilot(t, "drifter", r, 500)

	gw, err := f.shards.Region(ctx, r.Name)
	require.NoError(t, err)
	require.NoError(t, sh.ReserveForTravel(shared.NewTravelID(), f.clock.Now()))
	require.NoError(t, gw.Ships.Update(ctx, sh))

	// Act
	_, err = f.svc.Move(ctx, actor, 2)

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))
}

func TestService_CombatLocksTheShip(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 5, 2, 10, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "skirmish-line", 2, []link{{from: 1, to: 2, cost: 1}})
	actor, p, sh := f.seedPilot(t, "brawler", r, 500)

	gw, err := f.shards.Region(ctx, r.Name)
	require.NoError(t, err)
	c, err := combat.New(r.ID, 1,
		combat.Combatant{ShipID: sh.ID, PlayerID: p.ID, Condition: 1},
		combat.Combatant{ShipID: shared.NewShipID(), PlayerID: shared.NewPlayerID(), Condition: 1},
		f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, gw.Combats.Create(ctx, c))

	// Act
	_, err = f.svc.Move(ctx, actor, 2)

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))
}

func TestService_PlanRouteMinimizesTurnCost(t *testing.T) {
	// Arrange: two paths to sector 4; the two-hop path is cheaper.
	clock := shared.NewMockClock(time.Date(2102, 5, 2, 10, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "braided-lanes", 5, []link{
		{from: 1, to: 2, cost: 1},
		{from: 2, to: 4, cost: 1, toll: 10},
		{from: 1, to: 3, cost: 1},
		{from: 3, to: 4, cost: 5},
	})
	actor, _, _ := f.seedPilot(t, "pathfinder", r, 500)

	// Act
	plan, err := f.svc.PlanRoute(ctx, actor, 4)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 2, plan.TotalTurns)
	assert.Equal(t, int64(10), plan.TotalTolls)
	require.Len(t, plan.Hops, 2)
	assert.Equal(t, 2, plan.Hops[0].To)
	assert.Equal(t, 4, plan.Hops[1].To)

	// Sector 5 has no links at all.
	_, err = f.svc.PlanRoute(ctx, actor, 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestService_PlanRouteHonorsRestrictions(t *testing.T) {
	// Arrange: the short lane is citizens-only, so a visitor routes around it.
	clock := shared.NewMockClock(time.Date(2102, 5, 2, 10, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "gated-lanes", 4, []link{
		{from: 1, to: 4, cost: 1, restriction: sector.RestrictCitizens},
		{from: 1, to: 2, cost: 1},
		{from: 2, to: 4, cost: 2},
	})
	actor, _, _ := f.seedPilot(t, "outsider", r, 500)

	// Act
	plan, err := f.svc.PlanRoute(ctx, actor, 4)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 3, plan.TotalTurns)
	require.Len(t, plan.Hops, 2)
}

func TestService_ScanRevealsTheNeighborhood(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 5, 2, 10, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "busy-corner", 3, []link{{from: 1, to: 2, cost: 1}})
	actor, _, _ := f.seedPilot(t, "scout", r, 500)
	_, other, otherShip := f.seedPilot(t, "bystander", r, 500)

	gw, err := f.shards.Region(ctx, r.Name)
	require.NoError(t, err)
	otherShip.Sector = 2
	require.NoError(t, gw.Ships.Update(ctx, otherShip))

	st, err := station.New(r.ID, 2, "Waystation Kilo", 0, 100, f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, gw.Stations.Create(ctx, st))
	pl, err := planet.New(r.ID, 2, "Kilo Prime", planet.TypeTerran, f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, gw.Planets.Create(ctx, pl))

	// Act
	report, err := f.svc.ScanSector(ctx, actor, 2)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 2, report.Sector.Index)
	require.NotNil(t, report.Station)
	assert.Equal(t, "Waystation Kilo", report.Station.Name)
	require.Len(t, report.Planets, 1)
	require.Len(t, report.Ships, 1)
	assert.Equal(t, other.ID, report.Ships[0].OwnerID)
	pings := f.events.byType(shared.EventRadarPing)
	require.Len(t, pings, 1)
	assert.Contains(t, pings[0].Scopes, shared.SectorScope(r.Name, 2))

	// Sector 3 is beyond scanner range from sector 1.
	_, err = f.svc.ScanSector(ctx, actor, 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))
}

func TestService_SuspendedRegionRejectsMovement(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 5, 2, 10, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "dimmed", 2, []link{{from: 1, to: 2, cost: 1}})
	actor, _, _ := f.seedPilot(t, "drifter", r, 500)

	require.NoError(t, r.Suspend(f.clock.Now()))
	require.NoError(t, f.regions.Update(ctx, r))

	// Act
	_, err := f.svc.Move(ctx, actor, 2)

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))
}
