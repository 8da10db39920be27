package colony_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sectorwars/gameserver/internal/adapters/persistence"
	"github.com/sectorwars/gameserver/internal/application/colony"
	"github.com/sectorwars/gameserver/internal/application/common"
	"github.com/sectorwars/gameserver/internal/domain/account"
	"github.com/sectorwars/gameserver/internal/domain/drone"
	"github.com/sectorwars/gameserver/internal/domain/planet"
	"github.com/sectorwars/gameserver/internal/domain/player"
	"github.com/sectorwars/gameserver/internal/domain/region"
	"github.com/sectorwars/gameserver/internal/domain/sector"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/domain/ship"
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
	svc     *colony.Service
	clock   *shared.MockClock
	shards  *testShards
	events  *eventSink
	regions *persistence.GormRegionRepository
	players *persistence.GormPlayerRepository
}

func newFixture(t *testing.T, clock *shared.MockClock) *fixture {
	t.Helper()
	db := helpers.NewGlobalTestDB(t)
	shards := newTestShards(t)
	events := &eventSink{}
	regions := persistence.NewGormRegionRepository(db)
	players := persistence.NewGormPlayerRepository(db)
	svc := colony.NewService(regions, players, shards, events, clock)
	return &fixture{
		svc:     svc,
		clock:   clock,
		shards:  shards,
		events:  events,
		regions: regions,
		players: players,
	}
}

func (f *fixture) seedRegion(t *testing.T, name string) *region.Region {
	t.Helper()
	ctx := context.Background()
	now := f.clock.Now()

	r, err := region.New(region.Spec{Name: name, SectorCount: 100, Seed: 1}, shared.NewAccountID(), now)
	require.NoError(t, err)
	require.NoError(t, r.Activate(0, now))
	require.NoError(t, f.regions.Create(ctx, r))

	gw, err := f.shards.Region(ctx, name)
	require.NoError(t, err)
	require.NoError(t, gw.Meta.Init(ctx, r.ID, r.Name, 1, now))
	sectors := make([]*sector.Sector, 0, 3)
	for i := 1; i <= 3; i++ {
		sec, err := sector.New(r.ID, i, "", sector.TypeNormal, 0, 0, 5, now)
		require.NoError(t, err)
		sectors = append(sectors, sec)
	}
	require.NoError(t, gw.Sectors.CreateBatch(ctx, sectors, nil))
	return r
}

// seedSettler places a funded persona in the region flying the given hull.
func (f *fixture) seedSettler(t *testing.T, name string, r *region.Region, sectorIdx int, hull ship.HullClass) (common.Actor, *player.Player, *ship.Ship) {
	t.Helper()
	ctx := context.Background()
	now := f.clock.Now()

	p, err := player.New(shared.NewAccountID(), name, region.NexusName, now)
	require.NoError(t, err)
	p.Credits = 100_000
	p.Relocate(r.Name, sectorIdx, now)

	gw, err := f.shards.Region(ctx, r.Name)
	require.NoError(t, err)
	sh, err := ship.New(p.ID, r.ID, sectorIdx, hull, "", now)
	require.NoError(t, err)
	require.NoError(t, gw.Ships.Create(ctx, sh))

	p.BoardShip(sh.ID, now)
	require.NoError(t, f.players.Create(ctx, p))
	return common.Actor{AccountID: p.AccountID, PlayerID: p.ID, Role: account.RolePlayer}, p, sh
}

func (f *fixture) seedPlanet(t *testing.T, r *region.Region, sectorIdx int, name string) *planet.Planet {
	t.Helper()
	p, err := planet.New(r.ID, sectorIdx, name, planet.TypeTerran, f.clock.Now())
	require.NoError(t, err)
	gw, err := f.shards.Region(context.Background(), r.Name)
	require.NoError(t, err)
	require.NoError(t, gw.Planets.Create(context.Background(), p))
	return p
}

func (f *fixture) seedColony(t *testing.T, r *region.Region, sectorIdx int, name string, owner shared.PlayerID, pop int64) *planet.Planet {
	t.Helper()
	p, err := planet.New(r.ID, sectorIdx, name, planet.TypeTerran, f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, p.Colonize(owner, pop, f.clock.Now()))
	gw, err := f.shards.Region(context.Background(), r.Name)
	require.NoError(t, err)
	require.NoError(t, gw.Planets.Create(context.Background(), p))
	return p
}

func TestService_ColonizeClaimsThePlanet(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 12, 1, 10, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "verdant-reach")
	actor, _, sh := f.seedSettler(t, "anja", r, 2, ship.HullColonyShip)
	require.NoError(t, sh.Cargo.Load(shared.CommodityColonists, 15))
	gw, err := f.shards.Region(ctx, r.Name)
	require.NoError(t, err)
	require.NoError(t, gw.Ships.Update(ctx, sh))
	p := f.seedPlanet(t, r, 2, "Vega Prime")

	// Act
	claimed, err := f.svc.Colonize(ctx, actor, p.ID, 10)

	// Assert
	require.NoError(t, err)
	assert.True(t, claimed.Colonized())
	assert.Equal(t, int64(10)*colony.ColonistsPerUnit, claimed.Population)
	hold, err := gw.Ships.FindByID(ctx, r.ID, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, hold.Cargo.Quantity(shared.CommodityColonists))

	// Reinforcing lands the rest.
	reinforced, err := f.svc.LandColonists(ctx, actor, p.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(15)*colony.ColonistsPerUnit, reinforced.Population)

	// A rival cannot claim settled ground.
	rival, _, rsh := f.seedSettler(t, "bram", r, 2, ship.HullColonyShip)
	require.NoError(t, rsh.Cargo.Load(shared.CommodityColonists, 10))
	require.NoError(t, gw.Ships.Update(ctx, rsh))
	_, err = f.svc.Colonize(ctx, rival, p.ID, 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))
}

func TestService_ConstructionDebitsTheOwner(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 12, 1, 10, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "verdant-reach")
	actor, persona, _ := f.seedSettler(t, "anja", r, 2, ship.HullColonyShip)
	p := f.seedColony(t, r, 2, "Vega Prime", persona.ID, 10_000)

	// Act
	built, err := f.svc.Construct(ctx, actor, p.ID, planet.BuildingFarm)
	require.NoError(t, err)
	_, err = f.svc.UpgradeCitadel(ctx, actor, p.ID)
	require.NoError(t, err)
	fortified, err := f.svc.UpgradeShield(ctx, actor, p.ID)
	require.NoError(t, err)

	// Assert: 5000 + 10000 + 15000 off a 100k purse.
	assert.Equal(t, 1, built.Buildings[planet.BuildingFarm])
	assert.Equal(t, 1, fortified.CitadelLevel)
	assert.Equal(t, 1, fortified.ShieldLevel)
	paid, err := f.players.FindByID(ctx, persona.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.Credits(70_000), paid.Credits)

	// Strangers cannot build, and empty pockets cannot either.
	stranger, strangerPersona, _ := f.seedSettler(t, "bram", r, 2, ship.HullScout)
	_, err = f.svc.Construct(ctx, stranger, p.ID, planet.BuildingMine)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrForbidden))

	strangerPersona.Credits = 0
	require.NoError(t, f.players.Update(ctx, strangerPersona))
	broke := f.seedColonyFor(t, r, 3, "Rust Hollow", strangerPersona.ID)
	_, err = f.svc.Construct(ctx, stranger, broke.ID, planet.BuildingMine)
	require.Error(t, err)
	assert.Equal(t, shared.CodeInsufficientCred, shared.CodeOf(err))
}

// seedColonyFor is seedColony with a default population.
func (f *fixture) seedColonyFor(t *testing.T, r *region.Region, sectorIdx int, name string, owner shared.PlayerID) *planet.Planet {
	t.Helper()
	return f.seedColony(t, r, sectorIdx, name, owner, 5_000)
}

func TestService_TickGrowsAndProduces(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 12, 1, 10, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "verdant-reach")
	actor, persona, _ := f.seedSettler(t, "anja", r, 2, ship.HullColonyShip)
	p := f.seedColony(t, r, 2, "Vega Prime", persona.ID, 10_000)

	// Act
	advanced, err := f.svc.Tick(ctx, r.Name)

	// Assert: terran growth at 2% scaled by 90 habitability, default
	// allocation split across the three roles.
	require.NoError(t, err)
	assert.Equal(t, 1, advanced)
	grown, err := f.svc.Detail(ctx, actor, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10_180), grown.Population)
	assert.Equal(t, int64(1), grown.Stockpile[planet.RoleFuel])
	assert.Equal(t, int64(2), grown.Stockpile[planet.RoleOrganics])
	assert.Equal(t, int64(1), grown.Stockpile[planet.RoleEquipment])

	ticks := f.events.byType(shared.EventColonyTick)
	require.Len(t, ticks, 1)
	assert.Contains(t, ticks[0].Scopes, shared.RegionScope(r.Name))
	assert.Equal(t, 1, ticks[0].Payload["planets"])

	// Refocusing the allocation steers later ticks.
	_, err = f.svc.Allocate(ctx, actor, p.ID, map[planet.Role]float64{planet.RoleFuel: 1.0})
	require.NoError(t, err)
	_, err = f.svc.Allocate(ctx, actor, p.ID, map[planet.Role]float64{planet.RoleFuel: 0.8, planet.RoleOrganics: 0.5})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))

	_, err = f.svc.Tick(ctx, r.Name)
	require.NoError(t, err)
	refocused, err := f.svc.Detail(ctx, actor, p.ID)
	require.NoError(t, err)
	assert.Greater(t, refocused.Population, grown.Population)
	assert.Greater(t, refocused.Stockpile[planet.RoleFuel], grown.Stockpile[planet.RoleFuel])
	assert.Equal(t, grown.Stockpile[planet.RoleOrganics], refocused.Stockpile[planet.RoleOrganics])
}

func TestService_CollectStockpileClampsToTheHold(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 12, 1, 10, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "verdant-reach")
	actor, persona, sh := f.seedSettler(t, "anja", r, 2, ship.HullColonyShip)
	p, err := planet.New(r.ID, 2, "Vega Prime", planet.TypeTerran, clock.Now())
	require.NoError(t, err)
	require.NoError(t, p.Colonize(persona.ID, 10_000, clock.Now()))
	p.Stockpile[planet.RoleOrganics] = 500
	gw, err := f.shards.Region(ctx, r.Name)
	require.NoError(t, err)
	require.NoError(t, gw.Planets.Create(ctx, p))

	// Act: a 300-hold colony ship cannot take all 500 units.
	units, err := f.svc.CollectStockpile(ctx, actor, p.ID, planet.RoleOrganics)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 300, units)
	hold, err := gw.Ships.FindByID(ctx, r.ID, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, 300, hold.Cargo.Quantity(shared.CommodityOrganics))
	drained, err := gw.Planets.FindByID(ctx, r.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(200), drained.Stockpile[planet.RoleOrganics])

	// A full hold collects nothing.
	_, err = f.svc.CollectStockpile(ctx, actor, p.ID, planet.RoleOrganics)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))
}

func TestService_GenesisMaterializesAPlanet(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 12, 1, 10, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "verdant-reach")
	actor, persona, sh := f.seedSettler(t, "anja", r, 3, ship.HullColonyShip)
	require.NoError(t, sh.Cargo.Load(shared.CommodityGenesisUnit, 1))
	gw, err := f.shards.Region(ctx, r.Name)
	require.NoError(t, err)
	require.NoError(t, gw.Ships.Update(ctx, sh))

	// Act
	born, err := f.svc.Genesis(ctx, actor, colony.GenesisInput{Name: "New Dawn"})

	// Assert
	require.NoError(t, err)
	assert.True(t, born.GenesisCreated)
	assert.Equal(t, persona.ID, born.OwnerID)
	assert.Equal(t, 3, born.Sector)
	hold, err := gw.Ships.FindByID(ctx, r.ID, sh.ID)
	require.NoError(t, err)
	assert.Zero(t, hold.Cargo.Quantity(shared.CommodityGenesisUnit))

	// The sector now holds a planet, so a second device fizzles.
	require.NoError(t, hold.Cargo.Load(shared.CommodityGenesisUnit, 1))
	require.NoError(t, gw.Ships.Update(ctx, hold))
	_, err = f.svc.Genesis(ctx, actor, colony.GenesisInput{Name: "Echo"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))

	// Freighters cannot deploy devices at all.
	hauler, _, hsh := f.seedSettler(t, "bram", r, 1, ship.HullLightFreighter)
	require.NoError(t, hsh.Cargo.Load(shared.CommodityGenesisUnit, 1))
	require.NoError(t, gw.Ships.Update(ctx, hsh))
	_, err = f.svc.Genesis(ctx, hauler, colony.GenesisInput{Name: "Mirage"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))
}

func TestService_SiegeCapturesUndefendedColonies(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 12, 1, 10, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "verdant-reach")
	_, victim, _ := f.seedSettler(t, "anja", r, 2, ship.HullScout)
	attacker, raider, _ := f.seedSettler(t, "bram", r, 2, ship.HullCarrier)
	p := f.seedColony(t, r, 2, "Vega Prime", victim.ID, 10_000)
	gw, err := f.shards.Region(ctx, r.Name)
	require.NoError(t, err)

	// No aggressive stack pinned yet.
	_, err = f.svc.Besiege(ctx, attacker, p.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))

	// One hundred drones against bare ground decide it in a single tick.
	stack, err := drone.NewDeployment(r.ID, raider.ID, "", drone.PinPlanet, 2, p.ID.String(), 100,
		drone.Behavior{Aggression: drone.AggressionAggressive}, clock.Now())
	require.NoError(t, err)
	require.NoError(t, gw.Drones.Create(ctx, stack))

	// Act
	contested, err := f.svc.Besiege(ctx, attacker, p.ID)
	require.NoError(t, err)
	assert.True(t, contested.UnderSiege)
	_, err = f.svc.Tick(ctx, r.Name)
	require.NoError(t, err)

	// Assert
	taken, err := gw.Planets.FindByID(ctx, r.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, raider.ID, taken.OwnerID)
	assert.False(t, taken.UnderSiege)

	sieged := f.events.byType(shared.EventPlanetSieged)
	require.Len(t, sieged, 1)
	assert.Equal(t, "besieged", sieged[0].Payload["status"])
	captured := f.events.byType(shared.EventPlanetCaptured)
	require.Len(t, captured, 1)
	assert.Equal(t, raider.ID, captured[0].Payload["new_owner"])
	assert.Contains(t, captured[0].Scopes, shared.PlayerScope(victim.ID))
}

func TestService_SiegeGrindsThroughGarrisons(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 12, 1, 10, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "verdant-reach")
	defender, victim, vsh := f.seedSettler(t, "anja", r, 2, ship.HullCarrier)
	attacker, raider, _ := f.seedSettler(t, "bram", r, 2, ship.HullCarrier)
	p := f.seedColony(t, r, 2, "Vega Prime", victim.ID, 10_000)
	gw, err := f.shards.Region(ctx, r.Name)
	require.NoError(t, err)

	// The owner garrisons 20 drones from the carrier's bay.
	require.NoError(t, vsh.LoadDrones(40, clock.Now()))
	require.NoError(t, gw.Ships.Update(ctx, vsh))
	garrisoned, err := f.svc.StationDrones(ctx, defender, p.ID, 20)
	require.NoError(t, err)
	assert.Equal(t, 20, garrisoned.DronesStation)

	stack, err := drone.NewDeployment(r.ID, raider.ID, "", drone.PinPlanet, 2, p.ID.String(), 100,
		drone.Behavior{Aggression: drone.AggressionAggressive}, clock.Now())
	require.NoError(t, err)
	require.NoError(t, gw.Drones.Create(ctx, stack))
	_, err = f.svc.Besiege(ctx, attacker, p.ID)
	require.NoError(t, err)

	// Act: 500 attack against a 100-point garrison grinds at 0.8 per tick.
	_, err = f.svc.Tick(ctx, r.Name)
	require.NoError(t, err)
	holding, err := gw.Planets.FindByID(ctx, r.ID, p.ID)
	require.NoError(t, err)
	assert.True(t, holding.UnderSiege)
	assert.Equal(t, victim.ID, holding.OwnerID)
	assert.InDelta(t, 0.8, holding.SiegeProgress, 1e-9)

	_, err = f.svc.Tick(ctx, r.Name)
	require.NoError(t, err)

	// Assert: the second tick puts progress past 1 and the planet falls.
	taken, err := gw.Planets.FindByID(ctx, r.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, raider.ID, taken.OwnerID)
	assert.Zero(t, taken.DronesStation)
}

func TestService_SiegeCollapsesWhenBesiegersWithdraw(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 12, 1, 10, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "verdant-reach")
	_, victim, _ := f.seedSettler(t, "anja", r, 2, ship.HullScout)
	attacker, raider, _ := f.seedSettler(t, "bram", r, 2, ship.HullCarrier)
	p := f.seedColony(t, r, 2, "Vega Prime", victim.ID, 10_000)
	gw, err := f.shards.Region(ctx, r.Name)
	require.NoError(t, err)

	stack, err := drone.NewDeployment(r.ID, raider.ID, "", drone.PinPlanet, 2, p.ID.String(), 10,
		drone.Behavior{Aggression: drone.AggressionAggressive}, clock.Now())
	require.NoError(t, err)
	require.NoError(t, gw.Drones.Create(ctx, stack))
	_, err = f.svc.Besiege(ctx, attacker, p.ID)
	require.NoError(t, err)

	// Act: the stack withdraws before the next tick.
	require.NoError(t, gw.Drones.Delete(ctx, r.ID, stack.ID))
	_, err = f.svc.Tick(ctx, r.Name)
	require.NoError(t, err)

	// Assert
	held, err := gw.Planets.FindByID(ctx, r.ID, p.ID)
	require.NoError(t, err)
	assert.False(t, held.UnderSiege)
	assert.Zero(t, held.SiegeProgress)
	assert.Equal(t, victim.ID, held.OwnerID)

	sieged := f.events.byType(shared.EventPlanetSieged)
	require.Len(t, sieged, 2)
	assert.Equal(t, "lifted", sieged[1].Payload["status"])
}
