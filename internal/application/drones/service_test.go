package drones_test

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
	"github.com/sectorwars/gameserver/internal/application/drones"
	"github.com/sectorwars/gameserver/internal/domain/account"
	"github.com/sectorwars/gameserver/internal/domain/drone"
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
	svc     *drones.Service
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
	svc := drones.NewService(regions, players, shards, events, clock)
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
	sectors := make([]*sector.Sector, 0, 4)
	for i := 1; i <= 4; i++ {
		sec, err := sector.New(r.ID, i, "", sector.TypeNormal, 0, 0, 5, now)
		require.NoError(t, err)
		sectors = append(sectors, sec)
	}
	require.NoError(t, gw.Sectors.CreateBatch(ctx, sectors, nil))
	return r
}

// seedOperator places a persona at sector 1 flying a defender hull with a
// stocked drone bay.
func (f *fixture) seedOperator(t *testing.T, name string, r *region.Region, aboard int) (common.Actor, *player.Player, *ship.Ship) {
	t.Helper()
	ctx := context.Background()
	now := f.clock.Now()

	p, err := player.New(shared.NewAccountID(), name, region.NexusName, now)
	require.NoError(t, err)
	p.Credits = 10_000
	p.Relocate(r.Name, 1, now)

	gw, err := f.shards.Region(ctx, r.Name)
	require.NoError(t, err)
	sh, err := ship.New(p.ID, r.ID, 1, ship.HullDefender, "", now)
	require.NoError(t, err)
	require.NoError(t, sh.LoadDrones(aboard, now))
	require.NoError(t, gw.Ships.Create(ctx, sh))

	p.BoardShip(sh.ID, now)
	require.NoError(t, f.players.Create(ctx, p))
	return common.Actor{AccountID: p.AccountID, PlayerID: p.ID, Role: account.RolePlayer}, p, sh
}

func TestService_DeployEmptiesTheBay(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 8, 1, 8, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "drone-fields")
	actor, _, sh := f.seedOperator(t, "warden", r, 8)

	// Act
	d, err := f.svc.Deploy(ctx, actor, drones.DeployInput{Kind: drone.PinSector, Count: 5})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 5, d.Count)
	assert.Equal(t, 1, d.Sector)
	assert.Equal(t, drone.AggressionDefensive, d.Behavior.Aggression, "omitted directives take the default")

	gw, err := f.shards.Region(ctx, r.Name)
	require.NoError(t, err)
	fresh, err := gw.Ships.FindByID(ctx, r.ID, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, fresh.DronesAboard)

	deployed := f.events.byType(shared.EventDroneDeployed)
	require.Len(t, deployed, 1)
	assert.Contains(t, deployed[0].Scopes, shared.SectorScope(r.Name, 1))

	// The bay cannot over-commit.
	_, err = f.svc.Deploy(ctx, actor, drones.DeployInput{Kind: drone.PinSector, Count: 4})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))
}

func TestService_DeployPinsRequirePresence(t *testing.T) {
	// Arrange: the only planet sits one sector over.
	clock := shared.NewMockClock(time.Date(2102, 8, 1, 8, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "drone-fields")
	actor, _, _ := f.seedOperator(t, "warden", r, 8)

	gw, err := f.shards.Region(ctx, r.Name)
	require.NoError(t, err)
	pl, err := planet.New(r.ID, 2, "Distant Rock", planet.TypeTerran, f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, gw.Planets.Create(ctx, pl))

	// Act
	_, err = f.svc.Deploy(ctx, actor, drones.DeployInput{
		Kind: drone.PinPlanet, PinnedToID: pl.ID.String(), Count: 2,
	})

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))
}

func TestService_RecallRestocksTheBay(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 8, 1, 8, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "drone-fields")
	actor, _, sh := f.seedOperator(t, "warden", r, 6)

	d, err := f.svc.Deploy(ctx, actor, drones.DeployInput{Kind: drone.PinSector, Count: 6})
	require.NoError(t, err)

	// Act: partial recall leaves the stack; the rest removes it.
	d, err = f.svc.Recall(ctx, actor, d.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, d.Count)
	d, err = f.svc.Recall(ctx, actor, d.ID, 4)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 0, d.Count)
	gw, err := f.shards.Region(ctx, r.Name)
	require.NoError(t, err)
	_, err = gw.Drones.FindByID(ctx, r.ID, d.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrNotFound), "an emptied stack is removed")

	fresh, err := gw.Ships.FindByID(ctx, r.ID, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, fresh.DronesAboard)
	require.Len(t, f.events.byType(shared.EventDroneRecalled), 2)
}

func TestService_RecallNeedsTheShipOnStation(t *testing.T) {
	// Arrange: deploy at sector 1, then slip the ship to sector 2.
	clock := shared.NewMockClock(time.Date(2102, 8, 1, 8, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "drone-fields")
	actor, _, sh := f.seedOperator(t, "warden", r, 4)

	d, err := f.svc.Deploy(ctx, actor, drones.DeployInput{Kind: drone.PinSector, Count: 4})
	require.NoError(t, err)

	gw, err := f.shards.Region(ctx, r.Name)
	require.NoError(t, err)
	fresh, err := gw.Ships.FindByID(ctx, r.ID, sh.ID)
	require.NoError(t, err)
	require.NoError(t, fresh.MoveTo(2, f.clock.Now()))
	require.NoError(t, gw.Ships.Update(ctx, fresh))

	// Act
	_, err = f.svc.Recall(ctx, actor, d.ID, 4)

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))
}

func TestService_ReconfigureIsOwnerOnly(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 8, 1, 8, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "drone-fields")
	owner, _, _ := f.seedOperator(t, "warden", r, 4)
	intruder, _, _ := f.seedOperator(t, "meddler", r, 0)

	d, err := f.svc.Deploy(ctx, owner, drones.DeployInput{Kind: drone.PinSector, Count: 4})
	require.NoError(t, err)

	aggressive := drone.Behavior{
		Aggression:     drone.AggressionAggressive,
		TargetPriority: []string{"ships"},
	}

	// Act
	_, intruderErr := f.svc.Reconfigure(ctx, intruder, d.ID, aggressive)
	updated, ownerErr := f.svc.Reconfigure(ctx, owner, d.ID, aggressive)

	// Assert
	require.Error(t, intruderErr)
	assert.True(t, errors.Is(intruderErr, shared.ErrForbidden))
	require.NoError(t, ownerErr)
	assert.Equal(t, drone.AggressionAggressive, updated.Behavior.Aggression)

	// Unknown directives never land.
	_, err = f.svc.Reconfigure(ctx, owner, d.ID, drone.Behavior{Aggression: "berserk"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))
}

func TestService_BuyNeedsAnEquipmentStation(t *testing.T) {
	// Arrange: an industrial port sells drones, an outpost does not.
	clock := shared.NewMockClock(time.Date(2102, 8, 1, 8, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "drone-fields")
	actor, p, sh := f.seedOperator(t, "warden", r, 0)

	gw, err := f.shards.Region(ctx, r.Name)
	require.NoError(t, err)
	outpost, err := station.New(r.ID, 1, "Bare Outpost", 0, 100, f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, gw.Stations.Create(ctx, outpost))

	// Act: no equipment service in the sector.
	_, err = f.svc.Buy(ctx, actor, 4)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))

	// Move to an industrial port and restock.
	fresh, err := gw.Ships.FindByID(ctx, r.ID, sh.ID)
	require.NoError(t, err)
	require.NoError(t, fresh.MoveTo(2, f.clock.Now()))
	require.NoError(t, gw.Ships.Update(ctx, fresh))
	industrial, err := station.New(r.ID, 2, "Foundry Gamma", 3, 100, f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, gw.Stations.Create(ctx, industrial))

	persona, err := f.svc.Buy(ctx, actor, 4)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, p.Credits-shared.Credits(4*drone.UnitPrice), persona.Credits)
	stocked, err := gw.Ships.FindByID(ctx, r.ID, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stocked.DronesAboard)
}
