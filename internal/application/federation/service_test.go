package federation_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sectorwars/gameserver/internal/adapters/persistence"
	"github.com/sectorwars/gameserver/internal/application/common"
	"github.com/sectorwars/gameserver/internal/application/federation"
	"github.com/sectorwars/gameserver/internal/domain/account"
	"github.com/sectorwars/gameserver/internal/domain/galaxy"
	"github.com/sectorwars/gameserver/internal/domain/governance"
	"github.com/sectorwars/gameserver/internal/domain/player"
	"github.com/sectorwars/gameserver/internal/domain/region"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/domain/ship"
	"github.com/sectorwars/gameserver/internal/domain/travel"
	"github.com/sectorwars/gameserver/internal/domain/treaty"
	"github.com/sectorwars/gameserver/internal/infrastructure/config"
	"github.com/sectorwars/gameserver/test/helpers"
)

// testShards resolves each region to its own in-memory shard. Regions listed
// in refuse simulate an unreachable shard.
type testShards struct {
	t  *testing.T
	mu sync.Mutex

	gateways map[string]*common.RegionGateways
	refuse   map[string]bool
	evicted  []string
}

func newTestShards(t *testing.T) *testShards {
	return &testShards{t: t, gateways: map[string]*common.RegionGateways{}, refuse: map[string]bool{}}
}

func (s *testShards) Region(_ context.Context, name string) (*common.RegionGateways, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refuse[name] {
		return nil, errors.New("shard offline")
	}
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
	s.evicted = append(s.evicted, name)
	return nil
}

// hookedTravels passes through to the real store while letting one test
// interleave a competing write between a read-modify cycle and its save.
type hookedTravels struct {
	travel.Repository
	beforeUpdate func(*travel.Travel)
}

func (h *hookedTravels) Update(ctx context.Context, t *travel.Travel) error {
	if h.beforeUpdate != nil {
		fn := h.beforeUpdate
		h.beforeUpdate = nil
		fn(t)
	}
	return h.Repository.Update(ctx, t)
}

// eventSink captures published events for assertions.
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
	svc         *federation.Service
	clock       *shared.MockClock
	shards      *testShards
	events      *eventSink
	players     *persistence.GormPlayerRepository
	travels     *persistence.GormTravelRepository
	travelHook  *hookedTravels
	memberships *persistence.GormMembershipRepository
	admin       common.Actor
}

func newFixture(t *testing.T, clock *shared.MockClock) *fixture {
	t.Helper()
	db := helpers.NewGlobalTestDB(t)
	shards := newTestShards(t)
	events := &eventSink{}
	players := persistence.NewGormPlayerRepository(db)
	travels := persistence.NewGormTravelRepository(db)
	travelHook := &hookedTravels{Repository: travels}
	memberships := persistence.NewGormMembershipRepository(db)
	svc := federation.NewService(
		persistence.NewGormRegionRepository(db),
		memberships,
		players,
		travelHook,
		persistence.NewGormTreatyRepository(db),
		shards,
		events,
		persistence.NewGormAuditRecorder(db),
		&config.GalaxyConfig{NexusGatePolicy: "first", NexusSeed: 42, DefaultSectorCount: 100},
		clock,
	)
	return &fixture{
		svc:         svc,
		clock:       clock,
		shards:      shards,
		events:      events,
		players:     players,
		travels:     travels,
		travelHook:  travelHook,
		memberships: memberships,
		admin: common.Actor{
			AccountID: shared.NewAccountID(),
			PlayerID:  shared.NewPlayerID(),
			Role:      account.RoleAdministrator,
		},
	}
}

func (f *fixture) provisionRegion(t *testing.T, name string, seed int64) *region.Region {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.CreateRegion(ctx, region.Spec{Name: name, SectorCount: 100, Seed: seed}, shared.NewAccountID())
	require.NoError(t, err)
	r, err := f.svc.Provision(ctx, name)
	require.NoError(t, err)
	return r
}

// seedPilot places a persona with the given balance in a region, including
// the membership travel departures require.
func (f *fixture) seedPilot(t *testing.T, name string, r *region.Region, credits shared.Credits) (common.Actor, *player.Player) {
	t.Helper()
	ctx := context.Background()
	p, err := player.New(shared.NewAccountID(), name, region.NexusName, f.clock.Now())
	require.NoError(t, err)
	p.Credits = credits
	if r != nil && r.Name != region.NexusName {
		p.Relocate(r.Name, 1, f.clock.Now())
		require.NoError(t, f.memberships.Create(ctx, region.NewMembership(p.ID, r.ID, f.clock.Now())))
	}
	require.NoError(t, f.players.Create(ctx, p))
	return common.Actor{AccountID: p.AccountID, PlayerID: p.ID, Role: account.RolePlayer}, p
}

func (f *fixture) seedShip(t *testing.T, r *region.Region, owner shared.PlayerID, class ship.HullClass) *ship.Ship {
	t.Helper()
	ctx := context.Background()
	gw, err := f.shards.Region(ctx, r.Name)
	require.NoError(t, err)
	sh, err := ship.New(owner, r.ID, 1, class, "", f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, gw.Ships.Create(ctx, sh))
	return sh
}

func TestService_ProvisionIsIdempotent(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 4, 1, 9, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()

	// Act
	r := f.provisionRegion(t, "frontier-reach", 7)

	// Assert
	assert.Equal(t, region.StatusActive, r.Status)
	assert.Equal(t, 1, r.NexusGateSector)
	gw, err := f.shards.Region(ctx, r.Name)
	require.NoError(t, err)
	count, err := gw.Sectors.Count(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, count)

	// Provisioning again must not duplicate the galaxy.
	again, err := f.svc.Provision(ctx, "frontier-reach")
	require.NoError(t, err)
	assert.Equal(t, region.StatusActive, again.Status)
	count, err = gw.Sectors.Count(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, count)
}

func TestService_EnsureNexusLaysOutDistricts(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 4, 1, 9, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()

	// Act
	nexus, err := f.svc.EnsureNexus(ctx)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, region.NexusName, nexus.Name)
	assert.Equal(t, region.StatusActive, nexus.Status)
	assert.Equal(t, 4201, nexus.NexusGateSector, "gate anchors at the first gateway-plaza sector")
	gw, err := f.shards.Region(ctx, nexus.Name)
	require.NoError(t, err)
	count, err := gw.Sectors.Count(ctx, nexus.ID)
	require.NoError(t, err)
	assert.Equal(t, galaxy.NexusSectorCount, count)

	// Booting again observes the existing hub.
	again, err := f.svc.EnsureNexus(ctx)
	require.NoError(t, err)
	assert.Equal(t, nexus.ID, again.ID)
}

func TestService_TravelMovesShipAndCredits(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 4, 2, 10, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	foo := f.provisionRegion(t, "region-foo", 11)
	bar := f.provisionRegion(t, "region-bar", 12)
	actor, pilot := f.seedPilot(t, "gate-runner", foo, 500)
	s1 := f.seedShip(t, foo, pilot.ID, ship.HullScout)

	// Act
	tr, err := f.svc.InitiateTravel(ctx, actor, federation.TravelInput{
		Destination: "region-bar",
		Method:      travel.MethodPlatformGate,
		ShipIDs:     []shared.ShipID{s1.ID},
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, travel.StatusCompleted, tr.Status)
	assert.Equal(t, int64(100), tr.Cost)

	moved, err := f.players.FindByID(ctx, pilot.ID)
	require.NoError(t, err)
	assert.Equal(t, "region-bar", moved.CurrentRegion)
	assert.Equal(t, shared.Credits(400), moved.Credits)

	srcGW, err := f.shards.Region(ctx, foo.Name)
	require.NoError(t, err)
	_, err = srcGW.Ships.FindByID(ctx, foo.ID, s1.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	destGW, err := f.shards.Region(ctx, bar.Name)
	require.NoError(t, err)
	arrived, err := destGW.Ships.FindByID(ctx, bar.ID, s1.ID)
	require.NoError(t, err)
	assert.Equal(t, bar.NexusGateSector, arrived.Sector)
	assert.True(t, arrived.ReservedBy.IsZero())

	completed := f.events.byType(shared.EventTravelCompleted)
	require.Len(t, completed, 1)
	assert.ElementsMatch(t, []shared.Scope{
		shared.PlayerScope(pilot.ID),
		shared.RegionScope("region-foo"),
		shared.RegionScope("region-bar"),
	}, completed[0].Scopes)

	// The arrival opens a membership in the destination.
	m, err := f.memberships.Find(ctx, pilot.ID, bar.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, m.VisitCount)

	// Replaying the command under the same id observes the settled record.
	replay, err := f.svc.InitiateTravel(ctx, actor, federation.TravelInput{
		TravelID:    tr.ID,
		Destination: "region-bar",
		Method:      travel.MethodPlatformGate,
		ShipIDs:     []shared.ShipID{s1.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, travel.StatusCompleted, replay.Status)
	after, err := f.players.FindByID(ctx, pilot.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.Credits(400), after.Credits)
}

func TestService_TravelCompensatesWhenDestinationUnavailable(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 4, 2, 10, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	foo := f.provisionRegion(t, "region-foo", 11)
	f.provisionRegion(t, "region-bar", 12)
	actor, pilot := f.seedPilot(t, "stranded-one", foo, 500)
	s1 := f.seedShip(t, foo, pilot.ID, ship.HullScout)
	f.shards.refuse["region-bar"] = true

	// Act
	_, err := f.svc.InitiateTravel(ctx, actor, federation.TravelInput{
		Destination:   "region-bar",
		Method:        travel.MethodPlatformGate,
		ShipIDs:       []shared.ShipID{s1.ID},
		EscrowCredits: 200,
	})

	// Assert
	require.Error(t, err)
	assert.Equal(t, shared.CodeUnavailable, shared.CodeOf(err))
	var de *shared.Error
	require.ErrorAs(t, err, &de)
	travelID := shared.TravelID(de.Details["travel_id"])
	require.False(t, travelID.IsZero(), "the error carries the travel id for re-initiation")

	failed, err := f.travels.FindByID(ctx, travelID)
	require.NoError(t, err)
	assert.Equal(t, travel.StatusFailed, failed.Status)

	// Fare and escrow are back, the ship is free again.
	refunded, err := f.players.FindByID(ctx, pilot.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.Credits(500), refunded.Credits)
	assert.Equal(t, "region-foo", refunded.CurrentRegion)

	srcGW, err := f.shards.Region(ctx, foo.Name)
	require.NoError(t, err)
	freed, err := srcGW.Ships.FindByID(ctx, foo.ID, s1.ID)
	require.NoError(t, err)
	assert.True(t, freed.ReservedBy.IsZero())

	assert.NotEmpty(t, f.events.byType(shared.EventTravelFailed))
}

func TestService_TravelRequiresWarpHull(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 4, 2, 10, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	foo := f.provisionRegion(t, "region-foo", 11)
	f.provisionRegion(t, "region-bar", 12)
	actor, pilot := f.seedPilot(t, "hull-tester", foo, 500)
	scout := f.seedShip(t, foo, pilot.ID, ship.HullScout)

	// Act
	_, err := f.svc.InitiateTravel(ctx, actor, federation.TravelInput{
		Destination: "region-bar",
		Method:      travel.MethodWarpJumper,
		ShipIDs:     []shared.ShipID{scout.ID},
	})

	// Assert
	require.Error(t, err)
	assert.Equal(t, shared.CodeValidation, shared.CodeOf(err))

	// A warp-capable hull crosses without a gate.
	jumper := f.seedShip(t, foo, pilot.ID, ship.HullWarpJumper)
	tr, err := f.svc.InitiateTravel(ctx, actor, federation.TravelInput{
		Destination: "region-bar",
		Method:      travel.MethodWarpJumper,
		ShipIDs:     []shared.ShipID{jumper.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, travel.StatusCompleted, tr.Status)
	assert.Equal(t, int64(25), tr.Cost)
}

func TestService_TreatyDiscountsFare(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 4, 3, 8, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	foo := f.provisionRegion(t, "region-foo", 11)
	bar := f.provisionRegion(t, "region-bar", 12)
	govA, governorA := f.seedPilot(t, "governor-foo", foo, 1000)
	govB, governorB := f.seedPilot(t, "governor-bar", bar, 1000)
	_, err := f.svc.AppointGovernor(ctx, foo.Name, f.admin, governorA.ID)
	require.NoError(t, err)
	_, err = f.svc.AppointGovernor(ctx, bar.Name, f.admin, governorB.ID)
	require.NoError(t, err)

	terms := treaty.DefaultTerms()
	terms.TravelCostFactor = 0.5

	// Act
	proposed, err := f.svc.ProposeTreaty(ctx, govA, federation.TreatyProposal{
		PartnerRegion: "region-bar",
		Type:          treaty.TypeOpenBorders,
		Terms:         terms,
	})
	require.NoError(t, err)
	active, err := f.svc.CountersignTreaty(ctx, govB, proposed.ID, "")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, treaty.StatusActive, active.Status)

	eff, err := f.svc.TreatyEffects(ctx, foo.ID, bar.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.5, eff.TravelCostFactor)

	// The discount shows up in the fare.
	actor, pilot := f.seedPilot(t, "discounted", foo, 500)
	s1 := f.seedShip(t, foo, pilot.ID, ship.HullScout)
	tr, err := f.svc.InitiateTravel(ctx, actor, federation.TravelInput{
		Destination: "region-bar",
		Method:      travel.MethodPlatformGate,
		ShipIDs:     []shared.ShipID{s1.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(50), tr.Cost)
	moved, err := f.players.FindByID(ctx, pilot.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.Credits(450), moved.Credits)
}

func TestService_TreatySignatureAuthority(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 4, 3, 8, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	foo := f.provisionRegion(t, "region-foo", 11)
	bar := f.provisionRegion(t, "region-bar", 12)
	govA, governorA := f.seedPilot(t, "governor-foo", foo, 1000)
	_, err := f.svc.AppointGovernor(ctx, foo.Name, f.admin, governorA.ID)
	require.NoError(t, err)

	// A non-governor cannot speak for an autocratic region.
	intruder, _ := f.seedPilot(t, "pretender", foo, 100)
	_, err = f.svc.ProposeTreaty(ctx, intruder, federation.TreatyProposal{
		PartnerRegion: "region-bar",
		Type:          treaty.TypeTradeAgreement,
		Terms:         treaty.DefaultTerms(),
	})
	require.Error(t, err)
	assert.Equal(t, shared.CodePermissions, shared.CodeOf(err))

	// region-bar signs through a passed policy once democratic.
	_, err = f.svc.SetGovernance(ctx, bar.Name, f.admin, region.GovernanceDemocracy, 0.10, 0.5, 90)
	require.NoError(t, err)
	proposed, err := f.svc.ProposeTreaty(ctx, govA, federation.TreatyProposal{
		PartnerRegion: "region-bar",
		Type:          treaty.TypeTradeAgreement,
		Terms:         treaty.DefaultTerms(),
	})
	require.NoError(t, err)

	signerB, citizenB := f.seedPilot(t, "delegate-bar", bar, 100)
	_, err = f.svc.CountersignTreaty(ctx, signerB, proposed.ID, "")
	require.Error(t, err)
	assert.Equal(t, shared.CodePermissions, shared.CodeOf(err))

	pol, err := governance.NewPolicy(bar.ID, citizenB.ID, "Ratify the trade pact", "Sign the agreement with region-foo.", 24*time.Hour, f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, pol.RecordVote(true, 3.0, f.clock.Now()))
	f.clock.Advance(25 * time.Hour)
	_, err = pol.Tally(0.5, f.clock.Now())
	require.NoError(t, err)
	gw, err := f.shards.Region(ctx, bar.Name)
	require.NoError(t, err)
	require.NoError(t, gw.Policies.Create(ctx, pol))

	// Act
	active, err := f.svc.CountersignTreaty(ctx, signerB, proposed.ID, pol.ID)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, treaty.StatusActive, active.Status)
}

func TestService_SuspendBlocksTravel(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 4, 4, 12, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	foo := f.provisionRegion(t, "region-foo", 11)
	f.provisionRegion(t, "region-bar", 12)
	actor, pilot := f.seedPilot(t, "blocked-pilot", foo, 500)
	s1 := f.seedShip(t, foo, pilot.ID, ship.HullScout)

	_, err := f.svc.Suspend(ctx, "region-bar", f.admin)
	require.NoError(t, err)

	// Act
	_, err = f.svc.InitiateTravel(ctx, actor, federation.TravelInput{
		Destination: "region-bar",
		Method:      travel.MethodPlatformGate,
		ShipIDs:     []shared.ShipID{s1.ID},
	})

	// Assert
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrConflict)

	// Resuming reopens the border.
	_, err = f.svc.Resume(ctx, "region-bar", f.admin)
	require.NoError(t, err)
	tr, err := f.svc.InitiateTravel(ctx, actor, federation.TravelInput{
		Destination: "region-bar",
		Method:      travel.MethodPlatformGate,
		ShipIDs:     []shared.ShipID{s1.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, travel.StatusCompleted, tr.Status)
}

func TestService_TerminationKeepsEvacuationOpen(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 4, 5, 12, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	foo := f.provisionRegion(t, "region-foo", 11)
	f.provisionRegion(t, "region-bar", 12)
	actor, pilot := f.seedPilot(t, "evacuee", foo, 500)
	s1 := f.seedShip(t, foo, pilot.ID, ship.HullScout)

	terminated, err := f.svc.BeginTermination(ctx, "region-foo", f.admin)
	require.NoError(t, err)
	require.NotNil(t, terminated.EvacuationAt)
	assert.NotEmpty(t, f.events.byType(shared.EventRegionTerminating))

	// Act: residents still leave during the window.
	tr, err := f.svc.InitiateTravel(ctx, actor, federation.TravelInput{
		Destination: "region-bar",
		Method:      travel.MethodPlatformGate,
		ShipIDs:     []shared.ShipID{s1.ID},
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, travel.StatusCompleted, tr.Status)

	// Nobody returns into a terminated region.
	_, err = f.svc.InitiateTravel(ctx, actor, federation.TravelInput{
		Destination: "region-foo",
		Method:      travel.MethodPlatformGate,
		ShipIDs:     []shared.ShipID{},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrConflict)

	// The shard survives until the window closes, then is de-referenced.
	dropped, err := f.svc.DecommissionExpired(ctx)
	require.NoError(t, err)
	assert.Empty(t, dropped)

	f.clock.Advance(31 * 24 * time.Hour)
	dropped, err = f.svc.DecommissionExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"region-foo"}, dropped)
	assert.Contains(t, f.shards.evicted, "region-foo")

	// The sweep settles: a decommissioned region is not reported again.
	dropped, err = f.svc.DecommissionExpired(ctx)
	require.NoError(t, err)
	assert.Empty(t, dropped)
	gone, err := f.svc.GetRegion(ctx, "region-foo")
	require.NoError(t, err)
	assert.Equal(t, region.StatusDecommissioned, gone.Status)
}

func TestService_CancelReleasesReservation(t *testing.T) {
	// Arrange: an in-transit record whose materialization never ran, as left
	// by a crash between the global write and the destination write.
	clock := shared.NewMockClock(time.Date(2102, 4, 6, 12, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	foo := f.provisionRegion(t, "region-foo", 11)
	bar := f.provisionRegion(t, "region-bar", 12)
	actor, pilot := f.seedPilot(t, "second-thoughts", foo, 500)
	s1 := f.seedShip(t, foo, pilot.ID, ship.HullScout)

	manifest := travel.Manifest{ShipIDs: []shared.ShipID{s1.ID}}
	tr, err := travel.Begin("", pilot.ID, foo.ID, bar.ID, travel.MethodPlatformGate, manifest, 0, f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, f.travels.Create(ctx, tr))
	srcGW, err := f.shards.Region(ctx, foo.Name)
	require.NoError(t, err)
	held, err := srcGW.Ships.FindByID(ctx, foo.ID, s1.ID)
	require.NoError(t, err)
	require.NoError(t, held.ReserveForTravel(tr.ID, f.clock.Now()))
	require.NoError(t, srcGW.Ships.Update(ctx, held))

	// Act
	cancelled, err := f.svc.CancelTravel(ctx, actor, tr.ID)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, travel.StatusCancelled, cancelled.Status)
	freed, err := srcGW.Ships.FindByID(ctx, foo.ID, s1.ID)
	require.NoError(t, err)
	assert.True(t, freed.ReservedBy.IsZero())

	// A settled record cannot be cancelled again.
	_, err = f.svc.CancelTravel(ctx, actor, tr.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrConflict)
}

func TestService_CancelYieldsToConcurrentCompletion(t *testing.T) {
	// Arrange: an in-transit record whose fare and escrow already left the
	// purse, the state a cancel and the stall resolver can race over.
	clock := shared.NewMockClock(time.Date(2102, 4, 6, 12, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	foo := f.provisionRegion(t, "region-foo", 11)
	bar := f.provisionRegion(t, "region-bar", 12)
	actor, pilot := f.seedPilot(t, "split-brain", foo, 500)
	s1 := f.seedShip(t, foo, pilot.ID, ship.HullScout)

	manifest := travel.Manifest{ShipIDs: []shared.ShipID{s1.ID}, Credits: 200}
	tr, err := travel.Begin("", pilot.ID, foo.ID, bar.ID, travel.MethodPlatformGate, manifest, 100, f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, f.travels.Create(ctx, tr))
	srcGW, err := f.shards.Region(ctx, foo.Name)
	require.NoError(t, err)
	held, err := srcGW.Ships.FindByID(ctx, foo.ID, s1.ID)
	require.NoError(t, err)
	require.NoError(t, held.ReserveForTravel(tr.ID, f.clock.Now()))
	require.NoError(t, srcGW.Ships.Update(ctx, held))
	debited, err := f.players.FindByID(ctx, pilot.ID)
	require.NoError(t, err)
	require.NoError(t, debited.Spend(300, f.clock.Now()))
	require.NoError(t, f.players.Update(ctx, debited))

	// The resolver completes the transfer between the cancel's read of the
	// record and its terminal write.
	f.travelHook.beforeUpdate = func(*travel.Travel) {
		n, rerr := f.svc.ResolveStalled(ctx, f.clock.Now().Add(time.Minute))
		assert.NoError(t, rerr)
		assert.Equal(t, 1, n)
	}

	// Act
	cancelled, err := f.svc.CancelTravel(ctx, actor, tr.ID)

	// Assert: the cancel lost the terminal write and adopted the completed
	// record without refunding on top of the escrow paid out at arrival.
	require.NoError(t, err)
	assert.Equal(t, travel.StatusCompleted, cancelled.Status)
	settled, err := f.travels.FindByID(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, travel.StatusCompleted, settled.Status)
	moved, err := f.players.FindByID(ctx, pilot.ID)
	require.NoError(t, err)
	assert.Equal(t, "region-bar", moved.CurrentRegion)
	assert.Equal(t, shared.Credits(400), moved.Credits, "escrow arrives once, fare is spent")
}

func TestService_InitiateFailureSettlesTheRecord(t *testing.T) {
	// Arrange: the fare is 100 but the purse holds 50, so the command fails
	// after the global record and the reservation exist.
	clock := shared.NewMockClock(time.Date(2102, 4, 6, 12, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	foo := f.provisionRegion(t, "region-foo", 11)
	f.provisionRegion(t, "region-bar", 12)
	actor, pilot := f.seedPilot(t, "short-purse", foo, 50)
	s1 := f.seedShip(t, foo, pilot.ID, ship.HullScout)

	// Act
	_, err := f.svc.InitiateTravel(ctx, actor, federation.TravelInput{
		Destination: "region-bar",
		Method:      travel.MethodPlatformGate,
		ShipIDs:     []shared.ShipID{s1.ID},
	})

	// Assert
	require.Error(t, err)

	// The record was opened before any shard write and settled by the
	// rollback, so the ship cannot stay reserved under an unknown travel id.
	recs, err := f.travels.ListByPlayer(ctx, pilot.ID, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, travel.StatusFailed, recs[0].Status)

	srcGW, err := f.shards.Region(ctx, foo.Name)
	require.NoError(t, err)
	freed, err := srcGW.Ships.FindByID(ctx, foo.ID, s1.ID)
	require.NoError(t, err)
	assert.True(t, freed.ReservedBy.IsZero())

	// Nothing was debited, so the rollback refunds nothing.
	same, err := f.players.FindByID(ctx, pilot.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.Credits(50), same.Credits)

	// The settled record does not block a fresh attempt.
	_, err = f.travels.FindActiveByPlayer(ctx, pilot.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestService_ResolveStalledCompletesAfterOutage(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 4, 7, 12, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	foo := f.provisionRegion(t, "region-foo", 11)
	bar := f.provisionRegion(t, "region-bar", 12)
	_, pilot := f.seedPilot(t, "patient-pilot", foo, 500)
	s1 := f.seedShip(t, foo, pilot.ID, ship.HullScout)

	// Seed an in-transit record whose materialization never ran, as left by a
	// crash between the global write and the destination write.
	manifest := travel.Manifest{ShipIDs: []shared.ShipID{s1.ID}}
	tr, err := travel.Begin("", pilot.ID, foo.ID, bar.ID, travel.MethodPlatformGate, manifest, 100, f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, f.travels.Create(ctx, tr))
	srcGW, err := f.shards.Region(ctx, foo.Name)
	require.NoError(t, err)
	held, err := srcGW.Ships.FindByID(ctx, foo.ID, s1.ID)
	require.NoError(t, err)
	require.NoError(t, held.ReserveForTravel(tr.ID, f.clock.Now()))
	require.NoError(t, srcGW.Ships.Update(ctx, held))

	f.clock.Advance(15 * time.Minute)

	// Act
	resolved, err := f.svc.ResolveStalled(ctx, f.clock.Now())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)
	settled, err := f.travels.FindByID(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, travel.StatusCompleted, settled.Status)
	moved, err := f.players.FindByID(ctx, pilot.ID)
	require.NoError(t, err)
	assert.Equal(t, "region-bar", moved.CurrentRegion)
}

func TestService_StatisticsCountsTheRegion(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 4, 8, 12, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	foo := f.provisionRegion(t, "region-foo", 11)
	for i := 0; i < 3; i++ {
		f.seedPilot(t, fmt.Sprintf("resident-%d", i), foo, 100)
	}

	// Act
	stats, err := f.svc.RegionStatistics(ctx, "region-foo")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 100, stats.Sectors)
	assert.Equal(t, 3, stats.Players)
	assert.Equal(t, string(region.StatusActive), stats.Status)
}
