package engagement_test

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
	"github.com/sectorwars/gameserver/internal/application/engagement"
	"github.com/sectorwars/gameserver/internal/application/federation"
	"github.com/sectorwars/gameserver/internal/domain/account"
	"github.com/sectorwars/gameserver/internal/domain/bounty"
	"github.com/sectorwars/gameserver/internal/domain/combat"
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

// stubEffects applies the same treaty fold to every region pair.
type stubEffects struct {
	prohibited bool
}

func (s stubEffects) TreatyEffects(context.Context, shared.RegionID, shared.RegionID) (federation.Effects, error) {
	eff := federation.NeutralEffects()
	eff.CombatProhibited = s.prohibited
	return eff, nil
}

type fixture struct {
	svc         *engagement.Service
	clock       *shared.MockClock
	shards      *testShards
	events      *eventSink
	regions     *persistence.GormRegionRepository
	players     *persistence.GormPlayerRepository
	memberships *persistence.GormMembershipRepository
}

func newFixture(t *testing.T, clock *shared.MockClock, effects engagement.EffectsSource) *fixture {
	t.Helper()
	db := helpers.NewGlobalTestDB(t)
	shards := newTestShards(t)
	events := &eventSink{}
	regions := persistence.NewGormRegionRepository(db)
	players := persistence.NewGormPlayerRepository(db)
	memberships := persistence.NewGormMembershipRepository(db)
	svc := engagement.NewService(regions, memberships, players, effects, shards, events, clock)
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
	sectors := make([]*sector.Sector, 0, 5)
	for i := 1; i <= 5; i++ {
		sec, err := sector.New(r.ID, i, "", sector.TypeNormal, 0, 0, 5, now)
		require.NoError(t, err)
		sectors = append(sectors, sec)
	}
	require.NoError(t, gw.Sectors.CreateBatch(ctx, sectors, nil))
	return r
}

// seedPilot places a persona in the region at sector 1 with a boarded hull.
func (f *fixture) seedPilot(t *testing.T, name string, r *region.Region, hull ship.HullClass) (common.Actor, *player.Player, *ship.Ship) {
	t.Helper()
	ctx := context.Background()
	now := f.clock.Now()

	p, err := player.New(shared.NewAccountID(), name, region.NexusName, now)
	require.NoError(t, err)
	p.Credits = 5_000
	p.Relocate(r.Name, 1, now)
	require.NoError(t, f.memberships.Create(ctx, region.NewMembership(p.ID, r.ID, now)))

	gw, err := f.shards.Region(ctx, r.Name)
	require.NoError(t, err)
	sh, err := ship.New(p.ID, r.ID, 1, hull, "", now)
	require.NoError(t, err)
	require.NoError(t, gw.Ships.Create(ctx, sh))

	p.BoardShip(sh.ID, now)
	require.NoError(t, f.players.Create(ctx, p))
	return common.Actor{AccountID: p.AccountID, PlayerID: p.ID, Role: account.RolePlayer}, p, sh
}

// fightToFinish alternates full-aggression orders until the engagement ends.
func fightToFinish(t *testing.T, f *fixture, atk, def common.Actor, id shared.CombatID) *combat.Combat {
	t.Helper()
	ctx := context.Background()
	var c *combat.Combat
	for i := 0; i < combat.DefaultRoundCap+1; i++ {
		var err error
		c, err = f.svc.SubmitCommand(ctx, atk, id, combat.Command{WeaponMix: 0})
		require.NoError(t, err)
		if !c.Active() {
			return c
		}
		c, err = f.svc.SubmitCommand(ctx, def, id, combat.Command{WeaponMix: 0})
		require.NoError(t, err)
		if !c.Active() {
			return c
		}
	}
	t.Fatalf("engagement did not finish within the round cap")
	return nil
}

func TestService_EngageLocksBothShips(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 7, 4, 9, 0, 0, 0, time.UTC))
	f := newFixture(t, clock, stubEffects{})
	ctx := context.Background()
	r := f.seedRegion(t, "contested-verge")
	atk, _, _ := f.seedPilot(t, "raider", r, ship.HullScout)
	_, _, defShip := f.seedPilot(t, "hauler", r, ship.HullCargoHauler)

	// Act
	c, err := f.svc.Engage(ctx, atk, defShip.ID)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, combat.StatusEngaging, c.Status)
	assert.Equal(t, 1, c.Sector)
	started := f.events.byType(shared.EventCombatStarted)
	require.Len(t, started, 1)
	assert.Contains(t, started[0].Scopes, shared.SectorScope(r.Name, 1))

	// Both ships are now locked: a second engagement is refused.
	_, err = f.svc.Engage(ctx, atk, defShip.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))
}

func TestService_EngageRequiresSameSector(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 7, 4, 9, 0, 0, 0, time.UTC))
	f := newFixture(t, clock, stubEffects{})
	ctx := context.Background()
	r := f.seedRegion(t, "contested-verge")
	atk, _, _ := f.seedPilot(t, "raider", r, ship.HullScout)
	_, _, defShip := f.seedPilot(t, "hauler", r, ship.HullCargoHauler)

	gw, err := f.shards.Region(ctx, r.Name)
	require.NoError(t, err)
	require.NoError(t, defShip.MoveTo(2, f.clock.Now()))
	require.NoError(t, gw.Ships.Update(ctx, defShip))

	// Act
	_, err = f.svc.Engage(ctx, atk, defShip.ID)

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))
}

func TestService_BothOrdersResolveARound(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 7, 4, 9, 0, 0, 0, time.UTC))
	f := newFixture(t, clock, stubEffects{})
	ctx := context.Background()
	r := f.seedRegion(t, "contested-verge")
	atk, _, atkShip := f.seedPilot(t, "raider", r, ship.HullScout)
	def, _, defShip := f.seedPilot(t, "hauler", r, ship.HullCargoHauler)

	c, err := f.svc.Engage(ctx, atk, defShip.ID)
	require.NoError(t, err)

	// Act: the first order arms the round, the second resolves it.
	c, err = f.svc.SubmitCommand(ctx, atk, c.ID, combat.Command{WeaponMix: 0.5})
	require.NoError(t, err)
	require.Empty(t, c.Rounds, "a single order does not resolve the round")
	c, err = f.svc.SubmitCommand(ctx, def, c.ID, combat.Command{WeaponMix: 0.5})

	// Assert
	require.NoError(t, err)
	require.Len(t, c.Rounds, 1)
	assert.Equal(t, 1, c.Rounds[0].Index)
	assert.False(t, c.CommandsReady(), "resolution consumes the pending orders")

	resolved := f.events.byType(shared.EventCombatRoundResolved)
	require.Len(t, resolved, 1)
	assert.True(t, resolved[0].Durable())

	gw, err := f.shards.Region(ctx, r.Name)
	require.NoError(t, err)
	freshAtk, err := gw.Ships.FindByID(ctx, r.ID, atkShip.ID)
	require.NoError(t, err)
	freshDef, err := gw.Ships.FindByID(ctx, r.ID, defShip.ID)
	require.NoError(t, err)
	damaged := freshAtk.Condition < 1.0 || freshAtk.Shield < atkShip.Shield ||
		freshDef.Condition < 1.0 || freshDef.Shield < defShip.Shield
	assert.True(t, damaged, "the round's damage lands on the ship rows")
}

func TestService_DeadlineSweepFightsWithFallbacks(t *testing.T) {
	// Arrange: neither side orders; the sweep resolves with fallbacks.
	clock := shared.NewMockClock(time.Date(2102, 7, 4, 9, 0, 0, 0, time.UTC))
	f := newFixture(t, clock, stubEffects{})
	ctx := context.Background()
	r := f.seedRegion(t, "contested-verge")
	atk, _, _ := f.seedPilot(t, "raider", r, ship.HullScout)
	_, _, defShip := f.seedPilot(t, "hauler", r, ship.HullCargoHauler)

	c, err := f.svc.Engage(ctx, atk, defShip.ID)
	require.NoError(t, err)

	// Act
	clock.Advance(combat.DefaultRoundDeadline + time.Second)
	resolved, err := f.svc.ResolveDue(ctx, r.Name)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)

	// The fresh deadline keeps the next round out of the sweep until it
	// expires in turn.
	resolved, err = f.svc.ResolveDue(ctx, r.Name)
	require.NoError(t, err)
	assert.Equal(t, 0, resolved)

	fresh, err := f.svc.Status(ctx, atk, c.ID)
	require.NoError(t, err)
	require.Len(t, fresh.Rounds, 1)
	assert.False(t, fresh.Rounds[0].AttackerCommand.Retreat, "fallbacks never begin a retreat")
}

func TestService_RetreatEscapesTheSlowerHull(t *testing.T) {
	// Arrange: a scout disengaging from a cargo hauler outruns it within two
	// rounds regardless of the rolls.
	clock := shared.NewMockClock(time.Date(2102, 7, 4, 9, 0, 0, 0, time.UTC))
	f := newFixture(t, clock, stubEffects{})
	ctx := context.Background()
	r := f.seedRegion(t, "contested-verge")
	atk, _, atkShip := f.seedPilot(t, "raider", r, ship.HullScout)
	_, _, defShip := f.seedPilot(t, "hauler", r, ship.HullCargoHauler)

	c, err := f.svc.Engage(ctx, atk, defShip.ID)
	require.NoError(t, err)

	// Act: keep running until the engagement ends.
	for i := 0; i < 5 && c.Active(); i++ {
		c, err = f.svc.Retreat(ctx, atk, c.ID)
		require.NoError(t, err)
		if c.Active() {
			clock.Advance(combat.DefaultRoundDeadline + time.Second)
			_, err = f.svc.ResolveDue(ctx, r.Name)
			require.NoError(t, err)
			c, err = f.svc.Status(ctx, atk, c.ID)
			require.NoError(t, err)
		}
	}

	// Assert
	assert.Equal(t, combat.StatusRetreat, c.Status)
	assert.Equal(t, combat.SideAttacker, c.EscapedBy)
	gw, err := f.shards.Region(ctx, r.Name)
	require.NoError(t, err)
	survivor, err := gw.Ships.FindByID(ctx, r.ID, atkShip.ID)
	require.NoError(t, err)
	assert.False(t, survivor.Destroyed)

	ended := f.events.byType(shared.EventCombatEnded)
	require.Len(t, ended, 1)
	assert.Equal(t, string(combat.StatusRetreat), ended[0].Payload["status"])
}

func TestService_VictoryDestroysPaysInsuranceAndClaimsBounty(t *testing.T) {
	// Arrange: a defender hull against a scout ends in destruction well
	// before the round cap.
	clock := shared.NewMockClock(time.Date(2102, 7, 4, 9, 0, 0, 0, time.UTC))
	f := newFixture(t, clock, stubEffects{})
	ctx := context.Background()
	r := f.seedRegion(t, "contested-verge")
	atk, atkPersona, _ := f.seedPilot(t, "enforcer", r, ship.HullDefender)
	def, defPersona, defShip := f.seedPilot(t, "fugitive", r, ship.HullScout)

	gw, err := f.shards.Region(ctx, r.Name)
	require.NoError(t, err)
	posted, err := bounty.Post(r.ID, shared.NewPlayerID(), defPersona.ID, 1_000, "piracy", f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, gw.Bounties.Create(ctx, posted))
	require.NoError(t, defShip.SetInsurance(ship.InsuranceBasic, f.clock.Now()))
	require.NoError(t, gw.Ships.Update(ctx, defShip))

	c, err := f.svc.Engage(ctx, atk, defShip.ID)
	require.NoError(t, err)

	// Act
	c = fightToFinish(t, f, atk, def, c.ID)

	// Assert
	assert.Equal(t, combat.StatusVictory, c.Status)
	wreck, err := gw.Ships.FindByID(ctx, r.ID, defShip.ID)
	require.NoError(t, err)
	assert.True(t, wreck.Destroyed)

	loser, err := f.players.FindByID(ctx, defPersona.ID)
	require.NoError(t, err)
	assert.True(t, loser.CurrentShipID.IsZero(), "the pilot leaves the wreck")
	expectedPayout := shared.Credits(wreck.InsurancePayout())
	assert.Equal(t, defPersona.Credits+expectedPayout, loser.Credits)

	winner, err := f.players.FindByID(ctx, atkPersona.ID)
	require.NoError(t, err)
	assert.Equal(t, atkPersona.Credits+shared.Credits(1_000), winner.Credits)
	claimed, err := gw.Bounties.FindByID(ctx, r.ID, posted.ID)
	require.NoError(t, err)
	assert.Equal(t, bounty.StatusClaimed, claimed.Status)
	assert.Equal(t, atkPersona.ID, claimed.ClaimedBy)
	require.Len(t, f.events.byType(shared.EventBountyClaimed), 1)

	// The log is frozen: no further orders land.
	_, err = f.svc.SubmitCommand(ctx, atk, c.ID, combat.Command{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))
}

func TestService_TreatyOutlawsCitizenCombat(t *testing.T) {
	// Arrange: both pilots hold citizenships in different regions and every
	// pair carries a non-aggression pact in the stub.
	clock := shared.NewMockClock(time.Date(2102, 7, 4, 9, 0, 0, 0, time.UTC))
	f := newFixture(t, clock, stubEffects{prohibited: true})
	ctx := context.Background()
	r := f.seedRegion(t, "contested-verge")
	home := f.seedRegion(t, "quiet-home")
	atk, atkPersona, _ := f.seedPilot(t, "raider", r, ship.HullScout)
	_, defPersona, defShip := f.seedPilot(t, "settler", r, ship.HullCargoHauler)

	m, err := f.memberships.Find(ctx, atkPersona.ID, r.ID)
	require.NoError(t, err)
	require.NoError(t, m.Promote(region.MembershipCitizen, f.clock.Now()))
	require.NoError(t, f.memberships.Update(ctx, m))

	foreign := region.NewMembership(defPersona.ID, home.ID, f.clock.Now())
	require.NoError(t, foreign.Promote(region.MembershipCitizen, f.clock.Now()))
	require.NoError(t, f.memberships.Create(ctx, foreign))

	// Act
	_, err = f.svc.Engage(ctx, atk, defShip.ID)

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrForbidden))
	assert.Equal(t, shared.CodeFactionRestrict, shared.CodeOf(err))
}

func TestService_StatusIsCombatantOnly(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 7, 4, 9, 0, 0, 0, time.UTC))
	f := newFixture(t, clock, stubEffects{})
	ctx := context.Background()
	r := f.seedRegion(t, "contested-verge")
	atk, _, _ := f.seedPilot(t, "raider", r, ship.HullScout)
	_, _, defShip := f.seedPilot(t, "hauler", r, ship.HullCargoHauler)
	bystander, _, _ := f.seedPilot(t, "onlooker", r, ship.HullCourier)

	c, err := f.svc.Engage(ctx, atk, defShip.ID)
	require.NoError(t, err)

	// Act
	_, participantErr := f.svc.Status(ctx, atk, c.ID)
	_, bystanderErr := f.svc.Status(ctx, bystander, c.ID)

	// Assert
	require.NoError(t, participantErr)
	require.Error(t, bystanderErr)
	assert.True(t, errors.Is(bystanderErr, shared.ErrForbidden))

	// Orders from outside the engagement are refused the same way.
	_, err = f.svc.SubmitCommand(ctx, bystander, c.ID, combat.Command{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrForbidden))
}
