package onboarding_test

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
	"github.com/sectorwars/gameserver/internal/application/onboarding"
	"github.com/sectorwars/gameserver/internal/domain/account"
	"github.com/sectorwars/gameserver/internal/domain/audit"
	"github.com/sectorwars/gameserver/internal/domain/firstlogin"
	"github.com/sectorwars/gameserver/internal/domain/player"
	"github.com/sectorwars/gameserver/internal/domain/region"
	"github.com/sectorwars/gameserver/internal/domain/sector"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/domain/ship"
	"github.com/sectorwars/gameserver/test/helpers"
)

// Three answers the heuristic rates on opposite ends of the verdict bands.
const (
	convincingAnswer = "Captain Reyes signed me on last cycle, berth 7, you can check the manifest."
	weakAnswer       = "dunno"
	evasiveAnswer    = "I work for the dock crew."
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

type fixture struct {
	svc     *onboarding.Service
	clock   *shared.MockClock
	shards  *testShards
	regions *persistence.GormRegionRepository
	players *persistence.GormPlayerRepository
	audits  *persistence.GormAuditRecorder
}

func newFixture(t *testing.T, clock *shared.MockClock) *fixture {
	t.Helper()
	db := helpers.NewGlobalTestDB(t)
	shards := newTestShards(t)
	regions := persistence.NewGormRegionRepository(db)
	players := persistence.NewGormPlayerRepository(db)
	audits := persistence.NewGormAuditRecorder(db)
	svc := onboarding.NewService(regions, players, shards, nil, audits, clock)
	return &fixture{
		svc:     svc,
		clock:   clock,
		shards:  shards,
		regions: regions,
		players: players,
		audits:  audits,
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
	sectors := make([]*sector.Sector, 0, 3)
	for i := 1; i <= 3; i++ {
		sec, err := sector.New(r.ID, i, "", sector.TypeNormal, 0, 0, 5, now)
		require.NoError(t, err)
		sectors = append(sectors, sec)
	}
	require.NoError(t, gw.Sectors.CreateBatch(ctx, sectors, nil))
	return r
}

// seedRecruit places a shipless, not-yet-onboarded persona in the region.
func (f *fixture) seedRecruit(t *testing.T, name string, r *region.Region) (common.Actor, *player.Player) {
	t.Helper()
	now := f.clock.Now()

	p, err := player.New(shared.NewAccountID(), name, region.NexusName, now)
	require.NoError(t, err)
	p.Relocate(r.Name, 1, now)
	require.NoError(t, f.players.Create(context.Background(), p))
	return common.Actor{AccountID: p.AccountID, PlayerID: p.ID, Role: account.RolePlayer}, p
}

// claimBoldly picks a presented hull other than the battered fallback, so a
// grant of the claim and a grant of the fallback stay distinguishable.
func claimBoldly(t *testing.T, sess *firstlogin.Session) ship.HullClass {
	t.Helper()
	for _, h := range sess.OfferedHulls {
		if h != firstlogin.FallbackHull {
			return h
		}
	}
	t.Fatal("every presented hull is the fallback")
	return ""
}

// runDialogue claims a non-fallback hull and gives the same answer three
// times, returning the resolved session and the claimed hull.
func runDialogue(t *testing.T, f *fixture, actor common.Actor, answer string) (*firstlogin.Session, ship.HullClass) {
	t.Helper()
	ctx := context.Background()

	sess, err := f.svc.Start(ctx, actor)
	require.NoError(t, err)
	claimed := claimBoldly(t, sess)
	sess, question, err := f.svc.Claim(ctx, actor, claimed)
	require.NoError(t, err)
	require.NotEmpty(t, question)

	for i := 0; i < firstlogin.MaxExchanges; i++ {
		sess, question, err = f.svc.Answer(ctx, actor, answer)
		require.NoError(t, err)
		if i < firstlogin.MaxExchanges-1 {
			require.NotEmpty(t, question)
		} else {
			require.Empty(t, question)
		}
	}
	require.True(t, sess.Terminal())
	return sess, claimed
}

func (f *fixture) boardedShip(t *testing.T, r *region.Region, p *player.Player) *ship.Ship {
	t.Helper()
	ctx := context.Background()
	fresh, err := f.players.FindByID(ctx, p.ID)
	require.NoError(t, err)
	require.False(t, fresh.CurrentShipID.IsZero())
	gw, err := f.shards.Region(ctx, r.Name)
	require.NoError(t, err)
	sh, err := gw.Ships.FindByID(ctx, r.ID, fresh.CurrentShipID)
	require.NoError(t, err)
	return sh
}

func TestService_StartPresentsThreeShipsAndResumes(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 7, 4, 8, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "meridian-gate")
	actor, _ := f.seedRecruit(t, "tomas", r)

	// Act
	sess, err := f.svc.Start(ctx, actor)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, firstlogin.StatePresenting, sess.State)
	assert.Len(t, sess.OfferedHulls, 3)

	// Starting again resumes the same dialogue instead of rolling new ships.
	resumed, err := f.svc.Start(ctx, actor)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, resumed.ID)
	assert.Equal(t, sess.OfferedHulls, resumed.OfferedHulls)
}

func TestService_ClaimRequiresAPresentedHull(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 7, 4, 8, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "meridian-gate")
	actor, _ := f.seedRecruit(t, "tomas", r)
	sess, err := f.svc.Start(ctx, actor)
	require.NoError(t, err)

	// Act: a carrier never sits in the starter berths.
	_, _, err = f.svc.Claim(ctx, actor, ship.HullCarrier)

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))

	// A presented hull starts the questioning.
	claimed, question, err := f.svc.Claim(ctx, actor, sess.OfferedHulls[0])
	require.NoError(t, err)
	assert.Equal(t, firstlogin.StateQuestioning, claimed.State)
	assert.NotEmpty(t, question)
	assert.Len(t, claimed.Exchanges, 1)

	// Claiming twice does not reset the dialogue.
	_, _, err = f.svc.Claim(ctx, actor, sess.OfferedHulls[1])
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))
}

func TestService_ConvincingAnswersWinTheClaim(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 7, 4, 8, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "meridian-gate")
	actor, p := f.seedRecruit(t, "tomas", r)

	// Act
	sess, claimed := runDialogue(t, f, actor, convincingAnswer)

	// Assert
	assert.Equal(t, firstlogin.StateSuccess, sess.State)
	assert.False(t, sess.Flagged)

	fresh, err := f.players.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, fresh.Onboarded)
	granted := f.boardedShip(t, r, p)
	assert.Equal(t, claimed, granted.Class)
	assert.Equal(t, p.ID, granted.OwnerID)
	assert.Equal(t, fresh.CurrentSector, granted.Sector)

	// The dock is done with this player.
	_, err = f.svc.Start(ctx, actor)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))
}

func TestService_WeakAnswersGetCaught(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 7, 4, 8, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "meridian-gate")
	actor, p := f.seedRecruit(t, "tomas", r)

	// Act
	sess, claimed := runDialogue(t, f, actor, weakAnswer)

	// Assert: caught bluffers leave with the battered fallback, not the claim.
	assert.Equal(t, firstlogin.StateCaught, sess.State)
	granted := f.boardedShip(t, r, p)
	assert.Equal(t, firstlogin.FallbackHull, granted.Class)
	assert.NotEqual(t, claimed, granted.Class)

	fresh, err := f.players.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, fresh.Onboarded)
}

func TestService_EvasiveAnswersRaiseAFlag(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 7, 4, 8, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "meridian-gate")
	actor, p := f.seedRecruit(t, "tomas", r)

	// Act
	sess, claimed := runDialogue(t, f, actor, evasiveAnswer)

	// Assert: the guard waves the player through but flags the record.
	assert.Equal(t, firstlogin.StateSuspicious, sess.State)
	assert.True(t, sess.Flagged)
	granted := f.boardedShip(t, r, p)
	assert.Equal(t, claimed, granted.Class)

	entries, total, err := f.audits.List(ctx, audit.CategorySecurity, 1, 10)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.Equal(t, "onboarding.flagged", entries[0].Action)
	assert.Equal(t, p.ID.String(), entries[0].Subject)
	assert.Equal(t, r.Name, entries[0].RegionName)
}

func TestService_TheDialogueExpires(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 7, 4, 8, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "meridian-gate")
	actor, p := f.seedRecruit(t, "tomas", r)

	sess, err := f.svc.Start(ctx, actor)
	require.NoError(t, err)
	_, _, err = f.svc.Claim(ctx, actor, sess.OfferedHulls[0])
	require.NoError(t, err)
	clock.Advance(firstlogin.SessionTTL + time.Minute)

	// Act
	_, _, err = f.svc.Answer(ctx, actor, convincingAnswer)

	// Assert: the stale dialogue resolves as abandoned, with nothing granted.
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))
	_, err = f.svc.Session(ctx, actor)
	assert.True(t, errors.Is(err, shared.ErrNotFound))

	fresh, err := f.players.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, fresh.Onboarded)
	assert.True(t, fresh.CurrentShipID.IsZero())

	// A fresh dialogue opens in its place.
	reopened, err := f.svc.Start(ctx, actor)
	require.NoError(t, err)
	assert.NotEqual(t, sess.ID, reopened.ID)
	assert.Equal(t, firstlogin.StatePresenting, reopened.State)
}

func TestService_AbandonWalksAway(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 7, 4, 8, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "meridian-gate")
	actor, p := f.seedRecruit(t, "tomas", r)
	sess, err := f.svc.Start(ctx, actor)
	require.NoError(t, err)
	_, _, err = f.svc.Claim(ctx, actor, sess.OfferedHulls[0])
	require.NoError(t, err)

	// Act
	closed, err := f.svc.Abandon(ctx, actor)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, firstlogin.StateAbandoned, closed.State)

	fresh, err := f.players.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, fresh.Onboarded)
	assert.True(t, fresh.CurrentShipID.IsZero())

	reopened, err := f.svc.Start(ctx, actor)
	require.NoError(t, err)
	assert.NotEqual(t, sess.ID, reopened.ID)
}

func TestHeuristicScore_RanksSubstanceOverHedging(t *testing.T) {
	assert.InDelta(t, 0.85, onboarding.HeuristicScore(convincingAnswer), 0.001)
	assert.InDelta(t, 0.05, onboarding.HeuristicScore(weakAnswer), 0.001)
	assert.InDelta(t, 0.45, onboarding.HeuristicScore(evasiveAnswer), 0.001)
	assert.Zero(t, onboarding.HeuristicScore("   "))
}
