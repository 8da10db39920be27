package teams_test

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
	"github.com/sectorwars/gameserver/internal/application/teams"
	"github.com/sectorwars/gameserver/internal/domain/account"
	"github.com/sectorwars/gameserver/internal/domain/player"
	"github.com/sectorwars/gameserver/internal/domain/region"
	"github.com/sectorwars/gameserver/internal/domain/sector"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/domain/team"
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
	svc     *teams.Service
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
	svc := teams.NewService(regions, players, shards, events, clock)
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
	sectors := make([]*sector.Sector, 0, 3)
	for i := 1; i <= 3; i++ {
		sec, err := sector.New(r.ID, i, "", sector.TypeNormal, 0, 0, 5, now)
		require.NoError(t, err)
		sectors = append(sectors, sec)
	}
	require.NoError(t, gw.Sectors.CreateBatch(ctx, sectors, nil))
	return r
}

func (f *fixture) seedPersona(t *testing.T, name string, r *region.Region, credits shared.Credits) (common.Actor, *player.Player) {
	t.Helper()
	ctx := context.Background()
	now := f.clock.Now()

	p, err := player.New(shared.NewAccountID(), name, region.NexusName, now)
	require.NoError(t, err)
	p.Credits = credits
	p.Relocate(r.Name, 1, now)
	require.NoError(t, f.players.Create(ctx, p))
	return common.Actor{AccountID: p.AccountID, PlayerID: p.ID, Role: account.RolePlayer}, p
}

// founds a team through the service so the founder's seat is real.
func (f *fixture) seedTeam(t *testing.T, founder common.Actor, policy team.JoinPolicy) *team.Team {
	t.Helper()
	crew, err := f.svc.Create(context.Background(), founder, teams.CreateInput{
		Name: "Void Haulers", Tag: "VH", Type: team.TypeCorporation, JoinPolicy: policy,
	})
	require.NoError(t, err)
	return crew
}

func TestService_CreateSeatsTheFounderAsLeader(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 10, 2, 9, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "quiet-reach")
	founder, persona := f.seedPersona(t, "ophelia", r, 10_000)

	// Act
	crew, err := f.svc.Create(ctx, founder, teams.CreateInput{
		Name: "Void Haulers", Tag: "VH", Type: team.TypeCorporation, JoinPolicy: team.JoinInvite,
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, persona.ID, crew.LeaderID)
	assert.Equal(t, team.DefaultMemberCap, crew.MemberCap)

	got, members, err := f.svc.Detail(ctx, founder, crew.ID)
	require.NoError(t, err)
	assert.Equal(t, crew.ID, got.ID)
	require.Len(t, members, 1)
	assert.Equal(t, team.RoleLeader, members[0].Role)

	reloaded, err := f.players.FindByID(ctx, persona.ID)
	require.NoError(t, err)
	assert.Equal(t, crew.ID, reloaded.TeamID)

	// One seat per player.
	_, err = f.svc.Create(ctx, founder, teams.CreateInput{
		Name: "Second Wind", Tag: "SW", Type: team.TypeGuild, JoinPolicy: team.JoinOpen,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))
}

func TestService_InviteAndAcceptJoinsTheRoster(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 10, 2, 9, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "quiet-reach")
	founder, _ := f.seedPersona(t, "ophelia", r, 10_000)
	mateActor, mate := f.seedPersona(t, "marcus", r, 1_000)
	crew := f.seedTeam(t, founder, team.JoinInvite)

	// Act
	inv, err := f.svc.Invite(ctx, founder, mate.ID)
	require.NoError(t, err)
	joined, acceptErr := f.svc.Accept(ctx, mateActor, crew.ID)

	// Assert
	require.NoError(t, acceptErr)
	assert.Equal(t, crew.ID, joined.ID)
	assert.Equal(t, mate.ID, inv.PlayerID)

	_, members, err := f.svc.Detail(ctx, founder, crew.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	reloaded, err := f.players.FindByID(ctx, mate.ID)
	require.NoError(t, err)
	assert.Equal(t, crew.ID, reloaded.TeamID)

	// Plain members cannot invite.
	_, stray := f.seedPersona(t, "stray", r, 0)
	_, err = f.svc.Invite(ctx, mateActor, stray.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrForbidden))
	assert.Equal(t, shared.CodeTeamPermission, shared.CodeOf(err))
}

func TestService_ExpiredInvitationsAreDead(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 10, 2, 9, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "quiet-reach")
	founder, _ := f.seedPersona(t, "ophelia", r, 10_000)
	mateActor, mate := f.seedPersona(t, "marcus", r, 0)
	crew := f.seedTeam(t, founder, team.JoinInvite)

	_, err := f.svc.Invite(ctx, founder, mate.ID)
	require.NoError(t, err)

	// Act
	clock.Advance(team.InvitationTTL + time.Hour)
	_, err = f.svc.Accept(ctx, mateActor, crew.ID)

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))
}

func TestService_OpenTeamsAdmitApplicantsDirectly(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 10, 2, 9, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "quiet-reach")
	founder, _ := f.seedPersona(t, "ophelia", r, 10_000)
	joinerActor, joiner := f.seedPersona(t, "marcus", r, 0)
	crew := f.seedTeam(t, founder, team.JoinOpen)

	// Act
	joined, err := f.svc.Apply(ctx, joinerActor, crew.ID)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, crew.ID, joined.ID)
	reloaded, err := f.players.FindByID(ctx, joiner.ID)
	require.NoError(t, err)
	assert.Equal(t, crew.ID, reloaded.TeamID)
}

func TestService_ApplicationsAwaitOfficerApproval(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 10, 2, 9, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "quiet-reach")
	founder, _ := f.seedPersona(t, "ophelia", r, 10_000)
	applicantActor, applicant := f.seedPersona(t, "marcus", r, 0)
	crew := f.seedTeam(t, founder, team.JoinInvite)

	// Act: applying records a request but grants nothing.
	pending, err := f.svc.Apply(ctx, applicantActor, crew.ID)
	require.NoError(t, err)
	assert.Equal(t, crew.ID, pending.ID)

	unseated, err := f.players.FindByID(ctx, applicant.ID)
	require.NoError(t, err)
	assert.True(t, unseated.TeamID.IsZero())

	// The applicant cannot fast-track their own application.
	_, selfErr := f.svc.Accept(ctx, applicantActor, crew.ID)
	require.Error(t, selfErr)
	assert.True(t, errors.Is(selfErr, shared.ErrConflict))

	// An officer approves it.
	_, err = f.svc.Approve(ctx, founder, applicant.ID)

	// Assert
	require.NoError(t, err)
	seated, err := f.players.FindByID(ctx, applicant.ID)
	require.NoError(t, err)
	assert.Equal(t, crew.ID, seated.TeamID)

	// Closed teams refuse applications outright.
	closedFounder, _ := f.seedPersona(t, "recluse", r, 0)
	closed, err := f.svc.Create(ctx, closedFounder, teams.CreateInput{
		Name: "Hermits", Tag: "HMT", Type: team.TypeGuild, JoinPolicy: team.JoinClosed,
	})
	require.NoError(t, err)
	outsider, _ := f.seedPersona(t, "outsider", r, 0)
	_, err = f.svc.Apply(ctx, outsider, closed.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))
}

func TestService_TreasuryDepositAndWithdraw(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 10, 2, 9, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "quiet-reach")
	founder, persona := f.seedPersona(t, "ophelia", r, 10_000)
	mateActor, mate := f.seedPersona(t, "marcus", r, 500)
	crew := f.seedTeam(t, founder, team.JoinOpen)
	_, err := f.svc.Apply(ctx, mateActor, crew.ID)
	require.NoError(t, err)

	// Act
	after, err := f.svc.Deposit(ctx, founder, 2_500)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, shared.Credits(2_500), after.Treasury)
	reloaded, err := f.players.FindByID(ctx, persona.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.Credits(7_500), reloaded.Credits)

	treasury := f.events.byType(shared.EventTeamTreasury)
	require.Len(t, treasury, 1)
	assert.Contains(t, treasury[0].Scopes, shared.TeamScope(crew.ID))
	assert.Equal(t, "deposit", treasury[0].Payload["direction"])

	// Plain members cannot draw on the treasury.
	_, err = f.svc.Withdraw(ctx, mateActor, 100)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrForbidden))

	// The leader can, but not past the balance.
	drawn, err := f.svc.Withdraw(ctx, founder, 1_000)
	require.NoError(t, err)
	assert.Equal(t, shared.Credits(1_500), drawn.Treasury)
	reloaded, err = f.players.FindByID(ctx, persona.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.Credits(8_500), reloaded.Credits)

	_, err = f.svc.Withdraw(ctx, founder, 5_000)
	require.Error(t, err)
	assert.Equal(t, shared.CodeInsufficientCred, shared.CodeOf(err))

	// A broke member cannot deposit what they do not hold.
	_, err = f.svc.Deposit(ctx, mateActor, 9_999)
	require.Error(t, err)
	assert.Equal(t, shared.CodeInsufficientCred, shared.CodeOf(err))
	assert.Equal(t, shared.Credits(500), mustFind(t, f, mate.ID).Credits)
}

func TestService_LeadershipTransferAndRanks(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 10, 2, 9, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "quiet-reach")
	founder, foundPersona := f.seedPersona(t, "ophelia", r, 10_000)
	mateActor, mate := f.seedPersona(t, "marcus", r, 0)
	crew := f.seedTeam(t, founder, team.JoinOpen)
	_, err := f.svc.Apply(ctx, mateActor, crew.ID)
	require.NoError(t, err)

	// Only the leader assigns roles.
	err = f.svc.AssignRole(ctx, mateActor, foundPersona.ID, team.RoleMember)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrForbidden))

	// Act: promote, then hand the team over.
	require.NoError(t, f.svc.AssignRole(ctx, founder, mate.ID, team.RoleOfficer))
	require.NoError(t, f.svc.AssignRole(ctx, founder, mate.ID, team.RoleLeader))

	// Assert
	got, members, err := f.svc.Detail(ctx, founder, crew.ID)
	require.NoError(t, err)
	assert.Equal(t, mate.ID, got.LeaderID)
	roles := map[shared.PlayerID]team.Role{}
	for _, m := range members {
		roles[m.PlayerID] = m.Role
	}
	assert.Equal(t, team.RoleLeader, roles[mate.ID])
	assert.Equal(t, team.RoleOfficer, roles[foundPersona.ID])

	// The old leader now lacks the authority they handed away.
	err = f.svc.AssignRole(ctx, founder, mate.ID, team.RoleMember)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrForbidden))
}

func TestService_KickRequiresOutranking(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 10, 2, 9, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "quiet-reach")
	founder, foundPersona := f.seedPersona(t, "ophelia", r, 10_000)
	mateActor, mate := f.seedPersona(t, "marcus", r, 0)
	crew := f.seedTeam(t, founder, team.JoinOpen)
	_, err := f.svc.Apply(ctx, mateActor, crew.ID)
	require.NoError(t, err)

	// A member cannot kick the leader.
	err = f.svc.Kick(ctx, mateActor, foundPersona.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrForbidden))

	// Act
	err = f.svc.Kick(ctx, founder, mate.ID)

	// Assert
	require.NoError(t, err)
	_, members, err := f.svc.Detail(ctx, founder, crew.ID)
	require.NoError(t, err)
	assert.Len(t, members, 1)
	assert.True(t, mustFind(t, f, mate.ID).TeamID.IsZero())
}

func TestService_LeaveAndDisband(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 10, 2, 9, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "quiet-reach")
	founder, foundPersona := f.seedPersona(t, "ophelia", r, 10_000)
	mateActor, _ := f.seedPersona(t, "marcus", r, 0)
	crew := f.seedTeam(t, founder, team.JoinOpen)
	_, err := f.svc.Apply(ctx, mateActor, crew.ID)
	require.NoError(t, err)
	_, err = f.svc.Deposit(ctx, founder, 3_000)
	require.NoError(t, err)

	// The leader cannot walk out on a crewed team.
	err = f.svc.Leave(ctx, founder)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))

	// A member leaves freely.
	require.NoError(t, f.svc.Leave(ctx, mateActor))

	// Act: the last member leaving disbands and reclaims the treasury.
	require.NoError(t, f.svc.Leave(ctx, founder))

	// Assert
	_, _, err = f.svc.Detail(ctx, founder, crew.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrNotFound))
	reloaded := mustFind(t, f, foundPersona.ID)
	assert.True(t, reloaded.TeamID.IsZero())
	assert.Equal(t, shared.Credits(10_000), reloaded.Credits)
}

func mustFind(t *testing.T, f *fixture, id shared.PlayerID) *player.Player {
	t.Helper()
	p, err := f.players.FindByID(context.Background(), id)
	require.NoError(t, err)
	return p
}
