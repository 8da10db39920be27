package politics_test

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
	"github.com/sectorwars/gameserver/internal/application/politics"
	"github.com/sectorwars/gameserver/internal/domain/account"
	"github.com/sectorwars/gameserver/internal/domain/governance"
	"github.com/sectorwars/gameserver/internal/domain/player"
	"github.com/sectorwars/gameserver/internal/domain/region"
	"github.com/sectorwars/gameserver/internal/domain/sector"
	"github.com/sectorwars/gameserver/internal/domain/shared"
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
	svc         *politics.Service
	clock       *shared.MockClock
	shards      *testShards
	events      *eventSink
	regions     *persistence.GormRegionRepository
	memberships *persistence.GormMembershipRepository
	players     *persistence.GormPlayerRepository
}

func newFixture(t *testing.T, clock *shared.MockClock) *fixture {
	t.Helper()
	db := helpers.NewGlobalTestDB(t)
	shards := newTestShards(t)
	events := &eventSink{}
	regions := persistence.NewGormRegionRepository(db)
	memberships := persistence.NewGormMembershipRepository(db)
	players := persistence.NewGormPlayerRepository(db)
	svc := politics.NewService(regions, memberships, players, shards, events, clock)
	return &fixture{
		svc:         svc,
		clock:       clock,
		shards:      shards,
		events:      events,
		regions:     regions,
		memberships: memberships,
		players:     players,
	}
}

func (f *fixture) seedRegion(t *testing.T, name string, gov region.GovernanceType) *region.Region {
	t.Helper()
	ctx := context.Background()
	now := f.clock.Now()

	r, err := region.New(region.Spec{Name: name, SectorCount: 100, Seed: 1}, shared.NewAccountID(), now)
	require.NoError(t, err)
	require.NoError(t, r.SetGovernance(gov, 0.10, 0.5, 90, now))
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

func (f *fixture) seedVisitor(t *testing.T, name string, r *region.Region) (common.Actor, *player.Player) {
	t.Helper()
	ctx := context.Background()
	now := f.clock.Now()

	p, err := player.New(shared.NewAccountID(), name, region.NexusName, now)
	require.NoError(t, err)
	p.Relocate(r.Name, 1, now)
	require.NoError(t, f.players.Create(ctx, p))
	require.NoError(t, f.memberships.Create(ctx, region.NewMembership(p.ID, r.ID, now)))
	return common.Actor{AccountID: p.AccountID, PlayerID: p.ID, Role: account.RolePlayer}, p
}

func (f *fixture) seedCitizen(t *testing.T, name string, r *region.Region, weight float64) (common.Actor, *player.Player) {
	t.Helper()
	ctx := context.Background()
	now := f.clock.Now()

	p, err := player.New(shared.NewAccountID(), name, region.NexusName, now)
	require.NoError(t, err)
	p.Relocate(r.Name, 1, now)
	require.NoError(t, f.players.Create(ctx, p))

	m := region.NewMembership(p.ID, r.ID, now)
	require.NoError(t, m.Promote(region.MembershipCitizen, now))
	require.NoError(t, m.SetVotingWeight(weight, now))
	require.NoError(t, f.memberships.Create(ctx, m))
	return common.Actor{AccountID: p.AccountID, PlayerID: p.ID, Role: account.RolePlayer}, p
}

func (f *fixture) appointGovernor(t *testing.T, r *region.Region, id shared.PlayerID) {
	t.Helper()
	r.AppointGovernor(id, f.clock.Now())
	require.NoError(t, f.regions.Update(context.Background(), r))
}

func TestService_ProposePolicyFollowsTheGovernanceType(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 11, 3, 8, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()

	demos := f.seedRegion(t, "demos", region.GovernanceDemocracy)
	citizenActor, _ := f.seedCitizen(t, "pericles", demos, 1.0)
	visitorActor, _ := f.seedVisitor(t, "tourist", demos)

	// Act: a citizen proposes under democracy; a visitor cannot.
	p, citizenErr := f.svc.ProposePolicy(ctx, citizenActor, politics.ProposeInput{
		Title: "Lower docking fees", Proposal: "Cut station docking fees to 2%.",
	})
	_, visitorErr := f.svc.ProposePolicy(ctx, visitorActor, politics.ProposeInput{
		Title: "Free fuel", Proposal: "Fuel should be free.",
	})

	// Assert
	require.NoError(t, citizenErr)
	assert.Equal(t, governance.PolicyVoting, p.Status)
	assert.Equal(t, clock.Now().Add(politics.DefaultPolicyWindow), p.VotingClosesAt)
	require.Error(t, visitorErr)
	assert.True(t, errors.Is(visitorErr, shared.ErrForbidden))
	assert.Len(t, f.events.byType(shared.EventPolicyProposed), 1)

	// Under autocracy only the governor proposes.
	imperium := f.seedRegion(t, "imperium", region.GovernanceAutocracy)
	subjectActor, _ := f.seedCitizen(t, "subject", imperium, 1.0)
	rulerActor, ruler := f.seedCitizen(t, "ruler", imperium, 1.0)

	_, subjectErr := f.svc.ProposePolicy(ctx, subjectActor, politics.ProposeInput{
		Title: "Council rule", Proposal: "Replace the governor with a council.",
	})
	require.Error(t, subjectErr)
	assert.True(t, errors.Is(subjectErr, shared.ErrForbidden))

	f.appointGovernor(t, imperium, ruler.ID)
	_, rulerErr := f.svc.ProposePolicy(ctx, rulerActor, politics.ProposeInput{
		Title: "Curfew", Proposal: "Port access closes at 22:00.",
	})
	require.NoError(t, rulerErr)
}

func TestService_PolicyVotesAreWeightedAndSingular(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 11, 3, 8, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "demos", region.GovernanceDemocracy)
	proposer, _ := f.seedCitizen(t, "pericles", r, 1.0)
	heavy, _ := f.seedCitizen(t, "magnate", r, 2.0)
	light, _ := f.seedCitizen(t, "clerk", r, 1.0)
	visitor, _ := f.seedVisitor(t, "tourist", r)

	p, err := f.svc.ProposePolicy(ctx, proposer, politics.ProposeInput{
		Title: "Lower docking fees", Proposal: "Cut station docking fees to 2%.",
	})
	require.NoError(t, err)

	// Act
	after, err := f.svc.CastPolicyVote(ctx, heavy, p.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 2.0, after.YesWeight)

	after, err = f.svc.CastPolicyVote(ctx, light, p.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 1.0, after.NoWeight)

	// Assert: one vote per voter; visitors hold no franchise.
	_, err = f.svc.CastPolicyVote(ctx, heavy, p.ID, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))

	_, err = f.svc.CastPolicyVote(ctx, visitor, p.ID, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrForbidden))

	// Retraction frees the voter to recast the other way.
	after, err = f.svc.RetractPolicyVote(ctx, light, p.ID)
	require.NoError(t, err)
	assert.Zero(t, after.NoWeight)
	after, err = f.svc.CastPolicyVote(ctx, light, p.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 3.0, after.YesWeight)
}

func TestService_TallyDecidesAgainstTheRegionThreshold(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 11, 3, 8, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "demos", region.GovernanceDemocracy)
	proposer, _ := f.seedCitizen(t, "pericles", r, 1.0)
	yesBloc, _ := f.seedCitizen(t, "magnate", r, 2.0)
	noBloc, _ := f.seedCitizen(t, "clerk", r, 1.0)

	passing, err := f.svc.ProposePolicy(ctx, proposer, politics.ProposeInput{
		Title: "Lower docking fees", Proposal: "Cut station docking fees to 2%.",
	})
	require.NoError(t, err)
	failing, err := f.svc.ProposePolicy(ctx, proposer, politics.ProposeInput{
		Title: "Raise tariffs", Proposal: "Double the import tariff.",
	})
	require.NoError(t, err)

	_, err = f.svc.CastPolicyVote(ctx, yesBloc, passing.ID, true)
	require.NoError(t, err)
	_, err = f.svc.CastPolicyVote(ctx, noBloc, passing.ID, false)
	require.NoError(t, err)
	_, err = f.svc.CastPolicyVote(ctx, yesBloc, failing.ID, false)
	require.NoError(t, err)
	_, err = f.svc.CastPolicyVote(ctx, noBloc, failing.ID, true)
	require.NoError(t, err)

	// An early poke is refused while the window is open.
	_, err = f.svc.TallyPolicy(ctx, proposer, passing.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))

	// Act
	clock.Advance(politics.DefaultPolicyWindow + time.Minute)
	decided, err := f.svc.TallyDue(ctx, r.Name)

	// Assert: yes 2/3 passes at threshold 0.5, yes 1/3 does not.
	require.NoError(t, err)
	assert.Equal(t, 2, decided)

	got, err := f.svc.PolicyDetail(ctx, proposer, passing.ID)
	require.NoError(t, err)
	assert.Equal(t, governance.PolicyPassed, got.Status)
	got, err = f.svc.PolicyDetail(ctx, proposer, failing.ID)
	require.NoError(t, err)
	assert.Equal(t, governance.PolicyRejected, got.Status)

	passedEvents := f.events.byType(shared.EventPolicyPassed)
	require.Len(t, passedEvents, 1)
	assert.Equal(t, passing.ID.String(), passedEvents[0].Payload["policy_id"])
	assert.True(t, passedEvents[0].Durable())
	assert.Contains(t, passedEvents[0].Scopes, shared.RegionScope(r.Name))

	// The sweep is idempotent.
	decided, err = f.svc.TallyDue(ctx, r.Name)
	require.NoError(t, err)
	assert.Zero(t, decided)
}

func TestService_WithdrawIsTheProposersAlone(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 11, 3, 8, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "demos", region.GovernanceDemocracy)
	proposer, _ := f.seedCitizen(t, "pericles", r, 1.0)
	rival, _ := f.seedCitizen(t, "cleon", r, 1.0)

	p, err := f.svc.ProposePolicy(ctx, proposer, politics.ProposeInput{
		Title: "Lower docking fees", Proposal: "Cut station docking fees to 2%.",
	})
	require.NoError(t, err)

	// Act
	_, rivalErr := f.svc.WithdrawPolicy(ctx, rival, p.ID)
	withdrawn, properErr := f.svc.WithdrawPolicy(ctx, proposer, p.ID)

	// Assert
	require.Error(t, rivalErr)
	assert.True(t, errors.Is(rivalErr, shared.ErrForbidden))
	require.NoError(t, properErr)
	assert.Equal(t, governance.PolicyWithdrawn, withdrawn.Status)

	// A withdrawn policy takes no votes.
	_, err = f.svc.CastPolicyVote(ctx, rival, p.ID, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))
}

func TestService_ElectionSeatsTheGovernor(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 11, 3, 8, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "demos", region.GovernanceDemocracy)

	magistrate, magPersona := f.seedCitizen(t, "magistrate", r, 1.0)
	f.appointGovernor(t, r, magPersona.ID)
	_, a := f.seedCitizen(t, "candidate-a", r, 1.0)
	_, b := f.seedCitizen(t, "candidate-b", r, 1.0)
	voter1, _ := f.seedCitizen(t, "voter-1", r, 1.0)
	voter2, _ := f.seedCitizen(t, "voter-2", r, 2.0)
	voter3, _ := f.seedCitizen(t, "voter-3", r, 1.5)

	e, err := f.svc.ScheduleElection(ctx, magistrate, politics.ScheduleInput{
		Position:   governance.PositionGovernor,
		Candidates: []shared.PlayerID{a.ID, b.ID},
	})
	require.NoError(t, err)
	assert.Len(t, f.events.byType(shared.EventElectionStarted), 1)

	// Act: weighted ballots split 1.0 A, 2.0 B, 1.5 A.
	_, err = f.svc.CastBallot(ctx, voter1, e.ID, a.ID)
	require.NoError(t, err)
	_, err = f.svc.CastBallot(ctx, voter2, e.ID, b.ID)
	require.NoError(t, err)
	_, err = f.svc.CastBallot(ctx, voter3, e.ID, a.ID)
	require.NoError(t, err)

	clock.Advance(politics.DefaultBallotWindow + time.Minute)
	closed, err := f.svc.CloseDue(ctx, r.Name)

	// Assert: A carries 2.5 to B's 2.0 and takes the office.
	require.NoError(t, err)
	assert.Equal(t, 1, closed)

	got, err := f.svc.ElectionDetail(ctx, magistrate, e.ID)
	require.NoError(t, err)
	assert.Equal(t, governance.ElectionClosed, got.Status)
	assert.Equal(t, a.ID, got.WinnerID)
	assert.Equal(t, 2.5, got.Tallies[a.ID])
	assert.Equal(t, 2.0, got.Tallies[b.ID])

	closedEvents := f.events.byType(shared.EventElectionClosed)
	require.Len(t, closedEvents, 1)
	assert.Equal(t, a.ID.String(), closedEvents[0].Payload["winner_id"])
	assert.True(t, closedEvents[0].Durable())

	seated, err := f.regions.FindByName(ctx, r.Name)
	require.NoError(t, err)
	assert.Equal(t, a.ID, seated.GovernorPlayerID)

	// The sweep is idempotent.
	closed, err = f.svc.CloseDue(ctx, r.Name)
	require.NoError(t, err)
	assert.Zero(t, closed)
}

func TestService_BallotsFollowTheSlateAndTheFranchise(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 11, 3, 8, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "demos", region.GovernanceDemocracy)

	magistrate, magPersona := f.seedCitizen(t, "magistrate", r, 1.0)
	f.appointGovernor(t, r, magPersona.ID)
	_, a := f.seedCitizen(t, "candidate-a", r, 1.0)
	_, b := f.seedCitizen(t, "candidate-b", r, 1.0)
	voter, _ := f.seedCitizen(t, "voter", r, 2.0)
	visitor, outsider := f.seedVisitor(t, "tourist", r)

	e, err := f.svc.ScheduleElection(ctx, magistrate, politics.ScheduleInput{
		Position:   governance.PositionGovernor,
		Candidates: []shared.PlayerID{a.ID, b.ID},
	})
	require.NoError(t, err)

	// Off-slate candidates and visitors are refused.
	_, err = f.svc.CastBallot(ctx, voter, e.ID, outsider.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))
	_, err = f.svc.CastBallot(ctx, visitor, e.ID, a.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrForbidden))

	// Act: cast, double-cast, retract, recast.
	after, err := f.svc.CastBallot(ctx, voter, e.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2.0, after.Tallies[a.ID])

	_, err = f.svc.CastBallot(ctx, voter, e.ID, b.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))

	after, err = f.svc.RetractBallot(ctx, voter, e.ID)
	require.NoError(t, err)
	assert.Zero(t, after.Tallies[a.ID])

	after, err = f.svc.CastBallot(ctx, voter, e.ID, b.ID)
	require.NoError(t, err)

	// Assert
	assert.Equal(t, 2.0, after.Tallies[b.ID])
	assert.Zero(t, after.Tallies[a.ID])
}

func TestService_DeadTiesSeatNobody(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 11, 3, 8, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "demos", region.GovernanceDemocracy)

	magistrate, magPersona := f.seedCitizen(t, "magistrate", r, 1.0)
	f.appointGovernor(t, r, magPersona.ID)
	_, a := f.seedCitizen(t, "candidate-a", r, 1.0)
	_, b := f.seedCitizen(t, "candidate-b", r, 1.0)
	voter1, _ := f.seedCitizen(t, "voter-1", r, 2.0)
	voter2, _ := f.seedCitizen(t, "voter-2", r, 2.0)

	e, err := f.svc.ScheduleElection(ctx, magistrate, politics.ScheduleInput{
		Position:   governance.PositionGovernor,
		Candidates: []shared.PlayerID{a.ID, b.ID},
	})
	require.NoError(t, err)
	_, err = f.svc.CastBallot(ctx, voter1, e.ID, a.ID)
	require.NoError(t, err)
	_, err = f.svc.CastBallot(ctx, voter2, e.ID, b.ID)
	require.NoError(t, err)

	// Act
	clock.Advance(politics.DefaultBallotWindow + time.Minute)
	_, err = f.svc.CloseDue(ctx, r.Name)
	require.NoError(t, err)

	// Assert: the tie closes with no winner and the incumbent stays.
	got, err := f.svc.ElectionDetail(ctx, magistrate, e.ID)
	require.NoError(t, err)
	assert.Equal(t, governance.ElectionClosed, got.Status)
	assert.True(t, got.WinnerID.IsZero())

	seated, err := f.regions.FindByName(ctx, r.Name)
	require.NoError(t, err)
	assert.Equal(t, magPersona.ID, seated.GovernorPlayerID)
}

func TestService_SchedulingNeedsAuthorityAndCitizenCandidates(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 11, 3, 8, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	r := f.seedRegion(t, "demos", region.GovernanceDemocracy)

	magistrate, magPersona := f.seedCitizen(t, "magistrate", r, 1.0)
	commoner, _ := f.seedCitizen(t, "commoner", r, 1.0)
	_, a := f.seedCitizen(t, "candidate-a", r, 1.0)
	_, tourist := f.seedVisitor(t, "tourist", r)

	// A plain citizen cannot schedule.
	_, err := f.svc.ScheduleElection(ctx, commoner, politics.ScheduleInput{
		Position:   governance.PositionCouncilMember,
		Candidates: []shared.PlayerID{a.ID, tourist.ID},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrForbidden))

	f.appointGovernor(t, r, magPersona.ID)

	// Act: the governor can, but not with a non-citizen on the slate.
	_, err = f.svc.ScheduleElection(ctx, magistrate, politics.ScheduleInput{
		Position:   governance.PositionCouncilMember,
		Candidates: []shared.PlayerID{a.ID, tourist.ID},
	})

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))
}
