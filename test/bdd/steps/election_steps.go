package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/cucumber/godog"

	"github.com/sectorwars/gameserver/internal/application/common"
	"github.com/sectorwars/gameserver/internal/application/politics"
	"github.com/sectorwars/gameserver/internal/domain/account"
	"github.com/sectorwars/gameserver/internal/domain/governance"
	"github.com/sectorwars/gameserver/internal/domain/player"
	"github.com/sectorwars/gameserver/internal/domain/region"
	"github.com/sectorwars/gameserver/internal/domain/shared"
)

type electionContext struct {
	region   *region.Region
	citizens map[string]*player.Player
	election *governance.Election
}

func (c *electionContext) reset() {
	c.region = nil
	c.citizens = make(map[string]*player.Player)
	c.election = nil
}

func (c *electionContext) anActiveDemocracyRegion(name string) error {
	owner, err := current.register(name + "-owner")
	if err != nil {
		return err
	}
	if _, err := current.provisionRegion(name, owner.Account.ID); err != nil {
		return err
	}
	r, err := current.federation.SetGovernance(current.ctx, name, current.adminActor(), region.GovernanceDemocracy, 0.10, 0.5, 90)
	if err != nil {
		return err
	}
	c.region = r
	return nil
}

func (c *electionContext) aCitizenWithVotingWeight(handle, regionName string, weight float64) error {
	res, err := current.register(handle)
	if err != nil {
		return err
	}
	if err := current.settleIn(res.Player, c.region, weight); err != nil {
		return err
	}
	c.citizens[handle] = res.Player
	return nil
}

// anElectionForGovernor schedules the race through an administrator
// acting in the region.
func (c *electionContext) anElectionForGovernor(a, b string, hours int) error {
	scheduler := common.Actor{
		AccountID: shared.NewAccountID(),
		PlayerID:  c.citizens[a].ID,
		Role:      account.RoleAdministrator,
	}
	e, err := current.politics.ScheduleElection(current.ctx, scheduler, politics.ScheduleInput{
		Position:   governance.PositionGovernor,
		Candidates: []shared.PlayerID{c.citizens[a].ID, c.citizens[b].ID},
		ClosesAt:   current.clock.Now().Add(time.Duration(hours) * time.Hour),
	})
	if err != nil {
		return err
	}
	c.election = e
	return nil
}

func (c *electionContext) votesFor(voter, candidate string) error {
	_, err := current.politics.CastBallot(current.ctx, current.actorFor(c.citizens[voter]), c.election.ID, c.citizens[candidate].ID)
	return err
}

func (c *electionContext) theVotingWindowElapses() error {
	current.clock.Advance(2 * time.Hour)
	closed, err := current.politics.CloseDue(current.ctx, c.region.Name)
	if err != nil {
		return err
	}
	if closed == 0 {
		return fmt.Errorf("no due elections were closed")
	}
	return nil
}

func (c *electionContext) theElectionSettlesWithWinner(handle string) error {
	e, err := current.politics.ElectionDetail(current.ctx, current.actorFor(c.citizens[handle]), c.election.ID)
	if err != nil {
		return err
	}
	if e.WinnerID != c.citizens[handle].ID {
		return fmt.Errorf("expected winner %s, got %s", c.citizens[handle].ID, e.WinnerID)
	}
	c.election = e
	return nil
}

func (c *electionContext) aDurableClosureEventNames(handle string) error {
	rows, err := current.replay(shared.RegionScope(c.region.Name))
	if err != nil {
		return err
	}
	for _, row := range rows {
		if row.Type != shared.EventElectionClosed {
			continue
		}
		if winner, _ := row.Payload["winner_id"].(string); winner == string(c.citizens[handle].ID) {
			return nil
		}
	}
	return fmt.Errorf("no election closure naming %q in the %s scope", handle, shared.RegionScope(c.region.Name))
}

func (c *electionContext) theGovernorIs(regionName, handle string) error {
	r, err := current.regions.FindByName(current.ctx, regionName)
	if err != nil {
		return err
	}
	if r.GovernorPlayerID != c.citizens[handle].ID {
		return fmt.Errorf("expected governor %s, got %s", c.citizens[handle].ID, r.GovernorPlayerID)
	}
	return nil
}

// InitializeElectionScenario registers the regional election steps.
func InitializeElectionScenario(sc *godog.ScenarioContext) {
	c := &electionContext{}

	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		c.reset()
		return ctx, nil
	})

	sc.Step(`^an active democracy region "([^"]*)"$`, c.anActiveDemocracyRegion)
	sc.Step(`^a citizen "([^"]*)" of "([^"]*)" with voting weight (\d+\.\d+)$`, c.aCitizenWithVotingWeight)
	sc.Step(`^an election for governor between "([^"]*)" and "([^"]*)" closing in (\d+) hour$`, c.anElectionForGovernor)
	sc.Step(`^"([^"]*)" votes for "([^"]*)"$`, c.votesFor)
	sc.Step(`^the voting window elapses and due elections are closed$`, c.theVotingWindowElapses)
	sc.Step(`^the election settles with winner "([^"]*)"$`, c.theElectionSettlesWithWinner)
	sc.Step(`^a durable election closure event names "([^"]*)" in the region scope$`, c.aDurableClosureEventNames)
	sc.Step(`^the governor of "([^"]*)" is "([^"]*)"$`, c.theGovernorIs)
}
