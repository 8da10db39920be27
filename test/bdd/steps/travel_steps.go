package steps

import (
	"context"
	"errors"
	"fmt"

	"github.com/cucumber/godog"

	"github.com/sectorwars/gameserver/internal/application/federation"
	"github.com/sectorwars/gameserver/internal/domain/player"
	"github.com/sectorwars/gameserver/internal/domain/region"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/domain/ship"
	"github.com/sectorwars/gameserver/internal/domain/travel"
)

type travelContext struct {
	source *region.Region
	dest   *region.Region
	pilot  *player.Player
	vessel *ship.Ship
	record *travel.Travel
}

func (c *travelContext) reset() {
	c.source = nil
	c.dest = nil
	c.pilot = nil
	c.vessel = nil
	c.record = nil
}

func (c *travelContext) activeRegions(srcName, destName string) error {
	owner, err := current.register("gatewright")
	if err != nil {
		return err
	}
	if c.source, err = current.provisionRegion(srcName, owner.Account.ID); err != nil {
		return err
	}
	c.dest, err = current.provisionRegion(destName, owner.Account.ID)
	return err
}

func (c *travelContext) aPilotWithCreditsAndAShipIn(credits int, regionName string) error {
	res, err := current.register("voyager")
	if err != nil {
		return err
	}
	c.pilot = res.Player
	if err := current.settleIn(c.pilot, c.source, 1.0); err != nil {
		return err
	}
	if err := current.setCredits(c.pilot, shared.Credits(credits)); err != nil {
		return err
	}
	c.vessel, err = current.seedShip(c.pilot, regionName, c.pilot.CurrentSector, ship.HullScout)
	return err
}

func (c *travelContext) thePilotTravelsToByPlatformGate(destName string) error {
	t, err := current.federation.InitiateTravel(current.ctx, current.actorFor(c.pilot), federation.TravelInput{
		Destination: destName,
		Method:      travel.MethodPlatformGate,
		ShipIDs:     []shared.ShipID{c.vessel.ID},
	})
	if err != nil {
		return err
	}
	c.record = t
	return nil
}

func (c *travelContext) theTransferRecordReportsCompleted() error {
	if c.record.Status != travel.StatusCompleted {
		return fmt.Errorf("expected status %q, got %q", travel.StatusCompleted, c.record.Status)
	}
	return nil
}

func (c *travelContext) thePilotIsInWithCredits(regionName string, credits int) error {
	fresh, err := current.players.FindByID(current.ctx, c.pilot.ID)
	if err != nil {
		return err
	}
	if fresh.CurrentRegion != regionName {
		return fmt.Errorf("expected the pilot in %q, got %q", regionName, fresh.CurrentRegion)
	}
	if int(fresh.Credits) != credits {
		return fmt.Errorf("expected %d credits, got %d", credits, fresh.Credits)
	}
	return nil
}

func (c *travelContext) theShipSitsOnlyInTheDestinationShard() error {
	destGW, err := current.gateway(c.dest.Name)
	if err != nil {
		return err
	}
	if _, err := destGW.Ships.FindByID(current.ctx, c.dest.ID, c.vessel.ID); err != nil {
		return fmt.Errorf("ship missing from the destination shard: %w", err)
	}
	srcGW, err := current.gateway(c.source.Name)
	if err != nil {
		return err
	}
	if _, err := srcGW.Ships.FindByID(current.ctx, c.source.ID, c.vessel.ID); !errors.Is(err, shared.ErrNotFound) {
		return fmt.Errorf("expected the ship gone from the source shard, lookup returned %v", err)
	}
	return nil
}

func (c *travelContext) aDurableCompletionEventInBothRegionScopes() error {
	for _, name := range []string{c.source.Name, c.dest.Name} {
		rows, err := current.replay(shared.RegionScope(name))
		if err != nil {
			return err
		}
		found := false
		for _, row := range rows {
			if row.Type != shared.EventTravelCompleted {
				continue
			}
			if id, _ := row.Payload["travel_id"].(string); id == string(c.record.ID) {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("no travel completion for %s in the %s scope", c.record.ID, shared.RegionScope(name))
		}
	}
	return nil
}

// InitializeTravelScenario registers the inter-region transfer steps.
func InitializeTravelScenario(sc *godog.ScenarioContext) {
	c := &travelContext{}

	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		c.reset()
		return ctx, nil
	})

	sc.Step(`^active regions "([^"]*)" and "([^"]*)"$`, c.activeRegions)
	sc.Step(`^a pilot with (\d+) credits and a ship in "([^"]*)"$`, c.aPilotWithCreditsAndAShipIn)
	sc.Step(`^the pilot travels to "([^"]*)" by platform gate$`, c.thePilotTravelsToByPlatformGate)
	sc.Step(`^the transfer record reports completed$`, c.theTransferRecordReportsCompleted)
	sc.Step(`^the pilot is in "([^"]*)" with (\d+) credits$`, c.thePilotIsInWithCredits)
	sc.Step(`^the ship sits in the destination shard and not in the source shard$`, c.theShipSitsOnlyInTheDestinationShard)
	sc.Step(`^a durable travel completion event is readable in both region scopes$`, c.aDurableCompletionEventInBothRegionScopes)
}
