package steps

import (
	"context"
	"errors"
	"fmt"

	"github.com/cucumber/godog"

	"github.com/sectorwars/gameserver/internal/application/trade"
	"github.com/sectorwars/gameserver/internal/domain/player"
	"github.com/sectorwars/gameserver/internal/domain/region"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/domain/ship"
	"github.com/sectorwars/gameserver/internal/domain/station"
)

type tradingContext struct {
	pilot   *player.Player
	vessel  *ship.Ship
	depot   *station.Station
	receipt *trade.Receipt
	err     error
}

func (c *tradingContext) reset() {
	c.pilot = nil
	c.vessel = nil
	c.depot = nil
	c.receipt = nil
	c.err = nil
}

func hullForName(name string) (ship.HullClass, error) {
	switch name {
	case "cargo hauler":
		return ship.HullCargoHauler, nil
	case "courier":
		return ship.HullCourier, nil
	case "scout":
		return ship.HullScout, nil
	default:
		return "", fmt.Errorf("unknown hull %q", name)
	}
}

func (c *tradingContext) aPilotWithCreditsBoardedOn(credits int, hullName string, sector int) error {
	hull, err := hullForName(hullName)
	if err != nil {
		return err
	}
	res, err := current.register("trader")
	if err != nil {
		return err
	}
	c.pilot = res.Player
	if err := current.setCredits(c.pilot, shared.Credits(credits)); err != nil {
		return err
	}
	c.vessel, err = current.seedShip(c.pilot, region.NexusName, sector, hull)
	return err
}

// aStationSellingFuelAt seeds an outpost whose fuel slot sits at half
// stock, so the supply factor is exactly 1 and the posted unit price
// equals the base price.
func (c *tradingContext) aStationSellingFuelAt(sector int, unitPrice int) error {
	r, err := current.regions.FindByName(current.ctx, region.NexusName)
	if err != nil {
		return err
	}
	gw, err := current.gateway(region.NexusName)
	if err != nil {
		return err
	}
	now := current.clock.Now()
	st, err := station.New(r.ID, sector, "Nexus Fuel Depot", 0, 1000, now)
	if err != nil {
		return err
	}
	st.Inventory[shared.CommodityFuel].BasePrice = int64(unitPrice)
	if err := gw.Stations.Create(current.ctx, st); err != nil {
		return err
	}
	c.depot = st
	return nil
}

func (c *tradingContext) thePilotBuysUnitsOfFuel(qty int) error {
	c.receipt, c.err = current.trade.Buy(current.ctx, current.actorFor(c.pilot), c.depot.ID, shared.CommodityFuel, qty)
	return nil
}

func (c *tradingContext) thePurchaseSucceedsAtUnitPrice(unitPrice int) error {
	if c.err != nil {
		return fmt.Errorf("purchase failed: %v", c.err)
	}
	if c.receipt.UnitPrice != int64(unitPrice) {
		return fmt.Errorf("expected unit price %d, got %d", unitPrice, c.receipt.UnitPrice)
	}
	return nil
}

func (c *tradingContext) thePurchaseIsRefusedAsInvalid() error {
	if c.err == nil {
		return fmt.Errorf("expected the purchase to be refused")
	}
	if !errors.Is(c.err, shared.ErrValidation) {
		return fmt.Errorf("expected a validation refusal, got %v", c.err)
	}
	return nil
}

func (c *tradingContext) thePilotsBalanceIs(balance int) error {
	fresh, err := current.players.FindByID(current.ctx, c.pilot.ID)
	if err != nil {
		return err
	}
	if int(fresh.Credits) != balance {
		return fmt.Errorf("expected balance %d, got %d", balance, fresh.Credits)
	}
	return nil
}

func (c *tradingContext) theShipsHoldCarriesUnitsOfFuel(units int) error {
	gw, err := current.gateway(region.NexusName)
	if err != nil {
		return err
	}
	fresh, err := gw.Ships.FindByID(current.ctx, c.vessel.RegionID, c.vessel.ID)
	if err != nil {
		return err
	}
	if got := fresh.Cargo.Quantity(shared.CommodityFuel); got != units {
		return fmt.Errorf("expected %d units of fuel aboard, got %d", units, got)
	}
	return nil
}

func (c *tradingContext) theShipsHoldIsStillEmpty() error {
	gw, err := current.gateway(region.NexusName)
	if err != nil {
		return err
	}
	fresh, err := gw.Ships.FindByID(current.ctx, c.vessel.RegionID, c.vessel.ID)
	if err != nil {
		return err
	}
	if used := fresh.Cargo.Used(); used != 0 {
		return fmt.Errorf("expected an empty hold, found %d units", used)
	}
	return nil
}

// InitializeTradingScenario registers the station commerce steps.
func InitializeTradingScenario(sc *godog.ScenarioContext) {
	c := &tradingContext{}

	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		c.reset()
		return ctx, nil
	})

	sc.Step(`^a pilot with (\d+) credits boarded on a ([a-z ]+) in sector (\d+) of the hub$`, c.aPilotWithCreditsBoardedOn)
	sc.Step(`^a station in sector (\d+) selling fuel at unit price (\d+)$`, c.aStationSellingFuelAt)
	sc.Step(`^the pilot buys (\d+) units of fuel$`, c.thePilotBuysUnitsOfFuel)
	sc.Step(`^the purchase succeeds at unit price (\d+)$`, c.thePurchaseSucceedsAtUnitPrice)
	sc.Step(`^the purchase is refused as invalid$`, c.thePurchaseIsRefusedAsInvalid)
	sc.Step(`^the pilot's balance is (\d+) credits$`, c.thePilotsBalanceIs)
	sc.Step(`^the pilot's balance is still (\d+) credits$`, c.thePilotsBalanceIs)
	sc.Step(`^the ship's hold carries (\d+) units of fuel$`, c.theShipsHoldCarriesUnitsOfFuel)
	sc.Step(`^the ship's hold is still empty$`, c.theShipsHoldIsStillEmpty)
}
