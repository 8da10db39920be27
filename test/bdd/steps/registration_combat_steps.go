package steps

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"

	"github.com/sectorwars/gameserver/internal/domain/account"
	"github.com/sectorwars/gameserver/internal/domain/combat"
	"github.com/sectorwars/gameserver/internal/domain/player"
	"github.com/sectorwars/gameserver/internal/domain/region"
	"github.com/sectorwars/gameserver/internal/domain/ship"
)

type registrationCombatContext struct {
	account *account.Account
	persona *player.Player

	attacker *player.Player
	defender *player.Player
	rival    *ship.Ship

	combat     *combat.Combat
	roundSizes []int
}

func (c *registrationCombatContext) reset() {
	c.account = nil
	c.persona = nil
	c.attacker = nil
	c.defender = nil
	c.rival = nil
	c.combat = nil
	c.roundSizes = nil
}

func (c *registrationCombatContext) registers(handle, email, credential string) error {
	res, err := current.auth.Register(current.ctx, registerInput(handle, email, credential))
	if err != nil {
		return err
	}
	c.account = res.Account
	c.persona = res.Player
	return nil
}

func (c *registrationCombatContext) theAccountHoldsThePlayerRole() error {
	if c.account == nil {
		return fmt.Errorf("no account was registered")
	}
	if c.account.Role != account.RolePlayer {
		return fmt.Errorf("expected role %q, got %q", account.RolePlayer, c.account.Role)
	}
	return nil
}

func (c *registrationCombatContext) thePersonaLivesInTheHubWithCredits(credits int) error {
	if c.persona == nil {
		return fmt.Errorf("no persona was created")
	}
	if c.persona.CurrentRegion != region.NexusName {
		return fmt.Errorf("expected persona in %q, got %q", region.NexusName, c.persona.CurrentRegion)
	}
	if int(c.persona.Credits) != credits {
		return fmt.Errorf("expected %d credits, got %d", credits, c.persona.Credits)
	}
	return nil
}

func (c *registrationCombatContext) aRegisteredPilotBoardedOnAScout(handle string, sector int) error {
	res, err := current.register(handle)
	if err != nil {
		return err
	}
	c.attacker = res.Player
	_, err = current.seedShip(c.attacker, region.NexusName, sector, ship.HullScout)
	return err
}

func (c *registrationCombatContext) aRivalPilotInTheSameSector(handle string) error {
	res, err := current.register(handle)
	if err != nil {
		return err
	}
	c.defender = res.Player
	c.rival, err = current.seedShip(c.defender, region.NexusName, c.attacker.CurrentSector, ship.HullScout)
	return err
}

func (c *registrationCombatContext) engagesTheRivalsShip(string) error {
	cb, err := current.engagement.Engage(current.ctx, current.actorFor(c.attacker), c.rival.ID)
	if err != nil {
		return err
	}
	c.combat = cb
	c.roundSizes = []int{len(cb.Rounds)}
	return nil
}

// bothSidesTradeBlows drives the engagement round by round. Both sides
// order every round, so each pair of commands resolves immediately; the
// round cap forces a draw if neither hull gives out first.
func (c *registrationCombatContext) bothSidesTradeBlows() error {
	attackerActor := current.actorFor(c.attacker)
	defenderActor := current.actorFor(c.defender)
	for i := 0; i < combat.DefaultRoundCap+2; i++ {
		if c.combat.Status.Terminal() {
			return nil
		}
		if _, err := current.engagement.SubmitCommand(current.ctx, attackerActor, c.combat.ID, combat.Command{
			TargetShipID: c.combat.Defender.ShipID,
			WeaponMix:    0.5,
		}); err != nil {
			return err
		}
		resolved, err := current.engagement.SubmitCommand(current.ctx, defenderActor, c.combat.ID, combat.Command{
			TargetShipID: c.combat.Attacker.ShipID,
			WeaponMix:    0.5,
		})
		if err != nil {
			return err
		}
		c.combat = resolved
		c.roundSizes = append(c.roundSizes, len(resolved.Rounds))
	}
	return nil
}

func (c *registrationCombatContext) theEngagementIsTerminal() error {
	status, err := current.engagement.Status(current.ctx, current.actorFor(c.attacker), c.combat.ID)
	if err != nil {
		return err
	}
	if !status.Status.Terminal() {
		return fmt.Errorf("engagement still %q after %d rounds", status.Status, len(status.Rounds))
	}
	c.combat = status
	return nil
}

func (c *registrationCombatContext) theRoundLogGrewMonotonically() error {
	if len(c.roundSizes) < 2 {
		return fmt.Errorf("no rounds were resolved")
	}
	for i := 1; i < len(c.roundSizes); i++ {
		if c.roundSizes[i] != c.roundSizes[i-1]+1 {
			return fmt.Errorf("round log jumped from %d to %d entries", c.roundSizes[i-1], c.roundSizes[i])
		}
	}
	return nil
}

// InitializeRegistrationCombatScenario registers the registration and
// engagement steps.
func InitializeRegistrationCombatScenario(sc *godog.ScenarioContext) {
	c := &registrationCombatContext{}

	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		c.reset()
		return ctx, nil
	})

	sc.Step(`^"([^"]*)" registers with email "([^"]*)" and credential "([^"]*)"$`, c.registers)
	sc.Step(`^the account holds the player role$`, c.theAccountHoldsThePlayerRole)
	sc.Step(`^the persona lives in the hub region with (\d+) credits$`, c.thePersonaLivesInTheHubWithCredits)
	sc.Step(`^a registered pilot "([^"]*)" boarded on a scout in sector (\d+) of the hub$`, c.aRegisteredPilotBoardedOnAScout)
	sc.Step(`^a rival pilot "([^"]*)" boarded on a scout in the same sector$`, c.aRivalPilotInTheSameSector)
	sc.Step(`^"([^"]*)" engages the rival's ship$`, c.engagesTheRivalsShip)
	sc.Step(`^both sides trade blows until the engagement settles$`, c.bothSidesTradeBlows)
	sc.Step(`^the engagement reports a terminal status$`, c.theEngagementIsTerminal)
	sc.Step(`^the round log grew by exactly one entry per resolved round$`, c.theRoundLogGrewMonotonically)
}
