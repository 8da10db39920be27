package combat

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// Resolution is deterministic: every random draw is derived by hashing the
// combat id, the round index, the ship id and the draw's purpose. Replaying
// a combat from the same snapshots reproduces the identical round log on
// any node, which is what lets regional shards resolve combat locally
// without coordination. The formula below is frozen; tests pin its output.

// roll returns a deterministic value in [0, 1).
func roll(combatID shared.CombatID, round int, shipID shared.ShipID, purpose string) float64 {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%s:%s", combatID, round, shipID, purpose)))
	v := binary.BigEndian.Uint64(sum[:8])
	return float64(v) / float64(^uint64(0))
}

// Initiative scores a side for one round: the hull base scaled by
// condition, plus a rolled factor seeded from the combat and round.
func Initiative(combatID shared.CombatID, round int, c Combatant) float64 {
	base := c.InitiativeBase * (0.5 + 0.5*c.Condition)
	return base + 2.0*roll(combatID, round, c.ShipID, "initiative")
}

// volley is one side's damage output for a round, split between the
// target's shield and hull by the striker's weapon mix. Surviving drones
// add 5% each to output.
func volley(combatID shared.CombatID, round int, striker Combatant, survivingDrones int, mix float64) (shieldDmg int, hullDmg float64) {
	if mix < 0 {
		mix = 0
	}
	if mix > 1 {
		mix = 1
	}
	output := float64(striker.CombatRating) * (0.6 + 0.4*striker.Condition) * (1.0 + 0.05*float64(survivingDrones))
	variance := 0.8 + 0.4*roll(combatID, round, striker.ShipID, "damage")
	output *= variance
	shieldDmg = int(output * mix)
	hullDmg = output * (1 - mix) / 500.0
	return shieldDmg, hullDmg
}

// applyDamage soaks a volley: the shield absorbs energy damage first, then
// overflow and kinetic damage reach the hull.
func applyDamage(shield int, condition float64, shieldDmg int, hullDmg float64) (int, float64) {
	shield -= shieldDmg
	if shield < 0 {
		// Overflow past the shield converts back to hull damage at the
		// same 500:1 scale as kinetic output.
		hullDmg += float64(-shield) / 500.0
		shield = 0
	}
	condition -= hullDmg
	if condition < 0 {
		condition = 0
	}
	return shield, condition
}

// clashDrones resolves the two committed drone pools against each other
// before any ship takes fire. Each pool downs a rolled fraction of the
// other; kills land simultaneously.
func clashDrones(combatID shared.CombatID, round int, atk, def Combatant, atkCommit, defCommit int) (atkKills, defKills int) {
	if atkCommit > atk.Drones {
		atkCommit = atk.Drones
	}
	if defCommit > def.Drones {
		defCommit = def.Drones
	}
	if atkCommit > 0 && defCommit > 0 {
		atkRate := 0.2 + 0.3*roll(combatID, round, atk.ShipID, "drone-clash")
		defRate := 0.2 + 0.3*roll(combatID, round, def.ShipID, "drone-clash")
		atkKills = int(float64(atkCommit)*atkRate) + 1
		defKills = int(float64(defCommit)*defRate) + 1
		if atkKills > defCommit {
			atkKills = defCommit
		}
		if defKills > atkCommit {
			defKills = atkCommit
		}
	}
	return atkKills, defKills
}

// retreatIncrement is the per-round progress a fleeing side accumulates,
// scaled by its initiative base so nimble hulls disengage sooner.
func retreatIncrement(combatID shared.CombatID, round int, c Combatant) float64 {
	return c.InitiativeBase*0.5 + 3.0*roll(combatID, round, c.ShipID, "retreat")
}

// ResolveRound computes the next round of an engagement without mutating
// it. Commands default to each side's fallback when nil (deadline missed).
func ResolveRound(c *Combat, atkCmd, defCmd *Command, now time.Time) (Round, error) {
	if !c.Active() {
		return Round{}, shared.NewConflictError("combat is already resolved")
	}
	idx := c.NextRoundIndex()
	atk, def := c.Attacker, c.Defender

	aCmd := FallbackCommand(atk.LastCommand)
	if atkCmd != nil {
		aCmd = *atkCmd
	}
	dCmd := FallbackCommand(def.LastCommand)
	if defCmd != nil {
		dCmd = *defCmd
	}

	r := Round{
		Index:              idx,
		AttackerCommand:    aCmd,
		DefenderCommand:    dCmd,
		AttackerInitiative: Initiative(c.ID, idx, atk),
		DefenderInitiative: Initiative(c.ID, idx, def),
		ResolvedAt:         now,
	}
	r.AttackerStruckFirst = c.AttackerStrikesFirst(r.AttackerInitiative, r.DefenderInitiative)

	// A retreat attempt accumulates score; escape succeeds the moment the
	// accumulated score exceeds the pursuer's initiative this round. A
	// fleeing side forfeits its volley either way.
	if aCmd.Retreat {
		r.RetreatBy = SideAttacker
		r.RetreatScore = atk.RetreatScore + retreatIncrement(c.ID, idx, atk)
		if r.RetreatScore > r.DefenderInitiative {
			r.RetreatSucceeded = true
		}
	} else if dCmd.Retreat {
		r.RetreatBy = SideDefender
		r.RetreatScore = def.RetreatScore + retreatIncrement(c.ID, idx, def)
		if r.RetreatScore > r.AttackerInitiative {
			r.RetreatSucceeded = true
		}
	}
	if r.RetreatSucceeded {
		r.AttackerCondition = atk.Condition
		r.DefenderCondition = def.Condition
		r.AttackerShield = atk.Shield
		r.DefenderShield = def.Shield
		return r, nil
	}

	// Drone pools clash before any ship takes fire.
	r.AttackerDroneKills, r.DefenderDroneKills = clashDrones(c.ID, idx, atk, def, aCmd.CommitDrones, dCmd.CommitDrones)
	atkDronesLeft := atk.Drones - r.DefenderDroneKills
	defDronesLeft := def.Drones - r.AttackerDroneKills

	atkShield, atkCond := atk.Shield, atk.Condition
	defShield, defCond := def.Shield, def.Condition

	fireAtDefender := func() {
		sd, hd := volley(c.ID, idx, atk, atkDronesLeft, aCmd.WeaponMix)
		r.ShieldDamageToDef, r.HullDamageToDef = sd, hd
		defShield, defCond = applyDamage(defShield, defCond, sd, hd)
	}
	fireAtAttacker := func() {
		sd, hd := volley(c.ID, idx, def, defDronesLeft, dCmd.WeaponMix)
		r.ShieldDamageToAtk, r.HullDamageToAtk = sd, hd
		atkShield, atkCond = applyDamage(atkShield, atkCond, sd, hd)
	}

	// Damage lands in initiative order; a destroyed or fleeing side does
	// not return fire.
	if r.AttackerStruckFirst {
		if !aCmd.Retreat {
			fireAtDefender()
		}
		if defCond > 0 && !dCmd.Retreat {
			fireAtAttacker()
		}
	} else {
		if !dCmd.Retreat {
			fireAtAttacker()
		}
		if atkCond > 0 && !aCmd.Retreat {
			fireAtDefender()
		}
	}

	r.AttackerCondition = atkCond
	r.DefenderCondition = defCond
	r.AttackerShield = atkShield
	r.DefenderShield = defShield
	return r, nil
}
