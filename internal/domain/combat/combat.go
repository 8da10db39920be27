package combat

import (
	"time"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// Status is the engagement lifecycle: engaging (sides locked, first round
// pending) → resolving (rounds underway) → one terminal outcome.
type Status string

const (
	StatusEngaging  Status = "engaging"
	StatusResolving Status = "resolving"
	// Terminal outcomes, named from the attacker's side: victory means the
	// defender's hull reached zero, defeat the attacker's, retreat that
	// either side escaped, draw that the round cap ran out.
	StatusVictory Status = "victory"
	StatusDefeat  Status = "defeat"
	StatusDraw    Status = "draw"
	StatusRetreat Status = "retreat"
)

// Terminal reports whether a status ends the engagement.
func (s Status) Terminal() bool {
	switch s {
	case StatusVictory, StatusDefeat, StatusDraw, StatusRetreat:
		return true
	}
	return false
}

// DefaultRoundCap bounds an engagement unless the instance overrides it.
const DefaultRoundCap = 20

// DefaultRoundDeadline is how long a side has to submit its round command
// before the fallback applies.
const DefaultRoundDeadline = 5 * time.Second

// Side names one of the two combat positions.
type Side string

const (
	SideAttacker Side = "attacker"
	SideDefender Side = "defender"
)

// Command is one side's order vector for a round. A side that misses the
// round deadline fights with FallbackCommand of its previous order.
type Command struct {
	TargetShipID shared.ShipID `json:"target_ship_id"`
	WeaponMix    float64       `json:"weapon_mix"` // 0 = all kinetic (hull), 1 = all energy (shield)
	CommitDrones int           `json:"commit_drones"`
	Retreat      bool          `json:"retreat"`
}

// FallbackCommand derives the order used when a side stays silent past the
// deadline: repeat the prior round, never begin a retreat unbidden.
func FallbackCommand(prior Command) Command {
	prior.Retreat = false
	return prior
}

// Combatant is the snapshot of one side. Base stats are frozen at
// engagement; condition, shield and drones mutate as rounds resolve.
type Combatant struct {
	ShipID         shared.ShipID
	PlayerID       shared.PlayerID
	HullClass      string
	InitiativeBase float64
	CombatRating   int
	ShieldRating   int
	Condition      float64
	Shield         int
	Drones         int
	RetreatScore   float64 // accumulates across retreat attempts
	JoinedAt       time.Time
	LastCommand    Command
}

// Alive reports whether the side can still fight.
func (c *Combatant) Alive() bool { return c.Condition > 0 }

// Round is one resolved exchange.
type Round struct {
	Index               int       `json:"index"`
	AttackerCommand     Command   `json:"attacker_command"`
	DefenderCommand     Command   `json:"defender_command"`
	AttackerInitiative  float64   `json:"attacker_initiative"`
	DefenderInitiative  float64   `json:"defender_initiative"`
	AttackerStruckFirst bool      `json:"attacker_struck_first"`
	AttackerDroneKills  int       `json:"attacker_drone_kills"` // enemy drones downed by attacker's pool
	DefenderDroneKills  int       `json:"defender_drone_kills"`
	ShieldDamageToAtk   int       `json:"shield_damage_to_attacker"`
	ShieldDamageToDef   int       `json:"shield_damage_to_defender"`
	HullDamageToAtk     float64   `json:"hull_damage_to_attacker"`
	HullDamageToDef     float64   `json:"hull_damage_to_defender"`
	AttackerCondition   float64   `json:"attacker_condition"`
	DefenderCondition   float64   `json:"defender_condition"`
	AttackerShield      int       `json:"attacker_shield"`
	DefenderShield      int       `json:"defender_shield"`
	RetreatBy           Side      `json:"retreat_by,omitempty"`
	RetreatScore        float64   `json:"retreat_score,omitempty"`
	RetreatSucceeded    bool      `json:"retreat_succeeded,omitempty"`
	ResolvedAt          time.Time `json:"resolved_at"`
}

// Combat is a ship-versus-ship engagement in one sector. Once the status is
// terminal the round log is immutable.
//
// Pending commands are the orders submitted for the round about to resolve.
// The round resolves the moment both are in, or at RoundDueAt with fallbacks
// for the silent side.
type Combat struct {
	ID              shared.CombatID
	RegionID        shared.RegionID
	Sector          int
	Attacker        Combatant
	Defender        Combatant
	Status          Status
	RoundCap        int
	RoundDeadline   time.Duration
	RoundDueAt      time.Time
	PendingAttacker *Command
	PendingDefender *Command
	EscapedBy       Side // set when Status is retreat
	Rounds          []Round
	CreatedAt       time.Time
	ResolvedAt      *time.Time
	UpdatedAt       time.Time
	Version         int
}

// New starts an engagement between two live combatants in the same sector.
func New(regionID shared.RegionID, sectorIndex int, attacker, defender Combatant, now time.Time) (*Combat, error) {
	if attacker.ShipID == defender.ShipID {
		return nil, shared.NewValidationError("defender", "a ship cannot engage itself")
	}
	if attacker.PlayerID == defender.PlayerID {
		return nil, shared.NewValidationError("defender", "a player cannot engage their own ship")
	}
	if !attacker.Alive() {
		return nil, shared.NewConflictError("attacker ship is not operational")
	}
	if !defender.Alive() {
		return nil, shared.NewConflictError("defender ship is not operational")
	}
	attacker.JoinedAt = now
	defender.JoinedAt = now
	return &Combat{
		ID:            shared.NewCombatID(),
		RegionID:      regionID,
		Sector:        sectorIndex,
		Attacker:      attacker,
		Defender:      defender,
		Status:        StatusEngaging,
		RoundCap:      DefaultRoundCap,
		RoundDeadline: DefaultRoundDeadline,
		RoundDueAt:    now.Add(DefaultRoundDeadline),
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// SideOf maps a player to their combat position.
func (c *Combat) SideOf(playerID shared.PlayerID) (Side, bool) {
	switch playerID {
	case c.Attacker.PlayerID:
		return SideAttacker, true
	case c.Defender.PlayerID:
		return SideDefender, true
	}
	return "", false
}

// SubmitCommand records one side's order for the open round. An order may be
// replaced until the round resolves.
func (c *Combat) SubmitCommand(side Side, cmd Command, now time.Time) error {
	if !c.Active() {
		return shared.NewConflictError("combat is already resolved")
	}
	if cmd.WeaponMix < 0 || cmd.WeaponMix > 1 {
		return shared.NewValidationError("weapon_mix", "must be between 0 and 1")
	}
	if cmd.CommitDrones < 0 {
		return shared.NewValidationError("commit_drones", "must be non-negative")
	}
	switch side {
	case SideAttacker:
		if !cmd.TargetShipID.IsZero() && cmd.TargetShipID != c.Defender.ShipID {
			return shared.NewValidationError("target_ship_id", "target must be the opposing ship")
		}
		c.PendingAttacker = &cmd
	case SideDefender:
		if !cmd.TargetShipID.IsZero() && cmd.TargetShipID != c.Attacker.ShipID {
			return shared.NewValidationError("target_ship_id", "target must be the opposing ship")
		}
		c.PendingDefender = &cmd
	default:
		return shared.NewValidationError("side", "unknown combat side")
	}
	c.UpdatedAt = now
	return nil
}

// CommandsReady reports whether both sides have ordered the open round.
func (c *Combat) CommandsReady() bool {
	return c.PendingAttacker != nil && c.PendingDefender != nil
}

// DueForResolution reports whether the open round should resolve: both
// orders are in, or the deadline has passed.
func (c *Combat) DueForResolution(now time.Time) bool {
	if !c.Active() {
		return false
	}
	return c.CommandsReady() || !now.Before(c.RoundDueAt)
}

// Active reports whether more rounds can be fought.
func (c *Combat) Active() bool { return !c.Status.Terminal() }

// NextRoundIndex returns the 1-based index of the round about to resolve.
func (c *Combat) NextRoundIndex() int { return len(c.Rounds) + 1 }

// AttackerStrikesFirst orders the two sides for damage application. Higher
// initiative strikes first; exact ties go to the numerically lower ship id,
// then to the earlier joiner.
func (c *Combat) AttackerStrikesFirst(atkInit, defInit float64) bool {
	if atkInit != defInit {
		return atkInit > defInit
	}
	if c.Attacker.ShipID != c.Defender.ShipID {
		return c.Attacker.ShipID < c.Defender.ShipID
	}
	return c.Attacker.JoinedAt.Before(c.Defender.JoinedAt)
}

// ApplyRound appends a resolved round and advances the engagement state.
// Rounds must arrive in order; a terminal combat rejects all further
// mutation, keeping the log append-only and frozen.
func (c *Combat) ApplyRound(r Round, now time.Time) error {
	if !c.Active() {
		return shared.NewConflictError("combat is already resolved")
	}
	if r.Index != c.NextRoundIndex() {
		return shared.NewInvariantViolation("combat rounds must be applied in order")
	}
	c.Status = StatusResolving
	c.Attacker.Condition = r.AttackerCondition
	c.Attacker.Shield = r.AttackerShield
	c.Attacker.Drones -= r.DefenderDroneKills
	c.Attacker.LastCommand = r.AttackerCommand
	c.Defender.Condition = r.DefenderCondition
	c.Defender.Shield = r.DefenderShield
	c.Defender.Drones -= r.AttackerDroneKills
	c.Defender.LastCommand = r.DefenderCommand
	if r.RetreatBy == SideAttacker {
		c.Attacker.RetreatScore = r.RetreatScore
	}
	if r.RetreatBy == SideDefender {
		c.Defender.RetreatScore = r.RetreatScore
	}
	c.Rounds = append(c.Rounds, r)
	c.PendingAttacker, c.PendingDefender = nil, nil
	c.RoundDueAt = now.Add(c.RoundDeadline)

	switch {
	case r.RetreatSucceeded:
		c.EscapedBy = r.RetreatBy
		c.finish(StatusRetreat, now)
	case !c.Defender.Alive() && !c.Attacker.Alive():
		c.finish(StatusDraw, now)
	case !c.Defender.Alive():
		c.finish(StatusVictory, now)
	case !c.Attacker.Alive():
		c.finish(StatusDefeat, now)
	case len(c.Rounds) >= c.RoundCap:
		c.finish(StatusDraw, now)
	default:
		c.UpdatedAt = now
	}
	return nil
}

func (c *Combat) finish(status Status, now time.Time) {
	c.Status = status
	t := now
	c.ResolvedAt = &t
	c.UpdatedAt = now
}
