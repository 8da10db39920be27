package combat_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sectorwars/gameserver/internal/domain/combat"
	"github.com/sectorwars/gameserver/internal/domain/shared"
)

func testCombatant(shipID, playerID string, base float64, rating, shield, drones int) combat.Combatant {
	return combat.Combatant{
		ShipID:         shared.ShipID(shipID),
		PlayerID:       shared.PlayerID(playerID),
		HullClass:      "scout",
		InitiativeBase: base,
		CombatRating:   rating,
		ShieldRating:   shield,
		Condition:      1.0,
		Shield:         shield,
		Drones:         drones,
	}
}

func newTestCombat(t *testing.T, atk, def combat.Combatant, now time.Time) *combat.Combat {
	t.Helper()
	c, err := combat.New(shared.NewRegionID(), 1, atk, def, now)
	require.NoError(t, err)
	c.ID = "combat-fixture" // pin the id so every draw is reproducible
	return c
}

func TestResolveRoundIsDeterministic(t *testing.T) {
	now := time.Date(2102, 3, 1, 12, 0, 0, 0, time.UTC)
	atk := testCombatant("ship-a", "pilot-a", 4, 120, 200, 3)
	def := testCombatant("ship-b", "pilot-b", 4, 120, 200, 3)
	cmd := combat.Command{WeaponMix: 0.5, CommitDrones: 2}

	first := newTestCombat(t, atk, def, now)
	second := newTestCombat(t, atk, def, now)

	r1, err := combat.ResolveRound(first, &cmd, &cmd, now)
	require.NoError(t, err)
	r2, err := combat.ResolveRound(second, &cmd, &cmd, now)
	require.NoError(t, err)

	assert.Equal(t, r1, r2)
}

func TestEnergyFireStopsAtAnUnbrokenShield(t *testing.T) {
	now := time.Now()
	atk := testCombatant("ship-a", "pilot-a", 4, 100, 0, 0)
	def := testCombatant("ship-b", "pilot-b", 1, 0, 1000000, 0)
	c := newTestCombat(t, atk, def, now)

	energy := combat.Command{WeaponMix: 1}
	hold := combat.Command{}
	r, err := combat.ResolveRound(c, &energy, &hold, now)
	require.NoError(t, err)

	assert.Greater(t, r.ShieldDamageToDef, 0)
	assert.Zero(t, r.HullDamageToDef)
	assert.Equal(t, 1.0, r.DefenderCondition)
	assert.Less(t, r.DefenderShield, def.Shield)
}

func TestKineticFireBypassesTheShield(t *testing.T) {
	now := time.Now()
	atk := testCombatant("ship-a", "pilot-a", 4, 5000, 0, 0)
	def := testCombatant("ship-b", "pilot-b", 1, 0, 500, 0)
	c := newTestCombat(t, atk, def, now)

	kinetic := combat.Command{WeaponMix: 0}
	hold := combat.Command{}
	r, err := combat.ResolveRound(c, &kinetic, &hold, now)
	require.NoError(t, err)

	assert.Zero(t, r.ShieldDamageToDef)
	assert.Greater(t, r.HullDamageToDef, 0.0)
	assert.Equal(t, def.Shield, r.DefenderShield)
	assert.Less(t, r.DefenderCondition, 1.0)
}

func TestOverwhelmingVolleyDestroysAndSettlesVictory(t *testing.T) {
	now := time.Now()
	atk := testCombatant("ship-a", "pilot-a", 6, 1000000, 0, 0)
	def := testCombatant("ship-b", "pilot-b", 1, 0, 0, 0)
	c := newTestCombat(t, atk, def, now)

	kinetic := combat.Command{WeaponMix: 0}
	hold := combat.Command{}
	r, err := combat.ResolveRound(c, &kinetic, &hold, now)
	require.NoError(t, err)
	require.Zero(t, r.DefenderCondition)

	require.NoError(t, c.ApplyRound(r, now))
	assert.Equal(t, combat.StatusVictory, c.Status)
	assert.True(t, c.Status.Terminal())
	require.NotNil(t, c.ResolvedAt)
}

func TestRetreatForfeitsTheVolleyAndEscapes(t *testing.T) {
	now := time.Now()
	// A nimble hull fleeing a sluggish pursuer banks at least base/2 score
	// per round while the pursuer's initiative tops out at base+2, so the
	// escape lands within a handful of rounds.
	atk := testCombatant("ship-a", "pilot-a", 6, 100, 50, 0)
	def := testCombatant("ship-b", "pilot-b", 1, 0, 50, 0)
	c := newTestCombat(t, atk, def, now)

	flee := combat.Command{Retreat: true}
	hold := combat.Command{}
	for i := 0; i < 5 && c.Active(); i++ {
		r, err := combat.ResolveRound(c, &flee, &hold, now)
		require.NoError(t, err)
		assert.Zero(t, r.ShieldDamageToDef)
		assert.Zero(t, r.HullDamageToDef)
		assert.Equal(t, combat.SideAttacker, r.RetreatBy)
		require.NoError(t, c.ApplyRound(r, now))
	}

	assert.Equal(t, combat.StatusRetreat, c.Status)
	assert.Equal(t, combat.SideAttacker, c.EscapedBy)
}

func TestRoundCapForcesADraw(t *testing.T) {
	now := time.Now()
	atk := testCombatant("ship-a", "pilot-a", 4, 0, 100, 0)
	def := testCombatant("ship-b", "pilot-b", 4, 0, 100, 0)
	c := newTestCombat(t, atk, def, now)

	hold := combat.Command{}
	for c.Active() {
		r, err := combat.ResolveRound(c, &hold, &hold, now)
		require.NoError(t, err)
		require.NoError(t, c.ApplyRound(r, now))
		require.LessOrEqual(t, len(c.Rounds), combat.DefaultRoundCap)
	}

	assert.Equal(t, combat.StatusDraw, c.Status)
	assert.Len(t, c.Rounds, combat.DefaultRoundCap)
	for i, r := range c.Rounds {
		assert.Equal(t, i+1, r.Index)
	}
}

func TestDroneClashLandsBeforeShipFire(t *testing.T) {
	now := time.Now()
	atk := testCombatant("ship-a", "pilot-a", 4, 100, 100, 10)
	def := testCombatant("ship-b", "pilot-b", 4, 100, 100, 10)
	c := newTestCombat(t, atk, def, now)

	cmd := combat.Command{WeaponMix: 0.5, CommitDrones: 10}
	r, err := combat.ResolveRound(c, &cmd, &cmd, now)
	require.NoError(t, err)

	assert.Greater(t, r.AttackerDroneKills, 0)
	assert.Greater(t, r.DefenderDroneKills, 0)
	assert.LessOrEqual(t, r.AttackerDroneKills, def.Drones)
	assert.LessOrEqual(t, r.DefenderDroneKills, atk.Drones)

	require.NoError(t, c.ApplyRound(r, now))
	assert.Equal(t, atk.Drones-r.DefenderDroneKills, c.Attacker.Drones)
	assert.Equal(t, def.Drones-r.AttackerDroneKills, c.Defender.Drones)
}

func TestFallbackCommandNeverBeginsARetreat(t *testing.T) {
	prior := combat.Command{WeaponMix: 0.7, CommitDrones: 3, Retreat: true}
	fb := combat.FallbackCommand(prior)
	assert.False(t, fb.Retreat)
	assert.Equal(t, 0.7, fb.WeaponMix)
	assert.Equal(t, 3, fb.CommitDrones)
}

func TestApplyRoundRejectsOutOfOrderRounds(t *testing.T) {
	now := time.Now()
	c := newTestCombat(t,
		testCombatant("ship-a", "pilot-a", 4, 0, 100, 0),
		testCombatant("ship-b", "pilot-b", 4, 0, 100, 0), now)

	hold := combat.Command{}
	r, err := combat.ResolveRound(c, &hold, &hold, now)
	require.NoError(t, err)

	stale := r
	stale.Index = 5
	err = c.ApplyRound(stale, now)
	require.Error(t, err)

	require.NoError(t, c.ApplyRound(r, now))
}

func TestSubmitCommandValidatesOrderVectors(t *testing.T) {
	now := time.Now()
	c := newTestCombat(t,
		testCombatant("ship-a", "pilot-a", 4, 100, 100, 0),
		testCombatant("ship-b", "pilot-b", 4, 100, 100, 0), now)

	err := c.SubmitCommand(combat.SideAttacker, combat.Command{WeaponMix: 1.5}, now)
	require.ErrorIs(t, err, shared.ErrValidation)

	err = c.SubmitCommand(combat.SideAttacker, combat.Command{TargetShipID: "ship-a"}, now)
	require.ErrorIs(t, err, shared.ErrValidation)

	require.NoError(t, c.SubmitCommand(combat.SideAttacker, combat.Command{TargetShipID: "ship-b"}, now))
	assert.False(t, c.CommandsReady())
	require.NoError(t, c.SubmitCommand(combat.SideDefender, combat.Command{}, now))
	assert.True(t, c.CommandsReady())
}

func TestInitiativeTiesBreakOnLowerShipID(t *testing.T) {
	now := time.Now()
	c := newTestCombat(t,
		testCombatant("ship-a", "pilot-a", 4, 100, 100, 0),
		testCombatant("ship-b", "pilot-b", 4, 100, 100, 0), now)

	assert.True(t, c.AttackerStrikesFirst(3.0, 3.0))
	assert.True(t, c.AttackerStrikesFirst(3.1, 3.0))
	assert.False(t, c.AttackerStrikesFirst(3.0, 3.1))
}
