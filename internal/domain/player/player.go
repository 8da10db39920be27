package player

import (
	"strings"
	"time"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// Player is the game persona of an account. One player exists per account in
// a given region context; the global shard tracks which region the player is
// currently in.
//
// Invariants:
//   - a player always has a current region (the Central Nexus by default)
//   - credits never go negative (all movement through Credits.Debit)
type Player struct {
	ID            shared.PlayerID
	AccountID     shared.AccountID
	Name          string
	CurrentRegion string
	CurrentSector int
	CurrentShipID shared.ShipID
	Credits       shared.Credits
	TeamID        shared.TeamID
	Onboarded     bool
	// MutedUntil blocks outbound messages while in the future. Nil means
	// never muted.
	MutedUntil *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Version    int
}

// StartingCredits is granted on registration, before the first-login session
// decides the starting ship.
const StartingCredits shared.Credits = 2500

// New creates a persona homed in the Central Nexus.
func New(accountID shared.AccountID, name string, nexusName string, now time.Time) (*Player, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.NewValidationError("name", "must not be empty")
	}
	if len(name) > 32 {
		return nil, shared.NewValidationError("name", "must be at most 32 characters")
	}
	return &Player{
		ID:            shared.NewPlayerID(),
		AccountID:     accountID,
		Name:          name,
		CurrentRegion: nexusName,
		CurrentSector: 1,
		Credits:       StartingCredits,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// MoveTo places the player in a sector of their current region.
func (p *Player) MoveTo(sector int, now time.Time) {
	p.CurrentSector = sector
	p.UpdatedAt = now
}

// Relocate moves the player to another region, as the final step of
// inter-region travel.
func (p *Player) Relocate(region string, sector int, now time.Time) {
	p.CurrentRegion = region
	p.CurrentSector = sector
	p.UpdatedAt = now
}

// Spend debits credits, failing with INSUFFICIENT_CREDITS when short.
func (p *Player) Spend(amount shared.Credits, now time.Time) error {
	next, err := p.Credits.Debit(amount)
	if err != nil {
		return err
	}
	p.Credits = next
	p.UpdatedAt = now
	return nil
}

// Earn credits the balance.
func (p *Player) Earn(amount shared.Credits, now time.Time) error {
	next, err := p.Credits.Credit(amount)
	if err != nil {
		return err
	}
	p.Credits = next
	p.UpdatedAt = now
	return nil
}

// BoardShip sets the currently-piloted ship.
func (p *Player) BoardShip(shipID shared.ShipID, now time.Time) {
	p.CurrentShipID = shipID
	p.UpdatedAt = now
}

// Disembark clears the piloted ship, typically after its destruction.
func (p *Player) Disembark(now time.Time) {
	p.CurrentShipID = ""
	p.UpdatedAt = now
}

// JoinTeam seats the player on a team. A player holds one seat at a time.
func (p *Player) JoinTeam(teamID shared.TeamID, now time.Time) error {
	if !p.TeamID.IsZero() {
		return shared.NewConflictError("player is already on a team")
	}
	p.TeamID = teamID
	p.UpdatedAt = now
	return nil
}

// LeaveTeam clears the seat.
func (p *Player) LeaveTeam(now time.Time) {
	p.TeamID = ""
	p.UpdatedAt = now
}

// Mute blocks the player's outbound messages until the given time.
func (p *Player) Mute(until time.Time, now time.Time) error {
	if !until.After(now) {
		return shared.NewValidationError("until", "must be in the future")
	}
	p.MutedUntil = &until
	p.UpdatedAt = now
	return nil
}

// Unmute lifts an active mute.
func (p *Player) Unmute(now time.Time) {
	p.MutedUntil = nil
	p.UpdatedAt = now
}

// Muted reports whether an active mute blocks outbound messages.
func (p *Player) Muted(now time.Time) bool {
	return p.MutedUntil != nil && now.Before(*p.MutedUntil)
}
