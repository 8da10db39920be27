package fabric

import (
	"context"
	"strconv"
	"strings"

	"github.com/sectorwars/gameserver/internal/application/common"
	"github.com/sectorwars/gameserver/internal/domain/player"
	"github.com/sectorwars/gameserver/internal/domain/region"
	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// ScopeAuthorizer decides whether a connected actor may open a subscription
// scope. The rules mirror the delivery contract: player scope is always the
// subscriber's own, sector scope demands presence, team scope demands a
// seat, region scope demands residency. Administrators pass everything.
type ScopeAuthorizer struct {
	players     player.Repository
	regions     region.Repository
	memberships region.MembershipRepository
}

// NewScopeAuthorizer wires the authorization reads.
func NewScopeAuthorizer(players player.Repository, regions region.Repository, memberships region.MembershipRepository) *ScopeAuthorizer {
	return &ScopeAuthorizer{players: players, regions: regions, memberships: memberships}
}

// Authorize returns nil when the actor may subscribe to the scope. Malformed
// scopes are validation failures; denied scopes are forbidden.
func (a *ScopeAuthorizer) Authorize(ctx context.Context, actor common.Actor, scope shared.Scope) error {
	kind, rest, _ := strings.Cut(string(scope), ":")
	switch kind {
	case "admin":
		if rest != "" {
			return shared.NewValidationError("scope", "admin scope carries no qualifier")
		}
		if !actor.IsAdmin() {
			return shared.NewForbiddenError("", "admin scope requires the administrator role")
		}
		return nil

	case "player":
		if rest == "" {
			return shared.NewValidationError("scope", "player scope requires a player id")
		}
		if actor.IsAdmin() || shared.PlayerID(rest) == actor.PlayerID {
			return nil
		}
		return shared.NewForbiddenError("", "player scope is limited to the subscriber's own events")

	case "sector":
		regionName, indexRaw, ok := strings.Cut(rest, ":")
		if !ok || regionName == "" {
			return shared.NewValidationError("scope", "sector scope is sector:<region>:<index>")
		}
		index, err := strconv.Atoi(indexRaw)
		if err != nil || index < 0 {
			return shared.NewValidationError("scope", "sector index must be a non-negative integer")
		}
		if actor.IsAdmin() {
			return nil
		}
		persona, err := a.players.FindByID(ctx, actor.PlayerID)
		if err != nil {
			return err
		}
		if persona.CurrentRegion != regionName || persona.CurrentSector != index {
			return shared.NewForbiddenError("", "sector scope requires your ship in that sector")
		}
		return nil

	case "team":
		if rest == "" {
			return shared.NewValidationError("scope", "team scope requires a team id")
		}
		if actor.IsAdmin() {
			return nil
		}
		persona, err := a.players.FindByID(ctx, actor.PlayerID)
		if err != nil {
			return err
		}
		if persona.TeamID != shared.TeamID(rest) {
			return shared.NewForbiddenError(shared.CodeTeamPermission, "team scope requires team membership")
		}
		return nil

	case "region":
		if rest == "" {
			return shared.NewValidationError("scope", "region scope requires a region name")
		}
		if actor.IsAdmin() {
			return nil
		}
		r, err := a.regions.FindByName(ctx, rest)
		if err != nil {
			return err
		}
		m, err := a.memberships.Find(ctx, actor.PlayerID, r.ID)
		if err != nil {
			return shared.NewForbiddenError("", "region scope requires resident or citizen standing")
		}
		if m.Type != region.MembershipResident && m.Type != region.MembershipCitizen {
			return shared.NewForbiddenError("", "region scope requires resident or citizen standing")
		}
		return nil

	default:
		return shared.NewValidationError("scope", "unknown scope kind")
	}
}
