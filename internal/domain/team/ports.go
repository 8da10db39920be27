package team

import (
	"context"
	"time"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// Repository persists teams, rosters and invitations in a region shard.
type Repository interface {
	Create(ctx context.Context, t *Team, leader *Member) error
	FindByID(ctx context.Context, regionID shared.RegionID, id shared.TeamID) (*Team, error)
	FindByName(ctx context.Context, regionID shared.RegionID, name string) (*Team, error)
	List(ctx context.Context, regionID shared.RegionID, page, perPage int) ([]*Team, int64, error)
	Update(ctx context.Context, t *Team) error
	Delete(ctx context.Context, regionID shared.RegionID, id shared.TeamID) error

	AddMember(ctx context.Context, regionID shared.RegionID, m *Member) error
	FindMember(ctx context.Context, regionID shared.RegionID, teamID shared.TeamID, playerID shared.PlayerID) (*Member, error)
	ListMembers(ctx context.Context, regionID shared.RegionID, teamID shared.TeamID) ([]*Member, error)
	UpdateMember(ctx context.Context, regionID shared.RegionID, m *Member) error
	RemoveMember(ctx context.Context, regionID shared.RegionID, teamID shared.TeamID, playerID shared.PlayerID) error
	CountMembers(ctx context.Context, regionID shared.RegionID, teamID shared.TeamID) (int, error)

	CreateInvitation(ctx context.Context, regionID shared.RegionID, inv *Invitation) error
	FindInvitation(ctx context.Context, regionID shared.RegionID, teamID shared.TeamID, playerID shared.PlayerID) (*Invitation, error)
	DeleteInvitation(ctx context.Context, regionID shared.RegionID, teamID shared.TeamID, playerID shared.PlayerID) error
	DeleteInvitationsBefore(ctx context.Context, regionID shared.RegionID, cutoff time.Time) (int64, error)
}
