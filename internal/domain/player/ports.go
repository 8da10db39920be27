package player

import (
	"context"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// Repository is the global-shard gateway for players.
type Repository interface {
	Create(ctx context.Context, p *Player) error
	FindByID(ctx context.Context, id shared.PlayerID) (*Player, error)
	FindByAccount(ctx context.Context, accountID shared.AccountID) (*Player, error)
	FindByName(ctx context.Context, name string) (*Player, error)
	Update(ctx context.Context, p *Player) error
	ListByRegion(ctx context.Context, region string) ([]*Player, error)
}
