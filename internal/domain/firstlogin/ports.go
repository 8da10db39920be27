package firstlogin

import (
	"context"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// Repository persists onboarding sessions in a region shard. A player has at
// most one unresolved session.
type Repository interface {
	Create(ctx context.Context, s *Session) error
	FindByID(ctx context.Context, id string) (*Session, error)
	FindOpenByPlayer(ctx context.Context, playerID shared.PlayerID) (*Session, error)
	Update(ctx context.Context, s *Session) error
}
