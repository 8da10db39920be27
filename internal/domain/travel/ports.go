package travel

import (
	"context"
	"time"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// Repository persists travel records in the global shard. The record is the
// idempotency anchor for the two-step transfer protocol.
type Repository interface {
	Create(ctx context.Context, t *Travel) error
	FindByID(ctx context.Context, id shared.TravelID) (*Travel, error)
	FindActiveByPlayer(ctx context.Context, playerID shared.PlayerID) (*Travel, error)
	ListInTransitBefore(ctx context.Context, cutoff time.Time) ([]*Travel, error)
	ListByPlayer(ctx context.Context, playerID shared.PlayerID, limit int) ([]*Travel, error)
	Update(ctx context.Context, t *Travel) error
}
