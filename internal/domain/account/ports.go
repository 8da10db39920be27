package account

import (
	"context"
	"time"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// Repository is the global-shard gateway for accounts.
type Repository interface {
	Create(ctx context.Context, a *Account) error
	FindByID(ctx context.Context, id shared.AccountID) (*Account, error)
	FindByHandle(ctx context.Context, handle string) (*Account, error)
	FindByProvider(ctx context.Context, provider, providerAccountID string) (*Account, error)
	Update(ctx context.Context, a *Account) error
	// List pages accounts by registration date, tombstoned ones included.
	List(ctx context.Context, page, perPage int) ([]*Account, int64, error)
}

// SessionRepository stores refresh-token chains.
type SessionRepository interface {
	Create(ctx context.Context, s *Session) error
	FindByRefreshHash(ctx context.Context, hash string) (*Session, error)
	Update(ctx context.Context, s *Session) error
	// Consume marks a session used, atomically. A conflict means another
	// request already consumed it, which callers treat as token reuse.
	Consume(ctx context.Context, sessionID string, at time.Time) error
	RevokeChain(ctx context.Context, chainID string, at time.Time) error
	RevokeAccount(ctx context.Context, accountID shared.AccountID, at time.Time) error
	ListActive(ctx context.Context, accountID shared.AccountID, now time.Time) ([]*Session, error)
}
