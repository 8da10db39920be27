package common

import (
	"context"

	"github.com/sectorwars/gameserver/internal/domain/account"
	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// Actor is the authenticated principal a request runs as, resolved once by
// the transport layer and carried through the context.
type Actor struct {
	AccountID shared.AccountID
	PlayerID  shared.PlayerID
	Role      account.Role
	TokenID   string // jti of the presented access token
}

// IsAdmin reports whether the actor holds the administrator role.
func (a Actor) IsAdmin() bool { return a.Role == account.RoleAdministrator }

type actorContextKey int

const actorKey actorContextKey = iota + 100

// WithActor injects the authenticated actor into the context
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext extracts the actor. The second return is false on
// unauthenticated requests.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok
}

// RequireActor extracts the actor or fails Unauthorized.
func RequireActor(ctx context.Context) (Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return Actor{}, shared.NewUnauthorizedError()
	}
	return actor, nil
}
