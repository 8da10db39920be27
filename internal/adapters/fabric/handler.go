package fabric

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/sectorwars/gameserver/internal/application/auth"
	"github.com/sectorwars/gameserver/internal/application/common"
	"github.com/sectorwars/gameserver/internal/domain/account"
	"github.com/sectorwars/gameserver/internal/domain/player"
	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// TokenVerifier validates a bearer token for the API scope.
type TokenVerifier interface {
	Verify(token, scope string) (*auth.Claims, error)
}

// Handler upgrades authenticated requests into fabric sockets. The access
// token arrives as a `token` query parameter or as a `bearer.<token>`
// WebSocket subprotocol entry, since browsers cannot set headers on the
// upgrade request.
type Handler struct {
	hub      *Hub
	tokens   TokenVerifier
	players  player.Repository
	upgrader websocket.Upgrader
}

// NewHandler wires the upgrade endpoint.
func NewHandler(hub *Hub, tokens TokenVerifier, players player.Repository) *Handler {
	return &Handler{
		hub:     hub,
		tokens:  tokens,
		players: players,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The HTTP layer in front already enforces origin policy; the
			// token is the authentication boundary here.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

const bearerProtocolPrefix = "bearer."

// ServeHTTP authenticates the handshake and runs the socket pumps until the
// connection drops.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, subprotocol := h.extractToken(r)
	if raw == "" {
		http.Error(w, "missing access token", http.StatusUnauthorized)
		return
	}
	claims, err := h.tokens.Verify(raw, auth.ScopeAPI)
	if err != nil {
		http.Error(w, "invalid access token", http.StatusUnauthorized)
		return
	}
	actor := common.Actor{
		AccountID: shared.AccountID(claims.Subject),
		Role:      account.Role(claims.Role),
		TokenID:   claims.ID,
	}
	persona, err := h.players.FindByAccount(r.Context(), actor.AccountID)
	switch {
	case err == nil:
		actor.PlayerID = persona.ID
	case errors.Is(err, shared.ErrNotFound) && actor.IsAdmin():
		// Operator accounts without a persona can still watch admin scopes.
	default:
		http.Error(w, "player resolution failed", http.StatusServiceUnavailable)
		return
	}

	upgrader := h.upgrader
	if subprotocol != "" {
		upgrader.Subprotocols = []string{subprotocol}
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Ctx(r.Context()).Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	logger := log.Ctx(r.Context()).With().
		Str("account_id", actor.AccountID.String()).
		Logger()
	s := newSocket(h.hub, conn, actor, logger)
	h.hub.attach(s)

	// The pumps outlive the HTTP handler's request context.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	go func() {
		s.readPump(ctx)
		cancel()
	}()
	go s.writePump(ctx)
}

// extractToken pulls the token from the query string or the subprotocol
// list. When it came via subprotocol, the same entry must be echoed in the
// upgrade response for browsers to accept the handshake.
func (h *Handler) extractToken(r *http.Request) (token, subprotocol string) {
	if t := r.URL.Query().Get("token"); t != "" {
		return t, ""
	}
	for _, proto := range websocket.Subprotocols(r) {
		if strings.HasPrefix(proto, bearerProtocolPrefix) {
			return strings.TrimPrefix(proto, bearerProtocolPrefix), proto
		}
	}
	return "", ""
}
