package httpapi

import (
	"errors"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sectorwars/gameserver/internal/application/auth"
	"github.com/sectorwars/gameserver/internal/application/common"
	"github.com/sectorwars/gameserver/internal/domain/account"
	"github.com/sectorwars/gameserver/internal/domain/player"
	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// statusRecorder captures the response code for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Observer receives one observation per completed request.
type Observer interface {
	ObserveHTTP(family, method string, status int, elapsed time.Duration)
}

// requestContext stamps every request with a correlation id, a child logger
// and a capped body reader, then logs the outcome.
func requestContext(base zerolog.Logger, maxBody int64, observer Observer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", requestID)

			logger := base.With().
				Str("request_id", requestID).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Logger()

			ctx := common.WithRequestID(r.Context(), requestID)
			ctx = logger.WithContext(ctx)
			ctx = common.WithLogger(ctx, logger)

			if maxBody > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, maxBody)
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r.WithContext(ctx))
			elapsed := time.Since(start)

			family := routeFamily(r.URL.Path)
			if observer != nil {
				observer.ObserveHTTP(family, r.Method, rec.status, elapsed)
			}
			evt := logger.Info()
			if rec.status >= 500 {
				evt = logger.Error()
			}
			evt.Int("status", rec.status).
				Dur("elapsed", elapsed).
				Str("family", family).
				Msg("request")
		})
	}
}

// recoverPanic converts a handler panic into a 500 without killing the
// process.
func recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				zerolog.Ctx(r.Context()).Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Msg("handler panic")
				respondError(w, r, errors.New("panic recovered"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// bearerToken pulls the access token from the Authorization header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// authenticate verifies the bearer token and resolves the actor, including
// the persona bound to the account. Admin accounts without a persona still
// authenticate; player routes that need one fail downstream.
func authenticate(tokens *auth.TokenIssuer, players player.Repository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				respondError(w, r, shared.NewUnauthorizedError())
				return
			}
			claims, err := tokens.Verify(token, auth.ScopeAPI)
			if err != nil {
				respondError(w, r, err)
				return
			}
			actor := common.Actor{
				AccountID: shared.AccountID(claims.Subject),
				Role:      account.Role(claims.Role),
				TokenID:   claims.ID,
			}
			persona, err := players.FindByAccount(r.Context(), actor.AccountID)
			switch {
			case err == nil:
				actor.PlayerID = persona.ID
			case errors.Is(err, shared.ErrNotFound):
				// accounts without a persona are admins or mid-registration
			default:
				respondError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(common.WithActor(r.Context(), actor)))
		})
	}
}

// requireAdmin gates the admin route family.
func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := common.RequireActor(r.Context())
		if err != nil {
			respondError(w, r, err)
			return
		}
		if !actor.IsAdmin() {
			respondError(w, r, shared.NewForbiddenError("", "administrator role required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
