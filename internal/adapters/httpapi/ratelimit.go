package httpapi

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sectorwars/gameserver/internal/application/common"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/infrastructure/config"
)

// routeFamily buckets a path into its rate-limit family. Everything under
// /api/v1/<segment> keys on the first segment; unknown paths share "general".
func routeFamily(path string) string {
	trimmed := strings.TrimPrefix(path, "/api/v1/")
	if trimmed == path {
		return "general"
	}
	if idx := strings.IndexByte(trimmed, '/'); idx > 0 {
		trimmed = trimmed[:idx]
	}
	switch trimmed {
	case "auth", "player", "sectors", "trading", "combat", "drones", "planets",
		"teams", "messages", "factions", "bounties", "governance", "regions",
		"travel", "treaties", "admin", "first-login", "ws":
		return trimmed
	default:
		return "general"
	}
}

type bucketEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type abuseState struct {
	windowStart   time.Time
	limitedHits   int
	degradedUntil time.Time
}

// RateLimiter applies per-(account, family) token buckets with an IP bucket
// for anonymous callers. Accounts that keep hammering a closed bucket are
// moved to soft-degraded service with halved budgets for DegradePeriod.
type RateLimiter struct {
	cfg   *config.RateLimitConfig
	clock shared.Clock

	mu      sync.Mutex
	buckets map[string]*bucketEntry
	abuse   map[string]*abuseState
}

func NewRateLimiter(cfg *config.RateLimitConfig, clock shared.Clock) *RateLimiter {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &RateLimiter{
		cfg:     cfg,
		clock:   clock,
		buckets: make(map[string]*bucketEntry),
		abuse:   make(map[string]*abuseState),
	}
}

// Middleware enforces the limit and stamps the X-RateLimit-* headers.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		family := routeFamily(r.URL.Path)
		key, accountKey, budget := l.resolveKey(r, family)

		allowed, remaining := l.take(key, budget)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(budget))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(l.clock.Now().Add(time.Minute).Unix(), 10))

		if !allowed {
			if accountKey != "" {
				l.recordAbuse(accountKey)
			}
			respondError(w, r, shared.NewRateLimitedError("60"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// resolveKey picks the bucket key and its budget. Authenticated traffic keys
// on (account, family); anonymous traffic shares a per-IP bucket.
func (l *RateLimiter) resolveKey(r *http.Request, family string) (key, accountKey string, budget int) {
	if actor, ok := common.ActorFromContext(r.Context()); ok {
		accountKey = string(actor.AccountID)
		budget = l.cfg.FamilyBudget(family)
		if l.degraded(accountKey) {
			budget = max(1, budget/2)
		}
		return fmt.Sprintf("acct:%s:%s", accountKey, family), accountKey, budget
	}
	return "ip:" + clientIP(r), "", l.cfg.PerIP
}

func (l *RateLimiter) take(key string, budget int) (allowed bool, remaining int) {
	now := l.clock.Now()
	perSecond := rate.Limit(float64(budget) / 60.0)

	l.mu.Lock()
	entry, ok := l.buckets[key]
	if !ok {
		entry = &bucketEntry{limiter: rate.NewLimiter(perSecond, l.cfg.Burst)}
		l.buckets[key] = entry
	}
	entry.limiter.SetLimit(perSecond)
	entry.lastSeen = now
	if len(l.buckets) > 4096 {
		l.sweepLocked(now)
	}
	l.mu.Unlock()

	allowed = entry.limiter.AllowN(now, 1)
	remaining = int(entry.limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return allowed, remaining
}

// degraded reports whether the account is inside a soft-degrade period.
func (l *RateLimiter) degraded(accountKey string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	state, ok := l.abuse[accountKey]
	return ok && l.clock.Now().Before(state.degradedUntil)
}

// recordAbuse counts limited hits in a sliding window and trips the degrade
// once the threshold is crossed.
func (l *RateLimiter) recordAbuse(accountKey string) {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	state, ok := l.abuse[accountKey]
	if !ok || now.Sub(state.windowStart) > l.cfg.AbuseWindow {
		state = &abuseState{windowStart: now}
		l.abuse[accountKey] = state
	}
	state.limitedHits++
	if state.limitedHits >= l.cfg.AbuseThreshold {
		state.degradedUntil = now.Add(l.cfg.DegradePeriod)
	}
}

func (l *RateLimiter) sweepLocked(now time.Time) {
	for key, entry := range l.buckets {
		if now.Sub(entry.lastSeen) > 10*time.Minute {
			delete(l.buckets, key)
		}
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx > 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
