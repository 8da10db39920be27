package httpapi

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sectorwars/gameserver/internal/adapters/persistence"
	"github.com/sectorwars/gameserver/internal/application/auth"
	"github.com/sectorwars/gameserver/internal/domain/account"
	"github.com/sectorwars/gameserver/internal/domain/player"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/infrastructure/config"
	"github.com/sectorwars/gameserver/test/helpers"
)

func testServerConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.MaxBodyBytes = 1 << 20
	cfg.Provisioner.WebhookSecret = "whsec_test"
	return cfg
}

func newTestServer(t *testing.T) (*Server, player.Repository) {
	t.Helper()
	db := helpers.NewGlobalTestDB(t)
	players := persistence.NewGormPlayerRepository(db)
	issuer, err := auth.NewTokenIssuer("test-secret", time.Hour, shared.NewRealClock())
	require.NoError(t, err)

	return NewServer(Deps{
		Config:  testServerConfig(),
		Logger:  zerolog.Nop(),
		Tokens:  issuer,
		Players: players,
		Limiter: NewRateLimiter(testRateLimitConfig(), shared.NewRealClock()),
	}), players
}

func TestHealthAndRequestID(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}

func TestUnknownRouteEnvelope(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, shared.CodeNotFound, body.Error.Code)
	assert.NotEmpty(t, body.Error.RequestID)
}

func TestProtectedRouteRequiresToken(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/player/ships", nil))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, shared.CodeAuthRequired, body.Error.Code)
}

func TestGarbageTokenRefused(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/player/ships", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRouteRefusesPlayers(t *testing.T) {
	srv, players := newTestServer(t)
	persona, err := player.New(shared.AccountID("acct-1"), "Pilot", "central-nexus", time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, players.Create(context.Background(), persona))

	token, _, err := srv.tokens.IssueAccess("acct-1", account.RolePlayer)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/users", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, shared.CodePermissions, body.Error.Code)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	srv, _ := newTestServer(t)
	payload := []byte(`{"delivery_id":"d1","provider":"paypal","type":"subscription.started","subscription_id":"sub1"}`)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/subscriptions", bytes.NewReader(payload))
	req.Header.Set("X-Webhook-Signature", "sha256=deadbeef")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookSignatureVerification(t *testing.T) {
	srv, _ := newTestServer(t)
	payload := []byte(`{"delivery_id":"d1"}`)

	mac := hmac.New(sha256.New, []byte("whsec_test"))
	mac.Write(payload)
	good := hex.EncodeToString(mac.Sum(nil))

	assert.True(t, srv.verifyWebhookSignature(good, payload))
	assert.True(t, srv.verifyWebhookSignature("sha256="+good, payload))
	assert.False(t, srv.verifyWebhookSignature(good, []byte(`tampered`)))
	assert.False(t, srv.verifyWebhookSignature("", payload))
}

func TestRateLimitHeadersPresent(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Remaining"))
}
