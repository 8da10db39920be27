package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sectorwars/gameserver/internal/adapters/persistence"
	"github.com/sectorwars/gameserver/internal/application/auth"
	"github.com/sectorwars/gameserver/internal/domain/account"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/infrastructure/config"
	"github.com/sectorwars/gameserver/test/helpers"
)

// totpCode derives the code a hardware authenticator would show at the given
// instant.
func totpCode(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, at)
	require.NoError(t, err)
	return code
}

func testAuthConfig() *config.AuthConfig {
	return &config.AuthConfig{
		JWTSecret:        "test-signing-secret",
		AccessTokenTTL:   15 * time.Minute,
		RefreshTokenTTL:  7 * 24 * time.Hour,
		TOTPIssuer:       "Sectorwars",
		LockoutThreshold: 3,
		LockoutWindow:    15 * time.Minute,
		LockoutDuration:  15 * time.Minute,
	}
}

func newTestService(t *testing.T, clock *shared.MockClock) *auth.Service {
	t.Helper()
	db := helpers.NewGlobalTestDB(t)
	cfg := testAuthConfig()
	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.AccessTokenTTL, clock)
	require.NoError(t, err)
	return auth.NewService(
		persistence.NewGormAccountRepository(db),
		persistence.NewGormSessionRepository(db),
		persistence.NewGormPlayerRepository(db),
		persistence.NewGormAuditRecorder(db),
		tokens,
		nil,
		cfg,
		clock,
	)
}

func TestService_RegisterAndAuthenticate(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestService(t, clock)
	ctx := context.Background()

	// Act
	reg, err := svc.Register(ctx, auth.RegisterInput{
		Handle:      "nova-trader",
		Email:       "nova@example.com",
		Credential:  "orbital-perigee-9",
		Fingerprint: "device-a",
		IP:          "203.0.113.7",
	})

	// Assert
	require.NoError(t, err)
	require.NotNil(t, reg.Tokens)
	assert.NotEmpty(t, reg.Tokens.AccessToken)
	assert.NotEmpty(t, reg.Tokens.RefreshToken)
	require.NotNil(t, reg.Player)
	assert.Equal(t, "central-nexus", reg.Player.CurrentRegion)

	// A registered account can sign back in.
	login, err := svc.Authenticate(ctx, "nova-trader", "orbital-perigee-9", "device-a", "203.0.113.7")
	require.NoError(t, err)
	require.NotNil(t, login.Tokens)
	assert.Empty(t, login.Challenge)
	assert.Equal(t, reg.Account.ID, login.Account.ID)
}

func TestService_AuthenticateRejectsBadCredential(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestService(t, clock)
	ctx := context.Background()
	_, err := svc.Register(ctx, auth.RegisterInput{
		Handle: "cautious-one", Email: "c@example.com", Credential: "orbital-perigee-9",
	})
	require.NoError(t, err)

	// Act
	_, err = svc.Authenticate(ctx, "cautious-one", "wrong-credential", "device-a", "")

	// Assert
	require.Error(t, err)
	assert.Equal(t, shared.CodeInvalidCredential, shared.CodeOf(err))

	// Unknown handles fail the same way.
	_, err = svc.Authenticate(ctx, "never-registered", "whatever-credential", "device-a", "")
	require.Error(t, err)
	assert.Equal(t, shared.CodeInvalidCredential, shared.CodeOf(err))
}

func TestService_LockoutAfterRepeatedFailures(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestService(t, clock)
	ctx := context.Background()
	_, err := svc.Register(ctx, auth.RegisterInput{
		Handle: "locked-pilot", Email: "l@example.com", Credential: "orbital-perigee-9",
	})
	require.NoError(t, err)

	// Act: burn through the threshold.
	for i := 0; i < 3; i++ {
		_, err = svc.Authenticate(ctx, "locked-pilot", "wrong-credential", "device-a", "")
		require.Error(t, err)
	}
	_, err = svc.Authenticate(ctx, "locked-pilot", "orbital-perigee-9", "device-a", "")

	// Assert: even the right credential is refused while locked.
	require.Error(t, err)
	assert.Equal(t, shared.CodeRateLimited, shared.CodeOf(err))

	// The lock expires with time.
	clock.Advance(16 * time.Minute)
	login, err := svc.Authenticate(ctx, "locked-pilot", "orbital-perigee-9", "device-a", "")
	require.NoError(t, err)
	require.NotNil(t, login.Tokens)
}

func TestService_RefreshRotatesAndDetectsReuse(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestService(t, clock)
	ctx := context.Background()
	reg, err := svc.Register(ctx, auth.RegisterInput{
		Handle: "rotator", Email: "r@example.com", Credential: "orbital-perigee-9",
		Fingerprint: "device-a",
	})
	require.NoError(t, err)
	first := reg.Tokens.RefreshToken

	// Act: a normal rotation succeeds.
	clock.Advance(time.Minute)
	pair, err := svc.Refresh(ctx, first, "device-a", "")
	require.NoError(t, err)
	assert.NotEqual(t, first, pair.RefreshToken)

	// Assert: presenting the consumed token again kills the chain.
	_, err = svc.Refresh(ctx, first, "device-a", "")
	require.Error(t, err)
	assert.Equal(t, shared.CodeInvalidCredential, shared.CodeOf(err))

	// The rotated successor died with the chain.
	_, err = svc.Refresh(ctx, pair.RefreshToken, "device-a", "")
	require.Error(t, err)
	assert.Equal(t, shared.CodeInvalidCredential, shared.CodeOf(err))
}

func TestService_RefreshRejectsForeignFingerprint(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestService(t, clock)
	ctx := context.Background()
	reg, err := svc.Register(ctx, auth.RegisterInput{
		Handle: "fingered", Email: "f@example.com", Credential: "orbital-perigee-9",
		Fingerprint: "device-a",
	})
	require.NoError(t, err)

	// Act
	_, err = svc.Refresh(ctx, reg.Tokens.RefreshToken, "device-b", "")

	// Assert
	require.Error(t, err)
	assert.Equal(t, shared.CodeInvalidCredential, shared.CodeOf(err))

	// The chain is gone even for the right device.
	_, err = svc.Refresh(ctx, reg.Tokens.RefreshToken, "device-a", "")
	require.Error(t, err)
}

func TestService_SecondFactorRoundTrip(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestService(t, clock)
	ctx := context.Background()
	reg, err := svc.Register(ctx, auth.RegisterInput{
		Handle: "two-step", Email: "t@example.com", Credential: "orbital-perigee-9",
	})
	require.NoError(t, err)

	enrollment, err := svc.EnrollTOTP(ctx, reg.Account.ID, "")
	require.NoError(t, err)
	require.NotEmpty(t, enrollment.Secret)
	require.Len(t, enrollment.BackupCodes, 10)

	err = svc.VerifyEnrollment(ctx, reg.Account.ID, totpCode(t, enrollment.Secret, clock.Now()), "")
	require.NoError(t, err)

	// Act: password alone now yields a challenge instead of tokens.
	login, err := svc.Authenticate(ctx, "two-step", "orbital-perigee-9", "device-a", "")
	require.NoError(t, err)
	require.Nil(t, login.Tokens)
	require.NotEmpty(t, login.Challenge)

	// Assert: a wrong code is rejected, a backup code completes the login.
	_, err = svc.CompleteChallenge(ctx, login.Challenge, "000000", "device-a", "")
	require.Error(t, err)
	assert.Equal(t, shared.CodeSecondFactorInvalid, shared.CodeOf(err))

	result, err := svc.CompleteChallenge(ctx, login.Challenge, enrollment.BackupCodes[0], "device-a", "")
	require.NoError(t, err)
	require.NotNil(t, result.Tokens)

	// Backup codes are single-use.
	again, err := svc.Authenticate(ctx, "two-step", "orbital-perigee-9", "device-a", "")
	require.NoError(t, err)
	_, err = svc.CompleteChallenge(ctx, again.Challenge, enrollment.BackupCodes[0], "device-a", "")
	require.Error(t, err)
	assert.Equal(t, shared.CodeSecondFactorInvalid, shared.CodeOf(err))
}

func TestService_ChangeCredentialRevokesSessions(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestService(t, clock)
	ctx := context.Background()
	reg, err := svc.Register(ctx, auth.RegisterInput{
		Handle: "changer", Email: "ch@example.com", Credential: "orbital-perigee-9",
		Fingerprint: "device-a",
	})
	require.NoError(t, err)

	// Act
	err = svc.ChangeCredential(ctx, reg.Account.ID, "orbital-perigee-9", "new-perigee-credential", "")

	// Assert
	require.NoError(t, err)
	_, err = svc.Refresh(ctx, reg.Tokens.RefreshToken, "device-a", "")
	require.Error(t, err)

	login, err := svc.Authenticate(ctx, "changer", "new-perigee-credential", "device-a", "")
	require.NoError(t, err)
	require.NotNil(t, login.Tokens)
}

func TestService_SessionListingAndRevocation(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestService(t, clock)
	ctx := context.Background()
	reg, err := svc.Register(ctx, auth.RegisterInput{
		Handle: "multi-device", Email: "m@example.com", Credential: "orbital-perigee-9",
		Fingerprint: "device-a",
	})
	require.NoError(t, err)
	second, err := svc.Authenticate(ctx, "multi-device", "orbital-perigee-9", "device-b", "")
	require.NoError(t, err)

	live, err := svc.ListSessions(ctx, reg.Account.ID)
	require.NoError(t, err)
	require.Len(t, live, 2)

	// Act
	err = svc.RevokeSession(ctx, reg.Account.ID, second.Tokens.SessionID, "")

	// Assert
	require.NoError(t, err)
	live, err = svc.ListSessions(ctx, reg.Account.ID)
	require.NoError(t, err)
	assert.Len(t, live, 1)
	_, err = svc.Refresh(ctx, second.Tokens.RefreshToken, "device-b", "")
	require.Error(t, err)
}

func TestTokenIssuer_ScopeAndExpiry(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 3, 1, 12, 0, 0, 0, time.UTC))
	issuer, err := auth.NewTokenIssuer("test-signing-secret", 15*time.Minute, clock)
	require.NoError(t, err)
	accountID := shared.NewAccountID()

	// Act
	token, expires, err := issuer.IssueAccess(accountID, account.RolePlayer)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(15*time.Minute), expires)

	claims, err := issuer.Verify(token, auth.ScopeAPI)
	require.NoError(t, err)
	assert.Equal(t, string(accountID), claims.Subject)
	assert.Equal(t, string(account.RolePlayer), claims.Role)

	// A challenge token is not an access token.
	challenge, _, err := issuer.IssueChallenge(accountID)
	require.NoError(t, err)
	_, err = issuer.Verify(challenge, auth.ScopeAPI)
	require.Error(t, err)

	// Expiry is enforced against the issuer clock.
	clock.Advance(16 * time.Minute)
	_, err = issuer.Verify(token, auth.ScopeAPI)
	require.Error(t, err)
}
