package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sectorwars/gameserver/internal/domain/account"
	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// Token scopes. Access tokens carry ScopeAPI; the short-lived token minted
// between the credential check and the TOTP step carries ScopeMFAChallenge
// and is accepted nowhere else.
const (
	ScopeAPI          = "api"
	ScopeMFAChallenge = "mfa-challenge"

	challengeTokenTTL = 5 * time.Minute
)

// Claims is the access-token payload. Role travels in the token so handlers
// can gate admin routes without a database read; revocation still goes
// through the session chain.
type Claims struct {
	jwt.RegisteredClaims
	Role  string `json:"role"`
	Scope string `json:"scope"`
}

// TokenIssuer mints and verifies HS256 access tokens.
type TokenIssuer struct {
	secret    []byte
	accessTTL time.Duration
	clock     shared.Clock
}

// NewTokenIssuer builds an issuer from the configured signing secret.
func NewTokenIssuer(secret string, accessTTL time.Duration, clock shared.Clock) (*TokenIssuer, error) {
	if secret == "" {
		return nil, shared.NewValidationError("jwt_secret", "must not be empty")
	}
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &TokenIssuer{secret: []byte(secret), accessTTL: accessTTL, clock: clock}, nil
}

// IssueAccess mints a short-lived bearer token for the account.
func (i *TokenIssuer) IssueAccess(accountID shared.AccountID, role account.Role) (string, time.Time, error) {
	return i.issue(string(accountID), string(role), ScopeAPI, i.accessTTL)
}

// IssueChallenge mints the intermediate token presented back with the TOTP
// code. It identifies the account but grants no API access.
func (i *TokenIssuer) IssueChallenge(accountID shared.AccountID) (string, time.Time, error) {
	return i.issue(string(accountID), string(account.RolePlayer), ScopeMFAChallenge, challengeTokenTTL)
}

func (i *TokenIssuer) issue(subject, role, scope string, ttl time.Duration) (string, time.Time, error) {
	now := i.clock.Now()
	expires := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
		Role:  role,
		Scope: scope,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// Verify parses and validates a token, requiring the given scope.
func (i *TokenIssuer) Verify(token, scope string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(i.clock.Now),
	)
	if err != nil {
		// Expired, malformed and bad-signature tokens all collapse into the
		// same generic response; the distinction matters only to logs.
		return nil, shared.NewUnauthorizedError()
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, shared.NewUnauthorizedError()
	}
	if claims.Scope != scope {
		return nil, shared.NewUnauthorizedError()
	}
	return &claims, nil
}
