package account

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// Session is one link in a refresh-token rotation chain. Every refresh mints
// a new link; presenting an already-used link is treated as token theft and
// revokes the whole chain.
type Session struct {
	ID                string
	AccountID         shared.AccountID
	ChainID           string
	RefreshHash       string
	DeviceFingerprint string
	IssuedAt          time.Time
	ExpiresAt         time.Time
	UsedAt            *time.Time
	RevokedAt         *time.Time
}

// NewSession opens a fresh chain and returns the session plus the one-time
// plaintext refresh token. Only the hash is ever stored.
func NewSession(accountID shared.AccountID, fingerprint string, ttl time.Duration, now time.Time) (*Session, string, error) {
	token, err := newRefreshToken()
	if err != nil {
		return nil, "", err
	}
	return &Session{
		ID:                uuid.NewString(),
		AccountID:         accountID,
		ChainID:           uuid.NewString(),
		RefreshHash:       HashRefreshToken(token),
		DeviceFingerprint: fingerprint,
		IssuedAt:          now,
		ExpiresAt:         now.Add(ttl),
	}, token, nil
}

// Rotate consumes this session and mints the next link in the chain, bound to
// the same device fingerprint.
func (s *Session) Rotate(ttl time.Duration, now time.Time) (*Session, string, error) {
	if s.RevokedAt != nil {
		return nil, "", shared.NewInvalidCredentialError()
	}
	if s.UsedAt != nil {
		// Reuse of a rotated token: the caller must revoke the chain.
		return nil, "", shared.NewInvalidCredentialError()
	}
	if now.After(s.ExpiresAt) {
		return nil, "", shared.NewInvalidCredentialError()
	}
	token, err := newRefreshToken()
	if err != nil {
		return nil, "", err
	}
	s.UsedAt = &now
	return &Session{
		ID:                uuid.NewString(),
		AccountID:         s.AccountID,
		ChainID:           s.ChainID,
		RefreshHash:       HashRefreshToken(token),
		DeviceFingerprint: s.DeviceFingerprint,
		IssuedAt:          now,
		ExpiresAt:         now.Add(ttl),
	}, token, nil
}

// Live reports whether the session can still be presented.
func (s *Session) Live(now time.Time) bool {
	return s.RevokedAt == nil && s.UsedAt == nil && now.Before(s.ExpiresAt)
}

// HashRefreshToken maps the opaque token to its storage form.
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func newRefreshToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
