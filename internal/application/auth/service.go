package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sectorwars/gameserver/internal/application/common"
	"github.com/sectorwars/gameserver/internal/domain/account"
	"github.com/sectorwars/gameserver/internal/domain/audit"
	"github.com/sectorwars/gameserver/internal/domain/player"
	"github.com/sectorwars/gameserver/internal/domain/region"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/infrastructure/config"
)

// Service implements registration, login, token rotation and second-factor
// management. Every decision it takes leaves an audit entry.
type Service struct {
	accounts  account.Repository
	sessions  account.SessionRepository
	players   player.Repository
	auditor   audit.Recorder
	tokens    *TokenIssuer
	exchanger ProviderExchanger
	cfg       *config.AuthConfig
	clock     shared.Clock
	lockouts  *lockoutTracker
	decoyHash string
}

// NewService wires the identity use-cases.
func NewService(
	accounts account.Repository,
	sessions account.SessionRepository,
	players player.Repository,
	auditor audit.Recorder,
	tokens *TokenIssuer,
	exchanger ProviderExchanger,
	cfg *config.AuthConfig,
	clock shared.Clock,
) *Service {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	// Verifying against this hash when the handle does not exist keeps the
	// failure path as slow as a real credential check.
	decoy, _ := account.HashCredential("sectorwars-decoy-credential")
	return &Service{
		accounts:  accounts,
		sessions:  sessions,
		players:   players,
		auditor:   auditor,
		tokens:    tokens,
		exchanger: exchanger,
		cfg:       cfg,
		clock:     clock,
		lockouts:  newLockoutTracker(cfg.LockoutThreshold, cfg.LockoutWindow, cfg.LockoutDuration),
		decoyHash: decoy,
	}
}

// TokenPair is a freshly minted access/refresh pair. The refresh token is
// plaintext here and nowhere else.
type TokenPair struct {
	AccessToken     string
	AccessExpiresAt time.Time
	RefreshToken    string
	SessionID       string
}

// LoginResult is the outcome of a credential or provider sign-in. Either
// Tokens is set, or Challenge carries the token for the pending TOTP step.
type LoginResult struct {
	Tokens    *TokenPair
	Challenge string
	Account   *account.Account
	Player    *player.Player
}

// RegisterInput is the registration payload after transport validation.
type RegisterInput struct {
	Handle      string
	Email       string
	Credential  string
	PlayerName  string
	Fingerprint string
	IP          string
}

// Register creates an account plus its player persona homed in the Central
// Nexus, and signs the new account in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*LoginResult, error) {
	now := s.clock.Now()

	hash, err := account.HashCredential(in.Credential)
	if err != nil {
		return nil, err
	}
	acct, err := account.New(in.Handle, in.Email, hash, now)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.PlayerName)
	if name == "" {
		name = acct.Handle
	}
	persona, err := player.New(acct.ID, name, region.NexusName, now)
	if err != nil {
		return nil, err
	}

	if err := s.accounts.Create(ctx, acct); err != nil {
		return nil, err
	}
	if err := s.players.Create(ctx, persona); err != nil {
		// The persona name lost a uniqueness race; take the account back out
		// so the handle can be retried.
		acct.Tombstone(now)
		if uerr := s.accounts.Update(ctx, acct); uerr != nil {
			common.LoggerFromContext(ctx).Error().Err(uerr).
				Str("account_id", string(acct.ID)).
				Msg("orphaned account after persona create failure")
		}
		return nil, err
	}

	pair, err := s.openSession(ctx, acct, in.Fingerprint, now)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "account.registered", audit.Fields{
		ActorAccountID: acct.ID,
		ActorIP:        in.IP,
		Subject:        acct.Handle,
		Detail:         map[string]any{"player_id": string(persona.ID)},
	})
	return &LoginResult{Tokens: pair, Account: acct, Player: persona}, nil
}

// Authenticate checks a handle/credential pair. Accounts with a second factor
// enrolled receive a challenge token instead of a session.
func (s *Service) Authenticate(ctx context.Context, handle, credential, fingerprint, ip string) (*LoginResult, error) {
	now := s.clock.Now()
	handle = strings.TrimSpace(handle)

	if wait := s.lockouts.lockedFor(handle, now); wait > 0 {
		return nil, shared.NewRateLimitedError(strconv.Itoa(int(wait.Seconds()) + 1))
	}

	acct, err := s.accounts.FindByHandle(ctx, handle)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			account.VerifyCredential(s.decoyHash, credential)
			s.noteLoginFailure(ctx, handle, ip, now)
			return nil, shared.NewInvalidCredentialError()
		}
		return nil, err
	}
	if !acct.IsActive() {
		s.recordAudit(ctx, "login.rejected", audit.Fields{
			ActorAccountID: acct.ID, ActorIP: ip, Subject: handle,
			Detail: map[string]any{"reason": "account_disabled"},
		})
		return nil, shared.NewAccountDisabledError()
	}
	if acct.CredentialHash == "" || !account.VerifyCredential(acct.CredentialHash, credential) {
		s.noteLoginFailure(ctx, handle, ip, now)
		return nil, shared.NewInvalidCredentialError()
	}
	s.lockouts.clear(handle)

	if acct.MFAEnabled {
		challenge, _, err := s.tokens.IssueChallenge(acct.ID)
		if err != nil {
			return nil, err
		}
		s.recordAudit(ctx, "login.challenge_issued", audit.Fields{
			ActorAccountID: acct.ID, ActorIP: ip, Subject: handle,
		})
		return &LoginResult{Challenge: challenge, Account: acct}, nil
	}
	return s.completeLogin(ctx, acct, fingerprint, ip, now, map[string]any{"method": "credential"})
}

// CompleteChallenge finishes a login that required a second factor. The code
// may be a TOTP code or one of the single-use backup codes.
func (s *Service) CompleteChallenge(ctx context.Context, challengeToken, code, fingerprint, ip string) (*LoginResult, error) {
	now := s.clock.Now()

	claims, err := s.tokens.Verify(challengeToken, ScopeMFAChallenge)
	if err != nil {
		return nil, err
	}
	acct, err := s.accounts.FindByID(ctx, shared.AccountID(claims.Subject))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewUnauthorizedError()
		}
		return nil, err
	}
	if !acct.IsActive() {
		return nil, shared.NewAccountDisabledError()
	}

	method := "totp"
	if !validateTOTP(code, acct.TOTPSecret, now) {
		if !acct.ConsumeBackupCode(account.HashBackupCode(code), now) {
			s.recordAudit(ctx, "login.second_factor_failed", audit.Fields{
				ActorAccountID: acct.ID, ActorIP: ip, Subject: acct.Handle,
			})
			return nil, shared.NewSecondFactorInvalidError()
		}
		method = "backup_code"
		if err := s.accounts.Update(ctx, acct); err != nil {
			return nil, fmt.Errorf("burn backup code: %w", err)
		}
	}
	return s.completeLogin(ctx, acct, fingerprint, ip, now, map[string]any{"method": method})
}

// Refresh rotates a refresh token. Presenting an already-used link revokes
// the whole chain and fails the call.
func (s *Service) Refresh(ctx context.Context, refreshToken, fingerprint, ip string) (*TokenPair, error) {
	now := s.clock.Now()

	sess, err := s.sessions.FindByRefreshHash(ctx, account.HashRefreshToken(refreshToken))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewInvalidCredentialError()
		}
		return nil, err
	}
	if sess.UsedAt != nil {
		s.revokeOnTheft(ctx, sess, ip, "refresh_token_reuse")
		return nil, shared.NewInvalidCredentialError()
	}
	if sess.RevokedAt != nil || now.After(sess.ExpiresAt) {
		return nil, shared.NewInvalidCredentialError()
	}
	if sess.DeviceFingerprint != fingerprint {
		s.revokeOnTheft(ctx, sess, ip, "fingerprint_mismatch")
		return nil, shared.NewInvalidCredentialError()
	}

	// Consume is atomic; losing the race means a concurrent presenter holds
	// the same token, which is indistinguishable from theft.
	if err := s.sessions.Consume(ctx, sess.ID, now); err != nil {
		if errors.Is(err, shared.ErrConflict) {
			s.revokeOnTheft(ctx, sess, ip, "refresh_token_reuse")
			return nil, shared.NewInvalidCredentialError()
		}
		return nil, err
	}

	next, plaintext, err := sess.Rotate(s.cfg.RefreshTokenTTL, now)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Create(ctx, next); err != nil {
		return nil, err
	}
	acct, err := s.accounts.FindByID(ctx, sess.AccountID)
	if err != nil {
		return nil, err
	}
	if !acct.IsActive() {
		return nil, shared.NewAccountDisabledError()
	}
	access, expires, err := s.tokens.IssueAccess(acct.ID, acct.Role)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "token.refreshed", audit.Fields{
		ActorAccountID: acct.ID, ActorIP: ip,
		Detail: map[string]any{"chain_id": sess.ChainID},
	})
	return &TokenPair{
		AccessToken:     access,
		AccessExpiresAt: expires,
		RefreshToken:    plaintext,
		SessionID:       next.ID,
	}, nil
}

// Logout revokes the chain behind a refresh token. Unknown tokens succeed so
// the endpoint reveals nothing about token validity.
func (s *Service) Logout(ctx context.Context, refreshToken, ip string) error {
	sess, err := s.sessions.FindByRefreshHash(ctx, account.HashRefreshToken(refreshToken))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		return err
	}
	if err := s.sessions.RevokeChain(ctx, sess.ChainID, s.clock.Now()); err != nil {
		return err
	}
	s.recordAudit(ctx, "logout", audit.Fields{
		ActorAccountID: sess.AccountID, ActorIP: ip,
		Detail: map[string]any{"chain_id": sess.ChainID},
	})
	return nil
}

// ListSessions returns the account's live refresh chains.
func (s *Service) ListSessions(ctx context.Context, accountID shared.AccountID) ([]*account.Session, error) {
	return s.sessions.ListActive(ctx, accountID, s.clock.Now())
}

// RevokeSession ends one of the account's own sessions by id.
func (s *Service) RevokeSession(ctx context.Context, accountID shared.AccountID, sessionID, ip string) error {
	live, err := s.sessions.ListActive(ctx, accountID, s.clock.Now())
	if err != nil {
		return err
	}
	for _, sess := range live {
		if sess.ID == sessionID {
			if err := s.sessions.RevokeChain(ctx, sess.ChainID, s.clock.Now()); err != nil {
				return err
			}
			s.recordAudit(ctx, "session.revoked", audit.Fields{
				ActorAccountID: accountID, ActorIP: ip,
				Detail: map[string]any{"session_id": sessionID},
			})
			return nil
		}
	}
	return shared.NewNotFoundError("session")
}

// Enrollment is handed to the owner exactly once; the server keeps only
// hashes of the backup codes.
type Enrollment struct {
	Secret      string
	URI         string
	BackupCodes []string
}

// EnrollTOTP stages a second factor. It stays inactive until the owner
// confirms a code via VerifyEnrollment.
func (s *Service) EnrollTOTP(ctx context.Context, accountID shared.AccountID, ip string) (*Enrollment, error) {
	now := s.clock.Now()
	acct, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	secret, uri, err := generateTOTPKey(s.cfg.TOTPIssuer, acct.Handle)
	if err != nil {
		return nil, err
	}
	plain, hashes, err := generateBackupCodes()
	if err != nil {
		return nil, err
	}
	if err := acct.EnrollTOTP(secret, hashes, now); err != nil {
		return nil, err
	}
	if err := s.accounts.Update(ctx, acct); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "mfa.enrollment_staged", audit.Fields{
		ActorAccountID: accountID, ActorIP: ip, Subject: acct.Handle,
	})
	return &Enrollment{Secret: secret, URI: uri, BackupCodes: plain}, nil
}

// VerifyEnrollment activates a staged second factor once the owner proves
// they hold the secret.
func (s *Service) VerifyEnrollment(ctx context.Context, accountID shared.AccountID, code, ip string) error {
	now := s.clock.Now()
	acct, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return err
	}
	if !validateTOTP(code, acct.TOTPSecret, now) {
		return shared.NewSecondFactorInvalidError()
	}
	if err := acct.ConfirmTOTP(now); err != nil {
		return err
	}
	if err := s.accounts.Update(ctx, acct); err != nil {
		return err
	}
	s.recordAudit(ctx, "mfa.enabled", audit.Fields{
		ActorAccountID: accountID, ActorIP: ip, Subject: acct.Handle,
	})
	return nil
}

// ChangeCredential swaps the password and revokes every live session.
func (s *Service) ChangeCredential(ctx context.Context, accountID shared.AccountID, current, next, ip string) error {
	now := s.clock.Now()
	acct, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return err
	}
	if acct.CredentialHash != "" && !account.VerifyCredential(acct.CredentialHash, current) {
		s.recordAudit(ctx, "credential.change_rejected", audit.Fields{
			ActorAccountID: accountID, ActorIP: ip, Subject: acct.Handle,
		})
		return shared.NewInvalidCredentialError()
	}
	hash, err := account.HashCredential(next)
	if err != nil {
		return err
	}
	if err := acct.ChangeCredential(hash, now); err != nil {
		return err
	}
	if err := s.accounts.Update(ctx, acct); err != nil {
		return err
	}
	if err := s.sessions.RevokeAccount(ctx, accountID, now); err != nil {
		return err
	}
	s.recordAudit(ctx, "credential.changed", audit.Fields{
		ActorAccountID: accountID, ActorIP: ip, Subject: acct.Handle,
	})
	return nil
}

// OAuthURL builds the consent-screen redirect for an enabled provider.
func (s *Service) OAuthURL(provider, state string) (string, error) {
	if _, ok := s.cfg.Provider(provider); !ok {
		return "", shared.NewValidationError("provider", "not configured")
	}
	return s.exchanger.AuthURL(provider, state)
}

// OAuthCallback exchanges the authorization code and signs the asserted
// identity in, creating account and persona on first contact.
func (s *Service) OAuthCallback(ctx context.Context, provider, code, fingerprint, ip string) (*LoginResult, error) {
	now := s.clock.Now()
	if _, ok := s.cfg.Provider(provider); !ok {
		return nil, shared.NewValidationError("provider", "not configured")
	}
	identity, err := s.exchanger.Exchange(ctx, provider, code)
	if err != nil {
		return nil, err
	}

	acct, err := s.accounts.FindByProvider(ctx, provider, identity.ProviderAccountID)
	switch {
	case err == nil:
	case errors.Is(err, shared.ErrNotFound):
		acct, err = s.createFromProvider(ctx, identity, ip, now)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	if !acct.IsActive() {
		return nil, shared.NewAccountDisabledError()
	}
	if acct.MFAEnabled {
		challenge, _, err := s.tokens.IssueChallenge(acct.ID)
		if err != nil {
			return nil, err
		}
		s.recordAudit(ctx, "login.challenge_issued", audit.Fields{
			ActorAccountID: acct.ID, ActorIP: ip, Subject: acct.Handle,
			Detail: map[string]any{"provider": provider},
		})
		return &LoginResult{Challenge: challenge, Account: acct}, nil
	}
	return s.completeLogin(ctx, acct, fingerprint, ip, now, map[string]any{"method": "oauth", "provider": provider})
}

// createFromProvider provisions an account and persona on first external
// sign-in, deriving a unique handle from the provider display name.
func (s *Service) createFromProvider(ctx context.Context, identity *ProviderIdentity, ip string, now time.Time) (*account.Account, error) {
	binding := account.ProviderBinding{
		Provider:          identity.Provider,
		ProviderAccountID: identity.ProviderAccountID,
		DisplayName:       identity.DisplayName,
		BoundAt:           now,
	}

	base := sanitizeHandle(identity.DisplayName)
	if base == "" {
		base = identity.Provider + "-pilot"
	}
	var acct *account.Account
	for attempt := 0; attempt < 5; attempt++ {
		handle := base
		if attempt > 0 {
			handle = fmt.Sprintf("%s-%d", base, attempt+1)
		}
		candidate, err := account.NewFromProvider(handle, binding, now)
		if err != nil {
			return nil, err
		}
		candidate.Email = identity.Email
		err = s.accounts.Create(ctx, candidate)
		if err == nil {
			acct = candidate
			break
		}
		if !errors.Is(err, shared.ErrConflict) {
			return nil, err
		}
	}
	if acct == nil {
		return nil, shared.NewConflictError("could not derive a free handle")
	}

	persona, err := player.New(acct.ID, acct.Handle, region.NexusName, now)
	if err != nil {
		return nil, err
	}
	if err := s.players.Create(ctx, persona); err != nil {
		acct.Tombstone(now)
		if uerr := s.accounts.Update(ctx, acct); uerr != nil {
			common.LoggerFromContext(ctx).Error().Err(uerr).
				Str("account_id", string(acct.ID)).
				Msg("orphaned account after persona create failure")
		}
		return nil, err
	}
	s.recordAudit(ctx, "account.registered", audit.Fields{
		ActorAccountID: acct.ID, ActorIP: ip, Subject: acct.Handle,
		Detail: map[string]any{"provider": identity.Provider, "player_id": string(persona.ID)},
	})
	return acct, nil
}

// completeLogin opens the session chain and gathers the persona.
func (s *Service) completeLogin(ctx context.Context, acct *account.Account, fingerprint, ip string, now time.Time, detail map[string]any) (*LoginResult, error) {
	pair, err := s.openSession(ctx, acct, fingerprint, now)
	if err != nil {
		return nil, err
	}
	persona, err := s.players.FindByAccount(ctx, acct.ID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	s.recordAudit(ctx, "login.succeeded", audit.Fields{
		ActorAccountID: acct.ID, ActorIP: ip, Subject: acct.Handle, Detail: detail,
	})
	return &LoginResult{Tokens: pair, Account: acct, Player: persona}, nil
}

func (s *Service) openSession(ctx context.Context, acct *account.Account, fingerprint string, now time.Time) (*TokenPair, error) {
	sess, plaintext, err := account.NewSession(acct.ID, fingerprint, s.cfg.RefreshTokenTTL, now)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	access, expires, err := s.tokens.IssueAccess(acct.ID, acct.Role)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:     access,
		AccessExpiresAt: expires,
		RefreshToken:    plaintext,
		SessionID:       sess.ID,
	}, nil
}

// noteLoginFailure records the strike and audits, flagging the transition
// into lockout.
func (s *Service) noteLoginFailure(ctx context.Context, handle, ip string, now time.Time) {
	locked := s.lockouts.recordFailure(handle, now)
	detail := map[string]any{}
	if locked {
		detail["locked_out"] = true
	}
	s.recordAudit(ctx, "login.failed", audit.Fields{
		ActorIP: ip, Subject: handle, Detail: detail,
	})
}

// revokeOnTheft kills a whole chain in response to a theft signal.
func (s *Service) revokeOnTheft(ctx context.Context, sess *account.Session, ip, reason string) {
	if err := s.sessions.RevokeChain(ctx, sess.ChainID, s.clock.Now()); err != nil {
		common.LoggerFromContext(ctx).Error().Err(err).
			Str("chain_id", sess.ChainID).
			Msg("chain revocation failed")
	}
	s.recordAudit(ctx, "token.chain_revoked", audit.Fields{
		ActorAccountID: sess.AccountID, ActorIP: ip,
		Detail: map[string]any{"reason": reason, "chain_id": sess.ChainID},
	})
}

// recordAudit writes an auth-category entry; failures are logged, never
// propagated into the caller's flow.
func (s *Service) recordAudit(ctx context.Context, action string, f audit.Fields) {
	f.RequestID = common.RequestIDFromContext(ctx)
	entry, err := audit.New(audit.CategoryAuth, action, f, s.clock.Now())
	if err != nil {
		common.LoggerFromContext(ctx).Error().Err(err).Str("action", action).Msg("audit entry rejected")
		return
	}
	if err := s.auditor.Record(ctx, entry); err != nil {
		common.LoggerFromContext(ctx).Error().Err(err).Str("action", action).Msg("audit write failed")
	}
}

// sanitizeHandle squeezes a display name into the handle alphabet.
func sanitizeHandle(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('-')
		}
	}
	h := b.String()
	if len(h) > 32 {
		h = h[:32]
	}
	if len(h) < 3 {
		return ""
	}
	return h
}
