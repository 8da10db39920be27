package account

import (
	"regexp"
	"strings"
	"time"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// Role separates the two authorization tiers. There is no middle tier;
// region governors are ordinary players whose power is scoped by membership.
type Role string

const (
	RolePlayer        Role = "player"
	RoleAdministrator Role = "administrator"
)

var handlePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,32}$`)

// ProviderBinding links an account to an external sign-in provider. The core
// stores only the provider's account id and display name.
type ProviderBinding struct {
	Provider          string
	ProviderAccountID string
	DisplayName       string
	BoundAt           time.Time
}

// Account is the authentication principal.
//
// Invariants:
//   - handle is unique (enforced by the global shard)
//   - deletion is soft: a tombstoned account keeps its audit chain
//   - at most one binding per provider
type Account struct {
	ID             shared.AccountID
	Handle         string
	Email          string
	CredentialHash string
	Role           Role
	MFAEnabled     bool
	TOTPSecret     string
	BackupCodes    []string // hashed, single-use
	Bindings       []ProviderBinding
	Disabled       bool
	DeletedAt      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Version        int
}

// New validates registration input and builds a player account. The
// credential must already be hashed by the caller.
func New(handle, email, credentialHash string, now time.Time) (*Account, error) {
	handle = strings.TrimSpace(handle)
	if !handlePattern.MatchString(handle) {
		return nil, shared.NewValidationError("handle", "must be 3-32 characters of letters, digits, '-' or '_'")
	}
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, shared.NewValidationError("email", "must be a valid address")
	}
	if credentialHash == "" {
		return nil, shared.NewValidationError("credential", "must not be empty")
	}
	return &Account{
		ID:             shared.NewAccountID(),
		Handle:         handle,
		Email:          email,
		CredentialHash: credentialHash,
		Role:           RolePlayer,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// NewFromProvider creates an account on first external-provider sign-in.
// Such accounts carry no local credential until one is set explicitly.
func NewFromProvider(handle string, binding ProviderBinding, now time.Time) (*Account, error) {
	handle = strings.TrimSpace(handle)
	if !handlePattern.MatchString(handle) {
		return nil, shared.NewValidationError("handle", "must be 3-32 characters of letters, digits, '-' or '_'")
	}
	return &Account{
		ID:        shared.NewAccountID(),
		Handle:    handle,
		Role:      RolePlayer,
		Bindings:  []ProviderBinding{binding},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// IsActive reports whether the account may authenticate.
func (a *Account) IsActive() bool { return !a.Disabled && a.DeletedAt == nil }

// EnrollTOTP stages a second-factor secret and hashed backup codes. The
// enrollment stays pending until the first successful VerifyEnrollment.
func (a *Account) EnrollTOTP(secret string, backupCodeHashes []string, now time.Time) error {
	if a.MFAEnabled {
		return shared.NewConflictError("second factor already enrolled")
	}
	if secret == "" {
		return shared.NewValidationError("secret", "must not be empty")
	}
	a.TOTPSecret = secret
	a.BackupCodes = backupCodeHashes
	a.UpdatedAt = now
	return nil
}

// ConfirmTOTP activates a staged enrollment after the owner proves they hold
// the secret.
func (a *Account) ConfirmTOTP(now time.Time) error {
	if a.TOTPSecret == "" {
		return shared.NewValidationError("second_factor", "no enrollment pending")
	}
	a.MFAEnabled = true
	a.UpdatedAt = now
	return nil
}

// ConsumeBackupCode removes a matching backup-code hash. Returns false when
// no code matches; codes are single-use.
func (a *Account) ConsumeBackupCode(codeHash string, now time.Time) bool {
	for i, h := range a.BackupCodes {
		if h == codeHash {
			a.BackupCodes = append(a.BackupCodes[:i], a.BackupCodes[i+1:]...)
			a.UpdatedAt = now
			return true
		}
	}
	return false
}

// BindProvider attaches an external provider identity, one per provider.
func (a *Account) BindProvider(b ProviderBinding, now time.Time) error {
	for _, existing := range a.Bindings {
		if existing.Provider == b.Provider {
			return shared.NewConflictError("provider already bound")
		}
	}
	a.Bindings = append(a.Bindings, b)
	a.UpdatedAt = now
	return nil
}

// ChangeCredential swaps the stored hash. Session revocation is the caller's
// responsibility.
func (a *Account) ChangeCredential(newHash string, now time.Time) error {
	if newHash == "" {
		return shared.NewValidationError("credential", "must not be empty")
	}
	a.CredentialHash = newHash
	a.UpdatedAt = now
	return nil
}

// Suspend disables the account. Active refresh chains are cut by the
// caller; access tokens age out on their own.
func (a *Account) Suspend(now time.Time) error {
	if a.DeletedAt != nil {
		return shared.NewConflictError("account is deleted")
	}
	if a.Disabled {
		return shared.NewConflictError("account is already suspended")
	}
	a.Disabled = true
	a.UpdatedAt = now
	return nil
}

// Reinstate lifts a suspension.
func (a *Account) Reinstate(now time.Time) error {
	if a.DeletedAt != nil {
		return shared.NewConflictError("account is deleted")
	}
	if !a.Disabled {
		return shared.NewConflictError("account is not suspended")
	}
	a.Disabled = false
	a.UpdatedAt = now
	return nil
}

// Tombstone soft-deletes the account, preserving audit references.
func (a *Account) Tombstone(now time.Time) {
	a.DeletedAt = &now
	a.Disabled = true
	a.UpdatedAt = now
}
