// Package bounty models posted rewards on player heads. The posted amount
// is escrowed at creation; a combat victory over the target claims every
// open bounty on them automatically, and cancellation or expiry refunds the
// poster.
package bounty

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// Posting bounds.
const (
	MinAmount  int64 = 100
	MaxAmount  int64 = 10_000_000
	DefaultTTL       = 30 * 24 * time.Hour
)

// Status is the bounty lifecycle.
type Status string

const (
	StatusOpen      Status = "open"
	StatusClaimed   Status = "claimed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Bounty is one escrowed reward on a target player.
type Bounty struct {
	ID        string
	RegionID  shared.RegionID
	PostedBy  shared.PlayerID
	TargetID  shared.PlayerID
	Amount    shared.Credits
	Reason    string
	Status    Status
	ClaimedBy shared.PlayerID
	ClaimedAt *time.Time
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int
}

// Post validates and opens a bounty. The caller escrows the amount from the
// poster in the same transaction.
func Post(regionID shared.RegionID, postedBy, target shared.PlayerID, amount int64, reason string, now time.Time) (*Bounty, error) {
	if postedBy == target {
		return nil, shared.NewValidationError("target_id", "cannot post a bounty on yourself")
	}
	if target.IsZero() {
		return nil, shared.NewValidationError("target_id", "must not be empty")
	}
	if amount < MinAmount || amount > MaxAmount {
		return nil, shared.NewValidationErrorf("amount must be in [%d, %d]", MinAmount, MaxAmount)
	}
	reason = strings.TrimSpace(reason)
	if len(reason) > 500 {
		return nil, shared.NewValidationError("reason", "cannot exceed 500 characters")
	}
	return &Bounty{
		ID:        uuid.NewString(),
		RegionID:  regionID,
		PostedBy:  postedBy,
		TargetID:  target,
		Amount:    shared.Credits(amount),
		Reason:    reason,
		Status:    StatusOpen,
		ExpiresAt: now.Add(DefaultTTL),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Claim pays the escrow to the hunter. The caller credits the returned
// amount in the same transaction.
func (b *Bounty) Claim(hunter shared.PlayerID, now time.Time) (shared.Credits, error) {
	if b.Status != StatusOpen {
		return 0, shared.NewConflictError("bounty is not open")
	}
	if hunter == b.TargetID {
		return 0, shared.NewValidationError("hunter", "the target cannot claim their own bounty")
	}
	if now.After(b.ExpiresAt) {
		b.Status = StatusExpired
		b.UpdatedAt = now
		return 0, shared.NewConflictError("bounty has expired")
	}
	b.Status = StatusClaimed
	b.ClaimedBy = hunter
	t := now
	b.ClaimedAt = &t
	b.UpdatedAt = now
	return b.Amount, nil
}

// Cancel withdraws an open bounty. The caller refunds the returned escrow
// to the poster.
func (b *Bounty) Cancel(by shared.PlayerID, now time.Time) (shared.Credits, error) {
	if b.Status != StatusOpen {
		return 0, shared.NewConflictError("bounty is not open")
	}
	if by != b.PostedBy {
		return 0, shared.NewForbiddenError(shared.CodePermissions, "only the poster can cancel a bounty")
	}
	b.Status = StatusCancelled
	b.UpdatedAt = now
	return b.Amount, nil
}

// Expire ages out an open bounty, returning the escrow to refund. Zero when
// nothing changed.
func (b *Bounty) Expire(now time.Time) shared.Credits {
	if b.Status != StatusOpen || !now.After(b.ExpiresAt) {
		return 0
	}
	b.Status = StatusExpired
	b.UpdatedAt = now
	return b.Amount
}
