// Package treaty models diplomatic agreements between region pairs. A
// treaty activates only when the governing authority of each region has
// signed: the governor directly under autocracy, or a passed policy under
// democracy. Active treaties modify travel fares, trade bonuses and combat
// legality between the pair.
package treaty

import (
	"time"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// Type names the agreement template.
type Type string

const (
	TypeTradeAgreement Type = "trade-agreement"
	TypeNonAggression  Type = "non-aggression"
	TypeMutualDefense  Type = "mutual-defense"
	TypeOpenBorders    Type = "open-borders"
)

// ValidType reports whether the template exists.
func ValidType(t Type) bool {
	switch t {
	case TypeTradeAgreement, TypeNonAggression, TypeMutualDefense, TypeOpenBorders:
		return true
	}
	return false
}

// Status is the treaty lifecycle. Proposed treaties await the second
// signature; the remaining states match the diplomatic record.
type Status string

const (
	StatusProposed   Status = "proposed"
	StatusActive     Status = "active"
	StatusSuspended  Status = "suspended"
	StatusTerminated Status = "terminated"
	StatusExpired    Status = "expired"
)

// Terms is the effect set of an active treaty.
type Terms struct {
	// TravelCostFactor scales gate fares between the pair. 1 = unchanged.
	TravelCostFactor float64 `json:"travel_cost_factor"`
	// TradeBonusFactor scales regional trade bonuses for traders from the
	// partner region.
	TradeBonusFactor float64 `json:"trade_bonus_factor"`
	// CombatProhibited outlaws combat between the regions' members; patrol
	// response treats violations as hostile acts.
	CombatProhibited bool `json:"combat_prohibited"`
	// Notes carries free-form clauses that have no mechanical effect.
	Notes string `json:"notes,omitempty"`
}

func (t Terms) validate() error {
	if t.TravelCostFactor < 0.25 || t.TravelCostFactor > 2.0 {
		return shared.NewValidationError("travel_cost_factor", "must be in [0.25, 2.0]")
	}
	if t.TradeBonusFactor < 0.5 || t.TradeBonusFactor > 2.0 {
		return shared.NewValidationError("trade_bonus_factor", "must be in [0.5, 2.0]")
	}
	return nil
}

// DefaultTerms is the neutral effect set templates start from.
func DefaultTerms() Terms {
	return Terms{TravelCostFactor: 1.0, TradeBonusFactor: 1.0}
}

// Treaty is a directed pair (proposing region, partner region) bound by
// typed terms.
type Treaty struct {
	ID          shared.TreatyID
	RegionA     shared.RegionID // proposer; signs at proposal time
	RegionB     shared.RegionID // partner; countersigns
	Type        Type
	Terms       Terms
	Status      Status
	SignatoryA  shared.PlayerID
	SignatoryB  shared.PlayerID
	SignedAtA   time.Time
	SignedAtB   *time.Time
	ExpiresAt   *time.Time
	TerminatedBy shared.RegionID
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Version     int
}

// Propose opens a treaty signed by the proposing region's authority. The
// partner's countersignature activates it.
func Propose(regionA, regionB shared.RegionID, typ Type, terms Terms, signatoryA shared.PlayerID, expiresAt *time.Time, now time.Time) (*Treaty, error) {
	if regionA == regionB {
		return nil, shared.NewValidationError("region_b", "a region cannot sign a treaty with itself")
	}
	if !ValidType(typ) {
		return nil, shared.NewValidationError("type", "unknown treaty type")
	}
	if err := terms.validate(); err != nil {
		return nil, err
	}
	if expiresAt != nil && !expiresAt.After(now) {
		return nil, shared.NewValidationError("expires_at", "must be in the future")
	}
	return &Treaty{
		ID:         shared.NewTreatyID(),
		RegionA:    regionA,
		RegionB:    regionB,
		Type:       typ,
		Terms:      terms,
		Status:     StatusProposed,
		SignatoryA: signatoryA,
		SignedAtA:  now,
		ExpiresAt:  expiresAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Countersign records the partner region's signature and activates the
// treaty.
func (t *Treaty) Countersign(signatoryB shared.PlayerID, now time.Time) error {
	if t.Status != StatusProposed {
		return shared.NewConflictError("treaty is not awaiting countersignature")
	}
	if t.ExpiresAt != nil && now.After(*t.ExpiresAt) {
		t.Status = StatusExpired
		t.UpdatedAt = now
		return shared.NewConflictError("treaty proposal has expired")
	}
	t.SignatoryB = signatoryB
	ts := now
	t.SignedAtB = &ts
	t.Status = StatusActive
	t.UpdatedAt = now
	return nil
}

// Suspend pauses an active treaty's effects without ending it.
func (t *Treaty) Suspend(now time.Time) error {
	if t.Status != StatusActive {
		return shared.NewConflictError("only active treaties can be suspended")
	}
	t.Status = StatusSuspended
	t.UpdatedAt = now
	return nil
}

// Resume reactivates a suspended treaty.
func (t *Treaty) Resume(now time.Time) error {
	if t.Status != StatusSuspended {
		return shared.NewConflictError("only suspended treaties can be resumed")
	}
	if t.ExpiresAt != nil && now.After(*t.ExpiresAt) {
		t.Status = StatusExpired
		t.UpdatedAt = now
		return shared.NewConflictError("treaty has expired")
	}
	t.Status = StatusActive
	t.UpdatedAt = now
	return nil
}

// Terminate ends the treaty permanently. Either region may terminate.
func (t *Treaty) Terminate(by shared.RegionID, now time.Time) error {
	switch t.Status {
	case StatusTerminated, StatusExpired:
		return shared.NewConflictError("treaty is already ended")
	}
	if by != t.RegionA && by != t.RegionB {
		return shared.NewValidationError("region", "not a party to this treaty")
	}
	t.Status = StatusTerminated
	t.TerminatedBy = by
	t.UpdatedAt = now
	return nil
}

// Expire marks a treaty past its end date. Idempotent.
func (t *Treaty) Expire(now time.Time) {
	if t.ExpiresAt == nil || !now.After(*t.ExpiresAt) {
		return
	}
	switch t.Status {
	case StatusProposed, StatusActive, StatusSuspended:
		t.Status = StatusExpired
		t.UpdatedAt = now
	}
}

// InEffect reports whether the terms currently apply between the pair.
func (t *Treaty) InEffect(now time.Time) bool {
	if t.Status != StatusActive {
		return false
	}
	return t.ExpiresAt == nil || now.Before(*t.ExpiresAt)
}

// Covers reports whether the treaty binds the given region pair, in either
// direction.
func (t *Treaty) Covers(a, b shared.RegionID) bool {
	return (t.RegionA == a && t.RegionB == b) || (t.RegionA == b && t.RegionB == a)
}
