// Package subscription links billing state, reported by the payment gateway
// through webhooks, to region entitlements. The core never talks to the
// gateway directly; it only consumes signed lifecycle events.
package subscription

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// Status is the billing lifecycle as the core tracks it.
type Status string

const (
	StatusActive     Status = "active"
	StatusCancelled  Status = "cancelled"
	StatusTerminated Status = "terminated"
)

// Subscription is one paid region entitlement. ExternalID is the gateway's
// identifier and is unique; replayed webhooks resolve to the same row.
type Subscription struct {
	ID               string
	AccountID        shared.AccountID
	Provider         string
	ExternalID       string
	Plan             string
	Status           Status
	RegionName       string
	CurrentPeriodEnd *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Version          int
}

// New registers an entitlement reported by a subscription-started event.
func New(accountID shared.AccountID, provider, externalID, plan, regionName string, periodEnd *time.Time, now time.Time) (*Subscription, error) {
	if accountID.IsZero() {
		return nil, shared.NewValidationError("account_id", "must not be empty")
	}
	provider = strings.TrimSpace(provider)
	if provider == "" {
		return nil, shared.NewValidationError("provider", "must not be empty")
	}
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, shared.NewValidationError("external_id", "must not be empty")
	}
	if regionName == "" {
		return nil, shared.NewValidationError("region_name", "must not be empty")
	}
	return &Subscription{
		ID:               uuid.NewString(),
		AccountID:        accountID,
		Provider:         provider,
		ExternalID:       externalID,
		Plan:             plan,
		Status:           StatusActive,
		RegionName:       regionName,
		CurrentPeriodEnd: periodEnd,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// Renew extends the billing period of an active or cancelled entitlement.
// Renewal of a cancelled subscription reinstates it.
func (s *Subscription) Renew(periodEnd time.Time, now time.Time) error {
	if s.Status == StatusTerminated {
		return shared.NewConflictError("subscription is terminated")
	}
	s.Status = StatusActive
	t := periodEnd
	s.CurrentPeriodEnd = &t
	s.UpdatedAt = now
	return nil
}

// Cancel marks the entitlement lapsing at period end. The region suspends
// immediately; termination waits for the grace period.
func (s *Subscription) Cancel(now time.Time) error {
	if s.Status == StatusTerminated {
		return shared.NewConflictError("subscription is terminated")
	}
	if s.Status == StatusCancelled {
		return nil
	}
	s.Status = StatusCancelled
	s.UpdatedAt = now
	return nil
}

// Terminate closes the entitlement for good. Idempotent.
func (s *Subscription) Terminate(now time.Time) {
	if s.Status == StatusTerminated {
		return
	}
	s.Status = StatusTerminated
	s.UpdatedAt = now
}

// Delivery is the processed-webhook record. Its id is the dedupe key: a
// replayed delivery returns the recorded outcome instead of re-running the
// transition.
type Delivery struct {
	DeliveryID  string
	Provider    string
	EventType   string
	Outcome     string
	Note        string
	ProcessedAt time.Time
}
