// Package provisioner consumes subscription-lifecycle webhooks from the
// payment gateway and drives region infrastructure: started entitlements
// create and provision a region, cancellations suspend it, a lapsed grace
// period opens the evacuation window. Deliveries are deduplicated by the
// gateway's delivery id so a replay returns the recorded outcome without a
// second transition.
package provisioner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sectorwars/gameserver/internal/application/common"
	"github.com/sectorwars/gameserver/internal/domain/account"
	"github.com/sectorwars/gameserver/internal/domain/audit"
	"github.com/sectorwars/gameserver/internal/domain/region"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/domain/subscription"
)

// Webhook event types in the gateway contract.
const (
	EventSubscriptionStarted   = "subscription-started"
	EventSubscriptionRenewed   = "subscription-renewed"
	EventSubscriptionCancelled = "subscription-cancelled"
	EventGracePassed           = "subscription-expired-grace-passed"
)

// Recorded delivery outcomes.
const (
	OutcomeProvisioned = "provisioned"
	OutcomeRenewed     = "renewed"
	OutcomeSuspended   = "suspended"
	OutcomeTerminated  = "terminated"
	OutcomeIgnored     = "ignored"
	OutcomeFailed      = "failed"
)

// planSectors maps billing plans to region sizes.
var planSectors = map[string]int{
	"standard": 300,
	"expanded": 600,
	"grand":    1000,
}

const defaultSectors = 300

func sectorsForPlan(plan string) int {
	if n, ok := planSectors[plan]; ok {
		return n
	}
	return defaultSectors
}

// Event is one parsed subscription-lifecycle notification. The transport
// layer has already verified the body signature.
type Event struct {
	DeliveryID string           `json:"delivery_id" validate:"required"`
	Provider   string           `json:"provider" validate:"required"`
	Type       string           `json:"type" validate:"required"`
	AccountID  shared.AccountID `json:"account_id"`
	ExternalID string           `json:"subscription_id" validate:"required"`
	Plan       string           `json:"plan"`
	RegionName string           `json:"region_name"`
	PeriodEnd  *time.Time       `json:"period_end,omitempty"`
}

// RegionLifecycle is the slice of the federation service the billing
// pipeline drives.
type RegionLifecycle interface {
	GetRegion(ctx context.Context, name string) (*region.Region, error)
	CreateRegion(ctx context.Context, spec region.Spec, owner shared.AccountID) (*region.Region, error)
	Provision(ctx context.Context, name string) (*region.Region, error)
	Suspend(ctx context.Context, name string, actor common.Actor) (*region.Region, error)
	Resume(ctx context.Context, name string, actor common.Actor) (*region.Region, error)
	BeginTermination(ctx context.Context, name string, actor common.Actor) (*region.Region, error)
}

// Orchestrator manages the container sets behind region shards. Calls are
// idempotent by region name.
type Orchestrator interface {
	CreateRegion(ctx context.Context, regionName, plan string) error
	SuspendRegion(ctx context.Context, regionName string) error
	RemoveRegion(ctx context.Context, regionName string) error
}

// NoopOrchestrator is local mode: no container callouts, shards live in the
// one database server.
type NoopOrchestrator struct{}

func (NoopOrchestrator) CreateRegion(context.Context, string, string) error { return nil }
func (NoopOrchestrator) SuspendRegion(context.Context, string) error        { return nil }
func (NoopOrchestrator) RemoveRegion(context.Context, string) error         { return nil }

// Service executes the provisioning pipeline.
type Service struct {
	subs       subscription.Repository
	deliveries subscription.DeliveryRepository
	lifecycle  RegionLifecycle
	orch       Orchestrator
	auditor    audit.Recorder
	clock      shared.Clock
}

// NewService wires the provisioning pipeline. A nil orchestrator runs in
// local mode.
func NewService(
	subs subscription.Repository,
	deliveries subscription.DeliveryRepository,
	lifecycle RegionLifecycle,
	orch Orchestrator,
	auditor audit.Recorder,
	clock shared.Clock,
) *Service {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	if orch == nil {
		orch = NoopOrchestrator{}
	}
	return &Service{
		subs:       subs,
		deliveries: deliveries,
		lifecycle:  lifecycle,
		orch:       orch,
		auditor:    auditor,
		clock:      clock,
	}
}

// Handle processes one webhook delivery exactly once. A replayed delivery id
// returns the recorded outcome; an error return means nothing was recorded
// and the gateway should redeliver.
func (s *Service) Handle(ctx context.Context, ev Event) (*subscription.Delivery, error) {
	if ev.DeliveryID == "" {
		return nil, shared.NewValidationError("delivery_id", "must not be empty")
	}
	if ev.Provider == "" {
		return nil, shared.NewValidationError("provider", "must not be empty")
	}
	if ev.ExternalID == "" {
		return nil, shared.NewValidationError("subscription_id", "must not be empty")
	}

	prior, err := s.deliveries.Find(ctx, ev.DeliveryID)
	if err == nil {
		return prior, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	outcome, note, err := s.apply(ctx, ev)
	if err != nil {
		return nil, err
	}

	d := &subscription.Delivery{
		DeliveryID:  ev.DeliveryID,
		Provider:    ev.Provider,
		EventType:   ev.Type,
		Outcome:     outcome,
		Note:        note,
		ProcessedAt: s.clock.Now(),
	}
	if err := s.deliveries.Record(ctx, d); err != nil {
		// Lost a race with a concurrent replay; its record stands.
		if errors.Is(err, shared.ErrConflict) {
			return s.deliveries.Find(ctx, ev.DeliveryID)
		}
		return nil, err
	}
	return d, nil
}

// Entitlements lists the actor's subscriptions.
func (s *Service) Entitlements(ctx context.Context, actor common.Actor) ([]*subscription.Subscription, error) {
	return s.subs.ListByAccount(ctx, actor.AccountID)
}

func (s *Service) apply(ctx context.Context, ev Event) (string, string, error) {
	switch ev.Type {
	case EventSubscriptionStarted:
		return s.start(ctx, ev)
	case EventSubscriptionRenewed:
		return s.renew(ctx, ev)
	case EventSubscriptionCancelled:
		return s.cancel(ctx, ev)
	case EventGracePassed:
		return s.terminate(ctx, ev)
	default:
		return "", "", shared.NewValidationError("type", "unknown event type")
	}
}

// start registers the entitlement, stands up the container set and
// provisions the region. Every step tolerates a replay after a partial
// earlier run.
func (s *Service) start(ctx context.Context, ev Event) (string, string, error) {
	if ev.AccountID.IsZero() {
		return "", "", shared.NewValidationError("account_id", "must not be empty")
	}
	if ev.RegionName == "" {
		return "", "", shared.NewValidationError("region_name", "must not be empty")
	}
	now := s.clock.Now()

	sub, err := s.subs.FindByExternalID(ctx, ev.Provider, ev.ExternalID)
	if errors.Is(err, shared.ErrNotFound) {
		sub, err = subscription.New(ev.AccountID, ev.Provider, ev.ExternalID, ev.Plan, ev.RegionName, ev.PeriodEnd, now)
		if err != nil {
			return "", "", err
		}
		if cerr := s.subs.Create(ctx, sub); cerr != nil {
			if !errors.Is(cerr, shared.ErrConflict) {
				return "", "", cerr
			}
			// Lost a race with a concurrent start; use the winner's row.
			if sub, err = s.subs.FindByExternalID(ctx, ev.Provider, ev.ExternalID); err != nil {
				return "", "", err
			}
		}
	} else if err != nil {
		return "", "", err
	}

	spec := region.Spec{
		Name:           sub.RegionName,
		SectorCount:    sectorsForPlan(sub.Plan),
		Seed:           now.UnixNano(),
		SubscriptionID: sub.ID,
	}
	if _, err := s.lifecycle.CreateRegion(ctx, spec, sub.AccountID); err != nil {
		if !errors.Is(err, shared.ErrConflict) && !errors.Is(err, shared.ErrValidation) {
			return "", "", err
		}
		existing, gerr := s.lifecycle.GetRegion(ctx, sub.RegionName)
		if gerr != nil {
			return "", "", err
		}
		if existing.OwnerAccountID != sub.AccountID {
			s.recordAudit(ctx, "subscription.region_name_taken", audit.Fields{
				ActorAccountID: sub.AccountID,
				RegionName:     sub.RegionName,
				Detail:         map[string]any{"subscription_id": sub.ExternalID},
			})
			return OutcomeFailed, "region name is already taken", nil
		}
	}

	if err := s.orch.CreateRegion(ctx, sub.RegionName, sub.Plan); err != nil {
		s.recordAudit(ctx, "region.orchestration_failed", audit.Fields{
			RegionName: sub.RegionName,
			Detail:     map[string]any{"stage": "create", "error": err.Error()},
		})
		return OutcomeFailed, "orchestrator callout failed, region left pending", nil
	}

	// Provisioning is replay-safe, so a transient failure here stays
	// unrecorded and the redelivery picks the work back up.
	if _, err := s.lifecycle.Provision(ctx, sub.RegionName); err != nil {
		return "", "", err
	}

	s.recordAudit(ctx, "subscription.started", audit.Fields{
		ActorAccountID: sub.AccountID,
		RegionName:     sub.RegionName,
		Detail:         map[string]any{"plan": sub.Plan, "subscription_id": sub.ExternalID},
	})
	return OutcomeProvisioned, fmt.Sprintf("region %s is active", sub.RegionName), nil
}

// renew extends the billing period and, when payment recovered after a
// cancellation, resumes the suspended region.
func (s *Service) renew(ctx context.Context, ev Event) (string, string, error) {
	if ev.PeriodEnd == nil {
		return "", "", shared.NewValidationError("period_end", "must be set")
	}
	sub, err := s.subs.FindByExternalID(ctx, ev.Provider, ev.ExternalID)
	if errors.Is(err, shared.ErrNotFound) {
		return OutcomeIgnored, "unknown subscription", nil
	}
	if err != nil {
		return "", "", err
	}
	now := s.clock.Now()

	if err := sub.Renew(*ev.PeriodEnd, now); err != nil {
		return OutcomeIgnored, "subscription is terminated", nil
	}
	if err := s.subs.Update(ctx, sub); err != nil {
		return "", "", err
	}
	if _, err := s.lifecycle.Resume(ctx, sub.RegionName, systemActor()); err != nil && !benign(err) {
		return "", "", err
	}
	s.recordAudit(ctx, "subscription.renewed", audit.Fields{
		ActorAccountID: sub.AccountID,
		RegionName:     sub.RegionName,
		Detail:         map[string]any{"period_end": ev.PeriodEnd.Format(time.RFC3339)},
	})
	return OutcomeRenewed, "", nil
}

// cancel marks the entitlement lapsing and suspends the region; the data
// survives until the grace period passes.
func (s *Service) cancel(ctx context.Context, ev Event) (string, string, error) {
	sub, err := s.subs.FindByExternalID(ctx, ev.Provider, ev.ExternalID)
	if errors.Is(err, shared.ErrNotFound) {
		return OutcomeIgnored, "unknown subscription", nil
	}
	if err != nil {
		return "", "", err
	}
	now := s.clock.Now()

	if err := sub.Cancel(now); err != nil {
		return OutcomeIgnored, "subscription is terminated", nil
	}
	if err := s.subs.Update(ctx, sub); err != nil {
		return "", "", err
	}
	if _, err := s.lifecycle.Suspend(ctx, sub.RegionName, systemActor()); err != nil && !benign(err) {
		return "", "", err
	}
	if err := s.orch.SuspendRegion(ctx, sub.RegionName); err != nil {
		// The authoritative suspend already happened; idle containers
		// only cost money until an operator intervenes.
		log.Ctx(ctx).Warn().Err(err).Str("region", sub.RegionName).Msg("container suspension failed")
		s.recordAudit(ctx, "region.orchestration_failed", audit.Fields{
			RegionName: sub.RegionName,
			Detail:     map[string]any{"stage": "suspend", "error": err.Error()},
		})
	}
	s.recordAudit(ctx, "subscription.cancelled", audit.Fields{
		ActorAccountID: sub.AccountID,
		RegionName:     sub.RegionName,
	})
	return OutcomeSuspended, "", nil
}

// terminate closes the entitlement and opens the evacuation window. The
// container set stays up for the evacuees; the scheduler removes it when
// the window lapses.
func (s *Service) terminate(ctx context.Context, ev Event) (string, string, error) {
	sub, err := s.subs.FindByExternalID(ctx, ev.Provider, ev.ExternalID)
	if errors.Is(err, shared.ErrNotFound) {
		return OutcomeIgnored, "unknown subscription", nil
	}
	if err != nil {
		return "", "", err
	}
	now := s.clock.Now()

	sub.Terminate(now)
	if err := s.subs.Update(ctx, sub); err != nil {
		return "", "", err
	}
	if _, err := s.lifecycle.BeginTermination(ctx, sub.RegionName, systemActor()); err != nil && !benign(err) {
		return "", "", err
	}
	s.recordAudit(ctx, "subscription.terminated", audit.Fields{
		ActorAccountID: sub.AccountID,
		RegionName:     sub.RegionName,
	})
	return OutcomeTerminated, "evacuation window opened", nil
}

// benign filters lifecycle errors a replay or out-of-order delivery
// produces: the transition already happened, or the region never finished
// provisioning.
func benign(err error) bool {
	return errors.Is(err, shared.ErrConflict) || errors.Is(err, shared.ErrNotFound)
}

// systemActor authorizes transitions the billing pipeline makes on its own
// authority.
func systemActor() common.Actor {
	return common.Actor{Role: account.RoleAdministrator}
}

func (s *Service) recordAudit(ctx context.Context, action string, f audit.Fields) {
	if s.auditor == nil {
		return
	}
	f.RequestID = common.RequestIDFromContext(ctx)
	entry, err := audit.New(audit.CategoryLifecycle, action, f, s.clock.Now())
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("action", action).Msg("audit entry rejected")
		return
	}
	if err := s.auditor.Record(ctx, entry); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("action", action).Msg("audit write failed")
	}
}
