package provisioner_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sectorwars/gameserver/internal/adapters/persistence"
	"github.com/sectorwars/gameserver/internal/application/common"
	"github.com/sectorwars/gameserver/internal/application/federation"
	"github.com/sectorwars/gameserver/internal/application/provisioner"
	"github.com/sectorwars/gameserver/internal/domain/audit"
	"github.com/sectorwars/gameserver/internal/domain/region"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/domain/subscription"
	"github.com/sectorwars/gameserver/internal/infrastructure/config"
	"github.com/sectorwars/gameserver/test/helpers"
)

// testShards resolves each region to its own in-memory shard. Regions listed
// in refuse simulate an unreachable shard.
type testShards struct {
	t  *testing.T
	mu sync.Mutex

	gateways map[string]*common.RegionGateways
	refuse   map[string]bool
}

func newTestShards(t *testing.T) *testShards {
	return &testShards{t: t, gateways: map[string]*common.RegionGateways{}, refuse: map[string]bool{}}
}

func (s *testShards) Region(_ context.Context, name string) (*common.RegionGateways, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refuse[name] {
		return nil, errors.New("shard offline")
	}
	if gw, ok := s.gateways[name]; ok {
		return gw, nil
	}
	gw := persistence.NewRegionGateways(helpers.NewRegionTestDB(s.t))
	s.gateways[name] = gw
	return gw, nil
}

func (s *testShards) Evict(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.gateways, name)
	return nil
}

type eventSink struct {
	mu     sync.Mutex
	events []shared.Event
}

func (s *eventSink) Publish(_ context.Context, events ...shared.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

// stubOrchestrator records container callouts and can be told to fail them.
type stubOrchestrator struct {
	mu         sync.Mutex
	created    []string
	suspended  []string
	removed    []string
	failCreate error
}

func (o *stubOrchestrator) CreateRegion(_ context.Context, name, plan string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failCreate != nil {
		return o.failCreate
	}
	o.created = append(o.created, name+":"+plan)
	return nil
}

func (o *stubOrchestrator) SuspendRegion(_ context.Context, name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.suspended = append(o.suspended, name)
	return nil
}

func (o *stubOrchestrator) RemoveRegion(_ context.Context, name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.removed = append(o.removed, name)
	return nil
}

type fixture struct {
	svc        *provisioner.Service
	clock      *shared.MockClock
	shards     *testShards
	orch       *stubOrchestrator
	subs       *persistence.GormSubscriptionRepository
	deliveries *persistence.GormDeliveryRepository
	regions    *persistence.GormRegionRepository
	audits     *persistence.GormAuditRecorder
}

func newFixture(t *testing.T, clock *shared.MockClock) *fixture {
	t.Helper()
	db := helpers.NewGlobalTestDB(t)
	shards := newTestShards(t)
	regions := persistence.NewGormRegionRepository(db)
	subs := persistence.NewGormSubscriptionRepository(db)
	deliveries := persistence.NewGormDeliveryRepository(db)
	audits := persistence.NewGormAuditRecorder(db)
	fed := federation.NewService(
		regions,
		persistence.NewGormMembershipRepository(db),
		persistence.NewGormPlayerRepository(db),
		persistence.NewGormTravelRepository(db),
		persistence.NewGormTreatyRepository(db),
		shards,
		&eventSink{},
		audits,
		&config.GalaxyConfig{NexusGatePolicy: "first", NexusSeed: 42, DefaultSectorCount: 100},
		clock,
	)
	orch := &stubOrchestrator{}
	svc := provisioner.NewService(subs, deliveries, fed, orch, audits, clock)
	return &fixture{
		svc:        svc,
		clock:      clock,
		shards:     shards,
		orch:       orch,
		subs:       subs,
		deliveries: deliveries,
		regions:    regions,
		audits:     audits,
	}
}

func startEvent(deliveryID, externalID, regionName string, acct shared.AccountID) provisioner.Event {
	return provisioner.Event{
		DeliveryID: deliveryID,
		Provider:   "stellarpay",
		Type:       provisioner.EventSubscriptionStarted,
		AccountID:  acct,
		ExternalID: externalID,
		Plan:       "standard",
		RegionName: regionName,
	}
}

func lifecycleEvent(deliveryID, externalID, eventType string) provisioner.Event {
	return provisioner.Event{
		DeliveryID: deliveryID,
		Provider:   "stellarpay",
		Type:       eventType,
		ExternalID: externalID,
	}
}

func TestService_StartedProvisionsARegionOnce(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 5, 1, 8, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	owner := shared.NewAccountID()

	// Act
	d, err := f.svc.Handle(ctx, startEvent("dlv-1", "sub-1001", "meridian-gate", owner))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, provisioner.OutcomeProvisioned, d.Outcome)

	r, err := f.regions.FindByName(ctx, "meridian-gate")
	require.NoError(t, err)
	assert.Equal(t, region.StatusActive, r.Status)
	assert.Equal(t, owner, r.OwnerAccountID)
	assert.Equal(t, 300, r.SectorCount)

	gw, err := f.shards.Region(ctx, "meridian-gate")
	require.NoError(t, err)
	count, err := gw.Sectors.Count(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 300, count)

	sub, err := f.subs.FindByExternalID(ctx, "stellarpay", "sub-1001")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, sub.Status)
	assert.Equal(t, owner, sub.AccountID)
	assert.Equal(t, sub.ID, r.SubscriptionID)

	require.Equal(t, []string{"meridian-gate:standard"}, f.orch.created)

	// Replaying the delivery returns the recorded outcome without touching
	// the region or the orchestrator again.
	clock.Advance(time.Minute)
	again, err := f.svc.Handle(ctx, startEvent("dlv-1", "sub-1001", "meridian-gate", owner))
	require.NoError(t, err)
	assert.Equal(t, d.Outcome, again.Outcome)
	assert.True(t, again.ProcessedAt.Equal(d.ProcessedAt))
	assert.Len(t, f.orch.created, 1)
}

func TestService_RedeliveryFinishesAPartialRun(t *testing.T) {
	// Arrange: the shard is unreachable, so provisioning cannot finish.
	clock := shared.NewMockClock(time.Date(2102, 5, 1, 8, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	f.shards.refuse["veridian-belt"] = true
	ev := startEvent("dlv-7", "sub-2002", "veridian-belt", shared.NewAccountID())

	// Act
	_, err := f.svc.Handle(ctx, ev)

	// Assert: nothing recorded, region still pending.
	require.Error(t, err)
	_, err = f.deliveries.Find(ctx, "dlv-7")
	assert.ErrorIs(t, err, shared.ErrNotFound)
	r, err := f.regions.FindByName(ctx, "veridian-belt")
	require.NoError(t, err)
	assert.Equal(t, region.StatusPending, r.Status)

	// The gateway redelivers once the shard is back.
	f.shards.refuse["veridian-belt"] = false
	d, err := f.svc.Handle(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, provisioner.OutcomeProvisioned, d.Outcome)
	r, err = f.regions.FindByName(ctx, "veridian-belt")
	require.NoError(t, err)
	assert.Equal(t, region.StatusActive, r.Status)
}

func TestService_CancelSuspendsAndRenewalResumes(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 5, 1, 8, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	_, err := f.svc.Handle(ctx, startEvent("dlv-1", "sub-1001", "meridian-gate", shared.NewAccountID()))
	require.NoError(t, err)

	// Act
	d, err := f.svc.Handle(ctx, lifecycleEvent("dlv-2", "sub-1001", provisioner.EventSubscriptionCancelled))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, provisioner.OutcomeSuspended, d.Outcome)
	r, err := f.regions.FindByName(ctx, "meridian-gate")
	require.NoError(t, err)
	assert.Equal(t, region.StatusSuspended, r.Status)
	assert.Equal(t, []string{"meridian-gate"}, f.orch.suspended)
	sub, err := f.subs.FindByExternalID(ctx, "stellarpay", "sub-1001")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCancelled, sub.Status)

	// Payment recovers: the renewal reinstates the entitlement and the region.
	clock.Advance(48 * time.Hour)
	renewal := lifecycleEvent("dlv-3", "sub-1001", provisioner.EventSubscriptionRenewed)
	periodEnd := clock.Now().Add(30 * 24 * time.Hour)
	renewal.PeriodEnd = &periodEnd
	d, err = f.svc.Handle(ctx, renewal)
	require.NoError(t, err)
	assert.Equal(t, provisioner.OutcomeRenewed, d.Outcome)

	r, err = f.regions.FindByName(ctx, "meridian-gate")
	require.NoError(t, err)
	assert.Equal(t, region.StatusActive, r.Status)
	sub, err = f.subs.FindByExternalID(ctx, "stellarpay", "sub-1001")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, sub.Status)
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.True(t, sub.CurrentPeriodEnd.Equal(periodEnd))
}

func TestService_GracePassedOpensEvacuation(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 5, 1, 8, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	_, err := f.svc.Handle(ctx, startEvent("dlv-1", "sub-1001", "meridian-gate", shared.NewAccountID()))
	require.NoError(t, err)
	_, err = f.svc.Handle(ctx, lifecycleEvent("dlv-2", "sub-1001", provisioner.EventSubscriptionCancelled))
	require.NoError(t, err)
	clock.Advance(14 * 24 * time.Hour)

	// Act
	d, err := f.svc.Handle(ctx, lifecycleEvent("dlv-3", "sub-1001", provisioner.EventGracePassed))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, provisioner.OutcomeTerminated, d.Outcome)
	r, err := f.regions.FindByName(ctx, "meridian-gate")
	require.NoError(t, err)
	assert.Equal(t, region.StatusTerminated, r.Status)
	require.NotNil(t, r.EvacuationAt)
	assert.True(t, r.EvacuationAt.After(clock.Now()))
	// Containers stay up for the evacuees.
	assert.Empty(t, f.orch.removed)
	sub, err := f.subs.FindByExternalID(ctx, "stellarpay", "sub-1001")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusTerminated, sub.Status)

	// A late renewal cannot resurrect the entitlement.
	renewal := lifecycleEvent("dlv-4", "sub-1001", provisioner.EventSubscriptionRenewed)
	periodEnd := clock.Now().Add(30 * 24 * time.Hour)
	renewal.PeriodEnd = &periodEnd
	d, err = f.svc.Handle(ctx, renewal)
	require.NoError(t, err)
	assert.Equal(t, provisioner.OutcomeIgnored, d.Outcome)
}

func TestService_OrchestratorFailureIsRecorded(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 5, 1, 8, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	f.orch.failCreate = errors.New("compute quota exhausted")

	// Act
	d, err := f.svc.Handle(ctx, startEvent("dlv-1", "sub-1001", "meridian-gate", shared.NewAccountID()))

	// Assert: the failure is final for this delivery and the region waits
	// for an operator.
	require.NoError(t, err)
	assert.Equal(t, provisioner.OutcomeFailed, d.Outcome)
	r, err := f.regions.FindByName(ctx, "meridian-gate")
	require.NoError(t, err)
	assert.Equal(t, region.StatusPending, r.Status)

	entries, _, err := f.audits.List(ctx, audit.CategoryLifecycle, 1, 10)
	require.NoError(t, err)
	var actions []string
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	assert.Contains(t, actions, "region.orchestration_failed")

	// A fresh delivery after the quota clears finishes the job.
	f.orch.failCreate = nil
	d, err = f.svc.Handle(ctx, startEvent("dlv-2", "sub-1001", "meridian-gate", shared.NewAccountID()))
	require.NoError(t, err)
	assert.Equal(t, provisioner.OutcomeProvisioned, d.Outcome)
}

func TestService_UnknownSubscriptionIsIgnored(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 5, 1, 8, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()

	// Act
	d, err := f.svc.Handle(ctx, lifecycleEvent("dlv-1", "sub-9999", provisioner.EventSubscriptionCancelled))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, provisioner.OutcomeIgnored, d.Outcome)
	assert.Empty(t, f.orch.suspended)
}

func TestService_RegionNameCollisionFailsTheStart(t *testing.T) {
	// Arrange: someone else already owns the name.
	clock := shared.NewMockClock(time.Date(2102, 5, 1, 8, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()
	_, err := f.svc.Handle(ctx, startEvent("dlv-1", "sub-1001", "meridian-gate", shared.NewAccountID()))
	require.NoError(t, err)

	// Act
	d, err := f.svc.Handle(ctx, startEvent("dlv-2", "sub-2002", "meridian-gate", shared.NewAccountID()))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, provisioner.OutcomeFailed, d.Outcome)
	assert.Contains(t, d.Note, "already taken")
}

func TestService_HandleRejectsMalformedEvents(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2102, 5, 1, 8, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	ctx := context.Background()

	// Act / Assert
	ev := startEvent("", "sub-1", "meridian-gate", shared.NewAccountID())
	_, err := f.svc.Handle(ctx, ev)
	assert.ErrorIs(t, err, shared.ErrValidation)

	ev = startEvent("dlv-1", "sub-1", "meridian-gate", shared.NewAccountID())
	ev.Type = "subscription-paused"
	_, err = f.svc.Handle(ctx, ev)
	assert.ErrorIs(t, err, shared.ErrValidation)

	// A rejected event records nothing, so a corrected redelivery works.
	_, err = f.deliveries.Find(ctx, "dlv-1")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
