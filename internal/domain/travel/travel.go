// Package travel models inter-region transit. A travel is a global-shard
// record created when assets are reserved in the source shard and closed
// when they materialize in the destination shard (or when compensation
// releases them). The record is the idempotency key of the whole protocol:
// replaying a travel command observes the existing record instead of moving
// assets twice.
package travel

import (
	"time"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// Method is how the player crosses between regions.
type Method string

const (
	MethodPlatformGate Method = "platform-gate"
	MethodPlayerGate   Method = "player-gate"
	MethodWarpJumper   Method = "warp-jumper"
)

// MethodSpec fixes the cost and risk profile of a travel method.
type MethodSpec struct {
	Method   Method
	BaseCost int64
	// ArrivalRisk is the chance of arriving with ship damage.
	ArrivalRisk float64
	// RequiresWarpHull limits the method to warp-capable hulls.
	RequiresWarpHull bool
	// TeamFunded methods draw the fare from the team treasury.
	TeamFunded bool
}

var methodCatalog = map[Method]MethodSpec{
	MethodPlatformGate: {Method: MethodPlatformGate, BaseCost: 100},
	MethodPlayerGate:   {Method: MethodPlayerGate, BaseCost: 40, ArrivalRisk: 0.02, TeamFunded: true},
	MethodWarpJumper:   {Method: MethodWarpJumper, BaseCost: 25, ArrivalRisk: 0.08, RequiresWarpHull: true},
}

// SpecForMethod looks up a travel method.
func SpecForMethod(m Method) (MethodSpec, bool) {
	spec, ok := methodCatalog[m]
	return spec, ok
}

// Status is the transit lifecycle. Everything but in-transit is terminal.
type Status string

const (
	StatusInTransit Status = "in-transit"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Manifest lists what moves with the player. Reservation marks these assets
// in the source shard; materialization recreates them in the destination.
// The sum across reservation, transit and materialization always equals the
// player's pre-travel holdings.
type Manifest struct {
	ShipIDs []shared.ShipID `json:"ship_ids"`
	Credits int64           `json:"credits"`
}

// Empty reports a manifest moving nothing.
func (m Manifest) Empty() bool { return len(m.ShipIDs) == 0 && m.Credits == 0 }

// Travel is the global-shard transit record.
type Travel struct {
	ID                shared.TravelID
	PlayerID          shared.PlayerID
	SourceRegion      shared.RegionID
	DestinationRegion shared.RegionID
	Method            Method
	Cost              int64
	Manifest          Manifest
	Status            Status
	FailureReason     string
	CompletedAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Version           int
}

// Begin validates and opens a transit record in state in-transit. The caller
// has already reserved the manifest in the source shard within the same
// logical step.
func Begin(id shared.TravelID, playerID shared.PlayerID, source, destination shared.RegionID, method Method, manifest Manifest, cost int64, now time.Time) (*Travel, error) {
	if id.IsZero() {
		id = shared.NewTravelID()
	}
	if source == destination {
		return nil, shared.NewValidationError("destination_region", "must differ from the source region")
	}
	if _, ok := SpecForMethod(method); !ok {
		return nil, shared.NewValidationError("method", "unknown travel method")
	}
	if manifest.Credits < 0 {
		return nil, shared.NewValidationError("manifest", "credits must be non-negative")
	}
	if cost < 0 {
		return nil, shared.NewValidationError("cost", "must be non-negative")
	}
	return &Travel{
		ID:                id,
		PlayerID:          playerID,
		SourceRegion:      source,
		DestinationRegion: destination,
		Method:            method,
		Cost:              cost,
		Manifest:          manifest,
		Status:            StatusInTransit,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// Terminal reports whether the travel has finished one way or another.
func (t *Travel) Terminal() bool { return t.Status != StatusInTransit }

// Complete closes the travel after destination materialization.
func (t *Travel) Complete(now time.Time) error {
	if t.Status != StatusInTransit {
		return shared.NewConflictError("travel is not in transit")
	}
	t.Status = StatusCompleted
	ts := now
	t.CompletedAt = &ts
	t.UpdatedAt = now
	return nil
}

// Fail closes the travel after compensation released the source
// reservation.
func (t *Travel) Fail(reason string, now time.Time) error {
	if t.Status != StatusInTransit {
		return shared.NewConflictError("travel is not in transit")
	}
	t.Status = StatusFailed
	t.FailureReason = reason
	t.UpdatedAt = now
	return nil
}

// Cancel closes a transit withdrawn before materialization began.
func (t *Travel) Cancel(now time.Time) error {
	if t.Status != StatusInTransit {
		return shared.NewConflictError("travel is not in transit")
	}
	t.Status = StatusCancelled
	t.UpdatedAt = now
	return nil
}
