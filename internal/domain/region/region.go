package region

import (
	"encoding/json"
	"regexp"
	"time"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// NexusName is the reserved name of the singleton hub region.
const NexusName = "central-nexus"

// EvacuationWindow is how long residents of a terminating region have to
// transfer assets out before the shard is archived.
const EvacuationWindow = 30 * 24 * time.Hour

// Status is the region lifecycle state.
type Status string

const (
	StatusPending        Status = "pending"
	StatusActive         Status = "active"
	StatusSuspended      Status = "suspended"
	StatusTerminated     Status = "terminated"
	StatusDecommissioned Status = "decommissioned"
)

// GovernanceType selects how regional authority is exercised.
type GovernanceType string

const (
	GovernanceAutocracy       GovernanceType = "autocracy"
	GovernanceDemocracy       GovernanceType = "democracy"
	GovernanceCouncil         GovernanceType = "council"
	GovernanceGalacticCouncil GovernanceType = "galactic-council"
)

// Declared configuration ranges. A mutation that would leave any field
// outside its range fails; values are never silently clamped here.
const (
	MinTaxRate         = 0.05
	MaxTaxRate         = 0.25
	MinVotingThreshold = 0.1
	MaxVotingThreshold = 0.9
	MinElectionCadence = 30
	MaxElectionCadence = 365
	MinSectors         = 100
	MaxSectors         = 1000
)

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{2,47}$`)

// Spec is the generation recipe for a region shard: handed to the galaxy
// generator and frozen on the region row for reproducibility.
type Spec struct {
	Name           string `json:"name"`
	DisplayName    string `json:"display_name"`
	SectorCount    int    `json:"sector_count"`
	Specialization string `json:"specialization"`
	Seed           int64  `json:"seed"`
	StartingShip   string `json:"starting_ship"`
	SubscriptionID string `json:"subscription_id,omitempty"`
}

// Region is a shard of the universe with its own governance and economy.
type Region struct {
	ID               shared.RegionID
	Name             string
	DisplayName      string
	OwnerAccountID   shared.AccountID
	Status           Status
	Governance       GovernanceType
	GovernorPlayerID shared.PlayerID
	TaxRate          float64
	VotingThreshold  float64
	ElectionCadence  int // days
	TradeBonuses     map[string]float64
	Culture          json.RawMessage
	Specialization   string
	StartingShip     string
	SectorCount      int
	Seed             int64
	NexusGateSector  int // 0 = not connected
	SubscriptionID   string
	EvacuationAt     *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Version          int
}

// New validates the spec ranges and creates a pending region.
func New(spec Spec, owner shared.AccountID, now time.Time) (*Region, error) {
	if !namePattern.MatchString(spec.Name) {
		return nil, shared.NewValidationError("name", "must be 3-48 lowercase letters, digits or '-'")
	}
	if spec.Name == NexusName {
		return nil, shared.NewValidationError("name", "reserved for the hub region")
	}
	if spec.SectorCount < MinSectors || spec.SectorCount > MaxSectors {
		return nil, shared.NewValidationErrorf("sector_count must be in [%d, %d]", MinSectors, MaxSectors)
	}
	display := spec.DisplayName
	if display == "" {
		display = spec.Name
	}
	return &Region{
		ID:              shared.NewRegionID(),
		Name:            spec.Name,
		DisplayName:     display,
		OwnerAccountID:  owner,
		Status:          StatusPending,
		Governance:      GovernanceAutocracy,
		TaxRate:         0.10,
		VotingThreshold: 0.5,
		ElectionCadence: 90,
		TradeBonuses:    map[string]float64{},
		Specialization:  spec.Specialization,
		StartingShip:    spec.StartingShip,
		SectorCount:     spec.SectorCount,
		Seed:            spec.Seed,
		SubscriptionID:  spec.SubscriptionID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// NewNexus builds the singleton hub region, already active.
func NewNexus(sectorCount int, seed int64, now time.Time) *Region {
	return &Region{
		ID:              shared.NewRegionID(),
		Name:            NexusName,
		DisplayName:     "Central Nexus",
		Status:          StatusActive,
		Governance:      GovernanceGalacticCouncil,
		TaxRate:         0.10,
		VotingThreshold: 0.5,
		ElectionCadence: 180,
		TradeBonuses:    map[string]float64{},
		SectorCount:     sectorCount,
		Seed:            seed,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Activate completes provisioning: the shard exists, the galaxy is generated
// and the Nexus gate is linked.
func (r *Region) Activate(gateSector int, now time.Time) error {
	if r.Status != StatusPending && r.Status != StatusSuspended {
		return shared.NewConflictError("region is not awaiting activation")
	}
	r.Status = StatusActive
	if gateSector > 0 {
		r.NexusGateSector = gateSector
	}
	r.UpdatedAt = now
	return nil
}

// Suspend blocks player entry and new travel while keeping data readable.
func (r *Region) Suspend(now time.Time) error {
	if r.Status != StatusActive {
		return shared.NewConflictError("only active regions can be suspended")
	}
	r.Status = StatusSuspended
	r.UpdatedAt = now
	return nil
}

// BeginTermination opens the evacuation window. The region still accepts
// outbound travel until the window closes.
func (r *Region) BeginTermination(now time.Time) error {
	if r.Status == StatusTerminated {
		return shared.NewConflictError("region already terminated")
	}
	deadline := now.Add(EvacuationWindow)
	r.EvacuationAt = &deadline
	r.Status = StatusTerminated
	r.UpdatedAt = now
	return nil
}

// Decommission retires a terminated region once its evacuation window has
// closed. The shard's storage is gone after this.
func (r *Region) Decommission(now time.Time) error {
	if r.Status != StatusTerminated {
		return shared.NewConflictError("only terminated regions can be decommissioned")
	}
	if r.EvacuationAt != nil && now.Before(*r.EvacuationAt) {
		return shared.NewConflictError("the evacuation window is still open")
	}
	r.Status = StatusDecommissioned
	r.UpdatedAt = now
	return nil
}

// AcceptsTravel reports whether the region may be the destination of a new
// travel. Terminated and suspended regions refuse entry.
func (r *Region) AcceptsTravel() bool { return r.Status == StatusActive }

// AcceptsDeparture reports whether players may still leave. Evacuating
// regions allow outbound transfers until the window closes.
func (r *Region) AcceptsDeparture(now time.Time) bool {
	switch r.Status {
	case StatusActive:
		return true
	case StatusTerminated:
		return r.EvacuationAt != nil && now.Before(*r.EvacuationAt)
	default:
		return false
	}
}

// LinkGate records the sector hosting this region's side of the Nexus warp
// gate.
func (r *Region) LinkGate(sector int, now time.Time) error {
	if sector < 1 || sector > r.SectorCount {
		return shared.NewValidationError("gate_sector", "outside the region's sector range")
	}
	r.NexusGateSector = sector
	r.UpdatedAt = now
	return nil
}

// AppointGovernor installs the region's governing player.
func (r *Region) AppointGovernor(playerID shared.PlayerID, now time.Time) {
	r.GovernorPlayerID = playerID
	r.UpdatedAt = now
}

// SetGovernance reconfigures the regional government within declared ranges.
func (r *Region) SetGovernance(gov GovernanceType, taxRate, votingThreshold float64, cadenceDays int, now time.Time) error {
	switch gov {
	case GovernanceAutocracy, GovernanceDemocracy, GovernanceCouncil, GovernanceGalacticCouncil:
	default:
		return shared.NewValidationError("governance", "unknown governance type")
	}
	if taxRate < MinTaxRate || taxRate > MaxTaxRate {
		return shared.NewValidationErrorf("tax_rate must be in [%.2f, %.2f]", MinTaxRate, MaxTaxRate)
	}
	if votingThreshold < MinVotingThreshold || votingThreshold > MaxVotingThreshold {
		return shared.NewValidationErrorf("voting_threshold must be in [%.1f, %.1f]", MinVotingThreshold, MaxVotingThreshold)
	}
	if cadenceDays < MinElectionCadence || cadenceDays > MaxElectionCadence {
		return shared.NewValidationErrorf("election_cadence must be in [%d, %d] days", MinElectionCadence, MaxElectionCadence)
	}
	r.Governance = gov
	r.TaxRate = taxRate
	r.VotingThreshold = votingThreshold
	r.ElectionCadence = cadenceDays
	r.UpdatedAt = now
	return nil
}

// SetTradeBonus adjusts a commodity's regional bonus multiplier.
func (r *Region) SetTradeBonus(commodity string, bonus float64, now time.Time) error {
	if bonus < 0.5 || bonus > 2.0 {
		return shared.NewValidationError("bonus", "must be in [0.5, 2.0]")
	}
	r.TradeBonuses[commodity] = bonus
	r.UpdatedAt = now
	return nil
}

// ConnectedToNexus reports whether a warp gate links this region to the hub.
// The gate link and the gate sector exist together or not at all.
func (r *Region) ConnectedToNexus() bool { return r.NexusGateSector > 0 }
