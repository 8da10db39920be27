package ship

import (
	"time"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// Condition bounds. A ship at 0 is derelict and cannot move or fight; 1 is
// full condition.
const (
	MinCondition = 0.0
	MaxCondition = 1.0
)

// DegradationPerDay is how much condition a ship loses per day without
// maintenance.
const DegradationPerDay = 0.01

// InsuranceTier selects loss coverage.
type InsuranceTier string

const (
	InsuranceNone     InsuranceTier = "none"
	InsuranceBasic    InsuranceTier = "basic"
	InsuranceStandard InsuranceTier = "standard"
	InsurancePremium  InsuranceTier = "premium"
)

// insurancePayout maps tier to the fraction of hull base price refunded on
// destruction, after the deductible.
var insurancePayout = map[InsuranceTier]float64{
	InsuranceNone:     0.0,
	InsuranceBasic:    0.4,
	InsuranceStandard: 0.6,
	InsurancePremium:  0.8,
}

// insuranceDeductible maps tier to the flat deductible charged on a claim.
var insuranceDeductible = map[InsuranceTier]int64{
	InsuranceNone:     0,
	InsuranceBasic:    5_000,
	InsuranceStandard: 10_000,
	InsurancePremium:  20_000,
}

// Ship is a player-owned vessel living in exactly one region shard.
type Ship struct {
	ID              shared.ShipID
	OwnerID         shared.PlayerID
	TeamID          shared.TeamID // team-shared ledger access, zero when private
	RegionID        shared.RegionID
	Sector          int
	Class           HullClass
	Name            string
	Condition       float64
	Shield          int // current shield points, max = effective shield rating
	Fuel            int
	Cargo           *shared.Manifest
	DronesAboard    int
	Mods            []Modification
	Insurance       InsuranceTier
	MaintenanceDebt int64
	LastServiceAt   time.Time
	AcquiredAt      time.Time
	Destroyed       bool
	DestroyedAt     *time.Time
	// ReservedBy is non-zero while an inter-region transfer holds the ship.
	ReservedBy shared.TravelID
	UpdatedAt  time.Time
	Version    int
}

// New builds a ship of the given hull class at full condition, full fuel
// and full shields.
func New(owner shared.PlayerID, regionID shared.RegionID, sector int, class HullClass, name string, now time.Time) (*Ship, error) {
	spec, ok := SpecFor(class)
	if !ok {
		return nil, shared.NewValidationError("class", "unknown hull class")
	}
	if name == "" {
		name = spec.DisplayName
	}
	if len(name) > 64 {
		return nil, shared.NewValidationError("name", "must be at most 64 characters")
	}
	manifest, err := shared.NewManifest(spec.CargoHolds, nil)
	if err != nil {
		return nil, err
	}
	return &Ship{
		ID:            shared.NewShipID(),
		OwnerID:       owner,
		RegionID:      regionID,
		Sector:        sector,
		Class:         class,
		Name:          name,
		Condition:     MaxCondition,
		Shield:        spec.ShieldRating,
		Fuel:          spec.FuelCapacity,
		Cargo:         manifest,
		Insurance:     InsuranceNone,
		LastServiceAt: now,
		AcquiredAt:    now,
		UpdatedAt:     now,
	}, nil
}

// Spec returns the hull stat block.
func (s *Ship) Spec() HullSpec {
	spec, _ := SpecFor(s.Class)
	return spec
}

// Derived stats after modifications.

// CargoCapacity is hull holds plus expanders.
func (s *Ship) CargoCapacity() int {
	capacity := s.Spec().CargoHolds
	for _, m := range s.Mods {
		if m == ModCargoExpander {
			capacity += 20
		}
	}
	return capacity
}

// ShieldRating is hull shields plus boosters.
func (s *Ship) ShieldRating() int {
	rating := s.Spec().ShieldRating
	for _, m := range s.Mods {
		if m == ModShieldBooster {
			rating += 25
		}
	}
	return rating
}

// FuelCapacity is hull tankage plus scoops.
func (s *Ship) FuelCapacity() int {
	capacity := s.Spec().FuelCapacity
	for _, m := range s.Mods {
		if m == ModFuelScoop {
			capacity += 50
		}
	}
	return capacity
}

// DroneCapacity is hull bays plus expansions.
func (s *Ship) DroneCapacity() int {
	capacity := s.Spec().DroneCapacity
	for _, m := range s.Mods {
		if m == ModDroneBay {
			capacity += 4
		}
	}
	return capacity
}

// InitiativeBase is the hull base plus afterburners.
func (s *Ship) InitiativeBase() float64 {
	base := s.Spec().InitiativeBase
	for _, m := range s.Mods {
		if m == ModAfterburner {
			base += 1.0
		}
	}
	return base
}

// Operational reports whether the ship can move or fight. Condition exactly
// zero grounds the ship.
func (s *Ship) Operational() bool {
	return !s.Destroyed && s.Condition > MinCondition
}

// InstallMod fits an upgrade into a free slot. Cargo expanders grow the
// manifest's hold in the same mutation.
func (s *Ship) InstallMod(m Modification, now time.Time) error {
	if !ValidModification(m) {
		return shared.NewValidationError("modification", "unknown modification")
	}
	if len(s.Mods) >= s.Spec().ModSlots {
		return shared.NewConflictError("no free modification slots")
	}
	s.Mods = append(s.Mods, m)
	s.Cargo.Capacity = s.CargoCapacity()
	s.UpdatedAt = now
	return nil
}

// RemoveMod strips an installed upgrade. No refund; removing a cargo
// expander fails while the hold holds more than the reduced capacity.
func (s *Ship) RemoveMod(m Modification, now time.Time) error {
	for i, installed := range s.Mods {
		if installed != m {
			continue
		}
		if m == ModCargoExpander && s.Cargo.Used() > s.CargoCapacity()-20 {
			return shared.NewConflictError("unload cargo before removing the expander")
		}
		s.Mods = append(s.Mods[:i], s.Mods[i+1:]...)
		s.Cargo.Capacity = s.CargoCapacity()
		s.UpdatedAt = now
		return nil
	}
	return shared.NewNotFoundError("modification")
}

// BurnFuel spends fuel on a jump, failing when the tank runs dry.
func (s *Ship) BurnFuel(units int, now time.Time) error {
	if units < 0 {
		return shared.NewValidationError("units", "must be non-negative")
	}
	if units > s.Fuel {
		return shared.NewValidationErrorf("insufficient fuel: %d units in tank, %d required", s.Fuel, units)
	}
	s.Fuel -= units
	s.UpdatedAt = now
	return nil
}

// Refuel fills the tank up to capacity and returns the units taken on.
func (s *Ship) Refuel(units int, now time.Time) (int, error) {
	if units < 1 {
		return 0, shared.NewValidationError("units", "must be positive")
	}
	free := s.FuelCapacity() - s.Fuel
	if units > free {
		units = free
	}
	s.Fuel += units
	s.UpdatedAt = now
	return units, nil
}

// MoveTo places the ship in another sector of its region.
func (s *Ship) MoveTo(sector int, now time.Time) error {
	if !s.Operational() {
		return shared.NewConflictError("ship is not operational")
	}
	if !s.ReservedBy.IsZero() {
		return shared.NewConflictError("ship is held by an inter-region transfer")
	}
	s.Sector = sector
	s.UpdatedAt = now
	return nil
}

// ReserveForTravel marks the ship held by an inter-region transfer. Reserved
// ships cannot move, fight or trade. Re-reserving under the same travel id is
// a no-op so the protocol can replay.
func (s *Ship) ReserveForTravel(travelID shared.TravelID, now time.Time) error {
	if s.Destroyed {
		return shared.NewConflictError("destroyed ships cannot travel")
	}
	if !s.ReservedBy.IsZero() && s.ReservedBy != travelID {
		return shared.NewConflictError("ship is held by another transfer")
	}
	s.ReservedBy = travelID
	s.UpdatedAt = now
	return nil
}

// ReleaseReservation is the compensating write of a failed transfer,
// idempotent by travel id.
func (s *Ship) ReleaseReservation(travelID shared.TravelID, now time.Time) {
	if s.ReservedBy != travelID {
		return
	}
	s.ReservedBy = ""
	s.UpdatedAt = now
}

// Relocate moves the ship across regions as the materialization step of an
// inter-regional travel, clearing the reservation. The caller owns the
// two-shard choreography.
func (s *Ship) Relocate(regionID shared.RegionID, sector int, now time.Time) {
	s.RegionID = regionID
	s.Sector = sector
	s.ReservedBy = ""
	s.UpdatedAt = now
}

// Degrade applies time-based wear since the last service and accrues the
// cost of deferred upkeep as maintenance debt.
func (s *Ship) Degrade(now time.Time) {
	days := now.Sub(s.LastServiceAt).Hours() / 24
	if days <= 0 {
		return
	}
	s.Condition -= days * DegradationPerDay
	if s.Condition < MinCondition {
		s.Condition = MinCondition
	}
	s.MaintenanceDebt += int64(days * float64(s.Spec().BasePrice) * 0.001)
	s.LastServiceAt = now
	s.UpdatedAt = now
}

// TakeDamage applies combat damage: shields absorb first, overflow hits the
// hull. Returns true when the hit destroys the ship.
func (s *Ship) TakeDamage(shieldDamage int, hullDamage float64, now time.Time) bool {
	if shieldDamage > 0 {
		s.Shield -= shieldDamage
		if s.Shield < 0 {
			s.Shield = 0
		}
	}
	if hullDamage < 0 {
		hullDamage = 0
	}
	s.Condition -= hullDamage
	s.UpdatedAt = now
	if s.Condition <= MinCondition {
		s.Condition = MinCondition
		s.Destroyed = true
		t := now
		s.DestroyedAt = &t
		return true
	}
	return false
}

// MaintenanceCost quotes full restoration: repairs for the missing
// condition plus any accrued debt.
func (s *Ship) MaintenanceCost() int64 {
	missing := MaxCondition - s.Condition
	cost := s.MaintenanceDebt
	if missing > 0 {
		cost += int64(missing * float64(s.Spec().BasePrice) * 0.2)
	}
	return cost
}

// PerformMaintenance restores condition and shields to full and clears the
// maintenance debt. The caller charges MaintenanceCost first.
func (s *Ship) PerformMaintenance(now time.Time) error {
	if s.Destroyed {
		return shared.NewConflictError("destroyed ships cannot be serviced")
	}
	s.Condition = MaxCondition
	s.Shield = s.ShieldRating()
	s.MaintenanceDebt = 0
	s.LastServiceAt = now
	s.UpdatedAt = now
	return nil
}

// SetInsurance switches coverage tier.
func (s *Ship) SetInsurance(tier InsuranceTier, now time.Time) error {
	if _, ok := insurancePayout[tier]; !ok {
		return shared.NewValidationError("tier", "unknown insurance tier")
	}
	s.Insurance = tier
	s.UpdatedAt = now
	return nil
}

// InsurancePayout computes the claim value on destruction: a tier fraction
// of the hull base price minus the deductible, never negative.
func (s *Ship) InsurancePayout() int64 {
	payout := int64(insurancePayout[s.Insurance]*float64(s.Spec().BasePrice)) - insuranceDeductible[s.Insurance]
	if payout < 0 {
		payout = 0
	}
	return payout
}

// ShareWithTeam opens the ship's ledger to a team.
func (s *Ship) ShareWithTeam(teamID shared.TeamID, now time.Time) {
	s.TeamID = teamID
	s.UpdatedAt = now
}

// LoadDrones stows drones aboard up to hull capacity.
func (s *Ship) LoadDrones(count int, now time.Time) error {
	if count < 0 {
		return shared.NewValidationError("count", "must be non-negative")
	}
	if s.DronesAboard+count > s.DroneCapacity() {
		return shared.NewConflictError("drone capacity exceeded")
	}
	s.DronesAboard += count
	s.UpdatedAt = now
	return nil
}

// UnloadDrones removes drones from the bay.
func (s *Ship) UnloadDrones(count int, now time.Time) error {
	if count < 0 || count > s.DronesAboard {
		return shared.NewValidationError("count", "exceeds drones aboard")
	}
	s.DronesAboard -= count
	s.UpdatedAt = now
	return nil
}
