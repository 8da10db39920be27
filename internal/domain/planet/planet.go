package planet

import (
	"time"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// Type classifies a planet. The type fixes habitability and how efficiently
// colonists produce each commodity.
type Type string

const (
	TypeTerran   Type = "terran"
	TypeOceanic  Type = "oceanic"
	TypeDesert   Type = "desert"
	TypeJungle   Type = "jungle"
	TypeVolcanic Type = "volcanic"
	TypeIce      Type = "ice"
	TypeGasGiant Type = "gas-giant"
	TypeBarren   Type = "barren"
)

// Role is a colonist production assignment.
type Role string

const (
	RoleFuel      Role = "fuel"
	RoleOrganics  Role = "organics"
	RoleEquipment Role = "equipment"
)

// TypeSpec is the immutable stat block of a planet type.
type TypeSpec struct {
	Type          Type
	Habitability  int // [0, 100]
	MaxPopulation int64
	GrowthRate    float64 // per tick, scaled by habitability
	Yields        map[Role]float64
}

var typeCatalog = map[Type]TypeSpec{
	TypeTerran: {Type: TypeTerran, Habitability: 90, MaxPopulation: 10_000_000, GrowthRate: 0.02,
		Yields: map[Role]float64{RoleFuel: 0.8, RoleOrganics: 1.5, RoleEquipment: 1.0}},
	TypeOceanic: {Type: TypeOceanic, Habitability: 75, MaxPopulation: 6_000_000, GrowthRate: 0.018,
		Yields: map[Role]float64{RoleFuel: 0.6, RoleOrganics: 1.8, RoleEquipment: 0.6}},
	TypeDesert: {Type: TypeDesert, Habitability: 45, MaxPopulation: 3_000_000, GrowthRate: 0.012,
		Yields: map[Role]float64{RoleFuel: 1.2, RoleOrganics: 0.4, RoleEquipment: 1.0}},
	TypeJungle: {Type: TypeJungle, Habitability: 70, MaxPopulation: 5_000_000, GrowthRate: 0.022,
		Yields: map[Role]float64{RoleFuel: 0.5, RoleOrganics: 2.0, RoleEquipment: 0.5}},
	TypeVolcanic: {Type: TypeVolcanic, Habitability: 25, MaxPopulation: 1_500_000, GrowthRate: 0.008,
		Yields: map[Role]float64{RoleFuel: 1.8, RoleOrganics: 0.2, RoleEquipment: 1.3}},
	TypeIce: {Type: TypeIce, Habitability: 30, MaxPopulation: 2_000_000, GrowthRate: 0.009,
		Yields: map[Role]float64{RoleFuel: 1.0, RoleOrganics: 0.5, RoleEquipment: 0.8}},
	TypeGasGiant: {Type: TypeGasGiant, Habitability: 5, MaxPopulation: 200_000, GrowthRate: 0.003,
		Yields: map[Role]float64{RoleFuel: 2.5, RoleOrganics: 0.0, RoleEquipment: 0.3}},
	TypeBarren: {Type: TypeBarren, Habitability: 10, MaxPopulation: 500_000, GrowthRate: 0.004,
		Yields: map[Role]float64{RoleFuel: 0.8, RoleOrganics: 0.1, RoleEquipment: 1.5}},
}

// SpecFor looks up a planet type.
func SpecFor(t Type) (TypeSpec, bool) {
	spec, ok := typeCatalog[t]
	return spec, ok
}

// Building names a colony structure. Each building is leveled; levels boost
// one aspect of the colony.
type Building string

const (
	BuildingFarm        Building = "farm"         // organics yield
	BuildingMine        Building = "mine"         // fuel yield
	BuildingFactory     Building = "factory"      // equipment yield
	BuildingHabitat     Building = "habitat"      // population ceiling
	BuildingDefenseGrid Building = "defense-grid" // siege resistance
)

// MaxBuildingLevel caps every building.
const MaxBuildingLevel = 5

// buildingRoles maps production buildings to the role they amplify.
var buildingRoles = map[Building]Role{
	BuildingFarm:    RoleOrganics,
	BuildingMine:    RoleFuel,
	BuildingFactory: RoleEquipment,
}

// ValidBuilding reports whether the name is in the catalog.
func ValidBuilding(b Building) bool {
	switch b {
	case BuildingFarm, BuildingMine, BuildingFactory, BuildingHabitat, BuildingDefenseGrid:
		return true
	}
	return false
}

// BuildingCost returns the credit price of raising a building to the given
// level. Costs double per level.
func BuildingCost(b Building, level int) int64 {
	base := int64(5_000)
	if b == BuildingDefenseGrid {
		base = 8_000
	}
	cost := base
	for i := 1; i < level; i++ {
		cost *= 2
	}
	return cost
}

// Defense levels.
const (
	MaxCitadelLevel = 5
	MaxShieldLevel  = 3
)

// CitadelCost returns the credit price of raising the citadel to the given
// level. Costs double per level.
func CitadelCost(level int) int64 {
	cost := int64(10_000)
	for i := 1; i < level; i++ {
		cost *= 2
	}
	return cost
}

// ShieldCost returns the credit price of raising the shield to the given
// level. Costs double per level.
func ShieldCost(level int) int64 {
	cost := int64(15_000)
	for i := 1; i < level; i++ {
		cost *= 2
	}
	return cost
}

// perColonistYield is the base units produced per 1000 colonists per tick
// before type multipliers.
const perColonistYield = 0.5

// Planet is a colonizable body in one sector of a region shard.
type Planet struct {
	ID             shared.PlanetID
	RegionID       shared.RegionID
	Sector         int
	Name           string
	Type           Type
	OwnerID        shared.PlayerID // zero when unclaimed
	Population     int64
	Allocation     map[Role]float64 // fractions of population, sum <= 1
	Stockpile      map[Role]int64
	Buildings      map[Building]int // building -> level
	CitadelLevel   int
	ShieldLevel    int
	DronesStation  int
	UnderSiege     bool
	SiegeProgress  float64
	GenesisCreated bool
	LastTickIndex  int64
	ColonizedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Version        int
}

// New validates and builds an unclaimed planet at generation time.
func New(regionID shared.RegionID, sectorIndex int, name string, typ Type, now time.Time) (*Planet, error) {
	if _, ok := SpecFor(typ); !ok {
		return nil, shared.NewValidationError("type", "unknown planet type")
	}
	if name == "" {
		return nil, shared.NewValidationError("name", "must not be empty")
	}
	return &Planet{
		ID:         shared.NewPlanetID(),
		RegionID:   regionID,
		Sector:     sectorIndex,
		Name:       name,
		Type:       typ,
		Allocation: map[Role]float64{},
		Stockpile:  map[Role]int64{},
		Buildings:  map[Building]int{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// NewFromGenesis builds a planet materialized by a genesis device. The type
// is rolled by the caller; the planet starts claimed by the deployer.
func NewFromGenesis(regionID shared.RegionID, sectorIndex int, name string, typ Type, owner shared.PlayerID, now time.Time) (*Planet, error) {
	p, err := New(regionID, sectorIndex, name, typ, now)
	if err != nil {
		return nil, err
	}
	p.GenesisCreated = true
	p.OwnerID = owner
	t := now
	p.ColonizedAt = &t
	return p, nil
}

// Spec returns the planet type stat block.
func (p *Planet) Spec() TypeSpec {
	spec, _ := SpecFor(p.Type)
	return spec
}

// Colonized reports whether the planet has an owner.
func (p *Planet) Colonized() bool { return !p.OwnerID.IsZero() }

// Colonize claims an unowned planet and lands the initial colonists.
func (p *Planet) Colonize(owner shared.PlayerID, colonists int64, now time.Time) error {
	if p.Colonized() {
		return shared.NewConflictError("planet is already colonized")
	}
	if colonists < 1 {
		return shared.NewValidationError("colonists", "must land at least one colonist unit")
	}
	p.OwnerID = owner
	p.Population = colonists
	p.Allocation = map[Role]float64{RoleFuel: 0.33, RoleOrganics: 0.34, RoleEquipment: 0.33}
	t := now
	p.ColonizedAt = &t
	p.UpdatedAt = now
	return nil
}

// LandColonists adds population from a ship's cargo, capped at the type
// maximum.
func (p *Planet) LandColonists(colonists int64, now time.Time) error {
	if !p.Colonized() {
		return shared.NewConflictError("planet is not colonized")
	}
	if colonists < 1 {
		return shared.NewValidationError("colonists", "must be positive")
	}
	p.Population += colonists
	if max := p.MaxPopulation(); p.Population > max {
		p.Population = max
	}
	p.UpdatedAt = now
	return nil
}

// Allocate distributes population among production roles. Fractions must be
// non-negative and sum to at most 1; the remainder is idle.
func (p *Planet) Allocate(allocation map[Role]float64, now time.Time) error {
	if !p.Colonized() {
		return shared.NewConflictError("planet is not colonized")
	}
	total := 0.0
	for role, f := range allocation {
		switch role {
		case RoleFuel, RoleOrganics, RoleEquipment:
		default:
			return shared.NewValidationError("allocation", "unknown production role")
		}
		if f < 0 {
			return shared.NewValidationError("allocation", "fractions must be non-negative")
		}
		total += f
	}
	if total > 1.0+1e-9 {
		return shared.NewValidationError("allocation", "fractions must sum to at most 1")
	}
	p.Allocation = map[Role]float64{}
	for role, f := range allocation {
		p.Allocation[role] = f
	}
	p.UpdatedAt = now
	return nil
}

// Construct raises a building one level. Callers debit the credits returned
// by BuildingCost before committing.
func (p *Planet) Construct(b Building, now time.Time) (int, error) {
	if !p.Colonized() {
		return 0, shared.NewConflictError("planet is not colonized")
	}
	if !ValidBuilding(b) {
		return 0, shared.NewValidationError("building", "unknown building")
	}
	if p.UnderSiege {
		return 0, shared.NewConflictError("cannot construct while under siege")
	}
	level := p.Buildings[b] + 1
	if level > MaxBuildingLevel {
		return 0, shared.NewConflictError("building is at maximum level")
	}
	p.Buildings[b] = level
	p.UpdatedAt = now
	return level, nil
}

// MaxPopulation is the type ceiling raised 10% per habitat level.
func (p *Planet) MaxPopulation() int64 {
	max := p.Spec().MaxPopulation
	return max + max/10*int64(p.Buildings[BuildingHabitat])
}

// yieldMultiplier applies the matched production building: +10% per level.
func (p *Planet) yieldMultiplier(role Role) float64 {
	for b, r := range buildingRoles {
		if r == role {
			return 1.0 + 0.1*float64(p.Buildings[b])
		}
	}
	return 1.0
}

// ApplyTick advances the colony by one simulation tick: population grows by
// the habitability-scaled rate and each role accrues production into the
// stockpile. Ticks are identified by a monotonic index; replaying an index
// at or below the last applied one is a no-op, which makes tick delivery
// idempotent.
func (p *Planet) ApplyTick(tickIndex int64, now time.Time) bool {
	if tickIndex <= p.LastTickIndex {
		return false
	}
	p.LastTickIndex = tickIndex
	if !p.Colonized() || p.Population == 0 {
		p.UpdatedAt = now
		return true
	}
	spec := p.Spec()

	growth := int64(float64(p.Population) * spec.GrowthRate * float64(spec.Habitability) / 100.0)
	if p.UnderSiege {
		growth = 0
	}
	p.Population += growth
	if max := p.MaxPopulation(); p.Population > max {
		p.Population = max
	}

	for role, fraction := range p.Allocation {
		assigned := float64(p.Population) * fraction
		units := int64(assigned / 1000.0 * perColonistYield * spec.Yields[role] * p.yieldMultiplier(role))
		if units > 0 {
			p.Stockpile[role] += units
		}
	}
	p.UpdatedAt = now
	return true
}

// CollectStockpile empties a role's accrued production, returning the units.
func (p *Planet) CollectStockpile(role Role) int64 {
	units := p.Stockpile[role]
	p.Stockpile[role] = 0
	return units
}

// UpgradeCitadel raises ground defenses one level.
func (p *Planet) UpgradeCitadel(now time.Time) error {
	if p.CitadelLevel >= MaxCitadelLevel {
		return shared.NewConflictError("citadel is at maximum level")
	}
	p.CitadelLevel++
	p.UpdatedAt = now
	return nil
}

// UpgradeShield raises the planetary shield one level.
func (p *Planet) UpgradeShield(now time.Time) error {
	if p.ShieldLevel >= MaxShieldLevel {
		return shared.NewConflictError("shield is at maximum level")
	}
	p.ShieldLevel++
	p.UpdatedAt = now
	return nil
}

// StationDrones parks defensive drones in orbit.
func (p *Planet) StationDrones(count int, now time.Time) error {
	if count < 0 {
		return shared.NewValidationError("count", "must be non-negative")
	}
	p.DronesStation += count
	p.UpdatedAt = now
	return nil
}

// DefenseRating aggregates the planet's resistance to siege.
func (p *Planet) DefenseRating() float64 {
	return float64(p.CitadelLevel)*50 + float64(p.ShieldLevel)*80 +
		float64(p.DronesStation)*5 + float64(p.Buildings[BuildingDefenseGrid])*30
}

// BeginSiege marks the planet contested.
func (p *Planet) BeginSiege(now time.Time) error {
	if !p.Colonized() {
		return shared.NewConflictError("uncolonized planets cannot be besieged")
	}
	if p.UnderSiege {
		return shared.NewConflictError("planet is already under siege")
	}
	p.UnderSiege = true
	p.SiegeProgress = 0
	p.UpdatedAt = now
	return nil
}

// AdvanceSiege accumulates siege progress. Returns true when the planet
// falls (progress reaches 1).
func (p *Planet) AdvanceSiege(progress float64, now time.Time) bool {
	if !p.UnderSiege {
		return false
	}
	p.SiegeProgress += progress
	p.UpdatedAt = now
	return p.SiegeProgress >= 1.0
}

// BreakSiege lifts the siege without a transfer of ownership.
func (p *Planet) BreakSiege(now time.Time) {
	p.UnderSiege = false
	p.SiegeProgress = 0
	p.UpdatedAt = now
}

// Capture transfers ownership to the besieger and lifts the siege. The
// population stays; drones and shields are spent.
func (p *Planet) Capture(newOwner shared.PlayerID, now time.Time) error {
	if !p.UnderSiege {
		return shared.NewConflictError("planet is not under siege")
	}
	p.OwnerID = newOwner
	p.UnderSiege = false
	p.SiegeProgress = 0
	p.DronesStation = 0
	p.ShieldLevel = 0
	p.UpdatedAt = now
	return nil
}
