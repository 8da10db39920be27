package sector

import (
	"time"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// Type classifies a sector's terrain. Terrain drives hazard defaults and
// which planet types galaxy generation may place.
type Type string

const (
	TypeNormal    Type = "normal"
	TypeNebula    Type = "nebula"
	TypeAsteroid  Type = "asteroid"
	TypeIce       Type = "ice"
	TypeRadiation Type = "radiation"
	TypeVoid      Type = "void"
)

// Types lists the terrain catalog in stable order.
func Types() []Type {
	return []Type{TypeNormal, TypeNebula, TypeAsteroid, TypeIce, TypeRadiation, TypeVoid}
}

// MaxWarpLinks caps outgoing links per sector so regional topology stays
// navigable.
const MaxWarpLinks = 8

// Level bounds shared by security, development and traffic.
const (
	MinLevel = 1
	MaxLevel = 10
)

// Hazard and radiation bounds. Zero means benign.
const (
	MinHazard = 0
	MaxHazard = 10
)

// Sector is one node of a region's warp graph. Sectors are identified by
// their integer index, unique within the region.
type Sector struct {
	RegionID     shared.RegionID
	Index        int
	Name         string
	Type         Type
	Hazard       int
	Radiation    int
	Security     int
	Development  int
	Traffic      int
	District     string // Nexus only, empty elsewhere
	ControlledBy string // faction id, empty when uncontrolled
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Version      int
}

// New validates sector attributes at generation time.
func New(regionID shared.RegionID, index int, name string, typ Type, hazard, radiation, security int, now time.Time) (*Sector, error) {
	if index < 1 {
		return nil, shared.NewValidationError("index", "must be positive")
	}
	switch typ {
	case TypeNormal, TypeNebula, TypeAsteroid, TypeIce, TypeRadiation, TypeVoid:
	default:
		return nil, shared.NewValidationError("type", "unknown sector type")
	}
	if hazard < MinHazard || hazard > MaxHazard {
		return nil, shared.NewValidationErrorf("hazard must be in [%d, %d]", MinHazard, MaxHazard)
	}
	if radiation < MinHazard || radiation > MaxHazard {
		return nil, shared.NewValidationErrorf("radiation must be in [%d, %d]", MinHazard, MaxHazard)
	}
	if security < MinLevel || security > MaxLevel {
		return nil, shared.NewValidationErrorf("security must be in [%d, %d]", MinLevel, MaxLevel)
	}
	return &Sector{
		RegionID:    regionID,
		Index:       index,
		Name:        name,
		Type:        typ,
		Hazard:      hazard,
		Radiation:   radiation,
		Security:    security,
		Development: MinLevel,
		Traffic:     MinLevel,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// SetProfile assigns district statistics at Nexus initialization time.
func (s *Sector) SetProfile(district string, security, development, traffic int, now time.Time) error {
	for _, v := range []int{security, development, traffic} {
		if v < MinLevel || v > MaxLevel {
			return shared.NewValidationErrorf("levels must be in [%d, %d]", MinLevel, MaxLevel)
		}
	}
	s.District = district
	s.Security = security
	s.Development = development
	s.Traffic = traffic
	s.UpdatedAt = now
	return nil
}

// RecordTraffic nudges the traffic level toward recent activity. Traffic is
// a coarse signal for pricing and patrol density, not a counter.
func (s *Sector) RecordTraffic(now time.Time) {
	if s.Traffic < MaxLevel {
		s.Traffic++
		s.UpdatedAt = now
	}
}

// SetControl assigns or clears faction control.
func (s *Sector) SetControl(factionID string, now time.Time) {
	s.ControlledBy = factionID
	s.UpdatedAt = now
}

// Restriction gates passage over a warp link to a minimum regional
// membership tier. The empty restriction admits everyone.
type Restriction string

const (
	RestrictNone      Restriction = ""
	RestrictResidents Restriction = "residents"
	RestrictCitizens  Restriction = "citizens"
)

// WarpLink is a directed edge of the warp graph. Bidirectional passages are
// stored as two rows, one per direction.
type WarpLink struct {
	RegionID    shared.RegionID
	FromSector  int
	ToSector    int
	TurnCost    int
	Toll        int64 // credits collected on passage, zero for open lanes
	Restriction Restriction
	OneWay      bool
	CreatedAt   time.Time
}

// NewWarpLink validates an edge.
func NewWarpLink(regionID shared.RegionID, from, to, turnCost int, now time.Time) (*WarpLink, error) {
	if from == to {
		return nil, shared.NewValidationError("to_sector", "link cannot loop onto its own sector")
	}
	if turnCost < 1 {
		return nil, shared.NewValidationError("turn_cost", "must be at least 1")
	}
	return &WarpLink{
		RegionID:   regionID,
		FromSector: from,
		ToSector:   to,
		TurnCost:   turnCost,
		CreatedAt:  now,
	}, nil
}

// SetToll charges passage.
func (w *WarpLink) SetToll(amount int64) error {
	if amount < 0 {
		return shared.NewValidationError("toll", "must be non-negative")
	}
	w.Toll = amount
	return nil
}

// SetRestriction limits passage by membership tier.
func (w *WarpLink) SetRestriction(r Restriction) error {
	switch r {
	case RestrictNone, RestrictResidents, RestrictCitizens:
	default:
		return shared.NewValidationError("restriction", "unknown restriction")
	}
	w.Restriction = r
	return nil
}

// Passable reports whether a membership tier clears the link's restriction.
// The tier ranks are visitor < resident < citizen; administrators bypass
// this check at the application layer.
func (w *WarpLink) Passable(membershipRank int) bool {
	switch w.Restriction {
	case RestrictResidents:
		return membershipRank >= 1
	case RestrictCitizens:
		return membershipRank >= 2
	default:
		return true
	}
}
