// Package galaxy generates the physical content of a region shard: sectors,
// the warp graph, planets and stations. Generation is a pure function of
// (seed, region spec); the same inputs always produce a structurally
// identical galaxy, which keeps shard provisioning reproducible and lets
// tests assert on exact layouts.
package galaxy

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/sectorwars/gameserver/internal/domain/faction"
	"github.com/sectorwars/gameserver/internal/domain/planet"
	"github.com/sectorwars/gameserver/internal/domain/region"
	"github.com/sectorwars/gameserver/internal/domain/sector"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/domain/station"
)

// GatePolicy picks which sector hosts the region's Nexus gate.
type GatePolicy string

const (
	// GateFirst pins the gate to sector 1.
	GateFirst GatePolicy = "first"
	// GateCentral pins the gate to the middle sector index.
	GateCentral GatePolicy = "central"
	// GateHighSecurity picks the most secure sector, lowest index on ties.
	GateHighSecurity GatePolicy = "high-security"
)

// Blueprint is the generated content of one region, ready for persistence.
type Blueprint struct {
	Sectors    []*sector.Sector
	Links      []*sector.WarpLink
	Planets    []*planet.Planet
	Stations   []*station.Station
	GateSector int
}

// controlChance is the fraction of sectors assigned to a claiming faction.
const controlChance = 0.6

var planetStems = []string{
	"Arcadia", "Boreas", "Cygnus", "Deneb", "Erebus", "Fomalhaut",
	"Gliese", "Hyperion", "Ixion", "Janus", "Kepler", "Lyra",
	"Meridian", "Nysa", "Oberon", "Pallas", "Quaoar", "Rigel",
	"Sedna", "Thule", "Umbra", "Vesta", "Wolf", "Zenith",
}

// Generate produces a region's galaxy from its frozen spec. The warp graph
// is connected, every sector reaches the gate sector, and no sector exceeds
// the link cap.
func Generate(regionID shared.RegionID, spec region.Spec, gatePolicy GatePolicy, now time.Time) (*Blueprint, error) {
	if spec.SectorCount < region.MinSectors || spec.SectorCount > region.MaxSectors {
		return nil, shared.NewValidationErrorf("sector_count must be in [%d, %d]", region.MinSectors, region.MaxSectors)
	}
	rng := rand.New(rand.NewSource(spec.Seed))
	profile := ProfileFor(spec.Specialization)

	bp := &Blueprint{}
	if err := generateSectors(bp, rng, profile, regionID, spec, now); err != nil {
		return nil, err
	}
	if err := generateLinks(bp, rng, profile, regionID, spec.SectorCount, now); err != nil {
		return nil, err
	}
	if err := generateBodies(bp, rng, profile, regionID, now); err != nil {
		return nil, err
	}
	bp.GateSector = pickGate(bp.Sectors, gatePolicy)
	return bp, nil
}

func generateSectors(bp *Blueprint, rng *rand.Rand, profile Profile, regionID shared.RegionID, spec region.Spec, now time.Time) error {
	for i := 1; i <= spec.SectorCount; i++ {
		typ := rollWeighted(rng, profile.sectorTypes)
		hazard, radiation := terrainLevels(rng, typ)
		security := rollBetween(rng, profile.securityMin, profile.securityMax)
		s, err := sector.New(regionID, i, fmt.Sprintf("%s-%d", spec.Name, i), typ, hazard, radiation, security, now)
		if err != nil {
			return err
		}
		if claimant, ok := faction.ClaimantFor(security); ok && rng.Float64() < controlChance {
			s.SetControl(string(claimant), now)
		}
		bp.Sectors = append(bp.Sectors, s)
	}
	return nil
}

// generateLinks builds a random spanning tree over the sector indices, then
// sprinkles extra edges. Every link is stored as two directed rows. The
// spanning tree guarantees connectivity; the degree map enforces the cap.
func generateLinks(bp *Blueprint, rng *rand.Rand, profile Profile, regionID shared.RegionID, n int, now time.Time) error {
	degree := make(map[int]int, n)
	adjacent := make(map[[2]int]bool)

	connect := func(a, b int) error {
		cost := 1 + rng.Intn(3)
		forward, err := sector.NewWarpLink(regionID, a, b, cost, now)
		if err != nil {
			return err
		}
		backward, err := sector.NewWarpLink(regionID, b, a, cost, now)
		if err != nil {
			return err
		}
		bp.Links = append(bp.Links, forward, backward)
		degree[a]++
		degree[b]++
		adjacent[edgeKey(a, b)] = true
		return nil
	}

	for i := 2; i <= n; i++ {
		anchor := 1 + rng.Intn(i-1)
		// Walk forward from the rolled anchor until one has capacity. At
		// least one earlier sector always does: a full chain uses 2 links
		// per sector.
		for degree[anchor] >= sector.MaxWarpLinks-1 {
			anchor = anchor%(i-1) + 1
		}
		if err := connect(anchor, i); err != nil {
			return err
		}
	}

	extras := int(float64(n) * profile.extraLinkRatio)
	for attempt := 0; attempt < extras*3 && extras > 0; attempt++ {
		a := 1 + rng.Intn(n)
		b := 1 + rng.Intn(n)
		if a == b || adjacent[edgeKey(a, b)] {
			continue
		}
		if degree[a] >= sector.MaxWarpLinks || degree[b] >= sector.MaxWarpLinks {
			continue
		}
		if err := connect(a, b); err != nil {
			return err
		}
		extras--
	}
	return nil
}

func generateBodies(bp *Blueprint, rng *rand.Rand, profile Profile, regionID shared.RegionID, now time.Time) error {
	for _, s := range bp.Sectors {
		if s.Type != sector.TypeVoid && rng.Float64() < profile.planetDensity {
			typ := rollWeighted(rng, profile.planetTypes)
			name := fmt.Sprintf("%s %d", planetStems[rng.Intn(len(planetStems))], s.Index)
			p, err := planet.New(regionID, s.Index, name, typ, now)
			if err != nil {
				return err
			}
			bp.Planets = append(bp.Planets, p)
		}
		if rng.Float64() < profile.stationDensity {
			class := rollWeighted(rng, profile.stationClasses)
			spec, _ := station.SpecForClass(class)
			capacity := 500 + rng.Intn(1501)
			st, err := station.New(regionID, s.Index, fmt.Sprintf("%s %d", spec.Name, s.Index), class, capacity, now)
			if err != nil {
				return err
			}
			if s.ControlledBy != "" {
				st.SetAffiliation(s.ControlledBy, now)
			}
			// Stations pair with a planet sharing their sector.
			for _, p := range bp.Planets {
				if p.Sector == s.Index {
					if err := st.PairWithPlanet(s.Index, now); err != nil {
						return err
					}
					break
				}
			}
			bp.Stations = append(bp.Stations, st)
		}
	}
	return nil
}

func pickGate(sectors []*sector.Sector, policy GatePolicy) int {
	switch policy {
	case GateCentral:
		return sectors[len(sectors)/2].Index
	case GateHighSecurity:
		best := sectors[0]
		for _, s := range sectors[1:] {
			if s.Security > best.Security {
				best = s
			}
		}
		return best.Index
	default:
		return sectors[0].Index
	}
}

// terrainLevels rolls hazard and radiation bands for a terrain type.
func terrainLevels(rng *rand.Rand, typ sector.Type) (hazard, radiation int) {
	switch typ {
	case sector.TypeNebula:
		return rollBetween(rng, 2, 5), rollBetween(rng, 2, 5)
	case sector.TypeAsteroid:
		return rollBetween(rng, 3, 6), rollBetween(rng, 0, 2)
	case sector.TypeIce:
		return rollBetween(rng, 2, 4), rollBetween(rng, 0, 1)
	case sector.TypeRadiation:
		return rollBetween(rng, 4, 8), rollBetween(rng, 5, 10)
	case sector.TypeVoid:
		return rollBetween(rng, 1, 3), rollBetween(rng, 0, 1)
	default:
		return rollBetween(rng, 0, 2), rollBetween(rng, 0, 1)
	}
}

func rollBetween(rng *rand.Rand, min, max int) int {
	if max <= min {
		return min
	}
	return min + rng.Intn(max-min+1)
}

func rollWeighted[T any](rng *rand.Rand, table []weighted[T]) T {
	total := 0
	for _, w := range table {
		total += w.weight
	}
	roll := rng.Intn(total)
	for _, w := range table {
		roll -= w.weight
		if roll < 0 {
			return w.value
		}
	}
	return table[len(table)-1].value
}

func edgeKey(a, b int) [2]int {
	if a > b {
		a, b = b, a
	}
	return [2]int{a, b}
}
