package galaxy

import (
	"github.com/sectorwars/gameserver/internal/domain/planet"
	"github.com/sectorwars/gameserver/internal/domain/sector"
	"github.com/sectorwars/gameserver/internal/domain/station"
)

// Specialization tags a region's economic slant. The tag selects a
// generation profile; unknown tags fall back to balanced.
const (
	SpecBalanced     = "balanced"
	SpecCommerce     = "commerce"
	SpecMining       = "mining"
	SpecAgricultural = "agricultural"
	SpecIndustrial   = "industrial"
	SpecResearch     = "research"
	SpecFrontier     = "frontier"
)

// weighted is one entry of a roll table. Weights are relative, not
// normalized.
type weighted[T any] struct {
	value  T
	weight int
}

// Profile fixes the densities and distributions one specialization
// generates with. All draws during generation come from these tables so that
// two regions with the same (seed, spec) are structurally identical.
type Profile struct {
	sectorTypes []weighted[sector.Type]
	// securityMin/Max bound the rolled security level of ordinary sectors.
	securityMin, securityMax int
	// planetDensity and stationDensity are per-sector placement chances in
	// [0,1].
	planetDensity  float64
	stationDensity float64
	planetTypes    []weighted[planet.Type]
	stationClasses []weighted[station.Class]
	// extraLinkRatio scales how many edges are added beyond the spanning
	// tree, as a fraction of the sector count.
	extraLinkRatio float64
}

var profiles = map[string]Profile{
	SpecBalanced: {
		sectorTypes: []weighted[sector.Type]{
			{sector.TypeNormal, 55}, {sector.TypeNebula, 12}, {sector.TypeAsteroid, 12},
			{sector.TypeIce, 10}, {sector.TypeRadiation, 6}, {sector.TypeVoid, 5},
		},
		securityMin: 2, securityMax: 8,
		planetDensity: 0.14, stationDensity: 0.10,
		planetTypes: []weighted[planet.Type]{
			{planet.TypeTerran, 15}, {planet.TypeOceanic, 14}, {planet.TypeDesert, 15},
			{planet.TypeJungle, 12}, {planet.TypeVolcanic, 12}, {planet.TypeIce, 12},
			{planet.TypeGasGiant, 10}, {planet.TypeBarren, 10},
		},
		stationClasses: []weighted[station.Class]{
			{0, 20}, {1, 12}, {2, 12}, {3, 12}, {4, 10}, {5, 6},
			{6, 6}, {7, 4}, {8, 8}, {9, 2}, {10, 4}, {11, 4},
		},
		extraLinkRatio: 0.25,
	},
	SpecCommerce: {
		sectorTypes: []weighted[sector.Type]{
			{sector.TypeNormal, 70}, {sector.TypeNebula, 8}, {sector.TypeAsteroid, 8},
			{sector.TypeIce, 6}, {sector.TypeRadiation, 4}, {sector.TypeVoid, 4},
		},
		securityMin: 4, securityMax: 9,
		planetDensity: 0.12, stationDensity: 0.18,
		planetTypes: []weighted[planet.Type]{
			{planet.TypeTerran, 22}, {planet.TypeOceanic, 18}, {planet.TypeDesert, 12},
			{planet.TypeJungle, 14}, {planet.TypeVolcanic, 8}, {planet.TypeIce, 10},
			{planet.TypeGasGiant, 8}, {planet.TypeBarren, 8},
		},
		stationClasses: []weighted[station.Class]{
			{0, 8}, {1, 6}, {2, 10}, {3, 10}, {4, 24}, {5, 6},
			{6, 4}, {7, 12}, {8, 8}, {9, 4}, {10, 4}, {11, 4},
		},
		extraLinkRatio: 0.35,
	},
	SpecMining: {
		sectorTypes: []weighted[sector.Type]{
			{sector.TypeNormal, 30}, {sector.TypeNebula, 8}, {sector.TypeAsteroid, 40},
			{sector.TypeIce, 10}, {sector.TypeRadiation, 8}, {sector.TypeVoid, 4},
		},
		securityMin: 1, securityMax: 6,
		planetDensity: 0.10, stationDensity: 0.12,
		planetTypes: []weighted[planet.Type]{
			{planet.TypeTerran, 6}, {planet.TypeOceanic, 6}, {planet.TypeDesert, 18},
			{planet.TypeJungle, 4}, {planet.TypeVolcanic, 24}, {planet.TypeIce, 14},
			{planet.TypeGasGiant, 10}, {planet.TypeBarren, 18},
		},
		stationClasses: []weighted[station.Class]{
			{0, 14}, {1, 36}, {2, 4}, {3, 14}, {4, 6}, {5, 4},
			{6, 2}, {7, 2}, {8, 6}, {9, 2}, {10, 6}, {11, 4},
		},
		extraLinkRatio: 0.18,
	},
	SpecAgricultural: {
		sectorTypes: []weighted[sector.Type]{
			{sector.TypeNormal, 68}, {sector.TypeNebula, 10}, {sector.TypeAsteroid, 6},
			{sector.TypeIce, 8}, {sector.TypeRadiation, 4}, {sector.TypeVoid, 4},
		},
		securityMin: 3, securityMax: 8,
		planetDensity: 0.22, stationDensity: 0.10,
		planetTypes: []weighted[planet.Type]{
			{planet.TypeTerran, 26}, {planet.TypeOceanic, 22}, {planet.TypeDesert, 8},
			{planet.TypeJungle, 22}, {planet.TypeVolcanic, 4}, {planet.TypeIce, 8},
			{planet.TypeGasGiant, 4}, {planet.TypeBarren, 6},
		},
		stationClasses: []weighted[station.Class]{
			{0, 14}, {1, 4}, {2, 36}, {3, 6}, {4, 10}, {5, 6},
			{6, 2}, {7, 4}, {8, 12}, {9, 2}, {10, 2}, {11, 2},
		},
		extraLinkRatio: 0.22,
	},
	SpecIndustrial: {
		sectorTypes: []weighted[sector.Type]{
			{sector.TypeNormal, 50}, {sector.TypeNebula, 8}, {sector.TypeAsteroid, 20},
			{sector.TypeIce, 8}, {sector.TypeRadiation, 10}, {sector.TypeVoid, 4},
		},
		securityMin: 3, securityMax: 7,
		planetDensity: 0.12, stationDensity: 0.16,
		planetTypes: []weighted[planet.Type]{
			{planet.TypeTerran, 10}, {planet.TypeOceanic, 8}, {planet.TypeDesert, 16},
			{planet.TypeJungle, 6}, {planet.TypeVolcanic, 20}, {planet.TypeIce, 12},
			{planet.TypeGasGiant, 12}, {planet.TypeBarren, 16},
		},
		stationClasses: []weighted[station.Class]{
			{0, 8}, {1, 12}, {2, 6}, {3, 32}, {4, 8}, {5, 4},
			{6, 4}, {7, 2}, {8, 6}, {9, 4}, {10, 10}, {11, 4},
		},
		extraLinkRatio: 0.28,
	},
	SpecResearch: {
		sectorTypes: []weighted[sector.Type]{
			{sector.TypeNormal, 45}, {sector.TypeNebula, 22}, {sector.TypeAsteroid, 8},
			{sector.TypeIce, 10}, {sector.TypeRadiation, 10}, {sector.TypeVoid, 5},
		},
		securityMin: 4, securityMax: 9,
		planetDensity: 0.12, stationDensity: 0.12,
		planetTypes: []weighted[planet.Type]{
			{planet.TypeTerran, 14}, {planet.TypeOceanic, 14}, {planet.TypeDesert, 10},
			{planet.TypeJungle, 12}, {planet.TypeVolcanic, 10}, {planet.TypeIce, 16},
			{planet.TypeGasGiant, 14}, {planet.TypeBarren, 10},
		},
		stationClasses: []weighted[station.Class]{
			{0, 10}, {1, 4}, {2, 6}, {3, 8}, {4, 8}, {5, 14},
			{6, 30}, {7, 4}, {8, 6}, {9, 2}, {10, 4}, {11, 4},
		},
		extraLinkRatio: 0.22,
	},
	SpecFrontier: {
		sectorTypes: []weighted[sector.Type]{
			{sector.TypeNormal, 40}, {sector.TypeNebula, 14}, {sector.TypeAsteroid, 14},
			{sector.TypeIce, 12}, {sector.TypeRadiation, 10}, {sector.TypeVoid, 10},
		},
		securityMin: 1, securityMax: 5,
		planetDensity: 0.16, stationDensity: 0.07,
		planetTypes: []weighted[planet.Type]{
			{planet.TypeTerran, 10}, {planet.TypeOceanic, 10}, {planet.TypeDesert, 16},
			{planet.TypeJungle, 12}, {planet.TypeVolcanic, 12}, {planet.TypeIce, 14},
			{planet.TypeGasGiant, 10}, {planet.TypeBarren, 16},
		},
		stationClasses: []weighted[station.Class]{
			{0, 34}, {1, 10}, {2, 10}, {3, 6}, {4, 4}, {5, 4},
			{6, 2}, {7, 2}, {8, 12}, {9, 0}, {10, 2}, {11, 14},
		},
		extraLinkRatio: 0.15,
	},
}

// ProfileFor resolves a specialization tag, falling back to balanced.
func ProfileFor(specialization string) Profile {
	if p, ok := profiles[specialization]; ok {
		return p
	}
	return profiles[SpecBalanced]
}

// Specializations lists the known tags in stable order.
func Specializations() []string {
	return []string{SpecBalanced, SpecCommerce, SpecMining, SpecAgricultural, SpecIndustrial, SpecResearch, SpecFrontier}
}
