package galaxy

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/sectorwars/gameserver/internal/domain/sector"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/domain/station"
)

// NexusSectorCount is the fixed size of the hub region: the sum of all
// district allocations.
const NexusSectorCount = 5000

// District is one fixed zone of the Central Nexus. Sector ranges are
// assigned contiguously in catalog order at initialization.
type District struct {
	Tag         string
	Sectors     int
	SecurityMin int
	SecurityMax int
	DevMin      int
	DevMax      int
	TrafficMin  int
	TrafficMax  int
}

var nexusDistricts = []District{
	{"commerce-central", 500, 7, 9, 8, 10, 8, 10},
	{"diplomatic-quarter", 300, 8, 10, 7, 9, 4, 7},
	{"industrial-zone", 600, 4, 7, 6, 9, 6, 9},
	{"residential-district", 800, 5, 8, 5, 8, 3, 6},
	{"transit-hub", 400, 6, 8, 7, 10, 8, 10},
	{"high-security-zone", 200, 9, 10, 8, 10, 1, 3},
	{"cultural-center", 350, 6, 8, 6, 9, 5, 8},
	{"research-campus", 450, 7, 9, 8, 10, 3, 6},
	{"free-trade-zone", 600, 3, 6, 5, 8, 7, 10},
	{"gateway-plaza", 800, 6, 8, 6, 8, 8, 10},
}

// Districts lists the Nexus zone catalog in layout order.
func Districts() []District { return nexusDistricts }

// districtStationDensity gives some zones a heavier commercial footprint.
var districtStationDensity = map[string]float64{
	"commerce-central":     0.30,
	"diplomatic-quarter":   0.08,
	"industrial-zone":      0.20,
	"residential-district": 0.06,
	"transit-hub":          0.22,
	"high-security-zone":   0.10,
	"cultural-center":      0.10,
	"research-campus":      0.14,
	"free-trade-zone":      0.26,
	"gateway-plaza":        0.18,
}

// GenerateNexus lays out the hub region: contiguous district ranges with the
// catalog's stat bands, a connected warp graph, and district-weighted
// stations. The hub hosts no colonizable planets.
func GenerateNexus(regionID shared.RegionID, seed int64, now time.Time) (*Blueprint, error) {
	rng := rand.New(rand.NewSource(seed))
	bp := &Blueprint{}

	index := 1
	for _, d := range nexusDistricts {
		for i := 0; i < d.Sectors; i++ {
			s, err := sector.New(regionID, index, fmt.Sprintf("nexus-%d", index), sector.TypeNormal,
				0, 0, rollBetween(rng, d.SecurityMin, d.SecurityMax), now)
			if err != nil {
				return nil, err
			}
			err = s.SetProfile(d.Tag,
				s.Security,
				rollBetween(rng, d.DevMin, d.DevMax),
				rollBetween(rng, d.TrafficMin, d.TrafficMax),
				now)
			if err != nil {
				return nil, err
			}
			bp.Sectors = append(bp.Sectors, s)
			index++
		}
	}

	hub := ProfileFor(SpecCommerce)
	if err := generateLinks(bp, rng, hub, regionID, NexusSectorCount, now); err != nil {
		return nil, err
	}

	for _, s := range bp.Sectors {
		density := districtStationDensity[s.District]
		if rng.Float64() >= density {
			continue
		}
		class := rollWeighted(rng, hub.stationClasses)
		spec, _ := station.SpecForClass(class)
		capacity := 1000 + rng.Intn(2001)
		st, err := station.New(regionID, s.Index, fmt.Sprintf("%s %d", spec.Name, s.Index), class, capacity, now)
		if err != nil {
			return nil, err
		}
		bp.Stations = append(bp.Stations, st)
	}

	// gateway-plaza anchors inbound gates from every other region.
	bp.GateSector = gatewayPlazaStart()
	return bp, nil
}

// gatewayPlazaStart is the first sector index of the gateway-plaza district.
func gatewayPlazaStart() int {
	index := 1
	for _, d := range nexusDistricts {
		if d.Tag == "gateway-plaza" {
			return index
		}
		index += d.Sectors
	}
	return 1
}
