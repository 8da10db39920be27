package galaxy_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sectorwars/gameserver/internal/domain/galaxy"
	"github.com/sectorwars/gameserver/internal/domain/region"
	"github.com/sectorwars/gameserver/internal/domain/sector"
	"github.com/sectorwars/gameserver/internal/domain/shared"
)

func testSpec(name string, sectors int, seed int64) region.Spec {
	return region.Spec{
		Name:           name,
		DisplayName:    name,
		SectorCount:    sectors,
		Specialization: "mining",
		Seed:           seed,
	}
}

// layoutFingerprint flattens the structural content of a blueprint. Row ids
// are freshly minted on every generation, so equality is asserted over the
// generated structure rather than the aggregates themselves.
func layoutFingerprint(bp *galaxy.Blueprint) []string {
	var rows []string
	for _, s := range bp.Sectors {
		rows = append(rows, fmt.Sprintf("sector %d %s hz=%d rad=%d sec=%d ctl=%s",
			s.Index, s.Type, s.Hazard, s.Radiation, s.Security, s.ControlledBy))
	}
	for _, l := range bp.Links {
		rows = append(rows, fmt.Sprintf("link %d->%d cost=%d", l.FromSector, l.ToSector, l.TurnCost))
	}
	for _, p := range bp.Planets {
		rows = append(rows, fmt.Sprintf("planet %d %s %s", p.Sector, p.Name, p.Type))
	}
	for _, st := range bp.Stations {
		rows = append(rows, fmt.Sprintf("station %d %s class=%d paired=%d", st.Sector, st.Name, st.Class, st.PairedPlanet))
	}
	rows = append(rows, fmt.Sprintf("gate %d", bp.GateSector))
	return rows
}

func TestGenerateIsDeterministic(t *testing.T) {
	now := time.Date(2102, 3, 1, 12, 0, 0, 0, time.UTC)
	spec := testSpec("meridian", 200, 2102)

	first, err := galaxy.Generate(shared.NewRegionID(), spec, galaxy.GateFirst, now)
	require.NoError(t, err)
	second, err := galaxy.Generate(shared.NewRegionID(), spec, galaxy.GateFirst, now)
	require.NoError(t, err)

	assert.Equal(t, layoutFingerprint(first), layoutFingerprint(second))
}

func TestGenerateVariesWithTheSeed(t *testing.T) {
	now := time.Now()
	a, err := galaxy.Generate(shared.NewRegionID(), testSpec("meridian", 200, 1), galaxy.GateFirst, now)
	require.NoError(t, err)
	b, err := galaxy.Generate(shared.NewRegionID(), testSpec("meridian", 200, 2), galaxy.GateFirst, now)
	require.NoError(t, err)

	assert.NotEqual(t, layoutFingerprint(a), layoutFingerprint(b))
}

func TestWarpGraphIsConnectedWithinTheLinkCap(t *testing.T) {
	now := time.Now()
	bp, err := galaxy.Generate(shared.NewRegionID(), testSpec("frontier-9", 300, 77), galaxy.GateFirst, now)
	require.NoError(t, err)
	require.Len(t, bp.Sectors, 300)

	adjacency := make(map[int][]int)
	outDegree := make(map[int]int)
	for _, l := range bp.Links {
		adjacency[l.FromSector] = append(adjacency[l.FromSector], l.ToSector)
		outDegree[l.FromSector]++
		assert.GreaterOrEqual(t, l.TurnCost, 1)
	}
	for idx, d := range outDegree {
		assert.LessOrEqualf(t, d, sector.MaxWarpLinks, "sector %d exceeds the link cap", idx)
	}

	visited := map[int]bool{1: true}
	queue := []int{1}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adjacency[cur] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	assert.Len(t, visited, 300, "every sector must reach sector 1")
}

func TestGatePolicies(t *testing.T) {
	now := time.Now()
	spec := testSpec("gateland", 150, 9)

	first, err := galaxy.Generate(shared.NewRegionID(), spec, galaxy.GateFirst, now)
	require.NoError(t, err)
	assert.Equal(t, 1, first.GateSector)

	central, err := galaxy.Generate(shared.NewRegionID(), spec, galaxy.GateCentral, now)
	require.NoError(t, err)
	assert.Equal(t, central.Sectors[len(central.Sectors)/2].Index, central.GateSector)

	secure, err := galaxy.Generate(shared.NewRegionID(), spec, galaxy.GateHighSecurity, now)
	require.NoError(t, err)
	best := secure.Sectors[0]
	for _, s := range secure.Sectors[1:] {
		if s.Security > best.Security {
			best = s
		}
	}
	assert.Equal(t, best.Index, secure.GateSector)
}

func TestGenerateRejectsSectorCountsOutOfRange(t *testing.T) {
	now := time.Now()
	_, err := galaxy.Generate(shared.NewRegionID(), testSpec("tiny", region.MinSectors-1, 1), galaxy.GateFirst, now)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = galaxy.Generate(shared.NewRegionID(), testSpec("vast", region.MaxSectors+1, 1), galaxy.GateFirst, now)
	require.ErrorIs(t, err, shared.ErrValidation)
}
