package shared

import "sort"

// Commodity is a tradeable good. The catalog is fixed; stations carry a
// subset determined by their class.
type Commodity string

const (
	CommodityFuel        Commodity = "FUEL"
	CommodityOrganics    Commodity = "ORGANICS"
	CommodityEquipment   Commodity = "EQUIPMENT"
	CommodityOre         Commodity = "ORE"
	CommodityLuxuries    Commodity = "LUXURIES"
	CommodityMedical     Commodity = "MEDICAL"
	CommodityTechnology  Commodity = "TECHNOLOGY"
	CommodityColonists   Commodity = "COLONISTS"
	CommodityGenesisUnit Commodity = "GENESIS_UNIT"
)

// Commodities lists the catalog in a stable order.
func Commodities() []Commodity {
	return []Commodity{
		CommodityFuel, CommodityOrganics, CommodityEquipment, CommodityOre,
		CommodityLuxuries, CommodityMedical, CommodityTechnology,
		CommodityColonists, CommodityGenesisUnit,
	}
}

// ValidCommodity reports whether a raw symbol is in the catalog.
func ValidCommodity(raw string) bool {
	for _, c := range Commodities() {
		if string(c) == raw {
			return true
		}
	}
	return false
}

var basePrices = map[Commodity]int64{
	CommodityFuel:        25,
	CommodityOrganics:    40,
	CommodityEquipment:   120,
	CommodityOre:         65,
	CommodityLuxuries:    300,
	CommodityMedical:     180,
	CommodityTechnology:  250,
	CommodityColonists:   50,
	CommodityGenesisUnit: 25_000,
}

// BasePrice returns the catalog price of a commodity before regional and
// market adjustments.
func BasePrice(c Commodity) int64 { return basePrices[c] }

// Manifest is a ship's cargo hold: commodity → units.
//
// Invariants:
//   - every quantity is non-negative
//   - the sum of quantities never exceeds the hold capacity
type Manifest struct {
	Capacity int
	Items    map[Commodity]int
}

// NewManifest builds a manifest and checks the hold invariants.
func NewManifest(capacity int, items map[Commodity]int) (*Manifest, error) {
	if capacity < 0 {
		return nil, NewValidationError("capacity", "must be non-negative")
	}
	m := &Manifest{Capacity: capacity, Items: map[Commodity]int{}}
	total := 0
	for c, q := range items {
		if q < 0 {
			return nil, NewInvariantViolation("cargo quantity cannot be negative")
		}
		if q == 0 {
			continue
		}
		m.Items[c] = q
		total += q
	}
	if total > capacity {
		return nil, NewInvariantViolation("cargo exceeds hold capacity")
	}
	return m, nil
}

// Used returns the occupied units.
func (m *Manifest) Used() int {
	total := 0
	for _, q := range m.Items {
		total += q
	}
	return total
}

// Free returns the remaining hold space.
func (m *Manifest) Free() int { return m.Capacity - m.Used() }

// Quantity returns the held units of a commodity, zero when absent.
func (m *Manifest) Quantity(c Commodity) int { return m.Items[c] }

// Load adds units, failing when the hold would overflow.
func (m *Manifest) Load(c Commodity, units int) error {
	if units <= 0 {
		return NewValidationError("units", "must be positive")
	}
	if units > m.Free() {
		return NewValidationErrorf("cargo hold full: %d units free, %d requested", m.Free(), units)
	}
	m.Items[c] += units
	return nil
}

// Unload removes units, failing when the hold does not carry enough.
func (m *Manifest) Unload(c Commodity, units int) error {
	if units <= 0 {
		return NewValidationError("units", "must be positive")
	}
	held := m.Items[c]
	if units > held {
		return NewValidationErrorf("insufficient cargo: %d units of %s held, %d requested", held, c, units)
	}
	if held == units {
		delete(m.Items, c)
	} else {
		m.Items[c] = held - units
	}
	return nil
}

// Snapshot returns the manifest contents in stable commodity order, for
// deterministic serialization and event payloads.
func (m *Manifest) Snapshot() []ManifestEntry {
	entries := make([]ManifestEntry, 0, len(m.Items))
	for c, q := range m.Items {
		entries = append(entries, ManifestEntry{Commodity: c, Units: q})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Commodity < entries[j].Commodity })
	return entries
}

// ManifestEntry is one line of a cargo snapshot.
type ManifestEntry struct {
	Commodity Commodity `json:"commodity"`
	Units     int       `json:"units"`
}
