package faction

// ID identifies one of the fixed NPC factions.
type ID string

const (
	Federation  ID = "federation"
	Guild       ID = "merchant-guild"
	Frontier    ID = "frontier-coalition"
	Consortium  ID = "mining-consortium"
	Institute   ID = "nova-institute"
	Fringe      ID = "fringe-alliance"
)

// Territory weights how strongly a faction claims sectors at generation
// time. Claims concentrate inside the preferred security band; Share is the
// faction's slice of contested sectors relative to the other factions.
type Territory struct {
	MinSecurity int
	MaxSecurity int
	Share       float64
}

// Faction is a fixed catalog entry. Factions are not player organizations;
// they anchor reputation, missions and sector control.
type Faction struct {
	ID          ID
	Name        string
	Description string
	// Alignment biases which missions the faction posts and how its
	// patrols treat low-reputation players. Range [-1, 1], lawful to
	// outlaw.
	Alignment float64
	Territory Territory
}

var catalog = []Faction{
	{ID: Federation, Name: "Terran Federation", Alignment: 0.9,
		Territory:   Territory{MinSecurity: 7, MaxSecurity: 10, Share: 1.4},
		Description: "The old navy. Patrols core space and pays for order."},
	{ID: Guild, Name: "Merchant Guild", Alignment: 0.4,
		Territory:   Territory{MinSecurity: 5, MaxSecurity: 9, Share: 1.2},
		Description: "A cartel of traders. Rewards reliable freight and punishes piracy against members."},
	{ID: Frontier, Name: "Frontier Coalition", Alignment: 0.1,
		Territory:   Territory{MinSecurity: 3, MaxSecurity: 6, Share: 1.0},
		Description: "Settlers and independents holding the outer sectors together."},
	{ID: Consortium, Name: "Astral Mining Consortium", Alignment: -0.1,
		Territory:   Territory{MinSecurity: 2, MaxSecurity: 6, Share: 1.0},
		Description: "Industrial extraction at any cost. Buys ore, sells equipment, asks few questions."},
	{ID: Institute, Name: "Nova Scientific Institute", Alignment: 0.5,
		Territory:   Territory{MinSecurity: 4, MaxSecurity: 8, Share: 0.8},
		Description: "Researchers chasing anomalies. Pays well for technology and exploration data."},
	{ID: Fringe, Name: "Fringe Alliance", Alignment: -0.8,
		Territory:   Territory{MinSecurity: 1, MaxSecurity: 3, Share: 0.6},
		Description: "Smugglers and privateers working the edges of charted space."},
}

// Catalog lists all factions in stable order.
func Catalog() []Faction { return catalog }

// Lookup finds a faction by id.
func Lookup(id ID) (Faction, bool) {
	for _, f := range catalog {
		if f.ID == id {
			return f, true
		}
	}
	return Faction{}, false
}

// Valid reports whether the id names a cataloged faction.
func Valid(id ID) bool {
	_, ok := Lookup(id)
	return ok
}

// ClaimWeight scores a faction's pull on a sector with the given security
// level. Zero outside the preferred band, strongest at its center.
func (f Faction) ClaimWeight(security int) float64 {
	t := f.Territory
	if security < t.MinSecurity || security > t.MaxSecurity {
		return 0
	}
	center := float64(t.MinSecurity+t.MaxSecurity) / 2
	span := float64(t.MaxSecurity-t.MinSecurity)/2 + 1
	distance := float64(security) - center
	if distance < 0 {
		distance = -distance
	}
	return t.Share * (1 - distance/span)
}

// ClaimantFor picks the faction with the strongest claim on a security
// level, or false when no faction wants it.
func ClaimantFor(security int) (ID, bool) {
	var best ID
	bestWeight := 0.0
	for _, f := range catalog {
		if w := f.ClaimWeight(security); w > bestWeight {
			best, bestWeight = f.ID, w
		}
	}
	return best, bestWeight > 0
}
