package ship

// HullClass identifies an entry of the fixed hull catalog.
type HullClass string

const (
	HullScout          HullClass = "scout"
	HullCourier        HullClass = "courier"
	HullLightFreighter HullClass = "light-freighter"
	HullCargoHauler    HullClass = "cargo-hauler"
	HullDefender       HullClass = "defender"
	HullCarrier        HullClass = "carrier"
	HullColonyShip     HullClass = "colony-ship"
	HullWarpJumper     HullClass = "warp-jumper"
)

// HullSpec is the immutable stat block of a hull class. Gameplay math reads
// these values; they are never persisted per ship.
type HullSpec struct {
	Class          HullClass
	DisplayName    string
	CargoHolds     int
	FuelCapacity   int
	DroneCapacity  int
	ShieldRating   int
	CombatRating   int
	ModSlots       int
	InitiativeBase float64
	TurnCostFactor float64
	WarpCapable    bool // can cross regions without a gate
	GenesisCapable bool // can deploy genesis devices
	BasePrice      int64
}

var hullCatalog = map[HullClass]HullSpec{
	HullScout: {
		Class: HullScout, DisplayName: "Scout",
		CargoHolds: 10, FuelCapacity: 60, DroneCapacity: 2, ShieldRating: 20, CombatRating: 30,
		ModSlots: 1, InitiativeBase: 9.0, TurnCostFactor: 0.5, BasePrice: 15_000,
	},
	HullCourier: {
		Class: HullCourier, DisplayName: "Courier",
		CargoHolds: 25, FuelCapacity: 80, DroneCapacity: 2, ShieldRating: 25, CombatRating: 25,
		ModSlots: 2, InitiativeBase: 8.0, TurnCostFactor: 0.75, BasePrice: 30_000,
	},
	HullLightFreighter: {
		Class: HullLightFreighter, DisplayName: "Light Freighter",
		CargoHolds: 80, FuelCapacity: 120, DroneCapacity: 4, ShieldRating: 40, CombatRating: 35,
		ModSlots: 2, InitiativeBase: 6.0, TurnCostFactor: 1.0, BasePrice: 75_000,
	},
	HullCargoHauler: {
		Class: HullCargoHauler, DisplayName: "Cargo Hauler",
		CargoHolds: 250, FuelCapacity: 200, DroneCapacity: 6, ShieldRating: 60, CombatRating: 30,
		ModSlots: 3, InitiativeBase: 3.0, TurnCostFactor: 1.5, BasePrice: 220_000,
	},
	HullDefender: {
		Class: HullDefender, DisplayName: "Defender",
		CargoHolds: 40, FuelCapacity: 140, DroneCapacity: 12, ShieldRating: 120, CombatRating: 90,
		ModSlots: 3, InitiativeBase: 7.0, TurnCostFactor: 1.0, BasePrice: 180_000,
	},
	HullCarrier: {
		Class: HullCarrier, DisplayName: "Carrier",
		CargoHolds: 120, FuelCapacity: 260, DroneCapacity: 40, ShieldRating: 150, CombatRating: 70,
		ModSlots: 4, InitiativeBase: 4.0, TurnCostFactor: 1.5, BasePrice: 450_000,
	},
	HullColonyShip: {
		Class: HullColonyShip, DisplayName: "Colony Ship",
		CargoHolds: 300, FuelCapacity: 300, DroneCapacity: 4, ShieldRating: 80, CombatRating: 20,
		ModSlots: 2, InitiativeBase: 2.0, TurnCostFactor: 2.0, GenesisCapable: true, BasePrice: 600_000,
	},
	HullWarpJumper: {
		Class: HullWarpJumper, DisplayName: "Warp Jumper",
		CargoHolds: 60, FuelCapacity: 400, DroneCapacity: 4, ShieldRating: 70, CombatRating: 45,
		ModSlots: 2, InitiativeBase: 7.5, TurnCostFactor: 1.0, WarpCapable: true, BasePrice: 850_000,
	},
}

// Catalog returns the hull specs in a stable order.
func Catalog() []HullSpec {
	order := []HullClass{
		HullScout, HullCourier, HullLightFreighter, HullCargoHauler,
		HullDefender, HullCarrier, HullColonyShip, HullWarpJumper,
	}
	specs := make([]HullSpec, 0, len(order))
	for _, c := range order {
		specs = append(specs, hullCatalog[c])
	}
	return specs
}

// SpecFor looks up a hull class.
func SpecFor(class HullClass) (HullSpec, bool) {
	spec, ok := hullCatalog[class]
	return spec, ok
}

// Modification is an installed hull upgrade occupying one slot.
type Modification string

const (
	ModCargoExpander Modification = "cargo-expander" // +20 holds
	ModShieldBooster Modification = "shield-booster" // +25 shield
	ModDroneBay      Modification = "drone-bay"      // +4 drone capacity
	ModAfterburner   Modification = "afterburner"    // +1.0 initiative
	ModFuelScoop     Modification = "fuel-scoop"     // +50 fuel capacity
)

// ModPrice quotes a modification at the shipyard.
var ModPrice = map[Modification]int64{
	ModCargoExpander: 18_000,
	ModShieldBooster: 22_000,
	ModDroneBay:      15_000,
	ModAfterburner:   30_000,
	ModFuelScoop:     9_000,
}

// ValidModification reports whether the symbol names a known upgrade.
func ValidModification(m Modification) bool {
	_, ok := ModPrice[m]
	return ok
}
