package station

import (
	"time"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// Service is a bit in a station's service mask. Capabilities are discovered
// by examining the mask, never by station sub-typing.
type Service uint8

const (
	ServiceFuel Service = 1 << iota
	ServiceRepairs
	ServiceTrading
	ServiceShipyard
	ServiceEquipment
	ServiceInformation
)

// ServiceNames maps mask bits to their wire names, in bit order.
var ServiceNames = []struct {
	Bit  Service
	Name string
}{
	{ServiceFuel, "fuel"},
	{ServiceRepairs, "repairs"},
	{ServiceTrading, "trading"},
	{ServiceShipyard, "shipyard"},
	{ServiceEquipment, "equipment"},
	{ServiceInformation, "information"},
}

// Names expands a mask into wire names.
func (s Service) Names() []string {
	var names []string
	for _, entry := range ServiceNames {
		if s&entry.Bit != 0 {
			names = append(names, entry.Name)
		}
	}
	return names
}

// OperationalStatus is the station's availability.
type OperationalStatus string

const (
	StatusOperational  OperationalStatus = "operational"
	StatusDegraded     OperationalStatus = "degraded"
	StatusOffline      OperationalStatus = "offline"
	StatusUnderSiege   OperationalStatus = "under-siege"
	StatusDecommission OperationalStatus = "decommissioned"
)

// Class is a station trading class, 0 through 11. The class fixes which
// commodities the station buys and sells and which services it offers.
type Class int

const (
	MinClass Class = 0
	MaxClass Class = 11
)

// ClassSpec describes one station class.
type ClassSpec struct {
	Class    Class
	Name     string
	Buys     []shared.Commodity
	Sells    []shared.Commodity
	Services Service
}

var classCatalog = map[Class]ClassSpec{
	0: {Class: 0, Name: "Outpost",
		Buys:     []shared.Commodity{shared.CommodityOrganics},
		Sells:    []shared.Commodity{shared.CommodityFuel},
		Services: ServiceFuel | ServiceTrading},
	1: {Class: 1, Name: "Mining Depot",
		Buys:     []shared.Commodity{shared.CommodityEquipment, shared.CommodityOrganics},
		Sells:    []shared.Commodity{shared.CommodityOre, shared.CommodityFuel},
		Services: ServiceFuel | ServiceTrading},
	2: {Class: 2, Name: "Agricultural Port",
		Buys:     []shared.Commodity{shared.CommodityEquipment, shared.CommodityOre},
		Sells:    []shared.Commodity{shared.CommodityOrganics, shared.CommodityFuel},
		Services: ServiceFuel | ServiceTrading},
	3: {Class: 3, Name: "Industrial Port",
		Buys:     []shared.Commodity{shared.CommodityOre, shared.CommodityOrganics},
		Sells:    []shared.Commodity{shared.CommodityEquipment, shared.CommodityFuel},
		Services: ServiceFuel | ServiceTrading | ServiceEquipment},
	4: {Class: 4, Name: "Trade Hub",
		Buys:     []shared.Commodity{shared.CommodityOre, shared.CommodityOrganics, shared.CommodityEquipment},
		Sells:    []shared.Commodity{shared.CommodityFuel, shared.CommodityLuxuries},
		Services: ServiceFuel | ServiceTrading | ServiceInformation},
	5: {Class: 5, Name: "Medical Station",
		Buys:     []shared.Commodity{shared.CommodityOrganics, shared.CommodityTechnology},
		Sells:    []shared.Commodity{shared.CommodityMedical, shared.CommodityFuel},
		Services: ServiceFuel | ServiceTrading | ServiceRepairs},
	6: {Class: 6, Name: "Research Station",
		Buys:     []shared.Commodity{shared.CommodityEquipment, shared.CommodityMedical},
		Sells:    []shared.Commodity{shared.CommodityTechnology, shared.CommodityFuel},
		Services: ServiceFuel | ServiceTrading | ServiceInformation},
	7: {Class: 7, Name: "Luxury Exchange",
		Buys:     []shared.Commodity{shared.CommodityLuxuries, shared.CommodityTechnology},
		Sells:    []shared.Commodity{shared.CommodityLuxuries, shared.CommodityFuel},
		Services: ServiceFuel | ServiceTrading},
	8: {Class: 8, Name: "Colonial Depot",
		Buys:     []shared.Commodity{shared.CommodityEquipment, shared.CommodityMedical},
		Sells:    []shared.Commodity{shared.CommodityColonists, shared.CommodityOrganics, shared.CommodityFuel},
		Services: ServiceFuel | ServiceTrading | ServiceEquipment},
	9: {Class: 9, Name: "Stardock",
		Buys:     shared.Commodities(),
		Sells:    []shared.Commodity{shared.CommodityFuel, shared.CommodityEquipment, shared.CommodityTechnology, shared.CommodityGenesisUnit},
		Services: ServiceFuel | ServiceTrading | ServiceRepairs | ServiceShipyard | ServiceEquipment | ServiceInformation},
	10: {Class: 10, Name: "Federation Yard",
		Buys:     []shared.Commodity{shared.CommodityOre, shared.CommodityEquipment},
		Sells:    []shared.Commodity{shared.CommodityEquipment, shared.CommodityFuel},
		Services: ServiceFuel | ServiceTrading | ServiceRepairs | ServiceShipyard},
	11: {Class: 11, Name: "Black Market",
		Buys:     []shared.Commodity{shared.CommodityLuxuries, shared.CommodityMedical, shared.CommodityTechnology},
		Sells:    []shared.Commodity{shared.CommodityLuxuries, shared.CommodityTechnology},
		Services: ServiceTrading | ServiceEquipment},
}

// SpecForClass looks up a station class.
func SpecForClass(c Class) (ClassSpec, bool) {
	spec, ok := classCatalog[c]
	return spec, ok
}

// MarketSlot is one commodity line of a station's market.
type MarketSlot struct {
	Commodity shared.Commodity
	Quantity  int
	Capacity  int
	BasePrice int64
	Buys      bool
	Sells     bool
}

// SupplyFactor prices scarcity: an empty slot trades at 1.5x base, a full
// one at 0.5x, linear between.
func (m *MarketSlot) SupplyFactor() float64 {
	if m.Capacity <= 0 {
		return 1.0
	}
	f := 1.5 - float64(m.Quantity)/float64(m.Capacity)
	if f < 0.5 {
		f = 0.5
	}
	if f > 1.5 {
		f = 1.5
	}
	return f
}

// Station is a fixed market and service point in one sector. A station may
// be paired to a planet in the same sector by index.
type Station struct {
	ID           shared.StationID
	RegionID     shared.RegionID
	Sector       int
	Name         string
	Class        Class
	Services     Service
	FactionID    string          // affiliation, empty when independent
	OwnerID      shared.PlayerID // zero when NPC-run
	Status       OperationalStatus
	PairedPlanet int // planet pairing by sector-local index, 0 = none
	Inventory    map[shared.Commodity]*MarketSlot
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Version      int
}

// New builds a station of the given class with its market stocked at half
// capacity.
func New(regionID shared.RegionID, sectorIndex int, name string, class Class, capacity int, now time.Time) (*Station, error) {
	spec, ok := SpecForClass(class)
	if !ok {
		return nil, shared.NewValidationErrorf("class must be in [%d, %d]", MinClass, MaxClass)
	}
	if name == "" {
		return nil, shared.NewValidationError("name", "must not be empty")
	}
	if capacity < 1 {
		return nil, shared.NewValidationError("capacity", "must be positive")
	}
	inv := make(map[shared.Commodity]*MarketSlot)
	for _, c := range spec.Sells {
		inv[c] = &MarketSlot{Commodity: c, Quantity: capacity / 2, Capacity: capacity, BasePrice: shared.BasePrice(c), Sells: true}
	}
	for _, c := range spec.Buys {
		slot, ok := inv[c]
		if !ok {
			slot = &MarketSlot{Commodity: c, Quantity: capacity / 2, Capacity: capacity, BasePrice: shared.BasePrice(c)}
			inv[c] = slot
		}
		slot.Buys = true
	}
	return &Station{
		ID:        shared.NewStationID(),
		RegionID:  regionID,
		Sector:    sectorIndex,
		Name:      name,
		Class:     class,
		Services:  spec.Services,
		Status:    StatusOperational,
		Inventory: inv,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Offers reports whether the station provides a service. Degraded stations
// keep trading but drop everything else.
func (s *Station) Offers(service Service) bool {
	switch s.Status {
	case StatusOffline, StatusDecommission:
		return false
	case StatusDegraded, StatusUnderSiege:
		if service != ServiceTrading && service != ServiceFuel {
			return false
		}
	}
	return s.Services&service != 0
}

// SetStatus moves the station between operational states.
func (s *Station) SetStatus(status OperationalStatus, now time.Time) error {
	switch status {
	case StatusOperational, StatusDegraded, StatusOffline, StatusUnderSiege, StatusDecommission:
	default:
		return shared.NewValidationError("status", "unknown operational status")
	}
	s.Status = status
	s.UpdatedAt = now
	return nil
}

// SetAffiliation binds the station to a faction. Reputation with that
// faction scales prices here.
func (s *Station) SetAffiliation(factionID string, now time.Time) {
	s.FactionID = factionID
	s.UpdatedAt = now
}

// TransferOwnership hands an ownable station to a player.
func (s *Station) TransferOwnership(owner shared.PlayerID, now time.Time) {
	s.OwnerID = owner
	s.UpdatedAt = now
}

// PairWithPlanet links the station to a planet in its sector.
func (s *Station) PairWithPlanet(planetIndex int, now time.Time) error {
	if planetIndex < 1 {
		return shared.NewValidationError("planet_index", "must be positive")
	}
	s.PairedPlanet = planetIndex
	s.UpdatedAt = now
	return nil
}

// Slot fetches the market line for a commodity.
func (s *Station) Slot(c shared.Commodity) (*MarketSlot, bool) {
	slot, ok := s.Inventory[c]
	return slot, ok
}

// FulfillPurchase removes stock the station is selling to a player.
func (s *Station) FulfillPurchase(c shared.Commodity, qty int, now time.Time) error {
	if !s.Offers(ServiceTrading) {
		return shared.NewConflictError("station is not trading")
	}
	slot, ok := s.Inventory[c]
	if !ok || !slot.Sells {
		return shared.NewValidationError("commodity", "station does not sell this commodity")
	}
	if qty < 1 {
		return shared.NewValidationError("quantity", "must be positive")
	}
	if slot.Quantity < qty {
		return shared.NewConflictError("station stock is insufficient")
	}
	slot.Quantity -= qty
	s.UpdatedAt = now
	return nil
}

// AbsorbSale adds stock the station is buying from a player.
func (s *Station) AbsorbSale(c shared.Commodity, qty int, now time.Time) error {
	if !s.Offers(ServiceTrading) {
		return shared.NewConflictError("station is not trading")
	}
	slot, ok := s.Inventory[c]
	if !ok || !slot.Buys {
		return shared.NewValidationError("commodity", "station does not buy this commodity")
	}
	if qty < 1 {
		return shared.NewValidationError("quantity", "must be positive")
	}
	if slot.Quantity+qty > slot.Capacity {
		return shared.NewConflictError("station storage is full")
	}
	slot.Quantity += qty
	s.UpdatedAt = now
	return nil
}

// Restock drifts every slot toward half capacity. Called by the economy tick.
func (s *Station) Restock(rate float64, now time.Time) {
	for _, slot := range s.Inventory {
		target := slot.Capacity / 2
		delta := float64(target-slot.Quantity) * rate
		slot.Quantity += int(delta)
	}
	s.UpdatedAt = now
}
