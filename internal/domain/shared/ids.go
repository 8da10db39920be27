package shared

import (
	"github.com/google/uuid"
)

// Opaque identifiers for the aggregate roots. Each is a UUID under the hood;
// the distinct types keep cross-aggregate references from being swapped at
// compile time.

type AccountID string

type PlayerID string

type RegionID string

type ShipID string

type PlanetID string

type StationID string

type CombatID string

type TeamID string

type MessageID string

type TravelID string

type TreatyID string

type PolicyID string

type ElectionID string

type DroneDeploymentID string

func NewAccountID() AccountID   { return AccountID(uuid.NewString()) }
func NewPlayerID() PlayerID     { return PlayerID(uuid.NewString()) }
func NewRegionID() RegionID     { return RegionID(uuid.NewString()) }
func NewShipID() ShipID         { return ShipID(uuid.NewString()) }
func NewPlanetID() PlanetID     { return PlanetID(uuid.NewString()) }
func NewStationID() StationID   { return StationID(uuid.NewString()) }
func NewCombatID() CombatID     { return CombatID(uuid.NewString()) }
func NewTeamID() TeamID         { return TeamID(uuid.NewString()) }
func NewMessageID() MessageID   { return MessageID(uuid.NewString()) }
func NewTravelID() TravelID     { return TravelID(uuid.NewString()) }
func NewTreatyID() TreatyID     { return TreatyID(uuid.NewString()) }
func NewPolicyID() PolicyID     { return PolicyID(uuid.NewString()) }
func NewElectionID() ElectionID { return ElectionID(uuid.NewString()) }

func NewDroneDeploymentID() DroneDeploymentID { return DroneDeploymentID(uuid.NewString()) }

func (id AccountID) String() string  { return string(id) }
func (id PlayerID) String() string   { return string(id) }
func (id RegionID) String() string   { return string(id) }
func (id ShipID) String() string     { return string(id) }
func (id PlanetID) String() string   { return string(id) }
func (id StationID) String() string  { return string(id) }
func (id CombatID) String() string   { return string(id) }
func (id TeamID) String() string     { return string(id) }
func (id MessageID) String() string  { return string(id) }
func (id TravelID) String() string   { return string(id) }
func (id TreatyID) String() string   { return string(id) }
func (id PolicyID) String() string   { return string(id) }
func (id ElectionID) String() string { return string(id) }

func (id DroneDeploymentID) String() string { return string(id) }

func (id AccountID) IsZero() bool  { return id == "" }
func (id PlayerID) IsZero() bool   { return id == "" }
func (id RegionID) IsZero() bool   { return id == "" }
func (id ShipID) IsZero() bool     { return id == "" }
func (id PlanetID) IsZero() bool   { return id == "" }
func (id StationID) IsZero() bool  { return id == "" }
func (id CombatID) IsZero() bool   { return id == "" }
func (id TeamID) IsZero() bool     { return id == "" }
func (id MessageID) IsZero() bool  { return id == "" }
func (id TravelID) IsZero() bool   { return id == "" }
func (id PolicyID) IsZero() bool   { return id == "" }
func (id ElectionID) IsZero() bool { return id == "" }

// ParseID validates that a raw string is a well-formed identifier.
func ParseID(raw string) (string, error) {
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return "", NewValidationError("id", "must be a valid identifier")
	}
	return parsed.String(), nil
}
