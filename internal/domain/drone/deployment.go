package drone

import (
	"time"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// UnitPrice is the station price of one drone.
const UnitPrice int64 = 150

// PinKind names what a deployment is attached to.
type PinKind string

const (
	PinShip   PinKind = "ship"
	PinPlanet PinKind = "planet"
	PinSector PinKind = "sector"
	PinPort   PinKind = "port"
)

// Aggression tunes when deployed drones open fire.
type Aggression string

const (
	// AggressionPassive drones never initiate; they fight only when the
	// pinned asset is attacked.
	AggressionPassive Aggression = "passive"
	// AggressionDefensive drones engage hostiles that act against the
	// owner, the owner's team, or declared allies.
	AggressionDefensive Aggression = "defensive"
	// AggressionAggressive drones engage any ship not on the priority
	// list's exclusion tiers.
	AggressionAggressive Aggression = "aggressive"
)

// Behavior is the full drone directive set carried by a deployment.
type Behavior struct {
	Aggression     Aggression `json:"aggression"`
	TargetPriority []string   `json:"target_priority"` // ordered target classes: "ships", "drones", "stations"
	DefendAllies   bool       `json:"defend_allies"`
	AutoReplace    bool       `json:"auto_replace"` // draw replacements from the owner's ship stock
}

// DefaultBehavior is applied when a deployment omits directives.
func DefaultBehavior() Behavior {
	return Behavior{
		Aggression:     AggressionDefensive,
		TargetPriority: []string{"drones", "ships"},
		DefendAllies:   true,
	}
}

var validPriorityClasses = map[string]bool{"ships": true, "drones": true, "stations": true}

// Validate checks the behavior directive set.
func (b Behavior) Validate() error {
	switch b.Aggression {
	case AggressionPassive, AggressionDefensive, AggressionAggressive:
	default:
		return shared.NewValidationError("aggression", "unknown aggression setting")
	}
	for _, class := range b.TargetPriority {
		if !validPriorityClasses[class] {
			return shared.NewValidationError("target_priority", "unknown target class "+class)
		}
	}
	return nil
}

// Deployment pins a drone count to a ship, planet, sector or port. The
// owner's drones defend or patrol the pinned asset per the behavior policy.
type Deployment struct {
	ID         shared.DroneDeploymentID
	RegionID   shared.RegionID
	OwnerID    shared.PlayerID
	TeamID     shared.TeamID // zero when the owner is teamless
	Kind       PinKind
	Sector     int    // always set; the sector containing the pin
	PinnedToID string // ship/planet/port id, empty for sector pins
	Count      int
	Behavior   Behavior
	DeployedAt time.Time
	UpdatedAt  time.Time
	Version    int
}

// NewDeployment validates and drops a drone stack onto a pin.
func NewDeployment(regionID shared.RegionID, owner shared.PlayerID, team shared.TeamID, kind PinKind, sectorIndex int, pinnedToID string, count int, behavior Behavior, now time.Time) (*Deployment, error) {
	if count < 1 {
		return nil, shared.NewValidationError("count", "must deploy at least one drone")
	}
	switch kind {
	case PinShip, PinPlanet, PinPort:
		if pinnedToID == "" {
			return nil, shared.NewValidationError("pinned_to", "required for ship, planet and port pins")
		}
	case PinSector:
		if pinnedToID != "" {
			return nil, shared.NewValidationError("pinned_to", "sector pins carry no target id")
		}
	default:
		return nil, shared.NewValidationError("kind", "unknown pin kind")
	}
	if sectorIndex < 1 {
		return nil, shared.NewValidationError("sector", "must be positive")
	}
	if behavior.Aggression == "" {
		behavior = DefaultBehavior()
	}
	if err := behavior.Validate(); err != nil {
		return nil, err
	}
	return &Deployment{
		ID:         shared.NewDroneDeploymentID(),
		RegionID:   regionID,
		OwnerID:    owner,
		TeamID:     team,
		Kind:       kind,
		Sector:     sectorIndex,
		PinnedToID: pinnedToID,
		Count:      count,
		Behavior:   behavior,
		DeployedAt: now,
		UpdatedAt:  now,
	}, nil
}

// Reconfigure swaps the behavior directives in place.
func (d *Deployment) Reconfigure(behavior Behavior, now time.Time) error {
	if err := behavior.Validate(); err != nil {
		return err
	}
	d.Behavior = behavior
	d.UpdatedAt = now
	return nil
}

// Reinforce adds drones to the stack.
func (d *Deployment) Reinforce(count int, now time.Time) error {
	if count < 1 {
		return shared.NewValidationError("count", "must be positive")
	}
	d.Count += count
	d.UpdatedAt = now
	return nil
}

// Recall pulls drones back aboard. Returns true when the stack is empty
// and should be removed.
func (d *Deployment) Recall(count int, now time.Time) (bool, error) {
	if count < 1 || count > d.Count {
		return false, shared.NewValidationError("count", "exceeds deployed drones")
	}
	d.Count -= count
	d.UpdatedAt = now
	return d.Count == 0, nil
}

// SufferLosses removes destroyed drones after combat. Returns true when the
// stack is wiped out.
func (d *Deployment) SufferLosses(count int, now time.Time) bool {
	d.Count -= count
	if d.Count < 0 {
		d.Count = 0
	}
	d.UpdatedAt = now
	return d.Count == 0
}

// Hostile reports whether this stack engages the given player on contact.
// Owners and teammates always pass; allies pass when DefendAllies marks
// them as protected rather than targets.
func (d *Deployment) Hostile(playerID shared.PlayerID, teamID shared.TeamID, isAlly bool) bool {
	if playerID == d.OwnerID {
		return false
	}
	if !d.TeamID.IsZero() && d.TeamID == teamID {
		return false
	}
	if isAlly && d.Behavior.DefendAllies {
		return false
	}
	return d.Behavior.Aggression == AggressionAggressive
}
