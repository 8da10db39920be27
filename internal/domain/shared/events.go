package shared

import (
	"context"
	"fmt"
	"time"
)

// EventType names a domain event on the wire.
type EventType string

const (
	EventShipEnteredSector   EventType = "ship.entered-sector"
	EventShipLeftSector      EventType = "ship.left-sector"
	EventTradeExecuted       EventType = "trade.executed"
	EventPriceAlertTriggered EventType = "trade.price-alert"
	EventCombatStarted       EventType = "combat.started"
	EventCombatRoundResolved EventType = "combat.round-resolved"
	EventCombatEnded         EventType = "combat.ended"
	EventDroneDeployed       EventType = "drone.deployed"
	EventDroneRecalled       EventType = "drone.recalled"
	EventMessageDelivered    EventType = "message.delivered"
	EventPolicyProposed      EventType = "governance.policy-proposed"
	EventPolicyPassed        EventType = "governance.policy-passed"
	EventElectionStarted     EventType = "governance.election-started"
	EventElectionClosed      EventType = "governance.election-closed"
	EventTravelReserved      EventType = "travel.reserved"
	EventTravelCompleted     EventType = "travel.completed"
	EventTravelFailed        EventType = "travel.failed"
	EventRegionProvisioned   EventType = "region.provisioned"
	EventRegionSuspended     EventType = "region.suspended"
	EventRegionTerminating   EventType = "region.terminating"
	EventColonyTick          EventType = "planet.colony-tick"
	EventPlanetSieged        EventType = "planet.sieged"
	EventPlanetCaptured      EventType = "planet.captured"
	EventBountyPosted        EventType = "security.bounty-posted"
	EventBountyClaimed       EventType = "security.bounty-claimed"
	EventSectorTraffic       EventType = "sector.traffic"
	EventRadarPing           EventType = "sector.radar-ping"
	EventTeamTreasury        EventType = "team.treasury-changed"
	EventMissionAccepted     EventType = "faction.mission-accepted"
	EventMissionCompleted    EventType = "faction.mission-completed"
)

// durableTypes is the closed set of events the fabric persists and replays on
// reconnect. Everything else is best-effort.
var durableTypes = map[EventType]bool{
	EventCombatRoundResolved: true,
	EventMessageDelivered:    true,
	EventPolicyPassed:        true,
	EventElectionClosed:      true,
	EventTravelCompleted:     true,
}

// Scope addresses a subscription channel. The string form is what clients
// subscribe with and what the durable-event log is keyed by.
type Scope string

const ScopeAdmin Scope = "admin"

func PlayerScope(id PlayerID) Scope { return Scope("player:" + string(id)) }

func SectorScope(region string, index int) Scope {
	return Scope(fmt.Sprintf("sector:%s:%d", region, index))
}

func TeamScope(id TeamID) Scope { return Scope("team:" + string(id)) }

func RegionScope(name string) Scope { return Scope("region:" + name) }

// Event is the unit the fabric multiplexes. A single domain mutation may emit
// the same event into several scopes; per-scope delivery order follows emit
// order.
type Event struct {
	Type       EventType
	Scopes     []Scope
	Payload    map[string]any
	OccurredAt time.Time
}

// Durable reports whether the fabric must persist and replay this event.
func (e Event) Durable() bool { return durableTypes[e.Type] }

// NewEvent builds an event stamped with the given clock time.
func NewEvent(t EventType, at time.Time, payload map[string]any, scopes ...Scope) Event {
	if payload == nil {
		payload = map[string]any{}
	}
	return Event{Type: t, Scopes: scopes, Payload: payload, OccurredAt: at}
}

// Publisher hands events to the fabric after the owning transaction commits.
// Durable events must be persisted before Publish returns; best-effort events
// may be dropped under pressure.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

// SequencedEvent is a durable event as it sits in one scope's log. Seq is
// strictly increasing per scope and is the cursor clients resume from.
type SequencedEvent struct {
	Seq        int64
	Scope      Scope
	Type       EventType
	Payload    map[string]any
	OccurredAt time.Time
}

// EventLog persists durable events and per-subscriber acknowledgement
// cursors. Append fans an event out to one row per scope and returns the
// stored rows so live delivery can carry their sequence numbers.
type EventLog interface {
	Append(ctx context.Context, events ...Event) ([]SequencedEvent, error)
	Replay(ctx context.Context, scope Scope, afterSeq int64, limit int) ([]SequencedEvent, error)
	Ack(ctx context.Context, accountID AccountID, scope Scope, seq int64, at time.Time) error
	LastAck(ctx context.Context, accountID AccountID, scope Scope) (int64, error)
	// PruneBefore drops log rows older than the cutoff and returns how many
	// went. Cursors are left in place; a pruned cursor simply replays nothing.
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
