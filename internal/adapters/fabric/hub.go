package fabric

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sectorwars/gameserver/internal/application/admin"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/infrastructure/config"
)

// Counters receives fabric gauge updates. The metrics adapter implements it;
// a nil Counters is silently inert.
type Counters interface {
	SocketOpened()
	SocketClosed()
	ScopeSubscribed()
	ScopeUnsubscribed()
	EventDelivered(durable bool)
	EventDropped()
}

// Hub is the authoritative fan-out point of the event fabric. Mutations hand
// it domain events through shared.Publisher; it persists the durable subset
// through the event log, then pushes to every socket subscribed to each
// scope. Per-scope delivery order follows log order because Publish holds the
// scope's ordering lock from before the durable append until the last deliver
// for that scope.
type Hub struct {
	cfg        config.FabricConfig
	eventLog   shared.EventLog
	authorizer *ScopeAuthorizer
	clock      shared.Clock
	counters   Counters

	mu      sync.RWMutex
	sockets map[*socket]struct{}
	scopes  map[shared.Scope]map[*socket]struct{}

	ordMu sync.Mutex
	order map[shared.Scope]*sync.Mutex
}

// NewHub builds an empty hub. Sockets attach through ServeWS on the handler.
func NewHub(cfg config.FabricConfig, eventLog shared.EventLog, authorizer *ScopeAuthorizer, clock shared.Clock, counters Counters) *Hub {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &Hub{
		cfg:        cfg,
		eventLog:   eventLog,
		authorizer: authorizer,
		clock:      clock,
		counters:   counters,
		sockets:    make(map[*socket]struct{}),
		scopes:     make(map[shared.Scope]map[*socket]struct{}),
		order:      make(map[shared.Scope]*sync.Mutex),
	}
}

// Publish persists durable events and fans the batch out to subscribers.
// A failed durable append fails the call so the originating mutation can
// refuse to lose state; fan-out itself never fails the mutation, because a
// slow consumer is cut loose and recovers through cursor replay.
func (h *Hub) Publish(ctx context.Context, events ...shared.Event) error {
	unlock := h.lockScopes(events)
	defer unlock()

	var durable map[shared.Scope][]shared.SequencedEvent
	for _, e := range events {
		if e.Durable() {
			stored, err := h.eventLog.Append(ctx, events...)
			if err != nil {
				return shared.NewUnavailableError("event log append", err)
			}
			durable = make(map[shared.Scope][]shared.SequencedEvent)
			for _, se := range stored {
				durable[se.Scope] = append(durable[se.Scope], se)
			}
			break
		}
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	seqIndex := make(map[shared.Scope]int)
	for _, e := range events {
		for _, scope := range e.Scopes {
			var seq int64
			if e.Durable() {
				rows := durable[scope]
				if i := seqIndex[scope]; i < len(rows) {
					seq = rows[i].Seq
					seqIndex[scope]++
				}
			}
			for s := range h.scopes[scope] {
				h.deliver(s, scope, e, seq)
			}
		}
	}
	return nil
}

// lockScopes takes the ordering mutex of every scope in the batch, in a
// stable order so concurrent publishers cannot deadlock. While held, no other
// publisher can append or deliver on those scopes, so subscribers see durable
// frames in log-sequence order.
func (h *Hub) lockScopes(events []shared.Event) func() {
	seen := make(map[shared.Scope]struct{})
	var keys []shared.Scope
	for _, e := range events {
		for _, scope := range e.Scopes {
			if _, ok := seen[scope]; !ok {
				seen[scope] = struct{}{}
				keys = append(keys, scope)
			}
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	locks := make([]*sync.Mutex, 0, len(keys))
	h.ordMu.Lock()
	for _, k := range keys {
		l, ok := h.order[k]
		if !ok {
			l = new(sync.Mutex)
			h.order[k] = l
		}
		locks = append(locks, l)
	}
	h.ordMu.Unlock()

	for _, l := range locks {
		l.Lock()
	}
	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}
}

func (h *Hub) deliver(s *socket, scope shared.Scope, e shared.Event, seq int64) {
	frame := serverFrame{
		Event:   string(e.Type),
		Scope:   string(scope),
		ID:      seq,
		Payload: e.Payload,
		Durable: e.Durable(),
	}
	if s.offer(scope, frame) {
		if h.counters != nil {
			h.counters.EventDelivered(e.Durable())
		}
		return
	}
	if h.counters != nil {
		h.counters.EventDropped()
	}
	if e.Durable() {
		// The durable row is already on disk; a consumer that cannot keep
		// up is disconnected and resumes from its cursor.
		log.Warn().
			Str("scope", string(scope)).
			Str("account", s.actor.AccountID.String()).
			Msg("durable backlog over high water, closing socket")
		s.closeSlow()
	}
}

// attach registers a socket with no scopes yet.
func (h *Hub) attach(s *socket) {
	h.mu.Lock()
	h.sockets[s] = struct{}{}
	h.mu.Unlock()
	if h.counters != nil {
		h.counters.SocketOpened()
	}
}

// detach removes a socket and all its subscriptions.
func (h *Hub) detach(s *socket) {
	h.mu.Lock()
	if _, ok := h.sockets[s]; ok {
		delete(h.sockets, s)
		for scope, members := range h.scopes {
			if _, ok := members[s]; ok {
				delete(members, s)
				if len(members) == 0 {
					delete(h.scopes, scope)
				}
				if h.counters != nil {
					h.counters.ScopeUnsubscribed()
				}
			}
		}
	}
	h.mu.Unlock()
	if h.counters != nil {
		h.counters.SocketClosed()
	}
}

// subscribe registers a socket on a scope and replays the durable backlog
// after the cursor. Registration happens before the replay read: live
// durable events landing in between are buffered on the socket gate and
// reconciled by sequence, so the subscriber sees each durable event exactly
// once in scope order.
func (h *Hub) subscribe(ctx context.Context, s *socket, scope shared.Scope, cursor int64) error {
	h.mu.Lock()
	members, ok := h.scopes[scope]
	if !ok {
		members = make(map[*socket]struct{})
		h.scopes[scope] = members
	}
	if _, ok := members[s]; ok {
		h.mu.Unlock()
		return nil // idempotent resubscribe; cursor handled below
	}
	members[s] = struct{}{}
	s.gate(scope)
	h.mu.Unlock()
	if h.counters != nil {
		h.counters.ScopeSubscribed()
	}

	last := cursor
	for {
		rows, err := h.eventLog.Replay(ctx, scope, last, replayBatch)
		if err != nil {
			h.unsubscribe(s, scope)
			return shared.NewUnavailableError("event replay", err)
		}
		for _, row := range rows {
			frame := serverFrame{
				Event:   string(row.Type),
				Scope:   string(scope),
				ID:      row.Seq,
				Payload: row.Payload,
				Durable: true,
			}
			if !s.push(scope, frame) {
				h.unsubscribe(s, scope)
				return shared.NewUnavailableError("replay backlog exceeds buffer", nil)
			}
			last = row.Seq
		}
		if len(rows) < replayBatch {
			break
		}
	}
	s.ungate(scope, last)
	return nil
}

const replayBatch = 200

// unsubscribe drops one scope; in-flight frames for it are discarded by the
// writer.
func (h *Hub) unsubscribe(s *socket, scope shared.Scope) {
	h.mu.Lock()
	members, ok := h.scopes[scope]
	if ok {
		if _, had := members[s]; had {
			delete(members, s)
			if len(members) == 0 {
				delete(h.scopes, scope)
			}
			if h.counters != nil {
				h.counters.ScopeUnsubscribed()
			}
		}
	}
	h.mu.Unlock()
	s.dropScope(scope)
}

// ack records a durable-event cursor for the socket's account.
func (h *Hub) ack(ctx context.Context, s *socket, scope shared.Scope, seq int64) error {
	return h.eventLog.Ack(ctx, s.actor.AccountID, scope, seq, h.clock.Now())
}

// Presence snapshots connected sockets per scope for the admin dashboards.
func (h *Hub) Presence() admin.PresenceReport {
	h.mu.RLock()
	defer h.mu.RUnlock()
	report := admin.PresenceReport{
		Total:  len(h.sockets),
		Scopes: make(map[shared.Scope]int, len(h.scopes)),
	}
	for s := range h.sockets {
		if s.actor.IsAdmin() {
			report.Admins++
		}
	}
	for scope, members := range h.scopes {
		report.Scopes[scope] = len(members)
	}
	return report
}

// CloseAll disconnects every socket, used during server shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	open := make([]*socket, 0, len(h.sockets))
	for s := range h.sockets {
		open = append(open, s)
	}
	h.mu.Unlock()
	for _, s := range open {
		s.closeSlow()
	}
}

// SweepPresence publishes best-effort sector traffic counts so tactical
// displays stay warm. Called by the server on the presence interval.
func (h *Hub) SweepPresence(ctx context.Context) {
	h.mu.RLock()
	counts := make(map[shared.Scope]int)
	for scope, members := range h.scopes {
		if strings.HasPrefix(string(scope), "sector:") {
			counts[scope] = len(members)
		}
	}
	h.mu.RUnlock()
	now := h.clock.Now()
	for scope, n := range counts {
		_ = h.Publish(ctx, shared.NewEvent(shared.EventSectorTraffic, now,
			map[string]any{"watchers": n}, scope))
	}
}

// RunPresence drives SweepPresence until the context ends.
func (h *Hub) RunPresence(ctx context.Context) {
	interval := h.cfg.PresenceInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			h.SweepPresence(ctx)
		}
	}
}
