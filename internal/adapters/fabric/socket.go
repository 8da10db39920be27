package fabric

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/sectorwars/gameserver/internal/application/common"
	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// clientFrame is what subscribers send: subscribe, unsubscribe or ack.
type clientFrame struct {
	Type   string `json:"type"`
	Scope  string `json:"scope"`
	Cursor *int64 `json:"cursor,omitempty"`
}

// serverFrame is the outbound envelope. ID is the durable cursor, zero for
// best-effort events.
type serverFrame struct {
	Event   string         `json:"event"`
	Scope   string         `json:"scope"`
	ID      int64          `json:"id,omitempty"`
	Payload map[string]any `json:"payload"`
	Durable bool           `json:"durable"`
}

type queuedFrame struct {
	scope shared.Scope
	frame serverFrame
}

// socket is one WebSocket connection with its subscription state. Live
// events arrive through offer under the hub's lock; the writer drains the
// bounded send queue on its own goroutine.
type socket struct {
	hub   *Hub
	conn  *websocket.Conn
	actor common.Actor
	log   zerolog.Logger

	send chan queuedFrame

	mu     sync.Mutex
	closed bool
	// active scopes; frames for a scope removed mid-flight are discarded by
	// the writer.
	active map[shared.Scope]bool
	// gated holds live durable frames that arrive while a subscribe is
	// replaying the backlog for the scope.
	gated map[shared.Scope][]serverFrame
}

func newSocket(hub *Hub, conn *websocket.Conn, actor common.Actor, logger zerolog.Logger) *socket {
	return &socket{
		hub:    hub,
		conn:   conn,
		actor:  actor,
		log:    logger,
		send:   make(chan queuedFrame, hub.cfg.OutboundHighWater),
		active: make(map[shared.Scope]bool),
		gated:  make(map[shared.Scope][]serverFrame),
	}
}

// offer enqueues a live frame. Returns false when the socket is closed or
// the queue is over the high-water mark.
func (s *socket) offer(scope shared.Scope, frame serverFrame) bool {
	s.mu.Lock()
	if s.closed || !s.active[scope] {
		s.mu.Unlock()
		return true // nothing owed to a closed or unsubscribed scope
	}
	if buf, gating := s.gated[scope]; gating {
		// Replay is still running. Durable frames wait their turn so the
		// scope stays FIFO; best-effort frames are droppable by contract.
		if frame.Durable {
			s.gated[scope] = append(buf, frame)
		}
		s.mu.Unlock()
		return true
	}
	s.mu.Unlock()
	select {
	case s.send <- queuedFrame{scope: scope, frame: frame}:
		return true
	default:
		return false
	}
}

// push enqueues a replay frame, bypassing the gate.
func (s *socket) push(scope shared.Scope, frame serverFrame) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return true
	}
	s.mu.Unlock()
	select {
	case s.send <- queuedFrame{scope: scope, frame: frame}:
		return true
	default:
		return false
	}
}

// gate opens a scope in buffering mode until the backlog replay lands.
func (s *socket) gate(scope shared.Scope) {
	s.mu.Lock()
	s.active[scope] = true
	s.gated[scope] = []serverFrame{}
	s.mu.Unlock()
}

// ungate flushes buffered live frames newer than the last replayed sequence
// and switches the scope to direct delivery.
func (s *socket) ungate(scope shared.Scope, lastSeq int64) {
	s.mu.Lock()
	buf := s.gated[scope]
	delete(s.gated, scope)
	s.mu.Unlock()
	for _, frame := range buf {
		if frame.ID <= lastSeq {
			continue // already delivered by the replay read
		}
		if !s.push(scope, frame) {
			s.closeSlow()
			return
		}
	}
}

// dropScope discards a scope; queued frames for it are skipped by the writer.
func (s *socket) dropScope(scope shared.Scope) {
	s.mu.Lock()
	delete(s.active, scope)
	delete(s.gated, scope)
	s.mu.Unlock()
}

func (s *socket) isActive(scope shared.Scope) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[scope]
}

// closeSlow terminates the connection; the read pump then detaches from the
// hub. Safe to call repeatedly.
func (s *socket) closeSlow() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	_ = s.conn.Close()
}

// fail reports a per-frame protocol or authorization failure without
// dropping the connection.
func (s *socket) fail(scope string, err error) {
	frame := serverFrame{
		Event: "fabric.error",
		Scope: scope,
		Payload: map[string]any{
			"code":    shared.CodeOf(err),
			"message": err.Error(),
		},
	}
	select {
	case s.send <- queuedFrame{scope: shared.Scope(scope), frame: frame}:
	default:
	}
}

// readPump consumes client frames until the connection drops.
func (s *socket) readPump(ctx context.Context) {
	defer func() {
		s.hub.detach(s)
		s.closeSlow()
	}()
	s.conn.SetReadLimit(s.hub.cfg.ReadLimit)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.hub.cfg.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.hub.cfg.PongWait))
	})
	for {
		var frame clientFrame
		if err := s.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug().Err(err).Msg("socket closed")
			}
			return
		}
		s.handle(ctx, frame)
	}
}

func (s *socket) handle(ctx context.Context, frame clientFrame) {
	scope := shared.Scope(frame.Scope)
	switch frame.Type {
	case "subscribe":
		if err := s.hub.authorizer.Authorize(ctx, s.actor, scope); err != nil {
			s.fail(frame.Scope, err)
			return
		}
		cursor, err := s.resolveCursor(ctx, scope, frame.Cursor)
		if err != nil {
			s.fail(frame.Scope, err)
			return
		}
		if err := s.hub.subscribe(ctx, s, scope, cursor); err != nil {
			s.fail(frame.Scope, err)
		}
	case "unsubscribe":
		s.hub.unsubscribe(s, scope)
	case "ack":
		if frame.Cursor == nil {
			s.fail(frame.Scope, shared.NewValidationError("cursor", "ack requires a cursor"))
			return
		}
		if !s.isActive(scope) {
			s.fail(frame.Scope, shared.NewValidationError("scope", "ack for a scope not subscribed"))
			return
		}
		if err := s.hub.ack(ctx, s, scope, *frame.Cursor); err != nil {
			s.fail(frame.Scope, shared.NewUnavailableError("cursor ack", err))
		}
	default:
		s.fail(frame.Scope, shared.NewValidationError("type", "must be subscribe, unsubscribe or ack"))
	}
}

// resolveCursor prefers the client's explicit cursor, falling back to the
// account's last acknowledged position for the scope.
func (s *socket) resolveCursor(ctx context.Context, scope shared.Scope, explicit *int64) (int64, error) {
	if explicit != nil {
		if *explicit < 0 {
			return 0, shared.NewValidationError("cursor", "must be non-negative")
		}
		return *explicit, nil
	}
	last, err := s.hub.eventLog.LastAck(ctx, s.actor.AccountID, scope)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return 0, shared.NewUnavailableError("cursor lookup", err)
	}
	return last, nil
}

// writePump serializes outbound frames and keeps the connection alive with
// pings.
func (s *socket) writePump(ctx context.Context) {
	ping := time.NewTicker(s.hub.cfg.PingInterval)
	defer func() {
		ping.Stop()
		s.closeSlow()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case q, ok := <-s.send:
			if !ok {
				return
			}
			if q.frame.Event != "fabric.error" && !s.isActive(q.scope) {
				continue // scope was closed while the frame was in flight
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.hub.cfg.WriteTimeout))
			data, err := json.Marshal(q.frame)
			if err != nil {
				s.log.Error().Err(err).Msg("frame marshal failed")
				continue
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.hub.cfg.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
