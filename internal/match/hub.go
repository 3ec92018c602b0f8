// Package match implements the connection registry, matchmaking, and
// signaling-relay engine.
//
// A single Hub instance owns every live connection record, the FIFO waiting
// pool, and the pairing state. All mutations of the pool and of partner
// pointers happen under one mutex, so a half-established pairing is never
// observable; event delivery uses non-blocking Senders and is safe under the
// lock.
package match

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/utkarshsaxena1812/ABES-CamConnect/internal/metrics"
)

type Hub struct {
	log     *slog.Logger
	blocks  *Blocklist
	metrics *metrics.Metrics

	mu      sync.Mutex
	conns   map[string]*Conn
	waiting []*Conn
}

func NewHub(blocks *Blocklist, m *metrics.Metrics, logger *slog.Logger) *Hub {
	if blocks == nil {
		blocks = NewBlocklist()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		log:     logger,
		blocks:  blocks,
		metrics: m,
		conns:   make(map[string]*Conn),
	}
}

// Register creates a connection record for a verified identity. The same
// identity may hold several live connections (multiple tabs).
func (h *Hub) Register(identity string, sender Sender) *Conn {
	c := newConn(identity, sender)

	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()

	h.inc(metrics.ConnectionOpened)
	h.log.Debug("connection registered", "conn_id", c.id, "identity", identity)
	return c
}

// Get returns the live connection with the given id, if any.
func (h *Hub) Get(id string) (*Conn, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[id]
	return c, ok
}

// ConnCount returns the number of live connections.
func (h *Hub) ConnCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Join requests a match for c. Paired connections are left alone. Otherwise
// the waiting pool is scanned in arrival order for the first entry that is
// not c itself and not blocked against c's identity; skipped entries keep
// their position. With no eligible entry, c is appended to the pool tail and
// told it is waiting.
func (h *Hub) Join(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requestMatchLocked(c)
}

// Next tears down c's current pairing or queue slot, then immediately
// requests a fresh match.
func (h *Hub) Next(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c)
	h.requestMatchLocked(c)
}

// Block records a mutual identity block between c and its current partner,
// tears down the pairing, and acknowledges to c. A block without a live
// pairing only acknowledges: there is no partner identity to record.
func (h *Hub) Block(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.state == StatePaired && c.partner != nil {
		h.blocks.Block(c.identity, c.partner.identity)
		h.inc(metrics.BlockRecorded)
		h.log.Info("identities blocked", "conn_id", c.id)
	}
	h.leaveLocked(c)
	h.deliverLocked(c, Event{Type: EventBlockedAck})
}

// Relay forwards an opaque payload to c's partner. The payload is dropped
// silently when c is not paired or the partner already disconnected; transport
// races make that a normal occurrence, not an error.
func (h *Hub) Relay(c *Conn, kind EventType, payload json.RawMessage) {
	if !IsRelayKind(kind) {
		h.inc(metrics.RelayDropped)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	p := c.partner
	if c.state != StatePaired || p == nil {
		h.inc(metrics.RelayDropped)
		return
	}
	if _, live := h.conns[p.id]; !live {
		h.inc(metrics.RelayDropped)
		return
	}

	h.deliverLocked(p, Event{Type: kind, Payload: payload})
	h.inc(metrics.RelayForwarded)
}

// Disconnect removes c from the hub: the pairing or queue slot is torn down
// (the partner, if any, learns it was left) and the record is unregistered.
// Idempotent.
func (h *Hub) Disconnect(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, live := h.conns[c.id]; !live {
		return
	}
	h.leaveLocked(c)
	delete(h.conns, c.id)
	h.inc(metrics.ConnectionClosed)
	h.log.Debug("connection unregistered", "conn_id", c.id)
}

// BroadcastOnlineCount delivers the current live-connection count to every
// connection. Invoked by the presence broadcaster on its interval.
func (h *Hub) BroadcastOnlineCount() {
	h.mu.Lock()
	defer h.mu.Unlock()

	ev := Event{Type: EventOnlineCount, Count: len(h.conns)}
	for _, c := range h.conns {
		h.deliverLocked(c, ev)
	}
}

// State returns c's current lifecycle state.
func (h *Hub) State(c *Conn) State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return c.state
}

// PartnerID returns the id of c's partner, if paired.
func (h *Hub) PartnerID(c *Conn) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.partner == nil {
		return "", false
	}
	return c.partner.id, true
}

func (h *Hub) requestMatchLocked(c *Conn) {
	if c.state == StatePaired {
		return
	}
	if _, live := h.conns[c.id]; !live {
		// Disconnected while a join/next was in flight.
		return
	}

	// A repeated join while waiting keeps the existing slot and FIFO
	// position. Every other pool entry is already blocked against c, so a
	// rescan could not pair it anyway; re-acknowledge and return.
	if c.state == StateWaiting {
		h.deliverLocked(c, Event{Type: EventWaiting})
		return
	}

	for i, w := range h.waiting {
		if w == c {
			continue
		}
		if h.blocks.IsBlocked(c.identity, w.identity) {
			// Skipped entries stay enqueued in place, still eligible for future
			// entrants.
			continue
		}

		h.waiting = append(h.waiting[:i], h.waiting[i+1:]...)

		// Both sides of the pairing become visible atomically.
		c.partner = w
		w.partner = c
		c.state = StatePaired
		w.state = StatePaired

		// The newly requesting connection originates the offer.
		h.deliverLocked(c, Event{Type: EventMatched, Initiator: true})
		h.deliverLocked(w, Event{Type: EventMatched, Initiator: false})

		h.inc(metrics.MatchCreated)
		h.log.Info("paired", "conn_id", c.id, "partner_id", w.id)
		return
	}

	h.waiting = append(h.waiting, c)
	c.state = StateWaiting
	h.deliverLocked(c, Event{Type: EventWaiting})
	h.inc(metrics.WaitingEnqueued)
}

// leaveLocked realizes leaveQueueOrPair: a paired connection is unpaired (the
// partner is notified and returned to idle), a waiting connection leaves the
// pool, an idle connection is untouched.
func (h *Hub) leaveLocked(c *Conn) {
	switch c.state {
	case StatePaired:
		p := c.partner
		c.partner = nil
		c.state = StateIdle
		if p != nil {
			p.partner = nil
			p.state = StateIdle
			if _, live := h.conns[p.id]; live {
				h.deliverLocked(p, Event{Type: EventPartnerLeft})
			}
		}
	case StateWaiting:
		h.removeFromPoolLocked(c)
		c.state = StateIdle
	}
}

func (h *Hub) removeFromPoolLocked(c *Conn) {
	for i, w := range h.waiting {
		if w == c {
			h.waiting = append(h.waiting[:i], h.waiting[i+1:]...)
			return
		}
	}
}

func (h *Hub) deliverLocked(c *Conn, ev Event) {
	if c.sender == nil {
		return
	}
	if !c.sender.Send(ev) {
		h.inc(metrics.OutboundDropped)
		h.log.Debug("outbound event dropped", "conn_id", c.id, "event", string(ev.Type))
	}
}

func (h *Hub) inc(name string) {
	if h.metrics != nil {
		h.metrics.Inc(name)
	}
}
