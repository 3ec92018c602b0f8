package match

import "github.com/google/uuid"

// State is a connection's position in the matchmaking lifecycle.
type State int

const (
	StateIdle State = iota
	StateWaiting
	StatePaired
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StatePaired:
		return "paired"
	default:
		return "unknown"
	}
}

// Sender delivers outbound events to a connection's transport.
//
// Send must never block: implementations enqueue to a bounded buffer and
// report false when the event was dropped. The hub calls Send while holding
// its lock.
type Sender interface {
	Send(Event) bool
}

// Conn is the record for one live transport session.
//
// ID and Identity are immutable. state and partner are owned by the Hub and
// only read or written under its lock.
type Conn struct {
	id       string
	identity string
	sender   Sender

	state   State
	partner *Conn
}

func newConn(identity string, sender Sender) *Conn {
	return &Conn{
		id:       uuid.NewString(),
		identity: identity,
		sender:   sender,
	}
}

func (c *Conn) ID() string { return c.id }

// Identity is the stable, externally verified participant identity (email).
// Multiple live connections may share an identity.
func (c *Conn) Identity() string { return c.identity }
