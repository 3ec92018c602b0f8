package match

import "encoding/json"

// EventType names an outbound event delivered to a connection.
type EventType string

const (
	EventWaiting     EventType = "waiting"
	EventMatched     EventType = "matched"
	EventPartnerLeft EventType = "partner_left"
	EventBlockedAck  EventType = "blocked_ack"
	EventOnlineCount EventType = "online_count"

	// Relayed payload kinds. The payload is forwarded verbatim; the hub never
	// parses it.
	EventOffer        EventType = "offer"
	EventAnswer       EventType = "answer"
	EventICECandidate EventType = "ice-candidate"
	EventChat         EventType = "chat"
)

// IsRelayKind reports whether t is a payload kind the relay forwards between
// paired connections.
func IsRelayKind(t EventType) bool {
	switch t {
	case EventOffer, EventAnswer, EventICECandidate, EventChat:
		return true
	default:
		return false
	}
}

// Event is one outbound notification to a connection.
type Event struct {
	Type EventType

	// Initiator is set for EventMatched: the connection whose join/next
	// triggered the pairing originates the offer.
	Initiator bool

	// Count is set for EventOnlineCount.
	Count int

	// Payload is set for relayed kinds; opaque to the hub.
	Payload json.RawMessage
}
