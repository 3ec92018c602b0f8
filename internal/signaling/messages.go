package signaling

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/utkarshsaxena1812/ABES-CamConnect/internal/match"
)

// Client message types.
const (
	msgTypeAuth  = "auth"
	msgTypeJoin  = "join"
	msgTypeNext  = "next"
	msgTypeBlock = "block"

	msgTypeOffer        = "offer"
	msgTypeAnswer       = "answer"
	msgTypeICECandidate = "ice-candidate"
	msgTypeChat         = "chat"
)

// Server-only message types.
const (
	msgTypeWaiting     = "waiting"
	msgTypeMatched     = "matched"
	msgTypePartnerLeft = "partner_left"
	msgTypeBlockedAck  = "blocked_ack"
	msgTypeOnlineCount = "online_count"
	msgTypeError       = "error"
)

// clientMessage is the single inbound envelope. Token is only meaningful for
// auth, Payload only for relayed kinds.
type clientMessage struct {
	Type    string          `json:"type"`
	Token   string          `json:"token,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

var errUnknownMessageType = errors.New("unknown message type")

// parseClientMessage decodes and validates one inbound text frame. Unknown
// fields and trailing data are rejected so malformed clients fail loudly.
func parseClientMessage(raw []byte) (clientMessage, error) {
	var msg clientMessage
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&msg); err != nil {
		return clientMessage{}, fmt.Errorf("invalid message: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return clientMessage{}, errors.New("invalid message: trailing data")
	}
	if err := msg.validate(); err != nil {
		return clientMessage{}, err
	}
	return msg, nil
}

func (m clientMessage) validate() error {
	switch m.Type {
	case msgTypeAuth:
		if m.Token == "" {
			return errors.New("auth message requires token")
		}
		if len(m.Payload) != 0 {
			return errors.New("auth message must not carry payload")
		}
	case msgTypeJoin, msgTypeNext, msgTypeBlock:
		if m.Token != "" || len(m.Payload) != 0 {
			return fmt.Errorf("%s message must be bare", m.Type)
		}
	case msgTypeOffer, msgTypeAnswer, msgTypeICECandidate:
		if len(m.Payload) == 0 {
			return fmt.Errorf("%s message requires payload", m.Type)
		}
	case msgTypeChat:
		if len(m.Payload) == 0 {
			return errors.New("chat message requires payload")
		}
		var text string
		if err := json.Unmarshal(m.Payload, &text); err != nil {
			return errors.New("chat payload must be a JSON string")
		}
	case "":
		return errors.New("missing message type")
	default:
		return fmt.Errorf("%w: %q", errUnknownMessageType, m.Type)
	}
	return nil
}

// relayKind maps an inbound relayed message type to its event kind.
func relayKind(msgType string) (match.EventType, bool) {
	switch msgType {
	case msgTypeOffer:
		return match.EventOffer, true
	case msgTypeAnswer:
		return match.EventAnswer, true
	case msgTypeICECandidate:
		return match.EventICECandidate, true
	case msgTypeChat:
		return match.EventChat, true
	default:
		return "", false
	}
}

// serverMessage is the single outbound envelope.
type serverMessage struct {
	Type      string          `json:"type"`
	Initiator *bool           `json:"initiator,omitempty"`
	Count     *int            `json:"count,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Code      string          `json:"code,omitempty"`
	Message   string          `json:"message,omitempty"`
}

func messageFromEvent(ev match.Event) serverMessage {
	switch ev.Type {
	case match.EventMatched:
		initiator := ev.Initiator
		return serverMessage{Type: msgTypeMatched, Initiator: &initiator}
	case match.EventOnlineCount:
		count := ev.Count
		return serverMessage{Type: msgTypeOnlineCount, Count: &count}
	case match.EventOffer, match.EventAnswer, match.EventICECandidate, match.EventChat:
		return serverMessage{Type: string(ev.Type), Payload: ev.Payload}
	default:
		return serverMessage{Type: string(ev.Type)}
	}
}
