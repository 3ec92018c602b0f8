// Package signaling implements the GET /ws WebSocket endpoint: per-connection
// authentication, inbound message validation and rate limiting, and dispatch
// into the matchmaking hub.
package signaling

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"

	"github.com/utkarshsaxena1812/ABES-CamConnect/internal/auth"
	"github.com/utkarshsaxena1812/ABES-CamConnect/internal/config"
	"github.com/utkarshsaxena1812/ABES-CamConnect/internal/match"
	"github.com/utkarshsaxena1812/ABES-CamConnect/internal/metrics"
	"github.com/utkarshsaxena1812/ABES-CamConnect/internal/origin"
	"github.com/utkarshsaxena1812/ABES-CamConnect/internal/ratelimit"
)

// Server handles websocket signaling sessions.
//
// A session authenticates either with a token query parameter on the upgrade
// request or with a first-message auth frame inside a short deadline. After
// that every frame must be one of the known client messages; the hub does the
// rest.
type Server struct {
	cfg      config.Config
	verifier auth.Verifier
	hub      *match.Hub
	metrics  *metrics.Metrics
	log      *slog.Logger
	clock    clock.Clock
	upgrader websocket.Upgrader
}

func NewServer(cfg config.Config, verifier auth.Verifier, hub *match.Hub, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		cfg:      cfg,
		verifier: verifier,
		hub:      hub,
		metrics:  m,
		log:      logger,
		clock:    clock.New(),
	}
	s.upgrader.CheckOrigin = s.checkOrigin
	return s
}

// checkOrigin applies the browser cross-origin policy. Requests without an
// Origin header (non-browser clients) are accepted; the credential check still
// applies to them.
func (s *Server) checkOrigin(r *http.Request) bool {
	originHeader := strings.TrimSpace(r.Header.Get("Origin"))
	if originHeader == "" {
		return true
	}
	normalized, ok := origin.Normalize(originHeader)
	if !ok {
		return false
	}
	return origin.IsAllowed(normalized, s.cfg.AllowedOrigins)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := newWSClient(conn, s.cfg.SendQueueSize)
	defer client.shutdown()

	conn.SetReadLimit(s.cfg.MaxMessageBytes)

	identity, ok := s.authenticate(conn, client, r)
	if !ok {
		return
	}

	go client.writePump(s.cfg.WSPingInterval)

	record := s.hub.Register(identity, client)
	defer s.hub.Disconnect(record)

	s.log.Info("ws_connected", "conn_id", record.ID(), "remote_addr", r.RemoteAddr)
	defer s.log.Info("ws_disconnected", "conn_id", record.ID(), "remote_addr", r.RemoteAddr)

	s.readLoop(conn, client, record)
}

// authenticate resolves the session identity, preferring the token query
// parameter and falling back to a first-message auth frame under the auth
// deadline.
func (s *Server) authenticate(conn *websocket.Conn, client *wsClient, r *http.Request) (string, bool) {
	if token := r.URL.Query().Get("token"); token != "" {
		identity, err := s.verifier.VerifyIdentity(token)
		if err != nil {
			s.inc(metrics.AuthFailure)
			client.fail(websocket.ClosePolicyViolation, "unauthorized", "invalid credentials")
			return "", false
		}
		return identity, true
	}

	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.WSAuthTimeout))

	msgType, raw, err := conn.ReadMessage()
	if err != nil {
		if isTimeout(err) {
			s.inc(metrics.AuthFailure)
			client.fail(websocket.ClosePolicyViolation, "unauthorized", "authentication timeout")
		}
		return "", false
	}
	if msgType != websocket.TextMessage {
		s.inc(metrics.AuthFailure)
		client.fail(websocket.ClosePolicyViolation, "unauthorized", "authentication required")
		return "", false
	}

	msg, err := parseClientMessage(raw)
	if err != nil || msg.Type != msgTypeAuth {
		s.inc(metrics.AuthFailure)
		client.fail(websocket.ClosePolicyViolation, "unauthorized", "authentication required")
		return "", false
	}

	identity, err := s.verifier.VerifyIdentity(msg.Token)
	if err != nil {
		s.inc(metrics.AuthFailure)
		client.fail(websocket.ClosePolicyViolation, "unauthorized", "invalid credentials")
		return "", false
	}

	_ = conn.SetReadDeadline(time.Time{})
	return identity, true
}

func (s *Server) readLoop(conn *websocket.Conn, client *wsClient, record *match.Conn) {
	rate := int64(s.cfg.MaxMessagesPerSecond)
	limiter := ratelimit.NewTokenBucket(s.clock, rate, rate)

	refreshIdleDeadline := func() {
		if s.cfg.WSIdleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.WSIdleTimeout))
		}
	}
	refreshIdleDeadline()
	conn.SetPongHandler(func(string) error {
		refreshIdleDeadline()
		return nil
	})

	for {
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				client.fail(websocket.CloseMessageTooBig, "bad_message", "message too large")
			} else if isTimeout(err) {
				client.closeNormal("idle timeout")
			}
			return
		}
		refreshIdleDeadline()

		if !limiter.Allow(1) {
			s.inc(metrics.RateLimited)
			client.fail(websocket.ClosePolicyViolation, "rate_limited", "message rate exceeded")
			return
		}

		if msgType != websocket.TextMessage {
			client.fail(websocket.CloseUnsupportedData, "bad_message", "expected text message")
			return
		}

		msg, err := parseClientMessage(raw)
		if err != nil {
			client.fail(websocket.CloseUnsupportedData, "bad_message", err.Error())
			return
		}

		switch msg.Type {
		case msgTypeAuth:
			// Redundant auth after a successful handshake is tolerated so
			// query-authenticated clients with a first-message fallback don't
			// get dropped.
			continue
		case msgTypeJoin:
			s.hub.Join(record)
		case msgTypeNext:
			s.hub.Next(record)
		case msgTypeBlock:
			s.hub.Block(record)
		default:
			kind, ok := relayKind(msg.Type)
			if !ok {
				client.fail(websocket.CloseUnsupportedData, "bad_message", "unknown message type")
				return
			}
			s.hub.Relay(record, kind, msg.Payload)
		}
	}
}

func (s *Server) inc(name string) {
	if s.metrics != nil {
		s.metrics.Inc(name)
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
