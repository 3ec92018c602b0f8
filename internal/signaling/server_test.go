package signaling

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/utkarshsaxena1812/ABES-CamConnect/internal/auth"
	"github.com/utkarshsaxena1812/ABES-CamConnect/internal/config"
	"github.com/utkarshsaxena1812/ABES-CamConnect/internal/match"
	"github.com/utkarshsaxena1812/ABES-CamConnect/internal/metrics"
)

const testSecret = "signaling-test-secret"

func signToken(t *testing.T, email string) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload, err := json.Marshal(map[string]any{
		"email": email,
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	signingInput := header + "." + base64.RawURLEncoding.EncodeToString(payload)
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(signingInput))
	return signingInput + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:            testSecret,
		WSAuthTimeout:        2 * time.Second,
		WSIdleTimeout:        60 * time.Second,
		WSPingInterval:       20 * time.Second,
		MaxMessageBytes:      64 * 1024,
		MaxMessagesPerSecond: 200,
		SendQueueSize:        16,
	}
}

func newTestServer(t *testing.T, cfg config.Config) *httptest.Server {
	t.Helper()
	hub := match.NewHub(match.NewBlocklist(), metrics.New(), nil)
	srv := NewServer(cfg, auth.NewJWTVerifier(cfg.JWTSecret), hub, metrics.New(), nil)
	mux := http.NewServeMux()
	mux.Handle("GET /ws", srv)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func wsURL(ts *httptest.Server, query string) string {
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	if query != "" {
		u += "?" + query
	}
	return u
}

func dialAuthed(t *testing.T, ts *httptest.Server, email string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "token="+signToken(t, email)), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func readServerMessage(t *testing.T, c *websocket.Conn) serverMessage {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg serverMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return msg
}

func expectType(t *testing.T, c *websocket.Conn, want string) serverMessage {
	t.Helper()
	msg := readServerMessage(t, c)
	if msg.Type != want {
		t.Fatalf("got %+v, want type %q", msg, want)
	}
	return msg
}

func sendText(t *testing.T, c *websocket.Conn, raw string) {
	t.Helper()
	_ = c.SetWriteDeadline(time.Now().Add(time.Second))
	if err := c.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func expectClose(t *testing.T, c *websocket.Conn, code int) {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := c.ReadMessage()
		if err == nil {
			// Drain the error frame preceding the close.
			continue
		}
		if !websocket.IsCloseError(err, code) {
			t.Fatalf("close error = %v, want code %d", err, code)
		}
		return
	}
}

func TestServer_PairAndRelayFlow(t *testing.T) {
	ts := newTestServer(t, testConfig())

	c1 := dialAuthed(t, ts, "a@example.com")
	c2 := dialAuthed(t, ts, "b@example.com")

	sendText(t, c1, `{"type":"join"}`)
	expectType(t, c1, msgTypeWaiting)

	sendText(t, c2, `{"type":"join"}`)

	m2 := expectType(t, c2, msgTypeMatched)
	if m2.Initiator == nil || !*m2.Initiator {
		t.Fatalf("second joiner matched as %+v, want initiator", m2)
	}
	m1 := expectType(t, c1, msgTypeMatched)
	if m1.Initiator == nil || *m1.Initiator {
		t.Fatalf("first joiner matched as %+v, want non-initiator", m1)
	}

	sendText(t, c2, `{"type":"offer","payload":{"sdp":"v=0","type":"offer"}}`)
	offer := expectType(t, c1, msgTypeOffer)
	if string(offer.Payload) != `{"sdp":"v=0","type":"offer"}` {
		t.Fatalf("offer payload = %s, want verbatim relay", offer.Payload)
	}

	sendText(t, c1, `{"type":"answer","payload":{"sdp":"v=0","type":"answer"}}`)
	expectType(t, c2, msgTypeAnswer)

	sendText(t, c1, `{"type":"chat","payload":"hello"}`)
	chat := expectType(t, c2, msgTypeChat)
	if string(chat.Payload) != `"hello"` {
		t.Fatalf("chat payload = %s", chat.Payload)
	}

	sendText(t, c1, `{"type":"next"}`)
	expectType(t, c2, msgTypePartnerLeft)
	expectType(t, c1, msgTypeWaiting)
}

func TestServer_FirstMessageAuth(t *testing.T) {
	ts := newTestServer(t, testConfig())

	c, _, err := websocket.DefaultDialer.Dial(wsURL(ts, ""), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	sendText(t, c, fmt.Sprintf(`{"type":"auth","token":%q}`, signToken(t, "a@example.com")))
	sendText(t, c, `{"type":"join"}`)
	expectType(t, c, msgTypeWaiting)
}

func TestServer_InvalidQueryTokenRejected(t *testing.T) {
	ts := newTestServer(t, testConfig())

	c, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "token=not-a-jwt"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	expectClose(t, c, websocket.ClosePolicyViolation)
}

func TestServer_FirstMessageMustBeAuth(t *testing.T) {
	ts := newTestServer(t, testConfig())

	c, _, err := websocket.DefaultDialer.Dial(wsURL(ts, ""), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	sendText(t, c, `{"type":"join"}`)
	expectClose(t, c, websocket.ClosePolicyViolation)
}

func TestServer_AuthTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.WSAuthTimeout = 100 * time.Millisecond
	ts := newTestServer(t, cfg)

	c, _, err := websocket.DefaultDialer.Dial(wsURL(ts, ""), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	expectClose(t, c, websocket.ClosePolicyViolation)
}

func TestServer_UnknownMessageTypeCloses(t *testing.T) {
	ts := newTestServer(t, testConfig())
	c := dialAuthed(t, ts, "a@example.com")

	sendText(t, c, `{"type":"shutdown"}`)
	expectClose(t, c, websocket.CloseUnsupportedData)
}

func TestServer_BlockPreventsRematch(t *testing.T) {
	ts := newTestServer(t, testConfig())

	c1 := dialAuthed(t, ts, "a@example.com")
	c2 := dialAuthed(t, ts, "b@example.com")

	sendText(t, c1, `{"type":"join"}`)
	expectType(t, c1, msgTypeWaiting)
	sendText(t, c2, `{"type":"join"}`)
	expectType(t, c2, msgTypeMatched)
	expectType(t, c1, msgTypeMatched)

	sendText(t, c1, `{"type":"block"}`)
	expectType(t, c1, msgTypeBlockedAck)
	expectType(t, c2, msgTypePartnerLeft)

	// Both requeue but must never pair with each other again.
	sendText(t, c1, `{"type":"join"}`)
	expectType(t, c1, msgTypeWaiting)
	sendText(t, c2, `{"type":"join"}`)
	expectType(t, c2, msgTypeWaiting)

	// A third participant pairs with the pool head, proving the two waiters
	// skipped each other.
	c3 := dialAuthed(t, ts, "c@example.com")
	sendText(t, c3, `{"type":"join"}`)
	expectType(t, c3, msgTypeMatched)
	expectType(t, c1, msgTypeMatched)
}

func TestServer_DisconnectNotifiesPartner(t *testing.T) {
	ts := newTestServer(t, testConfig())

	c1 := dialAuthed(t, ts, "a@example.com")
	c2 := dialAuthed(t, ts, "b@example.com")

	sendText(t, c1, `{"type":"join"}`)
	expectType(t, c1, msgTypeWaiting)
	sendText(t, c2, `{"type":"join"}`)
	expectType(t, c2, msgTypeMatched)
	expectType(t, c1, msgTypeMatched)

	c2.Close()
	expectType(t, c1, msgTypePartnerLeft)
}

func TestServer_RelayWhileUnpairedIsSilentlyDropped(t *testing.T) {
	ts := newTestServer(t, testConfig())
	c := dialAuthed(t, ts, "a@example.com")

	sendText(t, c, `{"type":"chat","payload":"anyone there"}`)
	// The connection stays healthy, proven by a normal join afterwards.
	sendText(t, c, `{"type":"join"}`)
	expectType(t, c, msgTypeWaiting)
}

func TestServer_DisallowedOriginRejected(t *testing.T) {
	cfg := testConfig()
	cfg.AllowedOrigins = []string{"https://app.example.com"}
	ts := newTestServer(t, cfg)

	header := http.Header{"Origin": []string{"https://evil.example.net"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "token="+signToken(t, "a@example.com")), header)
	if err == nil {
		t.Fatal("dial from disallowed origin succeeded")
	}
	if resp != nil && resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
}

func TestServer_AllowedOriginAccepted(t *testing.T) {
	cfg := testConfig()
	cfg.AllowedOrigins = []string{"https://app.example.com"}
	ts := newTestServer(t, cfg)

	header := http.Header{"Origin": []string{"https://app.example.com"}}
	c, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "token="+signToken(t, "a@example.com")), header)
	if err != nil {
		t.Fatalf("dial from allowed origin: %v", err)
	}
	defer c.Close()

	sendText(t, c, `{"type":"join"}`)
	expectType(t, c, msgTypeWaiting)
}

func TestServer_RedundantAuthTolerated(t *testing.T) {
	ts := newTestServer(t, testConfig())
	c := dialAuthed(t, ts, "a@example.com")

	sendText(t, c, fmt.Sprintf(`{"type":"auth","token":%q}`, signToken(t, "a@example.com")))
	sendText(t, c, `{"type":"join"}`)
	expectType(t, c, msgTypeWaiting)
}

func TestServer_MessageRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxMessagesPerSecond = 5
	ts := newTestServer(t, cfg)
	c := dialAuthed(t, ts, "a@example.com")

	for i := 0; i < 20; i++ {
		_ = c.SetWriteDeadline(time.Now().Add(time.Second))
		if err := c.WriteMessage(websocket.TextMessage, []byte(`{"type":"next"}`)); err != nil {
			break
		}
	}
	expectClose(t, c, websocket.ClosePolicyViolation)
}
