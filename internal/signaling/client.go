package signaling

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/utkarshsaxena1812/ABES-CamConnect/internal/match"
)

const wsWriteWait = 1 * time.Second

// wsClient owns all writes to one websocket connection. Hub events are
// enqueued to a bounded buffer and drained by the write pump; a full buffer
// drops the event rather than blocking the hub. Control-path writes (error
// plus close) go through the same write mutex as the pump.
type wsClient struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	queue chan match.Event
	done  chan struct{}
	once  sync.Once
}

func newWSClient(conn *websocket.Conn, queueSize int) *wsClient {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &wsClient{
		conn:  conn,
		queue: make(chan match.Event, queueSize),
		done:  make(chan struct{}),
	}
}

// Send enqueues an event for delivery. Never blocks; reports false when the
// buffer is full or the connection is shutting down.
func (c *wsClient) Send(ev match.Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.queue <- ev:
		return true
	default:
		return false
	}
}

// writePump drains the event queue and emits keepalive pings until shutdown.
// Runs in its own goroutine; returns once the client is shut down or a write
// fails.
func (c *wsClient) writePump(pingInterval time.Duration) {
	var pings *time.Ticker
	var pingCh <-chan time.Time
	if pingInterval > 0 {
		pings = time.NewTicker(pingInterval)
		pingCh = pings.C
		defer pings.Stop()
	}

	for {
		select {
		case <-c.done:
			return
		case ev := <-c.queue:
			if err := c.writeMessage(messageFromEvent(ev)); err != nil {
				c.shutdown()
				return
			}
		case <-pingCh:
			c.writeMu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				c.shutdown()
				return
			}
		}
	}
}

func (c *wsClient) writeMessage(msg serverMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// fail reports an error to the client and closes the connection.
func (c *wsClient) fail(closeCode int, code, message string) {
	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	_ = c.conn.WriteJSON(serverMessage{Type: msgTypeError, Code: code, Message: message})
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(closeCode, message), time.Now().Add(wsWriteWait))
	c.writeMu.Unlock()
	c.shutdown()
}

// closeNormal performs a clean close handshake.
func (c *wsClient) closeNormal(reason string) {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason), time.Now().Add(wsWriteWait))
	c.writeMu.Unlock()
	c.shutdown()
}

// shutdown stops the pump and closes the underlying connection. Idempotent.
func (c *wsClient) shutdown() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}
