package match

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultPresenceInterval is how often the online count is pushed to every
// connection when no interval is configured.
const DefaultPresenceInterval = 2 * time.Second

// Presence periodically broadcasts the live-connection count through the hub.
type Presence struct {
	hub      *Hub
	interval time.Duration
	clock    clock.Clock
}

func NewPresence(hub *Hub, interval time.Duration, clk clock.Clock) *Presence {
	if interval <= 0 {
		interval = DefaultPresenceInterval
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Presence{hub: hub, interval: interval, clock: clk}
}

// Run broadcasts on every tick until ctx is cancelled.
func (p *Presence) Run(ctx context.Context) {
	t := p.clock.Ticker(p.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.hub.BroadcastOnlineCount()
		}
	}
}
