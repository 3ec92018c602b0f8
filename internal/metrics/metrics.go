package metrics

import "sync"

// Event counter names.
const (
	ConnectionOpened = "connection_opened"
	ConnectionClosed = "connection_closed"
	AuthFailure      = "auth_failure"

	MatchCreated    = "match_created"
	WaitingEnqueued = "waiting_enqueued"
	BlockRecorded   = "block_recorded"

	RelayForwarded = "relay_forwarded"
	// RelayDropped counts relays attempted while unpaired or against a partner
	// that disconnected mid-flight. Dropping is normal churn, not an error.
	RelayDropped = "relay_dropped"

	RateLimited     = "rate_limited"
	OutboundDropped = "outbound_dropped"
)

// Metrics is a minimal, concurrency-safe counter registry.
//
// The production service is expected to plug into a real metrics backend; this
// type keeps enforcement logic testable and feeds the Prometheus text handler.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.mu.Lock()
	m.m[name]++
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
