package match

import "sync"

// Blocklist stores mutual block relationships between identities.
//
// Pairs are unordered: Block(a, b) and Block(b, a) record the same
// relationship. Blocks last for the process lifetime; there is no removal.
type Blocklist struct {
	mu    sync.RWMutex
	pairs map[string]struct{}
}

func NewBlocklist() *Blocklist {
	return &Blocklist{
		pairs: make(map[string]struct{}),
	}
}

func (b *Blocklist) Block(identityA, identityB string) {
	key := pairKey(identityA, identityB)
	b.mu.Lock()
	b.pairs[key] = struct{}{}
	b.mu.Unlock()
}

func (b *Blocklist) IsBlocked(identityA, identityB string) bool {
	key := pairKey(identityA, identityB)
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.pairs[key]
	return ok
}

// pairKey normalizes the unordered identity pair. The separator cannot appear
// in an email local part or domain.
func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}
