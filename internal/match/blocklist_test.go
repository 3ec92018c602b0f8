package match

import "testing"

func TestBlocklist_Mutual(t *testing.T) {
	b := NewBlocklist()
	b.Block("a@example.com", "b@example.com")

	if !b.IsBlocked("a@example.com", "b@example.com") {
		t.Fatal("forward direction not blocked")
	}
	if !b.IsBlocked("b@example.com", "a@example.com") {
		t.Fatal("reverse direction not blocked")
	}
}

func TestBlocklist_DistinctPairsIndependent(t *testing.T) {
	b := NewBlocklist()
	b.Block("a@example.com", "b@example.com")

	if b.IsBlocked("a@example.com", "c@example.com") {
		t.Fatal("unrelated pair reported blocked")
	}
	if b.IsBlocked("c@example.com", "b@example.com") {
		t.Fatal("unrelated pair reported blocked")
	}
}

func TestBlocklist_Idempotent(t *testing.T) {
	b := NewBlocklist()
	b.Block("a@example.com", "b@example.com")
	b.Block("b@example.com", "a@example.com")

	if !b.IsBlocked("a@example.com", "b@example.com") {
		t.Fatal("pair not blocked after repeated Block")
	}
	if len(b.pairs) != 1 {
		t.Fatalf("pairs = %d, want 1", len(b.pairs))
	}
}
