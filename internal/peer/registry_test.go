package peer

import "testing"

func TestRoundRobinFairness(t *testing.T) {
	r := New()
	r.Insert("a", 1)
	r.Insert("b", 1)
	r.Insert("c", 1)

	counts := map[string]int{}
	const rounds = 9
	for i := 0; i < rounds; i++ {
		p, ok := r.Rotate()
		if !ok {
			t.Fatalf("expected a peer on round %d", i)
		}
		counts[p.Host]++
	}
	for host, n := range counts {
		if n != rounds/3 {
			t.Fatalf("peer fairness: %s selected %d times, want %d", host, n, rounds/3)
		}
	}
}

func TestInsertRefreshesExisting(t *testing.T) {
	r := New()
	r.Insert("a", 1)
	r.Insert("b", 1)
	r.Insert("a", 2) // re-insert moves "a" to the tail with updated port

	first, _ := r.Rotate()
	if first.Host != "b" {
		t.Fatalf("expected b first after a was refreshed, got %s", first.Host)
	}
}

func TestRemove(t *testing.T) {
	r := New()
	r.Insert("a", 1)
	r.Insert("b", 1)
	r.Remove("a")
	if r.Len() != 1 {
		t.Fatalf("expected 1 peer remaining, got %d", r.Len())
	}
	p, ok := r.Rotate()
	if !ok || p.Host != "b" {
		t.Fatalf("expected b to remain")
	}
}

func TestRotateEmpty(t *testing.T) {
	r := New()
	if _, ok := r.Rotate(); ok {
		t.Fatalf("expected Rotate on an empty registry to report !ok")
	}
}
