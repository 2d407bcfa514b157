package graph

import (
	"errors"
	"math"
	"testing"

	"github.com/casthaven/troupe/pkg/types"
)

func setEdgeStrength(t *testing.T, s *Store, a, b string, strength float64) {
	t.Helper()
	err := s.WithPair(a, b, func(_, _ *types.Entity, edge *types.RelationshipEdge) error {
		edge.Strength = strength
		return nil
	})
	if err != nil {
		t.Fatalf("WithPair(%s,%s) failed: %v", a, b, err)
	}
}

// TestStrongestAlliancePathPrefersStrongEdges verifies that Dijkstra picks
// the two-hop path through strong allies over the weak direct edge. The
// direct edge costs 1/0.35 ~ 2.86 while the two hops cost 2/0.9 ~ 2.22, so
// the detour through the strong ally is genuinely cheaper.
func TestStrongestAlliancePathPrefersStrongEdges(t *testing.T) {
	s := newTestStore(t, "chr:a", "chr:b", "chr:c")

	setEdgeStrength(t, s, "chr:a", "chr:c", 0.35)
	setEdgeStrength(t, s, "chr:a", "chr:b", 0.9)
	setEdgeStrength(t, s, "chr:b", "chr:c", 0.9)

	res, err := s.StrongestAlliancePath("chr:a", "chr:c", 0.3)
	if err != nil {
		t.Fatalf("StrongestAlliancePath failed: %v", err)
	}

	want := []string{"chr:a", "chr:b", "chr:c"}
	if len(res.Path) != len(want) {
		t.Fatalf("path = %v, want %v", res.Path, want)
	}
	for i := range want {
		if res.Path[i] != want[i] {
			t.Fatalf("path = %v, want %v", res.Path, want)
		}
	}

	wantCost := 2.0 / 0.9
	if math.Abs(res.Cost-wantCost) > 1e-9 {
		t.Errorf("cost = %v, want %v", res.Cost, wantCost)
	}
}

// TestStrongestAlliancePathTakesQualifyingDirectEdge verifies the flip side:
// a direct edge above the threshold costs at most 1/threshold, which beats
// any multi-hop route whose per-hop cost exceeds half of that.
func TestStrongestAlliancePathTakesQualifyingDirectEdge(t *testing.T) {
	s := newTestStore(t, "chr:a", "chr:b", "chr:c")

	setEdgeStrength(t, s, "chr:a", "chr:c", 0.51)
	setEdgeStrength(t, s, "chr:a", "chr:b", 0.9)
	setEdgeStrength(t, s, "chr:b", "chr:c", 0.9)

	res, err := s.StrongestAlliancePath("chr:a", "chr:c", 0.5)
	if err != nil {
		t.Fatalf("StrongestAlliancePath failed: %v", err)
	}

	want := []string{"chr:a", "chr:c"}
	if len(res.Path) != 2 || res.Path[0] != want[0] || res.Path[1] != want[1] {
		t.Fatalf("path = %v, want %v", res.Path, want)
	}
	if wantCost := 1.0 / 0.51; math.Abs(res.Cost-wantCost) > 1e-9 {
		t.Errorf("cost = %v, want %v", res.Cost, wantCost)
	}
}

// TestStrongestAlliancePathIgnoresWeakEdges verifies that edges at or below
// the threshold do not participate in pathfinding.
func TestStrongestAlliancePathIgnoresWeakEdges(t *testing.T) {
	s := newTestStore(t, "chr:a", "chr:b", "chr:c")

	setEdgeStrength(t, s, "chr:a", "chr:b", 0.5) // at threshold, excluded
	setEdgeStrength(t, s, "chr:b", "chr:c", 0.9)

	_, err := s.StrongestAlliancePath("chr:a", "chr:c", 0.5)
	if !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unreachable target, got %v", err)
	}
}

// TestStrongestAlliancePathSameEntity verifies the trivial self-path.
func TestStrongestAlliancePathSameEntity(t *testing.T) {
	s := newTestStore(t, "chr:a")

	res, err := s.StrongestAlliancePath("chr:a", "chr:a", 0.5)
	if err != nil {
		t.Fatalf("StrongestAlliancePath failed: %v", err)
	}
	if len(res.Path) != 1 || res.Path[0] != "chr:a" || res.Cost != 0 {
		t.Errorf("self-path = %+v, want single-node zero-cost path", res)
	}
}

// TestStrongestAlliancePathMissingEntity verifies the error taxonomy.
func TestStrongestAlliancePathMissingEntity(t *testing.T) {
	s := newTestStore(t, "chr:a")

	_, err := s.StrongestAlliancePath("chr:a", "chr:ghost", 0.5)
	if !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// TestNeighborhoodBoundedByDepth verifies the BFS depth cutoff on a chain
// a-b-c-d: depth 2 from a collects a, b, c but not d.
func TestNeighborhoodBoundedByDepth(t *testing.T) {
	s := newTestStore(t, "chr:a", "chr:b", "chr:c", "chr:d")

	setEdgeStrength(t, s, "chr:a", "chr:b", 0.5)
	setEdgeStrength(t, s, "chr:b", "chr:c", 0.5)
	setEdgeStrength(t, s, "chr:c", "chr:d", 0.5)

	sub, err := s.Neighborhood("chr:a", 2)
	if err != nil {
		t.Fatalf("Neighborhood failed: %v", err)
	}

	got := make(map[string]bool)
	for _, e := range sub.Entities {
		got[e.ID] = true
	}
	if len(got) != 3 || !got["chr:a"] || !got["chr:b"] || !got["chr:c"] {
		t.Errorf("entities = %v, want {chr:a, chr:b, chr:c}", got)
	}

	// Only the a-b and b-c edges fall among the collected entities.
	if len(sub.Edges) != 2 {
		t.Errorf("expected 2 edges, got %d", len(sub.Edges))
	}
}

// TestNeighborhoodSkipsInactiveEntities verifies that inactive entities are
// excluded and not traversed through.
func TestNeighborhoodSkipsInactiveEntities(t *testing.T) {
	s := newTestStore(t, "chr:a", "chr:b", "chr:c")

	setEdgeStrength(t, s, "chr:a", "chr:b", 0.5)
	setEdgeStrength(t, s, "chr:b", "chr:c", 0.5)

	if _, err := s.SetActive("chr:b", false); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}

	sub, err := s.Neighborhood("chr:a", 3)
	if err != nil {
		t.Fatalf("Neighborhood failed: %v", err)
	}

	if len(sub.Entities) != 1 || sub.Entities[0].ID != "chr:a" {
		t.Errorf("expected only the center, got %d entities", len(sub.Entities))
	}
}

// TestNeighborhoodMissingCenter verifies the error taxonomy.
func TestNeighborhoodMissingCenter(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Neighborhood("chr:ghost", 2)
	if !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
