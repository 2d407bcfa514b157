package graph

import (
	"container/heap"
	"fmt"

	"github.com/casthaven/troupe/pkg/types"
)

// PathResult is an alliance path between two entities.
type PathResult struct {
	// Path is the sequence of entity IDs from source to target.
	Path []string `json:"path"`

	// Cost is the accumulated edge cost (1/strength per hop), so stronger
	// alliances yield cheaper paths.
	Cost float64 `json:"cost"`
}

// Subgraph is the bounded neighborhood around an entity, suitable for a
// relationship-graph renderer: all reachable active entities within the
// depth limit plus every edge among them.
type Subgraph struct {
	Center   string                    `json:"center"`
	Depth    int                       `json:"depth"`
	Entities []*types.Entity           `json:"entities"`
	Edges    []*types.RelationshipEdge `json:"edges"`
}

// allianceAdjacency builds an adjacency list over edges whose strength
// exceeds the threshold. The snapshot is taken under the map lock; edge
// values are read without participant locks, which is acceptable for query
// operations (they tolerate slightly stale weights).
func (s *Store) allianceAdjacency(threshold float64) map[string][]weightedNeighbor {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adj := make(map[string][]weightedNeighbor)
	for key, edge := range s.edges {
		if edge.Strength <= threshold {
			continue
		}
		adj[key.a] = append(adj[key.a], weightedNeighbor{id: key.b, strength: edge.Strength})
		adj[key.b] = append(adj[key.b], weightedNeighbor{id: key.a, strength: edge.Strength})
	}
	return adj
}

type weightedNeighbor struct {
	id       string
	strength float64
}

// StrongestAlliancePath finds the cheapest path from a to b over edges with
// strength above the threshold, using Dijkstra with edge cost 1/strength.
// Returns ErrNotFound when no alliance path connects the two entities.
func (s *Store) StrongestAlliancePath(a, b string, threshold float64) (*PathResult, error) {
	s.mu.RLock()
	_, okA := s.entities[a]
	_, okB := s.entities[b]
	s.mu.RUnlock()
	if !okA {
		return nil, fmt.Errorf("%w: entity %s", types.ErrNotFound, a)
	}
	if !okB {
		return nil, fmt.Errorf("%w: entity %s", types.ErrNotFound, b)
	}

	if a == b {
		return &PathResult{Path: []string{a}, Cost: 0}, nil
	}

	adj := s.allianceAdjacency(threshold)

	dist := map[string]float64{a: 0}
	prev := make(map[string]string)
	visited := make(map[string]bool)

	pq := &pathQueue{{id: a, cost: 0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(pathItem)
		if visited[cur.id] {
			continue
		}
		visited[cur.id] = true

		if cur.id == b {
			break
		}

		for _, nb := range adj[cur.id] {
			cost := cur.cost + 1.0/nb.strength
			if d, seen := dist[nb.id]; !seen || cost < d {
				dist[nb.id] = cost
				prev[nb.id] = cur.id
				heap.Push(pq, pathItem{id: nb.id, cost: cost})
			}
		}
	}

	if !visited[b] {
		return nil, fmt.Errorf("%w: no alliance path from %s to %s", types.ErrNotFound, a, b)
	}

	// Reconstruct the path backwards from the target.
	path := []string{b}
	for cur := b; cur != a; {
		cur = prev[cur]
		path = append([]string{cur}, path...)
	}

	return &PathResult{Path: path, Cost: dist[b]}, nil
}

// Neighborhood returns the bounded BFS subgraph around the center entity:
// every active entity reachable within depth hops plus all edges among the
// collected entities. The center is always included, active or not.
// Returns ErrNotFound when the center entity is absent.
func (s *Store) Neighborhood(center string, depth int) (*Subgraph, error) {
	if depth < 1 {
		depth = 1
	}

	centerEntity, err := s.GetEntity(center)
	if err != nil {
		return nil, err
	}

	// Snapshot adjacency over all edges (any strength).
	s.mu.RLock()
	adj := make(map[string][]string)
	for key := range s.edges {
		adj[key.a] = append(adj[key.a], key.b)
		adj[key.b] = append(adj[key.b], key.a)
	}
	s.mu.RUnlock()

	type queueItem struct {
		id    string
		depth int
	}

	visited := map[string]bool{center: true}
	collected := []*types.Entity{centerEntity}
	queue := []queueItem{{center, 0}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur.depth >= depth {
			continue
		}

		for _, neighborID := range adj[cur.id] {
			if visited[neighborID] {
				continue
			}
			visited[neighborID] = true

			neighbor, err := s.GetEntity(neighborID)
			if err != nil {
				continue
			}
			if !neighbor.Active {
				// Inactive entities are excluded and not traversed through.
				continue
			}

			collected = append(collected, neighbor)
			queue = append(queue, queueItem{neighborID, cur.depth + 1})
		}
	}

	// Collect every edge among the visited entities.
	s.mu.RLock()
	keys := make([]pairKey, 0)
	for key := range s.edges {
		if visited[key.a] && visited[key.b] {
			keys = append(keys, key)
		}
	}
	s.mu.RUnlock()

	edges := make([]*types.RelationshipEdge, 0, len(keys))
	for _, key := range keys {
		if edge, err := s.GetEdge(key.a, key.b); err == nil {
			edges = append(edges, edge)
		}
	}

	return &Subgraph{
		Center:   center,
		Depth:    depth,
		Entities: collected,
		Edges:    edges,
	}, nil
}

// pathItem / pathQueue implement the Dijkstra priority queue.
type pathItem struct {
	id   string
	cost float64
}

type pathQueue []pathItem

func (q pathQueue) Len() int            { return len(q) }
func (q pathQueue) Less(i, j int) bool  { return q[i].cost < q[j].cost }
func (q pathQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *pathQueue) Push(x interface{}) { *q = append(*q, x.(pathItem)) }
func (q *pathQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
