package graph

import "sort"

// Community is a connected component of entities linked by strong edges.
type Community struct {
	// Members holds the entity IDs in the community, sorted for
	// deterministic output.
	Members []string `json:"members"`
}

// DetectCommunities returns the connected components over edges whose
// strength exceeds the threshold, considering active entities only.
//
// This is a deliberate design choice: union-find connected components keep
// detection O(V+E) instead of reaching for modularity optimization.
// Entities with no strong edge form no community of their own.
func (s *Store) DetectCommunities(threshold float64) []Community {
	s.mu.RLock()
	parent := make(map[string]string)

	var find func(string) string
	find = func(x string) string {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(x, y string) {
		rx, ry := find(x), find(y)
		if rx != ry {
			parent[rx] = ry
		}
	}

	for key, edge := range s.edges {
		if edge.Strength <= threshold {
			continue
		}
		ea, eb := s.entities[key.a], s.entities[key.b]
		if ea == nil || eb == nil || !ea.Active || !eb.Active {
			continue
		}
		if _, ok := parent[key.a]; !ok {
			parent[key.a] = key.a
		}
		if _, ok := parent[key.b]; !ok {
			parent[key.b] = key.b
		}
		union(key.a, key.b)
	}

	groups := make(map[string][]string)
	for id := range parent {
		root := find(id)
		groups[root] = append(groups[root], id)
	}
	s.mu.RUnlock()

	communities := make([]Community, 0, len(groups))
	for _, members := range groups {
		sort.Strings(members)
		communities = append(communities, Community{Members: members})
	}
	// Sort communities by their first member for deterministic output.
	sort.Slice(communities, func(i, j int) bool {
		return communities[i].Members[0] < communities[j].Members[0]
	})
	return communities
}
