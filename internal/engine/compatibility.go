package engine

import (
	"github.com/casthaven/troupe/pkg/types"
)

// CompatibilityClass is the qualitative label attached to a score.
type CompatibilityClass string

const (
	ClassAlliance CompatibilityClass = "alliance" // score > 0.5
	ClassConflict CompatibilityClass = "conflict" // score < -0.3
	ClassNeutral  CompatibilityClass = "neutral"
)

// CompatibilityResult is the outcome of a pairwise compatibility query.
type CompatibilityResult struct {
	A     string             `json:"a"`
	B     string             `json:"b"`
	Score float64            `json:"score"`
	Class CompatibilityClass `json:"class"`

	// HasEdge reports whether the pair has interacted; without an edge the
	// score is trait closeness alone.
	HasEdge bool `json:"has_edge"`
}

// Compatibility scores a pair of entities in [-1,1]. It is a pure function
// over the two trait vectors and the pair's edge:
//
//	score = 0.5*traitCloseness + 0.3*strength + 0.2*trust
//
// where traitCloseness maps the normalized Euclidean trait distance into
// [-1,1] (identical vectors score 1, maximally distant score -1). When the
// pair has never interacted (edge == nil), the score is trait closeness
// alone, so identical strangers still score a full 1.0.
func Compatibility(a, b *types.Entity, edge *types.RelationshipEdge) float64 {
	closeness := TraitCloseness(a.Traits, b.Traits)
	if edge == nil {
		return closeness
	}
	return 0.5*closeness + 0.3*edge.Strength + 0.2*edge.Trust
}

// TraitCloseness maps the Euclidean distance between two trait vectors into
// [-1,1]: 1 - 2*(distance/maxDistance).
func TraitCloseness(a, b types.TraitVector) float64 {
	max := types.MaxDistance(len(a))
	if max == 0 {
		return 1.0
	}
	return 1.0 - 2.0*(types.Distance(a, b)/max)
}

// Classify labels a compatibility score: alliance above 0.5, conflict below
// -0.3, neutral in between. The label is advisory; nothing in the engine
// gates on it.
func Classify(score float64) CompatibilityClass {
	switch {
	case score > 0.5:
		return ClassAlliance
	case score < -0.3:
		return ClassConflict
	}
	return ClassNeutral
}
