// Package types defines the core data structures for the Troupe character
// engine. These types represent characters (entities), their personality
// trait vectors, relationship edges, interaction events, and fusion
// requests/results.
package types

import (
	"fmt"
	"math"
	"sort"
)

// Canonical trait keys - the five-factor personality dimensions plus
// domain-specific extensions used by the chat product.
const (
	// Five-factor dimensions
	TraitOpenness          = "openness"
	TraitConscientiousness = "conscientiousness"
	TraitExtraversion      = "extraversion"
	TraitAgreeableness     = "agreeableness"
	TraitNeuroticism       = "neuroticism"

	// Domain extensions
	TraitAggression = "aggression"
	TraitEmpathy    = "empathy"
	TraitHumor      = "humor"
	TraitCuriosity  = "curiosity"
	TraitLoyalty    = "loyalty"
)

// DefaultTraitKeys is the default trait schema. The active schema is fixed by
// configuration at process start; every TraitVector in the population carries
// exactly this key set.
var DefaultTraitKeys = []string{
	TraitOpenness,
	TraitConscientiousness,
	TraitExtraversion,
	TraitAgreeableness,
	TraitNeuroticism,
	TraitAggression,
	TraitEmpathy,
	TraitHumor,
	TraitCuriosity,
	TraitLoyalty,
}

// NeutralTraitValue is the midpoint used for missing or non-finite dimensions.
const NeutralTraitValue = 0.5

// TraitVector maps trait keys to bounded personality values in [0.0, 1.0].
// Every key of the active schema must be present, every value clamped to
// range, and no value may be NaN. Use Clamp to enforce the invariant.
type TraitVector map[string]float64

// NewTraitVector returns a vector with every key of the given schema set to
// the neutral midpoint.
func NewTraitVector(keys []string) TraitVector {
	v := make(TraitVector, len(keys))
	for _, k := range keys {
		v[k] = NeutralTraitValue
	}
	return v
}

// Clamp returns a copy of the vector with every value forced into [0.0, 1.0].
// Non-finite values (NaN, ±Inf) are replaced with the neutral midpoint 0.5.
func (v TraitVector) Clamp() TraitVector {
	out := make(TraitVector, len(v))
	for k, val := range v {
		out[k] = ClampTraitValue(val)
	}
	return out
}

// ClampTraitValue forces a single trait value into [0.0, 1.0], replacing
// non-finite input with the neutral midpoint.
func ClampTraitValue(val float64) float64 {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return NeutralTraitValue
	}
	if val < 0.0 {
		return 0.0
	}
	if val > 1.0 {
		return 1.0
	}
	return val
}

// Clone returns a deep copy of the vector.
func (v TraitVector) Clone() TraitVector {
	out := make(TraitVector, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Keys returns the vector's trait keys in sorted order.
func (v TraitVector) Keys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Distance returns the Euclidean distance between two trait vectors over the
// shared key space.
//
// The trait schema is fixed by configuration at process start, so a key-set
// mismatch is a programming-contract violation rather than a recoverable
// error: Distance panics with a descriptive message.
func Distance(a, b TraitVector) float64 {
	mustMatchSchema(a, b)

	var sum float64
	for k, av := range a {
		d := av - b[k]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// MaxDistance returns the largest possible Euclidean distance for a vector
// with the given number of dimensions, i.e. sqrt(n) for values in [0,1].
// Used to normalize Distance into [0,1].
func MaxDistance(dimensions int) float64 {
	if dimensions <= 0 {
		return 0
	}
	return math.Sqrt(float64(dimensions))
}

// mustMatchSchema panics when the two vectors do not share an identical key
// set. Trait schemas are immutable after process start; a mismatch means a
// vector was constructed outside the configured schema.
func mustMatchSchema(a, b TraitVector) {
	if len(a) != len(b) {
		panic(fmt.Sprintf("types: trait vector schema mismatch: %d keys vs %d keys", len(a), len(b)))
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			panic(fmt.Sprintf("types: trait vector schema mismatch: key %q missing from second vector", k))
		}
	}
}
