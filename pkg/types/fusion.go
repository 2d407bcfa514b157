package types

import (
	"fmt"
	"math"
)

// FusionStrategy selects the per-dimension blend algorithm used by the
// fusion engine.
type FusionStrategy string

const (
	// FusionSimpleAverage takes the arithmetic mean across sources.
	FusionSimpleAverage FusionStrategy = "simple-average"

	// FusionWeightedAverage takes a weighted mean using the request's
	// explicit weights (or equal weights when none are provided).
	FusionWeightedAverage FusionStrategy = "weighted-average"

	// FusionDominantTrait takes, per dimension, the value from whichever
	// source is highest on that dimension (per-dimension winner-take-all).
	FusionDominantTrait FusionStrategy = "dominant-trait"

	// FusionHarmonicMean takes the harmonic mean across sources per
	// dimension, substituting a small epsilon for zero values.
	FusionHarmonicMean FusionStrategy = "harmonic-mean"
)

// ValidFusionStrategies lists all supported blend strategies.
var ValidFusionStrategies = []FusionStrategy{
	FusionSimpleAverage,
	FusionWeightedAverage,
	FusionDominantTrait,
	FusionHarmonicMean,
}

// IsValidFusionStrategy checks whether the given strategy is supported.
func IsValidFusionStrategy(s FusionStrategy) bool {
	for _, valid := range ValidFusionStrategies {
		if s == valid {
			return true
		}
	}
	return false
}

const (
	// MinFusionSources and MaxFusionSources bound the participant count of
	// a fusion request.
	MinFusionSources = 2
	MaxFusionSources = 4

	// WeightSumTolerance is the floating-point tolerance applied when
	// checking that explicit weights sum to 1.0.
	WeightSumTolerance = 1e-6
)

// FusionRequest asks the engine to synthesize a new entity from 2-4 sources.
type FusionRequest struct {
	// SourceIDs lists the source entity IDs in order. The order is recorded
	// in the fused entity's origin lineage.
	SourceIDs []string `json:"source_ids"`

	// Strategy selects the blend algorithm.
	Strategy FusionStrategy `json:"strategy"`

	// Weights optionally provides explicit per-source weights for the
	// weighted-average strategy. When present, weights must be non-negative
	// and sum to 1.0 within WeightSumTolerance. Default: equal weighting.
	Weights []float64 `json:"weights,omitempty"`

	// Name optionally names the fused entity. Default: derived from sources.
	Name string `json:"name,omitempty"`
}

// Validate checks the request against the fusion preconditions. A failed
// check returns ErrValidation and guarantees no entity is created.
func (r *FusionRequest) Validate() error {
	n := len(r.SourceIDs)
	if n < MinFusionSources || n > MaxFusionSources {
		return fmt.Errorf("%w: fusion requires %d-%d sources, got %d", ErrValidation, MinFusionSources, MaxFusionSources, n)
	}
	seen := make(map[string]bool, n)
	for _, id := range r.SourceIDs {
		if id == "" {
			return fmt.Errorf("%w: source IDs must be non-empty", ErrValidation)
		}
		if seen[id] {
			return fmt.Errorf("%w: duplicate source %q", ErrValidation, id)
		}
		seen[id] = true
	}
	if !IsValidFusionStrategy(r.Strategy) {
		return fmt.Errorf("%w: unknown fusion strategy %q", ErrValidation, r.Strategy)
	}
	if r.Weights != nil {
		if len(r.Weights) != n {
			return fmt.Errorf("%w: got %d weights for %d sources", ErrValidation, len(r.Weights), n)
		}
		var sum float64
		for i, w := range r.Weights {
			if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
				return fmt.Errorf("%w: weight %d must be non-negative and finite, got %v", ErrValidation, i, w)
			}
			sum += w
		}
		if math.Abs(sum-1.0) > WeightSumTolerance {
			return fmt.Errorf("%w: weights must sum to 1.0, got %v", ErrValidation, sum)
		}
	}
	return nil
}

// EffectiveWeights returns the request's weights, defaulting to equal
// weighting when none were provided. Only valid after Validate has succeeded.
func (r *FusionRequest) EffectiveWeights() []float64 {
	if r.Weights != nil {
		return r.Weights
	}
	n := len(r.SourceIDs)
	weights := make([]float64, n)
	for i := range weights {
		weights[i] = 1.0 / float64(n)
	}
	return weights
}

// FusionResult is the outcome of a successful fusion: the newly created
// entity plus the pre-fusion compatibility score attached for caller audit.
type FusionResult struct {
	// Entity is the fused entity. Its anchor equals its initial blended
	// trait vector and its origin lineage records the source IDs in
	// request order.
	Entity *Entity `json:"entity"`

	// CompatibilityScore is the mean pairwise compatibility across all
	// source pairs, computed before fusion. It is informational: the engine
	// never gates fusion on it.
	CompatibilityScore float64 `json:"compatibility_score"`
}
