package engine

import (
	"math"

	"github.com/casthaven/troupe/pkg/types"
)

// harmonicEpsilon substitutes for zero trait values in the harmonic mean so
// a single zero dimension does not collapse the blend.
const harmonicEpsilon = 1e-3

// BlendTraits computes the fused trait vector from the sources' current
// vectors using the requested strategy. weights must already be validated
// and normalized (FusionRequest.EffectiveWeights); they are only consulted
// by the weighted-average strategy. The result is clamped.
func BlendTraits(sources []*types.Entity, strategy types.FusionStrategy, weights []float64) types.TraitVector {
	out := make(types.TraitVector, len(sources[0].Traits))

	for k := range sources[0].Traits {
		var blended float64
		switch strategy {
		case types.FusionWeightedAverage:
			for i, src := range sources {
				blended += weights[i] * src.Traits[k]
			}

		case types.FusionDominantTrait:
			// Per-dimension winner-take-all: the highest source value wins.
			blended = sources[0].Traits[k]
			for _, src := range sources[1:] {
				if src.Traits[k] > blended {
					blended = src.Traits[k]
				}
			}

		case types.FusionHarmonicMean:
			var invSum float64
			for _, src := range sources {
				invSum += 1.0 / math.Max(src.Traits[k], harmonicEpsilon)
			}
			blended = float64(len(sources)) / invSum

		default: // FusionSimpleAverage
			for _, src := range sources {
				blended += src.Traits[k]
			}
			blended /= float64(len(sources))
		}
		out[k] = blended
	}

	return out.Clamp()
}

// meanPairwiseCompatibility averages Compatibility over every unordered
// source pair. edgeFor supplies the pair's edge (nil when none exists).
func meanPairwiseCompatibility(sources []*types.Entity, edgeFor func(a, b string) *types.RelationshipEdge) float64 {
	var sum float64
	var pairs int
	for i := 0; i < len(sources); i++ {
		for j := i + 1; j < len(sources); j++ {
			sum += Compatibility(sources[i], sources[j], edgeFor(sources[i].ID, sources[j].ID))
			pairs++
		}
	}
	if pairs == 0 {
		return 0
	}
	return sum / float64(pairs)
}
