package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/casthaven/troupe/pkg/types"
)

// ApplyEvolution folds one interaction event into the entity's trait vector
// and social energy, in place:
//
//   - per dimension, delta = valence * intensity * sensitivity[k]
//   - the result is clamped to [0,1] and then saturated at the anchor drift
//     window [anchor-maxDrift, anchor+maxDrift]
//   - social energy drains by intensity * drain rate, floored at 0
//
// Both participants of an interaction receive the same delta formula; the
// engine calls this once per participant. Callers must hold the entity lock
// and have validated the event; a zero-intensity event is a no-op.
func ApplyEvolution(e *types.Entity, ev *types.InteractionEvent, cfg Config, now time.Time) {
	if ev.Intensity == 0 {
		return
	}

	for k, current := range e.Traits {
		delta := ev.Valence * ev.Intensity * cfg.sensitivityFor(k)
		e.Traits[k] = saturateToWindow(current+delta, e.Anchor[k], cfg.MaxDrift)
	}

	e.SocialEnergy = math.Max(e.SocialEnergy-ev.Intensity*cfg.SocialEnergyDrainRate, 0.0)
	e.UpdatedAt = now
}

// saturateToWindow clamps a proposed trait value to [0,1] and then to the
// drift window around the anchor. Movement toward the window boundary is
// preserved; movement beyond it saturates at the boundary.
func saturateToWindow(proposed, anchor, maxDrift float64) float64 {
	v := types.ClampTraitValue(proposed)

	lo := math.Max(anchor-maxDrift, 0.0)
	hi := math.Min(anchor+maxDrift, 1.0)
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// CheckDriftInvariant verifies that every trait sits inside [0,1] and inside
// the drift window around its anchor. A violation means engine state was
// corrupted (or tunables were changed mid-flight); it maps to ErrInvariant
// and the operation that detected it must abort without partial mutation.
func CheckDriftInvariant(e *types.Entity, maxDrift float64) error {
	const eps = 1e-9
	for k, v := range e.Traits {
		if v != v || v < -eps || v > 1+eps {
			return fmt.Errorf("%w: entity %s trait %s out of range: %v", types.ErrInvariant, e.ID, k, v)
		}
		anchor, ok := e.Anchor[k]
		if !ok {
			return fmt.Errorf("%w: entity %s trait %s missing from anchor", types.ErrInvariant, e.ID, k)
		}
		if math.Abs(v-anchor) > maxDrift+eps {
			return fmt.Errorf("%w: entity %s trait %s drifted %.4f from anchor (max %.4f)",
				types.ErrInvariant, e.ID, k, math.Abs(v-anchor), maxDrift)
		}
	}
	return nil
}
