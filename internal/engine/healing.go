package engine

import (
	"fmt"
	"time"

	"github.com/casthaven/troupe/pkg/types"
)

// HealMode selects how strongly a healing pass pulls traits back toward the
// entity's anchor.
type HealMode string

const (
	// HealNatural is the slow ambient recovery applied by the periodic tick.
	HealNatural HealMode = "natural"

	// HealTherapeutic is a stronger, explicitly requested recovery step.
	HealTherapeutic HealMode = "therapeutic"

	// HealReset snaps the trait vector back to an exact copy of the anchor.
	HealReset HealMode = "reset"
)

// ParseHealMode maps a request string to a HealMode.
// Returns ErrValidation for unknown modes.
func ParseHealMode(s string) (HealMode, error) {
	switch HealMode(s) {
	case HealNatural, HealTherapeutic, HealReset:
		return HealMode(s), nil
	}
	return "", fmt.Errorf("%w: unknown heal mode %q", types.ErrValidation, s)
}

// Heal moves the entity's traits back toward its anchor, in place.
// Natural and therapeutic modes interpolate each trait toward its anchor by
// the configured rate; reset copies the anchor exactly. Healing never moves
// a trait away from its anchor, and restores social energy toward 1.0 by the
// same rate (reset restores it fully).
//
// Callers must hold the entity lock.
func Heal(e *types.Entity, mode HealMode, cfg Config, now time.Time) error {
	var rate float64
	switch mode {
	case HealNatural:
		rate = cfg.NaturalHealRate
	case HealTherapeutic:
		rate = cfg.TherapeuticHealRate
	case HealReset:
		e.Traits = e.Anchor.Clone()
		e.SocialEnergy = 1.0
		e.UpdatedAt = now
		return nil
	default:
		return fmt.Errorf("%w: unknown heal mode %q", types.ErrValidation, mode)
	}

	for k, v := range e.Traits {
		// Linear interpolation toward the anchor; a rate in [0,1] can never
		// overshoot, so the never-past-anchor guarantee holds.
		e.Traits[k] = v + (e.Anchor[k]-v)*rate
	}
	e.SocialEnergy = e.SocialEnergy + (1.0-e.SocialEnergy)*rate
	e.UpdatedAt = now
	return nil
}
