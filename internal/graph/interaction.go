package graph

import (
	"math"
	"time"

	"github.com/casthaven/troupe/pkg/types"
)

// Params holds the relationship update tunables. Values come from
// config.EngineConfig; the graph package stays independent of the config
// loader so tests can construct Params directly.
type Params struct {
	StrengthLearningRate  float64 // rate edge strength moves toward the interaction target
	TrustRate             float64 // trust movement scale per interaction
	TrustFamiliarityFloor float64 // familiarity required before trust responds
	FamiliarityRate       float64 // familiarity gain scale per interaction
	NeutralTrust          float64 // trust floor that decay converges to
	DecayHalfLifeHours    float64 // half-life of strength/trust fade without interaction
}

// DefaultParams returns the documented defaults: learning rate 0.15, trust
// rate 0.1 gated on familiarity 0.2, familiarity rate 0.05, neutral trust
// 0.3, two-week decay half-life.
func DefaultParams() Params {
	return Params{
		StrengthLearningRate:  0.15,
		TrustRate:             0.1,
		TrustFamiliarityFloor: 0.2,
		FamiliarityRate:       0.05,
		NeutralTrust:          0.3,
		DecayHalfLifeHours:    336.0,
	}
}

// ApplyInteraction folds one interaction event into the live edge:
//
//   - strength moves toward sign(valence)*intensity by the learning rate,
//     clamped to [-1,1]
//   - familiarity gains intensity*familiarityRate, monotonic, capped at 1
//   - trust moves by valence*intensity*trustRate, but only once familiarity
//     (after this event's gain) exceeds the floor - below it, trust updates
//     are suppressed to model "too early to trust"; clamped to [0,1]
//   - the stored edge direction records the event's initiator, and the
//     history ring appends a summary
//
// A zero-intensity event changes none of strength/trust/familiarity; it only
// records itself in the history.
//
// Callers must hold both participant locks (Store.WithPair does).
func ApplyInteraction(edge *types.RelationshipEdge, ev *types.InteractionEvent, now time.Time, p Params) {
	if ev.Intensity > 0 {
		target := sign(ev.Valence) * ev.Intensity
		edge.Strength = clampSigned(edge.Strength + (target-edge.Strength)*p.StrengthLearningRate)

		// Familiarity first: an interaction that crosses the floor unlocks
		// trust movement for that same interaction.
		edge.Familiarity = math.Min(edge.Familiarity+ev.Intensity*p.FamiliarityRate, 1.0)

		if edge.Familiarity > p.TrustFamiliarityFloor {
			edge.Trust = clampUnit(edge.Trust + ev.Valence*ev.Intensity*p.TrustRate)
		}
	}

	edge.Source = ev.Initiator()
	edge.Target = ev.Responder()
	edge.LastInteractionAt = now
	edge.AppendHistory(types.InteractionRecord{
		InitiatorID: ev.Initiator(),
		Valence:     ev.Valence,
		Intensity:   ev.Intensity,
		ContextTag:  ev.ContextTag,
		At:          now,
	})
}

// DecayEdge fades the live edge as a function of time since the last
// interaction (or the last decay sweep, whichever is later, so repeated
// sweeps do not compound): strength decays multiplicatively toward 0 and
// trust toward the neutral floor. Familiarity never decays - once familiar,
// always at least acquainted.
//
// Callers must hold both participant locks.
func DecayEdge(edge *types.RelationshipEdge, now time.Time, p Params) {
	ref := edge.LastInteractionAt
	if edge.LastDecayAt.After(ref) {
		ref = edge.LastDecayAt
	}
	if ref.IsZero() || !now.After(ref) {
		edge.LastDecayAt = now
		return
	}

	hours := now.Sub(ref).Hours()
	factor := math.Exp(-math.Ln2 / p.DecayHalfLifeHours * hours)

	edge.Strength *= factor
	edge.Trust = p.NeutralTrust + (edge.Trust-p.NeutralTrust)*factor
	edge.LastDecayAt = now
}

// sign returns -1, 0, or 1 matching the sign of v.
func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// clampSigned forces v into [-1, 1].
func clampSigned(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}

// clampUnit forces v into [0, 1].
func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
