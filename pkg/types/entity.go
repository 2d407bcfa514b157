package types

import "time"

// Entity represents a personality-bearing character tracked by the engine.
// Entities are created at extraction time (from a document) or by fusion.
// Their trait vectors are mutated only by the evolution and fusion engines;
// entities are never deleted, only marked inactive (downstream collaborators
// own deletion policy).
type Entity struct {
	// Core identification fields
	ID   string `json:"id"`   // Unique identifier (format: chr:slug), immutable
	Name string `json:"name"` // Display name

	// Personality state
	Traits TraitVector `json:"traits"` // Current trait vector, bounded to the anchor drift window
	Anchor TraitVector `json:"anchor"` // Birth trait vector, set at creation and never mutated

	// SocialEnergy is the entity's remaining interaction capacity in [0,1].
	// Interactions drain it; healing restores it. The engine surfaces the
	// value but never refuses interactions on it - that policy belongs to
	// the caller.
	SocialEnergy float64 `json:"social_energy"`

	// OriginLineage lists ancestor entity IDs in fusion-request order.
	// Empty for organically created entities, 2-4 entries for fusion products.
	OriginLineage []string `json:"origin_lineage,omitempty"`

	// Active marks the soft lifecycle state. Inactive entities keep their
	// edges but are excluded from community detection and neighborhood
	// queries.
	Active bool `json:"active"`

	CreatedAt time.Time `json:"created_at"` // Creation timestamp
	UpdatedAt time.Time `json:"updated_at"` // Last trait/energy mutation timestamp
}

// IsFused reports whether the entity was produced by fusion.
func (e *Entity) IsFused() bool {
	return len(e.OriginLineage) > 0
}

// Clone returns a deep copy of the entity. Used for snapshot reads so that
// callers never hold references into engine-owned state.
func (e *Entity) Clone() *Entity {
	out := *e
	out.Traits = e.Traits.Clone()
	out.Anchor = e.Anchor.Clone()
	if e.OriginLineage != nil {
		out.OriginLineage = append([]string(nil), e.OriginLineage...)
	}
	return &out
}
