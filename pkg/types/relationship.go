package types

import "time"

// DefaultHistoryCapacity is the default size of an edge's interaction
// history ring buffer.
const DefaultHistoryCapacity = 50

// InteractionRecord is one entry in an edge's bounded interaction history.
type InteractionRecord struct {
	InitiatorID string    `json:"initiator_id"` // Entity that initiated the interaction
	Valence     float64   `json:"valence"`      // Emotional valence in [-1,1]
	Intensity   float64   `json:"intensity"`    // Interaction intensity in [0,1]
	ContextTag  string    `json:"context_tag"`  // Free-form classification from the NLP collaborator
	At          time.Time `json:"at"`           // When the interaction occurred
}

// RelationshipEdge represents the relationship between two entities.
// The relationship is symmetric in meaning but the stored (Source, Target)
// order records who initiated the most recent interaction. At most one edge
// exists per unordered entity pair; edges are created lazily on first
// interaction and never deleted, though they may decay to near-zero.
type RelationshipEdge struct {
	Source string `json:"source"` // Initiator of the most recent interaction
	Target string `json:"target"` // The other participant

	Strength    float64 `json:"strength"`    // Conflict-alliance axis in [-1,1]
	Trust       float64 `json:"trust"`       // Trust level in [0,1]
	Familiarity float64 `json:"familiarity"` // Monotonic interaction history measure in [0,1]

	LastInteractionAt time.Time `json:"last_interaction_at"` // Timestamp of the most recent interaction

	// LastDecayAt records the most recent decay sweep so repeated sweeps
	// measure elapsed time from the previous sweep instead of compounding
	// from LastInteractionAt. Zero means no sweep has run since the last
	// interaction.
	LastDecayAt time.Time `json:"last_decay_at,omitempty"`

	// History is a bounded ring of the most recent interaction summaries,
	// oldest first. Oldest entries are evicted past HistoryCapacity.
	History         []InteractionRecord `json:"history,omitempty"`
	HistoryCapacity int                 `json:"history_capacity"`
}

// NewRelationshipEdge returns an edge with the neutral-cautious defaults:
// strength 0, trust 0.3, familiarity 0.
func NewRelationshipEdge(source, target string, historyCapacity int) *RelationshipEdge {
	if historyCapacity <= 0 {
		historyCapacity = DefaultHistoryCapacity
	}
	return &RelationshipEdge{
		Source:          source,
		Target:          target,
		Strength:        0.0,
		Trust:           0.3,
		Familiarity:     0.0,
		HistoryCapacity: historyCapacity,
	}
}

// Pair returns the edge's unordered pair key components in canonical
// (lexicographic) order.
func (e *RelationshipEdge) Pair() (string, string) {
	return CanonicalPair(e.Source, e.Target)
}

// Involves reports whether the edge touches the given entity ID.
func (e *RelationshipEdge) Involves(id string) bool {
	return e.Source == id || e.Target == id
}

// Other returns the participant opposite to the given entity ID.
// Returns an empty string when the edge does not involve id.
func (e *RelationshipEdge) Other(id string) string {
	switch id {
	case e.Source:
		return e.Target
	case e.Target:
		return e.Source
	}
	return ""
}

// AppendHistory appends a record to the edge's history ring, evicting the
// oldest entry when capacity is exceeded.
func (e *RelationshipEdge) AppendHistory(rec InteractionRecord) {
	cap := e.HistoryCapacity
	if cap <= 0 {
		cap = DefaultHistoryCapacity
	}
	e.History = append(e.History, rec)
	if len(e.History) > cap {
		e.History = e.History[len(e.History)-cap:]
	}
}

// Clone returns a deep copy of the edge.
func (e *RelationshipEdge) Clone() *RelationshipEdge {
	out := *e
	if e.History != nil {
		out.History = append([]InteractionRecord(nil), e.History...)
	}
	return &out
}

// CanonicalPair orders two entity IDs lexicographically. Edges are keyed by
// this canonical ordering so that (a,b) and (b,a) resolve to the same edge.
func CanonicalPair(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}
