package handlers

import (
	"time"

	"github.com/casthaven/troupe/pkg/types"
)

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// CreateEntityRequest is the request body for POST /api/entities.
// Traits may be nil or partial; missing dimensions default to neutral.
type CreateEntityRequest struct {
	Name   string            `json:"name"`
	Traits types.TraitVector `json:"traits,omitempty"`
}

// InteractionResponse is the response for POST /api/interactions and
// POST /api/interactions/analyze: the updated edge and participants plus,
// for the analyze route, the classification the affect analyzer produced.
type InteractionResponse struct {
	Edge         *types.RelationshipEdge `json:"edge"`
	Participants []*types.Entity         `json:"participants"`
	Event        *types.InteractionEvent `json:"event,omitempty"`
}

// AnalyzeInteractionRequest is the request body for
// POST /api/interactions/analyze: a raw chat turn to classify and submit.
// The first participant is the speaker.
type AnalyzeInteractionRequest struct {
	Participants []string `json:"participants"`
	Text         string   `json:"text"`
}

// HealRequest is the request body for POST /api/entities/{id}/heal.
type HealRequest struct {
	Mode string `json:"mode"`
}

// SetActiveRequest is the request body for POST /api/entities/{id}/active.
type SetActiveRequest struct {
	Active bool `json:"active"`
}

// DecayResponse is the response for POST /api/maintenance/decay.
type DecayResponse struct {
	Swept int       `json:"swept"`
	At    time.Time `json:"at"`
}

// HealSweepResponse is the response for POST /api/maintenance/heal.
type HealSweepResponse struct {
	Healed int `json:"healed"`
}

// StatsResponse is the response format for GET /api/stats.
type StatsResponse struct {
	Entities     int    `json:"entities"`
	Edges        int    `json:"edges"`
	BreakerState string `json:"breaker_state,omitempty"`
}
