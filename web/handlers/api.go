package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/casthaven/troupe/internal/affect"
	"github.com/casthaven/troupe/internal/config"
	"github.com/casthaven/troupe/internal/engine"
	"github.com/casthaven/troupe/pkg/types"
)

// APIHandlers contains HTTP handlers for the REST API.
type APIHandlers struct {
	engine   *engine.PersonaEngine
	analyzer affect.Analyzer
	config   *config.Config
}

// NewAPIHandlers creates a new APIHandlers instance. The analyzer may be nil
// when no affect collaborator is configured; the analyze route then returns
// 503.
func NewAPIHandlers(eng *engine.PersonaEngine, analyzer affect.Analyzer, cfg *config.Config) *APIHandlers {
	return &APIHandlers{
		engine:   eng,
		analyzer: analyzer,
		config:   cfg,
	}
}

// CreateEntity handles POST /api/entities - register a new character.
func (h *APIHandlers) CreateEntity(w http.ResponseWriter, r *http.Request) {
	var req CreateEntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}

	entity, err := h.engine.CreateEntity(r.Context(), req.Name, req.Traits)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, entity)
}

// ListEntities handles GET /api/entities - list all entities.
func (h *APIHandlers) ListEntities(w http.ResponseWriter, r *http.Request) {
	entities, err := h.engine.ListEntities(r.Context())
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, entities)
}

// GetEntity handles GET /api/entities/{id} - get a single entity by ID.
func (h *APIHandlers) GetEntity(w http.ResponseWriter, r *http.Request) {
	id := extractID(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "entity ID is required", nil)
		return
	}

	entity, err := h.engine.GetEntity(r.Context(), id)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, entity)
}

// SetEntityActive handles POST /api/entities/{id}/active - soft deactivate
// or reactivate an entity. Edges are retained either way.
func (h *APIHandlers) SetEntityActive(w http.ResponseWriter, r *http.Request) {
	id := extractID(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "entity ID is required", nil)
		return
	}

	var req SetActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}

	entity, err := h.engine.SetActive(r.Context(), id, req.Active)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, entity)
}

// SubmitInteraction handles POST /api/interactions - apply a classified
// interaction event to both participants and their edge.
func (h *APIHandlers) SubmitInteraction(w http.ResponseWriter, r *http.Request) {
	var ev types.InteractionEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}

	edge, err := h.engine.SubmitInteraction(r.Context(), &ev)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, InteractionResponse{
		Edge:         edge,
		Participants: h.snapshotParticipants(r, &ev),
	})
}

// AnalyzeInteraction handles POST /api/interactions/analyze - classify a raw
// chat turn through the affect analyzer and submit the resulting event.
func (h *APIHandlers) AnalyzeInteraction(w http.ResponseWriter, r *http.Request) {
	if h.analyzer == nil {
		respondError(w, http.StatusServiceUnavailable, "affect analyzer not configured", nil)
		return
	}

	var req AnalyzeInteractionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}

	ev, err := h.analyzer.Analyze(r.Context(), &affect.AnalyzeRequest{
		Participants: req.Participants,
		Text:         req.Text,
	})
	if err != nil {
		respondEngineError(w, err)
		return
	}

	edge, err := h.engine.SubmitInteraction(r.Context(), ev)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, InteractionResponse{
		Edge:         edge,
		Participants: h.snapshotParticipants(r, ev),
		Event:        ev,
	})
}

// snapshotParticipants fetches both participants after a committed
// interaction. A lookup failure here is a race with a concurrent delete,
// not a request error, so the entity is simply omitted.
func (h *APIHandlers) snapshotParticipants(r *http.Request, ev *types.InteractionEvent) []*types.Entity {
	participants := make([]*types.Entity, 0, 2)
	for _, id := range ev.Participants {
		if e, err := h.engine.GetEntity(r.Context(), id); err == nil {
			participants = append(participants, e)
		}
	}
	return participants
}

// QueryCompatibility handles GET /api/compatibility?a=&b= - score a pair.
func (h *APIHandlers) QueryCompatibility(w http.ResponseWriter, r *http.Request) {
	a := r.URL.Query().Get("a")
	b := r.URL.Query().Get("b")
	if a == "" || b == "" {
		respondError(w, http.StatusBadRequest, "query parameters a and b are required", nil)
		return
	}

	result, err := h.engine.QueryCompatibility(r.Context(), a, b)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// RequestFusion handles POST /api/fusions - fuse 2-4 source entities into a
// new entity.
func (h *APIHandlers) RequestFusion(w http.ResponseWriter, r *http.Request) {
	var req types.FusionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}

	result, err := h.engine.RequestFusion(r.Context(), &req)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

// HealEntity handles POST /api/entities/{id}/heal - move an entity's traits
// back toward its anchor.
func (h *APIHandlers) HealEntity(w http.ResponseWriter, r *http.Request) {
	id := extractID(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "entity ID is required", nil)
		return
	}

	var req HealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}

	mode, err := engine.ParseHealMode(req.Mode)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	entity, err := h.engine.HealEntity(r.Context(), id, mode)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, entity)
}

// GetNeighborhood handles GET /api/entities/{id}/neighborhood?depth= -
// BFS subgraph around an entity.
func (h *APIHandlers) GetNeighborhood(w http.ResponseWriter, r *http.Request) {
	id := extractID(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "entity ID is required", nil)
		return
	}

	depth := parseInt(r.URL.Query().Get("depth"), 1)
	sub, err := h.engine.GetNeighborhood(r.Context(), id, depth)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sub)
}

// GetAlliancePath handles GET /api/path?a=&b= - strongest alliance path
// between two entities.
func (h *APIHandlers) GetAlliancePath(w http.ResponseWriter, r *http.Request) {
	a := r.URL.Query().Get("a")
	b := r.URL.Query().Get("b")
	if a == "" || b == "" {
		respondError(w, http.StatusBadRequest, "query parameters a and b are required", nil)
		return
	}

	path, err := h.engine.StrongestAlliancePath(r.Context(), a, b)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, path)
}

// GetCommunities handles GET /api/communities - alliance connected
// components across the active graph.
func (h *APIHandlers) GetCommunities(w http.ResponseWriter, r *http.Request) {
	communities, err := h.engine.DetectCommunities(r.Context())
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, communities)
}

// RunDecay handles POST /api/maintenance/decay - sweep edge decay across
// the whole graph. Exposed for the scheduler collaborator.
func (h *APIHandlers) RunDecay(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	swept, err := h.engine.DecayRelationships(r.Context(), now)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, DecayResponse{Swept: swept, At: now})
}

// RunHealSweep handles POST /api/maintenance/heal - one natural healing tick
// over all active entities.
func (h *APIHandlers) RunHealSweep(w http.ResponseWriter, r *http.Request) {
	healed, err := h.engine.TickHealing(r.Context())
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, HealSweepResponse{Healed: healed})
}

// GetStats handles GET /api/stats - entity and edge counts plus the affect
// breaker state when an analyzer client is wired.
func (h *APIHandlers) GetStats(w http.ResponseWriter, r *http.Request) {
	entities, edges := h.engine.Counts()
	resp := StatsResponse{Entities: entities, Edges: edges}
	if client, ok := h.analyzer.(*affect.Client); ok && client != nil {
		resp.BreakerState = client.BreakerState()
	}
	respondJSON(w, http.StatusOK, resp)
}

// Helper functions

// extractID extracts a path parameter from the request.
func extractID(r *http.Request, key string) string {
	return r.PathValue(key)
}

// parseInt parses an integer from a string, returning defaultValue if parsing fails.
func parseInt(s string, defaultValue int) int {
	if s == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return val
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// If encoding fails, log but don't try to write another response
		// (headers already sent)
		fmt.Printf("failed to encode JSON response: %v\n", err)
	}
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errResp := ErrorResponse{
		Error: message,
		Code:  http.StatusText(statusCode),
	}

	if err != nil {
		errResp.Details = map[string]interface{}{
			"error": err.Error(),
		}
	}

	respondJSON(w, statusCode, errResp)
}

// respondEngineError maps engine and collaborator error classes to HTTP
// status codes. Invariant violations are server bugs, never caller errors.
func respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, types.ErrValidation):
		respondError(w, http.StatusBadRequest, "validation failed", err)
	case errors.Is(err, types.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found", err)
	case errors.Is(err, affect.ErrCircuitOpen):
		respondError(w, http.StatusServiceUnavailable, "affect analyzer unavailable", err)
	case errors.Is(err, types.ErrInvariant):
		respondError(w, http.StatusInternalServerError, "invariant violation", err)
	default:
		respondError(w, http.StatusInternalServerError, "internal error", err)
	}
}
