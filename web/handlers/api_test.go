package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/casthaven/troupe/internal/affect"
	"github.com/casthaven/troupe/internal/config"
	"github.com/casthaven/troupe/internal/engine"
	"github.com/casthaven/troupe/pkg/types"
)

// MockAnalyzer is a mock implementation of affect.Analyzer for testing.
type MockAnalyzer struct {
	mock.Mock
}

func (m *MockAnalyzer) Analyze(ctx context.Context, req *affect.AnalyzeRequest) (*types.InteractionEvent, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.InteractionEvent), args.Error(1)
}

// testEnv bundles a started engine and a mux with the API routes registered
// the same way the server wires them.
type testEnv struct {
	engine   *engine.PersonaEngine
	analyzer *MockAnalyzer
	mux      *http.ServeMux
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	eng, err := engine.NewPersonaEngine(engine.DefaultConfig(), nil)
	require.NoError(t, err)
	require.NoError(t, eng.Start(context.Background()))
	t.Cleanup(func() { _ = eng.Shutdown(context.Background()) })

	analyzer := &MockAnalyzer{}
	cfg := &config.Config{}
	h := NewAPIHandlers(eng, analyzer, cfg)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/entities", h.CreateEntity)
	mux.HandleFunc("GET /api/entities", h.ListEntities)
	mux.HandleFunc("GET /api/entities/{id}", h.GetEntity)
	mux.HandleFunc("POST /api/entities/{id}/active", h.SetEntityActive)
	mux.HandleFunc("POST /api/entities/{id}/heal", h.HealEntity)
	mux.HandleFunc("GET /api/entities/{id}/neighborhood", h.GetNeighborhood)
	mux.HandleFunc("POST /api/interactions", h.SubmitInteraction)
	mux.HandleFunc("POST /api/interactions/analyze", h.AnalyzeInteraction)
	mux.HandleFunc("GET /api/compatibility", h.QueryCompatibility)
	mux.HandleFunc("POST /api/fusions", h.RequestFusion)
	mux.HandleFunc("GET /api/path", h.GetAlliancePath)
	mux.HandleFunc("GET /api/communities", h.GetCommunities)
	mux.HandleFunc("POST /api/maintenance/decay", h.RunDecay)
	mux.HandleFunc("POST /api/maintenance/heal", h.RunHealSweep)
	mux.HandleFunc("GET /api/stats", h.GetStats)

	return &testEnv{engine: eng, analyzer: analyzer, mux: mux}
}

// do executes a request against the test mux and returns the recorder.
func (env *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	return rec
}

// createEntity registers an entity directly through the engine.
func (env *testEnv) createEntity(t *testing.T, name string, traits types.TraitVector) *types.Entity {
	t.Helper()
	e, err := env.engine.CreateEntity(context.Background(), name, traits)
	require.NoError(t, err)
	return e
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func TestCreateEntity(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/entities", CreateEntityRequest{Name: "Asha"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var entity types.Entity
	decodeJSON(t, rec, &entity)
	assert.Contains(t, entity.ID, "chr:")
	assert.Equal(t, "Asha", entity.Name)
	assert.True(t, entity.Active)
	assert.InDelta(t, 1.0, entity.SocialEnergy, 1e-9)
	assert.Equal(t, entity.Traits, entity.Anchor)

	// Missing name is a caller error.
	rec = env.do(t, http.MethodPost, "/api/entities", CreateEntityRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAndListEntities(t *testing.T) {
	env := newTestEnv(t)
	created := env.createEntity(t, "Asha", nil)

	rec := env.do(t, http.MethodGet, "/api/entities/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got types.Entity
	decodeJSON(t, rec, &got)
	assert.Equal(t, created.ID, got.ID)

	rec = env.do(t, http.MethodGet, "/api/entities/chr:ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/entities", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []types.Entity
	decodeJSON(t, rec, &list)
	assert.Len(t, list, 1)
}

func TestSetEntityActive(t *testing.T) {
	env := newTestEnv(t)
	created := env.createEntity(t, "Asha", nil)

	rec := env.do(t, http.MethodPost, "/api/entities/"+created.ID+"/active", SetActiveRequest{Active: false})
	require.Equal(t, http.StatusOK, rec.Code)
	var got types.Entity
	decodeJSON(t, rec, &got)
	assert.False(t, got.Active)
}

func TestSubmitInteraction(t *testing.T) {
	env := newTestEnv(t)
	a := env.createEntity(t, "Asha", nil)
	b := env.createEntity(t, "Bram", nil)

	rec := env.do(t, http.MethodPost, "/api/interactions", types.InteractionEvent{
		Participants: []string{a.ID, b.ID},
		Valence:      0.8,
		Intensity:    1.0,
		ContextTag:   "banter",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp InteractionResponse
	decodeJSON(t, rec, &resp)
	require.NotNil(t, resp.Edge)
	assert.Greater(t, resp.Edge.Strength, 0.0)
	assert.Len(t, resp.Edge.History, 1)
	require.Len(t, resp.Participants, 2)
	assert.Less(t, resp.Participants[0].SocialEnergy, 1.0)

	// Out-of-range valence is rejected before any mutation.
	rec = env.do(t, http.MethodPost, "/api/interactions", types.InteractionEvent{
		Participants: []string{a.ID, b.ID},
		Valence:      1.5,
		Intensity:    0.5,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown participant maps to 404.
	rec = env.do(t, http.MethodPost, "/api/interactions", types.InteractionEvent{
		Participants: []string{a.ID, "chr:ghost"},
		Valence:      0.5,
		Intensity:    0.5,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnalyzeInteraction(t *testing.T) {
	env := newTestEnv(t)
	a := env.createEntity(t, "Asha", nil)
	b := env.createEntity(t, "Bram", nil)

	env.analyzer.On("Analyze", mock.Anything, mock.MatchedBy(func(req *affect.AnalyzeRequest) bool {
		return req.Text == "nice one!" && len(req.Participants) == 2
	})).Return(&types.InteractionEvent{
		Participants: []string{a.ID, b.ID},
		Valence:      0.6,
		Intensity:    0.5,
		ContextTag:   "banter",
	}, nil).Once()

	rec := env.do(t, http.MethodPost, "/api/interactions/analyze", AnalyzeInteractionRequest{
		Participants: []string{a.ID, b.ID},
		Text:         "nice one!",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp InteractionResponse
	decodeJSON(t, rec, &resp)
	require.NotNil(t, resp.Event)
	assert.Equal(t, "banter", resp.Event.ContextTag)
	require.NotNil(t, resp.Edge)
	assert.Greater(t, resp.Edge.Strength, 0.0)
	env.analyzer.AssertExpectations(t)
}

func TestAnalyzeInteractionBreakerOpen(t *testing.T) {
	env := newTestEnv(t)

	env.analyzer.On("Analyze", mock.Anything, mock.Anything).
		Return(nil, affect.ErrCircuitOpen).Once()

	rec := env.do(t, http.MethodPost, "/api/interactions/analyze", AnalyzeInteractionRequest{
		Participants: []string{"chr:a", "chr:b"},
		Text:         "hello",
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestQueryCompatibility(t *testing.T) {
	env := newTestEnv(t)
	a := env.createEntity(t, "Asha", nil)
	b := env.createEntity(t, "Bram", nil)

	rec := env.do(t, http.MethodGet, "/api/compatibility?a="+a.ID+"&b="+b.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result engine.CompatibilityResult
	decodeJSON(t, rec, &result)
	// Identical neutral trait vectors with no edge: pure trait closeness.
	assert.InDelta(t, 1.0, result.Score, 1e-9)
	assert.False(t, result.HasEdge)

	rec = env.do(t, http.MethodGet, "/api/compatibility?a="+a.ID, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/compatibility?a="+a.ID+"&b=chr:ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestFusion(t *testing.T) {
	env := newTestEnv(t)
	a := env.createEntity(t, "Asha", nil)
	b := env.createEntity(t, "Bram", nil)

	rec := env.do(t, http.MethodPost, "/api/fusions", types.FusionRequest{
		SourceIDs: []string{a.ID, b.ID},
		Strategy:  types.FusionSimpleAverage,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var result types.FusionResult
	decodeJSON(t, rec, &result)
	require.NotNil(t, result.Entity)
	assert.Equal(t, []string{a.ID, b.ID}, result.Entity.OriginLineage)
	assert.Equal(t, "Asha + Bram", result.Entity.Name)

	// Unknown strategy is a caller error.
	rec = env.do(t, http.MethodPost, "/api/fusions", types.FusionRequest{
		SourceIDs: []string{a.ID, b.ID},
		Strategy:  "telepathic-merge",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealEntity(t *testing.T) {
	env := newTestEnv(t)
	created := env.createEntity(t, "Asha", nil)

	rec := env.do(t, http.MethodPost, "/api/entities/"+created.ID+"/heal", HealRequest{Mode: "reset"})
	require.Equal(t, http.StatusOK, rec.Code)
	var got types.Entity
	decodeJSON(t, rec, &got)
	assert.Equal(t, got.Anchor, got.Traits)
	assert.InDelta(t, 1.0, got.SocialEnergy, 1e-9)

	rec = env.do(t, http.MethodPost, "/api/entities/"+created.ID+"/heal", HealRequest{Mode: "bogus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetNeighborhood(t *testing.T) {
	env := newTestEnv(t)
	a := env.createEntity(t, "Asha", nil)
	b := env.createEntity(t, "Bram", nil)

	_, err := env.engine.SubmitInteraction(context.Background(), &types.InteractionEvent{
		Participants: []string{a.ID, b.ID},
		Valence:      0.8,
		Intensity:    1.0,
	})
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/api/entities/"+a.ID+"/neighborhood?depth=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var sub struct {
		Center   string          `json:"center"`
		Entities []*types.Entity `json:"entities"`
	}
	decodeJSON(t, rec, &sub)
	assert.Equal(t, a.ID, sub.Center)
	assert.Len(t, sub.Entities, 2)

	rec = env.do(t, http.MethodGet, "/api/entities/chr:ghost/neighborhood", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMaintenanceSweeps(t *testing.T) {
	env := newTestEnv(t)
	a := env.createEntity(t, "Asha", nil)
	b := env.createEntity(t, "Bram", nil)

	_, err := env.engine.SubmitInteraction(context.Background(), &types.InteractionEvent{
		Participants: []string{a.ID, b.ID},
		Valence:      0.8,
		Intensity:    1.0,
	})
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/api/maintenance/decay", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var decay DecayResponse
	decodeJSON(t, rec, &decay)
	assert.Equal(t, 1, decay.Swept)

	rec = env.do(t, http.MethodPost, "/api/maintenance/heal", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var heal HealSweepResponse
	decodeJSON(t, rec, &heal)
	assert.Equal(t, 2, heal.Healed)
}

func TestGetStats(t *testing.T) {
	env := newTestEnv(t)
	env.createEntity(t, "Asha", nil)

	rec := env.do(t, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats StatsResponse
	decodeJSON(t, rec, &stats)
	assert.Equal(t, 1, stats.Entities)
	assert.Equal(t, 0, stats.Edges)
}
