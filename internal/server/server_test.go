package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casthaven/troupe/internal/config"
	"github.com/casthaven/troupe/internal/engine"
	"github.com/casthaven/troupe/pkg/types"
)

// startTestServer boots a full server on an ephemeral port and returns its
// base URL.
func startTestServer(t *testing.T, cfg *config.Config) string {
	t.Helper()

	eng, err := engine.NewPersonaEngine(engine.DefaultConfig(), nil)
	require.NoError(t, err)
	require.NoError(t, eng.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		// Give the shutdown goroutine a moment before the engine goes away.
		time.Sleep(50 * time.Millisecond)
		_ = eng.Shutdown(context.Background())
	})

	addr, _, err := Start(ctx, cfg, eng, nil)
	require.NoError(t, err)
	return "http://" + addr
}

func devConfig() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{Host: "127.0.0.1", Port: 0},
		Security: config.SecurityConfig{SecurityMode: "development"},
	}
}

func TestHealthEndpoint(t *testing.T) {
	base := startTestServer(t, devConfig())

	resp, err := http.Get(base + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
}

func TestEntityLifecycleOverHTTP(t *testing.T) {
	base := startTestServer(t, devConfig())

	body, _ := json.Marshal(map[string]string{"name": "Asha"})
	resp, err := http.Post(base+"/api/entities", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var entity types.Entity
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entity))
	assert.Contains(t, entity.ID, "chr:")

	getResp, err := http.Get(fmt.Sprintf("%s/api/entities/%s", base, entity.ID))
	require.NoError(t, err)
	defer getResp.Body.Close()
	assert.Equal(t, http.StatusOK, getResp.StatusCode)
}

func TestProductionModeRequiresToken(t *testing.T) {
	cfg := devConfig()
	cfg.Security = config.SecurityConfig{
		SecurityMode: "production",
		APIToken:     "secret-token",
	}
	base := startTestServer(t, cfg)

	// Unauthenticated request is rejected.
	resp, err := http.Get(base + "/api/entities")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Bearer token opens the door.
	req, _ := http.NewRequest(http.MethodGet, base+"/api/entities", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	authResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	authResp.Body.Close()
	assert.Equal(t, http.StatusOK, authResp.StatusCode)

	// Health stays open for monitoring.
	healthResp, err := http.Get(base + "/api/health")
	require.NoError(t, err)
	healthResp.Body.Close()
	assert.Equal(t, http.StatusOK, healthResp.StatusCode)
}
