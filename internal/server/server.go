// Package server provides HTTP server initialization and lifecycle management
// for the Troupe API.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/casthaven/troupe/internal/affect"
	"github.com/casthaven/troupe/internal/config"
	"github.com/casthaven/troupe/internal/engine"
	"github.com/casthaven/troupe/web/handlers"
)

// securityHeadersMiddleware adds security headers to all HTTP responses.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// Start initializes and starts the HTTP server over a started engine.
// Returns the actual address being listened on (useful for testing with
// port 0) and the WebSocketHub so callers can broadcast additional events.
// The engine's update callbacks are wired to the hub so connected graph
// renderers receive live entity/edge/fusion events.
// The analyzer may be nil when no affect collaborator is configured.
func Start(ctx context.Context, cfg *config.Config, eng *engine.PersonaEngine, analyzer affect.Analyzer) (string, *handlers.WebSocketHub, error) {
	mux := http.NewServeMux()

	// Create WebSocket hub and push graph updates through it
	wsHub := handlers.NewWebSocketHub(cfg.Server.Port)
	go wsHub.Run()

	eng.SetOnEntityUpdated(func(entityID string) {
		wsHub.Broadcast(handlers.EntityUpdatedEvent(entityID))
	})
	eng.SetOnEdgeUpdated(func(a, b string) {
		wsHub.Broadcast(handlers.EdgeUpdatedEvent(a, b))
	})
	eng.SetOnEntityFused(func(entityID string) {
		wsHub.Broadcast(handlers.EntityFusedEvent(entityID))
	})

	// Create rate limiter (10 req/sec, burst of 20)
	rateLimiter := handlers.NewRateLimiter(10.0, 20)

	apiHandlers := handlers.NewAPIHandlers(eng, analyzer, cfg)

	// API routes (require auth in production mode)
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("/api/entities", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			apiHandlers.ListEntities(w, r)
		case http.MethodPost:
			apiHandlers.CreateEntity(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("GET /api/entities/{id}", apiHandlers.GetEntity)
	apiMux.HandleFunc("POST /api/entities/{id}/active", apiHandlers.SetEntityActive)
	apiMux.HandleFunc("POST /api/entities/{id}/heal", apiHandlers.HealEntity)
	apiMux.HandleFunc("GET /api/entities/{id}/neighborhood", apiHandlers.GetNeighborhood)
	apiMux.HandleFunc("POST /api/interactions", apiHandlers.SubmitInteraction)
	apiMux.HandleFunc("POST /api/interactions/analyze", apiHandlers.AnalyzeInteraction)
	apiMux.HandleFunc("GET /api/compatibility", apiHandlers.QueryCompatibility)
	apiMux.HandleFunc("POST /api/fusions", apiHandlers.RequestFusion)
	apiMux.HandleFunc("GET /api/path", apiHandlers.GetAlliancePath)
	apiMux.HandleFunc("GET /api/communities", apiHandlers.GetCommunities)
	apiMux.HandleFunc("POST /api/maintenance/decay", apiHandlers.RunDecay)
	apiMux.HandleFunc("POST /api/maintenance/heal", apiHandlers.RunHealSweep)
	apiMux.HandleFunc("GET /api/stats", apiHandlers.GetStats)

	// Health endpoint - no auth required, used by monitoring
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","version":"1.0.0"}`))
	})

	// Wrap API routes with auth middleware
	mux.Handle("/api/", handlers.RequireAuth(apiMux, cfg))

	// WebSocket endpoint (no auth required - origin validation handles security)
	mux.Handle("/ws", wsHub)

	// Wrap entire server with rate limiting, then security headers
	handler := handlers.RateLimitMiddleware(mux, rateLimiter)
	handler = securityHeadersMiddleware(handler)

	// Create server with security timeouts
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	actualAddr := listener.Addr().String()

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("Server error: %v", err)
		}
	}()

	// Handle graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		wsHub.Stop()
	}()

	return actualAddr, wsHub, nil
}
