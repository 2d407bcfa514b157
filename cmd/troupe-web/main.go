package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/casthaven/troupe/internal/affect"
	"github.com/casthaven/troupe/internal/config"
	"github.com/casthaven/troupe/internal/engine"
	"github.com/casthaven/troupe/internal/server"
	"github.com/casthaven/troupe/internal/storage"
	"github.com/casthaven/troupe/internal/storage/postgres"
	"github.com/casthaven/troupe/internal/storage/sqlite"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize storage
	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	// Load the per-trait sensitivity profile (neutral when unconfigured)
	sensitivity, err := config.LoadSensitivityProfile(cfg.Engine.SensitivityProfilePath, config.TraitKeys())
	if err != nil {
		log.Fatalf("Failed to load sensitivity profile: %v", err)
	}

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize the persona engine and warm-start it from storage
	personaEngine, err := engine.NewPersonaEngine(engine.FromAppConfig(cfg.Engine, sensitivity), store)
	if err != nil {
		log.Fatalf("Failed to initialize persona engine: %v", err)
	}
	if err := personaEngine.Start(ctx); err != nil {
		log.Fatalf("Failed to start persona engine: %v", err)
	}

	// Affect analyzer client for the interaction ingest route
	analyzer := affect.NewClient(cfg.Affect)

	// Start server
	addr, _, err := server.Start(ctx, cfg, personaEngine, analyzer)
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	log.Printf("Troupe API running at http://%s", addr)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")

	// Shutdown the engine first (closes the store)
	if err := personaEngine.Shutdown(ctx); err != nil {
		log.Printf("Error shutting down persona engine: %v", err)
	}

	cancel()
	time.Sleep(1 * time.Second) // Give time for connections to close
}

// openStore builds the configured storage backend: sqlite by default,
// postgres when TROUPE_STORAGE_ENGINE=postgres.
func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.StorageEngine {
	case "postgres":
		return postgres.NewStore(cfg.Storage.PostgresDSN)
	default:
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
			return nil, err
		}
		return sqlite.NewStore(cfg.Storage.DataPath + "/troupe.db")
	}
}
