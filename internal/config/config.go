// Package config provides configuration management for Troupe.
// It loads settings from environment variables with the TROUPE_ prefix
// and provides sensible defaults for all configuration options.
//
// Per-trait evolution sensitivity multipliers may additionally be loaded
// from a YAML profile file (see sensitivity.go).
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all configuration settings for the Troupe engine and its
// HTTP surface.
type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Engine   EngineConfig
	Affect   AffectConfig
	Security SecurityConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    // Server port (default: 6470)
	Host string // Server host (default: 127.0.0.1)
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	StorageEngine string // Storage engine type: sqlite, postgres (default: sqlite)
	DataPath      string // Path to data directory for SQLite (default: ./data)
	PostgresDSN   string // PostgreSQL connection string (used when StorageEngine is postgres)
}

// EngineConfig contains the evolution, relationship, and fusion tunables.
// All values have defaults chosen for the chat product; they can be adjusted
// per deployment without code changes.
type EngineConfig struct {
	// MaxDrift is the permitted per-dimension deviation around an entity's
	// anchor (default: 0.4). Evolution saturates at the window boundary.
	MaxDrift float64

	// StrengthLearningRate controls how fast edge strength moves toward the
	// interaction target sign(valence)*intensity (default: 0.15).
	StrengthLearningRate float64

	// TrustRate scales trust movement per interaction (default: 0.1).
	TrustRate float64

	// TrustFamiliarityFloor is the familiarity below which positive trust
	// updates are suppressed - "too early to trust" (default: 0.2).
	TrustFamiliarityFloor float64

	// FamiliarityRate scales the monotonic familiarity gain per interaction
	// (default: 0.05).
	FamiliarityRate float64

	// NeutralTrust is the trust floor that decay converges to and the value
	// new edges start at (default: 0.3).
	NeutralTrust float64

	// DecayHalfLifeHours is the half-life for edge strength and trust decay
	// without interaction (default: 336 = two weeks).
	DecayHalfLifeHours float64

	// NaturalHealRate is the per-tick fraction traits move back toward the
	// anchor under natural healing (default: 0.02).
	NaturalHealRate float64

	// TherapeuticHealRate is the fraction applied on an explicit
	// therapeutic intervention (default: 0.1).
	TherapeuticHealRate float64

	// SocialEnergyDrainRate scales how much an interaction's intensity
	// drains each participant's social energy (default: 0.1).
	SocialEnergyDrainRate float64

	// HistoryCapacity bounds each edge's interaction history ring
	// (default: 50).
	HistoryCapacity int

	// AllianceStrengthThreshold is the minimum edge strength for alliance
	// pathfinding and community detection (default: 0.5).
	AllianceStrengthThreshold float64

	// SensitivityProfilePath optionally points to a YAML file with
	// per-trait sensitivity multipliers. Empty means all traits use 1.0.
	SensitivityProfilePath string
}

// AffectConfig contains the external affect analyzer collaborator settings.
type AffectConfig struct {
	AnalyzerURL     string // Affect analyzer base URL (default: http://localhost:6471)
	TimeoutSeconds  int    // Per-call timeout in seconds (default: 10)
	BreakerFailures int    // Consecutive failures before the circuit opens (default: 3)
}

// SecurityConfig contains security and authentication settings.
type SecurityConfig struct {
	SecurityMode string // Security mode: development, production (default: development)
	APIToken     string // API authentication token
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. All environment variables use the TROUPE_ prefix.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnvInt("TROUPE_PORT", 6470),
			Host: getEnv("TROUPE_HOST", "127.0.0.1"),
		},
		Storage: StorageConfig{
			StorageEngine: getEnv("TROUPE_STORAGE_ENGINE", "sqlite"),
			DataPath:      getEnv("TROUPE_DATA_PATH", "./data"),
			PostgresDSN:   getEnv("TROUPE_POSTGRES_DSN", ""),
		},
		Engine: EngineConfig{
			MaxDrift:                  getEnvFloat("TROUPE_MAX_DRIFT", 0.4),
			StrengthLearningRate:      getEnvFloat("TROUPE_STRENGTH_LEARNING_RATE", 0.15),
			TrustRate:                 getEnvFloat("TROUPE_TRUST_RATE", 0.1),
			TrustFamiliarityFloor:     getEnvFloat("TROUPE_TRUST_FAMILIARITY_FLOOR", 0.2),
			FamiliarityRate:           getEnvFloat("TROUPE_FAMILIARITY_RATE", 0.05),
			NeutralTrust:              getEnvFloat("TROUPE_NEUTRAL_TRUST", 0.3),
			DecayHalfLifeHours:        getEnvFloat("TROUPE_DECAY_HALF_LIFE_HOURS", 336.0),
			NaturalHealRate:           getEnvFloat("TROUPE_NATURAL_HEAL_RATE", 0.02),
			TherapeuticHealRate:       getEnvFloat("TROUPE_THERAPEUTIC_HEAL_RATE", 0.1),
			SocialEnergyDrainRate:     getEnvFloat("TROUPE_SOCIAL_ENERGY_DRAIN_RATE", 0.1),
			HistoryCapacity:           getEnvInt("TROUPE_HISTORY_CAPACITY", 50),
			AllianceStrengthThreshold: getEnvFloat("TROUPE_ALLIANCE_THRESHOLD", 0.5),
			SensitivityProfilePath:    getEnv("TROUPE_SENSITIVITY_PROFILE", ""),
		},
		Affect: AffectConfig{
			AnalyzerURL:     getEnv("TROUPE_AFFECT_URL", "http://localhost:6471"),
			TimeoutSeconds:  getEnvInt("TROUPE_AFFECT_TIMEOUT_SECONDS", 10),
			BreakerFailures: getEnvInt("TROUPE_AFFECT_BREAKER_FAILURES", 3),
		},
		Security: SecurityConfig{
			SecurityMode: getEnv("TROUPE_SECURITY_MODE", "development"),
			APIToken:     getEnv("TROUPE_API_TOKEN", ""),
		},
	}

	if err := cfg.Engine.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the engine tunables for values that clamping cannot
// compensate for. These indicate deployment configuration bugs, not caller
// mistakes, so they fail process startup.
func (c *EngineConfig) Validate() error {
	if c.MaxDrift <= 0 || c.MaxDrift > 1 {
		return fmt.Errorf("config: MaxDrift must be in (0,1], got %v", c.MaxDrift)
	}
	if c.StrengthLearningRate <= 0 || c.StrengthLearningRate > 1 {
		return fmt.Errorf("config: StrengthLearningRate must be in (0,1], got %v", c.StrengthLearningRate)
	}
	if c.TrustRate < 0 || c.TrustRate > 1 {
		return fmt.Errorf("config: TrustRate must be in [0,1], got %v", c.TrustRate)
	}
	if c.TrustFamiliarityFloor < 0 || c.TrustFamiliarityFloor > 1 {
		return fmt.Errorf("config: TrustFamiliarityFloor must be in [0,1], got %v", c.TrustFamiliarityFloor)
	}
	if c.FamiliarityRate < 0 || c.FamiliarityRate > 1 {
		return fmt.Errorf("config: FamiliarityRate must be in [0,1], got %v", c.FamiliarityRate)
	}
	if c.NeutralTrust < 0 || c.NeutralTrust > 1 {
		return fmt.Errorf("config: NeutralTrust must be in [0,1], got %v", c.NeutralTrust)
	}
	if c.DecayHalfLifeHours <= 0 {
		return fmt.Errorf("config: DecayHalfLifeHours must be > 0, got %v", c.DecayHalfLifeHours)
	}
	if c.NaturalHealRate < 0 || c.NaturalHealRate > 1 {
		return fmt.Errorf("config: NaturalHealRate must be in [0,1], got %v", c.NaturalHealRate)
	}
	if c.TherapeuticHealRate < 0 || c.TherapeuticHealRate > 1 {
		return fmt.Errorf("config: TherapeuticHealRate must be in [0,1], got %v", c.TherapeuticHealRate)
	}
	if c.SocialEnergyDrainRate < 0 || c.SocialEnergyDrainRate > 1 {
		return fmt.Errorf("config: SocialEnergyDrainRate must be in [0,1], got %v", c.SocialEnergyDrainRate)
	}
	if c.HistoryCapacity < 1 {
		return fmt.Errorf("config: HistoryCapacity must be >= 1, got %d", c.HistoryCapacity)
	}
	if c.AllianceStrengthThreshold <= 0 || c.AllianceStrengthThreshold > 1 {
		return fmt.Errorf("config: AllianceStrengthThreshold must be in (0,1], got %v", c.AllianceStrengthThreshold)
	}
	return nil
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as a float,
// it returns the default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
