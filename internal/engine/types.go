// Package engine provides the Troupe persona engine: trait evolution under
// interaction pressure, healing toward the anchor, pairwise compatibility
// scoring, and fusion of existing entities into new ones. The PersonaEngine
// facade orchestrates these over the relationship graph with optional
// write-through persistence.
package engine

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/casthaven/troupe/internal/config"
	"github.com/casthaven/troupe/internal/graph"
)

// Config holds the engine tunables. Use DefaultConfig for the documented
// defaults or FromAppConfig to map the loaded application configuration.
type Config struct {
	// MaxDrift is the permitted per-dimension deviation around an entity's
	// anchor. Evolution saturates at the window boundary (default: 0.4).
	MaxDrift float64

	// NaturalHealRate is the per-tick fraction traits move back toward the
	// anchor under natural healing (default: 0.02).
	NaturalHealRate float64

	// TherapeuticHealRate is the fraction applied on an explicit therapeutic
	// intervention (default: 0.1).
	TherapeuticHealRate float64

	// SocialEnergyDrainRate scales how much an interaction's intensity drains
	// each participant's social energy (default: 0.1).
	SocialEnergyDrainRate float64

	// AllianceStrengthThreshold is the minimum edge strength for alliance
	// pathfinding and community detection (default: 0.5).
	AllianceStrengthThreshold float64

	// HistoryCapacity bounds each edge's interaction history ring
	// (default: 50).
	HistoryCapacity int

	// Graph holds the relationship update tunables passed through to the
	// graph package.
	Graph graph.Params

	// Sensitivity maps trait keys to evolution multipliers. Missing keys use
	// 1.0. Loaded from the optional YAML profile.
	Sensitivity map[string]float64

	// TraitKeys is the active trait schema, fixed at process start.
	TraitKeys []string
}

// DefaultConfig returns a Config with the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxDrift:                  0.4,
		NaturalHealRate:           0.02,
		TherapeuticHealRate:       0.1,
		SocialEnergyDrainRate:     0.1,
		AllianceStrengthThreshold: 0.5,
		HistoryCapacity:           50,
		Graph:                     graph.DefaultParams(),
		Sensitivity:               nil,
		TraitKeys:                 nil, // filled by Validate
	}
}

// FromAppConfig maps the loaded application configuration and sensitivity
// profile into an engine Config.
func FromAppConfig(ec config.EngineConfig, sensitivity config.SensitivityProfile) Config {
	return Config{
		MaxDrift:                  ec.MaxDrift,
		NaturalHealRate:           ec.NaturalHealRate,
		TherapeuticHealRate:       ec.TherapeuticHealRate,
		SocialEnergyDrainRate:     ec.SocialEnergyDrainRate,
		AllianceStrengthThreshold: ec.AllianceStrengthThreshold,
		HistoryCapacity:           ec.HistoryCapacity,
		Graph: graph.Params{
			StrengthLearningRate:  ec.StrengthLearningRate,
			TrustRate:             ec.TrustRate,
			TrustFamiliarityFloor: ec.TrustFamiliarityFloor,
			FamiliarityRate:       ec.FamiliarityRate,
			NeutralTrust:          ec.NeutralTrust,
			DecayHalfLifeHours:    ec.DecayHalfLifeHours,
		},
		Sensitivity: sensitivity,
		TraitKeys:   config.TraitKeys(),
	}
}

// Validate checks the config and fills zero-value fields with defaults.
func (c *Config) Validate() error {
	if c.MaxDrift <= 0 || c.MaxDrift > 1 {
		return fmt.Errorf("MaxDrift must be in (0,1], got %v", c.MaxDrift)
	}
	if c.NaturalHealRate < 0 || c.NaturalHealRate > 1 {
		return fmt.Errorf("NaturalHealRate must be in [0,1], got %v", c.NaturalHealRate)
	}
	if c.TherapeuticHealRate < 0 || c.TherapeuticHealRate > 1 {
		return fmt.Errorf("TherapeuticHealRate must be in [0,1], got %v", c.TherapeuticHealRate)
	}
	if c.SocialEnergyDrainRate < 0 || c.SocialEnergyDrainRate > 1 {
		return fmt.Errorf("SocialEnergyDrainRate must be in [0,1], got %v", c.SocialEnergyDrainRate)
	}
	if c.AllianceStrengthThreshold <= 0 || c.AllianceStrengthThreshold > 1 {
		return fmt.Errorf("AllianceStrengthThreshold must be in (0,1], got %v", c.AllianceStrengthThreshold)
	}
	if c.HistoryCapacity < 1 {
		return fmt.Errorf("HistoryCapacity must be >= 1, got %d", c.HistoryCapacity)
	}
	if c.Graph.StrengthLearningRate <= 0 || c.Graph.DecayHalfLifeHours <= 0 {
		return fmt.Errorf("graph params are incomplete: %+v", c.Graph)
	}
	if len(c.TraitKeys) == 0 {
		c.TraitKeys = config.TraitKeys()
	}
	for k, mult := range c.Sensitivity {
		if mult <= 0 {
			return fmt.Errorf("sensitivity multiplier for %q must be > 0, got %v", k, mult)
		}
	}
	return nil
}

// sensitivityFor returns the evolution multiplier for a trait key (1.0 when
// no profile entry exists).
func (c *Config) sensitivityFor(key string) float64 {
	if mult, ok := c.Sensitivity[key]; ok {
		return mult
	}
	return 1.0
}

// GenerateEntityID generates a unique entity ID in the format chr:slug.
// The slug is a random UUID to ensure uniqueness across restarts.
func GenerateEntityID() string {
	return fmt.Sprintf("chr:%s", uuid.NewString())
}

// fusedName derives a display name for a fusion product when the request
// does not provide one.
func fusedName(names []string) string {
	return strings.Join(names, " + ")
}
