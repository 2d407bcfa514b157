package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/casthaven/troupe/pkg/types"
)

// SensitivityProfile maps trait keys to evolution sensitivity multipliers.
// A multiplier above 1.0 makes a trait more volatile under interaction
// pressure; below 1.0 makes it more stable. Traits absent from the profile
// default to 1.0.
type SensitivityProfile map[string]float64

// sensitivityFile is the YAML document shape for a sensitivity profile:
//
//	sensitivity:
//	  neuroticism: 1.5
//	  loyalty: 0.5
type sensitivityFile struct {
	Sensitivity map[string]float64 `yaml:"sensitivity"`
}

// DefaultSensitivityProfile returns a profile with every trait of the given
// schema at the neutral multiplier 1.0.
func DefaultSensitivityProfile(keys []string) SensitivityProfile {
	p := make(SensitivityProfile, len(keys))
	for _, k := range keys {
		p[k] = 1.0
	}
	return p
}

// LoadSensitivityProfile reads a YAML sensitivity profile and merges it over
// the neutral defaults for the given trait schema. Keys in the file that are
// not part of the schema are rejected, as are non-positive multipliers -
// both indicate a deployment configuration bug.
func LoadSensitivityProfile(path string, keys []string) (SensitivityProfile, error) {
	profile := DefaultSensitivityProfile(keys)
	if path == "" {
		return profile, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read sensitivity profile %s: %w", path, err)
	}

	var file sensitivityFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("config: failed to parse sensitivity profile %s: %w", path, err)
	}

	for k, mult := range file.Sensitivity {
		if _, ok := profile[k]; !ok {
			return nil, fmt.Errorf("config: sensitivity profile references unknown trait %q", k)
		}
		if mult <= 0 {
			return nil, fmt.Errorf("config: sensitivity for %q must be > 0, got %v", k, mult)
		}
		profile[k] = mult
	}

	return profile, nil
}

// TraitKeys returns the active trait schema. The schema is fixed at process
// start; all entities in the population share it.
func TraitKeys() []string {
	return types.DefaultTraitKeys
}
