package strategy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"autoindex/internal/domain"
)

// fileFormat is the on-disk layout of a strategy definitions file.
type fileFormat struct {
	Strategies []domain.StrategyConfig `yaml:"strategies"`
}

// LoadFile reads strategy definitions from a YAML file. Missing rebalance
// frequency and max weight take their defaults; every entry is validated.
func LoadFile(path string) ([]domain.StrategyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes and validates YAML strategy definitions.
func Parse(data []byte) ([]domain.StrategyConfig, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse strategies: %w", err)
	}
	out := make([]domain.StrategyConfig, 0, len(f.Strategies))
	seen := make(map[string]bool, len(f.Strategies))
	for _, cfg := range f.Strategies {
		cfg = WithDefaults(cfg)
		if err := Validate(cfg); err != nil {
			return nil, err
		}
		if seen[cfg.Name] {
			return nil, fmt.Errorf("duplicate strategy %s: %w", cfg.Name, domain.ErrInvalidInput)
		}
		seen[cfg.Name] = true
		out = append(out, cfg)
	}
	return out, nil
}

// RegisterAll adds every configuration to r, stopping at the first invalid
// one.
func (r *Registry) RegisterAll(cfgs []domain.StrategyConfig) error {
	for _, cfg := range cfgs {
		if err := r.Register(WithDefaults(cfg)); err != nil {
			return err
		}
	}
	return nil
}
