// Package strategy validates strategy configurations and provides a Registry
// of named configurations, seeded with built-in presets.
package strategy

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"autoindex/internal/domain"
)

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// ValidateWeights checks that every signal share lies in [0,1] and that the
// shares sum to 1 within domain.WeightTolerance.
func ValidateWeights(b domain.SignalBlend) error {
	for _, s := range []struct {
		name  string
		value float64
	}{
		{"momentum_weight", b.Momentum},
		{"market_cap_weight", b.MarketCap},
		{"risk_parity_weight", b.RiskParity},
	} {
		if math.IsNaN(s.value) || s.value < 0 || s.value > 1 {
			return fmt.Errorf("%s = %v outside [0, 1]: %w", s.name, s.value, domain.ErrInvalidInput)
		}
	}
	if sum := b.Sum(); math.Abs(sum-1) >= domain.WeightTolerance {
		return fmt.Errorf("signal weights sum to %v, want 1: %w", sum, domain.ErrInvalidInput)
	}
	return nil
}

// Validate checks a complete strategy configuration. Zero guard-rail
// thresholds disable the corresponding check; either side of the daily
// return band may be left at zero to leave that side open.
func Validate(cfg domain.StrategyConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("strategy name is empty: %w", domain.ErrInvalidInput)
	}
	if err := ValidateWeights(cfg.Blend); err != nil {
		return fmt.Errorf("strategy %s: %w", cfg.Name, err)
	}
	if !cfg.Rebalance.Valid() {
		return fmt.Errorf("strategy %s: rebalance frequency %q: %w", cfg.Name, cfg.Rebalance, domain.ErrInvalidInput)
	}
	if cfg.LookbackPeriod <= 0 {
		return fmt.Errorf("strategy %s: lookback period %d must be positive: %w",
			cfg.Name, cfg.LookbackPeriod, domain.ErrInvalidInput)
	}
	if cfg.MinPriceThreshold < 0 {
		return fmt.Errorf("strategy %s: min price threshold %v: %w", cfg.Name, cfg.MinPriceThreshold, domain.ErrInvalidInput)
	}
	if cfg.DailyDropThreshold < 0 || cfg.DailyDropThreshold > 1 {
		return fmt.Errorf("strategy %s: daily drop threshold %v outside [0, 1]: %w",
			cfg.Name, cfg.DailyDropThreshold, domain.ErrInvalidInput)
	}
	if cfg.MinDailyReturn < -1 || cfg.MaxDailyReturn < 0 ||
		(cfg.MinDailyReturn != 0 && cfg.MaxDailyReturn != 0 && cfg.MinDailyReturn > cfg.MaxDailyReturn) {
		return fmt.Errorf("strategy %s: daily return band [%v, %v]: %w",
			cfg.Name, cfg.MinDailyReturn, cfg.MaxDailyReturn, domain.ErrInvalidInput)
	}
	if cfg.MinWeight < 0 || cfg.MaxWeight <= 0 || cfg.MaxWeight > 1 || cfg.MinWeight > cfg.MaxWeight {
		return fmt.Errorf("strategy %s: weight bounds [%v, %v]: %w",
			cfg.Name, cfg.MinWeight, cfg.MaxWeight, domain.ErrInvalidInput)
	}
	return nil
}

// WithDefaults fills fields a configuration may leave out: the rebalance
// frequency becomes monthly and a zero max weight becomes 1.
func WithDefaults(cfg domain.StrategyConfig) domain.StrategyConfig {
	if cfg.Rebalance == "" {
		cfg.Rebalance = domain.RebalanceMonthly
	}
	if cfg.MaxWeight == 0 {
		cfg.MaxWeight = 1
	}
	return cfg
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

// Registry holds a named collection of strategy configurations. It is safe
// for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]domain.StrategyConfig
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]domain.StrategyConfig),
	}
}

// NewDefaultRegistry creates a Registry seeded with Presets.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, p := range Presets() {
		// Presets are valid by construction.
		_ = r.Register(p)
	}
	return r
}

// Register validates cfg and stores it under cfg.Name, replacing any
// existing entry.
func (r *Registry) Register(cfg domain.StrategyConfig) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[cfg.Name] = cfg
	return nil
}

// Get retrieves a strategy by name. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(name string) (domain.StrategyConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	return s, ok
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every registered configuration ordered by name.
func (r *Registry) All() []domain.StrategyConfig {
	names := r.List()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.StrategyConfig, 0, len(names))
	for _, n := range names {
		out = append(out, r.strategies[n])
	}
	return out
}

// ---------------------------------------------------------------------------
// Presets
// ---------------------------------------------------------------------------

// base carries the guard rails shared by every preset.
var base = domain.StrategyConfig{
	Rebalance:          domain.RebalanceMonthly,
	LookbackPeriod:     60,
	MinPriceThreshold:  1.0,
	DailyDropThreshold: 0.5,
	MinDailyReturn:     -0.5,
	MaxDailyReturn:     1.0,
	MinWeight:          0,
	MaxWeight:          1,
}

// Presets returns the built-in strategies.
func Presets() []domain.StrategyConfig {
	mk := func(name string, m, c, r float64) domain.StrategyConfig {
		cfg := base
		cfg.Name = name
		cfg.Blend = domain.SignalBlend{Momentum: m, MarketCap: c, RiskParity: r}
		return cfg
	}
	balanced := mk("balanced", 0.4, 0.3, 0.3)
	balanced.MaxWeight = 0.5
	return []domain.StrategyConfig{
		balanced,
		mk("momentum", 1, 0, 0),
		mk("market-cap", 0, 1, 0),
		mk("risk-parity", 0, 0, 1),
	}
}
