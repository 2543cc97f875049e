package weights

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"autoindex/internal/domain"
)

// Method names a weighting scheme.
type Method string

const (
	MethodEqual           Method = "equal"
	MethodMarketCap       Method = "market_cap"
	MethodMomentum        Method = "momentum"
	MethodRiskParity      Method = "risk_parity"
	MethodMinimumVariance Method = "minimum_variance"
)

// Methods lists every supported method in a stable order.
var Methods = []Method{MethodEqual, MethodMarketCap, MethodMomentum, MethodRiskParity, MethodMinimumVariance}

// ParseMethod converts a method name into a Method.
func ParseMethod(s string) (Method, error) {
	for _, m := range Methods {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("weighting method %q: %w", s, domain.ErrInvalidInput)
}

// Signals carries the raw inputs each weighting method consumes. Only the
// fields a method needs must be populated.
type Signals struct {
	Assets       []string           `json:"assets,omitempty"`
	Momentum     map[string]float64 `json:"momentum,omitempty"`
	MarketCaps   map[string]float64 `json:"market_caps,omitempty"`
	Volatilities map[string]float64 `json:"volatilities,omitempty"`

	// CovarianceAssets labels the rows of Covariance.
	CovarianceAssets []string      `json:"-"`
	Covariance       mat.Symmetric `json:"-"`
}

// Options tunes individual methods.
type Options struct {
	Transform Transform
	// MaxWeight caps minimum-variance weights; 0 means 1.
	MaxWeight float64
}

// Compute dispatches to the weighting method m.
func Compute(m Method, s Signals, opts Options) (domain.WeightVector, error) {
	switch m {
	case MethodEqual:
		assets := s.Assets
		if len(assets) == 0 {
			assets = s.CovarianceAssets
		}
		return Equal(assets)
	case MethodMarketCap:
		return MarketCap(s.MarketCaps)
	case MethodMomentum:
		return Momentum(s.Momentum, opts.Transform)
	case MethodRiskParity:
		return RiskParity(s.Volatilities)
	case MethodMinimumVariance:
		maxWeight := opts.MaxWeight
		if maxWeight == 0 {
			maxWeight = 1
		}
		return MinimumVariance(s.CovarianceAssets, s.Covariance, maxWeight)
	default:
		return nil, fmt.Errorf("weighting method %q: %w", m, domain.ErrInvalidInput)
	}
}

// SignalWeights holds per-signal weight vectors ahead of blending. A nil
// vector means the signal is unavailable.
type SignalWeights struct {
	Momentum   domain.WeightVector
	MarketCap  domain.WeightVector
	RiskParity domain.WeightVector
}

// Combine blends the signal vectors, final_i = Σ_s blend_s·w_s,i, and
// renormalizes. Unavailable signals are skipped, so their share of the blend
// is redistributed by the renormalization. Assets missing from a vector
// contribute zero for that signal.
func Combine(sig SignalWeights, blend domain.SignalBlend) (domain.WeightVector, error) {
	parts := []struct {
		w     domain.WeightVector
		share float64
	}{
		{sig.Momentum, blend.Momentum},
		{sig.MarketCap, blend.MarketCap},
		{sig.RiskParity, blend.RiskParity},
	}

	raw := make(map[string]float64)
	var used int
	for _, p := range parts {
		if p.share < 0 || math.IsNaN(p.share) {
			return nil, fmt.Errorf("blend share %v: %w", p.share, domain.ErrInvalidInput)
		}
		if p.w == nil {
			continue
		}
		used++
		for a, v := range p.w {
			raw[a] += p.share * v
		}
	}
	if used == 0 {
		return nil, fmt.Errorf("no signal available to blend: %w", domain.ErrInsufficientData)
	}
	return Normalize(raw)
}

// FromSignals computes the momentum, market cap and risk parity vectors for
// every signal with a positive blend share and combines them. A signal whose
// inputs are missing, or whose computation cannot produce weights (no asset
// with positive momentum, say), is skipped and reported in the returned
// slice.
func FromSignals(s Signals, blend domain.SignalBlend, opts Options) (domain.WeightVector, []Method, error) {
	var (
		sig     SignalWeights
		skipped []Method
	)
	try := func(m Method, share float64, dst *domain.WeightVector) error {
		if share <= 0 {
			return nil
		}
		w, err := Compute(m, s, opts)
		switch {
		case err == nil:
			*dst = w
		case errors.Is(err, domain.ErrInsufficientData), errors.Is(err, domain.ErrCalculation):
			skipped = append(skipped, m)
		default:
			return err
		}
		return nil
	}
	if err := try(MethodMomentum, blend.Momentum, &sig.Momentum); err != nil {
		return nil, nil, err
	}
	if err := try(MethodMarketCap, blend.MarketCap, &sig.MarketCap); err != nil {
		return nil, nil, err
	}
	if err := try(MethodRiskParity, blend.RiskParity, &sig.RiskParity); err != nil {
		return nil, nil, err
	}

	w, err := Combine(sig, blend)
	if err != nil {
		return nil, skipped, err
	}
	// Every requested asset appears in the result, at zero if no signal
	// covered it.
	for _, a := range s.Assets {
		if _, ok := w[a]; !ok {
			w[a] = 0
		}
	}
	sort.Slice(skipped, func(i, j int) bool { return skipped[i] < skipped[j] })
	return w, skipped, nil
}
