package risk

import (
	"fmt"
	"math"

	"autoindex/internal/domain"
)

// Drawdown describes the worst and the latest decline from a running peak.
// Both values are fractions <= 0.
type Drawdown struct {
	Max         float64 `json:"max_drawdown"`
	Current     float64 `json:"current_drawdown"`
	PeakIndex   int     `json:"peak_index"`
	TroughIndex int     `json:"trough_index"`
}

// MaxDrawdown scans values once, tracking the running peak, and returns the
// most negative (value-peak)/peak together with the same quantity at the
// final point. It runs in O(n) time with O(1) extra space.
func MaxDrawdown(values []float64) (Drawdown, error) {
	if len(values) == 0 {
		return Drawdown{}, fmt.Errorf("drawdown of empty series: %w", domain.ErrInsufficientData)
	}

	var (
		dd      Drawdown
		peak    = math.Inf(-1)
		peakIdx int
		current float64
	)
	for i, v := range values {
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return Drawdown{}, fmt.Errorf("value %v at index %d: %w", v, i, domain.ErrInvalidInput)
		}
		if v > peak {
			peak, peakIdx = v, i
		}
		current = (v - peak) / peak
		if current < dd.Max {
			dd.Max = current
			dd.PeakIndex = peakIdx
			dd.TroughIndex = i
		}
	}
	dd.Current = current
	return dd, nil
}
