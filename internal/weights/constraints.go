package weights

import (
	"fmt"
	"math"

	"autoindex/internal/domain"
)

// feasibilityEps absorbs rounding in bound checks such as 5*0.2 vs 1.
const feasibilityEps = 1e-9

// ApplyConstraints clamps every weight into [minWeight, maxWeight] and
// renormalizes so the clamped vector again sums to 1. Unclamped weights keep
// their relative proportions: the result is clip(λ·w_i) for the scale λ
// that makes the clipped vector sum to 1.
//
// When the bounds cannot hold for all assets at once (n·min > 1 or
// n·max < 1) ErrConstraintViolation is returned rather than an invalid
// vector.
func ApplyConstraints(w domain.WeightVector, minWeight, maxWeight float64) (domain.WeightVector, error) {
	n := float64(len(w))
	if len(w) == 0 {
		return nil, fmt.Errorf("constraining an empty vector: %w", domain.ErrInsufficientData)
	}
	if minWeight < 0 || maxWeight > 1 || minWeight > maxWeight || math.IsNaN(minWeight) || math.IsNaN(maxWeight) {
		return nil, fmt.Errorf("bounds [%v, %v]: %w", minWeight, maxWeight, domain.ErrInvalidInput)
	}
	if n*minWeight > 1+feasibilityEps {
		return nil, fmt.Errorf("%d assets at min weight %v exceed 100%%: %w",
			len(w), minWeight, domain.ErrConstraintViolation)
	}
	if n*maxWeight < 1-feasibilityEps {
		return nil, fmt.Errorf("%d assets at max weight %v cannot reach 100%%: %w",
			len(w), maxWeight, domain.ErrConstraintViolation)
	}
	for a, v := range w {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("weight %v for %s: %w", v, a, domain.ErrInvalidInput)
		}
	}

	out := make(domain.WeightVector, len(w))
	if sum := w.Sum(); sum > 0 {
		inside := true
		for a, v := range w {
			out[a] = v / sum
			inside = inside && out[a] >= minWeight && out[a] <= maxWeight
		}
		if inside {
			return out, nil
		}
	}

	clip := func(v float64) float64 { return math.Min(maxWeight, math.Max(minWeight, v)) }
	assets := w.Assets()
	total := func(lambda float64) float64 {
		var s float64
		for _, a := range assets {
			s += clip(lambda * w[a])
		}
		return s
	}

	// Supremum of total(λ): positive weights saturate at max, zero weights
	// stay at min.
	var zeros int
	var sup float64
	for _, a := range assets {
		if w[a] > 0 {
			sup += maxWeight
		} else {
			zeros++
			sup += minWeight
		}
	}

	if sup < 1 {
		// Scaling alone cannot reach 100%; saturate the positive weights
		// and spread the remainder over zero-weight assets. Feasible since
		// n·max >= 1.
		extra := (1 - sup) / float64(zeros)
		for a, v := range w {
			if v > 0 {
				out[a] = maxWeight
			} else {
				out[a] = minWeight + extra
			}
		}
		return out, nil
	}

	lo, hi := 0.0, 1.0
	for total(hi) < 1-1e-12 && hi < 1e300 {
		hi *= 2
	}
	for i := 0; i < 200; i++ {
		mid := (lo + hi) / 2
		s := total(mid)
		if math.Abs(s-1) < 1e-13 {
			lo, hi = mid, mid
			break
		}
		if s < 1 {
			lo = mid
		} else {
			hi = mid
		}
	}
	lambda := (lo + hi) / 2
	for a, v := range w {
		out[a] = clip(lambda * v)
	}
	return out, nil
}
