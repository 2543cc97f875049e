package weights

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"autoindex/internal/domain"
)

const (
	minVarMaxIter = 20000
	minVarTol     = 1e-12
)

// MinimumVariance solves min wᵀΣw subject to Σw = 1 and 0 <= w_i <= maxWeight
// by projected gradient descent. assets label the rows of cov.
//
// The step size is 1/L where L bounds the gradient's Lipschitz constant
// (twice the largest Gershgorin row sum), so every iteration is a descent
// step and the iterate stays on the capped simplex.
func MinimumVariance(assets []string, cov mat.Symmetric, maxWeight float64) (domain.WeightVector, error) {
	n := len(assets)
	if n == 0 || cov == nil {
		return nil, fmt.Errorf("minimum variance of no assets: %w", domain.ErrInsufficientData)
	}
	if cov.SymmetricDim() != n {
		return nil, fmt.Errorf("covariance is %dx%d for %d assets: %w",
			cov.SymmetricDim(), cov.SymmetricDim(), n, domain.ErrInvalidInput)
	}
	if maxWeight <= 0 || maxWeight > 1 {
		return nil, fmt.Errorf("max weight %v: %w", maxWeight, domain.ErrInvalidInput)
	}
	if float64(n)*maxWeight < 1-feasibilityEps {
		return nil, fmt.Errorf("%d assets at max weight %v cannot reach 100%%: %w",
			n, maxWeight, domain.ErrConstraintViolation)
	}

	var lipschitz float64
	for i := 0; i < n; i++ {
		var row float64
		for j := 0; j < n; j++ {
			v := cov.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("covariance entry (%d,%d) = %v: %w", i, j, v, domain.ErrInvalidInput)
			}
			row += math.Abs(v)
		}
		lipschitz = math.Max(lipschitz, 2*row)
	}

	w := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		w.SetVec(i, 1/float64(n))
	}
	if lipschitz == 0 {
		return toVector(assets, w), nil
	}
	step := 1 / lipschitz

	var grad, next mat.VecDense
	for iter := 0; iter < minVarMaxIter; iter++ {
		grad.MulVec(cov, w)
		grad.ScaleVec(2, &grad)
		next.AddScaledVec(w, -step, &grad)
		projectCappedSimplex(&next, maxWeight)

		var delta float64
		for i := 0; i < n; i++ {
			delta = math.Max(delta, math.Abs(next.AtVec(i)-w.AtVec(i)))
		}
		w.CopyVec(&next)
		if delta < minVarTol {
			break
		}
	}
	return toVector(assets, w), nil
}

// projectCappedSimplex replaces v with its Euclidean projection onto
// {x : Σx = 1, 0 <= x_i <= limit}. The projection is clip(v_i - τ, 0, limit)
// where τ is found by bisection.
func projectCappedSimplex(v *mat.VecDense, limit float64) {
	n := v.Len()
	total := func(tau float64) float64 {
		var s float64
		for i := 0; i < n; i++ {
			s += math.Min(limit, math.Max(0, v.AtVec(i)-tau))
		}
		return s
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := 0; i < n; i++ {
		lo = math.Min(lo, v.AtVec(i))
		hi = math.Max(hi, v.AtVec(i))
	}
	// total(lo) = n·limit >= 1, total(hi) = 0.
	lo -= limit
	for i := 0; i < 200 && hi-lo > 1e-16; i++ {
		mid := (lo + hi) / 2
		if total(mid) > 1 {
			lo = mid
		} else {
			hi = mid
		}
	}
	tau := (lo + hi) / 2
	for i := 0; i < n; i++ {
		v.SetVec(i, math.Min(limit, math.Max(0, v.AtVec(i)-tau)))
	}
}

func toVector(assets []string, w *mat.VecDense) domain.WeightVector {
	out := make(domain.WeightVector, len(assets))
	for i, a := range assets {
		out[a] = w.AtVec(i)
	}
	return out
}
