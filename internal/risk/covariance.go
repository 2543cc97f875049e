package risk

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"autoindex/internal/domain"
)

// Covariance is a sample covariance matrix labelled by asset.
type Covariance struct {
	Assets []string
	Matrix *mat.SymDense
}

// At returns the covariance between assets i and j.
func (c *Covariance) At(i, j int) float64 { return c.Matrix.At(i, j) }

// CovarianceMatrix computes the sample covariance of aligned per-asset
// return series. Every series must have the same length; assets are sorted
// so the result is independent of map order.
func CovarianceMatrix(returns map[string][]float64) (*Covariance, error) {
	if len(returns) == 0 {
		return nil, fmt.Errorf("covariance of no assets: %w", domain.ErrInsufficientData)
	}
	assets := make([]string, 0, len(returns))
	for a := range returns {
		assets = append(assets, a)
	}
	sort.Strings(assets)

	n := len(returns[assets[0]])
	if n < 2 {
		return nil, fmt.Errorf("covariance over %d observations: %w", n, domain.ErrInsufficientData)
	}

	data := mat.NewDense(n, len(assets), nil)
	for j, a := range assets {
		col := returns[a]
		if len(col) != n {
			return nil, fmt.Errorf("%s has %d returns, %s has %d: %w",
				a, len(col), assets[0], n, domain.ErrInvalidInput)
		}
		if err := checkFinite(col); err != nil {
			return nil, fmt.Errorf("%s: %w", a, err)
		}
		data.SetCol(j, col)
	}

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, data, nil)
	return &Covariance{Assets: assets, Matrix: &cov}, nil
}
