package report

import (
	"fmt"

	"github.com/vicanso/go-charts/v2"

	"autoindex/internal/domain"
)

// EquityChart renders the equity curve of res as a PNG line chart with the
// headline statistics in the title.
func EquityChart(res *domain.BacktestResult) ([]byte, error) {
	n := len(res.EquityCurve)
	if n < 2 {
		return nil, fmt.Errorf("equity chart needs 2 points, have %d: %w", n, domain.ErrInsufficientData)
	}

	labels := make([]string, n)
	values := make([]float64, n)
	minVal, maxVal := res.EquityCurve[0].Value, res.EquityCurve[0].Value
	for i, p := range res.EquityCurve {
		if n <= 60 {
			labels[i] = p.Date.Format("Jan 02")
		} else {
			labels[i] = p.Date.Format("Jan '06")
		}
		values[i] = p.Value
		minVal = min(minVal, p.Value)
		maxVal = max(maxVal, p.Value)
	}

	padding := (maxVal - minVal) * 0.05
	if padding == 0 {
		padding = maxVal * 0.05
	}
	yMin, yMax := minVal-padding, maxVal+padding

	splitNum := 6
	if n <= 30 {
		splitNum = max(n/3, 3)
	}

	r := res.Report
	title := fmt.Sprintf("%s\nReturn: %s | Sharpe: %.2f | Vol: %s | MaxDD: %s",
		res.Strategy.Name, pct(r.TotalReturn), r.SharpeRatio, pct(r.Volatility), pct(r.MaxDrawdown))

	p, err := charts.LineRender(
		[][]float64{values},
		charts.PNGTypeOption(),
		charts.TitleTextOptionFunc(title),
		charts.WidthOptionFunc(900),
		charts.HeightOptionFunc(450),
		charts.XAxisOptionFunc(charts.XAxisOption{
			Data:        labels,
			SplitNumber: splitNum,
			BoundaryGap: charts.FalseFlag(),
		}),
		charts.YAxisOptionFunc(charts.YAxisOption{
			Min:         &yMin,
			Max:         &yMax,
			DivideCount: 5,
		}),
		charts.ThemeOptionFunc(charts.ThemeLight),
	)
	if err != nil {
		return nil, fmt.Errorf("render equity chart: %w", err)
	}
	buf, err := p.Bytes()
	if err != nil {
		return nil, fmt.Errorf("encode equity chart: %w", err)
	}
	return buf, nil
}
