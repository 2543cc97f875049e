package backtest

import (
	"fmt"
	"math"

	"autoindex/internal/domain"
)

// suspect applies the strategy's guard rails to one asset at one period and
// returns a non-empty reason when the observation should be treated as bad
// data. prev is NaN when there is no prior price. Zero thresholds disable
// their check, and each side of the return band is disabled on its own
// when zero.
func suspect(cfg domain.StrategyConfig, prev, cur float64) string {
	if cfg.MinPriceThreshold > 0 && cur < cfg.MinPriceThreshold {
		return fmt.Sprintf("price %.4f below minimum %.4f", cur, cfg.MinPriceThreshold)
	}
	if math.IsNaN(prev) || prev <= 0 {
		return ""
	}
	r := cur/prev - 1
	if cfg.DailyDropThreshold > 0 && r < -cfg.DailyDropThreshold {
		return fmt.Sprintf("drop of %.2f%% exceeds %.2f%%", -r*100, cfg.DailyDropThreshold*100)
	}
	if cfg.MinDailyReturn != 0 && r < cfg.MinDailyReturn {
		return fmt.Sprintf("return %.2f%% below %.2f%%", r*100, cfg.MinDailyReturn*100)
	}
	if cfg.MaxDailyReturn != 0 && r > cfg.MaxDailyReturn {
		return fmt.Sprintf("return %.2f%% above %.2f%%", r*100, cfg.MaxDailyReturn*100)
	}
	return ""
}
