// Package store persists the inputs and outputs of the analytics engine:
// price histories and equity curves as Parquet files, strategy versions and
// backtest run summaries in SQLite.
package store

import (
	"context"
	"errors"
	"time"

	"autoindex/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// PriceStore persists and retrieves daily closing prices together with the
// market capitalization observed on each day.
type PriceStore interface {
	// WriteSeries merges s into storage. A zero marketCap keeps any
	// capitalization already stored for those days.
	WriteSeries(ctx context.Context, s domain.PriceSeries, marketCap float64) error

	// ReadSeries returns the prices of symbol within [start, end]. Zero
	// bounds are open.
	ReadSeries(ctx context.Context, symbol string, start, end time.Time) (domain.PriceSeries, error)

	// ListSymbols returns all symbols with stored prices, sorted.
	ListSymbols(ctx context.Context) ([]string, error)

	// ReadMarketCaps returns the latest non-zero capitalization of each
	// symbol that has one.
	ReadMarketCaps(ctx context.Context, symbols []string) (map[string]float64, error)
}

// RunArtifactStore keeps the bulky per-run series.
type RunArtifactStore interface {
	WriteEquityCurve(ctx context.Context, runID string, points []domain.EquityPoint) error
	ReadEquityCurve(ctx context.Context, runID string) ([]domain.EquityPoint, error)
	WriteTradeLog(ctx context.Context, runID string, trades []domain.Trade) error
	ReadTradeLog(ctx context.Context, runID string) ([]domain.Trade, error)
}

// StrategyVersion is one saved revision of a strategy.
type StrategyVersion struct {
	Version   int                   `json:"version"`
	UpdatedAt time.Time             `json:"updated_at"`
	Config    domain.StrategyConfig `json:"config"`
}

// StrategyStore versions strategy configurations by name.
type StrategyStore interface {
	// SaveStrategy appends a new version of cfg and returns its number.
	SaveStrategy(ctx context.Context, cfg domain.StrategyConfig) (int, error)

	// LatestStrategy returns the most recent version of name.
	LatestStrategy(ctx context.Context, name string) (domain.StrategyConfig, error)

	// StrategyVersions returns every version of name, oldest first.
	StrategyVersions(ctx context.Context, name string) ([]StrategyVersion, error)

	// ListStrategies returns the distinct strategy names, sorted.
	ListStrategies(ctx context.Context) ([]string, error)
}

// RunSummary is the persisted header of a backtest run.
type RunSummary struct {
	ID             string                   `json:"id"`
	Strategy       string                   `json:"strategy"`
	Status         domain.BacktestStatus    `json:"status"`
	Incomplete     bool                     `json:"incomplete"`
	Error          string                   `json:"error,omitempty"`
	InitialCapital float64                  `json:"initial_capital"`
	FinalValue     float64                  `json:"final_value"`
	Report         domain.PerformanceReport `json:"report"`
	StartedAt      time.Time                `json:"started_at"`
	FinishedAt     time.Time                `json:"finished_at"`
}

// RunStore records backtest run summaries.
type RunStore interface {
	SaveRun(ctx context.Context, res *domain.BacktestResult) error
	GetRun(ctx context.Context, id string) (RunSummary, error)
	// ListRuns returns the newest runs first, optionally filtered by
	// strategy name. limit <= 0 means no limit.
	ListRuns(ctx context.Context, strategy string, limit int) ([]RunSummary, error)
}
