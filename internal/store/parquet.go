package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"autoindex/internal/domain"
)

// Compile-time interface checks.
var _ PriceStore = (*ParquetStore)(nil)
var _ RunArtifactStore = (*ParquetStore)(nil)

// ParquetStore implements PriceStore and RunArtifactStore using Parquet
// files on disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// PriceRecord is the Parquet schema for daily closing prices.
type PriceRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Close     float64 `parquet:"close"`
	MarketCap float64 `parquet:"market_cap"`
}

// EquityRecord is the Parquet schema for a run's equity curve.
type EquityRecord struct {
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"`
	Value     float64 `parquet:"value"`
}

// TradeRecord is the Parquet schema for a run's trade log.
type TradeRecord struct {
	Asset     string  `parquet:"asset"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"`
	Action    string  `parquet:"action"`
	Quantity  float64 `parquet:"quantity"`
	Price     float64 `parquet:"price"`
	Cost      float64 `parquet:"cost"`
}

// ---------------------------------------------------------------------------
// PriceStore implementation
// ---------------------------------------------------------------------------

// WriteSeries writes prices to Parquet files organized by symbol and year.
// Each symbol+year combination produces a separate file at:
//
//	<DataDir>/prices/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) WriteSeries(_ context.Context, series domain.PriceSeries, marketCap float64) error {
	if series.Len() == 0 {
		return nil
	}
	symbol := strings.ToUpper(series.Symbol)
	if symbol == "" {
		return fmt.Errorf("series without symbol: %w", domain.ErrInvalidInput)
	}

	groups := make(map[int][]PriceRecord)
	for _, p := range series.Points {
		y := p.Date.UTC().Year()
		groups[y] = append(groups[y], PriceRecord{
			Symbol:    symbol,
			Timestamp: p.Date.UnixMilli(),
			Close:     p.Price,
			MarketCap: marketCap,
		})
	}

	for year, records := range groups {
		path := s.pricePath(symbol, year)

		// Read existing records to merge.
		existing, _ := readParquetFile[PriceRecord](path)
		merged := mergePriceRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing prices for %s/%d: %w", symbol, year, err)
		}
	}
	return nil
}

// ReadSeries reads prices from the year files overlapping [start, end].
func (s *ParquetStore) ReadSeries(_ context.Context, symbol string, start, end time.Time) (domain.PriceSeries, error) {
	records, err := s.readPrices(symbol, start, end)
	if err != nil {
		return domain.PriceSeries{}, err
	}
	points := make([]domain.PricePoint, 0, len(records))
	for _, r := range records {
		points = append(points, domain.PricePoint{
			Date:  time.UnixMilli(r.Timestamp).UTC(),
			Price: r.Close,
		})
	}
	return domain.NewPriceSeries(strings.ToUpper(symbol), points)
}

// ListSymbols lists all symbols that have price data.
func (s *ParquetStore) ListSymbols(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.DataDir, "prices"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// ReadMarketCaps scans each symbol's history for its latest non-zero
// capitalization. Symbols without one are omitted.
func (s *ParquetStore) ReadMarketCaps(_ context.Context, symbols []string) (map[string]float64, error) {
	out := make(map[string]float64, len(symbols))
	for _, sym := range symbols {
		records, err := s.readPrices(sym, time.Time{}, time.Time{})
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		for i := len(records) - 1; i >= 0; i-- {
			if records[i].MarketCap > 0 {
				out[strings.ToUpper(sym)] = records[i].MarketCap
				break
			}
		}
	}
	return out, nil
}

// readPrices returns the sorted records of symbol within [start, end].
func (s *ParquetStore) readPrices(symbol string, start, end time.Time) ([]PriceRecord, error) {
	years, err := s.priceYears(symbol)
	if err != nil {
		return nil, err
	}
	var out []PriceRecord
	for _, year := range years {
		if !start.IsZero() && year < start.Year() || !end.IsZero() && year > end.Year() {
			continue
		}
		records, err := readParquetFile[PriceRecord](s.pricePath(symbol, year))
		if err != nil {
			return nil, fmt.Errorf("reading prices for %s/%d: %w", symbol, year, err)
		}
		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp)
			if !start.IsZero() && ts.Before(start) || !end.IsZero() && ts.After(end) {
				continue
			}
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("prices for %s: %w", symbol, ErrNotFound)
	}
	return out, nil
}

// priceYears lists the years stored for symbol in ascending order.
func (s *ParquetStore) priceYears(symbol string) ([]int, error) {
	entries, err := os.ReadDir(filepath.Join(s.DataDir, "prices", strings.ToUpper(symbol)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("prices for %s: %w", symbol, ErrNotFound)
		}
		return nil, err
	}
	var years []int
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".parquet") {
			continue
		}
		if y, err := strconv.Atoi(strings.TrimSuffix(name, ".parquet")); err == nil {
			years = append(years, y)
		}
	}
	sort.Ints(years)
	return years, nil
}

// ---------------------------------------------------------------------------
// RunArtifactStore implementation
// ---------------------------------------------------------------------------

// WriteEquityCurve replaces the stored equity curve of runID.
func (s *ParquetStore) WriteEquityCurve(_ context.Context, runID string, points []domain.EquityPoint) error {
	records := make([]EquityRecord, len(points))
	for i, p := range points {
		records[i] = EquityRecord{Timestamp: p.Date.UnixMilli(), Value: p.Value}
	}
	path, err := s.runPath(runID, "equity.parquet")
	if err != nil {
		return err
	}
	return writeParquetFile(path, records)
}

// ReadEquityCurve returns the equity curve stored for runID.
func (s *ParquetStore) ReadEquityCurve(_ context.Context, runID string) ([]domain.EquityPoint, error) {
	path, err := s.runPath(runID, "equity.parquet")
	if err != nil {
		return nil, err
	}
	records, err := readParquetFile[EquityRecord](path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("equity curve of run %s: %w", runID, ErrNotFound)
		}
		return nil, err
	}
	out := make([]domain.EquityPoint, len(records))
	for i, r := range records {
		out[i] = domain.EquityPoint{Date: time.UnixMilli(r.Timestamp).UTC(), Value: r.Value}
	}
	return out, nil
}

// WriteTradeLog replaces the stored trade log of runID.
func (s *ParquetStore) WriteTradeLog(_ context.Context, runID string, trades []domain.Trade) error {
	records := make([]TradeRecord, len(trades))
	for i, t := range trades {
		records[i] = TradeRecord{
			Asset:     t.Asset,
			Timestamp: t.Date.UnixMilli(),
			Action:    string(t.Action),
			Quantity:  t.Quantity,
			Price:     t.Price,
			Cost:      t.Cost,
		}
	}
	path, err := s.runPath(runID, "trades.parquet")
	if err != nil {
		return err
	}
	return writeParquetFile(path, records)
}

// ReadTradeLog returns the trade log stored for runID.
func (s *ParquetStore) ReadTradeLog(_ context.Context, runID string) ([]domain.Trade, error) {
	path, err := s.runPath(runID, "trades.parquet")
	if err != nil {
		return nil, err
	}
	records, err := readParquetFile[TradeRecord](path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("trade log of run %s: %w", runID, ErrNotFound)
		}
		return nil, err
	}
	out := make([]domain.Trade, len(records))
	for i, r := range records {
		out[i] = domain.Trade{
			Asset:    r.Asset,
			Date:     time.UnixMilli(r.Timestamp).UTC(),
			Action:   domain.TradeAction(r.Action),
			Quantity: r.Quantity,
			Price:    r.Price,
			Cost:     r.Cost,
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// pricePath returns the filesystem path for a price Parquet file.
// Layout: <dataDir>/prices/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) pricePath(symbol string, year int) string {
	return filepath.Join(s.DataDir, "prices", strings.ToUpper(symbol), strconv.Itoa(year)+".parquet")
}

// runPath returns the path of a per-run artifact.
// Layout: <dataDir>/runs/<RUN_ID>/<name>
func (s *ParquetStore) runPath(runID, name string) (string, error) {
	if runID == "" || strings.ContainsAny(runID, `/\`) || runID == "." || runID == ".." {
		return "", fmt.Errorf("run id %q: %w", runID, domain.ErrInvalidInput)
	}
	return filepath.Join(s.DataDir, "runs", runID, name), nil
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergePriceRecords deduplicates price records by timestamp, preferring new
// records over existing ones. A new record without a market cap inherits the
// existing one.
func mergePriceRecords(existing, incoming []PriceRecord) []PriceRecord {
	seen := make(map[int64]PriceRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Timestamp] = r
	}
	for _, r := range incoming {
		if old, ok := seen[r.Timestamp]; ok && r.MarketCap == 0 {
			r.MarketCap = old.MarketCap
		}
		seen[r.Timestamp] = r
	}

	merged := make([]PriceRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
