package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"autoindex/internal/domain"
)

// ReadPriceCSV parses a daily price history for symbol. The header must name
// a "date" column (YYYY-MM-DD) and a "close" or "price" column; an optional
// "market_cap" column supplies the capitalization, of which the latest
// non-empty value is returned. Rows may appear in any order.
func ReadPriceCSV(r io.Reader, symbol string) (domain.PriceSeries, float64, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return domain.PriceSeries{}, 0, fmt.Errorf("empty CSV: %w", domain.ErrInvalidInput)
	}
	if err != nil {
		return domain.PriceSeries{}, 0, fmt.Errorf("reading CSV header: %w", err)
	}

	dateCol, priceCol, capCol := -1, -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "date":
			dateCol = i
		case "close", "price":
			if priceCol < 0 {
				priceCol = i
			}
		case "market_cap":
			capCol = i
		}
	}
	if dateCol < 0 || priceCol < 0 {
		return domain.PriceSeries{}, 0, fmt.Errorf("CSV header %v needs date and close columns: %w", header, domain.ErrInvalidInput)
	}

	var (
		points  []domain.PricePoint
		lastCap float64
		capDate time.Time
	)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.PriceSeries{}, 0, fmt.Errorf("reading CSV line %d: %w", line, err)
		}
		date, err := time.Parse("2006-01-02", strings.TrimSpace(rec[dateCol]))
		if err != nil {
			return domain.PriceSeries{}, 0, fmt.Errorf("line %d: date %q: %w", line, rec[dateCol], domain.ErrInvalidInput)
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(rec[priceCol]), 64)
		if err != nil {
			return domain.PriceSeries{}, 0, fmt.Errorf("line %d: price %q: %w", line, rec[priceCol], domain.ErrInvalidInput)
		}
		points = append(points, domain.PricePoint{Date: date, Price: price})

		if capCol >= 0 {
			if v := strings.TrimSpace(rec[capCol]); v != "" {
				c, err := strconv.ParseFloat(v, 64)
				if err != nil || c < 0 {
					return domain.PriceSeries{}, 0, fmt.Errorf("line %d: market cap %q: %w", line, v, domain.ErrInvalidInput)
				}
				if !date.Before(capDate) {
					lastCap, capDate = c, date
				}
			}
		}
	}

	if len(points) == 0 {
		return domain.PriceSeries{}, 0, fmt.Errorf("%s: CSV has no rows: %w", symbol, domain.ErrInsufficientData)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	series, err := domain.NewPriceSeries(symbol, points)
	if err != nil {
		return domain.PriceSeries{}, 0, err
	}
	return series, lastCap, nil
}
