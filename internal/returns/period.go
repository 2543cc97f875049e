package returns

import (
	"fmt"
	"strings"
	"time"

	"autoindex/internal/domain"
	"autoindex/internal/util"
)

// Granularity selects the bucket size used by PeriodReturns.
type Granularity string

const (
	GranularityDaily     Granularity = "daily"
	GranularityWeekly    Granularity = "weekly"
	GranularityMonthly   Granularity = "monthly"
	GranularityQuarterly Granularity = "quarterly"
	GranularityYearly    Granularity = "yearly"
	GranularityYTD       Granularity = "ytd"
)

// ParseGranularity parses a case-insensitive granularity name.
func ParseGranularity(s string) (Granularity, error) {
	g := Granularity(strings.ToLower(strings.TrimSpace(s)))
	switch g {
	case GranularityDaily, GranularityWeekly, GranularityMonthly,
		GranularityQuarterly, GranularityYearly, GranularityYTD:
		return g, nil
	}
	return "", fmt.Errorf("granularity %q: %w", s, domain.ErrInvalidInput)
}

// PeriodReturn is the return of one calendar bucket.
type PeriodReturn struct {
	Period string    `json:"period"`
	End    time.Time `json:"end"`
	Return float64   `json:"return"`
}

// PeriodReturns resamples s to buckets of the given granularity, keeping the
// last observation of each bucket, and returns each bucket's simple return
// against the previous bucket's last observation. The first bucket has no
// predecessor and is omitted.
//
// GranularityYTD yields a single entry for the final calendar year of s,
// measured from the last observation of the preceding year when present,
// otherwise from the first observation of the final year.
func PeriodReturns(s domain.PriceSeries, g Granularity) ([]PeriodReturn, error) {
	if s.Len() == 0 {
		return nil, fmt.Errorf("%s: period returns of empty series: %w", s.Symbol, domain.ErrInsufficientData)
	}
	if g == GranularityYTD {
		return yearToDate(s)
	}

	ug, err := bucketOf(g)
	if err != nil {
		return nil, err
	}

	type bucket struct {
		key  string
		last domain.PricePoint
	}
	var buckets []bucket
	for _, p := range s.Points {
		k := util.PeriodKey(p.Date, ug)
		if n := len(buckets); n > 0 && buckets[n-1].key == k {
			buckets[n-1].last = p
			continue
		}
		buckets = append(buckets, bucket{key: k, last: p})
	}

	out := make([]PeriodReturn, 0, len(buckets))
	for i := 1; i < len(buckets); i++ {
		r, err := SimpleReturn(buckets[i-1].last.Price, buckets[i].last.Price)
		if err != nil {
			return nil, err
		}
		out = append(out, PeriodReturn{Period: buckets[i].key, End: buckets[i].last.Date, Return: r})
	}
	return out, nil
}

func yearToDate(s domain.PriceSeries) ([]PeriodReturn, error) {
	last := s.Points[s.Len()-1]
	year := last.Date.Year()

	// Without a prior-year observation base stays on the first point, which
	// is then the first observation of the final year.
	base := s.Points[0]
	for _, p := range s.Points {
		if p.Date.Year() >= year {
			break
		}
		base = p
	}

	r, err := SimpleReturn(base.Price, last.Price)
	if err != nil {
		return nil, err
	}
	return []PeriodReturn{{Period: fmt.Sprintf("%d-YTD", year), End: last.Date, Return: r}}, nil
}

func bucketOf(g Granularity) (util.Granularity, error) {
	switch g {
	case GranularityDaily:
		return util.Daily, nil
	case GranularityWeekly:
		return util.Weekly, nil
	case GranularityMonthly:
		return util.Monthly, nil
	case GranularityQuarterly:
		return util.Quarterly, nil
	case GranularityYearly:
		return util.Yearly, nil
	}
	return "", fmt.Errorf("granularity %q: %w", g, domain.ErrInvalidInput)
}
