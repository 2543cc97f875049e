package returns

import (
	"errors"
	"math"
	"testing"
	"time"

	"autoindex/internal/domain"
)

const tol = 1e-9

func approx(a, b, eps float64) bool { return math.Abs(a-b) <= eps }

var scenario = []float64{100, 105, 102, 108, 110, 95, 98, 103, 107, 109}

func TestSimpleReturn(t *testing.T) {
	r, err := SimpleReturn(100, 105)
	if err != nil {
		t.Fatalf("SimpleReturn returned error: %v", err)
	}
	if !approx(r, 0.05, tol) {
		t.Errorf("SimpleReturn(100, 105) = %v, want 0.05", r)
	}
	for _, p0 := range []float64{0, -1} {
		if _, err := SimpleReturn(p0, 1); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("SimpleReturn(%v, 1) err = %v, want ErrInvalidInput", p0, err)
		}
	}
}

func TestLogReturn(t *testing.T) {
	r, err := LogReturn(100, 110)
	if err != nil {
		t.Fatal(err)
	}
	if !approx(r, math.Log(1.1), tol) {
		t.Errorf("LogReturn(100, 110) = %v, want %v", r, math.Log(1.1))
	}
	if _, err := LogReturn(100, 0); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("LogReturn(100, 0) err = %v, want ErrInvalidInput", err)
	}
}

func TestReturnsLength(t *testing.T) {
	for n := 1; n <= len(scenario); n++ {
		rs, err := Returns(scenario[:n])
		if err != nil {
			t.Fatalf("Returns(%d prices) returned error: %v", n, err)
		}
		if len(rs) != n-1 {
			t.Errorf("len(Returns(%d prices)) = %d, want %d", n, len(rs), n-1)
		}
	}
}

func TestReturnsEdgeCases(t *testing.T) {
	if _, err := Returns(nil); !errors.Is(err, domain.ErrInsufficientData) {
		t.Errorf("Returns(nil) err = %v, want ErrInsufficientData", err)
	}
	rs, err := Returns([]float64{42})
	if err != nil {
		t.Fatalf("Returns(single) returned error: %v", err)
	}
	if len(rs) != 0 {
		t.Errorf("Returns(single) = %v, want empty", rs)
	}
	if _, err := Returns([]float64{10, 0, 12}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("Returns with zero price err = %v, want ErrInvalidInput", err)
	}
}

func TestCumulativeMatchesLogReconstruction(t *testing.T) {
	cum, err := CumulativeReturns(scenario)
	if err != nil {
		t.Fatal(err)
	}
	logs, err := LogReturns(scenario)
	if err != nil {
		t.Fatal(err)
	}
	var sum float64
	for i, lr := range logs {
		sum += lr
		if want := math.Exp(sum) - 1; !approx(cum[i], want, 1e-12) {
			t.Errorf("cumulative[%d] = %v, exp(sum log) - 1 = %v", i, cum[i], want)
		}
	}
	if !approx(cum[len(cum)-1], 0.09, 1e-12) {
		t.Errorf("final cumulative return = %v, want 0.09", cum[len(cum)-1])
	}

	simple, _ := Returns(scenario)
	if !approx(Compound(simple), cum[len(cum)-1], 1e-12) {
		t.Errorf("Compound = %v, want %v", Compound(simple), cum[len(cum)-1])
	}
}

func TestTotalReturnScenario(t *testing.T) {
	got, err := TotalReturn(scenario[0], scenario[len(scenario)-1])
	if err != nil {
		t.Fatal(err)
	}
	if !approx(got, 0.09, tol) {
		t.Errorf("TotalReturn = %v, want 0.09", got)
	}
}

func TestAnnualizedReturn(t *testing.T) {
	got, err := AnnualizedReturn(0.21, 730)
	if err != nil {
		t.Fatal(err)
	}
	if !approx(got, 0.1, 1e-9) {
		t.Errorf("AnnualizedReturn(0.21, 730) = %v, want 0.1", got)
	}
	if _, err := AnnualizedReturn(0.1, 0); !errors.Is(err, domain.ErrInsufficientData) {
		t.Errorf("AnnualizedReturn over 0 days err = %v, want ErrInsufficientData", err)
	}
	if _, err := AnnualizedReturn(-1.5, 10); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("AnnualizedReturn(-1.5) err = %v, want ErrInvalidInput", err)
	}
}

func TestSeriesReturnsDates(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s, err := domain.NewPriceSeries("X", []domain.PricePoint{
		{Date: start, Price: 100},
		{Date: start.AddDate(0, 0, 1), Price: 110},
		{Date: start.AddDate(0, 0, 2), Price: 99},
	})
	if err != nil {
		t.Fatal(err)
	}
	rs, err := SeriesReturns(s)
	if err != nil {
		t.Fatal(err)
	}
	if rs.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", rs.Len())
	}
	if !rs.Points[0].Date.Equal(start.AddDate(0, 0, 1)) {
		t.Errorf("first return dated %v, want the later price date", rs.Points[0].Date)
	}
	if !approx(rs.Points[1].Return, -0.1, tol) {
		t.Errorf("second return = %v, want -0.1", rs.Points[1].Return)
	}
}
