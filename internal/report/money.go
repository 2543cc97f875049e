package report

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"autoindex/internal/domain"
)

// DefaultCurrency is used by the report builders.
const DefaultCurrency = "USD"

// FormatMoney renders amount in currency's display format, rounded to the
// currency's minor unit.
func FormatMoney(amount float64, currency string) (string, error) {
	code := strings.ToUpper(currency)
	cur := money.GetCurrency(code)
	if cur == nil {
		return "", fmt.Errorf("currency %q: %w", currency, domain.ErrInvalidInput)
	}
	minor := decimal.NewFromFloat(amount).Shift(int32(cur.Fraction)).Round(0)
	return money.New(minor.IntPart(), code).Display(), nil
}

func usd(amount float64) string {
	s, _ := FormatMoney(amount, DefaultCurrency)
	return s
}
