package backtest

import (
	"time"

	"github.com/shopspring/decimal"

	"autoindex/internal/domain"
)

// ledger tracks cash and share positions for one run. Cash is kept in
// decimal so fees and proceeds accumulate without float drift.
type ledger struct {
	cash      decimal.Decimal
	positions map[string]float64
	fees      decimal.Decimal
	trades    []domain.Trade
}

func newLedger(capital float64) *ledger {
	return &ledger{
		cash:      decimal.NewFromFloat(capital),
		positions: make(map[string]float64),
	}
}

// Cash returns the cash balance as a float.
func (l *ledger) Cash() float64 { return l.cash.InexactFloat64() }

// value marks the book to market. Assets without a price contribute
// nothing.
func (l *ledger) value(prices map[string]float64) float64 {
	total := l.cash
	for a, q := range l.positions {
		p, ok := prices[a]
		if !ok || q == 0 {
			continue
		}
		total = total.Add(decimal.NewFromFloat(q).Mul(decimal.NewFromFloat(p)))
	}
	return total.InexactFloat64()
}

// sell disposes of qty shares at execPrice, paying costRate on the notional.
func (l *ledger) sell(asset string, date time.Time, qty, execPrice, costRate float64) {
	if held := l.positions[asset]; qty > held {
		qty = held
	}
	notional := decimal.NewFromFloat(qty).Mul(decimal.NewFromFloat(execPrice))
	fee := notional.Mul(decimal.NewFromFloat(costRate))
	l.cash = l.cash.Add(notional).Sub(fee)
	l.fees = l.fees.Add(fee)
	l.positions[asset] -= qty
	if l.positions[asset] <= 1e-12 {
		delete(l.positions, asset)
	}
	l.record(asset, date, domain.ActionSell, qty, execPrice, fee)
}

// buy acquires qty shares at execPrice, paying costRate on the notional.
func (l *ledger) buy(asset string, date time.Time, qty, execPrice, costRate float64) {
	notional := decimal.NewFromFloat(qty).Mul(decimal.NewFromFloat(execPrice))
	fee := notional.Mul(decimal.NewFromFloat(costRate))
	l.cash = l.cash.Sub(notional).Sub(fee)
	l.fees = l.fees.Add(fee)
	l.positions[asset] += qty
	l.record(asset, date, domain.ActionBuy, qty, execPrice, fee)
}

func (l *ledger) record(asset string, date time.Time, action domain.TradeAction, qty, price float64, fee decimal.Decimal) {
	l.trades = append(l.trades, domain.Trade{
		Asset:    asset,
		Date:     date,
		Action:   action,
		Quantity: qty,
		Price:    price,
		Cost:     fee.InexactFloat64(),
	})
}
