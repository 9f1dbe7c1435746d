// Package format renders amounts for user-facing messages.
package format

import (
	"fmt"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// USD formats d as dollars rounded to cents, e.g. "$1,234.50" or "-$3.10".
func USD(d decimal.Decimal) string {
	cur := money.GetCurrency(money.USD)
	cents := d.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(cents, money.USD).Display()
}

// CashFlow formats a signed amount with an explicit sign.
func CashFlow(d decimal.Decimal) string {
	if d.IsNegative() {
		return USD(d)
	}
	return "+" + USD(d)
}

// Percent formats a ratio (0.0123) as a signed percentage ("+1.23%").
func Percent(ratio decimal.Decimal) string {
	pct := ratio.Shift(2).StringFixed(2)
	if !ratio.IsNegative() {
		return "+" + pct + "%"
	}
	return pct + "%"
}

// Shares returns "1 share" or "n shares".
func Shares(n int64) string {
	if n == 1 || n == -1 {
		return fmt.Sprintf("%d share", n)
	}
	return fmt.Sprintf("%d shares", n)
}
