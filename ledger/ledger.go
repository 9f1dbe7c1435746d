// Package ledger holds the arithmetic of the transaction log: classifying
// rows, computing their cash flows and replaying them into running balances.
// It has no storage dependencies.
package ledger

import (
	"time"

	"github.com/fa-sharp/cs50-finance-plus/format"
	"github.com/fa-sharp/cs50-finance-plus/models"
	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places cash amounts are kept at.
const Scale = 4

// MaxAmount bounds every stored amount: numeric(19,4) holds 15 integer digits.
var MaxAmount = decimal.New(1, 15)

type Action string

const (
	ActionBuy     Action = "BUY"
	ActionSell    Action = "SELL"
	ActionDeposit Action = "DEPOSIT"
)

// ActionOf derives the action from a signed share count.
func ActionOf(shares int64) Action {
	switch {
	case shares > 0:
		return ActionBuy
	case shares < 0:
		return ActionSell
	default:
		return ActionDeposit
	}
}

// CashFlow is the signed effect of a row on the cash balance:
// -(price*shares) for trades, +price for deposits.
func CashFlow(shares int64, price decimal.Decimal) decimal.Decimal {
	if shares == 0 {
		return price
	}
	return price.Mul(decimal.NewFromInt(shares)).Neg()
}

// Entry is a transaction row enriched with its derived ledger fields.
type Entry struct {
	ID        uint            `json:"id"`
	Symbol    string          `json:"symbol"`
	Shares    int64           `json:"shares"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
	Action    Action          `json:"action"`
	Total     decimal.Decimal `json:"total"`
	Balance   decimal.Decimal `json:"cash_balance"`

	// TotalDisplay is Total as signed dollars, e.g. "+$240.00".
	TotalDisplay string `json:"total_display"`
}

// Replay walks txs in order starting from opening and returns one entry per
// row plus the balance after the last row.
func Replay(txs []models.Transaction, opening decimal.Decimal) ([]Entry, decimal.Decimal) {
	entries := make([]Entry, 0, len(txs))
	balance := opening
	for _, tx := range txs {
		total := CashFlow(tx.Shares, tx.Price)
		balance = balance.Add(total)
		entries = append(entries, Entry{
			ID:        tx.ID,
			Symbol:    tx.Symbol,
			Shares:    tx.Shares,
			Price:     tx.Price,
			Timestamp: tx.Timestamp,
			Action:    ActionOf(tx.Shares),
			Total:     total,
			Balance:   balance,

			TotalDisplay: format.CashFlow(total),
		})
	}
	return entries, balance
}

// Balance is the sum of the cash flows of txs.
func Balance(txs []models.Transaction) decimal.Decimal {
	_, closing := Replay(txs, decimal.Zero)
	return closing
}
