package portfolio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fa-sharp/cs50-finance-plus/errs"
	"github.com/fa-sharp/cs50-finance-plus/events"
	"github.com/fa-sharp/cs50-finance-plus/format"
	"github.com/fa-sharp/cs50-finance-plus/ledger"
	"github.com/fa-sharp/cs50-finance-plus/models"
	"github.com/fa-sharp/cs50-finance-plus/quote"
	"github.com/shopspring/decimal"
)

// TradeResult describes a committed buy, sell or deposit.
type TradeResult struct {
	TransactionID  uint            `json:"transaction_id"`
	Action         ledger.Action   `json:"action"`
	Symbol         string          `json:"symbol,omitempty"`
	Name           string          `json:"name,omitempty"`
	Shares         int64           `json:"shares"`
	Price          decimal.Decimal `json:"price"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Cash           decimal.Decimal `json:"cash"`
	PositionShares int64           `json:"position_shares"`
	Timestamp      time.Time       `json:"timestamp"`
}

// Message is a one-line summary for the user.
func (r TradeResult) Message() string {
	switch r.Action {
	case ledger.ActionBuy:
		return fmt.Sprintf("Bought %s of %s at %s for a total of %s!",
			format.Shares(r.Shares), r.Symbol, format.USD(r.Price), format.USD(r.Subtotal))
	case ledger.ActionSell:
		return fmt.Sprintf("Sold %s of %s at %s for a total of %s!",
			format.Shares(r.Shares), r.Symbol, format.USD(r.Price), format.USD(r.Subtotal))
	default:
		return fmt.Sprintf("Deposited %s into cash account!", format.USD(r.Subtotal))
	}
}

func (r TradeResult) event(userID uint) events.TradeEvent {
	shares := r.Shares
	if r.Action == ledger.ActionSell {
		shares = -shares
	}
	return events.TradeEvent{
		TransactionID: r.TransactionID,
		UserID:        userID,
		Action:        string(r.Action),
		Symbol:        r.Symbol,
		Shares:        shares,
		Price:         r.Price,
		Total:         ledger.CashFlow(shares, r.Price),
		Cash:          r.Cash,
		At:            r.Timestamp,
	}
}

func validateOrder(symbol string, shares int64) (string, error) {
	symbol = quote.Normalize(symbol)
	if symbol == "" {
		return "", errs.Validation("must provide stock symbol")
	}
	if shares <= 0 {
		return "", errs.Validation("must enter a positive integer for # of shares")
	}
	return symbol, nil
}

// price quotes symbol and returns its price at ledger scale.
func (s *Service) price(ctx context.Context, symbol string) (*quote.Quote, decimal.Decimal, error) {
	q := s.quotes.Lookup(ctx, symbol)
	if q == nil {
		return nil, decimal.Zero, errs.New(errs.KindQuoteUnavailable, "not a valid stock symbol: %s", symbol)
	}
	return q, q.Price.Round(ledger.Scale), nil
}

// Buy purchases shares of symbol at the current quote.
func (s *Service) Buy(ctx context.Context, userID uint, symbol string, shares int64) (*TradeResult, error) {
	symbol, err := validateOrder(symbol, shares)
	if err != nil {
		return nil, err
	}
	q, price, err := s.price(ctx, symbol)
	if err != nil {
		return nil, err
	}
	subtotal := price.Mul(decimal.NewFromInt(shares))

	result := &TradeResult{Action: ledger.ActionBuy, Symbol: symbol, Name: q.Name, Shares: shares, Price: price, Subtotal: subtotal}
	err = s.repo.Atomic(ctx, func(tx Repository) error {
		user, err := tx.GetUserForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if user.Cash.LessThan(subtotal) {
			return errs.New(errs.KindInsufficientFunds, "not enough cash: %s costs %s but only %s is available",
				format.Shares(shares), format.USD(subtotal), format.USD(user.Cash))
		}
		cash := user.Cash.Sub(subtotal)
		if err := tx.UpdateCash(ctx, userID, cash); err != nil {
			return err
		}

		position, err := tx.GetPositionForUpdate(ctx, userID, symbol)
		switch {
		case errors.Is(err, errs.ErrRecordNotFound):
			position = &models.Position{UserID: userID, Symbol: symbol, Shares: shares}
			if err := tx.CreatePosition(ctx, position); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			position.Shares += shares
			if err := tx.UpdatePositionShares(ctx, position.ID, position.Shares); err != nil {
				return err
			}
		}

		row := &models.Transaction{
			UserID:     userID,
			PositionID: &position.ID,
			Symbol:     symbol,
			Shares:     shares,
			Price:      price,
			Timestamp:  s.now(),
		}
		if err := tx.AppendTransaction(ctx, row); err != nil {
			return err
		}

		result.TransactionID = row.ID
		result.Timestamp = row.Timestamp
		result.Cash = cash
		result.PositionShares = position.Shares
		return nil
	})
	if err != nil {
		return nil, classify("buy stock", err)
	}

	s.publish(ctx, result.event(userID))
	return result, nil
}

// Sell sells shares of symbol at the current quote. Selling the whole
// position removes it; its transactions remain in the history.
func (s *Service) Sell(ctx context.Context, userID uint, symbol string, shares int64) (*TradeResult, error) {
	symbol, err := validateOrder(symbol, shares)
	if err != nil {
		return nil, err
	}
	q, price, err := s.price(ctx, symbol)
	if err != nil {
		return nil, err
	}
	subtotal := price.Mul(decimal.NewFromInt(shares))

	result := &TradeResult{Action: ledger.ActionSell, Symbol: symbol, Name: q.Name, Shares: shares, Price: price, Subtotal: subtotal}
	err = s.repo.Atomic(ctx, func(tx Repository) error {
		// user first, then position: the same lock order as Buy
		user, err := tx.GetUserForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		position, err := tx.GetPositionForUpdate(ctx, userID, symbol)
		if errors.Is(err, errs.ErrRecordNotFound) {
			return errs.New(errs.KindInsufficientShares, "you don't own any shares of %s", symbol)
		} else if err != nil {
			return err
		}
		if position.Shares < shares {
			return errs.New(errs.KindInsufficientShares, "you only own %s of %s", format.Shares(position.Shares), symbol)
		}

		cash := user.Cash.Add(subtotal)
		if err := tx.UpdateCash(ctx, userID, cash); err != nil {
			return err
		}

		remaining := position.Shares - shares
		row := &models.Transaction{
			UserID:    userID,
			Symbol:    symbol,
			Shares:    -shares,
			Price:     price,
			Timestamp: s.now(),
		}
		if remaining == 0 {
			if err := tx.AppendTransaction(ctx, row); err != nil {
				return err
			}
			if err := tx.DeletePosition(ctx, position.ID); err != nil {
				return err
			}
		} else {
			row.PositionID = &position.ID
			if err := tx.AppendTransaction(ctx, row); err != nil {
				return err
			}
			if err := tx.UpdatePositionShares(ctx, position.ID, remaining); err != nil {
				return err
			}
		}

		result.TransactionID = row.ID
		result.Timestamp = row.Timestamp
		result.Cash = cash
		result.PositionShares = remaining
		return nil
	})
	if err != nil {
		return nil, classify("sell stock", err)
	}

	s.publish(ctx, result.event(userID))
	return result, nil
}

// Deposit adds amount to the user's cash.
func (s *Service) Deposit(ctx context.Context, userID uint, amount decimal.Decimal) (*TradeResult, error) {
	amount = amount.Round(ledger.Scale)
	if !amount.IsPositive() {
		return nil, errs.Validation("must enter a positive number for amount to deposit")
	}
	if amount.GreaterThanOrEqual(ledger.MaxAmount) {
		return nil, errs.Validation("amount to deposit must be less than %s", format.USD(ledger.MaxAmount))
	}

	result := &TradeResult{Action: ledger.ActionDeposit, Price: amount, Subtotal: amount}
	err := s.repo.Atomic(ctx, func(tx Repository) error {
		user, err := tx.GetUserForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		cash := user.Cash.Add(amount)
		if cash.GreaterThanOrEqual(ledger.MaxAmount) {
			return errs.Validation("deposit would take cash above %s", format.USD(ledger.MaxAmount))
		}

		row := &models.Transaction{
			UserID:    userID,
			Shares:    0,
			Price:     amount,
			Timestamp: s.now(),
		}
		if err := tx.AppendTransaction(ctx, row); err != nil {
			return err
		}
		if err := tx.UpdateCash(ctx, userID, cash); err != nil {
			return err
		}

		result.TransactionID = row.ID
		result.Timestamp = row.Timestamp
		result.Cash = cash
		return nil
	})
	if err != nil {
		return nil, classify("deposit cash", err)
	}

	s.publish(ctx, result.event(userID))
	return result, nil
}
