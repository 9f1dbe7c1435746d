package portfolio

import (
	"context"

	"github.com/fa-sharp/cs50-finance-plus/errs"
	"github.com/fa-sharp/cs50-finance-plus/format"
	"github.com/fa-sharp/cs50-finance-plus/models"
	"github.com/fa-sharp/cs50-finance-plus/quote"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// PositionView is a held position combined with the quote fetched for it in
// the same request. Persisted fields and derived fields are kept apart; the
// view is built once and never modified.
type PositionView struct {
	PositionID uint        `json:"id"`
	Symbol     string      `json:"symbol"`
	Shares     int64       `json:"shares"`
	Quote      quote.Quote `json:"quote"`

	Value     decimal.Decimal `json:"value"`
	DayChange decimal.Decimal `json:"day_change"`
	// CostBasis sums the buys still linked to the position. Partial sells do
	// not reallocate basis, so after one this overstates what the remaining
	// shares cost.
	CostBasis          decimal.Decimal `json:"cost_basis"`
	UnrealizedGainLoss decimal.Decimal `json:"unrealized_gain_loss"`

	// DayChangePercent is the quote's percent change, e.g. "-0.66%".
	DayChangePercent string `json:"day_change_percent"`
}

func newPositionView(p models.Position, q quote.Quote, basis decimal.Decimal) PositionView {
	shares := decimal.NewFromInt(p.Shares)
	value := q.Price.Mul(shares)
	return PositionView{
		PositionID:         p.ID,
		Symbol:             p.Symbol,
		Shares:             p.Shares,
		Quote:              q,
		Value:              value,
		DayChange:          q.PriceChange.Mul(shares),
		CostBasis:          basis,
		UnrealizedGainLoss: value.Sub(basis),
		DayChangePercent:   format.Percent(q.PercentChange),
	}
}

type Valuation struct {
	Cash             decimal.Decimal `json:"cash"`
	Positions        []PositionView  `json:"positions"`
	TotalMarketValue decimal.Decimal `json:"total_market_value"`
	InitialCashBasis decimal.Decimal `json:"initial_cash_basis"`
	TotalGainLoss    decimal.Decimal `json:"total_gain_loss"`
}

// Valuate prices every position at its live quote. It fails as a whole when
// any symbol cannot be quoted.
func (s *Service) Valuate(ctx context.Context, userID uint) (*Valuation, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, classify("load portfolio", err)
	}
	positions, err := s.repo.ListPositions(ctx, userID)
	if err != nil {
		return nil, classify("load portfolio", err)
	}
	bases, err := s.repo.CostBases(ctx, userID)
	if err != nil {
		return nil, classify("load portfolio", err)
	}
	deposits, err := s.repo.DepositTotal(ctx, userID)
	if err != nil {
		return nil, classify("load portfolio", err)
	}

	quotes := make([]*quote.Quote, len(positions))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range positions {
		i, p := i, p
		g.Go(func() error {
			q := s.quotes.Lookup(gctx, p.Symbol)
			if q == nil {
				return errs.New(errs.KindQuoteUnavailable, "could not get a quote for %s", p.Symbol)
			}
			quotes[i] = q
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	v := &Valuation{
		Cash:             user.Cash,
		Positions:        make([]PositionView, 0, len(positions)),
		TotalMarketValue: user.Cash,
		InitialCashBasis: deposits,
	}
	for i, p := range positions {
		view := newPositionView(p, *quotes[i], bases[p.ID])
		v.Positions = append(v.Positions, view)
		v.TotalMarketValue = v.TotalMarketValue.Add(view.Value)
	}
	v.TotalGainLoss = v.TotalMarketValue.Sub(v.InitialCashBasis)
	return v, nil
}
