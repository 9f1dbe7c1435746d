package portfolio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fa-sharp/cs50-finance-plus/errs"
	"github.com/fa-sharp/cs50-finance-plus/ledger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, d(want).Equal(got), "want %s, got %s", want, got)
}

func requireKind(t *testing.T, kind errs.Kind, err error) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, errs.KindOf(err), "error: %v", err)
}

type fixture struct {
	svc       *Service
	repo      *memRepo
	quotes    stubQuoter
	published *recordingPublisher
}

func newFixture(t *testing.T, pageSize int) *fixture {
	t.Helper()
	f := &fixture{
		repo: newMemRepo(),
		quotes: stubQuoter{
			"AAPL": {Symbol: "AAPL", Name: "Apple Inc", Price: d("50"), PriceChange: d("1.5"), PercentChange: d("0.0282")},
			"MSFT": {Symbol: "MSFT", Name: "Microsoft Corp", Price: d("300"), PriceChange: d("-2")},
		},
		published: &recordingPublisher{},
	}
	f.svc = NewService(f.repo, f.quotes, Options{
		InitialDeposit: d("10000"),
		PageSize:       pageSize,
		Publisher:      f.published,
		Cursors:        ledger.NewCursorCodec("cursor-secret", time.Hour),
		HashCost:       bcrypt.MinCost,
	})
	clock := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	f.svc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return f
}

func (f *fixture) register(t *testing.T, username string) uint {
	t.Helper()
	user, err := f.svc.Register(context.Background(), username, "hunter2", "hunter2")
	require.NoError(t, err)
	return user.ID
}

func (f *fixture) setPrice(symbol, price string) {
	f.quotes[symbol].Price = d(price)
}

func (f *fixture) cash(t *testing.T, userID uint) decimal.Decimal {
	t.Helper()
	u, err := f.repo.GetUser(context.Background(), userID)
	require.NoError(t, err)
	return u.Cash
}

func TestRegister(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	user, err := f.svc.Register(ctx, "  alice ", "hunter2", "hunter2")
	require.NoError(t, err)
	require.Equal(t, "alice", user.Username)
	requireDecimal(t, "10000", user.Cash)
	require.NotEqual(t, "hunter2", user.Hash)

	require.Len(t, f.repo.txs, 1)
	require.Equal(t, int64(0), f.repo.txs[0].Shares)
	requireDecimal(t, "10000", f.repo.txs[0].Price)

	_, err = f.svc.Register(ctx, "alice", "other", "other")
	requireKind(t, errs.KindValidation, err)
	require.Len(t, f.repo.users, 1)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	tests := []struct {
		name                       string
		username, password, repeat string
	}{
		{"empty username", " ", "pw", "pw"},
		{"empty password", "bob", "", ""},
		{"mismatch", "bob", "pw", "wp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Register(ctx, tt.username, tt.password, tt.repeat)
			requireKind(t, errs.KindValidation, err)
		})
	}
	require.Empty(t, f.repo.users)
	require.Empty(t, f.repo.txs)
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	id := f.register(t, "alice")

	user, err := f.svc.Authenticate(ctx, "alice", "hunter2")
	require.NoError(t, err)
	require.Equal(t, id, user.ID)

	_, err = f.svc.Authenticate(ctx, "alice", "wrong")
	requireKind(t, errs.KindUnauthorized, err)

	_, err = f.svc.Authenticate(ctx, "nobody", "hunter2")
	requireKind(t, errs.KindUnauthorized, err)

	_, err = f.svc.Authenticate(ctx, "", "")
	requireKind(t, errs.KindUnauthorized, err)
}

func TestTradeWalkthrough(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	id := f.register(t, "alice")

	dep, err := f.svc.Deposit(ctx, id, d("500"))
	require.NoError(t, err)
	requireDecimal(t, "10500", dep.Cash)
	require.Equal(t, "Deposited $500.00 into cash account!", dep.Message())

	buy, err := f.svc.Buy(ctx, id, "aapl", 10)
	require.NoError(t, err)
	require.Equal(t, "AAPL", buy.Symbol)
	requireDecimal(t, "500", buy.Subtotal)
	requireDecimal(t, "10000", buy.Cash)
	require.Equal(t, int64(10), buy.PositionShares)
	require.Equal(t, "Bought 10 shares of AAPL at $50.00 for a total of $500.00!", buy.Message())

	f.setPrice("AAPL", "60")
	sell, err := f.svc.Sell(ctx, id, "AAPL", 4)
	require.NoError(t, err)
	requireDecimal(t, "10240", sell.Cash)
	require.Equal(t, int64(6), sell.PositionShares)

	positions, err := f.repo.ListPositions(ctx, id)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.Equal(t, int64(6), positions[0].Shares)

	sell, err = f.svc.Sell(ctx, id, "AAPL", 6)
	require.NoError(t, err)
	requireDecimal(t, "10600", sell.Cash)
	require.Equal(t, int64(0), sell.PositionShares)

	positions, err = f.repo.ListPositions(ctx, id)
	require.NoError(t, err)
	require.Empty(t, positions)

	// cash always equals the sum of the ledger's cash flows
	requireDecimal(t, "10600", ledger.Balance(f.repo.userTxs(id)))
	requireDecimal(t, "10600", f.cash(t, id))
	require.Len(t, f.repo.txs, 5)
	for _, tx := range f.repo.txs {
		require.Nil(t, tx.PositionID, "transaction %d still linked", tx.ID)
	}

	require.Len(t, f.published.events, 4)
	require.Equal(t, "SELL", f.published.events[3].Action)
	require.Equal(t, int64(-6), f.published.events[3].Shares)
	requireDecimal(t, "360", f.published.events[3].Total)
}

func TestBuyAddsToExistingPosition(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	id := f.register(t, "alice")

	_, err := f.svc.Buy(ctx, id, "AAPL", 2)
	require.NoError(t, err)
	f.setPrice("AAPL", "55.123456")
	buy, err := f.svc.Buy(ctx, id, "AAPL", 3)
	require.NoError(t, err)
	require.Equal(t, int64(5), buy.PositionShares)
	requireDecimal(t, "55.1235", buy.Price)
	requireDecimal(t, "165.3705", buy.Subtotal)
	requireDecimal(t, "9734.6295", f.cash(t, id))
	require.Len(t, f.repo.positions, 1)
}

func TestBuyRejections(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	id := f.register(t, "alice")

	_, err := f.svc.Buy(ctx, id, "", 1)
	requireKind(t, errs.KindValidation, err)
	_, err = f.svc.Buy(ctx, id, "AAPL", 0)
	requireKind(t, errs.KindValidation, err)
	_, err = f.svc.Buy(ctx, id, "NOPE", 1)
	requireKind(t, errs.KindQuoteUnavailable, err)
	_, err = f.svc.Buy(ctx, id, "MSFT", 34)
	requireKind(t, errs.KindInsufficientFunds, err)
	require.True(t, errors.Is(err, errs.ErrInsufficientFunds))

	requireDecimal(t, "10000", f.cash(t, id))
	require.Empty(t, f.repo.positions)
	require.Len(t, f.repo.txs, 1)
	require.Empty(t, f.published.events)
}

func TestSellRejections(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	id := f.register(t, "alice")

	_, err := f.svc.Sell(ctx, id, "AAPL", 1)
	requireKind(t, errs.KindInsufficientShares, err)

	_, err = f.svc.Buy(ctx, id, "AAPL", 3)
	require.NoError(t, err)
	_, err = f.svc.Sell(ctx, id, "AAPL", 4)
	requireKind(t, errs.KindInsufficientShares, err)

	requireDecimal(t, "9850", f.cash(t, id))
	positions, err := f.repo.ListPositions(ctx, id)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.Equal(t, int64(3), positions[0].Shares)
	require.Len(t, f.repo.txs, 2)
}

func TestTradeRollsBackOnPersistenceFailure(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	id := f.register(t, "alice")
	f.repo.fail["AppendTransaction"] = errors.Join(errs.ErrDB, errors.New("connection reset"))

	_, err := f.svc.Buy(ctx, id, "AAPL", 5)
	requireKind(t, errs.KindPersistence, err)
	require.True(t, errors.Is(err, errs.ErrDB))

	requireDecimal(t, "10000", f.cash(t, id))
	require.Empty(t, f.repo.positions)
	require.Len(t, f.repo.txs, 1)
	require.Empty(t, f.published.events)
}

func TestFullSellRollsBackWhenPositionDeleteFails(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	id := f.register(t, "alice")
	_, err := f.svc.Buy(ctx, id, "AAPL", 2)
	require.NoError(t, err)

	f.repo.fail["DeletePosition"] = errs.ErrDB
	_, err = f.svc.Sell(ctx, id, "AAPL", 2)
	requireKind(t, errs.KindPersistence, err)

	requireDecimal(t, "9900", f.cash(t, id))
	require.Len(t, f.repo.positions, 1)
	require.Len(t, f.repo.txs, 2)
}

func TestDeposit(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	id := f.register(t, "alice")

	for _, amount := range []string{"0", "-5", "0.00001"} {
		_, err := f.svc.Deposit(ctx, id, d(amount))
		requireKind(t, errs.KindValidation, err)
	}

	res, err := f.svc.Deposit(ctx, id, d("12.34567"))
	require.NoError(t, err)
	requireDecimal(t, "12.3457", res.Price)
	requireDecimal(t, "10012.3457", f.cash(t, id))

	_, err = f.svc.Deposit(ctx, 999, d("1"))
	requireKind(t, errs.KindNotFound, err)
}

func TestDepositRejectsAmountsBeyondStorageBound(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	id := f.register(t, "alice")

	_, err := f.svc.Deposit(ctx, id, d("1000000000000000"))
	requireKind(t, errs.KindValidation, err)

	_, err = f.svc.Deposit(ctx, id, d("999999999999999"))
	requireKind(t, errs.KindValidation, err)

	requireDecimal(t, "10000", f.cash(t, id))
	require.Len(t, f.repo.txs, 1)
	require.Empty(t, f.published.events)
}

func TestDeleteAccount(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	id := f.register(t, "alice")
	other := f.register(t, "bob")
	_, err := f.svc.Buy(ctx, id, "AAPL", 1)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteAccount(ctx, id))
	require.Empty(t, f.repo.positions)
	require.Len(t, f.repo.txs, 1)
	require.Equal(t, other, f.repo.txs[0].UserID)

	_, err = f.svc.Valuate(ctx, id)
	requireKind(t, errs.KindNotFound, err)
	requireKind(t, errs.KindNotFound, f.svc.DeleteAccount(ctx, id))
}

func TestValuate(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	id := f.register(t, "alice")
	_, err := f.svc.Buy(ctx, id, "AAPL", 10)
	require.NoError(t, err)
	_, err = f.svc.Buy(ctx, id, "MSFT", 1)
	require.NoError(t, err)
	_, err = f.svc.Deposit(ctx, id, d("100"))
	require.NoError(t, err)

	f.setPrice("AAPL", "55")
	v, err := f.svc.Valuate(ctx, id)
	require.NoError(t, err)

	requireDecimal(t, "9300", v.Cash)
	require.Len(t, v.Positions, 2)

	aapl := v.Positions[0]
	require.Equal(t, "AAPL", aapl.Symbol)
	requireDecimal(t, "550", aapl.Value)
	requireDecimal(t, "15", aapl.DayChange)
	requireDecimal(t, "500", aapl.CostBasis)
	requireDecimal(t, "50", aapl.UnrealizedGainLoss)
	require.Equal(t, "Apple Inc", aapl.Quote.Name)
	require.Equal(t, "+2.82%", aapl.DayChangePercent)

	msft := v.Positions[1]
	requireDecimal(t, "300", msft.Value)
	requireDecimal(t, "-2", msft.DayChange)
	requireDecimal(t, "0", msft.UnrealizedGainLoss)

	requireDecimal(t, "10150", v.TotalMarketValue)
	requireDecimal(t, "10100", v.InitialCashBasis)
	requireDecimal(t, "50", v.TotalGainLoss)
}

func TestValuateCostBasisAfterPartialSell(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	id := f.register(t, "alice")
	_, err := f.svc.Buy(ctx, id, "AAPL", 10)
	require.NoError(t, err)
	_, err = f.svc.Sell(ctx, id, "AAPL", 4)
	require.NoError(t, err)

	v, err := f.svc.Valuate(ctx, id)
	require.NoError(t, err)
	require.Len(t, v.Positions, 1)
	requireDecimal(t, "300", v.Positions[0].Value)
	requireDecimal(t, "500", v.Positions[0].CostBasis)
	requireDecimal(t, "-200", v.Positions[0].UnrealizedGainLoss)
}

func TestValuateFailsWhenAnyQuoteIsMissing(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	id := f.register(t, "alice")
	_, err := f.svc.Buy(ctx, id, "AAPL", 1)
	require.NoError(t, err)
	_, err = f.svc.Buy(ctx, id, "MSFT", 1)
	require.NoError(t, err)

	delete(f.quotes, "MSFT")
	_, err = f.svc.Valuate(ctx, id)
	requireKind(t, errs.KindQuoteUnavailable, err)
}

func TestValuateEmptyPortfolio(t *testing.T) {
	f := newFixture(t, 10)
	id := f.register(t, "alice")

	v, err := f.svc.Valuate(context.Background(), id)
	require.NoError(t, err)
	require.Empty(t, v.Positions)
	requireDecimal(t, "10000", v.TotalMarketValue)
	requireDecimal(t, "0", v.TotalGainLoss)
}

var _ Quoter = stubQuoter{}
