package portfolio

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fa-sharp/cs50-finance-plus/errs"
	"github.com/fa-sharp/cs50-finance-plus/events"
	"github.com/fa-sharp/cs50-finance-plus/ledger"
	"github.com/fa-sharp/cs50-finance-plus/models"
	"github.com/fa-sharp/cs50-finance-plus/quote"
	"github.com/shopspring/decimal"
)

// memRepo is an in-memory Repository. Atomic restores the previous state
// when fn fails, and fail injects an error into a named method.
type memRepo struct {
	users     map[uint]models.User
	positions map[uint]models.Position
	txs       []models.Transaction
	nextID    uint
	fail      map[string]error
}

func newMemRepo() *memRepo {
	return &memRepo{
		users:     map[uint]models.User{},
		positions: map[uint]models.Position{},
		fail:      map[string]error{},
	}
}

func (r *memRepo) check(method string) error {
	if err, ok := r.fail[method]; ok {
		return err
	}
	return nil
}

func (r *memRepo) id() uint {
	r.nextID++
	return r.nextID
}

func notFound(what string) error {
	return fmt.Errorf("%w: %s", errs.ErrRecordNotFound, what)
}

func (r *memRepo) Atomic(ctx context.Context, fn func(tx Repository) error) error {
	users := make(map[uint]models.User, len(r.users))
	for k, v := range r.users {
		users[k] = v
	}
	positions := make(map[uint]models.Position, len(r.positions))
	for k, v := range r.positions {
		positions[k] = v
	}
	txs := append([]models.Transaction(nil), r.txs...)
	nextID := r.nextID

	if err := fn(r); err != nil {
		r.users, r.positions, r.txs, r.nextID = users, positions, txs, nextID
		return err
	}
	return nil
}

func (r *memRepo) CreateUser(ctx context.Context, user *models.User) error {
	if err := r.check("CreateUser"); err != nil {
		return err
	}
	for _, u := range r.users {
		if u.Username == user.Username {
			return fmt.Errorf("%w: username", errs.ErrDuplicated)
		}
	}
	user.ID = r.id()
	r.users[user.ID] = *user
	return nil
}

func (r *memRepo) GetUser(ctx context.Context, userID uint) (*models.User, error) {
	if err := r.check("GetUser"); err != nil {
		return nil, err
	}
	u, ok := r.users[userID]
	if !ok {
		return nil, notFound("user")
	}
	return &u, nil
}

func (r *memRepo) GetUserForUpdate(ctx context.Context, userID uint) (*models.User, error) {
	return r.GetUser(ctx, userID)
}

func (r *memRepo) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	for _, u := range r.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, notFound("user")
}

func (r *memRepo) UpdateCash(ctx context.Context, userID uint, cash decimal.Decimal) error {
	if err := r.check("UpdateCash"); err != nil {
		return err
	}
	u := r.users[userID]
	u.Cash = cash
	r.users[userID] = u
	return nil
}

func (r *memRepo) DeleteUser(ctx context.Context, userID uint) error {
	if _, ok := r.users[userID]; !ok {
		return notFound("user")
	}
	delete(r.users, userID)
	for id, p := range r.positions {
		if p.UserID == userID {
			delete(r.positions, id)
		}
	}
	kept := r.txs[:0]
	for _, tx := range r.txs {
		if tx.UserID != userID {
			kept = append(kept, tx)
		}
	}
	r.txs = kept
	return nil
}

func (r *memRepo) ListPositions(ctx context.Context, userID uint) ([]models.Position, error) {
	var out []models.Position
	for _, p := range r.positions {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (r *memRepo) GetPositionForUpdate(ctx context.Context, userID uint, symbol string) (*models.Position, error) {
	for _, p := range r.positions {
		if p.UserID == userID && p.Symbol == symbol {
			return &p, nil
		}
	}
	return nil, notFound("position")
}

func (r *memRepo) CreatePosition(ctx context.Context, position *models.Position) error {
	if err := r.check("CreatePosition"); err != nil {
		return err
	}
	position.ID = r.id()
	r.positions[position.ID] = *position
	return nil
}

func (r *memRepo) UpdatePositionShares(ctx context.Context, positionID uint, shares int64) error {
	p := r.positions[positionID]
	p.Shares = shares
	r.positions[positionID] = p
	return nil
}

func (r *memRepo) DeletePosition(ctx context.Context, positionID uint) error {
	if err := r.check("DeletePosition"); err != nil {
		return err
	}
	delete(r.positions, positionID)
	for i := range r.txs {
		if r.txs[i].PositionID != nil && *r.txs[i].PositionID == positionID {
			r.txs[i].PositionID = nil
		}
	}
	return nil
}

func (r *memRepo) AppendTransaction(ctx context.Context, tx *models.Transaction) error {
	if err := r.check("AppendTransaction"); err != nil {
		return err
	}
	tx.ID = r.id()
	row := *tx
	if tx.PositionID != nil {
		pid := *tx.PositionID
		row.PositionID = &pid
	}
	r.txs = append(r.txs, row)
	return nil
}

func (r *memRepo) CostBases(ctx context.Context, userID uint) (map[uint]decimal.Decimal, error) {
	out := map[uint]decimal.Decimal{}
	for _, tx := range r.txs {
		if tx.UserID == userID && tx.PositionID != nil && tx.Shares > 0 {
			out[*tx.PositionID] = out[*tx.PositionID].Add(tx.Price.Mul(decimal.NewFromInt(tx.Shares)))
		}
	}
	return out, nil
}

func (r *memRepo) DepositTotal(ctx context.Context, userID uint) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, tx := range r.txs {
		if tx.UserID == userID && tx.Shares == 0 {
			total = total.Add(tx.Price)
		}
	}
	return total, nil
}

func (r *memRepo) userTxs(userID uint) []models.Transaction {
	var out []models.Transaction
	for _, tx := range r.txs {
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

func (r *memRepo) CountTransactions(ctx context.Context, userID uint) (int64, error) {
	if err := r.check("CountTransactions"); err != nil {
		return 0, err
	}
	return int64(len(r.userTxs(userID))), nil
}

func (r *memRepo) TransactionsPage(ctx context.Context, userID uint, offset, limit int) ([]models.Transaction, error) {
	all := r.userTxs(userID)
	if offset >= len(all) {
		return nil, nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], nil
}

func (r *memRepo) TransactionsAfter(ctx context.Context, userID uint, after ledger.Cursor, limit int) ([]models.Transaction, error) {
	var out []models.Transaction
	for _, tx := range r.userTxs(userID) {
		if !after.IsStart() {
			if tx.Timestamp.Before(after.AfterTime) || (tx.Timestamp.Equal(after.AfterTime) && tx.ID <= after.AfterID) {
				continue
			}
		}
		out = append(out, tx)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

var _ Repository = (*memRepo)(nil)

type stubQuoter map[string]*quote.Quote

func (q stubQuoter) Lookup(ctx context.Context, symbol string) *quote.Quote {
	if found, ok := q[symbol]; ok {
		c := *found
		return &c
	}
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.TradeEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event events.TradeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }
