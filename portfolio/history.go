package portfolio

import (
	"context"
	"log/slog"

	"github.com/fa-sharp/cs50-finance-plus/errs"
	"github.com/fa-sharp/cs50-finance-plus/ledger"
)

type HistoryPage struct {
	Entries     []ledger.Entry     `json:"transactions"`
	Page        int                `json:"page"`
	HasNext     bool               `json:"has_next"`
	HasPrev     bool               `json:"has_prev"`
	Checkpoints ledger.Checkpoints `json:"-"`
}

// History renders one page of the user's transactions with running cash
// balances. cps are the checkpoints saved from the previous call in this
// session; the returned page carries the checkpoints to save for the next.
func (s *Service) History(ctx context.Context, userID uint, page int, cps ledger.Checkpoints) (*HistoryPage, error) {
	nav, err := ledger.Navigate(cps, page)
	if err != nil {
		return nil, err
	}

	total, err := s.repo.CountTransactions(ctx, userID)
	if err != nil {
		return nil, classify("load history", err)
	}
	offset := (nav.Page - 1) * s.pageSize
	rows, err := s.repo.TransactionsPage(ctx, userID, offset, s.pageSize)
	if err != nil {
		return nil, classify("load history", err)
	}

	entries, closing := ledger.Replay(rows, nav.Opening)
	slog.Debug("Rendered history page", "user_id", userID, "page", nav.Page, "direction", nav.Direction, "rows", len(rows))
	return &HistoryPage{
		Entries:     entries,
		Page:        nav.Page,
		HasNext:     int64(offset+len(rows)) < total,
		HasPrev:     nav.Page > 1,
		Checkpoints: nav.Advance(closing),
	}, nil
}

type KeysetPage struct {
	Entries []ledger.Entry `json:"transactions"`
	Next    string         `json:"next_cursor,omitempty"`
	HasNext bool           `json:"has_next"`
	HasPrev bool           `json:"has_prev"`
}

// HistoryAfter pages forward from a signed cursor without any server-side
// state. An empty cursor starts at the first transaction.
func (s *Service) HistoryAfter(ctx context.Context, userID uint, cursor string) (*KeysetPage, error) {
	if s.cursors == nil {
		return nil, errs.PaginationState("cursor pagination is not enabled")
	}
	cur, err := s.cursors.Decode(userID, cursor)
	if err != nil {
		return nil, err
	}

	rows, err := s.repo.TransactionsAfter(ctx, userID, cur, s.pageSize+1)
	if err != nil {
		return nil, classify("load history", err)
	}
	hasNext := len(rows) > s.pageSize
	if hasNext {
		rows = rows[:s.pageSize]
	}

	entries, closing := ledger.Replay(rows, cur.Balance)
	page := &KeysetPage{Entries: entries, HasNext: hasNext, HasPrev: !cur.IsStart()}
	if hasNext {
		last := rows[len(rows)-1]
		page.Next, err = s.cursors.Encode(userID, ledger.Cursor{AfterID: last.ID, AfterTime: last.Timestamp, Balance: closing})
		if err != nil {
			return nil, errs.Persistence("encode history cursor", err)
		}
	}
	return page, nil
}
