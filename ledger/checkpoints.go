package ledger

import (
	"github.com/fa-sharp/cs50-finance-plus/errs"
	"github.com/shopspring/decimal"
)

// Checkpoints holds the running balance at each page boundary visited so far.
// Element i is the opening balance of page i+1.
type Checkpoints []decimal.Decimal

type Direction int

const (
	Forward Direction = iota
	Backward
)

func (d Direction) String() string {
	if d == Backward {
		return "prev"
	}
	return "next"
}

// Navigation is the resolved position of a history request.
type Navigation struct {
	Page      int
	Direction Direction
	Opening   decimal.Decimal

	base Checkpoints
}

// Navigate resolves the opening balance of page from the caller's checkpoints.
//
// Page 1 always restarts from a single zero checkpoint. Otherwise the
// checkpoints must either end at page (moving forward, len == page) or carry
// one page too many (moving back, len == page+2).
func Navigate(cps Checkpoints, page int) (Navigation, error) {
	if page < 1 {
		return Navigation{}, errs.Validation("page must be a positive integer")
	}
	if page == 1 {
		return Navigation{Page: 1, Direction: Forward, Opening: decimal.Zero, base: Checkpoints{decimal.Zero}}, nil
	}

	switch len(cps) {
	case page:
		return Navigation{Page: page, Direction: Forward, Opening: cps[len(cps)-1], base: clone(cps)}, nil
	case page + 2:
		return Navigation{Page: page, Direction: Backward, Opening: cps[len(cps)-3], base: clone(cps)}, nil
	}
	return Navigation{}, errs.PaginationState("cannot move to page %d from %d saved checkpoints, restart from page 1", page, len(cps))
}

// Advance returns the checkpoints to keep once the page has been rendered
// with closing as the balance after its last row.
func (n Navigation) Advance(closing decimal.Decimal) Checkpoints {
	if n.Direction == Backward {
		return n.base[:len(n.base)-1]
	}
	return append(n.base, closing)
}

func clone(cps Checkpoints) Checkpoints {
	out := make(Checkpoints, len(cps), len(cps)+1)
	copy(out, cps)
	return out
}
