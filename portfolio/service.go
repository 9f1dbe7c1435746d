// Package portfolio implements the trading simulator's ledger operations:
// registering accounts, depositing cash, buying and selling at quoted prices,
// valuing holdings and paging through the transaction history.
//
// Every operation that changes state runs as one atomic unit through
// Repository.Atomic; quote lookups always happen before that unit starts.
package portfolio

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/fa-sharp/cs50-finance-plus/errs"
	"github.com/fa-sharp/cs50-finance-plus/events"
	"github.com/fa-sharp/cs50-finance-plus/ledger"
	"github.com/fa-sharp/cs50-finance-plus/models"
	"github.com/fa-sharp/cs50-finance-plus/quote"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

// Repository is the persistence the service needs.
type Repository interface {
	// Atomic runs fn in one store transaction; all changes made through tx
	// are committed together or not at all.
	Atomic(ctx context.Context, fn func(tx Repository) error) error

	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, userID uint) (*models.User, error)
	// GetUserForUpdate reads the user and locks the row until the enclosing
	// atomic unit ends.
	GetUserForUpdate(ctx context.Context, userID uint) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	UpdateCash(ctx context.Context, userID uint, cash decimal.Decimal) error
	DeleteUser(ctx context.Context, userID uint) error

	ListPositions(ctx context.Context, userID uint) ([]models.Position, error)
	GetPositionForUpdate(ctx context.Context, userID uint, symbol string) (*models.Position, error)
	CreatePosition(ctx context.Context, position *models.Position) error
	UpdatePositionShares(ctx context.Context, positionID uint, shares int64) error
	DeletePosition(ctx context.Context, positionID uint) error

	AppendTransaction(ctx context.Context, tx *models.Transaction) error
	CostBases(ctx context.Context, userID uint) (map[uint]decimal.Decimal, error)
	DepositTotal(ctx context.Context, userID uint) (decimal.Decimal, error)
	CountTransactions(ctx context.Context, userID uint) (int64, error)
	TransactionsPage(ctx context.Context, userID uint, offset, limit int) ([]models.Transaction, error)
	TransactionsAfter(ctx context.Context, userID uint, after ledger.Cursor, limit int) ([]models.Transaction, error)
}

// Quoter returns a live quote, or nil when the symbol cannot be quoted.
type Quoter interface {
	Lookup(ctx context.Context, symbol string) *quote.Quote
}

type Options struct {
	InitialDeposit decimal.Decimal
	PageSize       int
	Publisher      events.Publisher
	Cursors        *ledger.CursorCodec
	// HashCost is the bcrypt cost; zero means bcrypt.DefaultCost.
	HashCost int
}

type Service struct {
	repo           Repository
	quotes         Quoter
	publisher      events.Publisher
	cursors        *ledger.CursorCodec
	initialDeposit decimal.Decimal
	pageSize       int
	hashCost       int
	now            func() time.Time
}

func NewService(repo Repository, quotes Quoter, opts Options) *Service {
	s := &Service{
		repo:           repo,
		quotes:         quotes,
		publisher:      opts.Publisher,
		cursors:        opts.Cursors,
		initialDeposit: opts.InitialDeposit,
		pageSize:       opts.PageSize,
		hashCost:       opts.HashCost,
		now:            func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
	if s.publisher == nil {
		s.publisher = events.Noop{}
	}
	if s.pageSize <= 0 {
		s.pageSize = 10
	}
	if s.hashCost == 0 {
		s.hashCost = bcrypt.DefaultCost
	}
	if !s.initialDeposit.IsPositive() {
		s.initialDeposit = decimal.NewFromInt(10000)
	}
	return s
}

// Register creates a user holding the initial deposit, together with the
// deposit transaction that accounts for it.
func (s *Service) Register(ctx context.Context, username, password, confirmation string) (*models.User, error) {
	username = strings.TrimSpace(username)
	switch {
	case username == "":
		return nil, errs.Validation("must provide username")
	case password == "":
		return nil, errs.Validation("must provide password")
	case password != confirmation:
		return nil, errs.Validation("passwords must match")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return nil, errs.Persistence("hash password", err)
	}

	user := &models.User{
		Username:  username,
		Hash:      string(hash),
		Cash:      s.initialDeposit,
		CreatedAt: s.now(),
	}
	err = s.repo.Atomic(ctx, func(tx Repository) error {
		if _, err := tx.GetUserByUsername(ctx, username); err == nil {
			return errs.Validation("username already exists")
		} else if !errors.Is(err, errs.ErrRecordNotFound) {
			return err
		}
		if err := tx.CreateUser(ctx, user); err != nil {
			if errors.Is(err, errs.ErrDuplicated) {
				return errs.Validation("username already exists")
			}
			return err
		}
		return tx.AppendTransaction(ctx, &models.Transaction{
			UserID:    user.ID,
			Shares:    0,
			Price:     s.initialDeposit,
			Timestamp: user.CreatedAt,
		})
	})
	if err != nil {
		return nil, classify("register", err)
	}

	slog.Info("Registered user", "user_id", user.ID, "username", username)
	return user, nil
}

// Authenticate checks a username/password pair.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	if username == "" || password == "" {
		return nil, errs.New(errs.KindUnauthorized, "must provide username and password")
	}
	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, errs.ErrRecordNotFound) {
			return nil, errs.New(errs.KindUnauthorized, "invalid username and/or password")
		}
		return nil, classify("authenticate", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Hash), []byte(password)); err != nil {
		return nil, errs.New(errs.KindUnauthorized, "invalid username and/or password")
	}
	return user, nil
}

// DeleteAccount removes the user with all positions and transactions.
func (s *Service) DeleteAccount(ctx context.Context, userID uint) error {
	if err := s.repo.DeleteUser(ctx, userID); err != nil {
		return classify("delete account", err)
	}
	slog.Info("Deleted user", "user_id", userID)
	return nil
}

// classify turns a failure inside an operation into a structured error.
// Errors that already carry a kind pass through; missing records become
// not_found; everything else is a logged persistence failure.
func classify(op string, err error) error {
	var e *errs.Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, errs.ErrRecordNotFound) {
		return &errs.Error{Kind: errs.KindNotFound, Message: "account not found", Err: err}
	}
	slog.Error("Operation failed, changes rolled back", "op", op, "error", err)
	return errs.Persistence("server error while trying to "+op, err)
}

func (s *Service) publish(ctx context.Context, event events.TradeEvent) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		slog.Warn("Failed to publish trade event", "transaction_id", event.TransactionID, "error", err)
	}
}
