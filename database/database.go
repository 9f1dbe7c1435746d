package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fa-sharp/cs50-finance-plus/errs"
	"github.com/fa-sharp/cs50-finance-plus/ledger"
	"github.com/fa-sharp/cs50-finance-plus/models"
	"github.com/fa-sharp/cs50-finance-plus/portfolio"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AutoMigrate creates or updates the tables and constraints of every model.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Position{},
		&models.Transaction{},
		&models.StockPrice{},
	); err != nil {
		return fmt.Errorf("%w: %s", errs.ErrDB, err.Error())
	}
	return nil
}

// Repository is the gorm-backed store of users, positions, transactions and
// price snapshots.
type Repository struct {
	db *gorm.DB
}

var _ portfolio.Repository = (*Repository)(nil)

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func wrap(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %s", errs.ErrRecordNotFound, err.Error())
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %s", errs.ErrDuplicated, err.Error())
	default:
		return fmt.Errorf("%w: %s", errs.ErrDB, err.Error())
	}
}

// Atomic runs fn in a single database transaction. Any error returned by fn,
// or a panic inside it, rolls back every change made through tx.
func (r *Repository) Atomic(ctx context.Context, fn func(tx portfolio.Repository) error) error {
	var fnErr error
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(&Repository{db: tx})
		return fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return fmt.Errorf("%w: commit: %s", errs.ErrDB, err.Error())
	}
	return nil
}

func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	return wrap(r.db.WithContext(ctx).Create(user).Error)
}

func (r *Repository) GetUser(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return nil, wrap(err)
	}
	return &user, nil
}

func (r *Repository) GetUserForUpdate(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&user, userID).Error
	if err != nil {
		return nil, wrap(err)
	}
	return &user, nil
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, wrap(err)
	}
	return &user, nil
}

func (r *Repository) UpdateCash(ctx context.Context, userID uint, cash decimal.Decimal) error {
	result := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("cash", cash)
	if result.Error != nil {
		return wrap(result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: user %d", errs.ErrRecordNotFound, userID)
	}
	return nil
}

// DeleteUser removes the user; positions and transactions go with it through
// ON DELETE CASCADE.
func (r *Repository) DeleteUser(ctx context.Context, userID uint) error {
	result := r.db.WithContext(ctx).Delete(&models.User{}, userID)
	if result.Error != nil {
		return wrap(result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: user %d", errs.ErrRecordNotFound, userID)
	}
	return nil
}

func (r *Repository) ListPositions(ctx context.Context, userID uint) ([]models.Position, error) {
	var positions []models.Position
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("symbol ASC").
		Find(&positions).Error
	if err != nil {
		return nil, wrap(err)
	}
	return positions, nil
}

func (r *Repository) GetPositionForUpdate(ctx context.Context, userID uint, symbol string) (*models.Position, error) {
	var position models.Position
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND symbol = ?", userID, symbol).
		First(&position).Error
	if err != nil {
		return nil, wrap(err)
	}
	return &position, nil
}

func (r *Repository) CreatePosition(ctx context.Context, position *models.Position) error {
	return wrap(r.db.WithContext(ctx).Create(position).Error)
}

func (r *Repository) UpdatePositionShares(ctx context.Context, positionID uint, shares int64) error {
	result := r.db.WithContext(ctx).Model(&models.Position{}).Where("id = ?", positionID).Update("shares", shares)
	if result.Error != nil {
		return wrap(result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: position %d", errs.ErrRecordNotFound, positionID)
	}
	return nil
}

// DeletePosition removes a position; transactions linked to it are detached
// by the ON DELETE SET NULL constraint.
func (r *Repository) DeletePosition(ctx context.Context, positionID uint) error {
	result := r.db.WithContext(ctx).Delete(&models.Position{}, positionID)
	if result.Error != nil {
		return wrap(result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: position %d", errs.ErrRecordNotFound, positionID)
	}
	return nil
}

func (r *Repository) AppendTransaction(ctx context.Context, tx *models.Transaction) error {
	return wrap(r.db.WithContext(ctx).Create(tx).Error)
}

// CostBases sums price*shares of the buys still linked to each position.
func (r *Repository) CostBases(ctx context.Context, userID uint) (map[uint]decimal.Decimal, error) {
	rows, err := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Select("position_id, SUM(price * shares)").
		Where("user_id = ? AND position_id IS NOT NULL AND shares > 0", userID).
		Group("position_id").
		Rows()
	if err != nil {
		return nil, wrap(err)
	}
	defer rows.Close()

	bases := make(map[uint]decimal.Decimal)
	for rows.Next() {
		var positionID uint
		var basis decimal.Decimal
		if err := rows.Scan(&positionID, &basis); err != nil {
			return nil, wrap(err)
		}
		bases[positionID] = basis
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(err)
	}
	return bases, nil
}

// DepositTotal sums the amounts of the user's cash-only transactions.
func (r *Repository) DepositTotal(ctx context.Context, userID uint) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Select("COALESCE(SUM(price), 0)").
		Where("user_id = ? AND shares = 0", userID).
		Row().
		Scan(&total)
	if err != nil {
		return decimal.Zero, wrap(err)
	}
	return total, nil
}

func (r *Repository) CountTransactions(ctx context.Context, userID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Transaction{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return 0, wrap(err)
	}
	return count, nil
}

func (r *Repository) TransactionsPage(ctx context.Context, userID uint, offset, limit int) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&txs).Error
	if err != nil {
		return nil, wrap(err)
	}
	return txs, nil
}

// TransactionsAfter returns up to limit rows strictly after the cursor in
// (timestamp, id) order.
func (r *Repository) TransactionsAfter(ctx context.Context, userID uint, after ledger.Cursor, limit int) ([]models.Transaction, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if !after.IsStart() {
		q = q.Where("(timestamp, id) > (?, ?)", after.AfterTime, after.AfterID)
	}

	var txs []models.Transaction
	if err := q.Order("timestamp ASC, id ASC").Limit(limit).Find(&txs).Error; err != nil {
		return nil, wrap(err)
	}
	return txs, nil
}

func (r *Repository) RecordPrice(ctx context.Context, price *models.StockPrice) error {
	return wrap(r.db.WithContext(ctx).Create(price).Error)
}

func (r *Repository) PriceHistory(ctx context.Context, symbol string, limit int) ([]models.StockPrice, error) {
	var prices []models.StockPrice
	err := r.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("recorded_at DESC").
		Limit(limit).
		Find(&prices).Error
	if err != nil {
		return nil, wrap(err)
	}
	return prices, nil
}

// DeleteSnapshotsBefore prunes price snapshots recorded before cutoff.
func (r *Repository) DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("recorded_at < ?", cutoff).Delete(&models.StockPrice{})
	if result.Error != nil {
		return 0, wrap(result.Error)
	}
	return result.RowsAffected, nil
}
