package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ksred/papertrade/internal/database"
	"github.com/ksred/papertrade/internal/types"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// GetAccount returns the account owned by userID, or nil when there is none
func (d *Database) GetAccount(ctx context.Context, accountID, userID uint) (*types.Account, error) {
	return findAccount(d.db.WithContext(ctx), accountID, userID)
}

func (d *Database) ListAccounts(ctx context.Context, userID uint) ([]types.Account, error) {
	var accounts []types.Account
	if err := d.db.WithContext(ctx).Where("user_id = ?", userID).Order("account_id").Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch accounts: %w", err)
	}
	return accounts, nil
}

func (d *Database) CreateAccount(ctx context.Context, account *types.Account) error {
	return d.db.WithContext(ctx).Create(account).Error
}

func (d *Database) GetTransactions(ctx context.Context, userID uint, limit int) ([]types.TransactionRecord, error) {
	var records []types.TransactionRecord
	q := d.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch transactions: %w", err)
	}
	return records, nil
}

func (d *Database) GetAllTransactions(ctx context.Context, userID uint) ([]types.TransactionRecord, error) {
	return d.GetTransactions(ctx, userID, 0)
}

func (d *Database) GetPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	prices := make(map[string]decimal.Decimal, len(symbols))
	if len(symbols) == 0 {
		return prices, nil
	}

	var rows []types.StockPrice
	if err := d.db.WithContext(ctx).Where("ticker_symbol IN ?", symbols).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch prices: %w", err)
	}
	for _, row := range rows {
		prices[row.TickerSymbol] = row.CurrentPrice
	}
	return prices, nil
}

func findAccount(db *gorm.DB, accountID, userID uint) (*types.Account, error) {
	var account types.Account
	err := db.Where("account_id = ? AND user_id = ?", accountID, userID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch account: %w", err)
	}
	return &account, nil
}

// LockAccount reads the account owned by userID with a row lock where the store supports one.
// Returns nil when the account does not exist or belongs to someone else.
func LockAccount(tx *gorm.DB, accountID, userID uint) (*types.Account, error) {
	return findAccount(tx.Clauses(clause.Locking{Strength: "UPDATE"}), accountID, userID)
}

// LockUserAccounts locks every account of userID in id order
func LockUserAccounts(tx *gorm.DB, userID uint) ([]types.Account, error) {
	var accounts []types.Account
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		Order("account_id").
		Find(&accounts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to lock accounts: %w", err)
	}
	return accounts, nil
}

// UpdateBalance writes balance only if the account is unchanged since it was read.
// A lost race returns database.ErrConflict.
func UpdateBalance(tx *gorm.DB, account *types.Account, balance decimal.Decimal) error {
	result := tx.Model(&types.Account{}).
		Where("account_id = ? AND version = ?", account.AccountID, account.Version).
		Updates(map[string]interface{}{
			"balance": balance,
			"version": account.Version + 1,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update balance: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return database.ErrConflict
	}

	account.Balance = balance
	account.Version++
	return nil
}
