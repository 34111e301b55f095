package database

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/ksred/papertrade/internal/config"
	"github.com/ksred/papertrade/internal/database/migrations"
	"github.com/ksred/papertrade/internal/types"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SetupTestDB creates a migrated and seeded sqlite database in a temp dir
func SetupTestDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := Open(config.DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	if err := migrations.SeedCatalog(db); err != nil {
		t.Fatalf("Failed to seed test database: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// CreateTestUser creates a user with a unique username and returns its id
func CreateTestUser(t testing.TB, db *gorm.DB, username string) uint {
	t.Helper()

	user := types.User{
		Username:     fmt.Sprintf("%s_%d", username, time.Now().UnixNano()),
		PasswordHash: "not-a-real-hash",
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user.UserID
}

// CreateTestAccount creates an account for userID holding balance
func CreateTestAccount(t testing.TB, db *gorm.DB, userID uint, balance string) types.Account {
	t.Helper()

	account := types.Account{
		UserID:  userID,
		Balance: decimal.RequireFromString(balance),
	}
	if err := db.Create(&account).Error; err != nil {
		t.Fatalf("Failed to create test account: %v", err)
	}
	return account
}

// CreateTestHolding records a buy so that userID holds shares of symbol
func CreateTestHolding(t testing.TB, db *gorm.DB, userID, accountID uint, symbol, shares string) {
	t.Helper()

	record := types.TransactionRecord{
		UserID:       userID,
		AccountID:    accountID,
		TickerSymbol: symbol,
		IsBuy:        true,
		CostPerShare: decimal.NewFromInt(1),
		NumShares:    decimal.RequireFromString(shares),
		ExchangeID:   1,
	}
	if err := db.Create(&record).Error; err != nil {
		t.Fatalf("Failed to create test holding: %v", err)
	}
}

// AccountBalance reads the current balance of accountID
func AccountBalance(t testing.TB, db *gorm.DB, accountID uint) decimal.Decimal {
	t.Helper()

	var account types.Account
	if err := db.First(&account, "account_id = ?", accountID).Error; err != nil {
		t.Fatalf("Failed to query balance: %v", err)
	}
	return account.Balance
}

// CountTransactions counts transaction records for userID
func CountTransactions(t testing.TB, db *gorm.DB, userID uint) int64 {
	t.Helper()

	var count int64
	if err := db.Model(&types.TransactionRecord{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		t.Fatalf("Failed to count transactions: %v", err)
	}
	return count
}
