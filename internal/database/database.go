package database

import (
	"fmt"
	"strings"

	"github.com/ksred/papertrade/internal/config"
	"github.com/ksred/papertrade/internal/database/migrations"
	"github.com/ksred/papertrade/internal/types"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase opens the configured store, migrates it and seeds the catalog when enabled
func NewDatabase(cfg config.Config) (*gorm.DB, error) {
	db, err := Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	if cfg.SeedCatalog {
		if err := migrations.SeedCatalog(db); err != nil {
			return nil, fmt.Errorf("failed to seed catalog: %w", err)
		}
	}

	return db, nil
}

// Open connects to sqlite or postgres through gorm.
// SQLite gets a single connection: it has no row locks, so writers are serialized at the pool.
func Open(driver, dsn string) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	var dialector gorm.Dialector
	switch driver {
	case config.DriverSQLite:
		dialector = sqlite.Open(sqliteDSN(dsn))
	case config.DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	if driver == config.DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
	}

	return db, nil
}

// Migrate creates or updates every table and index the service uses
func Migrate(db *gorm.DB) error {
	// Order matters: foreign keys point at users and accounts
	err := db.AutoMigrate(
		&types.User{},
		&types.Account{},
		&types.TransactionRecord{},
		&types.PendingOrder{},
		&types.Stock{},
		&types.Exchange{},
		&types.StockPrice{},
		&types.IdempotencyRecord{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto-migrate: %w", err)
	}

	if err := migrations.AddLedgerIndexes(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_busy_timeout") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_busy_timeout=5000&_foreign_keys=on"
}
