package migrations

import (
	"gorm.io/gorm"
)

// AddLedgerIndexes creates the indexes behind the hot settlement queries
func AddLedgerIndexes(db *gorm.DB) error {
	indexes := []string{
		// Holdings are summed per (user, symbol)
		`CREATE INDEX IF NOT EXISTS idx_transaction_records_user_symbol
		 ON transaction_records(user_id, ticker_symbol)`,

		`CREATE INDEX IF NOT EXISTS idx_transaction_records_account
		 ON transaction_records(account_id)`,

		// The trigger sweep scans by status
		`CREATE INDEX IF NOT EXISTS idx_pending_orders_status
		 ON pending_orders(status)`,

		`CREATE INDEX IF NOT EXISTS idx_pending_orders_user_status
		 ON pending_orders(user_id, status)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
