package ledger

import (
	"context"
	"fmt"

	"github.com/ksred/papertrade/internal/types"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SumHoldings is the signed share total of records: buys add, sells subtract
func SumHoldings(records []types.TransactionRecord) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.SignedShares())
	}
	return total
}

// HeldShares returns the net shares of symbol held by userID, zero when none.
// Pass the settlement transaction as db so the read shares its snapshot.
func HeldShares(ctx context.Context, db *gorm.DB, userID uint, symbol string) (decimal.Decimal, error) {
	var records []types.TransactionRecord
	err := db.WithContext(ctx).
		Select("is_buy", "num_shares").
		Where("user_id = ? AND ticker_symbol = ?", userID, symbol).
		Find(&records).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch transactions for holdings: %w", err)
	}
	return SumHoldings(records), nil
}

// PositionsBySymbol folds records into net shares per symbol, dropping flat positions
func PositionsBySymbol(records []types.TransactionRecord) map[string]decimal.Decimal {
	positions := make(map[string]decimal.Decimal)
	for _, r := range records {
		positions[r.TickerSymbol] = positions[r.TickerSymbol].Add(r.SignedShares())
	}
	for symbol, shares := range positions {
		if !shares.IsPositive() {
			delete(positions, symbol)
		}
	}
	return positions
}
