package trading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ksred/papertrade/internal/types"
	"gorm.io/gorm"
)

const idempotencyTTL = 24 * time.Hour

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// GetAccount returns the account owned by userID, or nil when there is none
func (d *Database) GetAccount(ctx context.Context, accountID, userID uint) (*types.Account, error) {
	var account types.Account
	err := d.db.WithContext(ctx).Where("account_id = ? AND user_id = ?", accountID, userID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch account: %w", err)
	}
	return &account, nil
}

func (d *Database) ListOrders(ctx context.Context, userID uint, status types.OrderStatus) ([]types.PendingOrder, error) {
	var orders []types.PendingOrder
	q := d.db.WithContext(ctx).Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Order("created_at DESC, order_id DESC").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch orders: %w", err)
	}
	return orders, nil
}

func (d *Database) CountOrdersByStatus(ctx context.Context, userID uint) (map[types.OrderStatus]int64, error) {
	var rows []struct {
		Status types.OrderStatus
		Count  int64
	}
	err := d.db.WithContext(ctx).
		Model(&types.PendingOrder{}).
		Select("status, COUNT(*) AS count").
		Where("user_id = ?", userID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}

	counts := make(map[types.OrderStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// GetIdempotencyRecord returns the live record for key, or nil
func (d *Database) GetIdempotencyRecord(ctx context.Context, userID uint, key string) (*types.IdempotencyRecord, error) {
	var record types.IdempotencyRecord
	err := d.db.WithContext(ctx).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch idempotency record: %w", err)
	}
	if !record.ExpiresAt.After(time.Now()) {
		return nil, nil
	}
	return &record, nil
}

// SaveIdempotencyRecord stores the response produced for key, replacing an expired record
func (d *Database) SaveIdempotencyRecord(ctx context.Context, record *types.IdempotencyRecord) error {
	now := time.Now()
	record.ExpiresAt = now.Add(idempotencyTTL)

	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing types.IdempotencyRecord
		err := tx.Where("user_id = ? AND idempotency_key = ?", record.UserID, record.IdempotencyKey).First(&existing).Error
		switch {
		case err == nil && !existing.ExpiresAt.After(now):
			if err := tx.Delete(&existing).Error; err != nil {
				return fmt.Errorf("failed to clear expired idempotency record: %w", err)
			}
		case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("failed to fetch idempotency record: %w", err)
		}

		if err := tx.Create(record).Error; err != nil {
			return fmt.Errorf("failed to save idempotency record: %w", err)
		}
		return nil
	})
}
