package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ksred/papertrade/internal/types"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// GetPendingOrders returns every PENDING order, oldest first
func (d *Database) GetPendingOrders(ctx context.Context) ([]types.PendingOrder, error) {
	var orders []types.PendingOrder
	err := d.db.WithContext(ctx).
		Where("status = ?", types.OrderStatusPending).
		Order("created_at, order_id").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending orders: %w", err)
	}
	return orders, nil
}

func (d *Database) GetOrder(ctx context.Context, orderID uint) (*types.PendingOrder, error) {
	return findOrder(d.db.WithContext(ctx), orderID)
}

func findOrder(db *gorm.DB, orderID uint) (*types.PendingOrder, error) {
	var order types.PendingOrder
	if err := db.Where("order_id = ?", orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch order: %w", err)
	}
	return &order, nil
}

func insertTransaction(tx *gorm.DB, record *types.TransactionRecord) error {
	if err := tx.Create(record).Error; err != nil {
		return fmt.Errorf("failed to record transaction: %w", err)
	}
	return nil
}

func insertPendingOrder(tx *gorm.DB, order *types.PendingOrder) error {
	if err := tx.Create(order).Error; err != nil {
		return fmt.Errorf("failed to create pending order: %w", err)
	}
	return nil
}

// transition moves an order out of PENDING. It reports false when the order
// is not PENDING any more, or does not belong to userID when userID is non-zero.
func transition(tx *gorm.DB, orderID, userID uint, to types.OrderStatus, fields map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range fields {
		updates[k] = v
	}

	q := tx.Model(&types.PendingOrder{}).Where("order_id = ? AND status = ?", orderID, types.OrderStatusPending)
	if userID != 0 {
		q = q.Where("user_id = ?", userID)
	}

	result := q.Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("failed to update order status: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// claimForFill marks the order EXECUTED at price. The caller's transaction
// decides whether the claim sticks.
func claimForFill(tx *gorm.DB, orderID uint, price decimal.Decimal, at time.Time) (bool, error) {
	return transition(tx, orderID, 0, types.OrderStatusExecuted, map[string]interface{}{
		"executed_at":    at,
		"executed_price": decimal.NewNullDecimal(price),
	})
}

func attachTransaction(tx *gorm.DB, orderID, transactionID uint) error {
	err := tx.Model(&types.PendingOrder{}).
		Where("order_id = ?", orderID).
		Update("transaction_id", transactionID).Error
	if err != nil {
		return fmt.Errorf("failed to link transaction to order: %w", err)
	}
	return nil
}
