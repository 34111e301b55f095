package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Action is the side of an order.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// OrderType selects how an order is priced and when it may execute.
type OrderType string

const (
	OrderTypeMarket    OrderType = "MARKET"
	OrderTypeLimit     OrderType = "LIMIT"
	OrderTypeStopLoss  OrderType = "STOP_LOSS"
	OrderTypeStopLimit OrderType = "STOP_LIMIT"
)

// OrderStatus is the lifecycle state of a pending order.
// PENDING is the only non-terminal state.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusExecuted  OrderStatus = "EXECUTED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusExpired   OrderStatus = "EXPIRED"
)

// Terminal reports whether no further transitions are allowed from s.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusExecuted || s == OrderStatusCancelled || s == OrderStatusExpired
}

// UsesLimitPrice reports whether orders of this type carry a limit price.
func (t OrderType) UsesLimitPrice() bool {
	return t == OrderTypeLimit || t == OrderTypeStopLimit
}

// UsesStopPrice reports whether orders of this type carry a stop price.
func (t OrderType) UsesStopPrice() bool {
	return t == OrderTypeStopLoss || t == OrderTypeStopLimit
}

type User struct {
	UserID       uint      `gorm:"primaryKey;column:user_id" json:"user_id"`
	Username     string    `gorm:"uniqueIndex;size:64;not null" json:"username"`
	PasswordHash string    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	Accounts     []Account `gorm:"foreignKey:UserID;references:UserID" json:"-"`
}

// Account holds virtual cash. Balance is only mutated by settlement,
// and every mutation bumps Version so concurrent writers can detect each other.
type Account struct {
	AccountID    uint                `gorm:"primaryKey;column:account_id" json:"account_id"`
	UserID       uint                `gorm:"index;not null" json:"user_id"`
	Balance      decimal.Decimal     `gorm:"type:decimal(20,8);not null" json:"balance"`
	Version      int64               `gorm:"not null;default:0" json:"-"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
	Transactions []TransactionRecord `gorm:"foreignKey:AccountID;references:AccountID" json:"-"`
	Orders       []PendingOrder      `gorm:"foreignKey:AccountID;references:AccountID" json:"-"`
}

// TransactionRecord is an append-only trade fact. Holdings are derived from these rows only.
type TransactionRecord struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	UserID       uint            `gorm:"not null" json:"user_id"`
	AccountID    uint            `gorm:"not null" json:"account_id"`
	TickerSymbol string          `gorm:"size:16;not null" json:"ticker_symbol"`
	IsBuy        bool            `gorm:"not null" json:"is_buy"`
	CostPerShare decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"cost_per_share"`
	NumShares    decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"num_shares"`
	ExchangeID   uint            `gorm:"not null" json:"exchange_id"`
	OrderID      *uint           `json:"order_id,omitempty"`
	CreatedAt    time.Time       `json:"timestamp"`
}

// SignedShares is NumShares for buys and its negation for sells.
func (r TransactionRecord) SignedShares() decimal.Decimal {
	if r.IsBuy {
		return r.NumShares
	}
	return r.NumShares.Neg()
}

// PendingOrder is a LIMIT, STOP_LOSS or STOP_LIMIT order waiting for its trigger.
type PendingOrder struct {
	OrderID       uint                `gorm:"primaryKey;column:order_id" json:"order_id"`
	UserID        uint                `gorm:"not null" json:"user_id"`
	AccountID     uint                `gorm:"not null" json:"account_id"`
	TickerSymbol  string              `gorm:"size:16;not null" json:"ticker_symbol"`
	ExchangeID    uint                `gorm:"not null" json:"exchange_id"`
	OrderType     OrderType           `gorm:"size:16;not null" json:"order_type"`
	ActionType    Action              `gorm:"size:8;not null" json:"action_type"`
	Quantity      decimal.Decimal     `gorm:"type:decimal(20,8);not null" json:"quantity"`
	LimitPrice    decimal.NullDecimal `gorm:"type:decimal(20,8)" json:"limit_price"`
	StopPrice     decimal.NullDecimal `gorm:"type:decimal(20,8)" json:"stop_price"`
	ExpiryDate    *time.Time          `json:"expiry_date,omitempty"`
	Status        OrderStatus         `gorm:"size:16;not null" json:"status"`
	ExecutedAt    *time.Time          `json:"executed_at,omitempty"`
	ExecutedPrice decimal.NullDecimal `gorm:"type:decimal(20,8)" json:"executed_price"`
	TransactionID *uint               `json:"transaction_id,omitempty"`
	CreatedAt     time.Time           `json:"created_date"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// Expired reports whether the order's expiry has passed at now.
func (o PendingOrder) Expired(now time.Time) bool {
	return o.ExpiryDate != nil && !o.ExpiryDate.After(now)
}
