package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type Stock struct {
	TickerSymbol string    `gorm:"primaryKey;size:16" json:"ticker_symbol"`
	CompanyName  string    `gorm:"size:128;not null" json:"company_name"`
	CreatedAt    time.Time `json:"-"`
}

type Exchange struct {
	ExchangeID   uint   `gorm:"primaryKey;column:exchange_id" json:"exchange_id"`
	ExchangeName string `gorm:"size:128;not null" json:"exchange_name"`
	ShortCode    string `gorm:"uniqueIndex;size:16;not null" json:"short_code"`
}

// StockPrice is the single mutable market price per symbol.
type StockPrice struct {
	TickerSymbol  string          `gorm:"primaryKey;size:16" json:"ticker_symbol"`
	CurrentPrice  decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"current_price"`
	PreviousClose decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"previous_close"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// IdempotencyRecord maps a client-supplied key to the resource it produced.
// Keys are scoped per user.
type IdempotencyRecord struct {
	ID             uint      `gorm:"primaryKey" json:"-"`
	IdempotencyKey string    `gorm:"uniqueIndex:idx_idempotency_user_key;size:128;not null" json:"idempotency_key"`
	UserID         uint      `gorm:"uniqueIndex:idx_idempotency_user_key;not null" json:"user_id"`
	ResourceID     string    `gorm:"size:64;not null" json:"resource_id"`
	ResourceType   string    `gorm:"size:32;not null" json:"resource_type"`
	RequestHash    string    `gorm:"size:36" json:"-"`
	Payload        string    `gorm:"type:text" json:"-"`
	ExpiresAt      time.Time `json:"expires_at"`
	CreatedAt      time.Time `json:"created_at"`
}
