package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderRequest is an order as submitted by the request layer, before validation.
// Action and OrderType are raw user input.
type OrderRequest struct {
	UserID       uint
	AccountID    uint
	Action       string
	OrderType    string
	TickerSymbol string
	NumShares    decimal.Decimal
	CostPerShare decimal.Decimal
	LimitPrice   decimal.Decimal
	StopPrice    decimal.Decimal
	ExchangeID   uint
	ExpiryDate   string
}

// ExecutableOrder is a validated order with normalized price fields.
type ExecutableOrder struct {
	UserID         uint
	AccountID      uint
	Action         Action
	OrderType      OrderType
	TickerSymbol   string
	NumShares      decimal.Decimal
	CostPerShare   decimal.Decimal
	LimitPrice     decimal.NullDecimal
	StopPrice      decimal.NullDecimal
	ReferencePrice decimal.Decimal
	ExchangeID     uint
	ExpiryDate     *time.Time
	// OrderID is set when the order is a fill of an existing pending order.
	OrderID *uint
}

// Immediate reports whether the order settles now rather than being queued.
func (o *ExecutableOrder) Immediate() bool {
	return o.OrderType == OrderTypeMarket
}

// TotalCost is NumShares valued at the reference price.
func (o *ExecutableOrder) TotalCost() decimal.Decimal {
	return o.NumShares.Mul(o.ReferencePrice)
}

// Confirmation is returned for every successfully settled or queued order.
type Confirmation struct {
	ConfirmationID string          `json:"confirmation_id"`
	Status         OrderStatus     `json:"status"`
	Action         Action          `json:"action"`
	OrderType      OrderType       `json:"order_type"`
	TickerSymbol   string          `json:"ticker_symbol"`
	NumShares      decimal.Decimal `json:"num_shares"`
	Price          decimal.Decimal `json:"price"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	AccountID      uint            `json:"account_id"`
	Balance        decimal.Decimal `json:"balance"`
	TransactionID  *uint           `json:"transaction_id,omitempty"`
	OrderID        *uint           `json:"order_id,omitempty"`
	Message        string          `json:"message"`
	Timestamp      time.Time       `json:"timestamp"`
}

// BalanceError is the rejection for a buy the account cannot cover.
func (o *ExecutableOrder) BalanceError() error {
	if o.Immediate() {
		return ErrInsufficientBalance
	}
	return ErrOrderBalance
}

// SharesError is the rejection for a sell of more shares than are held.
func (o *ExecutableOrder) SharesError() error {
	if o.Immediate() {
		return ErrInsufficientShares
	}
	return ErrOrderShares
}
