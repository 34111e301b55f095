package types

import (
	"errors"
)

// ErrorKind classifies order and account failures for the request layer.
type ErrorKind string

// Input errors are caller-correctable.
const (
	KindInvalidAction     ErrorKind = "INVALID_ACTION"
	KindInvalidOrderType  ErrorKind = "INVALID_ORDER_TYPE"
	KindMissingFields     ErrorKind = "MISSING_FIELDS"
	KindMissingPriceField ErrorKind = "MISSING_PRICE_FIELD"
	KindInvalidExpiry     ErrorKind = "INVALID_EXPIRY"
	KindInvalidAmount     ErrorKind = "INVALID_AMOUNT"
	KindInvalidIdemKey    ErrorKind = "INVALID_IDEMPOTENCY_KEY"
)

// State errors are business-rule violations against current ledger state.
const (
	KindInsufficientBalance ErrorKind = "INSUFFICIENT_BALANCE"
	KindInsufficientShares  ErrorKind = "INSUFFICIENT_SHARES"
	KindInvalidAccount      ErrorKind = "INVALID_ACCOUNT"
	KindNotCancellable      ErrorKind = "NOT_CANCELLABLE"
	KindUnknownSymbol       ErrorKind = "UNKNOWN_SYMBOL"
	KindInvalidExchange     ErrorKind = "INVALID_EXCHANGE"
	KindIdemKeyReused       ErrorKind = "IDEMPOTENCY_KEY_REUSED"
)

// KindUnknown covers infrastructure failures. Nothing was applied.
const KindUnknown ErrorKind = "UNKNOWN"

// Error is a user-facing failure. Message is safe to show verbatim;
// Err carries the underlying cause for logs only.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsInput reports whether the error is caller-correctable input.
func (e *Error) IsInput() bool {
	switch e.Kind {
	case KindInvalidAction, KindInvalidOrderType, KindMissingFields,
		KindMissingPriceField, KindInvalidExpiry, KindInvalidAmount, KindInvalidIdemKey:
		return true
	}
	return false
}

var (
	ErrInvalidAction      = &Error{Kind: KindInvalidAction, Message: `Invalid action. Must be either "buy" or "sell".`}
	ErrInvalidOrderType   = &Error{Kind: KindInvalidOrderType, Message: "Invalid order type."}
	ErrInvalidOrderStatus = &Error{Kind: KindInvalidOrderType, Message: "Invalid order status."}
	ErrMissingFields      = &Error{Kind: KindMissingFields, Message: "Please fill in all required fields correctly."}
	ErrMissingLimitPrice  = &Error{Kind: KindMissingPriceField, Message: "Limit price is required for LIMIT and STOP_LIMIT orders."}
	ErrMissingStopPrice   = &Error{Kind: KindMissingPriceField, Message: "Stop price is required for STOP_LOSS and STOP_LIMIT orders."}
	ErrMissingMarketPrice = &Error{Kind: KindMissingPriceField, Message: "Price per share is required for MARKET orders."}
	ErrInvalidExpiry      = &Error{Kind: KindInvalidExpiry, Message: "Expiry date is not a valid future date."}
	ErrInvalidAmount      = &Error{Kind: KindInvalidAmount, Message: "Amount must be greater than 0."}
	ErrNegativeBalance    = &Error{Kind: KindInvalidAmount, Message: "Initial balance cannot be negative."}
	ErrIdemKeyTooLong     = &Error{Kind: KindInvalidIdemKey, Message: "Idempotency-Key header must be at most 128 characters."}

	ErrInsufficientBalance = &Error{Kind: KindInsufficientBalance, Message: "Insufficient balance."}
	ErrInsufficientShares  = &Error{Kind: KindInsufficientShares, Message: "Insufficient shares to sell."}
	ErrOrderBalance        = &Error{Kind: KindInsufficientBalance, Message: "Insufficient balance for this order."}
	ErrOrderShares         = &Error{Kind: KindInsufficientShares, Message: "Insufficient shares for this order."}
	ErrInvalidAccount      = &Error{Kind: KindInvalidAccount, Message: "Invalid account."}
	ErrNotCancellable      = &Error{Kind: KindNotCancellable, Message: "Order not found or cannot be cancelled."}
	ErrUnknownSymbol       = &Error{Kind: KindUnknownSymbol, Message: "Unknown stock symbol."}
	ErrInvalidExchange     = &Error{Kind: KindInvalidExchange, Message: "Unknown exchange."}
	ErrIdemKeyReused       = &Error{Kind: KindIdemKeyReused, Message: "Idempotency-Key was already used for a different order."}
)

const unknownMessage = "The order could not be processed. Please try again."

// Unknown wraps an infrastructure failure. Typed errors pass through unchanged.
func Unknown(err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	return &Error{Kind: KindUnknown, Message: unknownMessage, Err: err}
}

// KindOf classifies err. Untyped errors are UNKNOWN.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return KindUnknown
}
