package ledger

import (
	"github.com/shopspring/decimal"
)

// Holding is a net position valued at the current market price
type Holding struct {
	TickerSymbol string          `json:"ticker_symbol"`
	Shares       decimal.Decimal `json:"shares"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	MarketValue  decimal.Decimal `json:"market_value"`
}

type HeldSharesResponse struct {
	TickerSymbol string          `json:"ticker_symbol"`
	Shares       decimal.Decimal `json:"shares"`
}

type CreateAccountRequest struct {
	InitialBalance decimal.Decimal `json:"initial_balance"`
}

type AmountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}
