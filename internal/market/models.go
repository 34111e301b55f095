package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a catalog entry with its current market price
type Quote struct {
	TickerSymbol  string          `json:"ticker_symbol"`
	CompanyName   string          `json:"company_name"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	PreviousClose decimal.Decimal `json:"previous_close"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"change_percent"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type SetPriceRequest struct {
	CurrentPrice  decimal.Decimal     `json:"current_price"`
	PreviousClose decimal.NullDecimal `json:"previous_close"`
}
