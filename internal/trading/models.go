package trading

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/ksred/papertrade/internal/types"
	"github.com/shopspring/decimal"
)

// PlaceOrderRequest is the JSON body of an order submission.
// Price fields not used by the order type are ignored.
type PlaceOrderRequest struct {
	AccountID    uint            `json:"account_id"`
	Action       string          `json:"action"`
	OrderType    string          `json:"order_type"`
	TickerSymbol string          `json:"ticker_symbol"`
	NumShares    decimal.Decimal `json:"num_shares"`
	CostPerShare decimal.Decimal `json:"cost_per_share"`
	LimitPrice   decimal.Decimal `json:"limit_price"`
	StopPrice    decimal.Decimal `json:"stop_price"`
	ExchangeID   uint            `json:"exchange_id"`
	ExpiryDate   string          `json:"expiry_date"`
}

func (r PlaceOrderRequest) toOrderRequest(userID uint) types.OrderRequest {
	return types.OrderRequest{
		UserID:       userID,
		AccountID:    r.AccountID,
		Action:       r.Action,
		OrderType:    r.OrderType,
		TickerSymbol: r.TickerSymbol,
		NumShares:    r.NumShares,
		CostPerShare: r.CostPerShare,
		LimitPrice:   r.LimitPrice,
		StopPrice:    r.StopPrice,
		ExchangeID:   r.ExchangeID,
		ExpiryDate:   r.ExpiryDate,
	}
}

// fingerprint identifies the order an idempotency key was first used for.
// Case and surrounding space of the text fields do not change it.
func fingerprint(req types.OrderRequest) string {
	canonical := strings.Join([]string{
		strconv.FormatUint(uint64(req.AccountID), 10),
		strings.ToLower(strings.TrimSpace(req.Action)),
		strings.ToUpper(strings.TrimSpace(req.OrderType)),
		strings.ToUpper(strings.TrimSpace(req.TickerSymbol)),
		req.NumShares.String(),
		req.CostPerShare.String(),
		req.LimitPrice.String(),
		req.StopPrice.String(),
		strconv.FormatUint(uint64(req.ExchangeID), 10),
		strings.TrimSpace(req.ExpiryDate),
	}, "|")
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(canonical)).String()
}

// OrderStats counts a user's orders per status
type OrderStats struct {
	Pending   int64 `json:"pending"`
	Executed  int64 `json:"executed"`
	Cancelled int64 `json:"cancelled"`
	Expired   int64 `json:"expired"`
	Total     int64 `json:"total"`
}
