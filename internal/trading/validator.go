package trading

import (
	"strings"
	"time"

	"github.com/ksred/papertrade/internal/types"
	"github.com/shopspring/decimal"
)

// Expiry layouts accepted from clients, tried in order
var expiryLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// CheckRequest normalizes req in place and rejects malformed input.
// Checks run in a fixed order so the same request always gets the same error.
func CheckRequest(req *types.OrderRequest) error {
	req.Action = strings.ToUpper(strings.TrimSpace(req.Action))
	req.OrderType = strings.ToUpper(strings.TrimSpace(req.OrderType))
	req.TickerSymbol = strings.ToUpper(strings.TrimSpace(req.TickerSymbol))
	req.ExpiryDate = strings.TrimSpace(req.ExpiryDate)
	if req.OrderType == "" {
		req.OrderType = string(types.OrderTypeMarket)
	}

	action := types.Action(req.Action)
	if action != types.ActionBuy && action != types.ActionSell {
		return types.ErrInvalidAction
	}

	if req.TickerSymbol == "" || !req.NumShares.IsPositive() || req.ExchangeID == 0 || req.AccountID == 0 {
		return types.ErrMissingFields
	}

	orderType := types.OrderType(req.OrderType)
	switch orderType {
	case types.OrderTypeMarket, types.OrderTypeLimit, types.OrderTypeStopLoss, types.OrderTypeStopLimit:
	default:
		return types.ErrInvalidOrderType
	}

	if orderType.UsesLimitPrice() && !req.LimitPrice.IsPositive() {
		return types.ErrMissingLimitPrice
	}
	if orderType.UsesStopPrice() && !req.StopPrice.IsPositive() {
		return types.ErrMissingStopPrice
	}
	if orderType == types.OrderTypeMarket && !req.CostPerShare.IsPositive() {
		return types.ErrMissingMarketPrice
	}

	return nil
}

// ReferencePrice is the price affordability and holdings are judged at:
// the cost per share for MARKET, the limit for LIMIT and STOP_LIMIT, the stop for STOP_LOSS.
func ReferencePrice(orderType types.OrderType, costPerShare, limitPrice, stopPrice decimal.Decimal) decimal.Decimal {
	switch orderType {
	case types.OrderTypeLimit, types.OrderTypeStopLimit:
		return limitPrice
	case types.OrderTypeStopLoss:
		return stopPrice
	default:
		return costPerShare
	}
}

// Validate decides whether req can be settled against a snapshot of the
// account and the user's holdings. account is nil when the requested account
// does not exist. It has no side effects.
func Validate(req types.OrderRequest, account *types.Account, heldShares decimal.Decimal, now time.Time) (*types.ExecutableOrder, error) {
	if err := CheckRequest(&req); err != nil {
		return nil, err
	}

	if account == nil || account.AccountID != req.AccountID || account.UserID != req.UserID {
		return nil, types.ErrInvalidAccount
	}

	order := &types.ExecutableOrder{
		UserID:       req.UserID,
		AccountID:    req.AccountID,
		Action:       types.Action(req.Action),
		OrderType:    types.OrderType(req.OrderType),
		TickerSymbol: req.TickerSymbol,
		NumShares:    req.NumShares,
		ExchangeID:   req.ExchangeID,
	}
	if order.OrderType == types.OrderTypeMarket {
		order.CostPerShare = req.CostPerShare
	}
	if order.OrderType.UsesLimitPrice() {
		order.LimitPrice = decimal.NewNullDecimal(req.LimitPrice)
	}
	if order.OrderType.UsesStopPrice() {
		order.StopPrice = decimal.NewNullDecimal(req.StopPrice)
	}
	order.ReferencePrice = ReferencePrice(order.OrderType, req.CostPerShare, req.LimitPrice, req.StopPrice)

	if !order.Immediate() && req.ExpiryDate != "" {
		expiry, err := ParseExpiry(req.ExpiryDate, now)
		if err != nil {
			return nil, err
		}
		order.ExpiryDate = &expiry
	}

	switch order.Action {
	case types.ActionBuy:
		if account.Balance.LessThan(order.TotalCost()) {
			return nil, order.BalanceError()
		}
	case types.ActionSell:
		if heldShares.LessThan(order.NumShares) {
			return nil, order.SharesError()
		}
	}

	return order, nil
}

// ParseExpiry reads a client expiry date. Dates without a zone are UTC.
// The result must lie after now.
func ParseExpiry(value string, now time.Time) (time.Time, error) {
	for _, layout := range expiryLayouts {
		expiry, err := time.ParseInLocation(layout, value, time.UTC)
		if err != nil {
			continue
		}
		if !expiry.After(now) {
			return time.Time{}, types.ErrInvalidExpiry
		}
		return expiry.UTC(), nil
	}
	return time.Time{}, types.ErrInvalidExpiry
}
