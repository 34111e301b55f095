package settlement

import (
	"github.com/ksred/papertrade/internal/types"
	"github.com/shopspring/decimal"
)

// ShouldTrigger reports whether a pending order fires at price.
//
//	LIMIT       BUY: price <= limit                   SELL: price >= limit
//	STOP_LOSS   BUY: price >= stop                    SELL: price <= stop
//	STOP_LIMIT  BUY: price >= stop and price <= limit SELL: price <= stop and price >= limit
func ShouldTrigger(order types.PendingOrder, price decimal.Decimal) bool {
	if order.Status != types.OrderStatusPending || !price.IsPositive() {
		return false
	}

	buy := order.ActionType == types.ActionBuy
	limit, stop := order.LimitPrice, order.StopPrice

	switch order.OrderType {
	case types.OrderTypeLimit:
		return limit.Valid && withinLimit(buy, price, limit.Decimal)
	case types.OrderTypeStopLoss:
		return stop.Valid && pastStop(buy, price, stop.Decimal)
	case types.OrderTypeStopLimit:
		return limit.Valid && stop.Valid &&
			pastStop(buy, price, stop.Decimal) && withinLimit(buy, price, limit.Decimal)
	}
	return false
}

// withinLimit: buys never pay more than the limit, sells never take less
func withinLimit(buy bool, price, limit decimal.Decimal) bool {
	if buy {
		return price.LessThanOrEqual(limit)
	}
	return price.GreaterThanOrEqual(limit)
}

// pastStop: buy stops fire on the way up, sell stops on the way down
func pastStop(buy bool, price, stop decimal.Decimal) bool {
	if buy {
		return price.GreaterThanOrEqual(stop)
	}
	return price.LessThanOrEqual(stop)
}
