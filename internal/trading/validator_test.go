package trading

import (
	"testing"
	"time"

	"github.com/ksred/papertrade/internal/types"
	"github.com/shopspring/decimal"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func baseRequest() types.OrderRequest {
	return types.OrderRequest{
		UserID:       1,
		AccountID:    10,
		Action:       "buy",
		OrderType:    "market",
		TickerSymbol: " aapl ",
		NumShares:    dec("10"),
		CostPerShare: dec("50"),
		ExchangeID:   1,
	}
}

func TestCheckRequest(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*types.OrderRequest)
		want   error
	}{
		{"valid market", func(r *types.OrderRequest) {}, nil},
		{"empty type defaults to market", func(r *types.OrderRequest) { r.OrderType = "" }, nil},
		{"bad action", func(r *types.OrderRequest) { r.Action = "hold" }, types.ErrInvalidAction},
		{"bad action wins over missing fields", func(r *types.OrderRequest) {
			r.Action = ""
			r.TickerSymbol = ""
		}, types.ErrInvalidAction},
		{"missing symbol", func(r *types.OrderRequest) { r.TickerSymbol = "  " }, types.ErrMissingFields},
		{"zero shares", func(r *types.OrderRequest) { r.NumShares = decimal.Zero }, types.ErrMissingFields},
		{"negative shares", func(r *types.OrderRequest) { r.NumShares = dec("-1") }, types.ErrMissingFields},
		{"missing exchange", func(r *types.OrderRequest) { r.ExchangeID = 0 }, types.ErrMissingFields},
		{"missing account", func(r *types.OrderRequest) { r.AccountID = 0 }, types.ErrMissingFields},
		{"bad type", func(r *types.OrderRequest) { r.OrderType = "FOK" }, types.ErrInvalidOrderType},
		{"market without price", func(r *types.OrderRequest) { r.CostPerShare = decimal.Zero }, types.ErrMissingMarketPrice},
		{"limit without limit", func(r *types.OrderRequest) { r.OrderType = "LIMIT" }, types.ErrMissingLimitPrice},
		{"stop loss without stop", func(r *types.OrderRequest) { r.OrderType = "STOP_LOSS" }, types.ErrMissingStopPrice},
		{"stop limit without limit", func(r *types.OrderRequest) {
			r.OrderType = "STOP_LIMIT"
			r.StopPrice = dec("45")
		}, types.ErrMissingLimitPrice},
		{"stop limit without stop", func(r *types.OrderRequest) {
			r.OrderType = "STOP_LIMIT"
			r.LimitPrice = dec("45")
		}, types.ErrMissingStopPrice},
		{"limit ignores missing market price", func(r *types.OrderRequest) {
			r.OrderType = "LIMIT"
			r.LimitPrice = dec("45")
			r.CostPerShare = decimal.Zero
		}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := baseRequest()
			tt.modify(&req)
			if err := CheckRequest(&req); err != tt.want {
				t.Errorf("CheckRequest() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCheckRequestNormalizes(t *testing.T) {
	req := baseRequest()
	req.OrderType = ""
	if err := CheckRequest(&req); err != nil {
		t.Fatalf("CheckRequest() error = %v", err)
	}
	if req.Action != "BUY" || req.OrderType != "MARKET" || req.TickerSymbol != "AAPL" {
		t.Errorf("normalized request = %+v", req)
	}
}

func TestReferencePrice(t *testing.T) {
	cost, limit, stop := dec("1"), dec("2"), dec("3")
	tests := []struct {
		orderType types.OrderType
		want      decimal.Decimal
	}{
		{types.OrderTypeMarket, cost},
		{types.OrderTypeLimit, limit},
		{types.OrderTypeStopLimit, limit},
		{types.OrderTypeStopLoss, stop},
	}

	for _, tt := range tests {
		t.Run(string(tt.orderType), func(t *testing.T) {
			if got := ReferencePrice(tt.orderType, cost, limit, stop); !got.Equal(tt.want) {
				t.Errorf("ReferencePrice() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	account := &types.Account{AccountID: 10, UserID: 1, Balance: dec("500")}

	tests := []struct {
		name    string
		modify  func(*types.OrderRequest)
		account *types.Account
		held    string
		want    error
	}{
		{"affordable buy", func(r *types.OrderRequest) {}, account, "0", nil},
		{"exactly affordable", func(r *types.OrderRequest) { r.NumShares = dec("10") }, account, "0", nil},
		{"unaffordable buy", func(r *types.OrderRequest) { r.NumShares = dec("11") }, account, "0", types.ErrInsufficientBalance},
		{"missing account", func(r *types.OrderRequest) {}, nil, "0", types.ErrInvalidAccount},
		{"foreign account", func(r *types.OrderRequest) {}, &types.Account{AccountID: 10, UserID: 2}, "0", types.ErrInvalidAccount},
		{"sell within holdings", func(r *types.OrderRequest) { r.Action = "sell" }, account, "10", nil},
		{"sell beyond holdings", func(r *types.OrderRequest) {
			r.Action = "sell"
			r.NumShares = dec("15")
		}, account, "10", types.ErrInsufficientShares},
		{"limit buy judged at limit", func(r *types.OrderRequest) {
			r.OrderType = "LIMIT"
			r.LimitPrice = dec("60")
		}, account, "0", types.ErrOrderBalance},
		{"stop loss sell beyond holdings", func(r *types.OrderRequest) {
			r.Action = "sell"
			r.OrderType = "STOP_LOSS"
			r.StopPrice = dec("40")
		}, account, "5", types.ErrOrderShares},
		{"bad expiry", func(r *types.OrderRequest) {
			r.OrderType = "LIMIT"
			r.LimitPrice = dec("40")
			r.ExpiryDate = "next tuesday"
		}, account, "0", types.ErrInvalidExpiry},
		{"past expiry", func(r *types.OrderRequest) {
			r.OrderType = "LIMIT"
			r.LimitPrice = dec("40")
			r.ExpiryDate = "2024-02-01"
		}, account, "0", types.ErrInvalidExpiry},
		{"market ignores expiry", func(r *types.OrderRequest) { r.ExpiryDate = "garbage" }, account, "0", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := baseRequest()
			tt.modify(&req)
			_, err := Validate(req, tt.account, dec(tt.held), now)
			if err != tt.want {
				t.Errorf("Validate() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValidateBuildsExecutableOrder(t *testing.T) {
	account := &types.Account{AccountID: 10, UserID: 1, Balance: dec("1000")}
	req := baseRequest()
	req.OrderType = "stop_limit"
	req.LimitPrice = dec("55")
	req.StopPrice = dec("52")
	req.ExpiryDate = "2024-03-02T09:30"

	order, err := Validate(req, account, decimal.Zero, now)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if order.Immediate() {
		t.Error("STOP_LIMIT order reported as immediate")
	}
	if order.TickerSymbol != "AAPL" || order.Action != types.ActionBuy {
		t.Errorf("order = %+v", order)
	}
	if !order.ReferencePrice.Equal(dec("55")) || !order.TotalCost().Equal(dec("550")) {
		t.Errorf("ReferencePrice = %s, TotalCost = %s", order.ReferencePrice, order.TotalCost())
	}
	if !order.LimitPrice.Valid || !order.StopPrice.Valid {
		t.Errorf("price fields not carried: %+v", order)
	}
	if !order.CostPerShare.IsZero() {
		t.Errorf("CostPerShare = %s, want zero for a non-market order", order.CostPerShare)
	}
	want := time.Date(2024, 3, 2, 9, 30, 0, 0, time.UTC)
	if order.ExpiryDate == nil || !order.ExpiryDate.Equal(want) {
		t.Errorf("ExpiryDate = %v, want %v", order.ExpiryDate, want)
	}
}

func TestParseExpiry(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		err  error
	}{
		{"2024-03-02T10:00:00Z", time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC), nil},
		{"2024-03-02T10:00:00+02:00", time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC), nil},
		{"2024-03-02T10:00", time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC), nil},
		{"2024-03-02 10:00:00", time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC), nil},
		{"2024-03-02", time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), nil},
		{"2024-03-01 12:00:00", time.Time{}, types.ErrInvalidExpiry},
		{"03/02/2024", time.Time{}, types.ErrInvalidExpiry},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseExpiry(tt.in, now)
			if err != tt.err {
				t.Fatalf("ParseExpiry() error = %v, want %v", err, tt.err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseExpiry() = %v, want %v", got, tt.want)
			}
		})
	}
}
