package trading

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/ksred/papertrade/internal/auth"
	"github.com/ksred/papertrade/internal/database"
	"github.com/ksred/papertrade/internal/market"
	"github.com/ksred/papertrade/internal/settlement"
	"github.com/ksred/papertrade/internal/types"
	"gorm.io/gorm"
)

func setupService(t *testing.T, balance string) (*Service, *gorm.DB, types.Account) {
	t.Helper()
	db := database.SetupTestDB(t)
	userID := database.CreateTestUser(t, db, "trader")
	account := database.CreateTestAccount(t, db, userID, balance)
	service := NewService(db, market.NewService(db), settlement.NewEngine(db))
	return service, db, account
}

func orderFor(account types.Account, action, orderType, shares string) types.OrderRequest {
	return types.OrderRequest{
		UserID:       account.UserID,
		AccountID:    account.AccountID,
		Action:       action,
		OrderType:    orderType,
		TickerSymbol: "AAPL",
		NumShares:    dec(shares),
		CostPerShare: dec("50"),
		ExchangeID:   1,
	}
}

func TestPlaceOrderScenarios(t *testing.T) {
	service, db, account := setupService(t, "1000")
	ctx := context.Background()

	// A: market buy within balance
	confirmation, err := service.PlaceOrder(ctx, orderFor(account, "buy", "MARKET", "10"), "")
	if err != nil {
		t.Fatalf("scenario A: PlaceOrder() error = %v", err)
	}
	if !confirmation.Balance.Equal(dec("500")) {
		t.Errorf("scenario A: balance = %s, want 500", confirmation.Balance)
	}

	// B: market buy beyond balance
	if _, err := service.PlaceOrder(ctx, orderFor(account, "buy", "MARKET", "20"), ""); err != types.ErrInsufficientBalance {
		t.Errorf("scenario B: error = %v, want ErrInsufficientBalance", err)
	}
	if got := database.AccountBalance(t, db, account.AccountID); !got.Equal(dec("500")) {
		t.Errorf("scenario B: balance = %s, want 500", got)
	}

	// C: sell more than held
	if _, err := service.PlaceOrder(ctx, orderFor(account, "sell", "MARKET", "15"), ""); err != types.ErrInsufficientShares {
		t.Errorf("scenario C: error = %v, want ErrInsufficientShares", err)
	}

	// D: limit buy is queued
	limit := orderFor(account, "buy", "LIMIT", "5")
	limit.LimitPrice = dec("40")
	pending, err := service.PlaceOrder(ctx, limit, "")
	if err != nil {
		t.Fatalf("scenario D: PlaceOrder() error = %v", err)
	}
	if pending.Status != types.OrderStatusPending || pending.OrderID == nil {
		t.Fatalf("scenario D: confirmation = %+v", pending)
	}
	if n := database.CountTransactions(t, db, account.UserID); n != 1 {
		t.Errorf("scenario D: %d transaction records, want 1", n)
	}
	if got := database.AccountBalance(t, db, account.AccountID); !got.Equal(dec("500")) {
		t.Errorf("scenario D: balance = %s, want 500", got)
	}

	// E: cancel once, then again
	order, err := service.CancelOrder(ctx, account.UserID, *pending.OrderID)
	if err != nil {
		t.Fatalf("scenario E: CancelOrder() error = %v", err)
	}
	if order.Status != types.OrderStatusCancelled {
		t.Errorf("scenario E: status = %s, want CANCELLED", order.Status)
	}
	if _, err := service.CancelOrder(ctx, account.UserID, *pending.OrderID); err != types.ErrNotCancellable {
		t.Errorf("scenario E: second cancel error = %v, want ErrNotCancellable", err)
	}
}

func TestPlaceOrderCatalogChecks(t *testing.T) {
	service, _, account := setupService(t, "1000")
	ctx := context.Background()

	unknown := orderFor(account, "buy", "MARKET", "1")
	unknown.TickerSymbol = "NOPE"
	if _, err := service.PlaceOrder(ctx, unknown, ""); err != types.ErrUnknownSymbol {
		t.Errorf("error = %v, want ErrUnknownSymbol", err)
	}

	badExchange := orderFor(account, "buy", "MARKET", "1")
	badExchange.ExchangeID = 42
	if _, err := service.PlaceOrder(ctx, badExchange, ""); err != types.ErrInvalidExchange {
		t.Errorf("error = %v, want ErrInvalidExchange", err)
	}

	foreign := orderFor(account, "buy", "MARKET", "1")
	foreign.AccountID = account.AccountID + 1000
	if _, err := service.PlaceOrder(ctx, foreign, ""); err != types.ErrInvalidAccount {
		t.Errorf("error = %v, want ErrInvalidAccount", err)
	}
}

func TestPlaceOrderIdempotency(t *testing.T) {
	service, db, account := setupService(t, "1000")
	ctx := context.Background()

	first, err := service.PlaceOrder(ctx, orderFor(account, "buy", "MARKET", "2"), "key-1")
	if err != nil {
		t.Fatalf("PlaceOrder() error = %v", err)
	}
	second, err := service.PlaceOrder(ctx, orderFor(account, "buy", "MARKET", "2"), "key-1")
	if err != nil {
		t.Fatalf("replayed PlaceOrder() error = %v", err)
	}

	if second.ConfirmationID != first.ConfirmationID {
		t.Errorf("replay returned %s, want %s", second.ConfirmationID, first.ConfirmationID)
	}
	if n := database.CountTransactions(t, db, account.UserID); n != 1 {
		t.Errorf("%d transaction records, want 1", n)
	}
	if got := database.AccountBalance(t, db, account.AccountID); !got.Equal(dec("900")) {
		t.Errorf("balance = %s, want 900", got)
	}

	if _, err := service.PlaceOrder(ctx, orderFor(account, "buy", "MARKET", "2"), "key-2"); err != nil {
		t.Fatalf("PlaceOrder() with new key error = %v", err)
	}
	if n := database.CountTransactions(t, db, account.UserID); n != 2 {
		t.Errorf("%d transaction records, want 2", n)
	}
}

func TestPlaceOrderRejectsReusedKey(t *testing.T) {
	service, db, account := setupService(t, "1000")
	ctx := context.Background()

	if _, err := service.PlaceOrder(ctx, orderFor(account, "buy", "MARKET", "2"), "key-1"); err != nil {
		t.Fatalf("PlaceOrder() error = %v", err)
	}

	same := orderFor(account, " BUY ", "market", "2.0")
	if _, err := service.PlaceOrder(ctx, same, "key-1"); err != nil {
		t.Errorf("replay of the same order error = %v", err)
	}

	if _, err := service.PlaceOrder(ctx, orderFor(account, "buy", "MARKET", "5"), "key-1"); err != types.ErrIdemKeyReused {
		t.Errorf("different order with used key error = %v, want ErrIdemKeyReused", err)
	}
	if n := database.CountTransactions(t, db, account.UserID); n != 1 {
		t.Errorf("%d transaction records, want 1", n)
	}
}

func TestPlaceOrderRejectsLongKey(t *testing.T) {
	service, _, account := setupService(t, "1000")

	key := strings.Repeat("k", maxIdempotencyKeyLength+1)
	_, err := service.PlaceOrder(context.Background(), orderFor(account, "buy", "MARKET", "1"), key)
	if err != types.ErrIdemKeyTooLong {
		t.Fatalf("PlaceOrder() error = %v, want ErrIdemKeyTooLong", err)
	}
	if !strings.Contains(err.Error(), IdempotencyHeader) {
		t.Errorf("message %q should name the %s header", err.Error(), IdempotencyHeader)
	}
}

func TestListOrdersAndStats(t *testing.T) {
	service, _, account := setupService(t, "1000")
	ctx := context.Background()

	var ids []uint
	for i := 0; i < 3; i++ {
		limit := orderFor(account, "buy", "LIMIT", "1")
		limit.LimitPrice = dec("40")
		confirmation, err := service.PlaceOrder(ctx, limit, "")
		if err != nil {
			t.Fatalf("PlaceOrder() error = %v", err)
		}
		ids = append(ids, *confirmation.OrderID)
	}
	if _, err := service.CancelOrder(ctx, account.UserID, ids[0]); err != nil {
		t.Fatalf("CancelOrder() error = %v", err)
	}

	pending, err := service.ListOrders(ctx, account.UserID, "pending")
	if err != nil {
		t.Fatalf("ListOrders() error = %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("ListOrders(pending) returned %d orders, want 2", len(pending))
	}

	all, err := service.ListOrders(ctx, account.UserID, "")
	if err != nil {
		t.Fatalf("ListOrders() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("ListOrders() returned %d orders, want 3", len(all))
	}

	if _, err := service.ListOrders(ctx, account.UserID, "lost"); err != types.ErrInvalidOrderStatus {
		t.Errorf("ListOrders(lost) error = %v, want ErrInvalidOrderStatus", err)
	}

	stats, err := service.OrderStats(ctx, account.UserID)
	if err != nil {
		t.Fatalf("OrderStats() error = %v", err)
	}
	want := OrderStats{Pending: 2, Cancelled: 1, Total: 3}
	if *stats != want {
		t.Errorf("OrderStats() = %+v, want %+v", *stats, want)
	}
}

func TestPlaceOrderHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service, _, account := setupService(t, "1000")
	handlers := NewGinHandlers(service)

	router := gin.New()
	router.POST("/api/v1/orders", func(c *gin.Context) {
		c.Set(auth.ContextUserID, account.UserID)
		c.Next()
	}, handlers.PlaceOrderHandler())

	tests := []struct {
		name string
		body map[string]interface{}
		want int
		code string
	}{
		{"market buy", map[string]interface{}{
			"account_id": account.AccountID, "action": "buy", "ticker_symbol": "AAPL",
			"num_shares": "2", "cost_per_share": "150", "exchange_id": 1,
		}, http.StatusCreated, ""},
		{"invalid action", map[string]interface{}{
			"account_id": account.AccountID, "action": "short", "ticker_symbol": "AAPL",
			"num_shares": "2", "cost_per_share": "150", "exchange_id": 1,
		}, http.StatusBadRequest, string(types.KindInvalidAction)},
		{"insufficient balance", map[string]interface{}{
			"account_id": account.AccountID, "action": "buy", "ticker_symbol": "AAPL",
			"num_shares": "100", "cost_per_share": "150", "exchange_id": 1,
		}, http.StatusUnprocessableEntity, string(types.KindInsufficientBalance)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, _ := json.Marshal(tt.body)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
			if tt.code == "" {
				return
			}
			var resp struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("invalid JSON response: %v", err)
			}
			if resp.Error.Code != tt.code {
				t.Errorf("error code = %s, want %s", resp.Error.Code, tt.code)
			}
		})
	}
}
