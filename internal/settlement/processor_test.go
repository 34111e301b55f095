package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/ksred/papertrade/internal/database"
	"github.com/ksred/papertrade/internal/types"
	"github.com/shopspring/decimal"
)

type fixedPrices map[string]decimal.Decimal

func (p fixedPrices) Prices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	return p, nil
}

func TestProcessorRunOnce(t *testing.T) {
	db, account := setupAccount(t, "1000")
	database.CreateTestHolding(t, db, account.UserID, account.AccountID, "AAPL", "10")
	engine := NewEngine(db)
	ctx := context.Background()

	settle := func(order *types.ExecutableOrder) uint {
		t.Helper()
		confirmation, err := engine.Settle(ctx, order)
		if err != nil {
			t.Fatalf("Settle() error = %v", err)
		}
		return *confirmation.OrderID
	}

	fires := settle(limitOrder(account, types.ActionBuy, "2", "150"))
	waits := settle(limitOrder(account, types.ActionBuy, "2", "100"))

	stopLoss := limitOrder(account, types.ActionSell, "5", "145")
	stopLoss.OrderType = types.OrderTypeStopLoss
	stopLoss.LimitPrice = decimal.NullDecimal{}
	stopLoss.StopPrice = decimal.NewNullDecimal(dec("145"))
	stops := settle(stopLoss)

	expiry := time.Now().UTC().Add(time.Hour)
	expiring := limitOrder(account, types.ActionBuy, "1", "100")
	expiring.ExpiryDate = &expiry
	expires := settle(expiring)

	engine.now = func() time.Time { return expiry.Add(time.Second) }
	processor := NewProcessor(engine, fixedPrices{"AAPL": dec("140")}, time.Minute)

	result, err := processor.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	want := SweepResult{Checked: 4, Executed: 2, Expired: 1}
	if result != want {
		t.Errorf("RunOnce() = %+v, want %+v", result, want)
	}

	statuses := map[uint]types.OrderStatus{
		fires:   types.OrderStatusExecuted,
		waits:   types.OrderStatusPending,
		stops:   types.OrderStatusExecuted,
		expires: types.OrderStatusExpired,
	}
	for orderID, status := range statuses {
		if got := pendingOrder(t, db, orderID).Status; got != status {
			t.Errorf("order %d status = %s, want %s", orderID, got, status)
		}
	}

	// 1000 - 2*140 for the limit buy; the stop loss sell credits nothing
	if got := database.AccountBalance(t, db, account.AccountID); !got.Equal(dec("720")) {
		t.Errorf("balance = %s, want 720", got)
	}

	result, err = processor.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second RunOnce() error = %v", err)
	}
	if result.Executed != 0 || result.Checked != 1 {
		t.Errorf("second RunOnce() = %+v, want only the waiting order checked", result)
	}
}
