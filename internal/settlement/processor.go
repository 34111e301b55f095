package settlement

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ksred/papertrade/internal/types"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// PriceSource supplies current market prices by symbol
type PriceSource interface {
	Prices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
}

// SweepResult summarizes one pass over the pending orders
type SweepResult struct {
	Checked  int `json:"checked"`
	Executed int `json:"executed"`
	Expired  int `json:"expired"`
	Failed   int `json:"failed"`
}

// Processor periodically promotes pending orders whose trigger conditions are
// met and expires the overdue ones
type Processor struct {
	engine       *Engine
	db           *Database
	prices       PriceSource
	processDelay time.Duration // time between sweeps

	mu sync.Mutex // one sweep at a time
}

func NewProcessor(engine *Engine, prices PriceSource, interval time.Duration) *Processor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Processor{
		engine:       engine,
		db:           engine.orders,
		prices:       prices,
		processDelay: interval,
	}
}

// Start runs sweeps until ctx is cancelled
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("component", "order_processor").Logger()
	logger.Info().Dur("interval", p.processDelay).Msg("starting order processor")

	ticker := time.NewTicker(p.processDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down order processor")
			return
		case <-ticker.C:
			if _, err := p.RunOnce(ctx); err != nil {
				logger.Error().Err(err).Msg("failed to process pending orders")
			}
		}
	}
}

// RunOnce sweeps every pending order once. A failure on one order is logged
// and counted, and never stops the sweep.
func (p *Processor) RunOnce(ctx context.Context) (SweepResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	logger := log.With().Str("component", "order_processor").Logger()
	var result SweepResult

	orders, err := p.db.GetPendingOrders(ctx)
	if err != nil {
		return result, err
	}
	if len(orders) == 0 {
		return result, nil
	}

	prices, err := p.prices.Prices(ctx, symbolsOf(orders))
	if err != nil {
		return result, err
	}

	now := p.engine.now()
	for _, order := range orders {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.Checked++

		orderLogger := logger.With().
			Uint("order_id", order.OrderID).
			Str("ticker_symbol", order.TickerSymbol).
			Logger()

		if order.Expired(now) {
			switch err := p.engine.Expire(ctx, order, now); {
			case err == nil:
				result.Expired++
			case errors.Is(err, ErrNotPending):
			default:
				result.Failed++
				orderLogger.Error().Err(err).Msg("failed to expire order")
			}
			continue
		}

		price, ok := prices[order.TickerSymbol]
		if !ok || !ShouldTrigger(order, price) {
			continue
		}

		_, err := p.engine.Fill(ctx, order, price)
		switch {
		case err == nil:
			result.Executed++
		case errors.Is(err, ErrNotPending):
		case types.KindOf(err) == types.KindUnknown:
			result.Failed++
			orderLogger.Error().Err(err).Msg("failed to fill order")
		default:
			result.Failed++
			orderLogger.Warn().Err(err).Str("price", price.String()).Msg("order triggered but could not be filled, left pending")
		}
	}

	logger.Info().
		Int("checked", result.Checked).
		Int("executed", result.Executed).
		Int("expired", result.Expired).
		Int("failed", result.Failed).
		Msg("pending order sweep complete")

	return result, nil
}

func symbolsOf(orders []types.PendingOrder) []string {
	seen := make(map[string]bool, len(orders))
	symbols := make([]string, 0, len(orders))
	for _, order := range orders {
		if !seen[order.TickerSymbol] {
			seen[order.TickerSymbol] = true
			symbols = append(symbols, order.TickerSymbol)
		}
	}
	return symbols
}
