package market

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/papertrade/internal/types"
	"github.com/ksred/papertrade/pkg/response"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

// Service exposes the stock catalog, the exchanges and the current price of every stock
type Service struct {
	db *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// ListStocks returns every tradable stock with its current price
func (s *Service) ListStocks(ctx context.Context) ([]Quote, error) {
	quotes, err := s.db.ListQuotes(ctx)
	if err != nil {
		return nil, types.Unknown(err)
	}
	return quotes, nil
}

func (s *Service) ListExchanges(ctx context.Context) ([]types.Exchange, error) {
	exchanges, err := s.db.ListExchanges(ctx)
	if err != nil {
		return nil, types.Unknown(err)
	}
	return exchanges, nil
}

// CheckListing verifies that symbol is in the catalog and exchangeID names a known exchange
func (s *Service) CheckListing(ctx context.Context, symbol string, exchangeID uint) error {
	stock, err := s.db.GetStock(ctx, symbol)
	if err != nil {
		return types.Unknown(err)
	}
	if stock == nil {
		return types.ErrUnknownSymbol
	}

	exchange, err := s.db.GetExchange(ctx, exchangeID)
	if err != nil {
		return types.Unknown(err)
	}
	if exchange == nil {
		return types.ErrInvalidExchange
	}
	return nil
}

// CurrentPrice returns the current price of symbol and whether one is known
func (s *Service) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, bool, error) {
	price, err := s.db.GetPrice(ctx, symbol)
	if err != nil {
		return decimal.Zero, false, types.Unknown(err)
	}
	if price == nil {
		return decimal.Zero, false, nil
	}
	return price.CurrentPrice, true, nil
}

// Prices returns the current price of every symbol that has one
func (s *Service) Prices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	prices, err := s.db.GetPrices(ctx, symbols)
	if err != nil {
		return nil, types.Unknown(err)
	}
	return prices, nil
}

// SetPrice records a new price for symbol. When previousClose is not given the
// previous close already on file is kept, or the old current price becomes it.
func (s *Service) SetPrice(ctx context.Context, symbol string, current decimal.Decimal, previousClose decimal.NullDecimal) (*Quote, error) {
	if !current.IsPositive() {
		return nil, types.ErrInvalidAmount
	}

	stock, err := s.db.GetStock(ctx, symbol)
	if err != nil {
		return nil, types.Unknown(err)
	}
	if stock == nil {
		return nil, types.ErrUnknownSymbol
	}

	existing, err := s.db.GetPrice(ctx, symbol)
	if err != nil {
		return nil, types.Unknown(err)
	}

	price := &types.StockPrice{
		TickerSymbol:  symbol,
		CurrentPrice:  current,
		PreviousClose: current,
		UpdatedAt:     time.Now().UTC(),
	}
	switch {
	case previousClose.Valid:
		price.PreviousClose = previousClose.Decimal
	case existing != nil && existing.PreviousClose.IsPositive():
		price.PreviousClose = existing.PreviousClose
	case existing != nil:
		price.PreviousClose = existing.CurrentPrice
	}

	if err := s.db.UpsertPrice(ctx, price); err != nil {
		log.Error().Err(err).Str("ticker_symbol", symbol).Msg("failed to update price")
		return nil, types.Unknown(err)
	}

	log.Info().
		Str("ticker_symbol", symbol).
		Str("current_price", price.CurrentPrice.String()).
		Str("previous_close", price.PreviousClose.String()).
		Msg("price updated")

	quote := quoteRow{
		TickerSymbol:  stock.TickerSymbol,
		CompanyName:   stock.CompanyName,
		CurrentPrice:  decimal.NewNullDecimal(price.CurrentPrice),
		PreviousClose: decimal.NewNullDecimal(price.PreviousClose),
		UpdatedAt:     &price.UpdatedAt,
	}.quote()
	return &quote, nil
}

// change returns the absolute and percentage move from previous to current
func change(current, previous decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	if previous.IsZero() {
		return decimal.Zero, decimal.Zero
	}
	diff := current.Sub(previous)
	return diff, diff.Div(previous).Mul(hundred).Round(2)
}

// GinHandlers contains HTTP handlers for market data endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

func (h *GinHandlers) ListStocksHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		quotes, err := h.service.ListStocks(c.Request.Context())
		response.Handle(c, quotes, err)
	}
}

func (h *GinHandlers) ListExchangesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		exchanges, err := h.service.ListExchanges(c.Request.Context())
		response.Handle(c, exchanges, err)
	}
}

// SetPriceHandler handles PUT requests from the price feed
func (h *GinHandlers) SetPriceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SetPriceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
		quote, err := h.service.SetPrice(c.Request.Context(), symbol, req.CurrentPrice, req.PreviousClose)
		response.Handle(c, quote, err)
	}
}
