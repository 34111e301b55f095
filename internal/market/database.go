package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ksred/papertrade/internal/types"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// quoteRow is the stocks/stock_prices join; prices may be missing
type quoteRow struct {
	TickerSymbol  string
	CompanyName   string
	CurrentPrice  decimal.NullDecimal
	PreviousClose decimal.NullDecimal
	UpdatedAt     *time.Time
}

// ListQuotes returns the whole catalog ordered by company name
func (d *Database) ListQuotes(ctx context.Context) ([]Quote, error) {
	var rows []quoteRow
	err := d.db.WithContext(ctx).
		Table("stocks").
		Select("stocks.ticker_symbol, stocks.company_name, stock_prices.current_price, stock_prices.previous_close, stock_prices.updated_at").
		Joins("LEFT JOIN stock_prices ON stock_prices.ticker_symbol = stocks.ticker_symbol").
		Order("stocks.company_name").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch quotes: %w", err)
	}

	quotes := make([]Quote, 0, len(rows))
	for _, row := range rows {
		quotes = append(quotes, row.quote())
	}
	return quotes, nil
}

func (r quoteRow) quote() Quote {
	q := Quote{
		TickerSymbol:  r.TickerSymbol,
		CompanyName:   r.CompanyName,
		CurrentPrice:  r.CurrentPrice.Decimal,
		PreviousClose: r.PreviousClose.Decimal,
	}
	if r.UpdatedAt != nil {
		q.UpdatedAt = *r.UpdatedAt
	}
	q.Change, q.ChangePercent = change(q.CurrentPrice, q.PreviousClose)
	return q
}

func (d *Database) GetStock(ctx context.Context, symbol string) (*types.Stock, error) {
	var stock types.Stock
	if err := d.db.WithContext(ctx).Where("ticker_symbol = ?", symbol).First(&stock).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch stock: %w", err)
	}
	return &stock, nil
}

func (d *Database) GetExchange(ctx context.Context, exchangeID uint) (*types.Exchange, error) {
	var exchange types.Exchange
	if err := d.db.WithContext(ctx).Where("exchange_id = ?", exchangeID).First(&exchange).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch exchange: %w", err)
	}
	return &exchange, nil
}

func (d *Database) ListExchanges(ctx context.Context) ([]types.Exchange, error) {
	var exchanges []types.Exchange
	if err := d.db.WithContext(ctx).Order("exchange_name").Find(&exchanges).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch exchanges: %w", err)
	}
	return exchanges, nil
}

func (d *Database) GetPrice(ctx context.Context, symbol string) (*types.StockPrice, error) {
	var price types.StockPrice
	if err := d.db.WithContext(ctx).Where("ticker_symbol = ?", symbol).First(&price).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch price: %w", err)
	}
	return &price, nil
}

// GetPrices returns current prices keyed by symbol for every symbol that has one
func (d *Database) GetPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	prices := make(map[string]decimal.Decimal, len(symbols))
	if len(symbols) == 0 {
		return prices, nil
	}

	var rows []types.StockPrice
	if err := d.db.WithContext(ctx).Where("ticker_symbol IN ?", symbols).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch prices: %w", err)
	}
	for _, row := range rows {
		prices[row.TickerSymbol] = row.CurrentPrice
	}
	return prices, nil
}

// UpsertPrice writes the price row for symbol, creating it if needed
func (d *Database) UpsertPrice(ctx context.Context, price *types.StockPrice) error {
	return d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "ticker_symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{"current_price", "previous_close", "updated_at"}),
	}).Create(price).Error
}
