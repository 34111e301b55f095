package migrations

import (
	"github.com/ksred/papertrade/internal/types"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type seedStock struct {
	symbol        string
	company       string
	currentPrice  string
	previousClose string
}

var seedStocks = []seedStock{
	{"AAPL", "Apple Inc.", "150.00", "148.50"},
	{"GOOGL", "Alphabet Inc.", "2800.00", "2750.00"},
	{"AMZN", "Amazon.com, Inc.", "3300.00", "3350.00"},
	{"META", "Meta Platforms, Inc.", "300.00", "295.00"},
	{"BABA", "Alibaba Group Holding Ltd.", "85.00", "88.00"},
	{"LVMUY", "LVMH Moet Hennessy Louis Vuitton", "160.00", "158.00"},
	{"MSFT", "Microsoft Corporation", "410.00", "405.25"},
}

var seedExchanges = []types.Exchange{
	{ExchangeID: 1, ExchangeName: "New York Stock Exchange", ShortCode: "NYSE"},
	{ExchangeID: 2, ExchangeName: "NASDAQ", ShortCode: "NASDAQ"},
}

// SeedCatalog inserts the default stocks, exchanges and prices.
// Existing rows are left untouched so live prices survive restarts.
func SeedCatalog(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for _, e := range seedExchanges {
			exchange := e
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&exchange).Error; err != nil {
				return err
			}
		}

		for _, s := range seedStocks {
			stock := types.Stock{TickerSymbol: s.symbol, CompanyName: s.company}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&stock).Error; err != nil {
				return err
			}

			price := types.StockPrice{
				TickerSymbol:  s.symbol,
				CurrentPrice:  decimal.RequireFromString(s.currentPrice),
				PreviousClose: decimal.RequireFromString(s.previousClose),
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&price).Error; err != nil {
				return err
			}
		}

		return nil
	})
}
