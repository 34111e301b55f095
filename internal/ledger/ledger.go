package ledger

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ksred/papertrade/internal/auth"
	"github.com/ksred/papertrade/internal/database"
	"github.com/ksred/papertrade/internal/types"
	"github.com/ksred/papertrade/pkg/response"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const defaultHistoryLimit = 50

// Service manages cash accounts and derives holdings from the transaction log
type Service struct {
	gormDB   *gorm.DB
	db       *Database
	attempts int
}

// NewService creates a ledger service. attempts bounds retries of balance updates that lose a race.
func NewService(gormDB *gorm.DB, attempts int) *Service {
	return &Service{
		gormDB:   gormDB,
		db:       NewDatabase(gormDB),
		attempts: attempts,
	}
}

// CreateAccount opens a new account for userID with a non-negative starting balance
func (s *Service) CreateAccount(ctx context.Context, userID uint, initialBalance decimal.Decimal) (*types.Account, error) {
	if initialBalance.IsNegative() {
		return nil, types.ErrNegativeBalance
	}

	account := &types.Account{
		UserID:  userID,
		Balance: initialBalance,
	}
	if err := s.db.CreateAccount(ctx, account); err != nil {
		log.Error().Err(err).Uint("user_id", userID).Msg("failed to create account")
		return nil, types.Unknown(err)
	}

	log.Info().
		Uint("user_id", userID).
		Uint("account_id", account.AccountID).
		Str("balance", account.Balance.String()).
		Msg("account created")

	return account, nil
}

// Deposit adds amount to an account owned by userID
func (s *Service) Deposit(ctx context.Context, userID, accountID uint, amount decimal.Decimal) (*types.Account, error) {
	if !amount.IsPositive() {
		return nil, types.ErrInvalidAmount
	}
	return s.adjustBalance(ctx, "deposit", userID, accountID, amount)
}

// Withdraw removes amount from an account owned by userID.
// The balance never goes negative.
func (s *Service) Withdraw(ctx context.Context, userID, accountID uint, amount decimal.Decimal) (*types.Account, error) {
	if !amount.IsPositive() {
		return nil, types.ErrInvalidAmount
	}
	return s.adjustBalance(ctx, "withdraw", userID, accountID, amount.Neg())
}

func (s *Service) adjustBalance(ctx context.Context, op string, userID, accountID uint, delta decimal.Decimal) (*types.Account, error) {
	logger := log.With().
		Str("service", "ledger").
		Str("operation", op).
		Uint("user_id", userID).
		Uint("account_id", accountID).
		Str("amount", delta.Abs().String()).
		Logger()

	var account *types.Account
	err := database.Transact(ctx, s.gormDB, s.attempts, func(tx *gorm.DB) error {
		var err error
		account, err = LockAccount(tx, accountID, userID)
		if err != nil {
			return err
		}
		if account == nil {
			return types.ErrInvalidAccount
		}

		balance := account.Balance.Add(delta)
		if balance.IsNegative() {
			return types.ErrInsufficientBalance
		}
		return UpdateBalance(tx, account, balance)
	})
	if err != nil {
		if types.KindOf(err) == types.KindUnknown {
			logger.Error().Err(err).Msg("balance update failed")
		} else {
			logger.Warn().Err(err).Msg("balance update rejected")
		}
		return nil, types.Unknown(err)
	}

	logger.Info().Str("balance", account.Balance.String()).Msg("balance updated")
	return account, nil
}

// ListAccounts returns every account owned by userID
func (s *Service) ListAccounts(ctx context.Context, userID uint) ([]types.Account, error) {
	accounts, err := s.db.ListAccounts(ctx, userID)
	if err != nil {
		return nil, types.Unknown(err)
	}
	return accounts, nil
}

// GetAccount returns the account owned by userID or ErrInvalidAccount
func (s *Service) GetAccount(ctx context.Context, userID, accountID uint) (*types.Account, error) {
	account, err := s.db.GetAccount(ctx, accountID, userID)
	if err != nil {
		return nil, types.Unknown(err)
	}
	if account == nil {
		return nil, types.ErrInvalidAccount
	}
	return account, nil
}

// HeldShares is the net position of userID in symbol
func (s *Service) HeldShares(ctx context.Context, userID uint, symbol string) (decimal.Decimal, error) {
	shares, err := HeldShares(ctx, s.gormDB, userID, symbol)
	if err != nil {
		return decimal.Zero, types.Unknown(err)
	}
	return shares, nil
}

// Holdings lists every positive position of userID valued at current prices
func (s *Service) Holdings(ctx context.Context, userID uint) ([]Holding, error) {
	records, err := s.db.GetAllTransactions(ctx, userID)
	if err != nil {
		return nil, types.Unknown(err)
	}

	positions := PositionsBySymbol(records)
	symbols := make([]string, 0, len(positions))
	for symbol := range positions {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	prices, err := s.db.GetPrices(ctx, symbols)
	if err != nil {
		return nil, types.Unknown(err)
	}

	holdings := make([]Holding, 0, len(symbols))
	for _, symbol := range symbols {
		shares := positions[symbol]
		price := prices[symbol]
		holdings = append(holdings, Holding{
			TickerSymbol: symbol,
			Shares:       shares,
			CurrentPrice: price,
			MarketValue:  shares.Mul(price),
		})
	}
	return holdings, nil
}

// History returns the most recent transactions of userID, newest first
func (s *Service) History(ctx context.Context, userID uint, limit int) ([]types.TransactionRecord, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	records, err := s.db.GetTransactions(ctx, userID, limit)
	if err != nil {
		return nil, types.Unknown(err)
	}
	return records, nil
}

// GinHandlers contains HTTP handlers for account and holdings endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

func (h *GinHandlers) ListAccountsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.RequireUserID(c)
		if !ok {
			return
		}

		accounts, err := h.service.ListAccounts(c.Request.Context(), userID)
		response.Handle(c, accounts, err)
	}
}

func (h *GinHandlers) CreateAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.RequireUserID(c)
		if !ok {
			return
		}

		var req CreateAccountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		account, err := h.service.CreateAccount(c.Request.Context(), userID, req.InitialBalance)
		response.Handle(c, account, err)
	}
}

func (h *GinHandlers) DepositHandler() gin.HandlerFunc {
	return h.amountHandler(h.service.Deposit)
}

func (h *GinHandlers) WithdrawHandler() gin.HandlerFunc {
	return h.amountHandler(h.service.Withdraw)
}

func (h *GinHandlers) amountHandler(op func(context.Context, uint, uint, decimal.Decimal) (*types.Account, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.RequireUserID(c)
		if !ok {
			return
		}

		accountID, err := strconv.ParseUint(c.Param("account_id"), 10, 64)
		if err != nil {
			response.Handle(c, nil, types.ErrInvalidAccount)
			return
		}

		var req AmountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		account, err := op(c.Request.Context(), userID, uint(accountID), req.Amount)
		response.Handle(c, account, err)
	}
}

func (h *GinHandlers) HoldingsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.RequireUserID(c)
		if !ok {
			return
		}

		holdings, err := h.service.Holdings(c.Request.Context(), userID)
		response.Handle(c, holdings, err)
	}
}

func (h *GinHandlers) HeldSharesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.RequireUserID(c)
		if !ok {
			return
		}

		symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
		shares, err := h.service.HeldShares(c.Request.Context(), userID, symbol)
		response.Handle(c, HeldSharesResponse{TickerSymbol: symbol, Shares: shares}, err)
	}
}

func (h *GinHandlers) HistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.RequireUserID(c)
		if !ok {
			return
		}

		limit, _ := strconv.Atoi(c.Query("limit"))
		records, err := h.service.History(c.Request.Context(), userID, limit)
		response.Handle(c, records, err)
	}
}
