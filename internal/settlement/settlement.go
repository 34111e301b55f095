package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ksred/papertrade/internal/database"
	"github.com/ksred/papertrade/internal/events"
	"github.com/ksred/papertrade/internal/ledger"
	"github.com/ksred/papertrade/internal/types"
	"github.com/ksred/papertrade/pkg/response"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrNotPending reports that a fill or expiry lost the order to another transition
var ErrNotPending = errors.New("order is no longer pending")

const defaultAttempts = 3

// Engine records trades atomically. Every balance check happens in the same
// transaction as the mutation it guards.
type Engine struct {
	db                 *gorm.DB
	orders             *Database
	bus                *events.Bus
	locks              *UserLocks
	attempts           int
	creditSellProceeds bool
	now                func() time.Time
}

type Option func(*Engine)

// WithEvents publishes order and trade events on bus
func WithEvents(bus *events.Bus) Option {
	return func(e *Engine) {
		e.bus = bus
	}
}

// WithMaxAttempts bounds how often a transaction that lost a race is rerun
func WithMaxAttempts(attempts int) Option {
	return func(e *Engine) {
		if attempts > 0 {
			e.attempts = attempts
		}
	}
}

// WithSellProceeds credits the account with the proceeds of every sell
func WithSellProceeds(credit bool) Option {
	return func(e *Engine) {
		e.creditSellProceeds = credit
	}
}

func NewEngine(gormDB *gorm.DB, opts ...Option) *Engine {
	e := &Engine{
		db:       gormDB,
		orders:   NewDatabase(gormDB),
		locks:    NewUserLocks(),
		attempts: defaultAttempts,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Settle executes a MARKET order now or queues any other type as a pending order.
// Balance and holdings are verified again under lock, so a stale validation
// snapshot can never overdraw an account. Errors are always *types.Error.
//
// Parameters:
//   - order: a validated order; OrderID must be nil
func (e *Engine) Settle(ctx context.Context, order *types.ExecutableOrder) (*types.Confirmation, error) {
	logger := e.logger(order)

	release := e.locks.Lock(order.UserID)
	defer release()

	var (
		confirmation *types.Confirmation
		evt          events.Event
	)
	err := database.Transact(ctx, e.db, e.attempts, func(tx *gorm.DB) error {
		var err error
		if order.Immediate() {
			confirmation, err = e.execute(ctx, tx, order, order.CostPerShare)
			evt = events.Event{Type: events.TradeSettled, UserID: order.UserID}
		} else {
			confirmation, err = e.queue(ctx, tx, order)
			evt = events.Event{Type: events.OrderPlaced, UserID: order.UserID}
		}
		return err
	})
	if err != nil {
		e.logFailure(logger, err, "settlement rejected")
		return nil, types.Unknown(err)
	}

	logger.Info().
		Str("status", string(confirmation.Status)).
		Str("total_amount", confirmation.TotalAmount.String()).
		Str("balance", confirmation.Balance.String()).
		Msg("order settled")

	evt.Data = confirmation
	e.bus.Publish(evt)
	return confirmation, nil
}

// execute runs the MARKET path at price inside tx
func (e *Engine) execute(ctx context.Context, tx *gorm.DB, order *types.ExecutableOrder, price decimal.Decimal) (*types.Confirmation, error) {
	total := order.NumShares.Mul(price)

	var account *types.Account
	switch order.Action {
	case types.ActionBuy:
		var err error
		account, err = ledger.LockAccount(tx, order.AccountID, order.UserID)
		if err != nil {
			return nil, err
		}
		if account == nil {
			return nil, types.ErrInvalidAccount
		}
		if account.Balance.LessThan(total) {
			return nil, types.ErrInsufficientBalance
		}

	case types.ActionSell:
		var err error
		account, err = e.lockForSell(ctx, tx, order)
		if err != nil {
			return nil, err
		}

	default:
		return nil, types.ErrInvalidAction
	}

	record := &types.TransactionRecord{
		UserID:       order.UserID,
		AccountID:    order.AccountID,
		TickerSymbol: order.TickerSymbol,
		IsBuy:        order.Action == types.ActionBuy,
		CostPerShare: price,
		NumShares:    order.NumShares,
		ExchangeID:   order.ExchangeID,
		OrderID:      order.OrderID,
	}
	if err := insertTransaction(tx, record); err != nil {
		return nil, err
	}

	// Sells always bump the version so concurrent sells of one user conflict
	balance := account.Balance
	switch {
	case order.Action == types.ActionBuy:
		balance = balance.Sub(total)
	case e.creditSellProceeds:
		balance = balance.Add(total)
	}
	if err := ledger.UpdateBalance(tx, account, balance); err != nil {
		return nil, err
	}

	return &types.Confirmation{
		ConfirmationID: newConfirmationID(),
		Status:         types.OrderStatusExecuted,
		Action:         order.Action,
		OrderType:      order.OrderType,
		TickerSymbol:   order.TickerSymbol,
		NumShares:      order.NumShares,
		Price:          price,
		TotalAmount:    total,
		AccountID:      account.AccountID,
		Balance:        account.Balance,
		TransactionID:  &record.ID,
		OrderID:        order.OrderID,
		Message:        executedMessage(order.Action),
		Timestamp:      record.CreatedAt,
	}, nil
}

// queue stores a non-market order as PENDING after checking it against the reference price.
// Nothing is reserved.
func (e *Engine) queue(ctx context.Context, tx *gorm.DB, order *types.ExecutableOrder) (*types.Confirmation, error) {
	var account *types.Account
	switch order.Action {
	case types.ActionBuy:
		var err error
		account, err = ledger.LockAccount(tx, order.AccountID, order.UserID)
		if err != nil {
			return nil, err
		}
		if account == nil {
			return nil, types.ErrInvalidAccount
		}
		if account.Balance.LessThan(order.TotalCost()) {
			return nil, order.BalanceError()
		}

	case types.ActionSell:
		var err error
		account, err = e.lockForSell(ctx, tx, order)
		if err != nil {
			return nil, err
		}

	default:
		return nil, types.ErrInvalidAction
	}

	pending := &types.PendingOrder{
		UserID:       order.UserID,
		AccountID:    order.AccountID,
		TickerSymbol: order.TickerSymbol,
		ExchangeID:   order.ExchangeID,
		OrderType:    order.OrderType,
		ActionType:   order.Action,
		Quantity:     order.NumShares,
		LimitPrice:   order.LimitPrice,
		StopPrice:    order.StopPrice,
		ExpiryDate:   order.ExpiryDate,
		Status:       types.OrderStatusPending,
	}
	if err := insertPendingOrder(tx, pending); err != nil {
		return nil, err
	}

	return &types.Confirmation{
		ConfirmationID: newConfirmationID(),
		Status:         types.OrderStatusPending,
		Action:         order.Action,
		OrderType:      order.OrderType,
		TickerSymbol:   order.TickerSymbol,
		NumShares:      order.NumShares,
		Price:          order.ReferencePrice,
		TotalAmount:    order.TotalCost(),
		AccountID:      account.AccountID,
		Balance:        account.Balance,
		OrderID:        &pending.OrderID,
		Message:        queuedMessage(order.Action, order.OrderType),
		Timestamp:      pending.CreatedAt,
	}, nil
}

// lockForSell locks all accounts of the seller, since holdings are per user,
// and checks the holdings read under those locks
func (e *Engine) lockForSell(ctx context.Context, tx *gorm.DB, order *types.ExecutableOrder) (*types.Account, error) {
	accounts, err := ledger.LockUserAccounts(tx, order.UserID)
	if err != nil {
		return nil, err
	}

	var account *types.Account
	for i := range accounts {
		if accounts[i].AccountID == order.AccountID {
			account = &accounts[i]
			break
		}
	}
	if account == nil {
		return nil, types.ErrInvalidAccount
	}

	held, err := ledger.HeldShares(ctx, tx, order.UserID, order.TickerSymbol)
	if err != nil {
		return nil, err
	}
	if held.LessThan(order.NumShares) {
		return nil, order.SharesError()
	}
	return account, nil
}

// Cancel moves a PENDING order owned by userID to CANCELLED. Anything else,
// including a second cancel, fails with ErrNotCancellable.
func (e *Engine) Cancel(ctx context.Context, userID, orderID uint) (*types.PendingOrder, error) {
	logger := log.With().
		Str("service", "settlement").
		Uint("user_id", userID).
		Uint("order_id", orderID).
		Logger()

	var order *types.PendingOrder
	err := database.Transact(ctx, e.db, e.attempts, func(tx *gorm.DB) error {
		ok, err := transition(tx, orderID, userID, types.OrderStatusCancelled, nil)
		if err != nil {
			return err
		}
		if !ok {
			return types.ErrNotCancellable
		}
		order, err = findOrder(tx, orderID)
		return err
	})
	if err != nil {
		e.logFailure(logger, err, "cancel rejected")
		return nil, types.Unknown(err)
	}

	logger.Info().Msg("order cancelled")
	e.bus.Publish(events.Event{Type: events.OrderCancelled, UserID: userID, Data: order})
	return order, nil
}

// Fill claims a PENDING order and executes it at price in one transaction.
// If the account can no longer cover it the claim rolls back and the order stays PENDING.
func (e *Engine) Fill(ctx context.Context, pending types.PendingOrder, price decimal.Decimal) (*types.Confirmation, error) {
	order := &types.ExecutableOrder{
		UserID:         pending.UserID,
		AccountID:      pending.AccountID,
		Action:         pending.ActionType,
		OrderType:      pending.OrderType,
		TickerSymbol:   pending.TickerSymbol,
		NumShares:      pending.Quantity,
		CostPerShare:   price,
		LimitPrice:     pending.LimitPrice,
		StopPrice:      pending.StopPrice,
		ReferencePrice: price,
		ExchangeID:     pending.ExchangeID,
		ExpiryDate:     pending.ExpiryDate,
		OrderID:        &pending.OrderID,
	}
	logger := e.logger(order)

	release := e.locks.Lock(order.UserID)
	defer release()

	var confirmation *types.Confirmation
	err := database.Transact(ctx, e.db, e.attempts, func(tx *gorm.DB) error {
		claimed, err := claimForFill(tx, pending.OrderID, price, e.now())
		if err != nil {
			return err
		}
		if !claimed {
			return ErrNotPending
		}

		confirmation, err = e.execute(ctx, tx, order, price)
		if err != nil {
			return err
		}
		return attachTransaction(tx, pending.OrderID, *confirmation.TransactionID)
	})
	if errors.Is(err, ErrNotPending) {
		return nil, err
	}
	if err != nil {
		e.logFailure(logger, err, "fill rejected")
		return nil, types.Unknown(err)
	}

	confirmation.Message = filledMessage(order.Action, order.OrderType)
	logger.Info().
		Str("price", price.String()).
		Str("balance", confirmation.Balance.String()).
		Msg("pending order executed")

	e.bus.Publish(events.Event{Type: events.OrderExecuted, UserID: order.UserID, Data: confirmation})
	return confirmation, nil
}

// Expire moves an overdue PENDING order to EXPIRED. It returns ErrNotPending
// when the order already left PENDING.
func (e *Engine) Expire(ctx context.Context, pending types.PendingOrder, now time.Time) error {
	if !pending.Expired(now) {
		return fmt.Errorf("order %d expires at %v, not yet due", pending.OrderID, pending.ExpiryDate)
	}

	ok, err := transition(e.db.WithContext(ctx), pending.OrderID, 0, types.OrderStatusExpired, nil)
	if err != nil {
		return types.Unknown(err)
	}
	if !ok {
		return ErrNotPending
	}

	log.Info().
		Str("service", "settlement").
		Uint("user_id", pending.UserID).
		Uint("order_id", pending.OrderID).
		Msg("pending order expired")

	pending.Status = types.OrderStatusExpired
	e.bus.Publish(events.Event{Type: events.OrderExpired, UserID: pending.UserID, Data: pending})
	return nil
}

func (e *Engine) logger(order *types.ExecutableOrder) zerolog.Logger {
	fields := log.With().
		Str("service", "settlement").
		Uint("user_id", order.UserID).
		Uint("account_id", order.AccountID).
		Str("ticker_symbol", order.TickerSymbol).
		Str("action", string(order.Action)).
		Str("order_type", string(order.OrderType)).
		Str("num_shares", order.NumShares.String())
	if order.OrderID != nil {
		fields = fields.Uint("order_id", *order.OrderID)
	}
	return fields.Logger()
}

func (e *Engine) logFailure(logger zerolog.Logger, err error, msg string) {
	if types.KindOf(err) == types.KindUnknown {
		logger.Error().Err(err).Msg(msg)
		return
	}
	logger.Warn().Err(err).Msg(msg)
}

func newConfirmationID() string {
	return "CNF_" + uuid.New().String()
}

func executedMessage(action types.Action) string {
	return actionTitle(action) + " order executed successfully!"
}

func queuedMessage(action types.Action, orderType types.OrderType) string {
	return fmt.Sprintf("%s %s order placed successfully! It will execute when conditions are met.",
		actionTitle(action), orderTypeWords(orderType))
}

func filledMessage(action types.Action, orderType types.OrderType) string {
	return fmt.Sprintf("%s %s order executed successfully!", actionTitle(action), orderTypeWords(orderType))
}

func actionTitle(action types.Action) string {
	s := strings.ToLower(string(action))
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func orderTypeWords(orderType types.OrderType) string {
	return strings.ReplaceAll(strings.ToLower(string(orderType)), "_", " ")
}

// GinHandlers contains HTTP handlers for internal settlement endpoints
type GinHandlers struct {
	processor *Processor
}

func NewGinHandlers(processor *Processor) *GinHandlers {
	return &GinHandlers{
		processor: processor,
	}
}

// SweepHandler runs one trigger sweep immediately
func (h *GinHandlers) SweepHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := h.processor.RunOnce(c.Request.Context())
		response.Handle(c, result, types.Unknown(err))
	}
}
