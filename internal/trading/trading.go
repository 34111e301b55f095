package trading

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/papertrade/internal/auth"
	"github.com/ksred/papertrade/internal/ledger"
	"github.com/ksred/papertrade/internal/types"
	"github.com/ksred/papertrade/pkg/response"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// IdempotencyHeader lets clients retry an order submission safely
const IdempotencyHeader = "Idempotency-Key"

const maxIdempotencyKeyLength = 128

// Listings checks orders against the stock catalog
type Listings interface {
	CheckListing(ctx context.Context, symbol string, exchangeID uint) error
}

// Settler records validated orders and cancels pending ones
type Settler interface {
	Settle(ctx context.Context, order *types.ExecutableOrder) (*types.Confirmation, error)
	Cancel(ctx context.Context, userID, orderID uint) (*types.PendingOrder, error)
}

// Service handles order placement and order queries
type Service struct {
	gormDB   *gorm.DB
	db       *Database
	listings Listings
	settler  Settler
	now      func() time.Time
}

// NewService creates a new trading service
func NewService(gormDB *gorm.DB, listings Listings, settler Settler) *Service {
	return &Service{
		gormDB:   gormDB,
		db:       NewDatabase(gormDB),
		listings: listings,
		settler:  settler,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// PlaceOrder validates req and hands it to settlement.
// A non-empty idempotencyKey that the user already used within the last day
// returns the original confirmation without settling again.
// Parameters:
//   - req: the raw order; UserID must be the authenticated user
//   - idempotencyKey: optional client key, empty to disable replay
func (s *Service) PlaceOrder(ctx context.Context, req types.OrderRequest, idempotencyKey string) (*types.Confirmation, error) {
	logger := log.With().
		Str("service", "trading").
		Uint("user_id", req.UserID).
		Uint("account_id", req.AccountID).
		Logger()

	if len(idempotencyKey) > maxIdempotencyKeyLength {
		return nil, types.ErrIdemKeyTooLong
	}
	requestHash := fingerprint(req)
	if idempotencyKey != "" {
		previous, err := s.replay(ctx, req.UserID, idempotencyKey, requestHash)
		if err != nil {
			if types.KindOf(err) == types.KindIdemKeyReused {
				logger.Warn().Str("idempotency_key", idempotencyKey).Msg("idempotency key reused for a different order")
			}
			return nil, types.Unknown(err)
		}
		if previous != nil {
			logger.Info().Str("idempotency_key", idempotencyKey).Msg("replaying order confirmation")
			return previous, nil
		}
	}

	if err := CheckRequest(&req); err != nil {
		logger.Warn().Err(err).Msg("order rejected")
		return nil, err
	}
	if err := s.listings.CheckListing(ctx, req.TickerSymbol, req.ExchangeID); err != nil {
		logger.Warn().Err(err).Str("ticker_symbol", req.TickerSymbol).Msg("order rejected")
		return nil, err
	}

	account, err := s.db.GetAccount(ctx, req.AccountID, req.UserID)
	if err != nil {
		return nil, types.Unknown(err)
	}
	held, err := ledger.HeldShares(ctx, s.gormDB, req.UserID, req.TickerSymbol)
	if err != nil {
		return nil, types.Unknown(err)
	}

	order, err := Validate(req, account, held, s.now())
	if err != nil {
		logger.Warn().Err(err).Str("ticker_symbol", req.TickerSymbol).Msg("order rejected")
		return nil, err
	}

	confirmation, err := s.settler.Settle(ctx, order)
	if err != nil {
		return nil, err
	}

	if idempotencyKey != "" {
		s.remember(ctx, req.UserID, idempotencyKey, requestHash, confirmation)
	}
	return confirmation, nil
}

// replay returns the confirmation stored under key. A key first used for a
// different order is ErrIdemKeyReused.
func (s *Service) replay(ctx context.Context, userID uint, key, requestHash string) (*types.Confirmation, error) {
	record, err := s.db.GetIdempotencyRecord(ctx, userID, key)
	if err != nil || record == nil {
		return nil, err
	}
	if record.RequestHash != requestHash {
		return nil, types.ErrIdemKeyReused
	}

	var confirmation types.Confirmation
	if err := json.Unmarshal([]byte(record.Payload), &confirmation); err != nil {
		return nil, err
	}
	return &confirmation, nil
}

// remember stores the confirmation for replay. The order already settled,
// so a failure here is logged and not returned.
func (s *Service) remember(ctx context.Context, userID uint, key, requestHash string, confirmation *types.Confirmation) {
	payload, err := json.Marshal(confirmation)
	if err == nil {
		err = s.db.SaveIdempotencyRecord(ctx, &types.IdempotencyRecord{
			IdempotencyKey: key,
			UserID:         userID,
			ResourceID:     confirmation.ConfirmationID,
			ResourceType:   "order",
			RequestHash:    requestHash,
			Payload:        string(payload),
		})
	}
	if err != nil {
		log.Error().
			Err(err).
			Uint("user_id", userID).
			Str("idempotency_key", key).
			Msg("failed to store idempotency record")
	}
}

// CancelOrder cancels a PENDING order owned by userID
func (s *Service) CancelOrder(ctx context.Context, userID, orderID uint) (*types.PendingOrder, error) {
	return s.settler.Cancel(ctx, userID, orderID)
}

// ListOrders returns the user's non-market orders, newest first, optionally filtered by status
func (s *Service) ListOrders(ctx context.Context, userID uint, status string) ([]types.PendingOrder, error) {
	filter := types.OrderStatus(strings.ToUpper(strings.TrimSpace(status)))
	switch filter {
	case "", types.OrderStatusPending, types.OrderStatusExecuted, types.OrderStatusCancelled, types.OrderStatusExpired:
	default:
		return nil, types.ErrInvalidOrderStatus
	}

	orders, err := s.db.ListOrders(ctx, userID, filter)
	if err != nil {
		return nil, types.Unknown(err)
	}
	return orders, nil
}

// OrderStats counts the user's orders per status
func (s *Service) OrderStats(ctx context.Context, userID uint) (*OrderStats, error) {
	counts, err := s.db.CountOrdersByStatus(ctx, userID)
	if err != nil {
		return nil, types.Unknown(err)
	}

	stats := &OrderStats{
		Pending:   counts[types.OrderStatusPending],
		Executed:  counts[types.OrderStatusExecuted],
		Cancelled: counts[types.OrderStatusCancelled],
		Expired:   counts[types.OrderStatusExpired],
	}
	stats.Total = stats.Pending + stats.Executed + stats.Cancelled + stats.Expired
	return stats, nil
}

// GinHandlers contains HTTP handlers for trading endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for trading endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// PlaceOrderHandler handles POST requests to place orders.
// The Idempotency-Key header is optional.
func (h *GinHandlers) PlaceOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.RequireUserID(c)
		if !ok {
			return
		}

		var req PlaceOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		idempotencyKey := strings.TrimSpace(c.GetHeader(IdempotencyHeader))
		confirmation, err := h.service.PlaceOrder(c.Request.Context(), req.toOrderRequest(userID), idempotencyKey)
		response.Handle(c, confirmation, err)
	}
}

// CancelOrderHandler handles POST requests to cancel a pending order
// URL parameter: order_id
func (h *GinHandlers) CancelOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.RequireUserID(c)
		if !ok {
			return
		}

		orderID, err := strconv.ParseUint(c.Param("order_id"), 10, 64)
		if err != nil {
			response.Handle(c, nil, types.ErrNotCancellable)
			return
		}

		order, err := h.service.CancelOrder(c.Request.Context(), userID, uint(orderID))
		response.Handle(c, order, err)
	}
}

func (h *GinHandlers) ListOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.RequireUserID(c)
		if !ok {
			return
		}

		orders, err := h.service.ListOrders(c.Request.Context(), userID, c.Query("status"))
		response.Handle(c, orders, err)
	}
}

func (h *GinHandlers) OrderStatsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.RequireUserID(c)
		if !ok {
			return
		}

		stats, err := h.service.OrderStats(c.Request.Context(), userID)
		response.Handle(c, stats, err)
	}
}
