package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/ksred/papertrade/internal/auth"
	"github.com/ksred/papertrade/internal/config"
	"github.com/ksred/papertrade/internal/database"
	"github.com/ksred/papertrade/internal/events"
	"github.com/ksred/papertrade/internal/ledger"
	"github.com/ksred/papertrade/internal/market"
	"github.com/ksred/papertrade/internal/settlement"
	"github.com/ksred/papertrade/internal/trading"
	"github.com/ksred/papertrade/pkg/middleware"
	"github.com/ksred/papertrade/pkg/response"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// handlers groups every HTTP handler set the router needs
type handlers struct {
	auth       *auth.GinHandlers
	ledger     *ledger.GinHandlers
	market     *market.GinHandlers
	trading    *trading.GinHandlers
	settlement *settlement.GinHandlers
	stream     *events.OrderStream
}

// configureLogging sets up zerolog. Development gets pretty console output.
func configureLogging(cfg config.Config) {
	if !cfg.Production() {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// main wires the services together and runs the API server and the
// pending order processor until SIGINT or SIGTERM
func main() {
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Invalid configuration")
	}
	configureLogging(cfg)

	db, err := database.NewDatabase(cfg)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	bus := events.NewBus()

	authService := auth.NewService(db, cfg.JWTSecret, cfg.JWTTTL)
	ledgerService := ledger.NewService(db, cfg.MaxRetries)
	marketService := market.NewService(db)
	engine := settlement.NewEngine(db,
		settlement.WithEvents(bus),
		settlement.WithMaxAttempts(cfg.MaxRetries),
		settlement.WithSellProceeds(cfg.CreditSellProceeds),
	)
	tradingService := trading.NewService(db, marketService, engine)
	processor := settlement.NewProcessor(engine, marketService, cfg.SweepInterval)

	if err := seedDemoUser(context.Background(), cfg, authService, ledgerService); err != nil {
		zlog.Fatal().Err(err).Msg("Failed to seed demo user")
	}

	processorCtx, processorCancel := context.WithCancel(context.Background())
	defer processorCancel()
	go processor.Start(processorCtx)

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger())

	setupRoutes(router, cfg, db, authService, handlers{
		auth:       auth.NewGinHandlers(authService),
		ledger:     ledger.NewGinHandlers(ledgerService),
		market:     market.NewGinHandlers(marketService),
		trading:    trading.NewGinHandlers(tradingService),
		settlement: settlement.NewGinHandlers(processor),
		stream:     events.NewOrderStream(bus, cfg.WebSocketOrigin),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zlog.Info().Str("port", cfg.Port).Str("driver", cfg.DBDriver).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	processorCancel()

	// Give outstanding requests 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	zlog.Info().Msg("Server exiting")
}

// seedDemoUser creates the configured demo user with one funded account
func seedDemoUser(ctx context.Context, cfg config.Config, authService *auth.Service, ledgerService *ledger.Service) error {
	if cfg.DemoUsername == "" {
		return nil
	}

	user, err := authService.EnsureUser(ctx, cfg.DemoUsername, cfg.DemoPassword)
	if err != nil {
		return err
	}

	accounts, err := ledgerService.ListAccounts(ctx, user.UserID)
	if err != nil {
		return err
	}
	if len(accounts) > 0 {
		return nil
	}

	account, err := ledgerService.CreateAccount(ctx, user.UserID, cfg.DemoBalance)
	if err != nil {
		return err
	}
	zlog.Info().
		Str("username", user.Username).
		Uint("account_id", account.AccountID).
		Msg("Demo user ready")
	return nil
}

// setupRoutes configures all API endpoints and their handlers:
// - Public routes: health, login and the stock catalog
// - User routes: protected by JWT authentication
// - Internal routes: protected by the internal API token
func setupRoutes(router *gin.Engine, cfg config.Config, db *gorm.DB, validator middleware.TokenValidator, h handlers) {
	router.GET("/health", healthHandler(db))

	v1 := router.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		authGroup.Use(middleware.RateLimit())
		{
			authGroup.POST("/token", h.auth.GenerateTokenHandler())
		}

		v1.GET("/stocks", middleware.RateLimit(), h.market.ListStocksHandler())
		v1.GET("/exchanges", middleware.RateLimit(), h.market.ListExchangesHandler())

		user := v1.Group("")
		user.Use(middleware.JWTAuth(validator), middleware.RateLimit())
		{
			user.GET("/accounts", h.ledger.ListAccountsHandler())
			user.POST("/accounts", h.ledger.CreateAccountHandler())
			user.POST("/accounts/:account_id/deposit", h.ledger.DepositHandler())
			user.POST("/accounts/:account_id/withdraw", h.ledger.WithdrawHandler())

			user.GET("/holdings", h.ledger.HoldingsHandler())
			user.GET("/holdings/:symbol", h.ledger.HeldSharesHandler())
			user.GET("/transactions", h.ledger.HistoryHandler())

			user.POST("/orders", h.trading.PlaceOrderHandler())
			user.GET("/orders", h.trading.ListOrdersHandler())
			user.GET("/orders/stats", h.trading.OrderStatsHandler())
			user.POST("/orders/:order_id/cancel", h.trading.CancelOrderHandler())
		}

		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(cfg.InternalToken))
		{
			internal.PUT("/prices/:symbol", h.market.SetPriceHandler())
			internal.POST("/sweep", h.settlement.SweepHandler())
		}
	}

	router.GET("/ws/orders", middleware.JWTAuth(validator), h.stream.Handler())
}

func healthHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			zlog.Error().Err(err).Msg("health check failed")
			c.JSON(http.StatusServiceUnavailable, response.Response{
				Success: false,
				Error: &response.Error{
					Code:    response.ErrCodeInternalError,
					Message: "database unavailable",
				},
			})
			return
		}
		response.Success(c, gin.H{"status": "ok"})
	}
}
