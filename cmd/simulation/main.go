package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ksred/papertrade/internal/config"
	"github.com/ksred/papertrade/internal/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	numWorkers       = 8
	ordersPerWorker  = 10
	startingBalance  = "10000"
	defaultServerURL = "http://localhost:8080"
)

var symbols = []string{"AAPL", "GOOGL", "MSFT", "AMZN", "META"}

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	mu         sync.Mutex
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// record stores one call to the route
func (rs *routeStats) record(d time.Duration, failed bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
	if failed {
		rs.failures++
	}
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// envelope is the response wrapper of every API call
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// apiError is a non-2xx answer from the server
type apiError struct {
	status  int
	code    string
	message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("status %d %s: %s", e.status, e.code, e.message)
}

// simulationClient handles HTTP communication with the trading API
type simulationClient struct {
	baseURL   string
	authToken string
	client    *http.Client
	stats     map[string]*routeStats
}

// newSimulationClient creates a client and logs in as the demo user
func newSimulationClient(baseURL, username, password string) (*simulationClient, error) {
	sc := &simulationClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		stats: map[string]*routeStats{
			"auth":     {name: "Authentication"},
			"accounts": {name: "Accounts"},
			"prices":   {name: "Set Price"},
			"order":    {name: "Place Order"},
			"cancel":   {name: "Cancel Order"},
			"sweep":    {name: "Sweep"},
			"holdings": {name: "Holdings"},
		},
	}

	var token struct {
		Token string `json:"jwt_token"`
	}
	creds := map[string]string{"username": username, "password": password}
	if err := sc.call("auth", http.MethodPost, "/api/v1/auth/token", "", creds, &token); err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	sc.authToken = token.Token
	return sc, nil
}

// call sends one request and decodes the data field of the response into out
func (sc *simulationClient) call(route, method, path, bearer string, body, out interface{}) (err error) {
	start := time.Now()
	defer func() {
		sc.stats[route].record(time.Since(start), err != nil)
	}()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, sc.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer == "" {
		bearer = sc.authToken
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if method == http.MethodPost && strings.HasSuffix(path, "/orders") {
		req.Header.Set("Idempotency-Key", uuid.New().String())
	}

	resp, err := sc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("route", route).Str("response", string(respBody)).Msg("API response")

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}
	if resp.StatusCode >= 300 || !env.Success {
		apiErr := &apiError{status: resp.StatusCode}
		if env.Error != nil {
			apiErr.code, apiErr.message = env.Error.Code, env.Error.Message
		}
		return apiErr
	}

	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func (sc *simulationClient) printPerformanceStats() {
	fmt.Println("\nAPI Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	routes := make([]string, 0, len(sc.stats))
	for route := range sc.stats {
		routes = append(routes, route)
	}
	sort.Strings(routes)

	for _, route := range routes {
		stats := sc.stats[route]
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

// simulationStats counts order outcomes across workers
type simulationStats struct {
	mu        sync.Mutex
	executed  int
	queued    int
	rejected  map[string]int
	failed    int
	spent     decimal.Decimal
	pendingID []uint
}

func (s *simulationStats) add(confirmation *types.Confirmation, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var apiErr *apiError
	switch {
	case err == nil && confirmation.Status == types.OrderStatusPending:
		s.queued++
		if confirmation.OrderID != nil {
			s.pendingID = append(s.pendingID, *confirmation.OrderID)
		}
	case err == nil:
		s.executed++
		if confirmation.Action == types.ActionBuy {
			s.spent = s.spent.Add(confirmation.TotalAmount)
		}
	case errors.As(err, &apiErr) && apiErr.status < 500:
		s.rejected[apiErr.code]++
	default:
		s.failed++
	}
}

// main fires concurrent orders at one account of the demo user and checks
// that the account was never overdrawn
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if cfg.DemoUsername == "" {
		log.Fatal().Msg("DEMO_USERNAME must be set to the user the server seeds")
	}

	baseURL := os.Getenv("PAPERTRADE_URL")
	if baseURL == "" {
		baseURL = defaultServerURL
	}

	simClient, err := newSimulationClient(baseURL, cfg.DemoUsername, cfg.DemoPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize simulation client")
	}

	var account types.Account
	body := map[string]string{"initial_balance": startingBalance}
	if err := simClient.call("accounts", http.MethodPost, "/api/v1/accounts", "", body, &account); err != nil {
		log.Fatal().Err(err).Msg("Failed to open simulation account")
	}
	log.Info().Uint("account_id", account.AccountID).Str("balance", account.Balance.String()).Msg("Simulation account opened")

	prices := make(map[string]decimal.Decimal, len(symbols))
	for _, symbol := range symbols {
		price := decimal.NewFromInt(int64(rand.Intn(400) + 100))
		prices[symbol] = price
		body := map[string]string{"current_price": price.String()}
		if err := simClient.call("prices", http.MethodPut, "/api/v1/internal/prices/"+symbol, cfg.InternalToken, body, nil); err != nil {
			log.Fatal().Err(err).Str("symbol", symbol).Msg("Failed to set price")
		}
	}

	stats := &simulationStats{rejected: make(map[string]int)}
	startTime := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			placeOrders(workerID, simClient, account.AccountID, prices, stats)
		}(i)
	}
	wg.Wait()

	// Half of the pending orders are cancelled, the rest get a chance to fill
	for i, orderID := range stats.pendingID {
		if i%2 == 0 {
			path := fmt.Sprintf("/api/v1/orders/%d/cancel", orderID)
			if err := simClient.call("cancel", http.MethodPost, path, "", nil, nil); err != nil {
				log.Error().Err(err).Uint("order_id", orderID).Msg("Failed to cancel order")
			}
		}
	}

	var sweep struct {
		Checked  int `json:"checked"`
		Executed int `json:"executed"`
		Expired  int `json:"expired"`
		Failed   int `json:"failed"`
	}
	if err := simClient.call("sweep", http.MethodPost, "/api/v1/internal/sweep", cfg.InternalToken, nil, &sweep); err != nil {
		log.Error().Err(err).Msg("Failed to run sweep")
	}

	var accounts []types.Account
	if err := simClient.call("accounts", http.MethodGet, "/api/v1/accounts", "", nil, &accounts); err != nil {
		log.Fatal().Err(err).Msg("Failed to fetch accounts")
	}
	var holdings []json.RawMessage
	if err := simClient.call("holdings", http.MethodGet, "/api/v1/holdings", "", nil, &holdings); err != nil {
		log.Error().Err(err).Msg("Failed to fetch holdings")
	}

	var final decimal.Decimal
	for _, a := range accounts {
		if a.AccountID == account.AccountID {
			final = a.Balance
		}
	}

	duration := time.Since(startTime)
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("TRADING SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf(`
Order Statistics
----------------
Executed:         %d
Queued:           %d
Failed:           %d
Swept:            %d checked, %d executed
Spent on buys:    $%s
Final balance:    $%s
Positions:        %d
Duration:         %v

Rejections
----------
`, stats.executed, stats.queued, stats.failed, sweep.Checked, sweep.Executed,
		stats.spent.StringFixed(2), final.StringFixed(2), len(holdings), duration.Round(time.Millisecond))

	for code, count := range stats.rejected {
		fmt.Printf("%-22s %d\n", code, count)
	}
	fmt.Println("\n" + strings.Repeat("=", 80))

	if final.IsNegative() {
		log.Error().Str("balance", final.String()).Msg("Account was overdrawn")
	} else {
		log.Info().Str("balance", final.String()).Msg("Account never overdrawn")
	}

	simClient.printPerformanceStats()

	if final.IsNegative() {
		os.Exit(1)
	}
}

// placeOrders submits random orders against accountID
func placeOrders(workerID int, simClient *simulationClient, accountID uint, prices map[string]decimal.Decimal, stats *simulationStats) {
	for i := 0; i < ordersPerWorker; i++ {
		symbol := symbols[rand.Intn(len(symbols))]
		price := prices[symbol]

		order := map[string]interface{}{
			"account_id":     accountID,
			"action":         "buy",
			"order_type":     "MARKET",
			"ticker_symbol":  symbol,
			"num_shares":     rand.Intn(10) + 1,
			"cost_per_share": price.String(),
			"exchange_id":    1,
		}
		switch rand.Intn(4) {
		case 0:
			order["action"] = "sell"
		case 1:
			order["order_type"] = "LIMIT"
			order["limit_price"] = price.Mul(decimal.NewFromFloat(0.98)).Round(2).String()
		}

		var confirmation types.Confirmation
		err := simClient.call("order", http.MethodPost, "/api/v1/orders", "", order, &confirmation)
		stats.add(&confirmation, err)

		event := log.Info()
		if err != nil {
			event = log.Warn().Err(err)
		}
		event.
			Int("worker_id", workerID).
			Str("symbol", symbol).
			Interface("action", order["action"]).
			Interface("order_type", order["order_type"]).
			Msg("Order submitted")

		time.Sleep(time.Duration(rand.Intn(100)) * time.Millisecond)
	}
}
