package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all runtime settings for the server
type Config struct {
	Port               string
	Env                string
	LogLevel           string
	DBDriver           string
	DBDSN              string
	JWTSecret          string
	JWTTTL             time.Duration
	InternalToken      string
	WebSocketOrigin    string
	SweepInterval      time.Duration
	MaxRetries         int
	CreditSellProceeds bool
	SeedCatalog        bool
	DemoUsername       string
	DemoPassword       string
	DemoBalance        decimal.Decimal
}

// Production reports whether the server runs with production settings
func (c Config) Production() bool {
	return c.Env == "production"
}

// Load reads a .env file if present and then the process environment.
// Every key has a development default except JWT_SECRET in production.
func Load() (Config, error) {
	// A missing .env file is fine, the environment may carry everything
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the process environment only
func FromEnv() (Config, error) {
	var c Config
	var err error

	c.Port = getEnv("PORT", "8080")
	c.Env = strings.ToLower(getEnv("ENV", "development"))
	c.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", ""))
	if c.LogLevel == "" && os.Getenv("DEBUG") == "true" {
		c.LogLevel = "debug"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	c.DBDriver = strings.ToLower(getEnv("DB_DRIVER", DriverSQLite))
	if c.DBDriver != DriverSQLite && c.DBDriver != DriverPostgres {
		return c, fmt.Errorf("invalid DB_DRIVER %q: use sqlite or postgres", c.DBDriver)
	}
	c.DBDSN = getEnv("DB_DSN", "papertrade.db")

	c.JWTSecret = os.Getenv("JWT_SECRET")
	if c.JWTSecret == "" {
		if c.Production() {
			return c, errors.New("JWT_SECRET is required in production")
		}
		c.JWTSecret = "papertrade-dev-secret"
	}
	if c.JWTTTL, err = getDuration("JWT_TTL", 24*time.Hour); err != nil {
		return c, err
	}

	c.InternalToken = getEnv("INTERNAL_API_TOKEN", "papertrade-internal")
	c.WebSocketOrigin = getEnv("WS_ORIGIN", "*")

	if c.SweepInterval, err = getDuration("SWEEP_INTERVAL", 30*time.Second); err != nil {
		return c, err
	}
	if c.MaxRetries, err = getInt("SETTLEMENT_MAX_RETRIES", 3); err != nil {
		return c, err
	}
	if c.MaxRetries < 1 {
		return c, errors.New("invalid SETTLEMENT_MAX_RETRIES: must be at least 1")
	}
	if c.CreditSellProceeds, err = getBool("CREDIT_SELL_PROCEEDS", false); err != nil {
		return c, err
	}
	if c.SeedCatalog, err = getBool("SEED_CATALOG", true); err != nil {
		return c, err
	}

	c.DemoUsername = os.Getenv("DEMO_USERNAME")
	c.DemoPassword = os.Getenv("DEMO_PASSWORD")
	c.DemoBalance = decimal.NewFromInt(10000)
	if raw := os.Getenv("DEMO_BALANCE"); raw != "" {
		c.DemoBalance, err = decimal.NewFromString(raw)
		if err != nil || c.DemoBalance.IsNegative() {
			return c, fmt.Errorf("invalid DEMO_BALANCE %q", raw)
		}
	}

	return c, nil
}

// getEnv returns the environment value for key or defaultValue when unset
func getEnv(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive duration", key, raw)
	}
	return d, nil
}

func getInt(key string, defaultValue int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be an integer", key, raw)
	}
	return n, nil
}

func getBool(key string, defaultValue bool) (bool, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: must be true or false", key, raw)
	}
	return b, nil
}
