package config

import (
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ENV", "LOG_LEVEL", "DEBUG", "DB_DRIVER", "DB_DSN", "JWT_SECRET", "JWT_TTL",
		"SWEEP_INTERVAL", "SETTLEMENT_MAX_RETRIES", "CREDIT_SELL_PROCEEDS", "SEED_CATALOG", "DEMO_BALANCE"} {
		t.Setenv(key, "")
	}

	c, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}

	if c.Port != "8080" {
		t.Errorf("Port = %q, want 8080", c.Port)
	}
	if c.DBDriver != DriverSQLite {
		t.Errorf("DBDriver = %q, want sqlite", c.DBDriver)
	}
	if c.SweepInterval != 30*time.Second {
		t.Errorf("SweepInterval = %v, want 30s", c.SweepInterval)
	}
	if c.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", c.MaxRetries)
	}
	if c.CreditSellProceeds {
		t.Error("CreditSellProceeds should default to false")
	}
	if !c.SeedCatalog {
		t.Error("SeedCatalog should default to true")
	}
	if c.JWTSecret == "" {
		t.Error("development JWT secret should have a default")
	}
	if c.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", c.LogLevel)
	}
}

func TestFromEnvInvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"DB_DRIVER", "mysql"},
		{"JWT_TTL", "soon"},
		{"SWEEP_INTERVAL", "-5s"},
		{"SETTLEMENT_MAX_RETRIES", "three"},
		{"SETTLEMENT_MAX_RETRIES", "0"},
		{"CREDIT_SELL_PROCEEDS", "maybe"},
		{"DEMO_BALANCE", "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv("ENV", "development")
			t.Setenv(tt.key, tt.value)
			if _, err := FromEnv(); err == nil {
				t.Errorf("FromEnv() with %s=%q should fail", tt.key, tt.value)
			}
		})
	}
}

func TestFromEnvProductionRequiresSecret(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", "")

	if _, err := FromEnv(); err == nil {
		t.Fatal("production without JWT_SECRET should fail")
	}

	t.Setenv("JWT_SECRET", "s3cret")
	c, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}
	if !c.Production() {
		t.Error("Production() should be true")
	}
}

func TestFromEnvDebugFallback(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("DEBUG", "true")

	c, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}
	if c.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", c.LogLevel)
	}
}
