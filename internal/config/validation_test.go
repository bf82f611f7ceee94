//nolint:goconst // Test files use repeated strings for clarity
package config

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getValidConfig returns a valid configuration for testing
func getValidConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "paper-trader",
			Version:     "0.1.0",
			Environment: "development",
			LogLevel:    "info",
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "secure_password",
			Database: "paper_trader",
			SSLMode:  "disable",
			PoolSize: 10,
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
			DB:   0,
		},
		LLM: LLMConfig{
			Gateway:        "bifrost",
			Endpoint:       "http://localhost:8080/v1/chat/completions",
			PrimaryModel:   "claude-sonnet-4",
			FallbackModel:  "gpt-4-turbo",
			Temperature:    0.3,
			MaxTokens:      1500,
			Timeout:        30000,
			ConsultTimeout: 10000,
		},
		Trading: TradingConfig{
			Symbols:        []string{"BTC/USDT", "ETH/USDT"},
			Timeframe:      "5m",
			Exchange:       "binance",
			InitialCapital: 100000.0,
			CycleInterval:  300,
		},
		Risk: RiskConfig{
			RiskPerTrade:       0.005,
			MaxExposurePct:     0.02,
			MinConfidence:      0.6,
			KillSwitchMultiple: 3.0,
			KillSwitchCooldown: 12,
			MaxHoldBars:        40,
			CooldownBars:       3,
		},
		Exchange: ExchangeConfig{
			APIKey:    "test_api_key",
			SecretKey: "test_secret_key",
			Testnet:   true,
			Fees: FeeConfig{
				FeeBps:                  2.0,
				MinSlippageBps:          3.0,
				SlippageRangeMultiplier: 15.0,
			},
		},
		Monitoring: MonitoringConfig{
			PrometheusPort: 9100,
			EnableMetrics:  true,
		},
	}
}

func TestValidateValidConfig(t *testing.T) {
	cfg := getValidConfig()
	err := cfg.Validate()
	assert.NoError(t, err, "Valid configuration should not produce errors")
}

func TestValidateApp(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name: "missing app name",
			modify: func(c *Config) {
				c.App.Name = ""
			},
			expectError: "app.name",
		},
		{
			name: "missing environment",
			modify: func(c *Config) {
				c.App.Environment = ""
			},
			expectError: "app.environment",
		},
		{
			name: "invalid environment",
			modify: func(c *Config) {
				c.App.Environment = "invalid_env"
			},
			expectError: "Invalid environment",
		},
		{
			name: "missing log level",
			modify: func(c *Config) {
				c.App.LogLevel = ""
			},
			expectError: "app.log_level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateDatabase(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name: "missing host",
			modify: func(c *Config) {
				c.Database.Host = ""
			},
			expectError: "database.host",
		},
		{
			name: "missing port",
			modify: func(c *Config) {
				c.Database.Port = 0
			},
			expectError: "database.port",
		},
		{
			name: "invalid port - too high",
			modify: func(c *Config) {
				c.Database.Port = 70000
			},
			expectError: "Invalid port",
		},
		{
			name: "invalid port - negative",
			modify: func(c *Config) {
				c.Database.Port = -1
			},
			expectError: "Invalid port",
		},
		{
			name: "missing user",
			modify: func(c *Config) {
				c.Database.User = ""
			},
			expectError: "database.user",
		},
		{
			name: "missing database name",
			modify: func(c *Config) {
				c.Database.Database = ""
			},
			expectError: "database.database",
		},
		{
			name: "missing password in production",
			modify: func(c *Config) {
				c.App.Environment = "production"
				c.Database.Password = ""
			},
			expectError: "password is required",
		},
		{
			name: "invalid pool size",
			modify: func(c *Config) {
				c.Database.PoolSize = 0
			},
			expectError: "pool size must be at least 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateRedis(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name: "missing host",
			modify: func(c *Config) {
				c.Redis.Host = ""
			},
			expectError: "redis.host",
		},
		{
			name: "missing port",
			modify: func(c *Config) {
				c.Redis.Port = 0
			},
			expectError: "redis.port",
		},
		{
			name: "invalid port",
			modify: func(c *Config) {
				c.Redis.Port = 70000
			},
			expectError: "Invalid port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateLLM(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name: "missing gateway",
			modify: func(c *Config) {
				c.LLM.Gateway = ""
			},
			expectError: "llm.gateway",
		},
		{
			name: "missing endpoint",
			modify: func(c *Config) {
				c.LLM.Endpoint = ""
			},
			expectError: "llm.endpoint",
		},
		{
			name: "missing primary model",
			modify: func(c *Config) {
				c.LLM.PrimaryModel = ""
			},
			expectError: "llm.primary_model",
		},
		{
			name: "invalid temperature - too low",
			modify: func(c *Config) {
				c.LLM.Temperature = -0.1
			},
			expectError: "Invalid temperature",
		},
		{
			name: "invalid temperature - too high",
			modify: func(c *Config) {
				c.LLM.Temperature = 2.5
			},
			expectError: "Invalid temperature",
		},
		{
			name: "invalid max_tokens",
			modify: func(c *Config) {
				c.LLM.MaxTokens = 0
			},
			expectError: "max_tokens must be at least 1",
		},
		{
			name: "invalid timeout",
			modify: func(c *Config) {
				c.LLM.Timeout = 500
			},
			expectError: "timeout must be at least 1000ms",
		},
		{
			name: "invalid consult timeout",
			modify: func(c *Config) {
				c.LLM.ConsultTimeout = 500
			},
			expectError: "Consultant timeout must be at least 1000ms",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateTrading(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name: "no symbols",
			modify: func(c *Config) {
				c.Trading.Symbols = []string{}
			},
			expectError: "At least one trading symbol",
		},
		{
			name: "missing timeframe",
			modify: func(c *Config) {
				c.Trading.Timeframe = ""
			},
			expectError: "trading.timeframe",
		},
		{
			name: "missing exchange",
			modify: func(c *Config) {
				c.Trading.Exchange = ""
			},
			expectError: "trading.exchange",
		},
		{
			name: "invalid initial capital - zero",
			modify: func(c *Config) {
				c.Trading.InitialCapital = 0
			},
			expectError: "Initial capital must be greater than 0",
		},
		{
			name: "invalid initial capital - negative",
			modify: func(c *Config) {
				c.Trading.InitialCapital = -1000
			},
			expectError: "Initial capital must be greater than 0",
		},
		{
			name: "invalid cycle interval",
			modify: func(c *Config) {
				c.Trading.CycleInterval = 0
			},
			expectError: "Cycle interval must be at least 1 second",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateRisk(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name: "invalid risk_per_trade - too low",
			modify: func(c *Config) {
				c.Risk.RiskPerTrade = 0
			},
			expectError: "Invalid risk_per_trade",
		},
		{
			name: "invalid risk_per_trade - too high",
			modify: func(c *Config) {
				c.Risk.RiskPerTrade = 1.5
			},
			expectError: "Invalid risk_per_trade",
		},
		{
			name: "invalid max_exposure_pct - too low",
			modify: func(c *Config) {
				c.Risk.MaxExposurePct = 0
			},
			expectError: "Invalid max_exposure_pct",
		},
		{
			name: "invalid max_exposure_pct - too high",
			modify: func(c *Config) {
				c.Risk.MaxExposurePct = 1.5
			},
			expectError: "Invalid max_exposure_pct",
		},
		{
			name: "invalid min_confidence - too low",
			modify: func(c *Config) {
				c.Risk.MinConfidence = -0.1
			},
			expectError: "Invalid min_confidence",
		},
		{
			name: "invalid min_confidence - too high",
			modify: func(c *Config) {
				c.Risk.MinConfidence = 1.5
			},
			expectError: "Invalid min_confidence",
		},
		{
			name: "invalid kill_switch_multiple",
			modify: func(c *Config) {
				c.Risk.KillSwitchMultiple = 1.0
			},
			expectError: "kill_switch_multiple must exceed 1",
		},
		{
			name: "invalid max_hold_bars",
			modify: func(c *Config) {
				c.Risk.MaxHoldBars = 0
			},
			expectError: "max_hold_bars must be at least 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateExchange(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name: "missing API key against production Binance endpoint",
			modify: func(c *Config) {
				c.App.Environment = "production"
				c.Exchange.Testnet = false
				c.Exchange.APIKey = ""
			},
			expectError: "exchange.api_key",
		},
		{
			name: "negative fee_bps",
			modify: func(c *Config) {
				c.Exchange.Fees.FeeBps = -1
			},
			expectError: "fee_bps must be non-negative",
		},
		{
			name: "negative min_slippage_bps",
			modify: func(c *Config) {
				c.Exchange.Fees.MinSlippageBps = -1
			},
			expectError: "min_slippage_bps must be non-negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateEnvironmentRequirements(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name: "testnet enabled in production",
			modify: func(c *Config) {
				c.App.Environment = "production"
				c.Exchange.Testnet = true
			},
			expectError: "Testnet mode must be disabled in production",
		},
		{
			name: "SSL disabled in production",
			modify: func(c *Config) {
				c.App.Environment = "production"
				c.Database.SSLMode = "disable"
			},
			expectError: "SSL must be enabled for database in production",
		},
		{
			name: "DATABASE_URL missing in production with incomplete config",
			modify: func(c *Config) {
				c.App.Environment = "production"
				c.Database.Host = ""
				_ = os.Unsetenv("DATABASE_URL") // Test env cleanup
			},
			expectError: "DATABASE_URL is required in production",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidationErrors_Error(t *testing.T) {
	errors := ValidationErrors{
		{Field: "field1", Message: "error message 1"},
		{Field: "field2", Message: "error message 2"},
		{Field: "field3", Message: "error message 3"},
	}

	errMsg := errors.Error()

	assert.Contains(t, errMsg, "Configuration validation failed with 3 error(s)")
	assert.Contains(t, errMsg, "1. field1: error message 1")
	assert.Contains(t, errMsg, "2. field2: error message 2")
	assert.Contains(t, errMsg, "3. field3: error message 3")
	assert.Contains(t, errMsg, "Please fix the above errors and try again")
}

func TestValidationErrors_Empty(t *testing.T) {
	errors := ValidationErrors{}
	assert.Equal(t, "", errors.Error())
}

func TestValidateAndLoad(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	require.NoError(t, err)
	defer func() { _ = os.Remove(tmpfile.Name()) }() // Test cleanup

	invalidConfig := `
app:
  name: ""
  environment: "development"
  log_level: "info"
trading:
  symbols: []
  exchange: "binance"
`
	_, err = tmpfile.WriteString(invalidConfig)
	require.NoError(t, err)
	_ = tmpfile.Close() // Test cleanup

	_, err = Load(tmpfile.Name())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "app.name") || strings.Contains(err.Error(), "symbols"))
}
