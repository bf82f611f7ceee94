package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all daemon configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Trading    TradingConfig    `mapstructure:"trading"`
	Risk       RiskConfig       `mapstructure:"risk"`
	Exchange   ExchangeConfig   `mapstructure:"exchange"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
}

// DatabaseConfig contains PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	PoolSize int    `mapstructure:"pool_size"`
}

// RedisConfig backs the sentiment snapshot cache (§4.4: refreshed at most
// twice a day).
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LLMConfig configures the advisor/consultant agents' gateway.
type LLMConfig struct {
	Gateway       string  `mapstructure:"gateway"`
	Endpoint      string  `mapstructure:"endpoint"`
	PrimaryModel  string  `mapstructure:"primary_model"`
	FallbackModel string  `mapstructure:"fallback_model"`
	Temperature   float64 `mapstructure:"temperature"`
	MaxTokens     int     `mapstructure:"max_tokens"`
	Timeout       int     `mapstructure:"timeout"` // milliseconds
	ConsultTimeout int    `mapstructure:"consult_timeout"` // ms; §4.5 10s auto-approve
}

// TradingConfig contains the daemon's per-cycle trading parameters.
type TradingConfig struct {
	Symbols            []string `mapstructure:"symbols"`
	Timeframe          string   `mapstructure:"timeframe"`
	Exchange           string   `mapstructure:"exchange"`
	InitialCapital     float64  `mapstructure:"initial_capital"`
	CycleInterval      int      `mapstructure:"cycle_interval_seconds"`
	EnableShortEntries bool     `mapstructure:"enable_short_entries"`
}

// RiskConfig contains risk management thresholds (§4.3, §4.6, §4.1).
type RiskConfig struct {
	RiskPerTrade        float64 `mapstructure:"risk_per_trade"`
	MaxExposurePct      float64 `mapstructure:"max_exposure_pct"`
	MinConfidence       float64 `mapstructure:"min_confidence"`
	KillSwitchMultiple  float64 `mapstructure:"kill_switch_multiple"`
	KillSwitchCooldown  int     `mapstructure:"kill_switch_cooldown_bars"`
	MaxHoldBars         int     `mapstructure:"max_hold_bars"`
	CooldownBars        int     `mapstructure:"cooldown_bars"`
}

// ExchangeConfig contains exchange credentials and the paper-fee model.
type ExchangeConfig struct {
	APIKey    string    `mapstructure:"api_key"`
	SecretKey string    `mapstructure:"secret_key"`
	Testnet   bool      `mapstructure:"testnet"`
	Fees      FeeConfig `mapstructure:"fees"`
}

// FeeConfig carries fee/slippage settings named after the paper broker's
// model (§4.7). The broker does not read them: it uses its own package
// constants (broker.FeeBps, broker.MinSlippageBps,
// broker.SlippageRangeMultiplier); only config validation checks them.
type FeeConfig struct {
	FeeBps          float64 `mapstructure:"fee_bps"`
	MinSlippageBps  float64 `mapstructure:"min_slippage_bps"`
	SlippageRangeMultiplier float64 `mapstructure:"slippage_range_multiplier"`
}

// MonitoringConfig contains Prometheus metrics settings.
type MonitoringConfig struct {
	PrometheusPort int  `mapstructure:"prometheus_port"`
	EnableMetrics  bool `mapstructure:"enable_metrics"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("PAPERTRADER")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "paper-trader")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "paper_trader")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 10)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("llm.gateway", "bifrost")
	v.SetDefault("llm.endpoint", "http://localhost:8080/v1/chat/completions")
	v.SetDefault("llm.primary_model", "claude-sonnet-4-20250514")
	v.SetDefault("llm.fallback_model", "gpt-4-turbo")
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.max_tokens", 1500)
	v.SetDefault("llm.timeout", 30000)
	v.SetDefault("llm.consult_timeout", 10000)

	v.SetDefault("trading.symbols", []string{"BTC/USDT", "ETH/USDT"})
	v.SetDefault("trading.timeframe", "5m")
	v.SetDefault("trading.exchange", "binance")
	v.SetDefault("trading.initial_capital", 100000.0)
	v.SetDefault("trading.cycle_interval_seconds", 300)
	v.SetDefault("trading.enable_short_entries", false)

	v.SetDefault("risk.risk_per_trade", 0.005)
	v.SetDefault("risk.max_exposure_pct", 0.02)
	v.SetDefault("risk.min_confidence", 0.6)
	v.SetDefault("risk.kill_switch_multiple", 3.0)
	v.SetDefault("risk.kill_switch_cooldown_bars", 12)
	v.SetDefault("risk.max_hold_bars", 40)
	v.SetDefault("risk.cooldown_bars", 3)

	v.SetDefault("exchange.fees.fee_bps", 2.0)
	v.SetDefault("exchange.fees.min_slippage_bps", 3.0)
	v.SetDefault("exchange.fees.slippage_range_multiplier", 15.0)

	v.SetDefault("monitoring.prometheus_port", 9100)
	v.SetDefault("monitoring.enable_metrics", true)
}

// GetDSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// GetRedisAddr returns the Redis address.
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetTimeout returns the LLM completion timeout as a time.Duration.
func (c *LLMConfig) GetTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Millisecond
}

// GetConsultTimeout returns the consultant's auto-approve timeout (§4.5).
func (c *LLMConfig) GetConsultTimeout() time.Duration {
	return time.Duration(c.ConsultTimeout) * time.Millisecond
}
