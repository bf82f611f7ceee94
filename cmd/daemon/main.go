// Command daemon runs the paper-trading cycle orchestrator: a fixed-interval
// loop that ingests candles, runs the deterministic signal/regime layer,
// consults the advisor/consultant LLM agents, validates proposals against
// risk limits, and fills them against the paper broker (§4.1).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/paper-trader/daemon/internal/audit"
	"github.com/paper-trader/daemon/internal/broker"
	"github.com/paper-trader/daemon/internal/config"
	"github.com/paper-trader/daemon/internal/db"
	"github.com/paper-trader/daemon/internal/exchange"
	"github.com/paper-trader/daemon/internal/llm"
	"github.com/paper-trader/daemon/internal/market"
	"github.com/paper-trader/daemon/internal/metrics"
	"github.com/paper-trader/daemon/internal/orchestrator"
	"github.com/paper-trader/daemon/internal/risk"
	"github.com/paper-trader/daemon/internal/sentiment"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (defaults to ./configs/config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	config.InitLogger(cfg.App.LogLevel, "console")
	log.Info().Str("env", cfg.App.Environment).Strs("symbols", cfg.Trading.Symbols).Msg("starting paper-trader daemon")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := db.New(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.GetRedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis unreachable, sentiment cache will fall back to Postgres-only reads")
			redisClient = nil
		}
	}

	exchangeSource := exchange.NewBinanceSource(exchange.BinanceConfig{
		APIKey:    cfg.Exchange.APIKey,
		SecretKey: cfg.Exchange.SecretKey,
		Testnet:   cfg.Exchange.Testnet,
	})

	pricingClient, err := market.NewCoinGeckoClient(cfg.Exchange.APIKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create coingecko client")
	}
	var momentumProvider sentiment.Provider = sentiment.NewMomentumProvider(pricingClient)
	sentimentProvider := sentiment.NewChainedProvider(momentumProvider, nil)
	sentimentStore := sentiment.NewStore(database, redisClient)

	auditSink := audit.NewSink(database, true)
	if natsURL := os.Getenv("PAPERTRADER_NATS_URL"); natsURL != "" {
		pub, err := audit.NewNATSPublisher(natsURL)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to NATS, event log will not be republished")
		} else {
			auditSink = auditSink.WithNATS(pub)
		}
	}

	llmClient := llm.NewFallbackClient(llm.FallbackConfig{
		PrimaryConfig: llm.ClientConfig{
			Endpoint:    cfg.LLM.Endpoint,
			Model:       cfg.LLM.PrimaryModel,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     cfg.LLM.GetTimeout(),
		},
		PrimaryName: cfg.LLM.PrimaryModel,
		FallbackConfigs: []llm.ClientConfig{{
			Endpoint:    cfg.LLM.Endpoint,
			Model:       cfg.LLM.FallbackModel,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     cfg.LLM.GetTimeout(),
		}},
		FallbackNames:        []string{cfg.LLM.FallbackModel},
		CircuitBreakerConfig: llm.DefaultCircuitBreakerConfig(),
	})
	advisor := llm.NewAdvisor(llmClient, auditSink)
	consultant := llm.NewConsultant(llmClient, auditSink, cfg.LLM.GetConsultTimeout())

	killSwitch := risk.NewKillSwitch(cfg.Risk)
	validator := risk.NewValidator(cfg.Risk, killSwitch)
	paperBroker := broker.New(database)
	calculator := risk.NewCalculatorWithPool(database.Pool())

	cycle := orchestrator.NewCycle(orchestrator.Deps{
		DB:         database,
		Exchange:   exchangeSource,
		Sentiment:  sentimentStore,
		Provider:   sentimentProvider,
		Advisor:    advisor,
		Consultant: consultant,
		Validator:  validator,
		KillSwitch: killSwitch,
		Broker:     paperBroker,
		Audit:      auditSink,
		Log:        log.Logger,
		Config:     *cfg,
	})

	metricsServer := metrics.NewServer(cfg.Monitoring.PrometheusPort, log.Logger)
	if cfg.Monitoring.EnableMetrics {
		if err := metricsServer.Start(); err != nil {
			log.Fatal().Err(err).Msg("failed to start metrics server")
		}
		metricsServer.RegisterHandler("/healthz", orchestrator.HealthHandler(cycle, database, calculator))
	}

	interval := time.Duration(cfg.Trading.CycleInterval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		cycle.RunForever(ctx, interval)
		close(done)
	}()

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("received shutdown signal, stopping daemon")
	cancel()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		log.Warn().Msg("orchestrator loop did not stop within grace period")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if cfg.Monitoring.EnableMetrics {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("error shutting down metrics server")
		}
	}

	log.Info().Msg("paper-trader daemon shutdown complete")
}
