package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// binanceRateLimit caps klines requests at Binance's public weight budget
// (1200 weight/min, 1 weight/klines call) with headroom for the other
// endpoints the account shares the limit with.
const binanceRateLimit = rate.Limit(15) // ~900/min

// BinanceSource fetches closed-bar OHLCV history from Binance. It is the
// daemon's only live-data dependency (§1): no order placement, no account
// state, just candles.
type BinanceSource struct {
	client  *binance.Client
	limiter *rate.Limiter
}

// BinanceConfig configures the klines client. An empty APIKey/SecretKey
// pair still works for public market-data endpoints.
type BinanceConfig struct {
	APIKey    string
	SecretKey string
	Testnet   bool
}

// NewBinanceSource creates a Binance market-data client.
func NewBinanceSource(cfg BinanceConfig) *BinanceSource {
	if cfg.Testnet {
		binance.UseTestnet = true
		log.Info().Msg("binance market data client initialized (testnet)")
	} else {
		log.Info().Msg("binance market data client initialized")
	}
	return &BinanceSource{
		client:  binance.NewClient(cfg.APIKey, cfg.SecretKey),
		limiter: rate.NewLimiter(binanceRateLimit, 5),
	}
}

// binanceInterval maps the daemon's timeframe vocabulary onto Binance's
// kline interval strings.
func binanceInterval(timeframe string) (string, error) {
	switch timeframe {
	case "1m", "3m", "5m", "15m", "30m", "1h", "2h", "4h", "6h", "8h", "12h", "1d":
		return timeframe, nil
	default:
		return "", fmt.Errorf("unsupported timeframe: %s", timeframe)
	}
}

// FetchOHLCV retrieves up to limit closed bars for symbol/timeframe ending
// at or before asOf, oldest first. A transient HTTP/rate-limit failure
// here is the daemon's one external data-quality risk surface (§7).
func (b *BinanceSource) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int, asOf time.Time) ([]OHLCVBar, error) {
	interval, err := binanceInterval(timeframe)
	if err != nil {
		return nil, err
	}

	if err := b.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	var bars []OHLCVBar
	err = WithRetry(ctx, DefaultRetryConfig(), func() error {
		klines, err := b.client.NewKlinesService().
			Symbol(binanceSymbol(symbol)).
			Interval(interval).
			EndTime(asOf.UnixMilli()).
			Limit(limit).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("fetch klines %s %s: %w", symbol, timeframe, err)
		}

		bars = make([]OHLCVBar, 0, len(klines))
		for _, k := range klines {
			open, err := strconv.ParseFloat(k.Open, 64)
			if err != nil {
				return fmt.Errorf("parse open: %w", err)
			}
			high, err := strconv.ParseFloat(k.High, 64)
			if err != nil {
				return fmt.Errorf("parse high: %w", err)
			}
			low, err := strconv.ParseFloat(k.Low, 64)
			if err != nil {
				return fmt.Errorf("parse low: %w", err)
			}
			closePrice, err := strconv.ParseFloat(k.Close, 64)
			if err != nil {
				return fmt.Errorf("parse close: %w", err)
			}
			volume, err := strconv.ParseFloat(k.Volume, 64)
			if err != nil {
				return fmt.Errorf("parse volume: %w", err)
			}

			bars = append(bars, OHLCVBar{
				OpenTime:  time.UnixMilli(k.OpenTime).UTC(),
				Open:      open,
				High:      high,
				Low:       low,
				Close:     closePrice,
				Volume:    volume,
				CloseTime: time.UnixMilli(k.CloseTime).UTC(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bars, nil
}

// binanceSymbol converts the daemon's "BTC/USDT" pair notation into
// Binance's concatenated "BTCUSDT" form.
func binanceSymbol(symbol string) string {
	out := make([]byte, 0, len(symbol))
	for i := 0; i < len(symbol); i++ {
		if symbol[i] == '/' {
			continue
		}
		out = append(out, symbol[i])
	}
	return string(out)
}
