// Package sentiment implements the §4.4 sentiment snapshot: a momentum-
// derived proxy refreshed at most twice a day, with a secondary-provider
// fallback to a neutral reading so a dead feed never blocks a cycle.
package sentiment

import (
	"context"
	"encoding/json"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/paper-trader/daemon/internal/market"
)

// Snapshot is one sentiment reading, the shape the advisor's prompt
// consumes (§4.4). SentTrend is derived, never an independent input.
type Snapshot struct {
	Sent24h   float64
	Sent7d    float64
	SentTrend float64
	Burst     float64
	Sources   map[string]interface{}
}

// Provider fetches a fresh sentiment reading for a symbol.
type Provider interface {
	FetchSentiment(ctx context.Context, symbol string) (Snapshot, error)
}

// NeutralSnapshot is the §6 fallback reading used when every provider in
// the chain fails: "(0,0,0,0,{"fallback":true})".
func NeutralSnapshot() Snapshot {
	return Snapshot{Sources: map[string]interface{}{"fallback": true}}
}

// coinID maps the daemon's "BTC/USDT"-style trading pair onto the
// CoinGecko coin id its market_chart endpoint expects. Unknown bases fall
// through to a lowercased guess, which CoinGecko will simply 404 on —
// surfaced as a provider error like any other transient failure.
func coinID(symbol string) string {
	base := symbol
	for i := 0; i < len(symbol); i++ {
		if symbol[i] == '/' {
			base = symbol[:i]
			break
		}
	}
	switch base {
	case "BTC":
		return "bitcoin"
	case "ETH":
		return "ethereum"
	case "SOL":
		return "solana"
	case "BNB":
		return "binancecoin"
	case "XRP":
		return "ripple"
	case "ADA":
		return "cardano"
	case "DOGE":
		return "dogecoin"
	default:
		return base
	}
}

// MomentumProvider derives a sentiment proxy from CoinGecko price momentum:
// no news/social feed is in scope (§1 Non-goals), so 24h/7d returns stand
// in as a market-implied sentiment signal, squashed into [-1, 1] with
// tanh the same way the teacher's indicator outputs are bounded.
type MomentumProvider struct {
	client *market.CoinGeckoClient
}

// NewMomentumProvider creates a momentum-based sentiment provider backed by
// a CoinGecko client.
func NewMomentumProvider(client *market.CoinGeckoClient) *MomentumProvider {
	return &MomentumProvider{client: client}
}

// sentimentScale is the assumed "typical" daily/weekly percent move used to
// normalize returns into the [-1, 1] sentiment range; larger moves saturate
// toward +/-1 rather than growing unbounded.
const sentimentScale = 8.0

func (p *MomentumProvider) FetchSentiment(ctx context.Context, symbol string) (Snapshot, error) {
	id := coinID(symbol)

	chart, err := p.client.GetMarketChart(ctx, id, 7)
	if err != nil {
		return Snapshot{}, err
	}
	if len(chart.Prices) < 2 {
		return Snapshot{}, nil
	}

	latest := chart.Prices[len(chart.Prices)-1].Value
	sevenDayAgo := chart.Prices[0].Value

	oneDayIdx := len(chart.Prices) - 1
	for i, pt := range chart.Prices {
		if latest != 0 && chart.Prices[len(chart.Prices)-1].Timestamp.Sub(pt.Timestamp).Hours() <= 24 {
			oneDayIdx = i
			break
		}
	}
	oneDayAgo := chart.Prices[oneDayIdx].Value

	ret24h := pctReturn(oneDayAgo, latest)
	ret7d := pctReturn(sevenDayAgo, latest)

	sent24h := math.Tanh(ret24h / sentimentScale)
	sent7d := math.Tanh(ret7d / sentimentScale)
	burst := math.Abs(sent24h - sent7d)

	sources := map[string]interface{}{"provider": "coingecko_momentum", "coin_id": id}

	return Snapshot{
		Sent24h:   sent24h,
		Sent7d:    sent7d,
		SentTrend: sent24h - sent7d,
		Burst:     burst,
		Sources:   sources,
	}, nil
}

func pctReturn(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / from * 100
}

// ChainedProvider tries a primary provider and falls back to a secondary
// on error, per §6: "secondary-provider fallback to neutral". If both
// fail it returns the neutral snapshot rather than an error, since a dead
// sentiment feed must never block a trading cycle.
type ChainedProvider struct {
	primary   Provider
	secondary Provider
}

// NewChainedProvider creates a provider chain. secondary may be nil, in
// which case a primary failure falls straight through to neutral.
func NewChainedProvider(primary, secondary Provider) *ChainedProvider {
	return &ChainedProvider{primary: primary, secondary: secondary}
}

func (c *ChainedProvider) FetchSentiment(ctx context.Context, symbol string) (Snapshot, error) {
	snap, err := c.primary.FetchSentiment(ctx, symbol)
	if err == nil {
		return snap, nil
	}
	log.Warn().Err(err).Str("symbol", symbol).Msg("primary sentiment provider failed, trying secondary")

	if c.secondary != nil {
		snap, err := c.secondary.FetchSentiment(ctx, symbol)
		if err == nil {
			return snap, nil
		}
		log.Warn().Err(err).Str("symbol", symbol).Msg("secondary sentiment provider failed, falling back to neutral")
	}

	return NeutralSnapshot(), nil
}

// MarshalSources renders a Snapshot's Sources map as the db.SentimentSnapshot
// Sources column's json.RawMessage, defaulting to an empty object rather
// than persisting a null.
func MarshalSources(sources map[string]interface{}) json.RawMessage {
	if sources == nil {
		return json.RawMessage(`{}`)
	}
	b, err := json.Marshal(sources)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}
