package llm

import (
	"fmt"
	"sort"
	"strings"
)

// PromptBuilder builds prompts for the advisor and consultant agents (§4.4,
// §4.5). Each method returns a user-message body; GetSystemPrompt supplies
// the matching system message.
type PromptBuilder struct {
	agentType AgentType
}

// NewPromptBuilder creates a new prompt builder.
func NewPromptBuilder(agentType AgentType) *PromptBuilder {
	return &PromptBuilder{agentType: agentType}
}

// GetSystemPrompt returns the system prompt for the agent type.
func (pb *PromptBuilder) GetSystemPrompt() string {
	switch pb.agentType {
	case AgentTypeAdvisor:
		return advisorSystemPrompt
	case AgentTypeConsultant:
		return consultantSystemPrompt
	default:
		return defaultSystemPrompt
	}
}

// BuildAdvisorPrompt builds the entry-candidate prompt the advisor turns
// into a Proposal (§4.4). sentiment is the symbol's latest cached snapshot,
// formatted as plain fields rather than raw JSON so the model doesn't need
// to reconcile a nested schema with its own output schema.
func (pb *PromptBuilder) BuildAdvisorPrompt(
	ctx MarketContext,
	regime string,
	sentiment SentimentContext,
) string {
	indicators := formatIndicators(ctx.Indicators)

	return fmt.Sprintf(`Evaluate %s for a new entry and produce a trade proposal.

Regime: %s
Current Price: $%.4f
24h Price Change: %.2f%%
24h Volume: $%.2f

Technical Indicators:
%s

Sentiment (momentum-derived, [-1, 1]):
  24h: %.3f | 7d: %.3f | trend: %.3f | burst: %.3f

Respond ONLY with JSON matching this schema exactly:
{
  "symbol": "%s",
  "side": "long" | "short" | "flat",
  "confidence": 0.0-1.0,
  "reasons": ["short factual reasons for this call"],
  "entry": {"type": "market"},
  "stop": {"type": "atr", "multiplier": number > 0},
  "take_profit": {"rr": number > 0},
  "max_hold_bars": integer > 0
}

Use "flat" when no edge exists. Never propose a directional side outside a trending regime.`,
		ctx.Symbol,
		regime,
		ctx.CurrentPrice,
		ctx.PriceChange24h,
		ctx.Volume24h,
		indicators,
		sentiment.Sent24h, sentiment.Sent7d, sentiment.SentTrend, sentiment.Burst,
		ctx.Symbol,
	)
}

// SentimentContext is the subset of a sentiment.Snapshot the advisor prompt
// embeds; kept distinct from sentiment.Snapshot to avoid an import cycle
// (internal/llm must not depend on internal/sentiment).
type SentimentContext struct {
	Sent24h   float64
	Sent7d    float64
	SentTrend float64
	Burst     float64
}

// BuildConsultantPrompt builds the second-opinion prompt the consultant
// turns into an approve/reject/modify recommendation (§4.5).
func (pb *PromptBuilder) BuildConsultantPrompt(
	ctx MarketContext,
	proposal ProposalContext,
	positions []PositionContext,
	portfolioValue float64,
) string {
	positionsData := formatPositions(positions)

	return fmt.Sprintf(`Review the following trade proposal from the advisor agent and decide whether to approve, reject, or modify it.

PROPOSAL:
Symbol: %s
Side: %s
Confidence: %.2f
Entry (market): $%.4f
Stop: ATR x%.2f
Take profit: %.2fR
Max hold: %d bars
Reasons: %s

MARKET CONTEXT:
Current Price: $%.4f
24h Change: %.2f%%

PORTFOLIO:
Total Value: $%.2f

Current Positions:
%s

Respond ONLY with JSON matching this schema exactly:
{
  "recommendation": "approve" | "reject" | "modify",
  "concerns": ["any risk concerns"],
  "modifications": {"stop": number, "size": number} | null,
  "confidence": 0.0-1.0,
  "reasoning": "brief explanation"
}

"modifications" may only tighten the stop or reduce size from the advisor's proposal; omit fields you are not changing.`,
		proposal.Symbol,
		proposal.Side,
		proposal.Confidence,
		proposal.Entry,
		proposal.StopMultiplier,
		proposal.TakeProfitRR,
		proposal.MaxHoldBars,
		strings.Join(proposal.Reasons, "; "),
		ctx.CurrentPrice,
		ctx.PriceChange24h,
		portfolioValue,
		positionsData,
	)
}

// ProposalContext is the subset of the advisor's Proposal the consultant
// prompt embeds.
type ProposalContext struct {
	Symbol         string
	Side           string
	Confidence     float64
	Entry          float64
	StopMultiplier float64
	TakeProfitRR   float64
	MaxHoldBars    int
	Reasons        []string
}

// Helper functions

func formatIndicators(indicators map[string]float64) string {
	if len(indicators) == 0 {
		return "No indicators available"
	}

	keys := make([]string, 0, len(indicators))
	for name := range indicators {
		keys = append(keys, name)
	}
	sort.Strings(keys)

	var lines []string
	for _, name := range keys {
		lines = append(lines, fmt.Sprintf("  %s: %.4f", name, indicators[name]))
	}
	return strings.Join(lines, "\n")
}

func formatPositions(positions []PositionContext) string {
	if len(positions) == 0 {
		return "No open positions"
	}

	var lines []string
	for _, pos := range positions {
		pnlPercent := ((pos.CurrentPrice - pos.EntryPrice) / pos.EntryPrice) * 100
		if pos.Side == "SHORT" {
			pnlPercent = -pnlPercent
		}

		lines = append(lines, fmt.Sprintf(`  %s %s:
    Entry: $%.2f | Current: $%.2f | Qty: %.4f
    Unrealized P&L: $%.2f (%.2f%%)
    Open Duration: %s`,
			pos.Symbol,
			pos.Side,
			pos.EntryPrice,
			pos.CurrentPrice,
			pos.Quantity,
			pos.UnrealizedPnL,
			pnlPercent,
			pos.OpenDuration,
		))
	}
	return strings.Join(lines, "\n\n")
}

const advisorSystemPrompt = `You are the advisor agent in a paper-trading system, responsible for proposing new trade entries.

Key responsibilities:
- Analyze technical indicators, regime, and sentiment to decide long/short/flat
- Size the stop as an ATR multiple and the target as a risk/reward ratio
- Only propose a directional trade when the regime is trending
- Be conservative when indicators conflict; prefer "flat" over a low-conviction call

Respond ONLY with valid JSON in the specified format. Do not include explanatory text outside the JSON.`

const consultantSystemPrompt = `You are the consultant agent in a paper-trading system, providing a second opinion on the advisor's trade proposals before they reach the broker.

Key responsibilities:
- Catch proposals that are reasonable technically but poorly sized for the portfolio
- Reject proposals that conflict with current positions or stated concerns
- Prefer "modify" (tighter stop or smaller size) over outright rejection when the trade idea is sound
- Never loosen a stop or increase size - only tighten or reduce

Respond ONLY with valid JSON in the specified format. Do not include explanatory text outside the JSON.`

const defaultSystemPrompt = `You are an AI trading agent for cryptocurrency markets.

Provide trading signals based on the data provided.

Respond ONLY with valid JSON in the specified format. Do not include explanatory text outside the JSON.`
