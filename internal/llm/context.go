//nolint:goconst // Trading signals are domain-specific strings
package llm

import (
	"fmt"
	"strings"
)

// ContextBuilder assembles and token-limits a market/portfolio context
// string for LLM prompts; the advisor and consultant build their prompts
// with PromptBuilder and do not call it. There is no decision-history
// lookup here: the advisor/consultant contract (§4.4/§4.5) is stateless
// per cycle, so the only inputs are the current market snapshot, open
// positions, and portfolio summary.
type ContextBuilder struct {
	maxTokens int // Maximum tokens for context (default 4000)
}

// ContextBuilderConfig configures the context builder.
type ContextBuilderConfig struct {
	MaxTokens int
}

// NewContextBuilder creates a new context builder.
func NewContextBuilder(config ContextBuilderConfig) *ContextBuilder {
	if config.MaxTokens == 0 {
		config.MaxTokens = 4000 // Default max context tokens
	}

	return &ContextBuilder{
		maxTokens: config.MaxTokens,
	}
}

// EnhancedMarketContext bundles the current market snapshot with open
// positions and a portfolio summary for prompt assembly.
type EnhancedMarketContext struct {
	CurrentMarket    MarketContext     `json:"current_market"`
	Positions        []PositionContext `json:"positions,omitempty"`
	PortfolioSummary *PortfolioSummary `json:"portfolio_summary,omitempty"`
	MarketRegime     string            `json:"market_regime,omitempty"`
}

// PortfolioSummary provides high-level portfolio metrics.
type PortfolioSummary struct {
	TotalValue    float64 `json:"total_value"`
	TotalPnL      float64 `json:"total_pnl"`
	OpenPositions int     `json:"open_positions"`
	DayPnL        float64 `json:"day_pnl"`
	WeekPnL       float64 `json:"week_pnl"`
}

// BuildContext creates an enhanced context for LLM prompts.
func (cb *ContextBuilder) BuildContext(
	market MarketContext,
	positions []PositionContext,
	portfolioSummary *PortfolioSummary,
	regime string,
) *EnhancedMarketContext {
	return &EnhancedMarketContext{
		CurrentMarket:    market,
		Positions:        positions,
		PortfolioSummary: portfolioSummary,
		MarketRegime:     regime,
	}
}

// FormatContextForPrompt formats the context as a string for LLM prompts.
func (cb *ContextBuilder) FormatContextForPrompt(enhanced *EnhancedMarketContext) string {
	var parts []string

	parts = append(parts, "## Current Market Conditions\n")
	parts = append(parts, fmt.Sprintf("Symbol: %s\n", enhanced.CurrentMarket.Symbol))
	parts = append(parts, fmt.Sprintf("Current Price: $%.2f\n", enhanced.CurrentMarket.CurrentPrice))

	if enhanced.MarketRegime != "" {
		parts = append(parts, fmt.Sprintf("Regime: %s\n", enhanced.MarketRegime))
	}
	if enhanced.CurrentMarket.PriceChange24h != 0 {
		parts = append(parts, fmt.Sprintf("24h Change: %.2f%%\n", enhanced.CurrentMarket.PriceChange24h))
	}
	if enhanced.CurrentMarket.Volume24h != 0 {
		parts = append(parts, fmt.Sprintf("24h Volume: $%.2f\n", enhanced.CurrentMarket.Volume24h))
	}

	if len(enhanced.CurrentMarket.Indicators) > 0 {
		parts = append(parts, "\nTechnical Indicators:\n")
		for name, value := range enhanced.CurrentMarket.Indicators {
			parts = append(parts, fmt.Sprintf("  %s: %.4f\n", name, value))
		}
	}

	if enhanced.PortfolioSummary != nil {
		parts = append(parts, "\n## Portfolio Summary\n")
		ps := enhanced.PortfolioSummary
		parts = append(parts, fmt.Sprintf("Total Value: $%.2f\n", ps.TotalValue))
		parts = append(parts, fmt.Sprintf("Total P&L: $%.2f\n", ps.TotalPnL))
		parts = append(parts, fmt.Sprintf("Open Positions: %d\n", ps.OpenPositions))

		if ps.DayPnL != 0 {
			parts = append(parts, fmt.Sprintf("Today's P&L: $%.2f\n", ps.DayPnL))
		}
		if ps.WeekPnL != 0 {
			parts = append(parts, fmt.Sprintf("Week P&L: $%.2f\n", ps.WeekPnL))
		}
	}

	if len(enhanced.Positions) > 0 {
		parts = append(parts, "\n## Current Positions\n")
		for i, pos := range enhanced.Positions {
			if i >= 5 { // Limit to 5 positions to save tokens
				parts = append(parts, fmt.Sprintf("... and %d more positions\n", len(enhanced.Positions)-5))
				break
			}
			pnlPercent := ((pos.CurrentPrice - pos.EntryPrice) / pos.EntryPrice) * 100
			if pos.Side == "SHORT" {
				pnlPercent = -pnlPercent
			}
			parts = append(parts, fmt.Sprintf("%d. %s %s: Entry $%.2f -> Current $%.2f (%.2f%% P&L, %s old)\n",
				i+1, pos.Symbol, pos.Side, pos.EntryPrice, pos.CurrentPrice, pnlPercent, pos.OpenDuration))
		}
	}

	context := strings.Join(parts, "")

	tokens := cb.estimateTokens(context)
	if tokens > cb.maxTokens {
		context = cb.truncateToTokenLimit(context, cb.maxTokens)
	}

	return context
}

// estimateTokens provides a rough token count estimate.
// Rule of thumb: 1 token ~= 4 characters for English text.
func (cb *ContextBuilder) estimateTokens(text string) int {
	return len(text) / 4
}

// truncateToTokenLimit truncates text to fit within token limit.
func (cb *ContextBuilder) truncateToTokenLimit(text string, maxTokens int) string {
	maxChars := maxTokens * 4 // Conservative estimate

	if len(text) <= maxChars {
		return text
	}

	cut := maxChars - 50 // Leave room for message
	if cut < 0 {
		cut = 0
	}
	truncated := text[:cut]
	truncated += "\n\n[Context truncated to fit token limit]\n"

	return truncated
}

// GetContextStats returns statistics about the context.
func (cb *ContextBuilder) GetContextStats(enhanced *EnhancedMarketContext) map[string]interface{} {
	formatted := cb.FormatContextForPrompt(enhanced)

	return map[string]interface{}{
		"estimated_tokens": cb.estimateTokens(formatted),
		"char_count":       len(formatted),
		"position_count":   len(enhanced.Positions),
	}
}

// BuildMinimalContext creates a minimal context when tokens are very limited.
func (cb *ContextBuilder) BuildMinimalContext(market MarketContext) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Symbol: %s | Price: $%.2f", market.Symbol, market.CurrentPrice))

	if market.PriceChange24h != 0 {
		parts = append(parts, fmt.Sprintf(" | 24h: %.2f%%", market.PriceChange24h))
	}

	if len(market.Indicators) > 0 {
		parts = append(parts, " | ")
		count := 0
		for name, value := range market.Indicators {
			if count >= 3 {
				break
			}
			parts = append(parts, fmt.Sprintf("%s: %.2f ", name, value))
			count++
		}
	}

	return strings.Join(parts, "")
}
