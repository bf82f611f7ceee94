package llm

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/paper-trader/daemon/internal/audit"
	"github.com/paper-trader/daemon/internal/db"
	"github.com/paper-trader/daemon/internal/metrics"
	"github.com/paper-trader/daemon/internal/risk"
)

// AdvisorOutput is the exact wire schema the advisor model must return
// (§4.4). Field validity beyond JSON shape and the side enum (confidence
// range, positive multipliers) is the risk validator's job, not the
// advisor's - the advisor only guards against a malformed or empty
// response and a side other than long/short/flat.
type AdvisorOutput struct {
	Symbol     string   `json:"symbol"`
	Side       string   `json:"side"`
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons"`
	Entry      struct {
		Type string `json:"type"`
	} `json:"entry"`
	Stop struct {
		Type       string  `json:"type"`
		Multiplier float64 `json:"multiplier"`
	} `json:"stop"`
	TakeProfit struct {
		RR float64 `json:"rr"`
	} `json:"take_profit"`
	MaxHoldBars int `json:"max_hold_bars"`
}

// Advisor turns a symbol's current market/sentiment picture into a trade
// proposal by querying the configured LLM. A failed attempt (transport
// error, timeout or schema-invalid output) is retried once through the same
// client. With a FallbackClient, a transport failure on the primary model
// already moves to the fallback model inside one call, but the retry after a
// schema-invalid reply starts again from the primary model unless its
// circuit is open; it is not sent to the fallback model directly. If both
// attempts fail it logs PROPOSAL/ADVISOR_FAIL and returns (nil, nil) so the
// caller treats it as a clean skip rather than a cycle-aborting error.
type Advisor struct {
	client  LLMClient
	prompts *PromptBuilder
	audit   *audit.Sink
}

// NewAdvisor creates an advisor agent. client is expected to be a
// FallbackClient so a single Complete call already carries the
// primary->fallback-model policy; Advisor's own retry re-attempts once
// after any failure, including a schema-validation failure, which a
// transport-level fallback can't catch on its own.
func NewAdvisor(client LLMClient, auditSink *audit.Sink) *Advisor {
	return &Advisor{
		client:  client,
		prompts: NewPromptBuilder(AgentTypeAdvisor),
		audit:   auditSink,
	}
}

// Propose runs the advisor for one symbol and decision. A nil, nil return
// means "no proposal" (flat call, or both attempts failed) and the cycle
// should skip entry for this symbol without treating it as an error.
func (a *Advisor) Propose(
	ctx context.Context,
	decisionID string,
	market MarketContext,
	regime string,
	sentiment SentimentContext,
) (*risk.Proposal, error) {
	metrics.SetAgentStatus("advisor", true)
	prompt := a.prompts.BuildAdvisorPrompt(market, regime, sentiment)

	out, err := a.complete(ctx, prompt)
	if err != nil {
		out, err = a.complete(ctx, prompt)
	}
	if err != nil {
		a.emitFail(ctx, market.Symbol, decisionID, err)
		return nil, nil
	}

	metrics.RecordAgentSignal("advisor", out.Side, out.Confidence)

	if out.Side == "flat" {
		return nil, nil
	}

	proposal := &risk.Proposal{
		Symbol:       out.Symbol,
		Side:         out.Side,
		Confidence:   out.Confidence,
		StopMult:     out.Stop.Multiplier,
		TakeProfitRR: out.TakeProfit.RR,
		MaxHoldBars:  out.MaxHoldBars,
	}

	if a.audit != nil {
		_ = a.audit.Emit(ctx, audit.Entry{
			Level: db.LevelInfo, Tags: []db.EventTag{db.TagProposal}, Symbol: market.Symbol,
			DecisionID: decisionID, Action: fmt.Sprintf("PROPOSAL_%s", out.Side), Payload: out,
		})
	}

	return proposal, nil
}

func (a *Advisor) complete(ctx context.Context, prompt string) (*AdvisorOutput, error) {
	content, err := a.client.CompleteWithSystem(ctx, a.prompts.GetSystemPrompt(), prompt)
	if err != nil {
		return nil, fmt.Errorf("advisor completion: %w", err)
	}

	var out AdvisorOutput
	if err := a.client.ParseJSONResponse(content, &out); err != nil {
		return nil, fmt.Errorf("advisor response schema: %w", err)
	}

	switch out.Side {
	case "long", "short", "flat":
	default:
		return nil, fmt.Errorf("advisor response invalid side %q", out.Side)
	}

	return &out, nil
}

func (a *Advisor) emitFail(ctx context.Context, symbol, decisionID string, err error) {
	log.Warn().Err(err).Str("symbol", symbol).Str("decision_id", decisionID).Msg("advisor failed twice, skipping entry")
	if a.audit == nil {
		return
	}
	_ = a.audit.Emit(ctx, audit.Entry{
		Level:      db.LevelWarn,
		Tags:       []db.EventTag{db.TagProposal},
		Symbol:     symbol,
		DecisionID: decisionID,
		Action:     db.ActionAdvisorFail,
		Payload:    map[string]string{"error": err.Error()},
	})
}
