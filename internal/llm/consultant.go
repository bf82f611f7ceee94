package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/paper-trader/daemon/internal/audit"
	"github.com/paper-trader/daemon/internal/db"
	"github.com/paper-trader/daemon/internal/metrics"
	"github.com/paper-trader/daemon/internal/risk"
)

// ConsultantOutput is the exact wire schema the consultant model must
// return (§4.5).
type ConsultantOutput struct {
	Recommendation string                 `json:"recommendation"`
	Concerns       []string               `json:"concerns"`
	Modifications  *ConsultantModification `json:"modifications"`
	Confidence     float64                `json:"confidence"`
	Reasoning      string                 `json:"reasoning"`
}

// ConsultantModification carries the consultant's proposed tightening of
// the advisor's proposal. Both fields are optional; a nil field means
// "leave unchanged".
type ConsultantModification struct {
	Stop *float64 `json:"stop"`
	Size *float64 `json:"size"`
}

// ReconciliationOutcome is the result of running a proposal through the
// consultant, already folded into the (possibly adjusted) proposal the
// validator/broker should act on.
type ReconciliationOutcome struct {
	Proposal     risk.Proposal
	Rejected     bool
	AutoApproved bool
	Action       string // the §4.8 action code this outcome maps to
	Reasoning    string
}

// Consultant provides a second opinion on the advisor's proposal before it
// reaches the risk validator (§4.5). A timeout or transport failure
// auto-approves the proposal unchanged, since a stuck consultant must
// never block the cycle from acting on an otherwise-valid signal.
type Consultant struct {
	client  LLMClient
	prompts *PromptBuilder
	audit   *audit.Sink
	timeout time.Duration
}

// NewConsultant creates a consultant agent with the given auto-approve
// timeout (config.LLMConfig.GetConsultTimeout(), default 10s).
func NewConsultant(client LLMClient, auditSink *audit.Sink, timeout time.Duration) *Consultant {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Consultant{
		client:  client,
		prompts: NewPromptBuilder(AgentTypeConsultant),
		audit:   auditSink,
		timeout: timeout,
	}
}

// Review runs the consultant on a proposed trade. entryPrice is the
// quoted market entry and atr is the current ATR(14) reading, used to
// bound any stop modification the consultant proposes.
func (c *Consultant) Review(
	ctx context.Context,
	decisionID string,
	market MarketContext,
	proposal risk.Proposal,
	entryPrice, atr float64,
	positions []PositionContext,
	portfolioValue float64,
) ReconciliationOutcome {
	proposal.Entry = entryPrice

	metrics.SetAgentStatus("consultant", true)

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.complete(callCtx, market, proposal, positions, portfolioValue)
	if err != nil {
		return c.autoApprove(ctx, decisionID, market.Symbol, proposal, err)
	}

	metrics.RecordAgentSignal("consultant", out.Recommendation, out.Confidence)

	switch out.Recommendation {
	case "approve":
		c.emit(ctx, decisionID, market.Symbol, db.ActionConsultantApprove, out)
		return ReconciliationOutcome{Proposal: proposal, Action: db.ActionConsultantApprove, Reasoning: out.Reasoning}

	case "reject":
		c.emit(ctx, decisionID, market.Symbol, db.ActionConsultantReject, out)
		return ReconciliationOutcome{Proposal: proposal, Rejected: true, Action: db.ActionConsultantReject, Reasoning: out.Reasoning}

	case "modify":
		modified := c.applyModifications(proposal, out.Modifications, entryPrice, atr)
		c.emit(ctx, decisionID, market.Symbol, db.ActionConsultantModify, out)
		return ReconciliationOutcome{Proposal: modified, Action: db.ActionConsultantModify, Reasoning: out.Reasoning}

	default:
		return c.autoApprove(ctx, decisionID, market.Symbol, proposal, fmt.Errorf("unrecognized recommendation %q", out.Recommendation))
	}
}

func (c *Consultant) complete(
	ctx context.Context,
	market MarketContext,
	proposal risk.Proposal,
	positions []PositionContext,
	portfolioValue float64,
) (*ConsultantOutput, error) {
	prompt := c.prompts.BuildConsultantPrompt(market, ProposalContext{
		Symbol:         proposal.Symbol,
		Side:           proposal.Side,
		Confidence:     proposal.Confidence,
		Entry:          proposal.Entry,
		StopMultiplier: proposal.StopMult,
		TakeProfitRR:   proposal.TakeProfitRR,
		MaxHoldBars:    proposal.MaxHoldBars,
	}, positions, portfolioValue)

	content, err := c.client.CompleteWithSystem(ctx, c.prompts.GetSystemPrompt(), prompt)
	if err != nil {
		return nil, fmt.Errorf("consultant completion: %w", err)
	}

	var out ConsultantOutput
	if err := c.client.ParseJSONResponse(content, &out); err != nil {
		return nil, fmt.Errorf("consultant response schema: %w", err)
	}

	switch out.Recommendation {
	case "approve", "reject", "modify":
	default:
		return nil, fmt.Errorf("consultant response invalid recommendation %q", out.Recommendation)
	}

	return &out, nil
}

// applyModifications clamps the consultant's requested stop/size changes
// to the allowed bounds (§4.5): a long's stop may only move within
// [entry - 3*ATR, entry - 0.5*ATR], mirrored for shorts, and size may only
// shrink relative to the advisor's original quantity. Out-of-bounds or
// loosening requests are dropped rather than rejecting the whole proposal.
func (c *Consultant) applyModifications(proposal risk.Proposal, mod *ConsultantModification, entry, atr float64) risk.Proposal {
	if mod == nil {
		return proposal
	}

	if mod.Stop != nil {
		var lo, hi float64
		if proposal.Side == "short" {
			lo, hi = entry+0.5*atr, entry+3*atr
		} else {
			lo, hi = entry-3*atr, entry-0.5*atr
		}
		if *mod.Stop >= lo && *mod.Stop <= hi {
			proposal.Stop = *mod.Stop
		}
	}

	if mod.Size != nil && *mod.Size >= 0 && (proposal.Qty == 0 || *mod.Size <= proposal.Qty) {
		proposal.Qty = *mod.Size
	}

	return proposal
}

func (c *Consultant) autoApprove(ctx context.Context, decisionID, symbol string, proposal risk.Proposal, cause error) ReconciliationOutcome {
	log.Warn().Err(cause).Str("symbol", symbol).Str("decision_id", decisionID).Msg("consultant unavailable, auto-approving proposal")
	if c.audit != nil {
		_ = c.audit.Emit(ctx, audit.Entry{
			Level: db.LevelWarn, Tags: []db.EventTag{db.TagConsultant}, Symbol: symbol,
			DecisionID: decisionID, Action: db.ActionConsultantAutoApp,
			Payload: map[string]string{"cause": cause.Error()},
		})
	}
	return ReconciliationOutcome{Proposal: proposal, AutoApproved: true, Action: db.ActionConsultantAutoApp, Reasoning: "auto-approved: " + cause.Error()}
}

func (c *Consultant) emit(ctx context.Context, decisionID, symbol, action string, out *ConsultantOutput) {
	if c.audit == nil {
		return
	}
	_ = c.audit.Emit(ctx, audit.Entry{
		Level: db.LevelInfo, Tags: []db.EventTag{db.TagConsultant}, Symbol: symbol,
		DecisionID: decisionID, Action: action, Payload: out,
	})
}
