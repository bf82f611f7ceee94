package risk

import (
	"context"
	"fmt"
	"math"

	"github.com/paper-trader/daemon/internal/config"
	"github.com/paper-trader/daemon/internal/db"
	"github.com/paper-trader/daemon/internal/signal"
	"github.com/paper-trader/daemon/internal/validation"
)

// Reason codes carried on a rejected Verdict (§4.6), a closed vocabulary
// distinct from the event-log action codes so the VALIDATION/REJECT
// event's rationale can say exactly which check fired.
const (
	ReasonRegimeMismatch   = "REGIME_MISMATCH"
	ReasonPositionExists   = "POSITION_EXISTS"
	ReasonMaxExposure      = "MAX_EXPOSURE"
	ReasonMaxRiskPerTrade  = "MAX_RISK_PER_TRADE"
	ReasonKillSwitchActive = "KILL_SWITCH_ACTIVE"
	ReasonCooldownActive   = "COOLDOWN_ACTIVE"
	ReasonInvalidProposal  = "INVALID_PROPOSAL"
)

// Proposal is the subset of the advisor/consultant proposal schema the
// validator checks immediately before the broker (§4.4 schema, §4.6 reject
// conditions).
type Proposal struct {
	Symbol       string
	Side         string // "long", "short", or "flat" — the advisor's raw schema value
	Confidence   float64
	Entry        float64
	Stop         float64
	StopMult     float64
	TakeProfitRR float64
	MaxHoldBars  int
	Qty          float64
}

// PositionSide maps the proposal's schema-level side to the persisted
// position-side enum. Call only after validateSchema has confirmed Side is
// one of "long"/"short".
func (p Proposal) PositionSide() db.PositionSide {
	if p.Side == "short" {
		return db.PositionSideShort
	}
	return db.PositionSideLong
}

// Verdict is the outcome of one validation pass. An empty Reason means the
// proposal is accepted.
type Verdict struct {
	Accepted bool
	Reason   string
	Detail   string
}

// Validator runs the §4.6 reject checks in the order the spec lists them,
// stopping at the first failure. It is grounded on the teacher's
// internal/risk/service.go CheckPortfolioLimits (exposure/concentration
// caps against a mutable limits struct) and internal/validation's
// ProposalValidator (schema checks), generalized from the teacher's
// generic portfolio-limits shape to the spec's specific NAV-relative caps.
type Validator struct {
	cfg        config.RiskConfig
	killSwitch *KillSwitch
}

// NewValidator creates a risk validator bound to the live risk config and
// kill-switch state.
func NewValidator(cfg config.RiskConfig, killSwitch *KillSwitch) *Validator {
	return &Validator{cfg: cfg, killSwitch: killSwitch}
}

// Validate runs every §4.6 check: proposal schema, regime/side match,
// existing-position check, exposure and per-trade risk caps, kill-switch,
// and cooldown. bar is the current cycle's monotonic bar index, used by
// the kill-switch and cooldown windows.
func (v *Validator) Validate(ctx context.Context, p Proposal, regime signal.Regime, existing *db.Position, nav float64, bar int) Verdict {
	if errs := v.validateSchema(p); errs.HasErrors() {
		return Verdict{Reason: ReasonInvalidProposal, Detail: errs.Error()}
	}

	if regimeMismatch(p.Side, regime) {
		return Verdict{Reason: ReasonRegimeMismatch, Detail: fmt.Sprintf("side=%s regime=%s", p.Side, regime)}
	}

	if existing != nil {
		return Verdict{Reason: ReasonPositionExists, Detail: fmt.Sprintf("trade_id=%s", existing.TradeID)}
	}

	notional := p.Qty * p.Entry
	if maxNotional := v.cfg.MaxExposurePct * nav; notional > maxNotional {
		return Verdict{Reason: ReasonMaxExposure, Detail: fmt.Sprintf("notional=%.2f cap=%.2f", notional, maxNotional)}
	}

	riskAmount := p.Qty * math.Abs(p.Entry-p.Stop)
	if maxRisk := v.cfg.RiskPerTrade * nav; riskAmount > maxRisk {
		return Verdict{Reason: ReasonMaxRiskPerTrade, Detail: fmt.Sprintf("risk=%.2f cap=%.2f", riskAmount, maxRisk)}
	}

	if v.killSwitch != nil && v.killSwitch.Active(p.Symbol, bar) {
		return Verdict{Reason: ReasonKillSwitchActive}
	}

	if v.killSwitch != nil && v.killSwitch.InCooldown(p.Symbol, bar) {
		return Verdict{Reason: ReasonCooldownActive}
	}

	return Verdict{Accepted: true}
}

// validateSchema checks the proposal's own fields in isolation, ahead of
// any state/market-dependent check.
func (v *Validator) validateSchema(p Proposal) validation.ValidationErrors {
	pv := validation.NewProposalValidator()
	pv.ValidateSide(string(p.Side))
	pv.ValidateConfidence(p.Confidence)
	pv.ValidateStopMultiplier(p.StopMult)
	pv.ValidateRR(p.TakeProfitRR)
	pv.ValidateMaxHoldBars(p.MaxHoldBars)
	if p.Confidence < v.cfg.MinConfidence {
		pv.AddError("confidence", fmt.Sprintf("below minimum confidence %.2f", v.cfg.MinConfidence))
	}
	return pv.Errors()
}

// regimeMismatch implements the §4.6 example verbatim: a directional
// proposal (long or short) is only valid while the symbol is trending;
// any proposal submitted during chop is a mismatch.
func regimeMismatch(side string, regime signal.Regime) bool {
	if side == "flat" {
		return false
	}
	return regime != signal.RegimeTrend
}
