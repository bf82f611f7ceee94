package risk

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/paper-trader/daemon/internal/db"
	"github.com/paper-trader/daemon/internal/signal"
)

func validProposal() Proposal {
	return Proposal{
		Symbol:       "BTC/USDT",
		Side:         "long",
		Confidence:   0.8,
		Entry:        100,
		Stop:         95,
		StopMult:     1.5,
		TakeProfitRR: 2.0,
		MaxHoldBars:  48,
		Qty:          1,
	}
}

func TestValidator_AcceptsValidProposal(t *testing.T) {
	v := NewValidator(testRiskConfig(), NewKillSwitch(testRiskConfig()))

	verdict := v.Validate(context.Background(), validProposal(), signal.RegimeTrend, nil, 100000, 1)
	assert.True(t, verdict.Accepted)
	assert.Empty(t, verdict.Reason)
}

func TestValidator_RejectsInvalidSchema(t *testing.T) {
	v := NewValidator(testRiskConfig(), NewKillSwitch(testRiskConfig()))

	p := validProposal()
	p.Side = "sideways"
	verdict := v.Validate(context.Background(), p, signal.RegimeTrend, nil, 100000, 1)
	assert.False(t, verdict.Accepted)
	assert.Equal(t, ReasonInvalidProposal, verdict.Reason)
}

func TestValidator_RejectsBelowMinConfidence(t *testing.T) {
	v := NewValidator(testRiskConfig(), NewKillSwitch(testRiskConfig()))

	p := validProposal()
	p.Confidence = 0.1
	verdict := v.Validate(context.Background(), p, signal.RegimeTrend, nil, 100000, 1)
	assert.False(t, verdict.Accepted)
	assert.Equal(t, ReasonInvalidProposal, verdict.Reason)
}

func TestValidator_RejectsRegimeMismatch(t *testing.T) {
	v := NewValidator(testRiskConfig(), NewKillSwitch(testRiskConfig()))

	verdict := v.Validate(context.Background(), validProposal(), signal.RegimeChop, nil, 100000, 1)
	assert.False(t, verdict.Accepted)
	assert.Equal(t, ReasonRegimeMismatch, verdict.Reason)
}

func TestValidator_RejectsExistingPosition(t *testing.T) {
	v := NewValidator(testRiskConfig(), NewKillSwitch(testRiskConfig()))

	existing := &db.Position{Symbol: "BTC/USDT", Side: db.PositionSideLong, TradeID: uuid.New()}
	verdict := v.Validate(context.Background(), validProposal(), signal.RegimeTrend, existing, 100000, 1)
	assert.False(t, verdict.Accepted)
	assert.Equal(t, ReasonPositionExists, verdict.Reason)
}

func TestValidator_RejectsMaxExposure(t *testing.T) {
	v := NewValidator(testRiskConfig(), NewKillSwitch(testRiskConfig()))

	p := validProposal()
	p.Qty = 1000 // notional 100,000 against a tiny NAV
	verdict := v.Validate(context.Background(), p, signal.RegimeTrend, nil, 1000, 1)
	assert.False(t, verdict.Accepted)
	assert.Equal(t, ReasonMaxExposure, verdict.Reason)
}

func TestValidator_RejectsMaxRiskPerTrade(t *testing.T) {
	cfg := testRiskConfig()
	cfg.MaxExposurePct = 1.0 // disable the exposure cap so only the risk cap fires
	v := NewValidator(cfg, NewKillSwitch(cfg))

	p := validProposal()
	p.Qty = 0.1
	p.Entry = 100
	p.Stop = 50 // 0.1 * 50 = 5 risked against a NAV where 0.5% is far smaller
	verdict := v.Validate(context.Background(), p, signal.RegimeTrend, nil, 100, 1)
	assert.False(t, verdict.Accepted)
	assert.Equal(t, ReasonMaxRiskPerTrade, verdict.Reason)
}

func TestValidator_RejectsKillSwitchActive(t *testing.T) {
	cfg := testRiskConfig()
	ks := NewKillSwitch(cfg)
	ks.Evaluate("BTC/USDT", 0.09, 0.02, 1)
	v := NewValidator(cfg, ks)

	verdict := v.Validate(context.Background(), validProposal(), signal.RegimeTrend, nil, 100000, 1)
	assert.False(t, verdict.Accepted)
	assert.Equal(t, ReasonKillSwitchActive, verdict.Reason)
}

func TestValidator_RejectsCooldownActive(t *testing.T) {
	cfg := testRiskConfig()
	ks := NewKillSwitch(cfg)
	ks.StartCooldown("BTC/USDT", 1)
	v := NewValidator(cfg, ks)

	verdict := v.Validate(context.Background(), validProposal(), signal.RegimeTrend, nil, 100000, 1)
	assert.False(t, verdict.Accepted)
	assert.Equal(t, ReasonCooldownActive, verdict.Reason)
}

func TestProposal_PositionSide(t *testing.T) {
	long := Proposal{Side: "long"}
	short := Proposal{Side: "short"}
	assert.Equal(t, db.PositionSideLong, long.PositionSide())
	assert.Equal(t, db.PositionSideShort, short.PositionSide())
}
