package orchestrator

import (
	"encoding/json"
	"testing"

	"github.com/paper-trader/daemon/internal/db"
	"github.com/paper-trader/daemon/internal/llm"
	"github.com/paper-trader/daemon/internal/risk"
	"github.com/paper-trader/daemon/internal/sentiment"
	"github.com/paper-trader/daemon/internal/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFinalDecisionForExecuted(t *testing.T) {
	outcome := llm.ReconciliationOutcome{Action: db.ActionConsultantAutoApp, Reasoning: "confidence above threshold"}
	final := finalDecisionFor(outcome)
	assert.Equal(t, "executed", final.Outcome)
	assert.Nil(t, final.Modifications)
}

func TestFinalDecisionForModified(t *testing.T) {
	outcome := llm.ReconciliationOutcome{Action: db.ActionConsultantModify, Reasoning: "size reduced to respect exposure cap"}
	final := finalDecisionFor(outcome)
	assert.Equal(t, "modified_and_executed", final.Outcome)
	require.NotNil(t, final.Modifications)
	assert.Equal(t, "size reduced to respect exposure cap", *final.Modifications)
}

func TestConsultantSummaryForApprove(t *testing.T) {
	outcome := llm.ReconciliationOutcome{Action: db.ActionConsultantAutoApp, Reasoning: "looks fine"}
	summary := consultantSummaryFor(outcome)
	require.NotNil(t, summary)
	assert.Equal(t, "approve", summary.Recommendation)
	assert.Equal(t, "looks fine", summary.Reasoning)
}

func TestConsultantSummaryForModify(t *testing.T) {
	outcome := llm.ReconciliationOutcome{Action: db.ActionConsultantModify, Reasoning: "qty too large"}
	summary := consultantSummaryFor(outcome)
	require.NotNil(t, summary)
	assert.Equal(t, "modify", summary.Recommendation)
}

func TestRationaleMarshalJSONFlattensIndicatorsAndSentiment(t *testing.T) {
	r := Rationale{
		DecisionID: "dec-1",
		Symbol:     "BTC/USDT",
		Ts:         "2026-07-30T00:00:00Z",
		Indicators: db.FeatureRow{ATR14: 1.5},
		Regime:     signal.RegimeTrend,
		Sentiment:  sentiment.Snapshot{Sent24h: 0.2},
		Advisor:    &risk.Proposal{Symbol: "BTC/USDT", Side: "long"},
		Final:      FinalDecision{Outcome: "executed"},
	}

	b := r.Bytes()

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Contains(t, decoded, "indicator_snapshot")
	assert.Contains(t, decoded, "sentiment_summary")
	assert.Contains(t, decoded, "advisor_proposal")
	assert.Contains(t, decoded, "final_decision")
	assert.NotContains(t, decoded, "Indicators", "internal field names must not leak into the persisted blob")
}

func TestRationaleBytesZeroValueIsNonEmpty(t *testing.T) {
	// A zero-value Rationale marshals without error, so this checks that the
	// normal path yields a non-empty blob; Bytes' marshal-failure fallback is
	// not reached here.
	r := Rationale{}
	b := r.Bytes()
	assert.NotEmpty(t, b)
}
