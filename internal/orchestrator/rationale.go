package orchestrator

import (
	"encoding/json"

	"github.com/paper-trader/daemon/internal/db"
	"github.com/paper-trader/daemon/internal/llm"
	"github.com/paper-trader/daemon/internal/risk"
	"github.com/paper-trader/daemon/internal/sentiment"
	"github.com/paper-trader/daemon/internal/signal"
)

// FinalDecision is the closing entry in a decision rationale: what actually
// happened to the proposal once every stage had its say (§4.8).
type FinalDecision struct {
	Outcome       string  `json:"outcome"` // "executed", "rejected", "modified_and_executed"
	RejectReason  string  `json:"reject_reason,omitempty"`
	Modifications *string `json:"modifications,omitempty"`
}

// Rationale is the typed, in-process shape of the decision_rationale blob
// (§4.8: "indicator snapshot at decision time, regime, sentiment summary,
// advisor proposal JSON, consultant review JSON, final decision record").
// §9 treats the blob as schema-less at the storage boundary and typed only
// internally, so this struct exists purely to be marshaled once at persist
// time, never unmarshaled back for control flow.
type Rationale struct {
	DecisionID string              `json:"decision_id"`
	Symbol     string              `json:"symbol"`
	Ts         string              `json:"ts"`
	Indicators db.FeatureRow       `json:"-"`
	Regime     signal.Regime       `json:"regime"`
	Sentiment  sentiment.Snapshot  `json:"-"`
	Advisor    *risk.Proposal      `json:"advisor_proposal"`
	Consultant *llm.ConsultantOutput `json:"consultant_review,omitempty"`
	Final      FinalDecision       `json:"final_decision"`
}

// MarshalJSON flattens the indicator snapshot and sentiment summary inline
// rather than nesting them, matching the "verbatim" blob shape §4.8 asks
// for without forcing every reader to know FeatureRow's db tags.
func (r Rationale) MarshalJSON() ([]byte, error) {
	type alias Rationale
	return json.Marshal(struct {
		alias
		IndicatorSnapshot db.FeatureRow      `json:"indicator_snapshot"`
		SentimentSummary  sentiment.Snapshot `json:"sentiment_summary"`
	}{
		alias:             alias(r),
		IndicatorSnapshot: r.Indicators,
		SentimentSummary:  r.Sentiment,
	})
}

// Bytes renders the rationale for the broker's rationale []byte parameter.
func (r Rationale) Bytes() []byte {
	b, err := json.Marshal(r)
	if err != nil {
		return []byte(`{"error":"rationale marshal failed"}`)
	}
	return b
}

// finalDecisionFor derives the rationale's closing record from a
// consultant outcome that has already cleared the risk validator — the
// pipeline only reaches this point on a trade that will actually open.
func finalDecisionFor(o llm.ReconciliationOutcome) FinalDecision {
	if o.Action == db.ActionConsultantModify {
		reasoning := o.Reasoning
		return FinalDecision{Outcome: "modified_and_executed", Modifications: &reasoning}
	}
	return FinalDecision{Outcome: "executed"}
}

// consultantSummaryFor reconstructs the consultant_review rationale entry
// from a ReconciliationOutcome, which already folds the consultant's raw
// output into the (possibly modified) proposal rather than keeping it.
func consultantSummaryFor(o llm.ReconciliationOutcome) *llm.ConsultantOutput {
	recommendation := "approve"
	if o.Action == db.ActionConsultantModify {
		recommendation = "modify"
	}
	return &llm.ConsultantOutput{Recommendation: recommendation, Reasoning: o.Reasoning}
}
