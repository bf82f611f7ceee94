package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventTag is one of the closed vocabulary of event categories from §4.8.
type EventTag string

const (
	TagCycle      EventTag = "CYCLE"
	TagData       EventTag = "DATA"
	TagFeatures   EventTag = "FEATURES"
	TagSignal     EventTag = "SIGNAL"
	TagSentiment  EventTag = "SENTIMENT"
	TagProposal   EventTag = "PROPOSAL"
	TagConsultant EventTag = "CONSULTANT"
	TagValidation EventTag = "VALIDATION"
	TagTrade      EventTag = "TRADE"
	TagExit       EventTag = "EXIT"
	TagRisk       EventTag = "RISK"
	TagReflection EventTag = "REFLECTION"
	TagQA         EventTag = "QA"
	TagError      EventTag = "ERROR"
)

// Action codes, also drawn from a closed set (§4.8).
const (
	ActionRegimeTrend         = "REGIME_TREND"
	ActionRegimeChop          = "REGIME_CHOP"
	ActionSkipNoSignal        = "SKIP_NO_SIGNAL"
	ActionAdvisorFail         = "ADVISOR_FAIL"
	ActionConsultantApprove   = "CONSULTANT_APPROVE"
	ActionConsultantReject    = "CONSULTANT_REJECT"
	ActionConsultantModify    = "CONSULTANT_MODIFY"
	ActionConsultantAutoApp   = "CONSULTANT_AUTO_APPROVE"
	ActionValidationReject    = "VALIDATION_REJECT"
	ActionOpenLong            = "OPEN_LONG"
	ActionOpenShort           = "OPEN_SHORT"
	ActionExitStop            = "EXIT_STOP"
	ActionExitTime            = "EXIT_TIME"
	ActionExitKill            = "EXIT_KILL"
	ActionStaleData           = "STALE_DATA"
	ActionKillSwitch          = "KILL_SWITCH"
	ActionCycleTimeout        = "CYCLE_TIMEOUT"
	ActionInvariantViolation  = "INVARIANT"
	ActionIngestError         = "INGEST_ERROR"
	ActionPersistError        = "PERSIST_ERROR"
	ActionCycleStart          = "CYCLE_START"
)

// EventLevel mirrors the severities the structured logger emits at.
type EventLevel string

const (
	LevelDebug EventLevel = "debug"
	LevelInfo  EventLevel = "info"
	LevelWarn  EventLevel = "warn"
	LevelError EventLevel = "error"
)

// EventLogEntry is one append-only row in the causal trail tying every
// stage of a cycle's decision for one symbol together via DecisionID.
type EventLogEntry struct {
	ID         int64           `db:"id"`
	Ts         time.Time       `db:"ts"`
	Level      EventLevel      `db:"level"`
	Tags       []string        `db:"tags"`
	Symbol     *string         `db:"symbol"`
	Timeframe  *string         `db:"timeframe"`
	Action     *string         `db:"action"`
	DecisionID *string         `db:"decision_id"`
	TradeID    *uuid.UUID      `db:"trade_id"`
	Payload    json.RawMessage `db:"payload"`
}

// Append writes one event log entry. The event log's ordering key is the
// auto-increment id, which respects arrival time by construction.
func (db *DB) Append(ctx context.Context, e *EventLogEntry) error {
	if e.Ts.IsZero() {
		e.Ts = time.Now().UTC()
	}
	_, err := db.pool.Exec(ctx, `
		INSERT INTO event_log (ts, level, tags, symbol, timeframe, action, decision_id, trade_id, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.Ts, e.Level, e.Tags, e.Symbol, e.Timeframe, e.Action, e.DecisionID, e.TradeID, e.Payload)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// EventsByDecisionID returns every event carrying a given decision-id, in
// causal (insertion) order, the query path the rationale/status surface
// and property tests (#9) both rely on.
func (db *DB) EventsByDecisionID(ctx context.Context, decisionID string) ([]EventLogEntry, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT id, ts, level, tags, symbol, timeframe, action, decision_id, trade_id, payload
		FROM event_log WHERE decision_id = $1 ORDER BY id ASC
	`, decisionID)
	if err != nil {
		return nil, fmt.Errorf("query events by decision id: %w", err)
	}
	defer rows.Close()

	var out []EventLogEntry
	for rows.Next() {
		var e EventLogEntry
		if err := rows.Scan(&e.ID, &e.Ts, &e.Level, &e.Tags, &e.Symbol, &e.Timeframe, &e.Action, &e.DecisionID, &e.TradeID, &e.Payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}
