package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/paper-trader/daemon/internal/db"
	"github.com/paper-trader/daemon/internal/metrics"
)

// EventAppender is the subset of *db.DB the sink depends on, narrowed so
// tests can supply a fake without a live database.
type EventAppender interface {
	Append(ctx context.Context, e *db.EventLogEntry) error
}

// Sink writes the append-only causal trail described in §4.8: one row per
// stage of a cycle's decision, tied together by DecisionID and queryable
// back out via EventsByDecisionID for the rationale/status surface.
type Sink struct {
	appender EventAppender
	enabled  bool
	nats     *NATSPublisher
}

// NewSink creates an event-log sink. A disabled sink is a no-op, the same
// behavior the teacher's audit logger used for an unconfigured database.
func NewSink(appender EventAppender, enabled bool) *Sink {
	return &Sink{appender: appender, enabled: enabled}
}

// WithNATS attaches a NATS publisher so every successfully persisted event
// is also republished for external subscribers (§6). Returns the sink for
// chaining at construction time.
func (s *Sink) WithNATS(pub *NATSPublisher) *Sink {
	s.nats = pub
	return s
}

// Entry describes one event-log row ahead of persistence.
type Entry struct {
	Level      db.EventLevel
	Tags       []db.EventTag
	Symbol     string
	Timeframe  string
	Action     string
	DecisionID string
	TradeID    *uuid.UUID
	Payload    interface{}
}

// Emit appends one event-log row and records its outcome as a Prometheus
// metric keyed by action code.
func (s *Sink) Emit(ctx context.Context, e Entry) error {
	if !s.enabled {
		return nil
	}

	start := time.Now()

	var payload json.RawMessage
	if e.Payload != nil {
		b, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("marshal event payload: %w", err)
		}
		payload = b
	}

	tags := make([]string, len(e.Tags))
	for i, t := range e.Tags {
		tags[i] = string(t)
	}

	row := &db.EventLogEntry{
		Ts:      time.Now().UTC(),
		Level:   e.Level,
		Tags:    tags,
		Action:  strPtr(e.Action),
		TradeID: e.TradeID,
		Payload: payload,
	}
	if e.Symbol != "" {
		row.Symbol = strPtr(e.Symbol)
	}
	if e.Timeframe != "" {
		row.Timeframe = strPtr(e.Timeframe)
	}
	if e.DecisionID != "" {
		row.DecisionID = strPtr(e.DecisionID)
	}

	err := s.appender.Append(ctx, row)
	durationMs := float64(time.Since(start).Milliseconds())
	metrics.RecordAuditLog(e.Action, err == nil, durationMs)
	if err != nil {
		metrics.RecordAuditLogFailure("persist_error", e.Action)
		return fmt.Errorf("emit event: %w", err)
	}

	s.nats.publish(row)
	return nil
}

// EmitCycle records a cycle-lifecycle event (start, timeout, invariant
// violation) tagged CYCLE.
func (s *Sink) EmitCycle(ctx context.Context, action string, payload interface{}) error {
	return s.Emit(ctx, Entry{Level: db.LevelInfo, Tags: []db.EventTag{db.TagCycle}, Action: action, Payload: payload})
}

// EmitSignal records a regime/entry-signal decision for one symbol.
func (s *Sink) EmitSignal(ctx context.Context, symbol, timeframe, decisionID, action string, payload interface{}) error {
	return s.Emit(ctx, Entry{
		Level: db.LevelInfo, Tags: []db.EventTag{db.TagSignal}, Symbol: symbol, Timeframe: timeframe,
		DecisionID: decisionID, Action: action, Payload: payload,
	})
}

// EmitRisk records a risk-validator verdict (accept or a rejection reason
// code) ahead of order placement.
func (s *Sink) EmitRisk(ctx context.Context, symbol, decisionID string, accepted bool, payload interface{}) error {
	level := db.LevelInfo
	action := ""
	if !accepted {
		level = db.LevelWarn
		action = db.ActionValidationReject
	}
	return s.Emit(ctx, Entry{
		Level: level, Tags: []db.EventTag{db.TagRisk, db.TagValidation}, Symbol: symbol,
		DecisionID: decisionID, Action: action, Payload: payload,
	})
}

// EmitTrade records an order fill (open or close) tied to its trade id.
func (s *Sink) EmitTrade(ctx context.Context, symbol, decisionID, action string, tradeID uuid.UUID, payload interface{}) error {
	return s.Emit(ctx, Entry{
		Level: db.LevelInfo, Tags: []db.EventTag{db.TagTrade}, Symbol: symbol,
		DecisionID: decisionID, Action: action, TradeID: &tradeID, Payload: payload,
	})
}

// EmitKillSwitch records a kill-switch trip or reset, tagged RISK.
func (s *Sink) EmitKillSwitch(ctx context.Context, payload interface{}) error {
	return s.Emit(ctx, Entry{Level: db.LevelWarn, Tags: []db.EventTag{db.TagRisk}, Action: db.ActionKillSwitch, Payload: payload})
}

// EmitError records an unexpected failure (stale data, adapter error) that
// doesn't map to a more specific tag.
func (s *Sink) EmitError(ctx context.Context, symbol, action string, err error) error {
	payload := map[string]string{}
	if err != nil {
		payload["error"] = err.Error()
	}
	return s.Emit(ctx, Entry{Level: db.LevelError, Tags: []db.EventTag{db.TagError}, Symbol: symbol, Action: action, Payload: payload})
}

func strPtr(s string) *string {
	return &s
}
