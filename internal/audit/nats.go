package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/paper-trader/daemon/internal/db"
	"github.com/paper-trader/daemon/internal/metrics"
)

// EventSubjectPrefix is the prefix of the NATS subject every event-log
// entry is republished on, grounded on the teacher's messagebus.go subject-prefix convention
// (internal/orchestrator/messagebus.go: "agents.{to}.{topic}"). The daemon
// has no agent-to-agent routing to do, so one flat subject per event tag
// is enough for an external subscriber (dashboard, alerting) to tail the
// cycle's causal trail without querying the database.
const EventSubjectPrefix = "papertrader.events."

// NATSPublisher republishes event-log entries after they are durably
// persisted (§6: "the orchestrator publishes each event-log entry onto a
// NATS subject after the DB write succeeds"). A nil *NATSPublisher is a
// valid no-op, matching Sink's own disabled-by-default posture.
type NATSPublisher struct {
	nc *nats.Conn
}

// NewNATSPublisher connects to the given NATS URL. Grounded on the
// teacher's NewMessageBus: infinite reconnect with a bounded wait, named
// connection, warn-level disconnect/reconnect logging.
func NewNATSPublisher(url string) (*NATSPublisher, error) {
	nc, err := nats.Connect(
		url,
		nats.Name("paper-trader-daemon"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSPublisher{nc: nc}, nil
}

// Close drains and closes the NATS connection.
func (p *NATSPublisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	_ = p.nc.Drain()
}

// publish fires a persisted event-log row at its subject. Failures are
// logged, not returned: a NATS outage must never fail the event-log write
// it is shadowing (§7: transient external failures degrade, never abort).
func (p *NATSPublisher) publish(row *db.EventLogEntry) {
	if p == nil || p.nc == nil {
		return
	}

	data, err := json.Marshal(row)
	if err != nil {
		log.Warn().Err(err).Msg("marshal event for nats publish")
		return
	}

	subject := EventSubjectPrefix + tagSubject(row.Tags)
	if err := p.nc.Publish(subject, data); err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("nats publish failed")
		return
	}
	metrics.NATSMessagesPublished.Inc()
}

func tagSubject(tags []string) string {
	if len(tags) == 0 {
		return "unknown"
	}
	return tags[0]
}
