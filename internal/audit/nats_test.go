package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paper-trader/daemon/internal/db"
)

// startTestNATSServer starts an embedded NATS server on a random port,
// grounded on the teacher's messagebus_test.go helper of the same name.
func startTestNATSServer(t *testing.T) *server.Server {
	t.Helper()
	ns, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1})
	require.NoError(t, err)

	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server not ready")
	}
	return ns
}

func TestNewNATSPublisher(t *testing.T) {
	ns := startTestNATSServer(t)
	defer ns.Shutdown()

	pub, err := NewNATSPublisher(ns.ClientURL())
	require.NoError(t, err)
	defer pub.Close()

	assert.NotNil(t, pub.nc)
	assert.True(t, pub.nc.IsConnected())
}

func TestNewNATSPublisher_BadURL(t *testing.T) {
	_, err := NewNATSPublisher("nats://127.0.0.1:1")
	assert.Error(t, err)
}

func TestSink_WithNATS_RepublishesPersistedEvent(t *testing.T) {
	ns := startTestNATSServer(t)
	defer ns.Shutdown()

	pub, err := NewNATSPublisher(ns.ClientURL())
	require.NoError(t, err)
	defer pub.Close()

	sub, err := pub.nc.SubscribeSync(EventSubjectPrefix + ">")
	require.NoError(t, err)

	fa := &fakeAppender{}
	sink := NewSink(fa, true).WithNATS(pub)

	tradeID := uuid.New()
	err = sink.EmitTrade(context.Background(), "BTC/USDT", "dec-1", db.ActionOpenLong, tradeID, map[string]float64{"qty": 1})
	require.NoError(t, err)
	require.Len(t, fa.rows, 1)

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err, "expected the persisted event to be republished on nats")
	assert.Equal(t, EventSubjectPrefix+string(db.TagTrade), msg.Subject)

	var republished db.EventLogEntry
	require.NoError(t, json.Unmarshal(msg.Data, &republished))
	assert.Equal(t, db.ActionOpenLong, *republished.Action)
}

func TestSink_WithNATS_SurvivesDownNATS(t *testing.T) {
	pub := &NATSPublisher{} // nc is nil, as if the connection never succeeded

	fa := &fakeAppender{}
	sink := NewSink(fa, true).WithNATS(pub)

	err := sink.EmitCycle(context.Background(), db.ActionCycleStart, nil)
	require.NoError(t, err, "a dead nats publisher must never fail the event-log write it shadows")
	assert.Len(t, fa.rows, 1)
}

func TestNilPublisher_PublishIsNoop(t *testing.T) {
	var pub *NATSPublisher
	pub.publish(&db.EventLogEntry{})
}
