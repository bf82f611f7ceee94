package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB creates a test database connection, skipping the test when
// DATABASE_URL isn't set or the connection fails.
func setupTestDB(t *testing.T) (*DB, func()) {
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("Skipping database test: DATABASE_URL not set")
	}

	ctx := context.Background()
	database, err := New(ctx)
	if err != nil {
		t.Skipf("Skipping database test: failed to connect: %v", err)
	}

	cleanup := func() {
		database.Close()
	}

	return database, cleanup
}

func TestNew(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	assert.NotNil(t, database)
	assert.NotNil(t, database.Pool())
}

func TestPing(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	require.NoError(t, database.Ping(context.Background()))
}

func TestHealth(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	require.NoError(t, database.Health(context.Background()))
}

func TestCandleUpsertIdempotent(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	ts := time.Now().UTC().Truncate(time.Minute)
	c := Candle{Symbol: "BTC/USDT", Timeframe: "5m", Ts: ts, Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 10}

	require.NoError(t, database.UpsertCandles(ctx, []Candle{c}))
	require.NoError(t, database.UpsertCandles(ctx, []Candle{c}))

	rows, err := database.RecentCandles(ctx, "BTC/USDT", "5m", 10)
	require.NoError(t, err)
	count := 0
	for _, r := range rows {
		if r.Ts.Equal(ts) {
			count++
		}
	}
	assert.Equal(t, 1, count, "duplicate insert must not create a second row")
}

func TestTradeAndPositionAtomicity(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	symbol := "ETH/USDT-" + time.Now().Format("150405.000")

	trade := &Trade{
		Symbol:     symbol,
		Side:       PositionSideLong,
		Qty:        1,
		DecisionID: "dec-1",
		EntryPrice: 2000,
		EntryFees:  0.4,
		OpenedTs:   time.Now().UTC(),
	}
	position := &Position{
		Symbol:       symbol,
		Side:         PositionSideLong,
		Qty:          1,
		AvgPrice:     2000,
		Stop:         1950,
		TradeID:      trade.ID,
		OpenedTs:     trade.OpenedTs,
		LastUpdateTs: trade.OpenedTs,
	}
	require.NoError(t, database.CreateTradeAndPosition(ctx, trade, position))

	p, err := database.GetOpenPosition(ctx, symbol)
	require.NoError(t, err)
	require.NotNil(t, p)

	require.NoError(t, database.CloseTradeAndPosition(ctx, trade.ID, symbol, 2010, 0.4, 9.2, "EXIT_TIME", time.Now().UTC()))

	p, err = database.GetOpenPosition(ctx, symbol)
	require.NoError(t, err)
	assert.Nil(t, p, "position must be gone once its trade closes")
}
