package sentiment

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/paper-trader/daemon/internal/db"
)

// refreshWindowHours is the twice-daily cadence from §4.4/§6: a snapshot is
// only refreshed once the UTC hour crosses the next 00:00/12:00 boundary.
const refreshWindowHours = 12

// boundary returns the most recent refresh boundary at or before t, i.e.
// t truncated down to the nearest 00:00 or 12:00 UTC.
func boundary(t time.Time) time.Time {
	t = t.UTC()
	hour := (t.Hour() / refreshWindowHours) * refreshWindowHours
	return time.Date(t.Year(), t.Month(), t.Day(), hour, 0, 0, 0, time.UTC)
}

// Store persists and fronts sentiment snapshots through a twice-daily
// refresh window, with Postgres for durable storage. The boundary check
// always reads the latest snapshot from Postgres; the optional Redis client
// only has the refresh boundary written to it after each refresh, and is
// never read.
type Store struct {
	db    *db.DB
	redis *redis.Client
}

// NewStore creates a sentiment cache backed by Postgres and, optionally, a
// Redis client (nil skips the write of the refresh boundary to Redis; the
// database's latest-snapshot lookup runs on every cycle either way).
func NewStore(database *db.DB, redisClient *redis.Client) *Store {
	return &Store{db: database, redis: redisClient}
}

func cacheKey(symbol string) string {
	return fmt.Sprintf("papertrader:sentiment:boundary:%s", symbol)
}

// GetOrRefresh returns the cached snapshot for symbol if it falls within
// the current refresh window, or fetches, persists, and returns a fresh
// one via provider otherwise (§4.1 "Sentiment snapshot" pipeline stage:
// "read cached, refresh only if UTC hour crosses next refresh boundary").
func (s *Store) GetOrRefresh(ctx context.Context, symbol string, now time.Time, provider Provider) (db.SentimentSnapshot, error) {
	want := boundary(now)

	if cached, err := s.db.LatestSentimentSnapshot(ctx, symbol); err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("failed to read cached sentiment snapshot, refreshing")
	} else if cached != nil && !cached.Ts.UTC().Before(want) {
		return *cached, nil
	}

	snap, err := provider.FetchSentiment(ctx, symbol)
	if err != nil {
		snap = NeutralSnapshot()
	}

	row := db.SentimentSnapshot{
		Symbol:    symbol,
		Ts:        now.UTC(),
		Sent24h:   snap.Sent24h,
		Sent7d:    snap.Sent7d,
		SentTrend: snap.SentTrend,
		Burst:     snap.Burst,
		Sources:   MarshalSources(snap.Sources),
	}

	if err := s.db.UpsertSentimentSnapshot(ctx, &row); err != nil {
		return row, fmt.Errorf("persist sentiment snapshot: %w", err)
	}

	if s.redis != nil {
		if err := s.redis.Set(ctx, cacheKey(symbol), want.Format(time.RFC3339), refreshWindowHours*time.Hour).Err(); err != nil {
			log.Debug().Err(err).Str("symbol", symbol).Msg("failed to record sentiment refresh boundary in redis")
		}
	}

	return row, nil
}
