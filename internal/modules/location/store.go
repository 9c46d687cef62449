// README: Location store backed by a Redis hash per ride and Postgres trail snapshots.
package location

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"transfer/internal/types"
)

// Cache keeps the single latest sample per ride. Put never moves a ride's
// position back in time: a sample older than the stored one is dropped and
// reported as not applied.
type Cache interface {
	Put(ctx context.Context, s Sample) (bool, error)
	Get(ctx context.Context, rideID types.ID) (*Sample, error)
}

// Trail records every applied sample for later replay.
type Trail interface {
	Append(ctx context.Context, s Sample) error
	// Samples returns the recorded trail of a ride, oldest first.
	Samples(ctx context.Context, rideID types.ID) ([]Sample, error)
}

// putScript compares timestamps server-side so concurrent pings cannot
// overwrite a newer sample.
var putScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'ts')
if cur and tonumber(cur) > tonumber(ARGV[3]) then
  return 0
end
redis.call('HSET', KEYS[1], 'lat', ARGV[1], 'lng', ARGV[2], 'ts', ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return 1
`)

type RedisCache struct {
	redis     *redis.Client
	retention time.Duration
}

func NewRedisCache(rdb *redis.Client, retention time.Duration) *RedisCache {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &RedisCache{redis: rdb, retention: retention}
}

func locationKey(rideID types.ID) string {
	return "location:ride:" + string(rideID)
}

func (c *RedisCache) Put(ctx context.Context, s Sample) (bool, error) {
	applied, err := putScript.Run(ctx, c.redis, []string{locationKey(s.RideID)},
		strconv.FormatFloat(s.Lat, 'f', -1, 64),
		strconv.FormatFloat(s.Lng, 'f', -1, 64),
		s.CapturedAt.UnixMilli(),
		c.retention.Milliseconds(),
	).Int()
	if err != nil {
		return false, err
	}
	return applied == 1, nil
}

func (c *RedisCache) Get(ctx context.Context, rideID types.ID) (*Sample, error) {
	fields, err := c.redis.HGetAll(ctx, locationKey(rideID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	lat, err := strconv.ParseFloat(fields["lat"], 64)
	if err != nil {
		return nil, errors.New("location cache: bad lat")
	}
	lng, err := strconv.ParseFloat(fields["lng"], 64)
	if err != nil {
		return nil, errors.New("location cache: bad lng")
	}
	ts, err := strconv.ParseInt(fields["ts"], 10, 64)
	if err != nil {
		return nil, errors.New("location cache: bad ts")
	}
	return &Sample{RideID: rideID, Lat: lat, Lng: lng, CapturedAt: time.UnixMilli(ts).UTC()}, nil
}

type PgTrail struct {
	db *pgxpool.Pool
}

func NewPgTrail(db *pgxpool.Pool) *PgTrail {
	return &PgTrail{db: db}
}

func (t *PgTrail) Append(ctx context.Context, s Sample) error {
	_, err := t.db.Exec(ctx, `
		INSERT INTO ride_locations (ride_id, lat, lng, captured_at)
		VALUES ($1, $2, $3, $4)`,
		string(s.RideID), s.Lat, s.Lng, s.CapturedAt,
	)
	return err
}

func (t *PgTrail) Samples(ctx context.Context, rideID types.ID) ([]Sample, error) {
	rows, err := t.db.Query(ctx, `
		SELECT lat, lng, captured_at FROM ride_locations
		WHERE ride_id = $1 ORDER BY captured_at, id`, string(rideID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Sample{}
	for rows.Next() {
		s := Sample{RideID: rideID}
		if err := rows.Scan(&s.Lat, &s.Lng, &s.CapturedAt); err != nil {
			return nil, err
		}
		s.CapturedAt = s.CapturedAt.UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}
