package redis

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/ironledgerdev/myBusApp/internal/domain"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
)

const (
	positionKeyPrefix = "mybus:position:"
	positionIndexKey  = "mybus:positions"
)

// savePosition writes a position unless a newer report is already stored.
// KEYS[1] position hash, KEYS[2] index zset
// ARGV[1] json, ARGV[2] reported_at ms, ARGV[3] ttl ms, ARGV[4] expires_at ms, ARGV[5] bus id
var savePosition = goredis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'reported_at')
if current and tonumber(current) > tonumber(ARGV[2]) then
  return 0
end
redis.call('HSET', KEYS[1], 'data', ARGV[1], 'reported_at', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
redis.call('ZADD', KEYS[2], ARGV[4], ARGV[5])
return 1
`)

// PositionStore keeps the latest position per bus in Redis. Each bus is a
// hash with its own TTL; a sorted set scored by expiry indexes live buses.
type PositionStore struct {
	rdb   *goredis.Client
	clock clockwork.Clock
}

var _ domain.PositionStore = (*PositionStore)(nil)

func NewPositionStore(rdb *goredis.Client, clock clockwork.Clock) *PositionStore {
	return &PositionStore{rdb: rdb, clock: clock}
}

func positionKey(busID string) string {
	return positionKeyPrefix + busID
}

func (s *PositionStore) Save(ctx context.Context, pos domain.VehiclePosition, ttl time.Duration) error {
	data, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("marshal position %s: %w", pos.BusID, err)
	}

	expiresAt := s.clock.Now().Add(ttl)
	err = savePosition.Run(ctx, s.rdb,
		[]string{positionKey(pos.BusID), positionIndexKey},
		string(data),
		strconv.FormatInt(pos.ReportedAt.UnixMilli(), 10),
		strconv.FormatInt(ttl.Milliseconds(), 10),
		strconv.FormatInt(expiresAt.UnixMilli(), 10),
		pos.BusID,
	).Err()
	if err != nil {
		return fmt.Errorf("save position %s: %w", pos.BusID, err)
	}
	return nil
}

func (s *PositionStore) Get(ctx context.Context, busID string) (*domain.VehiclePosition, error) {
	data, err := s.rdb.HGet(ctx, positionKey(busID), "data").Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, domain.ErrPositionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get position %s: %w", busID, err)
	}

	var pos domain.VehiclePosition
	if err := json.Unmarshal(data, &pos); err != nil {
		return nil, fmt.Errorf("decode position %s: %w", busID, err)
	}
	return &pos, nil
}

// List returns live positions ordered by bus id. Index entries whose expiry
// has passed are pruned first.
func (s *PositionStore) List(ctx context.Context) ([]domain.VehiclePosition, error) {
	now := strconv.FormatInt(s.clock.Now().UnixMilli(), 10)
	if err := s.rdb.ZRemRangeByScore(ctx, positionIndexKey, "-inf", "("+now).Err(); err != nil {
		return nil, fmt.Errorf("prune position index: %w", err)
	}

	busIDs, err := s.rdb.ZRange(ctx, positionIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read position index: %w", err)
	}
	if len(busIDs) == 0 {
		return []domain.VehiclePosition{}, nil
	}

	cmds := make([]*goredis.StringCmd, len(busIDs))
	_, err = s.rdb.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for i, busID := range busIDs {
			cmds[i] = pipe.HGet(ctx, positionKey(busID), "data")
		}
		return nil
	})
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("read positions: %w", err)
	}

	positions := make([]domain.VehiclePosition, 0, len(busIDs))
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			// The hash expired before its index entry was pruned.
			continue
		}
		var pos domain.VehiclePosition
		if err := json.Unmarshal(data, &pos); err != nil {
			continue
		}
		positions = append(positions, pos)
	}

	slices.SortFunc(positions, func(a, b domain.VehiclePosition) int { return cmp.Compare(a.BusID, b.BusID) })
	return positions, nil
}
