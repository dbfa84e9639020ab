package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/evanmorrow/mailpurge/internal/stats"
)

const (
	fieldDeleted   = "total_deleted"
	fieldReclaimed = "reclaimed_bytes"
	fieldSessions  = "sessions"
)

// RedisStatsStore implements stats.Store with hash-field increments, which
// are atomic per user key without a transaction.
type RedisStatsStore struct {
	rdb *redis.Client
}

func NewRedisStatsStore(rdb *redis.Client) *RedisStatsStore {
	return &RedisStatsStore{rdb: rdb}
}

func (s *RedisStatsStore) Add(ctx context.Context, user string, deleted, reclaimedBytes int64) error {
	key := fmt.Sprintf(keyStats, user)
	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, key, fieldDeleted, deleted)
	pipe.HIncrBy(ctx, key, fieldReclaimed, reclaimedBytes)
	pipe.HIncrBy(ctx, key, fieldSessions, 1)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStatsStore) Get(ctx context.Context, user string) (stats.Totals, error) {
	fields, err := s.rdb.HGetAll(ctx, fmt.Sprintf(keyStats, user)).Result()
	if err != nil {
		return stats.Totals{}, err
	}
	return stats.Totals{
		TotalDeleted:   parseField(fields, fieldDeleted),
		ReclaimedBytes: parseField(fields, fieldReclaimed),
		Sessions:       parseField(fields, fieldSessions),
	}, nil
}

func parseField(fields map[string]string, name string) int64 {
	v, err := strconv.ParseInt(fields[name], 10, 64)
	if err != nil {
		return 0
	}
	return v
}

var _ stats.Store = (*RedisStatsStore)(nil)
