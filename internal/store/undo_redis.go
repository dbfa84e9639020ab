package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/evanmorrow/mailpurge/internal/undo"
)

// undoKeyTTL keeps spent rings from lingering: every point in a ring expires
// within undo.TTL of the newest push.
const undoKeyTTL = undo.TTL

// RedisUndoStore implements undo.Store. The whole ring is one JSON value per
// user; Push and MarkUsed run under WATCH so racing operations for the same
// user serialize instead of losing writes.
type RedisUndoStore struct {
	rdb *redis.Client
}

func NewRedisUndoStore(rdb *redis.Client) *RedisUndoStore {
	return &RedisUndoStore{rdb: rdb}
}

func (s *RedisUndoStore) Push(ctx context.Context, user string, p undo.Point) error {
	key := fmt.Sprintf(keyUndo, user)
	return watchRetry(ctx, s.rdb, key, func(tx *redis.Tx) error {
		ring, err := readRing(ctx, tx, key)
		if err != nil {
			return err
		}
		ring = append([]undo.Point{p}, ring...)
		if len(ring) > undo.RingSize {
			ring = ring[:undo.RingSize]
		}
		return writeRing(ctx, tx, key, ring)
	})
}

func (s *RedisUndoStore) Get(ctx context.Context, user, id string) (undo.Point, bool, error) {
	data, err := s.rdb.Get(ctx, fmt.Sprintf(keyUndo, user)).Bytes()
	if err == redis.Nil {
		return undo.Point{}, false, nil
	}
	if err != nil {
		return undo.Point{}, false, err
	}
	var ring []undo.Point
	if err := json.Unmarshal(data, &ring); err != nil {
		return undo.Point{}, false, fmt.Errorf("decode undo ring: %w", err)
	}
	for _, p := range ring {
		if p.ID == id {
			return p, true, nil
		}
	}
	return undo.Point{}, false, nil
}

func (s *RedisUndoStore) MarkUsed(ctx context.Context, user, id string, executedAt time.Time) (bool, error) {
	key := fmt.Sprintf(keyUndo, user)
	flipped := false
	err := watchRetry(ctx, s.rdb, key, func(tx *redis.Tx) error {
		flipped = false
		ring, err := readRing(ctx, tx, key)
		if err != nil {
			return err
		}
		for i := range ring {
			if ring[i].ID != id {
				continue
			}
			if !ring[i].CanUndo {
				return nil // already spent; nothing to write
			}
			ring[i].CanUndo = false
			at := executedAt
			ring[i].ExecutedAt = &at
			flipped = true
			return writeRing(ctx, tx, key, ring)
		}
		return nil
	})
	return flipped, err
}

func (s *RedisUndoStore) List(ctx context.Context, user string) ([]undo.Point, error) {
	data, err := s.rdb.Get(ctx, fmt.Sprintf(keyUndo, user)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ring []undo.Point
	if err := json.Unmarshal(data, &ring); err != nil {
		return nil, fmt.Errorf("decode undo ring: %w", err)
	}
	return ring, nil
}

func readRing(ctx context.Context, tx *redis.Tx, key string) ([]undo.Point, error) {
	data, err := tx.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ring []undo.Point
	if err := json.Unmarshal(data, &ring); err != nil {
		return nil, fmt.Errorf("decode undo ring: %w", err)
	}
	return ring, nil
}

func writeRing(ctx context.Context, tx *redis.Tx, key string, ring []undo.Point) error {
	data, err := json.Marshal(ring)
	if err != nil {
		return fmt.Errorf("encode undo ring: %w", err)
	}
	_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, undoKeyTTL)
		return nil
	})
	return err
}

var _ undo.Store = (*RedisUndoStore)(nil)
