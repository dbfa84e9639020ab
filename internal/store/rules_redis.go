package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/evanmorrow/mailpurge/internal/rules"
)

// RedisRuleStore implements rules.Store. Like the undo ring, a user's rules
// are one JSON value updated under WATCH.
type RedisRuleStore struct {
	rdb *redis.Client
}

func NewRedisRuleStore(rdb *redis.Client) *RedisRuleStore {
	return &RedisRuleStore{rdb: rdb}
}

func (s *RedisRuleStore) Save(ctx context.Context, user string, r rules.Rule) error {
	key := fmt.Sprintf(keyRules, user)
	return watchRetry(ctx, s.rdb, key, func(tx *redis.Tx) error {
		all, err := readRules(ctx, tx, key)
		if err != nil {
			return err
		}
		replaced := false
		for i := range all {
			if all[i].ID == r.ID {
				all[i] = r
				replaced = true
				break
			}
		}
		if !replaced {
			all = append(all, r)
		}
		return writeRules(ctx, tx, key, all)
	})
}

func (s *RedisRuleStore) Get(ctx context.Context, user, id string) (rules.Rule, bool, error) {
	all, err := s.List(ctx, user)
	if err != nil {
		return rules.Rule{}, false, err
	}
	for _, r := range all {
		if r.ID == id {
			return r, true, nil
		}
	}
	return rules.Rule{}, false, nil
}

func (s *RedisRuleStore) List(ctx context.Context, user string) ([]rules.Rule, error) {
	data, err := s.rdb.Get(ctx, fmt.Sprintf(keyRules, user)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var all []rules.Rule
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	return all, nil
}

func (s *RedisRuleStore) Delete(ctx context.Context, user, id string) error {
	key := fmt.Sprintf(keyRules, user)
	return watchRetry(ctx, s.rdb, key, func(tx *redis.Tx) error {
		all, err := readRules(ctx, tx, key)
		if err != nil {
			return err
		}
		kept := all[:0]
		for _, r := range all {
			if r.ID != id {
				kept = append(kept, r)
			}
		}
		return writeRules(ctx, tx, key, kept)
	})
}

func readRules(ctx context.Context, tx *redis.Tx, key string) ([]rules.Rule, error) {
	data, err := tx.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var all []rules.Rule
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	return all, nil
}

func writeRules(ctx context.Context, tx *redis.Tx, key string, all []rules.Rule) error {
	data, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("encode rules: %w", err)
	}
	_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, 0)
		return nil
	})
	return err
}

var _ rules.Store = (*RedisRuleStore)(nil)
