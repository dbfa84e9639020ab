// Package store persists per-user state (credentials, undo rings, stats,
// rules) in Redis. Every update is atomic per user key: single commands where
// possible, WATCH transactions for read-modify-write, so concurrent
// operations for one user never lose an update.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyCredential = "mailpurge:cred:%s"
	keyUndo       = "mailpurge:undo:%s"
	keyStats      = "mailpurge:stats:%s"
	keyRules      = "mailpurge:rules:%s"
)

// txRetries bounds optimistic-lock retries on contended WATCH transactions.
const txRetries = 5

// Config carries Redis connection settings.
type Config struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// NewClient connects and verifies the connection with a ping.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

// watchRetry runs fn under WATCH on key, retrying when another writer races.
func watchRetry(ctx context.Context, rdb *redis.Client, key string, fn func(tx *redis.Tx) error) error {
	for i := 0; i < txRetries; i++ {
		err := rdb.Watch(ctx, fn, key)
		if err != redis.TxFailedErr {
			return err
		}
	}
	return fmt.Errorf("update %s: too much contention", key)
}
