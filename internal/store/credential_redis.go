package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/evanmorrow/mailpurge/internal/auth"
)

// RedisCredentialStore implements auth.Store.
type RedisCredentialStore struct {
	rdb *redis.Client
}

func NewRedisCredentialStore(rdb *redis.Client) *RedisCredentialStore {
	return &RedisCredentialStore{rdb: rdb}
}

func (s *RedisCredentialStore) Get(ctx context.Context, user string) (auth.Credential, bool, error) {
	data, err := s.rdb.Get(ctx, fmt.Sprintf(keyCredential, user)).Bytes()
	if err == redis.Nil {
		return auth.Credential{}, false, nil
	}
	if err != nil {
		return auth.Credential{}, false, err
	}
	var cred auth.Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return auth.Credential{}, false, fmt.Errorf("decode credential: %w", err)
	}
	return cred, true, nil
}

func (s *RedisCredentialStore) Put(ctx context.Context, user string, cred auth.Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}
	return s.rdb.Set(ctx, fmt.Sprintf(keyCredential, user), data, 0).Err()
}

func (s *RedisCredentialStore) Delete(ctx context.Context, user string) error {
	return s.rdb.Del(ctx, fmt.Sprintf(keyCredential, user)).Err()
}

var _ auth.Store = (*RedisCredentialStore)(nil)
