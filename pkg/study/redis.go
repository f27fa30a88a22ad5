package study

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists studies in redis so that several search processes
// can share one study.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to redis at addr.
func NewRedisStore(addr, password string, db int) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

func redisKey(name string) string {
	return "risposta:study:" + name
}

func (r *RedisStore) Save(ctx context.Context, name string, trials []Trial) error {
	data, err := json.Marshal(trials)
	if err != nil {
		return fmt.Errorf("encode study %s: %w", name, err)
	}
	if err := r.client.Set(ctx, redisKey(name), data, 0).Err(); err != nil {
		return fmt.Errorf("save study %s: %w", name, err)
	}
	return nil
}

func (r *RedisStore) Load(ctx context.Context, name string) ([]Trial, error) {
	data, err := r.client.Get(ctx, redisKey(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrStudyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load study %s: %w", name, err)
	}
	var trials []Trial
	if err := json.Unmarshal(data, &trials); err != nil {
		return nil, fmt.Errorf("decode study %s: %w", name, err)
	}
	return trials, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
