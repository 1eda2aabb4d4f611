package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/docser/config"
	"github.com/mohammad-safakhou/docser/internal/swarm"
)

const runKeyPrefix = "run:"

// LiveRunRepository keeps the current state of in-flight and recently
// finished runs in Redis so the API can answer status polls without touching
// the archive.
type LiveRunRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLiveRunRepository(ctx context.Context, cfg config.RedisConfig) (*LiveRunRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed (%s:%s): %w", cfg.Host, cfg.Port, err)
	}
	ttl := cfg.StatusTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &LiveRunRepository{client: client, ttl: ttl}, nil
}

// SaveRun stores the run state under run:<id>, refreshed on every write.
func (r *LiveRunRepository) SaveRun(ctx context.Context, res *swarm.RunResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, runKeyPrefix+res.ID, data, r.ttl).Err()
}

// GetRun loads a live run by id.
func (r *LiveRunRepository) GetRun(ctx context.Context, id string) (*swarm.RunResult, error) {
	val, err := r.client.Get(ctx, runKeyPrefix+id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var res swarm.RunResult
	if err := json.Unmarshal([]byte(val), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// DeleteRun drops a live run entry.
func (r *LiveRunRepository) DeleteRun(ctx context.Context, id string) error {
	return r.client.Del(ctx, runKeyPrefix+id).Err()
}

func (r *LiveRunRepository) Close() error { return r.client.Close() }
