package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"statusrelay/internal/cachet"
	logx "statusrelay/pkg/logx"
)

// redisStore keeps the snapshot in Redis.
//
// Key structure:
//
//	{prefix}:components - hash of component id -> JSON record
//	{prefix}:watermark  - RFC3339 timestamp string
type redisStore struct {
	rdb    *redis.Client
	prefix string
	log    logx.Logger
}

func openRedis(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("storage.url is required for redis driver")
	}
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return NewRedis(client, cfg.KeyPrefix, log), nil
}

// NewRedis wraps an existing client. The store owns the client and closes it.
func NewRedis(client *redis.Client, prefix string, log logx.Logger) Store {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "statusrelay"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &redisStore{rdb: client, prefix: prefix, log: log}
}

func (s *redisStore) componentsKey() string { return s.prefix + ":components" }
func (s *redisStore) watermarkKey() string  { return s.prefix + ":watermark" }

func (s *redisStore) Contains(ctx context.Context, id string) (bool, error) {
	return s.rdb.HExists(ctx, s.componentsKey(), id).Result()
}

func (s *redisStore) Get(ctx context.Context, id string) (cachet.Component, bool, error) {
	raw, err := s.rdb.HGet(ctx, s.componentsKey(), id).Result()
	if errors.Is(err, redis.Nil) {
		return cachet.Component{}, false, nil
	}
	if err != nil {
		return cachet.Component{}, false, err
	}
	var c cachet.Component
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return cachet.Component{}, false, fmt.Errorf("decode component %s: %w", id, err)
	}
	return c, true, nil
}

func (s *redisStore) Set(ctx context.Context, id string, c cachet.Component) error {
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.rdb.HSet(ctx, s.componentsKey(), id, b).Err()
}

func (s *redisStore) Watermark(ctx context.Context) (time.Time, bool, error) {
	raw, err := s.rdb.Get(ctx, s.watermarkKey()).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("decode watermark: %w", err)
	}
	return t, true, nil
}

func (s *redisStore) SetWatermark(ctx context.Context, t time.Time) error {
	return s.rdb.Set(ctx, s.watermarkKey(), t.Format(time.RFC3339Nano), 0).Err()
}

// Flush only checks the connection; writes are not buffered.
func (s *redisStore) Flush(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *redisStore) Close() error {
	return s.rdb.Close()
}
