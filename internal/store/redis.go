package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zappabad/cloutmarket/internal/portfolio"
	"github.com/zappabad/cloutmarket/internal/pricing"
)

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// DefaultRedisConfig returns the defaults; Addr is left empty.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Prefix: "cloutmarket:",
		TTL:    30 * 24 * time.Hour,
	}
}

// RedisStore keeps checkpoints as JSON values in redis.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to cfg.Addr and pings it.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return NewRedisStoreWithClient(client, cfg), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client redis.UniversalClient, cfg RedisConfig) *RedisStore {
	d := DefaultRedisConfig()
	if cfg.Prefix == "" {
		cfg.Prefix = d.Prefix
	}
	if cfg.TTL < 0 {
		cfg.TTL = 0
	}
	return &RedisStore{client: client, prefix: cfg.Prefix, ttl: cfg.TTL}
}

func (s *RedisStore) portfolioKey(userID string) string {
	return s.prefix + "portfolio:" + userID
}

func (s *RedisStore) memoryKey(instrumentID string) string {
	return s.prefix + "pricing:" + instrumentID
}

func (s *RedisStore) get(ctx context.Context, key string, v any) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *RedisStore) set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) LoadPortfolio(ctx context.Context, userID string) (portfolio.Checkpoint, bool, error) {
	var cp portfolio.Checkpoint
	ok, err := s.get(ctx, s.portfolioKey(userID), &cp)
	return cp, ok, err
}

func (s *RedisStore) SavePortfolio(ctx context.Context, cp portfolio.Checkpoint) error {
	return s.set(ctx, s.portfolioKey(cp.UserID), cp)
}

func (s *RedisStore) LoadPricingMemory(ctx context.Context, instrumentID string) (pricing.Memory, bool, error) {
	var m pricing.Memory
	ok, err := s.get(ctx, s.memoryKey(instrumentID), &m)
	return m, ok, err
}

func (s *RedisStore) SavePricingMemory(ctx context.Context, instrumentID string, m pricing.Memory) error {
	return s.set(ctx, s.memoryKey(instrumentID), m)
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
