package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"signalforge/internal/domain"

	"github.com/redis/go-redis/v9"
)

var Client *redis.Client

var (
	newRedisClient = func(opts *redis.Options) *redis.Client {
		return redis.NewClient(opts)
	}
	pingRedis = func(ctx context.Context, client *redis.Client) error {
		return client.Ping(ctx).Err()
	}
	parseRedisURL = redis.ParseURL
)

func InitRedis(ctx context.Context, addr string) {
	if addr == "" {
		addr = "localhost:6379"
	}

	opts := &redis.Options{Addr: addr}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := parseRedisURL(addr)
		if err != nil {
			log.Fatalf("failed to parse Redis URL: %v", err)
		}
		opts = parsed
	}

	Client = newRedisClient(opts)
	if err := pingRedis(ctx, Client); err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	log.Println("Connected to Redis")
}

// SignalStore keeps the most recently published signal per pair so API
// reads don't hit Postgres on every poll.
type SignalStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSignalStore(client *redis.Client, ttl time.Duration) *SignalStore {
	if ttl <= 0 {
		ttl = 4 * time.Hour
	}
	return &SignalStore{client: client, ttl: ttl}
}

func signalKey(symbol, timeframe string) string {
	return fmt.Sprintf("signal:latest:%s:%s", symbol, timeframe)
}

func (s *SignalStore) PutLatest(ctx context.Context, signal *domain.EnhancedSignal) error {
	if s == nil || s.client == nil || signal == nil {
		return nil
	}
	payload, err := json.Marshal(signal)
	if err != nil {
		return fmt.Errorf("encode signal for cache: %w", err)
	}
	return s.client.Set(ctx, signalKey(signal.Symbol, signal.Timeframe), payload, s.ttl).Err()
}

// GetLatest returns the cached signal for a pair, or nil on a miss.
func (s *SignalStore) GetLatest(ctx context.Context, symbol, timeframe string) (*domain.EnhancedSignal, error) {
	if s == nil || s.client == nil {
		return nil, nil
	}
	payload, err := s.client.Get(ctx, signalKey(symbol, timeframe)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var signal domain.EnhancedSignal
	if err := json.Unmarshal(payload, &signal); err != nil {
		return nil, fmt.Errorf("decode cached signal: %w", err)
	}
	return &signal, nil
}

func cooldownKey(symbol, timeframe string) string {
	return fmt.Sprintf("signal:cooldown:%s:%s", symbol, timeframe)
}

// MarkCooldown mirrors an emission into Redis so replicas sharing the
// cache skip the pair for the cooldown window.
func (s *SignalStore) MarkCooldown(ctx context.Context, symbol, timeframe string, ttl time.Duration) error {
	if s == nil || s.client == nil || ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, cooldownKey(symbol, timeframe), "1", ttl).Err()
}

// InCooldown reports whether another process emitted for the pair
// within the cooldown window. Errors fail open so a Redis outage never
// blocks evaluation.
func (s *SignalStore) InCooldown(ctx context.Context, symbol, timeframe string) (bool, error) {
	if s == nil || s.client == nil {
		return false, nil
	}
	_, err := s.client.Get(ctx, cooldownKey(symbol, timeframe)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
