package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mxi/presale/internal/domain/shared"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultKeyPrefix = "mxi:idempotency:"

// RedisIdempotencyStore shares processed keys across instances with SETNX
type RedisIdempotencyStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisIdempotencyStore creates a Redis-backed store; keys are namespaced by keyPrefix
func NewRedisIdempotencyStore(client redis.UniversalClient, keyPrefix string) *RedisIdempotencyStore {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisIdempotencyStore{client: client, keyPrefix: keyPrefix}
}

// MarkProcessed claims the key for ttl and reports whether it was not already claimed
func (s *RedisIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.keyPrefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark %s processed: %w", key, err)
	}
	return ok, nil
}

// IsProcessed checks if the key has been claimed
func (s *RedisIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.keyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("check %s: %w", key, err)
	}
	return n > 0, nil
}

// Unmark releases the key so a retry can claim it
func (s *RedisIdempotencyStore) Unmark(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("unmark %s: %w", key, err)
	}
	return nil
}

// Close is a no-op; the client is owned by whoever connected it
func (s *RedisIdempotencyStore) Close() error {
	return nil
}

// InMemoryIdempotencyStore keeps processed keys in process memory. It only
// dedupes within one instance.
type InMemoryIdempotencyStore struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

// NewInMemoryIdempotencyStore starts a sweeper that drops expired keys every
// sweepEvery; zero disables the sweeper.
func NewInMemoryIdempotencyStore(sweepEvery time.Duration) *InMemoryIdempotencyStore {
	s := &InMemoryIdempotencyStore{
		expires: make(map[string]time.Time),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	if sweepEvery > 0 {
		go s.sweepLoop(sweepEvery)
	}
	return s
}

func (s *InMemoryIdempotencyStore) MarkProcessed(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if exp, ok := s.expires[key]; ok && now.Before(exp) {
		return false, nil
	}
	s.expires[key] = now.Add(ttl)
	return true, nil
}

func (s *InMemoryIdempotencyStore) IsProcessed(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.expires[key]
	return ok && s.now().Before(exp), nil
}

func (s *InMemoryIdempotencyStore) Unmark(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.expires, key)
	return nil
}

func (s *InMemoryIdempotencyStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}

// Len reports the number of unexpired and not yet swept keys
func (s *InMemoryIdempotencyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expires)
}

func (s *InMemoryIdempotencyStore) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *InMemoryIdempotencyStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, exp := range s.expires {
		if !now.Before(exp) {
			delete(s.expires, k)
		}
	}
}

// RedisOptions locates the shared Redis instance
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Required bool
}

// Connect dials Redis. It returns a nil client without error when Redis is
// unreachable and not Required, so callers can fall back to in-memory stores.
func Connect(ctx context.Context, opts RedisOptions, logger *zap.Logger) (*redis.Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err := client.Ping(pingCtx).Err()
	cancel()
	if err == nil {
		logger.Info("Connected to Redis", zap.String("addr", opts.Addr))
		return client, nil
	}
	_ = client.Close()
	if opts.Required {
		return nil, fmt.Errorf("connect redis %s: %w", opts.Addr, err)
	}
	logger.Warn("Redis unavailable, using in-memory stores", zap.Error(err))
	return nil, nil
}

// NewIdempotencyStore returns the Redis store when client is non-nil and the
// in-memory store otherwise.
func NewIdempotencyStore(client *redis.Client) shared.IdempotencyStore {
	if client != nil {
		return NewRedisIdempotencyStore(client, "")
	}
	return NewInMemoryIdempotencyStore(5 * time.Minute)
}

var (
	_ shared.IdempotencyStore = (*RedisIdempotencyStore)(nil)
	_ shared.IdempotencyStore = (*InMemoryIdempotencyStore)(nil)
)
