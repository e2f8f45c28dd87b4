package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenBlacklist revokes access tokens before they expire, either one token
// by JTI or every token an account was issued up to a point in time.
type TokenBlacklist interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	RevokeAccount(ctx context.Context, accountID string, ttl time.Duration) error
	IsAccountRevoked(ctx context.Context, accountID string, issuedAt time.Time) (bool, error)
}

const blacklistKeyPrefix = "mxi:auth:revoked:"

// RedisTokenBlacklist shares revocations across instances
type RedisTokenBlacklist struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewRedisTokenBlacklist wraps an existing client
func NewRedisTokenBlacklist(client redis.UniversalClient) *RedisTokenBlacklist {
	return &RedisTokenBlacklist{client: client, now: time.Now}
}

func jtiKey(jti string) string {
	return blacklistKeyPrefix + "jti:" + jti
}

func accountKey(accountID string) string {
	return blacklistKeyPrefix + "account:" + accountID
}

// RevokeToken revokes one token for its remaining lifetime
func (b *RedisTokenBlacklist) RevokeToken(ctx context.Context, jti string, ttl time.Duration) error {
	if err := b.client.Set(ctx, jtiKey(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether the token was revoked
func (b *RedisTokenBlacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := b.client.Exists(ctx, jtiKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return n > 0, nil
}

// RevokeAccount revokes every token issued to the account up to now
func (b *RedisTokenBlacklist) RevokeAccount(ctx context.Context, accountID string, ttl time.Duration) error {
	if err := b.client.Set(ctx, accountKey(accountID), b.now().Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("revoke account tokens: %w", err)
	}
	return nil
}

// IsAccountRevoked reports whether a token issued at issuedAt predates the
// account's revocation
func (b *RedisTokenBlacklist) IsAccountRevoked(ctx context.Context, accountID string, issuedAt time.Time) (bool, error) {
	raw, err := b.client.Get(ctx, accountKey(accountID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check account revocation: %w", err)
	}
	revokedAt, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, fmt.Errorf("parse account revocation: %w", err)
	}
	return issuedAt.Unix() <= revokedAt, nil
}

// InMemoryTokenBlacklist is the single-instance fallback used when Redis is
// not configured
type InMemoryTokenBlacklist struct {
	mu       sync.Mutex
	tokens   map[string]time.Time
	accounts map[string]time.Time
	now      func() time.Time
}

// NewInMemoryTokenBlacklist creates an empty blacklist
func NewInMemoryTokenBlacklist(now func() time.Time) *InMemoryTokenBlacklist {
	if now == nil {
		now = time.Now
	}
	return &InMemoryTokenBlacklist{
		tokens:   make(map[string]time.Time),
		accounts: make(map[string]time.Time),
		now:      now,
	}
}

func (b *InMemoryTokenBlacklist) RevokeToken(_ context.Context, jti string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens[jti] = b.now().Add(ttl)
	return nil
}

func (b *InMemoryTokenBlacklist) IsRevoked(_ context.Context, jti string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	until, ok := b.tokens[jti]
	if !ok {
		return false, nil
	}
	if b.now().After(until) {
		delete(b.tokens, jti)
		return false, nil
	}
	return true, nil
}

func (b *InMemoryTokenBlacklist) RevokeAccount(_ context.Context, accountID string, _ time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts[accountID] = b.now()
	return nil
}

func (b *InMemoryTokenBlacklist) IsAccountRevoked(_ context.Context, accountID string, issuedAt time.Time) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	revokedAt, ok := b.accounts[accountID]
	if !ok {
		return false, nil
	}
	return !issuedAt.After(revokedAt), nil
}

// NewTokenBlacklist returns the Redis blacklist when client is non-nil and the
// in-memory one otherwise
func NewTokenBlacklist(client *redis.Client) TokenBlacklist {
	if client != nil {
		return NewRedisTokenBlacklist(client)
	}
	return NewInMemoryTokenBlacklist(nil)
}

var (
	_ TokenBlacklist = (*RedisTokenBlacklist)(nil)
	_ TokenBlacklist = (*InMemoryTokenBlacklist)(nil)
)
