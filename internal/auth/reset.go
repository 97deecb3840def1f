package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ResetTokenStore keeps short-lived password-reset tokens. Tokens are
// opaque, expire after a TTL and are consumed exactly once.
type ResetTokenStore interface {
	Put(ctx context.Context, token, userID string, ttl time.Duration) error
	// TakeOnce returns the user behind the token and deletes it, or
	// ErrNotFound when the token is unknown or already spent.
	TakeOnce(ctx context.Context, token string) (string, error)
}

type memoryResetEntry struct {
	userID    string
	expiresAt time.Time
}

// MemoryResetStore is the in-process ResetTokenStore used by default and
// in tests.
type MemoryResetStore struct {
	mu  sync.Mutex
	m   map[string]memoryResetEntry
	now func() time.Time
}

// NewMemoryResetStore constructs an empty in-process store.
func NewMemoryResetStore() *MemoryResetStore {
	return &MemoryResetStore{m: make(map[string]memoryResetEntry), now: time.Now}
}

func (s *MemoryResetStore) Put(_ context.Context, token, userID string, ttl time.Duration) error {
	if token == "" || userID == "" || ttl <= 0 {
		return errors.New("auth: token, user id and ttl are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[token] = memoryResetEntry{userID: userID, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryResetStore) TakeOnce(_ context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.m[token]
	if !ok {
		return "", ErrNotFound
	}
	delete(s.m, token)
	if s.now().After(entry.expiresAt) {
		return "", ErrNotFound
	}
	return entry.userID, nil
}

// RedisResetStore keeps reset tokens in Redis so token consumption is
// shared across API replicas.
type RedisResetStore struct {
	client *redis.Client
	prefix string
}

// NewRedisResetStore constructs a store on an existing client.
func NewRedisResetStore(client *redis.Client) *RedisResetStore {
	return &RedisResetStore{client: client, prefix: "casefile:pwreset:"}
}

func (s *RedisResetStore) Put(ctx context.Context, token, userID string, ttl time.Duration) error {
	if token == "" || userID == "" || ttl <= 0 {
		return errors.New("auth: token, user id and ttl are required")
	}
	if err := s.client.Set(ctx, s.prefix+token, userID, ttl).Err(); err != nil {
		return fmt.Errorf("auth: store reset token: %w", err)
	}
	return nil
}

func (s *RedisResetStore) TakeOnce(ctx context.Context, token string) (string, error) {
	userID, err := s.client.GetDel(ctx, s.prefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("auth: consume reset token: %w", err)
	}
	return userID, nil
}
