package otp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/ghostchat/internal/clock"
)

// Pending is an issued code waiting to be confirmed.
type Pending struct {
	Email string
	Code  string
}

// CodeStore keeps one pending code per user until it expires.
type CodeStore interface {
	Put(ctx context.Context, userID string, p Pending, ttl time.Duration) error
	// Get returns false when nothing is pending or the code expired.
	Get(ctx context.Context, userID string) (Pending, bool, error)
	Delete(ctx context.Context, userID string) error
}

const namespace = "otp"

// RedisCodeStore keeps codes in Redis hashes under "otp:<userID>".
type RedisCodeStore struct {
	client redis.UniversalClient
}

// NewRedisCodeStore connects to a single Redis node.
func NewRedisCodeStore(addr, password string, db int) *RedisCodeStore {
	return &RedisCodeStore{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// NewRedisCodeStoreWithClient wraps an existing client.
func NewRedisCodeStoreWithClient(c redis.UniversalClient) *RedisCodeStore {
	return &RedisCodeStore{client: c}
}

func key(userID string) string {
	return namespace + ":" + userID
}

// Ping checks connectivity.
func (s *RedisCodeStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Put replaces the pending code for userID.
func (s *RedisCodeStore) Put(ctx context.Context, userID string, p Pending, ttl time.Duration) error {
	k := key(userID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		pipe.HSet(ctx, k, "email", p.Email, "code", p.Code)
		pipe.Expire(ctx, k, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("otp put %s: %w", userID, err)
	}
	return nil
}

// Get reads the pending code for userID.
func (s *RedisCodeStore) Get(ctx context.Context, userID string) (Pending, bool, error) {
	vals, err := s.client.HGetAll(ctx, key(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return Pending{}, false, nil
	}
	if err != nil {
		return Pending{}, false, fmt.Errorf("otp get %s: %w", userID, err)
	}
	if len(vals) == 0 {
		return Pending{}, false, nil
	}
	return Pending{Email: vals["email"], Code: vals["code"]}, true, nil
}

// Delete forgets the pending code for userID.
func (s *RedisCodeStore) Delete(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, key(userID)).Err(); err != nil {
		return fmt.Errorf("otp delete %s: %w", userID, err)
	}
	return nil
}

// Close releases the client.
func (s *RedisCodeStore) Close() error {
	return s.client.Close()
}

// MemoryCodeStore keeps codes in process memory. Used when no Redis address
// is configured, and in tests.
type MemoryCodeStore struct {
	mu    sync.Mutex
	clock clock.Clock
	codes map[string]memoryEntry
}

type memoryEntry struct {
	Pending
	expiresAt time.Time
}

// NewMemoryCodeStore creates an empty store that expires codes by c.
func NewMemoryCodeStore(c clock.Clock) *MemoryCodeStore {
	return &MemoryCodeStore{clock: c, codes: make(map[string]memoryEntry)}
}

// Put implements CodeStore.
func (s *MemoryCodeStore) Put(ctx context.Context, userID string, p Pending, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[userID] = memoryEntry{Pending: p, expiresAt: s.clock.Now().Add(ttl)}
	return nil
}

// Get implements CodeStore.
func (s *MemoryCodeStore) Get(ctx context.Context, userID string) (Pending, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.codes[userID]
	if !ok {
		return Pending{}, false, nil
	}
	if !s.clock.Now().Before(e.expiresAt) {
		delete(s.codes, userID)
		return Pending{}, false, nil
	}
	return e.Pending, true, nil
}

// Delete implements CodeStore.
func (s *MemoryCodeStore) Delete(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.codes, userID)
	return nil
}
