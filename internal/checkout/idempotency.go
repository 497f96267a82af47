package checkout

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyStore remembers checkout idempotency keys for a bounded time
type KeyStore interface {
	// Acquire claims key; false means it was already claimed and has not expired.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release frees a key whose checkout failed so the client may retry it.
	Release(ctx context.Context, key string) error
}

func scopedKey(tenantKey, key string) string {
	return strings.ToLower(tenantKey) + "|" + key
}

// RedisKeyStore shares claimed keys between instances
type RedisKeyStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisKeyStore creates a store on an existing client
func NewRedisKeyStore(client *redis.Client, keyPrefix string) *RedisKeyStore {
	if keyPrefix == "" {
		keyPrefix = "pos:checkout:"
	}
	return &RedisKeyStore{client: client, keyPrefix: keyPrefix}
}

// Acquire uses SETNX with a TTL in a single command
func (s *RedisKeyStore) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.keyPrefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim idempotency key: %w", err)
	}
	return ok, nil
}

// Release implements KeyStore
func (s *RedisKeyStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

// MemoryKeyStore is a single-instance KeyStore
type MemoryKeyStore struct {
	mu        sync.Mutex
	entries   map[string]time.Time
	now       func() time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewMemoryKeyStore creates a store and starts its expiry sweeper
func NewMemoryKeyStore() *MemoryKeyStore {
	s := &MemoryKeyStore{
		entries:  make(map[string]time.Time),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.cleanupLoop()
	return s
}

// Acquire implements KeyStore
func (s *MemoryKeyStore) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if exp, ok := s.entries[key]; ok && now.Before(exp) {
		return false, nil
	}
	s.entries[key] = now.Add(ttl)
	return true, nil
}

// Release implements KeyStore
func (s *MemoryKeyStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Close stops the sweeper. Safe to call more than once.
func (s *MemoryKeyStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	return nil
}

func (s *MemoryKeyStore) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *MemoryKeyStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, exp := range s.entries {
		if !now.Before(exp) {
			delete(s.entries, k)
		}
	}
}
