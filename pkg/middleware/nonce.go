package middleware

import (
	"context"
	"sync"
	"time"

	"license-authority/pkg/rediskey"

	"github.com/redis/go-redis/v9"
)

// NonceStore records signature nonces. Claim returns false when the nonce was
// already seen for authority within ttl.
type NonceStore interface {
	Claim(ctx context.Context, authority, nonce string, ttl time.Duration) (bool, error)
}

type redisNonceStore struct {
	rdb redis.UniversalClient
}

// NewRedisNonceStore shares nonces across every replica using rdb.
func NewRedisNonceStore(rdb redis.UniversalClient) NonceStore {
	return &redisNonceStore{rdb: rdb}
}

func (s *redisNonceStore) Claim(ctx context.Context, authority, nonce string, ttl time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, rediskey.BuildNonceKey(authority, nonce), 1, ttl).Result()
}

// MemoryNonceStore keeps nonces in process memory. It only protects a single
// replica.
type MemoryNonceStore struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	now    func() time.Time
	lastGC time.Time
}

func NewMemoryNonceStore() *MemoryNonceStore {
	return &MemoryNonceStore{seen: map[string]time.Time{}, now: time.Now}
}

func (s *MemoryNonceStore) Claim(_ context.Context, authority, nonce string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastGC) > time.Minute {
		for k, exp := range s.seen {
			if !now.Before(exp) {
				delete(s.seen, k)
			}
		}
		s.lastGC = now
	}

	key := rediskey.BuildNonceKey(authority, nonce)
	if exp, ok := s.seen[key]; ok && now.Before(exp) {
		return false, nil
	}
	s.seen[key] = now.Add(ttl)
	return true, nil
}
