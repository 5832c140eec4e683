// README: Quote stores; Redis with key TTL, and an in-process map for memory mode.
package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"courier/internal/types"
)

const quoteKeyPrefix = "pricing:quote:%s"

type RedisQuoteStore struct {
	redis *redis.Client
}

func NewRedisQuoteStore(redis *redis.Client) *RedisQuoteStore {
	return &RedisQuoteStore{redis: redis}
}

func (s *RedisQuoteStore) Save(ctx context.Context, q *Quote, ttl time.Duration) error {
	raw, err := json.Marshal(q)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, quoteKey(q.ID), raw, ttl).Err()
}

func (s *RedisQuoteStore) Take(ctx context.Context, id types.ID) (*Quote, error) {
	raw, err := s.redis.GetDel(ctx, quoteKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrQuoteNotFound
	}
	if err != nil {
		return nil, err
	}
	var q Quote
	if err := json.Unmarshal(raw, &q); err != nil {
		return nil, fmt.Errorf("decode quote %s: %w", id, err)
	}
	return &q, nil
}

func quoteKey(id types.ID) string {
	return fmt.Sprintf(quoteKeyPrefix, string(id))
}

// MemoryQuoteStore keeps quotes in process. Expiry is checked on Take.
type MemoryQuoteStore struct {
	mu     sync.Mutex
	quotes map[types.ID]Quote
}

func NewMemoryQuoteStore() *MemoryQuoteStore {
	return &MemoryQuoteStore{quotes: make(map[types.ID]Quote)}
}

func (s *MemoryQuoteStore) Save(_ context.Context, q *Quote, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, old := range s.quotes {
		if time.Now().After(old.ExpiresAt) {
			delete(s.quotes, id)
		}
	}
	s.quotes[q.ID] = *q
	return nil
}

func (s *MemoryQuoteStore) Take(_ context.Context, id types.ID) (*Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quotes[id]
	if !ok {
		return nil, ErrQuoteNotFound
	}
	delete(s.quotes, id)
	return &q, nil
}
