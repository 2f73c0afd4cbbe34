// Package session persists research sessions in Redis.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/deepresearch/internal/circuitbreaker"
	"github.com/Kocoro-lab/deepresearch/internal/metrics"
	"github.com/Kocoro-lab/deepresearch/internal/research"
)

const keyPrefix = "dr:session:"

// Options tune the store.
type Options struct {
	// TTL applies to every saved session
	TTL time.Duration
	// CacheTTL bounds how long a local copy may be served without Redis
	CacheTTL time.Duration
	// MaxCached caps the local cache
	MaxCached int
}

// DefaultOptions returns the stock settings.
func DefaultOptions() Options {
	return Options{TTL: 24 * time.Hour, CacheTTL: 2 * time.Second, MaxCached: 1000}
}

type cacheEntry struct {
	state    *research.State
	cachedAt time.Time
}

// RedisStore implements research.Store on Redis. Status transitions use
// WATCH/MULTI so concurrent resumes cannot both succeed.
type RedisStore struct {
	client *circuitbreaker.RedisWrapper
	logger *zap.Logger
	opts   Options

	mu    sync.Mutex
	local map[string]cacheEntry
}

var _ research.Store = (*RedisStore)(nil)

// NewRedisStore wraps client. The caller owns the client lifecycle.
func NewRedisStore(client *circuitbreaker.RedisWrapper, opts Options, logger *zap.Logger) *RedisStore {
	d := DefaultOptions()
	if opts.TTL <= 0 {
		opts.TTL = d.TTL
	}
	if opts.CacheTTL < 0 {
		opts.CacheTTL = 0
	}
	if opts.MaxCached <= 0 {
		opts.MaxCached = d.MaxCached
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{client: client, logger: logger, opts: opts, local: make(map[string]cacheEntry)}
}

func sessionKey(id string) string { return keyPrefix + id }

// Load returns a copy of the session.
func (s *RedisStore) Load(ctx context.Context, id string) (*research.State, error) {
	if st, ok := s.cached(id); ok {
		metrics.SessionCacheHits.Inc()
		return st, nil
	}
	metrics.SessionCacheMisses.Inc()

	data, err := s.client.Get(ctx, sessionKey(id))
	if errors.Is(err, redis.Nil) {
		return nil, research.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	var st research.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	s.remember(&st)
	return st.Clone(), nil
}

// Save writes the full session and refreshes its TTL.
func (s *RedisStore) Save(ctx context.Context, st *research.State) error {
	c := st.Clone()
	c.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", st.ID, err)
	}
	var existed *redis.IntCmd
	err = s.client.Do(ctx, func(rc redis.UniversalClient) error {
		_, err := rc.TxPipelined(ctx, func(p redis.Pipeliner) error {
			existed = p.Exists(ctx, sessionKey(st.ID))
			p.Set(ctx, sessionKey(st.ID), data, s.opts.TTL)
			return nil
		})
		return err
	})
	if err != nil {
		s.forget(st.ID)
		return fmt.Errorf("save session %s: %w", st.ID, err)
	}
	if existed.Val() == 0 {
		metrics.SessionsCreated.Inc()
		s.logger.Debug("Created session", zap.String("session_id", st.ID))
	}
	s.remember(c)
	return nil
}

// CompareAndSwapStatus atomically moves id from one status to another.
func (s *RedisStore) CompareAndSwapStatus(ctx context.Context, id string, from, to research.Status) error {
	key := sessionKey(id)
	var outcome error
	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			outcome = research.ErrSessionNotFound
			return nil
		}
		if err != nil {
			return err
		}
		var st research.State
		if err := json.Unmarshal(data, &st); err != nil {
			return fmt.Errorf("decode session %s: %w", id, err)
		}
		if st.Status != from {
			outcome = research.ErrStatusConflict
			return nil
		}
		st.Status = to
		st.UpdatedAt = time.Now().UTC()
		updated, err := json.Marshal(&st)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, updated, s.opts.TTL)
			return nil
		})
		return err
	}

	s.forget(id)
	err := s.client.Watch(ctx, txn, key)
	if errors.Is(err, redis.TxFailedErr) {
		// Another writer touched the key between WATCH and EXEC.
		return research.ErrStatusConflict
	}
	if err != nil {
		return fmt.Errorf("swap status %s: %w", id, err)
	}
	return outcome
}

// Delete removes a session.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	s.forget(id)
	return s.client.Del(ctx, sessionKey(id))
}

func (s *RedisStore) cached(id string) (*research.State, bool) {
	if s.opts.CacheTTL == 0 {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.local[id]
	if !ok || time.Since(e.cachedAt) > s.opts.CacheTTL {
		return nil, false
	}
	return e.state.Clone(), true
}

func (s *RedisStore) remember(st *research.State) {
	if s.opts.CacheTTL == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.local[st.ID] = cacheEntry{state: st.Clone(), cachedAt: time.Now()}
	if len(s.local) > s.opts.MaxCached {
		s.evictOldestLocked()
	}
	metrics.SessionCacheSize.Set(float64(len(s.local)))
}

func (s *RedisStore) forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.local, id)
	metrics.SessionCacheSize.Set(float64(len(s.local)))
}

func (s *RedisStore) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, e := range s.local {
		if oldestID == "" || e.cachedAt.Before(oldest) {
			oldestID, oldest = id, e.cachedAt
		}
	}
	delete(s.local, oldestID)
}
