package embeddings

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sync"
	"time"

	"github.com/Kocoro-lab/deepresearch/internal/circuitbreaker"
)

// EmbeddingCache defines cache operations
type EmbeddingCache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Set(ctx context.Context, key string, v []float32, ttl time.Duration)
}

// LocalLRU is a simple in-process LRU with TTL
type LocalLRU struct {
	mu   sync.Mutex
	cap  int
	list *list.List               // front = most recent
	m    map[string]*list.Element // key -> element
}

type lruEntry struct {
	key string
	vec []float32
	exp time.Time
}

func NewLocalLRU(capacity int) *LocalLRU {
	if capacity <= 0 {
		capacity = 1024
	}
	return &LocalLRU{cap: capacity, list: list.New(), m: make(map[string]*list.Element, capacity)}
}

func (l *LocalLRU) Get(_ context.Context, key string) ([]float32, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if el, ok := l.m[key]; ok {
		ent := el.Value.(lruEntry)
		if ent.exp.After(time.Now()) {
			l.list.MoveToFront(el)
			return ent.vec, true
		}
		l.list.Remove(el)
		delete(l.m, key)
	}
	return nil, false
}

func (l *LocalLRU) Set(_ context.Context, key string, v []float32, ttl time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if el, ok := l.m[key]; ok {
		el.Value = lruEntry{key: key, vec: v, exp: time.Now().Add(ttl)}
		l.list.MoveToFront(el)
		return
	}
	l.m[key] = l.list.PushFront(lruEntry{key: key, vec: v, exp: time.Now().Add(ttl)})
	if l.list.Len() > l.cap {
		if oldest := l.list.Back(); oldest != nil {
			delete(l.m, oldest.Value.(lruEntry).key)
			l.list.Remove(oldest)
		}
	}
}

// Len reports the number of entries, expired ones included.
func (l *LocalLRU) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.list.Len()
}

// RedisCache stores vectors as little-endian float32 bytes behind a
// circuit-breaker wrapped client. Cache failures degrade to misses.
type RedisCache struct {
	cli *circuitbreaker.RedisWrapper
}

// NewRedisCache pings the wrapper once before use.
func NewRedisCache(ctx context.Context, cli *circuitbreaker.RedisWrapper) (*RedisCache, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := cli.Ping(ctx); err != nil {
		return nil, err
	}
	return &RedisCache{cli: cli}, nil
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]float32, bool) {
	b, err := r.cli.Get(ctx, key)
	if err != nil || len(b)%4 != 0 {
		return nil, false
	}
	return decodeVector(b), true
}

func (r *RedisCache) Set(ctx context.Context, key string, v []float32, ttl time.Duration) {
	_ = r.cli.Set(ctx, key, encodeVector(v), ttl)
}

func encodeVector(v []float32) []byte {
	b := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
	}
	return b
}

func decodeVector(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// MakeKey derives the cache key for a model and text.
func MakeKey(model, text string) string {
	h := sha256.Sum256([]byte(model + "|" + text))
	return "dr:emb:" + hex.EncodeToString(h[:16])
}
