package circuitbreaker

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisWrapper wraps a Redis client with a circuit breaker. redis.Nil and
// optimistic-lock conflicts are results, not failures.
type RedisWrapper struct {
	client redis.UniversalClient
	cb     *CircuitBreaker
}

// NewRedisWrapper creates a Redis wrapper with circuit breaker
func NewRedisWrapper(client redis.UniversalClient, name string, logger *zap.Logger) *RedisWrapper {
	cfg := SettingsFor(ServiceRedis).ToConfig()
	cfg.IsFailure = func(err error) bool {
		return !errors.Is(err, redis.Nil) && !errors.Is(err, redis.TxFailedErr)
	}
	cb := NewCircuitBreaker(name, cfg, logger)
	GlobalMetricsCollector.RegisterCircuitBreaker(name, ServiceRedis, cb)
	return &RedisWrapper{client: client, cb: cb}
}

func (rw *RedisWrapper) observe(ctx context.Context, fn func() error) error {
	err := rw.cb.Execute(ctx, fn)
	success := err == nil || !rw.cb.isFailure(err)
	GlobalMetricsCollector.RecordRequest(rw.cb.name, ServiceRedis, rw.cb.State(), success)
	return err
}

// Ping wraps Redis Ping with circuit breaker
func (rw *RedisWrapper) Ping(ctx context.Context) error {
	return rw.observe(ctx, func() error { return rw.client.Ping(ctx).Err() })
}

// Get returns the value at key. A missing key yields redis.Nil.
func (rw *RedisWrapper) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := rw.observe(ctx, func() error {
		var err error
		out, err = rw.client.Get(ctx, key).Bytes()
		return err
	})
	return out, err
}

// Set wraps Redis Set with circuit breaker
func (rw *RedisWrapper) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return rw.observe(ctx, func() error { return rw.client.Set(ctx, key, value, ttl).Err() })
}

// Del wraps Redis Del with circuit breaker
func (rw *RedisWrapper) Del(ctx context.Context, keys ...string) error {
	return rw.observe(ctx, func() error { return rw.client.Del(ctx, keys...).Err() })
}

// Watch runs an optimistic transaction guarded by the breaker.
func (rw *RedisWrapper) Watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	return rw.observe(ctx, func() error { return rw.client.Watch(ctx, fn, keys...) })
}

// Do runs an arbitrary command sequence through the breaker.
func (rw *RedisWrapper) Do(ctx context.Context, fn func(redis.UniversalClient) error) error {
	return rw.observe(ctx, func() error { return fn(rw.client) })
}

// Close wraps Redis Close
func (rw *RedisWrapper) Close() error {
	return rw.client.Close()
}

// Client returns the underlying client for operations not covered here.
func (rw *RedisWrapper) Client() redis.UniversalClient {
	return rw.client
}

// IsCircuitBreakerOpen returns true if the circuit breaker is open
func (rw *RedisWrapper) IsCircuitBreakerOpen() bool {
	return rw.cb.State() == StateOpen
}
