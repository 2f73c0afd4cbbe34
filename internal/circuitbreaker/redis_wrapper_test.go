package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"
)

func TestRedisWrapper_NormalOperations(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	wrapper := NewRedisWrapper(client, "redis-test", zaptest.NewLogger(t))
	ctx := context.Background()

	if err := wrapper.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
	if err := wrapper.Set(ctx, "test:key", "test:value", time.Minute); err != nil {
		t.Errorf("Set failed: %v", err)
	}
	val, err := wrapper.Get(ctx, "test:key")
	if err != nil {
		t.Errorf("Get failed: %v", err)
	}
	if string(val) != "test:value" {
		t.Errorf("Expected 'test:value', got '%s'", val)
	}

	if _, err := wrapper.Get(ctx, "nonexistent:key"); !errors.Is(err, redis.Nil) {
		t.Errorf("Expected redis.Nil for non-existent key, got %v", err)
	}
	if err := wrapper.Del(ctx, "test:key"); err != nil {
		t.Errorf("Del failed: %v", err)
	}
	if s.Exists("test:key") {
		t.Error("Expected key to be deleted")
	}
}

func TestRedisWrapper_CircuitBreakerTriggering(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "localhost:9999",
		MaxRetries:  -1,
		DialTimeout: 100 * time.Millisecond,
	})
	defer client.Close()

	wrapper := NewRedisWrapper(client, "redis-down", zaptest.NewLogger(t))
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := wrapper.Ping(ctx); err == nil {
			t.Error("Expected ping to fail against non-existent server")
		}
	}
	if !wrapper.IsCircuitBreakerOpen() {
		t.Error("Expected circuit breaker to be open after repeated failures")
	}
	if _, err := wrapper.Get(ctx, "any:key"); !errors.Is(err, ErrCircuitBreakerOpen) {
		t.Errorf("Expected circuit breaker open error, got %v", err)
	}
}

func TestRedisWrapper_BenignErrorsKeepBreakerClosed(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	wrapper := NewRedisWrapper(client, "redis-nil", zaptest.NewLogger(t))
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, err := wrapper.Get(ctx, "nonexistent:key"); !errors.Is(err, redis.Nil) {
			t.Errorf("Expected redis.Nil, got %v", err)
		}
	}
	for i := 0; i < 5; i++ {
		err := wrapper.Watch(ctx, func(*redis.Tx) error { return redis.TxFailedErr }, "k")
		if !errors.Is(err, redis.TxFailedErr) {
			t.Errorf("Expected TxFailedErr, got %v", err)
		}
	}
	if wrapper.IsCircuitBreakerOpen() {
		t.Error("Circuit breaker should remain closed for benign results")
	}
}
