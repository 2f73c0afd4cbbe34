package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestCircuitBreakerStates(t *testing.T) {
	logger := zaptest.NewLogger(t)
	config := DefaultConfig()
	config.FailureThreshold = 3
	config.SuccessThreshold = 2
	config.MaxRequests = 5
	config.Timeout = 100 * time.Millisecond
	config.Interval = 200 * time.Millisecond

	cb := NewCircuitBreaker("test", config, logger)
	ctx := context.Background()

	// Initially should be closed
	if cb.State() != StateClosed {
		t.Errorf("Expected initial state to be closed, got %s", cb.State())
	}

	// Test successful calls don't change state
	for i := 0; i < 3; i++ {
		err := cb.Execute(ctx, func() error { return nil })
		if err != nil {
			t.Errorf("Expected success, got error: %v", err)
		}
	}
	if cb.State() != StateClosed {
		t.Errorf("Expected state to remain closed, got %s", cb.State())
	}

	// Test failure threshold triggers open state
	for i := 0; i < 3; i++ {
		err := cb.Execute(ctx, func() error { return errors.New("test error") })
		if err == nil {
			t.Error("Expected error, got nil")
		}
	}
	if cb.State() != StateOpen {
		t.Errorf("Expected state to be open, got %s", cb.State())
	}

	// Test circuit breaker rejects requests when open
	err := cb.Execute(ctx, func() error { return nil })
	if err != ErrCircuitBreakerOpen {
		t.Errorf("Expected circuit breaker open error, got %v", err)
	}

	// Wait for timeout to transition to half-open
	time.Sleep(150 * time.Millisecond)

	// Trigger state check by attempting a call
	cb.beforeRequest()

	if cb.State() != StateHalfOpen {
		t.Errorf("Expected state to be half-open, got %s", cb.State())
	}

	// Test success threshold in half-open transitions to closed
	for i := 0; i < 2; i++ {
		err := cb.Execute(ctx, func() error { return nil })
		if err != nil {
			t.Errorf("Expected success, got error: %v", err)
		}
	}
	if cb.State() != StateClosed {
		t.Errorf("Expected state to be closed, got %s", cb.State())
	}
}

func TestCircuitBreakerMaxRequests(t *testing.T) {
	logger := zaptest.NewLogger(t)
	config := DefaultConfig()
	config.MaxRequests = 2
	config.Timeout = 100 * time.Millisecond
	config.SuccessThreshold = 5 // Make sure it won't transition to closed

	cb := NewCircuitBreaker("test", config, logger)
	ctx := context.Background()

	// Force to half-open state
	cb.mutex.Lock()
	cb.state = StateHalfOpen
	cb.generation++
	cb.counts = Counts{}
	cb.mutex.Unlock()

	// First two requests should succeed
	for i := 0; i < 2; i++ {
		err := cb.Execute(ctx, func() error { return nil })
		if err != nil {
			t.Errorf("Expected success, got error: %v", err)
		}
	}

	// Third request should be rejected
	err := cb.Execute(ctx, func() error { return nil })
	if err != ErrTooManyRequests {
		t.Errorf("Expected too many requests error, got %v", err)
	}
}

func TestCircuitBreakerCounts(t *testing.T) {
	logger := zaptest.NewLogger(t)
	config := DefaultConfig()
	cb := NewCircuitBreaker("test", config, logger)
	ctx := context.Background()

	// Execute some successful and failed requests
	cb.Execute(ctx, func() error { return nil })
	cb.Execute(ctx, func() error { return errors.New("error") })
	cb.Execute(ctx, func() error { return nil })

	counts := cb.Counts()
	if counts.Requests != 3 {
		t.Errorf("Expected 3 requests, got %d", counts.Requests)
	}
	if counts.TotalSuccesses != 2 {
		t.Errorf("Expected 2 successes, got %d", counts.TotalSuccesses)
	}
	if counts.TotalFailures != 1 {
		t.Errorf("Expected 1 failure, got %d", counts.TotalFailures)
	}
}

func TestStateChangeCallback(t *testing.T) {
	logger := zaptest.NewLogger(t)
	config := DefaultConfig()
	config.FailureThreshold = 2

	var callbackCalled bool
	var fromState, toState State
	config.OnStateChange = func(name string, from State, to State) {
		callbackCalled = true
		fromState = from
		toState = to
	}

	cb := NewCircuitBreaker("test", config, logger)
	ctx := context.Background()

	// Trigger state change to open
	for i := 0; i < 2; i++ {
		cb.Execute(ctx, func() error { return errors.New("error") })
	}

	if !callbackCalled {
		t.Error("Expected state change callback to be called")
	}
	if fromState != StateClosed || toState != StateOpen {
		t.Errorf("Expected transition from closed to open, got %s to %s", fromState, toState)
	}
}

func TestCanceledCallsDoNotCount(t *testing.T) {
	config := DefaultConfig()
	config.FailureThreshold = 1
	cb := NewCircuitBreaker("cancel", config, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	err := cb.Execute(ctx, func() error {
		cancel()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("Expected breaker to stay closed, got %s", cb.State())
	}

	// Already-canceled contexts never reach fn
	called := false
	_ = cb.Execute(ctx, func() error { called = true; return nil })
	if called {
		t.Error("Expected fn to be skipped for a canceled context")
	}
}

func TestIsFailureClassifier(t *testing.T) {
	benign := errors.New("not found")
	config := DefaultConfig()
	config.FailureThreshold = 1
	config.IsFailure = func(err error) bool { return !errors.Is(err, benign) }
	cb := NewCircuitBreaker("classify", config, zaptest.NewLogger(t))

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func() error { return benign })
	}
	if cb.State() != StateClosed {
		t.Errorf("Expected benign errors to keep breaker closed, got %s", cb.State())
	}
	_ = cb.Execute(context.Background(), func() error { return errors.New("boom") })
	if cb.State() != StateOpen {
		t.Errorf("Expected breaker to open, got %s", cb.State())
	}
}

func TestDoReturnsValue(t *testing.T) {
	cb := NewCircuitBreaker("do", DefaultConfig(), zaptest.NewLogger(t))
	v, err := Do(context.Background(), cb, func(context.Context) (int, error) { return 7, nil })
	if err != nil || v != 7 {
		t.Fatalf("Expected 7, got %d (%v)", v, err)
	}
}

func TestSettingsForAppliesEnvOverrides(t *testing.T) {
	t.Setenv("DR_CB_SEARCH_FAILURE_THRESHOLD", "9")
	t.Setenv("DR_CB_SEARCH_TIMEOUT", "3s")
	s := SettingsFor(ServiceSearch)
	if s.FailureThreshold != 9 {
		t.Errorf("Expected failure threshold 9, got %d", s.FailureThreshold)
	}
	if s.Timeout != 3*time.Second {
		t.Errorf("Expected timeout 3s, got %s", s.Timeout)
	}
	merged := Settings{MaxRequests: 1}.Merge(s)
	if merged.MaxRequests != 1 || merged.FailureThreshold != 9 {
		t.Errorf("Unexpected merge result: %+v", merged)
	}
}
