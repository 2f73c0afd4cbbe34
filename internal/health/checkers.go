package health

import (
	"context"
	"errors"
	"time"

	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/deepresearch/internal/circuitbreaker"
)

// slowThreshold marks a responding dependency as degraded.
const slowThreshold = 100 * time.Millisecond

func latencyStatus(d time.Duration, healthy, slow string) (CheckStatus, string) {
	if d > slowThreshold {
		return StatusDegraded, slow
	}
	return StatusHealthy, healthy
}

func failed(result CheckResult, message string, err error) CheckResult {
	result.Status = StatusUnhealthy
	result.Message = message
	result.Error = err.Error()
	return result
}

// RedisHealthChecker checks the session store and event streams backend.
type RedisHealthChecker struct {
	wrapper *circuitbreaker.RedisWrapper
	logger  *zap.Logger
	timeout time.Duration
}

// NewRedisHealthChecker creates a Redis health checker
func NewRedisHealthChecker(wrapper *circuitbreaker.RedisWrapper, logger *zap.Logger) *RedisHealthChecker {
	return &RedisHealthChecker{wrapper: wrapper, logger: logger, timeout: 5 * time.Second}
}

func (r *RedisHealthChecker) Name() string           { return "redis" }
func (r *RedisHealthChecker) IsCritical() bool       { return true }
func (r *RedisHealthChecker) Timeout() time.Duration { return r.timeout }

func (r *RedisHealthChecker) Check(ctx context.Context) CheckResult {
	var result CheckResult
	if r.wrapper.IsCircuitBreakerOpen() {
		return failed(result, "Redis circuit breaker is open", circuitbreaker.ErrCircuitBreakerOpen)
	}
	start := time.Now()
	if err := r.wrapper.Ping(ctx); err != nil {
		return failed(result, "Redis ping failed", err)
	}
	latency := time.Since(start)
	result.Status, result.Message = latencyStatus(latency, "Redis healthy", "Redis responding but with high latency")
	result.Details = map[string]interface{}{"latency_ms": latency.Milliseconds()}
	return result
}

// DatabaseHealthChecker checks the report archive.
type DatabaseHealthChecker struct {
	wrapper  *circuitbreaker.DatabaseWrapper
	logger   *zap.Logger
	timeout  time.Duration
	critical bool
}

// NewDatabaseHealthChecker creates a database health checker. The archive
// is optional for research, so critical is usually false.
func NewDatabaseHealthChecker(wrapper *circuitbreaker.DatabaseWrapper, critical bool, logger *zap.Logger) *DatabaseHealthChecker {
	return &DatabaseHealthChecker{wrapper: wrapper, logger: logger, timeout: 5 * time.Second, critical: critical}
}

func (d *DatabaseHealthChecker) Name() string           { return "database" }
func (d *DatabaseHealthChecker) IsCritical() bool       { return d.critical }
func (d *DatabaseHealthChecker) Timeout() time.Duration { return d.timeout }

func (d *DatabaseHealthChecker) Check(ctx context.Context) CheckResult {
	var result CheckResult
	if d.wrapper.IsCircuitBreakerOpen() {
		return failed(result, "Database circuit breaker is open", circuitbreaker.ErrCircuitBreakerOpen)
	}
	start := time.Now()
	if err := d.wrapper.PingContext(ctx); err != nil {
		return failed(result, "Database ping failed", err)
	}
	latency := time.Since(start)

	stats := d.wrapper.DB().Stats()
	if stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections {
		result.Status, result.Message = StatusDegraded, "Database connection pool exhausted"
	} else {
		result.Status, result.Message = latencyStatus(latency, "Database healthy", "Database responding but with high latency")
	}
	result.Details = map[string]interface{}{
		"latency_ms":           latency.Milliseconds(),
		"open_connections":     stats.OpenConnections,
		"max_open_connections": stats.MaxOpenConnections,
		"in_use_connections":   stats.InUse,
	}
	return result
}

// Pinger is satisfied by the vector store client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// VectorStoreHealthChecker checks the knowledge index backend. Research
// continues without the index, so it is never critical.
type VectorStoreHealthChecker struct {
	store   Pinger
	timeout time.Duration
}

func NewVectorStoreHealthChecker(store Pinger) *VectorStoreHealthChecker {
	return &VectorStoreHealthChecker{store: store, timeout: 5 * time.Second}
}

func (v *VectorStoreHealthChecker) Name() string           { return "vectordb" }
func (v *VectorStoreHealthChecker) IsCritical() bool       { return false }
func (v *VectorStoreHealthChecker) Timeout() time.Duration { return v.timeout }

func (v *VectorStoreHealthChecker) Check(ctx context.Context) CheckResult {
	var result CheckResult
	start := time.Now()
	if err := v.store.Ping(ctx); err != nil {
		return failed(result, "Vector store unreachable", err)
	}
	result.Status, result.Message = latencyStatus(time.Since(start), "Vector store healthy", "Vector store responding but with high latency")
	return result
}

// TemporalClient is the subset of client.Client the checker needs.
type TemporalClient interface {
	CheckHealth(ctx context.Context, request *client.CheckHealthRequest) (*client.CheckHealthResponse, error)
}

// TemporalHealthChecker checks the workflow service the worker polls.
type TemporalHealthChecker struct {
	client  TemporalClient
	timeout time.Duration
}

func NewTemporalHealthChecker(c TemporalClient) *TemporalHealthChecker {
	return &TemporalHealthChecker{client: c, timeout: 5 * time.Second}
}

func (t *TemporalHealthChecker) Name() string           { return "temporal" }
func (t *TemporalHealthChecker) IsCritical() bool       { return true }
func (t *TemporalHealthChecker) Timeout() time.Duration { return t.timeout }

func (t *TemporalHealthChecker) Check(ctx context.Context) CheckResult {
	var result CheckResult
	if _, err := t.client.CheckHealth(ctx, &client.CheckHealthRequest{}); err != nil {
		return failed(result, "Temporal health check failed", err)
	}
	result.Status, result.Message = StatusHealthy, "Temporal healthy"
	return result
}

// CircuitBreakerChecker reports degraded while any breaker is open.
type CircuitBreakerChecker struct {
	open func() []string
}

// NewCircuitBreakerChecker reads breaker states from the global collector.
func NewCircuitBreakerChecker() *CircuitBreakerChecker {
	return &CircuitBreakerChecker{open: circuitbreaker.GlobalMetricsCollector.OpenBreakers}
}

func (c *CircuitBreakerChecker) Name() string           { return "circuit_breakers" }
func (c *CircuitBreakerChecker) IsCritical() bool       { return false }
func (c *CircuitBreakerChecker) Timeout() time.Duration { return time.Second }

func (c *CircuitBreakerChecker) Check(context.Context) CheckResult {
	open := c.open()
	if len(open) == 0 {
		return CheckResult{Status: StatusHealthy, Message: "All circuit breakers closed"}
	}
	return CheckResult{
		Status:  StatusDegraded,
		Message: "Circuit breakers open",
		Details: map[string]interface{}{"open": open},
	}
}

// CustomHealthChecker adapts a function into a Checker.
type CustomHealthChecker struct {
	name     string
	critical bool
	timeout  time.Duration
	checkFn  func(ctx context.Context) error
}

// NewCustomHealthChecker reports unhealthy whenever checkFn returns an error.
func NewCustomHealthChecker(name string, critical bool, timeout time.Duration, checkFn func(ctx context.Context) error) *CustomHealthChecker {
	return &CustomHealthChecker{name: name, critical: critical, timeout: timeout, checkFn: checkFn}
}

func (c *CustomHealthChecker) Name() string           { return c.name }
func (c *CustomHealthChecker) IsCritical() bool       { return c.critical }
func (c *CustomHealthChecker) Timeout() time.Duration { return c.timeout }

func (c *CustomHealthChecker) Check(ctx context.Context) CheckResult {
	if err := c.checkFn(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return failed(CheckResult{}, c.name+" timed out", err)
		}
		return failed(CheckResult{}, c.name+" failed", err)
	}
	return CheckResult{Status: StatusHealthy, Message: c.name + " healthy"}
}
