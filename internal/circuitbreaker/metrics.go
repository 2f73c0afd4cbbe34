package circuitbreaker

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	circuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "deepresearch_circuit_breaker_state",
			Help: "Current state of circuit breaker (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name", "service"},
	)

	circuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepresearch_circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "service", "state", "result"},
	)

	circuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepresearch_circuit_breaker_state_changes_total",
			Help: "Total number of state changes in circuit breaker",
		},
		[]string{"name", "service", "from_state", "to_state"},
	)

	circuitBreakerOpenSince = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "deepresearch_circuit_breaker_open_since_seconds",
			Help: "Timestamp when the circuit breaker entered open state (0 if not open)",
		},
		[]string{"name", "service"},
	)
)

type breakerKey struct {
	service string
	name    string
}

// MetricsCollector tracks registered breakers for export and health checks.
type MetricsCollector struct {
	breakers map[breakerKey]*CircuitBreaker
	mutex    sync.RWMutex
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{breakers: make(map[breakerKey]*CircuitBreaker)}
}

// RegisterCircuitBreaker registers a circuit breaker for metrics collection
func (mc *MetricsCollector) RegisterCircuitBreaker(name, service string, cb *CircuitBreaker) {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	mc.breakers[breakerKey{service: service, name: name}] = cb

	original := cb.config.OnStateChange
	cb.config.OnStateChange = func(cbName string, from State, to State) {
		if original != nil {
			original(cbName, from, to)
		}
		circuitBreakerStateChanges.WithLabelValues(name, service, from.String(), to.String()).Inc()
		circuitBreakerState.WithLabelValues(name, service).Set(float64(to))
		if to == StateOpen {
			circuitBreakerOpenSince.WithLabelValues(name, service).SetToCurrentTime()
		} else if from == StateOpen {
			circuitBreakerOpenSince.WithLabelValues(name, service).Set(0)
		}
	}
}

// RecordRequest records a request attempt
func (mc *MetricsCollector) RecordRequest(name, service string, state State, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	circuitBreakerRequests.WithLabelValues(name, service, state.String(), result).Inc()
}

// OpenBreakers lists "service/name" for every open breaker.
func (mc *MetricsCollector) OpenBreakers() []string {
	mc.mutex.RLock()
	defer mc.mutex.RUnlock()
	var open []string
	for key, cb := range mc.breakers {
		if cb.State() == StateOpen {
			open = append(open, key.service+"/"+key.name)
		}
	}
	return open
}

// UpdateMetrics refreshes the state gauges.
func (mc *MetricsCollector) UpdateMetrics() {
	mc.mutex.RLock()
	defer mc.mutex.RUnlock()
	for key, cb := range mc.breakers {
		circuitBreakerState.WithLabelValues(key.name, key.service).Set(float64(cb.State()))
	}
}

// GlobalMetricsCollector is shared by every wrapper.
var GlobalMetricsCollector = NewMetricsCollector()

// StartMetricsCollection refreshes gauges until ctx ends.
func StartMetricsCollection(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				GlobalMetricsCollector.UpdateMetrics()
			}
		}
	}()
}

// NewForService builds a breaker from the service profile, overlays
// settings, and registers it for metrics.
func NewForService(name, service string, settings Settings, logger *zap.Logger) *CircuitBreaker {
	cfg := settings.Merge(SettingsFor(service)).ToConfig()
	cb := NewCircuitBreaker(name, cfg, logger)
	GlobalMetricsCollector.RegisterCircuitBreaker(name, service, cb)
	return cb
}

// Observe runs fn through cb and records the outcome.
func Observe(ctx context.Context, cb *CircuitBreaker, service string, fn func() error) error {
	err := cb.Execute(ctx, fn)
	GlobalMetricsCollector.RecordRequest(cb.name, service, cb.State(), err == nil)
	return err
}
