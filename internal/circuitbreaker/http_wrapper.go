package circuitbreaker

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPWrapper wraps an http.Client with a circuit breaker and records metrics consistently
type HTTPWrapper struct {
	client  *http.Client
	cb      *CircuitBreaker
	service string
}

// NewHTTPWrapper creates a new HTTP wrapper with circuit breaker and metrics
func NewHTTPWrapper(client *http.Client, name, service string, settings Settings, logger *zap.Logger) *HTTPWrapper {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	cb := NewForService(name, service, settings, logger)
	return &HTTPWrapper{client: client, cb: cb, service: service}
}

// Do executes an HTTP request through the circuit breaker. 5xx and 429
// responses count as failures; other 4xx do not trip the breaker. The
// response is always returned to the caller when one was received.
func (hw *HTTPWrapper) Do(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	err := Observe(req.Context(), hw.cb, hw.service, func() error {
		var err error
		resp, err = hw.client.Do(req)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return &httpStatusError{code: resp.StatusCode}
		}
		return nil
	})
	if _, ok := err.(*httpStatusError); ok {
		return resp, nil
	}
	return resp, err
}

// Breaker exposes the underlying breaker.
func (hw *HTTPWrapper) Breaker() *CircuitBreaker { return hw.cb }

type httpStatusError struct{ code int }

func (e *httpStatusError) Error() string { return http.StatusText(e.code) }
