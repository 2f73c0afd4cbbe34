package circuitbreaker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// DatabaseWrapper wraps sqlx operations with a circuit breaker.
// sql.ErrNoRows is a result, not a failure.
type DatabaseWrapper struct {
	db     *sqlx.DB
	cb     *CircuitBreaker
	logger *zap.Logger
}

// NewDatabaseWrapper creates a database wrapper with circuit breaker
func NewDatabaseWrapper(db *sqlx.DB, logger *zap.Logger) *DatabaseWrapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := SettingsFor(ServiceDatabase).ToConfig()
	cfg.IsFailure = func(err error) bool { return !errors.Is(err, sql.ErrNoRows) }
	name := db.DriverName()
	cb := NewCircuitBreaker(name, cfg, logger)
	GlobalMetricsCollector.RegisterCircuitBreaker(name, ServiceDatabase, cb)
	return &DatabaseWrapper{db: db, cb: cb, logger: logger}
}

func (dw *DatabaseWrapper) observe(ctx context.Context, fn func() error) error {
	err := dw.cb.Execute(ctx, fn)
	success := err == nil || !dw.cb.isFailure(err)
	GlobalMetricsCollector.RecordRequest(dw.cb.name, ServiceDatabase, dw.cb.State(), success)
	return err
}

// PingContext wraps database ping with circuit breaker
func (dw *DatabaseWrapper) PingContext(ctx context.Context) error {
	return dw.observe(ctx, func() error { return dw.db.PingContext(ctx) })
}

// ExecContext wraps database exec with circuit breaker
func (dw *DatabaseWrapper) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var result sql.Result
	err := dw.observe(ctx, func() error {
		var err error
		result, err = dw.db.ExecContext(ctx, dw.db.Rebind(query), args...)
		return err
	})
	return result, err
}

// GetContext scans a single row into dest.
func (dw *DatabaseWrapper) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	return dw.observe(ctx, func() error {
		return dw.db.GetContext(ctx, dest, dw.db.Rebind(query), args...)
	})
}

// SelectContext scans all rows into dest.
func (dw *DatabaseWrapper) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	return dw.observe(ctx, func() error {
		return dw.db.SelectContext(ctx, dest, dw.db.Rebind(query), args...)
	})
}

// InTx runs fn in a transaction. The transaction is rolled back when fn
// returns an error and committed otherwise.
func (dw *DatabaseWrapper) InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return dw.observe(ctx, func() error {
		tx, err := dw.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		if err := fn(tx); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				dw.logger.Warn("Rollback failed", zap.Error(rbErr))
			}
			return err
		}
		return tx.Commit()
	})
}

// Rebind converts ? placeholders to the driver's bindvar style.
func (dw *DatabaseWrapper) Rebind(query string) string { return dw.db.Rebind(query) }

// DB returns the underlying handle.
func (dw *DatabaseWrapper) DB() *sqlx.DB { return dw.db }

// Close closes the database.
func (dw *DatabaseWrapper) Close() error { return dw.db.Close() }

// IsCircuitBreakerOpen returns true if the circuit breaker is open
func (dw *DatabaseWrapper) IsCircuitBreakerOpen() bool {
	return dw.cb.State() == StateOpen
}
