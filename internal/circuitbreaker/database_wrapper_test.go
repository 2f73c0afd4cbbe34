package circuitbreaker

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap/zaptest"
)

func newMockWrapper(t *testing.T) (*DatabaseWrapper, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewDatabaseWrapper(sqlx.NewDb(db, "postgres"), zaptest.NewLogger(t)), mock
}

func TestDatabaseWrapper_NormalOperations(t *testing.T) {
	wrapper, mock := newMockWrapper(t)
	ctx := context.Background()

	mock.ExpectPing()
	if err := wrapper.PingContext(ctx); err != nil {
		t.Errorf("PingContext failed: %v", err)
	}

	mock.ExpectQuery("SELECT (.+) FROM test").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "a").AddRow(2, "b"))
	var rows []struct {
		ID   int    `db:"id"`
		Name string `db:"name"`
	}
	if err := wrapper.SelectContext(ctx, &rows, "SELECT id, name FROM test"); err != nil {
		t.Errorf("SelectContext failed: %v", err)
	}
	if len(rows) != 2 || rows[1].Name != "b" {
		t.Errorf("Unexpected rows: %+v", rows)
	}

	mock.ExpectExec(`INSERT INTO test \(name\) VALUES \(\$1\)`).
		WithArgs("test").
		WillReturnResult(sqlmock.NewResult(1, 1))
	result, err := wrapper.ExecContext(ctx, "INSERT INTO test (name) VALUES (?)", "test")
	if err != nil {
		t.Fatalf("ExecContext failed: %v", err)
	}
	if affected, _ := result.RowsAffected(); affected != 1 {
		t.Errorf("Expected 1 affected row, got %d", affected)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestDatabaseWrapper_InTx(t *testing.T) {
	wrapper, mock := newMockWrapper(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO test").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	err := wrapper.InTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO test (name) VALUES ($1)", "x")
		return err
	})
	if err != nil {
		t.Errorf("InTx failed: %v", err)
	}

	mock.ExpectBegin()
	mock.ExpectRollback()
	boom := errors.New("boom")
	if err := wrapper.InTx(ctx, func(*sqlx.Tx) error { return boom }); !errors.Is(err, boom) {
		t.Errorf("Expected boom, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestDatabaseWrapper_CircuitBreakerTriggering(t *testing.T) {
	wrapper, mock := newMockWrapper(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		mock.ExpectExec("UPDATE test").WillReturnError(errors.New("connection reset"))
		if _, err := wrapper.ExecContext(ctx, "UPDATE test SET a = 1"); err == nil {
			t.Error("Expected exec to fail")
		}
	}
	if !wrapper.IsCircuitBreakerOpen() {
		t.Fatal("Expected circuit breaker to be open")
	}
	if _, err := wrapper.ExecContext(ctx, "UPDATE test SET a = 1"); !errors.Is(err, ErrCircuitBreakerOpen) {
		t.Errorf("Expected circuit breaker open error, got %v", err)
	}
}

func TestDatabaseWrapper_NoRowsIsNotAFailure(t *testing.T) {
	wrapper, mock := newMockWrapper(t)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		mock.ExpectQuery("SELECT name FROM test").WillReturnError(sql.ErrNoRows)
		var name string
		if err := wrapper.GetContext(ctx, &name, "SELECT name FROM test WHERE id = ?", i); !errors.Is(err, sql.ErrNoRows) {
			t.Errorf("Expected sql.ErrNoRows, got %v", err)
		}
	}
	if wrapper.IsCircuitBreakerOpen() {
		t.Error("Circuit breaker should remain closed for missing rows")
	}
}
