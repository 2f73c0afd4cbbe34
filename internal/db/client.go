package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/deepresearch/internal/circuitbreaker"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Config holds database configuration
type Config struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConnections  int           `mapstructure:"max_connections"`
	IdleConnections int           `mapstructure:"idle_connections"`
	MaxLifetime     time.Duration `mapstructure:"max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	Workers         int           `mapstructure:"workers"`
	QueueSize       int           `mapstructure:"queue_size"`
}

func (c Config) withDefaults() Config {
	if c.Driver == "" {
		c.Driver = DriverPostgres
	}
	if c.MaxConnections == 0 {
		c.MaxConnections = 25
	}
	if c.IdleConnections == 0 {
		c.IdleConnections = 5
	}
	if c.MaxLifetime == 0 {
		c.MaxLifetime = 5 * time.Minute
	}
	if c.SSLMode == "" {
		c.SSLMode = "require"
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1000
	}
	return c
}

func (c Config) dataSource() string {
	if c.DSN != "" {
		return c.DSN
	}
	if c.Driver == DriverSQLite {
		return c.Database
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Client manages database connections and operations
type Client struct {
	db     *circuitbreaker.DatabaseWrapper
	logger *zap.Logger
	config Config

	// Write queue for async operations
	writeQueue chan WriteRequest
	stopCh     chan struct{}
	stopOnce   sync.Once
	workerWg   sync.WaitGroup
}

// WriteRequest represents an async write operation
type WriteRequest struct {
	Type     WriteType
	Data     interface{}
	Callback func(error)
}

type WriteType int

const (
	WriteTypeEventLog WriteType = iota
	WriteTypeReport
)

// String returns the string representation of WriteType
func (wt WriteType) String() string {
	switch wt {
	case WriteTypeEventLog:
		return "EventLog"
	case WriteTypeReport:
		return "Report"
	default:
		return "Unknown"
	}
}

// NewClient opens the configured database, verifies connectivity and
// starts the async write workers.
func NewClient(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	raw, err := sqlx.Open(cfg.Driver, cfg.dataSource())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	raw.SetMaxOpenConns(cfg.MaxConnections)
	raw.SetMaxIdleConns(cfg.IdleConnections)
	raw.SetConnMaxLifetime(cfg.MaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	c := NewClientFromDB(raw, cfg, logger)
	if err := c.db.PingContext(pingCtx); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if cfg.AutoMigrate {
		if err := c.Migrate(ctx); err != nil {
			c.Close()
			return nil, err
		}
	}

	go c.healthCheck()

	c.logger.Info("Database client initialized",
		zap.String("driver", cfg.Driver),
		zap.String("host", cfg.Host),
		zap.Int("max_connections", cfg.MaxConnections),
		zap.Int("workers", cfg.Workers),
	)
	return c, nil
}

// NewClientFromDB wraps an open handle. The caller keeps responsibility for
// schema setup.
func NewClientFromDB(raw *sqlx.DB, cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	cfg.Driver = raw.DriverName()
	c := &Client{
		db:         circuitbreaker.NewDatabaseWrapper(raw, logger),
		logger:     logger,
		config:     cfg,
		writeQueue: make(chan WriteRequest, cfg.QueueSize),
		stopCh:     make(chan struct{}),
	}
	for i := 0; i < cfg.Workers; i++ {
		c.workerWg.Add(1)
		go c.writeWorker(i)
	}
	return c
}

// writeWorker processes write requests from the queue
func (c *Client) writeWorker(id int) {
	defer c.workerWg.Done()
	c.logger.Debug("Write worker started", zap.Int("worker_id", id))
	for {
		select {
		case <-c.stopCh:
			c.drainQueue()
			c.logger.Debug("Write worker stopped", zap.Int("worker_id", id))
			return
		case req := <-c.writeQueue:
			c.processWrite(req)
		}
	}
}

// processWrite handles a single write request
func (c *Client) processWrite(req WriteRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	switch req.Type {
	case WriteTypeEventLog:
		if ev, ok := req.Data.(*EventLog); ok {
			err = c.SaveEventLog(ctx, ev)
		}
	case WriteTypeReport:
		if rec, ok := req.Data.(*ReportRecord); ok {
			err = c.SaveReport(ctx, rec)
		}
	default:
		err = fmt.Errorf("unknown write type %d", req.Type)
	}

	if req.Callback != nil {
		req.Callback(err)
	}
	if err != nil {
		c.logger.Error("Failed to process write request",
			zap.String("type", req.Type.String()),
			zap.Error(err),
		)
	}
}

// drainQueue processes remaining requests during shutdown
func (c *Client) drainQueue() {
	timeout := time.After(10 * time.Second)
	for {
		select {
		case req := <-c.writeQueue:
			c.processWrite(req)
		case <-timeout:
			c.logger.Warn("Timeout draining write queue")
			return
		default:
			return
		}
	}
}

// QueueWrite adds a write request to the async queue. A full queue falls
// back to a synchronous write so nothing is dropped.
func (c *Client) QueueWrite(writeType WriteType, data interface{}, callback func(error)) {
	req := WriteRequest{Type: writeType, Data: data, Callback: callback}
	select {
	case <-c.stopCh:
		c.processWrite(req)
		return
	default:
	}
	select {
	case c.writeQueue <- req:
	default:
		c.logger.Warn("Write queue is full, falling back to synchronous write",
			zap.String("type", writeType.String()))
		c.processWrite(req)
	}
}

// healthCheck periodically checks database connectivity
func (c *Client) healthCheck() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := c.db.PingContext(ctx); err != nil {
				c.logger.Error("Database health check failed", zap.Error(err))
			}
			cancel()
		}
	}
}

// Close drains queued writes and closes the connection pool.
func (c *Client) Close() error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.workerWg.Wait()
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	c.logger.Info("Database client closed")
	return nil
}

// Driver reports the active driver name.
func (c *Client) Driver() string { return c.config.Driver }

// Wrapper returns the underlying DatabaseWrapper for health checks and monitoring
func (c *Client) Wrapper() *circuitbreaker.DatabaseWrapper {
	return c.db
}
