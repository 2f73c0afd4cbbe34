package db

import (
	"context"
	"fmt"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS research_reports (
		id UUID PRIMARY KEY,
		session_id TEXT NOT NULL UNIQUE,
		query TEXT NOT NULL,
		brief TEXT,
		depth TEXT,
		key_areas JSONB,
		notes JSONB,
		report TEXT NOT NULL,
		iterations INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS research_events (
		id UUID PRIMARY KEY,
		session_id TEXT NOT NULL,
		type TEXT NOT NULL,
		agent_id TEXT,
		message TEXT,
		timestamp TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_research_events_session ON research_events (session_id, timestamp)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS research_reports (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL UNIQUE,
		query TEXT NOT NULL,
		brief TEXT,
		depth TEXT,
		key_areas TEXT,
		notes TEXT,
		report TEXT NOT NULL,
		iterations INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS research_events (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		type TEXT NOT NULL,
		agent_id TEXT,
		message TEXT,
		timestamp TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_research_events_session ON research_events (session_id, timestamp)`,
}

// Migrate creates the archive tables when missing.
func (c *Client) Migrate(ctx context.Context) error {
	stmts := postgresSchema
	if c.config.Driver == DriverSQLite {
		stmts = sqliteSchema
	}
	for _, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return nil
}
