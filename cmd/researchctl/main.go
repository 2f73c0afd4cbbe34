// Package main provides the researchctl CLI for running and managing deep
// research sessions.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Kocoro-lab/deepresearch/internal/config"
	"github.com/Kocoro-lab/deepresearch/internal/temporal"
)

var (
	configPath string
	jsonOutput bool
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "researchctl",
		Short: "Run and manage deep research sessions",
		Long: `researchctl drives the deep research pipeline.

Usage modes:
  researchctl run <query>        Research in process, answering clarifications on stdin
  researchctl start <query>      Start a durable session on the Temporal worker
  researchctl answer <id> <text> Answer a suspended session
  researchctl status <id>        Show a session's phase and question
  researchctl report <id>        Print an archived report`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to research.yaml (defaults to $CONFIG_PATH or ./config/research.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")

	rootCmd.AddGroup(
		&cobra.Group{ID: "sessions", Title: "Sessions:"},
		&cobra.Group{ID: "archive", Title: "Archive:"},
		&cobra.Group{ID: "admin", Title: "Administration:"},
	)

	for _, cmd := range []*cobra.Command{runCmd(), startCmd(), answerCmd(), statusCmd()} {
		cmd.GroupID = "sessions"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{reportCmd(), reportsCmd()} {
		cmd.GroupID = "archive"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{tokenCmd(), indexCmd(), replayCmd()} {
		cmd.GroupID = "admin"
		rootCmd.AddCommand(cmd)
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the configuration selected by --config.
func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

// newLogger logs warnings to stderr, or everything with --verbose.
func newLogger() *zap.Logger {
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	zc.OutputPaths = []string{"stderr"}
	logger, err := zc.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// dialTemporal connects to the configured frontend once, without the
// worker's retry loop.
func dialTemporal(ctx context.Context, cfg *config.Config, logger *zap.Logger) (client.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	c, err := client.DialContext(ctx, client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    temporal.NewZapAdapter(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to temporal at %s: %w", cfg.Temporal.HostPort, err)
	}
	return c, nil
}
