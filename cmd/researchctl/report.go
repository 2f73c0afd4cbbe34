package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/deepresearch/internal/config"
	"github.com/Kocoro-lab/deepresearch/internal/db"
)

func openArchive(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*db.Client, *db.ReportStore, error) {
	if !cfg.DatabaseEnabled() {
		return nil, nil, errors.New("no report archive configured (set database.host, database.dsn or a sqlite3 database)")
	}
	c, err := db.NewClient(ctx, cfg.Database, logger)
	if err != nil {
		return nil, nil, err
	}
	return c, db.NewReportStore(c), nil
}

func reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report <session_id>",
		Short: "Print an archived report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger()
			defer logger.Sync()

			c, store, err := openArchive(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer c.Close()

			rec, err := store.Get(cmd.Context(), args[0])
			if errors.Is(err, db.ErrReportNotFound) {
				return fmt.Errorf("no archived report for %s", args[0])
			}
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), rec)
			}
			fmt.Fprintln(cmd.OutOrStdout(), rec.Report)
			return nil
		},
	}
}

func reportsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "List recently archived reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger()
			defer logger.Sync()

			c, store, err := openArchive(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer c.Close()

			list, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), list)
			}
			printReports(cmd.OutOrStdout(), list)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum reports to list")
	return cmd
}

func printReports(w io.Writer, list []db.ReportSummary) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No archived reports")
		return
	}
	fmt.Fprintln(w, color.CyanString("Archived reports"))
	fmt.Fprintln(w, rule(w))
	for _, r := range list {
		depth := "-"
		if r.Depth != nil {
			depth = *r.Depth
		}
		fmt.Fprintf(w, "%s  %s  %-8s %2d rounds  %s\n",
			r.CreatedAt.Format("2006-01-02 15:04"),
			color.CyanString(r.SessionID),
			depth,
			r.Iterations,
			truncateStr(r.Query, 60),
		)
	}
}
