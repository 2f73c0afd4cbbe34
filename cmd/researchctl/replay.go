package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Kocoro-lab/deepresearch/internal/temporal"
	"github.com/Kocoro-lab/deepresearch/internal/workflows"
)

func replayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <history.json>...",
		Short: "Check exported workflow histories still replay deterministically",
		Long: `Replay Temporal histories exported with
  temporal workflow show --workflow-id <id> --output json
against the workflows compiled into this binary. A failure means a change
would break sessions that are still running.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			defer logger.Sync()
			replayer := workflows.NewReplayer()
			for _, path := range args {
				if err := replayer.ReplayWorkflowHistoryFromJSONFile(temporal.NewZapAdapter(logger), path); err != nil {
					return fmt.Errorf("replay %s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.GreenString("ok"), path)
			}
			return nil
		},
	}
}
