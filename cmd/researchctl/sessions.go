package main

import (
	"context"
	"fmt"
	"io"
	"os/user"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"

	"github.com/Kocoro-lab/deepresearch/internal/constants"
	"github.com/Kocoro-lab/deepresearch/internal/research"
	"github.com/Kocoro-lab/deepresearch/internal/workflows"
)

func startCmd() *cobra.Command {
	var (
		workflowID string
		asBrief    bool
		depth      string
		keyAreas   []string
		wait       bool
	)
	cmd := &cobra.Command{
		Use:   "start <query>",
		Short: "Start a durable research session on the worker",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger()
			defer logger.Sync()

			req, err := startRequest(strings.Join(args, " "), asBrief, depth, keyAreas)
			if err != nil {
				return err
			}
			tc, err := dialTemporal(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer tc.Close()

			if workflowID == "" {
				workflowID = "research-" + uuid.NewString()
			}
			input := workflows.ResearchInput{
				Messages:         req.Messages,
				Brief:            req.Brief,
				ActivityTimeout:  cfg.Temporal.ActivityTimeout,
				HeartbeatTimeout: cfg.Temporal.HeartbeatTimeout,
				AnswerTimeout:    cfg.Temporal.AnswerTimeout,
			}
			run, err := tc.ExecuteWorkflow(cmd.Context(), client.StartWorkflowOptions{
				ID:        workflowID,
				TaskQueue: cfg.Temporal.TaskQueue,
			}, constants.DeepResearchWorkflow, input)
			if err != nil {
				return fmt.Errorf("start workflow: %w", err)
			}

			if !wait {
				if jsonOutput {
					return printJSON(cmd.OutOrStdout(), map[string]string{"workflow_id": run.GetID(), "run_id": run.GetRunID()})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s started %s\n", color.GreenString("✓"), color.CyanString(run.GetID()))
				return nil
			}

			var res workflows.ResearchResult
			if err := run.Get(cmd.Context(), &res); err != nil {
				return fmt.Errorf("workflow %s failed: %w", run.GetID(), err)
			}
			return printResult(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&workflowID, "id", "", "Workflow id (defaults to research-<uuid>)")
	cmd.Flags().BoolVar(&asBrief, "brief", false, "Treat the query as a finished research brief and skip clarification")
	cmd.Flags().StringVar(&depth, "depth", string(research.DepthModerate), "Brief depth with --brief (shallow, moderate, deep)")
	cmd.Flags().StringSliceVar(&keyAreas, "area", nil, "Key area to cover with --brief (repeatable)")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Block until the workflow completes or suspends")
	return cmd
}

func answerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "answer <workflow_id> <answer>",
		Short: "Answer the clarifying question of a suspended session",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger()
			defer logger.Sync()

			tc, err := dialTemporal(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer tc.Close()

			id := args[0]
			answer := strings.TrimSpace(strings.Join(args[1:], " "))
			if answer == "" {
				return fmt.Errorf("answer is empty")
			}
			st, err := queryStatus(cmd.Context(), tc, id)
			if err != nil {
				return err
			}
			if st.Status != research.StatusAwaitingInput {
				return fmt.Errorf("%w (status %s)", research.ErrNotAwaitingInput, st.Status)
			}
			if err := tc.SignalWorkflow(cmd.Context(), id, "", constants.SignalAnswer, workflows.AnswerSignal{
				Answer:     answer,
				AnsweredBy: currentUser(),
			}); err != nil {
				return fmt.Errorf("signal workflow: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s answer sent to %s\n", color.GreenString("✓"), color.CyanString(id))
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <workflow_id>",
		Short: "Show the phase of a durable session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger()
			defer logger.Sync()

			tc, err := dialTemporal(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer tc.Close()

			st, err := queryStatus(cmd.Context(), tc, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), st)
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

func queryStatus(ctx context.Context, tc client.Client, workflowID string) (workflows.SessionStatus, error) {
	var st workflows.SessionStatus
	v, err := tc.QueryWorkflow(ctx, workflowID, "", constants.QueryStatus)
	if err != nil {
		return st, fmt.Errorf("query %s: %w", workflowID, err)
	}
	if err := v.Get(&st); err != nil {
		return st, fmt.Errorf("decode status: %w", err)
	}
	return st, nil
}

func printStatus(w io.Writer, st workflows.SessionStatus) {
	fmt.Fprintf(w, "%s  %s\n", color.CyanString(st.SessionID), statusString(st.Status))
	fmt.Fprintf(w, "  phase:          %s\n", st.Phase)
	fmt.Fprintf(w, "  iterations:     %d\n", st.Iterations)
	fmt.Fprintf(w, "  notes:          %d\n", st.Notes)
	fmt.Fprintf(w, "  clarifications: %d\n", st.ClarificationRounds)
	if st.Question != "" {
		fmt.Fprintf(w, "  %s %s\n", color.YellowString("question:"), st.Question)
	}
	if st.Error != "" {
		fmt.Fprintf(w, "  %s %s\n", color.RedString("error:"), st.Error)
	}
}

func printResult(w io.Writer, res workflows.ResearchResult) error {
	if jsonOutput {
		return printJSON(w, res)
	}
	if res.Status == research.StatusAwaitingInput {
		fmt.Fprintf(w, "%s %s is waiting for an answer:\n  %s\n", color.YellowString("?"), res.SessionID, res.Question)
		fmt.Fprintf(w, "Reply with: researchctl answer %s \"...\"\n", res.SessionID)
		return nil
	}
	fmt.Fprintln(w, res.Report)
	return nil
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "cli"
}
