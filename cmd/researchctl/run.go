package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Kocoro-lab/deepresearch/internal/llm"
	"github.com/Kocoro-lab/deepresearch/internal/registry"
	"github.com/Kocoro-lab/deepresearch/internal/research"
)

// errNoAnswer is returned when stdin closes while a question is pending.
var errNoAnswer = errors.New("input closed before the clarification was answered")

func runCmd() *cobra.Command {
	var (
		outFile  string
		asBrief  bool
		depth    string
		keyAreas []string
		quiet    bool
	)
	cmd := &cobra.Command{
		Use:   "run <query>",
		Short: "Research a question in process",
		Long: `Run the full pipeline in this process. Clarifying questions are asked
on stdin; progress is printed to stderr and the report to stdout.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger()
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			opts := registry.BuildOptions{InMemory: true}
			if !quiet && !jsonOutput {
				opts.Emitters = append(opts.Emitters, newProgressPrinter(cmd.ErrOrStderr()))
			}
			components, err := registry.Build(ctx, cfg, opts, logger)
			if err != nil {
				return err
			}
			defer components.Close()

			req, err := startRequest(strings.Join(args, " "), asBrief, depth, keyAreas)
			if err != nil {
				return err
			}
			interactive := term.IsTerminal(int(os.Stdin.Fd()))
			outcome, err := runSession(ctx, components.Pipeline, req, cmd.InOrStdin(), cmd.ErrOrStderr(), interactive)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), outcome)
			}
			if outFile != "" {
				if err := os.WriteFile(outFile, []byte(outcome.Report), 0o644); err != nil {
					return fmt.Errorf("write report: %w", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "%s report written to %s\n", color.GreenString("✓"), outFile)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), outcome.Report)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "Write the markdown report to a file")
	cmd.Flags().BoolVar(&asBrief, "brief", false, "Treat the query as a finished research brief and skip clarification")
	cmd.Flags().StringVar(&depth, "depth", string(research.DepthModerate), "Brief depth with --brief (shallow, moderate, deep)")
	cmd.Flags().StringSliceVar(&keyAreas, "area", nil, "Key area to cover with --brief (repeatable)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print progress events")
	return cmd
}

// startRequest builds the pipeline input for a CLI query.
func startRequest(query string, asBrief bool, depth string, keyAreas []string) (research.StartRequest, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return research.StartRequest{}, research.ErrNoInput
	}
	if !asBrief {
		return research.StartRequest{Messages: []llm.Message{llm.User(query)}}, nil
	}
	brief, err := research.NewBrief(query, keyAreas, depth)
	if err != nil {
		return research.StartRequest{}, err
	}
	return research.StartRequest{Brief: brief}, nil
}

// runSession starts a session and answers clarifying questions from in
// until the pipeline produces a report.
func runSession(ctx context.Context, p *research.Pipeline, req research.StartRequest, in io.Reader, prompt io.Writer, interactive bool) (*research.Outcome, error) {
	outcome, err := p.Start(ctx, req)
	if err != nil {
		return nil, err
	}
	reader := bufio.NewReader(in)
	for outcome.Status == research.StatusAwaitingInput {
		answer, err := ask(reader, prompt, outcome.Question, interactive)
		if err != nil {
			return outcome, err
		}
		outcome, err = p.Resume(ctx, outcome.SessionID, answer)
		if err != nil {
			return nil, err
		}
	}
	return outcome, nil
}

// ask prints question and reads one non-blank line.
func ask(r *bufio.Reader, w io.Writer, question string, interactive bool) (string, error) {
	fmt.Fprintf(w, "\n%s %s\n", color.YellowString("?"), question)
	for {
		if interactive {
			fmt.Fprint(w, color.YellowString("> "))
		}
		line, err := r.ReadString('\n')
		if answer := strings.TrimSpace(line); answer != "" {
			return answer, nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", errNoAnswer
			}
			return "", err
		}
	}
}
