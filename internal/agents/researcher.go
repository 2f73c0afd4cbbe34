// Package agents implements the research and analyst workers dispatched by
// the supervisor.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Kocoro-lab/deepresearch/internal/llm"
	"github.com/Kocoro-lab/deepresearch/internal/metrics"
	"github.com/Kocoro-lab/deepresearch/internal/research"
	"github.com/Kocoro-lab/deepresearch/internal/tools"
)

// Researcher tool names.
const (
	ToolSearch     = "search"
	ToolReflect    = "reflect"
	ToolReadFile   = "read_file"
	ToolQueryIndex = "query_index"
)

const (
	summaryFallbackChars = 1000
	compressRequest      = "All above messages are about research conducted by an AI Researcher for the topic in the system prompt. Please clean up these findings.\n\nDO NOT summarize the information. I want the raw information returned, just in a cleaner format. Make sure all relevant information is preserved."
)

// Researcher runs the act/observe loop for a single topic.
type Researcher struct {
	name    string
	client  llm.Client
	toolbox Toolbox
	prompts *research.Prompts
	cfg     Config
	emitter research.Emitter
	session string
	logger  *zap.Logger
	now     func() time.Time
}

func (r *Researcher) Name() string { return r.name }

// Research investigates topic and compresses the transcript. Tool failures
// become observations; only a failed compression call is returned as an
// error.
func (r *Researcher) Research(ctx context.Context, topic string) (research.Findings, error) {
	system, err := r.prompts.Render("researcher", map[string]any{"Date": research.Today(r.now())})
	if err != nil {
		return research.Findings{}, err
	}
	defs := r.toolDefinitions()
	messages := []llm.Message{llm.User(topic)}

	rounds := 0
	for rounds < r.cfg.ResearcherMaxRounds {
		resp, err := r.client.Complete(ctx, llm.Request{
			System:     system,
			Messages:   messages,
			Tools:      defs,
			ToolChoice: llm.ToolChoice{Mode: llm.ToolChoiceAuto},
			Purpose:    "researcher",
		})
		if err != nil {
			if ctx.Err() != nil {
				return research.Findings{}, ctx.Err()
			}
			r.logger.Warn("Research planning call failed; compressing what we have",
				zap.String("worker", r.name), zap.Int("round", rounds), zap.Error(err))
			break
		}
		rounds++
		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls})
		if len(resp.ToolCalls) == 0 {
			break
		}
		for _, call := range resp.ToolCalls {
			obs, failed := r.execute(ctx, call)
			messages = append(messages, llm.ToolResult(call, obs, failed))
		}
	}
	metrics.WorkerRounds.WithLabelValues(RoleResearcher).Observe(float64(rounds))
	if rounds >= r.cfg.ResearcherMaxRounds {
		r.logger.Info("Researcher hit round cap", zap.String("worker", r.name), zap.Int("rounds", rounds))
	}

	compressed, err := r.compress(ctx, topic, messages, defs)
	if err != nil {
		return research.Findings{}, err
	}
	return research.Findings{
		Compressed: compressed,
		RawNotes:   []string{rawNotes(messages)},
	}, nil
}

func (r *Researcher) compress(ctx context.Context, topic string, messages []llm.Message, defs []llm.ToolDefinition) (string, error) {
	system, err := r.prompts.Render("compress", map[string]any{"Date": research.Today(r.now()), "Topic": topic})
	if err != nil {
		return "", err
	}
	req := llm.Request{
		System:   system,
		Messages: append(append([]llm.Message(nil), messages...), llm.User(compressRequest)),
		Purpose:  "compress",
	}
	if hasToolTraffic(messages) {
		req.Tools = defs
		req.ToolChoice = llm.ToolChoice{Mode: llm.ToolChoiceNone}
	}
	resp, err := r.client.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("compress research: %w", err)
	}
	return resp.Content, nil
}

func (r *Researcher) execute(ctx context.Context, call llm.ToolCall) (string, bool) {
	obs, err := r.invoke(ctx, call)
	status := "success"
	if err != nil {
		status = "error"
		obs = fmt.Sprintf("Tool error: %v", err)
		r.logger.Debug("Tool failed", zap.String("worker", r.name), zap.String("tool", call.Name), zap.Error(err))
	}
	metrics.ToolInvocations.WithLabelValues(call.Name, status).Inc()
	return obs, err != nil
}

func (r *Researcher) invoke(ctx context.Context, call llm.ToolCall) (string, error) {
	switch call.Name {
	case ToolSearch:
		var args struct {
			Query string `json:"query"`
		}
		if err := decode(call, &args); err != nil {
			return "", err
		}
		if r.toolbox.Search == nil {
			return "", notConfigured(call.Name)
		}
		r.status(ctx, "Searching web for: "+args.Query)
		results, err := r.toolbox.Search.Search(ctx, args.Query, r.cfg.SearchMaxResults)
		if err != nil {
			return "", err
		}
		return r.searchOutput(ctx, results), nil
	case ToolReflect:
		var args struct {
			Reflection string `json:"reflection"`
		}
		if err := decode(call, &args); err != nil {
			return "", err
		}
		return research.ReflectionNote(args.Reflection), nil
	case ToolReadFile:
		var args struct {
			FilePath string `json:"file_path"`
		}
		if err := decode(call, &args); err != nil {
			return "", err
		}
		if r.toolbox.Files == nil {
			return "", notConfigured(call.Name)
		}
		r.status(ctx, "Reading file: "+args.FilePath)
		return r.toolbox.Files.ReadFile(ctx, args.FilePath)
	case ToolQueryIndex:
		var args struct {
			Query string `json:"query"`
		}
		if err := decode(call, &args); err != nil {
			return "", err
		}
		if r.toolbox.Index == nil {
			return "", notConfigured(call.Name)
		}
		r.status(ctx, "Querying knowledge index: "+args.Query)
		passages, err := r.toolbox.Index.Query(ctx, args.Query, r.cfg.IndexMaxResults)
		if err != nil {
			return "", err
		}
		return formatPassages(passages), nil
	default:
		return "", fmt.Errorf("unknown tool %q", call.Name)
	}
}

func notConfigured(tool string) error {
	return fmt.Errorf("tool %q is not configured", tool)
}

func (r *Researcher) status(ctx context.Context, msg string) {
	if r.emitter == nil {
		return
	}
	r.emitter.Emit(ctx, research.Event{
		SessionID: r.session,
		Type:      research.EventStatus,
		AgentID:   r.name,
		Message:   msg,
		Timestamp: time.Now(),
	})
}

// SourceSummary is one rendered search source.
type SourceSummary struct {
	URL     string
	Title   string
	Content string
}

// searchOutput deduplicates by URL, summarizes raw page content and renders
// the sources in rank order.
func (r *Researcher) searchOutput(ctx context.Context, results []tools.SearchResult) string {
	unique := DedupeByURL(results)
	summaries := make([]SourceSummary, len(unique))

	var g errgroup.Group
	g.SetLimit(3)
	for i, res := range unique {
		summaries[i] = SourceSummary{URL: res.URL, Title: res.Title, Content: res.Content}
		if res.RawContent == "" || !r.cfg.SummarizeRawContent {
			continue
		}
		g.Go(func() error {
			summaries[i].Content = r.summarize(ctx, res.RawContent)
			return nil
		})
	}
	_ = g.Wait()
	return FormatSearchOutput(summaries)
}

type pageSummary struct {
	Summary     string `json:"summary"`
	KeyExcerpts string `json:"key_excerpts"`
}

var summaryTool = llm.ToolDefinition{
	Name:        "Summary",
	Description: "Schema for webpage content summarization.",
	Parameters: llm.Schema{
		Properties: map[string]llm.Property{
			"summary":      {Type: "string", Description: "Concise summary of the webpage content"},
			"key_excerpts": {Type: "string", Description: "Important quotes and excerpts from the content"},
		},
		Required: []string{"summary", "key_excerpts"},
	},
}

func (r *Researcher) summarize(ctx context.Context, raw string) string {
	prompt, err := r.prompts.Render("summarize", map[string]any{"Date": research.Today(r.now()), "Content": raw})
	if err == nil {
		var s pageSummary
		s, err = llm.Structured[pageSummary](ctx, r.client, llm.Request{
			Messages: []llm.Message{llm.User(prompt)},
			Purpose:  "summarize",
		}, summaryTool)
		if err == nil {
			return fmt.Sprintf("<summary>\n%s\n</summary>\n\n<key_excerpts>\n%s\n</key_excerpts>", s.Summary, s.KeyExcerpts)
		}
	}
	r.logger.Debug("Failed to summarize webpage", zap.String("worker", r.name), zap.Error(err))
	return truncate(raw, summaryFallbackChars)
}

// DedupeByURL keeps the first result for every URL, preserving rank order.
func DedupeByURL(results []tools.SearchResult) []tools.SearchResult {
	seen := make(map[string]bool, len(results))
	out := make([]tools.SearchResult, 0, len(results))
	for _, res := range results {
		if seen[res.URL] {
			continue
		}
		seen[res.URL] = true
		out = append(out, res)
	}
	return out
}

// FormatSearchOutput renders summarized sources for the model.
func FormatSearchOutput(sources []SourceSummary) string {
	if len(sources) == 0 {
		return "No valid search results found."
	}
	var sb strings.Builder
	sb.WriteString("Search results: \n\n")
	for i, s := range sources {
		fmt.Fprintf(&sb, "\n\n--- SOURCE %d: %s ---\n", i+1, s.Title)
		fmt.Fprintf(&sb, "URL: %s\n\n", s.URL)
		fmt.Fprintf(&sb, "SUMMARY:\n%s\n\n", s.Content)
		sb.WriteString(strings.Repeat("-", 80) + "\n")
	}
	return sb.String()
}

func formatPassages(passages []tools.Passage) string {
	if len(passages) == 0 {
		return "No relevant passages found in the knowledge index."
	}
	var sb strings.Builder
	for i, p := range passages {
		fmt.Fprintf(&sb, "[%d] %s (score %.3f)\n%s\n\n", i+1, p.Source, p.Score, p.Text)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// rawNotes joins assistant and tool contents into one block.
func rawNotes(messages []llm.Message) string {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		if m.Role == llm.RoleAssistant || m.Role == llm.RoleTool {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n")
}

func hasToolTraffic(messages []llm.Message) bool {
	for _, m := range messages {
		if m.Role == llm.RoleTool || len(m.ToolCalls) > 0 {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func decode(call llm.ToolCall, v any) error {
	if len(call.Arguments) == 0 {
		return fmt.Errorf("%s: missing arguments", call.Name)
	}
	if err := json.Unmarshal(call.Arguments, v); err != nil {
		return fmt.Errorf("%s: invalid arguments: %w", call.Name, err)
	}
	return nil
}
