package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/deepresearch/internal/llm"
	"github.com/Kocoro-lab/deepresearch/internal/llm/llmtest"
	"github.com/Kocoro-lab/deepresearch/internal/research"
)

type noWorkers struct{}

func (noWorkers) NewResearcher(research.WorkerID) research.Researcher { return nil }
func (noWorkers) NewAnalyst(research.WorkerID) research.Analyst       { return nil }

func clarifyingPipeline(t *testing.T) (*research.Pipeline, *llmtest.Client) {
	t.Helper()
	client := llmtest.New(llmtest.Router(map[string]llmtest.HandlerFunc{
		"clarify": llmtest.Sequence(
			llmtest.Reply(llmtest.Tools(llmtest.Call("c1", "ClarifyWithUser", map[string]any{
				"need_clarification": true,
				"question":           "Which country?",
			}))),
			llmtest.Reply(llmtest.Tools(llmtest.Call("c2", "ClarifyWithUser", map[string]any{
				"need_clarification": false,
				"verification":       "Researching Norway.",
			}))),
		),
		"brief": llmtest.Sequence(llmtest.Reply(llmtest.Tools(llmtest.Call("b", "ResearchBrief", map[string]any{
			"research_brief": "EV adoption in Norway",
			"key_areas":      []string{"policy"},
			"research_depth": "shallow",
		})))),
		"supervisor": llmtest.Sequence(llmtest.Reply(llmtest.Text("Nothing to dispatch."))),
		"report":     llmtest.Sequence(llmtest.Reply(llmtest.Text("# EV adoption in Norway"))),
	}))
	return research.NewPipeline(research.Deps{
		LLM:     client,
		Workers: noWorkers{},
		Logger:  zaptest.NewLogger(t),
	}), client
}

func TestRunSessionAnswersClarification(t *testing.T) {
	p, client := clarifyingPipeline(t)
	var prompt bytes.Buffer
	req, err := startRequest("How fast are EVs being adopted?", false, "", nil)
	require.NoError(t, err)

	out, err := runSession(context.Background(), p, req, strings.NewReader("\n   \nNorway\n"), &prompt, false)
	require.NoError(t, err)
	assert.Equal(t, research.StatusDone, out.Status)
	assert.Equal(t, "# EV adoption in Norway", out.Report)
	assert.Contains(t, prompt.String(), "Which country?")
	assert.Equal(t, 2, client.CallsFor("clarify"))

	st, err := p.Get(context.Background(), out.SessionID)
	require.NoError(t, err)
	var answered bool
	for _, m := range st.Messages {
		if m.Role == llm.RoleUser && m.Content == "Norway" {
			answered = true
		}
	}
	assert.True(t, answered)
}

func TestRunSessionInputClosed(t *testing.T) {
	p, _ := clarifyingPipeline(t)
	req, err := startRequest("vague", false, "", nil)
	require.NoError(t, err)

	out, err := runSession(context.Background(), p, req, strings.NewReader(""), &bytes.Buffer{}, true)
	require.ErrorIs(t, err, errNoAnswer)
	require.NotNil(t, out)
	assert.Equal(t, research.StatusAwaitingInput, out.Status)
}

func TestAskAcceptsFinalLineWithoutNewline(t *testing.T) {
	var w bytes.Buffer
	r := bufio.NewReader(strings.NewReader("  Sweden"))
	answer, err := ask(r, &w, "Which country?", true)
	require.NoError(t, err)
	assert.Equal(t, "Sweden", answer)
	assert.Contains(t, w.String(), "> ")
}

func TestStartRequest(t *testing.T) {
	_, err := startRequest("   ", false, "", nil)
	assert.ErrorIs(t, err, research.ErrNoInput)

	req, err := startRequest("Compare grid storage options", true, "deep", []string{"cost", "lifetime"})
	require.NoError(t, err)
	require.NotNil(t, req.Brief)
	assert.Empty(t, req.Messages)
	assert.Equal(t, research.DepthDeep, req.Brief.Depth)
	assert.Equal(t, []string{"cost", "lifetime"}, req.Brief.KeyAreas)

	req, err = startRequest("What changed in 2024?", false, "", nil)
	require.NoError(t, err)
	assert.Nil(t, req.Brief)
	assert.Equal(t, []llm.Message{llm.User("What changed in 2024?")}, req.Messages)
}

func TestCollectFiles(t *testing.T) {
	dir := t.TempDir()
	write := func(rel, body string) string {
		p := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		return p
	}
	a := write("a.md", "alpha")
	b := write("nested/b.TXT", "beta")
	write("nested/c.go", "package c")
	write(".git/d.md", "hidden")

	files, err := collectFiles([]string{dir, a}, []string{"md", ".txt"})
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, files)

	_, err = collectFiles([]string{filepath.Join(dir, "missing")}, defaultIndexExts)
	assert.Error(t, err)
}

type fakeIngester struct {
	mu      sync.Mutex
	sources []string
	fail    string
}

func (f *fakeIngester) Ingest(_ context.Context, source, text string) (int, error) {
	if source == f.fail {
		return 0, errors.New("embedding quota exceeded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources = append(f.sources, source)
	return len(strings.Fields(text)), nil
}

func TestIngestFiles(t *testing.T) {
	dir := t.TempDir()
	var files []string
	for i, body := range []string{"one two", "three four five", "six"} {
		p := filepath.Join(dir, string(rune('a'+i))+".md")
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		files = append(files, p)
	}

	ix := &fakeIngester{}
	var progress bytes.Buffer
	n, err := ingestFiles(context.Background(), ix, files, 2, &progress)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.ElementsMatch(t, files, ix.sources)
	assert.Equal(t, 3, strings.Count(progress.String(), "chunks"))

	_, err = ingestFiles(context.Background(), &fakeIngester{fail: files[1]}, files, 1, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding quota exceeded")
}

func TestTruncateStr(t *testing.T) {
	assert.Equal(t, "short", truncateStr("short", 10))
	assert.Equal(t, "abcdefg...", truncateStr("abcdefghijklmnop", 10))
	assert.Equal(t, "a...", truncateStr("abcdef", 2))
}
