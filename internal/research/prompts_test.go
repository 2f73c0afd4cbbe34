package research

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPromptsRender(t *testing.T) {
	p := DefaultPrompts()
	out, err := p.Render("report", map[string]any{"Brief": "B", "Date": "D", "Findings": "F"})
	require.NoError(t, err)
	assert.Contains(t, out, "<Findings>\nF\n</Findings>")

	_, err = p.Render("report", map[string]any{"Brief": "B"})
	assert.Error(t, err, "missing keys must fail")

	_, err = p.Render("nope", nil)
	assert.Error(t, err)
}

func TestLoadPromptsOverlay(t *testing.T) {
	p, err := LoadPrompts(strings.NewReader("report: \"Custom {{.Brief}} on {{.Date}}\"\n"))
	require.NoError(t, err)

	out, err := p.Render("report", map[string]any{"Brief": "X", "Date": "today", "Findings": ""})
	require.NoError(t, err)
	assert.Equal(t, "Custom X on today", out)

	out, err = p.Render("analyst", map[string]any{"Date": Today(time.Now())})
	require.NoError(t, err)
	assert.Contains(t, out, "execute_python")
}

func TestLoadPromptsRejectsUnknownKeys(t *testing.T) {
	_, err := LoadPrompts(strings.NewReader("reportz: nope\n"))
	assert.Error(t, err)
}

func TestLoadPromptsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("clarify: \"{{.Messages}}|{{.Date}}\"\n"), 0o644))

	p, err := LoadPromptsFromFile(path)
	require.NoError(t, err)
	out, err := p.Render("clarify", map[string]any{"Messages": "Human: hi", "Date": "d"})
	require.NoError(t, err)
	assert.Equal(t, "Human: hi|d", out)

	_, err = LoadPromptsFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadPromptsEmptyInput(t *testing.T) {
	p, err := LoadPrompts(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, defaultSupervisorPrompt, p.Supervisor)
}
