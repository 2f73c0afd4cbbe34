package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kocoro-lab/deepresearch/internal/research"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

// TestLoadConfig tests the configuration loading from defaults, files and environment
func TestLoadConfig(t *testing.T) {
	t.Run("Default configuration", func(t *testing.T) {
		t.Setenv("CONFIG_PATH", "")
		t.Chdir(t.TempDir())

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, research.DefaultLimits(), cfg.Research)
		assert.Equal(t, ProviderAnthropic, cfg.LLM.Provider)
		assert.Equal(t, 8, cfg.Workers.ResearcherMaxRounds)
		assert.Equal(t, 6, cfg.Workers.AnalystMaxRounds)
		assert.Equal(t, "deep-research", cfg.Temporal.TaskQueue)
		assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
		assert.Equal(t, []string{"python3", "-"}, cfg.Sandbox.Interpreter)
		assert.Equal(t, 60*time.Second, cfg.Sandbox.Timeout)
		assert.Equal(t, 400, cfg.Embeddings.Chunking.MaxTokens)
		assert.False(t, cfg.DatabaseEnabled())
	})

	t.Run("File values", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), FileName, `
research:
  max_iterations: 4
  max_concurrent_researchers: 5
  allow_clarification: false
llm:
  provider: openai
  model: gpt-4.1
workers:
  researcher_max_rounds: 3
vector:
  enabled: true
  mmr_enabled: true
  mmr_lambda: 0.5
database:
  driver: sqlite3
  database: /tmp/reports.db
session:
  ttl: 2h
`)
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 4, cfg.Research.MaxIterations)
		assert.Equal(t, 5, cfg.Research.MaxConcurrentResearchers)
		assert.False(t, cfg.Research.AllowClarification)
		assert.Equal(t, 3, cfg.Research.MaxClarificationRounds)
		assert.Equal(t, ProviderOpenAI, cfg.LLM.Provider)
		assert.Equal(t, "gpt-4.1", cfg.LLM.Model)
		assert.Equal(t, 3, cfg.Workers.ResearcherMaxRounds)
		assert.Equal(t, 6, cfg.Workers.AnalystMaxRounds)
		assert.True(t, cfg.Vector.MMREnabled)
		assert.Equal(t, 0.5, cfg.Vector.MMRLambda)
		assert.Equal(t, 2*time.Hour, cfg.Session.TTL)
		assert.True(t, cfg.DatabaseEnabled())
	})

	t.Run("Environment variable override", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), FileName, "research:\n  max_iterations: 4\n")
		t.Setenv("DEEPRESEARCH_RESEARCH_MAX_ITERATIONS", "9")
		t.Setenv("DEEPRESEARCH_LLM_MODEL", "claude-opus-4-1")
		t.Setenv("TAVILY_API_KEY", "tvly-test")
		t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 9, cfg.Research.MaxIterations)
		assert.Equal(t, "claude-opus-4-1", cfg.LLM.Model)
		assert.Equal(t, "tvly-test", cfg.Search.APIKey)
		assert.Equal(t, "sk-ant-test", cfg.LLM.APIKey)
	})

	t.Run("CONFIG_PATH", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "custom.yaml", "temporal:\n  task_queue: custom-queue\n")
		t.Setenv("CONFIG_PATH", path)
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "custom-queue", cfg.Temporal.TaskQueue)
	})

	t.Run("Missing explicit file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}

// TestConfigValidation tests configuration validation
func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		doc  map[string]interface{}
		want string
	}{
		{"unknown provider", map[string]interface{}{"llm": map[string]interface{}{"provider": "bard"}}, "llm.provider"},
		{"too many researchers", map[string]interface{}{"research": map[string]interface{}{"max_concurrent_researchers": 50}}, "max_concurrent_researchers"},
		{"auth without secret", map[string]interface{}{"auth": map[string]interface{}{"enabled": true}}, "jwt_secret"},
		{"bad mmr lambda", map[string]interface{}{"vector": map[string]interface{}{"mmr_lambda": 1.5}}, "mmr_lambda"},
		{"bad driver", map[string]interface{}{"database": map[string]interface{}{"driver": "mysql"}}, "database.driver"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromMap(tt.doc)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	t.Run("Valid configuration", func(t *testing.T) {
		cfg, err := FromMap(map[string]interface{}{
			"auth": map[string]interface{}{"enabled": true, "jwt_secret": "s3cret"},
		})
		require.NoError(t, err)
		assert.True(t, cfg.Auth.Enabled)
	})
}
