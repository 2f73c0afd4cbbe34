package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Kocoro-lab/deepresearch/internal/agents"
	"github.com/Kocoro-lab/deepresearch/internal/db"
	"github.com/Kocoro-lab/deepresearch/internal/embeddings"
	"github.com/Kocoro-lab/deepresearch/internal/research"
	"github.com/Kocoro-lab/deepresearch/internal/tools/sandbox"
	"github.com/Kocoro-lab/deepresearch/internal/tools/tavily"
	"github.com/Kocoro-lab/deepresearch/internal/tracing"
	"github.com/Kocoro-lab/deepresearch/internal/vectordb"
)

// FileName is the research configuration file watched by the Manager.
const FileName = "research.yaml"

// EnvPrefix scopes environment overrides, e.g. DEEPRESEARCH_LLM_MODEL.
const EnvPrefix = "DEEPRESEARCH"

// LLM providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Config is the full service configuration.
type Config struct {
	Research   research.Limits   `mapstructure:"research"`
	Workers    agents.Config     `mapstructure:"workers"`
	LLM        LLMConfig         `mapstructure:"llm"`
	Prompts    PromptsConfig     `mapstructure:"prompts"`
	Search     tavily.Config     `mapstructure:"search"`
	Sandbox    sandbox.Config    `mapstructure:"sandbox"`
	Files      FilesConfig       `mapstructure:"files"`
	Vector     vectordb.Config   `mapstructure:"vector"`
	Embeddings embeddings.Config `mapstructure:"embeddings"`
	Redis      RedisConfig       `mapstructure:"redis"`
	Session    SessionConfig     `mapstructure:"session"`
	Streaming  StreamingConfig   `mapstructure:"streaming"`
	Database   db.Config         `mapstructure:"database"`
	Auth       AuthConfig        `mapstructure:"auth"`
	Temporal   TemporalConfig    `mapstructure:"temporal"`
	Service    ServiceConfig     `mapstructure:"service"`
	Tracing    tracing.Config    `mapstructure:"tracing"`
	Logging    LoggingConfig     `mapstructure:"logging"`
}

// LLMConfig selects and throttles the generation provider.
type LLMConfig struct {
	Provider          string        `mapstructure:"provider"`
	Model             string        `mapstructure:"model"`
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	Burst             int           `mapstructure:"burst"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// PromptsConfig points at an optional YAML file overriding prompt templates.
type PromptsConfig struct {
	File string `mapstructure:"file"`
}

// FilesConfig confines the read_file tool. An empty root disables it.
type FilesConfig struct {
	Root     string `mapstructure:"root"`
	MaxBytes int64  `mapstructure:"max_bytes"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type SessionConfig struct {
	TTL       time.Duration `mapstructure:"ttl"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
	MaxCached int           `mapstructure:"max_cached"`
}

type StreamingConfig struct {
	Capacity int           `mapstructure:"capacity"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// AuthConfig guards the answer endpoint and streams.
type AuthConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type TemporalConfig struct {
	HostPort         string        `mapstructure:"host_port"`
	Namespace        string        `mapstructure:"namespace"`
	TaskQueue        string        `mapstructure:"task_queue"`
	ActivityTimeout  time.Duration `mapstructure:"activity_timeout"`
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat_timeout"`
	AnswerTimeout    time.Duration `mapstructure:"answer_timeout"`
}

type ServiceConfig struct {
	AdminPort       int           `mapstructure:"admin_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	l := research.DefaultLimits()
	v.SetDefault("research.max_iterations", l.MaxIterations)
	v.SetDefault("research.max_concurrent_researchers", l.MaxConcurrentResearchers)
	v.SetDefault("research.max_clarification_rounds", l.MaxClarificationRounds)
	v.SetDefault("research.allow_clarification", l.AllowClarification)

	w := agents.DefaultConfig()
	v.SetDefault("workers.researcher_max_rounds", w.ResearcherMaxRounds)
	v.SetDefault("workers.analyst_max_rounds", w.AnalystMaxRounds)
	v.SetDefault("workers.search_max_results", w.SearchMaxResults)
	v.SetDefault("workers.index_max_results", w.IndexMaxResults)
	v.SetDefault("workers.summarize_raw_content", w.SummarizeRawContent)

	v.SetDefault("llm.provider", ProviderAnthropic)
	v.SetDefault("llm.model", "claude-sonnet-4-20250514")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.requests_per_minute", 50)
	v.SetDefault("llm.burst", 5)
	v.SetDefault("llm.timeout", "5m")

	v.SetDefault("prompts.file", "")

	v.SetDefault("search.api_key", "")
	v.SetDefault("search.base_url", "https://api.tavily.com")
	v.SetDefault("search.topic", "general")
	v.SetDefault("search.include_raw_content", true)
	v.SetDefault("search.timeout", "30s")

	sb := sandbox.DefaultConfig()
	v.SetDefault("sandbox.interpreter", sb.Interpreter)
	v.SetDefault("sandbox.work_dir", sb.WorkDir)
	v.SetDefault("sandbox.timeout", sb.Timeout)
	v.SetDefault("sandbox.max_output_bytes", sb.MaxOutputBytes)

	v.SetDefault("files.root", "")
	v.SetDefault("files.max_bytes", 512*1024)

	v.SetDefault("vector.enabled", false)
	v.SetDefault("vector.url", "http://localhost:6333")
	v.SetDefault("vector.api_key", "")
	v.SetDefault("vector.collection", "research_documents")
	v.SetDefault("vector.top_k", 5)
	v.SetDefault("vector.threshold", 0.0)
	v.SetDefault("vector.timeout", "10s")
	v.SetDefault("vector.expected_embedding_dim", 1536)
	v.SetDefault("vector.mmr_enabled", false)
	v.SetDefault("vector.mmr_lambda", 0.7)
	v.SetDefault("vector.mmr_pool_multiplier", 3)

	v.SetDefault("embeddings.api_key", "")
	v.SetDefault("embeddings.base_url", "")
	v.SetDefault("embeddings.model", "text-embedding-3-small")
	v.SetDefault("embeddings.dimensions", 0)
	v.SetDefault("embeddings.timeout", "10s")
	v.SetDefault("embeddings.cache_ttl", "1h")
	v.SetDefault("embeddings.max_lru", 2048)
	v.SetDefault("embeddings.chunking.max_tokens", 400)
	v.SetDefault("embeddings.chunking.overlap_tokens", 50)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("session.ttl", "24h")
	v.SetDefault("session.cache_ttl", "2s")
	v.SetDefault("session.max_cached", 1000)

	v.SetDefault("streaming.capacity", 256)
	v.SetDefault("streaming.ttl", "24h")

	v.SetDefault("database.driver", db.DriverPostgres)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "deepresearch")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.idle_connections", 5)
	v.SetDefault("database.max_lifetime", "5m")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.workers", 4)
	v.SetDefault("database.queue_size", 1000)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "deepresearch")
	v.SetDefault("auth.token_ttl", "24h")

	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "deep-research")
	v.SetDefault("temporal.activity_timeout", "30m")
	v.SetDefault("temporal.heartbeat_timeout", "2m")
	v.SetDefault("temporal.answer_timeout", "24h")

	v.SetDefault("service.admin_port", 8081)
	v.SetDefault("service.shutdown_timeout", "30s")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "deepresearch")
	v.SetDefault("tracing.otlp_endpoint", "localhost:4317")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)
}

// Provider API keys are also read from their conventional variables.
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("search.api_key", EnvPrefix+"_SEARCH_API_KEY", "TAVILY_API_KEY")
	_ = v.BindEnv("embeddings.api_key", EnvPrefix+"_EMBEDDINGS_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("auth.jwt_secret", EnvPrefix+"_AUTH_JWT_SECRET", "JWT_SECRET")
	_ = v.BindEnv("temporal.host_port", EnvPrefix+"_TEMPORAL_HOST_PORT", "TEMPORAL_HOST")
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	bindEnv(v)
	return v
}

// Load reads path, or CONFIG_PATH when path is empty, on top of defaults and
// environment overrides. A missing file is only an error when a path was
// given explicitly.
func Load(path string) (*Config, error) {
	v := newViper()
	explicit := path != ""
	if !explicit {
		path = os.Getenv("CONFIG_PATH")
		explicit = path != ""
	}
	if explicit {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, ".yaml"))
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app/config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return decode(v)
}

// FromMap builds a Config from a parsed document, as delivered to Manager
// change handlers.
func FromMap(m map[string]interface{}) (*Config, error) {
	v := newViper()
	if err := v.MergeConfigMap(m); err != nil {
		return nil, fmt.Errorf("merge config: %w", err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyProviderKey()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyProviderKey() {
	if c.LLM.APIKey != "" {
		return
	}
	switch c.LLM.Provider {
	case ProviderAnthropic:
		c.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	case ProviderOpenAI:
		c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.LLM.Provider {
	case ProviderAnthropic, ProviderOpenAI:
	default:
		errs = append(errs, fmt.Errorf("llm.provider must be %q or %q, got %q", ProviderAnthropic, ProviderOpenAI, c.LLM.Provider))
	}
	if c.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model is required"))
	}
	if c.Research.MaxIterations < 0 {
		errs = append(errs, errors.New("research.max_iterations must not be negative"))
	}
	if c.Research.MaxConcurrentResearchers > 20 {
		errs = append(errs, fmt.Errorf("research.max_concurrent_researchers must be at most 20, got %d", c.Research.MaxConcurrentResearchers))
	}
	if c.Workers.ResearcherMaxRounds < 0 || c.Workers.AnalystMaxRounds < 0 {
		errs = append(errs, errors.New("workers round caps must not be negative"))
	}
	if c.Vector.MMRLambda < 0 || c.Vector.MMRLambda > 1 {
		errs = append(errs, fmt.Errorf("vector.mmr_lambda must be within [0,1], got %v", c.Vector.MMRLambda))
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required when auth is enabled"))
	}
	if c.Temporal.TaskQueue == "" {
		errs = append(errs, errors.New("temporal.task_queue is required"))
	}
	switch c.Database.Driver {
	case "", db.DriverPostgres, db.DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not supported", c.Database.Driver))
	}
	return errors.Join(errs...)
}

// DatabaseEnabled reports whether a report archive is configured.
func (c *Config) DatabaseEnabled() bool {
	return c.Database.DSN != "" || c.Database.Host != "" ||
		(c.Database.Driver == db.DriverSQLite && c.Database.Database != "")
}
