package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/deepresearch/internal/activities"
	"github.com/Kocoro-lab/deepresearch/internal/agents"
	"github.com/Kocoro-lab/deepresearch/internal/circuitbreaker"
	"github.com/Kocoro-lab/deepresearch/internal/config"
	"github.com/Kocoro-lab/deepresearch/internal/db"
	"github.com/Kocoro-lab/deepresearch/internal/embeddings"
	"github.com/Kocoro-lab/deepresearch/internal/health"
	"github.com/Kocoro-lab/deepresearch/internal/knowledge"
	"github.com/Kocoro-lab/deepresearch/internal/llm"
	"github.com/Kocoro-lab/deepresearch/internal/llm/anthropic"
	"github.com/Kocoro-lab/deepresearch/internal/llm/openai"
	"github.com/Kocoro-lab/deepresearch/internal/research"
	"github.com/Kocoro-lab/deepresearch/internal/session"
	"github.com/Kocoro-lab/deepresearch/internal/streaming"
	"github.com/Kocoro-lab/deepresearch/internal/tools/localfs"
	"github.com/Kocoro-lab/deepresearch/internal/tools/sandbox"
	"github.com/Kocoro-lab/deepresearch/internal/tools/tavily"
	"github.com/Kocoro-lab/deepresearch/internal/vectordb"
)

// BuildOptions adjust how Build wires the runtime.
type BuildOptions struct {
	// InMemory keeps sessions and streams in process even when Redis is
	// configured. The CLI uses it for single-shot runs.
	InMemory bool
	// Emitters receive every progress event next to the stream manager.
	Emitters []research.Emitter
	// LLM replaces the configured provider.
	LLM llm.Client
}

// Components holds the long-lived dependencies shared by the worker and
// the CLI. Optional parts are nil when not configured.
type Components struct {
	Config    *config.Config
	LLM       llm.Client
	Pipeline  *research.Pipeline
	Store     research.Store
	Streams   *streaming.Manager
	Emitter   research.Emitter
	Redis     *circuitbreaker.RedisWrapper
	DB        *db.Client
	Reports   *db.ReportStore
	Knowledge *knowledge.Index
	Vector    *vectordb.Client

	logger  *zap.Logger
	closers []func() error
}

// Build wires the research runtime described by cfg. On error everything
// opened so far is closed.
func Build(ctx context.Context, cfg *config.Config, opts BuildOptions, logger *zap.Logger) (_ *Components, err error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Components{Config: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	if err := c.initState(ctx, opts.InMemory); err != nil {
		return nil, err
	}

	var recorder research.Emitter
	if cfg.DatabaseEnabled() {
		dbc, err := db.NewClient(ctx, cfg.Database, logger.Named("db"))
		if err != nil {
			return nil, fmt.Errorf("init database: %w", err)
		}
		c.DB = dbc
		c.closers = append(c.closers, dbc.Close)
		c.Reports = db.NewReportStore(dbc)
		recorder = db.NewEventRecorder(dbc)
	}

	emitters := research.MultiEmitter{c.Streams}
	if recorder != nil {
		emitters = append(emitters, recorder)
	}
	emitters = append(emitters, opts.Emitters...)
	c.Emitter = emitters

	c.LLM = opts.LLM
	if c.LLM == nil {
		if c.LLM, err = NewLLMClient(cfg.LLM, logger); err != nil {
			return nil, err
		}
	}

	toolbox, err := c.buildToolbox(ctx)
	if err != nil {
		return nil, err
	}

	prompts := research.DefaultPrompts()
	if cfg.Prompts.File != "" {
		if prompts, err = research.LoadPromptsFromFile(cfg.Prompts.File); err != nil {
			return nil, err
		}
	}

	factory := agents.NewFactory(c.LLM, toolbox, prompts, cfg.Workers, c.Emitter, logger.Named("agents"))
	var archiver research.Archiver
	if c.Reports != nil {
		archiver = c.Reports
	}
	c.Pipeline = research.NewPipeline(research.Deps{
		LLM:      c.LLM,
		Workers:  factory,
		Store:    c.Store,
		Archiver: archiver,
		Emitter:  c.Emitter,
		Prompts:  prompts,
		Logger:   logger.Named("research"),
		Limits:   cfg.Research,
	})
	return c, nil
}

func (c *Components) initState(ctx context.Context, inMemory bool) error {
	cfg := c.Config
	streamOpts := []streaming.Option{
		streaming.WithCapacity(cfg.Streaming.Capacity),
		streaming.WithTTL(cfg.Streaming.TTL),
	}
	if inMemory || cfg.Redis.Addr == "" {
		c.Store = research.NewMemoryStore()
		c.Streams = streaming.NewManager(nil, c.logger.Named("streaming"), streamOpts...)
		return nil
	}

	rc := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	c.Redis = circuitbreaker.NewRedisWrapper(rc, "redis", c.logger)
	c.closers = append(c.closers, c.Redis.Close)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Redis.Ping(pingCtx); err != nil {
		return fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
	}
	c.Store = session.NewRedisStore(c.Redis, session.Options{
		TTL:       cfg.Session.TTL,
		CacheTTL:  cfg.Session.CacheTTL,
		MaxCached: cfg.Session.MaxCached,
	}, c.logger.Named("session"))
	c.Streams = streaming.NewManager(rc, c.logger.Named("streaming"), streamOpts...)
	c.logger.Info("Using Redis for sessions and streams", zap.String("addr", cfg.Redis.Addr))
	return nil
}

func (c *Components) buildToolbox(ctx context.Context) (agents.Toolbox, error) {
	cfg := c.Config
	var tb agents.Toolbox

	if cfg.Search.APIKey != "" {
		search, err := tavily.New(cfg.Search, nil, c.logger.Named("tavily"))
		if err != nil {
			return tb, err
		}
		tb.Search = search
	} else {
		c.logger.Warn("No search API key configured; researchers run without web search")
	}

	tb.Sandbox = sandbox.New(cfg.Sandbox, c.logger.Named("sandbox"))

	if cfg.Files.Root != "" {
		files, err := localfs.New(cfg.Files.Root, cfg.Files.MaxBytes)
		if err != nil {
			return tb, fmt.Errorf("open files root: %w", err)
		}
		c.closers = append(c.closers, files.Close)
		tb.Files = files
	}

	if cfg.Vector.Enabled {
		index, err := c.buildKnowledge(ctx)
		if err != nil {
			return tb, err
		}
		tb.Index = index
	}
	return tb, nil
}

func (c *Components) buildKnowledge(ctx context.Context) (*knowledge.Index, error) {
	index, vc, err := NewKnowledge(ctx, c.Config, c.Redis, c.logger)
	if err != nil {
		return nil, err
	}
	c.Vector = vc
	c.Knowledge = index
	return index, nil
}

// NewKnowledge builds the retrieval index over the configured vector store.
// rw may be nil, in which case embeddings are only cached in process.
func NewKnowledge(ctx context.Context, cfg *config.Config, rw *circuitbreaker.RedisWrapper, logger *zap.Logger) (*knowledge.Index, *vectordb.Client, error) {
	if !cfg.Vector.Enabled {
		return nil, nil, errors.New("vector store is disabled (set vector.enabled)")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	vc := vectordb.NewClient(cfg.Vector, nil, logger.Named("vectordb"))
	if err := vc.ValidateEmbeddingDimensions(ctx); err != nil {
		return nil, nil, err
	}

	var cache embeddings.EmbeddingCache
	if rw != nil {
		rc, err := embeddings.NewRedisCache(ctx, rw)
		if err != nil {
			logger.Warn("Embeddings Redis cache unavailable; using local LRU only", zap.Error(err))
		} else {
			cache = rc
		}
	}
	svc := embeddings.NewService(cfg.Embeddings, embeddings.NewOpenAIProvider(cfg.Embeddings), cache, logger.Named("embeddings"))
	index := knowledge.New(svc, vc, knowledge.OptionsFrom(cfg.Vector, cfg.Embeddings), logger.Named("knowledge"))
	return index, vc, nil
}

// NewLLMClient builds the configured provider, rate limited and
// instrumented.
func NewLLMClient(cfg config.LLMConfig, logger *zap.Logger) (llm.Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: no API key for provider %q", cfg.Provider)
	}
	var base llm.Client
	switch cfg.Provider {
	case config.ProviderAnthropic:
		var opts []anthropicopt.RequestOption
		if cfg.BaseURL != "" {
			opts = append(opts, anthropicopt.WithBaseURL(cfg.BaseURL))
		}
		if cfg.Timeout > 0 {
			opts = append(opts, anthropicopt.WithRequestTimeout(cfg.Timeout))
		}
		base = anthropic.New(cfg.APIKey, cfg.Model, opts...)
	case config.ProviderOpenAI:
		var opts []openaiopt.RequestOption
		if cfg.BaseURL != "" {
			opts = append(opts, openaiopt.WithBaseURL(cfg.BaseURL))
		}
		if cfg.Timeout > 0 {
			opts = append(opts, openaiopt.WithRequestTimeout(cfg.Timeout))
		}
		base = openai.New(cfg.APIKey, cfg.Model, opts...)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
	return llm.NewInstrumented(llm.NewRateLimited(base, cfg.RequestsPerMinute, cfg.Burst), logger.Named("llm")), nil
}

// NewActivities binds the session activities to this runtime.
func (c *Components) NewActivities() *activities.ResearchActivities {
	return activities.NewResearchActivities(c.Pipeline, c.Store, c.Emitter, c.logger.Named("activities"))
}

// RegisterHealthCheckers adds a checker per configured dependency.
func (c *Components) RegisterHealthCheckers(hm *health.Manager) {
	if c.Redis != nil {
		_ = hm.RegisterChecker(health.NewRedisHealthChecker(c.Redis, c.logger))
	}
	if c.DB != nil {
		_ = hm.RegisterChecker(health.NewDatabaseHealthChecker(c.DB.Wrapper(), false, c.logger))
	}
	if c.Vector != nil {
		_ = hm.RegisterChecker(health.NewVectorStoreHealthChecker(c.Vector))
	}
	_ = hm.RegisterChecker(health.NewCircuitBreakerChecker())
}

// Close releases everything Build opened, newest first.
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
