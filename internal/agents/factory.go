package agents

import (
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/deepresearch/internal/llm"
	"github.com/Kocoro-lab/deepresearch/internal/research"
	"github.com/Kocoro-lab/deepresearch/internal/tools"
)

// Toolbox holds the optional capabilities offered to workers. A nil field
// hides the corresponding tool.
type Toolbox struct {
	Search  tools.Searcher
	Files   tools.FileReader
	Index   tools.KnowledgeIndex
	Sandbox tools.Sandbox
}

// Config bounds worker loops.
type Config struct {
	ResearcherMaxRounds int  `mapstructure:"researcher_max_rounds" json:"researcher_max_rounds"`
	AnalystMaxRounds    int  `mapstructure:"analyst_max_rounds" json:"analyst_max_rounds"`
	SearchMaxResults    int  `mapstructure:"search_max_results" json:"search_max_results"`
	IndexMaxResults     int  `mapstructure:"index_max_results" json:"index_max_results"`
	SummarizeRawContent bool `mapstructure:"summarize_raw_content" json:"summarize_raw_content"`
}

// DefaultConfig returns the stock worker limits.
func DefaultConfig() Config {
	return Config{
		ResearcherMaxRounds: 8,
		AnalystMaxRounds:    6,
		SearchMaxResults:    3,
		IndexMaxResults:     5,
		SummarizeRawContent: true,
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.ResearcherMaxRounds <= 0 {
		c.ResearcherMaxRounds = d.ResearcherMaxRounds
	}
	if c.AnalystMaxRounds <= 0 {
		c.AnalystMaxRounds = d.AnalystMaxRounds
	}
	if c.SearchMaxResults <= 0 {
		c.SearchMaxResults = d.SearchMaxResults
	}
	if c.IndexMaxResults <= 0 {
		c.IndexMaxResults = d.IndexMaxResults
	}
	return c
}

// Factory builds fresh workers per dispatch.
type Factory struct {
	client  llm.Client
	toolbox Toolbox
	prompts *research.Prompts
	cfg     Config
	emitter research.Emitter
	logger  *zap.Logger
	now     func() time.Time
}

// NewFactory wires workers to their model and tools.
func NewFactory(client llm.Client, toolbox Toolbox, prompts *research.Prompts, cfg Config, emitter research.Emitter, logger *zap.Logger) *Factory {
	if prompts == nil {
		prompts = research.DefaultPrompts()
	}
	if emitter == nil {
		emitter = research.NopEmitter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{
		client:  client,
		toolbox: toolbox,
		prompts: prompts,
		cfg:     cfg.normalized(),
		emitter: emitter,
		logger:  logger,
		now:     time.Now,
	}
}

func (f *Factory) NewResearcher(id research.WorkerID) research.Researcher {
	name := WorkerName(RoleResearcher, id)
	return &Researcher{
		name:    name,
		client:  f.client,
		toolbox: f.toolbox,
		prompts: f.prompts,
		cfg:     f.cfg,
		emitter: f.emitter,
		session: id.SessionID,
		logger:  f.logger.With(zap.String("worker", name)),
		now:     f.now,
	}
}

func (f *Factory) NewAnalyst(id research.WorkerID) research.Analyst {
	name := WorkerName(RoleAnalyst, id)
	return &Analyst{
		name:    name,
		client:  f.client,
		sandbox: f.toolbox.Sandbox,
		prompts: f.prompts,
		cfg:     f.cfg,
		emitter: f.emitter,
		session: id.SessionID,
		logger:  f.logger.With(zap.String("worker", name)),
		now:     f.now,
	}
}

// toolDefinitions lists the tools backed by a non-nil capability.
func (r *Researcher) toolDefinitions() []llm.ToolDefinition {
	var defs []llm.ToolDefinition
	if r.toolbox.Search != nil {
		defs = append(defs, llm.ToolDefinition{
			Name:        ToolSearch,
			Description: "Search the web for current information. Returns summarized sources.",
			Parameters: llm.Schema{
				Properties: map[string]llm.Property{"query": {Type: "string", Description: "Search query"}},
				Required:   []string{"query"},
			},
		})
	}
	if r.toolbox.Files != nil {
		defs = append(defs, llm.ToolDefinition{
			Name:        ToolReadFile,
			Description: "Read a local document by path.",
			Parameters: llm.Schema{
				Properties: map[string]llm.Property{"file_path": {Type: "string", Description: "Path relative to the document root"}},
				Required:   []string{"file_path"},
			},
		})
	}
	if r.toolbox.Index != nil {
		defs = append(defs, llm.ToolDefinition{
			Name:        ToolQueryIndex,
			Description: "Look up relevant passages in the knowledge index.",
			Parameters: llm.Schema{
				Properties: map[string]llm.Property{"query": {Type: "string", Description: "Natural language query"}},
				Required:   []string{"query"},
			},
		})
	}
	defs = append(defs, llm.ToolDefinition{
		Name:        ToolReflect,
		Description: "Record a reflection on progress and next steps.",
		Parameters: llm.Schema{
			Properties: map[string]llm.Property{"reflection": {Type: "string", Description: "Your reflection"}},
			Required:   []string{"reflection"},
		},
	})
	return defs
}
