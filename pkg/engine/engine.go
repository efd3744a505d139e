// Package engine implements the Orchestrator (C7) and StateManager (C8):
// the per-workspace entry point that wires TemporalScorer, ConflictResolver,
// EpisodeDetector/ContextGenerator, FactExtractor, and EpisodeSearchService
// together behind onTurn / search / clear / finalize.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/roo-code/conversation-memory/pkg/episode"
	"github.com/roo-code/conversation-memory/pkg/extract"
	"github.com/roo-code/conversation-memory/pkg/memmodel"
	"github.com/roo-code/conversation-memory/pkg/resolver"
	"github.com/roo-code/conversation-memory/pkg/search"
	"github.com/roo-code/conversation-memory/pkg/temporal"
)

// ExtractionWindow carries forward the teacher's auto-retain trigger
// knobs (AutoRetainConfig.WindowSize/TriggerEvery/RoleFilter) as the
// mechanism behind OnTurn: WindowSize bounds only the message window fed
// to the extraction prompt (episode detection always sees the full
// durable history, never this window — see turn.go), TriggerEvery fires
// extraction every Nth matching-role turn, and RoleFilter restricts which
// roles count toward the trigger (empty means every role counts).
type ExtractionWindow struct {
	WindowSize   int
	TriggerEvery int
	RoleFilter   []memmodel.Role
}

// Config constructs an Engine. Zero value is invalid; build with
// DefaultConfig and override selectively.
type Config struct {
	WorkspaceID    string
	WorkspacePath  string
	ProjectContext memmodel.ProjectContext

	Store    memmodel.VectorStore
	Embedder memmodel.Embedder
	LLM      memmodel.LlmProvider
	Logger   memmodel.Logger
	Hints    episode.HintsProvider
	Reranker search.RerankerFn

	Temporal temporal.Config
	Resolver resolver.Config
	Episode  episode.Config
	Context  episode.ContextConfig
	Extract  extract.Config

	ExtractionWindow ExtractionWindow

	// ConversationMemoryEnabled is the master switch; when off, OnTurn is
	// a no-op and Search returns an empty result without touching the
	// store.
	ConversationMemoryEnabled bool

	// MemoryToolDefaultLimit is the default search k surfaced to tools
	// when a caller passes limit <= 0.
	MemoryToolDefaultLimit int

	// DailyProcessingBudgetUSD is an advisory cap on estimated extraction
	// spend per UTC day; once exceeded, extraction is skipped but the
	// turn still completes successfully. A value <= 0 disables the cap.
	DailyProcessingBudgetUSD float64

	// ExtractionCostEstimateUSD is the flat per-extraction cost charged
	// against DailyProcessingBudgetUSD.
	ExtractionCostEstimateUSD float64

	// ArtifactDir is the per-workspace ".roo-memory/" directory of
	// best-effort cached artifacts, removed on Clear. Empty disables
	// artifact-directory handling entirely.
	ArtifactDir string
}

// DefaultConfig returns the specification's defaults for a workspace
// identified by workspaceID/workspacePath. Store, Embedder, and LLM are
// left nil — callers must supply them before calling New.
func DefaultConfig(workspaceID, workspacePath string) Config {
	return Config{
		WorkspaceID:   workspaceID,
		WorkspacePath: workspacePath,
		Logger:        memmodel.NopLogger(),

		Temporal: temporal.DefaultConfig(),
		Resolver: resolver.DefaultConfig(),
		Episode:  episode.DefaultConfig(),
		Context:  episode.DefaultContextConfig(),
		Extract:  extract.DefaultConfig(),

		ExtractionWindow: ExtractionWindow{
			WindowSize:   20,
			TriggerEvery: 1,
			RoleFilter:   []memmodel.Role{memmodel.RoleAssistant},
		},

		ConversationMemoryEnabled: false,
		MemoryToolDefaultLimit:    10,
		DailyProcessingBudgetUSD:  1.0,
		ExtractionCostEstimateUSD: 0.01,
		ArtifactDir:               ".roo-memory",
	}
}

// Option mutates a Config at construction time, mirroring the pack's
// ConfigOption pattern (pkg/semantic-router).
type Option func(*Config)

func WithLLM(llm memmodel.LlmProvider) Option {
	return func(c *Config) { c.LLM = llm }
}

func WithLogger(logger memmodel.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

func WithHints(hints episode.HintsProvider) Option {
	return func(c *Config) { c.Hints = hints }
}

func WithReranker(fn search.RerankerFn) Option {
	return func(c *Config) { c.Reranker = fn }
}

func WithConversationMemoryEnabled(enabled bool) Option {
	return func(c *Config) { c.ConversationMemoryEnabled = enabled }
}

func WithMemoryToolDefaultLimit(limit int) Option {
	return func(c *Config) { c.MemoryToolDefaultLimit = limit }
}

func WithDailyProcessingBudgetUSD(usd float64) Option {
	return func(c *Config) { c.DailyProcessingBudgetUSD = usd }
}

func WithExtractionWindow(w ExtractionWindow) Option {
	return func(c *Config) { c.ExtractionWindow = w }
}

func WithArtifactDir(dir string) Option {
	return func(c *Config) { c.ArtifactDir = dir }
}

// Engine is the per-workspace Orchestrator (C7). Its public methods
// serialize against a single mutex: per §5, every externally-observable
// state transition for one workspace instance is serialized, even though
// nothing here forbids an implementation from using goroutines internally.
type Engine struct {
	cfg    Config
	logger memmodel.Logger

	scorer     *temporal.Scorer
	resolver   *resolver.Resolver
	contextGen *episode.ContextGenerator
	detector   *episode.Detector
	extractor  *extract.Extractor
	searchSvc  *search.Service

	state  *stateManager
	events *eventBus
	budget *dailyCostTracker

	mu sync.Mutex
	// messages is the full durable conversation history for this
	// workspace session, never truncated by ExtractionWindow.WindowSize —
	// see turn.go's extractionWindowMessages for the windowed view that
	// is. Reset by Clear/Finalize.
	messages         []memmodel.Message
	currentEpisodeID string
	turnCounter      int
}

// New builds an Engine from cfg plus opts, ensuring the backing collection
// exists before returning. A missing workspace path, store, or embedder is
// a WorkspaceMisconfig: fatal at construction, per §7.
func New(cfg Config, opts ...Option) (*Engine, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.WorkspacePath == "" {
		return nil, memmodel.WrapErr("engine.New", memmodel.ErrWorkspaceMisconfig)
	}
	if cfg.Store == nil || cfg.Embedder == nil {
		return nil, memmodel.WrapErr("engine.New", memmodel.ErrWorkspaceMisconfig)
	}
	if cfg.Logger == nil {
		cfg.Logger = memmodel.NopLogger()
	}
	if cfg.MemoryToolDefaultLimit <= 0 {
		cfg.MemoryToolDefaultLimit = 10
	}

	ctx := context.Background()
	if err := cfg.Store.EnsureCollection(ctx); err != nil {
		return nil, memmodel.WrapErr("engine.New", err)
	}

	res := resolver.New(cfg.Store, cfg.Resolver)
	contextGen := episode.NewContextGenerator(cfg.LLM, cfg.Hints, cfg.Logger, cfg.Context)
	detector := episode.New(cfg.Embedder, cfg.LLM, contextGen, cfg.Logger, cfg.Episode)
	extractor := extract.New(cfg.LLM, cfg.Embedder, res, cfg.Logger, cfg.Extract)
	searchSvc := search.New(cfg.Store, cfg.Embedder, cfg.WorkspacePath)
	if cfg.Reranker != nil {
		searchSvc.SetReranker(cfg.Reranker)
	}

	return &Engine{
		cfg:        cfg,
		logger:     cfg.Logger,
		scorer:     temporal.New(cfg.Temporal),
		resolver:   res,
		contextGen: contextGen,
		detector:   detector,
		extractor:  extractor,
		searchSvc:  searchSvc,
		state:      newStateManager(),
		events:     &eventBus{},
		budget:     newDailyCostTracker(cfg.DailyProcessingBudgetUSD),
	}, nil
}

// State returns the orchestrator's current lifecycle state (C8).
func (e *Engine) State() State {
	return e.state.State()
}

// OnProgress subscribes obs to C8 lifecycle transitions and returns an
// unsubscribe function.
func (e *Engine) OnProgress(obs Observer) func() {
	return e.state.Subscribe(obs)
}

// OnEvent subscribes obs to the observable-operations taxonomy (§6) and
// returns an unsubscribe function.
func (e *Engine) OnEvent(obs EventObserver) func() {
	return e.events.Subscribe(obs)
}

func (e *Engine) emitEvent(ev Event) {
	e.events.emit(ev)
}

// ScoreFact exposes TemporalScorer (C1) directly, for hosts that want a
// fact's current relevance outside of a search call (e.g. a tool rendering
// a single fact's freshness).
func (e *Engine) ScoreFact(fact *memmodel.ConversationFact, now time.Time) float64 {
	return e.scorer.Score(fact, now)
}
