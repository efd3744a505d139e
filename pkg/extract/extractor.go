// Package extract implements C5: turning a window of recent conversation
// into durable facts, and C2's hookup — sending each fact through conflict
// resolution to produce the MemoryActions the orchestrator applies.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/roo-code/conversation-memory/pkg/memmodel"
	"github.com/roo-code/conversation-memory/pkg/resolver"
)

// Config parameterises prompt assembly and generation. Zero value is
// invalid; use DefaultConfig.
type Config struct {
	PromptBudgetTokens int
	DropOrder          DropOrder
	Temperature        float64
	MaxTokens          int
	// LLMTimeout bounds each generation call; on expiry the turn yields
	// zero facts rather than an error, per the adapter timeout contract.
	LLMTimeout time.Duration
}

// DefaultConfig returns the extraction defaults.
func DefaultConfig() Config {
	return Config{
		PromptBudgetTokens: 400,
		DropOrder:          DropOldestFirst,
		Temperature:        0.1,
		MaxTokens:          1000,
		LLMTimeout:         30 * time.Second,
	}
}

// TurnMeta is the provenance attached to every fact extracted from one
// turn.
type TurnMeta struct {
	WorkspaceID    string
	WorkspacePath  string
	ProjectContext memmodel.ProjectContext
	ConversationID string
	EpisodeID      string
	SourceModel    string
	Now            time.Time
}

type rawFact struct {
	Content    string  `json:"content"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

type rawExtraction struct {
	Facts []rawFact `json:"facts"`
}

// Extractor turns a conversation window into MemoryActions.
type Extractor struct {
	llm      memmodel.LlmProvider
	embedder memmodel.Embedder
	resolver *resolver.Resolver
	logger   memmodel.Logger
	cfg      Config
}

// New builds an Extractor.
func New(llm memmodel.LlmProvider, embedder memmodel.Embedder, resolver *resolver.Resolver, logger memmodel.Logger, cfg Config) *Extractor {
	if cfg.PromptBudgetTokens == 0 {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = memmodel.NopLogger()
	}
	return &Extractor{llm: llm, embedder: embedder, resolver: resolver, logger: logger, cfg: cfg}
}

// ExtractTurn processes one assistant turn: assembling the prompt, calling
// the LLM, parsing and validating facts, embedding them, and resolving
// each into a MemoryAction. A turn that yields zero facts is a normal,
// non-error outcome — the returned slice is simply empty. Embedding
// failures skip only the affected fact and are reported via the returned
// error; everything that succeeded is still returned.
func (e *Extractor) ExtractTurn(ctx context.Context, window Window, meta TurnMeta) ([]memmodel.MemoryAction, error) {
	if e.llm == nil {
		return nil, nil
	}

	prompt := buildPrompt(e.cfg, window)

	callCtx := ctx
	var cancel context.CancelFunc
	if e.cfg.LLMTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, e.cfg.LLMTimeout)
		defer cancel()
	}

	raw, err := e.llm.GenerateJSON(callCtx, prompt, memmodel.GenOptions{
		Temperature: e.cfg.Temperature,
		MaxTokens:   e.cfg.MaxTokens,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			e.logger.Debug("fact extraction timed out, yielding no facts")
			return nil, nil
		}
		return nil, memmodel.WrapErr("extract.ExtractTurn", err)
	}

	facts := parseFacts(raw)
	if len(facts) == 0 {
		return nil, nil
	}

	valid := make([]rawFact, 0, len(facts))
	for _, f := range facts {
		if isValidFact(f) {
			valid = append(valid, f)
		} else {
			e.logger.Debug("dropping invalid extracted fact", "category", f.Category, "confidence", f.Confidence)
		}
	}
	if len(valid) == 0 {
		return nil, nil
	}

	contents := make([]string, len(valid))
	for i, f := range valid {
		contents[i] = f.Content
	}
	embeddings, embedErr := e.embedAll(ctx, contents)

	var actions []memmodel.MemoryAction
	var firstErr error
	for i, f := range valid {
		var embedding []float32
		if embeddings != nil {
			embedding = embeddings[i]
		}
		if len(embedding) == 0 {
			if embedErr != nil && firstErr == nil {
				firstErr = embedErr
			}
			continue
		}

		candidate := &memmodel.ConversationFact{
			CategorizedFactInput: memmodel.CategorizedFactInput{
				Content:       f.Content,
				Category:      memmodel.FactCategory(f.Category),
				Confidence:    f.Confidence,
				Embedding:     embedding,
				ReferenceTime: meta.Now,
				EpisodeID:     meta.EpisodeID,
				SourceModel:   meta.SourceModel,
			},
			IngestionTime:  meta.Now,
			WorkspaceID:    meta.WorkspaceID,
			WorkspacePath:  meta.WorkspacePath,
			ProjectContext: meta.ProjectContext,
			ConversationID: meta.ConversationID,
		}

		acts, err := e.resolver.Resolve(ctx, candidate)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		actions = append(actions, acts...)
	}

	return actions, firstErr
}

// embedAll embeds every content string, batching through EmbedBatch when
// there is more than one and the embedder offers it, falling back to
// per-item Embed otherwise. A per-item failure leaves that slot nil
// without failing its siblings.
func (e *Extractor) embedAll(ctx context.Context, contents []string) ([][]float32, error) {
	if e.embedder == nil {
		return nil, errors.New("extract: no embedder configured")
	}
	if len(contents) == 1 {
		vec, err := e.embedder.Embed(ctx, contents[0])
		if err != nil {
			return [][]float32{nil}, err
		}
		return [][]float32{vec}, nil
	}

	vectors, err := e.embedder.EmbedBatch(ctx, contents)
	if err == nil {
		return vectors, nil
	}

	// Batch failed outright: degrade to per-item embedding so one bad
	// fact doesn't sink the whole turn's extraction.
	out := make([][]float32, len(contents))
	var firstErr error
	for i, c := range contents {
		vec, embedErr := e.embedder.Embed(ctx, c)
		if embedErr != nil {
			if firstErr == nil {
				firstErr = embedErr
			}
			continue
		}
		out[i] = vec
	}
	return out, firstErr
}

// parseFacts parses raw LLM output into facts, stripping markdown fences
// and salvaging the outermost JSON object if strict parsing fails.
// Malformed input yields an empty result, never an error.
func parseFacts(raw string) []rawFact {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var result rawExtraction
	if err := json.Unmarshal([]byte(cleaned), &result); err == nil {
		return result.Facts
	}

	start := strings.IndexByte(cleaned, '{')
	end := strings.LastIndexByte(cleaned, '}')
	if start < 0 || end <= start {
		return nil
	}
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &result); err != nil {
		return nil
	}
	return result.Facts
}

func isValidFact(f rawFact) bool {
	if strings.TrimSpace(f.Content) == "" {
		return false
	}
	if !memmodel.KnownCategory(memmodel.FactCategory(f.Category)) {
		return false
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		return false
	}
	return true
}
