package episode

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roo-code/conversation-memory/pkg/memmodel"
)

// Hints is pluggable, workspace-derived colour the context prompt can lean
// on — dependency names, tags, directory names, free-form extras. A host
// with no hints to offer returns a zero-value Hints; the generator copes.
type Hints struct {
	Deps  []string
	Tags  []string
	Dirs  []string
	Extra []string
}

// HintsProvider supplies Hints for a workspace. Implementations are
// expected to be fast and best-effort; a failing provider degrades the
// prompt, never the caller.
type HintsProvider interface {
	Hints(ctx context.Context, workspaceID string) (Hints, error)
}

// ContextConfig parameterises EpisodeContextGenerator. Zero value is
// invalid; use DefaultContextConfig.
type ContextConfig struct {
	MaxHintDeps     int
	MaxHintTags     int
	MaxHintDirs     int
	MaxHintExtra    int
	MaxMessageChars int
	Temperature     float64
	MaxTokens       int
}

// DefaultContextConfig matches the prompt-shape defaults from the
// specification.
func DefaultContextConfig() ContextConfig {
	return ContextConfig{
		MaxHintDeps:     5,
		MaxHintTags:     5,
		MaxHintDirs:     5,
		MaxHintExtra:    3,
		MaxMessageChars: 300,
		Temperature:     0.2,
		MaxTokens:       80,
	}
}

// ContextGenerator produces a short natural-language label for an
// episode, degrading gracefully to a generic placeholder whenever the LLM
// is unavailable or returns something unusable.
type ContextGenerator struct {
	llm    memmodel.LlmProvider
	hints  HintsProvider
	logger memmodel.Logger
	cfg    ContextConfig
}

// NewContextGenerator builds a ContextGenerator. hints and logger may be
// nil; a nil logger falls back to memmodel.NopLogger.
func NewContextGenerator(llm memmodel.LlmProvider, hints HintsProvider, logger memmodel.Logger, cfg ContextConfig) *ContextGenerator {
	if cfg == (ContextConfig{}) {
		cfg = DefaultContextConfig()
	}
	if logger == nil {
		logger = memmodel.NopLogger()
	}
	return &ContextGenerator{llm: llm, hints: hints, logger: logger, cfg: cfg}
}

// Describe returns a label of roughly ten words or fewer describing
// messages. It never returns an empty string and never returns an error —
// any failure degrades to "Episode with N messages".
func (g *ContextGenerator) Describe(ctx context.Context, messages []memmodel.Message, workspaceID string, proj *memmodel.ProjectContext) string {
	fallback := fmt.Sprintf("Episode with %d messages", len(messages))
	if g.llm == nil || len(messages) == 0 {
		return fallback
	}

	prompt := g.buildPrompt(ctx, messages, workspaceID, proj)

	raw, err := g.llm.GenerateJSON(ctx, prompt, memmodel.GenOptions{
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
	})
	if err != nil {
		g.logger.Debug("episode context generation failed, using fallback", "error", err)
		return fallback
	}

	desc := parseDescription(raw)
	desc = strings.TrimSpace(desc)
	if desc == "" {
		g.logger.Debug("episode context generation returned no usable description, using fallback")
		return fallback
	}
	return desc
}

func (g *ContextGenerator) buildPrompt(ctx context.Context, messages []memmodel.Message, workspaceID string, proj *memmodel.ProjectContext) string {
	var b strings.Builder

	if proj != nil {
		fmt.Fprintf(&b, "Project: %s", proj.WorkspaceName)
		if proj.Language != "" {
			fmt.Fprintf(&b, " (%s", proj.Language)
			if proj.Framework != "" {
				fmt.Fprintf(&b, ", %s", proj.Framework)
			}
			b.WriteString(")")
		}
		b.WriteString("\n")
	}

	if g.hints != nil {
		if hints, err := g.hints.Hints(ctx, workspaceID); err == nil {
			writeHintLine(&b, "Dependencies", hints.Deps, g.cfg.MaxHintDeps)
			writeHintLine(&b, "Tags", hints.Tags, g.cfg.MaxHintTags)
			writeHintLine(&b, "Directories", hints.Dirs, g.cfg.MaxHintDirs)
			writeHintLine(&b, "Notes", hints.Extra, g.cfg.MaxHintExtra)
		}
	}

	b.WriteString("Conversation:\n")
	for _, m := range messages {
		content := m.Content
		if len(content) > g.cfg.MaxMessageChars {
			content = content[:g.cfg.MaxMessageChars]
		}
		fmt.Fprintf(&b, "%s: %s\n", m.Role, content)
	}

	b.WriteString(`Summarize this conversation in ten words or fewer. ` +
		`Return a single JSON object {"description": "..."}. No prose, no markdown fences.`)

	return b.String()
}

func writeHintLine(b *strings.Builder, label string, values []string, max int) {
	if len(values) == 0 {
		return
	}
	if len(values) > max {
		values = values[:max]
	}
	fmt.Fprintf(b, "%s: %s\n", label, strings.Join(values, ", "))
}

type descriptionPayload struct {
	Description string `json:"description"`
	Summary     string `json:"summary"`
}

// parseDescription accepts either the documented {"description": "..."}
// shape or a {"summary": "..."} fallback some prompts drift toward.
func parseDescription(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var payload descriptionPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		slog.Debug("episode context JSON parse failed", "error", err)
		return ""
	}
	if payload.Description != "" {
		return payload.Description
	}
	return payload.Summary
}
