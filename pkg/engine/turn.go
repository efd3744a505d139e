package engine

import (
	"context"
	"time"

	"github.com/roo-code/conversation-memory/pkg/extract"
	"github.com/roo-code/conversation-memory/pkg/memmodel"
)

// TurnInput is what a host passes to OnTurn after one assistant turn.
// ConversationID and SourceModel are optional provenance; Tool is nil
// unless the turn was produced by a tool invocation.
type TurnInput struct {
	Message        memmodel.Message
	Tool           *memmodel.ToolInvocation
	ConversationID string
	SourceModel    string
}

// OnTurn ingests one turn: appends it to the durable message history,
// re-runs episode detection over the full history, and — if this turn's
// role and the trigger cadence call for it — extracts facts from the
// windowed tail of that history and applies the resulting MemoryActions.
// A turn that yields zero facts, or whose
// extraction fails outright, still completes successfully: per §7,
// extraction and ingestion errors never crash the turn. Only a failure
// applying an already-resolved action to the store propagates, since that
// is a store-provider failure the host may want to retry.
func (e *Engine) OnTurn(ctx context.Context, in TurnInput) error {
	if !e.cfg.ConversationMemoryEnabled {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.toIndexing("ingesting turn")

	e.messages = append(e.messages, in.Message)

	// Detect always sees the full durable history, never just the
	// extraction window: episode.DefaultConfig's MaxMessages (25) lets an
	// open episode legitimately outgrow ExtractionWindow.WindowSize (20)
	// before any heuristic/semantic breakpoint fires, and buildEpisode
	// derives EpisodeAnchorID from the episode's first message — feeding
	// it a buffer already truncated to WindowSize would silently change
	// that anchor and break episode ID stability (spec Testable Property
	// #2) under ordinary default configuration, not just as an edge case.
	episodes, err := e.detector.Detect(ctx, e.messages, e.cfg.WorkspaceID, &e.cfg.ProjectContext)
	if err != nil {
		// Detect currently never returns a non-nil error, but it has an
		// error in its signature — honor it defensively.
		wrapped := memmodel.WrapErr("engine.OnTurn", err)
		e.state.toError(wrapped)
		return wrapped
	}
	if len(episodes) > 0 {
		e.currentEpisodeID = episodes[len(episodes)-1].EpisodeID
	}

	if !e.shouldExtract(in.Message.Role) {
		e.state.toIndexed("turn recorded")
		return nil
	}

	now := time.Now()
	if !e.budget.allow(now, e.cfg.ExtractionCostEstimateUSD) {
		e.logger.Debug("daily processing budget exceeded, skipping extraction")
		e.state.toIndexed("turn recorded, extraction skipped (budget)")
		return nil
	}

	e.emitEvent(Event{Kind: EventExtractStarted})
	window := extract.Window{Messages: e.extractionWindowMessages(), Tool: in.Tool}
	actions, extractErr := e.extractor.ExtractTurn(ctx, window, extract.TurnMeta{
		WorkspaceID:    e.cfg.WorkspaceID,
		WorkspacePath:  e.cfg.WorkspacePath,
		ProjectContext: e.cfg.ProjectContext,
		ConversationID: in.ConversationID,
		EpisodeID:      e.currentEpisodeID,
		SourceModel:    in.SourceModel,
		Now:            now,
	})
	if extractErr != nil {
		e.emitEvent(Event{Kind: EventExtractFailed, Err: extractErr})
		e.logger.Warn("fact extraction failed, continuing with turn", "error", extractErr)
	} else {
		e.emitEvent(Event{Kind: EventExtractCompleted})
	}

	if len(actions) > 0 {
		if err := e.applyActions(ctx, actions); err != nil {
			wrapped := memmodel.WrapErr("engine.OnTurn", err)
			e.state.toError(wrapped)
			return wrapped
		}
	}

	e.state.toIndexed("turn ingested")
	return nil
}

// extractionWindowMessages returns the tail of the durable history bounded
// by ExtractionWindow.WindowSize — the prompt budget this spec's
// WindowSize knob was meant to bound, as distinct from episode detection's
// own MaxMessages bound over the full history.
func (e *Engine) extractionWindowMessages() []memmodel.Message {
	max := e.cfg.ExtractionWindow.WindowSize
	if max <= 0 || len(e.messages) <= max {
		return e.messages
	}
	return e.messages[len(e.messages)-max:]
}

// shouldExtract reports whether this turn's role counts toward the
// extraction trigger and, if so, advances the counter and fires on the
// configured cadence — the teacher's roleMatches + TriggerEvery counter,
// generalized from per-message to per-turn.
func (e *Engine) shouldExtract(role memmodel.Role) bool {
	if !roleMatches(role, e.cfg.ExtractionWindow.RoleFilter) {
		return false
	}
	e.turnCounter++
	every := e.cfg.ExtractionWindow.TriggerEvery
	if every <= 0 {
		every = 1
	}
	if e.turnCounter < every {
		return false
	}
	e.turnCounter = 0
	return true
}

// roleMatches reports whether role should count toward the trigger.
// filter == nil or empty means every role matches.
func roleMatches(role memmodel.Role, filter []memmodel.Role) bool {
	if len(filter) == 0 {
		return true
	}
	for _, r := range filter {
		if r == role {
			return true
		}
	}
	return false
}
