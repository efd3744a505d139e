package engine

import (
	"context"

	"github.com/roo-code/conversation-memory/pkg/search"
)

// Search embeds query, fetches candidate facts scoped to this workspace,
// and returns episode-grouped results ranked by relevance (C6). When the
// conversationMemoryEnabled master switch is off, Search returns an empty
// result without touching the store. limit <= 0 falls back to
// MemoryToolDefaultLimit.
func (e *Engine) Search(ctx context.Context, query string, limit int) ([]search.EpisodeSearchResult, error) {
	if !e.cfg.ConversationMemoryEnabled {
		return nil, nil
	}
	if limit <= 0 {
		limit = e.cfg.MemoryToolDefaultLimit
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.toIndexing("searching")
	e.emitEvent(Event{Kind: EventSearchStarted})

	results, err := e.searchSvc.SearchByEpisode(ctx, query, limit)
	if err != nil {
		e.emitEvent(Event{Kind: EventSearchFailed, Err: err})
		e.state.toError(err)
		return nil, err
	}

	e.emitEvent(Event{Kind: EventSearchCompleted})
	e.state.toIndexed("search completed")
	return results, nil
}
