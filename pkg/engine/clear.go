package engine

import (
	"context"
	"errors"
	"os"

	"github.com/roo-code/conversation-memory/pkg/memmodel"
)

// Clear implements clearMemoryData: prefers the store's DeleteCollection,
// falls back to ClearCollection, re-ensures the collection exists for
// subsequent turns/searches, then best-effort removes the on-disk artifact
// directory, and finally resets state to Standby. A StoreDeletionFailed
// error is propagated with state set to Error, preserving the cause.
func (e *Engine) Clear(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.emitEvent(Event{Kind: EventSyncStarted})

	if err := e.clearStore(ctx); err != nil {
		wrapped := memmodel.WrapErr("engine.Clear", err)
		e.emitEvent(Event{Kind: EventSyncFailed, Err: wrapped})
		e.state.toError(wrapped)
		return wrapped
	}

	if e.cfg.ArtifactDir != "" {
		if rmErr := os.RemoveAll(e.cfg.ArtifactDir); rmErr != nil {
			e.logger.Debug("artifact directory removal failed, ignoring", "dir", e.cfg.ArtifactDir, "error", rmErr)
		}
	}

	e.messages = nil
	e.currentEpisodeID = ""
	e.turnCounter = 0

	e.emitEvent(Event{Kind: EventSyncCompleted})
	e.state.toStandby("memory cleared")
	return nil
}

func (e *Engine) clearStore(ctx context.Context) error {
	ok, err := e.cfg.Store.DeleteCollection(ctx)
	if err == nil && ok {
		return e.cfg.Store.EnsureCollection(ctx)
	}
	if err != nil {
		e.logger.Debug("deleteCollection failed, falling back to clearCollection", "error", err)
	}

	ok, err = e.cfg.Store.ClearCollection(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("engine: store does not support clearing its collection")
	}
	return nil
}
