package engine

import "context"

// Finalize flushes any in-flight work for this workspace's session. OnTurn
// is synchronous, so there is nothing queued to flush — Finalize only
// releases the durable message history. Idempotent; never returns an
// error, per the spec's "must never throw" requirement.
func (e *Engine) Finalize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.emitEvent(Event{Kind: EventSyncStarted})
	e.messages = nil
	e.currentEpisodeID = ""
	e.emitEvent(Event{Kind: EventSyncCompleted})
	return nil
}
