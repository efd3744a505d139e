package engine

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/roo-code/conversation-memory/pkg/memmodel"
)

// applyActions executes the apply-action contract (§4.7) for the
// MemoryActions produced by one turn's conflict resolution, in order.
// Actions from the same turn are applied without anything else landing at
// the VectorStore boundary in between, per the engine's ordering
// guarantees (§5).
func (e *Engine) applyActions(ctx context.Context, actions []memmodel.MemoryAction) error {
	for _, action := range actions {
		if err := e.applyOne(ctx, action); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) applyOne(ctx context.Context, action memmodel.MemoryAction) error {
	now := time.Now()

	switch action.Type {
	case memmodel.ActionAdd:
		return e.insertFact(ctx, action.Fact, now)

	case memmodel.ActionIgnore:
		if len(action.TargetIDs) == 0 {
			return nil
		}
		if err := e.cfg.Store.Update(ctx, action.TargetIDs[0], map[string]string{
			"last_confirmed": now.Format(time.RFC3339),
		}); err != nil {
			return memmodel.WrapErr("engine.applyActions", err)
		}
		return nil

	case memmodel.ActionSupersede:
		live, err := e.liveTargets(ctx, action.TargetIDs)
		if err != nil {
			return err
		}
		if len(live) == 0 {
			// ConsistencyError: supersede target missing. Logged; the
			// action degrades to a plain ADD without the linkage.
			e.logger.Warn("supersede target(s) missing, degrading to add", "target_ids", action.TargetIDs)
			return e.insertFact(ctx, action.Fact, now)
		}
		newID, err := e.insertFactReturningID(ctx, action.Fact, now)
		if err != nil {
			return err
		}
		for _, id := range live {
			if err := e.cfg.Store.Update(ctx, id, map[string]string{
				"superseded_by": newID,
				"superseded_at": now.Format(time.RFC3339),
			}); err != nil {
				return memmodel.WrapErr("engine.applyActions", err)
			}
		}
		return nil

	case memmodel.ActionDeleteExisting:
		live, err := e.liveTargets(ctx, action.TargetIDs)
		if err != nil {
			return err
		}
		if _, err := e.insertFactReturningID(ctx, action.Fact, now); err != nil {
			return err
		}
		for _, id := range live {
			// Targets remain readable: marked resolved, never deleted.
			if err := e.cfg.Store.Update(ctx, id, map[string]string{
				"resolved":    "true",
				"resolved_at": now.Format(time.RFC3339),
			}); err != nil {
				return memmodel.WrapErr("engine.applyActions", err)
			}
		}
		return nil

	case memmodel.ActionUpdate:
		if len(action.TargetIDs) == 0 {
			return nil
		}
		patch := e.factToPayload(action.Fact, now)
		for _, id := range action.TargetIDs {
			if err := e.cfg.Store.Update(ctx, id, patch); err != nil {
				return memmodel.WrapErr("engine.applyActions", err)
			}
		}
		return nil

	default:
		return nil
	}
}

// liveTargets filters ids down to those the store still has a record for,
// logging a ConsistencyError-style warning for each that's missing.
func (e *Engine) liveTargets(ctx context.Context, ids []string) ([]string, error) {
	var live []string
	for _, id := range ids {
		rec, err := e.cfg.Store.Get(ctx, id)
		if err != nil {
			return nil, memmodel.WrapErr("engine.applyActions", err)
		}
		if rec == nil {
			e.logger.Warn("memory action target not found, skipping", "target_id", id)
			continue
		}
		live = append(live, id)
	}
	return live, nil
}

func (e *Engine) insertFact(ctx context.Context, fact memmodel.CategorizedFactInput, now time.Time) error {
	_, err := e.insertFactReturningID(ctx, fact, now)
	return err
}

func (e *Engine) insertFactReturningID(ctx context.Context, fact memmodel.CategorizedFactInput, now time.Time) (string, error) {
	id := uuid.New().String()
	payload := e.factToPayload(fact, now)

	e.emitEvent(Event{Kind: EventStoreStarted})
	if err := e.cfg.Store.Insert(ctx, [][]float32{fact.Embedding}, []string{id}, []map[string]string{payload}); err != nil {
		wrapped := memmodel.WrapErr("engine.applyActions", err)
		e.emitEvent(Event{Kind: EventStoreFailed, Err: wrapped})
		return "", wrapped
	}
	e.emitEvent(Event{Kind: EventStoreCompleted})
	return id, nil
}

// factToPayload serializes a candidate fact into the string-valued payload
// the VectorStore persists, attaching the workspace identity that was
// stripped off by the time a MemoryAction reaches the orchestrator
// (resolver.MemoryAction only carries the embedded CategorizedFactInput).
//
// confidence is written verbatim, including a true 0 — the spec's "default
// to 0.7 when missing" rule is a read-time rule (see search.parseRecord),
// not a write-time one. Coercing here would silently turn an extracted,
// validated confidence of exactly 0 into 0.7 before it's ever persisted.
func (e *Engine) factToPayload(fact memmodel.CategorizedFactInput, now time.Time) map[string]string {
	refTime := fact.ReferenceTime
	if refTime.IsZero() {
		refTime = now
	}
	return map[string]string{
		"content":             fact.Content,
		"category":            string(fact.Category),
		"confidence":          strconv.FormatFloat(fact.Confidence, 'f', -1, 64),
		"reference_time":      refTime.Format(time.RFC3339),
		"ingestion_time":      now.Format(time.RFC3339),
		"episode_id":          fact.EpisodeID,
		"source_model":        fact.SourceModel,
		"context_description": fact.ContextDescription,
		"workspace_id":        e.cfg.WorkspaceID,
		"workspace_path":      e.cfg.WorkspacePath,
		"resolved":            "false",
	}
}
