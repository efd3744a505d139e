// Package resolver implements C2: deciding what to do with a freshly
// extracted fact given what is already stored for the same workspace and
// category — add it, ignore it as a duplicate, supersede a stale
// architecture decision, or delete a debugging note now that its bug is
// fixed.
package resolver

import (
	"context"
	"strings"

	"github.com/roo-code/conversation-memory/pkg/memmodel"
)

// Config parameterises the decision thresholds. Zero value is invalid;
// build with DefaultConfig and override selectively.
type Config struct {
	// SearchLimit bounds how many similar existing facts are considered.
	SearchLimit int

	// IgnoreThreshold: similarity above which a candidate with identical
	// content (case-insensitive) is dropped as a duplicate.
	IgnoreThreshold float64

	// SupersedeThreshold: similarity above which an architecture candidate
	// supersedes every existing neighbour whose content differs from it.
	SupersedeThreshold float64

	// DeleteThreshold: similarity above which a debugging candidate whose
	// content names a resolution targets every such neighbour with
	// DELETE_EXISTING; the engine stores the new fact and marks the targets
	// resolved rather than removing them.
	DeleteThreshold float64

	// DebugResolutionMarkers are substrings (case-insensitive) whose
	// presence in a debugging fact's content signals the bug is now fixed.
	DebugResolutionMarkers []string
}

// DefaultConfig returns the threshold defaults from the specification.
func DefaultConfig() Config {
	return Config{
		SearchLimit:        8,
		IgnoreThreshold:    0.95,
		SupersedeThreshold: 0.80,
		DeleteThreshold:    0.85,
		DebugResolutionMarkers: []string{
			"resolved",
			"fixed",
			"no longer",
			"is now fixed",
			"has been resolved",
		},
	}
}

// Resolver turns a candidate fact into the list of actions the engine
// should apply to the store.
type Resolver struct {
	store memmodel.VectorStore
	cfg   Config
}

// New builds a Resolver backed by store. A zero Config falls back to
// DefaultConfig.
func New(store memmodel.VectorStore, cfg Config) *Resolver {
	if cfg.SearchLimit == 0 {
		cfg = DefaultConfig()
	}
	return &Resolver{store: store, cfg: cfg}
}

// Resolve decides the action(s) to take for candidate. It never returns an
// empty slice on success — a candidate that matches nothing still yields
// an ActionAdd.
func (r *Resolver) Resolve(ctx context.Context, candidate *memmodel.ConversationFact) ([]memmodel.MemoryAction, error) {
	if !candidate.HasEmbedding() {
		// Nothing to compare against without an embedding: add it as-is
		// and let a later pass reconcile duplicates once it has one.
		return []memmodel.MemoryAction{addAction(candidate)}, nil
	}

	filter := memmodel.Filter{
		"workspace_path": candidate.WorkspacePath,
		"category":       string(candidate.Category),
	}

	results, err := r.store.Search(ctx, candidate.Content, candidate.Embedding, r.cfg.SearchLimit, filter)
	if err != nil {
		return nil, memmodel.WrapErr("resolver.Resolve", err)
	}
	if len(results) == 0 {
		return []memmodel.MemoryAction{addAction(candidate)}, nil
	}

	candidateContent := strings.TrimSpace(candidate.Content)

	// Step 1: IGNORE wins outright on the first neighbour that is both a
	// strong match and textually identical — this is checked ahead of
	// category-specific rules even for architecture candidates, per the
	// decision tree's literal ordering.
	for _, n := range results {
		identical := strings.EqualFold(strings.TrimSpace(n.Payload["content"]), candidateContent)
		if recordScore(n) > r.cfg.IgnoreThreshold && identical {
			return []memmodel.MemoryAction{{
				Type:      memmodel.ActionIgnore,
				Fact:      candidate.CategorizedFactInput,
				TargetIDs: []string{n.ID},
			}}, nil
		}
	}

	// Step 2: SUPERSEDE targets every close-but-differing neighbour for
	// an architecture candidate.
	if candidate.Category == memmodel.CategoryArchitecture {
		var targets []string
		for _, n := range results {
			identical := strings.EqualFold(strings.TrimSpace(n.Payload["content"]), candidateContent)
			if recordScore(n) > r.cfg.SupersedeThreshold && !identical {
				targets = append(targets, n.ID)
			}
		}
		if len(targets) > 0 {
			return []memmodel.MemoryAction{{
				Type:      memmodel.ActionSupersede,
				Fact:      candidate.CategorizedFactInput,
				TargetIDs: targets,
			}}, nil
		}
	}

	// Step 3: DELETE_EXISTING targets every close neighbour for a
	// debugging candidate whose own content names a resolution.
	if candidate.Category == memmodel.CategoryDebugging && r.namesResolution(candidateContent) {
		var targets []string
		for _, n := range results {
			if recordScore(n) > r.cfg.DeleteThreshold {
				targets = append(targets, n.ID)
			}
		}
		if len(targets) > 0 {
			return []memmodel.MemoryAction{{
				Type:      memmodel.ActionDeleteExisting,
				Fact:      candidate.CategorizedFactInput,
				TargetIDs: targets,
			}}, nil
		}
	}

	return []memmodel.MemoryAction{addAction(candidate)}, nil
}

func (r *Resolver) namesResolution(content string) bool {
	lower := strings.ToLower(content)
	for _, marker := range r.cfg.DebugResolutionMarkers {
		if strings.Contains(lower, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

func addAction(candidate *memmodel.ConversationFact) memmodel.MemoryAction {
	return memmodel.MemoryAction{
		Type: memmodel.ActionAdd,
		Fact: candidate.CategorizedFactInput,
	}
}

func recordScore(rec memmodel.StoredRecord) float64 {
	if rec.Score == nil {
		return 0
	}
	return *rec.Score
}
