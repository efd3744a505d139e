// Package search implements C6: embedding a query, fetching candidate
// facts, grouping them by episode, scoring each episode's relevance, and
// ranking the result.
package search

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/roo-code/conversation-memory/pkg/memmodel"
)

const candidatePoolSize = 50

// coherenceBonus rewards episodes with more than 3 matching facts, biasing
// results toward substantive episodes over one-off mentions.
const coherenceBonus = 0.1

// FactView is a fact as reconstructed from a VectorStore payload — the
// read-side counterpart of memmodel.ConversationFact, since the store
// only promises string-valued payload fields.
type FactView struct {
	ID                 string
	Content            string
	Category           memmodel.FactCategory
	Confidence         float64
	ReferenceTime      time.Time
	EpisodeID          string
	ContextDescription string
}

// EpisodeSearchResult groups the facts matching a query that belong to
// the same episode.
type EpisodeSearchResult struct {
	EpisodeID          string
	ContextDescription string
	Timeframe          string
	Relevance          float64
	Facts              []FactView
}

// RerankerFn optionally reorders results after episode-group ranking —
// e.g. to run a cross-encoder over the top candidates. A reranker that
// errors or returns an empty slice is ignored; the original order survives.
type RerankerFn func(ctx context.Context, query string, results []EpisodeSearchResult) ([]EpisodeSearchResult, error)

// Service implements EpisodeSearchService for a single workspace.
type Service struct {
	store         memmodel.VectorStore
	embedder      memmodel.Embedder
	workspacePath string
	reranker      RerankerFn
}

// New builds a Service scoped to workspacePath.
func New(store memmodel.VectorStore, embedder memmodel.Embedder, workspacePath string) *Service {
	return &Service{store: store, embedder: embedder, workspacePath: workspacePath}
}

// SetReranker installs an optional post-ranking reranker, mirroring the
// teacher's best-effort reranker hook.
func (s *Service) SetReranker(fn RerankerFn) {
	s.reranker = fn
}

// SearchByEpisode embeds query, searches the store, groups hits by
// episode, and returns the top `limit` episodes by relevance. limit <= 0
// yields an empty, non-nil-error result. Errors from the embedder or
// store propagate unchanged.
func (s *Service) SearchByEpisode(ctx context.Context, query string, limit int) ([]EpisodeSearchResult, error) {
	if limit <= 0 {
		return nil, nil
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, memmodel.WrapErr("search.SearchByEpisode", err)
	}

	records, err := s.store.Search(ctx, query, vec, candidatePoolSize, memmodel.Filter{
		"workspace_path": s.workspacePath,
	})
	if err != nil {
		return nil, memmodel.WrapErr("search.SearchByEpisode", err)
	}

	groups := groupByEpisode(records)
	results := make([]EpisodeSearchResult, 0, len(groups))
	for episodeID, facts := range groups {
		results = append(results, buildResult(episodeID, facts))
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Relevance > results[j].Relevance
	})

	if s.reranker != nil {
		if reranked, err := s.reranker(ctx, query, results); err == nil && len(reranked) > 0 {
			results = reranked
		}
	}

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func groupByEpisode(records []memmodel.StoredRecord) map[string][]FactView {
	groups := map[string][]FactView{}
	for _, rec := range records {
		fact := parseRecord(rec)
		key := fact.EpisodeID
		if key == "" {
			key = "unknown"
		}
		groups[key] = append(groups[key], fact)
	}
	return groups
}

func buildResult(episodeID string, facts []FactView) EpisodeSearchResult {
	sort.Slice(facts, func(i, j int) bool {
		return facts[i].Confidence > facts[j].Confidence
	})

	var sum float64
	for _, f := range facts {
		sum += f.Confidence
	}
	relevance := sum / float64(len(facts))
	if len(facts) > 3 {
		relevance += coherenceBonus
	}

	contextDescription := "Episode context unavailable"
	if len(facts) > 0 && facts[0].ContextDescription != "" {
		contextDescription = facts[0].ContextDescription
	}

	return EpisodeSearchResult{
		EpisodeID:          episodeID,
		ContextDescription: contextDescription,
		Timeframe:          formatTimeframe(facts),
		Relevance:          relevance,
		Facts:              facts,
	}
}

func formatTimeframe(facts []FactView) string {
	if len(facts) == 0 {
		return ""
	}
	earliest, latest := facts[0].ReferenceTime, facts[0].ReferenceTime
	for _, f := range facts[1:] {
		if f.ReferenceTime.Before(earliest) {
			earliest = f.ReferenceTime
		}
		if f.ReferenceTime.After(latest) {
			latest = f.ReferenceTime
		}
	}
	const dateFormat = "2006-01-02"
	if earliest.Format(dateFormat) == latest.Format(dateFormat) {
		return earliest.Format(dateFormat)
	}
	return earliest.Format(dateFormat) + " – " + latest.Format(dateFormat)
}

func parseRecord(rec memmodel.StoredRecord) FactView {
	// Per spec, confidence defaults to 0.7 only when the field is
	// genuinely absent from the payload — a stored confidence of exactly
	// 0 is a valid extracted value and must read back as 0, not 0.7.
	confidence := 0.7
	if raw, ok := rec.Payload["confidence"]; ok {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil {
			confidence = parsed
		}
		// Present but unparseable: payload corruption, not a missing
		// value. Falls back to the same 0.7 default rather than reading
		// back as a confirmed zero confidence it never actually had.
	}
	referenceTime, _ := time.Parse(time.RFC3339, rec.Payload["reference_time"])
	return FactView{
		ID:                 rec.ID,
		Content:            rec.Payload["content"],
		Category:           memmodel.FactCategory(rec.Payload["category"]),
		Confidence:         confidence,
		ReferenceTime:      referenceTime,
		EpisodeID:          rec.Payload["episode_id"],
		ContextDescription: rec.Payload["context_description"],
	}
}
