// Package episode implements C3 (EpisodeContextGenerator) and C4
// (EpisodeDetector): segmenting a message sequence into episodes and
// labelling each with a short natural-language description.
package episode

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/roo-code/conversation-memory/pkg/memmodel"
)

// Mode selects how EpisodeDetector finds breakpoints beyond the always-on
// heuristic pass.
type Mode string

const (
	ModeHeuristic   Mode = "heuristic"
	ModeSemantic    Mode = "semantic"
	ModeLLMVerified Mode = "llm_verified"
)

// SemanticConfig parameterises the drift-based breakpoint pass.
type SemanticConfig struct {
	DriftK    float64
	MinWindow int
	Distance  Distance
}

// Config parameterises EpisodeDetector. Zero value is invalid; use
// DefaultConfig.
type Config struct {
	TimeGapMin      time.Duration
	MaxMessages     int
	TopicPatterns   []*regexp.Regexp
	Mode            Mode
	Semantic        SemanticConfig
	BoundaryRefiner bool
}

// DefaultConfig returns the segmentation defaults from the specification.
// DefaultConfig uses ModeSemantic with refinement off, the cheapest mode
// that still uses embeddings. BoundaryRefiner is not derived from Mode:
// choosing ModeLLMVerified leaves it false, and refinement runs only when
// BoundaryRefiner is set true as well.
func DefaultConfig() Config {
	return Config{
		TimeGapMin:  30 * time.Minute,
		MaxMessages: 25,
		Mode:        ModeSemantic,
		Semantic: SemanticConfig{
			DriftK:    2.5,
			MinWindow: 5,
			Distance:  DistanceCosine,
		},
		BoundaryRefiner: false,
	}
}

// Detector segments a conversation into episodes.
type Detector struct {
	embedder   memmodel.Embedder
	llm        memmodel.LlmProvider
	contextGen *ContextGenerator
	logger     memmodel.Logger
	cfg        Config
}

// New builds a Detector. embedder and llm may be nil — the detector then
// falls back to heuristic-only segmentation and placeholder context
// descriptions respectively.
func New(embedder memmodel.Embedder, llm memmodel.LlmProvider, contextGen *ContextGenerator, logger memmodel.Logger, cfg Config) *Detector {
	if cfg.MaxMessages == 0 {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = memmodel.NopLogger()
	}
	return &Detector{embedder: embedder, llm: llm, contextGen: contextGen, logger: logger, cfg: cfg}
}

// Detect partitions messages into episodes, preserving order and covering
// every message exactly once.
func (d *Detector) Detect(ctx context.Context, messages []memmodel.Message, workspaceID string, proj *memmodel.ProjectContext) ([]memmodel.Episode, error) {
	if len(messages) == 0 {
		return nil, nil
	}

	breakpoints := d.heuristicBreakpoints(messages)

	if d.cfg.Mode != ModeHeuristic && d.embedder != nil {
		semantic, err := d.semanticBreakpoints(ctx, messages)
		if err != nil {
			d.logger.Warn("semantic segmentation failed, continuing with heuristic breakpoints only", "error", err)
		} else {
			for i := range semantic {
				breakpoints[i] = true
			}
		}
	}

	cuts := enforceMaxSize(sortedCuts(breakpoints, len(messages)), len(messages), d.cfg.MaxMessages)
	episodes := buildEpisodes(messages, cuts, workspaceID)

	if d.cfg.BoundaryRefiner && d.cfg.Mode == ModeLLMVerified && d.llm != nil {
		if refined, ok := d.refineBoundaries(ctx, messages, workspaceID); ok {
			episodes = refined
		}
	}

	for i := range episodes {
		if episodes[i].ContextDescription == "" {
			episodes[i].ContextDescription = d.describe(ctx, episodes[i].Messages, workspaceID, proj)
		}
	}

	return episodes, nil
}

func (d *Detector) describe(ctx context.Context, messages []memmodel.Message, workspaceID string, proj *memmodel.ProjectContext) string {
	if d.contextGen == nil {
		return fmt.Sprintf("Episode with %d messages", len(messages))
	}
	return d.contextGen.Describe(ctx, messages, workspaceID, proj)
}

// heuristicBreakpoints finds indices where a time gap beyond TimeGapMin or
// a configured topic regex marks the start of a new episode. Index 0 is
// never a breakpoint — it is always the start of the first episode.
func (d *Detector) heuristicBreakpoints(messages []memmodel.Message) map[int]bool {
	breakpoints := map[int]bool{}
	for i := 1; i < len(messages); i++ {
		prev := messages[i-1].Timestamp
		cur := messages[i].Timestamp
		// Missing timestamps are treated as zero time; the guard below
		// skips the time-gap rule when both are missing, while a zero
		// timestamp next to a real one yields a large gap.
		if !cur.IsZero() || !prev.IsZero() {
			if cur.Sub(prev) > d.cfg.TimeGapMin {
				breakpoints[i] = true
				continue
			}
		}
		for _, pattern := range d.cfg.TopicPatterns {
			if pattern.MatchString(messages[i].Content) {
				breakpoints[i] = true
				break
			}
		}
	}
	return breakpoints
}

// semanticBreakpoints walks the embedded message sequence maintaining a
// running cluster centroid, flagging index i whenever its distance to the
// centroid exceeds the adaptive drift threshold computed from the current
// segment's recent distances.
func (d *Detector) semanticBreakpoints(ctx context.Context, messages []memmodel.Message) (map[int]bool, error) {
	texts := make([]string, len(messages))
	for i, m := range messages {
		texts[i] = m.Content
	}
	vectors, err := d.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}

	dist := distanceFunc(d.cfg.Semantic.Distance)
	minWindow := d.cfg.Semantic.MinWindow
	if minWindow <= 0 {
		minWindow = 5
	}
	driftK := d.cfg.Semantic.DriftK
	if driftK == 0 {
		driftK = 2.5
	}

	breakpoints := map[int]bool{}
	var centroid []float32
	var window []float64
	weight := 0
	segCount := 0

	for i, vec := range vectors {
		if i == 0 {
			centroid = append([]float32(nil), vec...)
			weight = 1
			segCount = 1
			continue
		}

		distVal := dist(vec, centroid)

		if segCount >= minWindow && len(window) > 0 {
			med := median(window)
			threshold := med + driftK*mad(window, med)
			if distVal > threshold {
				breakpoints[i] = true
				centroid = append([]float32(nil), vec...)
				weight = 1
				window = nil
				segCount = 1
				continue
			}
		}

		window = append(window, distVal)
		centroid, weight = updateCentroid(centroid, weight, vec)
		segCount++
	}

	return breakpoints, nil
}

func sortedCuts(breakpoints map[int]bool, total int) []int {
	cuts := []int{0}
	for i := 1; i < total; i++ {
		if breakpoints[i] {
			cuts = append(cuts, i)
		}
	}
	return cuts
}

// enforceMaxSize inserts additional forced cuts so no segment spans more
// than maxMessages messages.
func enforceMaxSize(cuts []int, total int, maxMessages int) []int {
	if maxMessages <= 0 {
		return cuts
	}
	out := make([]int, 0, len(cuts))
	for idx, start := range cuts {
		end := total
		if idx+1 < len(cuts) {
			end = cuts[idx+1]
		}
		out = append(out, start)
		for next := start + maxMessages; next < end; next += maxMessages {
			out = append(out, next)
		}
	}
	return out
}

func buildEpisodes(messages []memmodel.Message, cuts []int, workspaceID string) []memmodel.Episode {
	episodes := make([]memmodel.Episode, 0, len(cuts))
	for i, start := range cuts {
		end := len(messages)
		if i+1 < len(cuts) {
			end = cuts[i+1]
		}
		segment := messages[start:end]
		if len(segment) == 0 {
			continue
		}
		episodes = append(episodes, buildEpisode(segment, workspaceID))
	}
	return episodes
}

func buildEpisode(segment []memmodel.Message, workspaceID string) memmodel.Episode {
	first := segment[0]
	last := segment[len(segment)-1]
	id := memmodel.EpisodeAnchorID(workspaceID, first.Content, first.Timestamp.UnixNano())
	return memmodel.Episode{
		EpisodeID:    id,
		WorkspaceID:  workspaceID,
		Messages:     segment,
		StartTime:    first.Timestamp,
		EndTime:      last.Timestamp,
		MessageCount: len(segment),
	}
}
