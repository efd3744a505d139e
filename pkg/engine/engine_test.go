package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roo-code/conversation-memory/pkg/memmodel"
	"github.com/roo-code/conversation-memory/pkg/store"
)

type fakeLLM struct {
	response string
}

func (f *fakeLLM) GenerateJSON(ctx context.Context, prompt string, opts memmodel.GenOptions) (string, error) {
	return f.response, nil
}
func (f *fakeLLM) GenerateText(ctx context.Context, prompt string, opts memmodel.GenOptions) (string, error) {
	return "", memmodel.ErrUnsupported
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text) % 7), 0.1, 0.2}, nil
}
func (fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t) % 7), 0.1, 0.2}
	}
	return out, nil
}
func (fakeEmbedder) Dimension() int { return 3 }

func newTestEngine(t *testing.T, llmResponse string) *Engine {
	t.Helper()
	storeCfg := store.DefaultConfig(filepath.Join(t.TempDir(), "facts.db"))
	storeCfg.Dimension = 3
	s, err := store.New(storeCfg)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	cfg := DefaultConfig("ws1", "/workspace/one")
	cfg.Store = s
	cfg.Embedder = fakeEmbedder{}
	cfg.LLM = &fakeLLM{response: llmResponse}
	cfg.ConversationMemoryEnabled = true
	cfg.ExtractionWindow.TriggerEvery = 1
	cfg.ExtractionWindow.RoleFilter = nil

	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestNewRejectsMissingWorkspacePath(t *testing.T) {
	cfg := DefaultConfig("ws1", "")
	cfg.Embedder = fakeEmbedder{}
	if _, err := New(cfg); err == nil {
		t.Fatalf("expected WorkspaceMisconfig error for empty workspace path")
	}
}

func TestNewRejectsMissingStore(t *testing.T) {
	cfg := DefaultConfig("ws1", "/workspace/one")
	cfg.Embedder = fakeEmbedder{}
	if _, err := New(cfg); err == nil {
		t.Fatalf("expected WorkspaceMisconfig error for missing store")
	}
}

func TestOnTurnIsNoOpWhenDisabled(t *testing.T) {
	e := newTestEngine(t, `{"facts":[{"content":"uses postgres","category":"infrastructure","confidence":0.9}]}`)
	e.cfg.ConversationMemoryEnabled = false

	if err := e.OnTurn(context.Background(), TurnInput{Message: memmodel.Message{Role: memmodel.RoleAssistant, Content: "we use postgres", Timestamp: time.Now()}}); err != nil {
		t.Fatalf("OnTurn: %v", err)
	}
	if len(e.messages) != 0 {
		t.Fatalf("expected no messages recorded while disabled, got %d", len(e.messages))
	}
}

func TestOnTurnExtractsAndStoresFact(t *testing.T) {
	e := newTestEngine(t, `{"facts":[{"content":"uses postgres","category":"infrastructure","confidence":0.9}]}`)

	var progressed []State
	unsub := e.OnProgress(func(ev ProgressEvent) { progressed = append(progressed, ev.State) })
	defer unsub()

	err := e.OnTurn(context.Background(), TurnInput{Message: memmodel.Message{
		Role: memmodel.RoleAssistant, Content: "we use postgres", Timestamp: time.Now(),
	}})
	if err != nil {
		t.Fatalf("OnTurn: %v", err)
	}
	if e.State() != StateIndexed {
		t.Fatalf("expected StateIndexed, got %v", e.State())
	}
	if len(progressed) == 0 || progressed[len(progressed)-1] != StateIndexed {
		t.Fatalf("expected a terminal Indexed progress event, got %+v", progressed)
	}

	results, err := e.Search(context.Background(), "database", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected one episode result, got %+v", results)
	}
	if len(results[0].Facts) != 1 || results[0].Facts[0].Content != "uses postgres" {
		t.Fatalf("unexpected facts: %+v", results[0].Facts)
	}
}

func TestOnTurnZeroFactsIsNotAnError(t *testing.T) {
	e := newTestEngine(t, `{}`)

	err := e.OnTurn(context.Background(), TurnInput{Message: memmodel.Message{
		Role: memmodel.RoleAssistant, Content: "hello", Timestamp: time.Now(),
	}})
	if err != nil {
		t.Fatalf("OnTurn: %v", err)
	}
	if e.State() != StateIndexed {
		t.Fatalf("expected StateIndexed even with zero facts, got %v", e.State())
	}
}

func TestEpisodeIDStableAcrossTurnsExceedingWindowSize(t *testing.T) {
	e := newTestEngine(t, `{}`)
	base := time.Now()

	var epID string
	for i := 0; i < 22; i++ {
		ts := base.Add(time.Duration(i) * time.Second)
		if err := e.OnTurn(context.Background(), TurnInput{Message: memmodel.Message{
			Role: memmodel.RoleAssistant, Content: "hello", Timestamp: ts,
		}}); err != nil {
			t.Fatalf("OnTurn turn %d: %v", i, err)
		}
		if epID == "" {
			epID = e.currentEpisodeID
			continue
		}
		if e.currentEpisodeID != epID {
			t.Fatalf("episode id changed at turn %d (history len=%d, WindowSize=%d): got %s, want %s",
				i, len(e.messages), e.cfg.ExtractionWindow.WindowSize, e.currentEpisodeID, epID)
		}
	}
	if len(e.messages) <= e.cfg.ExtractionWindow.WindowSize {
		t.Fatalf("test did not exercise history beyond WindowSize: len=%d", len(e.messages))
	}
}

func TestSearchReturnsEmptyWhenDisabled(t *testing.T) {
	e := newTestEngine(t, `{}`)
	e.cfg.ConversationMemoryEnabled = false

	results, err := e.Search(context.Background(), "anything", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected empty results, got %+v", results)
	}
}

func TestClearResetsToStandbyAndEmptiesStore(t *testing.T) {
	e := newTestEngine(t, `{"facts":[{"content":"uses postgres","category":"infrastructure","confidence":0.9}]}`)

	if err := e.OnTurn(context.Background(), TurnInput{Message: memmodel.Message{
		Role: memmodel.RoleAssistant, Content: "we use postgres", Timestamp: time.Now(),
	}}); err != nil {
		t.Fatalf("OnTurn: %v", err)
	}

	if err := e.Clear(context.Background()); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if e.State() != StateStandby {
		t.Fatalf("expected StateStandby after Clear, got %v", e.State())
	}

	results, err := e.Search(context.Background(), "database", 5)
	if err != nil {
		t.Fatalf("Search after clear: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results after clear, got %+v", results)
	}
}

func TestFinalizeIsIdempotentAndNeverErrors(t *testing.T) {
	e := newTestEngine(t, `{}`)
	if err := e.Finalize(context.Background()); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if err := e.Finalize(context.Background()); err != nil {
		t.Fatalf("second Finalize: %v", err)
	}
}

func TestScoreFactDelegatesToTemporalScorer(t *testing.T) {
	e := newTestEngine(t, `{}`)
	fact := &memmodel.ConversationFact{
		CategorizedFactInput: memmodel.CategorizedFactInput{
			Category:   memmodel.CategoryInfrastructure,
			Confidence: 0.5,
		},
	}
	got := e.ScoreFact(fact, time.Now())
	if got <= 0 {
		t.Fatalf("expected a positive score, got %v", got)
	}
}
