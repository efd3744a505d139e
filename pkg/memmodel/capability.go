package memmodel

import "context"

// Embedder converts text to vectors. Implementations are expected to be
// safe for concurrent use; EmbedBatch may simply loop over Embed but
// callers should prefer it when available since implementations are free
// to batch the underlying provider call.
type Embedder interface {
	// Embed converts a single string to a fixed-dimension vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts multiple strings to vectors in one logical call.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension is the authoritative vector length this embedder produces.
	// The engine refuses to store embeddings of any other size.
	Dimension() int
}

// StoredRecord is one row returned from a VectorStore query: an embedding
// plus its metadata payload and, for similarity search, a score.
type StoredRecord struct {
	ID      string
	Vector  []float32
	Payload map[string]string
	// Score is nil for plain Get/Filter calls and non-nil for Search hits.
	Score *float64
}

// Filter is a mapping from payload field name to required value. The
// engine only ever populates workspace_path, category, episode_id,
// resolved, after, before. A store that doesn't support one of these keys
// natively must reject the call rather than silently ignore it.
type Filter map[string]string

// VectorStore is the pluggable persistence capability the engine is built
// against. The engine never assumes a particular backend; pkg/store
// provides a default SQLite-backed implementation.
type VectorStore interface {
	// EnsureCollection creates the engine's collection if it does not
	// already exist. Must be called before any other method.
	EnsureCollection(ctx context.Context) error

	// CollectionName returns the name of the collection facts are stored in.
	CollectionName() string

	// Insert adds new records. len(vectors) == len(ids) == len(payloads).
	Insert(ctx context.Context, vectors [][]float32, ids []string, payloads []map[string]string) error

	// Update overwrites payload fields on an existing record, leaving
	// unspecified fields untouched.
	Update(ctx context.Context, id string, patch map[string]string) error

	// Delete removes records by ID. Deleting a non-existent ID is not an error.
	Delete(ctx context.Context, ids []string) error

	// Get retrieves a single record by ID. Returns (nil, nil) if absent.
	Get(ctx context.Context, id string) (*StoredRecord, error)

	// Search performs similarity search. queryText is optional context some
	// backends use to blend in lexical scoring; queryVector drives ranking.
	Search(ctx context.Context, queryText string, queryVector []float32, k int, filter Filter) ([]StoredRecord, error)

	// Filter returns records matching filter without any similarity ranking.
	// limit <= 0 means unlimited.
	Filter(ctx context.Context, filter Filter, limit int) ([]StoredRecord, error)

	// ClearCollection removes all records but keeps the collection itself.
	// Implementations that can't support this should report ok=false.
	ClearCollection(ctx context.Context) (ok bool, err error)

	// DeleteCollection removes the collection and all its records.
	// Implementations that can't support this should report ok=false.
	DeleteCollection(ctx context.Context) (ok bool, err error)
}

// GenOptions configures one LlmProvider.GenerateJSON / GenerateText call.
type GenOptions struct {
	Temperature float64
	MaxTokens   int
}

// LlmProvider is the pluggable language-model capability. Implementations
// are expected to best-effort return valid JSON from GenerateJSON; the
// engine tolerates prose-wrapped and fenced responses and attempts salvage
// on its own, so the provider does not need to guarantee strict JSON.
type LlmProvider interface {
	// GenerateJSON asks the model to produce a JSON value for prompt.
	GenerateJSON(ctx context.Context, prompt string, opts GenOptions) (string, error)

	// GenerateText asks the model to produce free-form text. Optional:
	// implementations that only support structured output may return
	// ErrUnsupported.
	GenerateText(ctx context.Context, prompt string, opts GenOptions) (string, error)
}
