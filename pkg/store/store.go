// Package store provides the default memmodel.VectorStore implementation,
// wrapping the teacher's SQLite-backed, HNSW-indexed pkg/core.Store behind
// the engine's narrower storage capability.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roo-code/conversation-memory/internal/encoding"
	"github.com/roo-code/conversation-memory/pkg/core"
	"github.com/roo-code/conversation-memory/pkg/memmodel"
)

// Config configures a Store.
type Config struct {
	// Path is the SQLite database file path.
	Path string
	// Dimension is the embedding dimension. 0 auto-detects from the first
	// insert, matching core.Config.VectorDim.
	Dimension int
	// Collection names the single collection this Store reads and writes.
	// Defaults to "conversation_facts".
	Collection string
	// HNSW enables approximate nearest-neighbour search over linear scan.
	// Defaults to true.
	HNSW bool
	// Logger receives storage diagnostics. Defaults to a no-op.
	Logger memmodel.Logger
}

// DefaultConfig returns sensible defaults for a local single-workspace store.
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		Collection: "conversation_facts",
		HNSW:       true,
		Logger:     memmodel.NopLogger(),
	}
}

// Store adapts core.SQLiteStore to memmodel.VectorStore.
type Store struct {
	core       *core.SQLiteStore
	collection string
	dimension  int
	logger     memmodel.Logger
}

// New builds and initializes a Store from cfg.
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, memmodel.WrapErr("store.New", fmt.Errorf("database path is required"))
	}
	if cfg.Collection == "" {
		cfg.Collection = "conversation_facts"
	}
	if cfg.Logger == nil {
		cfg.Logger = memmodel.NopLogger()
	}

	coreCfg := core.DefaultConfig()
	coreCfg.Path = cfg.Path
	coreCfg.VectorDim = cfg.Dimension
	coreCfg.HNSW.Enabled = cfg.HNSW
	coreCfg.Logger = adaptLogger(cfg.Logger)

	cs, err := core.NewWithConfig(coreCfg)
	if err != nil {
		return nil, memmodel.WrapErr("store.New", err)
	}
	if err := cs.Init(context.Background()); err != nil {
		return nil, memmodel.WrapErr("store.New", err)
	}

	return &Store{core: cs, collection: cfg.Collection, dimension: cfg.Dimension, logger: cfg.Logger}, nil
}

// EnsureCollection creates the backing collection if it does not already
// exist. Safe to call repeatedly.
func (s *Store) EnsureCollection(ctx context.Context) error {
	if _, err := s.core.GetCollection(ctx, s.collection); err == nil {
		return nil
	}
	if _, err := s.core.CreateCollection(ctx, s.collection, s.dimension); err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return nil
		}
		return memmodel.WrapErr("store.EnsureCollection", err)
	}
	return nil
}

// CollectionName returns the configured collection name.
func (s *Store) CollectionName() string {
	return s.collection
}

// Insert adds new records in a single batch.
func (s *Store) Insert(ctx context.Context, vectors [][]float32, ids []string, payloads []map[string]string) error {
	if len(vectors) != len(ids) || len(vectors) != len(payloads) {
		return memmodel.WrapErr("store.Insert", fmt.Errorf("vectors, ids, and payloads must be the same length"))
	}
	embs := make([]*core.Embedding, len(vectors))
	for i := range vectors {
		embs[i] = &core.Embedding{
			ID:         ids[i],
			Collection: s.collection,
			Vector:     vectors[i],
			Content:    payloads[i]["content"],
			Metadata:   payloads[i],
		}
	}
	if err := s.core.UpsertBatch(ctx, embs); err != nil {
		return memmodel.WrapErr("store.Insert", err)
	}
	return nil
}

// Update merges patch into the record's existing payload, leaving
// unspecified fields and the vector untouched.
func (s *Store) Update(ctx context.Context, id string, patch map[string]string) error {
	existing, err := s.core.GetByID(ctx, id)
	if err != nil {
		return memmodel.WrapErr("store.Update", err)
	}
	if existing.Metadata == nil {
		existing.Metadata = map[string]string{}
	}
	for k, v := range patch {
		existing.Metadata[k] = v
	}
	if content, ok := patch["content"]; ok {
		existing.Content = content
	}
	existing.Collection = s.collection
	if err := s.core.Upsert(ctx, existing); err != nil {
		return memmodel.WrapErr("store.Update", err)
	}
	return nil
}

// Delete removes records by ID. Deleting a non-existent ID is not an error.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	var firstErr error
	for _, id := range ids {
		if err := s.core.Delete(ctx, id); err != nil && !errors.Is(err, core.ErrNotFound) && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return memmodel.WrapErr("store.Delete", firstErr)
	}
	return nil
}

// Get retrieves a single record by ID, returning (nil, nil) if absent.
func (s *Store) Get(ctx context.Context, id string) (*memmodel.StoredRecord, error) {
	emb, err := s.core.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil
		}
		return nil, memmodel.WrapErr("store.Get", err)
	}
	rec := memmodel.StoredRecord{ID: emb.ID, Vector: emb.Vector, Payload: emb.Metadata}
	return &rec, nil
}

// Search performs similarity search scoped to this collection, applying
// filter as an equality match over the payload.
func (s *Store) Search(ctx context.Context, queryText string, queryVector []float32, k int, filter memmodel.Filter) ([]memmodel.StoredRecord, error) {
	hits, err := s.core.Search(ctx, queryVector, core.SearchOptions{
		Collection: s.collection,
		TopK:       k,
		Filter:     map[string]string(filter),
		QueryText:  queryText,
	})
	if err != nil {
		return nil, memmodel.WrapErr("store.Search", err)
	}
	out := make([]memmodel.StoredRecord, len(hits))
	for i, h := range hits {
		out[i] = toStoredRecord(h)
	}
	return out, nil
}

// Filter returns records matching filter without similarity ranking, by
// scanning the embeddings table directly — core.Store has no plain
// metadata-only read path, only a search one and a delete one.
func (s *Store) Filter(ctx context.Context, filter memmodel.Filter, limit int) ([]memmodel.StoredRecord, error) {
	db := s.core.GetDB()
	if db == nil {
		return nil, memmodel.WrapErr("store.Filter", fmt.Errorf("store not initialized"))
	}

	query := `
		SELECT e.id, e.vector, e.content, e.metadata
		FROM embeddings e
		JOIN collections c ON e.collection_id = c.id
		WHERE c.name = ?
	`
	args := []interface{}{s.collection}
	if docID, ok := filter["doc_id"]; ok {
		query += " AND e.doc_id = ?"
		args = append(args, docID)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, memmodel.WrapErr("store.Filter", err)
	}
	defer rows.Close()

	var out []memmodel.StoredRecord
	for rows.Next() {
		var id, content string
		var vectorBytes []byte
		var metadataJSON sql.NullString
		if err := rows.Scan(&id, &vectorBytes, &content, &metadataJSON); err != nil {
			return nil, memmodel.WrapErr("store.Filter", err)
		}
		vec, err := encoding.DecodeVector(vectorBytes)
		if err != nil {
			return nil, memmodel.WrapErr("store.Filter", err)
		}
		meta := map[string]string{}
		if metadataJSON.Valid && metadataJSON.String != "" {
			decoded, err := encoding.DecodeMetadata(metadataJSON.String)
			if err == nil {
				meta = decoded
			}
		}
		if !matchesFilter(meta, filter) {
			continue
		}
		out = append(out, memmodel.StoredRecord{ID: id, Vector: vec, Payload: meta})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, rows.Err()
}

// ClearCollection removes all records in the collection but keeps it. The
// teacher's DeleteByFilter builds a WHERE clause with no collection scoping,
// so records are collected by ID here and deleted in a batch instead.
func (s *Store) ClearCollection(ctx context.Context) (bool, error) {
	records, err := s.Filter(ctx, memmodel.Filter{}, 0)
	if err != nil {
		return false, memmodel.WrapErr("store.ClearCollection", err)
	}
	if len(records) == 0 {
		return true, nil
	}
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	if err := s.core.DeleteBatch(ctx, ids); err != nil {
		return false, memmodel.WrapErr("store.ClearCollection", err)
	}
	return true, nil
}

// DeleteCollection removes the collection and all its records.
func (s *Store) DeleteCollection(ctx context.Context) (bool, error) {
	if _, err := s.ClearCollection(ctx); err != nil {
		return false, err
	}
	if err := s.core.DeleteCollection(ctx, s.collection); err != nil {
		if strings.Contains(err.Error(), "not found") {
			return true, nil
		}
		return false, memmodel.WrapErr("store.DeleteCollection", err)
	}
	return true, nil
}

// Close releases the underlying database connection and persists any index
// snapshot, matching the teacher's shutdown contract.
func (s *Store) Close() error {
	return s.core.Close()
}

func matchesFilter(payload map[string]string, filter memmodel.Filter) bool {
	for k, v := range filter {
		if k == "doc_id" {
			continue // already pushed down to SQL
		}
		if payload[k] != v {
			return false
		}
	}
	return true
}

func toStoredRecord(h core.ScoredEmbedding) memmodel.StoredRecord {
	score := h.Score
	return memmodel.StoredRecord{
		ID:      h.ID,
		Vector:  h.Vector,
		Payload: h.Metadata,
		Score:   &score,
	}
}
