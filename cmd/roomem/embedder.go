package main

import "context"

// hashEmbedder is a deterministic pseudo-random embedder, adapted from the
// teacher's pkg/semantic-router.MockEmbedder. No real embedding model is
// in scope for this CLI (the engine's only requirement is a stable vector
// per string), so this is what seeds and searches are run against.
type hashEmbedder struct {
	dimension int
}

func newHashEmbedder(dimension int) *hashEmbedder {
	if dimension <= 0 {
		dimension = 32
	}
	return &hashEmbedder{dimension: dimension}
}

func (h *hashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dimension)

	hash := 0
	for _, c := range text {
		hash = hash*31 + int(c)
	}

	seed := uint32(hash)
	for i := range vec {
		seed = seed*1664525 + 1013904223
		vec[i] = float32(int32(seed)) / float32(0x7fffffff) * 2
	}
	return vec, nil
}

func (h *hashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := h.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (h *hashEmbedder) Dimension() int { return h.dimension }
