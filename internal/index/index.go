// Package index provides the in-memory semantic index: one vector per
// chunk, cosine top-K retrieval. An index is built once per chunk store,
// is read-only afterwards, and is discarded with its session.
package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/astrali/finrag/internal/chunk"
	"github.com/astrali/finrag/internal/embedder"
)

// DefaultBuildWorkers bounds concurrent embedding calls during build.
const DefaultBuildWorkers = 4

// ErrInvalidArgument rejects malformed retrieval parameters.
var ErrInvalidArgument = errors.New("invalid argument")

// Result is one retrieved chunk with its cosine similarity to the query.
type Result struct {
	ChunkID string
	Score   float32
}

// Index holds one vector per chunk of a single store.
type Index struct {
	storeID   uuid.UUID
	model     string
	dimension int
	ids       []string
	vectors   [][]float32
}

// BuildOptions configures index construction.
type BuildOptions struct {
	// Workers bounds concurrent embedding calls (default DefaultBuildWorkers).
	Workers int
}

// Build embeds every chunk in the store and assembles the index. The
// result is in 1:1 correspondence with the store's chunks and, given a
// deterministic embedder, identical across rebuilds. Embedding calls run
// in parallel; each writes its own slot, so scheduling order cannot change
// the result.
func Build(ctx context.Context, store *chunk.Store, emb embedder.Embedder, opts BuildOptions) (*Index, error) {
	if store == nil || store.Len() == 0 {
		return nil, fmt.Errorf("%w: empty chunk store", ErrInvalidArgument)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultBuildWorkers
	}

	idx := &Index{
		storeID:   store.ID(),
		model:     emb.ModelName(),
		dimension: emb.Dimension(),
		ids:       make([]string, store.Len()),
		vectors:   make([][]float32, store.Len()),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := 0; i < store.Len(); i++ {
		i := i
		c := store.At(i)
		idx.ids[i] = c.ID
		g.Go(func() error {
			vec, err := emb.Embed(gctx, c.Text)
			if err != nil {
				return fmt.Errorf("embedding chunk %s: %w", c.ID, err)
			}
			if len(vec) != idx.dimension {
				return &embedder.Error{
					Model: idx.model,
					Err:   fmt.Errorf("chunk %s: vector dimension %d, embedder reports %d", c.ID, len(vec), idx.dimension),
				}
			}
			idx.vectors[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return idx, nil
}

// StoreID returns the ID of the chunk store this index was built from.
func (idx *Index) StoreID() uuid.UUID { return idx.storeID }

// ModelName returns the embedding model the index was built with.
func (idx *Index) ModelName() string { return idx.model }

// Len returns the number of indexed chunks.
func (idx *Index) Len() int { return len(idx.ids) }

// Search returns the k chunks most similar to the query vector by cosine
// similarity, descending. Exact ties keep original chunk order. k greater
// than the number of indexed chunks is clamped (fail-soft); k < 1 and
// dimension mismatches are ErrInvalidArgument. Search is safe for
// concurrent use once Build has returned.
func (idx *Index) Search(query []float32, k int) ([]Result, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be >= 1, got %d", ErrInvalidArgument, k)
	}
	if len(query) != idx.dimension {
		return nil, fmt.Errorf("%w: query dimension %d, index dimension %d", ErrInvalidArgument, len(query), idx.dimension)
	}
	if k > len(idx.ids) {
		k = len(idx.ids)
	}

	results := make([]Result, len(idx.ids))
	for i := range idx.ids {
		results[i] = Result{
			ChunkID: idx.ids[i],
			Score:   cosine(query, idx.vectors[i]),
		}
	}

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Score > results[b].Score
	})

	return results[:k], nil
}

// cosine computes cosine similarity between two equal-length vectors.
func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
