package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
)

// DefaultHashDimension is the vector size for the hash embedder.
const DefaultHashDimension = 256

// HashEmbedder maps text to a deterministic pseudo-random unit vector.
// No network access, no model: each word token hashes to a fixed direction
// and the chunk vector is the normalized sum, so texts sharing vocabulary
// land near each other. Used as the offline provider and in tests.
type HashEmbedder struct {
	dimension int
}

// NewHashEmbedder creates a hash embedder with the given dimension
// (DefaultHashDimension if dim <= 0).
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = DefaultHashDimension
	}
	return &HashEmbedder{dimension: dim}
}

// Embed generates a deterministic embedding for the text.
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if err := validateInput(e.ModelName(), text, 0); err != nil {
		return nil, err
	}

	vec := make([]float64, e.dimension)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,!?;:\"'()[]{}")
		if tok == "" {
			continue
		}
		e.addToken(vec, tok)
	}

	// Whitespace-only input produces no tokens; hash the raw text so the
	// result is still a valid unit vector.
	if norm(vec) == 0 {
		e.addToken(vec, text)
	}

	n := norm(vec)
	out := make([]float32, e.dimension)
	for i, v := range vec {
		out[i] = float32(v / n)
	}
	return out, nil
}

// addToken expands the token's SHA-256 digest into dimension components
// in [-1, 1] and accumulates them into vec.
func (e *HashEmbedder) addToken(vec []float64, tok string) {
	var counter uint32
	buf := sha256.Sum256([]byte(tok))
	off := 0
	for i := 0; i < e.dimension; i++ {
		if off+4 > len(buf) {
			counter++
			var ext [4]byte
			binary.BigEndian.PutUint32(ext[:], counter)
			buf = sha256.Sum256(append([]byte(tok), ext[:]...))
			off = 0
		}
		u := binary.BigEndian.Uint32(buf[off : off+4])
		off += 4
		vec[i] += float64(u)/float64(math.MaxUint32)*2 - 1
	}
}

// EmbedBatch generates embeddings for multiple texts.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		results[i] = vec
	}
	return results, nil
}

// Dimension returns the dimensionality of the embedding vectors.
func (e *HashEmbedder) Dimension() int {
	return e.dimension
}

// ModelName returns the embedder's identifier.
func (e *HashEmbedder) ModelName() string {
	return "hash-v1"
}

func norm(vec []float64) float64 {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// Ensure HashEmbedder implements Embedder interface.
var _ Embedder = (*HashEmbedder)(nil)
