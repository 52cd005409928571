package embedder

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestHashEmbedder_Deterministic(t *testing.T) {
	e := NewHashEmbedder(0)
	ctx := context.Background()

	a, err := e.Embed(ctx, "quarterly revenue guidance")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := e.Embed(ctx, "quarterly revenue guidance")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at component %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestHashEmbedder_UnitNorm(t *testing.T) {
	e := NewHashEmbedder(64)

	vec, err := e.Embed(context.Background(), "some chunk of text to embed")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 64 {
		t.Fatalf("expected dimension 64, got %d", len(vec))
	}

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(sum)-1.0) > 1e-5 {
		t.Errorf("expected unit norm, got %f", math.Sqrt(sum))
	}
}

func TestHashEmbedder_DistinctTexts(t *testing.T) {
	e := NewHashEmbedder(0)
	ctx := context.Background()

	a, _ := e.Embed(ctx, "apple quarterly earnings")
	b, _ := e.Embed(ctx, "treasury bond yields")

	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("distinct texts must not embed to the same vector")
	}
}

func TestHashEmbedder_EmptyText(t *testing.T) {
	e := NewHashEmbedder(0)

	_, err := e.Embed(context.Background(), "")
	if !errors.Is(err, ErrEmptyText) {
		t.Errorf("expected ErrEmptyText, got %v", err)
	}
}

func TestHashEmbedder_Defaults(t *testing.T) {
	e := NewHashEmbedder(0)
	if e.Dimension() != DefaultHashDimension {
		t.Errorf("expected default dimension %d, got %d", DefaultHashDimension, e.Dimension())
	}
	if e.ModelName() != "hash-v1" {
		t.Errorf("unexpected model name %q", e.ModelName())
	}
}

func TestHashEmbedder_Batch(t *testing.T) {
	e := NewHashEmbedder(32)

	texts := []string{"first text", "second text", "third text"}
	vecs, err := e.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("expected %d vectors, got %d", len(texts), len(vecs))
	}

	// Batch results must match single embeds.
	single, _ := e.Embed(context.Background(), texts[1])
	for i := range single {
		if vecs[1][i] != single[i] {
			t.Fatal("batch result differs from single embed")
		}
	}
}

func TestGetModelConfig(t *testing.T) {
	cfg := GetModelConfig("mxbai-embed-large")
	if cfg.Dimension != 1024 {
		t.Errorf("expected dimension 1024, got %d", cfg.Dimension)
	}

	// Unknown models fall back to conservative defaults.
	cfg = GetModelConfig("no-such-model")
	if cfg.Dimension != 768 {
		t.Errorf("expected fallback dimension 768, got %d", cfg.Dimension)
	}
}
