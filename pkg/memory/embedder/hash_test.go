package embedder_test

import (
	"context"
	"math"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/wandersync/pkg/memory/embedder"
)

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestHashEmbed(t *testing.T) {
	ctx := context.Background()
	e := embedder.NewHash(0)
	gt.Equal(t, e.Dimension(), embedder.DefaultDimension)

	v1, err := e.Embed(ctx, "Relax on Jumeirah Beach")
	gt.NoError(t, err)
	gt.A(t, v1).Length(embedder.DefaultDimension)

	var norm float64
	for _, v := range v1 {
		norm += float64(v) * float64(v)
	}
	gt.True(t, math.Abs(norm-1) < 1e-5)

	t.Run("deterministic and case insensitive", func(t *testing.T) {
		v2, err := e.Embed(ctx, "relax on jumeirah beach!")
		gt.NoError(t, err)
		gt.True(t, cosine(v1, v2) > 0.9999)
	})

	t.Run("shared words are closer", func(t *testing.T) {
		near, err := e.Embed(ctx, "beach relax")
		gt.NoError(t, err)
		far, err := e.Embed(ctx, "museum tickets in Vienna")
		gt.NoError(t, err)
		gt.True(t, cosine(v1, near) > cosine(v1, far))
	})

	t.Run("empty text", func(t *testing.T) {
		_, err := e.Embed(ctx, "  ")
		gt.Error(t, err)
	})

	t.Run("punctuation only", func(t *testing.T) {
		v, err := e.Embed(ctx, "!!!")
		gt.NoError(t, err)
		gt.A(t, v).Length(embedder.DefaultDimension)
	})
}

func TestHashCustomDimension(t *testing.T) {
	e := embedder.NewHash(16)
	v, err := e.Embed(context.Background(), "Dubai")
	gt.NoError(t, err)
	gt.A(t, v).Length(16)
}
