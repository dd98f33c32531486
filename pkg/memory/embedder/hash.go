package embedder

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/m-mizutani/goerr/v2"
)

// DefaultDimension is the vector length used when none is given
const DefaultDimension = 384

// Hash is a deterministic offline embedder based on token feature hashing.
// Texts sharing words produce vectors with positive cosine similarity, which
// is enough for local runs and tests without an embedding model.
type Hash struct {
	dimension int
}

// NewHash creates a Hash embedder. dimension <= 0 means DefaultDimension.
func NewHash(dimension int) *Hash {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Hash{dimension: dimension}
}

func (x *Hash) Dimension() int {
	return x.dimension
}

func (x *Hash) Embed(_ context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, goerr.New("text is empty")
	}

	tokens := tokenize(text)
	if len(tokens) == 0 {
		tokens = []string{text}
	}

	vec := make([]float32, x.dimension)
	for _, token := range tokens {
		h := fnv.New64a()
		h.Write([]byte(token))
		sum := h.Sum64()

		idx := sum % uint64(x.dimension)
		if sum>>63 == 0 {
			vec[idx]++
		} else {
			vec[idx]--
		}
	}

	return normalize(vec), nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}

	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
	return vec
}
