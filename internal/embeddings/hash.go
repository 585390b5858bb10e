package embeddings

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// HashEmbedding is an offline text provider based on feature hashing of
// lower-cased word tokens. Texts sharing words have positive similarity;
// texts without common words are (almost always) orthogonal.
type HashEmbedding struct {
	dims int
}

func NewHashEmbedding(dims int) *HashEmbedding {
	return &HashEmbedding{dims: dims}
}

func (h *HashEmbedding) Name() string { return "hash" }

func (h *HashEmbedding) Dimensions() int { return h.dims }

func (h *HashEmbedding) Load(ctx context.Context) error {
	if h.dims <= 0 {
		return fmt.Errorf("hash embedding needs positive dimensions, got %d", h.dims)
	}
	return nil
}

func (h *HashEmbedding) Forward(ctx context.Context, input string) ([]float32, error) {
	vec := make([]float32, h.dims)
	for _, token := range tokenize(input) {
		sum := xxhash.Sum64String(token)
		idx := sum % uint64(h.dims)
		// top bit selects the sign
		if sum>>63 == 1 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}
	normalize(vec)
	return vec, nil
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// normalize scales v to unit length in place. Zero vectors are left as is.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
