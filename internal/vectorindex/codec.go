package vectorindex

import (
	"encoding/binary"
	"fmt"
	"math"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"github.com/streed/snapnotes/internal/constants"
	interrors "github.com/streed/snapnotes/internal/errors"
)

// encode uses the sqlite-vec float32 blob layout so stored vectors remain
// usable by vec_* SQL functions.
func encode(v []float32) ([]byte, error) {
	return sqlite_vec.SerializeFloat32(v)
}

func decode(data []byte) ([]float32, error) {
	if len(data)%constants.BytesPerFloat32 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", interrors.ErrInvalidEmbedding, len(data))
	}
	v := make([]float32, len(data)/constants.BytesPerFloat32)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*constants.BytesPerFloat32:]))
	}
	return v, nil
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// cosine expects precomputed, non-zero norms.
func cosine(a []float32, normA float64, b []float32, normB float64) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (normA * normB)
}
