package embeddings

import (
	"context"
	"errors"
	"fmt"

	"github.com/disintegration/imaging"

	"github.com/streed/snapnotes/internal/constants"
)

// ThumbnailEmbedding is an offline image provider: the image is reduced to a
// tiny RGB thumbnail whose mean-centred, unit-length pixels form the vector.
// Visually similar pictures score high. It has no text counterpart. A flat
// gray picture has nothing left after centring and keeps its raw pixels; an
// all-black one cannot be embedded.
type ThumbnailEmbedding struct {
	side int
}

func NewThumbnailEmbedding() *ThumbnailEmbedding {
	return &ThumbnailEmbedding{side: constants.ThumbnailSide}
}

func (t *ThumbnailEmbedding) Name() string { return "thumbnail" }

func (t *ThumbnailEmbedding) Dimensions() int { return t.side * t.side * 3 }

func (t *ThumbnailEmbedding) Load(ctx context.Context) error { return nil }

func (t *ThumbnailEmbedding) Forward(ctx context.Context, ref string) ([]float32, error) {
	img, err := openImage(ref)
	if err != nil {
		return nil, err
	}
	thumb := imaging.Resize(img, t.side, t.side, imaging.Box)

	vec := make([]float32, 0, t.Dimensions())
	for i := 0; i < len(thumb.Pix); i += 4 {
		vec = append(vec,
			float32(thumb.Pix[i])/255,
			float32(thumb.Pix[i+1])/255,
			float32(thumb.Pix[i+2])/255,
		)
	}

	raw := append([]float32(nil), vec...)
	var mean float32
	for _, x := range vec {
		mean += x
	}
	mean /= float32(len(vec))
	for i := range vec {
		vec[i] -= mean
	}
	if isZero(vec) {
		if isZero(raw) {
			return nil, fmt.Errorf("embed %s: %w", ref, errBlankImage)
		}
		vec = raw
	}
	normalize(vec)
	return vec, nil
}

var errBlankImage = errors.New("image is blank")

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
