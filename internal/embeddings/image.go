package embeddings

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"strings"

	"github.com/disintegration/imaging"

	interrors "github.com/streed/snapnotes/internal/errors"
)

// ImagePath strips a file:// scheme from an image reference.
func ImagePath(ref string) string {
	return strings.TrimPrefix(ref, "file://")
}

func openImage(ref string) (image.Image, error) {
	path := ImagePath(ref)
	f, err := os.Open(path)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrPermission):
			return nil, interrors.Permission("open image", err)
		default:
			return nil, interrors.Storage("open image", err)
		}
	}
	defer f.Close()

	img, err := imaging.Decode(f, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", path, err)
	}
	return img, nil
}

// jpegDataURI scales img to fit within side x side and encodes it as a
// base64 JPEG data URI.
func jpegDataURI(img image.Image, side int) (string, error) {
	fitted := imaging.Fit(img, side, side, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, fitted, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return "", fmt.Errorf("encode image: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
