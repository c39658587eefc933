package vision

import (
	"fmt"
	"image"
	"strings"

	"golang.org/x/image/draw"
)

// Normalization selects how pixel intensities are scaled before inference.
type Normalization string

const (
	// NormalizeUnit divides intensities by 255 into [0,1].
	NormalizeUnit Normalization = "unit"
	// NormalizeRaw keeps intensities in [0,255].
	NormalizeRaw Normalization = "raw"
)

// ParseNormalization accepts "unit" or "raw"; empty means unit.
func ParseNormalization(s string) (Normalization, error) {
	switch Normalization(strings.ToLower(strings.TrimSpace(s))) {
	case "", NormalizeUnit:
		return NormalizeUnit, nil
	case NormalizeRaw:
		return NormalizeRaw, nil
	default:
		return "", fmt.Errorf("unknown normalization %q", s)
	}
}

// Preprocess resizes img to size x size with nearest-neighbour sampling and
// returns its RGB intensities.
func Preprocess(img image.Image, size int, norm Normalization) (Tensor, error) {
	if img == nil || img.Bounds().Empty() {
		return Tensor{}, ErrInvalidImage
	}
	if size <= 0 {
		return Tensor{}, fmt.Errorf("invalid input size %d", size)
	}

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	scale := float32(1)
	if norm != NormalizeRaw {
		scale = 1.0 / 255.0
	}

	data := make([]float32, 0, size*size*3)
	for y := 0; y < size; y++ {
		row := dst.Pix[y*dst.Stride : y*dst.Stride+size*4]
		for x := 0; x < size; x++ {
			px := row[x*4 : x*4+3]
			data = append(data, float32(px[0])*scale, float32(px[1])*scale, float32(px[2])*scale)
		}
	}

	return Tensor{Height: size, Width: size, Channels: 3, Data: data}, nil
}
