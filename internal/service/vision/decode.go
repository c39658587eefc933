package vision

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	_ "golang.org/x/image/webp"
)

// DefaultMaxPixels caps width*height of an accepted upload (40 MP).
const DefaultMaxPixels = 40_000_000

// Decoded is an uploaded image together with its content digest.
type Decoded struct {
	Image  image.Image
	Format string
	SHA256 string
}

// Decode reads an encoded image (jpeg, png, gif or webp). The header is
// checked against maxPixels before any pixel buffer is allocated; zero or
// less means DefaultMaxPixels.
func Decode(r io.Reader, maxPixels int) (Decoded, error) {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return Decoded{}, fmt.Errorf("read image: %w", err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Decoded{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Decoded{}, fmt.Errorf("%w: empty bounds", ErrInvalidImage)
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return Decoded{}, fmt.Errorf("%w: %dx%d exceeds %d", ErrImageTooLarge, cfg.Width, cfg.Height, maxPixels)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Decoded{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if img.Bounds().Empty() {
		return Decoded{}, fmt.Errorf("%w: empty bounds", ErrInvalidImage)
	}
	sum := sha256.Sum256(data)
	return Decoded{Image: img, Format: format, SHA256: hex.EncodeToString(sum[:])}, nil
}
