package blog

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"

	_ "image/gif"
	_ "image/png"
)

// Normalizer re-encodes arbitrary image payloads as JPEG at a fixed
// quality factor so stored blobs have a bounded size regardless of how
// the upload was encoded.
type Normalizer struct {
	quality  int
	maxWidth int
}

func NewNormalizer(quality, maxWidth int) *Normalizer {
	return &Normalizer{quality: quality, maxWidth: maxWidth}
}

// Normalize decodes data and re-encodes it as JPEG. Inputs wider than the
// configured max width are scaled down first; scaling only ever shrinks.
// Output bytes are not guaranteed stable across encoder versions, only
// decodable and within the quality bound.
func (n *Normalizer) Normalize(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompressionFailed, err)
	}

	if n.maxWidth > 0 && img.Bounds().Dx() > n.maxWidth {
		img = resizeImage(img, n.maxWidth)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: n.quality}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompressionFailed, err)
	}

	return buf.Bytes(), nil
}

func resizeImage(source image.Image, maxWidth int) image.Image {
	b := source.Bounds()
	currentWidth := b.Dx()

	// ensure scales down only
	if currentWidth <= maxWidth {
		return source
	}

	newHeight := (b.Dy() * maxWidth) / currentWidth

	dest := image.NewRGBA(image.Rect(0, 0, maxWidth, newHeight))

	// bilinear has a good quality / speed tradeoff
	draw.BiLinear.Scale(dest, dest.Bounds(), source, source.Bounds(), draw.Over, nil)

	return dest
}
