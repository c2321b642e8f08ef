//go:build !noavif

package transcode

import (
	"image"
	"io"

	"github.com/gen2brain/avif"
)

// avifSpeed trades encode time for size; 0 is slowest, 10 fastest.
const avifSpeed = 8

func init() {
	registerEncoder(AVIF, func(w io.Writer, img image.Image, quality int) error {
		return avif.Encode(w, img, avif.Options{Quality: quality, QualityAlpha: quality, Speed: avifSpeed})
	})
}
