//go:build !nowebp

package transcode

import (
	"image"
	"io"

	"github.com/gen2brain/webp"
)

func init() {
	registerEncoder(WebP, func(w io.Writer, img image.Image, quality int) error {
		return webp.Encode(w, img, webp.Options{Quality: quality, Method: 4})
	})
}
