package transcode

import (
	"image"
	"image/color"
	"io"

	"github.com/disintegration/imaging"
)

func init() {
	registerEncoder(JPEG, encodeJPEG)
}

// encodeJPEG flattens transparent sources onto white before encoding.
func encodeJPEG(w io.Writer, img image.Image, quality int) error {
	if !isOpaque(img) {
		b := img.Bounds()
		bg := imaging.New(b.Dx(), b.Dy(), color.White)
		img = imaging.Overlay(bg, img, image.Point{}, 1.0)
	}
	return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
}

func isOpaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	return false
}
