package transcode

import (
	"image"
	"io"
	"sync"
)

// encodeFunc writes img in a single format at the given quality (1..100).
type encodeFunc func(w io.Writer, img image.Image, quality int) error

// encoders is populated by init functions in the codec_*.go files, some of
// which are excluded by build tags.
var encoders = map[Format]encodeFunc{}

func registerEncoder(f Format, enc encodeFunc) {
	encoders[f] = enc
}

var available = sync.OnceValue(func() Capabilities {
	formats := make([]Format, 0, len(encoders))
	for f := range encoders {
		formats = append(formats, f)
	}
	return NewCapabilities(formats...)
})

// Available returns the formats compiled into this binary. The set is
// resolved once and never changes afterwards.
func Available() Capabilities {
	return available()
}
