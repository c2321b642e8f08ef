package transcode

import (
	"slices"
	"strings"

	"git.home.luguber.info/inful/pressroom/internal/util/sets"
)

// Format is an output image encoding.
type Format string

const (
	JPEG Format = "jpeg"
	WebP Format = "webp"
	AVIF Format = "avif"
)

// Ext returns the file extension without the dot.
func (f Format) Ext() string {
	if f == JPEG {
		return "jpg"
	}
	return string(f)
}

// preference orders formats for listing.
var preference = []Format{AVIF, WebP, JPEG}

// Capabilities is the set of formats whose encoders are compiled in.
type Capabilities struct {
	formats sets.Set[Format]
}

// NewCapabilities builds a capability set. JPEG is always included.
func NewCapabilities(formats ...Format) Capabilities {
	s := sets.New(formats...)
	s.Add(JPEG)
	return Capabilities{formats: s}
}

// Has reports whether f can be encoded.
func (c Capabilities) Has(f Format) bool {
	return c.formats.Has(f)
}

// List returns the available formats, most efficient first.
func (c Capabilities) List() []Format {
	out := make([]Format, 0, c.formats.Len())
	for _, f := range preference {
		if c.formats.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// String renders the set as a stable comma separated list.
func (c Capabilities) String() string {
	names := make([]string, 0, c.formats.Len())
	for f := range c.formats {
		names = append(names, string(f))
	}
	slices.Sort(names)
	return strings.Join(names, ",")
}
