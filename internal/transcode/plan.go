package transcode

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"git.home.luguber.info/inful/pressroom/internal/config"
)

// Version identifies the resize and naming behaviour. Bumping it
// invalidates every image entry.
const Version = "1"

// OriginalVariant names the single variant used when no sizes are configured.
const OriginalVariant = "original"

// SizeVariant is a named target dimension profile. Width 0 keeps the source width.
type SizeVariant struct {
	Name   string
	Width  int
	Height int
	Crop   bool
	Class  string
}

// ImageJob is one (format, size, quality) combination for one source image.
type ImageJob struct {
	Slug    string
	Format  Format
	Variant SizeVariant
	Quality int
	Naming  string
}

// String identifies the job in logs.
func (j ImageJob) String() string {
	return j.Variant.Name + "/" + string(j.Format)
}

// Settings is the image matrix resolved from configuration.
type Settings struct {
	Formats []Format
	Sizes   []SizeVariant
	Quality map[Format]map[string]int
	Naming  string
}

// defaultQuality holds per-format quality for the thumbnail and standard classes.
var defaultQuality = map[Format]map[string]int{
	JPEG: {config.ClassThumbnail: 80, config.ClassStandard: 85},
	WebP: {config.ClassThumbnail: 75, config.ClassStandard: 80},
	AVIF: {config.ClassThumbnail: 65, config.ClassStandard: 70},
}

// SettingsFromConfig converts validated image configuration.
func SettingsFromConfig(cfg config.ImagesConfig) Settings {
	s := Settings{
		Quality: map[Format]map[string]int{},
		Naming:  cfg.Naming,
	}
	for _, f := range cfg.Formats {
		s.Formats = append(s.Formats, Format(f))
	}
	for _, size := range cfg.Sizes {
		s.Sizes = append(s.Sizes, SizeVariant{
			Name:   size.Name,
			Width:  size.Width,
			Height: size.Height,
			Crop:   size.Crop,
			Class:  size.Class,
		})
	}
	for f, classes := range cfg.Quality {
		s.Quality[Format(f)] = classes
	}
	if s.Naming == "" {
		s.Naming = config.DefaultNaming
	}
	return s
}

// QualityFor returns the configured quality for a format and size class,
// falling back to the built-in defaults.
func (s Settings) QualityFor(f Format, class string) int {
	if class == "" {
		class = config.ClassStandard
	}
	if q, ok := s.Quality[f][class]; ok && q > 0 {
		return q
	}
	if q, ok := defaultQuality[f][class]; ok {
		return q
	}
	return 85
}

// ResolveFormats intersects the configured formats with caps. When nothing
// remains JPEG is substituted and fallback is true.
func ResolveFormats(configured []Format, caps Capabilities) (formats []Format, fallback bool) {
	for _, f := range configured {
		if caps.Has(f) {
			formats = append(formats, f)
		}
	}
	if len(formats) == 0 {
		return []Format{JPEG}, true
	}
	return formats, false
}

// Plan builds the job matrix for one image: resolved formats times size
// variants. Jobs are ordered by variant, then format.
func Plan(slug string, s Settings, caps Capabilities) []ImageJob {
	formats, _ := ResolveFormats(s.Formats, caps)
	sizes := s.Sizes
	if len(sizes) == 0 {
		sizes = []SizeVariant{{Name: OriginalVariant, Class: config.ClassStandard}}
	}

	jobs := make([]ImageJob, 0, len(formats)*len(sizes))
	for _, size := range sizes {
		for _, f := range formats {
			jobs = append(jobs, ImageJob{
				Slug:    slug,
				Format:  f,
				Variant: size,
				Quality: s.QualityFor(f, size.Class),
				Naming:  s.Naming,
			})
		}
	}
	return jobs
}

// OutputName expands the naming pattern for a job whose output measures w x h.
// Placeholders: {slug} {variant} {width} {height} {format} {ext}.
func (j ImageJob) OutputName(w, h int) string {
	pattern := j.Naming
	if pattern == "" {
		pattern = config.DefaultNaming
	}
	r := strings.NewReplacer(
		"{slug}", j.Slug,
		"{variant}", j.Variant.Name,
		"{width}", strconv.Itoa(w),
		"{height}", strconv.Itoa(h),
		"{format}", string(j.Format),
		"{ext}", j.Format.Ext(),
	)
	return r.Replace(pattern)
}

// Signature summarizes everything that shapes image outputs besides the
// configuration snapshot: the capability set and the resize version.
func Signature(configSnapshot string, caps Capabilities) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(configSnapshot+"|caps="+caps.String()+"|v="+Version))
}
