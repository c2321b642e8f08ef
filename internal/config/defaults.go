package config

import (
	"strings"

	"git.home.luguber.info/inful/pressroom/internal/foundation/normalization"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultBaseDir       = "content"
	DefaultOutputDir     = "public"
	DefaultImageDir      = "images"
	DefaultCacheFile     = ".pressroom/build-cache.json"
	DefaultHistoryPath   = ".pressroom/history.db"
	DefaultNaming        = "{slug}-{variant}-{width}x{height}.{ext}"
	DefaultResample      = "lanczos"
	DefaultNotifySubject = "pressroom.builds"
	DefaultMetricsListen = ":9464"
	DefaultMetricsPath   = "/metrics"
	DefaultLanguage      = "en"
	DefaultFeedItems     = 20
	DefaultWordsPerMin   = 200
)

// Size variant quality classes.
const (
	ClassThumbnail = "thumbnail"
	ClassStandard  = "standard"
)

var formatNames = normalization.New("image format", map[string]string{
	"jpeg": "jpeg",
	"jpg":  "jpeg",
	"webp": "webp",
	"avif": "avif",
}, "")

var resampleNames = normalization.New("resample filter", map[string]string{
	"lanczos":    "lanczos",
	"catmullrom": "catmullrom",
	"mitchell":   "mitchell",
	"linear":     "linear",
	"box":        "box",
	"nearest":    "nearest",
}, DefaultResample)

var classNames = normalization.New("size class", map[string]string{
	ClassThumbnail: ClassThumbnail,
	"thumb":        ClassThumbnail,
	ClassStandard:  ClassStandard,
}, ClassStandard)

// ApplyDefaults fills unset fields and canonicalizes enum-like strings.
// Unknown values are kept so Validate can report them.
func (c *Config) ApplyDefaults() {
	if c.Content.BaseDir == "" {
		c.Content.BaseDir = DefaultBaseDir
	}
	for key, topic := range c.Content.Topics {
		if topic.Directory == "" {
			topic.Directory = key
		}
		if topic.Name == "" {
			topic.Name = key
		}
		c.Content.Topics[key] = topic
	}

	if c.Content.RawHTML == nil {
		enabled := true
		c.Content.RawHTML = &enabled
	}
	if c.Content.WordsPerMinute <= 0 {
		c.Content.WordsPerMinute = DefaultWordsPerMin
	}

	c.Site.BaseURL = strings.TrimRight(strings.TrimSpace(c.Site.BaseURL), "/")
	if c.Site.Language == "" {
		c.Site.Language = DefaultLanguage
	}
	if c.Site.FeedItems <= 0 {
		c.Site.FeedItems = DefaultFeedItems
	}

	c.applyImageDefaults()

	if c.Build.OutputDir == "" {
		c.Build.OutputDir = DefaultOutputDir
	}
	if c.Build.CacheFile == "" {
		c.Build.CacheFile = DefaultCacheFile
	}
	if c.Build.Workers <= 0 {
		c.Build.Workers = defaultWorkers()
	}
	if c.Build.Fingerprint == nil {
		enabled := true
		c.Build.Fingerprint = &enabled
	}

	if c.History.Path == "" {
		c.History.Path = DefaultHistoryPath
	}
	if c.Notify.Subject == "" {
		c.Notify.Subject = DefaultNotifySubject
	}
	if c.Notify.Timeout == "" {
		c.Notify.Timeout = "5s"
	}
	if c.Watch.Debounce == "" {
		c.Watch.Debounce = "500ms"
	}

	if c.Monitoring.Metrics.Listen == "" {
		c.Monitoring.Metrics.Listen = DefaultMetricsListen
	}
	if c.Monitoring.Metrics.Path == "" {
		c.Monitoring.Metrics.Path = DefaultMetricsPath
	}
	if c.Monitoring.Logging.Level == "" {
		c.Monitoring.Logging.Level = LogLevelInfo
	} else {
		c.Monitoring.Logging.Level = NormalizeLogLevel(string(c.Monitoring.Logging.Level))
	}
	c.Monitoring.Logging.Format = NormalizeLogFormat(string(c.Monitoring.Logging.Format))
}

func (c *Config) applyImageDefaults() {
	img := &c.Images
	if len(img.Formats) == 0 {
		img.Formats = []string{"webp", "jpeg"}
	}
	seen := make(map[string]bool, len(img.Formats))
	formats := img.Formats[:0]
	for _, raw := range img.Formats {
		f := normalization.Clean(raw)
		if formatNames.Valid(f) {
			f = formatNames.Normalize(f)
		}
		if seen[f] {
			continue
		}
		seen[f] = true
		formats = append(formats, f)
	}
	img.Formats = formats

	for i := range img.Sizes {
		img.Sizes[i].Name = normalization.Clean(img.Sizes[i].Name)
		img.Sizes[i].Class = classNames.Normalize(img.Sizes[i].Class)
	}

	if len(img.Quality) > 0 {
		quality := make(map[string]map[string]int, len(img.Quality))
		for format, classes := range img.Quality {
			f := normalization.Clean(format)
			if formatNames.Valid(f) {
				f = formatNames.Normalize(f)
			}
			if quality[f] == nil {
				quality[f] = make(map[string]int, len(classes))
			}
			for class, q := range classes {
				quality[f][classNames.Normalize(class)] = q
			}
		}
		img.Quality = quality
	}

	if img.Naming == "" {
		img.Naming = DefaultNaming
	}
	if img.Resample == "" {
		img.Resample = DefaultResample
	} else if resampleNames.Valid(img.Resample) {
		img.Resample = resampleNames.Normalize(img.Resample)
	}
	if img.OutputDir == "" {
		img.OutputDir = DefaultImageDir
	}
}
