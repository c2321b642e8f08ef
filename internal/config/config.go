package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/pressroom/internal/foundation/errors"
)

// DefaultPath is the configuration file read when --config is not given.
const DefaultPath = "pressroom.yaml"

// Config is the pressroom configuration file.
type Config struct {
	Content    ContentConfig    `yaml:"content"`
	Site       SiteConfig       `yaml:"site"`
	Images     ImagesConfig     `yaml:"images"`
	Build      BuildConfig      `yaml:"build"`
	History    HistoryConfig    `yaml:"history"`
	Notify     NotifyConfig     `yaml:"notify"`
	Watch      WatchConfig      `yaml:"watch"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// ContentConfig describes the source tree.
type ContentConfig struct {
	BaseDir        string           `yaml:"base_dir"`
	Topics         map[string]Topic `yaml:"topics,omitempty"`
	IncludeDrafts  bool             `yaml:"include_drafts"`
	EmitJSON       bool             `yaml:"emit_json"`
	RawHTML        *bool            `yaml:"raw_html,omitempty"` // pass embedded HTML through
	WordsPerMinute int              `yaml:"words_per_minute,omitempty"`
}

// SiteConfig describes the site as a whole. The feed and sitemap are only
// generated when BaseURL is set, since both need absolute links.
type SiteConfig struct {
	Title       string `yaml:"title,omitempty"`
	BaseURL     string `yaml:"base_url,omitempty"`
	Description string `yaml:"description,omitempty"`
	Language    string `yaml:"language"`
	FeedItems   int    `yaml:"feed_items,omitempty"`
}

// Topic groups articles under a directory of the content root.
type Topic struct {
	Name        string `yaml:"name"`
	Directory   string `yaml:"directory"`
	Description string `yaml:"description,omitempty"`
}

// ImagesConfig describes the image transcoding matrix.
type ImagesConfig struct {
	Formats      []string                  `yaml:"formats"`
	Sizes        []SizeConfig              `yaml:"sizes,omitempty"`
	Quality      map[string]map[string]int `yaml:"quality,omitempty"` // format -> class -> 1..100
	Naming       string                    `yaml:"naming"`
	Resample     string                    `yaml:"resample"`
	AllowUpscale bool                      `yaml:"allow_upscale"`
	OutputDir    string                    `yaml:"output_dir"`
}

// SizeConfig is one named size variant.
type SizeConfig struct {
	Name   string `yaml:"name"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height,omitempty"`
	Crop   bool   `yaml:"crop,omitempty"`
	Class  string `yaml:"class,omitempty"` // thumbnail|standard
}

// BuildConfig controls the build pipeline.
type BuildConfig struct {
	OutputDir   string `yaml:"output_dir"`
	CacheFile   string `yaml:"cache_file"`
	Workers     int    `yaml:"workers"`
	Fingerprint *bool  `yaml:"fingerprint,omitempty"`
	JobTimeout  string `yaml:"job_timeout,omitempty"`
}

// HistoryConfig controls the SQLite build history.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// NotifyConfig controls build report publication over NATS. An empty URL disables it.
type NotifyConfig struct {
	NATSURL string `yaml:"nats_url,omitempty"`
	Subject string `yaml:"subject"`
	Timeout string `yaml:"timeout"`
}

// WatchConfig controls watch mode.
type WatchConfig struct {
	Debounce string `yaml:"debounce"`
	Interval string `yaml:"interval,omitempty"`
}

// MonitoringConfig represents monitoring and observability configuration
type MonitoringConfig struct {
	Metrics MonitoringMetrics `yaml:"metrics"`
	Logging MonitoringLogging `yaml:"logging"`
}

// MonitoringMetrics represents metrics configuration
type MonitoringMetrics struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}

// MonitoringLogging represents logging configuration
type MonitoringLogging struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// RawHTMLEnabled reports whether raw HTML in markdown reaches the page.
func (c ContentConfig) RawHTMLEnabled() bool {
	return c.RawHTML == nil || *c.RawHTML
}

// Enabled reports whether feed.xml and sitemap.xml are generated.
func (s SiteConfig) Enabled() bool {
	return s.BaseURL != ""
}

// FingerprintEnabled reports whether content fingerprints back up mtime comparison.
func (b BuildConfig) FingerprintEnabled() bool {
	return b.Fingerprint == nil || *b.Fingerprint
}

// JobTimeoutDuration returns the per-job watchdog, or 0 when disabled.
func (b BuildConfig) JobTimeoutDuration() time.Duration {
	return mustDuration(b.JobTimeout)
}

// TimeoutDuration returns the publish timeout.
func (n NotifyConfig) TimeoutDuration() time.Duration {
	return mustDuration(n.Timeout)
}

// DebounceDuration returns the quiet period before a watch rebuild.
func (w WatchConfig) DebounceDuration() time.Duration {
	return mustDuration(w.Debounce)
}

// IntervalDuration returns the periodic rebuild interval, or 0 when disabled.
func (w WatchConfig) IntervalDuration() time.Duration {
	return mustDuration(w.Interval)
}

// mustDuration parses a duration already checked by Validate.
func mustDuration(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

// Load reads configPath, expands ${VAR} references and applies defaults.
func Load(configPath string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigError("configuration file not found").
				WithCause(err).
				WithContext("path", configPath).
				Build()
		}
		return nil, errors.WrapError(err, errors.CategoryConfig, "read configuration").
			Fatal().
			WithContext("path", configPath).
			Build()
	}

	return Parse([]byte(os.ExpandEnv(string(data))))
}

// Parse decodes YAML, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.ConfigError("invalid configuration YAML").WithCause(err).Build()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// Init writes an example configuration file.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return errors.ValidationError(fmt.Sprintf("configuration file already exists: %s (use --force to overwrite)", configPath)).Build()
	}

	example := Config{
		Content: ContentConfig{
			BaseDir: "content",
			Topics: map[string]Topic{
				"travel": {Name: "Travel", Directory: "travel", Description: "Notes from the road"},
				"code":   {Name: "Code", Directory: "code"},
			},
		},
		Site: SiteConfig{
			Title:     "My notebook",
			BaseURL:   "https://example.com",
			Language:  DefaultLanguage,
			FeedItems: DefaultFeedItems,
		},
		Images: ImagesConfig{
			Formats: []string{"avif", "webp", "jpeg"},
			Sizes: []SizeConfig{
				{Name: "large", Width: 1200},
				{Name: "thumb", Width: 200, Height: 200, Crop: true, Class: "thumbnail"},
			},
			Quality: map[string]map[string]int{
				"jpeg": {"thumbnail": 80, "standard": 85},
			},
			Naming:    DefaultNaming,
			Resample:  "lanczos",
			OutputDir: "images",
		},
		Build: BuildConfig{
			OutputDir:  "public",
			CacheFile:  DefaultCacheFile,
			JobTimeout: "2m",
		},
		History: HistoryConfig{Enabled: true, Path: DefaultHistoryPath},
		Notify:  NotifyConfig{NATSURL: "${PRESSROOM_NATS_URL}", Subject: DefaultNotifySubject, Timeout: "5s"},
		Watch:   WatchConfig{Debounce: "500ms", Interval: "1h"},
		Monitoring: MonitoringConfig{
			Metrics: MonitoringMetrics{Enabled: true, Listen: ":9464", Path: "/metrics"},
			Logging: MonitoringLogging{Level: LogLevelInfo, Format: LogFormatText},
		},
	}

	data, err := yaml.Marshal(&example)
	if err != nil {
		return errors.InternalError("marshal example configuration").WithCause(err).Build()
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return errors.WrapError(err, errors.CategoryIO, "write configuration file").
			Fatal().
			WithContext("path", configPath).
			Build()
	}
	return nil
}

func defaultWorkers() int {
	return runtime.NumCPU()
}
