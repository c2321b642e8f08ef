package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/pressroom/internal/foundation/errors"
)

// Validate reports the first configuration problem as a classified config error.
func (c *Config) Validate() error {
	checks := []func() error{
		c.validateContent,
		c.validateSite,
		c.validateImages,
		c.validateBuild,
		c.validateDurations,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func invalid(field, format string, args ...any) error {
	return errors.ConfigError(fmt.Sprintf(format, args...)).WithContext("field", field).Build()
}

func (c *Config) validateContent() error {
	for key, topic := range c.Content.Topics {
		if strings.TrimSpace(key) == "" {
			return invalid("content.topics", "topic key cannot be empty")
		}
		if filepath.IsAbs(topic.Directory) || strings.HasPrefix(filepath.Clean(topic.Directory), "..") {
			return invalid("content.topics."+key+".directory", "topic directory must be relative to content.base_dir: %s", topic.Directory)
		}
	}
	return nil
}

func (c *Config) validateSite() error {
	if c.Site.BaseURL == "" {
		return nil
	}
	u, err := url.Parse(c.Site.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("site.base_url", "site.base_url must be an absolute http(s) URL: %s", c.Site.BaseURL)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return invalid("site.base_url", "site.base_url cannot carry a query or fragment")
	}
	return nil
}

func (c *Config) validateImages() error {
	img := c.Images
	for _, f := range img.Formats {
		if !formatNames.Valid(f) {
			return invalid("images.formats", "unknown image format %q (valid: jpeg, webp, avif)", f)
		}
	}

	names := make(map[string]bool, len(img.Sizes))
	for i, size := range img.Sizes {
		field := fmt.Sprintf("images.sizes[%d]", i)
		if size.Name == "" {
			return invalid(field, "size variant name cannot be empty")
		}
		if names[size.Name] {
			return invalid(field, "duplicate size variant name: %s", size.Name)
		}
		names[size.Name] = true
		if size.Width <= 0 {
			return invalid(field, "size variant %s: width must be positive", size.Name)
		}
		if size.Height < 0 {
			return invalid(field, "size variant %s: height cannot be negative", size.Name)
		}
		if size.Crop && size.Height == 0 {
			return invalid(field, "size variant %s: crop requires a height", size.Name)
		}
	}

	for format, classes := range img.Quality {
		if !formatNames.Valid(format) {
			return invalid("images.quality", "unknown image format %q", format)
		}
		for class, q := range classes {
			if q < 1 || q > 100 {
				return invalid("images.quality", "%s/%s quality %d out of range 1..100", format, class, q)
			}
		}
	}

	if !resampleNames.Valid(img.Resample) {
		_, err := resampleNames.Parse(img.Resample)
		return invalid("images.resample", "%v", err)
	}
	if !strings.Contains(img.Naming, "{slug}") || !strings.Contains(img.Naming, "{ext}") {
		return invalid("images.naming", "naming pattern must contain {slug} and {ext}: %s", img.Naming)
	}
	if strings.Contains(img.Naming, "/") {
		return invalid("images.naming", "naming pattern cannot contain path separators")
	}
	if filepath.IsAbs(img.OutputDir) || strings.HasPrefix(filepath.Clean(img.OutputDir), "..") {
		return invalid("images.output_dir", "images.output_dir must be relative to build.output_dir")
	}
	return nil
}

func (c *Config) validateBuild() error {
	base, err := filepath.Abs(c.Content.BaseDir)
	if err != nil {
		return invalid("content.base_dir", "resolve content.base_dir: %v", err)
	}
	out, err := filepath.Abs(c.Build.OutputDir)
	if err != nil {
		return invalid("build.output_dir", "resolve build.output_dir: %v", err)
	}
	if base == out {
		return invalid("build.output_dir", "build.output_dir must differ from content.base_dir")
	}
	if rel, err := filepath.Rel(out, base); err == nil && !strings.HasPrefix(rel, "..") {
		return invalid("build.output_dir", "content.base_dir cannot live inside build.output_dir")
	}
	if c.Build.Workers < 0 {
		return invalid("build.workers", "workers cannot be negative")
	}
	return nil
}

func (c *Config) validateDurations() error {
	durations := map[string]string{
		"build.job_timeout": c.Build.JobTimeout,
		"notify.timeout":    c.Notify.Timeout,
		"watch.debounce":    c.Watch.Debounce,
		"watch.interval":    c.Watch.Interval,
	}
	for field, raw := range durations {
		if raw == "" {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return invalid(field, "invalid duration %q: %v", raw, err)
		}
		if d < 0 {
			return invalid(field, "duration cannot be negative: %s", raw)
		}
	}
	return nil
}
