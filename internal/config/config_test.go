package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pressroom/internal/foundation/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pressroom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "content:\n  base_dir: site-src\n"))
	require.NoError(t, err)

	require.Equal(t, "site-src", cfg.Content.BaseDir)
	require.Equal(t, DefaultOutputDir, cfg.Build.OutputDir)
	require.Equal(t, DefaultCacheFile, cfg.Build.CacheFile)
	require.Equal(t, runtime.NumCPU(), cfg.Build.Workers)
	require.True(t, cfg.Build.FingerprintEnabled())
	require.Equal(t, []string{"webp", "jpeg"}, cfg.Images.Formats)
	require.Equal(t, DefaultNaming, cfg.Images.Naming)
	require.Equal(t, "lanczos", cfg.Images.Resample)
	require.Equal(t, 500*time.Millisecond, cfg.Watch.DebounceDuration())
	require.Zero(t, cfg.Build.JobTimeoutDuration())
	require.Equal(t, LogLevelInfo, cfg.Monitoring.Logging.Level)
	require.Equal(t, LogFormatText, cfg.Monitoring.Logging.Format)
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("PRESSROOM_TEST_OUT", "dist")
	cfg, err := Load(writeConfig(t, "build:\n  output_dir: ${PRESSROOM_TEST_OUT}\n"))
	require.NoError(t, err)
	require.Equal(t, "dist", cfg.Build.OutputDir)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryConfig))
}

func TestFingerprintCanBeDisabled(t *testing.T) {
	cfg, err := Parse([]byte("build:\n  fingerprint: false\n"))
	require.NoError(t, err)
	require.False(t, cfg.Build.FingerprintEnabled())
}

func TestFormatsAreCanonicalized(t *testing.T) {
	cfg, err := Parse([]byte("images:\n  formats: [JPG, webp, jpeg, ' AVIF ']\n  quality:\n    JPG:\n      thumb: 70\n"))
	require.NoError(t, err)
	require.Equal(t, []string{"jpeg", "webp", "avif"}, cfg.Images.Formats)
	require.Equal(t, 70, cfg.Images.Quality["jpeg"][ClassThumbnail])
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown format", "images:\n  formats: [tiff]\n"},
		{"zero width", "images:\n  sizes:\n    - name: large\n      width: 0\n"},
		{"duplicate size", "images:\n  sizes:\n    - {name: a, width: 10}\n    - {name: a, width: 20}\n"},
		{"crop without height", "images:\n  sizes:\n    - {name: sq, width: 10, crop: true}\n"},
		{"quality out of range", "images:\n  quality:\n    webp:\n      standard: 101\n"},
		{"unknown filter", "images:\n  resample: bicubic-ish\n"},
		{"naming without ext", "images:\n  naming: '{slug}-{variant}'\n"},
		{"same in and out", "content:\n  base_dir: site\nbuild:\n  output_dir: site\n"},
		{"bad duration", "build:\n  job_timeout: soon\n"},
		{"escaping topic", "content:\n  topics:\n    x:\n      directory: ../x\n"},
		{"relative base url", "site:\n  base_url: example.com/blog\n"},
		{"base url with query", "site:\n  base_url: https://example.com/?a=1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			require.True(t, errors.HasCategory(err, errors.CategoryConfig), "got %v", err)
		})
	}
}

func TestTopicDefaults(t *testing.T) {
	cfg, err := Parse([]byte("content:\n  topics:\n    travel: {}\n"))
	require.NoError(t, err)
	require.Equal(t, Topic{Name: "travel", Directory: "travel"}, cfg.Content.Topics["travel"])
}

func TestImagesSnapshot(t *testing.T) {
	a, err := Parse([]byte("images:\n  formats: [jpeg, webp]\n  sizes:\n    - {name: large, width: 1200}\n    - {name: thumb, width: 200}\n"))
	require.NoError(t, err)
	b, err := Parse([]byte("images:\n  formats: [webp, jpeg]\n  sizes:\n    - {name: thumb, width: 200}\n    - {name: large, width: 1200}\n"))
	require.NoError(t, err)
	require.Equal(t, a.ImagesSnapshot(), b.ImagesSnapshot(), "order must not matter")

	c, err := Parse([]byte("images:\n  formats: [jpeg, webp]\n  sizes:\n    - {name: large, width: 1200}\n    - {name: thumb, width: 200}\n    - {name: medium, width: 600}\n"))
	require.NoError(t, err)
	require.NotEqual(t, a.ImagesSnapshot(), c.ImagesSnapshot())

	// Content settings are independent of image settings.
	require.Equal(t, a.ContentSnapshot(), c.ContentSnapshot())
}

func TestContentAndSiteSettings(t *testing.T) {
	cfg, err := Parse([]byte("site:\n  base_url: ' https://example.com/blog/ '\n"))
	require.NoError(t, err)
	require.True(t, cfg.Content.RawHTMLEnabled())
	require.Equal(t, DefaultWordsPerMin, cfg.Content.WordsPerMinute)
	require.Equal(t, "https://example.com/blog", cfg.Site.BaseURL)
	require.Equal(t, DefaultLanguage, cfg.Site.Language)
	require.Equal(t, DefaultFeedItems, cfg.Site.FeedItems)
	require.True(t, cfg.Site.Enabled())
	require.False(t, Default().Site.Enabled())

	strict, err := Parse([]byte("content:\n  raw_html: false\n  words_per_minute: 250\n"))
	require.NoError(t, err)
	require.False(t, strict.Content.RawHTMLEnabled())
	require.NotEqual(t, cfg.ContentSnapshot(), strict.ContentSnapshot())

	// Site settings shape only the feed and sitemap.
	require.Equal(t, cfg.ContentSnapshot(), Default().ContentSnapshot())
	require.NotEqual(t, cfg.SiteSnapshot(), Default().SiteSnapshot())
}

func TestInitWritesLoadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pressroom.yaml")
	require.NoError(t, Init(path, false))

	err := Init(path, false)
	require.Error(t, err)
	require.NoError(t, Init(path, true))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Images.Sizes, 2)
	require.Equal(t, time.Hour, cfg.Watch.IntervalDuration())
	require.True(t, cfg.Site.Enabled())
}
