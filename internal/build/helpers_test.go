package build

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pressroom/internal/cache"
	"git.home.luguber.info/inful/pressroom/internal/config"
	"git.home.luguber.info/inful/pressroom/internal/transcode"
)

const scenarioConfig = `
images:
  formats: [jpeg, webp]
  sizes:
    - {name: large, width: 1200}
    - {name: thumb, width: 200}
build:
  workers: 4
`

// project is a build fixture rooted in a temporary directory.
type project struct {
	t       *testing.T
	content string
	public  string
	state   string
	cfg     *config.Config
}

func newProject(t *testing.T, yaml string) *project {
	t.Helper()
	root := t.TempDir()
	cfg, err := config.Parse([]byte(yaml))
	require.NoError(t, err)
	return &project{
		t:       t,
		content: filepath.Join(root, "content"),
		public:  filepath.Join(root, "public"),
		state:   filepath.Join(root, "state"),
		cfg:     cfg,
	}
}

func (s *project) runner(opts ...Option) *Runner {
	base := []Option{
		WithContentFS(osfs.New(s.content)),
		WithOutputFS(osfs.New(s.public)),
		WithStateFS(osfs.New(s.state), "build-cache.json"),
		WithCapabilities(transcode.NewCapabilities(transcode.WebP)),
	}
	return NewRunner(s.cfg, append(base, opts...)...)
}

func (s *project) build(opts RunOptions, runnerOpts ...Option) *BuildReport {
	s.t.Helper()
	report, err := s.runner(runnerOpts...).Run(context.Background(), opts)
	require.NoError(s.t, err)
	return report
}

func (s *project) write(rel string, data []byte) {
	s.t.Helper()
	p := filepath.Join(s.content, filepath.FromSlash(rel))
	require.NoError(s.t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(s.t, os.WriteFile(p, data, 0o644))
}

func (s *project) remove(rel string) {
	s.t.Helper()
	require.NoError(s.t, os.Remove(filepath.Join(s.content, filepath.FromSlash(rel))))
}

// touch moves the mtime of rel into the future.
func (s *project) touch(rel string) {
	s.t.Helper()
	future := time.Now().Add(time.Hour)
	require.NoError(s.t, os.Chtimes(filepath.Join(s.content, filepath.FromSlash(rel)), future, future))
}

func (s *project) outputExists(rel string) bool {
	_, err := os.Stat(filepath.Join(s.public, filepath.FromSlash(rel)))
	return err == nil
}

func (s *project) cacheBytes() []byte {
	s.t.Helper()
	data, err := os.ReadFile(filepath.Join(s.state, "build-cache.json"))
	require.NoError(s.t, err)
	return data
}

func (s *project) cache() *cache.BuildCache {
	return cache.NewStore(osfs.New(s.state), "build-cache.json").Load()
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	return encoded(t, w, h, imaging.JPEG)
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	return encoded(t, w, h, imaging.PNG)
}

func encoded(t *testing.T, w, h int, format imaging.Format) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, format))
	return buf.Bytes()
}

func (s *project) readOutput(rel string) string {
	s.t.Helper()
	data, err := os.ReadFile(filepath.Join(s.public, filepath.FromSlash(rel)))
	require.NoError(s.t, err)
	return string(data)
}

type recordingHistory struct {
	mu      sync.Mutex
	reports []*BuildReport
}

func (h *recordingHistory) Record(_ context.Context, r *BuildReport) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reports = append(h.reports, r)
	return nil
}

func (h *recordingHistory) Publish(ctx context.Context, r *BuildReport) error {
	return h.Record(ctx, r)
}
