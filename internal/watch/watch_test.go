package watch

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/require"
)

type recordingBuilder struct {
	reasons chan string
	active  atomic.Int32
	overlap atomic.Bool
	delay   time.Duration
}

func newRecordingBuilder(delay time.Duration) *recordingBuilder {
	return &recordingBuilder{reasons: make(chan string, 64), delay: delay}
}

func (b *recordingBuilder) Build(ctx context.Context, reason string) error {
	if b.active.Add(1) > 1 {
		b.overlap.Store(true)
	}
	defer b.active.Add(-1)
	if b.delay > 0 {
		select {
		case <-time.After(b.delay):
		case <-ctx.Done():
		}
	}
	b.reasons <- reason
	return nil
}

func (b *recordingBuilder) next(t *testing.T) string {
	t.Helper()
	select {
	case r := <-b.reasons:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for build")
		return ""
	}
}

func startService(t *testing.T, svc *Service) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("service did not stop")
		}
	})
	select {
	case <-svc.Ready():
	case err := <-done:
		t.Fatalf("service exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("service not ready")
	}
}

func TestService_BuildsOnStartupAndChange(t *testing.T) {
	root := t.TempDir()
	b := newRecordingBuilder(0)
	svc := New(b, root).WithDebounce(50 * time.Millisecond)
	startService(t, svc)

	require.Equal(t, ReasonStartup, b.next(t))

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.md"), []byte("# A"), 0o600))
	require.Equal(t, ReasonChange, b.next(t))
}

func TestService_WatchesNewSubdirectories(t *testing.T) {
	root := t.TempDir()
	b := newRecordingBuilder(0)
	svc := New(b, root).WithDebounce(50 * time.Millisecond)
	startService(t, svc)
	require.Equal(t, ReasonStartup, b.next(t))

	sub := filepath.Join(root, "guides")
	require.NoError(t, os.Mkdir(sub, 0o750))
	require.Equal(t, ReasonChange, b.next(t))

	require.NoError(t, os.WriteFile(filepath.Join(sub, "b.md"), []byte("# B"), 0o600))
	require.Equal(t, ReasonChange, b.next(t))
}

func TestService_ConfigFileChangeTriggersBuild(t *testing.T) {
	root := t.TempDir()
	cfgDir := t.TempDir()
	cfgPath := filepath.Join(cfgDir, "pressroom.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("content: {}\n"), 0o600))

	b := newRecordingBuilder(0)
	svc := New(b, root).WithFiles(cfgPath).WithDebounce(50 * time.Millisecond)
	startService(t, svc)
	require.Equal(t, ReasonStartup, b.next(t))

	require.NoError(t, os.WriteFile(cfgPath, []byte("content: {emit_json: true}\n"), 0o600))
	require.Equal(t, ReasonChange, b.next(t))
}

func TestService_IntervalRebuild(t *testing.T) {
	b := newRecordingBuilder(0)
	svc := New(b, t.TempDir()).WithInterval(100 * time.Millisecond)
	startService(t, svc)

	require.Equal(t, ReasonStartup, b.next(t))
	require.Equal(t, ReasonInterval, b.next(t))
}

func TestService_BuildsNeverOverlap(t *testing.T) {
	b := newRecordingBuilder(100 * time.Millisecond)
	svc := New(b, t.TempDir())
	startService(t, svc)
	require.Eventually(t, func() bool { return b.active.Load() == 1 }, 5*time.Second, 5*time.Millisecond)

	for range 10 {
		svc.Trigger(ReasonChange)
	}
	require.Equal(t, ReasonStartup, b.next(t))
	require.Equal(t, ReasonChange, b.next(t))
	require.False(t, b.overlap.Load())

	// The burst collapsed into at most one follow-up build.
	select {
	case r := <-b.reasons:
		t.Fatalf("unexpected extra build %q", r)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestService_ServesMetrics(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "pressroom_workers 4\n")
	})
	b := newRecordingBuilder(0)
	svc := New(b, t.TempDir()).WithMetrics("127.0.0.1:0", "/metrics", handler)
	startService(t, svc)

	addr := svc.MetricsAddr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "pressroom_workers 4")
}

func TestService_MissingRootFails(t *testing.T) {
	svc := New(newRecordingBuilder(0), filepath.Join(t.TempDir(), "missing"))
	err := svc.Run(context.Background())
	require.Error(t, err)
}

func TestTreeWatcher_Relevant(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "public")
	require.NoError(t, os.Mkdir(out, 0o750))
	cfgPath := filepath.Join(t.TempDir(), "pressroom.yaml")

	w, err := newTreeWatcher([]string{root}, []string{cfgPath}, []string{out}, time.Second, slog.Default())
	require.NoError(t, err)
	defer w.close()

	cases := []struct {
		name string
		ev   fsnotify.Event
		want bool
	}{
		{"source write", fsnotify.Event{Name: filepath.Join(root, "a.md"), Op: fsnotify.Write}, true},
		{"source remove", fsnotify.Event{Name: filepath.Join(root, "img", "x.png"), Op: fsnotify.Remove}, true},
		{"chmod only", fsnotify.Event{Name: filepath.Join(root, "a.md"), Op: fsnotify.Chmod}, false},
		{"hidden file", fsnotify.Event{Name: filepath.Join(root, ".a.md.swp"), Op: fsnotify.Write}, false},
		{"backup file", fsnotify.Event{Name: filepath.Join(root, "a.md~"), Op: fsnotify.Write}, false},
		{"output dir", fsnotify.Event{Name: filepath.Join(out, "index.html"), Op: fsnotify.Create}, false},
		{"config file", fsnotify.Event{Name: cfgPath, Op: fsnotify.Rename}, true},
		{"config sibling", fsnotify.Event{Name: filepath.Join(filepath.Dir(cfgPath), "other.yaml"), Op: fsnotify.Write}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, w.relevant(tc.ev))
		})
	}
}

func TestWithin(t *testing.T) {
	require.True(t, within("/a/b", "/a/b"))
	require.True(t, within("/a/b", "/a/b/c.md"))
	require.False(t, within("/a/b", "/a/bc"))
	require.False(t, within("/a/b", "/a"))
}

func TestTreeWatcher_DropsIgnoreContainingRoot(t *testing.T) {
	root := t.TempDir()
	w, err := newTreeWatcher([]string{root}, nil, []string{filepath.Dir(root), root}, time.Second, slog.Default())
	require.NoError(t, err)
	defer w.close()

	require.Empty(t, w.ignore)
	require.True(t, w.relevant(fsnotify.Event{Name: filepath.Join(root, "a.md"), Op: fsnotify.Write}))
}
