package output

import (
	"os"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pressroom/internal/cache"
	"git.home.luguber.info/inful/pressroom/internal/foundation/errors"
	"git.home.luguber.info/inful/pressroom/internal/source"
)

func exists(t *testing.T, fs interface {
	Stat(string) (os.FileInfo, error)
}, p string) bool {
	t.Helper()
	_, err := fs.Stat(p)
	if os.IsNotExist(err) {
		return false
	}
	require.NoError(t, err)
	return true
}

func TestWriter_WritesArtifactsAndBuildsEntry(t *testing.T) {
	fs := memfs.New()
	built := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := NewWriter(fs).WithClock(func() time.Time { return built })
	require.NoError(t, w.EnsureRoot())

	mtime := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	entry, err := w.Write(Result{
		Item: source.Item{Path: "travel/lisbon/index.md", Kind: source.KindContent, ModifiedAt: mtime, Fingerprint: "sha256:abc"},
		Artifacts: []Artifact{
			{Path: "travel/lisbon/index.html", Data: []byte("<html></html>")},
			{Path: "travel/lisbon/data.json", Data: []byte("{}")},
		},
		ConfigHash: "cfg",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"travel/lisbon/data.json", "travel/lisbon/index.html"}, entry.OutputPaths)
	require.Equal(t, mtime, entry.SourceModifiedAt)
	require.Equal(t, "sha256:abc", entry.ContentFingerprint)
	require.Equal(t, "cfg", entry.ConfigHash)
	require.Equal(t, built, entry.BuiltAt)
	require.False(t, entry.Partial)

	data, err := util.ReadFile(fs, "travel/lisbon/index.html")
	require.NoError(t, err)
	require.Equal(t, "<html></html>", string(data))

	// No temporary files remain next to the outputs.
	infos, err := fs.ReadDir("travel/lisbon")
	require.NoError(t, err)
	require.Len(t, infos, 2)
}

func TestWriter_RemovesSupersededOutputs(t *testing.T) {
	fs := memfs.New()
	w := NewWriter(fs)
	require.NoError(t, util.WriteFile(fs, "images/photo-thumb-200x150.jpg", []byte("old"), 0o644))
	require.NoError(t, util.WriteFile(fs, "images/old/photo-large-1200x900.jpg", []byte("old"), 0o644))

	entry, err := w.Write(Result{
		Item:      source.Item{Path: "photo.jpg", Kind: source.KindImage},
		Artifacts: []Artifact{{Path: "images/photo-thumb-200x150.jpg", Data: []byte("new")}},
		Previous:  []string{"images/photo-thumb-200x150.jpg", "images/old/photo-large-1200x900.jpg"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"images/photo-thumb-200x150.jpg"}, entry.OutputPaths)
	require.False(t, exists(t, fs, "images/old/photo-large-1200x900.jpg"))
	require.False(t, exists(t, fs, "images/old"), "empty directory pruned")

	data, err := util.ReadFile(fs, "images/photo-thumb-200x150.jpg")
	require.NoError(t, err)
	require.Equal(t, "new", string(data))
}

func TestWriter_PartialResultIsFlagged(t *testing.T) {
	w := NewWriter(memfs.New())
	entry, err := w.Write(Result{
		Item:      source.Item{Path: "photo.jpg", Kind: source.KindImage},
		Artifacts: []Artifact{{Path: "images/photo-large-100x75.jpg", Data: []byte("x")}},
		Partial:   true,
	})
	require.NoError(t, err)
	require.True(t, entry.Partial)
	require.Equal(t, []string{"images/photo-large-100x75.jpg"}, entry.OutputPaths)
}

func TestWriter_UnwritableRootIsFatal(t *testing.T) {
	dir := t.TempDir()
	blocker := dir + "/public"
	require.NoError(t, os.WriteFile(blocker, []byte("not a directory"), 0o644))

	w := NewWriter(osfs.New(blocker + "/site"))
	err := w.EnsureRoot()
	require.Error(t, err)
	require.True(t, errors.IsFatal(err))
	require.True(t, errors.HasCategory(err, errors.CategoryIO))
}

func TestCollector_RemovesOnlyOwnedOutputs(t *testing.T) {
	fs := memfs.New()
	owned := []string{
		"images/photo-large-1200x900.jpg",
		"images/photo-large-1200x900.webp",
		"images/photo-thumb-200x150.jpg",
		"images/photo-thumb-200x150.webp",
	}
	for _, p := range owned {
		require.NoError(t, util.WriteFile(fs, p, []byte("x"), 0o644))
	}
	// Same prefix, not owned by the deleted entry.
	require.NoError(t, util.WriteFile(fs, "images/photo-large-1200x900.avif", []byte("x"), 0o644))
	require.NoError(t, util.WriteFile(fs, "a/index.html", []byte("x"), 0o644))

	bc := cache.New()
	bc.Put("photo.jpg", cache.Entry{Kind: source.KindImage, OutputPaths: owned})
	bc.Put("a.md", cache.Entry{Kind: source.KindContent, OutputPaths: []string{"a/index.html"}})

	stats, err := NewCollector(fs).Collect([]string{"photo.jpg", "missing.jpg"}, bc)
	require.NoError(t, err)
	require.Equal(t, Stats{Entries: 1, Outputs: 4}, stats)

	for _, p := range owned {
		require.False(t, exists(t, fs, p), p)
	}
	require.True(t, exists(t, fs, "images/photo-large-1200x900.avif"))
	require.True(t, exists(t, fs, "a/index.html"))

	_, ok := bc.Get("photo.jpg")
	require.False(t, ok)
	require.Equal(t, 1, bc.Len())
}

func TestCollector_AlreadyMissingOutputsCount(t *testing.T) {
	fs := memfs.New()
	bc := cache.New()
	bc.Put("gone.md", cache.Entry{OutputPaths: []string{"gone/index.html"}})

	stats, err := NewCollector(fs).Collect([]string{"gone.md"}, bc)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Entries)
	require.Equal(t, 0, bc.Len())
}

func TestCollector_PrunesEmptyDirectoriesUpToRoot(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "travel/lisbon/index.html", []byte("x"), 0o644))
	require.NoError(t, util.WriteFile(fs, "travel/porto/index.html", []byte("x"), 0o644))

	bc := cache.New()
	bc.Put("travel/lisbon/index.md", cache.Entry{OutputPaths: []string{"travel/lisbon/index.html"}})

	_, err := NewCollector(fs).Collect([]string{"travel/lisbon/index.md"}, bc)
	require.NoError(t, err)
	require.False(t, exists(t, fs, "travel/lisbon"))
	require.True(t, exists(t, fs, "travel"), "non-empty parent kept")
	require.True(t, exists(t, fs, "travel/porto/index.html"))
}

func TestWriter_KeepsSupersededOutputClaimedByAnotherSource(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "post/index.html", []byte("sibling"), 0o644))

	claims := Claims{"post/index.html": "post/index.md"}
	entry, err := NewWriter(fs).Write(Result{
		Item:      source.Item{Path: "post.md", Kind: source.KindContent},
		Artifacts: []Artifact{{Path: "renamed/index.html", Data: []byte("x")}},
		Previous:  []string{"post/index.html"},
		Claims:    claims,
		Page:      &cache.Page{Title: "Renamed", URL: "renamed/"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"renamed/index.html"}, entry.OutputPaths)
	require.Equal(t, "Renamed", entry.Page.Title)
	require.True(t, exists(t, fs, "post/index.html"))
}

func TestCollector_KeepsOutputsSharedWithLiveEntry(t *testing.T) {
	fs := memfs.New()
	shared := "images/photo-thumb-200x150.jpg"
	require.NoError(t, util.WriteFile(fs, shared, []byte("x"), 0o644))
	require.NoError(t, util.WriteFile(fs, "images/photo-only.png", []byte("x"), 0o644))

	bc := cache.New()
	bc.Put("photo.png", cache.Entry{Kind: source.KindImage, OutputPaths: []string{shared, "images/photo-only.png"}})
	bc.Put("photo.jpg", cache.Entry{Kind: source.KindImage, OutputPaths: []string{shared}})

	stats, err := NewCollector(fs).Collect([]string{"photo.png"}, bc)
	require.NoError(t, err)
	require.Equal(t, Stats{Entries: 1, Outputs: 1}, stats)
	require.True(t, exists(t, fs, shared))
	require.False(t, exists(t, fs, "images/photo-only.png"))
	require.Equal(t, 1, bc.Len())
}

func TestClaims(t *testing.T) {
	claims := Claims{}
	require.NoError(t, claims.Claim("photo.jpg", []string{"images/photo-a.jpg", "images/photo-b.jpg"}))
	require.NoError(t, claims.Claim("photo.jpg", []string{"images/photo-a.jpg"}), "re-claiming own paths is fine")

	err := claims.Claim("photo.png", []string{"images/photo-c.jpg", "images/photo-b.jpg"})
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryValidation))
	require.NotContains(t, claims, "images/photo-c.jpg", "a rejected claim records nothing")

	claims.Keep("photo.png", []string{"images/photo-a.jpg", "images/photo-c.jpg"})
	require.Equal(t, "photo.jpg", claims["images/photo-a.jpg"])
	require.Equal(t, "photo.png", claims["images/photo-c.jpg"])

	require.True(t, claims.OwnedByOther("images/photo-a.jpg", "photo.png"))
	require.False(t, claims.OwnedByOther("images/photo-a.jpg", "photo.jpg"))
	require.False(t, claims.OwnedByOther("unknown", "photo.jpg"))

	var none Claims
	require.False(t, none.OwnedByOther("images/photo-a.jpg", "photo.png"))
}
