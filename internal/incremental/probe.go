package incremental

import (
	"os"

	"github.com/go-git/go-billy/v5"

	"git.home.luguber.info/inful/pressroom/internal/cache"
	"git.home.luguber.info/inful/pressroom/internal/source"
	"git.home.luguber.info/inful/pressroom/internal/util/sets"
)

// OutputProbe answers whether an output path exists under the output root.
type OutputProbe interface {
	Exists(path string) (bool, error)
}

// FSProbe checks output existence on a billy filesystem rooted at the output directory.
type FSProbe struct {
	FS billy.Filesystem
}

// Exists reports whether p is present as a regular file.
func (p FSProbe) Exists(path string) (bool, error) {
	info, err := p.FS.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

// verifyOutputs probes every output path recorded for the discovered items
// exactly once. A probe error counts as missing, which only causes a rebuild.
func verifyOutputs(items []source.Item, c *cache.BuildCache, probe OutputProbe) map[string]bool {
	wanted := sets.New[string]()
	for _, item := range items {
		if entry, ok := c.Get(item.Path); ok {
			for _, p := range entry.OutputPaths {
				wanted.Add(p)
			}
		}
	}

	existing := make(map[string]bool, wanted.Len())
	for _, p := range sets.Sorted(wanted) {
		ok, err := probe.Exists(p)
		existing[p] = err == nil && ok
	}
	return existing
}
