// Package incremental classifies source items against the build cache.
//
// Classification is a pure function of the discovered items, the cache and
// an OutputProbe answering whether recorded outputs still exist. The probe
// is consulted once per distinct output path in a single verification step.
package incremental

import (
	"slices"
	"strings"

	"git.home.luguber.info/inful/pressroom/internal/cache"
	"git.home.luguber.info/inful/pressroom/internal/source"
	"git.home.luguber.info/inful/pressroom/internal/util/sets"
)

// Outcome is the classification of one source path.
type Outcome string

const (
	Unchanged Outcome = "unchanged"
	Stale     Outcome = "stale"
	New       Outcome = "new"
	Deleted   Outcome = "deleted"
)

// Reasons attached to decisions.
const (
	ReasonUpToDate       = "up to date"
	ReasonNoEntry        = "no cache entry"
	ReasonForced         = "forced"
	ReasonPartial        = "previous build partial"
	ReasonModified       = "source modified"
	ReasonOutputsMissing = "outputs missing"
	ReasonFingerprint    = "fingerprint changed"
	ReasonConfig         = "build settings changed"
	ReasonKind           = "kind changed"
	ReasonRemoved        = "source removed"
)

// Decision is the outcome for one path. Item is set for every outcome
// except Deleted.
type Decision struct {
	Path    string
	Kind    source.Kind
	Outcome Outcome
	Reason  string
	Item    source.Item
}

// NeedsBuild reports whether the decision produces work.
func (d Decision) NeedsBuild() bool {
	return d.Outcome == Stale || d.Outcome == New
}

// Options controls classification.
type Options struct {
	// Force marks every discovered item Stale. Deleted entries are still reported.
	Force bool
	// Fingerprint compares content fingerprints in addition to mtimes.
	Fingerprint bool
	// ConfigHashes holds the current build-settings hash per kind. A kind
	// without a hash is not compared.
	ConfigHashes map[source.Kind]string
	// Scope limits which cache entries may be reported Deleted.
	Scope source.Scope
}

// Classify returns one decision per discovered item plus one Deleted
// decision per in-scope cache entry whose source was not discovered,
// sorted by path.
func Classify(items []source.Item, c *cache.BuildCache, probe OutputProbe, opts Options) []Decision {
	decisions := make([]Decision, 0, len(items))
	discovered := sets.New[string]()

	var existing map[string]bool
	if !opts.Force {
		existing = verifyOutputs(items, c, probe)
	}

	for _, item := range items {
		discovered.Add(item.Path)
		outcome, reason := classifyItem(item, c, existing, opts)
		decisions = append(decisions, Decision{
			Path:    item.Path,
			Kind:    item.Kind,
			Outcome: outcome,
			Reason:  reason,
			Item:    item,
		})
	}

	for _, p := range c.Paths() {
		if discovered.Has(p) || !opts.Scope.Contains(p) {
			continue
		}
		entry, _ := c.Get(p)
		decisions = append(decisions, Decision{
			Path:    p,
			Kind:    entry.Kind,
			Outcome: Deleted,
			Reason:  ReasonRemoved,
		})
	}

	slices.SortFunc(decisions, func(a, b Decision) int { return strings.Compare(a.Path, b.Path) })
	return decisions
}

func classifyItem(item source.Item, c *cache.BuildCache, existing map[string]bool, opts Options) (Outcome, string) {
	if opts.Force {
		return Stale, ReasonForced
	}
	entry, ok := c.Get(item.Path)
	if !ok {
		return New, ReasonNoEntry
	}
	switch {
	case entry.Kind != item.Kind:
		return Stale, ReasonKind
	case entry.Partial:
		return Stale, ReasonPartial
	case item.ModifiedAt.After(entry.SourceModifiedAt):
		return Stale, ReasonModified
	case !allExist(entry.OutputPaths, existing):
		return Stale, ReasonOutputsMissing
	case opts.Fingerprint && item.Fingerprint != entry.ContentFingerprint:
		return Stale, ReasonFingerprint
	}
	if hash, ok := opts.ConfigHashes[item.Kind]; ok && hash != entry.ConfigHash {
		return Stale, ReasonConfig
	}
	return Unchanged, ReasonUpToDate
}

func allExist(outputs []string, existing map[string]bool) bool {
	if len(outputs) == 0 {
		return false
	}
	for _, p := range outputs {
		if !existing[p] {
			return false
		}
	}
	return true
}

// Counts tallies decisions by outcome.
type Counts struct {
	Unchanged, Stale, New, Deleted int
}

// Summarize counts decisions by outcome.
func Summarize(decisions []Decision) Counts {
	var c Counts
	for _, d := range decisions {
		switch d.Outcome {
		case Unchanged:
			c.Unchanged++
		case Stale:
			c.Stale++
		case New:
			c.New++
		case Deleted:
			c.Deleted++
		}
	}
	return c
}
