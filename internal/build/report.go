package build

import (
	"time"

	"git.home.luguber.info/inful/pressroom/internal/cache"
	"git.home.luguber.info/inful/pressroom/internal/metrics"
	"git.home.luguber.info/inful/pressroom/internal/output"
	"git.home.luguber.info/inful/pressroom/internal/source"
)

// Status is the overall outcome of one item.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// ItemResult is everything the workers produced for one source item.
// Workers never share it: the coordinator assembles it after the pool drains.
type ItemResult struct {
	Item      source.Item
	Reason    string
	Artifacts []output.Artifact
	Errors    []error
	Jobs      int
	Page      *cache.Page
}

// Status derives the outcome from the job and error counts.
func (r *ItemResult) Status() Status {
	switch {
	case len(r.Errors) == 0:
		return StatusSuccess
	case len(r.Artifacts) == 0:
		return StatusFailed
	default:
		return StatusPartial
	}
}

// Failure is one per-item error carried by the report.
type Failure struct {
	Path  string      `json:"path"`
	Kind  source.Kind `json:"kind"`
	Error string      `json:"error"`
}

// BuildReport summarizes one run.
//
// Built counts items whose outputs were written this run, including
// partial ones. Failed counts items with at least one failed job, so a
// partial item appears in both.
type BuildReport struct {
	RunID          string        `json:"run_id"`
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration"`
	Scope          string        `json:"scope"`
	Forced         bool          `json:"forced"`
	CacheRecovered bool          `json:"cache_recovered"`
	Commit         string        `json:"commit,omitempty"`
	Workers        int           `json:"workers"`
	Formats        []string      `json:"formats"`

	Built          int `json:"built"`
	Skipped        int `json:"skipped"`
	Failed         int `json:"failed"`
	Partial        int `json:"partial"`
	Deleted        int `json:"deleted"`
	DeletedOutputs int `json:"deleted_outputs"`
	Outputs        int `json:"outputs"`

	// SiteUpdated is set when feed.xml and sitemap.xml were rewritten.
	SiteUpdated bool `json:"site_updated,omitempty"`

	Failures []Failure `json:"failures,omitempty"`
	// Error is set when the run aborted.
	Error    string `json:"error,omitempty"`
	Canceled bool   `json:"canceled,omitempty"`
}

// Outcome classifies the run for metrics and history.
func (r *BuildReport) Outcome() metrics.BuildOutcomeLabel {
	switch {
	case r.Canceled:
		return metrics.BuildOutcomeCanceled
	case r.Error != "":
		return metrics.BuildOutcomeFailed
	case r.Failed > 0:
		return metrics.BuildOutcomePartial
	default:
		return metrics.BuildOutcomeSuccess
	}
}

// HasFailures reports whether any item failed.
func (r *BuildReport) HasFailures() bool {
	return r.Failed > 0
}

func (r *BuildReport) addFailure(item source.Item, err error) {
	r.Failures = append(r.Failures, Failure{Path: item.Path, Kind: item.Kind, Error: err.Error()})
}
