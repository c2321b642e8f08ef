package build

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/google/uuid"

	"git.home.luguber.info/inful/pressroom/internal/cache"
	"git.home.luguber.info/inful/pressroom/internal/config"
	"git.home.luguber.info/inful/pressroom/internal/foundation/errors"
	"git.home.luguber.info/inful/pressroom/internal/incremental"
	"git.home.luguber.info/inful/pressroom/internal/logfields"
	"git.home.luguber.info/inful/pressroom/internal/metrics"
	"git.home.luguber.info/inful/pressroom/internal/output"
	"git.home.luguber.info/inful/pressroom/internal/render"
	"git.home.luguber.info/inful/pressroom/internal/source"
	"git.home.luguber.info/inful/pressroom/internal/transcode"
	"git.home.luguber.info/inful/pressroom/internal/util/sets"
)

// HistoryStore records finished runs.
type HistoryStore interface {
	Record(ctx context.Context, report *BuildReport) error
}

// Notifier announces finished runs.
type Notifier interface {
	Publish(ctx context.Context, report *BuildReport) error
}

// RunOptions selects what one run does.
type RunOptions struct {
	Force bool
	Scope source.Scope
}

// Runner executes BuildRuns for one configuration. Each Run loads its own
// BuildCache, so a Runner may be reused (watch mode) but must not run
// concurrently with itself.
type Runner struct {
	cfg       *config.Config
	contentFS billy.Filesystem
	outputFS  billy.Filesystem
	// outputRoot identifies outputFS in the cache; entries recorded under
	// another root are never collected here.
	outputRoot string
	stateFS    billy.Filesystem
	cachePath  string
	caps       transcode.Capabilities
	renderer   render.Renderer
	recorder   metrics.Recorder
	history    HistoryStore
	notifier   Notifier
	revision   func(context.Context) string
	// beforeCommit runs after every artifact is written and before the
	// cache commit. An error aborts the run without committing.
	beforeCommit func() error
	logger       *slog.Logger
	now          func() time.Time
	hashes       map[source.Kind]string
}

// Option configures a Runner.
type Option func(*Runner)

// WithContentFS reads the source tree from fsys instead of content.base_dir.
func WithContentFS(fsys billy.Filesystem) Option {
	return func(r *Runner) { r.contentFS = fsys }
}

// WithOutputFS writes artifacts to fsys instead of build.output_dir.
func WithOutputFS(fsys billy.Filesystem) Option {
	return func(r *Runner) { r.outputFS = fsys }
}

// WithStateFS stores the cache file at cachePath within fsys instead of build.cache_file.
func WithStateFS(fsys billy.Filesystem, cachePath string) Option {
	return func(r *Runner) {
		r.stateFS = fsys
		r.cachePath = cachePath
	}
}

// WithCapabilities overrides the compiled-in codec set.
func WithCapabilities(caps transcode.Capabilities) Option {
	return func(r *Runner) { r.caps = caps }
}

// WithRenderer replaces the goldmark renderer.
func WithRenderer(renderer render.Renderer) Option {
	return func(r *Runner) { r.renderer = renderer }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(rec metrics.Recorder) Option {
	return func(r *Runner) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// WithHistory records every finished run.
func WithHistory(h HistoryStore) Option {
	return func(r *Runner) { r.history = h }
}

// WithNotifier publishes every finished run.
func WithNotifier(n Notifier) Option {
	return func(r *Runner) { r.notifier = n }
}

// WithRevision sets the lookup for the source tree revision stored in reports.
func WithRevision(fn func(context.Context) string) Option {
	return func(r *Runner) { r.revision = fn }
}

// WithBeforeCommit installs a hook that runs between artifact writes and
// the cache commit.
func WithBeforeCommit(fn func() error) Option {
	return func(r *Runner) { r.beforeCommit = fn }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRunner wires a runner for cfg. Filesystems default to the directories
// named by the configuration.
func NewRunner(cfg *config.Config, opts ...Option) *Runner {
	r := &Runner{
		cfg:      cfg,
		caps:     transcode.Available(),
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.contentFS == nil {
		r.contentFS = osfs.New(cfg.Content.BaseDir)
	}
	if r.outputFS == nil {
		r.outputFS = osfs.New(cfg.Build.OutputDir)
	}
	r.outputRoot = rootOf(r.outputFS)
	if r.stateFS == nil {
		r.stateFS = osfs.New(filepath.Dir(cfg.Build.CacheFile))
		r.cachePath = filepath.Base(cfg.Build.CacheFile)
	}
	if r.renderer == nil {
		r.renderer = render.NewGoldmarkRenderer(
			render.WithRawHTML(cfg.Content.RawHTMLEnabled()),
			render.WithWordsPerMinute(cfg.Content.WordsPerMinute),
			render.WithLang(cfg.Site.Language))
	}
	r.hashes = ConfigHashes(cfg, r.caps)
	return r
}

// ConfigHashes returns the build-settings hash per kind. An entry built
// under a different hash is stale.
func ConfigHashes(cfg *config.Config, caps transcode.Capabilities) map[source.Kind]string {
	return map[source.Kind]string{
		source.KindContent: fmt.Sprintf("%016x", xxhash.Sum64String(cfg.ContentSnapshot()+"|v="+render.Version)),
		source.KindImage:   transcode.Signature(cfg.ImagesSnapshot(), caps),
		source.KindSite:    fmt.Sprintf("%016x", xxhash.Sum64String(cfg.SiteSnapshot())),
	}
}

// rootOf names the directory behind fsys, made absolute when possible.
func rootOf(fsys billy.Filesystem) string {
	root := fsys.Root()
	if abs, err := filepath.Abs(root); err == nil {
		return abs
	}
	return root
}

// ScopeFor resolves the --topic and --slug selectors.
func ScopeFor(cfg *config.Config, topic, slug string) (source.Scope, error) {
	var scope source.Scope
	if slug != "" {
		scope.Slug = source.Slugify(slug)
	}
	if topic == "" {
		return scope, nil
	}
	t, ok := cfg.Content.Topics[topic]
	if !ok {
		keys := make([]string, 0, len(cfg.Content.Topics))
		for k := range cfg.Content.Topics {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		return source.Scope{}, errors.ValidationError(fmt.Sprintf("unknown topic %q", topic)).
			WithContext("topics", keys).
			Build()
	}
	scope.Topic = topic
	scope.Dir = t.Directory
	return scope, nil
}

// Run performs one BuildRun. The error is non-nil only for conditions fatal
// to the whole run; per-item failures are carried by the report, which is
// returned in both cases.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (*BuildReport, error) {
	start := r.now()
	report := &BuildReport{
		RunID:     uuid.NewString(),
		StartedAt: start.UTC(),
		Scope:     opts.Scope.String(),
		Forced:    opts.Force,
		Workers:   r.cfg.Build.Workers,
	}
	for _, f := range r.caps.List() {
		report.Formats = append(report.Formats, string(f))
	}
	logger := r.logger.With(logfields.RunID(report.RunID))
	if r.revision != nil {
		report.Commit = r.revision(ctx)
	}

	logger.Info("Build started",
		slog.String("scope", report.Scope),
		slog.Bool("force", opts.Force),
		slog.String("formats", r.caps.String()))

	err := r.run(ctx, logger, opts, report)
	report.Duration = r.now().Sub(start)
	if err != nil {
		report.Error = err.Error()
		report.Canceled = errors.HasCategory(err, errors.CategoryCanceled)
	}
	r.finish(ctx, logger, report, err)
	return report, err
}

func (r *Runner) run(ctx context.Context, logger *slog.Logger, opts RunOptions, report *BuildReport) error {
	if err := ctx.Err(); err != nil {
		return canceledError(err)
	}

	store := cache.NewStore(r.stateFS, r.cachePath).WithLogger(logger)
	bc := store.Load()
	if reason, ok := bc.Recovered(); ok {
		report.CacheRecovered = true
		r.recorder.IncCacheRecovered(reason)
	}
	if bc.OutputRoot != "" && bc.OutputRoot != r.outputRoot {
		// Paths in the old entries mean nothing under the new root, and
		// collecting them could remove files this build never wrote.
		logger.Warn("Output directory changed, starting from an empty cache",
			slog.String("previous", bc.OutputRoot),
			slog.String("current", r.outputRoot))
		bc = cache.New()
		report.CacheRecovered = true
		r.recorder.IncCacheRecovered("output root changed")
	}
	bc.OutputRoot = r.outputRoot

	writer := output.NewWriter(r.outputFS).WithLogger(logger).WithClock(r.now)
	if err := writer.EnsureRoot(); err != nil {
		return err
	}

	items, err := r.discoverer(logger).Discover(ctx, opts.Scope)
	if err != nil {
		if ctx.Err() != nil {
			return canceledError(ctx.Err())
		}
		return err
	}

	decisions := incremental.Classify(items, bc, incremental.FSProbe{FS: r.outputFS}, incremental.Options{
		Force:        opts.Force,
		Fingerprint:  r.cfg.Build.FingerprintEnabled(),
		ConfigHashes: r.hashes,
		Scope:        opts.Scope,
	})
	for _, d := range decisions {
		r.recorder.IncDecision(string(d.Kind), string(d.Outcome))
		if d.Outcome != incremental.Unchanged {
			logger.Debug("Classified source",
				logfields.Path(d.Path),
				logfields.Outcome(string(d.Outcome)),
				logfields.Reason(d.Reason))
		}
	}
	counts := incremental.Summarize(decisions)
	logger.Info("Change detection complete",
		slog.Int("unchanged", counts.Unchanged),
		slog.Int("stale", counts.Stale),
		slog.Int("new", counts.New),
		slog.Int("deleted", counts.Deleted))

	batch, err := r.scheduler(logger).Run(ctx, decisions)
	if err != nil {
		return err
	}
	report.Skipped = batch.Skipped

	claims := claimOutputs(batch, bc)
	for _, res := range batch.Results {
		r.persist(logger, bc, writer, claims, res, report)
	}

	stats, err := output.NewCollector(r.outputFS).WithLogger(logger).Collect(batch.Deleted, bc)
	report.Deleted = stats.Entries
	report.DeletedOutputs = stats.Outputs
	if err != nil {
		logger.Warn("Some outputs of deleted sources could not be removed", logfields.Error(err))
	}

	r.publishSite(logger, bc, writer, claims, opts.Force, report)

	if r.beforeCommit != nil {
		if err := r.beforeCommit(); err != nil {
			return err
		}
	}
	if err := store.Commit(bc); err != nil {
		return err
	}
	r.recorder.SetCacheEntries(bc.Len())
	return nil
}

// claimOutputs gives every output path of this run exactly one owner.
// Entries that are neither rebuilt nor deleted keep their paths. Rebuilt
// items then claim theirs in source path order, and an item whose outputs
// are already owned fails instead of overwriting them.
func claimOutputs(batch *Batch, bc *cache.BuildCache) output.Claims {
	released := sets.New(batch.Deleted...)
	for _, res := range batch.Results {
		if res.Status() != StatusFailed {
			released.Add(res.Item.Path)
		}
	}
	claims := output.Claims(bc.Owners(released.Has))

	ordered := slices.Clone(batch.Results)
	slices.SortFunc(ordered, func(a, b *ItemResult) int { return strings.Compare(a.Item.Path, b.Item.Path) })
	for _, res := range ordered {
		if res.Status() == StatusFailed {
			continue
		}
		paths := make([]string, 0, len(res.Artifacts))
		for _, a := range res.Artifacts {
			paths = append(paths, a.Path)
		}
		if err := claims.Claim(res.Item.Path, paths); err != nil {
			res.Errors = append(res.Errors, err)
			res.Artifacts = nil
			res.Page = nil
			// A failed item keeps its previous entry, and with it every
			// path nobody else claimed.
			if prev, ok := bc.Get(res.Item.Path); ok {
				claims.Keep(res.Item.Path, prev.OutputPaths)
			}
		}
	}
	return claims
}

// persist writes one item's artifacts and updates its cache entry. A
// failed item keeps its previous entry, so it is retried next run.
func (r *Runner) persist(logger *slog.Logger, bc *cache.BuildCache, writer *output.Writer, claims output.Claims, res *ItemResult, report *BuildReport) {
	status := res.Status()
	for _, err := range res.Errors {
		report.addFailure(res.Item, err)
		logger.Warn("Build job failed",
			logfields.Path(res.Item.Path),
			logfields.Kind(string(res.Item.Kind)),
			logfields.Error(err))
	}
	switch status {
	case StatusFailed:
		report.Failed++
		return
	case StatusPartial:
		report.Failed++
		report.Partial++
	}

	prev, _ := bc.Get(res.Item.Path)
	entry, err := writer.Write(output.Result{
		Item:       res.Item,
		Artifacts:  res.Artifacts,
		Partial:    status == StatusPartial,
		ConfigHash: r.hashes[res.Item.Kind],
		Previous:   prev.OutputPaths,
		Claims:     claims,
		Page:       res.Page,
	})
	if len(entry.OutputPaths) > 0 {
		bc.Put(res.Item.Path, entry)
	}
	if err != nil {
		report.addFailure(res.Item, err)
		if status == StatusSuccess {
			report.Failed++
		}
		logger.Error("Failed to write outputs", logfields.Path(res.Item.Path), logfields.Error(err))
		return
	}

	report.Built++
	report.Outputs += len(res.Artifacts)
	logger.Debug("Built source",
		logfields.Path(res.Item.Path),
		logfields.Outcome(string(status)),
		logfields.Count(len(res.Artifacts)))
}

func (r *Runner) finish(ctx context.Context, logger *slog.Logger, report *BuildReport, runErr error) {
	r.recorder.ObserveBuildDuration(report.Duration)
	r.recorder.IncBuildOutcome(report.Outcome())
	r.recorder.AddOutputs(report.Outputs, report.DeletedOutputs)
	r.recorder.SetWorkers(report.Workers)

	// Recording and notification outlive a canceled run context.
	bg := context.WithoutCancel(ctx)
	if r.history != nil {
		if err := r.history.Record(bg, report); err != nil {
			logger.Warn("Failed to record build history", logfields.Error(err))
		}
	}
	if r.notifier != nil {
		if err := r.notifier.Publish(bg, report); err != nil {
			logger.Warn("Failed to publish build report", logfields.Error(err))
		}
	}

	attrs := []any{
		slog.String("outcome", string(report.Outcome())),
		slog.Int("built", report.Built),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
		slog.Int("deleted", report.Deleted),
		slog.Int("outputs", report.Outputs),
		logfields.DurationMS(float64(report.Duration.Milliseconds())),
	}
	if runErr != nil {
		logger.Error("Build aborted", append(attrs, logfields.Error(runErr))...)
		return
	}
	logger.Info("Build complete", attrs...)
}

func (r *Runner) discoverer(logger *slog.Logger) *source.Discoverer {
	opts := []source.Option{
		source.WithDrafts(r.cfg.Content.IncludeDrafts),
		source.WithFingerprints(r.cfg.Build.FingerprintEnabled()),
		source.WithLogger(logger),
	}
	if len(r.cfg.Content.Topics) > 0 {
		dirs := make([]string, 0, len(r.cfg.Content.Topics))
		for _, t := range r.cfg.Content.Topics {
			dirs = append(dirs, t.Directory)
		}
		slices.Sort(dirs)
		opts = append(opts, source.WithRoots(dirs...))
	}
	return source.NewDiscoverer(r.contentFS, opts...)
}

func (r *Runner) scheduler(logger *slog.Logger) *Scheduler {
	return NewScheduler(r.readSource, r.renderer, transcode.NewTranscoder(r.cfg.Images)).
		WithImages(transcode.SettingsFromConfig(r.cfg.Images), r.caps, r.cfg.Images.OutputDir).
		WithEmitJSON(r.cfg.Content.EmitJSON).
		WithWorkers(r.cfg.Build.Workers).
		WithJobTimeout(r.cfg.Build.JobTimeoutDuration()).
		WithRecorder(r.recorder).
		WithLogger(logger)
}

func (r *Runner) readSource(p string) ([]byte, error) {
	f, err := r.contentFS.Open(p)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}
