package build

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"path"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/pressroom/internal/cache"
	"git.home.luguber.info/inful/pressroom/internal/foundation/errors"
	"git.home.luguber.info/inful/pressroom/internal/incremental"
	"git.home.luguber.info/inful/pressroom/internal/logfields"
	"git.home.luguber.info/inful/pressroom/internal/metrics"
	"git.home.luguber.info/inful/pressroom/internal/output"
	"git.home.luguber.info/inful/pressroom/internal/render"
	"git.home.luguber.info/inful/pressroom/internal/source"
	"git.home.luguber.info/inful/pressroom/internal/transcode"
)

// SourceReader returns the bytes of a source file given its path relative
// to the content root. It must be safe for concurrent use.
type SourceReader func(path string) ([]byte, error)

// Batch is the complete result of one scheduling pass.
type Batch struct {
	// Results holds one entry per Stale or New decision, in decision order.
	Results []*ItemResult
	Skipped int
	// Deleted lists the source paths handed to the garbage collector.
	Deleted []string
}

// Scheduler runs render and transcode jobs on a fixed pool of workers.
type Scheduler struct {
	read       SourceReader
	renderer   render.Renderer
	transcoder *transcode.Transcoder
	settings   transcode.Settings
	caps       transcode.Capabilities
	imageDir   string
	emitJSON   bool
	workers    int
	jobTimeout time.Duration
	recorder   metrics.Recorder
	logger     *slog.Logger
}

// NewScheduler creates a scheduler reading sources through read.
func NewScheduler(read SourceReader, renderer render.Renderer, transcoder *transcode.Transcoder) *Scheduler {
	return &Scheduler{
		read:       read,
		renderer:   renderer,
		transcoder: transcoder,
		caps:       transcode.Available(),
		workers:    runtime.NumCPU(),
		recorder:   metrics.NoopRecorder{},
		logger:     slog.Default(),
	}
}

// WithImages sets the image matrix, the capability set it is planned
// against and the output directory for image artifacts.
func (s *Scheduler) WithImages(settings transcode.Settings, caps transcode.Capabilities, dir string) *Scheduler {
	s.settings = settings
	s.caps = caps
	s.imageDir = dir
	return s
}

// WithEmitJSON enables the data.json artifact for content items.
func (s *Scheduler) WithEmitJSON(enabled bool) *Scheduler {
	s.emitJSON = enabled
	return s
}

// WithWorkers sets the pool size. Values below one select runtime.NumCPU().
func (s *Scheduler) WithWorkers(n int) *Scheduler {
	if n < 1 {
		n = runtime.NumCPU()
	}
	s.workers = n
	return s
}

// WithJobTimeout enables the per-job watchdog. Zero disables it.
func (s *Scheduler) WithJobTimeout(d time.Duration) *Scheduler {
	s.jobTimeout = d
	return s
}

// WithRecorder sets the metrics recorder.
func (s *Scheduler) WithRecorder(r metrics.Recorder) *Scheduler {
	if r != nil {
		s.recorder = r
	}
	return s
}

// WithLogger sets a custom logger.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// task is one unit of work. run must not touch anything shared except
// through the item's decodedImage.
type task struct {
	result  int
	kind    source.Kind
	label   string
	run     func() (taskOutput, error)
	timeout func(time.Duration) error
}

type taskOutput struct {
	artifacts []output.Artifact
	page      *cache.Page
}

type taskOutcome struct {
	taskOutput
	err      error
	timedOut bool
}

// Run executes the work for every Stale or New decision and blocks until
// all dispatched jobs have returned. A failing job never cancels its
// siblings. If ctx is canceled no further jobs are started and Run returns
// a canceled error instead of a batch.
func (s *Scheduler) Run(ctx context.Context, decisions []incremental.Decision) (*Batch, error) {
	batch := &Batch{}
	var tasks []task
	for _, d := range decisions {
		switch {
		case d.Outcome == incremental.Unchanged:
			batch.Skipped++
		case d.Outcome == incremental.Deleted:
			batch.Deleted = append(batch.Deleted, d.Path)
		case d.NeedsBuild():
			idx := len(batch.Results)
			itemTasks := s.tasksFor(idx, d.Item)
			batch.Results = append(batch.Results, &ItemResult{Item: d.Item, Reason: d.Reason, Jobs: len(itemTasks)})
			tasks = append(tasks, itemTasks...)
		}
	}

	outcomes := make([]taskOutcome, len(tasks))
	workers := s.pool(ctx, tasks, outcomes)
	if err := ctx.Err(); err != nil {
		return nil, canceledError(err)
	}

	for i, t := range tasks {
		res := batch.Results[t.result]
		o := outcomes[i]
		if o.err != nil {
			// Jobs of one image share a decode failure; report it once.
			if !slices.Contains(res.Errors, o.err) {
				res.Errors = append(res.Errors, o.err)
			}
			continue
		}
		res.Artifacts = append(res.Artifacts, o.artifacts...)
		if o.page != nil {
			res.Page = o.page
		}
	}

	s.logger.Debug("Scheduler drained",
		logfields.Count(len(tasks)),
		logfields.Workers(workers))
	return batch, nil
}

// pool feeds task indexes to a fixed set of workers. Every worker writes
// only its own outcome slots. It returns the number of workers started.
func (s *Scheduler) pool(ctx context.Context, tasks []task, outcomes []taskOutcome) int {
	workers := min(s.workers, len(tasks))
	if workers < 1 {
		return 0
	}

	feed := make(chan int)
	var g errgroup.Group
	for range workers {
		g.Go(func() error {
			for i := range feed {
				outcomes[i] = s.execute(tasks[i])
			}
			return nil
		})
	}

dispatch:
	for i := range tasks {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break dispatch
		case feed <- i:
		}
	}
	close(feed)
	_ = g.Wait()
	return workers
}

func (s *Scheduler) execute(t task) taskOutcome {
	start := time.Now()
	out := s.guard(t)
	s.recorder.ObserveJobDuration(string(t.kind), time.Since(start))

	switch {
	case out.timedOut:
		s.recorder.IncJobResult(string(t.kind), metrics.ResultTimeout)
	case out.err != nil:
		s.recorder.IncJobResult(string(t.kind), metrics.ResultFailed)
	default:
		s.recorder.IncJobResult(string(t.kind), metrics.ResultSuccess)
	}
	return out
}

// guard runs t under the watchdog when one is configured. A timed-out job
// keeps running in the background; its result is discarded.
func (s *Scheduler) guard(t task) taskOutcome {
	if s.jobTimeout <= 0 {
		return protect(t)
	}

	done := make(chan taskOutcome, 1)
	go func() { done <- protect(t) }()

	timer := time.NewTimer(s.jobTimeout)
	defer timer.Stop()
	select {
	case out := <-done:
		return out
	case <-timer.C:
		s.logger.Warn("Job exceeded timeout", slog.String("job", t.label), slog.Duration("timeout", s.jobTimeout))
		return taskOutcome{err: t.timeout(s.jobTimeout), timedOut: true}
	}
}

func protect(t task) (out taskOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = taskOutcome{err: errors.InternalError(fmt.Sprintf("job %s panicked: %v", t.label, r)).
				WithSeverity(errors.SeverityError).
				Build()}
		}
	}()
	res, err := t.run()
	return taskOutcome{taskOutput: res, err: err}
}

func (s *Scheduler) tasksFor(idx int, item source.Item) []task {
	if item.Kind == source.KindImage {
		return s.imageTasks(idx, item)
	}
	return []task{s.contentTask(idx, item)}
}

func (s *Scheduler) contentTask(idx int, item source.Item) task {
	return task{
		result: idx,
		kind:   source.KindContent,
		label:  item.Path,
		run: func() (taskOutput, error) {
			src, err := s.read(item.Path)
			if err != nil {
				return taskOutput{}, readError(item.Path, err)
			}
			fm, body, err := render.ParseDocument(src)
			if err != nil {
				return taskOutput{}, withRenderPath(err, item.Path)
			}
			page, err := s.renderer.Render(body, fm)
			if err != nil {
				return taskOutput{}, withRenderPath(err, item.Path)
			}

			dir := item.OutputDir()
			out := taskOutput{
				artifacts: []output.Artifact{{Path: path.Join(dir, "index.html"), Data: page.HTML}},
				page:      pageOf(item, fm, page),
			}
			if s.emitJSON {
				data, err := render.DataJSON(fm, page, item.Slug, item.Fingerprint)
				if err != nil {
					return taskOutput{}, withRenderPath(err, item.Path)
				}
				out.artifacts = append(out.artifacts, output.Artifact{Path: path.Join(dir, "data.json"), Data: data})
			}
			return out, nil
		},
		timeout: func(d time.Duration) error {
			return render.NewRenderError(item.Path, fmt.Sprintf("render exceeded %s", d), nil)
		},
	}
}

// pageOf records what the feed and sitemap need to know about a page.
func pageOf(item source.Item, fm render.Frontmatter, page *render.Rendered) *cache.Page {
	p := &cache.Page{Title: page.Title, Description: fm.Description()}
	if p.Title == "" {
		p.Title = item.Slug
	}
	if dir := item.OutputDir(); dir != "" {
		p.URL = dir + "/"
	}
	if t, ok := fm.PublishedAt(); ok {
		p.PublishedAt = t.UTC()
	}
	return p
}

func withRenderPath(err error, p string) error {
	if re, ok := render.AsRenderError(err); ok && re.Path == "" {
		re.Path = p
	}
	return err
}

// decodedImage is the shared, read-only source of every job of one image.
// The first job to run decodes it; the last one to finish releases it.
type decodedImage struct {
	once      sync.Once
	img       image.Image
	err       error
	remaining atomic.Int32
}

func (d *decodedImage) load(read SourceReader, p string) (image.Image, error) {
	d.once.Do(func() {
		data, err := read(p)
		if err != nil {
			d.err = readError(p, err)
			return
		}
		d.img, d.err = transcode.Decode(data)
		if te, ok := transcode.AsTranscodeError(d.err); ok {
			te.Path = p
		}
	})
	return d.img, d.err
}

func (d *decodedImage) release() {
	if d.remaining.Add(-1) == 0 {
		d.img = nil
	}
}

func (s *Scheduler) imageTasks(idx int, item source.Item) []task {
	jobs := transcode.Plan(item.Slug, s.settings, s.caps)
	shared := &decodedImage{}
	shared.remaining.Store(int32(len(jobs)))

	tasks := make([]task, 0, len(jobs))
	for _, job := range jobs {
		tasks = append(tasks, task{
			result: idx,
			kind:   source.KindImage,
			label:  item.Path + " " + job.String(),
			run: func() (taskOutput, error) {
				defer shared.release()
				img, err := shared.load(s.read, item.Path)
				if err != nil {
					return taskOutput{}, err
				}
				enc, err := s.transcoder.Transcode(img, job)
				if err != nil {
					if te, ok := transcode.AsTranscodeError(err); ok {
						te.Path = item.Path
					}
					return taskOutput{}, err
				}
				return taskOutput{artifacts: []output.Artifact{{Path: path.Join(s.imageDir, item.Dir, enc.Name), Data: enc.Data}}}, nil
			},
			timeout: func(d time.Duration) error {
				te := transcode.NewTranscodeError(job.Format, job.Variant.Name, fmt.Sprintf("transcode exceeded %s", d), nil)
				te.Path = item.Path
				return te
			},
		})
	}
	return tasks
}

func readError(p string, err error) error {
	return errors.WrapError(err, errors.CategoryIO, "read source").
		NextRun().
		WithContext("path", p).
		Build()
}

func canceledError(err error) error {
	return errors.WrapError(err, errors.CategoryCanceled, "build canceled").
		WithSeverity(errors.SeverityError).
		Build()
}
