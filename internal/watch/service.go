package watch

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/pressroom/internal/foundation/errors"
	"git.home.luguber.info/inful/pressroom/internal/logfields"
)

// Rebuild reasons passed to the Builder.
const (
	ReasonStartup  = "startup"
	ReasonChange   = "change"
	ReasonInterval = "interval"
)

const shutdownTimeout = 5 * time.Second

// Builder runs one build. Errors are logged and the service keeps going.
type Builder interface {
	Build(ctx context.Context, reason string) error
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc func(ctx context.Context, reason string) error

func (f BuilderFunc) Build(ctx context.Context, reason string) error { return f(ctx, reason) }

// Service rebuilds on change and on interval. Builds never overlap; requests
// arriving during a build collapse into a single follow-up build.
type Service struct {
	builder  Builder
	roots    []string
	files    []string
	ignore   []string
	debounce time.Duration
	interval time.Duration

	metricsAddr    string
	metricsPath    string
	metricsHandler http.Handler

	logger   *slog.Logger
	requests chan string

	mu        sync.Mutex
	boundAddr string
	readyOnce sync.Once
	ready     chan struct{}
}

// New creates a Service that watches roots and calls builder.
func New(builder Builder, roots ...string) *Service {
	return &Service{
		builder:  builder,
		roots:    roots,
		debounce: 500 * time.Millisecond,
		logger:   slog.Default(),
		requests: make(chan string, 1),
		ready:    make(chan struct{}),
	}
}

// WithFiles also watches individual files, such as the config file.
func (s *Service) WithFiles(files ...string) *Service {
	s.files = append(s.files, files...)
	return s
}

// WithIgnore excludes paths under the given directories (typically the
// output and state directories when they live inside a source root).
func (s *Service) WithIgnore(dirs ...string) *Service {
	s.ignore = append(s.ignore, dirs...)
	return s
}

// WithDebounce sets the quiet period that ends a burst of changes.
func (s *Service) WithDebounce(d time.Duration) *Service {
	if d > 0 {
		s.debounce = d
	}
	return s
}

// WithInterval enables periodic rebuilds. Zero disables them.
func (s *Service) WithInterval(d time.Duration) *Service {
	s.interval = d
	return s
}

// WithMetrics serves handler at path on addr while the service runs.
func (s *Service) WithMetrics(addr, path string, handler http.Handler) *Service {
	s.metricsAddr = addr
	s.metricsPath = path
	s.metricsHandler = handler
	return s
}

func (s *Service) WithLogger(logger *slog.Logger) *Service {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Ready is closed once watches, scheduler and metrics listener are set up.
func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

// MetricsAddr returns the bound metrics address, or "" when not serving.
func (s *Service) MetricsAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundAddr
}

// Trigger requests a rebuild. It never blocks.
func (s *Service) Trigger(reason string) {
	select {
	case s.requests <- reason:
	default:
		s.logger.Debug("Rebuild already pending", logfields.Reason(reason))
	}
}

// Run blocks until ctx is done. It builds once at startup and then on
// every settled change or interval tick.
func (s *Service) Run(ctx context.Context) error {
	tw, err := newTreeWatcher(s.roots, s.files, s.ignore, s.debounce, s.logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := tw.close(); closeErr != nil {
			s.logger.Warn("Failed to close file watcher", logfields.Error(closeErr))
		}
	}()

	sched, err := s.startScheduler()
	if err != nil {
		return err
	}
	if sched != nil {
		defer func() {
			if shutErr := sched.Shutdown(); shutErr != nil {
				s.logger.Warn("Failed to stop scheduler", logfields.Error(shutErr))
			}
		}()
	}

	srv, ln, err := s.listenMetrics()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if srv != nil {
		g.Go(func() error {
			if serveErr := srv.Serve(ln); serveErr != nil && !stderrors.Is(serveErr, http.ErrServerClosed) {
				return errors.WrapError(serveErr, errors.CategoryNetwork, "metrics server failed").Build()
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutCtx)
		})
	}
	g.Go(func() error { return tw.run(gctx, s.Trigger) })
	g.Go(func() error { return s.buildLoop(gctx) })

	s.logger.Info("Watching for changes",
		slog.Any("roots", s.roots),
		slog.Duration("debounce", s.debounce),
		slog.Duration("interval", s.interval))
	s.Trigger(ReasonStartup)
	s.readyOnce.Do(func() { close(s.ready) })

	return g.Wait()
}

func (s *Service) buildLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case reason := <-s.requests:
			start := time.Now()
			s.logger.Info("Rebuilding", logfields.Reason(reason))
			if err := s.builder.Build(ctx, reason); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("Rebuild failed", logfields.Reason(reason), logfields.Error(err), logfields.Since(start))
				continue
			}
			s.logger.Debug("Rebuild finished", logfields.Reason(reason), logfields.Since(start))
		}
	}
}

func (s *Service) startScheduler() (gocron.Scheduler, error) {
	if s.interval <= 0 {
		return nil, nil
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryRuntime, "failed to create scheduler").Fatal().Build()
	}
	_, err = sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.Trigger, ReasonInterval),
		gocron.WithName(fmt.Sprintf("%s-rebuild", ReasonInterval)),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, errors.WrapError(err, errors.CategoryRuntime, "failed to schedule periodic rebuild").
			WithContext("interval", s.interval.String()).Fatal().Build()
	}
	sched.Start()
	return sched, nil
}

func (s *Service) listenMetrics() (*http.Server, net.Listener, error) {
	if s.metricsHandler == nil || s.metricsAddr == "" {
		return nil, nil, nil
	}
	ln, err := net.Listen("tcp", s.metricsAddr)
	if err != nil {
		return nil, nil, errors.WrapError(err, errors.CategoryNetwork, "failed to listen for metrics").
			WithContext("listen", s.metricsAddr).Fatal().Build()
	}
	path := s.metricsPath
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, s.metricsHandler)
	s.mu.Lock()
	s.boundAddr = ln.Addr().String()
	s.mu.Unlock()
	s.logger.Info("Serving metrics", slog.String("listen", s.boundAddr), logfields.Path(path))
	return &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}, ln, nil
}
