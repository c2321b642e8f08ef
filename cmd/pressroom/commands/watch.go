package commands

import (
	"context"
	"log/slog"
	"path/filepath"

	"git.home.luguber.info/inful/pressroom/internal/build"
	"git.home.luguber.info/inful/pressroom/internal/config"
	"git.home.luguber.info/inful/pressroom/internal/logfields"
	"git.home.luguber.info/inful/pressroom/internal/metrics"
	"git.home.luguber.info/inful/pressroom/internal/watch"
)

// WatchCmd implements the 'watch' command.
type WatchCmd struct {
	Drafts bool `help:"Include draft articles"`
}

func (w *WatchCmd) Run(_ *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	w.apply(cfg)
	logger := slog.Default()

	svc := openServices(cfg, logger, true)
	defer svc.Close(logger)

	rb := &rebuilder{root: root, cmd: w, cfg: cfg, svc: svc, logger: logger}
	service := watch.New(rb, cfg.Content.BaseDir).
		WithFiles(root.Config).
		WithIgnore(cfg.Build.OutputDir, filepath.Dir(cfg.Build.CacheFile)).
		WithDebounce(cfg.Watch.DebounceDuration()).
		WithInterval(cfg.Watch.IntervalDuration()).
		WithLogger(logger)
	if cfg.Monitoring.Metrics.Enabled {
		service.WithMetrics(cfg.Monitoring.Metrics.Listen, cfg.Monitoring.Metrics.Path, metrics.HTTPHandler(svc.registry))
	}

	ctx, cancel := signalContext()
	defer cancel()
	return service.Run(ctx)
}

func (w *WatchCmd) apply(cfg *config.Config) {
	if w.Drafts {
		cfg.Content.IncludeDrafts = true
	}
}

// rebuilder reloads the configuration before each change-triggered build so
// edits to the config file take effect. An invalid config keeps the last good one.
type rebuilder struct {
	root   *CLI
	cmd    *WatchCmd
	cfg    *config.Config
	svc    *services
	logger *slog.Logger
}

func (r *rebuilder) Build(ctx context.Context, reason string) error {
	if reason == watch.ReasonChange {
		cfg, err := config.Load(r.root.Config)
		if err != nil {
			r.logger.Warn("Keeping previous configuration", logfields.Error(err))
		} else {
			r.cmd.apply(cfg)
			r.cfg = cfg
		}
	}
	runner := build.NewRunner(r.cfg, r.svc.runnerOptions(r.cfg, r.logger)...)
	report, err := runner.Run(ctx, build.RunOptions{})
	if err != nil {
		return err
	}
	if report.HasFailures() {
		r.logger.Warn("Some items failed; they will be retried on the next build", logfields.Count(report.Failed))
	}
	return nil
}
