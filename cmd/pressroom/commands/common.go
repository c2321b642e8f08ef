package commands

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/pressroom/internal/build"
	"git.home.luguber.info/inful/pressroom/internal/config"
	"git.home.luguber.info/inful/pressroom/internal/history"
	"git.home.luguber.info/inful/pressroom/internal/logfields"
	"git.home.luguber.info/inful/pressroom/internal/metrics"
	"git.home.luguber.info/inful/pressroom/internal/notify"
	"git.home.luguber.info/inful/pressroom/internal/vcs"
)

// LogLevelEnv overrides the configured log level when set.
const LogLevelEnv = "PRESSROOM_LOG_LEVEL"

// Global carries state shared by every command.
type Global struct {
	Logger *slog.Logger
	Out    io.Writer
}

func (g *Global) stdout() io.Writer {
	if g == nil || g.Out == nil {
		return os.Stdout
	}
	return g.Out
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"pressroom.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build   BuildCmd   `cmd:"" help:"Build the site incrementally"`
	Watch   WatchCmd   `cmd:"" help:"Rebuild on source changes and on an interval"`
	History HistoryCmd `cmd:"" help:"List recorded build runs"`
	Formats FormatsCmd `cmd:"" help:"List the image formats this binary can encode"`
	Init    InitCmd    `cmd:"" help:"Initialize a new configuration file"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	setupLogging(c.Verbose, config.MonitoringLogging{})
	return nil
}

// loadConfig reads the configuration and re-applies its logging section.
func (c *CLI) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, err
	}
	setupLogging(c.Verbose, cfg.Monitoring.Logging)
	return cfg, nil
}

// setupLogging installs the default logger. Precedence for the level:
// --verbose, then PRESSROOM_LOG_LEVEL, then the config file.
func setupLogging(verbose bool, logging config.MonitoringLogging) {
	level := logging.Level.SlogLevel()
	if env := os.Getenv(LogLevelEnv); env != "" {
		level = config.NormalizeLogLevel(env).SlogLevel()
	}
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if config.NormalizeLogFormat(string(logging.Format)) == config.LogFormatJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// services holds the long-lived collaborators of a runner. Optional ones
// that fail to start are logged and left out.
type services struct {
	registry *prom.Registry
	recorder *metrics.PrometheusRecorder
	history  *history.SQLiteStore
	notifier *notify.NATSNotifier
}

// openServices connects the optional collaborators of a run. Metrics are
// only recorded when serveMetrics is set: a one-shot build exits before
// anything could scrape them.
func openServices(cfg *config.Config, logger *slog.Logger, serveMetrics bool) *services {
	s := &services{registry: prom.NewRegistry()}
	if serveMetrics && cfg.Monitoring.Metrics.Enabled {
		s.recorder = metrics.NewPrometheusRecorder(s.registry)
	}
	if cfg.History.Enabled {
		store, err := history.NewSQLiteStore(cfg.History.Path)
		if err != nil {
			logger.Warn("Build history unavailable", logfields.Path(cfg.History.Path), logfields.Error(err))
		} else {
			s.history = store
		}
	}
	if cfg.Notify.NATSURL != "" {
		n, err := notify.NewNATSNotifier(cfg.Notify)
		if err != nil {
			logger.Warn("Build notifications unavailable", logfields.Error(err))
		} else {
			s.notifier = n.WithLogger(logger)
		}
	}
	return s
}

func (s *services) runnerOptions(cfg *config.Config, logger *slog.Logger) []build.Option {
	opts := []build.Option{
		build.WithLogger(logger),
		build.WithRevision(vcs.RevisionFunc(cfg.Content.BaseDir, logger)),
	}
	if s.recorder != nil {
		opts = append(opts, build.WithRecorder(s.recorder))
	}
	if s.history != nil {
		opts = append(opts, build.WithHistory(s.history))
	}
	if s.notifier != nil {
		opts = append(opts, build.WithNotifier(s.notifier))
	}
	return opts
}

func (s *services) Close(logger *slog.Logger) {
	if s.history != nil {
		if err := s.history.Close(); err != nil {
			logger.Warn("Failed to close build history", logfields.Error(err))
		}
	}
	if s.notifier != nil {
		if err := s.notifier.Close(); err != nil {
			logger.Warn("Failed to close notifier", logfields.Error(err))
		}
	}
}
