package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/pressroom/internal/build"
	"git.home.luguber.info/inful/pressroom/internal/config"
	"git.home.luguber.info/inful/pressroom/internal/foundation/errors"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Force  bool   `short:"f" help:"Rebuild every item regardless of the cache"`
	Topic  string `short:"t" help:"Only build articles of this topic"`
	Slug   string `short:"s" help:"Only build the article with this slug"`
	Drafts bool   `help:"Include draft articles"`
	Output string `short:"o" help:"Override build.output_dir"`
}

// ItemFailuresError reports a run that completed but failed some items.
type ItemFailuresError struct {
	Failed int
}

func (e *ItemFailuresError) Error() string {
	return fmt.Sprintf("%d item(s) failed to build", e.Failed)
}

func (e *ItemFailuresError) ExitCode() int { return errors.ExitItemsFailed }

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	b.apply(cfg)

	ctx, cancel := signalContext()
	defer cancel()
	return RunBuild(ctx, g.stdout(), cfg, b.Force, b.Topic, b.Slug)
}

func (b *BuildCmd) apply(cfg *config.Config) {
	if b.Drafts {
		cfg.Content.IncludeDrafts = true
	}
	if b.Output != "" {
		cfg.Build.OutputDir = b.Output
	}
}

// RunBuild performs one build and prints its summary.
func RunBuild(ctx context.Context, out io.Writer, cfg *config.Config, force bool, topic, slug string) error {
	logger := slog.Default()
	scope, err := build.ScopeFor(cfg, topic, slug)
	if err != nil {
		return err
	}

	svc := openServices(cfg, logger, false)
	defer svc.Close(logger)

	runner := build.NewRunner(cfg, svc.runnerOptions(cfg, logger)...)
	report, err := runner.Run(ctx, build.RunOptions{Force: force, Scope: scope})
	if report != nil {
		printReport(out, report)
	}
	if err != nil {
		return err
	}
	if report.HasFailures() {
		return &ItemFailuresError{Failed: report.Failed}
	}
	return nil
}

func printReport(w io.Writer, r *build.BuildReport) {
	_, _ = fmt.Fprintf(w, "Build %s: %s in %s\n", r.RunID, r.Outcome(), r.Duration.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "  built %d, skipped %d, failed %d (partial %d), deleted %d\n",
		r.Built, r.Skipped, r.Failed, r.Partial, r.Deleted)
	_, _ = fmt.Fprintf(w, "  outputs written %d, removed %d\n", r.Outputs, r.DeletedOutputs)
	if r.SiteUpdated {
		_, _ = fmt.Fprintln(w, "  feed.xml and sitemap.xml updated")
	}
	for _, f := range r.Failures {
		_, _ = fmt.Fprintf(w, "  FAILED %s: %s\n", f.Path, f.Error)
	}
	if r.Error != "" {
		_, _ = fmt.Fprintf(w, "  aborted: %s\n", r.Error)
	}
}
