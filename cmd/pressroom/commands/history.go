package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/pressroom/internal/foundation/errors"
	"git.home.luguber.info/inful/pressroom/internal/history"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Limit int `short:"n" help:"Number of runs to show" default:"20"`
}

func (h *HistoryCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	if !cfg.History.Enabled {
		return errors.ValidationError("build history is disabled (history.enabled: false)").Build()
	}
	store, err := history.NewSQLiteStore(cfg.History.Path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	runs, err := store.List(context.Background(), h.Limit)
	if err != nil {
		return err
	}
	return printRuns(g.stdout(), runs)
}

func printRuns(w io.Writer, runs []history.Run) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No builds recorded")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "STARTED\tRUN\tOUTCOME\tBUILT\tSKIPPED\tFAILED\tDELETED\tDURATION\tCOMMIT")
	for _, r := range runs {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			r.StartedAt.Local().Format(time.DateTime),
			shortID(r.RunID),
			r.Outcome,
			r.Built, r.Skipped, r.Failed, r.Deleted,
			r.Duration.Round(time.Millisecond),
			r.Commit)
	}
	return tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
