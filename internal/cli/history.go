package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	ferrors "git.home.luguber.info/inful/sitepress/internal/foundation/errors"
	"git.home.luguber.info/inful/sitepress/internal/history"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Source string `short:"s" help:"Site source directory, used to locate the default history database."`
	Limit  int    `short:"n" default:"10" help:"Number of builds to show; 0 shows all."`
	Keep   int    `help:"Delete all but the newest N builds before listing."`
}

func (h *HistoryCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	root.configureLogging(cfg)
	if h.Source != "" {
		cfg.Source = h.Source
	}
	if cfg.History.Disabled {
		return ferrors.ConfigError("build history is disabled in the configuration").Build()
	}

	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	if h.Keep > 0 {
		n, err := store.Prune(ctx, h.Keep)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(g.Stdout, "Pruned %d builds\n", n)
	}
	records, err := store.Recent(ctx, h.Limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		_, _ = fmt.Fprintln(g.Stdout, "No builds recorded")
		return nil
	}

	tw := tabwriter.NewWriter(g.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "BUILD\tSTARTED\tOUTCOME\tDURATION\tWRITTEN\tREMOVED\tSKIPPED\tERROR")
	for _, r := range records {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			r.BuildID,
			r.Start.Local().Format(time.DateTime),
			r.Outcome,
			r.Duration().Round(time.Millisecond),
			r.Written, r.Removed, r.Skipped,
			r.Error)
	}
	return tw.Flush()
}
