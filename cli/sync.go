// ABOUTME: Sync CLI commands: run a sync and show run history
// ABOUTME: Loads contacts and sync states, runs the engine and persists its outcome
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/harperreed/crmsync/db"
	"github.com/harperreed/crmsync/models"
	"github.com/harperreed/crmsync/sync"
)

// SyncCommand exchanges contacts with one provider.
func SyncCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	direction := fs.String("direction", string(models.DirectionBidirectional), "to_crm, from_crm or bidirectional")
	conflict := fs.String("conflict", string(models.ConflictNewestWins), "adsapp_wins, crm_wins, newest_wins or manual")
	since := fs.String("since", "", "Only records changed after this RFC3339 time, or 'last' for the last clean run")
	force := fs.Bool("force", false, "Exchange records even when unchanged")
	batchSize := fs.Int("batch-size", 0, "Records per batch (default: provider limit)")
	concurrency := fs.Int("concurrency", 1, "Records pushed in parallel within a batch")
	adopt := fs.Bool("adopt", false, "Link or create local contacts for unmapped CRM records")
	_ = fs.Parse(args)

	provider, err := parseProvider(fs.Args(), "sync")
	if err != nil {
		return err
	}
	dir, err := models.ParseDirection(*direction)
	if err != nil {
		return err
	}
	policy, err := models.ParseConflictResolution(*conflict)
	if err != nil {
		return err
	}
	cutoff, err := parseSince(app, provider, *since)
	if err != nil {
		return err
	}

	client, err := app.Client(app.OrgID, provider)
	if err != nil {
		return err
	}
	defer client.Close()

	req, err := db.LoadSyncRequest(app.DB, app.OrgID, provider)
	if err != nil {
		return err
	}
	req.Direction = dir
	req.ConflictResolution = policy
	req.Since = cutoff
	req.Force = *force

	engine := sync.NewEngine(client,
		sync.WithLogger(app.logger()),
		sync.WithBatchSize(*batchSize),
		sync.WithConcurrency(*concurrency),
		sync.WithAdoptUnmapped(*adopt),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app.printf("Syncing %d contact(s) with %s (%s)...\n", len(req.Contacts), provider, dir)
	outcome, runErr := engine.Run(ctx, req)
	// An aborted run still links the records it pushed before stopping.
	if outcome != nil {
		if err := db.SaveSyncOutcome(app.DB, app.OrgID, outcome); err != nil {
			if runErr != nil {
				return fmt.Errorf("sync failed: %w (and storing its outcome failed: %v)", runErr, err)
			}
			return err
		}
	}
	if runErr != nil {
		return fmt.Errorf("sync failed: %w", runErr)
	}

	app.logger().Info("sync run stored",
		zap.String("run_id", outcome.Result.RunID),
		zap.Int("local_updates", len(outcome.LocalUpdates)),
		zap.Int("new_contacts", len(outcome.NewContacts)))
	printResult(app, outcome.Result)
	return nil
}

func parseSince(app *App, provider models.Provider, since string) (*time.Time, error) {
	switch since {
	case "":
		return nil, nil
	case "last":
		run, err := db.LastSuccessfulRun(app.DB, app.OrgID, provider)
		if err != nil {
			return nil, err
		}
		if run == nil {
			return nil, nil
		}
		return &run.StartedAt, nil
	}
	t, err := time.Parse(time.RFC3339, since)
	if err != nil {
		return nil, fmt.Errorf("invalid --since %q: %w", since, err)
	}
	return &t, nil
}

func printResult(app *App, r models.SyncResult) {
	if r.Cancelled {
		app.printf("! Sync cancelled, partial results saved\n")
	}
	app.printf("✓ Sync %s finished in %s\n", r.RunID, r.Duration.Round(time.Millisecond))
	app.printf("  Processed: %d  Success: %d  Failed: %d  Skipped: %d  Unmapped: %d\n",
		r.RecordsProcessed, r.RecordsSuccess, r.RecordsFailed, r.RecordsSkipped, r.RecordsUnmapped)

	for _, e := range r.Errors {
		app.printf("  ✗ [%s] %s: %s\n", e.Phase, firstNonEmpty(e.LocalID, e.CRMRecordID, "-"), e.Message)
	}
	for _, c := range r.Unresolved() {
		app.printf("  ? conflict on %s (crm %s): local %s, crm %s\n", c.LocalID, c.CRMRecordID,
			c.LocalUpdatedAt.Format(time.RFC3339), c.CRMUpdatedAt.Format(time.RFC3339))
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// RunsCommand lists recent sync runs for a provider.
func RunsCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	limit := fs.Int("limit", 10, "Max results")
	_ = fs.Parse(args)

	provider, err := parseProvider(fs.Args(), "runs")
	if err != nil {
		return err
	}

	runs, err := db.ListSyncRuns(app.DB, app.OrgID, provider, *limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		app.printf("No sync runs for %s\n", provider)
		return nil
	}

	w := tabwriter.NewWriter(app.out(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTARTED\tDIRECTION\tPROCESSED\tSUCCESS\tFAILED\tCONFLICTS")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n", r.RunID, r.StartedAt.Format(time.RFC3339), r.Direction,
			r.RecordsProcessed, r.RecordsSuccess, r.RecordsFailed, len(r.Conflicts))
	}
	return w.Flush()
}
