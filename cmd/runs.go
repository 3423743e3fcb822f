package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/paper-cli/internal/model"
	"github.com/sells-group/paper-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect ingestion run history",
	Long:  "Commands for listing, viewing, and summarizing ingestion runs recorded in the local ledger.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ingestion runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openLedger(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		mode, _ := cmd.Flags().GetString("mode")
		since, _ := cmd.Flags().GetDuration("since")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.RunFilter{Mode: model.RunMode(mode), Limit: limit}
		if since > 0 {
			filter.Since = time.Now().Add(-since)
		}

		runs, err := st.ListRuns(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openLedger(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openLedger(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		since, _ := cmd.Flags().GetDuration("since")
		filter := store.RunFilter{Limit: 10000}
		if since > 0 {
			filter.Since = time.Now().Add(-since)
		}

		runs, err := st.ListRuns(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		var failures []model.BatchItemOutcome
		for _, r := range runs {
			out, err := st.ListOutcomes(ctx, store.OutcomeFilter{RunID: r.ID, Status: model.StatusFailed, Limit: 10000})
			if err != nil {
				return eris.Wrap(err, "runs stats")
			}
			failures = append(failures, out...)
		}

		formatRunStats(os.Stdout, computeRunStats(runs, failures))
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("mode", "", "filter by mode (single, folder, watch, serve)")
	runsListCmd.Flags().Duration("since", 0, "only runs started within this window (e.g. 24h)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsStatsCmd.Flags().Duration("since", 24*time.Hour, "time window for stats (e.g. 24h, 72h, 168h)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

func openLedger(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, setupError(err)
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, setupError(err)
	}
	return st, nil
}

// runStats holds aggregate statistics computed from a set of runs.
type runStats struct {
	Runs       int
	Unfinished int
	model.Summary
	ByKind     map[model.ErrorKind]int
	AvgDurSecs float64
}

// computeRunStats sums run summaries and counts failures by kind.
func computeRunStats(runs []model.Run, failures []model.BatchItemOutcome) runStats {
	s := runStats{Runs: len(runs), ByKind: map[model.ErrorKind]int{}}

	var totalDur time.Duration
	var durCount int
	for _, r := range runs {
		if r.FinishedAt == nil || r.Summary == nil {
			s.Unfinished++
			continue
		}
		s.Total += r.Summary.Total
		s.Success += r.Summary.Success
		s.Skipped += r.Summary.Skipped
		s.Failed += r.Summary.Failed
		s.Partial += r.Summary.Partial
		totalDur += r.FinishedAt.Sub(r.StartedAt)
		durCount++
	}
	for _, o := range failures {
		kind := o.ErrorKind
		if kind == "" {
			kind = model.ErrInternal
		}
		s.ByKind[kind]++
	}

	if durCount > 0 {
		s.AvgDurSecs = totalDur.Seconds() / float64(durCount)
	}
	return s
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tMODE\tTARGET\tSOURCE\tOK\tSKIP\tFAIL\tSTARTED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t----\t------\t------\t--\t----\t----\t-------\t--------")

	for _, r := range runs {
		ok, skip, fail, dur := "-", "-", "-", "running"
		if r.Summary != nil {
			ok = fmt.Sprint(r.Summary.Success)
			skip = fmt.Sprint(r.Summary.Skipped)
			fail = fmt.Sprint(r.Summary.Failed)
		}
		if r.FinishedAt != nil {
			dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.Mode,
			shorten(r.Target, 40),
			shorten(r.Source, 24),
			ok, skip, fail,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate stats to w.
func formatRunStats(out io.Writer, s runStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Runs:\t%d\n", s.Runs)
	if s.Unfinished > 0 {
		_, _ = fmt.Fprintf(w, "  Unfinished:\t%d\n", s.Unfinished)
	}
	_, _ = fmt.Fprintf(w, "Documents:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Succeeded:\t%d\n", s.Success)
	_, _ = fmt.Fprintf(w, "  Partial:\t%d\n", s.Partial)
	_, _ = fmt.Fprintf(w, "Skipped:\t%d\n", s.Skipped)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Failed)

	kinds := make([]string, 0, len(s.ByKind))
	for k := range s.ByKind {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", k, s.ByKind[model.ErrorKind(k)])
	}
	if s.AvgDurSecs > 0 {
		_, _ = fmt.Fprintf(w, "Avg duration:\t%.1fs\n", s.AvgDurSecs)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
