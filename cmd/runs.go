package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/atlas-research/internal/model"
	"github.com/sells-group/atlas-research/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect research run history",
	Long:  "Commands for listing and viewing persisted research runs and batch summaries.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List research runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("runs"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		target, _ := cmd.Flags().GetString("target")
		batchID, _ := cmd.Flags().GetString("batch")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status:    model.RunStatus(status),
			TargetKey: target,
			BatchID:   batchID,
			Limit:     limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		formatRunStats(os.Stdout, computeRunStats(runs))
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
		if err := cfg.Validate("runs"); err != nil {
			return err
		}

		st, err := initStore(ctx)
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

// -- runs batch --

var runsBatchCmd = &cobra.Command{
	Use:   "batch <batch-id>",
	Short: "Show a batch summary and its runs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("runs"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		summary, err := st.GetBatch(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs batch")
		}
		runs, err := st.ListRuns(ctx, store.RunFilter{BatchID: summary.ID, Limit: summary.Total})
		if err != nil {
			return eris.Wrap(err, "runs batch")
		}

		formatBatchSummary(os.Stdout, summary)
		if len(runs) > 0 {
			_, _ = fmt.Fprintln(os.Stdout)
			formatRunsList(os.Stdout, runs)
		}
		return nil
	},
}

func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTARGET\tSTATUS\tFAILED_IN\tSTARTED\tDURATION\tCOST")
	_, _ = fmt.Fprintln(w, "--\t------\t------\t---------\t-------\t--------\t----")

	for _, r := range runs {
		dur := r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()

		target := r.Target.Label()
		if len(target) > 30 {
			target = target[:27] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t$%.4f\n",
			truncateID(r.ID),
			target,
			r.Status,
			r.FailedIn,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
			r.Usage.CostUSD,
		)
	}
	_ = w.Flush()
}

func formatBatchSummary(out io.Writer, b *model.BatchSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Batch:\t%s\n", b.ID)
	_, _ = fmt.Fprintf(w, "File:\t%s\n", b.Filename)
	_, _ = fmt.Fprintf(w, "Targets:\t%d (%d succeeded, %d failed)\n", b.Total, b.Succeeded, b.Failed)
	if b.ReportName != "" {
		_, _ = fmt.Fprintf(w, "Report:\t%s\n", b.ReportName)
	}
	_, _ = fmt.Fprintf(w, "Duration:\t%s\n", b.FinishedAt.Sub(b.CreatedAt).Round(time.Second))
	_ = w.Flush()
}

type runStats struct {
	Total     int
	Completed int
	Failed    int
	CostUSD   float64
	ByPhase   map[model.Phase]int
}

func computeRunStats(runs []model.Run) runStats {
	s := runStats{Total: len(runs), ByPhase: make(map[model.Phase]int)}
	for _, r := range runs {
		s.CostUSD += r.Usage.CostUSD
		switch r.Status {
		case model.RunStatusCompleted:
			s.Completed++
		case model.RunStatusFailed:
			s.Failed++
			s.ByPhase[r.FailedIn]++
		}
	}
	return s
}

func formatRunStats(out io.Writer, s runStats) {
	_, _ = fmt.Fprintf(out, "\n%d runs: %d completed, %d failed, $%.4f total\n", s.Total, s.Completed, s.Failed, s.CostUSD)
	for phase, n := range s.ByPhase {
		_, _ = fmt.Fprintf(out, "  failed in %s: %d\n", phase, n)
	}
}

func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by status (completed, failed)")
	runsListCmd.Flags().String("target", "", "filter by target key")
	runsListCmd.Flags().String("batch", "", "filter by batch ID")
	runsListCmd.Flags().Int("limit", 20, "max runs to show")

	runsCmd.AddCommand(runsListCmd, runsShowCmd, runsBatchCmd)
	rootCmd.AddCommand(runsCmd)
}
