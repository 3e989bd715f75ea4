package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/atlas-research/internal/model"
)

var batchYes bool

var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Research every target in a CSV or Excel file",
	Long:  "Uploads a record list, reports how many targets it holds, and after confirmation researches them in order and exports a bulk workbook.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrap(err, "open input")
		}
		up, err := env.Controller.Accept(ctx, filepath.Base(args[0]), f)
		_ = f.Close()
		if err != nil {
			return err
		}

		a, err := env.Controller.Analyze(ctx, up.Filename)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "%s: %d targets (%d rows skipped)\n", args[0], a.Count, a.Skipped)

		if !batchYes && !confirm(os.Stdin, os.Stderr, fmt.Sprintf("Research %d targets?", a.Count)) {
			fmt.Fprintln(os.Stderr, "Aborted.")
			return nil
		}

		job, err := env.Controller.Confirm(ctx, up.Filename)
		if err != nil {
			return err
		}

		events := make(chan model.Event, 64)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for ev := range events {
				printEvent(os.Stderr, ev)
			}
		}()
		res, err := env.Controller.Run(ctx, job, events)
		close(events)
		<-done
		if err != nil {
			return err
		}

		formatBatchResult(os.Stdout, res, env.Exporter.Dir())
		return nil
	},
}

// confirm asks a yes/no question and reports whether the answer was yes.
func confirm(in io.Reader, out io.Writer, question string) bool {
	_, _ = fmt.Fprintf(out, "%s [y/N] ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func formatBatchResult(out io.Writer, res model.BatchResult, reportDir string) {
	_, _ = fmt.Fprintf(out, "Batch %s: %d targets, %d succeeded, %d failed\n",
		truncateID(res.JobID), res.Count, res.Succeeded, res.Failed)
	if res.ReportName != "" {
		_, _ = fmt.Fprintf(out, "Report: %s\n", filepath.Join(reportDir, res.ReportName))
	}
}

func init() {
	batchCmd.Flags().BoolVarP(&batchYes, "yes", "y", false, "skip the confirmation prompt")
	rootCmd.AddCommand(batchCmd)
}
