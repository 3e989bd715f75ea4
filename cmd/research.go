package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/atlas-research/internal/model"
	"github.com/sells-group/atlas-research/internal/report"
)

var researchFormat string

var researchCmd = &cobra.Command{
	Use:   "research <target>",
	Short: "Research a single company or domain",
	Long:  "Runs one target through search, browse, extract and finalize, printing progress to stderr and the profile to stdout.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if researchFormat != "json" && researchFormat != "yaml" {
			return eris.Errorf("unsupported format %q (want json or yaml)", researchFormat)
		}

		target, err := model.NewTarget(args[0])
		if err != nil {
			return err
		}

		env, err := initApp(ctx, "research")
		if err != nil {
			return err
		}
		defer env.Close()

		events, outcomes := env.Engine.Start(ctx, target)
		for ev := range events {
			printEvent(os.Stderr, ev)
		}
		o := <-outcomes

		if !o.Persistable() {
			return eris.Errorf("research for %s was cancelled", target.Label())
		}
		if _, err := env.Store.SaveRun(ctx, model.RunFromOutcome(o, "")); err != nil {
			zap.L().Error("save run failed", zap.String("target", target.Label()), zap.Error(err))
		}
		if !o.Succeeded() {
			return o.Err()
		}

		rep := report.Assemble([]model.Outcome{o})
		name, err := env.Exporter.ExportProfile(target.Label(), rep)
		if err != nil {
			return eris.Wrap(err, "export profile")
		}
		if err := writeProfile(os.Stdout, researchFormat, rep.Profile); err != nil {
			return err
		}

		path, _ := env.Exporter.Path(name)
		fmt.Fprintf(os.Stderr, "Report written to %s (cost $%.4f)\n", path, o.Usage.CostUSD)
		return nil
	},
}

// printEvent renders one progress event as a log line.
func printEvent(out io.Writer, ev model.Event) {
	switch ev.Kind {
	case model.EventLog:
		if ev.Log == nil {
			return
		}
		_, _ = fmt.Fprintf(out, "%s [%s] %s\n", ev.Log.Timestamp.Format("15:04:05"), ev.Log.Category, ev.Log.Content)
	case model.EventProgress:
		if ev.Progress == nil {
			return
		}
		p := ev.Progress
		_, _ = fmt.Fprintf(out, "[%d/%d] %s: %s\n", p.Current, p.Total, p.Target, p.Status)
	}
}

// writeProfile encodes profile as json or yaml.
func writeProfile(out io.Writer, format string, profile *report.Profile) error {
	if profile == nil {
		return eris.New("no profile to write")
	}
	if format == "yaml" {
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(profile); err != nil {
			return eris.Wrap(err, "encode yaml")
		}
		return enc.Close()
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(profile)
}

func init() {
	researchCmd.Flags().StringVar(&researchFormat, "format", "json", "output format: json or yaml")
	rootCmd.AddCommand(researchCmd)
}
