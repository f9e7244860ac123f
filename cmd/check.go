package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"

	"anomaly-watchdog/internal/config"
	"anomaly-watchdog/internal/monitoring/engine"
	"anomaly-watchdog/internal/monitoring/models"
	"anomaly-watchdog/internal/monitoring/source"
)

var (
	checkSamples string
	checkAt      string
	checkPersist bool
	checkJSON    bool
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run a single detection cycle and print the result",
	Long: `Run exactly one detection cycle and print the anomalies found.

With --samples the cycle runs over a JSON file (a list of
{"metric_name", "timestamp", "value"} objects) instead of Prometheus; the
evaluation time defaults to the newest sample and the metric set defaults to
the metrics present in the file.

Example usage:
  anomaly-watchdog check
  anomaly-watchdog check --samples testdata/cpu.json --json
  anomaly-watchdog check --samples cpu.json --at 2024-03-01T13:00:00Z`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var memory *source.MemorySource
		if checkSamples != "" {
			var err error
			if memory, err = source.LoadSamplesFile(checkSamples); err != nil {
				return err
			}
		}

		cfg, err := loadConfig(func(c *config.Config) {
			if memory != nil && len(c.Metrics) == 0 {
				for _, name := range memory.Metrics() {
					c.Metrics = append(c.Metrics, config.MetricConfig{Name: name})
				}
			}
		})
		if err != nil {
			return err
		}

		logManager, err := setupLogging(cfg)
		if err != nil {
			return err
		}
		defer logManager.Close()

		opts := appOptions{persist: checkPersist}
		if memory != nil {
			at := memory.Latest()
			if checkAt != "" {
				if at, err = time.Parse(time.RFC3339, checkAt); err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
			}
			mock := clock.NewMock()
			mock.Set(at)
			opts.source = memory
			opts.clock = mock
		}

		ctx, cancel := withTimeout(2 * time.Minute)
		defer cancel()

		a, err := buildApp(ctx, cfg, opts)
		if err != nil {
			return err
		}
		defer a.close()

		report := a.engine.RunCycle(ctx)

		if checkJSON {
			return printReportJSON(report)
		}
		printReport(report)
		return nil
	},
}

func printReportJSON(report *engine.CycleReport) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(struct {
		Summary     engine.CycleSummary       `json:"summary"`
		Events      []models.AnomalyEvent     `json:"events"`
		Correlation *models.CorrelationReport `json:"correlation,omitempty"`
	}{
		Summary:     report.Summary(),
		Events:      report.Events,
		Correlation: report.Correlation,
	})
}

func printReport(report *engine.CycleReport) {
	summary := report.Summary()
	fmt.Printf("🔍 Ciclo %d concluído em %dms\n", summary.Number, summary.DurationMs)
	fmt.Printf("   Eventos: %d | Ignorados: %d | Erros de fonte: %d\n\n", summary.Events, summary.Skipped, summary.SourceErrors)

	if len(report.Events) == 0 {
		fmt.Println("✅ Nenhuma anomalia detectada")
	} else {
		printEvents(report.Events)
	}

	if len(summary.SkippedByReason) > 0 {
		fmt.Println("\nDetecções ignoradas:")
		for reason, count := range summary.SkippedByReason {
			fmt.Printf("   %-20s %d\n", reason, count)
		}
	}
}

func printEvents(events []models.AnomalyEvent) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tMETRIC\tDETECTOR\tSUBTYPE\tSEVERITY\tOBSERVED\tBASELINE\tSCORE")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.3f\t%.3f\t%.3f\n",
			e.Timestamp.UTC().Format(time.RFC3339),
			e.MetricName,
			e.DetectorKind,
			e.Subtype,
			e.Severity,
			e.ObservedValue,
			e.BaselineValue,
			e.Score,
		)
	}
	w.Flush()
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVar(&checkSamples, "samples", "", "Evaluate a JSON samples file instead of Prometheus")
	checkCmd.Flags().StringVar(&checkAt, "at", "", "Evaluation time (RFC3339, only with --samples)")
	checkCmd.Flags().BoolVar(&checkPersist, "persist", false, "Persist detected events to the event log")
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "Print the result as JSON")
}
