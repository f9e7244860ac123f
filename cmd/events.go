package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"anomaly-watchdog/internal/monitoring/storage"
)

var (
	eventsMetric   string
	eventsDetector string
	eventsSubtype  string
	eventsSince    string
	eventsUntil    string
	eventsLimit    int
	eventsJSON     bool
	eventsStats    bool
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Query the persisted anomaly log",
	Long: `List anomaly events stored in the SQLite event log, newest first.

--since/--until accept RFC3339 timestamps or durations relative to now.

Example usage:
  anomaly-watchdog events --since 24h
  anomaly-watchdog events --metric cpu --detector statistical --limit 20
  anomaly-watchdog events --stats`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// O log de eventos não depende das métricas configuradas
		cfg, err := readConfig(nil)
		if err != nil {
			return err
		}

		logManager, err := setupLogging(cfg)
		if err != nil {
			return err
		}
		defer logManager.Close()

		events, err := storage.NewEventLog(&storage.EventLogConfig{DBPath: cfg.Storage.DBPath})
		if err != nil {
			return err
		}
		defer events.Close()

		ctx, cancel := withTimeout(30 * time.Second)
		defer cancel()

		if eventsStats {
			stats, err := events.Stats(ctx)
			if err != nil {
				return err
			}
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(stats)
		}

		params := map[string]string{
			"metric":   eventsMetric,
			"detector": eventsDetector,
			"subtype":  eventsSubtype,
			"since":    eventsSince,
			"until":    eventsUntil,
		}
		if eventsLimit > 0 {
			params["limit"] = strconv.Itoa(eventsLimit)
		}

		filter, err := storage.ParseEventFilter(func(key string) string { return params[key] }, time.Now())
		if err != nil {
			return err
		}

		list, err := events.List(ctx, filter)
		if err != nil {
			return err
		}

		if eventsJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(list)
		}

		if len(list) == 0 {
			fmt.Println("Nenhum evento encontrado")
			return nil
		}
		printEvents(list)
		fmt.Printf("\n%d evento(s)\n", len(list))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)

	eventsCmd.Flags().StringVar(&eventsMetric, "metric", "", "Filter by metric name")
	eventsCmd.Flags().StringVar(&eventsDetector, "detector", "", "Filter by detector kind")
	eventsCmd.Flags().StringVar(&eventsSubtype, "subtype", "", "Filter by anomaly subtype")
	eventsCmd.Flags().StringVar(&eventsSince, "since", "", "Only events at or after (RFC3339 or duration)")
	eventsCmd.Flags().StringVar(&eventsUntil, "until", "", "Only events at or before (RFC3339 or duration)")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 100, "Maximum number of events")
	eventsCmd.Flags().BoolVar(&eventsJSON, "json", false, "Print events as JSON")
	eventsCmd.Flags().BoolVar(&eventsStats, "stats", false, "Print event log statistics")
}
