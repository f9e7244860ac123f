package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"anomaly-watchdog/internal/config"
)

var trainTimeout time.Duration

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the multivariate model once",
	Long: `Collect the training window from the metric source, fit the isolation
forest and replace the persisted model. The run is recorded in the training
history. Requires multivariate.enabled and at least two feature metrics.

Example usage:
  anomaly-watchdog train --config config.yaml
  anomaly-watchdog train --timeout 10m`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(func(c *config.Config) {
			// train é explícito: habilita o modelo se features foram configuradas
			if len(c.Multivariate.Features) > 0 {
				c.Multivariate.Enabled = true
			}
		})
		if err != nil {
			return err
		}
		if !cfg.Multivariate.Enabled {
			return errors.New("multivariate model is not configured (multivariate.features is empty)")
		}

		logManager, err := setupLogging(cfg)
		if err != nil {
			return err
		}
		defer logManager.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		ctx, cancel := context.WithTimeout(ctx, trainTimeout)
		defer cancel()

		a, err := buildApp(ctx, cfg, appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		model, err := a.model.Train(ctx)
		if err != nil {
			return fmt.Errorf("training failed: %w", err)
		}

		fmt.Printf("✅ Modelo %s treinado\n", model.Name)
		fmt.Printf("   Features:  %v\n", model.Features)
		fmt.Printf("   Amostras:  %d\n", model.TrainingSamples)
		fmt.Printf("   Árvores:   %d\n", len(model.Trees))
		fmt.Printf("   Threshold: %.4f\n", model.Threshold)
		fmt.Printf("   Salvo em:  %s\n", cfg.Storage.ModelDir)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().DurationVar(&trainTimeout, "timeout", 30*time.Minute, "Maximum training duration")
}
