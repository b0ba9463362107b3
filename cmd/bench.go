package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quenchml/quench/internal/bench"
	"github.com/quenchml/quench/internal/config"
	"github.com/quenchml/quench/internal/models"
	"github.com/quenchml/quench/internal/runner"
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Benchmark a model with a standard prompt sweep",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		model, _ := cmd.Flags().GetString("model")
		if model == "" {
			model = cfg.DefaultModel
		}
		runs, _ := cmd.Flags().GetInt("runs")
		maxTokens, _ := cmd.Flags().GetInt("max-tokens")
		temperature, _ := cmd.Flags().GetFloat64("temperature")
		topP, _ := cmd.Flags().GetFloat64("top-p")
		output, _ := cmd.Flags().GetString("output")
		jsonOut, _ := cmd.Flags().GetBool("json")

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logger := newLogger(cfg)

		store := models.NewStore(config.ModelsDir())
		modelPath, err := store.Resolve(model)
		if err != nil {
			return err
		}

		rn := runner.NewProcessRunner(logger)
		defer rn.Close()

		engine := bench.NewEngine(rn, bench.Config{
			ModelPath:   modelPath,
			Runs:        runs,
			MaxTokens:   maxTokens,
			Temperature: temperature,
			TopP:        topP,
			RunnerOpts:  backendOptions(cmd, cfg),
			Logger:      logger,
		})

		report, err := engine.Run(ctx)
		if err != nil {
			return err
		}

		if output == "" {
			output = bench.DefaultOutputPath(time.Now())
		}
		if err := report.WriteFile(output); err != nil {
			return fmt.Errorf("write results: %w", err)
		}
		fmt.Printf("\nResults saved to %s\n", output)

		if jsonOut {
			jsonPath := bench.JSONPath(output)
			if err := report.WriteJSON(jsonPath); err != nil {
				return fmt.Errorf("write JSON results: %w", err)
			}
			fmt.Printf("JSON results saved to %s\n", jsonPath)
		}

		return nil
	},
}

func init() {
	benchCmd.Flags().String("model", "", "model to benchmark (default from config)")
	benchCmd.Flags().Int("runs", 5, "generation runs per prompt")
	benchCmd.Flags().Int("max-tokens", 256, "maximum tokens per generation")
	benchCmd.Flags().Float64("temperature", 0.7, "sampling temperature")
	benchCmd.Flags().Float64("top-p", 0.9, "nucleus sampling probability")
	benchCmd.Flags().String("output", "", "results file (default benchmark_results_<timestamp>.txt)")
	benchCmd.Flags().Bool("json", false, "also write machine-readable results")
	addBackendFlags(benchCmd)
	rootCmd.AddCommand(benchCmd)
}
