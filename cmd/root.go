package cmd

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/quenchml/quench/internal/config"
	"github.com/quenchml/quench/internal/logging"
	"github.com/quenchml/quench/internal/models"
	"github.com/quenchml/quench/internal/runner"
)

var rootCmd = &cobra.Command{
	Use:   "quench",
	Short: "Run quantized LLMs locally",
	Long: `quench runs quantized GGUF models through a managed llama-server
backend: one-shot generation, interactive chat, benchmarking, model
downloads, and an OpenAI-compatible server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the config file and applies global flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(config.Path())
	if err != nil {
		return nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *logrus.Logger {
	return logging.New(cfg.LogLevel)
}

// addBackendFlags installs the flags shared by every command that
// starts a llama-server subprocess.
func addBackendFlags(cmd *cobra.Command) {
	cmd.Flags().Int("ctx-size", 0, "context window size in tokens (0 = from config)")
	cmd.Flags().Int("gpu-layers", -1, "layers to offload to GPU (-1 = from config)")
	cmd.Flags().Int("threads", 0, "CPU threads (0 = from config)")
}

// backendOptions builds runner options from config with flag overrides.
func backendOptions(cmd *cobra.Command, cfg *config.Config) runner.Options {
	opts := runner.DefaultOptions()
	opts.BinDir = config.BinDir()
	opts.CtxSize = cfg.CtxSize
	opts.GPULayers = cfg.GPULayers
	opts.Threads = cfg.Threads
	opts.FlashAttention = cfg.FlashAttention
	opts.Quiet = cfg.LogLevel != "debug"

	if v, _ := cmd.Flags().GetInt("ctx-size"); v > 0 {
		opts.CtxSize = v
	}
	if cmd.Flags().Changed("gpu-layers") {
		opts.GPULayers, _ = cmd.Flags().GetInt("gpu-layers")
	}
	if v, _ := cmd.Flags().GetInt("threads"); v > 0 {
		opts.Threads = v
	}
	return opts
}

// loadBackend resolves a model by name and starts a llama-server
// subprocess serving it.
func loadBackend(ctx context.Context, cmd *cobra.Command, cfg *config.Config, model string, logger *logrus.Logger) (*runner.ProcessRunner, error) {
	store := models.NewStore(config.ModelsDir())
	modelPath, err := store.Resolve(model)
	if err != nil {
		return nil, err
	}

	rn := runner.NewProcessRunner(logger)
	if err := rn.Load(ctx, modelPath, backendOptions(cmd, cfg)); err != nil {
		return nil, err
	}
	return rn, nil
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error (default from config)")
}
