package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quenchml/quench/internal/config"
	"github.com/quenchml/quench/internal/models"
	"github.com/quenchml/quench/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the OpenAI-compatible HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		if host, _ := cmd.Flags().GetString("host"); host != "" {
			cfg.Host = host
		}
		if port, _ := cmd.Flags().GetInt("port"); port != 0 {
			cfg.Port = port
		}
		if v, _ := cmd.Flags().GetInt("ctx-size"); v > 0 {
			cfg.CtxSize = v
		}
		if cmd.Flags().Changed("gpu-layers") {
			cfg.GPULayers, _ = cmd.Flags().GetInt("gpu-layers")
		}
		if v, _ := cmd.Flags().GetInt("threads"); v > 0 {
			cfg.Threads = v
		}

		if err := config.EnsureDirs(); err != nil {
			return err
		}

		logger := newLogger(cfg)
		store := models.NewStore(config.ModelsDir())

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv := server.New(cfg, store, logger, version)

		if model, _ := cmd.Flags().GetString("model"); model != "" {
			logger.Infof("preloading model %s", model)
			if err := srv.LoadModel(ctx, model); err != nil {
				return err
			}
		}

		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().String("host", "", "bind address (default from config)")
	serveCmd.Flags().Int("port", 0, "listen port (default from config)")
	serveCmd.Flags().String("model", "", "model to preload at startup")
	addBackendFlags(serveCmd)
	rootCmd.AddCommand(serveCmd)
}
