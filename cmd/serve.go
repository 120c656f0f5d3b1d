package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/coresolutiondoteu/open-webui/internal/config"
	"github.com/coresolutiondoteu/open-webui/internal/models"
	"github.com/coresolutiondoteu/open-webui/internal/runner"
	"github.com/coresolutiondoteu/open-webui/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve /config.json and /api/switch_model",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.EnsureDirs(cfg); err != nil {
			return err
		}

		store := models.NewStore(cfg.ModelConfig)

		var launcher runner.Launcher = &runner.NoopLauncher{}
		if cfg.Launch {
			pl, err := runner.NewProcessLauncher(cfg.LaunchCommand, cfg.StopTimeout, logger)
			if err != nil {
				return err
			}
			launcher = pl
			logger.Info().Str("command", cfg.LaunchCommand).Msg("model launching enabled")
		} else {
			logger.Info().Msg("model launching disabled")
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv := server.New(cfg, store, launcher, logger)
		if err := srv.Bootstrap(ctx); err != nil {
			return err
		}
		return srv.Start(ctx)
	},
}

func init() {
	flags := serveCmd.Flags()
	flags.String("host", "0.0.0.0", "bind address")
	flags.Int("port", 5000, "listen port")
	flags.String("model-config", "", "model config file served as /config.json")
	flags.StringSlice("models", nil, "available models used to create the model config file")
	flags.String("default-model", "", "current model used to create the model config file")
	flags.Bool("launch", true, "launch the current model with --launch-command")
	flags.String("launch-command", "ollama run {model}", "command that serves a model, {model} is replaced")

	bindFlags(flags, map[string]string{
		"host":           "host",
		"port":           "port",
		"model-config":   "model_config",
		"models":         "available_models",
		"default-model":  "default_model",
		"launch":         "launch",
		"launch-command": "launch_command",
	})

	rootCmd.AddCommand(serveCmd)
}
