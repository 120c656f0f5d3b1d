package cmd

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/coresolutiondoteu/open-webui/internal/apiclient"
	"github.com/coresolutiondoteu/open-webui/internal/config"
	"github.com/coresolutiondoteu/open-webui/internal/logging"
)

var (
	v          = viper.New()
	configFile string

	// Set by PersistentPreRunE before any command runs.
	cfg    *config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "modelswitch",
	Short:         "modelswitch - pick the model served to the web UI",
	Long:          "modelswitch shows the available models and switches the active one, either interactively (tui) or from scripts.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(v, configFile)
		if err != nil {
			return err
		}
		l, err := logging.New(logging.Options{
			Level:  c.LogLevel,
			Format: c.LogFormat,
			Output: cmd.ErrOrStderr(),
		})
		if err != nil {
			return err
		}
		cfg, logger = c, l
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default: modelswitch.yaml in the data dir or .)")
	flags.String("server-url", "http://127.0.0.1:5000", "modelswitch server URL")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-format", "console", "log format: console or json")

	bindFlags(flags, map[string]string{
		"server-url": "server_url",
		"log-level":  "log_level",
		"log-format": "log_format",
	})
}

// bindFlags binds each flag to its config key so flags override file and environment values.
func bindFlags(fs *pflag.FlagSet, keys map[string]string) {
	for flag, key := range keys {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

func newClient() *apiclient.Client {
	return apiclient.New(cfg.ServerURLTrimmed(), apiclient.WithTimeout(cfg.RequestTimeout))
}
