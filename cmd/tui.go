package cmd

import (
	"github.com/spf13/cobra"

	"github.com/coresolutiondoteu/open-webui/internal/apiclient"
	"github.com/coresolutiondoteu/open-webui/internal/logging"
	"github.com/coresolutiondoteu/open-webui/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Interactive model switcher",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// The terminal belongs to the UI, so logs go to a file.
		f, err := logging.OpenFile(cfg.LogFile)
		if err != nil {
			return err
		}
		defer f.Close()

		fileLogger, err := logging.New(logging.Options{
			Level:  cfg.LogLevel,
			Format: "json",
			Output: f,
		})
		if err != nil {
			return err
		}
		fileLogger.Info().Str("server_url", cfg.ServerURL).Msg("starting tui")

		app := tui.New(apiclient.New(cfg.ServerURLTrimmed()), fileLogger, tui.Options{
			RequestTimeout: cfg.RequestTimeout,
		})
		return app.Run()
	},
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}
