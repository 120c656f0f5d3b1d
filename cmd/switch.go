package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var switchCmd = &cobra.Command{
	Use:   "switch <model>",
	Short: "Switch the active model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		model := args[0]
		resp, err := newClient().SwitchModel(cmd.Context(), model)
		if err != nil {
			return fmt.Errorf("failed to switch to %s: %w", model, err)
		}
		logger.Debug().Str("model", model).Str("server", resp.Message).Msg("switch done")

		msg := resp.Message
		if msg == "" {
			msg = "Switched to " + model
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(switchCmd)
}
