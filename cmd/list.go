package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available models",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mc, err := newClient().LoadConfig(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list models: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(mc.AvailableModels) == 0 {
			fmt.Fprintln(out, "No models available.")
			return nil
		}

		fmt.Fprintf(out, "%-40s %s\n", "NAME", "CURRENT")
		fmt.Fprintln(out, "────────────────────────────────────────────────")
		for _, name := range mc.AvailableModels {
			mark := ""
			if name == mc.CurrentModel {
				mark = "*"
			}
			fmt.Fprintf(out, "%-40s %s\n", name, mark)
		}
		return nil
	},
}

var currentCmd = &cobra.Command{
	Use:   "current",
	Short: "Print the current model",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mc, err := newClient().LoadConfig(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), mc.CurrentModel)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(currentCmd)
}
