// Package cmd wires the CLI commands.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/swarahealth/coughwatch-go/cmd/serve"
	"github.com/swarahealth/coughwatch-go/internal/conf"
)

// RootCommand creates and returns the root command.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "coughwatch",
		Short: "CoughWatch monitoring backend",
		Long:  "Backend for TB cough screening: recording intake, classification tracking, device monitoring and staff notifications.",
	}

	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", settings.Debug, "Enable debug output")

	rootCmd.AddCommand(serve.Command(settings))

	return rootCmd
}
