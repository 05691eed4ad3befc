package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "tsbridge",
		Short:        "Headless TypeScript server bridge",
		Long:         `tsbridge mirrors editor buffers into tsserver and schedules diagnostics for them`,
		Version:      version,
		SilenceUsage: true,
	}
	root.SetVersionTemplate(versionTemplate())

	root.PersistentFlags().StringP("config", "c", "", "path to a .toml or .yaml configuration file")
	root.PersistentFlags().String("log-level", "", "log level (trace|debug|info|warn|error)")

	root.AddCommand(newServeCommand())
	root.AddCommand(newVersionCommand())
	return root
}
