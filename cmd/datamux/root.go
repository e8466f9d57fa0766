package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	cc := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "datamux",
		Short:         "Weighted mixing of speech training data",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cc.setupLogger(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cc.configPath, "config", "c", "", "Data configuration file (.yaml, .yml, .json or .toml)")
	flags.StringVar(&cc.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	flags.StringVar(&cc.logFormat, "log-format", "", "Log format: text or json (default text on a terminal, json otherwise)")

	rootCmd.AddCommand(newValidateCommand(cc))
	rootCmd.AddCommand(newInspectCommand(cc))
	rootCmd.AddCommand(newSampleCommand(cc))
	rootCmd.AddCommand(newSchemaCommand())

	return rootCmd
}
