package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dcshock/datamux/config"
)

func newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema data configurations are checked against",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.Schema())
			return err
		},
	}
}
