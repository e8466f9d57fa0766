package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dcshock/datamux/stream"
)

func newValidateCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Parse and resolve a data configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, tarred, err := cc.build(cmd.Context(), nil)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK: %s (tarred: %t, sources: %d)\n",
				cc.configPath, tarred, len(stream.EffectiveShares(s)))
			return nil
		},
	}
}
