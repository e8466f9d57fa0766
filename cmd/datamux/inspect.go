package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dcshock/datamux/stream"
)

func newInspectCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Show the resolved stream tree and each stream's expected share",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, tarred, err := cc.build(cmd.Context(), nil)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"Stream", "Kind", "Records", "Max Open", "Share"},
				treeRows(s),
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight},
			))
			fmt.Fprintf(out, "tarred: %t\n", tarred)
			return nil
		},
	}
}

// treeRows lists every stream in the tree, indented by multiplexer depth.
func treeRows(s *stream.Stream) [][]string {
	var rows [][]string
	_ = stream.Walk(s, func(s *stream.Stream, depth int, share float64) error {
		records := "-"
		if n, ok := s.SizeHint(); ok {
			records = strconv.Itoa(n)
		}
		maxOpen := "-"
		if n := s.MaxOpen(); n > 0 {
			maxOpen = strconv.Itoa(n)
		}
		rows = append(rows, []string{
			strings.Repeat("  ", depth) + s.Name(),
			string(s.Kind()),
			records,
			maxOpen,
			formatShare(share),
		})
		return nil
	})
	return rows
}

func formatShare(v float64) string {
	return strconv.FormatFloat(v*100, 'f', 2, 64) + "%"
}
