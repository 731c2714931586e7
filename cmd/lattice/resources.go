package main

import (
	"github.com/spf13/cobra"
)

func newResourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resources",
		Short: "Detect compute resources and print them with executor stats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := openLattice(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = l.Stop() }()

			usage, err := l.Resources().Usage(commandContext(cmd))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), usage)
		},
	}
}
