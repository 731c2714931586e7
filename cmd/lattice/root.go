package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	lattice "github.com/ochoaughini/Cognition-Lattice"
	"github.com/ochoaughini/Cognition-Lattice/config"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "lattice",
		Short:        "Intent orchestration node",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "path to a YAML config file (environment variables override it)")

	root.AddCommand(
		newServeCmd(),
		newIntentCmd(),
		newWorkflowCmd(),
		newResourcesCmd(),
		newHealthcheckCmd(),
	)
	return root
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	return config.Load(path)
}

// openLattice builds a node whose logs go to stderr so stdout stays
// machine readable.
func openLattice(cmd *cobra.Command, optFns ...func(o *lattice.Options)) (*lattice.Lattice, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	fns := append([]func(o *lattice.Options){func(o *lattice.Options) {
		o.Config = cfg
		o.Logger = cfg.LoggerTo(cmd.ErrOrStderr())
	}}, optFns...)
	return lattice.New(commandContext(cmd), fns...)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
