package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ochoaughini/Cognition-Lattice/core"
)

func newIntentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "intent <type> [args...]",
		Short: "Dispatch one intent in process and print its result",
		Long: `Dispatch one intent in process and print its result as JSON.

Positional arguments after the type are joined into a string argument.
Use --args to pass structured arguments as JSON instead.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runIntent,
	}
	cmd.Flags().String("args", "", "intent arguments as JSON")
	cmd.Flags().String("id", "", "intent_id to use instead of a generated one")
	return cmd
}

func runIntent(cmd *cobra.Command, args []string) error {
	var intentArgs any
	if len(args) > 1 {
		intentArgs = strings.Join(args[1:], " ")
	}
	if raw, _ := cmd.Flags().GetString("args"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &intentArgs); err != nil {
			return fmt.Errorf("parse --args: %w", err)
		}
	}

	intent := core.NewIntent(args[0], intentArgs)
	if id, _ := cmd.Flags().GetString("id"); id != "" {
		intent[core.KeyIntentID] = id
	}

	l, err := openLattice(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = l.Stop() }()

	res := l.Dispatch(commandContext(cmd), intent)
	if err := printJSON(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	if res.IsError() {
		return fmt.Errorf("intent %s failed: %s", intent.Type(), res.Message())
	}
	return nil
}
