package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ochoaughini/Cognition-Lattice/core"
	"github.com/ochoaughini/Cognition-Lattice/harmonizer"
)

func newWorkflowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow <file.yaml>",
		Short: "Run a workflow file with compensation and print the run",
		Args:  cobra.ExactArgs(1),
		RunE:  runWorkflow,
	}
	cmd.Flags().String("args", "", "workflow input arguments as JSON, inherited by steps without their own")
	return cmd
}

type workflowReport struct {
	ID         string        `json:"id"`
	Name       string        `json:"name,omitempty"`
	State      string        `json:"state"`
	Completed  []string      `json:"completed"`
	RolledBack []string      `json:"rolled_back,omitempty"`
	Results    []core.Result `json:"results"`
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	wf, err := harmonizer.LoadWorkflow(args[0])
	if err != nil {
		return err
	}

	input := core.Intent{core.KeyIntent: harmonizer.IntentWorkflow}
	if raw, _ := cmd.Flags().GetString("args"); raw != "" {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return fmt.Errorf("parse --args: %w", err)
		}
		input[core.KeyArgs] = v
	}

	l, err := openLattice(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = l.Stop() }()

	run := l.ExecuteWorkflow(commandContext(cmd), wf, input)
	report := workflowReport{
		ID:         run.ID,
		Name:       wf.Name,
		State:      string(run.State()),
		Completed:  run.Completed,
		RolledBack: run.RolledBack,
		Results:    run.Results,
	}
	if err := printJSON(cmd.OutOrStdout(), report); err != nil {
		return err
	}
	if run.Err != nil {
		return fmt.Errorf("workflow %s failed: %w", wf.Name, run.Err)
	}
	return nil
}
