package agent

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/ochoaughini/Cognition-Lattice/core"
)

// Intent types served by the built-in handlers.
const (
	IntentEcho   = "echo"
	IntentPlan   = "plan"
	IntentAct    = "act"
	IntentVerify = "verify"
)

// Status tags reported by the built-in handlers.
const (
	StatusPlanned = "planned"
	StatusActed   = "acted"
)

// Errors raised by the built-in handlers.
var (
	ErrActionFailed       = errors.New("Action failed")
	ErrVerificationFailed = errors.New("Verification failed")
)

// Registrar is the subset of registry.Registry used by RegisterBuiltins.
type Registrar interface {
	RegisterAgent(factory core.Factory) error
}

// RegisterBuiltins registers echo, plan, act and verify. Each dispatch gets a
// fresh handler instance.
func RegisterBuiltins(r Registrar) error {
	for _, f := range []core.Factory{
		func() core.Handler { return Echo{} },
		func() core.Handler { return &Plan{} },
		func() core.Handler { return &Act{} },
		func() core.Handler { return Verify{} },
	} {
		if err := r.RegisterAgent(f); err != nil {
			return err
		}
	}
	return nil
}

// Echo answers with the intent's args.
type Echo struct{}

func (Echo) IntentTypes() []string { return []string{IntentEcho} }

func (Echo) Execute(_ context.Context, intent core.Intent) (core.Result, error) {
	return core.Result{core.KeyStatus: core.StatusOK, "echo": intent.Args()}, nil
}

// Plan is the first step of the plan/act/verify workflow.
type Plan struct {
	rolledBack atomic.Bool
}

func (*Plan) IntentTypes() []string { return []string{IntentPlan} }

func (*Plan) Execute(_ context.Context, intent core.Intent) (core.Result, error) {
	return core.Result{core.KeyStatus: StatusPlanned, "id": intent.ID()}, nil
}

func (p *Plan) Rollback(context.Context, core.Intent) error {
	p.rolledBack.Store(true)
	return nil
}

// RolledBack reports whether Rollback ran.
func (p *Plan) RolledBack() bool { return p.rolledBack.Load() }

// Act fails when the intent carries a truthy simulate_failure.
type Act struct {
	rolledBack atomic.Bool
}

func (*Act) IntentTypes() []string { return []string{IntentAct} }

func (*Act) Execute(_ context.Context, intent core.Intent) (core.Result, error) {
	if intent.Bool("simulate_failure") {
		return nil, ErrActionFailed
	}
	return core.Result{core.KeyStatus: StatusActed, "id": intent.ID()}, nil
}

func (a *Act) Rollback(context.Context, core.Intent) error {
	a.rolledBack.Store(true)
	return nil
}

// RolledBack reports whether Rollback ran.
func (a *Act) RolledBack() bool { return a.rolledBack.Load() }

// Verify always fails.
type Verify struct{}

func (Verify) IntentTypes() []string { return []string{IntentVerify} }

func (Verify) Execute(context.Context, core.Intent) (core.Result, error) {
	return nil, ErrVerificationFailed
}
