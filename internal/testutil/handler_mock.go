package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/ochoaughini/Cognition-Lattice/core"
)

// MockHandler is a testify mock implementing core.Handler.
type MockHandler struct {
	mock.Mock
}

// Execute records the call and returns the configured result.
func (m *MockHandler) Execute(ctx context.Context, intent core.Intent) (core.Result, error) {
	args := m.Called(ctx, intent)
	res, _ := args.Get(0).(core.Result)
	return res, args.Error(1)
}

// MockCompensator is a MockHandler that also implements core.Compensator.
type MockCompensator struct {
	MockHandler
}

// Rollback records the call and returns the configured error.
func (m *MockCompensator) Rollback(ctx context.Context, intent core.Intent) error {
	args := m.Called(ctx, intent)
	return args.Error(0)
}

var (
	_ core.Handler     = (*MockHandler)(nil)
	_ core.Compensator = (*MockCompensator)(nil)
)
