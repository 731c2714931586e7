package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrValidation reports a malformed intent.
	ErrValidation = errors.New("invalid intent")
	// ErrDispatch reports that no handler is registered for an intent type.
	ErrDispatch = errors.New("no handler registered")
	// ErrExecution reports a handler failure.
	ErrExecution = errors.New("handler execution failed")
	// ErrTimeout reports a supervisor deadline being exceeded.
	ErrTimeout = errors.New("timed out")
	// ErrRetryExhausted reports that every attempt failed.
	ErrRetryExhausted = errors.New("retry limit exceeded")
	// ErrResourceAllocation reports that no pool had sufficient headroom.
	ErrResourceAllocation = errors.New("resource allocation failed")
	// ErrNotRunning reports an operation on a closed component.
	ErrNotRunning = errors.New("not running")
	// ErrUnknownExecutor reports a request for an executor that does not exist.
	ErrUnknownExecutor = errors.New("unknown executor")
	// ErrTaskRunning reports an attempt to start a task under a live name.
	ErrTaskRunning = errors.New("task already running")
)

// ValidationError describes why an intent was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid intent: %s", e.Reason)
	}
	return fmt.Sprintf("invalid intent: %s %s", e.Field, e.Reason)
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// DispatchError is returned when no handler serves an intent type.
type DispatchError struct {
	IntentType string
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("No agent for intent %s", e.IntentType)
}

// Is matches ErrDispatch.
func (e *DispatchError) Is(target error) bool { return target == ErrDispatch }

// ExecutionError wraps a failure raised by a handler.
type ExecutionError struct {
	IntentType string
	Err        error
}

func (e *ExecutionError) Error() string { return e.Err.Error() }

// Unwrap returns the handler's error.
func (e *ExecutionError) Unwrap() error { return e.Err }

// Is matches ErrExecution.
func (e *ExecutionError) Is(target error) bool { return target == ErrExecution }

// TimeoutError is returned when a supervised task exceeds its deadline.
type TimeoutError struct {
	Name    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("task %s timed out after %s", e.Name, e.Timeout)
}

// Is matches ErrTimeout.
func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// RetryExhaustedError is returned after the final failed attempt. It unwraps
// to both ErrRetryExhausted and the last attempt's error.
type RetryExhaustedError struct {
	Name     string
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("task %s exceeded retry limit after %d attempts: %v", e.Name, e.Attempts, e.Last)
}

// Unwrap exposes the sentinel and the last failure.
func (e *RetryExhaustedError) Unwrap() []error { return []error{ErrRetryExhausted, e.Last} }

// ResourceAllocationError is returned when an allocation cannot be served.
type ResourceAllocationError struct {
	Type   string
	Amount float64
	Reason string
}

func (e *ResourceAllocationError) Error() string {
	return fmt.Sprintf("cannot allocate %g of %s: %s", e.Amount, e.Type, e.Reason)
}

// Is matches ErrResourceAllocation.
func (e *ResourceAllocationError) Is(target error) bool { return target == ErrResourceAllocation }

// ErrorKind classifies err into the error_kind tag attached to error results.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRetryExhausted):
		return "retry_exhausted"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrDispatch):
		return "dispatch"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrResourceAllocation):
		return "resource_allocation"
	case errors.Is(err, ErrNotRunning):
		return "not_running"
	case errors.Is(err, ErrUnknownExecutor):
		return "unknown_executor"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "execution"
	}
}
