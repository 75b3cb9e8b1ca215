package object

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Error Types
// ---------------------------------------------------------------------------

var (
	// ErrNotFound is returned (wrapped) when a slot or object lookup misses.
	ErrNotFound = errors.New("not found")

	// ErrNoCallable is returned (wrapped in a CompileError) when method source
	// defines nothing invocable.
	ErrNoCallable = errors.New("no callable found in method source")

	// ErrNoImage is returned when a snapshot is requested but no image store
	// has been attached to the registry.
	ErrNoImage = errors.New("no image attached")

	// ErrPersistence marks storage failures raised while writing an image.
	// Errors matching it propagate out of RunCommand instead of being
	// reported as text.
	ErrPersistence = errors.New("persistence failure")
)

// CompileError reports method source that could not be turned into a callable.
type CompileError struct {
	Source string
	Err    error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile error: %v", e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// EvalError reports a command that failed to evaluate.
type EvalError struct {
	Command string
	Err     error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("evaluation failed: %v", e.Err)
}

func (e *EvalError) Unwrap() error { return e.Err }

// HookError reports a failing startup or shutdown hook.
type HookError struct {
	Object string
	Hook   string
	Err    error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("%s failed on %s: %v", e.Hook, e.Object, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }

func notFound(kind, name string) error {
	return fmt.Errorf("%s %q: %w", kind, name, ErrNotFound)
}
