package object

import (
	"strings"

	"go.starlark.net/starlark"
)

// Evaluate runs code against the registry's globals. An expression yields its
// value; anything else is executed as statements in a throwaway module and
// yields None. Failures are wrapped in *EvalError.
func (r *Registry) Evaluate(code string) (starlark.Value, error) {
	return r.evaluate(r.NewThread("evaluate"), code)
}

func (r *Registry) evaluate(thread *starlark.Thread, code string) (starlark.Value, error) {
	src := strings.TrimSpace(code)
	if src == "" {
		return starlark.None, nil
	}
	env := r.Predeclared()

	v, err := starlark.EvalOptions(ScriptOptions, thread, "<command>", src, env)
	if err == nil {
		return v, nil
	}
	if !isSyntaxError(err) {
		return nil, &EvalError{Command: src, Err: err}
	}

	_, prog, err := starlark.SourceProgramOptions(ScriptOptions, "<command>", src, env.Has)
	if err != nil {
		return nil, &EvalError{Command: src, Err: err}
	}
	if _, err := prog.Init(thread, env); err != nil {
		return nil, &EvalError{Command: src, Err: err}
	}
	return starlark.None, nil
}
