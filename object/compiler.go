package object

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lithammer/dedent"
	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// ScriptOptions are the Starlark dialect options used for method source,
// commands and image files.
var ScriptOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// Compiler turns method source text into callables. Source is compiled against
// the predeclared environment supplied by its registry.
type Compiler struct {
	env    func() starlark.StringDict
	thread func(name string) *starlark.Thread
}

// NewCompiler creates a compiler that resolves globals from env and runs
// module initialisation on threads created by thread.
func NewCompiler(env func() starlark.StringDict, thread func(name string) *starlark.Thread) *Compiler {
	return &Compiler{env: env, thread: thread}
}

// Compile interprets source as a single expression yielding a callable. If
// the text is not a valid expression it is executed as a block of statements
// in a fresh module, and the last callable bound there (in statement order)
// is returned.
func (c *Compiler) Compile(source string) (starlark.Callable, error) {
	cleaned := dedent.Dedent(strings.Trim(source, "\n"))
	env := c.env()
	thread := c.thread("compile")

	v, err := starlark.EvalOptions(ScriptOptions, thread, "<method>", cleaned, env)
	if err == nil {
		fn, ok := v.(starlark.Callable)
		if !ok {
			return nil, &CompileError{Source: source, Err: fmt.Errorf("%w: expression yields %s", ErrNoCallable, v.Type())}
		}
		return fn, nil
	}
	if !isSyntaxError(err) {
		return nil, &CompileError{Source: source, Err: err}
	}

	f, prog, err := starlark.SourceProgramOptions(ScriptOptions, "<method>", cleaned, env.Has)
	if err != nil {
		return nil, &CompileError{Source: source, Err: err}
	}
	globals, err := prog.Init(thread, env)
	if err != nil {
		return nil, &CompileError{Source: source, Err: err}
	}
	names := boundNames(f)
	for i := len(names) - 1; i >= 0; i-- {
		if fn, ok := globals[names[i]].(starlark.Callable); ok {
			return fn, nil
		}
	}
	return nil, &CompileError{Source: source, Err: ErrNoCallable}
}

// boundNames lists the module's global names in order of first binding,
// whatever statement bound them.
func boundNames(f *syntax.File) []string {
	mod, ok := f.Module.(*resolve.Module)
	if !ok {
		return nil
	}
	names := make([]string, len(mod.Globals))
	for i, b := range mod.Globals {
		names[i] = b.First.Name
	}
	return names
}

// isSyntaxError reports whether err means the text did not parse, as opposed
// to failing during resolution or execution.
func isSyntaxError(err error) bool {
	var serr syntax.Error
	return errors.As(err, &serr)
}
