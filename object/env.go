package object

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
	"go.starlark.net/lib/json"
	"go.starlark.net/lib/math"
	"go.starlark.net/lib/time"
	"go.starlark.net/starlark"
)

// Predeclared returns the globals visible to method source, commands and
// image files. The dictionary is built once per registry.
func (r *Registry) Predeclared() starlark.StringDict {
	if r.predeclared != nil {
		return r.predeclared
	}
	r.predeclared = starlark.StringDict{
		"registry": r.root,

		"FIELD":  starlark.String(Field.String()),
		"METHOD": starlark.String(Method.String()),
		"PARENT": starlark.String(Parent.String()),

		"show":              starlark.NewBuiltin("show", r.builtinShow),
		"choose":            starlark.NewBuiltin("choose", r.builtinChoose),
		"prompt":            starlark.NewBuiltin("prompt", r.builtinPrompt),
		"toolkit_available": starlark.NewBuiltin("toolkit_available", r.builtinToolkitAvailable),
		"evaluate":          starlark.NewBuiltin("evaluate", r.builtinEvaluate),
		"glob_match":        starlark.NewBuiltin("glob_match", builtinGlobMatch),
		bytesToStringName:   starlark.NewBuiltin(bytesToStringName, builtinBytesToString),

		"json": json.Module,
		"math": math.Module,
		"time": time.Module,
		"sys":  sysModule,
	}
	return r.predeclared
}

// show(text) presents text on the registry's display.
func (r *Registry) builtinShow(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &v); err != nil {
		return nil, err
	}
	text, ok := starlark.AsString(v)
	if !ok {
		text = v.String()
	}
	if r.display == nil {
		fmt.Fprintln(r.out, text)
		return starlark.None, nil
	}
	if err := r.display.Show(text); err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return starlark.None, nil
}

// choose(title, options) asks the user to pick one of options and returns
// it, or None when the dialog is cancelled.
func (r *Registry) builtinChoose(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var title string
	var options starlark.Iterable
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "title", &title, "options", &options); err != nil {
		return nil, err
	}
	var choices []string
	iter := options.Iterate()
	defer iter.Done()
	var x starlark.Value
	for iter.Next(&x) {
		s, ok := starlark.AsString(x)
		if !ok {
			s = x.String()
		}
		choices = append(choices, s)
	}
	picked, err := r.toolkit.Choose(title, choices)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	if picked == "" {
		return starlark.None, nil
	}
	return starlark.String(picked), nil
}

// prompt(title, default="") asks the user for a line of text.
func (r *Registry) builtinPrompt(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var title, def string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "title", &title, "default?", &def); err != nil {
		return nil, err
	}
	text, err := r.toolkit.Prompt(title, def)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return starlark.String(text), nil
}

func (r *Registry) builtinToolkitAvailable(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	return starlark.Bool(r.toolkit.Available()), nil
}

// evaluate(code) runs code the way a typed command would be run and returns
// the value of an expression, or None for statements.
func (r *Registry) builtinEvaluate(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var code string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &code); err != nil {
		return nil, err
	}
	return r.evaluate(thread, code)
}

const bytesToStringName = "bytes_to_string"

// bytes_to_string(b) returns a string holding exactly the bytes of b. Unlike
// str(b) it keeps invalid UTF-8 sequences.
func builtinBytesToString(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var data starlark.Bytes
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &data); err != nil {
		return nil, err
	}
	return starlark.String(data), nil
}

func builtinGlobMatch(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var pattern, name string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &pattern, &name); err != nil {
		return nil, err
	}
	ok, err := doublestar.Match(pattern, name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return starlark.Bool(ok), nil
}
