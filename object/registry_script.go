package object

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
	"go.starlark.net/starlark"
)

// registryMethods are available only on the root object.
//
// None of these may call Attr, SetField or isBuiltinAttr, directly or
// through a helper, since those read this table.
var registryMethods = map[string]builtinMethod{
	"describe":       regDescribe,
	"find":           regFind,
	"fresh":          regFresh,
	"lookup":         regLookup,
	"lookup_serial":  regLookupSerial,
	"prototypes":     regPrototypes,
	"rebind":         regRebind,
	"register":       regRegister,
	"remove":         regRemove,
	"reset":          regReset,
	"run_command":    regRunCommand,
	"set_generation": regSetGeneration,
	"shutdown_all":   regShutdownAll,
	"snapshot":       regSnapshot,
	"startup_all":    regStartupAll,
}

func regLookup(o *Object, thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &name); err != nil {
		return nil, err
	}
	obj, ok := o.reg.Lookup(name)
	if !ok {
		return nil, notFound("object", name)
	}
	return obj, nil
}

func regLookupSerial(o *Object, thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var serial int
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &serial); err != nil {
		return nil, err
	}
	obj, ok := o.reg.LookupSerial(serial)
	if !ok {
		return nil, notFound("serial", fmt.Sprint(serial))
	}
	return obj, nil
}

func regFresh(o *Object, thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var tagline starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name, "tagline?", &tagline); err != nil {
		return nil, err
	}
	text, _ := starlark.AsString(tagline)
	obj, err := o.reg.Fresh(name, text)
	if err != nil {
		return nil, err
	}
	return obj, nil
}

func regRegister(o *Object, thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var obj *Object
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &obj); err != nil {
		return nil, err
	}
	if obj.reg != o.reg {
		return nil, fmt.Errorf("%s: %s belongs to another registry", b.Name(), obj.name)
	}
	o.reg.Register(obj)
	return obj, nil
}

func regRemove(o *Object, thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &name); err != nil {
		return nil, err
	}
	return starlark.Bool(o.reg.Remove(name)), nil
}

func regPrototypes(o *Object, thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	return objectList(o.reg.Prototypes()), nil
}

// find("Inspect*") returns the registered objects whose names match a glob.
func regFind(o *Object, thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var pattern string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &pattern); err != nil {
		return nil, err
	}
	matched, err := o.reg.Find(pattern)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return objectList(matched), nil
}

func regDescribe(o *Object, thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &name); err != nil {
		return nil, err
	}
	obj, ok := o.reg.Lookup(name)
	if !ok {
		return nil, notFound("object", name)
	}
	text, err := Inspect(obj).YAML()
	if err != nil {
		return nil, err
	}
	return starlark.String(text), nil
}

func regSnapshot(o *Object, thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	if err := o.reg.Snapshot(); err != nil {
		return nil, err
	}
	return starlark.None, nil
}

func regStartupAll(o *Object, thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	return starlark.MakeInt(len(o.reg.StartupAll())), nil
}

func regShutdownAll(o *Object, thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	return starlark.MakeInt(len(o.reg.ShutdownAll())), nil
}

func regRunCommand(o *Object, thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var text string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &text); err != nil {
		return nil, err
	}
	reply, err := o.reg.RunCommand(text)
	if err != nil {
		return nil, err
	}
	switch reply.Outcome {
	case Exit:
		return starlark.String(ExitSentinel), nil
	case Printed:
		return starlark.String(reply.Text), nil
	}
	return starlark.None, nil
}

func regReset(o *Object, thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	o.reg.Reset()
	return starlark.None, nil
}

func regRebind(o *Object, thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	o.reg.Rebind()
	return starlark.None, nil
}

func regSetGeneration(o *Object, thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var gen int
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &gen); err != nil {
		return nil, err
	}
	o.reg.SetGeneration(gen)
	return starlark.None, nil
}

// Find returns the registered objects whose names match a doublestar glob,
// in registration order.
func (r *Registry) Find(pattern string) ([]*Object, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q", pattern)
	}
	var matched []*Object
	for _, obj := range r.order {
		if ok, _ := doublestar.Match(pattern, obj.name); ok {
			matched = append(matched, obj)
		}
	}
	return matched, nil
}
