package image

import (
	"fmt"
	"os"

	"go.starlark.net/starlark"

	"github.com/chazu/liveobjects/object"
)

// Hydrate loads the artifact into reg, replacing its contents.
func (s *Store) Hydrate(reg *object.Registry) error {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return &LoadError{Path: s.Path, Err: err}
	}
	if err := s.HydrateSource(reg, s.Path, data); err != nil {
		return err
	}
	s.remember(data)
	return nil
}

// HydrateSource executes src as an artifact and calls its hydrate function
// with reg's root. Source without a hydrate function leaves reg empty and
// reseeded.
func (s *Store) HydrateSource(reg *object.Registry, filename string, src []byte) error {
	env := loaderEnv(reg)
	thread := reg.NewThread("hydrate")

	_, prog, err := starlark.SourceProgramOptions(object.ScriptOptions, filename, src, env.Has)
	if err != nil {
		return &LoadError{Path: filename, Err: err}
	}
	globals, err := prog.Init(thread, env)
	if err != nil {
		return &LoadError{Path: filename, Err: err}
	}

	fn, ok := globals[HydrateFunc].(starlark.Callable)
	if !ok {
		log.Infof("%s: %v; starting empty", filename, ErrNoHydrate)
		reg.Reset()
		return nil
	}
	if _, err := starlark.Call(thread, fn, starlark.Tuple{reg.Root()}, nil); err != nil {
		return &LoadError{Path: filename, Err: err}
	}
	log.Debugf("hydrated %d objects from %s (generation %d)", len(reg.Objects()), filename, reg.Generation())
	return nil
}

// loaderEnv extends the registry's globals with the link builtins used by
// generated sections.
func loaderEnv(reg *object.Registry) starlark.StringDict {
	env := make(starlark.StringDict, len(reg.Predeclared())+2)
	for k, v := range reg.Predeclared() {
		env[k] = v
	}
	env["object_link"] = starlark.NewBuiltin("object_link", linkBuiltin(reg, object.Parent))
	env["field_link"] = starlark.NewBuiltin("field_link", linkBuiltin(reg, object.Field))
	return env
}

// linkBuiltin returns object_link(objs, owner, slot, target) or
// field_link(...). The owner is looked up by serial in objs; the target by
// serial in objs or, for a string, by name in the registry. Unresolvable
// links are skipped.
func linkBuiltin(reg *object.Registry, kind object.Kind) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var objs *starlark.Dict
		var owner int
		var slot string
		var target starlark.Value
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 4, &objs, &owner, &slot, &target); err != nil {
			return nil, err
		}

		ownerObj, err := bySerial(objs, starlark.MakeInt(owner))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		var targetObj *object.Object
		switch t := target.(type) {
		case starlark.Int:
			targetObj, err = bySerial(objs, t)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", b.Name(), err)
			}
		case starlark.String:
			targetObj, _ = reg.Lookup(string(t))
		default:
			return nil, fmt.Errorf("%s: target must be a serial or a name, got %s", b.Name(), target.Type())
		}
		if ownerObj == nil || targetObj == nil {
			log.Warningf("%s: cannot resolve %d.%s -> %s; skipped", b.Name(), owner, slot, target)
			return starlark.None, nil
		}
		ownerObj.Link(slot, kind, targetObj)
		return starlark.None, nil
	}
}

func bySerial(objs *starlark.Dict, serial starlark.Value) (*object.Object, error) {
	v, found, err := objs.Get(serial)
	if err != nil || !found {
		return nil, err
	}
	obj, ok := v.(*object.Object)
	if !ok {
		return nil, fmt.Errorf("objs[%s] is a %s, not an object", serial, v.Type())
	}
	return obj, nil
}
