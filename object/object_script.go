package object

import (
	"fmt"
	"sort"

	"go.starlark.net/starlark"
)

// ---------------------------------------------------------------------------
// Script surface: *Object as a Starlark value
// ---------------------------------------------------------------------------

var (
	_ starlark.Value       = (*Object)(nil)
	_ starlark.HasAttrs    = (*Object)(nil)
	_ starlark.HasSetField = (*Object)(nil)
)

func (o *Object) String() string        { return fmt.Sprintf("<ProtoObject %s#%d>", o.name, o.serial) }
func (o *Object) Type() string          { return "ProtoObject" }
func (o *Object) Freeze()               {}
func (o *Object) Truth() starlark.Bool  { return starlark.True }
func (o *Object) Hash() (uint32, error) { return starlark.String(o.name).Hash() }

type builtinMethod func(o *Object, thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error)

// objectMethods are available on every object and shadow slots of the same name.
var objectMethods = map[string]builtinMethod{
	"add_slot":    objAddSlot,
	"add_slots":   objAddSlots,
	"delete_slot": objDeleteSlot,
	"has_slot":    objHasSlot,
	"read_slot":   objReadSlot,
	"set_serial":  objSetSerial,
	"slot_kind":   objSlotKind,
	"slot_names":  objSlotNames,
	"slot_source": objSlotSource,
}

// objectAttrs are read-only properties available on every object.
var objectAttrs = []string{"name", "registry", "serial"}

func (o *Object) isRoot() bool {
	return o.reg != nil && o.reg.root == o
}

// Attr implements starlark.HasAttrs. Builtin properties and methods come
// first, then registry methods on the root, then slots.
func (o *Object) Attr(name string) (starlark.Value, error) {
	switch name {
	case "name":
		return starlark.String(o.name), nil
	case "serial":
		return starlark.MakeInt(o.serial), nil
	case "registry":
		return o.reg.root, nil
	}
	if m, ok := objectMethods[name]; ok {
		return o.builtin(name, m), nil
	}
	if o.isRoot() {
		if m, ok := registryMethods[name]; ok {
			return o.builtin(name, m), nil
		}
	}
	slot, ok := o.slots[name]
	if !ok {
		return nil, nil
	}
	return o.slotValue(slot), nil
}

func (o *Object) builtin(name string, m builtinMethod) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		return m(o, thread, b, args, kwargs)
	})
}

// AttrNames implements starlark.HasAttrs.
func (o *Object) AttrNames() []string {
	names := append([]string{}, objectAttrs...)
	for name := range objectMethods {
		names = append(names, name)
	}
	if o.isRoot() {
		for name := range registryMethods {
			names = append(names, name)
		}
	}
	names = append(names, o.slots.all()...)
	sort.Strings(names)
	return names
}

func isBuiltinAttr(o *Object, name string) bool {
	for _, a := range objectAttrs {
		if a == name {
			return true
		}
	}
	if _, ok := objectMethods[name]; ok {
		return true
	}
	if o.isRoot() {
		_, ok := registryMethods[name]
		return ok
	}
	return false
}

// SetField implements starlark.HasSetField. Assigning to a field replaces its
// value and refreshes its literal source; assigning to a parent slot re-points
// the link; a missing name becomes a new field under the rules of AddSlot.
// Method slots can only be replaced through add_slot.
func (o *Object) SetField(name string, val starlark.Value) error {
	if isBuiltinAttr(o, name) {
		return fmt.Errorf("cannot assign to builtin attribute %s.%s", o.name, name)
	}
	slot, ok := o.slots[name]
	switch {
	case !ok:
		return o.AddSlot(name, Field, fieldSource(name, val), val)
	case slot.Kind == Method:
		return fmt.Errorf("%s.%s is a method slot; redefine it with add_slot", o.name, name)
	case slot.Kind == Parent:
		slot.Value = val
		slot.Source = sourceFor(val)
	default:
		slot.Value = val
		slot.Source = fieldSource(name, val)
	}
	return nil
}

func fieldSource(name string, val starlark.Value) string {
	if IsTransient(name) {
		return "None"
	}
	return sourceFor(val)
}

// ---------------------------------------------------------------------------
// Object builtins
// ---------------------------------------------------------------------------

func objAddSlot(o *Object, thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name, kind, source string
	var value starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name, "kind", &kind, "source", &source, "value?", &value); err != nil {
		return nil, err
	}
	k, err := ParseKind(kind)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	if err := o.AddSlot(name, k, source, value); err != nil {
		return nil, err
	}
	return starlark.None, nil
}

// add_slots({"name": (kind, source, value), ...})
func objAddSlots(o *Object, thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var mapping *starlark.Dict
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &mapping); err != nil {
		return nil, err
	}
	for _, item := range mapping.Items() {
		name, ok := starlark.AsString(item[0])
		if !ok {
			return nil, fmt.Errorf("%s: slot names must be strings, got %s", b.Name(), item[0].Type())
		}
		spec, ok := item[1].(starlark.Indexable)
		if !ok || spec.Len() != 3 {
			return nil, fmt.Errorf("%s: slot mapping entries must be (kind, source, value)", b.Name())
		}
		kind, ok := starlark.AsString(spec.Index(0))
		if !ok {
			return nil, fmt.Errorf("%s: %s: kind must be a string, got %s", b.Name(), name, spec.Index(0).Type())
		}
		source, ok := starlark.AsString(spec.Index(1))
		if !ok {
			return nil, fmt.Errorf("%s: %s: source must be a string, got %s", b.Name(), name, spec.Index(1).Type())
		}
		k, err := ParseKind(kind)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		if err := o.AddSlot(name, k, source, spec.Index(2)); err != nil {
			return nil, err
		}
	}
	return starlark.None, nil
}

func objDeleteSlot(o *Object, thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &name); err != nil {
		return nil, err
	}
	o.DeleteSlot(name)
	return starlark.None, nil
}

func objHasSlot(o *Object, thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &name); err != nil {
		return nil, err
	}
	return starlark.Bool(o.HasSlot(name)), nil
}

func objReadSlot(o *Object, thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &name); err != nil {
		return nil, err
	}
	return o.ReadSlot(name)
}

func objSetSerial(o *Object, thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var serial int
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &serial); err != nil {
		return nil, err
	}
	o.setSerial(serial)
	return starlark.None, nil
}

func objSlotKind(o *Object, thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &name); err != nil {
		return nil, err
	}
	slot, ok := o.slots[name]
	if !ok {
		return nil, notFound("slot", o.name+"."+name)
	}
	return starlark.String(slot.Kind.String()), nil
}

func objSlotNames(o *Object, thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var kind string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0, &kind); err != nil {
		return nil, err
	}
	var names []string
	if kind == "" {
		names = o.AllSlotNames()
	} else {
		k, err := ParseKind(kind)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		names = o.SlotNames(k)
	}
	return stringList(names), nil
}

func objSlotSource(o *Object, thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &name); err != nil {
		return nil, err
	}
	slot, ok := o.slots[name]
	if !ok {
		return nil, notFound("slot", o.name+"."+name)
	}
	return starlark.String(slot.Source), nil
}

func stringList(names []string) *starlark.List {
	elems := make([]starlark.Value, len(names))
	for i, n := range names {
		elems[i] = starlark.String(n)
	}
	return starlark.NewList(elems)
}
