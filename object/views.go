package object

import (
	"fmt"

	"go.starlark.net/starlark"
)

// Live, read-only views of the registry's collections. They back the root's
// reserved objects and order fields, which are rebuilt structurally on
// hydrate rather than persisted.

type objectsView struct{ reg *Registry }

var (
	_ starlark.IterableMapping = objectsView{}
	_ starlark.Sequence        = objectsView{}
)

func (v objectsView) String() string        { return fmt.Sprintf("<registry objects: %d>", len(v.reg.objects)) }
func (v objectsView) Type() string          { return "registry_objects" }
func (v objectsView) Freeze()               {}
func (v objectsView) Truth() starlark.Bool  { return len(v.reg.objects) > 0 }
func (v objectsView) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: %s", v.Type()) }
func (v objectsView) Len() int              { return len(v.reg.objects) }

func (v objectsView) Get(k starlark.Value) (starlark.Value, bool, error) {
	name, ok := starlark.AsString(k)
	if !ok {
		return nil, false, fmt.Errorf("registry objects are keyed by name, got %s", k.Type())
	}
	obj, ok := v.reg.objects[name]
	if !ok {
		return nil, false, nil
	}
	return obj, true, nil
}

func (v objectsView) names() []starlark.Value {
	keys := make([]starlark.Value, 0, len(v.reg.order))
	for _, obj := range v.reg.order {
		keys = append(keys, starlark.String(obj.name))
	}
	return keys
}

func (v objectsView) Iterate() starlark.Iterator {
	return starlark.NewList(v.names()).Iterate()
}

func (v objectsView) Items() []starlark.Tuple {
	items := make([]starlark.Tuple, 0, len(v.reg.order))
	for _, obj := range v.reg.order {
		items = append(items, starlark.Tuple{starlark.String(obj.name), obj})
	}
	return items
}

type orderView struct{ reg *Registry }

var (
	_ starlark.Indexable = orderView{}
	_ starlark.Iterable  = orderView{}
)

func (v orderView) String() string        { return fmt.Sprintf("<registry order: %d>", len(v.reg.order)) }
func (v orderView) Type() string          { return "registry_order" }
func (v orderView) Freeze()               {}
func (v orderView) Truth() starlark.Bool  { return len(v.reg.order) > 0 }
func (v orderView) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: %s", v.Type()) }
func (v orderView) Len() int              { return len(v.reg.order) }
func (v orderView) Index(i int) starlark.Value {
	return v.reg.order[i]
}

// Iterate walks a copy of the order so scripts may register objects while
// iterating.
func (v orderView) Iterate() starlark.Iterator {
	return objectList(v.reg.order).Iterate()
}

func objectList(objs []*Object) *starlark.List {
	elems := make([]starlark.Value, len(objs))
	for i, obj := range objs {
		elems[i] = obj
	}
	return starlark.NewList(elems)
}
