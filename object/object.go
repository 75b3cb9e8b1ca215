package object

import (
	"fmt"

	"go.starlark.net/starlark"
)

// Object is a prototype object: a name, a positional serial and a slot table.
// Objects are created and owned by a Registry.
type Object struct {
	name   string
	serial int
	slots  slotTable
	reg    *Registry
}

func newObject(reg *Registry, name string) *Object {
	return &Object{
		name:   name,
		serial: -1,
		slots:  make(slotTable),
		reg:    reg,
	}
}

// Name returns the object's durable identity.
func (o *Object) Name() string { return o.name }

// Serial returns the object's position in registration order as of the last
// registration, removal or snapshot.
func (o *Object) Serial() int { return o.serial }

// Registry returns the registry that owns the object.
func (o *Object) Registry() *Registry { return o.reg }

// setSerial updates the serial and the serial_number field that mirrors it.
func (o *Object) setSerial(serial int) {
	o.serial = serial
	if slot, ok := o.slots[SerialField]; ok && slot.Kind == Field {
		slot.Value = starlark.MakeInt(serial)
		slot.Source = slot.Value.String()
	}
}

// AddSlot stores or replaces the slot called name.
//
// For Method slots value is ignored and the source is compiled instead; a
// compile failure leaves any existing slot untouched. Transient slot names
// always store None.
func (o *Object) AddSlot(name string, kind Kind, source string, value starlark.Value) error {
	if IsTransient(name) || value == nil {
		value = starlark.None
	}
	switch kind {
	case Method:
		fn, err := o.reg.compiler.Compile(source)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", o.name, name, err)
		}
		o.slots[name] = &Slot{Name: name, Kind: Method, Source: source, Value: fn}
	case Parent:
		o.slots[name] = &Slot{Name: name, Kind: Parent, Source: source, Value: value}
	default:
		o.slots[name] = &Slot{Name: name, Kind: Field, Source: source, Value: value}
	}
	return nil
}

// DeleteSlot removes the slot if present.
func (o *Object) DeleteSlot(name string) {
	delete(o.slots, name)
}

// SlotNames returns the names of slots of the given kind in lexicographic
// order. Snapshot output relies on this ordering.
func (o *Object) SlotNames(kind Kind) []string {
	return o.slots.names(kind)
}

// AllSlotNames returns every slot name in lexicographic order.
func (o *Object) AllSlotNames() []string {
	return o.slots.all()
}

// Slot returns the slot record itself. Callers that mutate Value directly
// bypass the transient and compile rules of AddSlot.
func (o *Object) Slot(name string) (*Slot, bool) {
	slot, ok := o.slots[name]
	return slot, ok
}

// HasSlot reports whether a slot called name exists.
func (o *Object) HasSlot(name string) bool {
	_, ok := o.slots[name]
	return ok
}

// ReadSlot returns a field value, a method bound to this object, or the raw
// parent reference. Parent links are never consulted for missing names.
func (o *Object) ReadSlot(name string) (starlark.Value, error) {
	slot, ok := o.slots[name]
	if !ok {
		return nil, notFound("slot", o.name+"."+name)
	}
	return o.slotValue(slot), nil
}

func (o *Object) slotValue(slot *Slot) starlark.Value {
	if slot.Kind == Method {
		fn, ok := slot.Value.(starlark.Callable)
		if !ok {
			return starlark.None
		}
		return &BoundMethod{recv: o, slot: slot.Name, fn: fn}
	}
	if slot.Value == nil {
		return starlark.None
	}
	return slot.Value
}

// Link points the slot called name at target. An existing slot keeps its
// kind and source and only has its value replaced; otherwise a new slot of
// the given kind is created with the target's quoted name as source.
func (o *Object) Link(name string, kind Kind, target *Object) {
	if slot, ok := o.slots[name]; ok {
		slot.Value = target
		return
	}
	o.slots[name] = &Slot{Name: name, Kind: kind, Source: Quote(target.name), Value: target}
}

// hook returns the callable stored under name, if any.
func (o *Object) hook(name string) (starlark.Value, bool) {
	slot, ok := o.slots[name]
	if !ok {
		return nil, false
	}
	v := o.slotValue(slot)
	if _, ok := v.(starlark.Callable); !ok {
		return nil, false
	}
	return v, true
}

// ---------------------------------------------------------------------------
// BoundMethod: a method slot read through its owner
// ---------------------------------------------------------------------------

// BoundMethod is a compiled method with its receiver fixed. Calling it passes
// the receiver as the implicit first argument.
type BoundMethod struct {
	recv *Object
	slot string
	fn   starlark.Callable
}

var _ starlark.Callable = (*BoundMethod)(nil)

// Receiver returns the object the method is bound to.
func (b *BoundMethod) Receiver() *Object { return b.recv }

func (b *BoundMethod) String() string {
	return fmt.Sprintf("<bound method %s of %s>", b.slot, b.recv.name)
}
func (b *BoundMethod) Type() string          { return "bound_method" }
func (b *BoundMethod) Freeze()               {}
func (b *BoundMethod) Truth() starlark.Bool  { return starlark.True }
func (b *BoundMethod) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: bound_method") }
func (b *BoundMethod) Name() string          { return b.slot }

func (b *BoundMethod) CallInternal(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	full := make(starlark.Tuple, 0, len(args)+1)
	full = append(full, b.recv)
	full = append(full, args...)
	return starlark.Call(thread, b.fn, full, kwargs)
}
