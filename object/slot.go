package object

import (
	"fmt"
	"sort"
	"strings"

	"go.starlark.net/starlark"
)

// Kind tags a slot as data, behaviour or a delegation link.
type Kind int

const (
	Field Kind = iota
	Method
	Parent
)

// Naming conventions that change how a slot is stored or persisted.
const (
	// TransientPrefix marks slots whose values belong to an external UI
	// collaborator. They never carry data through add_slot or snapshots.
	TransientPrefix = "widget_"

	// DelegationMarker suffixes slot names that declare a parent link.
	DelegationMarker = "*"
)

func (k Kind) String() string {
	switch k {
	case Field:
		return "FIELD"
	case Method:
		return "METHOD"
	case Parent:
		return "PARENT"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind converts the script spelling of a kind back to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(s) {
	case "FIELD":
		return Field, nil
	case "METHOD":
		return Method, nil
	case "PARENT":
		return Parent, nil
	}
	return Field, fmt.Errorf("unknown slot kind %q", s)
}

// IsTransient reports whether name follows the transient-resource convention.
func IsTransient(name string) bool {
	return strings.HasPrefix(name, TransientPrefix)
}

// IsDelegation reports whether name carries the delegation marker.
func IsDelegation(name string) bool {
	return strings.HasSuffix(name, DelegationMarker)
}

// Slot is a named unit of state or behaviour attached to an object.
//
// Source is the authored text: method source for Method slots, the declared
// target literal for Parent slots and a re-parseable literal for Field slots.
// Value is the live payload.
type Slot struct {
	Name   string
	Kind   Kind
	Source string
	Value  starlark.Value
}

// slotTable maps slot names to slot records.
type slotTable map[string]*Slot

// names returns the names of all slots of the given kind, sorted.
func (t slotTable) names(kind Kind) []string {
	names := make([]string, 0, len(t))
	for name, slot := range t {
		if slot.Kind == kind {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// all returns every slot name, sorted.
func (t slotTable) all() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
