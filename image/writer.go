package image

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.starlark.net/starlark"

	"github.com/chazu/liveobjects/object"
)

// ---------------------------------------------------------------------------
// Snapshot
// ---------------------------------------------------------------------------

// Snapshot writes reg to the artifact.
//
// Object references held in slots are swapped for link instructions while
// the section is rendered and put back afterwards. If writing fails the
// references are left neutralized; restore a backup and rehydrate to recover.
func (s *Store) Snapshot(reg *object.Registry) (*Result, error) {
	reg.EnsureRootSlots()
	reg.ShutdownAll()
	reg.Renumber()

	links := neutralize(reg)
	gen := reg.Generation() + 1
	section := render(reg, links, gen)

	prev, err := os.ReadFile(s.Path)
	exists := err == nil
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, &PersistError{Op: "read", Path: s.Path, Err: err}
	}

	res := &Result{Generation: gen, Path: s.Path}
	prefix := DefaultPrefix
	if exists {
		prefix = prefixOf(string(prev))
		backup, err := s.writeBackup(prev)
		if err != nil {
			return nil, err
		}
		res.Backup = backup
	}

	content := []byte(prefix + section)
	if err := os.WriteFile(s.Path, content, 0o644); err != nil {
		return nil, &PersistError{Op: "write", Path: s.Path, Err: err}
	}
	reg.SetGeneration(gen)
	res.Checksum = s.remember(content)
	links.restore()

	log.Infof("snapshot generation %d written to %s", gen, s.Path)
	return res, nil
}

// prefixOf returns the hand-maintained text above the marker, or the whole
// text when it has no marker.
func prefixOf(text string) string {
	head := text
	if i := strings.Index(text, "\n"+Marker); i >= 0 {
		head = text[:i]
	} else if i := strings.Index(text, Marker); i >= 0 {
		head = text[:i]
	}
	head = strings.TrimRight(head, " \t\r\n")
	if head == "" {
		return ""
	}
	return head + "\n\n"
}

// ---------------------------------------------------------------------------
// Neutralizing object references
// ---------------------------------------------------------------------------

// link is one reference to re-establish on hydrate. Target is the target's
// serial (starlark.Int) or, for references that can only be resolved by
// name, its name (starlark.String).
type link struct {
	owner  int
	slot   string
	target starlark.Value
}

type stashed struct {
	slot  *object.Slot
	value starlark.Value
}

type linkSet struct {
	parents []link
	fields  []link
	stash   []stashed
}

func (ls *linkSet) clear(slot *object.Slot) {
	ls.stash = append(ls.stash, stashed{slot: slot, value: slot.Value})
	slot.Value = starlark.None
}

func (ls *linkSet) restore() {
	for _, st := range ls.stash {
		st.slot.Value = st.value
	}
}

func neutralize(reg *object.Registry) *linkSet {
	ls := &linkSet{}
	for _, obj := range reg.Objects() {
		for _, name := range obj.AllSlotNames() {
			slot, _ := obj.Slot(name)
			if slot.Value == nil || slot.Value == starlark.None {
				continue
			}
			switch {
			case slot.Kind == object.Parent:
				if target, ok := linkTarget(reg, obj, name, slot.Value); ok {
					ls.parents = append(ls.parents, link{owner: obj.Serial(), slot: name, target: target})
				}
				ls.clear(slot)

			case slot.Kind == object.Field && object.IsDelegation(name):
				target, ok := linkTarget(reg, obj, name, slot.Value)
				if ok {
					ls.parents = append(ls.parents, link{owner: obj.Serial(), slot: name, target: target})
				}
				if _, isObj := slot.Value.(*object.Object); ok || isObj {
					ls.clear(slot)
				}

			case slot.Kind == object.Field:
				if _, isObj := slot.Value.(*object.Object); !isObj {
					continue
				}
				if target, ok := linkTarget(reg, obj, name, slot.Value); ok {
					ls.fields = append(ls.fields, link{owner: obj.Serial(), slot: name, target: target})
				}
				ls.clear(slot)
			}
		}
	}
	return ls
}

// linkTarget resolves what a slot value points at. Objects no longer in the
// registry are dropped with a warning.
func linkTarget(reg *object.Registry, owner *object.Object, slot string, v starlark.Value) (starlark.Value, bool) {
	switch t := v.(type) {
	case *object.Object:
		if reg.Contains(t) {
			return starlark.MakeInt(t.Serial()), true
		}
		if _, ok := reg.Lookup(t.Name()); ok {
			return starlark.String(t.Name()), true
		}
		log.Warningf("%s.%s refers to unregistered object %s; link dropped", owner.Name(), slot, t.Name())
	case starlark.Int:
		n, ok := t.Int64()
		if ok {
			if _, found := reg.LookupSerial(int(n)); found {
				return t, true
			}
		}
		log.Warningf("%s.%s refers to unknown serial %s; link dropped", owner.Name(), slot, t)
	case starlark.String:
		return t, true
	}
	return nil, false
}

// ---------------------------------------------------------------------------
// Rendering
// ---------------------------------------------------------------------------

type sectionWriter struct {
	strings.Builder
}

func (w *sectionWriter) line(format string, args ...any) {
	w.WriteString(Indent)
	fmt.Fprintf(w, format, args...)
	w.WriteByte('\n')
}

func render(reg *object.Registry, ls *linkSet, gen int) string {
	w := &sectionWriter{}
	w.WriteString(Marker + "\n")
	w.WriteString("def " + HydrateFunc + "(registry):\n")
	w.line("registry.reset()")
	w.line("registry.set_generation(%d)", gen)
	w.line("objs = {}")

	for _, obj := range reg.Objects() {
		v := fmt.Sprintf("o%d", obj.Serial())
		if obj == reg.Root() {
			w.line("%s = registry", v)
		} else {
			w.line("%s = registry.fresh(%s)", v, object.Quote(obj.Name()))
		}
		w.line("%s.set_serial(%d)", v, obj.Serial())
		w.line("objs[%d] = %s", obj.Serial(), v)

		w.line("#Fields:")
		for _, name := range obj.SlotNames(object.Field) {
			src, lit := fieldLiteral(reg, obj, name, gen)
			w.line("%s.add_slot(%s, FIELD, %s, %s)", v, object.Quote(name), object.Quote(src), lit)
		}
		w.line("#Parents:")
		for _, name := range obj.SlotNames(object.Parent) {
			slot, _ := obj.Slot(name)
			w.line("%s.add_slot(%s, PARENT, %s, None)", v, object.Quote(name), object.Quote(slot.Source))
		}
		w.line("#Methods:")
		for _, name := range obj.SlotNames(object.Method) {
			slot, _ := obj.Slot(name)
			w.line("%s.add_slot(%s, METHOD, %s)", v, object.Quote(name), object.Quote(slot.Source))
		}
		w.WriteByte('\n')
	}

	w.line("# Parent links")
	for _, l := range ls.parents {
		w.line("object_link(objs, %d, %s, %s)", l.owner, object.Quote(l.slot), targetSource(l.target))
	}
	w.line("# Field links")
	for _, l := range ls.fields {
		w.line("field_link(objs, %d, %s, %s)", l.owner, object.Quote(l.slot), targetSource(l.target))
	}
	w.line("registry.rebind()")
	w.WriteString("\nHYDRATE = " + HydrateFunc + "\n")
	return w.String()
}

// fieldLiteral returns the source text and value literal written for a
// field slot.
func fieldLiteral(reg *object.Registry, obj *object.Object, name string, gen int) (string, string) {
	slot, _ := obj.Slot(name)
	if obj == reg.Root() {
		switch name {
		case object.ObjectsField:
			return "{}", "{}"
		case object.OrderField:
			return "[]", "[]"
		case object.GenerationField:
			n := strconv.Itoa(gen)
			return n, n
		}
	}
	if object.IsTransient(name) {
		return slot.Source, "None"
	}
	lit, ok := object.Literal(slot.Value)
	if !ok {
		log.Warningf("%s.%s holds a %s with no literal form; saved as None", obj.Name(), name, slot.Value.Type())
		return slot.Source, "None"
	}
	return slot.Source, lit
}

func targetSource(v starlark.Value) string {
	if s, ok := v.(starlark.String); ok {
		return object.Quote(string(s))
	}
	return v.String()
}
