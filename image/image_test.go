package image

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"

	"github.com/chazu/liveobjects/object"
)

func newRegistry() *object.Registry {
	return object.NewRegistry(object.WithOutput(&bytes.Buffer{}))
}

func newStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "world.star"))
}

func mustFresh(t *testing.T, reg *object.Registry, name string) *object.Object {
	t.Helper()
	obj, err := reg.Fresh(name, "")
	require.NoError(t, err)
	return obj
}

// reload hydrates a new registry from the store's artifact.
func reload(t *testing.T, s *Store) *object.Registry {
	t.Helper()
	reg := newRegistry()
	require.NoError(t, s.Hydrate(reg))
	return reg
}

// withoutGeneration drops every line that mentions the generation counter.
func withoutGeneration(text string) string {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		if !strings.Contains(line, "generation") {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// ---------------------------------------------------------------------------
// Scenarios
// ---------------------------------------------------------------------------

func TestCounterSurvivesSnapshot(t *testing.T) {
	reg := newRegistry()
	foo := mustFresh(t, reg, "Foo")
	require.NoError(t, foo.AddSlot("count", object.Field, "0", starlark.MakeInt(0)))
	require.NoError(t, foo.AddSlot("inc", object.Method, `
def inc(self):
    self.count = self.count + 1
    return self.count
`, nil))

	inc, err := foo.ReadSlot("inc")
	require.NoError(t, err)
	_, err = reg.Call(inc)
	require.NoError(t, err)

	s := newStore(t)
	_, err = s.Snapshot(reg)
	require.NoError(t, err)

	loaded := reload(t, s)
	got, ok := loaded.Lookup("Foo")
	require.True(t, ok)
	count, err := got.ReadSlot("count")
	require.NoError(t, err)
	assert.Equal(t, starlark.MakeInt(1), count)

	// The method came back too.
	inc, err = got.ReadSlot("inc")
	require.NoError(t, err)
	v, err := loaded.Call(inc)
	require.NoError(t, err)
	assert.Equal(t, starlark.MakeInt(2), v)
}

func TestParentLinkSurvivesSnapshot(t *testing.T) {
	reg := newRegistry()
	a := mustFresh(t, reg, "A")
	b := mustFresh(t, reg, "B")
	require.NoError(t, a.AddSlot("P*", object.Parent, `"B"`, b))

	s := newStore(t)
	_, err := s.Snapshot(reg)
	require.NoError(t, err)

	// Values are restored after the snapshot.
	v, _ := a.ReadSlot("P*")
	assert.Same(t, b, v)

	loaded := reload(t, s)
	la, _ := loaded.Lookup("A")
	v, err = la.ReadSlot("P*")
	require.NoError(t, err)
	target, ok := v.(*object.Object)
	require.True(t, ok, "P* = %v", v)
	assert.Equal(t, "B", target.Name())
	assert.NotSame(t, b, target)
	slot, _ := la.Slot("P*")
	assert.Equal(t, object.Parent, slot.Kind)
}

func TestLinksByNameAndField(t *testing.T) {
	reg := newRegistry()
	a := mustFresh(t, reg, "A")
	b := mustFresh(t, reg, "B")
	// Pending parent given by name, delegation field, plain object field.
	require.NoError(t, a.AddSlot("later", object.Parent, `"B"`, starlark.String("B")))
	require.NoError(t, a.SetField("traits*", b))
	require.NoError(t, a.SetField("friend", b))
	require.NoError(t, reg.Root().SetField("Lobby", a))

	s := newStore(t)
	_, err := s.Snapshot(reg)
	require.NoError(t, err)

	data, err := os.ReadFile(s.Path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `object_link(objs, 1, "later", "B")`)
	assert.Contains(t, text, `object_link(objs, 1, "traits*", 2)`)
	assert.Contains(t, text, `field_link(objs, 1, "friend", 2)`)
	assert.Contains(t, text, `field_link(objs, 0, "Lobby", 1)`)

	loaded := reload(t, s)
	la, _ := loaded.Lookup("A")
	lb, _ := loaded.Lookup("B")
	for _, name := range []string{"later", "traits*", "friend"} {
		v, err := la.ReadSlot(name)
		require.NoError(t, err)
		assert.Same(t, lb, v, name)
	}
	lobby, _ := loaded.Root().ReadSlot("Lobby")
	assert.Same(t, la, lobby)
	self, _ := loaded.Root().ReadSlot(object.RootField)
	assert.Same(t, loaded.Root(), self)
}

func TestUnregisteredTargetDropped(t *testing.T) {
	reg := newRegistry()
	a := mustFresh(t, reg, "A")
	gone := mustFresh(t, reg, "Gone")
	require.NoError(t, a.SetField("friend", gone))
	require.True(t, reg.Remove("Gone"))

	s := newStore(t)
	_, err := s.Snapshot(reg)
	require.NoError(t, err)

	loaded := reload(t, s)
	la, _ := loaded.Lookup("A")
	v, err := la.ReadSlot("friend")
	require.NoError(t, err)
	assert.Equal(t, starlark.None, v)
}

// ---------------------------------------------------------------------------
// Artifact properties
// ---------------------------------------------------------------------------

func TestSnapshotIdempotent(t *testing.T) {
	reg := newRegistry()
	foo := mustFresh(t, reg, "Foo")
	require.NoError(t, foo.AddSlot("items", object.Field, `[1, "two"]`, starlark.NewList([]starlark.Value{starlark.MakeInt(1), starlark.String("two")})))
	require.NoError(t, foo.AddSlot("greet", object.Method, "lambda self, who: 'hi ' + who", nil))
	bar := mustFresh(t, reg, "Bar")
	require.NoError(t, bar.AddSlot("up*", object.Parent, `"Foo"`, foo))

	s := newStore(t)
	_, err := s.Snapshot(reg)
	require.NoError(t, err)
	first, err := os.ReadFile(s.Path)
	require.NoError(t, err)

	loaded := reload(t, s)
	_, err = s.Snapshot(loaded)
	require.NoError(t, err)
	second, err := os.ReadFile(s.Path)
	require.NoError(t, err)

	assert.Equal(t, withoutGeneration(string(first)), withoutGeneration(string(second)))
}

func TestDigestSurvivesRoundTrip(t *testing.T) {
	reg := newRegistry()
	foo := mustFresh(t, reg, "Foo")
	require.NoError(t, foo.AddSlot("n", object.Field, "3.5", starlark.Float(3.5)))
	bar := mustFresh(t, reg, "Bar")
	require.NoError(t, bar.AddSlot("up*", object.Parent, `"Foo"`, foo))
	require.NoError(t, bar.SetField("pal", foo))

	s := newStore(t)
	_, err := s.Snapshot(reg)
	require.NoError(t, err)
	want, err := Digest(reg)
	require.NoError(t, err)

	got, err := Digest(reload(t, s))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, foo.AddSlot("n", object.Field, "4", starlark.MakeInt(4)))
	changed, err := Digest(reg)
	require.NoError(t, err)
	assert.NotEqual(t, want, changed)
}

func TestExportDecode(t *testing.T) {
	reg := newRegistry()
	foo := mustFresh(t, reg, "Foo")
	require.NoError(t, foo.AddSlot("greet", object.Method, "lambda self: 'hi'", nil))

	data, err := ExportCBOR(reg)
	require.NoError(t, err)
	g, err := DecodeCBOR(data)
	require.NoError(t, err)
	require.Len(t, g.Objects, 2)
	assert.Equal(t, "Foo", g.Objects[1].Name)
	assert.Equal(t, 1, g.Objects[1].Serial)

	var kinds []string
	for _, sr := range g.Objects[1].Slots {
		if sr.Name == "greet" {
			kinds = append(kinds, sr.Kind, sr.Source)
		}
	}
	assert.Equal(t, []string{"METHOD", "lambda self: 'hi'"}, kinds)
}

func TestTransientFieldPersistsAsNone(t *testing.T) {
	reg := newRegistry()
	panel := mustFresh(t, reg, "Panel")
	require.NoError(t, panel.AddSlot("widget_term", object.Field, "None", nil))
	slot, _ := panel.Slot("widget_term")
	slot.Value = starlark.String("live handle")

	s := newStore(t)
	_, err := s.Snapshot(reg)
	require.NoError(t, err)
	data, _ := os.ReadFile(s.Path)
	assert.Contains(t, string(data), `o1.add_slot("widget_term", FIELD, "None", None)`)

	v, _ := panel.ReadSlot("widget_term")
	assert.Equal(t, starlark.String("live handle"), v)
}

func TestNonLiteralFieldPersistsAsNone(t *testing.T) {
	reg := newRegistry()
	mustFresh(t, reg, "Holder")
	_, err := reg.Evaluate(`registry.lookup("Holder").fn = len`)
	require.NoError(t, err)

	s := newStore(t)
	_, err = s.Snapshot(reg)
	require.NoError(t, err)
	loaded := reload(t, s)
	h, _ := loaded.Lookup("Holder")
	v, err := h.ReadSlot("fn")
	require.NoError(t, err)
	assert.Equal(t, starlark.None, v)
}

func TestInvalidUTF8SurvivesSnapshot(t *testing.T) {
	reg := newRegistry()
	mustFresh(t, reg, "Foo")
	mustFresh(t, reg, "Bad\xff")
	_, err := reg.Evaluate(`registry.lookup("Foo").initial = "\u00e9"[:1]`)
	require.NoError(t, err)
	_, err = reg.Evaluate(`registry.lookup("Foo").parts = ["ok", "\u00e9"[1:]]`)
	require.NoError(t, err)

	s := newStore(t)
	_, err = s.Snapshot(reg)
	require.NoError(t, err)

	loaded := reload(t, s)
	foo, ok := loaded.Lookup("Foo")
	require.True(t, ok)
	v, err := foo.ReadSlot("initial")
	require.NoError(t, err)
	assert.Equal(t, starlark.String("\xc3"), v)
	v, err = foo.ReadSlot("parts")
	require.NoError(t, err)
	assert.Equal(t, `["ok", "\xa9"]`, v.String())

	_, ok = loaded.Lookup("Bad\xff")
	assert.True(t, ok, "object with a non-UTF-8 name should load")

	data, err := ExportCBOR(loaded)
	require.NoError(t, err)
	g, err := DecodeCBOR(data)
	require.NoError(t, err)
	var names []string
	for _, or := range g.Objects {
		names = append(names, or.Name)
	}
	assert.Contains(t, names, "Bad\xff")
}

func TestDeletedSlotOmitted(t *testing.T) {
	reg := newRegistry()
	foo := mustFresh(t, reg, "Foo")
	require.NoError(t, foo.AddSlot("temp", object.Field, "1", starlark.MakeInt(1)))
	foo.DeleteSlot("temp")

	s := newStore(t)
	_, err := s.Snapshot(reg)
	require.NoError(t, err)
	data, _ := os.ReadFile(s.Path)
	assert.NotContains(t, string(data), `"temp"`)

	loaded := reload(t, s)
	lf, _ := loaded.Lookup("Foo")
	assert.False(t, lf.HasSlot("temp"))
}

func TestRootReservedFields(t *testing.T) {
	reg := newRegistry()
	s := newStore(t)
	_, err := s.Snapshot(reg)
	require.NoError(t, err)

	data, _ := os.ReadFile(s.Path)
	text := string(data)
	assert.Contains(t, text, `o0 = registry`)
	assert.Contains(t, text, `o0.add_slot("objects", FIELD, "{}", {})`)
	assert.Contains(t, text, `o0.add_slot("order", FIELD, "[]", [])`)
	assert.Contains(t, text, `o0.add_slot("generation", FIELD, "1", 1)`)

	loaded := reload(t, s)
	assert.Equal(t, 1, loaded.Generation())
	v, err := loaded.Evaluate(`len(registry.order)`)
	require.NoError(t, err)
	assert.Equal(t, starlark.MakeInt(1), v)
}

// ---------------------------------------------------------------------------
// Persistence
// ---------------------------------------------------------------------------

func TestPrefixPreserved(t *testing.T) {
	s := newStore(t)
	prefix := "# my notes\nGREETING = 'hi'\n"
	require.NoError(t, os.WriteFile(s.Path, []byte(prefix+"\n"+Marker+"\nold section\n"), 0o644))

	reg := newRegistry()
	res, err := s.Snapshot(reg)
	require.NoError(t, err)

	data, _ := os.ReadFile(s.Path)
	assert.True(t, strings.HasPrefix(string(data), "# my notes\nGREETING = 'hi'\n\n"+Marker+"\n"), string(data))
	assert.NotContains(t, string(data), "old section")

	backup, err := os.ReadFile(res.Backup)
	require.NoError(t, err)
	assert.Contains(t, string(backup), "old section")
}

func TestFirstSnapshotUsesDefaultPrefix(t *testing.T) {
	s := newStore(t)
	res, err := s.Snapshot(newRegistry())
	require.NoError(t, err)
	assert.Empty(t, res.Backup)
	assert.Equal(t, 1, res.Generation)

	data, _ := os.ReadFile(s.Path)
	assert.True(t, strings.HasPrefix(string(data), DefaultPrefix+Marker))
}

func TestBackupSuffixes(t *testing.T) {
	s := newStore(t)
	reg := newRegistry()
	for range 3 {
		_, err := s.Snapshot(reg)
		require.NoError(t, err)
	}
	backups, err := s.Backups()
	require.NoError(t, err)
	require.Len(t, backups, 2)
	assert.Equal(t, 0, backups[0].N)
	assert.Equal(t, 1, backups[1].N)

	// A gap is filled before higher numbers are used.
	require.NoError(t, os.Remove(backups[0].Path))
	res, err := s.Snapshot(reg)
	require.NoError(t, err)
	assert.Equal(t, s.Path+".0", res.Backup)
	assert.Equal(t, 4, reg.Generation())
}

func TestBaseNameStripsNumericSuffix(t *testing.T) {
	s := NewStore(filepath.Join("dir", "world.star.7"))
	assert.Equal(t, "world.star", s.baseName())
	assert.Equal(t, filepath.Join("dir", "world.star.0"), s.backupPath(0))
}

func TestRestore(t *testing.T) {
	s := newStore(t)
	reg := newRegistry()
	mustFresh(t, reg, "First")
	_, err := s.Snapshot(reg)
	require.NoError(t, err)
	mustFresh(t, reg, "Second")
	_, err = s.Snapshot(reg)
	require.NoError(t, err)

	saved, err := s.Restore(0)
	require.NoError(t, err)
	assert.Equal(t, s.Path+".1", saved)

	loaded := reload(t, s)
	_, ok := loaded.Lookup("First")
	assert.True(t, ok)
	_, ok = loaded.Lookup("Second")
	assert.False(t, ok)

	_, err = s.Restore(42)
	assert.ErrorIs(t, err, ErrNoBackup)
}

func TestPersistError(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "missing", "world.star"))
	reg := newRegistry()
	_, err := s.Snapshot(reg)

	var perr *PersistError
	require.True(t, errors.As(err, &perr), "err = %v", err)
	assert.ErrorIs(t, err, object.ErrPersistence)
	assert.Equal(t, 0, reg.Generation())
}

func TestSnapshotCommandUsesStore(t *testing.T) {
	var out bytes.Buffer
	reg := object.NewRegistry(object.WithOutput(&out))
	s := newStore(t)
	s.Attach(reg)

	reply, err := reg.RunCommand("snapshot")
	require.NoError(t, err)
	assert.Equal(t, object.Silent, reply.Outcome)
	assert.FileExists(t, s.Path)
	assert.Contains(t, out.String(), "Snapshot saved to")
}

func TestChanged(t *testing.T) {
	s := newStore(t)
	changed, err := s.Changed()
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = s.Snapshot(newRegistry())
	require.NoError(t, err)
	changed, _ = s.Changed()
	assert.False(t, changed)

	require.NoError(t, os.WriteFile(s.Path, []byte("# edited\n"), 0o644))
	changed, _ = s.Changed()
	assert.True(t, changed)
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

func TestHydrateWithoutHydrateFunction(t *testing.T) {
	reg := newRegistry()
	mustFresh(t, reg, "Leftover")
	s := newStore(t)
	require.NoError(t, s.HydrateSource(reg, "plain.star", []byte("x = 1\n")))
	assert.Len(t, reg.Objects(), 1)
	assert.True(t, reg.Root().HasSlot(object.ObjectsField))
}

func TestHydrateMissingFile(t *testing.T) {
	err := newStore(t).Hydrate(newRegistry())
	var lerr *LoadError
	require.True(t, errors.As(err, &lerr))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestHydrateSyntaxError(t *testing.T) {
	err := newStore(t).HydrateSource(newRegistry(), "bad.star", []byte("def hydrate(:\n"))
	var lerr *LoadError
	assert.True(t, errors.As(err, &lerr))
}
