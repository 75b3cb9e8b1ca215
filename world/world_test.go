package world

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"go.starlark.net/starlark"

	"github.com/chazu/liveobjects/image"
	"github.com/chazu/liveobjects/object"
)

func seeded(t *testing.T) (*object.Registry, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	reg := object.NewRegistry(object.WithOutput(&out))
	if err := Seed(reg); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	return reg, &out
}

func run(t *testing.T, reg *object.Registry, cmd string) object.Reply {
	t.Helper()
	reply, err := reg.RunCommand(cmd)
	if err != nil {
		t.Fatalf("RunCommand(%q): %v", cmd, err)
	}
	return reply
}

func TestSeedObjects(t *testing.T) {
	reg, _ := seeded(t)
	want := []string{object.RootName, UniversalTraits, OS, Executor, NativeDialog, Inspector, Browser, ObjectManager, Lobby}
	var got []string
	for _, obj := range reg.Objects() {
		got = append(got, obj.Name())
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("objects = %v, want %v", got, want)
	}

	lobby, _ := reg.Lookup(Lobby)
	v, _ := reg.Root().ReadSlot(Lobby)
	if v != lobby {
		t.Errorf("root Lobby = %v, want the Lobby object", v)
	}

	ex, _ := reg.Lookup(Executor)
	traits, _ := reg.Lookup(UniversalTraits)
	if v, _ := ex.ReadSlot(UniversalTraits + "*"); v != traits {
		t.Errorf("executor traits parent = %v", v)
	}
	if v, _ := ex.ReadSlot("bootStrap*"); v != reg.Root() {
		t.Errorf("executor bootStrap parent = %v", v)
	}
}

func TestExecutorRunsCommands(t *testing.T) {
	reg, _ := seeded(t)
	reply := run(t, reg, "6 * 7")
	if reply.Outcome != object.Printed || reply.Text != "42" {
		t.Errorf("reply = %+v", reply)
	}
	reply = run(t, reg, `registry.lookup("UniversalTraits").find(2).name`)
	if reply.Text != OS {
		t.Errorf("find(2) = %q, want %q", reply.Text, OS)
	}
}

func TestInspector(t *testing.T) {
	reg, out := seeded(t)
	if errs := reg.StartupAll(); len(errs) != 0 {
		t.Fatalf("StartupAll: %v", errs)
	}
	ins, _ := reg.Lookup(Inspector)
	if v, _ := ins.ReadSlot("current_object"); v != ins {
		t.Errorf("current_object after startup = %v", v)
	}

	run(t, reg, `registry.lookup("Inspector").list_objects()`)
	if !strings.Contains(out.String(), "3\tCommand_executor\tI execute code strings\n") {
		t.Errorf("list_objects output = %q", out.String())
	}
	if !strings.Contains(out.String(), "1\tUniversalTraits\tShared methods bucket\n") {
		t.Errorf("list_objects output = %q", out.String())
	}

	out.Reset()
	run(t, reg, `registry.lookup("Inspector").co("OS")`)
	run(t, reg, `registry.lookup("Inspector").display_object()`)
	if !strings.HasPrefix(out.String(), "Object: OS\n") || !strings.Contains(out.String(), "  METHOD now\n") {
		t.Errorf("display_object output = %q", out.String())
	}
}

func TestNativeDialogFallsBackToOutput(t *testing.T) {
	reg, out := seeded(t)
	run(t, reg, `registry.lookup("NativeDialog").go("hi there")`)
	if out.String() != "hi there\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestLobbyWithoutToolkit(t *testing.T) {
	reg, out := seeded(t)
	reply := run(t, reg, `registry.lookup("Lobby").go()`)
	if reply.Outcome != object.Silent || out.Len() != 0 {
		t.Errorf("reply = %+v, output = %q", reply, out.String())
	}
	reply = run(t, reg, `[a.name for a in registry.lookup("Lobby").applications()]`)
	if reply.Text != `["PrimaBrowser", "PrimaObjectManager"]` {
		t.Errorf("applications = %s", reply.Text)
	}
}

// pickToolkit answers every choose call with pick.
type pickToolkit struct {
	pick   string
	titles []string
}

func (k *pickToolkit) Available() bool { return true }

func (k *pickToolkit) Choose(title string, options []string) (string, error) {
	k.titles = append(k.titles, title)
	for _, o := range options {
		if o == k.pick {
			return o, nil
		}
	}
	return "", nil
}

func (k *pickToolkit) Prompt(title, def string) (string, error) { return def, nil }

func TestLobbyLaunchesEveryApplication(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{"Object Editor", "No selected object\n"},
		{"Object Manager", Lobby + "\n"},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			var out bytes.Buffer
			tk := &pickToolkit{pick: tt.label}
			reg := object.NewRegistry(object.WithOutput(&out), object.WithToolkit(tk))
			if err := Seed(reg); err != nil {
				t.Fatalf("Seed: %v", err)
			}
			reply := run(t, reg, `registry.lookup("Lobby").go()`)
			if strings.HasPrefix(reply.Text, "error:") {
				t.Fatalf("Lobby.go picking %q: %s", tt.label, reply.Text)
			}
			if len(tk.titles) == 0 || tk.titles[0] != "LiveObjects Lobby" {
				t.Errorf("choose titles = %v", tk.titles)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("output = %q, want %q", out.String(), tt.want)
			}
		})
	}
}

func TestApplicationStartupHooks(t *testing.T) {
	reg, out := seeded(t)
	run(t, reg, `registry.lookup("PrimaObjectManager").gstartup()`)
	if !strings.Contains(out.String(), OS+"\n") {
		t.Errorf("object manager gstartup output = %q", out.String())
	}

	out.Reset()
	run(t, reg, `registry.lookup("PrimaBrowser").gstartup("OS")`)
	if !strings.HasPrefix(out.String(), "Object: OS\n") {
		t.Errorf("browser gstartup output = %q", out.String())
	}

	run(t, reg, `registry.lookup("PrimaObjectManager").callback_object_selected("OS")`)
	reply := run(t, reg, `registry.lookup("PrimaObjectManager").update("shout", "lambda self: 'HI'")`)
	if reply.Text != "shout" {
		t.Errorf("update = %q", reply.Text)
	}
	if reply := run(t, reg, `registry.lookup("OS").shout()`); reply.Text != "HI" {
		t.Errorf("shout() = %q", reply.Text)
	}
}

func TestOSHelpers(t *testing.T) {
	reg, _ := seeded(t)
	for _, cmd := range []string{"hostname", "pid", "uid", "program_name", "system_copy", "mswindows"} {
		reply := run(t, reg, `registry.lookup("OS").`+cmd+`()`)
		if reply.Outcome != object.Printed || strings.HasPrefix(reply.Text, "error:") {
			t.Errorf("OS.%s() = %+v", cmd, reply)
		}
	}
	if reply := run(t, reg, `registry.lookup("OS").pid() > 0`); reply.Text != "True" {
		t.Errorf("pid() > 0 = %s", reply.Text)
	}
}

func TestObjectEditing(t *testing.T) {
	reg, _ := seeded(t)
	for _, cmd := range []string{
		`registry.lookup("PrimaObjectManager").callback_new_object("Thing")`,
		`registry.lookup("PrimaBrowser").edit_object("Thing")`,
		`registry.lookup("PrimaBrowser").update("hello", "lambda self: 'hello from ' + self.name")`,
		`registry.lookup("PrimaObjectManager").callback_clone_object("Thing")`,
	} {
		if reply := run(t, reg, cmd); strings.HasPrefix(reply.Text, "error:") {
			t.Fatalf("%s: %s", cmd, reply.Text)
		}
	}
	reply := run(t, reg, `registry.lookup("Clone of Thing").hello()`)
	if reply.Text != "hello from Clone of Thing" {
		t.Errorf("clone hello() = %q", reply.Text)
	}

	run(t, reg, `registry.lookup("PrimaObjectManager").callback_delete_object("Thing")`)
	if _, ok := reg.Lookup("Thing"); ok {
		t.Error("Thing still registered after delete")
	}
}

func TestSeededWorldRoundTrips(t *testing.T) {
	reg, _ := seeded(t)
	store := image.NewStore(filepath.Join(t.TempDir(), "world.star"))
	if _, err := store.Snapshot(reg); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	loaded := object.NewRegistry(object.WithOutput(&bytes.Buffer{}))
	if err := store.Hydrate(loaded); err != nil {
		t.Fatalf("Hydrate: %v", err)
	}
	if len(loaded.Objects()) != len(reg.Objects()) {
		t.Fatalf("loaded %d objects, want %d", len(loaded.Objects()), len(reg.Objects()))
	}
	lobby, _ := loaded.Lookup(Lobby)
	if v, _ := loaded.Root().ReadSlot(Lobby); v != lobby {
		t.Errorf("root Lobby after hydrate = %v", v)
	}
	v, err := loaded.Evaluate(`registry.lookup("Command_executor").execute("1 + 1")`)
	if err != nil {
		t.Fatal(err)
	}
	if v != starlark.MakeInt(2) {
		t.Errorf("execute = %v, want 2", v)
	}

	want, _ := image.Digest(reg)
	got, _ := image.Digest(loaded)
	if got != want {
		t.Error("digest changed across round trip")
	}
}
