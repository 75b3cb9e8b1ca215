package console

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/chazu/liveobjects/object"
	"github.com/chazu/liveobjects/world"
)

func newRegistry(t *testing.T, out *bytes.Buffer) *object.Registry {
	t.Helper()
	reg := object.NewRegistry(object.WithOutput(out))
	ex, err := reg.Fresh(object.ExecutorName, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := ex.AddSlot("execute", object.Method, "lambda self, code: evaluate(code)", nil); err != nil {
		t.Fatal(err)
	}
	return reg
}

func TestSplit(t *testing.T) {
	got := Split("a;;b; ;c;")
	want := []string{"a", "b", " ", "c"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("Split = %q, want %q", got, want)
	}
}

func TestRunBatch(t *testing.T) {
	var out bytes.Buffer
	reg := newRegistry(t, &out)

	exited, err := RunBatch(reg, `x = registry.fresh("Foo");registry.lookup("Foo").name;1+1`, &out)
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if exited {
		t.Error("exited = true, want false")
	}
	if out.String() != "Foo\n2\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestRunBatchStopsAtExit(t *testing.T) {
	var out bytes.Buffer
	reg := newRegistry(t, &out)

	exited, err := RunBatch(reg, "1;exit;2", &out)
	if err != nil {
		t.Fatal(err)
	}
	if !exited {
		t.Error("exited = false, want true")
	}
	if out.String() != "1\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestLoop(t *testing.T) {
	var out bytes.Buffer
	reg := newRegistry(t, &out)

	in := strings.NewReader("1 + 1\n\nnot_defined\n\"text\"\nexit\n3\n")
	if err := Loop(reg, in, &out, "> "); err != nil {
		t.Fatalf("Loop: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("output lines = %q, want 3", lines)
	}
	if lines[0] != "2" || !strings.HasPrefix(lines[1], "error: ") || lines[2] != "text" {
		t.Errorf("output = %q", lines)
	}
	if strings.Contains(out.String(), "> ") {
		t.Error("prompt written for non-terminal input")
	}
}

func TestLoopDotRunsOnCurrentObject(t *testing.T) {
	var out bytes.Buffer
	reg := object.NewRegistry(object.WithOutput(&out))
	if err := world.Seed(reg); err != nil {
		t.Fatal(err)
	}

	in := strings.NewReader(".name\n" +
		`registry.lookup("Inspector").co("Command_executor").name` + "\n" +
		".tagline()\n" +
		"  .execute('2 * 3')\n")
	if err := Loop(reg, in, &out, "> "); err != nil {
		t.Fatalf("Loop: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("output lines = %q, want 4", lines)
	}
	if !strings.HasPrefix(lines[0], "error: ") {
		t.Errorf("without a current object: %q", lines[0])
	}
	if lines[1] != "Command_executor" || lines[2] != "I execute code strings" || lines[3] != "6" {
		t.Errorf("output = %q", lines)
	}
}

func TestExpand(t *testing.T) {
	var out bytes.Buffer
	reg := object.NewRegistry(object.WithOutput(&out))
	if err := world.Seed(reg); err != nil {
		t.Fatal(err)
	}
	if got := Expand(reg, ".x"); got != ".x" {
		t.Errorf("Expand before co = %q", got)
	}
	if _, err := reg.Evaluate(`registry.lookup("Inspector").co("OS")`); err != nil {
		t.Fatal(err)
	}
	if got := Expand(reg, " .tagline"); got != `registry.lookup("OS").tagline` {
		t.Errorf("Expand = %q", got)
	}
	if got := Expand(reg, "1 + .5"); got != "1 + .5" {
		t.Errorf("Expand = %q", got)
	}
}

func TestLoopEndsOnEOF(t *testing.T) {
	var out bytes.Buffer
	reg := newRegistry(t, &out)
	if err := Loop(reg, strings.NewReader("1"), &out, "> "); err != nil {
		t.Fatalf("Loop: %v", err)
	}
	if out.String() != "1\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestLoopStopsOnPersistenceError(t *testing.T) {
	var out bytes.Buffer
	reg := newRegistry(t, &out)
	reg.SetSnapshotFunc(func(*object.Registry) error {
		return errors.Join(object.ErrPersistence, errors.New("disk full"))
	})

	err := Loop(reg, strings.NewReader("snapshot\n1\n"), &out, "")
	if !errors.Is(err, object.ErrPersistence) {
		t.Errorf("err = %v, want persistence error", err)
	}
	if out.String() != "" {
		t.Errorf("output = %q, want nothing after failure", out.String())
	}
}

func TestBootRunsLobby(t *testing.T) {
	var out bytes.Buffer
	reg := newRegistry(t, &out)
	lobby, _ := reg.Fresh(LobbyName, "")
	lobby.AddSlot("go", object.Method, `lambda self: print("welcome")`, nil)

	if err := Boot(reg, strings.NewReader("exit\n"), &out, ""); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	if out.String() != "welcome\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestBootReportsLobbyFailure(t *testing.T) {
	var out bytes.Buffer
	reg := newRegistry(t, &out)
	lobby, _ := reg.Fresh(LobbyName, "")
	lobby.AddSlot("go", object.Method, "lambda self: 1 // 0", nil)

	if err := Boot(reg, strings.NewReader("2\n"), &out, ""); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	if !strings.HasPrefix(out.String(), "Lobby failed: ") || !strings.HasSuffix(out.String(), "2\n") {
		t.Errorf("output = %q", out.String())
	}
}

func TestBootHandsOffToKeyboardObject(t *testing.T) {
	var out bytes.Buffer
	reg := newRegistry(t, &out)
	kb, _ := reg.Fresh(KeyboardName, "")
	kb.AddSlot("get_input", object.Method, `lambda self: print(registry.run_command("40 + 2"))`, nil)

	if err := Boot(reg, strings.NewReader("1\n"), &out, ""); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	if out.String() != "42\n" {
		t.Errorf("output = %q", out.String())
	}
}
