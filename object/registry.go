package object

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/tliron/commonlog"
	"go.starlark.net/starlark"

	"github.com/chazu/liveobjects/host"
)

var log = commonlog.GetLogger("liveobjects.object")

// Well-known names.
const (
	RootName     = "Registry"
	ExecutorName = "Command_executor"

	SerialField     = "serial_number"
	IdentityField   = "i_am_a"
	GenerationField = "generation"
	ObjectsField    = "objects"
	OrderField      = "order"
	RootField       = "root"

	ExitCommand     = "exit"
	SnapshotCommand = "snapshot"

	// ExitSentinel is the string an executor returns to end the session.
	ExitSentinel = "EXIT"
)

// SnapshotFunc persists a registry. It is installed by the image layer so the
// registry can serve the "snapshot" command without importing it.
type SnapshotFunc func(r *Registry) error

// Registry owns every prototype object. The root object (serial 0) is the
// registry's own script-facing face and is never removed.
type Registry struct {
	root       *Object
	objects    map[string]*Object
	order      []*Object
	generation int

	compiler    *Compiler
	predeclared starlark.StringDict
	snapshot    SnapshotFunc

	display host.Display
	toolkit host.Toolkit
	out     io.Writer
}

// Option configures a Registry.
type Option func(*Registry)

// WithDisplay sets the display used by the show builtin. Without one, show
// writes to the registry's output.
func WithDisplay(d host.Display) Option {
	return func(r *Registry) { r.display = d }
}

// WithToolkit sets the window toolkit used by choose and prompt.
func WithToolkit(t host.Toolkit) Option {
	return func(r *Registry) { r.toolkit = t }
}

// WithOutput sets where script print output and diagnostics are written.
func WithOutput(w io.Writer) Option {
	return func(r *Registry) { r.out = w }
}

// NewRegistry creates a registry holding only its seeded root object.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		toolkit: host.NoToolkit{},
		out:     os.Stdout,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.root = newObject(r, RootName)
	r.compiler = NewCompiler(r.Predeclared, r.NewThread)
	r.Reset()
	return r
}

// Root returns the registry's root object.
func (r *Registry) Root() *Object { return r.root }

// Compiler returns the method compiler used for this registry's objects.
func (r *Registry) Compiler() *Compiler { return r.compiler }

// Output returns the writer used for script output and diagnostics.
func (r *Registry) Output() io.Writer { return r.out }

// SetOutput redirects script output. Without a display option, show follows
// the output too.
func (r *Registry) SetOutput(w io.Writer) { r.out = w }

// Generation returns the generation of the last snapshot taken or loaded.
func (r *Registry) Generation() int { return r.generation }

// SetGeneration records a new generation and mirrors it into the root field.
func (r *Registry) SetGeneration(gen int) {
	r.generation = gen
	if slot, ok := r.root.slots[GenerationField]; ok && slot.Kind == Field {
		slot.Value = starlark.MakeInt(gen)
		slot.Source = slot.Value.String()
	}
}

// SetSnapshotFunc installs the function run by the snapshot command.
func (r *Registry) SetSnapshotFunc(fn SnapshotFunc) {
	r.snapshot = fn
}

// NewThread creates a Starlark thread whose print output goes to the
// registry's output.
func (r *Registry) NewThread(name string) *starlark.Thread {
	return &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			fmt.Fprintln(r.out, msg)
		},
	}
}

// Call invokes fn on a fresh thread.
func (r *Registry) Call(fn starlark.Value, args ...starlark.Value) (starlark.Value, error) {
	return starlark.Call(r.NewThread("call"), fn, starlark.Tuple(args), nil)
}

// ---------------------------------------------------------------------------
// Registration and lookup
// ---------------------------------------------------------------------------

// Register adds obj to the registry. Registering the same object twice is a
// no-op. Registering a different object under an existing name replaces the
// old one in both the name map and the order, at the old position.
func (r *Registry) Register(obj *Object) {
	if obj.name == RootName && obj != r.root {
		log.Warningf("refusing to register a second %s", RootName)
		return
	}
	if existing, ok := r.objects[obj.name]; ok {
		if existing == obj {
			return
		}
		r.objects[obj.name] = obj
		if i := slices.Index(r.order, existing); i >= 0 {
			r.order[i] = obj
			obj.setSerial(i)
		}
		return
	}
	r.objects[obj.name] = obj
	if slices.Index(r.order, obj) < 0 {
		obj.setSerial(len(r.order))
		r.order = append(r.order, obj)
	}
}

// Remove unregisters the named object and renumbers the rest. The root
// cannot be removed.
func (r *Registry) Remove(name string) bool {
	obj, ok := r.objects[name]
	if !ok || obj == r.root {
		return false
	}
	delete(r.objects, name)
	r.order = slices.DeleteFunc(r.order, func(o *Object) bool { return o == obj })
	r.Renumber()
	return true
}

// Renumber sets every object's serial to its position in the order.
func (r *Registry) Renumber() {
	for i, obj := range r.order {
		obj.setSerial(i)
	}
}

// Contains reports whether obj is the object registered under its name.
func (r *Registry) Contains(obj *Object) bool {
	return r.objects[obj.name] == obj
}

// Lookup finds an object by name.
func (r *Registry) Lookup(name string) (*Object, bool) {
	obj, ok := r.objects[name]
	return obj, ok
}

// LookupSerial finds an object by serial with a linear scan.
func (r *Registry) LookupSerial(serial int) (*Object, bool) {
	for _, obj := range r.order {
		if obj.serial == serial {
			return obj, true
		}
	}
	return nil, false
}

// Objects returns every registered object, root included, in order.
func (r *Registry) Objects() []*Object {
	return slices.Clone(r.order)
}

// Prototypes returns every registered object except the root.
func (r *Registry) Prototypes() []*Object {
	protos := make([]*Object, 0, len(r.order))
	for _, obj := range r.order {
		if obj != r.root {
			protos = append(protos, obj)
		}
	}
	return protos
}

// Fresh creates and registers a new object seeded with identity and serial
// fields and, when tagline is non-empty, a tagline method. An existing object
// with the same name is replaced.
func (r *Registry) Fresh(name, tagline string) (*Object, error) {
	if name == RootName {
		return nil, fmt.Errorf("%q is reserved for the registry root", name)
	}
	obj := newObject(r, name)
	obj.slots[IdentityField] = &Slot{Name: IdentityField, Kind: Field, Source: Quote(name), Value: starlark.String(name)}
	obj.slots[SerialField] = &Slot{Name: SerialField, Kind: Field, Source: "-1", Value: starlark.MakeInt(-1)}
	r.Register(obj)
	if tagline != "" {
		if err := obj.AddSlot("tagline", Method, "lambda self: "+Quote(tagline), nil); err != nil {
			return nil, err
		}
	}
	return obj, nil
}

// ---------------------------------------------------------------------------
// Root seeding
// ---------------------------------------------------------------------------

// Reset empties the registry, leaving only the root with its default slots.
func (r *Registry) Reset() {
	r.objects = make(map[string]*Object)
	r.order = nil
	r.root.slots = make(slotTable)
	r.Register(r.root)
	r.EnsureRootSlots()
}

// EnsureRootSlots adds any missing default slot to the root.
func (r *Registry) EnsureRootSlots() {
	root := r.root
	seed := func(name, source string, value starlark.Value) {
		if _, ok := root.slots[name]; !ok {
			root.slots[name] = &Slot{Name: name, Kind: Field, Source: source, Value: value}
		}
	}
	seed(IdentityField, Quote(RootName), starlark.String(RootName))
	seed(ObjectsField, "{}", objectsView{r})
	seed(OrderField, "[]", orderView{r})
	seed(GenerationField, fmt.Sprint(r.generation), starlark.MakeInt(r.generation))
	seed(SerialField, fmt.Sprint(root.serial), starlark.MakeInt(root.serial))
	seed(RootField, "registry", root)
	seed("initialiser", "{}", new(starlark.Dict))
	seed("Lobby", "None", starlark.None)
	doc := "Registry owns every object and takes snapshots."
	seed("documentation", Quote(doc), starlark.String(doc))
	if _, ok := root.slots["tagline"]; !ok {
		if err := root.AddSlot("tagline", Method, "lambda self: 'Registry'", nil); err != nil {
			log.Errorf("seeding root tagline: %v", err)
		}
	}
}

// Rebind restores the root's structural fields after hydrate has replaced
// them with their persisted placeholders.
func (r *Registry) Rebind() {
	root := r.root
	bind := func(name string, value starlark.Value) {
		if slot, ok := root.slots[name]; ok && slot.Kind == Field {
			slot.Value = value
			return
		}
		root.slots[name] = &Slot{Name: name, Kind: Field, Source: sourceFor(value), Value: value}
	}
	bind(ObjectsField, objectsView{r})
	bind(OrderField, orderView{r})
	bind(RootField, root)
	r.SetGeneration(r.generation)
	root.setSerial(0)
}

// ---------------------------------------------------------------------------
// Hooks
// ---------------------------------------------------------------------------

// StartupAll invokes each object's startup hook. Failures are reported and
// do not stop the iteration.
func (r *Registry) StartupAll() []error {
	return r.runHooks("startup")
}

// ShutdownAll invokes each object's shutdown hook, as StartupAll does.
func (r *Registry) ShutdownAll() []error {
	return r.runHooks("shutdown")
}

func (r *Registry) runHooks(hook string) []error {
	var errs []error
	for _, obj := range slices.Clone(r.order) {
		fn, ok := obj.hook(hook)
		if !ok {
			continue
		}
		if _, err := r.Call(fn); err != nil {
			herr := &HookError{Object: obj.name, Hook: hook, Err: err}
			log.Warningf("%v", herr)
			fmt.Fprintln(r.out, herr.Error())
			errs = append(errs, herr)
		}
	}
	return errs
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

// Outcome classifies the result of a command.
type Outcome int

const (
	Silent Outcome = iota
	Printed
	Exit
)

func (o Outcome) String() string {
	switch o {
	case Silent:
		return "silent"
	case Printed:
		return "printed"
	case Exit:
		return "exit"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Reply is the result of running one command.
type Reply struct {
	Outcome Outcome
	Text    string
}

// Snapshot runs the installed snapshot function.
func (r *Registry) Snapshot() error {
	if r.snapshot == nil {
		return fmt.Errorf("snapshot: %w", ErrNoImage)
	}
	return r.snapshot(r)
}

// RunCommand executes one line of input. Empty input is silent, "exit" ends
// the session and "snapshot" persists the registry. Anything else goes to the
// Command_executor object's execute method when one is registered.
//
// Evaluation failures come back as printed diagnostics. Only persistence
// failures are returned as errors.
func (r *Registry) RunCommand(text string) (Reply, error) {
	cmd := strings.TrimSpace(text)
	switch cmd {
	case "":
		return Reply{}, nil
	case ExitCommand:
		return Reply{Outcome: Exit}, nil
	case SnapshotCommand:
		if err := r.Snapshot(); err != nil {
			return Reply{}, err
		}
		return Reply{}, nil
	}

	executor, ok := r.objects[ExecutorName]
	if !ok {
		return Reply{}, nil
	}
	execute, err := executor.ReadSlot("execute")
	if err != nil {
		return r.failed(cmd, err), nil
	}
	result, err := r.Call(execute, starlark.String(cmd))
	if err != nil {
		if errors.Is(err, ErrPersistence) {
			return Reply{}, err
		}
		return r.failed(cmd, err), nil
	}
	return replyFor(result), nil
}

func (r *Registry) failed(cmd string, err error) Reply {
	eerr := &EvalError{Command: cmd, Err: err}
	log.Debugf("command %q: %v", cmd, eerr)
	return Reply{Outcome: Printed, Text: "error: " + err.Error()}
}

func replyFor(v starlark.Value) Reply {
	switch v := v.(type) {
	case nil, starlark.NoneType:
		return Reply{}
	case starlark.String:
		if string(v) == ExitSentinel {
			return Reply{Outcome: Exit}
		}
		return Reply{Outcome: Printed, Text: string(v)}
	}
	return Reply{Outcome: Printed, Text: v.String()}
}

// RunCommands executes cmds in order, passing printed results to emit. It
// stops at the first exit and reports whether one was seen.
func (r *Registry) RunCommands(cmds []string, emit func(string)) (bool, error) {
	for _, cmd := range cmds {
		reply, err := r.RunCommand(cmd)
		if err != nil {
			return false, err
		}
		switch reply.Outcome {
		case Exit:
			return true, nil
		case Printed:
			if emit != nil {
				emit(reply.Text)
			}
		}
	}
	return false, nil
}
