// Package world builds the starting object graph of a new LiveObjects image:
// a traits bucket, an OS helper, the command executor, dialog and inspector
// helpers, two object-editing applications and the Lobby that launches them.
package world

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/liveobjects/object"
)

var log = commonlog.GetLogger("liveobjects.world")

// Object names.
const (
	UniversalTraits = "UniversalTraits"
	OS              = "OS"
	Executor        = object.ExecutorName
	NativeDialog    = "NativeDialog"
	Inspector       = "Inspector"
	Browser         = "PrimaBrowser"
	ObjectManager   = "PrimaObjectManager"
	Lobby           = "Lobby"
)

type slotDef struct {
	name   string
	source string
}

type protoDef struct {
	name    string
	fields  []slotDef
	methods []slotDef
	traits  bool // delegate to UniversalTraits and the registry
}

// Seed adds the standard objects to reg and points the root's Lobby field
// at the Lobby. Existing objects with the same names are replaced.
func Seed(reg *object.Registry) error {
	for _, def := range protos {
		obj, err := reg.Fresh(def.name, "")
		if err != nil {
			return err
		}
		for _, f := range def.fields {
			v, err := reg.Evaluate(f.source)
			if err != nil {
				return fmt.Errorf("%s.%s: %w", def.name, f.name, err)
			}
			if err := obj.AddSlot(f.name, object.Field, f.source, v); err != nil {
				return err
			}
		}
		if def.traits {
			traits, _ := reg.Lookup(UniversalTraits)
			if err := obj.AddSlot(UniversalTraits+"*", object.Parent, object.Quote(UniversalTraits), traits); err != nil {
				return err
			}
			if err := obj.AddSlot("bootStrap*", object.Parent, object.Quote(object.RootName), reg.Root()); err != nil {
				return err
			}
		}
		for _, m := range def.methods {
			if err := obj.AddSlot(m.name, object.Method, m.source, nil); err != nil {
				return err
			}
		}
	}

	lobby, _ := reg.Lookup(Lobby)
	if err := reg.Root().SetField(Lobby, lobby); err != nil {
		return err
	}
	log.Debugf("seeded %d objects", len(protos))
	return nil
}

var protos = []protoDef{
	{
		name:   UniversalTraits,
		fields: []slotDef{{"tagline", `"Shared methods bucket"`}},
		methods: []slotDef{
			{"find", `
def find(self, name_or_serial):
    for obj in registry.order:
        if obj.name == name_or_serial or obj.serial == name_or_serial:
            return obj
    return None
`},
		},
	},
	{
		name:   OS,
		fields: []slotDef{{"tagline", `"OS helper"`}},
		methods: []slotDef{
			{"executable_name", `lambda self: "liveobjects"`},
			{"hostname", `lambda self: sys.hostname()`},
			{"mswindows", `lambda self: sys.platform == "windows"`},
			{"now", `lambda self: time.now()`},
			{"pid", `lambda self: sys.pid()`},
			{"program_name", `lambda self: sys.program_name()`},
			{"system_copy", `lambda self: "copy" if sys.platform == "windows" else "cp"`},
			{"uid", `lambda self: sys.uid()`},
		},
	},
	{
		name:   Executor,
		traits: true,
		methods: []slotDef{
			{"execute", `lambda self, code: evaluate(code)`},
			{"tagline", `lambda self: "I execute code strings"`},
		},
	},
	{
		name:   NativeDialog,
		traits: true,
		methods: []slotDef{
			{"go", `lambda self, text = "Hello from LiveObjects": show(str(text))`},
			{"tagline", `lambda self: "Native dialog helper"`},
		},
	},
	{
		name:   Inspector,
		traits: true,
		fields: []slotDef{
			{"current_object", `None`},
			{"widget_term", `None`},
		},
		methods: []slotDef{
			{"co", `
def co(self, name):
    self.current_object = registry.objects[name] if name in registry.objects else None
    return self.current_object
`},
			{"display_method", `
def display_method(self, target_name, slot_name):
    if target_name not in registry.objects:
        print("No target")
        return None
    target = registry.objects[target_name]
    if not target.has_slot(slot_name):
        print("No slot")
        return None
    print(target.slot_source(slot_name))
    return None
`},
			{"display_object", `
def display_object(self, target_name = None):
    target = self.current_object
    if target_name:
        target = registry.objects[target_name] if target_name in registry.objects else None
    if not target:
        print("No target")
        return None
    print("Object: " + target.name)
    for name in target.slot_names():
        kind = target.slot_kind(name)
        print("  " + kind + " " * (7 - len(kind)) + name)
    return None
`},
			{"list_objects", `
def _tagline(obj):
    if not obj.has_slot("tagline"):
        return ""
    if obj.slot_kind("tagline") == METHOD:
        return str(obj.tagline())
    return str(obj.tagline)

def list_objects(self):
    for obj in registry.order:
        print("%d\t%s\t%s" % (obj.serial, obj.name, _tagline(obj)))
    return None
`},
			{"startup", `
def startup(self):
    self.current_object = self
`},
			{"tagline", `lambda self: "Lists registered objects"`},
		},
	},
	{
		name:   Browser,
		traits: true,
		fields: []slotDef{
			{"documentation", `"Object editor"`},
			{"humanName", `"Object Editor"`},
			{"input_method_name", `""`},
			{"isApplication", `"yes"`},
			{"selected_method", `None`},
			{"selected_object", `None`},
			{"tagline", `"I edit object slots"`},
			{"widget_code", `None`},
			{"widget_list_methods", `None`},
			{"widget_window", `None`},
		},
		methods: []slotDef{
			{"edit_object", `
def edit_object(self, target_name):
    obj = registry.objects[target_name] if target_name in registry.objects else None
    self.selected_object = obj
    if not obj:
        print("No such object")
    return obj
`},
			{"display", `
def display(self):
    obj = self.selected_object
    if not obj:
        print("No selected object")
        return None
    print("Object: " + obj.name)
    for name in obj.slot_names():
        kind = obj.slot_kind(name)
        print("  " + kind + " " * (7 - len(kind)) + name)
    return None
`},
			{"display_objs", `
def display_objs(self):
    for obj in registry.prototypes():
        print(obj.name)
`},
			{"go", `
def go(self, target_name = None):
    if not target_name:
        names = [o.name for o in registry.prototypes()]
        if toolkit_available():
            target_name = choose("Edit which object?", names)
        elif names:
            target_name = names[0]
    if target_name:
        self.edit_object(target_name)
    self.display()
`},
			{"gstartup", `lambda self, target_name = None: self.go(target_name)`},
			{"callback_object_selected", `lambda self, target_name: self.edit_object(target_name)`},
			{"callback_method_selected", `
def callback_method_selected(self, slot_name):
    obj = self.selected_object
    if not obj or not obj.has_slot(slot_name):
        return None
    self.selected_method = slot_name
    source = obj.slot_source(slot_name)
    print(source)
    return source
`},
			{"update", `
def update(self, slot_name, source):
    if not self.selected_object or not slot_name or not source:
        return None
    self.selected_object.add_slot(slot_name, METHOD, source)
    self.selected_method = slot_name
    return slot_name
`},
			{"callback_add_method", `
def callback_add_method(self, slot_name = "new_method", source = "lambda self: None"):
    return self.update(slot_name, source)
`},
			{"callback_update_method", `
def callback_update_method(self, source):
    if not self.selected_method:
        return None
    return self.update(self.selected_method, source)
`},
			{"callback_delete_method", `
def callback_delete_method(self, slot_name):
    if not self.selected_object:
        return None
    self.selected_object.delete_slot(slot_name)
    if self.selected_method == slot_name:
        self.selected_method = None
    return slot_name
`},
			{"check_eval", `lambda self, source: evaluate(source)`},
			{"clear_methods", `
def clear_methods(self):
    self.selected_method = None
`},
			{"shutdown", `
def shutdown(self):
    self.selected_object = None
    self.selected_method = None
`},
		},
	},
	{
		name:   ObjectManager,
		traits: true,
		fields: []slotDef{
			{"humanName", `"Object Manager"`},
			{"isApplication", `"yes"`},
			{"selected_object", `None`},
			{"tagline", `"I create, delete and clone objects"`},
			{"widget_input_object_name", `None`},
			{"widget_list_object", `None`},
			{"widget_window", `None`},
		},
		methods: []slotDef{
			{"callback_new_object", `
def callback_new_object(self, name):
    if not name:
        return None
    return registry.fresh(name)
`},
			{"callback_clone_object", `
def callback_clone_object(self, name):
    if name not in registry.objects:
        return None
    source = registry.objects[name]
    clone = registry.fresh("Clone of " + name)
    for slot in source.slot_names():
        if slot in ("i_am_a", "serial_number"):
            continue
        kind = source.slot_kind(slot)
        if kind == METHOD:
            clone.add_slot(slot, METHOD, source.slot_source(slot))
        else:
            clone.add_slot(slot, kind, source.slot_source(slot), source.read_slot(slot))
    return clone
`},
			{"callback_delete_object", `
def callback_delete_object(self, name):
    if self.selected_object and self.selected_object.name == name:
        self.selected_object = None
    return name if registry.remove(name) else None
`},
			{"callback_edit_object", `
def callback_edit_object(self, name):
    if "` + Browser + `" not in registry.objects:
        return None
    browser = registry.objects["` + Browser + `"]
    browser.edit_object(name)
    browser.display()
    return browser
`},
			{"callback_object_selected", `
def callback_object_selected(self, name):
    self.selected_object = registry.objects[name] if name in registry.objects else None
    return self.selected_object
`},
			{"clear_objects", `
def clear_objects(self):
    self.selected_object = None
`},
			{"display_objs", `
def display_objs(self):
    for obj in registry.prototypes():
        print(obj.name)
`},
			{"go", `lambda self: self.display_objs()`},
			{"gstartup", `lambda self: self.go()`},
			{"update", `
def update(self, slot_name, source):
    if not self.selected_object:
        return None
    self.selected_object.add_slot(slot_name, METHOD, source)
    return slot_name
`},
		},
	},
	{
		name:   Lobby,
		traits: true,
		methods: []slotDef{
			{"applications", `
def applications(self):
    return [o for o in registry.prototypes() if o.has_slot("isApplication") and o.isApplication == "yes"]
`},
			{"go", `
def _label(app):
    return app.humanName if app.has_slot("humanName") else app.name

def go(self):
    if not toolkit_available():
        return None
    apps = self.applications()
    if not apps:
        return None
    picked = choose("LiveObjects Lobby", [_label(a) for a in apps])
    for app in apps:
        if _label(app) == picked:
            return app.go()
    return None
`},
			{"tagline", `lambda self: "Entry point"`},
		},
	},
}
