package object

import (
	"go.starlark.net/starlark"
	"gopkg.in/yaml.v3"
)

// ObjectView is a plain snapshot of an object's slots for display.
type ObjectView struct {
	Name    string     `yaml:"name"`
	Serial  int        `yaml:"serial"`
	Fields  []SlotView `yaml:"fields,omitempty"`
	Parents []SlotView `yaml:"parents,omitempty"`
	Methods []SlotView `yaml:"methods,omitempty"`
}

// SlotView describes one slot.
type SlotView struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source"`
	Value  string `yaml:"value,omitempty"`
}

// Inspect builds a view of obj, each section sorted by slot name.
func Inspect(obj *Object) ObjectView {
	view := ObjectView{Name: obj.name, Serial: obj.serial}
	for _, name := range obj.slots.all() {
		slot := obj.slots[name]
		sv := SlotView{Name: name, Source: slot.Source}
		switch slot.Kind {
		case Field:
			sv.Value = displayValue(slot.Value)
			view.Fields = append(view.Fields, sv)
		case Parent:
			sv.Value = displayValue(slot.Value)
			view.Parents = append(view.Parents, sv)
		case Method:
			view.Methods = append(view.Methods, sv)
		}
	}
	return view
}

// YAML renders the view as a YAML document.
func (v ObjectView) YAML() (string, error) {
	out, err := yaml.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func displayValue(v starlark.Value) string {
	if v == nil {
		return "None"
	}
	if o, ok := v.(*Object); ok {
		return o.name
	}
	return v.String()
}
