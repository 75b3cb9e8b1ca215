package image

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"go.starlark.net/starlark"

	"github.com/chazu/liveobjects/object"
)

// GraphRecord is a position-independent description of a registry. Two
// registries that a snapshot and hydrate would make identical produce equal
// records.
type GraphRecord struct {
	Objects []ObjectRecord `cbor:"1,keyasint"`
}

type ObjectRecord struct {
	Name   string       `cbor:"1,keyasint"`
	Serial int          `cbor:"2,keyasint"`
	Slots  []SlotRecord `cbor:"3,keyasint"`
}

// SlotRecord describes one slot. Literal is set for fields with a literal
// value; Target names the object a link or object-valued field points at.
type SlotRecord struct {
	Name    string `cbor:"1,keyasint"`
	Kind    string `cbor:"2,keyasint"`
	Source  string `cbor:"3,keyasint"`
	Literal string `cbor:"4,keyasint,omitempty"`
	Target  string `cbor:"5,keyasint,omitempty"`
}

var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em

	// Object and slot names may hold any bytes a script can build.
	dm, err := cbor.DecOptions{UTF8: cbor.UTF8DecodeInvalid}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR dec mode: %v", err))
	}
	cborDecMode = dm
}

// Record builds the graph record for reg. The root's generation is left
// out, since it counts snapshots rather than describing the graph.
func Record(reg *object.Registry) *GraphRecord {
	g := &GraphRecord{}
	for i, obj := range reg.Objects() {
		or := ObjectRecord{Name: obj.Name(), Serial: i}
		for _, name := range obj.AllSlotNames() {
			if obj == reg.Root() && name == object.GenerationField {
				continue
			}
			slot, _ := obj.Slot(name)
			sr := SlotRecord{Name: name, Kind: slot.Kind.String(), Source: slot.Source}
			switch slot.Kind {
			case object.Parent:
				sr.Target = targetName(reg, slot.Value)
			case object.Field:
				if target := targetName(reg, slot.Value); target != "" && (object.IsDelegation(name) || isObject(slot.Value)) {
					sr.Target = target
					sr.Literal = "None"
					break
				}
				_, sr.Literal = fieldLiteral(reg, obj, name, 0)
			}
			or.Slots = append(or.Slots, sr)
		}
		g.Objects = append(g.Objects, or)
	}
	return g
}

func isObject(v starlark.Value) bool {
	_, ok := v.(*object.Object)
	return ok
}

func targetName(reg *object.Registry, v starlark.Value) string {
	switch t := v.(type) {
	case *object.Object:
		return t.Name()
	case starlark.String:
		return string(t)
	case starlark.Int:
		if n, ok := t.Int64(); ok {
			if obj, found := reg.LookupSerial(int(n)); found {
				return obj.Name()
			}
		}
	}
	return ""
}

// ExportCBOR encodes reg's graph record as canonical CBOR.
func ExportCBOR(reg *object.Registry) ([]byte, error) {
	return cborEncMode.Marshal(Record(reg))
}

// DecodeCBOR decodes a graph record produced by ExportCBOR.
func DecodeCBOR(data []byte) (*GraphRecord, error) {
	var g GraphRecord
	if err := cborDecMode.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("image: unmarshal graph: %w", err)
	}
	return &g, nil
}

// Digest returns the hex SHA-256 of reg's canonical graph record.
func Digest(reg *object.Registry) (string, error) {
	data, err := ExportCBOR(reg)
	if err != nil {
		return "", err
	}
	return Checksum(data), nil
}
