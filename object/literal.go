package object

import (
	"math"
	"strings"
	"unicode/utf8"

	"go.starlark.net/starlark"
)

// Literal returns Starlark source text that evaluates to a value equal to v.
// The second result is false when v has no literal form (functions, objects,
// builtins, or containers holding them).
func Literal(v starlark.Value) (string, bool) {
	switch v := v.(type) {
	case nil, starlark.NoneType:
		return "None", true
	case starlark.String:
		return Quote(string(v)), true
	case starlark.Bool, starlark.Int, starlark.Bytes:
		return v.String(), true
	case starlark.Float:
		f := float64(v)
		switch {
		case math.IsInf(f, 1):
			return `float("+inf")`, true
		case math.IsInf(f, -1):
			return `float("-inf")`, true
		case math.IsNaN(f):
			return `float("nan")`, true
		}
		return v.String(), true
	case *starlark.List:
		elems := make([]starlark.Value, v.Len())
		for i := range elems {
			elems[i] = v.Index(i)
		}
		return joinLiterals("[", elems, "]")
	case starlark.Tuple:
		if len(v) == 1 {
			s, ok := Literal(v[0])
			return "(" + s + ",)", ok
		}
		return joinLiterals("(", v, ")")
	case *starlark.Set:
		elems := make([]starlark.Value, 0, v.Len())
		iter := v.Iterate()
		defer iter.Done()
		var x starlark.Value
		for iter.Next(&x) {
			elems = append(elems, x)
		}
		return joinLiterals("set([", elems, "])")
	case *starlark.Dict:
		var sb strings.Builder
		sb.WriteString("{")
		for i, item := range v.Items() {
			if i > 0 {
				sb.WriteString(", ")
			}
			k, ok := Literal(item[0])
			if !ok {
				return "", false
			}
			val, ok := Literal(item[1])
			if !ok {
				return "", false
			}
			sb.WriteString(k)
			sb.WriteString(": ")
			sb.WriteString(val)
		}
		sb.WriteString("}")
		return sb.String(), true
	}
	return "", false
}

func joinLiterals(open string, elems []starlark.Value, close string) (string, bool) {
	parts := make([]string, len(elems))
	for i, e := range elems {
		s, ok := Literal(e)
		if !ok {
			return "", false
		}
		parts[i] = s
	}
	return open + strings.Join(parts, ", ") + close, true
}

// Quote renders s as Starlark source that evaluates to s. Strings that are
// not valid UTF-8 cannot be written as string literals, so they are written
// as a bytes literal passed through bytes_to_string.
func Quote(s string) string {
	if !utf8.ValidString(s) {
		return bytesToStringName + "(" + starlark.Bytes(s).String() + ")"
	}
	return starlark.String(s).String()
}

// sourceFor derives the Source text recorded for a field assigned at runtime.
func sourceFor(v starlark.Value) string {
	if obj, ok := v.(*Object); ok {
		return Quote(obj.name)
	}
	if s, ok := Literal(v); ok {
		return s
	}
	return Quote(v.String())
}
