// Package horn defines the core data model shared by every stage of the
// compiler: runtime values, terms, declared types, relation signatures, and
// the elaborated program form handed to the pipeline by the front end.
package horn

import (
	"fmt"
	"strings"
)

// Value represents any ground value a program can compute or store.
// We use interface{} with direct Go types rather than a wrapper hierarchy.
type Value interface{}

// Valid value types:
// - int64
// - string
// - bool
// - Struct  (product type instance)
// - Variant (sum type instance)

// Struct is an instance of a product type.
type Struct struct {
	Type   string // declared type name
	Ctor   string // constructor name as written in source
	Fields []Value
}

// Variant is an instance of one variant of a sum type.
type Variant struct {
	Type   string // declared type name
	Name   string // variant name
	Fields []Value
}

// Helper functions for creating typed values
func Int(i int64) Value     { return i }
func String(s string) Value { return s }
func Bool(b bool) Value     { return b }

// NewStruct builds a product value.
func NewStruct(typeName, ctor string, fields ...Value) Value {
	return Struct{Type: typeName, Ctor: ctor, Fields: fields}
}

// NewVariant builds a sum value.
func NewVariant(typeName, variant string, fields ...Value) Value {
	return Variant{Type: typeName, Name: variant, Fields: fields}
}

// FormatValue renders a value the way source literals are written.
func FormatValue(v Value) string {
	switch val := v.(type) {
	case nil:
		return "_"
	case int64:
		return fmt.Sprintf("%d", val)
	case string:
		return fmt.Sprintf("%q", val)
	case bool:
		return fmt.Sprintf("%t", val)
	case Struct:
		name := val.Ctor
		if name == "" {
			name = val.Type
		}
		return formatFields(name, val.Fields)
	case Variant:
		if len(val.Fields) == 0 {
			return val.Name
		}
		return formatFields(val.Name, val.Fields)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// FormatTuple renders a tuple as it would appear in a fact.
func FormatTuple(tuple []Value) string {
	parts := make([]string, len(tuple))
	for i, v := range tuple {
		parts[i] = FormatValue(v)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func formatFields(name string, fields []Value) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = FormatValue(f)
	}
	return name + "(" + strings.Join(parts, ", ") + ")"
}
