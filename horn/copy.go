package horn

// CopyValue deep-copies a value so it no longer aliases arena-backed field
// slices. Scalars are returned as-is.
func CopyValue(v Value) Value {
	switch val := v.(type) {
	case Struct:
		return Struct{Type: val.Type, Ctor: val.Ctor, Fields: CopyTuple(val.Fields)}
	case Variant:
		return Variant{Type: val.Type, Name: val.Name, Fields: CopyTuple(val.Fields)}
	default:
		return v
	}
}

// CopyTuple deep-copies a tuple into freshly allocated heap storage.
func CopyTuple(tuple []Value) []Value {
	out := make([]Value, len(tuple))
	for i, v := range tuple {
		out[i] = CopyValue(v)
	}
	return out
}
