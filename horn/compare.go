package horn

import "fmt"

// valueRank orders value kinds so values of different types compare
// deterministically. Within a kind, natural ordering applies.
func valueRank(v Value) int {
	switch v.(type) {
	case bool:
		return 0
	case int64:
		return 1
	case string:
		return 2
	case Struct:
		return 3
	case Variant:
		return 4
	default:
		panic(fmt.Sprintf("unknown value type: %T", v))
	}
}

// CompareValues provides a total, deterministic ordering over values.
// Returns -1, 0, or 1.
func CompareValues(a, b Value) int {
	ra, rb := valueRank(a), valueRank(b)
	if ra != rb {
		return sign(ra - rb)
	}

	switch av := a.(type) {
	case bool:
		bv := b.(bool)
		if av == bv {
			return 0
		}
		if !av {
			return -1
		}
		return 1
	case int64:
		bv := b.(int64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case string:
		bv := b.(string)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case Struct:
		bv := b.(Struct)
		if c := compareStrings(av.Type, bv.Type); c != 0 {
			return c
		}
		return compareTuples(av.Fields, bv.Fields)
	case Variant:
		bv := b.(Variant)
		if c := compareStrings(av.Type, bv.Type); c != 0 {
			return c
		}
		if c := compareStrings(av.Name, bv.Name); c != 0 {
			return c
		}
		return compareTuples(av.Fields, bv.Fields)
	default:
		panic(fmt.Sprintf("unknown value type: %T", a))
	}
}

// EqualValues reports structural equality of two values.
func EqualValues(a, b Value) bool {
	return CompareValues(a, b) == 0
}

// CompareTuples orders two tuples lexicographically.
func CompareTuples(a, b []Value) int {
	return compareTuples(a, b)
}

// EqualTuples reports structural equality of two tuples.
func EqualTuples(a, b []Value) bool {
	return compareTuples(a, b) == 0
}

func compareTuples(a, b []Value) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := CompareValues(a[i], b[i]); c != 0 {
			return c
		}
	}
	return sign(len(a) - len(b))
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}
