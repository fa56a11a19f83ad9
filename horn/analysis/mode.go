// Package analysis computes, for every relation reachable from a query,
// the set of binding patterns ("modes") it must be compiled for, and for
// every rule body an evaluation order consistent with each mode. It also
// detects recursion (which relations need tabling) and checks
// stratification of negation.
package analysis

import "strings"

// Binding is the groundness of one argument position at call time.
type Binding byte

const (
	// Free means the position is produced by the callee.
	Free Binding = iota
	// Bound means the position is ground on entry.
	Bound
)

// Mode is the binding pattern of one relation invocation, one Binding per
// argument position in signature order.
type Mode []Binding

// String renders the conventional compact form, e.g. "bf" for a call with
// the first argument bound and the second free.
func (m Mode) String() string {
	var b strings.Builder
	for _, bind := range m {
		if bind == Bound {
			b.WriteByte('b')
		} else {
			b.WriteByte('f')
		}
	}
	return b.String()
}

// Equal reports whether two modes are the same pattern.
func (m Mode) Equal(other Mode) bool {
	if len(m) != len(other) {
		return false
	}
	for i := range m {
		if m[i] != other[i] {
			return false
		}
	}
	return true
}

// BoundCount returns how many positions are ground on entry.
func (m Mode) BoundCount() int {
	n := 0
	for _, b := range m {
		if b == Bound {
			n++
		}
	}
	return n
}

// AllBound reports whether the mode is a pure existence check.
func (m Mode) AllBound() bool {
	return m.BoundCount() == len(m)
}

// BoundPositions returns the ground argument positions in signature order.
func (m Mode) BoundPositions() []int {
	var out []int
	for i, b := range m {
		if b == Bound {
			out = append(out, i)
		}
	}
	return out
}

// FreePositions returns the produced argument positions in signature order.
func (m Mode) FreePositions() []int {
	var out []int
	for i, b := range m {
		if b == Free {
			out = append(out, i)
		}
	}
	return out
}

// AllBoundMode builds the existence-check mode for an arity.
func AllBoundMode(arity int) Mode {
	m := make(Mode, arity)
	for i := range m {
		m[i] = Bound
	}
	return m
}
