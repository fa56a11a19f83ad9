// Package ir lowers each (relation, mode) pair into ordered operation
// lists over a flat slot frame. The lists make unification, callee modes,
// arithmetic, and tabling boundaries explicit; the code generator turns
// them into native predicate functions without further analysis.
package ir

import (
	"fmt"
	"strings"

	"github.com/wbrown/horn/horn"
	"github.com/wbrown/horn/horn/analysis"
)

// OperandKind distinguishes slot references from inline constants.
type OperandKind int

const (
	OperandSlot OperandKind = iota
	OperandConst
)

// Operand is a value source: a frame slot or a constant.
type Operand struct {
	Kind  OperandKind
	Slot  int
	Const horn.Value
}

// SlotOperand references frame slot n.
func SlotOperand(n int) Operand {
	return Operand{Kind: OperandSlot, Slot: n}
}

// ConstOperand wraps a ground constant.
func ConstOperand(v horn.Value) Operand {
	return Operand{Kind: OperandConst, Const: v}
}

func (o Operand) String() string {
	if o.Kind == OperandConst {
		return horn.FormatValue(o.Const)
	}
	return fmt.Sprintf("s%d", o.Slot)
}

// Op is one primitive operation of a lowered rule body. Execution is
// sequential; Unify, Deconstruct, and Compare may fail, which abandons the
// current path (ordinary control flow, not an error).
type Op interface {
	isOp()
	String() string
}

// Bind assigns a value to an unbound slot. It cannot fail.
type Bind struct {
	Dest int
	Src  Operand
}

// Unify tests two ground values for structural equality.
type Unify struct {
	Left  Operand
	Right Operand
}

// MakeValue builds a product or variant value from ground operands into
// Dest. Allocation comes from the query arena.
type MakeValue struct {
	Dest    int
	Type    string
	Ctor    string
	Variant bool
	Args    []Operand
}

// Deconstruct matches Src against a constructor pattern: it fails unless
// Src was built by Ctor, and otherwise moves the payload fields into the
// Fields slots.
type Deconstruct struct {
	Src     Operand
	Type    string
	Ctor    string
	Variant bool
	Fields  []int
}

// Call invokes a relation in a fixed mode. In carries values for the bound
// positions in signature order; each solution's free-position values land
// in the Out slots. A negated call succeeds exactly when the callee yields
// no solution, producing no bindings. Tabled marks the callee as a
// memoization boundary.
type Call struct {
	Relation  string
	ModeIndex int
	GoalIndex int // index of the source goal within the rule body
	In        []Operand
	Out       []int
	Negated   bool
	Tabled    bool
}

// Compare tests two ground Int operands.
type Compare struct {
	Op    horn.CompareOp
	Left  Operand
	Right Operand
}

// Arith evaluates an integer operation into Dest. Division or modulus by
// zero fails the path.
type Arith struct {
	Dest  int
	Op    horn.BinOp
	Left  Operand
	Right Operand
}

func (Bind) isOp()        {}
func (Unify) isOp()       {}
func (MakeValue) isOp()   {}
func (Deconstruct) isOp() {}
func (Call) isOp()        {}
func (Compare) isOp()     {}
func (Arith) isOp()       {}

func (op Bind) String() string {
	return fmt.Sprintf("bind s%d <- %s", op.Dest, op.Src)
}

func (op Unify) String() string {
	return fmt.Sprintf("unify %s = %s", op.Left, op.Right)
}

func (op MakeValue) String() string {
	return fmt.Sprintf("make s%d <- %s%s", op.Dest, op.Ctor, operandList(op.Args))
}

func (op Deconstruct) String() string {
	parts := make([]string, len(op.Fields))
	for i, s := range op.Fields {
		parts[i] = fmt.Sprintf("s%d", s)
	}
	return fmt.Sprintf("match %s as %s(%s)", op.Src, op.Ctor, strings.Join(parts, ", "))
}

func (op Call) String() string {
	neg := ""
	if op.Negated {
		neg = "not "
	}
	tab := ""
	if op.Tabled {
		tab = " [tabled]"
	}
	outs := make([]string, len(op.Out))
	for i, s := range op.Out {
		outs[i] = fmt.Sprintf("s%d", s)
	}
	return fmt.Sprintf("%scall %s/%d in=%s out=(%s)%s",
		neg, op.Relation, op.ModeIndex, operandList(op.In), strings.Join(outs, ", "), tab)
}

func (op Compare) String() string {
	return fmt.Sprintf("test %s %s %s", op.Left, op.Op, op.Right)
}

func (op Arith) String() string {
	return fmt.Sprintf("arith s%d <- %s %s %s", op.Dest, op.Left, op.Op, op.Right)
}

func operandList(ops []Operand) string {
	parts := make([]string, len(ops))
	for i, o := range ops {
		parts[i] = o.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Rule is one lowered rule body for a specific head mode. Slots
// [0, NumInputs) are preloaded with the caller's bound argument values in
// bound-position order before HeadMatch runs.
type Rule struct {
	RuleIndex int
	NumInputs int
	NumSlots  int
	HeadMatch []Op      // matches inputs against the head's bound patterns
	Body      []Op      // the scheduled body goals
	Out       []Operand // free head positions in signature order
}

// Predicate is the lowered form of one (relation, mode) pair.
type Predicate struct {
	Relation  string
	ModeIndex int
	Mode      analysis.Mode
	Tabled    bool
	Arity     int
	Rules     []Rule
}

// ID returns the stable identifier used for table keys and annotations.
func (p *Predicate) ID() string {
	return fmt.Sprintf("%s/%s", p.Relation, p.Mode)
}

// Relation is a relation with all its lowered specializations.
type Relation struct {
	Name       string
	Tabled     bool
	Predicates []*Predicate // mode discovery order
}

// Program is the lowered program: every relation reachable from a query,
// with one Predicate per required mode, plus the query goal plans carried
// through from analysis.
type Program struct {
	Relations map[string]*Relation
	Order     []string // deterministic emission order (sorted)
}

// Predicate resolves a (relation, mode index) pair.
func (p *Program) Predicate(relation string, modeIndex int) (*Predicate, bool) {
	rel, ok := p.Relations[relation]
	if !ok || modeIndex < 0 || modeIndex >= len(rel.Predicates) {
		return nil, false
	}
	return rel.Predicates[modeIndex], true
}
