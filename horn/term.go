package horn

import "strings"

// Term is an argument expression appearing in a rule head, body goal, or
// query goal. Facts contain only ground values, never terms.
type Term interface {
	isTerm()
}

// Var references a rule-scoped logic variable by name.
type Var struct {
	Name string
}

// Lit wraps a ground constant.
type Lit struct {
	Value Value
}

// Construct applies a product constructor or sum variant to argument terms.
type Construct struct {
	Ctor string
	Args []Term
}

// BinExpr is an integer arithmetic expression.
type BinExpr struct {
	Op    BinOp
	Left  Term
	Right Term
}

func (Var) isTerm()       {}
func (Lit) isTerm()       {}
func (Construct) isTerm() {}
func (BinExpr) isTerm()   {}

// BinOp is an arithmetic operator over Int.
type BinOp int

const (
	OpAdd BinOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
)

func (op BinOp) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpMod:
		return "%"
	}
	return "?"
}

// CompareOp is a comparison operator over Int.
type CompareOp int

const (
	CmpEq CompareOp = iota
	CmpNe
	CmpLt
	CmpLe
	CmpGt
	CmpGe
)

func (op CompareOp) String() string {
	switch op {
	case CmpEq:
		return "=="
	case CmpNe:
		return "!="
	case CmpLt:
		return "<"
	case CmpLe:
		return "<="
	case CmpGt:
		return ">"
	case CmpGe:
		return ">="
	}
	return "?"
}

// Holds evaluates a comparison over an integer ordering result.
func (op CompareOp) Holds(cmp int) bool {
	switch op {
	case CmpEq:
		return cmp == 0
	case CmpNe:
		return cmp != 0
	case CmpLt:
		return cmp < 0
	case CmpLe:
		return cmp <= 0
	case CmpGt:
		return cmp > 0
	case CmpGe:
		return cmp >= 0
	}
	return false
}

// TermVars appends the variable names in term to vars, first occurrence
// order, without duplicates.
func TermVars(term Term, vars []string) []string {
	switch t := term.(type) {
	case Var:
		for _, v := range vars {
			if v == t.Name {
				return vars
			}
		}
		return append(vars, t.Name)
	case Construct:
		for _, arg := range t.Args {
			vars = TermVars(arg, vars)
		}
	case BinExpr:
		vars = TermVars(t.Left, vars)
		vars = TermVars(t.Right, vars)
	}
	return vars
}

// TermIsGround reports whether term contains no variables.
func TermIsGround(term Term) bool {
	return len(TermVars(term, nil)) == 0
}

// FormatTerm renders a term as it would appear in source.
func FormatTerm(term Term) string {
	switch t := term.(type) {
	case Var:
		return t.Name
	case Lit:
		return FormatValue(t.Value)
	case Construct:
		if len(t.Args) == 0 {
			return t.Ctor
		}
		parts := make([]string, len(t.Args))
		for i, a := range t.Args {
			parts[i] = FormatTerm(a)
		}
		return t.Ctor + "(" + strings.Join(parts, ", ") + ")"
	case BinExpr:
		return "(" + FormatTerm(t.Left) + " " + t.Op.String() + " " + FormatTerm(t.Right) + ")"
	}
	return "?"
}
