package horn

import "fmt"

// DiagKind classifies a compile-time diagnostic.
type DiagKind int

const (
	// TypeError is a term/relation signature mismatch. Type errors abort
	// compilation for the whole program.
	TypeError DiagKind = iota
	// ModeError means no ordering of a rule body can ground some goal's
	// required inputs.
	ModeError
	// UnsafeRule means a head variable is never grounded by the body.
	UnsafeRule
	// StratificationError means negation depends cyclically on itself.
	StratificationError
	// InternalError is an invariant violation inside lowering or codegen.
	// It indicates a compiler bug, never a user program defect, and is
	// always fatal.
	InternalError
)

func (k DiagKind) String() string {
	switch k {
	case TypeError:
		return "type error"
	case ModeError:
		return "mode error"
	case UnsafeRule:
		return "unsafe rule"
	case StratificationError:
		return "stratification error"
	case InternalError:
		return "internal error"
	}
	return "unknown error"
}

// Diagnostic is a structured compile-time problem report. The core never
// logs or pretty-prints; rendering belongs to the diagnostics layer.
type Diagnostic struct {
	Kind      DiagKind
	Relation  string   // offending relation, if any
	RuleIndex int      // index among the relation's rules, -1 if not rule-scoped
	ArgPos    int      // 1-based argument position, -1 if not positional
	Message   string
}

// Error lets a Diagnostic travel as an error value.
func (d Diagnostic) Error() string {
	loc := ""
	if d.Relation != "" {
		loc = " in " + d.Relation
		if d.RuleIndex >= 0 {
			loc += fmt.Sprintf(" rule %d", d.RuleIndex)
		}
		if d.ArgPos >= 0 {
			loc += fmt.Sprintf(" argument %d", d.ArgPos)
		}
	}
	return fmt.Sprintf("%s%s: %s", d.Kind, loc, d.Message)
}

// Errorf builds a diagnostic with a formatted message.
func Errorf(kind DiagKind, relation string, ruleIndex, argPos int, format string, args ...interface{}) Diagnostic {
	return Diagnostic{
		Kind:      kind,
		Relation:  relation,
		RuleIndex: ruleIndex,
		ArgPos:    argPos,
		Message:   fmt.Sprintf(format, args...),
	}
}
