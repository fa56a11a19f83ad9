package horn

import "strings"

// Atom is a relation applied to argument terms.
type Atom struct {
	Relation string
	Args     []Term
}

func (a Atom) String() string {
	parts := make([]string, len(a.Args))
	for i, t := range a.Args {
		parts[i] = FormatTerm(t)
	}
	return a.Relation + "(" + strings.Join(parts, ", ") + ")"
}

// Goal is one conjunct of a rule body or query.
type Goal interface {
	isGoal()
	String() string
}

// AtomGoal calls a relation, optionally negated. A negated goal requires
// every variable in its arguments to be ground before it runs.
type AtomGoal struct {
	Atom
	Negated bool
}

// UnifyGoal equates two terms.
type UnifyGoal struct {
	Left  Term
	Right Term
}

// CompareGoal compares two integer-valued terms.
type CompareGoal struct {
	Op    CompareOp
	Left  Term
	Right Term
}

func (AtomGoal) isGoal()    {}
func (UnifyGoal) isGoal()   {}
func (CompareGoal) isGoal() {}

func (g AtomGoal) String() string {
	if g.Negated {
		return "!" + g.Atom.String()
	}
	return g.Atom.String()
}

func (g UnifyGoal) String() string {
	return FormatTerm(g.Left) + " = " + FormatTerm(g.Right)
}

func (g CompareGoal) String() string {
	return FormatTerm(g.Left) + " " + g.Op.String() + " " + FormatTerm(g.Right)
}

// GoalVars appends the variables of a goal to vars, first occurrence order.
func GoalVars(g Goal, vars []string) []string {
	switch goal := g.(type) {
	case AtomGoal:
		for _, arg := range goal.Args {
			vars = TermVars(arg, vars)
		}
	case UnifyGoal:
		vars = TermVars(goal.Left, vars)
		vars = TermVars(goal.Right, vars)
	case CompareGoal:
		vars = TermVars(goal.Left, vars)
		vars = TermVars(goal.Right, vars)
	}
	return vars
}

// Fact is a ground tuple asserted for a relation. Facts are immutable once
// the program is loaded.
type Fact struct {
	Relation string
	Args     []Value
}

// Rule is a head atom derived from a conjunction of body goals.
type Rule struct {
	Head Atom
	Body []Goal
}

// Query is a conjunction of goals evaluated left to right. The binding
// pattern of each goal, given the variables bound by the goals before it,
// seeds mode analysis.
type Query struct {
	Goals []Goal
}

// Vars returns the free variables of the query in first occurrence order.
// These become the columns of the query's result tuples.
func (q Query) Vars() []string {
	var vars []string
	for _, g := range q.Goals {
		vars = GoalVars(g, vars)
	}
	return vars
}

// FactTable is the immutable extension of one relation's source facts,
// in declaration order. It is read-only after program load and safe for
// concurrent readers without synchronization.
type FactTable struct {
	Relation string
	Tuples   [][]Value
}

// Program is the validated, fully elaborated form handed to the compiler
// by the front end: declarations plus facts, rules, and the queries whose
// binding patterns drive mode analysis.
type Program struct {
	Registry *Registry
	Facts    []Fact
	Rules    []Rule
	Queries  []Query
}

// RulesFor returns the rules defining a relation, in declaration order.
func (p *Program) RulesFor(relation string) []Rule {
	var out []Rule
	for _, r := range p.Rules {
		if r.Head.Relation == relation {
			out = append(out, r)
		}
	}
	return out
}

// FactTables groups the program's facts by relation, preserving
// declaration order within each relation.
func (p *Program) FactTables() map[string]*FactTable {
	tables := make(map[string]*FactTable)
	for _, f := range p.Facts {
		t, ok := tables[f.Relation]
		if !ok {
			t = &FactTable{Relation: f.Relation}
			tables[f.Relation] = t
		}
		t.Tuples = append(t.Tuples, f.Args)
	}
	return tables
}
