// Package check validates an elaborated program against its declarations:
// fact groundness and typing, rule head arity, variable typing through rule
// bodies, and definite-clause safety. It reports structured diagnostics and
// never renders them itself.
package check

import (
	"github.com/wbrown/horn/horn"
)

// Check validates program and returns every diagnostic found. Type errors
// are never partial: a non-empty result aborts compilation for the whole
// program.
func Check(program *horn.Program) []horn.Diagnostic {
	c := &checker{reg: program.Registry}

	ruleIdx := make(map[string]int)
	for _, f := range program.Facts {
		c.checkFact(f)
	}
	for _, r := range program.Rules {
		idx := ruleIdx[r.Head.Relation]
		ruleIdx[r.Head.Relation] = idx + 1
		c.checkRule(r, idx)
	}
	for _, q := range program.Queries {
		c.checkQuery(q)
	}
	return c.diags
}

type checker struct {
	reg   *horn.Registry
	diags []horn.Diagnostic
}

func (c *checker) report(d horn.Diagnostic) {
	c.diags = append(c.diags, d)
}

func (c *checker) checkFact(f horn.Fact) {
	rel, ok := c.reg.RelationDecl(f.Relation)
	if !ok {
		c.report(horn.Errorf(horn.TypeError, f.Relation, -1, -1, "unknown relation"))
		return
	}
	if len(f.Args) != rel.Arity() {
		c.report(horn.Errorf(horn.TypeError, f.Relation, -1, -1,
			"fact has %d arguments, expected %d", len(f.Args), rel.Arity()))
		return
	}
	for i, arg := range f.Args {
		if ty, ok := c.valueType(arg); !ok {
			c.report(horn.Errorf(horn.TypeError, f.Relation, -1, i+1, "malformed value"))
		} else if ty != rel.Signature[i] {
			c.report(horn.Errorf(horn.TypeError, f.Relation, -1, i+1,
				"fact argument has type %s, expected %s", ty, rel.Signature[i]))
		}
	}
}

func (c *checker) checkRule(r horn.Rule, ruleIndex int) {
	rel, ok := c.reg.RelationDecl(r.Head.Relation)
	if !ok {
		c.report(horn.Errorf(horn.TypeError, r.Head.Relation, ruleIndex, -1, "unknown relation"))
		return
	}
	if len(r.Head.Args) != rel.Arity() {
		c.report(horn.Errorf(horn.TypeError, r.Head.Relation, ruleIndex, -1,
			"rule head has %d arguments, expected %d", len(r.Head.Args), rel.Arity()))
		return
	}

	// Variable types flow from the head pattern through the body goals.
	// Arithmetic is not invertible, so it may not appear in a head pattern.
	env := make(map[string]horn.TypeRef)
	for i, arg := range r.Head.Args {
		if containsArith(arg) {
			c.report(horn.Errorf(horn.TypeError, r.Head.Relation, ruleIndex, i+1,
				"arithmetic expression in rule head"))
			continue
		}
		c.bindTermType(arg, rel.Signature[i], env, r.Head.Relation, ruleIndex, i+1)
	}
	for _, g := range r.Body {
		c.checkGoal(g, env, r.Head.Relation, ruleIndex)
	}

	// Definite-clause safety: every head variable must appear in the body.
	var bodyVars []string
	for _, g := range r.Body {
		bodyVars = horn.GoalVars(g, bodyVars)
	}
	var headVars []string
	for _, arg := range r.Head.Args {
		headVars = horn.TermVars(arg, headVars)
	}
	for _, hv := range headVars {
		if !containsVar(bodyVars, hv) {
			c.report(horn.Errorf(horn.UnsafeRule, r.Head.Relation, ruleIndex, -1,
				"head variable %s does not appear in the body", hv))
		}
	}
}

func (c *checker) checkQuery(q horn.Query) {
	env := make(map[string]horn.TypeRef)
	for _, g := range q.Goals {
		c.checkGoal(g, env, "", -1)
	}
}

func (c *checker) checkGoal(g horn.Goal, env map[string]horn.TypeRef, relation string, ruleIndex int) {
	switch goal := g.(type) {
	case horn.AtomGoal:
		rel, ok := c.reg.RelationDecl(goal.Relation)
		if !ok {
			c.report(horn.Errorf(horn.TypeError, goal.Relation, ruleIndex, -1, "unknown relation"))
			return
		}
		if len(goal.Args) != rel.Arity() {
			c.report(horn.Errorf(horn.TypeError, goal.Relation, ruleIndex, -1,
				"goal has %d arguments, expected %d", len(goal.Args), rel.Arity()))
			return
		}
		for i, arg := range goal.Args {
			c.bindTermType(arg, rel.Signature[i], env, relation, ruleIndex, i+1)
		}
	case horn.UnifyGoal:
		lt, lok := c.inferTermType(goal.Left, env)
		rt, rok := c.inferTermType(goal.Right, env)
		switch {
		case lok && rok:
			if lt != rt {
				c.report(horn.Errorf(horn.TypeError, relation, ruleIndex, -1,
					"cannot unify %s with %s (%s vs %s)",
					horn.FormatTerm(goal.Left), horn.FormatTerm(goal.Right), lt, rt))
			}
		case lok:
			c.bindTermType(goal.Right, lt, env, relation, ruleIndex, -1)
		case rok:
			c.bindTermType(goal.Left, rt, env, relation, ruleIndex, -1)
		default:
			// Both sides untyped so far; the mode analyzer decides whether
			// an ordering exists that grounds one side first.
		}
	case horn.CompareGoal:
		c.bindTermType(goal.Left, horn.TypeInt, env, relation, ruleIndex, -1)
		c.bindTermType(goal.Right, horn.TypeInt, env, relation, ruleIndex, -1)
	}
}

// bindTermType checks term against an expected type, recording types for
// any variables encountered.
func (c *checker) bindTermType(term horn.Term, expected horn.TypeRef, env map[string]horn.TypeRef, relation string, ruleIndex, argPos int) {
	switch t := term.(type) {
	case horn.Var:
		if existing, ok := env[t.Name]; ok {
			if existing != expected {
				c.report(horn.Errorf(horn.TypeError, relation, ruleIndex, argPos,
					"variable %s has conflicting types %s and %s", t.Name, existing, expected))
			}
			return
		}
		env[t.Name] = expected
	case horn.Lit:
		ty, ok := c.valueType(t.Value)
		if !ok {
			c.report(horn.Errorf(horn.TypeError, relation, ruleIndex, argPos, "malformed literal"))
			return
		}
		if ty != expected {
			c.report(horn.Errorf(horn.TypeError, relation, ruleIndex, argPos,
				"literal %s has type %s, expected %s", horn.FormatTerm(t), ty, expected))
		}
	case horn.Construct:
		info, ok := c.reg.Ctor(t.Ctor)
		if !ok {
			c.report(horn.Errorf(horn.TypeError, relation, ruleIndex, argPos,
				"unknown constructor %s", t.Ctor))
			return
		}
		if info.Result != expected {
			c.report(horn.Errorf(horn.TypeError, relation, ruleIndex, argPos,
				"constructor %s builds %s, expected %s", t.Ctor, info.Result, expected))
			return
		}
		if len(t.Args) != len(info.Fields) {
			c.report(horn.Errorf(horn.TypeError, relation, ruleIndex, argPos,
				"constructor %s expects %d arguments, got %d", t.Ctor, len(info.Fields), len(t.Args)))
			return
		}
		for i, arg := range t.Args {
			c.bindTermType(arg, info.Fields[i].Type, env, relation, ruleIndex, argPos)
		}
	case horn.BinExpr:
		if expected != horn.TypeInt {
			c.report(horn.Errorf(horn.TypeError, relation, ruleIndex, argPos,
				"arithmetic expression has type Int, expected %s", expected))
		}
		c.bindTermType(t.Left, horn.TypeInt, env, relation, ruleIndex, argPos)
		c.bindTermType(t.Right, horn.TypeInt, env, relation, ruleIndex, argPos)
	}
}

// inferTermType returns the type of a term when it is determined by the
// term itself or by variables already typed.
func (c *checker) inferTermType(term horn.Term, env map[string]horn.TypeRef) (horn.TypeRef, bool) {
	switch t := term.(type) {
	case horn.Var:
		ty, ok := env[t.Name]
		return ty, ok
	case horn.Lit:
		return c.valueType(t.Value)
	case horn.Construct:
		info, ok := c.reg.Ctor(t.Ctor)
		if !ok {
			return "", false
		}
		return info.Result, true
	case horn.BinExpr:
		return horn.TypeInt, true
	}
	return "", false
}

func (c *checker) valueType(v horn.Value) (horn.TypeRef, bool) {
	switch val := v.(type) {
	case int64:
		return horn.TypeInt, true
	case string:
		return horn.TypeString, true
	case bool:
		return horn.TypeBool, true
	case horn.Struct:
		if _, ok := c.reg.Type(val.Type); !ok {
			return "", false
		}
		return horn.TypeRef(val.Type), true
	case horn.Variant:
		if _, ok := c.reg.Type(val.Type); !ok {
			return "", false
		}
		return horn.TypeRef(val.Type), true
	}
	return "", false
}

func containsArith(term horn.Term) bool {
	switch t := term.(type) {
	case horn.BinExpr:
		return true
	case horn.Construct:
		for _, a := range t.Args {
			if containsArith(a) {
				return true
			}
		}
	}
	return false
}

func containsVar(vars []string, name string) bool {
	for _, v := range vars {
		if v == name {
			return true
		}
	}
	return false
}
