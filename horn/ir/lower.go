package ir

import (
	"github.com/wbrown/horn/horn"
	"github.com/wbrown/horn/horn/analysis"
)

// Lower translates every (relation, mode) pair the analyzer required into
// operation lists. Lowering never fails for a program that passed analysis;
// any error it returns is an internal-error-class defect in the compiler.
func Lower(program *horn.Program, modes *analysis.Result) (*Program, error) {
	out := &Program{
		Relations: make(map[string]*Relation),
		Order:     modes.Order,
	}

	for _, name := range modes.Order {
		rm := modes.Relations[name]
		rel, ok := program.Registry.RelationDecl(name)
		if !ok {
			return nil, horn.Errorf(horn.InternalError, name, -1, -1, "lowering undeclared relation")
		}
		lowered := &Relation{Name: name, Tabled: rm.Tabled}
		rules := program.RulesFor(name)
		for _, pm := range rm.Modes {
			pred := &Predicate{
				Relation:  name,
				ModeIndex: pm.Index,
				Mode:      pm.Mode,
				Tabled:    rm.Tabled,
				Arity:     rel.Arity(),
			}
			for _, sched := range pm.Schedules {
				rule, err := lowerRule(program.Registry, modes, rules[sched.RuleIndex], pm, sched)
				if err != nil {
					return nil, err
				}
				pred.Rules = append(pred.Rules, rule)
			}
			lowered.Predicates = append(lowered.Predicates, pred)
		}
		out.Relations[name] = lowered
	}
	return out, nil
}

// lowerer tracks the slot frame of one rule under one head mode.
type lowerer struct {
	reg      *horn.Registry
	modes    *analysis.Result
	relation string
	ruleIdx  int
	varSlots map[string]int
	numSlots int
}

func (l *lowerer) fresh() int {
	s := l.numSlots
	l.numSlots++
	return s
}

func (l *lowerer) internal(format string, args ...interface{}) error {
	return horn.Errorf(horn.InternalError, l.relation, l.ruleIdx, -1, format, args...)
}

func lowerRule(reg *horn.Registry, modes *analysis.Result, rule horn.Rule, pm *analysis.PredicateMode, sched analysis.RuleSchedule) (Rule, error) {
	l := &lowerer{
		reg:      reg,
		modes:    modes,
		relation: pm.Relation,
		ruleIdx:  sched.RuleIndex,
		varSlots: make(map[string]int),
	}

	// Slots [0, NumInputs) receive the caller's bound arguments.
	boundPos := pm.Mode.BoundPositions()
	numInputs := len(boundPos)
	l.numSlots = numInputs

	lowered := Rule{
		RuleIndex: sched.RuleIndex,
		NumInputs: numInputs,
	}

	for j, pos := range boundPos {
		if err := l.match(rule.Head.Args[pos], SlotOperand(j), &lowered.HeadMatch); err != nil {
			return Rule{}, err
		}
	}

	for _, sg := range sched.Goals {
		if err := l.lowerGoal(rule.Body[sg.GoalIndex], sg, &lowered.Body); err != nil {
			return Rule{}, err
		}
	}

	for _, pos := range pm.Mode.FreePositions() {
		op, err := l.ground(rule.Head.Args[pos], &lowered.Body)
		if err != nil {
			return Rule{}, err
		}
		lowered.Out = append(lowered.Out, op)
	}

	lowered.NumSlots = l.numSlots
	return lowered, nil
}

func (l *lowerer) lowerGoal(g horn.Goal, sg analysis.ScheduledGoal, ops *[]Op) error {
	switch goal := g.(type) {
	case horn.AtomGoal:
		return l.lowerAtom(goal, sg, ops)

	case horn.UnifyGoal:
		lg, rg := l.isGround(goal.Left), l.isGround(goal.Right)
		switch {
		case lg && rg:
			left, err := l.ground(goal.Left, ops)
			if err != nil {
				return err
			}
			right, err := l.ground(goal.Right, ops)
			if err != nil {
				return err
			}
			*ops = append(*ops, Unify{Left: left, Right: right})
		case lg:
			src, err := l.ground(goal.Left, ops)
			if err != nil {
				return err
			}
			return l.match(goal.Right, src, ops)
		case rg:
			src, err := l.ground(goal.Right, ops)
			if err != nil {
				return err
			}
			return l.match(goal.Left, src, ops)
		default:
			return l.internal("unification scheduled with no ground side: %s", g.String())
		}
		return nil

	case horn.CompareGoal:
		left, err := l.ground(goal.Left, ops)
		if err != nil {
			return err
		}
		right, err := l.ground(goal.Right, ops)
		if err != nil {
			return err
		}
		*ops = append(*ops, Compare{Op: goal.Op, Left: left, Right: right})
		return nil
	}
	return l.internal("unknown goal kind")
}

func (l *lowerer) lowerAtom(goal horn.AtomGoal, sg analysis.ScheduledGoal, ops *[]Op) error {
	rm, ok := l.modes.Relations[goal.Relation]
	if !ok || sg.CalleeMode < 0 || sg.CalleeMode >= len(rm.Modes) {
		return l.internal("call to %s lacks a resolved mode", goal.Relation)
	}
	calleeMode := rm.Modes[sg.CalleeMode].Mode

	call := Call{
		Relation:  goal.Relation,
		ModeIndex: sg.CalleeMode,
		GoalIndex: sg.GoalIndex,
		Negated:   goal.Negated,
		Tabled:    rm.Tabled,
	}
	for _, pos := range calleeMode.BoundPositions() {
		in, err := l.ground(goal.Args[pos], ops)
		if err != nil {
			return err
		}
		call.In = append(call.In, in)
	}
	freePos := calleeMode.FreePositions()
	for range freePos {
		call.Out = append(call.Out, l.fresh())
	}
	*ops = append(*ops, call)

	// Produced values are matched against the free argument patterns,
	// grounding their variables or failing the path.
	for k, pos := range freePos {
		if err := l.match(goal.Args[pos], SlotOperand(call.Out[k]), ops); err != nil {
			return err
		}
	}
	return nil
}

// match lowers the unification of a term pattern against a ground source
// value.
func (l *lowerer) match(term horn.Term, src Operand, ops *[]Op) error {
	switch t := term.(type) {
	case horn.Var:
		if slot, ok := l.varSlots[t.Name]; ok {
			*ops = append(*ops, Unify{Left: SlotOperand(slot), Right: src})
			return nil
		}
		slot := l.fresh()
		l.varSlots[t.Name] = slot
		*ops = append(*ops, Bind{Dest: slot, Src: src})
		return nil
	case horn.Lit:
		*ops = append(*ops, Unify{Left: ConstOperand(t.Value), Right: src})
		return nil
	case horn.Construct:
		info, ok := l.reg.Ctor(t.Ctor)
		if !ok {
			return l.internal("unknown constructor %s", t.Ctor)
		}
		fields := make([]int, len(t.Args))
		for i := range t.Args {
			fields[i] = l.fresh()
		}
		*ops = append(*ops, Deconstruct{
			Src:     src,
			Type:    info.TypeName,
			Ctor:    t.Ctor,
			Variant: info.Variant,
			Fields:  fields,
		})
		for i, arg := range t.Args {
			if err := l.match(arg, SlotOperand(fields[i]), ops); err != nil {
				return err
			}
		}
		return nil
	case horn.BinExpr:
		if !l.isGround(term) {
			return l.internal("cannot match a value backwards through arithmetic")
		}
		val, err := l.ground(term, ops)
		if err != nil {
			return err
		}
		*ops = append(*ops, Unify{Left: val, Right: src})
		return nil
	}
	return l.internal("unknown term kind")
}

// ground lowers a fully ground term to an operand, emitting construction
// and arithmetic ops as needed.
func (l *lowerer) ground(term horn.Term, ops *[]Op) (Operand, error) {
	switch t := term.(type) {
	case horn.Var:
		slot, ok := l.varSlots[t.Name]
		if !ok {
			return Operand{}, l.internal("variable %s used before it is ground", t.Name)
		}
		return SlotOperand(slot), nil
	case horn.Lit:
		return ConstOperand(t.Value), nil
	case horn.Construct:
		info, ok := l.reg.Ctor(t.Ctor)
		if !ok {
			return Operand{}, l.internal("unknown constructor %s", t.Ctor)
		}
		args := make([]Operand, len(t.Args))
		for i, arg := range t.Args {
			a, err := l.ground(arg, ops)
			if err != nil {
				return Operand{}, err
			}
			args[i] = a
		}
		dest := l.fresh()
		*ops = append(*ops, MakeValue{
			Dest:    dest,
			Type:    info.TypeName,
			Ctor:    t.Ctor,
			Variant: info.Variant,
			Args:    args,
		})
		return SlotOperand(dest), nil
	case horn.BinExpr:
		left, err := l.ground(t.Left, ops)
		if err != nil {
			return Operand{}, err
		}
		right, err := l.ground(t.Right, ops)
		if err != nil {
			return Operand{}, err
		}
		dest := l.fresh()
		*ops = append(*ops, Arith{Dest: dest, Op: t.Op, Left: left, Right: right})
		return SlotOperand(dest), nil
	}
	return Operand{}, l.internal("unknown term kind")
}

func (l *lowerer) isGround(term horn.Term) bool {
	for _, v := range horn.TermVars(term, nil) {
		if _, ok := l.varSlots[v]; !ok {
			return false
		}
	}
	return true
}
