package analysis

import (
	"sort"

	"github.com/wbrown/horn/horn"
)

// ScheduledGoal is one body goal placed in execution order. CalleeMode is
// the index into the callee's mode list for atom goals, -1 otherwise.
type ScheduledGoal struct {
	GoalIndex  int
	CalleeMode int
}

// RuleSchedule is the evaluation order chosen for one rule under one head
// mode.
type RuleSchedule struct {
	RuleIndex int
	Goals     []ScheduledGoal
}

// PredicateMode is one required specialization of a relation: the binding
// pattern plus a consistent body schedule for every defining rule.
type PredicateMode struct {
	Relation  string
	Index     int // position in the relation's mode list
	Mode      Mode
	Schedules []RuleSchedule
}

// RelationModes collects everything the later stages need to know about
// one relation.
type RelationModes struct {
	Name   string
	Tabled bool
	Modes  []*PredicateMode // discovery order
}

// QueryGoalPlan records the mode resolved for one query goal.
type QueryGoalPlan struct {
	GoalIndex  int
	CalleeMode int // -1 for non-atom goals
}

// Result is the full mode assignment for a program.
type Result struct {
	Relations  map[string]*RelationModes
	Order      []string          // relations with at least one mode, sorted
	QueryPlans [][]QueryGoalPlan // one plan per program query
}

// ModeIndex returns the index of mode within relation's mode list, or -1.
func (r *Result) ModeIndex(relation string, mode Mode) int {
	rm, ok := r.Relations[relation]
	if !ok {
		return -1
	}
	for _, pm := range rm.Modes {
		if pm.Mode.Equal(mode) {
			return pm.Index
		}
	}
	return -1
}

// Analyze computes the minimal set of modes required by the program's
// queries, a body schedule for every (relation, mode, rule), tabling
// requirements, and stratification diagnostics. The work-set is a FIFO over
// (relation, mode) pairs seeded from query goals; iteration reaches a fixed
// point when no new pair is discovered.
func Analyze(p *horn.Program) (*Result, []horn.Diagnostic) {
	graph := buildCallGraph(p)
	sccs := graph.condense()

	var diags []horn.Diagnostic
	diags = append(diags, graph.stratify(sccs)...)

	a := &analyzer{
		program: p,
		result: &Result{
			Relations: make(map[string]*RelationModes),
		},
		rules: make(map[string][]horn.Rule),
	}
	for _, name := range p.Registry.RelationNames() {
		a.result.Relations[name] = &RelationModes{
			Name:   name,
			Tabled: graph.recursive(sccs, name),
		}
		a.rules[name] = p.RulesFor(name)
	}

	// Seed the work-set from query goals, left to right, accumulating the
	// variables each goal grounds for the goals after it.
	for _, q := range p.Queries {
		plan, qdiags := a.planQuery(q)
		diags = append(diags, qdiags...)
		a.result.QueryPlans = append(a.result.QueryPlans, plan)
	}

	// Fixed point: draining the queue may enqueue further pairs.
	for len(a.queue) > 0 {
		item := a.queue[0]
		a.queue = a.queue[1:]
		diags = append(diags, a.analyzeMode(item)...)
	}

	for name, rm := range a.result.Relations {
		if len(rm.Modes) > 0 {
			a.result.Order = append(a.result.Order, name)
		}
	}
	sort.Strings(a.result.Order)

	if len(diags) > 0 {
		return nil, diags
	}
	return a.result, nil
}

type analyzer struct {
	program *horn.Program
	result  *Result
	rules   map[string][]horn.Rule
	queue   []*PredicateMode
}

// request registers a (relation, mode) requirement, enqueueing it for body
// analysis the first time it is seen, and returns its mode index.
func (a *analyzer) request(relation string, mode Mode) int {
	rm := a.result.Relations[relation]
	for _, pm := range rm.Modes {
		if pm.Mode.Equal(mode) {
			return pm.Index
		}
	}
	pm := &PredicateMode{
		Relation: relation,
		Index:    len(rm.Modes),
		Mode:     mode,
	}
	rm.Modes = append(rm.Modes, pm)
	a.queue = append(a.queue, pm)
	return pm.Index
}

// planQuery resolves the mode of each query goal in declaration order.
// Query goals are not reordered; each must be runnable given the variables
// bound by the goals before it.
func (a *analyzer) planQuery(q horn.Query) ([]QueryGoalPlan, []horn.Diagnostic) {
	bound := make(map[string]bool)
	plan := make([]QueryGoalPlan, 0, len(q.Goals))
	for i, g := range q.Goals {
		if !goalRunnable(g, bound) {
			return nil, []horn.Diagnostic{horn.Errorf(horn.ModeError, goalRelation(g), -1, -1,
				"query goal %s has unbound inputs", g.String())}
		}
		calleeMode := -1
		if atom, ok := g.(horn.AtomGoal); ok {
			calleeMode = a.request(atom.Relation, atomMode(atom, bound))
		}
		bindGoalVars(g, bound)
		plan = append(plan, QueryGoalPlan{GoalIndex: i, CalleeMode: calleeMode})
	}
	return plan, nil
}

// analyzeMode schedules every defining rule of one (relation, mode) pair,
// requesting callee modes as the schedule fixes each goal's binding
// pattern.
func (a *analyzer) analyzeMode(pm *PredicateMode) []horn.Diagnostic {
	var diags []horn.Diagnostic
	rel, ok := a.program.Registry.RelationDecl(pm.Relation)
	if !ok {
		return []horn.Diagnostic{horn.Errorf(horn.InternalError, pm.Relation, -1, -1,
			"mode requested for undeclared relation")}
	}
	if len(pm.Mode) != rel.Arity() {
		return []horn.Diagnostic{horn.Errorf(horn.InternalError, pm.Relation, -1, -1,
			"mode %s does not match arity %d", pm.Mode, rel.Arity())}
	}

	for ruleIdx, rule := range a.rules[pm.Relation] {
		sched, sdiags := a.scheduleRule(pm, rule, ruleIdx)
		if len(sdiags) > 0 {
			diags = append(diags, sdiags...)
			continue
		}
		pm.Schedules = append(pm.Schedules, sched)
	}
	return diags
}

// scheduleRule picks an execution order for rule's body goals under the
// head mode: at each step the most constrained runnable goal is chosen, so
// cheap filters run before enumerating calls, and a callee mode is
// requested for every placed atom.
func (a *analyzer) scheduleRule(pm *PredicateMode, rule horn.Rule, ruleIdx int) (RuleSchedule, []horn.Diagnostic) {
	bound := make(map[string]bool)
	for i, b := range pm.Mode {
		if b == Bound {
			for _, v := range horn.TermVars(rule.Head.Args[i], nil) {
				bound[v] = true
			}
		}
	}

	remaining := make([]int, len(rule.Body))
	for i := range remaining {
		remaining[i] = i
	}

	sched := RuleSchedule{RuleIndex: ruleIdx}
	for len(remaining) > 0 {
		pick := a.pickGoal(rule, remaining, bound)
		if pick < 0 {
			g := rule.Body[remaining[0]]
			return RuleSchedule{}, []horn.Diagnostic{horn.Errorf(horn.ModeError, pm.Relation, ruleIdx, -1,
				"no goal ordering grounds the inputs of %s under mode %s", g.String(), pm.Mode)}
		}
		goalIdx := remaining[pick]
		remaining = append(remaining[:pick], remaining[pick+1:]...)

		g := rule.Body[goalIdx]
		calleeMode := -1
		if atom, ok := g.(horn.AtomGoal); ok {
			mode := atomMode(atom, bound)
			if atom.Negated {
				mode = AllBoundMode(len(atom.Args))
			}
			calleeMode = a.request(atom.Relation, mode)
		}
		bindGoalVars(g, bound)
		sched.Goals = append(sched.Goals, ScheduledGoal{GoalIndex: goalIdx, CalleeMode: calleeMode})
	}

	// A head variable still free after the whole body means the rule can
	// never assert its head in this mode.
	for i, b := range pm.Mode {
		if b == Bound {
			continue
		}
		for _, v := range horn.TermVars(rule.Head.Args[i], nil) {
			if !bound[v] {
				return RuleSchedule{}, []horn.Diagnostic{horn.Errorf(horn.UnsafeRule, pm.Relation, ruleIdx, i+1,
					"head variable %s is never grounded by the body", v)}
			}
		}
	}
	return sched, nil
}

// pickGoal returns the index within remaining of the goal to run next, or
// -1 when nothing is runnable. Preference order: unifications and
// comparisons that are ready, then negated atoms, then the positive atom
// with the most bound arguments. Ties resolve to declaration order.
func (a *analyzer) pickGoal(rule horn.Rule, remaining []int, bound map[string]bool) int {
	bestAtom, bestBound := -1, -1
	for i, goalIdx := range remaining {
		g := rule.Body[goalIdx]
		if !goalRunnable(g, bound) {
			continue
		}
		switch goal := g.(type) {
		case horn.UnifyGoal, horn.CompareGoal:
			return i
		case horn.AtomGoal:
			if goal.Negated {
				return i
			}
			n := atomMode(goal, bound).BoundCount()
			if n > bestBound {
				bestAtom, bestBound = i, n
			}
		}
	}
	return bestAtom
}

// atomMode derives the binding pattern of an atom goal from the currently
// bound variables: a position is Bound when its term is fully ground.
func atomMode(atom horn.AtomGoal, bound map[string]bool) Mode {
	mode := make(Mode, len(atom.Args))
	for i, arg := range atom.Args {
		if termGround(arg, bound) {
			mode[i] = Bound
		}
	}
	return mode
}

// goalRunnable reports whether a goal's required-ground inputs are bound.
//   - Comparisons need both sides ground.
//   - Unifications need one ground side to drive the other.
//   - Negated atoms need every argument ground.
//   - Positive atoms are always runnable, except that an argument
//     containing arithmetic must be ground: a produced value cannot be
//     matched backwards through an expression.
func goalRunnable(g horn.Goal, bound map[string]bool) bool {
	switch goal := g.(type) {
	case horn.CompareGoal:
		return termGround(goal.Left, bound) && termGround(goal.Right, bound)
	case horn.UnifyGoal:
		return termGround(goal.Left, bound) || termGround(goal.Right, bound)
	case horn.AtomGoal:
		for _, arg := range goal.Args {
			if goal.Negated && !termGround(arg, bound) {
				return false
			}
			if termHasArith(arg) && !termGround(arg, bound) {
				return false
			}
		}
		return true
	}
	return false
}

// bindGoalVars marks every variable of a goal bound after it runs. A
// positive atom grounds all its argument variables: produced values are
// matched against the argument patterns, which either grounds their
// variables or fails the path.
func bindGoalVars(g horn.Goal, bound map[string]bool) {
	for _, v := range horn.GoalVars(g, nil) {
		bound[v] = true
	}
}

func termGround(t horn.Term, bound map[string]bool) bool {
	for _, v := range horn.TermVars(t, nil) {
		if !bound[v] {
			return false
		}
	}
	return true
}

func termHasArith(t horn.Term) bool {
	switch term := t.(type) {
	case horn.BinExpr:
		return true
	case horn.Construct:
		for _, arg := range term.Args {
			if termHasArith(arg) {
				return true
			}
		}
	}
	return false
}

func goalRelation(g horn.Goal) string {
	if atom, ok := g.(horn.AtomGoal); ok {
		return atom.Relation
	}
	return ""
}
