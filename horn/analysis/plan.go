package analysis

import (
	"github.com/wbrown/horn/horn"
)

// PlanFor resolves each goal of an ad-hoc query against the modes this
// result already contains. Unlike the compile-time seeding pass, no new
// modes can be requested here: a goal whose binding pattern was never
// compiled is a mode error.
func (r *Result) PlanFor(q horn.Query) ([]QueryGoalPlan, []horn.Diagnostic) {
	bound := make(map[string]bool)
	plan := make([]QueryGoalPlan, 0, len(q.Goals))
	for i, g := range q.Goals {
		if !goalRunnable(g, bound) {
			return nil, []horn.Diagnostic{horn.Errorf(horn.ModeError, goalRelation(g), -1, -1,
				"query goal %s has unbound inputs", g.String())}
		}
		calleeMode := -1
		if atom, ok := g.(horn.AtomGoal); ok {
			mode := atomMode(atom, bound)
			calleeMode = r.ModeIndex(atom.Relation, mode)
			if calleeMode < 0 {
				return nil, []horn.Diagnostic{horn.Errorf(horn.ModeError, atom.Relation, -1, -1,
					"query requires mode %s of %s, which was not compiled", mode, atom.Relation)}
			}
		}
		bindGoalVars(g, bound)
		plan = append(plan, QueryGoalPlan{GoalIndex: i, CalleeMode: calleeMode})
	}
	return plan, nil
}

// GoalMode reports the binding pattern an atom goal presents given the
// variables already bound.
func GoalMode(atom horn.AtomGoal, bound map[string]bool) Mode {
	return atomMode(atom, bound)
}
