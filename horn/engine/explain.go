package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/wbrown/horn/horn"
	"github.com/wbrown/horn/horn/analysis"
	"github.com/wbrown/horn/horn/runtime"
)

// FailureReport explains a failed query: the goal evaluation stalled on,
// the bindings in effect there, and for an atom goal every rule whose head
// structurally matches, each with the specific condition it failed on.
type FailureReport struct {
	GoalIndex  int
	Goal       string
	Relation   string
	Bindings   map[string]horn.Value
	FactsTried int
	Candidates []CandidateRule
}

// CandidateRule is one defining rule that could have matched the failed
// goal but did not.
type CandidateRule struct {
	RuleIndex int
	Head      string
	Reason    string
}

// explainFailure reconstructs why the query produced no solutions, starting
// from the deepest goal any binding environment reached.
func (cp *CompiledProgram) explainFailure(qc *runtime.QueryContext, q horn.Query, plan []analysis.QueryGoalPlan, goalIdx int, env map[string]horn.Value) *FailureReport {
	if goalIdx >= len(q.Goals) {
		return nil
	}
	goal := q.Goals[goalIdx]
	report := &FailureReport{
		GoalIndex: goalIdx,
		Goal:      goal.String(),
		Bindings:  env,
	}

	atom, ok := goal.(horn.AtomGoal)
	if !ok {
		report.Candidates = []CandidateRule{{RuleIndex: -1, Reason: "condition does not hold under these bindings"}}
		return report
	}
	report.Relation = atom.Relation
	if atom.Negated {
		report.Candidates = []CandidateRule{{RuleIndex: -1, Reason: "negated goal has a solution"}}
		return report
	}

	reg := cp.Source.Registry
	pm := cp.predicateMode(atom.Relation, plan[goalIdx].CalleeMode)
	if pm == nil {
		return report
	}

	// Ground input values at the bound positions, per the mode the query
	// plan resolved for this goal.
	inputs := make(map[int]horn.Value)
	for pos, arg := range atom.Args {
		if pm.Mode[pos] == analysis.Bound {
			if v, ok := substTerm(arg, env, reg); ok {
				inputs[pos] = v
			}
		}
	}

	// Facts first: count the ones whose bound positions agree.
	if table, ok := cp.Code.Facts[atom.Relation]; ok && table != nil {
		report.FactsTried = len(table.Tuples)
	}

	rules := cp.Source.RulesFor(atom.Relation)
	for _, sched := range pm.Schedules {
		rule := rules[sched.RuleIndex]
		cand := CandidateRule{RuleIndex: sched.RuleIndex, Head: rule.Head.String()}

		headEnv := make(map[string]horn.Value)
		matched := true
		for pos, v := range inputs {
			if !matchTerm(rule.Head.Args[pos], v, headEnv, reg) {
				matched = false
				break
			}
		}
		if !matched {
			continue // head cannot structurally match the goal
		}

		cand.Reason = cp.firstFailingGoal(qc, rule, sched, headEnv)
		report.Candidates = append(report.Candidates, cand)
	}
	return report
}

// firstFailingGoal walks a rule body in its scheduled order, extending the
// head bindings goal by goal, and names the first goal that yields nothing.
func (cp *CompiledProgram) firstFailingGoal(qc *runtime.QueryContext, rule horn.Rule, sched analysis.RuleSchedule, headEnv map[string]horn.Value) string {
	envs := []map[string]horn.Value{headEnv}
	for _, sg := range sched.Goals {
		goal := rule.Body[sg.GoalIndex]
		next, err := cp.extendGoal(qc, goal, sg.CalleeMode, envs)
		if err != nil {
			return fmt.Sprintf("body goal %s failed: %v", goal.String(), err)
		}
		if len(next) == 0 {
			return fmt.Sprintf("body goal %s yields no solutions", goal.String())
		}
		envs = next
	}
	return "body succeeds only for already-derived tuples"
}

// extendGoal returns every binding environment reachable from envs through
// one more body goal.
func (cp *CompiledProgram) extendGoal(qc *runtime.QueryContext, g horn.Goal, calleeMode int, envs []map[string]horn.Value) ([]map[string]horn.Value, error) {
	reg := cp.Source.Registry
	var out []map[string]horn.Value

	for _, b := range envs {
		switch goal := g.(type) {
		case horn.AtomGoal:
			pred, ok := cp.Code.Predicate(goal.Relation, calleeMode)
			if !ok {
				continue
			}
			boundVals := make([]horn.Value, 0, len(pred.Mode))
			var freeArgs []horn.Term
			ground := true
			for pos, arg := range goal.Args {
				if pred.Mode[pos] == analysis.Bound {
					v, ok := substTerm(arg, b, reg)
					if !ok {
						ground = false
						break
					}
					boundVals = append(boundVals, v)
				} else {
					freeArgs = append(freeArgs, arg)
				}
			}
			if !ground {
				continue
			}
			if goal.Negated {
				found := false
				err := pred.Fn(qc, boundVals, func(_ []horn.Value, _ *runtime.ProofNode) bool {
					found = true
					return false
				})
				if err != nil {
					return nil, err
				}
				if !found {
					out = append(out, b)
				}
				continue
			}
			err := pred.Fn(qc, boundVals, func(vals []horn.Value, _ *runtime.ProofNode) bool {
				b2 := cloneBindings(b)
				for k, arg := range freeArgs {
					if !matchTerm(arg, vals[k], b2, reg) {
						return true
					}
				}
				out = append(out, b2)
				return true
			})
			if err != nil {
				return nil, err
			}

		case horn.UnifyGoal:
			lv, lok := substTerm(goal.Left, b, reg)
			rv, rok := substTerm(goal.Right, b, reg)
			switch {
			case lok && rok:
				if horn.EqualValues(lv, rv) {
					out = append(out, b)
				}
			case lok:
				b2 := cloneBindings(b)
				if matchTerm(goal.Right, lv, b2, reg) {
					out = append(out, b2)
				}
			case rok:
				b2 := cloneBindings(b)
				if matchTerm(goal.Left, rv, b2, reg) {
					out = append(out, b2)
				}
			}

		case horn.CompareGoal:
			lv, _ := substTerm(goal.Left, b, reg)
			rv, _ := substTerm(goal.Right, b, reg)
			li, lok := lv.(int64)
			ri, rok := rv.(int64)
			if !lok || !rok {
				continue
			}
			cmp := 0
			switch {
			case li < ri:
				cmp = -1
			case li > ri:
				cmp = 1
			}
			if goal.Op.Holds(cmp) {
				out = append(out, b)
			}
		}
	}
	return out, nil
}

func (cp *CompiledProgram) predicateMode(relation string, modeIndex int) *analysis.PredicateMode {
	rm, ok := cp.Modes.Relations[relation]
	if !ok || modeIndex < 0 || modeIndex >= len(rm.Modes) {
		return nil
	}
	return rm.Modes[modeIndex]
}

// RenderFailure formats a failure report for terminal display.
func RenderFailure(report *FailureReport, useColor bool) string {
	if report == nil {
		return ""
	}
	paint := func(s string, attr color.Attribute) string {
		if !useColor {
			return s
		}
		return color.New(attr).Sprint(s)
	}

	var b strings.Builder
	b.WriteString(paint("no", color.FgRed))
	b.WriteString(fmt.Sprintf(": goal %s has no solutions\n", report.Goal))

	if len(report.Bindings) > 0 {
		names := make([]string, 0, len(report.Bindings))
		for name := range report.Bindings {
			names = append(names, name)
		}
		sort.Strings(names)
		b.WriteString("  with ")
		for i, name := range names {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(fmt.Sprintf("%s = %s", name, horn.FormatValue(report.Bindings[name])))
		}
		b.WriteByte('\n')
	}

	if report.Relation != "" {
		b.WriteString(fmt.Sprintf("  %d facts tried, none matched\n", report.FactsTried))
	}
	if len(report.Candidates) == 0 && report.Relation != "" {
		b.WriteString("  no rule head matches this goal\n")
		return b.String()
	}
	for _, c := range report.Candidates {
		if c.RuleIndex >= 0 {
			b.WriteString(fmt.Sprintf("  %s %s [clause %d]: %s\n",
				paint("rule", color.FgYellow), c.Head, c.RuleIndex, c.Reason))
		} else {
			b.WriteString(fmt.Sprintf("  %s\n", c.Reason))
		}
	}
	return b.String()
}
