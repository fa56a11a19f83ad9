package engine

import (
	"context"
	"sync"

	"github.com/wbrown/horn/horn"
	"github.com/wbrown/horn/horn/analysis"
	"github.com/wbrown/horn/horn/annotations"
	"github.com/wbrown/horn/horn/codec"
	"github.com/wbrown/horn/horn/runtime"
)

// Result holds one query's answers. Tuples are heap copies and remain valid
// after Close; proof trees live in the query's arena and are poisoned when
// the result is closed, so render proofs before closing.
type Result struct {
	Columns   []string
	Tuples    [][]horn.Value
	Satisfied bool
	Failure   *FailureReport

	proofs []*runtime.ProofNode
	arena  *runtime.Arena
	once   sync.Once
}

// Proof returns the derivation tree of the i-th tuple, or nil when proof
// tracking was off.
func (r *Result) Proof(i int) *runtime.ProofNode {
	if i < 0 || i >= len(r.proofs) {
		return nil
	}
	return r.proofs[i]
}

// RenderProof renders the i-th tuple's derivation.
func (r *Result) RenderProof(i int, useColor bool) string {
	node := r.Proof(i)
	if node == nil {
		return ""
	}
	return runtime.NewProofRenderer(useColor).Render(node)
}

// Close releases the query's arena. Idempotent; after Close every
// arena-backed proof node reads as poisoned.
func (r *Result) Close() {
	r.once.Do(func() {
		if r.arena != nil {
			r.arena.Release()
		}
	})
}

// Query evaluates q against the compiled program. Each call runs on its
// own arena; under the default configuration it also gets a fresh private
// table set. The caller owns the result and must Close it after consuming
// tuples and proofs.
func (cp *CompiledProgram) Query(ctx context.Context, q horn.Query) (*Result, error) {
	plan, diags := cp.Modes.PlanFor(q)
	if len(diags) > 0 {
		return nil, diags[0]
	}

	tables := cp.shared
	if tables == nil {
		tables = runtime.NewTableSet()
	}
	arena := runtime.NewArena(cp.opts.ArenaCapacity, cp.opts.MaxArenaBytes)
	qc := runtime.NewQueryContext(ctx, arena, tables, cp.opts.TrackProofs, cp.Collector)

	qc.Annotate(annotations.QueryInvoked, func() map[string]interface{} {
		return map[string]interface{}{"goals": len(q.Goals)}
	})

	res := &Result{Columns: q.Vars(), arena: arena}

	// Multi-pass fixpoint iteration needs a private table set: BeginPass
	// recycles completed entries, which would corrupt a shared cache.
	passes := cp.opts.FixpointPasses
	if tables.Shared() {
		passes = 1
	}

	e := &queryEval{cp: cp, qc: qc, q: q, plan: plan}
	prevCount := -1
	for pass := 1; pass <= passes; pass++ {
		res.Tuples = res.Tuples[:0]
		res.proofs = res.proofs[:0]
		e.seen = make(map[string]bool)
		e.res = res

		err := e.run(0, make(map[string]horn.Value), nil)
		if err != nil {
			qc.AbandonOwned()
			arena.Release()
			qc.Annotate(annotations.ErrorRuntime, func() map[string]interface{} {
				return map[string]interface{}{"error": err.Error()}
			})
			return nil, err
		}
		count := len(res.Tuples)
		qc.Annotate(annotations.QueryPass, func() map[string]interface{} {
			return map[string]interface{}{"pass": pass, "tuples": count}
		})
		if count == prevCount || pass == passes {
			break
		}
		prevCount = count
		tables.BeginPass()
	}

	res.Satisfied = e.found
	if !res.Satisfied && cp.opts.ExplainFailures {
		res.Failure = cp.explainFailure(qc, q, plan, e.deepest, e.deepestEnv)
	}

	qc.Annotate(annotations.QueryComplete, func() map[string]interface{} {
		return map[string]interface{}{"tuples": len(res.Tuples), "satisfied": res.Satisfied}
	})
	return res, nil
}

// queryEval runs a query's goal conjunction left to right in the order the
// plan fixed, branching on each atom goal's solutions. Bindings are cloned
// per branch so sibling solutions stay independent.
type queryEval struct {
	cp   *CompiledProgram
	qc   *runtime.QueryContext
	q    horn.Query
	plan []analysis.QueryGoalPlan

	res   *Result
	seen  map[string]bool
	found bool

	// failure tracking: the furthest goal any binding environment
	// reached, and a sample environment that stalled there.
	deepest    int
	deepestEnv map[string]horn.Value
}

func (e *queryEval) noteDepth(i int, b map[string]horn.Value) {
	if i >= e.deepest {
		e.deepest = i
		e.deepestEnv = cloneBindings(b)
	}
}

func (e *queryEval) run(i int, b map[string]horn.Value, children []*runtime.ProofNode) error {
	if err := e.qc.Cancelled(); err != nil {
		return err
	}
	if i == len(e.q.Goals) {
		return e.solution(b, children)
	}
	e.noteDepth(i, b)

	switch g := e.q.Goals[i].(type) {
	case horn.AtomGoal:
		return e.runAtom(i, g, b, children)

	case horn.UnifyGoal:
		reg := e.cp.Source.Registry
		lv, lok := substTerm(g.Left, b, reg)
		rv, rok := substTerm(g.Right, b, reg)
		switch {
		case lok && rok:
			if !horn.EqualValues(lv, rv) {
				return nil
			}
			return e.run(i+1, b, children)
		case lok:
			b2 := cloneBindings(b)
			if !matchTerm(g.Right, lv, b2, reg) {
				return nil
			}
			return e.run(i+1, b2, children)
		default:
			b2 := cloneBindings(b)
			if !matchTerm(g.Left, rv, b2, reg) {
				return nil
			}
			return e.run(i+1, b2, children)
		}

	case horn.CompareGoal:
		reg := e.cp.Source.Registry
		lv, _ := substTerm(g.Left, b, reg)
		rv, _ := substTerm(g.Right, b, reg)
		li, lok := lv.(int64)
		ri, rok := rv.(int64)
		if !lok || !rok {
			return horn.Errorf(horn.InternalError, "", -1, -1, "comparison over non-integer values")
		}
		cmp := 0
		switch {
		case li < ri:
			cmp = -1
		case li > ri:
			cmp = 1
		}
		if !g.Op.Holds(cmp) {
			return nil
		}
		return e.run(i+1, b, children)
	}
	return horn.Errorf(horn.InternalError, "", -1, -1, "unknown goal kind")
}

func (e *queryEval) runAtom(i int, g horn.AtomGoal, b map[string]horn.Value, children []*runtime.ProofNode) error {
	reg := e.cp.Source.Registry
	pred, ok := e.cp.Code.Predicate(g.Relation, e.plan[i].CalleeMode)
	if !ok {
		return horn.Errorf(horn.InternalError, g.Relation, -1, -1,
			"no compiled predicate for mode %d", e.plan[i].CalleeMode)
	}

	// Bound positions carry ground inputs; free positions receive
	// whatever the callee produces.
	boundVals := make([]horn.Value, 0, len(pred.Mode))
	var freeArgs []horn.Term
	for pos, arg := range g.Args {
		if pred.Mode[pos] == analysis.Bound {
			v, ok := substTerm(arg, b, reg)
			if !ok {
				return horn.Errorf(horn.InternalError, g.Relation, -1, pos+1,
					"bound argument is not ground at run time")
			}
			boundVals = append(boundVals, v)
		} else {
			freeArgs = append(freeArgs, arg)
		}
	}

	if g.Negated {
		found := false
		err := pred.Fn(e.qc, boundVals, func(_ []horn.Value, _ *runtime.ProofNode) bool {
			found = true
			return false
		})
		if err != nil {
			return err
		}
		if found {
			return nil
		}
		if e.qc.TrackProofs {
			node, err := e.qc.Arena.AllocProofNode()
			if err != nil {
				return err
			}
			node.Kind = runtime.ProofNegation
			node.Relation = g.Relation
			node.RuleIndex = -1
			node.Args = boundVals
			children = append(children[:len(children):len(children)], node)
		}
		return e.run(i+1, b, children)
	}

	var nestedErr error
	err := pred.Fn(e.qc, boundVals, func(out []horn.Value, proof *runtime.ProofNode) bool {
		b2 := cloneBindings(b)
		for k, arg := range freeArgs {
			if !matchTerm(arg, out[k], b2, reg) {
				return true // pattern mismatch, next solution
			}
		}
		c2 := children
		if e.qc.TrackProofs && proof != nil {
			c2 = append(children[:len(children):len(children)], proof)
		}
		if err := e.run(i+1, b2, c2); err != nil {
			nestedErr = err
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	return nestedErr
}

// solution records one complete binding environment: the projected tuple,
// deduplicated structurally, plus its derivation root.
func (e *queryEval) solution(b map[string]horn.Value, children []*runtime.ProofNode) error {
	e.found = true
	tuple := make([]horn.Value, len(e.res.Columns))
	for i, name := range e.res.Columns {
		tuple[i] = b[name]
	}
	key := codec.TupleKey(tuple)
	if e.seen[key] {
		return nil
	}
	e.seen[key] = true

	// Copy out of the arena: result tuples outlive Close.
	e.res.Tuples = append(e.res.Tuples, horn.CopyTuple(tuple))

	if e.qc.TrackProofs {
		root, err := e.qc.Arena.AllocProofNode()
		if err != nil {
			return err
		}
		root.Kind = runtime.ProofQuery
		root.Args = e.res.Tuples[len(e.res.Tuples)-1]
		root.Children = children
		e.res.proofs = append(e.res.proofs, root)
	}
	return nil
}

func cloneBindings(b map[string]horn.Value) map[string]horn.Value {
	b2 := make(map[string]horn.Value, len(b)+2)
	for k, v := range b {
		b2[k] = v
	}
	return b2
}

// substTerm evaluates a term to a ground value under b. The second return
// is false when an unbound variable is reached.
func substTerm(t horn.Term, b map[string]horn.Value, reg *horn.Registry) (horn.Value, bool) {
	switch term := t.(type) {
	case horn.Var:
		v, ok := b[term.Name]
		return v, ok
	case horn.Lit:
		return term.Value, true
	case horn.Construct:
		info, ok := reg.Ctor(term.Ctor)
		if !ok {
			return nil, false
		}
		fields := make([]horn.Value, len(term.Args))
		for i, arg := range term.Args {
			fv, ok := substTerm(arg, b, reg)
			if !ok {
				return nil, false
			}
			fields[i] = fv
		}
		if info.Variant {
			return horn.Variant{Type: info.TypeName, Name: term.Ctor, Fields: fields}, true
		}
		return horn.Struct{Type: info.TypeName, Ctor: term.Ctor, Fields: fields}, true
	case horn.BinExpr:
		lv, lok := substTerm(term.Left, b, reg)
		rv, rok := substTerm(term.Right, b, reg)
		if !lok || !rok {
			return nil, false
		}
		li, lok := lv.(int64)
		ri, rok := rv.(int64)
		if !lok || !rok {
			return nil, false
		}
		switch term.Op {
		case horn.OpAdd:
			return li + ri, true
		case horn.OpSub:
			return li - ri, true
		case horn.OpMul:
			return li * ri, true
		case horn.OpDiv:
			if ri == 0 {
				return nil, false
			}
			return li / ri, true
		case horn.OpMod:
			if ri == 0 {
				return nil, false
			}
			return li % ri, true
		}
	}
	return nil, false
}

// matchTerm unifies a term pattern against a ground value, binding any
// unbound variables into b. b is mutated; callers clone before branching.
func matchTerm(t horn.Term, v horn.Value, b map[string]horn.Value, reg *horn.Registry) bool {
	switch term := t.(type) {
	case horn.Var:
		if existing, ok := b[term.Name]; ok {
			return horn.EqualValues(existing, v)
		}
		b[term.Name] = v
		return true
	case horn.Lit:
		return horn.EqualValues(term.Value, v)
	case horn.Construct:
		var fields []horn.Value
		switch val := v.(type) {
		case horn.Struct:
			if val.Ctor != term.Ctor {
				return false
			}
			fields = val.Fields
		case horn.Variant:
			if val.Name != term.Ctor {
				return false
			}
			fields = val.Fields
		default:
			return false
		}
		if len(fields) != len(term.Args) {
			return false
		}
		for i, arg := range term.Args {
			if !matchTerm(arg, fields[i], b, reg) {
				return false
			}
		}
		return true
	case horn.BinExpr:
		ev, ok := substTerm(term, b, reg)
		if !ok {
			return false
		}
		return horn.EqualValues(ev, v)
	}
	return false
}
