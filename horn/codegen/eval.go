package codegen

import (
	"github.com/wbrown/horn/horn"
	"github.com/wbrown/horn/horn/annotations"
	"github.com/wbrown/horn/horn/codec"
	"github.com/wbrown/horn/horn/ir"
	"github.com/wbrown/horn/horn/runtime"
)

// frame is the slot environment of one rule evaluation path. Frames are
// cloned at every callee solution so sibling solutions never observe each
// other's bindings.
type frame struct {
	slots    []horn.Value
	children []*runtime.ProofNode
}

func newFrame(n int) *frame {
	return &frame{slots: make([]horn.Value, n)}
}

func (f *frame) clone() *frame {
	f2 := &frame{slots: make([]horn.Value, len(f.slots))}
	copy(f2.slots, f.slots)
	if len(f.children) > 0 {
		f2.children = make([]*runtime.ProofNode, len(f.children))
		copy(f2.children, f.children)
	}
	return f2
}

func (f *frame) resolve(o ir.Operand) horn.Value {
	if o.Kind == ir.OperandConst {
		return o.Const
	}
	return f.slots[o.Slot]
}

// evalDirect enumerates fact matches and then each rule in declaration
// order. The returned bool is false when emit asked to stop.
func (p *Program) evalDirect(qc *runtime.QueryContext, pred *Predicate, in []horn.Value, emit runtime.EmitFunc) (bool, error) {
	c := pred.compiled

	if c.facts != nil {
	facts:
		for _, tuple := range c.facts.Tuples {
			for j, pos := range c.boundPos {
				if !horn.EqualValues(tuple[pos], in[j]) {
					continue facts
				}
			}
			out, err := qc.Arena.AllocTuple(len(c.freePos))
			if err != nil {
				return false, err
			}
			for k, pos := range c.freePos {
				out[k] = tuple[pos]
			}
			var proof *runtime.ProofNode
			if qc.TrackProofs {
				proof, err = qc.Arena.AllocProofNode()
				if err != nil {
					return false, err
				}
				proof.Kind = runtime.ProofFact
				proof.Relation = pred.Relation
				proof.RuleIndex = -1
				proof.Args = tuple
			}
			qc.Annotate(annotations.FactMatched, func() map[string]interface{} {
				return map[string]interface{}{"relation": pred.Relation}
			})
			if !emit(out, proof) {
				return false, nil
			}
		}
	}

	for ri := range c.irp.Rules {
		rule := &c.irp.Rules[ri]
		fr := newFrame(rule.NumSlots)
		copy(fr.slots, in)
		cont, err := p.runOps(qc, pred, rule, fr, c.ruleOps[ri], in, emit)
		if err != nil {
			return false, err
		}
		if !cont {
			return false, nil
		}
	}
	return true, nil
}

// runOps executes an operation list over fr. An op failure (unification
// mismatch, comparison miss, divide by zero) abandons the path and returns
// (true, nil): ordinary control flow, try the next alternative. When the
// list is exhausted the rule head is asserted.
func (p *Program) runOps(qc *runtime.QueryContext, pred *Predicate, rule *ir.Rule, fr *frame, ops []ir.Op, in []horn.Value, emit runtime.EmitFunc) (bool, error) {
	for i, op := range ops {
		switch op := op.(type) {
		case ir.Bind:
			fr.slots[op.Dest] = fr.resolve(op.Src)

		case ir.Unify:
			if !horn.EqualValues(fr.resolve(op.Left), fr.resolve(op.Right)) {
				return true, nil
			}

		case ir.MakeValue:
			fields, err := qc.Arena.AllocTuple(len(op.Args))
			if err != nil {
				return false, err
			}
			for k, a := range op.Args {
				fields[k] = fr.resolve(a)
			}
			if op.Variant {
				fr.slots[op.Dest] = horn.Variant{Type: op.Type, Name: op.Ctor, Fields: fields}
			} else {
				fr.slots[op.Dest] = horn.Struct{Type: op.Type, Ctor: op.Ctor, Fields: fields}
			}

		case ir.Deconstruct:
			v := fr.resolve(op.Src)
			var fields []horn.Value
			switch val := v.(type) {
			case horn.Struct:
				if op.Variant || val.Ctor != op.Ctor {
					return true, nil
				}
				fields = val.Fields
			case horn.Variant:
				if !op.Variant || val.Name != op.Ctor {
					return true, nil
				}
				fields = val.Fields
			default:
				return true, nil
			}
			if len(fields) != len(op.Fields) {
				return true, nil
			}
			for k, slot := range op.Fields {
				fr.slots[slot] = fields[k]
			}

		case ir.Compare:
			l, lok := fr.resolve(op.Left).(int64)
			r, rok := fr.resolve(op.Right).(int64)
			if !lok || !rok {
				return false, horn.Errorf(horn.InternalError, pred.Relation, rule.RuleIndex, -1,
					"comparison over non-integer values")
			}
			cmp := 0
			switch {
			case l < r:
				cmp = -1
			case l > r:
				cmp = 1
			}
			if !op.Op.Holds(cmp) {
				return true, nil
			}

		case ir.Arith:
			l, lok := fr.resolve(op.Left).(int64)
			r, rok := fr.resolve(op.Right).(int64)
			if !lok || !rok {
				return false, horn.Errorf(horn.InternalError, pred.Relation, rule.RuleIndex, -1,
					"arithmetic over non-integer values")
			}
			var v int64
			switch op.Op {
			case horn.OpAdd:
				v = l + r
			case horn.OpSub:
				v = l - r
			case horn.OpMul:
				v = l * r
			case horn.OpDiv:
				if r == 0 {
					return true, nil
				}
				v = l / r
			case horn.OpMod:
				if r == 0 {
					return true, nil
				}
				v = l % r
			}
			fr.slots[op.Dest] = v

		case ir.Call:
			return p.runCall(qc, pred, rule, fr, op, ops[i+1:], in, emit)

		default:
			return false, horn.Errorf(horn.InternalError, pred.Relation, rule.RuleIndex, -1,
				"unknown operation %T", op)
		}
	}

	return p.assertHead(qc, pred, rule, fr, in, emit)
}

// runCall enumerates a callee's solutions, running the remaining ops once
// per solution on a cloned frame.
func (p *Program) runCall(qc *runtime.QueryContext, pred *Predicate, rule *ir.Rule, fr *frame, op ir.Call, rest []ir.Op, in []horn.Value, emit runtime.EmitFunc) (bool, error) {
	callee, ok := p.Predicate(op.Relation, op.ModeIndex)
	if !ok {
		return false, horn.Errorf(horn.InternalError, pred.Relation, rule.RuleIndex, -1,
			"call to unemitted predicate %s/%d", op.Relation, op.ModeIndex)
	}

	inVals := make([]horn.Value, len(op.In))
	for k, o := range op.In {
		inVals[k] = fr.resolve(o)
	}

	if op.Negated {
		found := false
		err := callee.Fn(qc, inVals, func(_ []horn.Value, _ *runtime.ProofNode) bool {
			found = true
			return false
		})
		if err != nil {
			return false, err
		}
		if found {
			return true, nil
		}
		if qc.TrackProofs {
			node, err := qc.Arena.AllocProofNode()
			if err != nil {
				return false, err
			}
			node.Kind = runtime.ProofNegation
			node.Relation = op.Relation
			node.RuleIndex = -1
			node.Args = inVals
			fr.children = append(fr.children, node)
		}
		return p.runOps(qc, pred, rule, fr, rest, in, emit)
	}

	stopped := false
	var nestedErr error
	err := callee.Fn(qc, inVals, func(out []horn.Value, proof *runtime.ProofNode) bool {
		f2 := fr.clone()
		for k, slot := range op.Out {
			f2.slots[slot] = out[k]
		}
		if qc.TrackProofs && proof != nil {
			f2.children = append(f2.children, proof)
		}
		cont, err := p.runOps(qc, pred, rule, f2, rest, in, emit)
		if err != nil {
			nestedErr = err
			return false
		}
		if !cont {
			stopped = true
			return false
		}
		return true
	})
	if err != nil {
		return false, err
	}
	if nestedErr != nil {
		return false, nestedErr
	}
	if stopped {
		return false, nil
	}
	return true, nil
}

// assertHead runs when every op of a rule path succeeded: it materializes
// the free head positions and emits one solution.
func (p *Program) assertHead(qc *runtime.QueryContext, pred *Predicate, rule *ir.Rule, fr *frame, in []horn.Value, emit runtime.EmitFunc) (bool, error) {
	out, err := qc.Arena.AllocTuple(len(rule.Out))
	if err != nil {
		return false, err
	}
	for k, o := range rule.Out {
		out[k] = fr.resolve(o)
	}

	var proof *runtime.ProofNode
	if qc.TrackProofs {
		c := pred.compiled
		args, err := qc.Arena.AllocTuple(c.arity)
		if err != nil {
			return false, err
		}
		for j, pos := range c.boundPos {
			args[pos] = in[j]
		}
		for k, pos := range c.freePos {
			args[pos] = out[k]
		}
		proof, err = qc.Arena.AllocProofNode()
		if err != nil {
			return false, err
		}
		proof.Kind = runtime.ProofRule
		proof.Relation = pred.Relation
		proof.RuleIndex = rule.RuleIndex
		proof.Args = args
		proof.Children = fr.children
	}

	qc.Annotate(annotations.RuleFired, func() map[string]interface{} {
		return map[string]interface{}{"relation": pred.Relation, "rule": rule.RuleIndex}
	})
	return emit(out, proof), nil
}

// evalTabled wraps direct evaluation in the tabling checkpoint: consult the
// memo entry for the ground inputs; replay completed results; treat an
// in-progress entry on this task's own stack as the fixpoint cutoff; and
// otherwise claim the entry, run the body to exhaustion, publish, and
// replay.
func (p *Program) evalTabled(qc *runtime.QueryContext, pred *Predicate, in []horn.Value, emit runtime.EmitFunc) (bool, error) {
	key := tableKey(pred, in)
	for {
		claim := qc.Tables.Claim(qc, key)
		switch {
		case claim.State == runtime.Complete:
			qc.Annotate(annotations.TableHit, func() map[string]interface{} {
				return map[string]interface{}{"predicate": pred.ID, "tuples": claim.Results.Len()}
			})
			return replay(qc, claim.Results, emit)

		case claim.Owner:
			qc.Annotate(annotations.TableMiss, func() map[string]interface{} {
				return map[string]interface{}{"predicate": pred.ID}
			})
			rs := runtime.NewResultSet()
			shared := qc.Tables.Shared()
			storeProofs := qc.TrackProofs && !shared
			// The body runs to exhaustion regardless of what the caller
			// consumes: a published entry is always the complete set.
			_, err := p.evalDirect(qc, pred, in, func(out []horn.Value, proof *runtime.ProofNode) bool {
				if shared {
					// Shared entries outlive this query's arena.
					out = horn.CopyTuple(out)
				}
				var pf *runtime.ProofNode
				if storeProofs {
					pf = proof
				}
				rs.Add(codec.TupleKey(out), out, pf)
				return true
			})
			if err != nil {
				qc.Tables.Abandon(qc, key)
				return false, err
			}
			qc.Tables.Complete(qc, key, rs)
			qc.Annotate(annotations.TableComplete, func() map[string]interface{} {
				return map[string]interface{}{"predicate": pred.ID, "tuples": rs.Len()}
			})
			return replay(qc, rs, emit)

		case claim.SameTask:
			// Fixpoint boundary: this key is already being evaluated
			// further up the stack. Contribute the previous pass's
			// answers, or nothing on the first pass.
			qc.Annotate(annotations.TableCutoff, func() map[string]interface{} {
				return map[string]interface{}{"predicate": pred.ID}
			})
			if prev := qc.Tables.Prev(key); prev != nil {
				return replay(qc, prev, emit)
			}
			return true, nil

		default:
			// Another task owns the entry (shared tabling): wait for its
			// complete transition, then claim again.
			qc.Annotate(annotations.TableWait, func() map[string]interface{} {
				return map[string]interface{}{"predicate": pred.ID}
			})
			if err := qc.Tables.Wait(qc.Ctx, claim); err != nil {
				return false, err
			}
		}
	}
}

func replay(qc *runtime.QueryContext, rs *runtime.ResultSet, emit runtime.EmitFunc) (bool, error) {
	for i, tuple := range rs.Tuples {
		var proof *runtime.ProofNode
		if qc.TrackProofs && i < len(rs.Proofs) {
			proof = rs.Proofs[i]
		}
		if !emit(tuple, proof) {
			return false, nil
		}
	}
	return true, nil
}
