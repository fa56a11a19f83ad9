// Package codegen emits one native predicate function per (relation, mode)
// the analyzer required. Each function implements exactly its lowered
// operation list, honoring the runtime calling contract: ground inputs in
// signature order, solutions streamed through an emit callback, allocation
// through the query arena, memoization through the tabling engine, and
// optional proof recording.
package codegen

import (
	"github.com/wbrown/horn/horn"
	"github.com/wbrown/horn/horn/analysis"
	"github.com/wbrown/horn/horn/annotations"
	"github.com/wbrown/horn/horn/codec"
	"github.com/wbrown/horn/horn/ir"
	"github.com/wbrown/horn/horn/runtime"
)

// Predicate is one emitted specialization.
type Predicate struct {
	Relation  string
	ModeIndex int
	Mode      analysis.Mode
	ID        string
	Tabled    bool
	Fn        runtime.PredicateFunc

	compiled *compiledPred
}

// compiledPred is the generation-time view the emitted closure captures.
type compiledPred struct {
	irp      *ir.Predicate
	facts    *horn.FactTable
	boundPos []int
	freePos  []int
	arity    int
	ruleOps  [][]ir.Op // head match + body, concatenated per rule
}

// Program is the compiled artifact: every emitted predicate function plus
// the immutable fact tables they scan.
type Program struct {
	Source *horn.Program
	IR     *ir.Program
	Facts  map[string]*horn.FactTable
	Order  []string

	preds map[string][]*Predicate
}

// Predicate resolves an emitted (relation, mode index) pair.
func (p *Program) Predicate(relation string, modeIndex int) (*Predicate, bool) {
	modes, ok := p.preds[relation]
	if !ok || modeIndex < 0 || modeIndex >= len(modes) {
		return nil, false
	}
	return modes[modeIndex], true
}

// PredicateCount returns the number of emitted specializations.
func (p *Program) PredicateCount() int {
	n := 0
	for _, modes := range p.preds {
		n += len(modes)
	}
	return n
}

// Generate emits predicate functions for every lowered specialization.
// Emission order is deterministic: relations sorted by name, modes in
// discovery order, so identical inputs produce identical artifacts.
// Generate never fails for a program that passed analysis; an error is an
// internal defect.
func Generate(source *horn.Program, irProg *ir.Program, collector *annotations.Collector) (*Program, error) {
	p := &Program{
		Source: source,
		IR:     irProg,
		Facts:  source.FactTables(),
		Order:  irProg.Order,
		preds:  make(map[string][]*Predicate),
	}

	for _, name := range irProg.Order {
		rel := irProg.Relations[name]
		for _, irPred := range rel.Predicates {
			pred, err := p.emit(irPred)
			if err != nil {
				return nil, err
			}
			p.preds[name] = append(p.preds[name], pred)
			if collector.Enabled() {
				collector.Event(annotations.CompileEmitted, map[string]interface{}{
					"predicate": pred.ID,
					"rules":     len(irPred.Rules),
					"tabled":    pred.Tabled,
				})
			}
		}
	}
	return p, nil
}

func (p *Program) emit(irPred *ir.Predicate) (*Predicate, error) {
	c := &compiledPred{
		irp:      irPred,
		facts:    p.Facts[irPred.Relation],
		boundPos: irPred.Mode.BoundPositions(),
		freePos:  irPred.Mode.FreePositions(),
		arity:    irPred.Arity,
	}
	for i := range irPred.Rules {
		rule := &irPred.Rules[i]
		ops := make([]ir.Op, 0, len(rule.HeadMatch)+len(rule.Body))
		ops = append(ops, rule.HeadMatch...)
		ops = append(ops, rule.Body...)
		c.ruleOps = append(c.ruleOps, ops)
	}

	pred := &Predicate{
		Relation:  irPred.Relation,
		ModeIndex: irPred.ModeIndex,
		Mode:      irPred.Mode,
		ID:        irPred.ID(),
		Tabled:    irPred.Tabled,
		compiled:  c,
	}
	pred.Fn = func(qc *runtime.QueryContext, in []horn.Value, emit runtime.EmitFunc) error {
		if err := qc.Cancelled(); err != nil {
			return err
		}
		qc.Annotate(annotations.PredicateInvoked, func() map[string]interface{} {
			return map[string]interface{}{"predicate": pred.ID}
		})
		var err error
		if pred.Tabled {
			_, err = p.evalTabled(qc, pred, in, emit)
		} else {
			_, err = p.evalDirect(qc, pred, in, emit)
		}
		return err
	}
	return pred, nil
}

// tableKey composes the memo key: predicate identity plus the canonical
// encoding of the ground inputs.
func tableKey(pred *Predicate, in []horn.Value) string {
	return pred.ID + "\x00" + codec.TupleKey(in)
}
