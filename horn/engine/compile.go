package engine

import (
	"github.com/wbrown/horn/horn"
	"github.com/wbrown/horn/horn/analysis"
	"github.com/wbrown/horn/horn/annotations"
	"github.com/wbrown/horn/horn/check"
	"github.com/wbrown/horn/horn/codegen"
	"github.com/wbrown/horn/horn/ir"
	"github.com/wbrown/horn/horn/runtime"
)

// CompiledProgram is the artifact Compile produces: one predicate function
// per (relation, mode), plus the analysis and lowering results they were
// generated from. It is immutable after compilation and safe for
// concurrent queries.
type CompiledProgram struct {
	Source    *horn.Program
	Modes     *analysis.Result
	IR        *ir.Program
	Code      *codegen.Program
	Collector *annotations.Collector

	opts   Options
	shared *runtime.TableSet // non-nil only under shared tabling
}

// Compile checks, analyzes, lowers, and generates program. A non-empty
// diagnostic slice means the program was rejected; the error return is
// reserved for internal failures, which indicate a defect in the compiler
// rather than in the user program.
func Compile(program *horn.Program, opts Options) (*CompiledProgram, []horn.Diagnostic, error) {
	if err := opts.validate(); err != nil {
		return nil, nil, err
	}
	collector := annotations.NewCollector(opts.AnnotationHandler)

	collector.Event(annotations.CompileInvoked, map[string]interface{}{
		"relations": len(program.Registry.RelationNames()),
		"rules":     len(program.Rules),
		"facts":     len(program.Facts),
		"queries":   len(program.Queries),
	})

	if diags := check.Check(program); len(diags) > 0 {
		return nil, diags, nil
	}
	collector.Event(annotations.CompileChecked, nil)

	modes, diags := analysis.Analyze(program)
	if len(diags) > 0 {
		return nil, diags, nil
	}
	if collector.Enabled() {
		for _, name := range modes.Order {
			rm := modes.Relations[name]
			for _, pm := range rm.Modes {
				collector.Event(annotations.CompileModeDiscovered, map[string]interface{}{
					"relation": name,
					"mode":     pm.Mode.String(),
					"tabled":   rm.Tabled,
				})
			}
		}
	}

	irProg, err := ir.Lower(program, modes)
	if err != nil {
		collector.Event(annotations.ErrorInternal, map[string]interface{}{"error": err.Error()})
		return nil, nil, err
	}
	if collector.Enabled() {
		for _, name := range irProg.Order {
			for _, pred := range irProg.Relations[name].Predicates {
				collector.Event(annotations.CompileRuleLowered, map[string]interface{}{
					"predicate": pred.ID(),
					"rules":     len(pred.Rules),
				})
			}
		}
	}

	code, err := codegen.Generate(program, irProg, collector)
	if err != nil {
		collector.Event(annotations.ErrorInternal, map[string]interface{}{"error": err.Error()})
		return nil, nil, err
	}

	collector.Event(annotations.CompileComplete, map[string]interface{}{
		"predicates": code.PredicateCount(),
	})

	cp := &CompiledProgram{
		Source:    program,
		Modes:     modes,
		IR:        irProg,
		Code:      code,
		Collector: collector,
		opts:      opts,
	}
	if opts.SharedTabling {
		cp.shared = runtime.NewSharedTableSet()
	}
	return cp, nil, nil
}

// InvalidateTables clears the shared memo tables. It is a no-op when each
// query runs its own private set.
func (cp *CompiledProgram) InvalidateTables() {
	if cp.shared != nil {
		cp.shared.InvalidateAll()
	}
}
