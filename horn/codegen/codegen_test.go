package codegen

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/horn/horn"
	"github.com/wbrown/horn/horn/analysis"
	"github.com/wbrown/horn/horn/annotations"
	"github.com/wbrown/horn/horn/ir"
	"github.com/wbrown/horn/horn/runtime"
)

func v(name string) horn.Term { return horn.Var{Name: name} }

func atom(rel string, args ...horn.Term) horn.AtomGoal {
	return horn.AtomGoal{Atom: horn.Atom{Relation: rel, Args: args}}
}

func generateAncestor(t *testing.T) *Program {
	t.Helper()
	reg := horn.NewRegistry()
	sig := []horn.TypeRef{horn.TypeString, horn.TypeString}
	require.NoError(t, reg.AddRelation(&horn.Relation{Name: "parent", Signature: sig}))
	require.NoError(t, reg.AddRelation(&horn.Relation{Name: "ancestor", Signature: sig}))
	p := &horn.Program{
		Registry: reg,
		Facts: []horn.Fact{
			{Relation: "parent", Args: []horn.Value{"alice", "bob"}},
			{Relation: "parent", Args: []horn.Value{"bob", "carol"}},
		},
		Rules: []horn.Rule{
			{
				Head: horn.Atom{Relation: "ancestor", Args: []horn.Term{v("X"), v("Y")}},
				Body: []horn.Goal{atom("parent", v("X"), v("Y"))},
			},
			{
				Head: horn.Atom{Relation: "ancestor", Args: []horn.Term{v("X"), v("Z")}},
				Body: []horn.Goal{atom("parent", v("X"), v("Y")), atom("ancestor", v("Y"), v("Z"))},
			},
		},
		Queries: []horn.Query{
			{Goals: []horn.Goal{atom("ancestor", horn.Lit{Value: "alice"}, v("Q"))}},
		},
	}
	modes, diags := analysis.Analyze(p)
	require.Empty(t, diags)
	irp, err := ir.Lower(p, modes)
	require.NoError(t, err)
	prog, err := Generate(p, irp, annotations.NewCollector(nil))
	require.NoError(t, err)
	return prog
}

func newQC(trackProofs bool) *runtime.QueryContext {
	return runtime.NewQueryContext(context.Background(),
		runtime.NewArena(64<<10, 0), runtime.NewTableSet(), trackProofs, nil)
}

func collect(t *testing.T, prog *Program, relation string, modeIdx int, in []horn.Value) [][]horn.Value {
	t.Helper()
	pred, ok := prog.Predicate(relation, modeIdx)
	require.True(t, ok)
	var got [][]horn.Value
	err := pred.Fn(newQC(false), in, func(out []horn.Value, _ *runtime.ProofNode) bool {
		got = append(got, horn.CopyTuple(out))
		return true
	})
	require.NoError(t, err)
	return got
}

func TestFactScanHonorsBoundInputs(t *testing.T) {
	prog := generateAncestor(t)

	got := collect(t, prog, "parent", 0, []horn.Value{"alice"})
	require.Len(t, got, 1)
	assert.Equal(t, "bob", got[0][0])

	assert.Empty(t, collect(t, prog, "parent", 0, []horn.Value{"carol"}))
}

func TestRecursivePredicateEnumerates(t *testing.T) {
	prog := generateAncestor(t)

	got := collect(t, prog, "ancestor", 0, []horn.Value{"alice"})
	require.Len(t, got, 2)
	assert.Equal(t, "bob", got[0][0])
	assert.Equal(t, "carol", got[1][0])
}

func TestEmitStopHaltsEnumeration(t *testing.T) {
	prog := generateAncestor(t)
	pred, ok := prog.Predicate("ancestor", 0)
	require.True(t, ok)

	calls := 0
	err := pred.Fn(newQC(false), []horn.Value{"alice"}, func([]horn.Value, *runtime.ProofNode) bool {
		calls++
		return false
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestProofsOnlyWhenTracked(t *testing.T) {
	prog := generateAncestor(t)
	pred, ok := prog.Predicate("ancestor", 0)
	require.True(t, ok)

	var proofs []*runtime.ProofNode
	qc := newQC(true)
	err := pred.Fn(qc, []horn.Value{"alice"}, func(_ []horn.Value, p *runtime.ProofNode) bool {
		proofs = append(proofs, p)
		return true
	})
	require.NoError(t, err)
	require.Len(t, proofs, 2)
	for _, p := range proofs {
		require.NotNil(t, p)
		assert.Equal(t, runtime.ProofRule, p.Kind)
	}

	err = pred.Fn(newQC(false), []horn.Value{"alice"}, func(_ []horn.Value, p *runtime.ProofNode) bool {
		assert.Nil(t, p)
		return true
	})
	require.NoError(t, err)
}

func TestGenerateDeterministic(t *testing.T) {
	a := generateAncestor(t)
	b := generateAncestor(t)
	require.Equal(t, a.Order, b.Order)
	assert.Equal(t, a.PredicateCount(), b.PredicateCount())
}

func TestCancelledContextStopsEvaluation(t *testing.T) {
	prog := generateAncestor(t)
	pred, ok := prog.Predicate("ancestor", 0)
	require.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	qc := runtime.NewQueryContext(ctx, runtime.NewArena(1<<10, 0), runtime.NewTableSet(), false, nil)
	err := pred.Fn(qc, []horn.Value{"alice"}, func([]horn.Value, *runtime.ProofNode) bool { return true })
	require.Error(t, err)
}
