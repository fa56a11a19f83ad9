package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/horn/horn"
	"github.com/wbrown/horn/horn/annotations"
	"github.com/wbrown/horn/horn/runtime"
)

func v(name string) horn.Term { return horn.Var{Name: name} }
func str(s string) horn.Term  { return horn.Lit{Value: s} }
func num(n int64) horn.Term   { return horn.Lit{Value: n} }

func atom(rel string, args ...horn.Term) horn.AtomGoal {
	return horn.AtomGoal{Atom: horn.Atom{Relation: rel, Args: args}}
}
func negAtom(rel string, args ...horn.Term) horn.AtomGoal {
	g := atom(rel, args...)
	g.Negated = true
	return g
}

func stringRelation(t *testing.T, reg *horn.Registry, name string, arity int) {
	t.Helper()
	sig := make([]horn.TypeRef, arity)
	for i := range sig {
		sig[i] = horn.TypeString
	}
	require.NoError(t, reg.AddRelation(&horn.Relation{Name: name, Signature: sig}))
}

// ancestorProgram builds the transitive-closure program over parent facts
// alice -> bob -> carol.
func ancestorProgram(t *testing.T) *horn.Program {
	t.Helper()
	reg := horn.NewRegistry()
	stringRelation(t, reg, "parent", 2)
	stringRelation(t, reg, "ancestor", 2)
	return &horn.Program{
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
				Body: []horn.Goal{
					atom("parent", v("X"), v("Y")),
					atom("ancestor", v("Y"), v("Z")),
				},
			},
		},
		Queries: []horn.Query{
			{Goals: []horn.Goal{atom("ancestor", str("alice"), v("Q"))}},
		},
	}
}

func compileOK(t *testing.T, p *horn.Program, opts Options) *CompiledProgram {
	t.Helper()
	cp, diags, err := Compile(p, opts)
	require.NoError(t, err)
	require.Empty(t, diags)
	return cp
}

func TestAncestorEnumeration(t *testing.T) {
	cp := compileOK(t, ancestorProgram(t), DefaultOptions())

	res, err := cp.Query(context.Background(), cp.Source.Queries[0])
	require.NoError(t, err)
	defer res.Close()

	require.True(t, res.Satisfied)
	require.Equal(t, []string{"Q"}, res.Columns)
	require.Len(t, res.Tuples, 2)
	assert.Equal(t, "bob", res.Tuples[0][0])
	assert.Equal(t, "carol", res.Tuples[1][0])
}

func TestAncestorProofShape(t *testing.T) {
	cp := compileOK(t, ancestorProgram(t), DefaultOptions())

	res, err := cp.Query(context.Background(), cp.Source.Queries[0])
	require.NoError(t, err)
	defer res.Close()

	// The carol derivation: ancestor via clause 1, whose sub-derivations
	// are the fact parent(alice, bob) and ancestor(bob, carol) via clause
	// 0, bottoming out in the fact parent(bob, carol).
	root := res.Proof(1)
	require.NotNil(t, root)
	require.Equal(t, runtime.ProofQuery, root.Kind)
	require.Len(t, root.Children, 1)

	outer := root.Children[0]
	require.Equal(t, runtime.ProofRule, outer.Kind)
	assert.Equal(t, "ancestor", outer.Relation)
	assert.Equal(t, 1, outer.RuleIndex)
	require.Len(t, outer.Children, 2)

	base := outer.Children[0]
	assert.Equal(t, runtime.ProofFact, base.Kind)
	assert.Equal(t, "parent", base.Relation)

	inner := outer.Children[1]
	require.Equal(t, runtime.ProofRule, inner.Kind)
	assert.Equal(t, "ancestor", inner.Relation)
	assert.Equal(t, 0, inner.RuleIndex)
	require.Len(t, inner.Children, 1)
	assert.Equal(t, runtime.ProofFact, inner.Children[0].Kind)

	// Every leaf of a successful derivation is a source fact.
	for _, leaf := range root.Leaves(nil) {
		assert.Equal(t, runtime.ProofFact, leaf.Kind)
	}

	rendered := res.RenderProof(1, false)
	assert.Contains(t, rendered, `fact parent("alice", "bob")`)
	assert.Contains(t, rendered, `fact parent("bob", "carol")`)
}

func TestSelfRecursionTerminates(t *testing.T) {
	reg := horn.NewRegistry()
	stringRelation(t, reg, "p", 1)
	p := &horn.Program{
		Registry: reg,
		Facts:    []horn.Fact{{Relation: "p", Args: []horn.Value{"a"}}},
		Rules: []horn.Rule{
			{
				Head: horn.Atom{Relation: "p", Args: []horn.Term{v("X")}},
				Body: []horn.Goal{atom("p", v("X"))},
			},
		},
		Queries: []horn.Query{
			{Goals: []horn.Goal{atom("p", v("Q"))}},
		},
	}
	cp := compileOK(t, p, DefaultOptions())

	res, err := cp.Query(context.Background(), p.Queries[0])
	require.NoError(t, err)
	defer res.Close()

	// The in-progress cutoff bounds the self-cycle: only the base fact.
	require.Len(t, res.Tuples, 1)
	assert.Equal(t, "a", res.Tuples[0][0])
}

func TestSharedTablingMemoization(t *testing.T) {
	opts := DefaultOptions()
	opts.SharedTabling = true
	opts.AnnotationHandler = func(annotations.Event) {}
	cp := compileOK(t, ancestorProgram(t), opts)

	q := cp.Source.Queries[0]
	res1, err := cp.Query(context.Background(), q)
	require.NoError(t, err)
	res1.Close()
	require.Greater(t, cp.Collector.Count(annotations.RuleFired), 0)

	// A second identical query replays the published table entry without
	// firing a single rule.
	cp.Collector.Reset()
	res2, err := cp.Query(context.Background(), q)
	require.NoError(t, err)
	defer res2.Close()

	assert.Equal(t, 0, cp.Collector.Count(annotations.RuleFired))
	require.Len(t, res2.Tuples, 2)
	assert.Equal(t, "bob", res2.Tuples[0][0])
	assert.Equal(t, "carol", res2.Tuples[1][0])
}

// leftReachProgram routes the transitive closure through a mutually
// recursive pair with the recursive call on the left, so each pass can only
// extend paths by one hop beyond the previous pass's answers.
func leftReachProgram(t *testing.T) *horn.Program {
	t.Helper()
	reg := horn.NewRegistry()
	stringRelation(t, reg, "parent", 2)
	stringRelation(t, reg, "reach", 2)
	stringRelation(t, reg, "hop", 2)
	return &horn.Program{
		Registry: reg,
		Facts: []horn.Fact{
			{Relation: "parent", Args: []horn.Value{"alice", "bob"}},
			{Relation: "parent", Args: []horn.Value{"bob", "carol"}},
		},
		Rules: []horn.Rule{
			{
				Head: horn.Atom{Relation: "reach", Args: []horn.Term{v("X"), v("Y")}},
				Body: []horn.Goal{atom("hop", v("X"), v("Y"))},
			},
			{
				Head: horn.Atom{Relation: "hop", Args: []horn.Term{v("X"), v("Y")}},
				Body: []horn.Goal{atom("parent", v("X"), v("Y"))},
			},
			{
				Head: horn.Atom{Relation: "hop", Args: []horn.Term{v("X"), v("Y")}},
				Body: []horn.Goal{
					atom("reach", v("X"), v("Z")),
					atom("parent", v("Z"), v("Y")),
				},
			},
		},
		Queries: []horn.Query{
			{Goals: []horn.Goal{atom("reach", str("alice"), v("Q"))}},
		},
	}
}

func TestSinglePassUnderLeftRecursion(t *testing.T) {
	cp := compileOK(t, leftReachProgram(t), DefaultOptions())

	res, err := cp.Query(context.Background(), cp.Source.Queries[0])
	require.NoError(t, err)
	defer res.Close()

	// One pass: the cutoff inside the reach/hop cycle replays nothing, so
	// only the direct hop survives.
	require.Len(t, res.Tuples, 1)
	assert.Equal(t, "bob", res.Tuples[0][0])
}

func TestMultiPassFixpointClosesLeftRecursion(t *testing.T) {
	opts := DefaultOptions()
	opts.FixpointPasses = 4
	opts.AnnotationHandler = func(annotations.Event) {}
	cp := compileOK(t, leftReachProgram(t), opts)

	res, err := cp.Query(context.Background(), cp.Source.Queries[0])
	require.NoError(t, err)
	defer res.Close()

	require.True(t, res.Satisfied)
	require.Len(t, res.Tuples, 2)
	assert.Equal(t, "bob", res.Tuples[0][0])
	assert.Equal(t, "carol", res.Tuples[1][0])

	// Pass 1 finds bob, pass 2 extends to carol, pass 3 adds nothing and
	// the iteration stops before its budget.
	assert.Equal(t, 3, cp.Collector.Count(annotations.QueryPass))
}

func TestStratifiedNegation(t *testing.T) {
	reg := horn.NewRegistry()
	stringRelation(t, reg, "person", 1)
	stringRelation(t, reg, "parent", 2)
	stringRelation(t, reg, "haschild", 1)
	stringRelation(t, reg, "childless", 1)
	p := &horn.Program{
		Registry: reg,
		Facts: []horn.Fact{
			{Relation: "person", Args: []horn.Value{"alice"}},
			{Relation: "person", Args: []horn.Value{"bob"}},
			{Relation: "person", Args: []horn.Value{"carol"}},
			{Relation: "parent", Args: []horn.Value{"alice", "bob"}},
			{Relation: "parent", Args: []horn.Value{"bob", "carol"}},
		},
		Rules: []horn.Rule{
			{
				Head: horn.Atom{Relation: "haschild", Args: []horn.Term{v("X")}},
				Body: []horn.Goal{atom("parent", v("X"), v("Y"))},
			},
			{
				Head: horn.Atom{Relation: "childless", Args: []horn.Term{v("X")}},
				Body: []horn.Goal{
					atom("person", v("X")),
					negAtom("haschild", v("X")),
				},
			},
		},
		Queries: []horn.Query{
			{Goals: []horn.Goal{atom("childless", v("Q"))}},
		},
	}
	cp := compileOK(t, p, DefaultOptions())

	res, err := cp.Query(context.Background(), p.Queries[0])
	require.NoError(t, err)
	defer res.Close()

	require.Len(t, res.Tuples, 1)
	assert.Equal(t, "carol", res.Tuples[0][0])
}

func TestStratificationError(t *testing.T) {
	reg := horn.NewRegistry()
	stringRelation(t, reg, "person", 1)
	stringRelation(t, reg, "odd", 1)
	p := &horn.Program{
		Registry: reg,
		Rules: []horn.Rule{
			{
				Head: horn.Atom{Relation: "odd", Args: []horn.Term{v("X")}},
				Body: []horn.Goal{
					atom("person", v("X")),
					negAtom("odd", v("X")),
				},
			},
		},
		Queries: []horn.Query{
			{Goals: []horn.Goal{atom("odd", str("a"))}},
		},
	}
	_, diags, err := Compile(p, DefaultOptions())
	require.NoError(t, err)
	require.NotEmpty(t, diags)
	assert.Equal(t, horn.StratificationError, diags[0].Kind)
}

func TestModeErrorUnboundQueryInput(t *testing.T) {
	reg := horn.NewRegistry()
	require.NoError(t, reg.AddRelation(&horn.Relation{
		Name:      "big",
		Signature: []horn.TypeRef{horn.TypeInt},
	}))
	p := &horn.Program{
		Registry: reg,
		Queries: []horn.Query{
			{Goals: []horn.Goal{
				horn.CompareGoal{Op: horn.CmpGt, Left: v("X"), Right: num(3)},
				atom("big", v("X")),
			}},
		},
	}
	_, diags, err := Compile(p, DefaultOptions())
	require.NoError(t, err)
	require.NotEmpty(t, diags)
	assert.Equal(t, horn.ModeError, diags[0].Kind)
}

func TestArithmeticRule(t *testing.T) {
	reg := horn.NewRegistry()
	require.NoError(t, reg.AddRelation(&horn.Relation{
		Name:      "double",
		Signature: []horn.TypeRef{horn.TypeInt, horn.TypeInt},
	}))
	p := &horn.Program{
		Registry: reg,
		Rules: []horn.Rule{
			{
				Head: horn.Atom{Relation: "double", Args: []horn.Term{v("X"), v("Y")}},
				Body: []horn.Goal{
					horn.UnifyGoal{
						Left:  v("Y"),
						Right: horn.BinExpr{Op: horn.OpMul, Left: v("X"), Right: num(2)},
					},
				},
			},
		},
		Queries: []horn.Query{
			{Goals: []horn.Goal{atom("double", num(21), v("Q"))}},
		},
	}
	cp := compileOK(t, p, DefaultOptions())

	res, err := cp.Query(context.Background(), p.Queries[0])
	require.NoError(t, err)
	defer res.Close()

	require.Len(t, res.Tuples, 1)
	assert.Equal(t, int64(42), res.Tuples[0][0])
}

func TestFailureExplanation(t *testing.T) {
	cp := compileOK(t, ancestorProgram(t), DefaultOptions())

	q := horn.Query{Goals: []horn.Goal{atom("ancestor", str("carol"), v("Q"))}}
	res, err := cp.Query(context.Background(), q)
	require.NoError(t, err)
	defer res.Close()

	require.False(t, res.Satisfied)
	require.NotNil(t, res.Failure)
	assert.Equal(t, "ancestor", res.Failure.Relation)

	// Both clauses have variable heads, so both must be enumerated with
	// the condition that blocked them.
	require.Len(t, res.Failure.Candidates, 2)
	for _, c := range res.Failure.Candidates {
		assert.Contains(t, c.Reason, "parent")
		assert.Contains(t, c.Reason, "no solutions")
	}

	rendered := RenderFailure(res.Failure, false)
	assert.Contains(t, rendered, "no")
	assert.Contains(t, rendered, "[clause 0]")
	assert.Contains(t, rendered, "[clause 1]")
}

func TestProofPoisonedAfterClose(t *testing.T) {
	cp := compileOK(t, ancestorProgram(t), DefaultOptions())

	res, err := cp.Query(context.Background(), cp.Source.Queries[0])
	require.NoError(t, err)

	node := res.Proof(0)
	require.NotNil(t, node)
	require.False(t, node.Poisoned())

	// Tuples are heap copies and survive the arena; proof nodes do not.
	res.Close()
	res.Close() // idempotent

	assert.True(t, node.Poisoned())
	assert.Contains(t, res.RenderProof(0, false), "<released>")
	assert.Equal(t, "bob", res.Tuples[0][0])
}

func TestArenaCeiling(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxArenaBytes = 32
	cp := compileOK(t, ancestorProgram(t), opts)

	_, err := cp.Query(context.Background(), cp.Source.Queries[0])
	require.Error(t, err)
	assert.True(t, errors.Is(err, runtime.ErrArenaExhausted))
}

func TestQueryCancellation(t *testing.T) {
	cp := compileOK(t, ancestorProgram(t), DefaultOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := cp.Query(ctx, cp.Source.Queries[0])
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestConcurrentQueries(t *testing.T) {
	cp := compileOK(t, ancestorProgram(t), DefaultOptions())
	q := cp.Source.Queries[0]

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := cp.Query(context.Background(), q)
			if err != nil {
				t.Error(err)
				return
			}
			defer res.Close()
			if len(res.Tuples) != 2 {
				t.Errorf("got %d tuples, want 2", len(res.Tuples))
			}
		}()
	}
	wg.Wait()
}

func TestAdHocQueryUnknownMode(t *testing.T) {
	cp := compileOK(t, ancestorProgram(t), DefaultOptions())

	// The program only requested mode bf of ancestor; an all-free goal
	// needs mode ff, which was never compiled.
	q := horn.Query{Goals: []horn.Goal{atom("ancestor", v("A"), v("B"))}}
	_, err := cp.Query(context.Background(), q)
	require.Error(t, err)

	var diag horn.Diagnostic
	require.ErrorAs(t, err, &diag)
	assert.Equal(t, horn.ModeError, diag.Kind)
}
