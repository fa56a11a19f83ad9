package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/horn/horn"
)

func v(name string) horn.Term { return horn.Var{Name: name} }
func s(val string) horn.Term  { return horn.Lit{Value: val} }

func atom(rel string, args ...horn.Term) horn.AtomGoal {
	return horn.AtomGoal{Atom: horn.Atom{Relation: rel, Args: args}}
}

func stringRel(t *testing.T, reg *horn.Registry, name string, arity int) {
	t.Helper()
	sig := make([]horn.TypeRef, arity)
	for i := range sig {
		sig[i] = horn.TypeString
	}
	require.NoError(t, reg.AddRelation(&horn.Relation{Name: name, Signature: sig}))
}

func ancestorProgram(t *testing.T) *horn.Program {
	t.Helper()
	reg := horn.NewRegistry()
	stringRel(t, reg, "parent", 2)
	stringRel(t, reg, "ancestor", 2)
	return &horn.Program{
		Registry: reg,
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
			{Goals: []horn.Goal{atom("ancestor", s("alice"), v("Q"))}},
		},
	}
}

func TestAncestorModes(t *testing.T) {
	res, diags := Analyze(ancestorProgram(t))
	require.Empty(t, diags)

	anc := res.Relations["ancestor"]
	require.NotNil(t, anc)
	assert.True(t, anc.Tabled, "self-recursive relation must be tabled")
	require.Len(t, anc.Modes, 1)
	assert.Equal(t, "bf", anc.Modes[0].Mode.String())

	par := res.Relations["parent"]
	require.NotNil(t, par)
	assert.False(t, par.Tabled)
	require.Len(t, par.Modes, 1)
	assert.Equal(t, "bf", par.Modes[0].Mode.String())

	// Each ancestor rule got a schedule under mode bf; the recursive rule
	// runs parent before the recursive call so Y is ground at the call.
	require.Len(t, anc.Modes[0].Schedules, 2)
	rec := anc.Modes[0].Schedules[1]
	require.Len(t, rec.Goals, 2)
	assert.Equal(t, 0, rec.Goals[0].GoalIndex)
	assert.Equal(t, 1, rec.Goals[1].GoalIndex)
}

func TestReorderingGroundsInputs(t *testing.T) {
	// The comparison is declared before the goal that grounds its
	// variable; the schedule must run them in the opposite order.
	reg := horn.NewRegistry()
	require.NoError(t, reg.AddRelation(&horn.Relation{
		Name:      "age",
		Signature: []horn.TypeRef{horn.TypeString, horn.TypeInt},
	}))
	require.NoError(t, reg.AddRelation(&horn.Relation{
		Name:      "adult",
		Signature: []horn.TypeRef{horn.TypeString},
	}))
	p := &horn.Program{
		Registry: reg,
		Rules: []horn.Rule{
			{
				Head: horn.Atom{Relation: "adult", Args: []horn.Term{v("P")}},
				Body: []horn.Goal{
					horn.CompareGoal{Op: horn.CmpGe, Left: v("A"), Right: horn.Lit{Value: int64(18)}},
					atom("age", v("P"), v("A")),
				},
			},
		},
		Queries: []horn.Query{
			{Goals: []horn.Goal{atom("adult", v("Q"))}},
		},
	}
	res, diags := Analyze(p)
	require.Empty(t, diags)

	sched := res.Relations["adult"].Modes[0].Schedules[0]
	require.Len(t, sched.Goals, 2)
	assert.Equal(t, 1, sched.Goals[0].GoalIndex, "age goal must run first")
	assert.Equal(t, 0, sched.Goals[1].GoalIndex)
}

func TestModeErrorNoOrdering(t *testing.T) {
	// Both goals need ground inputs neither can provide.
	reg := horn.NewRegistry()
	require.NoError(t, reg.AddRelation(&horn.Relation{
		Name:      "q",
		Signature: []horn.TypeRef{horn.TypeInt},
	}))
	p := &horn.Program{
		Registry: reg,
		Rules: []horn.Rule{
			{
				Head: horn.Atom{Relation: "q", Args: []horn.Term{v("X")}},
				Body: []horn.Goal{
					horn.CompareGoal{Op: horn.CmpGt, Left: v("X"), Right: horn.Lit{Value: int64(0)}},
					horn.CompareGoal{Op: horn.CmpLt, Left: v("X"), Right: horn.Lit{Value: int64(9)}},
				},
			},
		},
		Queries: []horn.Query{
			{Goals: []horn.Goal{atom("q", v("Q"))}},
		},
	}
	_, diags := Analyze(p)
	require.NotEmpty(t, diags)
	assert.Equal(t, horn.ModeError, diags[0].Kind)
}

func TestBoundModeSkipsMode(t *testing.T) {
	// A ground query requests the all-bound existence check, not bf.
	p := ancestorProgram(t)
	p.Queries = []horn.Query{
		{Goals: []horn.Goal{atom("ancestor", s("alice"), s("carol"))}},
	}
	res, diags := Analyze(p)
	require.Empty(t, diags)
	require.Len(t, res.Relations["ancestor"].Modes, 1)
	assert.Equal(t, "bb", res.Relations["ancestor"].Modes[0].Mode.String())
}

func TestStratificationRejectsNegativeCycle(t *testing.T) {
	reg := horn.NewRegistry()
	stringRel(t, reg, "item", 1)
	stringRel(t, reg, "in", 1)
	stringRel(t, reg, "out", 1)
	p := &horn.Program{
		Registry: reg,
		Rules: []horn.Rule{
			{
				Head: horn.Atom{Relation: "in", Args: []horn.Term{v("X")}},
				Body: []horn.Goal{
					atom("item", v("X")),
					horn.AtomGoal{Atom: horn.Atom{Relation: "out", Args: []horn.Term{v("X")}}, Negated: true},
				},
			},
			{
				Head: horn.Atom{Relation: "out", Args: []horn.Term{v("X")}},
				Body: []horn.Goal{
					atom("item", v("X")),
					horn.AtomGoal{Atom: horn.Atom{Relation: "in", Args: []horn.Term{v("X")}}, Negated: true},
				},
			},
		},
		Queries: []horn.Query{
			{Goals: []horn.Goal{atom("in", v("Q"))}},
		},
	}
	_, diags := Analyze(p)
	require.NotEmpty(t, diags)
	assert.Equal(t, horn.StratificationError, diags[0].Kind)
}

func TestModeString(t *testing.T) {
	m := Mode{Bound, Free, Bound}
	assert.Equal(t, "bfb", m.String())
	assert.Equal(t, 2, m.BoundCount())
	assert.Equal(t, []int{0, 2}, m.BoundPositions())
	assert.Equal(t, []int{1}, m.FreePositions())
	assert.True(t, AllBoundMode(2).AllBound())
}
