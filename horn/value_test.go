package horn

import (
	"testing"
)

func TestCompareValuesTotalOrder(t *testing.T) {
	// Ascending per the cross-type rank, then within type.
	ordered := []Value{
		false, true,
		int64(-5), int64(0), int64(7),
		"a", "b",
		NewStruct("point", "mk_point", int64(1)),
		NewStruct("point", "mk_point", int64(2)),
		NewVariant("shape", "circle", int64(1)),
	}
	for i := range ordered {
		for j := range ordered {
			got := CompareValues(ordered[i], ordered[j])
			want := 0
			if i < j {
				want = -1
			} else if i > j {
				want = 1
			}
			if got != want {
				t.Fatalf("CompareValues(%v, %v) = %d, want %d",
					ordered[i], ordered[j], got, want)
			}
		}
	}
}

func TestEqualValuesStructural(t *testing.T) {
	a := NewStruct("pair", "mk_pair", "x", NewVariant("opt", "none"))
	b := NewStruct("pair", "mk_pair", "x", NewVariant("opt", "none"))
	c := NewStruct("pair", "mk_pair", "x", NewVariant("opt", "some", int64(1)))
	if !EqualValues(a, b) {
		t.Fatal("structurally equal values compared unequal")
	}
	if EqualValues(a, c) {
		t.Fatal("distinct values compared equal")
	}
}

func TestCopyTupleIsDeep(t *testing.T) {
	inner := []Value{int64(1), int64(2)}
	orig := []Value{Struct{Type: "point", Ctor: "mk_point", Fields: inner}}

	dup := CopyTuple(orig)
	inner[0] = PoisonStandIn{}

	got := dup[0].(Struct)
	if got.Fields[0] != int64(1) {
		t.Fatal("copy aliases the original field storage")
	}
}

// PoisonStandIn simulates an arena overwriting released storage.
type PoisonStandIn struct{}

func TestFormatValue(t *testing.T) {
	cases := []struct {
		in   Value
		want string
	}{
		{int64(7), "7"},
		{"a", `"a"`},
		{true, "true"},
		{nil, "_"},
		{NewVariant("opt", "none"), "none"},
		{NewStruct("point", "mk_point", int64(1), int64(2)), "mk_point(1, 2)"},
	}
	for _, c := range cases {
		if got := FormatValue(c.in); got != c.want {
			t.Fatalf("FormatValue(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestRegistryValidation(t *testing.T) {
	reg := NewRegistry()
	if err := reg.AddType(&TypeDef{Name: "point", Ctor: "mk_point", Fields: []Field{{Name: "x", Type: TypeInt}}}); err != nil {
		t.Fatal(err)
	}
	if err := reg.AddType(&TypeDef{Name: "point", Ctor: "mk_point2"}); err == nil {
		t.Fatal("duplicate type accepted")
	}
	if err := reg.AddType(&TypeDef{Name: "Int", Ctor: "mk_int"}); err == nil {
		t.Fatal("builtin shadow accepted")
	}
	if err := reg.AddRelation(&Relation{Name: "at", Signature: []TypeRef{TypeString, "point"}}); err != nil {
		t.Fatal(err)
	}
	if err := reg.AddRelation(&Relation{Name: "at", Signature: []TypeRef{TypeString}}); err == nil {
		t.Fatal("duplicate relation accepted")
	}
	if err := reg.AddRelation(&Relation{Name: "bad", Signature: []TypeRef{"nosuch"}}); err == nil {
		t.Fatal("relation over unknown type accepted")
	}

	info, ok := reg.Ctor("mk_point")
	if !ok || info.TypeName != "point" {
		t.Fatalf("constructor lookup failed: %+v ok=%v", info, ok)
	}
}
