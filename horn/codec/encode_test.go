package codec

import (
	"bytes"
	"testing"

	"github.com/wbrown/horn/horn"
)

func TestRoundTrip(t *testing.T) {
	tuples := [][]horn.Value{
		{},
		{int64(0)},
		{int64(-42), int64(42)},
		{"", "alice", "with\x00nul"},
		{true, false},
		{horn.NewStruct("point", "mk_point", int64(1), int64(2))},
		{horn.NewVariant("shape", "circle", int64(5))},
		{horn.NewVariant("shape", "origin")},
		{horn.NewStruct("pair", "mk_pair", "a", horn.NewVariant("shape", "origin"))},
	}

	for _, in := range tuples {
		enc := EncodeTuple(in)
		out, err := DecodeTuple(enc)
		if err != nil {
			t.Fatalf("decode %v: %v", in, err)
		}
		if !horn.EqualTuples(in, out) {
			t.Fatalf("round trip changed %v to %v", in, out)
		}
	}
}

func TestKeyEqualityIsStructural(t *testing.T) {
	a := TupleKey([]horn.Value{"alice", int64(7)})
	b := TupleKey([]horn.Value{"alice", int64(7)})
	c := TupleKey([]horn.Value{"alice", int64(8)})
	if a != b {
		t.Fatal("equal tuples produced different keys")
	}
	if a == c {
		t.Fatal("distinct tuples produced the same key")
	}
}

func TestIntKeysSortByValue(t *testing.T) {
	// The sign-bit offset makes byte order agree with numeric order.
	vals := []int64{-1000, -1, 0, 1, 1000}
	var prev []byte
	for _, n := range vals {
		key := EncodeTuple([]horn.Value{n})
		if prev != nil && bytes.Compare(prev, key) >= 0 {
			t.Fatalf("key for %d does not sort above its predecessor", n)
		}
		prev = key
	}
}

func TestTagCollisions(t *testing.T) {
	// Values of different types must never share an encoding.
	pairs := [][2]horn.Value{
		{int64(1), "1"},
		{true, int64(1)},
		{horn.NewStruct("t", "c", int64(1)), horn.NewVariant("t", "c", int64(1))},
	}
	for _, p := range pairs {
		if TupleKey([]horn.Value{p[0]}) == TupleKey([]horn.Value{p[1]}) {
			t.Fatalf("%v and %v encode identically", p[0], p[1])
		}
	}
}

func TestDecodeTruncated(t *testing.T) {
	enc := EncodeTuple([]horn.Value{"alice", int64(7)})
	for i := 1; i < len(enc); i++ {
		if _, err := DecodeTuple(enc[:i]); err == nil {
			t.Fatalf("truncation at %d decoded without error", i)
		}
	}
}
