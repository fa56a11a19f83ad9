package annotations

import (
	"bytes"
	"strings"
	"testing"
)

// The formatter must read the same data keys the compile and query
// collectors emit; a renamed key prints as <nil>.
func TestFormatterReadsEmittedKeys(t *testing.T) {
	f := NewOutputFormatter(&bytes.Buffer{})

	cases := []struct {
		event Event
		want  string
	}{
		{Event{Name: CompileInvoked, Data: map[string]interface{}{
			"relations": 3, "rules": 2, "facts": 5, "queries": 1,
		}}, "Compiling 3 relations"},
		{Event{Name: CompileModeDiscovered, Data: map[string]interface{}{
			"relation": "ancestor", "mode": "bf", "tabled": true,
		}}, "mode bf discovered for ancestor"},
		{Event{Name: CompileComplete, Data: map[string]interface{}{
			"predicates": 4,
		}}, "Compiled 4 predicates"},
		{Event{Name: QueryInvoked, Data: map[string]interface{}{
			"goals": 2,
		}}, "Query over 2 goals"},
		{Event{Name: QueryComplete, Data: map[string]interface{}{
			"tuples": 7, "satisfied": true,
		}}, "Query done with 7 tuples"},
		{Event{Name: ErrorRuntime, Data: map[string]interface{}{
			"error": "arena memory ceiling exceeded",
		}}, "Query failed: arena memory ceiling exceeded"},
		{Event{Name: RuleFired, Data: map[string]interface{}{
			"relation": "ancestor", "rule": 1,
		}}, "rule ancestor/1 fired"},
		{Event{Name: TableHit, Data: map[string]interface{}{
			"predicate": "ancestor/bf", "tuples": 2,
		}}, "table hit ancestor/bf"},
		{Event{Name: TableCutoff, Data: map[string]interface{}{
			"predicate": "ancestor/bf",
		}}, "table cutoff ancestor/bf"},
	}

	for _, tc := range cases {
		got := f.Format(tc.event)
		if !strings.Contains(got, tc.want) {
			t.Errorf("Format(%s) = %q, want substring %q", tc.event.Name, got, tc.want)
		}
		if strings.Contains(got, "<nil>") {
			t.Errorf("Format(%s) = %q, rendered a missing data key", tc.event.Name, got)
		}
	}
}

func TestFormatterDefaultCaseSortsKeys(t *testing.T) {
	f := NewOutputFormatter(&bytes.Buffer{})
	got := f.Format(Event{Name: TableMiss, Data: map[string]interface{}{
		"predicate": "p/bf",
		"key":       "alice",
	}})
	if !strings.Contains(got, "key=alice predicate=p/bf") {
		t.Fatalf("Format(TableMiss) = %q, want sorted key=value pairs", got)
	}
}
