// Package engine is the public surface of the compiler: Compile turns an
// elaborated program into mode-specialized predicate functions, and Query
// evaluates goals against a compiled program. The engine owns the per-query
// arena and table-set lifecycle; everything below it returns structured
// diagnostics and never renders or logs.
package engine

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wbrown/horn/horn/annotations"
)

// Options configures compilation and query evaluation.
type Options struct {
	// ArenaCapacity is the initial byte capacity of each query's arena.
	ArenaCapacity int `yaml:"arena_capacity"`

	// MaxArenaBytes is the hard memory ceiling per query. A query that
	// allocates past it fails with a recoverable error, not a crash.
	// Zero means no ceiling.
	MaxArenaBytes int `yaml:"max_arena_bytes"`

	// FixpointPasses bounds re-evaluation of tabled predicates. The
	// default single pass gives the least fixpoint reachable without
	// unwinding through in-progress keys; additional passes feed each
	// pass's answers back through the cutoffs, which can grow the answer
	// set for mutual recursion across strongly connected predicates.
	FixpointPasses int `yaml:"fixpoint_passes"`

	// TrackProofs enables derivation recording. When false the proof
	// path is skipped entirely.
	TrackProofs bool `yaml:"track_proofs"`

	// ExplainFailures builds a report for failing queries enumerating
	// the candidate rules and why each could not fire.
	ExplainFailures bool `yaml:"explain_failures"`

	// SharedTabling keeps one memo table set across all queries on the
	// compiled program. Off by default; every query then gets a fresh
	// private set.
	SharedTabling bool `yaml:"shared_tabling"`

	// AnnotationHandler receives compilation and evaluation events. Nil
	// disables event collection.
	AnnotationHandler annotations.Handler `yaml:"-"`
}

// DefaultOptions returns the configuration used when no options file is
// given.
func DefaultOptions() Options {
	return Options{
		ArenaCapacity:   64 << 10,
		MaxArenaBytes:   256 << 20,
		FixpointPasses:  1,
		TrackProofs:     true,
		ExplainFailures: true,
	}
}

// LoadOptions reads a YAML options file over the defaults.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()
	data, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("failed to read options: %w", err)
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("failed to parse options: %w", err)
	}
	if err := opts.validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

func (o Options) validate() error {
	if o.ArenaCapacity <= 0 {
		return fmt.Errorf("arena_capacity must be positive, got %d", o.ArenaCapacity)
	}
	if o.MaxArenaBytes < 0 {
		return fmt.Errorf("max_arena_bytes must be non-negative, got %d", o.MaxArenaBytes)
	}
	if o.FixpointPasses < 1 {
		return fmt.Errorf("fixpoint_passes must be at least 1, got %d", o.FixpointPasses)
	}
	return nil
}
