package runtime

import (
	"context"
	"sync"

	"github.com/wbrown/horn/horn"
	"github.com/wbrown/horn/horn/annotations"
)

// EmitFunc receives one solution from a predicate function: the values of
// the free argument positions in signature order, plus the derivation node
// when proof tracking is on (nil otherwise). Returning false stops the
// enumeration.
type EmitFunc func(out []horn.Value, proof *ProofNode) bool

// PredicateFunc is the calling contract of a generated predicate
// specialization: in carries the ground argument values for the mode's
// bound positions in signature order; solutions stream through emit. A nil
// error with no emit calls means the predicate is exhausted (or false, for
// an existence check).
type PredicateFunc func(qc *QueryContext, in []horn.Value, emit EmitFunc) error

// QueryContext carries everything one query evaluation owns: its arena,
// its table set, the proof-tracking flag, cancellation, and the annotation
// collector. One context belongs to one query task.
type QueryContext struct {
	Ctx         context.Context
	Arena       *Arena
	Tables      *TableSet
	TrackProofs bool
	Collector   *annotations.Collector

	mu    sync.Mutex
	owned map[string]bool // table keys begun but not yet completed
}

// NewQueryContext assembles a context. A nil ctx defaults to Background;
// a nil collector disables annotation overhead entirely.
func NewQueryContext(ctx context.Context, arena *Arena, tables *TableSet, trackProofs bool, collector *annotations.Collector) *QueryContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &QueryContext{
		Ctx:         ctx,
		Arena:       arena,
		Tables:      tables,
		TrackProofs: trackProofs,
		Collector:   collector,
		owned:       make(map[string]bool),
	}
}

// Cancelled returns the context error if the query was abandoned.
func (qc *QueryContext) Cancelled() error {
	return qc.Ctx.Err()
}

func (qc *QueryContext) recordOwned(key string) {
	qc.mu.Lock()
	qc.owned[key] = true
	qc.mu.Unlock()
}

func (qc *QueryContext) dropOwned(key string) {
	qc.mu.Lock()
	delete(qc.owned, key)
	qc.mu.Unlock()
}

// AbandonOwned reverts every table entry this query began but never
// completed. Called on the abandonment path so a cancelled query cannot
// leave shared entries stuck in-progress.
func (qc *QueryContext) AbandonOwned() {
	qc.mu.Lock()
	keys := make([]string, 0, len(qc.owned))
	for k := range qc.owned {
		keys = append(keys, k)
	}
	qc.mu.Unlock()
	for _, k := range keys {
		qc.Tables.Abandon(qc, k)
	}
}

// Annotate emits an event when a collector is installed. The data builder
// runs only in that case, keeping the disabled path free.
func (qc *QueryContext) Annotate(name string, data func() map[string]interface{}) {
	if qc.Collector == nil || !qc.Collector.Enabled() {
		return
	}
	var d map[string]interface{}
	if data != nil {
		d = data()
	}
	qc.Collector.Event(name, d)
}
