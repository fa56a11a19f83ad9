package runtime

import (
	"context"
	"sync"

	"github.com/wbrown/horn/horn"
)

// EntryState is the tri-state lifecycle marker of one memo entry.
type EntryState int

const (
	NotStarted EntryState = iota
	InProgress
	Complete
)

func (s EntryState) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case InProgress:
		return "in-progress"
	case Complete:
		return "complete"
	}
	return "unknown"
}

// ResultSet is the published answer set for one (relation, mode, key):
// output tuples deduplicated by structural equality, in first-derivation
// order. Proofs parallels Tuples when the owning query tracked proofs and
// the table set is private; shared table sets never store proofs, because
// proof nodes are arena-scoped to one query.
type ResultSet struct {
	Tuples [][]horn.Value
	Proofs []*ProofNode

	index map[string]bool
}

// NewResultSet creates an empty result set.
func NewResultSet() *ResultSet {
	return &ResultSet{index: make(map[string]bool)}
}

// Add records an output tuple unless an equal tuple is already present.
// key must be the tuple's canonical encoding.
func (rs *ResultSet) Add(key string, out []horn.Value, proof *ProofNode) bool {
	if rs.index[key] {
		return false
	}
	rs.index[key] = true
	rs.Tuples = append(rs.Tuples, out)
	rs.Proofs = append(rs.Proofs, proof)
	return true
}

// Len returns the number of distinct tuples.
func (rs *ResultSet) Len() int {
	return len(rs.Tuples)
}

// tableEntry is one memo record. The pointer fields are guarded by the
// owning TableSet's mutex; done is closed exactly once per in-progress
// episode so waiters under shared tabling can block without holding any
// lock.
type tableEntry struct {
	state   EntryState
	owner   *QueryContext
	results *ResultSet
	done    chan struct{}
}

// TableSet is a per-predicate-per-mode memo store keyed by the canonical
// encoding of the ground input tuple. The default configuration creates one
// private TableSet per query, so entries never see concurrent access; a
// shared TableSet (explicit opt-in for long-lived caches) serializes state
// transitions per key and lets waiters block on the key's completion rather
// than on the whole table.
type TableSet struct {
	shared bool

	mu      sync.Mutex
	entries map[string]*tableEntry
	prev    map[string]*ResultSet // previous fixpoint pass, see BeginPass
}

// NewTableSet creates a private table set for a single query.
func NewTableSet() *TableSet {
	return &TableSet{entries: make(map[string]*tableEntry)}
}

// NewSharedTableSet creates a table set safe to share between concurrently
// evaluated queries.
func NewSharedTableSet() *TableSet {
	return &TableSet{shared: true, entries: make(map[string]*tableEntry)}
}

// Shared reports whether the set is shared across queries.
func (ts *TableSet) Shared() bool {
	return ts.shared
}

// Claim is the combined lookup/begin operation. Exactly one of the
// following holds for the returned claim:
//   - State == Complete: Results is the published answer set.
//   - Owner: the entry was not-started and this caller now owns the
//     in-progress evaluation; it must call Complete or Abandon.
//   - SameTask: the entry is in-progress on the calling query's own stack;
//     the caller must treat this as the fixpoint cutoff.
//   - otherwise: in-progress on another task (shared sets only); the
//     caller may Wait on Done and claim again.
type Claim struct {
	State    EntryState
	Owner    bool
	SameTask bool
	Results  *ResultSet
	Done     <-chan struct{}
}

// Claim looks up key and transitions not-started entries to in-progress on
// behalf of qc. The transition is atomic with respect to other tasks racing
// to claim the same key.
func (ts *TableSet) Claim(qc *QueryContext, key string) Claim {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	e, ok := ts.entries[key]
	if !ok {
		e = &tableEntry{}
		ts.entries[key] = e
	}
	switch e.state {
	case Complete:
		return Claim{State: Complete, Results: e.results}
	case InProgress:
		return Claim{State: InProgress, SameTask: e.owner == qc, Done: e.done}
	default:
		e.state = InProgress
		e.owner = qc
		e.done = make(chan struct{})
		qc.recordOwned(key)
		return Claim{State: InProgress, Owner: true}
	}
}

// Complete publishes results for a key this context owns and wakes any
// waiters. The in-progress → complete transition happens under the table
// lock, atomically with respect to racing Claims.
func (ts *TableSet) Complete(qc *QueryContext, key string, rs *ResultSet) {
	ts.mu.Lock()
	e := ts.entries[key]
	var done chan struct{}
	if e != nil && e.state == InProgress && e.owner == qc {
		e.state = Complete
		e.results = rs
		e.owner = nil
		done = e.done
		e.done = nil
	}
	ts.mu.Unlock()
	qc.dropOwned(key)
	if done != nil {
		close(done)
	}
}

// Abandon reverts a key this context owns to not-started. It is the guard
// against a cancelled query leaving an entry stuck in-progress forever:
// waiters are woken and will re-claim.
func (ts *TableSet) Abandon(qc *QueryContext, key string) {
	ts.mu.Lock()
	e := ts.entries[key]
	var done chan struct{}
	if e != nil && e.state == InProgress && e.owner == qc {
		e.state = NotStarted
		e.owner = nil
		done = e.done
		e.done = nil
	}
	ts.mu.Unlock()
	qc.dropOwned(key)
	if done != nil {
		close(done)
	}
}

// Wait blocks until the claim's in-progress episode ends or ctx is
// cancelled. Only meaningful under shared tabling.
func (ts *TableSet) Wait(ctx context.Context, c Claim) error {
	select {
	case <-c.Done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InvalidateAll clears all memo state. Used between independent top-level
// queries when cross-query caching is not wanted.
func (ts *TableSet) InvalidateAll() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.entries = make(map[string]*tableEntry)
	ts.prev = nil
}

// BeginPass shifts completed entries into the previous-pass store and
// clears the live entries. During the next pass, an in-progress cutoff
// replays the previous pass's answers for that key instead of contributing
// nothing, so repeated passes climb toward the fixpoint of mutually
// recursive relations. Returns the number of tuples carried over.
func (ts *TableSet) BeginPass() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	prev := make(map[string]*ResultSet)
	carried := 0
	for k, e := range ts.entries {
		if e.state == Complete {
			prev[k] = e.results
			carried += e.results.Len()
		}
	}
	ts.prev = prev
	ts.entries = make(map[string]*tableEntry)
	return carried
}

// Prev returns the previous pass's published results for key, if any.
func (ts *TableSet) Prev(key string) *ResultSet {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.prev[key]
}

// Len returns the number of live entries, for instrumentation.
func (ts *TableSet) Len() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.entries)
}
