// Package runtime provides the evaluation-time services generated
// predicate functions depend on: the per-query arena allocator, the tabling
// engine, proof tree construction and rendering, and the query context that
// carries them.
package runtime

import (
	"errors"

	"github.com/wbrown/horn/horn"
)

var (
	// ErrArenaExhausted is returned when an allocation would exceed the
	// arena's hard memory ceiling. It is recoverable: the query fails, the
	// process does not.
	ErrArenaExhausted = errors.New("arena memory ceiling exceeded")

	// ErrArenaReleased is returned by any allocation after Release.
	ErrArenaReleased = errors.New("arena used after release")
)

// PoisonValue replaces every value the arena handed out once it is
// released, so use-after-release reads fail loudly instead of observing
// stale data.
type PoisonValue struct{}

const minChunk = 1 << 10

// Arena is a per-query bump allocator. Every tuple and proof node built
// while answering one query comes from its arena; Release invalidates all
// of them atomically. Growth chains new chunks, so earlier allocations stay
// valid until release. An Arena is owned by a single query task and is not
// safe for concurrent use.
type Arena struct {
	chunks   [][]byte
	off      int // offset into the last chunk
	byteSize int // bytes consumed across all chunks

	valueChunks [][]horn.Value
	valueOff    int

	nodeChunks [][]ProofNode
	nodeOff    int

	maxBytes int
	released bool

	tuples [][]horn.Value // handed-out tuples, for release poisoning
	nodes  []*ProofNode
}

// NewArena creates an arena with an initial byte capacity. maxBytes of 0
// means no ceiling.
func NewArena(capacity, maxBytes int) *Arena {
	if capacity < minChunk {
		capacity = minChunk
	}
	return &Arena{
		chunks:   [][]byte{make([]byte, capacity)},
		maxBytes: maxBytes,
	}
}

// Alloc returns size bytes aligned to align. Amortized O(1); when the
// current chunk is exhausted a larger one is chained on.
func (a *Arena) Alloc(size, align int) ([]byte, error) {
	if a.released {
		return nil, ErrArenaReleased
	}
	if align <= 0 {
		align = 1
	}
	cur := a.chunks[len(a.chunks)-1]
	off := (a.off + align - 1) &^ (align - 1)
	if off+size > len(cur) {
		if err := a.grow(size + align); err != nil {
			return nil, err
		}
		cur = a.chunks[len(a.chunks)-1]
		off = 0
	}
	a.off = off + size
	a.byteSize += size
	if a.maxBytes > 0 && a.byteSize > a.maxBytes {
		return nil, ErrArenaExhausted
	}
	return cur[off : off+size : off+size], nil
}

func (a *Arena) grow(need int) error {
	next := len(a.chunks[len(a.chunks)-1]) * 2
	if next < need {
		next = need
	}
	if a.maxBytes > 0 && a.byteSize+need > a.maxBytes {
		return ErrArenaExhausted
	}
	a.chunks = append(a.chunks, make([]byte, next))
	a.off = 0
	return nil
}

// AllocTuple returns an n-value tuple owned by the arena.
func (a *Arena) AllocTuple(n int) ([]horn.Value, error) {
	if a.released {
		return nil, ErrArenaReleased
	}
	if err := a.account(n * 16); err != nil {
		return nil, err
	}
	if len(a.valueChunks) == 0 || a.valueOff+n > len(a.valueChunks[len(a.valueChunks)-1]) {
		size := 256
		if len(a.valueChunks) > 0 {
			size = len(a.valueChunks[len(a.valueChunks)-1]) * 2
		}
		if size < n {
			size = n
		}
		a.valueChunks = append(a.valueChunks, make([]horn.Value, size))
		a.valueOff = 0
	}
	chunk := a.valueChunks[len(a.valueChunks)-1]
	t := chunk[a.valueOff : a.valueOff+n : a.valueOff+n]
	a.valueOff += n
	a.tuples = append(a.tuples, t)
	return t, nil
}

// AllocProofNode returns a proof node owned by the arena.
func (a *Arena) AllocProofNode() (*ProofNode, error) {
	if a.released {
		return nil, ErrArenaReleased
	}
	if err := a.account(96); err != nil {
		return nil, err
	}
	if len(a.nodeChunks) == 0 || a.nodeOff >= len(a.nodeChunks[len(a.nodeChunks)-1]) {
		size := 64
		if len(a.nodeChunks) > 0 {
			size = len(a.nodeChunks[len(a.nodeChunks)-1]) * 2
		}
		a.nodeChunks = append(a.nodeChunks, make([]ProofNode, size))
		a.nodeOff = 0
	}
	chunk := a.nodeChunks[len(a.nodeChunks)-1]
	n := &chunk[a.nodeOff]
	a.nodeOff++
	a.nodes = append(a.nodes, n)
	return n, nil
}

func (a *Arena) account(bytes int) error {
	a.byteSize += bytes
	if a.maxBytes > 0 && a.byteSize > a.maxBytes {
		return ErrArenaExhausted
	}
	return nil
}

// Size reports the bytes consumed so far.
func (a *Arena) Size() int {
	return a.byteSize
}

// Released reports whether Release has run.
func (a *Arena) Released() bool {
	return a.released
}

// Release invalidates every allocation made from the arena. Safe to call
// more than once; only the first call has effect. Every tuple and proof
// node handed out is poisoned so a read after release observes PoisonValue
// rather than stale data.
func (a *Arena) Release() {
	if a.released {
		return
	}
	a.released = true
	for _, t := range a.tuples {
		for i := range t {
			t[i] = PoisonValue{}
		}
	}
	for _, n := range a.nodes {
		n.poison()
	}
	a.chunks = nil
	a.valueChunks = nil
	a.nodeChunks = nil
	a.tuples = nil
	a.nodes = nil
}
