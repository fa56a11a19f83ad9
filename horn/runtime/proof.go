package runtime

import "github.com/wbrown/horn/horn"

// ProofKind identifies what a derivation node records.
type ProofKind int

const (
	// ProofFact is a leaf: a fact literally present in the fact tables.
	ProofFact ProofKind = iota
	// ProofRule is a successful rule application; its children are the
	// sub-derivations of the body's relation goals in execution order.
	ProofRule
	// ProofNegation records a negated goal that held (no solutions).
	ProofNegation
	// ProofQuery is the root node for a top-level query; its children are
	// the derivations of each query goal in order.
	ProofQuery
)

func (k ProofKind) String() string {
	switch k {
	case ProofFact:
		return "fact"
	case ProofRule:
		return "rule"
	case ProofNegation:
		return "negation"
	case ProofQuery:
		return "query"
	}
	return "unknown"
}

// ProofNode is one step of a derivation. Nodes form a tree, not a graph: a
// node is owned by its parent and the query result owns the root. All nodes
// are arena-allocated, so the tree is only valid until the query's arena is
// released.
type ProofNode struct {
	Kind      ProofKind
	Relation  string
	RuleIndex int // rule that fired, -1 for facts and negations
	Args      []horn.Value
	Children  []*ProofNode

	poisoned bool
}

// Poisoned reports whether the owning arena has been released.
func (n *ProofNode) Poisoned() bool {
	return n.poisoned
}

func (n *ProofNode) poison() {
	n.poisoned = true
	n.Relation = ""
	n.Args = nil
	n.Children = nil
}

// Leaves appends every leaf of the subtree to out, left to right.
func (n *ProofNode) Leaves(out []*ProofNode) []*ProofNode {
	if len(n.Children) == 0 {
		return append(out, n)
	}
	for _, c := range n.Children {
		out = c.Leaves(out)
	}
	return out
}
