package runtime

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/wbrown/horn/horn"
)

// ProofRenderer pretty-prints derivation trees.
type ProofRenderer struct {
	useColor bool
}

// NewProofRenderer creates a renderer. Color is off by default so rendered
// proofs are stable in tests and logs; enable it for terminal output.
func NewProofRenderer(useColor bool) *ProofRenderer {
	return &ProofRenderer{useColor: useColor}
}

// Render produces a human-readable derivation: one line per node, children
// indented beneath their parent, in the order their goals executed.
func (r *ProofRenderer) Render(node *ProofNode) string {
	var b strings.Builder
	r.render(&b, node, 0)
	return b.String()
}

func (r *ProofRenderer) render(b *strings.Builder, node *ProofNode, depth int) {
	if node == nil {
		return
	}
	b.WriteString(strings.Repeat("  ", depth))
	if node.Poisoned() {
		b.WriteString(r.colorize("<released>", color.FgRed))
		b.WriteByte('\n')
		return
	}

	switch node.Kind {
	case ProofFact:
		b.WriteString(r.colorize("fact", color.FgGreen))
		b.WriteString(" ")
		b.WriteString(node.Relation)
		b.WriteString(horn.FormatTuple(node.Args))
	case ProofRule:
		b.WriteString(r.colorize("rule", color.FgYellow))
		b.WriteString(fmt.Sprintf(" %s%s [clause %d]", node.Relation, horn.FormatTuple(node.Args), node.RuleIndex))
	case ProofNegation:
		b.WriteString(r.colorize("not", color.FgMagenta))
		b.WriteString(" ")
		b.WriteString(node.Relation)
		b.WriteString(horn.FormatTuple(node.Args))
		b.WriteString(" (no solutions)")
	case ProofQuery:
		b.WriteString(r.colorize("query", color.FgCyan))
		if node.Relation != "" {
			b.WriteString(" " + node.Relation)
		}
	}
	b.WriteByte('\n')
	for _, c := range node.Children {
		r.render(b, c, depth+1)
	}
}

func (r *ProofRenderer) colorize(s string, attr color.Attribute) string {
	if !r.useColor {
		return s
	}
	return color.New(attr).Sprint(s)
}
