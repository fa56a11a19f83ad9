package analysis

import (
	"sort"

	"github.com/wbrown/horn/horn"
)

// callGraph captures which relations each relation's rules invoke, with
// negative edges tracked separately for the stratification check.
type callGraph struct {
	nodes    []string
	edges    map[string][]string
	negEdges map[string]map[string]bool
	selfLoop map[string]bool
}

func buildCallGraph(p *horn.Program) *callGraph {
	g := &callGraph{
		edges:    make(map[string][]string),
		negEdges: make(map[string]map[string]bool),
		selfLoop: make(map[string]bool),
	}

	seen := make(map[string]bool)
	addNode := func(name string) {
		if !seen[name] {
			seen[name] = true
			g.nodes = append(g.nodes, name)
		}
	}
	for _, name := range p.Registry.RelationNames() {
		addNode(name)
	}

	type edgeKey struct{ from, to string }
	edgeSeen := make(map[edgeKey]bool)
	for _, rule := range p.Rules {
		from := rule.Head.Relation
		addNode(from)
		for _, g2 := range rule.Body {
			atom, ok := g2.(horn.AtomGoal)
			if !ok {
				continue
			}
			addNode(atom.Relation)
			if atom.Relation == from {
				g.selfLoop[from] = true
			}
			k := edgeKey{from, atom.Relation}
			if !edgeSeen[k] {
				edgeSeen[k] = true
				g.edges[from] = append(g.edges[from], atom.Relation)
			}
			if atom.Negated {
				neg := g.negEdges[from]
				if neg == nil {
					neg = make(map[string]bool)
					g.negEdges[from] = neg
				}
				neg[atom.Relation] = true
			}
		}
	}

	sort.Strings(g.nodes)
	for _, succ := range g.edges {
		sort.Strings(succ)
	}
	return g
}

// sccInfo assigns each relation a strongly-connected-component id and
// records component sizes. Components are numbered deterministically.
type sccInfo struct {
	id   map[string]int
	size map[int]int
}

// condense runs an iterative Tarjan walk over the call graph. The state is
// kept in flat maps and an explicit stack rather than a recursive cyclic
// structure.
func (g *callGraph) condense() *sccInfo {
	info := &sccInfo{
		id:   make(map[string]int),
		size: make(map[int]int),
	}

	index := make(map[string]int)
	lowlink := make(map[string]int)
	onStack := make(map[string]bool)
	var stack []string
	next := 0
	comp := 0

	type frame struct {
		node string
		succ int
	}

	for _, root := range g.nodes {
		if _, visited := index[root]; visited {
			continue
		}
		frames := []frame{{node: root}}
		index[root] = next
		lowlink[root] = next
		next++
		stack = append(stack, root)
		onStack[root] = true

		for len(frames) > 0 {
			f := &frames[len(frames)-1]
			succ := g.edges[f.node]
			if f.succ < len(succ) {
				child := succ[f.succ]
				f.succ++
				if _, visited := index[child]; !visited {
					index[child] = next
					lowlink[child] = next
					next++
					stack = append(stack, child)
					onStack[child] = true
					frames = append(frames, frame{node: child})
				} else if onStack[child] {
					if index[child] < lowlink[f.node] {
						lowlink[f.node] = index[child]
					}
				}
				continue
			}

			// Node finished: pop a component when it is a root.
			finished := f.node
			frames = frames[:len(frames)-1]
			if len(frames) > 0 {
				parent := frames[len(frames)-1].node
				if lowlink[finished] < lowlink[parent] {
					lowlink[parent] = lowlink[finished]
				}
			}
			if lowlink[finished] == index[finished] {
				for {
					n := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[n] = false
					info.id[n] = comp
					info.size[comp]++
					if n == finished {
						break
					}
				}
				comp++
			}
		}
	}
	return info
}

// recursive reports whether a relation participates in recursion, directly
// or through a cycle of other relations. Such relations require tabling.
func (g *callGraph) recursive(info *sccInfo, name string) bool {
	if g.selfLoop[name] {
		return true
	}
	return info.size[info.id[name]] > 1
}

// stratify reports a diagnostic for every negative dependency that stays
// inside one strongly connected component.
func (g *callGraph) stratify(info *sccInfo) []horn.Diagnostic {
	var diags []horn.Diagnostic
	var froms []string
	for from := range g.negEdges {
		froms = append(froms, from)
	}
	sort.Strings(froms)
	for _, from := range froms {
		var tos []string
		for to := range g.negEdges[from] {
			tos = append(tos, to)
		}
		sort.Strings(tos)
		for _, to := range tos {
			if info.id[from] == info.id[to] {
				diags = append(diags, horn.Errorf(horn.StratificationError, from, -1, -1,
					"negation of %s depends cyclically on %s", to, from))
			}
		}
	}
	return diags
}
