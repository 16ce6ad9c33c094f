// Package relations derives a directed multigraph of character opinions from
// the narrative store. Graphs are stateless projections: rebuild them whenever
// the character set changes.
package relations

import (
	"fmt"
	"slices"
	"strings"

	"github.com/tailored-agentic-units/storyloop/session"
)

// Edge is one directed opinion. Several edges may connect the same ordered
// pair; they are kept distinct.
type Edge struct {
	Source string
	Target string
	Label  string
	Trust  int
}

// Graph is an immutable multigraph over character names.
type Graph struct {
	nodes []string
	edges []Edge
	out   map[string][]int
	in    map[string][]int
}

// Build derives a Graph from each character's OpinionsOf list. Nodes are the
// characters in store order followed by any opinion targets that are not
// known characters, in first-seen order.
func Build(characters []session.Character) *Graph {
	var edges []Edge
	for _, c := range characters {
		for _, op := range c.OpinionsOf {
			edges = append(edges, Edge{
				Source: c.Name,
				Target: op.CharacterName,
				Label:  op.OpinionText,
				Trust:  op.TrustLevel,
			})
		}
	}

	names := make([]string, 0, len(characters))
	for _, c := range characters {
		names = append(names, c.Name)
	}
	return newGraph(names, edges)
}

// FromEdges builds a Graph from an explicit edge list.
func FromEdges(edges []Edge) *Graph {
	return newGraph(nil, edges)
}

func newGraph(names []string, edges []Edge) *Graph {
	g := &Graph{
		edges: slices.Clone(edges),
		out:   make(map[string][]int),
		in:    make(map[string][]int),
	}

	seen := make(map[string]bool)
	addNode := func(name string) {
		if !seen[name] {
			seen[name] = true
			g.nodes = append(g.nodes, name)
		}
	}

	for _, n := range names {
		addNode(n)
	}
	for i, e := range g.edges {
		addNode(e.Source)
		addNode(e.Target)
		g.out[e.Source] = append(g.out[e.Source], i)
		g.in[e.Target] = append(g.in[e.Target], i)
	}
	return g
}

// Nodes returns every node name.
func (g *Graph) Nodes() []string {
	return slices.Clone(g.nodes)
}

// Edges returns every edge in derivation order.
func (g *Graph) Edges() []Edge {
	return slices.Clone(g.edges)
}

// Outgoing returns the edges whose source is name.
func (g *Graph) Outgoing(name string) []Edge {
	return g.pick(g.out[name])
}

// Incoming returns the edges whose target is name.
func (g *Graph) Incoming(name string) []Edge {
	return g.pick(g.in[name])
}

// Between returns every edge from source to target.
func (g *Graph) Between(source, target string) []Edge {
	var out []Edge
	for _, i := range g.out[source] {
		if g.edges[i].Target == target {
			out = append(out, g.edges[i])
		}
	}
	return out
}

func (g *Graph) pick(idx []int) []Edge {
	out := make([]Edge, len(idx))
	for i, j := range idx {
		out[i] = g.edges[j]
	}
	return out
}

// DOT renders the graph in Graphviz DOT form for external renderers.
func (g *Graph) DOT() string {
	var b strings.Builder
	b.WriteString("digraph relationships {\n")
	for _, n := range g.nodes {
		fmt.Fprintf(&b, "  %s;\n", quote(n))
	}
	for _, e := range g.edges {
		fmt.Fprintf(&b, "  %s -> %s [label=%s];\n", quote(e.Source), quote(e.Target), quote(e.Label))
	}
	b.WriteString("}\n")
	return b.String()
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
