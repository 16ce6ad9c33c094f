package branch

import (
	"fmt"
	"strings"
)

const contentPreview = 20

// Render formats nodes as a depth-indented listing starting from every root.
// Traversal is iterative over a parent-to-children index built once, so deep
// branches do not grow the call stack. Nodes whose parent is absent from the
// input are not reachable and are omitted.
func Render(nodes []Node) string {
	children := make(map[string][]Node, len(nodes))
	var roots []Node
	for _, n := range nodes {
		if n.IsRoot() {
			roots = append(roots, n)
			continue
		}
		children[n.ParentID] = append(children[n.ParentID], n)
	}

	type frame struct {
		node  Node
		depth int
	}

	var b strings.Builder
	for _, root := range roots {
		stack := []frame{{root, 0}}
		for len(stack) > 0 {
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			fmt.Fprintf(&b, "%s- %s (Votes: %d) (%s)\n",
				strings.Repeat("  ", f.depth),
				truncate(f.node.Content, contentPreview),
				f.node.Votes,
				f.node.ShortID(),
			)

			kids := children[f.node.ID]
			for i := len(kids) - 1; i >= 0; i-- {
				stack = append(stack, frame{kids[i], f.depth + 1})
			}
		}
	}
	return b.String()
}
