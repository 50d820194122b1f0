package catalog

import (
	"github.com/samber/lo"
)

// Edge is one derived dependency: Source emits Label on success and
// Destination is triggered by it.
type Edge struct {
	Label       string `json:"label"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

// buildEdges derives the dependency graph from the message and trigger
// declarations. An edge exists for every (label, source, destination)
// where the label appears in the source's messages and the destination's
// triggers. Self-edges are allowed; cycles are the author's business.
func buildEdges(tasks []*Task) []Edge {
	var edges []Edge
	for _, src := range tasks {
		for _, label := range src.Messages {
			for _, dst := range tasks {
				if lo.Contains(dst.Triggers, label) {
					edges = append(edges, Edge{
						Label:       label,
						Source:      src.Name,
						Destination: dst.Name,
					})
				}
			}
		}
	}
	return edges
}

// childrenOf maps each task name to the names of tasks it triggers.
func childrenOf(edges []Edge) map[string][]string {
	children := make(map[string][]string)
	for _, e := range edges {
		children[e.Source] = append(children[e.Source], e.Destination)
	}
	for name := range children {
		children[name] = lo.Uniq(children[name])
	}
	return children
}

// parentsOf maps each task name to the names of tasks that trigger it.
func parentsOf(edges []Edge) map[string][]string {
	parents := make(map[string][]string)
	for _, e := range edges {
		parents[e.Destination] = append(parents[e.Destination], e.Source)
	}
	for name := range parents {
		parents[name] = lo.Uniq(parents[name])
	}
	return parents
}

// subTree walks the adjacency map from root and returns, for the root and
// every node reachable from it, that node's immediate neighbors. A
// visited set makes the walk terminate on cyclic graphs.
func subTree(root string, adjacent map[string][]string) map[string][]string {
	tree := make(map[string][]string)
	visited := make(map[string]bool)

	var walk func(name string)
	walk = func(name string) {
		if visited[name] {
			return
		}
		visited[name] = true
		tree[name] = append([]string(nil), adjacent[name]...)
		for _, next := range adjacent[name] {
			walk(next)
		}
	}
	walk(root)
	return tree
}
