package topology

import (
	"fmt"
	"sort"
	"strings"
)

// FeedbackLoop describes a cycle in the vertex graph.
//
// Loops are warnings, not errors: independent checkpointing handles them,
// but the coordinated barrier protocol cannot complete a round across one.
type FeedbackLoop struct {
	Path    []string `json:"path"`    // e.g. ["B", "C", "B"]
	Message string   `json:"message"` // human-readable description
}

// FeedbackLoops finds every strongly connected component of the vertex graph
// that forms a cycle (size > 1, or a vertex feeding itself).
//
// Uses Tarjan's algorithm. A DAG returns an empty slice. Output is sorted by
// the first vertex of each loop for stable reporting.
func (g *Graph) FeedbackLoops() []FeedbackLoop {
	down := make(map[string][]string, len(g.vertices))
	for _, v := range g.vertices {
		down[v] = nil
	}
	for _, v := range g.vertices {
		for _, u := range g.vertexUp[v] {
			down[u] = append(down[u], v)
		}
	}
	for v := range down {
		sort.Strings(down[v])
	}

	loops := []FeedbackLoop{}
	for _, scc := range tarjanSCC(g.vertices, down) {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], down)) {
			sort.Strings(scc)
			loops = append(loops, sccToLoop(scc, down))
		}
	}
	sort.Slice(loops, func(i, j int) bool { return loops[i].Path[0] < loops[j].Path[0] })
	return loops
}

// HasFeedbackLoops reports whether any cycle exists.
func (g *Graph) HasFeedbackLoops() bool {
	return len(g.FeedbackLoops()) > 0
}

func hasSelfLoop(v string, down map[string][]string) bool {
	for _, w := range down[v] {
		if w == v {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components. Nodes are visited in the
// given order so results are deterministic.
func tarjanSCC(nodes []string, down map[string][]string) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range down[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, v := range nodes {
		if _, visited := indices[v]; !visited {
			strongConnect(v)
		}
	}
	return sccs
}

// sccToLoop walks edges inside the component from its first member until it
// returns to the start, producing a readable cycle path.
func sccToLoop(scc []string, down map[string][]string) FeedbackLoop {
	start := scc[0]
	if len(scc) == 1 {
		return FeedbackLoop{
			Path:    []string{start, start},
			Message: fmt.Sprintf("vertex %s feeds itself", start),
		}
	}

	members := make(map[string]bool, len(scc))
	for _, v := range scc {
		members[v] = true
	}

	path := []string{start}
	visited := map[string]bool{}
	current := start
	for {
		visited[current] = true
		next := ""
		for _, w := range down[current] {
			if members[w] && (!visited[w] || w == start) {
				next = w
				if w != start {
					break
				}
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}

	return FeedbackLoop{
		Path:    path,
		Message: fmt.Sprintf("feedback loop: %s", strings.Join(path, " -> ")),
	}
}
