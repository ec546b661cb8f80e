package compiler

import (
	"fmt"
	"strings"

	"github.com/tikcccc/Form-demo/internal/ir"
)

// FlowNote is a non-blocking observation about an action graph.
//
// Loops are expected (revise and resubmit cycles) and reported as info.
// Unreachable actions are warnings: they can never be executed once the
// flow is enabled.
type FlowNote struct {
	Path    []string `json:"path"`
	Message string   `json:"message"`
	Level   string   `json:"level"` // "warning" or "info"
}

// actionGraph maps action id to the ids of its next actions, keeping
// declaration order so results are deterministic.
type actionGraph struct {
	order []string
	edges map[string][]string
}

func buildActionGraph(t *ir.Template) actionGraph {
	g := actionGraph{edges: make(map[string][]string, len(t.Actions))}
	known := make(map[string]bool, len(t.Actions))
	for _, a := range t.Actions {
		known[a.ID] = true
	}
	for _, a := range t.Actions {
		g.order = append(g.order, a.ID)
		g.edges[a.ID] = []string{}
		for _, next := range a.NextActionIDs {
			// Dangling links are publish issues, not graph edges.
			if known[next] {
				g.edges[a.ID] = append(g.edges[a.ID], next)
			}
		}
	}
	return g
}

// AnalyzeFlow reports loops and unreachable actions of a flow-enabled
// template. Templates without a flow have no graph and yield no notes.
func AnalyzeFlow(t *ir.Template) []FlowNote {
	notes := []FlowNote{}
	if !t.ActionFlowEnabled || len(t.Actions) == 0 {
		return notes
	}
	g := buildActionGraph(t)

	for _, scc := range tarjanSCC(g) {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], g)) {
			notes = append(notes, loopNote(scc, g))
		}
	}

	var starts []string
	for _, a := range t.Actions {
		if a.IsStart {
			starts = append(starts, a.ID)
		}
	}
	if len(starts) == 0 {
		return notes
	}
	reached := reachable(g, starts)
	for _, id := range g.order {
		if !reached[id] {
			notes = append(notes, FlowNote{
				Path:    []string{id},
				Message: fmt.Sprintf("Action %s is unreachable from the start action", id),
				Level:   "warning",
			})
		}
	}
	return notes
}

func reachable(g actionGraph, from []string) map[string]bool {
	seen := make(map[string]bool, len(g.order))
	queue := append([]string(nil), from...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		queue = append(queue, g.edges[id]...)
	}
	return seen
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, g actionGraph) bool {
	for _, neighbor := range g.edges[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Components are returned in discovery order with members rotated so the
// earliest declared action comes first.
func tarjanSCC(g actionGraph) [][]string {
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

		for _, w := range g.edges[v] {
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
			sccs = append(sccs, orderByDeclaration(scc, g.order))
		}
	}

	for _, node := range g.order {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

func orderByDeclaration(scc []string, order []string) []string {
	members := make(map[string]bool, len(scc))
	for _, id := range scc {
		members[id] = true
	}
	out := make([]string, 0, len(scc))
	for _, id := range order {
		if members[id] {
			out = append(out, id)
		}
	}
	return out
}

func loopNote(scc []string, g actionGraph) FlowNote {
	if len(scc) == 1 {
		id := scc[0]
		return FlowNote{
			Path:    []string{id, id},
			Message: fmt.Sprintf("Action %s links back to itself", id),
			Level:   "info",
		}
	}
	path := reconstructCyclePath(scc, g)
	return FlowNote{
		Path:    path,
		Message: fmt.Sprintf("Loop in action flow: %s", strings.Join(path, " -> ")),
		Level:   "info",
	}
}

// reconstructCyclePath walks edges inside the component from its first
// member until it returns to the start.
func reconstructCyclePath(scc []string, g actionGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	inSCC := make(map[string]bool, len(scc))
	for _, node := range scc {
		inSCC[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range g.edges[current] {
			if inSCC[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
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

	return path
}
