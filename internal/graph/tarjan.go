package graph

import (
	"sort"
)

// GenerationOrder computes the doc generation schedule: Tarjan's strongly
// connected components over the internal dependency edges, condensed to a
// DAG and Kahn-sorted so every component comes after the components it
// depends on. Each emitted level is one SCC; multi-node levels are cycles
// that must be generated together.
func (g *FolderGraph) GenerationOrder() [][]string {
	sccs := g.tarjan()

	// Condense to a DAG over component ids.
	comp := make([]int, len(g.nodes))
	for ci, members := range sccs {
		for _, n := range members {
			comp[n] = ci
		}
	}
	depsOf := make([]map[int]struct{}, len(sccs))
	indegree := make([]int, len(sccs))
	for ci := range sccs {
		depsOf[ci] = make(map[int]struct{})
	}
	for from, node := range g.nodes {
		for to := range node.deps {
			cf, ct := comp[from], comp[to]
			if cf == ct {
				continue
			}
			// A component is scheduled after everything it depends on,
			// so the condensed edge runs dependency -> dependent.
			if _, seen := depsOf[cf][ct]; !seen {
				depsOf[cf][ct] = struct{}{}
				indegree[cf]++
			}
		}
	}

	dependents := make([][]int, len(sccs))
	for cf, deps := range depsOf {
		for ct := range deps {
			dependents[ct] = append(dependents[ct], cf)
		}
	}

	// Kahn with a sorted frontier for deterministic output.
	var frontier []int
	for ci := range sccs {
		if indegree[ci] == 0 {
			frontier = append(frontier, ci)
		}
	}
	var order [][]string
	for len(frontier) > 0 {
		sort.Slice(frontier, func(i, j int) bool {
			return sccLabel(g, sccs[frontier[i]]) < sccLabel(g, sccs[frontier[j]])
		})
		next := frontier[0]
		frontier = frontier[1:]
		order = append(order, g.sccPaths(sccs[next]))
		for _, dep := range dependents[next] {
			indegree[dep]--
			if indegree[dep] == 0 {
				frontier = append(frontier, dep)
			}
		}
	}
	return order
}

func (g *FolderGraph) sccPaths(members []int) []string {
	out := make([]string, len(members))
	for i, n := range members {
		out[i] = g.nodes[n].path
	}
	sort.Strings(out)
	return out
}

func sccLabel(g *FolderGraph, members []int) string {
	best := g.nodes[members[0]].path
	for _, n := range members[1:] {
		if g.nodes[n].path < best {
			best = g.nodes[n].path
		}
	}
	return best
}

// tarjan runs Tarjan's SCC algorithm with an explicit stack, immune to
// recursion depth on large trees.
func (g *FolderGraph) tarjan() [][]int {
	n := len(g.nodes)
	const unvisited = -1
	indexOf := make([]int, n)
	lowlink := make([]int, n)
	onStack := make([]bool, n)
	for i := range indexOf {
		indexOf[i] = unvisited
	}

	var sccs [][]int
	var stack []int
	counter := 0

	type frame struct {
		node  int
		succs []int
		next  int
	}

	sortedSuccs := func(v int) []int {
		out := make([]int, 0, len(g.nodes[v].deps))
		for to := range g.nodes[v].deps {
			out = append(out, to)
		}
		sort.Ints(out)
		return out
	}

	for start := 0; start < n; start++ {
		if indexOf[start] != unvisited {
			continue
		}
		work := []frame{{node: start, succs: sortedSuccs(start)}}
		indexOf[start] = counter
		lowlink[start] = counter
		counter++
		stack = append(stack, start)
		onStack[start] = true

		for len(work) > 0 {
			f := &work[len(work)-1]
			if f.next < len(f.succs) {
				succ := f.succs[f.next]
				f.next++
				if indexOf[succ] == unvisited {
					indexOf[succ] = counter
					lowlink[succ] = counter
					counter++
					stack = append(stack, succ)
					onStack[succ] = true
					work = append(work, frame{node: succ, succs: sortedSuccs(succ)})
				} else if onStack[succ] && indexOf[succ] < lowlink[f.node] {
					lowlink[f.node] = indexOf[succ]
				}
				continue
			}

			v := f.node
			work = work[:len(work)-1]
			if len(work) > 0 {
				parent := work[len(work)-1].node
				if lowlink[v] < lowlink[parent] {
					lowlink[parent] = lowlink[v]
				}
			}
			if lowlink[v] == indexOf[v] {
				var members []int
				for {
					top := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[top] = false
					members = append(members, top)
					if top == v {
						break
					}
				}
				sccs = append(sccs, members)
			}
		}
	}
	return sccs
}
