package ded

import mapset "github.com/deckarep/golang-set/v2"

// tarjanSCCs computes strongly connected components of the predicate
// dependency graph (spec.md §4.5.6's stratification: "a cycle through
// rule-mode predicates is rejected at EndPredicates"). deps maps each
// predicate name to the set of names it directly depends on. The result
// is ordered so that a component never depends on a component appearing
// later in the slice (reverse topological order), which is Tarjan's
// natural output order.
func tarjanSCCs(deps map[string]mapset.Set[string]) [][]string {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}

	t := &tarjanState{
		deps:    deps,
		index:   make(map[string]int),
		lowlink: make(map[string]int),
		onStack: make(map[string]bool),
	}
	for _, name := range names {
		if _, seen := t.index[name]; !seen {
			t.strongConnect(name)
		}
	}
	return t.result
}

type tarjanState struct {
	deps    map[string]mapset.Set[string]
	index   map[string]int
	lowlink map[string]int
	onStack map[string]bool
	stack   []string
	next    int
	result  [][]string
}

func (t *tarjanState) strongConnect(v string) {
	t.index[v] = t.next
	t.lowlink[v] = t.next
	t.next++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	neighbors := t.deps[v]
	if neighbors != nil {
		for w := range neighbors.Iter() {
			if _, ok := t.deps[w]; !ok {
				// Dependency on a predicate outside this graph (shouldn't
				// happen once DeclarePredicate always registers its name,
				// but skip rather than panic).
				continue
			}
			if _, seen := t.index[w]; !seen {
				t.strongConnect(w)
				if t.lowlink[w] < t.lowlink[v] {
					t.lowlink[v] = t.lowlink[w]
				}
			} else if t.onStack[w] {
				if t.index[w] < t.lowlink[v] {
					t.lowlink[v] = t.index[w]
				}
			}
		}
	}

	if t.lowlink[v] == t.index[v] {
		var scc []string
		for {
			n := len(t.stack) - 1
			w := t.stack[n]
			t.stack = t.stack[:n]
			t.onStack[w] = false
			scc = append(scc, w)
			if w == v {
				break
			}
		}
		t.result = append(t.result, scc)
	}
}
