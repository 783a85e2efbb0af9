package ded

import "sort"

// Table operators (spec.md §4.9): stateless transforms from one or more
// input predicates' current extents into an output predicate's extent,
// run as a ModeOperator predicate's update step. Each constructor below
// returns an OperatorFunc closed over its declared inputs and output
// column layout; wiring the resulting func into a ModeOperator predicate
// is the caller's job (DeclarePredicate + assigning .Operator/.OpInputs).

// CountsByOperator groups in's rows by the values of groupCols and counts
// rows per group, writing (group-values..., count) into the output table
// (spec.md §4.9, "CountsBy"). Groups are written in first-discovery
// order, i.e. the order in which a scan of in first meets each group's
// values.
func CountsByOperator(in *Predicate, groupCols []int, countType ColumnType) OperatorFunc {
	return func(out *Predicate) error {
		out.Table.Clear()
		order := make([]string, 0)
		counts := make(map[string]int)
		vals := make(map[string][]any)
		for _, row := range in.Rows() {
			key := ""
			gv := make([]any, len(groupCols))
			for i, c := range groupCols {
				gv[i] = row[c]
				key += in.Columns[c].Type.Format(row[c]) + "\x00"
			}
			if _, seen := counts[key]; !seen {
				order = append(order, key)
				vals[key] = gv
			}
			counts[key]++
		}
		for _, key := range order {
			gv := vals[key]
			newRow := make(Row, 0, len(gv)+1)
			newRow = append(newRow, gv...)
			newRow = append(newRow, counts[key])
			if _, err := out.Table.Add(newRow); err != nil {
				return err
			}
		}
		return nil
	}
}

// ClosureOperator computes the transitive closure of a two-column
// relation in (spec.md §4.9, "Closure"). If reflexive is true, (x, x) is
// added for every x appearing in either column, even if x has no
// transitive successors.
func ClosureOperator(in *Predicate, reflexive bool) OperatorFunc {
	return func(out *Predicate) error {
		out.Table.Clear()
		adj := make(map[any][]any)
		seen := make(map[any]bool)
		var order []any
		colType := in.Columns[0].Type
		key := func(v any) string { return colType.Format(v) }

		for _, row := range in.Rows() {
			a, b := row[0], row[1]
			ka, kb := key(a), key(b)
			adj[ka] = append(adj[ka], b)
			if !seen[ka] {
				seen[ka] = true
				order = append(order, a)
			}
			if !seen[kb] {
				seen[kb] = true
				order = append(order, b)
			}
		}

		for _, row := range in.Rows() {
			a := row[0]
			ka := key(a)
			visited := make(map[string]bool)
			var stack []any
			stack = append(stack, adj[ka]...)
			for len(stack) > 0 {
				n := len(stack) - 1
				b := stack[n]
				stack = stack[:n]
				kb := key(b)
				if visited[kb] {
					continue
				}
				visited[kb] = true
				if _, err := out.Table.Add(Row{a, b}); err != nil {
					return err
				}
				stack = append(stack, adj[kb]...)
			}
		}
		if reflexive {
			for _, x := range order {
				if _, err := out.Table.Add(Row{x, x}); err != nil {
					return err
				}
			}
		}
		return nil
	}
}

// unionFind is a simple union-find with path compression, used by
// EquivalenceClassOperator.
type unionFind struct {
	parent map[string]string
	rep    map[string]any
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[string]string), rep: make(map[string]any)}
}

func (u *unionFind) add(k string, v any) {
	if _, ok := u.parent[k]; !ok {
		u.parent[k] = k
		u.rep[k] = v
	}
}

func (u *unionFind) find(k string) string {
	for u.parent[k] != k {
		u.parent[k] = u.parent[u.parent[k]]
		k = u.parent[k]
	}
	return k
}

func (u *unionFind) union(a, b string) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	// Canonical representative is the lexicographically smaller key, so
	// the result is stable across runs regardless of edge discovery order.
	if rb < ra {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
}

// EquivalenceClassOperator computes connected components over the edges
// of in (spec.md §4.9, "EquivalenceClass"), writing (x, rep) for every x
// that appears in either column of in.
func EquivalenceClassOperator(in *Predicate) OperatorFunc {
	return func(out *Predicate) error {
		out.Table.Clear()
		colType := in.Columns[0].Type
		key := func(v any) string { return colType.Format(v) }

		uf := newUnionFind()
		var order []any
		orderSeen := make(map[string]bool)
		addOrdered := func(v any) {
			k := key(v)
			if !orderSeen[k] {
				orderSeen[k] = true
				order = append(order, v)
			}
			uf.add(k, v)
		}
		for _, row := range in.Rows() {
			a, b := row[0], row[1]
			addOrdered(a)
			addOrdered(b)
			uf.union(key(a), key(b))
		}
		for _, x := range order {
			root := uf.find(key(x))
			if _, err := out.Table.Add(Row{x, uf.rep[root]}); err != nil {
				return err
			}
		}
		return nil
	}
}

// AssignRandomlyOperator picks one candidate row per distinct first-column
// value uniformly at random, via rnd (spec.md §4.9, "AssignRandomly").
func AssignRandomlyOperator(in *Predicate, rnd RandomFunc) OperatorFunc {
	return func(out *Predicate) error {
		out.Table.Clear()
		colType := in.Columns[0].Type
		key := func(v any) string { return colType.Format(v) }

		groups := make(map[string][]Row)
		var order []string
		for _, row := range in.Rows() {
			k := key(row[0])
			if _, seen := groups[k]; !seen {
				order = append(order, k)
			}
			groups[k] = append(groups[k], row)
		}
		for _, k := range order {
			rows := groups[k]
			choice := rows[0]
			if len(rows) > 1 {
				choice = rows[rnd(len(rows))]
			}
			if _, err := out.Table.Add(choice); err != nil {
				return err
			}
		}
		return nil
	}
}

// greedyCandidate is one row of a candidates relation, kept with its
// original row order for stable tie-breaking.
type greedyCandidate struct {
	row     Row
	utility float64
	order   int
}

func readUtility(row Row, col int, typ ColumnType) float64 {
	switch v := row[col].(type) {
	case int:
		return float64(v)
	case float64:
		return v
	default:
		_ = typ
		return 0
	}
}

// AssignGreedilyOperator assigns each distinct first-column value to the
// highest-utility second-column value, optionally respecting a capacity
// per second-column value (spec.md §4.9, "AssignGreedily"). capacities may
// be nil, meaning second-column values are not limited: any number of
// first-column values may share one. With a non-nil map, a second-column
// value missing from it is never assigned. Ties in utility are broken by
// the candidate table's row order.
func AssignGreedilyOperator(in *Predicate, utilityCol int, capacities map[any]int) OperatorFunc {
	return func(out *Predicate) error {
		out.Table.Clear()
		colType := in.Columns[0].Type
		key := func(v any) string { return colType.Format(v) }

		candidates := make([]greedyCandidate, 0, in.Table.Length())
		for i, row := range in.Rows() {
			candidates = append(candidates, greedyCandidate{
				row:     row,
				utility: readUtility(row, utilityCol, in.Columns[utilityCol].Type),
				order:   i,
			})
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			if candidates[i].utility != candidates[j].utility {
				return candidates[i].utility > candidates[j].utility
			}
			return candidates[i].order < candidates[j].order
		})

		assigned := make(map[string]bool)
		remaining := make(map[any]int)
		for k, v := range capacities {
			remaining[k] = v
		}
		for _, c := range candidates {
			firstKey := key(c.row[0])
			if assigned[firstKey] {
				continue
			}
			second := c.row[1]
			if capacities != nil {
				if remaining[second] <= 0 {
					continue
				}
			}
			assigned[firstKey] = true
			if capacities != nil {
				remaining[second]--
			}
			if _, err := out.Table.Add(c.row); err != nil {
				return err
			}
		}
		return nil
	}
}

// MatchGreedilyOperator is AssignGreedily with the second column also
// treated as a single-use assignee space, i.e. unlimited-capacity
// AssignGreedily where both columns are claimed on use (spec.md §4.9,
// "MatchGreedily").
func MatchGreedilyOperator(in *Predicate, utilityCol int) OperatorFunc {
	return func(out *Predicate) error {
		out.Table.Clear()
		firstType := in.Columns[0].Type
		secondType := in.Columns[1].Type
		firstKey := func(v any) string { return firstType.Format(v) }
		secondKey := func(v any) string { return secondType.Format(v) }

		candidates := make([]greedyCandidate, 0, in.Table.Length())
		for i, row := range in.Rows() {
			candidates = append(candidates, greedyCandidate{
				row:     row,
				utility: readUtility(row, utilityCol, in.Columns[utilityCol].Type),
				order:   i,
			})
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			if candidates[i].utility != candidates[j].utility {
				return candidates[i].utility > candidates[j].utility
			}
			return candidates[i].order < candidates[j].order
		})

		usedFirst := make(map[string]bool)
		usedSecond := make(map[string]bool)
		for _, c := range candidates {
			fk, sk := firstKey(c.row[0]), secondKey(c.row[1])
			if usedFirst[fk] || usedSecond[sk] {
				continue
			}
			usedFirst[fk] = true
			usedSecond[sk] = true
			if _, err := out.Table.Add(c.row); err != nil {
				return err
			}
		}
		return nil
	}
}
