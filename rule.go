package ded

import (
	mapset "github.com/deckarep/golang-set/v2"
)

// Rule is a compiled rule: a head pattern writing into its predicate's
// table, an ordered body of call iterators, and the set of predicates it
// directly depends on (spec.md §3, §4.5).
type Rule struct {
	owner   *Predicate
	Head    Pattern
	Body    []Call
	Deps    mapset.Set[string]
	Impure  bool // true if the body calls a non-pure primitive or Random (spec.md §4.8 dynamicity inference)
	Comment string // source text, for diagnostics only (e.g. "Mapped(d,n) :- Day(d), NextDay(d,n)")
}

// run executes the rule once against its current body, writing a head row
// for every successful full enumeration of the body (spec.md §4.7). It
// returns the number of head rows written and any RuleExecution error
// encountered along the way (a primitive panicking is recovered here).
func (r *Rule) run(p *Program) (count int, err error) {
	cur := 0
	defer func() {
		if rec := recover(); rec != nil {
			pe, ok := rec.(primitiveError)
			if !ok {
				panic(rec)
			}
			err = &RuleError{Predicate: r.owner.Name, Rule: r, Subgoal: cur, Cause: pe.cause}
		}
	}()

	if len(r.Body) == 0 {
		// A fact: the head always succeeds once.
		row := r.Head.NewRow()
		if _, addErr := r.owner.Table.Add(row); addErr != nil {
			return 0, addErr
		}
		return 1, nil
	}

	r.Body[0].Reset()
	i := 0
	for {
		cur = i
		if r.Body[i].NextSolution() {
			if i == len(r.Body)-1 {
				row := r.Head.NewRow()
				if _, addErr := r.owner.Table.Add(row); addErr != nil {
					return count, addErr
				}
				count++
				continue
			}
			i++
			r.Body[i].Reset()
		} else {
			i--
			if i < 0 {
				return count, nil
			}
		}
	}
}
