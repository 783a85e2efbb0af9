package ded

// AndCall is ordered conjunction over a fixed array of subgoals, holding a
// "current subgoal index" the same way the rule executor does for a rule
// body (spec.md §4.6, §4.7): success advances to the next subgoal;
// failure backtracks to the previous one; falling off either end
// terminates.
type AndCall struct {
	goals []Call
	idx   int
}

// NewAndCall builds a conjunction over goals, tried strictly left to
// right.
func NewAndCall(goals ...Call) *AndCall {
	return &AndCall{goals: goals}
}

func (a *AndCall) Reset() {
	a.idx = 0
	if len(a.goals) > 0 {
		a.goals[0].Reset()
	}
}

func (a *AndCall) NextSolution() bool {
	if len(a.goals) == 0 {
		// Conjunction of zero goals succeeds exactly once (vacuous truth),
		// mirroring an empty rule body (a fact).
		if a.idx == 0 {
			a.idx = 1
			return true
		}
		return false
	}
	for {
		if a.idx < 0 {
			return false
		}
		if a.goals[a.idx].NextSolution() {
			if a.idx == len(a.goals)-1 {
				return true
			}
			a.idx++
			a.goals[a.idx].Reset()
			continue
		}
		a.idx--
	}
}

// FirstOfCall is ordered disjunction: it tries each branch in turn and
// commits to the first that yields a solution. Binding-mode analysis of
// the outer rule only ever sees the intersection of variables bound
// across branches (compiled in by the analyzer, not here); at runtime,
// once committed, only the chosen branch is backtracked into (spec.md
// §4.6, §9 open question on FirstOf semantics).
type FirstOfCall struct {
	branches []Call
	chosen   int // -1 until committed
}

// NewFirstOfCall builds a disjunction over branches.
func NewFirstOfCall(branches ...Call) *FirstOfCall {
	return &FirstOfCall{chosen: -1, branches: branches}
}

func (f *FirstOfCall) Reset() {
	f.chosen = -1
}

func (f *FirstOfCall) NextSolution() bool {
	if f.chosen >= 0 {
		return f.branches[f.chosen].NextSolution()
	}
	for i, b := range f.branches {
		b.Reset()
		if b.NextSolution() {
			f.chosen = i
			return true
		}
	}
	return false
}

// NotCall succeeds iff its child has no solution. The child is reset each
// time; bindings made inside it never leak outward because the analyzer
// compiles the child in its own cell scope (spec.md §4.6).
type NotCall struct {
	child Call
	done  bool
}

// NewNotCall builds a negation over child.
func NewNotCall(child Call) *NotCall {
	return &NotCall{child: child}
}

func (n *NotCall) Reset() { n.done = false }

func (n *NotCall) NextSolution() bool {
	if n.done {
		return false
	}
	n.done = true
	n.child.Reset()
	return !n.child.NextSolution()
}

// OnceCall adapts a child to succeed at most once per Reset (spec.md §4.6).
type OnceCall struct {
	child Call
	done  bool
}

// NewOnceCall wraps child so it yields at most one solution.
func NewOnceCall(child Call) *OnceCall {
	return &OnceCall{child: child}
}

func (o *OnceCall) Reset() {
	o.child.Reset()
	o.done = false
}

func (o *OnceCall) NextSolution() bool {
	if o.done {
		return false
	}
	o.done = true
	return o.child.NextSolution()
}

// LimitSolutionsCall lets its child succeed at most n times between
// resets (spec.md §4.6).
type LimitSolutionsCall struct {
	child Call
	limit int
	count int
}

// NewLimitSolutionsCall wraps child so it yields at most limit solutions.
func NewLimitSolutionsCall(limit int, child Call) *LimitSolutionsCall {
	return &LimitSolutionsCall{child: child, limit: limit}
}

func (l *LimitSolutionsCall) Reset() {
	l.child.Reset()
	l.count = 0
}

func (l *LimitSolutionsCall) NextSolution() bool {
	if l.count >= l.limit {
		return false
	}
	if l.child.NextSolution() {
		l.count++
		return true
	}
	return false
}
