package ded

// Var is a host-facing logical variable: a placeholder used when building
// a rule body, distinct from the Cell the analyzer allocates for it at
// compile time (one Cell per Var per rule, spec.md §4.3/§4.5).
type Var struct {
	Name string
	Type ColumnType
}

// NewVar creates a fresh rule variable of the given type.
func NewVar(name string, t ColumnType) *Var { return &Var{Name: name, Type: t} }

// Term is one argument of a literal or primitive call: a *Var, an *Expr
// (a functional sub-term the analyzer hoists into a preceding Eval goal,
// per spec.md §4.5.2), or a bare constant value.
type Term any

// Expr is a functional sub-term appearing in an argument position, e.g.
// Day(Succ(X)). The analyzer hoists it into a fresh Eval(new_var, expr)
// goal ahead of the literal that contains it (spec.md §4.5.2). Hoisting a
// given *Expr value is idempotent: the same *Expr, encountered twice
// within one rule, is hoisted only once.
type Expr struct {
	Fn   EvalFunc
	Args []Term
	Type ColumnType
}

// Literal is a predicate applied to arguments (spec.md §3).
type Literal struct {
	Pred *Predicate
	Args []Term
}

// L builds a Literal for pred with the given arguments.
func L(pred *Predicate, args ...Term) Literal {
	return Literal{Pred: pred, Args: args}
}

// Goal is one subgoal within a rule body (spec.md §3, §4.6).
type Goal interface{ isGoal() }

// TableGoal calls a predicate (spec.md §4.6, table scan/index calls).
type TableGoal struct {
	Lit Literal
}

func (TableGoal) isGoal() {}

// T builds a TableGoal for pred applied to args.
func T(pred *Predicate, args ...Term) Goal { return TableGoal{Lit: L(pred, args...)} }

// PrimGoal calls a host primitive (spec.md §4.6, Primitive Test).
type PrimGoal struct {
	Prim Primitive
	Args []Term
}

func (PrimGoal) isGoal() {}

// Prim builds a primitive-test goal.
func Prim(p Primitive, args ...Term) Goal { return PrimGoal{Prim: p, Args: args} }

// EvalGoal computes a functional expression and binds Out to its value
// (spec.md §4.6, Eval/Match).
type EvalGoal struct {
	Out  *Var
	Fn   EvalFunc
	Args []Term
	Type ColumnType
}

func (EvalGoal) isGoal() {}

// Eval builds an explicit Eval goal. Most functional terms are instead
// hoisted automatically from argument position (see Expr); Eval is for
// hosts that want the binding spelled out.
func Eval(out *Var, t ColumnType, fn EvalFunc, args ...Term) Goal {
	return EvalGoal{Out: out, Fn: fn, Args: args, Type: t}
}

// CmpGoal is a comparison primitive (spec.md §4.6).
type CmpGoal struct {
	Op   Comparator
	Type ColumnType
	A, B Term
}

func (CmpGoal) isGoal() {}

func Lt(t ColumnType, a, b Term) Goal { return CmpGoal{Op: CmpLT, Type: t, A: a, B: b} }
func Le(t ColumnType, a, b Term) Goal { return CmpGoal{Op: CmpLE, Type: t, A: a, B: b} }
func Gt(t ColumnType, a, b Term) Goal { return CmpGoal{Op: CmpGT, Type: t, A: a, B: b} }
func Ge(t ColumnType, a, b Term) Goal { return CmpGoal{Op: CmpGE, Type: t, A: a, B: b} }

// NotGoal succeeds iff Inner has no solution (spec.md §4.6).
type NotGoal struct{ Inner Goal }

func (NotGoal) isGoal() {}

// Not builds a negation goal.
func Not(inner Goal) Goal { return NotGoal{Inner: inner} }

// OnceGoal adapts Inner to succeed at most once (spec.md §4.6).
type OnceGoal struct{ Inner Goal }

func (OnceGoal) isGoal() {}

// Once builds a goal that commits to Inner's first solution.
func Once(inner Goal) Goal { return OnceGoal{Inner: inner} }

// LimitGoal lets Inner succeed at most N times per Reset (spec.md §4.6).
type LimitGoal struct {
	N     int
	Inner Goal
}

func (LimitGoal) isGoal() {}

// Limit builds a bounded-solutions goal.
func Limit(n int, inner Goal) Goal { return LimitGoal{N: n, Inner: inner} }

// AndGoal is ordered conjunction (spec.md §4.6).
type AndGoal struct{ Goals []Goal }

func (AndGoal) isGoal() {}

// And builds a conjunction, flattening any nested AndGoals.
func And(goals ...Goal) Goal {
	var flat []Goal
	for _, g := range goals {
		if a, ok := g.(AndGoal); ok {
			flat = append(flat, a.Goals...)
		} else {
			flat = append(flat, g)
		}
	}
	return AndGoal{Goals: flat}
}

// FirstOfGoal is ordered disjunction, committing to the first branch with
// a solution (spec.md §4.6).
type FirstOfGoal struct{ Branches []Goal }

func (FirstOfGoal) isGoal() {}

// FirstOf builds a disjunction goal.
func FirstOf(branches ...Goal) Goal { return FirstOfGoal{Branches: branches} }

// InGoal is the `In` goal (spec.md §4.6): membership test if Element is
// bound, generator if not.
type InGoal struct {
	Collection, Element Term
	Type                ColumnType
}

func (InGoal) isGoal() {}

// In builds an `In` goal testing or generating Element from Collection.
func In(t ColumnType, collection, element Term) Goal {
	return InGoal{Collection: collection, Element: element, Type: t}
}

// RandomGoal samples one element of Collection into Element per Reset
// (spec.md §4.6, PickRandomly/RandomElement).
type RandomGoal struct {
	Collection Term
	Element    *Var
}

func (RandomGoal) isGoal() {}

// RandomElement builds a goal that binds element to one uniformly sampled
// member of collection.
func RandomElement(collection Term, element *Var) Goal {
	return RandomGoal{Collection: collection, Element: element}
}

// AggGoal is one of Count/Sum/Max/Min/Argmax/Argmin over a generator
// goal's solutions (spec.md §4.6).
type AggGoal struct {
	Kind      AggregateKind
	Out       *Var
	ArgOut    *Var // Argmax/Argmin only
	Term      Term
	Arg       Term // Argmax/Argmin only
	Type      ColumnType
	Generator Goal
}

func (AggGoal) isGoal() {}

// Count builds Count(out | generator).
func Count(out *Var, generator Goal) Goal {
	return AggGoal{Kind: AggCount, Out: out, Generator: generator}
}

// Sum builds Sum(out = term | generator).
func Sum(out *Var, term Term, t ColumnType, generator Goal) Goal {
	return AggGoal{Kind: AggSum, Out: out, Term: term, Type: t, Generator: generator}
}

// Max builds Max(out = term | generator).
func Max(out *Var, term Term, t ColumnType, generator Goal) Goal {
	return AggGoal{Kind: AggMax, Out: out, Term: term, Type: t, Generator: generator}
}

// Min builds Min(out = term | generator).
func Min(out *Var, term Term, t ColumnType, generator Goal) Goal {
	return AggGoal{Kind: AggMin, Out: out, Term: term, Type: t, Generator: generator}
}

// Argmax builds Argmax(argOut, out = term | generator).
func Argmax(argOut, out *Var, arg, term Term, t ColumnType, generator Goal) Goal {
	return AggGoal{Kind: AggArgmax, Out: out, ArgOut: argOut, Term: term, Arg: arg, Type: t, Generator: generator}
}

// Argmin builds Argmin(argOut, out = term | generator).
func Argmin(argOut, out *Var, arg, term Term, t ColumnType, generator Goal) Goal {
	return AggGoal{Kind: AggArgmin, Out: out, ArgOut: argOut, Term: term, Arg: arg, Type: t, Generator: generator}
}
