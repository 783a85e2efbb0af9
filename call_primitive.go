package ded

import "math/rand"

// PrimitiveFunc is a host-supplied boolean test over bound argument
// values. An error return becomes a RuleExecution failure that aborts the
// enclosing rule (spec.md §4.6, §4.7).
type PrimitiveFunc func(args []any) (bool, error)

// Pure marks a PrimitiveFunc eligible for constant folding (spec.md §4.5.3).
type Primitive struct {
	Name string
	Fn   PrimitiveFunc
	Pure bool
}

// primitiveError is panicked by PrimitiveCall/EvalCall when the host
// function errors, and is recovered at the rule executor boundary
// (spec.md §4.7: "Exceptions raised by a host-supplied primitive
// propagate out as a RuleExecution error").
type primitiveError struct {
	cause error
}

// PrimitiveCall requires all of its argument cells to be bound; it calls
// the host function at most once per Reset (spec.md §4.6).
type PrimitiveCall struct {
	prim    Primitive
	args    []*Cell
	done    bool
}

// NewPrimitiveCall builds a primitive test over the given argument cells.
func NewPrimitiveCall(prim Primitive, args []*Cell) *PrimitiveCall {
	return &PrimitiveCall{prim: prim, args: args}
}

func (p *PrimitiveCall) Reset() { p.done = false }

func (p *PrimitiveCall) NextSolution() bool {
	if p.done {
		return false
	}
	p.done = true
	vals := make([]any, len(p.args))
	for i, c := range p.args {
		if !c.Bound() {
			panic(primitiveError{cause: instantiationError("primitive %s: argument %d unbound", p.prim.Name, i)})
		}
		vals[i] = c.Value
	}
	ok, err := p.prim.Fn(vals)
	if err != nil {
		panic(primitiveError{cause: err})
	}
	return ok
}

// EvalCall computes a functional expression's value and writes it into an
// output cell (spec.md §4.6's Eval/Match, and §4.5.2's functional-expression
// hoisting target).
type EvalFunc func(args []any) (any, error)

type EvalCall struct {
	fn     EvalFunc
	args   []*Cell
	out    *Cell
	opType ColumnType
	done   bool
}

// NewEvalCall builds a call that evaluates fn over args and writes the
// result into out.
func NewEvalCall(fn EvalFunc, args []*Cell, out *Cell) *EvalCall {
	return &EvalCall{fn: fn, args: args, out: out}
}

func (e *EvalCall) Reset() { e.done = false }

func (e *EvalCall) NextSolution() bool {
	if e.done {
		return false
	}
	e.done = true
	vals := make([]any, len(e.args))
	for i, c := range e.args {
		if !c.Bound() {
			panic(primitiveError{cause: instantiationError("eval: argument %d unbound", i)})
		}
		vals[i] = c.Value
	}
	v, err := e.fn(vals)
	if err != nil {
		panic(primitiveError{cause: err})
	}
	e.out.Set(v)
	return true
}

// Comparator is one of <, <=, >, >=, built from a ColumnType's Less.
type Comparator int

const (
	CmpLT Comparator = iota
	CmpLE
	CmpGT
	CmpGE
)

// NewComparisonCall builds a primitive test using typ's comparison
// operator (spec.md §4.6).
func NewComparisonCall(typ ColumnType, op Comparator, a, b *Cell) *PrimitiveCall {
	name := map[Comparator]string{CmpLT: "<", CmpLE: "<=", CmpGT: ">", CmpGE: ">="}[op]
	fn := func(args []any) (bool, error) {
		x, y := args[0], args[1]
		switch op {
		case CmpLT:
			return typ.Less(x, y), nil
		case CmpLE:
			return typ.Less(x, y) || typ.Equal(x, y), nil
		case CmpGT:
			return typ.Less(y, x), nil
		default: // CmpGE
			return typ.Less(y, x) || typ.Equal(x, y), nil
		}
	}
	return NewPrimitiveCall(Primitive{Name: name, Fn: fn, Pure: true}, []*Cell{a, b})
}

// InCall implements the `In` goal (spec.md §4.6): if the collection and
// element are both bound, it is a membership test; if the collection is
// bound and the element unbound, it generates each element in turn. Which
// mode applies is fixed by the analyzer's binding-mode analysis at compile
// time (spec.md §4.5.1), not re-derived from the element cell's runtime
// bound state: the generator branch itself binds the cell on its first
// solution, so a runtime check would misclassify every subsequent call
// within the same Reset cycle as a membership test.
type InCall struct {
	collection *Cell
	element    *Cell
	typ        ColumnType
	generate   bool
	idx        int
	tested     bool
}

// NewInCall builds an `In` call. generate selects generator mode (element
// is a Write/output position) versus membership-test mode (element is a
// Read/bound position), as decided by the analyzer.
func NewInCall(collection, element *Cell, typ ColumnType, generate bool) *InCall {
	return &InCall{collection: collection, element: element, typ: typ, generate: generate}
}

func (in *InCall) Reset() {
	in.idx = 0
	in.tested = false
}

func (in *InCall) NextSolution() bool {
	if !in.collection.Bound() {
		panic(primitiveError{cause: instantiationError("in: collection unbound")})
	}
	coll, ok := in.collection.Value.([]any)
	if !ok {
		panic(primitiveError{cause: typeError("in: collection is not a list")})
	}
	if !in.generate {
		if in.tested {
			return false
		}
		in.tested = true
		for _, v := range coll {
			if in.typ.Equal(v, in.element.Value) {
				return true
			}
		}
		return false
	}
	// Generator mode: element is a Write cell.
	if in.idx >= len(coll) {
		return false
	}
	in.element.Set(coll[in.idx])
	in.idx++
	return true
}

// RandomCall yields one uniformly sampled element per Reset
// (PickRandomly/RandomElement, spec.md §4.6). The randomness source is an
// external collaborator (spec.md §1's "random-number helper" is out of
// scope); Program.Rand lets a host substitute a seeded or deterministic
// source. The default falls back to math/rand's package-level source.
type RandomFunc func(n int) int

type RandomCall struct {
	collection *Cell
	element    *Cell
	rand       RandomFunc
	done       bool
}

// NewRandomCall builds a call that picks one random element of
// collection's value (a []any) into element, using rnd (or math/rand's
// default source if rnd is nil).
func NewRandomCall(collection, element *Cell, rnd RandomFunc) *RandomCall {
	if rnd == nil {
		rnd = rand.Intn
	}
	return &RandomCall{collection: collection, element: element, rand: rnd}
}

func (r *RandomCall) Reset() { r.done = false }

func (r *RandomCall) NextSolution() bool {
	if r.done {
		return false
	}
	r.done = true
	if !r.collection.Bound() {
		panic(primitiveError{cause: instantiationError("random: collection unbound")})
	}
	coll, ok := r.collection.Value.([]any)
	if !ok || len(coll) == 0 {
		return false
	}
	r.element.Set(coll[r.rand(len(coll))])
	return true
}
