package ded

// AggregateKind names one of the six aggregation flavors (spec.md §4.6).
type AggregateKind int

const (
	AggCount AggregateKind = iota
	AggSum
	AggMax
	AggMin
	AggArgmax
	AggArgmin
)

// AggregateCall builds a private binding scope for a generator goal,
// enumerates all of its solutions to completion, folds the specified term
// into an accumulator, and writes the result; then the generator's own
// (local) bindings are simply discarded since they live in cells owned by
// the generator's own compiled scope (spec.md §4.6, §9 "bind locally,
// restore on exit"). For Max/Min/Argmax/Argmin, an empty generator fails
// the call, matching "Maximal/Minimal: the call fails".
type AggregateCall struct {
	kind      AggregateKind
	generator Call
	term      *Cell // bound by generator on each solution; folded into the result
	arg       *Cell // for Argmax/Argmin: the accompanying value returned alongside the extremum
	out       *Cell // receives the aggregated value (and, for Argmax/Argmin, the out holds term's extremum while argOut holds arg)
	argOut    *Cell
	typ       Summable // required for Sum; Max/Min only need ColumnType.Less
	cmpType   ColumnType
	done      bool
}

// NewCountCall builds Count(generator).
func NewCountCall(generator Call, out *Cell) *AggregateCall {
	return &AggregateCall{kind: AggCount, generator: generator, out: out}
}

// NewSumCall builds Sum(term | generator).
func NewSumCall(generator Call, term *Cell, typ Summable, out *Cell) *AggregateCall {
	return &AggregateCall{kind: AggSum, generator: generator, term: term, typ: typ, out: out}
}

// NewMaxCall builds Max(term | generator).
func NewMaxCall(generator Call, term *Cell, cmpType ColumnType, out *Cell) *AggregateCall {
	return &AggregateCall{kind: AggMax, generator: generator, term: term, cmpType: cmpType, out: out}
}

// NewMinCall builds Min(term | generator).
func NewMinCall(generator Call, term *Cell, cmpType ColumnType, out *Cell) *AggregateCall {
	return &AggregateCall{kind: AggMin, generator: generator, term: term, cmpType: cmpType, out: out}
}

// NewArgmaxCall builds Argmax(arg, term | generator): arg is the value
// written to argOut when term is maximal.
func NewArgmaxCall(generator Call, term, arg *Cell, cmpType ColumnType, out, argOut *Cell) *AggregateCall {
	return &AggregateCall{kind: AggArgmax, generator: generator, term: term, arg: arg, cmpType: cmpType, out: out, argOut: argOut}
}

// NewArgminCall builds Argmin(arg, term | generator).
func NewArgminCall(generator Call, term, arg *Cell, cmpType ColumnType, out, argOut *Cell) *AggregateCall {
	return &AggregateCall{kind: AggArgmin, generator: generator, term: term, arg: arg, cmpType: cmpType, out: out, argOut: argOut}
}

func (a *AggregateCall) Reset() { a.done = false }

func (a *AggregateCall) NextSolution() bool {
	if a.done {
		return false
	}
	a.done = true
	a.generator.Reset()

	if a.kind == AggCount {
		n := 0
		for a.generator.NextSolution() {
			n++
		}
		a.out.Set(n)
		return true
	}

	count := 0
	var acc any
	var bestArg any
	for a.generator.NextSolution() {
		v := a.term.Value
		count++
		switch a.kind {
		case AggSum:
			if count == 1 {
				acc = v
			} else {
				acc = a.typ.Add(acc, v)
			}
		case AggMax, AggArgmax:
			if count == 1 || a.cmpType.Less(acc, v) {
				acc = v
				if a.arg != nil {
					bestArg = a.arg.Value
				}
			}
		case AggMin, AggArgmin:
			if count == 1 || a.cmpType.Less(v, acc) {
				acc = v
				if a.arg != nil {
					bestArg = a.arg.Value
				}
			}
		}
	}

	if count == 0 {
		switch a.kind {
		case AggMax, AggMin, AggArgmax, AggArgmin:
			return false
		case AggSum:
			a.out.Set(a.typ.Zero())
			return true
		}
	}

	a.out.Set(acc)
	if a.argOut != nil {
		a.argOut.Set(bestArg)
	}
	return true
}
