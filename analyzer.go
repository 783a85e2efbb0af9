package ded

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
)

// cstate is shared, rule-wide compilation state: one Cell per Var for the
// whole rule (spec.md §4.3), the accumulated dependency set, and whether
// any impure construct (Random, or a non-pure primitive) appears in the
// body (spec.md §4.8's dynamicity inference).
type cstate struct {
	prog   *Program
	cells  map[*Var]*Cell
	deps   mapset.Set[string]
	impure bool

	// exprVars records the synthetic Var allocated for each *Expr already
	// hoisted in this rule, so hoisting the same *Expr twice (spec.md
	// §4.5.2) reuses the first Eval call instead of duplicating it.
	exprVars map[*Expr]*Var
	// pending holds Eval calls synthesized by hoistExpr that still need to
	// be spliced into the body ahead of the goal that triggered them;
	// compileGoal drains it after every goal it compiles.
	pending []Call
}

func newCState(prog *Program) *cstate {
	return &cstate{
		prog:     prog,
		cells:    make(map[*Var]*Cell),
		deps:     mapset.NewThreadUnsafeSet[string](),
		exprVars: make(map[*Expr]*Var),
	}
}

// hoistExpr compiles a functional sub-term into a fresh Eval call ahead of
// whatever goal referenced it (spec.md §4.5.2). The call is queued on
// cs.pending rather than returned directly, since an Expr can appear deep
// inside a goal (e.g. a primitive argument) that itself only returns one
// Call.
func hoistExpr(cs *cstate, e *Expr, bound mapset.Set[*Var], context string) (*Cell, error) {
	if v, ok := cs.exprVars[e]; ok {
		bound.Add(v)
		return cs.cellFor(v), nil
	}
	argCells := make([]*Cell, len(e.Args))
	for i, a := range e.Args {
		cell, err := resolveRequired(cs, a, bound, Any, fmt.Sprintf("%s: hoisted expression argument %d", context, i))
		if err != nil {
			return nil, err
		}
		argCells[i] = cell
	}
	v := NewVar("", e.Type)
	cs.exprVars[e] = v
	outCell := cs.cellFor(v)
	bound.Add(v)
	cs.pending = append(cs.pending, NewEvalCall(e.Fn, argCells, outCell))
	return outCell, nil
}

// takeWithPending drains any Eval calls hoistExpr queued while compiling
// call, splicing them immediately ahead of it (spec.md §4.5.2: the hoisted
// Eval goal runs "in a preceding position" relative to its use). If call
// itself folded away (nil) but hoisting still occurred, the pending Eval
// calls become the goal.
func takeWithPending(cs *cstate, call Call) Call {
	pend := cs.pending
	cs.pending = nil
	if len(pend) == 0 {
		return call
	}
	if call != nil {
		pend = append(pend, call)
	}
	if len(pend) == 1 {
		return pend[0]
	}
	return NewAndCall(pend...)
}

func (c *cstate) cellFor(v *Var) *Cell {
	if cell, ok := c.cells[v]; ok {
		return cell
	}
	cell := NewVarCell(v.Type, v.Name)
	c.cells[v] = cell
	return cell
}

// CompileRule runs the goal analyzer / pre-processor (spec.md §4.5) over a
// rule's head literal and body goals, producing a compiled Rule ready for
// the executor (spec.md §4.7). Errors are Instantiation, Type, or
// InvalidProgram per spec.md §7.
func CompileRule(prog *Program, head Literal, body ...Goal) (*Rule, error) {
	if head.Pred.Mode != ModeRules {
		return nil, invalidProgramError("rule head predicate %s is not declared Mode=Rules", head.Pred.Name)
	}
	cs := newCState(prog)
	bound := mapset.NewThreadUnsafeSet[*Var]()

	flatBody := flattenBody(body)
	var calls []Call
	for i := range flatBody {
		call, err := compileGoal(cs, flatBody[i], bound)
		if err != nil {
			return nil, err
		}
		if call != nil {
			calls = append(calls, call)
		}
	}

	headPattern := make(Pattern, len(head.Args))
	for i, arg := range head.Args {
		colType := head.Pred.Columns[i].Type
		switch a := arg.(type) {
		case *Var:
			if !bound.Contains(a) {
				return nil, instantiationError("rule for %s: head variable %s is not bound by the body", head.Pred.Name, a.Name)
			}
			headPattern[i] = ReadOp(colType, cs.cellFor(a))
		default:
			headPattern[i] = ConstOp(colType, a)
		}
	}

	rule := &Rule{owner: head.Pred, Head: headPattern, Body: calls, Deps: cs.deps, Impure: cs.impure}
	head.Pred.Rules = append(head.Pred.Rules, rule)
	return rule, nil
}

// flattenBody treats a vararg body the same as an AndGoal, flattening any
// nested conjunctions (spec.md §4.5's left-to-right body walk).
func flattenBody(body []Goal) []Goal {
	return And(body...).(AndGoal).Goals
}

// resolveRequired resolves term to a Cell that must already be bound,
// returning an Instantiation error otherwise (spec.md §4.5.1).
func resolveRequired(cs *cstate, term Term, bound mapset.Set[*Var], typ ColumnType, context string) (*Cell, error) {
	switch v := term.(type) {
	case *Var:
		if !bound.Contains(v) {
			return nil, instantiationError("%s: variable %s is unbound", context, v.Name)
		}
		return cs.cellFor(v), nil
	case *Expr:
		return hoistExpr(cs, v, bound, context)
	default:
		return cs.prog.intern(typ, v), nil
	}
}

// resolveOutput resolves term as an output position: if it's an unbound
// Var, marks it bound (Write semantics); if bound, returns a Read cell;
// constants are interned (Constant semantics, handled by the caller).
func resolveOutput(cs *cstate, term Term, bound mapset.Set[*Var]) (cell *Cell, isWrite bool) {
	v, ok := term.(*Var)
	if !ok {
		return nil, false
	}
	cell = cs.cellFor(v)
	if bound.Contains(v) {
		return cell, false
	}
	bound.Add(v)
	return cell, true
}

// compileGoal compiles g and flushes any Eval calls hoisted out of it
// while doing so (spec.md §4.5.2), so every other call site always
// receives one self-contained Call with all of g's dependencies already
// satisfied.
func compileGoal(cs *cstate, g Goal, bound mapset.Set[*Var]) (Call, error) {
	call, err := compileGoalDispatch(cs, g, bound)
	if err != nil {
		return nil, err
	}
	return takeWithPending(cs, call), nil
}

func compileGoalDispatch(cs *cstate, g Goal, bound mapset.Set[*Var]) (Call, error) {
	switch goal := g.(type) {
	case TableGoal:
		return compileTableGoal(cs, goal, bound)
	case PrimGoal:
		return compilePrimGoal(cs, goal, bound)
	case EvalGoal:
		return compileEvalGoal(cs, goal, bound)
	case CmpGoal:
		return compileCmpGoal(cs, goal, bound)
	case NotGoal:
		return compileNotGoal(cs, goal, bound)
	case OnceGoal:
		inner, err := compileGoal(cs, goal.Inner, bound)
		if err != nil {
			return nil, err
		}
		if inner == nil {
			return nil, nil
		}
		return NewOnceCall(inner), nil
	case LimitGoal:
		inner, err := compileGoal(cs, goal.Inner, bound)
		if err != nil {
			return nil, err
		}
		if inner == nil {
			return nil, nil
		}
		return NewLimitSolutionsCall(goal.N, inner), nil
	case AndGoal:
		return compileAndGoal(cs, goal, bound)
	case FirstOfGoal:
		return compileFirstOfGoal(cs, goal, bound)
	case InGoal:
		return compileInGoal(cs, goal, bound)
	case RandomGoal:
		return compileRandomGoal(cs, goal, bound)
	case AggGoal:
		return compileAggGoal(cs, goal, bound)
	default:
		return nil, invalidProgramError("unknown goal type %T", g)
	}
}

func compileTableGoal(cs *cstate, goal TableGoal, bound mapset.Set[*Var]) (Call, error) {
	lit := goal.Lit
	if len(lit.Args) != len(lit.Pred.Columns) {
		return nil, typeError("goal for %s: expected %d arguments, got %d", lit.Pred.Name, len(lit.Pred.Columns), len(lit.Args))
	}
	pattern := make(Pattern, len(lit.Args))
	for i, arg := range lit.Args {
		colType := lit.Pred.Columns[i].Type
		switch a := arg.(type) {
		case *Var:
			cell, isWrite := resolveOutput(cs, a, bound)
			if isWrite {
				pattern[i] = WriteOp(colType, cell)
			} else {
				pattern[i] = ReadOp(colType, cell)
			}
		case *Expr:
			cell, err := hoistExpr(cs, a, bound, fmt.Sprintf("goal for %s arg %d", lit.Pred.Name, i))
			if err != nil {
				return nil, err
			}
			pattern[i] = ReadOp(colType, cell)
		default:
			pattern[i] = ConstOp(colType, a)
		}
	}
	cs.deps.Add(lit.Pred.Name)
	return lit.Pred.compileCallForPattern(pattern), nil
}

func compilePrimGoal(cs *cstate, goal PrimGoal, bound mapset.Set[*Var]) (Call, error) {
	cells := make([]*Cell, len(goal.Args))
	allConst := true
	vals := make([]any, len(goal.Args))
	for i, arg := range goal.Args {
		switch arg.(type) {
		case *Var, *Expr:
			// Vars aren't known until runtime; Exprs are hoisted into a
			// preceding Eval call whose result cell isn't filled in until
			// that call runs, so neither can be folded at compile time.
			allConst = false
		}
		cell, err := resolveRequired(cs, arg, bound, Any, fmt.Sprintf("primitive %s arg %d", goal.Prim.Name, i))
		if err != nil {
			return nil, err
		}
		cells[i] = cell
		vals[i] = cell.Value
	}
	if !goal.Prim.Pure {
		cs.impure = true
	}
	if allConst && goal.Prim.Pure {
		ok, err := goal.Prim.Fn(vals)
		if err != nil {
			return nil, err
		}
		if ok {
			return nil, nil // folded true: omit from body
		}
		return &constCall{}, nil // folded false: body can never succeed
	}
	return NewPrimitiveCall(goal.Prim, cells), nil
}

func compileEvalGoal(cs *cstate, goal EvalGoal, bound mapset.Set[*Var]) (Call, error) {
	cells := make([]*Cell, len(goal.Args))
	for i, arg := range goal.Args {
		cell, err := resolveRequired(cs, arg, bound, Any, fmt.Sprintf("eval arg %d", i))
		if err != nil {
			return nil, err
		}
		cells[i] = cell
	}
	out := cs.cellFor(goal.Out)
	bound.Add(goal.Out)
	return NewEvalCall(goal.Fn, cells, out), nil
}

func compileCmpGoal(cs *cstate, goal CmpGoal, bound mapset.Set[*Var]) (Call, error) {
	a, err := resolveRequired(cs, goal.A, bound, goal.Type, "comparison")
	if err != nil {
		return nil, err
	}
	b, err := resolveRequired(cs, goal.B, bound, goal.Type, "comparison")
	if err != nil {
		return nil, err
	}
	_, aExpr := goal.A.(*Expr)
	_, bExpr := goal.B.(*Expr)
	if _, aVar := goal.A.(*Var); !aVar && !aExpr {
		if _, bVar := goal.B.(*Var); !bVar && !bExpr {
			// Both constant: fold now.
			pc := NewComparisonCall(goal.Type, goal.Op, a, b)
			pc.Reset()
			ok := pc.NextSolution()
			if ok {
				return nil, nil
			}
			return &constCall{}, nil
		}
	}
	return NewComparisonCall(goal.Type, goal.Op, a, b), nil
}

func compileNotGoal(cs *cstate, goal NotGoal, bound mapset.Set[*Var]) (Call, error) {
	child := bound.Clone()
	inner, err := compileGoal(cs, goal.Inner, child)
	if err != nil {
		return nil, err
	}
	if inner == nil {
		// Inner folded to always-true: Not(true) always fails.
		return &constCall{}, nil
	}
	return NewNotCall(inner), nil
}

func compileAndGoal(cs *cstate, goal AndGoal, bound mapset.Set[*Var]) (Call, error) {
	var calls []Call
	for _, sub := range goal.Goals {
		call, err := compileGoal(cs, sub, bound)
		if err != nil {
			return nil, err
		}
		if call != nil {
			calls = append(calls, call)
		}
	}
	if len(calls) == 0 {
		return nil, nil
	}
	if len(calls) == 1 {
		return calls[0], nil
	}
	return NewAndCall(calls...), nil
}

func compileFirstOfGoal(cs *cstate, goal FirstOfGoal, bound mapset.Set[*Var]) (Call, error) {
	if len(goal.Branches) == 0 {
		return nil, invalidProgramError("FirstOf with no branches")
	}
	calls := make([]Call, len(goal.Branches))
	var intersection mapset.Set[*Var]
	for i, branch := range goal.Branches {
		branchBound := bound.Clone()
		call, err := compileGoal(cs, branch, branchBound)
		if err != nil {
			return nil, err
		}
		if call == nil {
			call = &trueCall{}
		}
		calls[i] = call
		newlyBound := branchBound.Difference(bound)
		if intersection == nil {
			intersection = newlyBound
		} else {
			intersection = intersection.Intersect(newlyBound)
		}
	}
	for v := range intersection.Iter() {
		bound.Add(v)
	}
	return NewFirstOfCall(calls...), nil
}

func compileInGoal(cs *cstate, goal InGoal, bound mapset.Set[*Var]) (Call, error) {
	collCell, err := resolveRequired(cs, goal.Collection, bound, Any, "in: collection")
	if err != nil {
		return nil, err
	}
	elemCell, isWrite := resolveOutput(cs, goal.Element, bound)
	if elemCell == nil {
		// Element is a constant literal: treat as an already-bound probe value.
		elemCell = cs.prog.intern(goal.Type, goal.Element)
		isWrite = false
	}
	return NewInCall(collCell, elemCell, goal.Type, isWrite), nil
}

func compileRandomGoal(cs *cstate, goal RandomGoal, bound mapset.Set[*Var]) (Call, error) {
	cs.impure = true
	collCell, err := resolveRequired(cs, goal.Collection, bound, Any, "random: collection")
	if err != nil {
		return nil, err
	}
	elemCell := cs.cellFor(goal.Element)
	bound.Add(goal.Element)
	return NewRandomCall(collCell, elemCell, cs.prog.Rand), nil
}

func compileAggGoal(cs *cstate, goal AggGoal, bound mapset.Set[*Var]) (Call, error) {
	generatorScope := bound.Clone()
	generatorCall, err := compileGoal(cs, goal.Generator, generatorScope)
	if err != nil {
		return nil, err
	}
	if generatorCall == nil {
		generatorCall = &trueCall{} // a generator that folded to always-true-with-no-bindings
	}
	var termCell *Cell
	if goal.Kind != AggCount {
		termCell, err = resolveRequired(cs, goal.Term, generatorScope, goal.Type, "aggregate term")
		if err != nil {
			return nil, instantiationError("aggregate generator does not bind its term variable")
		}
	}
	out := cs.cellFor(goal.Out)
	bound.Add(goal.Out)

	switch goal.Kind {
	case AggCount:
		return NewCountCall(generatorCall, out), nil
	case AggSum:
		summable, ok := goal.Type.(Summable)
		if !ok {
			return nil, typeError("Sum requires a Summable column type")
		}
		return NewSumCall(generatorCall, termCell, summable, out), nil
	case AggMax:
		return NewMaxCall(generatorCall, termCell, goal.Type, out), nil
	case AggMin:
		return NewMinCall(generatorCall, termCell, goal.Type, out), nil
	case AggArgmax, AggArgmin:
		argCell, err := resolveRequired(cs, goal.Arg, generatorScope, Any, "aggregate arg")
		if err != nil {
			return nil, instantiationError("aggregate generator does not bind its arg variable")
		}
		argOut := cs.cellFor(goal.ArgOut)
		bound.Add(goal.ArgOut)
		if goal.Kind == AggArgmax {
			return NewArgmaxCall(generatorCall, termCell, argCell, goal.Type, out, argOut), nil
		}
		return NewArgminCall(generatorCall, termCell, argCell, goal.Type, out, argOut), nil
	default:
		return nil, invalidProgramError("unknown aggregate kind %v", goal.Kind)
	}
}
