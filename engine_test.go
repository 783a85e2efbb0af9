package ded

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func col(name string) ColumnSpec { return ColumnSpec{Name: name, Type: Int} }
func keyCol(name string) ColumnSpec {
	return ColumnSpec{Name: name, Type: Int, Index: IndexKeyMode}
}

// S1 — Exhaustive conjunction.
func TestExhaustiveConjunction(t *testing.T) {
	prog := NewProgram(Options{})
	P, err := prog.DeclarePredicate("P", []ColumnSpec{col("n")}, ModeBase, false)
	require.NoError(t, err)
	Q, err := prog.DeclarePredicate("Q", []ColumnSpec{col("n")}, ModeBase, false)
	require.NoError(t, err)
	R, err := prog.DeclarePredicate("R", []ColumnSpec{col("n")}, ModeRules, false)
	require.NoError(t, err)

	for _, v := range []int{1, 2, 3, 4, 5, 6} {
		_, err := P.AddRow(v)
		require.NoError(t, err)
	}
	for _, v := range []int{2, 4, 6, 8, 10} {
		_, err := Q.AddRow(v)
		require.NoError(t, err)
	}

	a := NewVar("a", Int)
	require.NoError(t, R.If([]Term{a}, T(P, a), T(Q, a)))
	require.NoError(t, prog.EndPredicates())

	require.ElementsMatch(t, []any{2, 4, 6}, firstColumn(R.Rows()))
}

// S2 — Key join.
func TestKeyJoin(t *testing.T) {
	prog := NewProgram(Options{})
	days := []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}
	Day, err := prog.DeclarePredicate("Day", []ColumnSpec{{Name: "d", Type: String}}, ModeBase, false)
	require.NoError(t, err)
	NextDay, err := prog.DeclarePredicate("NextDay", []ColumnSpec{
		{Name: "d", Type: String, Index: IndexKeyMode},
		{Name: "n", Type: String},
	}, ModeBase, false)
	require.NoError(t, err)
	Mapped, err := prog.DeclarePredicate("Mapped", []ColumnSpec{
		{Name: "d", Type: String}, {Name: "n", Type: String},
	}, ModeRules, false)
	require.NoError(t, err)

	for _, d := range days {
		_, err := Day.AddRow(d)
		require.NoError(t, err)
	}
	pairs := [][2]string{{"Mon", "Tue"}, {"Tue", "Wed"}, {"Wed", "Thu"}, {"Thu", "Fri"}, {"Fri", "Sat"}, {"Sat", "Sun"}, {"Sun", "Mon"}}
	for _, p := range pairs {
		_, err := NextDay.AddRow(p[0], p[1])
		require.NoError(t, err)
	}

	d, n := NewVar("d", String), NewVar("n", String)
	require.NoError(t, Mapped.If([]Term{d, n}, T(Day, d), T(NextDay, d, n)))
	require.NoError(t, prog.EndPredicates())

	require.ElementsMatch(t, NextDay.Rows(), Mapped.Rows())
}

// S3 — Self-join through a general index.
func TestSelfJoinGeneralIndex(t *testing.T) {
	prog := NewProgram(Options{})
	P, err := prog.DeclarePredicate("P", []ColumnSpec{
		{Name: "i", Type: Int, Index: IndexIndexed},
		{Name: "j", Type: Int},
	}, ModeBase, false)
	require.NoError(t, err)
	Q, err := prog.DeclarePredicate("Q", []ColumnSpec{col("i"), col("j")}, ModeRules, false)
	require.NoError(t, err)

	for a := 0; a < 10; a++ {
		for b := 0; b <= 18; b += 2 {
			_, err := P.AddRow(a, b)
			require.NoError(t, err)
		}
	}

	i, j := NewVar("i", Int), NewVar("j", Int)
	require.NoError(t, Q.If([]Term{i, j}, T(P, i, j), T(P, j, i)))
	require.NoError(t, prog.EndPredicates())

	for _, row := range Q.Rows() {
		a, b := row[0].(int), row[1].(int)
		require.True(t, a >= 0 && a < 10 && b >= 0 && b < 10)
		require.True(t, a%2 == 0 && b%2 == 0, "expected only even pairs, got (%d,%d)", a, b)
	}
	require.Len(t, Q.Rows(), 25) // 5 even values in [0,10) each way
}

// S4 — Aggregation.
func TestAggregationSum(t *testing.T) {
	prog := NewProgram(Options{})
	P, err := prog.DeclarePredicate("P", []ColumnSpec{col("n")}, ModeBase, false)
	require.NoError(t, err)
	Q, err := prog.DeclarePredicate("Q", []ColumnSpec{col("sum")}, ModeRules, false)
	require.NoError(t, err)

	for v := 1; v <= 6; v++ {
		_, err := P.AddRow(v)
		require.NoError(t, err)
	}

	m := NewVar("m", Int)
	sum := NewVar("sum", Int)
	isEven := func(args []any) (bool, error) { return args[0].(int)%2 == 0, nil }
	require.NoError(t, Q.If([]Term{sum}, Sum(sum, m, Int, And(T(P, m), Prim(Primitive{Name: "even", Pure: true, Fn: isEven}, m)))))
	require.NoError(t, prog.EndPredicates())

	require.Equal(t, []any{12}, firstColumn(Q.Rows()))
}

// S5 — Negation.
func TestNegation(t *testing.T) {
	prog := NewProgram(Options{})
	T_, err := prog.DeclarePredicate("T", []ColumnSpec{col("i"), col("j")}, ModeBase, false)
	require.NoError(t, err)
	S, err := prog.DeclarePredicate("S", []ColumnSpec{col("i"), col("j")}, ModeRules, false)
	require.NoError(t, err)
	U, err := prog.DeclarePredicate("U", []ColumnSpec{col("i"), col("j")}, ModeRules, false)
	require.NoError(t, err)

	for a := 0; a < 10; a++ {
		for b := 0; b < 10; b++ {
			_, err := T_.AddRow(a, b)
			require.NoError(t, err)
		}
	}

	i, j := NewVar("i", Int), NewVar("j", Int)
	require.NoError(t, S.If([]Term{i, j}, T(T_, i, j), Lt(Int, i, j)))

	i2, j2 := NewVar("i", Int), NewVar("j", Int)
	require.NoError(t, U.If([]Term{i2, j2}, T(T_, i2, j2), Not(T(S, i2, j2))))
	require.NoError(t, prog.EndPredicates())

	require.Len(t, U.Rows(), 55)
	for _, row := range U.Rows() {
		require.GreaterOrEqual(t, row[0].(int), row[1].(int))
	}
}

// S6 — Dedup.
func TestDedupOnAdd(t *testing.T) {
	prog := NewProgram(Options{})
	P, err := prog.DeclarePredicate("P", []ColumnSpec{col("n")}, ModeBase, true)
	require.NoError(t, err)
	require.NoError(t, prog.EndPredicates())

	require.NoError(t, P.Add(1))
	require.NoError(t, P.Add(1))
	require.NoError(t, P.Add(2))
	require.NoError(t, prog.Update())

	require.Equal(t, []any{1, 2}, firstColumn(P.Rows()))
}

// S7 — Stratification rejects cycles through rules.
func TestStratificationRejectsCycle(t *testing.T) {
	prog := NewProgram(Options{})
	P, err := prog.DeclarePredicate("P", []ColumnSpec{col("n")}, ModeRules, false)
	require.NoError(t, err)
	Q, err := prog.DeclarePredicate("Q", []ColumnSpec{col("n")}, ModeRules, false)
	require.NoError(t, err)

	n1 := NewVar("n", Int)
	require.NoError(t, Q.If([]Term{n1}, T(P, n1)))
	n2 := NewVar("n", Int)
	require.NoError(t, P.If([]Term{n2}, T(Q, n2)))

	err = prog.EndPredicates()
	require.ErrorIs(t, err, ErrInvalidProgram)
}

// S8 — Dynamic inference: a rule calling an impure primitive marks its
// predicate dynamic and re-runs every tick.
func TestDynamicInferenceImpureRule(t *testing.T) {
	prog := NewProgram(Options{})
	P, err := prog.DeclarePredicate("P", []ColumnSpec{col("n")}, ModeBase, false)
	require.NoError(t, err)
	_, err = P.AddRow(1)
	require.NoError(t, err)
	Clock, err := prog.DeclarePredicate("Clock", []ColumnSpec{col("tick")}, ModeRules, false)
	require.NoError(t, err)

	calls := 0
	counter := Primitive{Name: "advance", Pure: false, Fn: func(args []any) (bool, error) {
		calls++
		return true, nil
	}}
	n := NewVar("n", Int)
	require.NoError(t, Clock.If([]Term{n}, T(P, n), Prim(counter, n)))
	require.NoError(t, prog.EndPredicates())
	require.True(t, Clock.dynamic)

	before := calls
	require.NoError(t, prog.Update())
	require.NoError(t, prog.Update())
	require.NoError(t, prog.Update())
	require.Equal(t, before+3, calls, "an impure rule's predicate must re-evaluate every tick")
}

// Reset must restore a Base predicate's seeded extent, not merely empty it
// (spec.md §6 "reset()"; §8 testable property 8's round-trip guarantee).
func TestResetRestoresInitialRows(t *testing.T) {
	prog := NewProgram(Options{})
	P, err := prog.DeclarePredicate("P", []ColumnSpec{col("n")}, ModeBase, false)
	require.NoError(t, err)
	Q, err := prog.DeclarePredicate("Q", []ColumnSpec{col("n")}, ModeRules, false)
	require.NoError(t, err)

	for _, v := range []int{1, 2, 3} {
		_, err := P.AddRow(v)
		require.NoError(t, err)
	}
	n := NewVar("n", Int)
	require.NoError(t, Q.If([]Term{n}, T(P, n)))
	require.NoError(t, prog.EndPredicates())
	require.Equal(t, []any{1, 2, 3}, firstColumn(P.Rows()))

	require.NoError(t, P.Add(4))
	require.NoError(t, prog.Update())
	require.Equal(t, []any{1, 2, 3, 4}, firstColumn(P.Rows()))

	require.NoError(t, prog.Reset())
	require.Equal(t, []any{1, 2, 3}, firstColumn(P.Rows()))
	require.Equal(t, []any{1, 2, 3}, firstColumn(Q.Rows()))
}

// A hoisted expression argument must not be treated as a compile-time
// constant by Prim/comparison folding: its value is only known once the
// Eval call the analyzer hoists it into actually runs (spec.md §4.5.2).
func TestExprArgumentNotFoldedAtCompileTime(t *testing.T) {
	prog := NewProgram(Options{})
	P, err := prog.DeclarePredicate("P", []ColumnSpec{col("n")}, ModeBase, false)
	require.NoError(t, err)
	Q, err := prog.DeclarePredicate("Q", []ColumnSpec{col("n")}, ModeRules, false)
	require.NoError(t, err)

	for v := 1; v <= 6; v++ {
		_, err := P.AddRow(v)
		require.NoError(t, err)
	}

	succ := func(args []any) (any, error) { return args[0].(int) + 1, nil }
	n := NewVar("n", Int)
	succOfN := &Expr{Fn: succ, Args: []Term{n}, Type: Int}
	require.NoError(t, Q.If([]Term{n}, T(P, n), Gt(Int, succOfN, 3)))
	require.NoError(t, prog.EndPredicates())

	require.ElementsMatch(t, []any{3, 4, 5, 6}, firstColumn(Q.Rows()))
}

// In, with an unbound element, must generate every member of the
// collection rather than stopping after the first (spec.md §4.6).
func TestInGeneratesWholeCollection(t *testing.T) {
	prog := NewProgram(Options{})
	P, err := prog.DeclarePredicate("P", []ColumnSpec{{Name: "coll", Type: Any}}, ModeBase, false)
	require.NoError(t, err)
	Q, err := prog.DeclarePredicate("Q", []ColumnSpec{col("n")}, ModeRules, false)
	require.NoError(t, err)

	_, err = P.AddRow([]any{1, 2, 3, 4})
	require.NoError(t, err)

	coll := NewVar("coll", Any)
	x := NewVar("n", Int)
	require.NoError(t, Q.If([]Term{x}, T(P, coll), In(Any, coll, x)))
	require.NoError(t, prog.EndPredicates())

	require.ElementsMatch(t, []any{1, 2, 3, 4}, firstColumn(Q.Rows()))
}

// Table.Add must roll back every index that already accepted the row, not
// just the row slice, when a later index rejects it with DuplicateKey —
// otherwise a preceding row-set index keeps a stale entry for the
// reclaimed id (review fix).
func TestAddRollsBackAllIndices(t *testing.T) {
	prog := NewProgram(Options{})
	P, err := prog.DeclarePredicate("P", []ColumnSpec{keyCol("k"), col("v")}, ModeBase, true)
	require.NoError(t, err)

	id0, err := P.AddRow(1, 10)
	require.NoError(t, err)

	_, err = P.AddRow(1, 20)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrDuplicateKey)

	id1, err := P.AddRow(1, 10)
	require.NoError(t, err)
	require.Equal(t, id0, id1)

	require.NoError(t, prog.EndPredicates())
	require.Len(t, P.Rows(), 1)
}

func firstColumn(rows []Row) []any {
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r[0]
	}
	return out
}
