package ded

// Opcode is a Match Op's role for one column of a pattern (spec.md §3, §4.4).
type Opcode int

const (
	// OpIgnore always succeeds and has no side effect.
	OpIgnore Opcode = iota
	// OpConstant succeeds iff the row field equals a literal.
	OpConstant
	// OpRead succeeds iff the row field equals the bound cell's value.
	OpRead
	// OpWrite always succeeds and stores the row field into the cell.
	OpWrite
)

// MatchOp is one column's directive within a Pattern.
type MatchOp struct {
	Op      Opcode
	Cell    *Cell // used by OpRead, OpWrite
	Literal any   // used by OpConstant
	Type    ColumnType
}

// ReadOp builds a Read match op against cell.
func ReadOp(t ColumnType, cell *Cell) MatchOp { return MatchOp{Op: OpRead, Cell: cell, Type: t} }

// WriteOp builds a Write match op into cell.
func WriteOp(t ColumnType, cell *Cell) MatchOp { return MatchOp{Op: OpWrite, Cell: cell, Type: t} }

// ConstOp builds a Constant match op against literal.
func ConstOp(t ColumnType, literal any) MatchOp { return MatchOp{Op: OpConstant, Literal: literal, Type: t} }

// IgnoreOp builds an Ignore match op.
func IgnoreOp(t ColumnType) MatchOp { return MatchOp{Op: OpIgnore, Type: t} }

// match evaluates this op against one row field, applying any Write side
// effect before returning.
func (m MatchOp) match(field any) bool {
	switch m.Op {
	case OpConstant:
		return m.Type.Equal(field, m.Literal)
	case OpRead:
		return m.Type.Equal(field, m.Cell.Value)
	case OpWrite:
		m.Cell.Set(field)
		return true
	default: // OpIgnore
		return true
	}
}

// value computes the field value this op contributes when writing a row
// (used for rule heads and for materializing instantiated probe tuples).
func (m MatchOp) value() any {
	switch m.Op {
	case OpConstant:
		return m.Literal
	case OpRead, OpWrite:
		return m.Cell.Value
	default: // OpIgnore
		return m.Type.Zero()
	}
}

// Pattern is the per-column directive array for one goal (spec.md §3, §4.4).
type Pattern []MatchOp

// Match attempts the pattern against row, short-circuiting left to right.
// All Read cells must already be valid; Write cells are written iff Match
// succeeds as a whole is not required by spec — writes happen op-by-op as
// each column matches, but on overall failure earlier Write ops in this
// same attempt remain applied. Callers that need transactional rollback
// on failure (none do in this engine: a failed Match simply advances the
// call's cursor and retries) are not part of this contract.
func (p Pattern) Match(row Row) bool {
	for i, op := range p {
		if !op.match(row[i]) {
			return false
		}
	}
	return true
}

// Write materializes this pattern's values into row, in column order.
// Used when a rule's head pattern writes a derived tuple into its
// predicate's table.
func (p Pattern) Write(row Row) {
	for i, op := range p {
		row[i] = op.value()
	}
}

// NewRow allocates a fresh row and writes this pattern's values into it.
func (p Pattern) NewRow() Row {
	row := make(Row, len(p))
	p.Write(row)
	return row
}

// Instantiated reports whether every column is bound (no Write ops): spec.md
// §3's "an instantiated pattern has no Write ops".
func (p Pattern) Instantiated() bool {
	for _, op := range p {
		if op.Op == OpWrite {
			return false
		}
	}
	return true
}

// ReadColumns returns the column indices this pattern reads (Read or
// Constant), used by index selection (§4.2).
func (p Pattern) ReadColumns() []int {
	var cols []int
	for i, op := range p {
		if op.Op == OpRead || op.Op == OpConstant {
			cols = append(cols, i)
		}
	}
	return cols
}
