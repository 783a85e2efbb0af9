package ded

import "github.com/pkg/errors"

// RowID addresses a row within a Table. It is stable until the table is
// compacted via Reclaim (spec.md §4.1).
type RowID uint32

// NoRow is the sentinel meaning "not present".
const NoRow RowID = ^RowID(0)

// Row is one tuple: a type-erased, arity-N buffer of column values (design
// notes §9 — this is the generalization that replaces the source's
// per-arity class duplication).
type Row []any

// clone returns a copy of row, since Table.Add must store an independent
// copy rather than aliasing caller-owned storage.
func (r Row) clone() Row {
	c := make(Row, len(r))
	copy(c, r)
	return c
}

// Table is a growing, arity-N row store for a single predicate's extent
// (spec.md §4.1).
type Table struct {
	columns []ColumnType
	rows    []Row
	unique  bool

	rowSet  *RowSetIndex // present iff unique, used for Add-time dedup
	indices []Index
}

// NewTable creates an empty table over the given column types. If unique
// is true, Add deduplicates by full-row equality via an internal RowSet
// index (spec.md invariant: "If dedup is on ... no two live rows are
// field-wise equal").
func NewTable(columns []ColumnType, unique bool) *Table {
	t := &Table{columns: columns, unique: unique}
	if unique {
		rs := NewRowSetIndex(columns)
		t.rowSet = rs
		t.indices = append(t.indices, rs)
	}
	return t
}

// Columns returns the table's column types.
func (t *Table) Columns() []ColumnType { return t.columns }

// Length returns the number of live rows.
func (t *Table) Length() int { return len(t.rows) }

// PositionReference returns a read-only reference to row i, along with
// whether i addresses a live row.
func (t *Table) PositionReference(i RowID) (Row, bool) {
	if int(i) < 0 || int(i) >= len(t.rows) {
		return nil, false
	}
	return t.rows[i], true
}

// Add appends a copy of row, returning its RowID. If the table is unique
// and an equal row already exists, Add does not append and returns the
// existing row's id (spec.md §4.1). If a key index rejects the insertion
// (DuplicateKey), the append is rolled back and the error is returned.
func (t *Table) Add(row Row) (RowID, error) {
	if t.unique {
		if id, ok := t.rowSet.Contains(row); ok {
			return id, nil
		}
	}
	cp := row.clone()
	id := RowID(len(t.rows))
	t.rows = append(t.rows, cp)
	for i, idx := range t.indices {
		if err := idx.onAdd(cp, id); err != nil {
			// Roll back. The failing index itself never mutated (onAdd for
			// KeyIndex reports DuplicateKey before touching its map), but
			// every index before it in t.indices already accepted the row —
			// including, for a unique table, the row-set index, whose
			// onRemove is a deliberate no-op (it expects callers to rebuild
			// wholesale, per index.go). So truncating t.rows alone would
			// leave those indices holding an entry for the now-reclaimed
			// id. Rebuild each of them from the table's post-truncation
			// contents instead of trying to undo onAdd index-by-index.
			t.rows = t.rows[:len(t.rows)-1]
			for _, prior := range t.indices[:i] {
				prior.rebuild(t)
			}
			return NoRow, errors.Wrapf(err, "ded: add to table")
		}
	}
	return id, nil
}

// AddIndex attaches idx to the table, back-filling it from existing rows.
func (t *Table) AddIndex(idx Index) error {
	for i, row := range t.rows {
		if err := idx.onAdd(row, RowID(i)); err != nil {
			return err
		}
	}
	t.indices = append(t.indices, idx)
	return nil
}

// Set overwrites row i's columns with newRow's, keeping the same RowID.
// Indices are updated in place (remove-then-readd against the old values),
// except the row-set index, whose onRemove is a no-op: it is rebuilt from
// the table once Set returns.
func (t *Table) Set(i RowID, newRow Row) error {
	old, ok := t.PositionReference(i)
	if !ok {
		return errors.Errorf("ded: Set on unknown row %d", i)
	}
	if t.rowSet != nil {
		defer t.rowSet.rebuild(t)
	}
	oldCopy := old.clone()
	cp := newRow.clone()
	t.rows[i] = cp
	for _, idx := range t.indices {
		idx.onRemove(oldCopy, i)
		if err := idx.onAdd(cp, i); err != nil {
			// Best effort: restore previous values.
			t.rows[i] = oldCopy
			idx.onAdd(oldCopy, i)
			return errors.Wrapf(err, "ded: set row %d", i)
		}
	}
	return nil
}

// Reclaim compacts the table in place, keeping only rows for which keep
// returns true, then rebuilds every attached index. Row ids are
// renumbered; the spec does not guarantee a particular post-reclaim order
// beyond contiguity of the surviving rows (spec.md §9, Open Questions).
func (t *Table) Reclaim(keep func(id RowID, row Row) bool) {
	kept := t.rows[:0]
	for i, row := range t.rows {
		if keep(RowID(i), row) {
			kept = append(kept, row)
		}
	}
	t.rows = kept
	for _, idx := range t.indices {
		idx.rebuild(t)
	}
}

// Clear empties the table (used by Rules-mode predicates: "the table is
// cleared and refilled" each tick, spec.md §4.8).
func (t *Table) Clear() {
	t.rows = t.rows[:0]
	for _, idx := range t.indices {
		idx.rebuild(t)
	}
}

// Rows returns the table's live row slice, where row i has RowID i; the
// slice aliases the table's storage rather than copying it. Intended for
// scans and for hosts iterating a predicate directly (spec.md §6,
// "Querying").
func (t *Table) Rows() []Row {
	return t.rows
}
