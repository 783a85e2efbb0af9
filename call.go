package ded

// Call is the uniform backtracking cursor contract every goal flavor
// implements (spec.md §3, §4.6). Reset re-primes backtracking state;
// NextSolution advances and, on true, has written the cells demanded by
// its pattern. A Call must be idempotent after exhaustion: once
// NextSolution returns false, it keeps returning false until Reset.
type Call interface {
	Reset()
	NextSolution() bool
}

// ScanCall is an exhaustive table scan: it keeps a row cursor and
// attempts pattern Match at each row until Match or end (spec.md §4.6).
type ScanCall struct {
	table   *Table
	pattern Pattern
	cursor  RowID
}

// NewScanCall creates a call that scans table's rows against pattern.
func NewScanCall(table *Table, pattern Pattern) *ScanCall {
	return &ScanCall{table: table, pattern: pattern}
}

func (s *ScanCall) Reset() { s.cursor = 0 }

func (s *ScanCall) NextSolution() bool {
	for {
		row, ok := s.table.PositionReference(s.cursor)
		if !ok {
			return false
		}
		s.cursor++
		if s.pattern.Match(row) {
			return true
		}
	}
}

// RowSetProbeCall is a single-shot full-tuple membership test against a
// RowSet index, used when a pattern is fully instantiated (spec.md §4.6).
type RowSetProbeCall struct {
	index   *RowSetIndex
	pattern Pattern
	done    bool
}

// NewRowSetProbeCall creates a single-shot membership probe.
func NewRowSetProbeCall(index *RowSetIndex, pattern Pattern) *RowSetProbeCall {
	return &RowSetProbeCall{index: index, pattern: pattern}
}

func (r *RowSetProbeCall) Reset() { r.done = false }

func (r *RowSetProbeCall) NextSolution() bool {
	if r.done {
		return false
	}
	r.done = true
	tuple := r.pattern.NewRow()
	_, ok := r.index.Contains(tuple)
	return ok
}

// KeyLookupCall is a single-shot key lookup: it reads the key from the
// pattern's Read/Constant positions, consults a KeyIndex, then runs the
// full pattern (to perform any remaining Read/Write ops) against the
// matched row (spec.md §4.6).
type KeyLookupCall struct {
	table   *Table
	index   *KeyIndex
	pattern Pattern
	done    bool
}

// NewKeyLookupCall creates a single-shot key lookup call.
func NewKeyLookupCall(table *Table, index *KeyIndex, pattern Pattern) *KeyLookupCall {
	return &KeyLookupCall{table: table, index: index, pattern: pattern}
}

func (k *KeyLookupCall) Reset() { k.done = false }

func (k *KeyLookupCall) NextSolution() bool {
	if k.done {
		return false
	}
	k.done = true
	keyRow := k.pattern.NewRow()
	key := k.index.keyOf(keyRow)
	id := k.index.RowWithKey(key)
	if id == NoRow {
		return false
	}
	row, ok := k.table.PositionReference(id)
	if !ok {
		return false
	}
	return k.pattern.Match(row)
}

// GeneralIndexCall traverses a GeneralIndex chain, attempting Match at
// each row because the index coarsens by key only (spec.md §4.6).
type GeneralIndexCall struct {
	table   *Table
	index   *GeneralIndex
	pattern Pattern
	current RowID
	started bool
}

// NewGeneralIndexCall creates a general-index traversal call.
func NewGeneralIndexCall(table *Table, index *GeneralIndex, pattern Pattern) *GeneralIndexCall {
	return &GeneralIndexCall{table: table, index: index, pattern: pattern}
}

func (g *GeneralIndexCall) Reset() {
	g.started = false
	g.current = NoRow
}

func (g *GeneralIndexCall) NextSolution() bool {
	if !g.started {
		keyRow := g.pattern.NewRow()
		key := g.index.KeyOfValues(keyValuesForColumns(keyRow, g.index.columns))
		g.current = g.index.FirstRowWithValue(key)
		g.started = true
	} else {
		g.current = g.index.NextRowWithValue(g.current)
	}
	for g.current != NoRow {
		row, ok := g.table.PositionReference(g.current)
		if ok && g.pattern.Match(row) {
			return true
		}
		g.current = g.index.NextRowWithValue(g.current)
	}
	return false
}

func keyValuesForColumns(row Row, columns []int) []any {
	vals := make([]any, len(columns))
	for i, c := range columns {
		vals[i] = row[c]
	}
	return vals
}
