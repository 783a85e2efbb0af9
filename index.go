package ded

import (
	"github.com/pkg/errors"

	"github.com/tuplespace/ded/internal/xhash"
)

// IndexKind names one of the three index flavors (spec.md §3, §4.2).
type IndexKind int

const (
	KindRowSet IndexKind = iota
	KindKey
	KindGeneral
)

// Index is a lookup structure derived from a table's contents. All three
// flavors re-establish themselves deterministically from the table they
// index (spec.md §3's Index invariant).
type Index interface {
	Kind() IndexKind
	// Columns is the set of column indices this index is keyed on. Empty
	// for RowSet, which is keyed on the whole row.
	Columns() []int
	// Priority orders index selection: lower values are preferred (spec.md
	// §4.2, "ordered by declared priority").
	Priority() int
	// CanMatchOn reports whether this index can answer a call compiled
	// against the given set of Read/Constant columns.
	CanMatchOn(readCols []int) bool

	onAdd(row Row, id RowID) error
	onRemove(row Row, id RowID)
	rebuild(t *Table)
}

// --- RowSet: hash set of full tuples, open addressing. ---

type rowSetEntry struct {
	id   RowID
	used bool
}

// RowSetIndex answers full-tuple membership in O(1) expected, via open
// addressing with linear probing (spec.md §4.2).
type RowSetIndex struct {
	columns []ColumnType
	buckets []rowSetEntry
	rows    []Row // parallel storage so Contains need not touch the table
	count   int
}

// NewRowSetIndex creates an empty row-set index over the given columns.
func NewRowSetIndex(columns []ColumnType) *RowSetIndex {
	rs := &RowSetIndex{columns: columns}
	rs.buckets = make([]rowSetEntry, 16)
	rs.rows = make([]Row, 16)
	return rs
}

func (rs *RowSetIndex) Kind() IndexKind     { return KindRowSet }
func (rs *RowSetIndex) Columns() []int      { return nil }
func (rs *RowSetIndex) Priority() int       { return 0 } // RowSet always wins when instantiated (§4.2)
func (rs *RowSetIndex) CanMatchOn(readCols []int) bool {
	return len(readCols) == len(rs.columns)
}

func (rs *RowSetIndex) hash(row Row) uint64 {
	hs := make([]uint64, len(row))
	for i, v := range row {
		hs[i] = rs.columns[i].Hash(v)
	}
	return xhash.Tuple(hs)
}

func (rs *RowSetIndex) equalRow(a, b Row) bool {
	for i := range a {
		if !rs.columns[i].Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

func (rs *RowSetIndex) growIfNeeded() {
	if rs.count*2 < len(rs.buckets) {
		return
	}
	old := rs.buckets
	oldRows := rs.rows
	rs.buckets = make([]rowSetEntry, len(old)*2)
	rs.rows = make([]Row, len(old)*2)
	rs.count = 0
	for i, e := range old {
		if e.used {
			rs.insert(oldRows[i], e.id)
		}
	}
}

func (rs *RowSetIndex) insert(row Row, id RowID) {
	mask := uint64(len(rs.buckets) - 1)
	h := rs.hash(row) & mask
	for {
		if !rs.buckets[h].used {
			rs.buckets[h] = rowSetEntry{id: id, used: true}
			rs.rows[h] = row
			rs.count++
			return
		}
		h = (h + 1) & mask
	}
}

// Contains reports whether an equal row is present, and its id.
func (rs *RowSetIndex) Contains(row Row) (RowID, bool) {
	if len(rs.buckets) == 0 {
		return NoRow, false
	}
	mask := uint64(len(rs.buckets) - 1)
	h := rs.hash(row) & mask
	for probes := 0; probes < len(rs.buckets); probes++ {
		e := rs.buckets[h]
		if !e.used {
			return NoRow, false
		}
		if rs.equalRow(rs.rows[h], row) {
			return e.id, true
		}
		h = (h + 1) & mask
	}
	return NoRow, false
}

func (rs *RowSetIndex) onAdd(row Row, id RowID) error {
	rs.growIfNeeded()
	rs.insert(row, id)
	return nil
}

func (rs *RowSetIndex) onRemove(row Row, id RowID) {
	// Rebuilt wholesale on next rebuild(); row-set membership removal via
	// tombstoning isn't needed because Table.Set/Reclaim always call
	// rebuild() to re-establish the row set from scratch afterward.
}

func (rs *RowSetIndex) rebuild(t *Table) {
	rs.buckets = make([]rowSetEntry, 16)
	rs.rows = make([]Row, 16)
	rs.count = 0
	for i, row := range t.rows {
		rs.growIfNeeded()
		rs.insert(row, RowID(i))
	}
}

// --- KeyIndex: unique column(s) -> single row. ---

// KeyIndex maps a chosen column, or a composite of "joint-key" columns, to
// a single row id. Duplicate keys fail fatally (spec.md §4.2).
type KeyIndex struct {
	columns  []int
	types    []ColumnType
	priority int
	table    map[any]RowID // single-column fast path
	compKeys map[string]RowID
}

// NewKeyIndex creates a key index over the given column indices (usually
// one column; more than one denotes a "joint-partial key").
func NewKeyIndex(columns []int, types []ColumnType, priority int) *KeyIndex {
	k := &KeyIndex{columns: columns, types: types, priority: priority}
	if len(columns) == 1 {
		k.table = make(map[any]RowID)
	} else {
		k.compKeys = make(map[string]RowID)
	}
	return k
}

func (k *KeyIndex) Kind() IndexKind { return KindKey }
func (k *KeyIndex) Columns() []int  { return k.columns }
func (k *KeyIndex) Priority() int   { return k.priority }

func (k *KeyIndex) CanMatchOn(readCols []int) bool {
	have := make(map[int]bool, len(readCols))
	for _, c := range readCols {
		have[c] = true
	}
	for _, c := range k.columns {
		if !have[c] {
			return false
		}
	}
	return true
}

func (k *KeyIndex) keyOf(row Row) any {
	if len(k.columns) == 1 {
		return row[k.columns[0]]
	}
	// Composite keys are stored by a stable string built from each
	// column's Format, so that equal tuples collide and unequal ones
	// (almost certainly) don't — the index only needs a consistent key,
	// not a cryptographic one.
	s := ""
	for i, c := range k.columns {
		s += k.types[i].Format(row[c]) + "\x00"
	}
	return s
}

// RowWithKey returns the row id with the given key, or NoRow.
func (k *KeyIndex) RowWithKey(key any) RowID {
	if len(k.columns) == 1 {
		if id, ok := k.table[key]; ok {
			return id
		}
		return NoRow
	}
	if id, ok := k.compKeys[key.(string)]; ok {
		return id
	}
	return NoRow
}

func (k *KeyIndex) onAdd(row Row, id RowID) error {
	key := k.keyOf(row)
	if len(k.columns) == 1 {
		if existing, ok := k.table[key]; ok && existing != id {
			return errors.Wrapf(ErrDuplicateKey, "key index: key %v already maps to row %d", key, existing)
		}
		k.table[key] = id
		return nil
	}
	ks := key.(string)
	if existing, ok := k.compKeys[ks]; ok && existing != id {
		return errors.Wrapf(ErrDuplicateKey, "key index: joint key already maps to row %d", existing)
	}
	k.compKeys[ks] = id
	return nil
}

func (k *KeyIndex) onRemove(row Row, id RowID) {
	key := k.keyOf(row)
	if len(k.columns) == 1 {
		delete(k.table, key)
		return
	}
	delete(k.compKeys, key.(string))
}

func (k *KeyIndex) rebuild(t *Table) {
	if len(k.columns) == 1 {
		k.table = make(map[any]RowID, len(t.rows))
	} else {
		k.compKeys = make(map[string]RowID, len(t.rows))
	}
	for i, row := range t.rows {
		// Rebuild ignores duplicate-key errors that can't happen here: the
		// table itself is the source of truth post-compaction, and it
		// never holds two rows with the same key (Add/Set would have
		// failed first).
		_ = k.onAdd(row, RowID(i))
	}
}

// --- GeneralIndex: value -> chain of rows, via a parallel "next" array. ---

// GeneralIndex maps a key to a singly-linked chain of row ids (spec.md
// §4.2). Multiple rows may share a key. Mutation (Add/Remove outside of
// the table's own onAdd/onRemove path) requires mutable to be set, per
// the IndexContract error.
type GeneralIndex struct {
	columns  []int
	types    []ColumnType
	priority int
	mutable  bool
	heads    map[string]RowID
	next     []RowID // next[id] = next row with the same key, or NoRow
}

// NewGeneralIndex creates a general index over the given columns.
func NewGeneralIndex(columns []int, types []ColumnType, priority int, mutable bool) *GeneralIndex {
	return &GeneralIndex{
		columns:  columns,
		types:    types,
		priority: priority,
		mutable:  mutable,
		heads:    make(map[string]RowID),
	}
}

func (g *GeneralIndex) Kind() IndexKind { return KindGeneral }
func (g *GeneralIndex) Columns() []int  { return g.columns }
func (g *GeneralIndex) Priority() int   { return g.priority }

func (g *GeneralIndex) CanMatchOn(readCols []int) bool {
	have := make(map[int]bool, len(readCols))
	for _, c := range readCols {
		have[c] = true
	}
	for _, c := range g.columns {
		if !have[c] {
			return false
		}
	}
	return true
}

func (g *GeneralIndex) keyOf(row Row) string {
	s := ""
	for i, c := range g.columns {
		s += g.types[i].Format(row[c]) + "\x00"
	}
	return s
}

// KeyOfValues computes the same key string from explicit column values,
// for use by call iterators that have Read/Constant values but no row yet.
func (g *GeneralIndex) KeyOfValues(vals []any) string {
	s := ""
	for i, v := range vals {
		s += g.types[i].Format(v) + "\x00"
	}
	return s
}

func (g *GeneralIndex) ensureNextLen(id RowID) {
	for RowID(len(g.next)) <= id {
		g.next = append(g.next, NoRow)
	}
}

// FirstRowWithValue returns the first (most recently inserted) row with
// the given key, or NoRow.
func (g *GeneralIndex) FirstRowWithValue(key string) RowID {
	if id, ok := g.heads[key]; ok {
		return id
	}
	return NoRow
}

// NextRowWithValue steps the chain starting from prev.
func (g *GeneralIndex) NextRowWithValue(prev RowID) RowID {
	if int(prev) < 0 || int(prev) >= len(g.next) {
		return NoRow
	}
	return g.next[prev]
}

// Add inserts id with an explicit key into the chain. Requires mutable.
func (g *GeneralIndex) Add(key string, id RowID) error {
	if !g.mutable {
		return errors.Wrapf(ErrIndexContract, "general index: mutation requires mutable=true")
	}
	g.ensureNextLen(id)
	g.next[id] = g.FirstRowWithValue(key)
	g.heads[key] = id
	return nil
}

// Remove deletes id from the chain under key. Requires mutable.
func (g *GeneralIndex) Remove(key string, id RowID) error {
	if !g.mutable {
		return errors.Wrapf(ErrIndexContract, "general index: mutation requires mutable=true")
	}
	cur := g.heads[key]
	if cur == id {
		g.heads[key] = g.next[id]
		return nil
	}
	for cur != NoRow {
		nxt := g.next[cur]
		if nxt == id {
			g.next[cur] = g.next[id]
			return nil
		}
		cur = nxt
	}
	return nil
}

// CountsOf returns the number of rows with the given key by walking the
// chain (spec.md §4.2, "counts-by-key enumeration").
func (g *GeneralIndex) CountsOf(key string) int {
	n := 0
	for id := g.FirstRowWithValue(key); id != NoRow; id = g.NextRowWithValue(id) {
		n++
	}
	return n
}

// Keys returns every distinct key currently present, for group-by style
// enumeration (used by CountsBy, spec.md §4.9).
func (g *GeneralIndex) Keys() []string {
	keys := make([]string, 0, len(g.heads))
	for k, head := range g.heads {
		if head != NoRow {
			keys = append(keys, k)
		}
	}
	return keys
}

func (g *GeneralIndex) onAdd(row Row, id RowID) error {
	key := g.keyOf(row)
	g.ensureNextLen(id)
	g.next[id] = g.FirstRowWithValue(key)
	g.heads[key] = id
	return nil
}

func (g *GeneralIndex) onRemove(row Row, id RowID) {
	key := g.keyOf(row)
	cur, ok := g.heads[key]
	if !ok {
		return
	}
	if cur == id {
		g.heads[key] = g.next[id]
		return
	}
	for cur != NoRow {
		nxt := g.next[cur]
		if nxt == id {
			g.next[cur] = g.next[id]
			return
		}
		cur = nxt
	}
}

func (g *GeneralIndex) rebuild(t *Table) {
	g.heads = make(map[string]RowID, len(t.rows))
	g.next = make([]RowID, len(t.rows))
	for i := range g.next {
		g.next[i] = NoRow
	}
	for i, row := range t.rows {
		g.onAdd(row, RowID(i))
	}
}

// chooseIndex implements §4.2's index selection rule: the first index
// whose column set matches the pattern's Read positions, ordered by
// declared priority; a row-set wins outright when the pattern is fully
// instantiated.
func chooseIndex(indices []Index, pattern Pattern) Index {
	readCols := pattern.ReadColumns()
	if pattern.Instantiated() {
		for _, idx := range indices {
			if idx.Kind() == KindRowSet {
				return idx
			}
		}
	}
	var best Index
	for _, idx := range indices {
		if idx.Kind() == KindRowSet {
			continue
		}
		if idx.CanMatchOn(readCols) {
			if best == nil || idx.Priority() < best.Priority() {
				best = idx
			}
		}
	}
	return best
}
