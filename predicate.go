package ded

import (
	mapset "github.com/deckarep/golang-set/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// IndexMode is the declared index treatment for one column (spec.md §6).
type IndexMode int

const (
	IndexNone IndexMode = iota
	IndexIndexed
	IndexKeyMode
	IndexJointKey
)

// ColumnSpec declares one column of a predicate (spec.md §6).
type ColumnSpec struct {
	Name     string
	Type     ColumnType
	Index    IndexMode
	Priority int
}

// UpdateMode classifies how a predicate's extent is maintained (spec.md §3, §4.8).
type UpdateMode int

const (
	// ModeBase predicates are seeded by Initially/AddRow; static unless
	// .Add/.Set sub-predicates are attached.
	ModeBase UpdateMode = iota
	// ModeRules predicates are re-derived every tick: cleared, then every
	// rule runs.
	ModeRules
	// ModeOperator predicates are computed by an opaque transform over
	// declared input predicates (spec.md §4.9).
	ModeOperator
)

// OperatorFunc computes a ModeOperator predicate's extent from scratch
// each time it runs.
type OperatorFunc func(p *Predicate) error

// Predicate is a named, typed relation: schema plus current extent
// (spec.md §3).
type Predicate struct {
	Name    string
	Columns []ColumnSpec
	Table   *Table
	Mode    UpdateMode
	Unique  bool

	Rules    []*Rule
	Operator OperatorFunc
	OpInputs []*Predicate // declared dependencies for ModeOperator

	dynamic   bool // computed at EndPredicates (spec.md §4.8's dynamicity inference)
	stale     bool // per-tick freshness flag
	hasAddSet bool // true once .Add/.Set sub-predicate machinery is attached

	pendingAdds []Row
	pendingSets map[any]Row

	// initialRows snapshots a ModeBase predicate's table immediately after
	// EndPredicates' bootstrap tick: the rows seeded by Initially/AddRow
	// (spec.md §4.8). Program.Reset restores exactly this snapshot, per
	// spec.md §6's "reset() returns to initial state" and testable
	// property 8's round-trip guarantee.
	initialRows []Row

	keyIndex     *KeyIndex     // the joint-key index if any IndexJointKey column exists, else the first IndexKeyMode column's index, else nil
	generalIndex map[int]*GeneralIndex

	program *Program

	indexCache *lru.Cache[uint64, Index] // memoizes chooseIndex (§4.2) per read-column bitmask
}

// NewPredicateBuilder-style construction happens via Program.DeclarePredicate;
// Predicate itself has no exported constructor so every predicate is owned
// by exactly one Program (design notes §9: "explicit Program context").

// AddRow adds a row directly to a ModeBase predicate's table at build
// time, before EndPredicates (the ".AddRow" surface of spec.md §4.8).
func (p *Predicate) AddRow(values ...any) (RowID, error) {
	if len(values) != len(p.Columns) {
		return NoRow, typeError("predicate %s: AddRow expects %d values, got %d", p.Name, len(p.Columns), len(values))
	}
	row := Row(values)
	return p.Table.Add(row)
}

// Add queues a row to be appended to a dynamic Base predicate's table at
// the start of its next update step (spec.md §4.8's ".Add sub-predicates
// append new rows"). Marks the predicate as having Add/Set machinery; when
// that happens before EndPredicates, the predicate is classified dynamic
// (see MarkDynamic).
func (p *Predicate) Add(values ...any) error {
	if p.Mode != ModeBase {
		return invalidProgramError("predicate %s: Add sub-predicate requires Mode=Base", p.Name)
	}
	if len(values) != len(p.Columns) {
		return typeError("predicate %s: Add expects %d values, got %d", p.Name, len(p.Columns), len(values))
	}
	p.hasAddSet = true
	p.pendingAdds = append(p.pendingAdds, Row(values))
	return nil
}

// QueueSet batches a row update keyed by this predicate's key index. The
// queued rows are applied by applyPending, after any queued Adds, during
// the predicate's own update step in the next Update (or in EndPredicates'
// bootstrap tick, if queued before it). That step runs at the predicate's
// stratum position, ahead of every predicate that depends on it, so rules
// evaluated later in the same tick already read the new rows; the update
// is not deferred to the end of the tick.
func (p *Predicate) QueueSet(key any, newRow Row) error {
	if p.Mode != ModeBase {
		return invalidProgramError("predicate %s: Set sub-predicate requires Mode=Base", p.Name)
	}
	if p.keyIndex == nil {
		return invalidProgramError("predicate %s: Set requires a key index", p.Name)
	}
	p.hasAddSet = true
	if p.pendingSets == nil {
		p.pendingSets = make(map[any]Row)
	}
	p.pendingSets[key] = newRow
	return nil
}

// applyPending flushes queued Add/Set mutations, in that order, as this
// predicate's own tick update step (spec.md §4.8).
func (p *Predicate) applyPending() error {
	for _, row := range p.pendingAdds {
		if _, err := p.Table.Add(row); err != nil {
			return err
		}
	}
	p.pendingAdds = nil
	for key, row := range p.pendingSets {
		if err := p.Set(key, row); err != nil {
			return err
		}
	}
	p.pendingSets = nil
	return nil
}

// If attaches a rule "p(args...) :- body..." to p, via the goal analyzer
// (spec.md §6's "head_goal.if(body_goals...)").
func (p *Predicate) If(args []Term, body ...Goal) error {
	_, err := CompileRule(p.program, L(p, args...), body...)
	return err
}

// Fact attaches a fact "p(args...)" (an empty-body rule) to p (spec.md
// §6's "head_goal.fact()").
func (p *Predicate) Fact(args ...Term) error {
	_, err := CompileRule(p.program, L(p, args...))
	return err
}

// MarkDynamic declares, ahead of EndPredicates, that this Base predicate
// will receive .Add/.Set calls over the program's lifetime even though
// none have happened yet. Without it, a Base predicate's dynamicity is
// inferred from whether Add/QueueSet has already been called by
// EndPredicates time, so a predicate's first .Add after EndPredicates
// would otherwise leave any dependent Rules predicate incorrectly
// classified as static (spec.md §4.8's dynamicity inference).
func (p *Predicate) MarkDynamic() {
	p.hasAddSet = true
}

// Get returns the row with the given key via the predicate's key index,
// or (nil, false) if absent or the predicate has no key index (spec.md
// §6, "key_index[k]").
func (p *Predicate) Get(key any) (Row, bool) {
	if p.keyIndex == nil {
		return nil, false
	}
	id := p.keyIndex.RowWithKey(key)
	if id == NoRow {
		return nil, false
	}
	return p.Table.PositionReference(id)
}

// Set replaces the row with the given key by newRow (spec.md §6:
// "set(key, column, value)"). newRow must supply every column, key columns
// included; callers typically read the old row via Get first.
func (p *Predicate) Set(key any, newRow Row) error {
	if p.keyIndex == nil {
		return invalidProgramError("predicate %s: Set requires a key index", p.Name)
	}
	id := p.keyIndex.RowWithKey(key)
	if id == NoRow {
		return invalidProgramError("predicate %s: Set on unknown key %v", p.Name, key)
	}
	return p.Table.Set(id, newRow)
}

// Rows iterates the predicate's current extent (spec.md §6, "Querying").
func (p *Predicate) Rows() []Row { return p.Table.Rows() }

// dependencySet returns the union of every rule's direct dependencies,
// plus declared operator inputs.
func (p *Predicate) dependencySet() mapset.Set[string] {
	deps := mapset.NewThreadUnsafeSet[string]()
	for _, r := range p.Rules {
		deps = deps.Union(r.Deps)
	}
	for _, in := range p.OpInputs {
		deps.Add(in.Name)
	}
	return deps
}

// compileCallForPattern chooses (and caches) the index-backed call for one
// goal against this predicate's table, implementing §4.2's selection rule.
func (p *Predicate) compileCallForPattern(pattern Pattern) Call {
	readCols := pattern.ReadColumns()
	mask := columnMask(readCols, pattern.Instantiated())

	all := p.allIndices()
	if p.indexCache != nil {
		if cached, ok := p.indexCache.Get(mask); ok {
			return p.makeCallFor(cached, pattern)
		}
	}
	chosen := chooseIndex(all, pattern)
	if p.indexCache != nil && chosen != nil {
		p.indexCache.Add(mask, chosen)
	}
	return p.makeCallFor(chosen, pattern)
}

func (p *Predicate) allIndices() []Index {
	var all []Index
	if p.Table.rowSet != nil {
		all = append(all, p.Table.rowSet)
	}
	if p.keyIndex != nil {
		all = append(all, p.keyIndex)
	}
	for _, g := range p.generalIndex {
		all = append(all, g)
	}
	return all
}

func (p *Predicate) makeCallFor(idx Index, pattern Pattern) Call {
	if idx == nil {
		return NewScanCall(p.Table, pattern)
	}
	switch v := idx.(type) {
	case *RowSetIndex:
		return NewRowSetProbeCall(v, pattern)
	case *KeyIndex:
		return NewKeyLookupCall(p.Table, v, pattern)
	case *GeneralIndex:
		return NewGeneralIndexCall(p.Table, v, pattern)
	default:
		return NewScanCall(p.Table, pattern)
	}
}

// columnMask packs a small read-column set plus the instantiated flag into
// one cache key.
func columnMask(cols []int, instantiated bool) uint64 {
	var m uint64
	for _, c := range cols {
		if c < 63 {
			m |= 1 << uint(c)
		}
	}
	if instantiated {
		m |= 1 << 63
	}
	return m
}
