package ded

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/btree"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
)

// Program is the set of predicates and their rules (spec.md §3). It is a
// single-owner structure, per spec.md §5: no internal locking, mutated
// only from the host's goroutine.
type Program struct {
	ID     uuid.UUID
	logger hclog.Logger
	opts   Options

	predicates map[string]*Predicate
	building   bool
	ended      bool

	constants map[constKey]*Cell

	// strata[i] is one dependency stratum, predicates ordered
	// deterministically by name (spec.md §4.8, §8 testable property 7).
	strata [][]*Predicate

	exceptions *Predicate
	problems   *Predicate

	// Rand is the randomness source for RandomCall/AssignRandomly; hosts
	// may override it (spec.md §1's "random-number helper" is an external
	// collaborator, out of scope for the core — this is its seam).
	Rand RandomFunc
}

// NewProgram creates an empty program, in the "building" state, ready for
// DeclarePredicate calls (spec.md §3, §6's "BeginPredicates").
func NewProgram(opts Options) *Program {
	opts = opts.withDefaults()
	p := &Program{
		ID:         uuid.New(),
		logger:     opts.Logger,
		opts:       opts,
		predicates: make(map[string]*Predicate),
		constants:  make(map[constKey]*Cell),
		building:   true,
	}
	p.exceptions = p.mustDeclareDiagnostic("Exceptions", []ColumnSpec{
		{Name: "Kind", Type: String},
		{Name: "Message", Type: String},
		{Name: "Predicate", Type: String},
		{Name: "Rule", Type: String},
	})
	p.problems = p.mustDeclareDiagnostic("Problems", []ColumnSpec{
		{Name: "Predicate", Type: String},
		{Name: "Message", Type: String},
	})
	return p
}

func (p *Program) mustDeclareDiagnostic(name string, cols []ColumnSpec) *Predicate {
	pred, err := p.DeclarePredicate(name, cols, ModeBase, false)
	if err != nil {
		panic(err) // only happens if called twice with the same name, which NewProgram never does
	}
	return pred
}

// Exceptions returns the read-only Exceptions diagnostic predicate
// (spec.md §6, §7).
func (p *Program) Exceptions() *Predicate { return p.exceptions }

// Problems returns the read-only Problems diagnostic predicate (spec.md §6, §7).
func (p *Program) Problems() *Predicate { return p.problems }

// DeclarePredicate creates a new predicate (spec.md §6's "Declaration").
// It must be called between NewProgram and EndPredicates.
func (p *Program) DeclarePredicate(name string, columns []ColumnSpec, mode UpdateMode, unique bool) (*Predicate, error) {
	if !p.building {
		return nil, invalidProgramError("DeclarePredicate(%s) called outside BeginPredicates/EndPredicates", name)
	}
	if _, exists := p.predicates[name]; exists {
		return nil, invalidProgramError("predicate %s already declared", name)
	}
	colTypes := make([]ColumnType, len(columns))
	for i, c := range columns {
		colTypes[i] = c.Type
	}
	table := NewTable(colTypes, unique)

	pred := &Predicate{
		Name:    name,
		Columns: columns,
		Table:   table,
		Mode:    mode,
		Unique:  unique,
		program: p,
	}

	var jointKeyCols []int
	for i, c := range columns {
		switch c.Index {
		case IndexIndexed:
			gi := NewGeneralIndex([]int{i}, []ColumnType{c.Type}, c.Priority, true)
			if err := table.AddIndex(gi); err != nil {
				return nil, err
			}
			if pred.generalIndex == nil {
				pred.generalIndex = make(map[int]*GeneralIndex)
			}
			pred.generalIndex[i] = gi
		case IndexKeyMode:
			ki := NewKeyIndex([]int{i}, []ColumnType{c.Type}, c.Priority)
			if err := table.AddIndex(ki); err != nil {
				return nil, err
			}
			if pred.keyIndex == nil {
				pred.keyIndex = ki
			}
		case IndexJointKey:
			jointKeyCols = append(jointKeyCols, i)
		}
	}
	if len(jointKeyCols) > 0 {
		types := make([]ColumnType, len(jointKeyCols))
		for i, c := range jointKeyCols {
			types[i] = columns[c].Type
		}
		ki := NewKeyIndex(jointKeyCols, types, 0)
		if err := table.AddIndex(ki); err != nil {
			return nil, err
		}
		pred.keyIndex = ki
	}

	if p.opts.IndexCacheSize > 0 {
		cache, err := lru.New[uint64, Index](p.opts.IndexCacheSize)
		if err == nil {
			pred.indexCache = cache
		}
	}

	p.predicates[name] = pred
	return pred, nil
}

// Predicate looks up a previously declared predicate by name.
func (p *Program) Predicate(name string) (*Predicate, bool) {
	pred, ok := p.predicates[name]
	return pred, ok
}

// EndPredicates finalizes the program (spec.md §4.8, §4.5.6):
//  1. builds the dependency graph,
//  2. rejects any cycle through rules (InvalidProgram),
//  3. computes a deterministic topological stratification,
//  4. infers which predicates are dynamic,
//  5. runs one bootstrap tick so every predicate's initial extent is
//     established before the host's first explicit Update().
func (p *Program) EndPredicates() error {
	if !p.building {
		return invalidProgramError("EndPredicates called without BeginPredicates")
	}

	strata, err := p.stratify()
	if err != nil {
		return err
	}
	p.strata = strata
	p.inferDynamic()
	p.building = false
	p.ended = true

	if p.logger != nil {
		for i, stratum := range p.strata {
			names := make([]string, len(stratum))
			for j, pred := range stratum {
				names[j] = pred.Name
			}
			p.logger.Debug("stratification", "stratum", i, "predicates", names)
		}
	}

	// Bootstrap: every predicate gets an initial evaluation, static ones
	// exactly once here and never again (spec.md §4.8).
	for _, stratum := range p.strata {
		for _, pred := range stratum {
			if err := p.runUpdateStep(pred); err != nil {
				return err
			}
			pred.stale = false
		}
	}

	// Snapshot every Base predicate's post-bootstrap extent so Reset can
	// restore it later without losing the rows seeded by Initially/AddRow
	// (spec.md §6, §8 testable property 8).
	for _, pred := range p.predicates {
		if pred.Mode == ModeBase {
			rows := pred.Table.Rows()
			snap := make([]Row, len(rows))
			for i, r := range rows {
				snap[i] = r.clone()
			}
			pred.initialRows = snap
		}
	}
	return nil
}

// stratify builds the predicate dependency graph and returns a
// deterministic topological ordering, grouped by stratum (spec.md
// §4.5.6). Within a stratum, predicates are mutually independent; they
// are still ordered by name (via a btree) so iteration order is
// reproducible across runs (testable property 7).
func (p *Program) stratify() ([][]*Predicate, error) {
	deps := make(map[string]mapset.Set[string], len(p.predicates))
	for name, pred := range p.predicates {
		deps[name] = pred.dependencySet()
	}

	sccs := tarjanSCCs(deps)

	var merr *multierror.Error
	for _, scc := range sccs {
		if len(scc) > 1 {
			merr = multierror.Append(merr, invalidProgramError("cycle through rules among predicates: %v", sortedNames(scc)))
		}
	}
	if merr.ErrorOrNil() != nil {
		return nil, merr
	}

	// sccs is already in reverse-topological order (Tarjan): every
	// component comes after the components it depends on, so walking it
	// front to back sees each dependency's depth before its dependents
	// need it. Each is a single predicate here since cycles were rejected
	// above. Build strata by dependency depth so independent predicates
	// share a stratum, then order each stratum deterministically by name.
	depth := make(map[string]int, len(p.predicates))
	order := make([]string, 0, len(p.predicates))
	for _, scc := range sccs {
		order = append(order, scc...)
	}
	maxDepth := 0
	for _, name := range order {
		d := 0
		for dep := range deps[name].Iter() {
			if dep == name {
				continue
			}
			if dd, ok := depth[dep]; ok && dd+1 > d {
				d = dd + 1
			}
		}
		depth[name] = d
		if d > maxDepth {
			maxDepth = d
		}
	}

	byDepth := make([]*btree.BTreeG[string], maxDepth+1)
	less := func(a, b string) bool { return a < b }
	for i := range byDepth {
		byDepth[i] = btree.NewG[string](8, less)
	}
	for name, d := range depth {
		byDepth[d].ReplaceOrInsert(name)
	}

	strata := make([][]*Predicate, maxDepth+1)
	for d, tree := range byDepth {
		var names []string
		tree.Ascend(func(name string) bool {
			names = append(names, name)
			return true
		})
		stratum := make([]*Predicate, len(names))
		for i, name := range names {
			stratum[i] = p.predicates[name]
		}
		strata[d] = stratum
	}
	return strata, nil
}

func sortedNames(names []string) []string {
	out := append([]string(nil), names...)
	sort.Strings(out)
	return out
}

// inferDynamic computes the dynamic flag for every predicate (spec.md
// §4.8): dynamic if it has Add/Set machinery, calls an impure construct,
// or transitively depends on a dynamic predicate. strata is already in
// dependency order, so one forward pass suffices.
func (p *Program) inferDynamic() {
	for _, stratum := range p.strata {
		for _, pred := range stratum {
			dyn := pred.hasAddSet
			if pred.Mode == ModeRules {
				for _, r := range pred.Rules {
					if r.Impure {
						dyn = true
					}
				}
			}
			if !dyn {
				for dep := range pred.dependencySet().Iter() {
					if d, ok := p.predicates[dep]; ok && d.dynamic {
						dyn = true
						break
					}
				}
			}
			pred.dynamic = dyn
		}
	}
}

// Update runs one tick: stale dynamic predicates are recomputed in
// dependency order (spec.md §4.8). Because strata already reflect
// topological dependency order, processing them in sequence guarantees
// testable property 5 (a predicate's dependencies are fresh before it
// runs) without any extra per-call freshness recursion.
func (p *Program) Update() error {
	if p.building {
		return invalidProgramError("Update called before EndPredicates")
	}
	// Base predicates always run their (cheap, usually empty) applyPending
	// step: whether a host calls .Add/.Set in a given tick isn't knowable
	// ahead of EndPredicates, so "dynamic" classification only gates
	// Rules/Operator re-evaluation, not a Base predicate's own step.
	for _, stratum := range p.strata {
		for _, pred := range stratum {
			if pred.Mode != ModeBase && pred.dynamic {
				pred.stale = true
			}
		}
	}

	var merr *multierror.Error
	for _, stratum := range p.strata {
		for _, pred := range stratum {
			if pred.Mode == ModeBase {
				if err := p.runUpdateStep(pred); err != nil {
					merr = multierror.Append(merr, err)
				}
				continue
			}
			if !pred.stale {
				continue
			}
			if err := p.runUpdateStep(pred); err != nil {
				merr = multierror.Append(merr, err)
			}
			pred.stale = false
		}
	}
	return merr.ErrorOrNil()
}

// runUpdateStep executes one predicate's update recipe for the current
// tick (spec.md §4.8).
func (p *Program) runUpdateStep(pred *Predicate) error {
	switch pred.Mode {
	case ModeBase:
		if err := pred.applyPending(); err != nil {
			p.logException("duplicate-key", err, pred, nil)
			return err
		}
		return nil
	case ModeRules:
		pred.Table.Clear()
		var merr *multierror.Error
		for _, r := range pred.Rules {
			if _, err := r.run(p); err != nil {
				p.logException("rule-execution", err, pred, r)
				merr = multierror.Append(merr, err)
				if !p.opts.ContinueOnError {
					break
				}
			}
		}
		return merr.ErrorOrNil()
	case ModeOperator:
		if pred.Operator == nil {
			return invalidProgramError("predicate %s: ModeOperator has no Operator func", pred.Name)
		}
		if err := pred.Operator(pred); err != nil {
			p.logException("operator", err, pred, nil)
			return err
		}
		return nil
	default:
		return invalidProgramError("predicate %s: unknown update mode", pred.Name)
	}
}

func (p *Program) logException(kind string, err error, pred *Predicate, rule *Rule) {
	ruleDesc := ""
	if rule != nil {
		ruleDesc = rule.Comment
	}
	if p.logger != nil {
		p.logger.Warn("exception", "program", p.ID, "kind", kind, "predicate", pred.Name, "error", err)
	}
	if p.exceptions != nil {
		row := Row{kind, err.Error(), pred.Name, ruleDesc}
		_, _ = p.exceptions.Table.Add(row)
	}
}

// AddProblem appends a soft diagnostic row to the Problems predicate
// (spec.md §7: "user-declared, engine-consulted channel for soft
// diagnostics; it is rule-driven and never aborts execution").
func (p *Program) AddProblem(predicate, message string) {
	if p.logger != nil {
		p.logger.Debug("problem", "program", p.ID, "predicate", predicate, "message", message)
	}
	if p.problems != nil {
		_, _ = p.problems.Table.Add(Row{predicate, message})
	}
}

// Reset restores every Base predicate's table to the snapshot taken after
// EndPredicates' bootstrap tick, discards queued Add/Set calls, and re-runs
// every predicate's update step in stratum order (spec.md §6's "reset()").
// Rules attached to predicates are retained; only table contents are
// discarded and recomputed.
func (p *Program) Reset() error {
	if p.building {
		return invalidProgramError("Reset called before EndPredicates")
	}
	for _, pred := range p.predicates {
		if pred.Mode == ModeBase {
			pred.Table.Clear()
			pred.pendingAdds = nil
			pred.pendingSets = nil
			for _, row := range pred.initialRows {
				if _, err := pred.Table.Add(row.clone()); err != nil {
					return errors.Wrap(err, "ded: reset: restoring initial rows")
				}
			}
		}
	}
	for _, stratum := range p.strata {
		for _, pred := range stratum {
			if err := p.runUpdateStep(pred); err != nil {
				return errors.Wrap(err, "ded: reset")
			}
			pred.stale = false
		}
	}
	return nil
}
