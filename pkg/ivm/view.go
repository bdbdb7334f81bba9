package ivm

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/kasuganosora/reactivesql/pkg/store"
)

// View is satisfied by every operator in the DAG (BaseTable, Where, Select,
// Distinct, UnionAll, Union, Join, GroupBy, Sort). Convenience chaining
// methods (Where, Select, Join, ...) are defined once on *viewBase and
// promoted to every concrete operator through struct embedding, the
// standard substitute for virtual dispatch on a shared base class.
type View interface {
	base() *viewBase

	// OnInsert, OnDelete, OnUpdate, and OnReset subscribe to this view's
	// four delta channels. Promoted from
	// *viewBase on every concrete operator; declared here too so code
	// holding only a View can subscribe without a type assertion.
	OnInsert(fn InsertFunc) SubscriptionToken
	OnDelete(fn DeleteFunc) SubscriptionToken
	OnUpdate(fn UpdateFunc) SubscriptionToken
	OnReset(fn ResetFunc) SubscriptionToken

	// Columns returns the view's output column names.
	Columns() []string

	// FetchAll returns every row currently in the view. Equivalence
	// invariant: replaying the delta stream from subscription time must
	// reconstruct exactly this set.
	FetchAll(ctx context.Context) ([]Row, error)

	// Close unsubscribes this view from its parent(s) and releases any
	// gateway subscriptions it owns directly (e.g. BaseTable). Go has no
	// destructors, so Close must be called explicitly once the view is no
	// longer needed; closing twice is a no-op.
	Close()

	// updateByID and deleteByID route a Row.Update/Row.Delete call back
	// through the view DAG to whichever BaseTable owns the row's
	// identity. Unexported because only views with an unambiguous single
	// source row can implement them meaningfully. Distinct, UnionAll,
	// Union and GroupBy answer updateByID with an error rather than
	// guessing, and Join rejects an update touching a right-side column;
	// their deleteByID forwards the id to a parent (the left one for
	// UnionAll and Join).
	updateByID(ctx context.Context, id any, set Values) error
	deleteByID(ctx context.Context, id any) error
}

// viewBase is the embedded header every concrete operator carries. self
// lets methods defined on *viewBase call back into the concrete operator's
// own interface methods (FetchAll, Columns, ...), approximating virtual
// dispatch without Go inheritance.
type viewBase struct {
	db   *Database
	self View

	inserts listenerList[InsertFunc]
	deletes listenerList[DeleteFunc]
	updates listenerList[UpdateFunc]
	resets  listenerList[ResetFunc]

	closed bool
}

func newViewBase(db *Database, self View) *viewBase {
	return &viewBase{db: db, self: self}
}

func (b *viewBase) base() *viewBase { return b }

// emitInsert notifies subscribers a row entered the view.
func (b *viewBase) emitInsert(row Row, index int) {
	for _, fn := range b.inserts.snapshot() {
		fn(row, index)
	}
}

func (b *viewBase) emitDelete(row Row, index int) {
	for _, fn := range b.deletes.snapshot() {
		fn(row, index)
	}
}

func (b *viewBase) emitUpdate(old, new Row, oldIndex, newIndex int) {
	for _, fn := range b.updates.snapshot() {
		fn(old, new, oldIndex, newIndex)
	}
}

func (b *viewBase) emitReset() {
	for _, fn := range b.resets.snapshot() {
		fn()
	}
}

// OnInsert subscribes to rows entering the view.
func (b *viewBase) OnInsert(fn InsertFunc) SubscriptionToken {
	idx := b.inserts.add(fn)
	return newToken(func() { b.inserts.remove(idx) })
}

// OnDelete subscribes to rows leaving the view.
func (b *viewBase) OnDelete(fn DeleteFunc) SubscriptionToken {
	idx := b.deletes.add(fn)
	return newToken(func() { b.deletes.remove(idx) })
}

// OnUpdate subscribes to in-place row changes.
func (b *viewBase) OnUpdate(fn UpdateFunc) SubscriptionToken {
	idx := b.updates.add(fn)
	return newToken(func() { b.updates.remove(idx) })
}

// OnReset subscribes to wholesale-requery notifications.
func (b *viewBase) OnReset(fn ResetFunc) SubscriptionToken {
	idx := b.resets.add(fn)
	return newToken(func() { b.resets.remove(idx) })
}

func newToken(unsub func()) SubscriptionToken {
	return SubscriptionToken{id: uuid.New(), unsub: unsub}
}

// markClosed marks the view closed. viewBase has no Close of its own:
// each concrete operator's Close unsubscribes from its parent(s) and then
// calls markClosed.
func (b *viewBase) markClosed() {
	b.closed = true
}

func (b *viewBase) isClosed() bool { return b.closed }

// Where narrows self to rows matching predicate.
func (b *viewBase) Where(predicate string, args ...any) *FilterView {
	return newFilterView(b.db, b.self, predicate, args)
}

// WhereEq narrows self to rows equal to every given column value,
// evaluated locally without a SQL round-trip. A nil value matches NULL.
func (b *viewBase) WhereEq(equalities Values) *FilterView {
	return newFilterViewEq(b.db, b.self, equalities)
}

// Select projects self onto a column list, optionally with computed
// expressions.
func (b *viewBase) Select(columns ...string) *ProjectView {
	return newProjectView(b.db, b.self, columns)
}

// Distinct deduplicates self by full row value.
func (b *viewBase) Distinct() *DistinctView {
	return newDistinctView(b.db, b.self)
}

// UnionAll concatenates self and other without deduplication.
func (b *viewBase) UnionAll(other View) *UnionAllView {
	return newUnionAllView(b.db, b.self, other)
}

// Union concatenates self and other, deduplicating by full row value:
// UnionAll followed by Distinct, expressed directly. Returns an error
// when the parents' column sets differ.
func (b *viewBase) Union(other View) (*UnionView, error) {
	return newUnionView(b.db, b.self, other)
}

// Join performs an equi-join against other. on pairs left columns with
// right columns; it may hold several pairs (composite key) or none at all
// (cross product). leftOuter/rightOuter control outer-join padding.
func (b *viewBase) Join(other View, on map[string]string, leftOuter, rightOuter bool) *JoinView {
	return newJoinView(b.db, b.self, other, on, leftOuter, rightOuter)
}

// GroupBy aggregates self over the given key columns.
func (b *viewBase) GroupBy(keys ...string) *GroupByBuilder {
	return &GroupByBuilder{db: b.db, parent: b.self, keys: keys}
}

// Sort produces a windowed, ordered view over self.
func (b *viewBase) Sort(orderBy []OrderTerm, limit, offset int) *SortView {
	return newSortView(b.db, b.self, orderBy, limit, offset)
}

// Count returns a ScalarValue tracking the live row count of self.
func (b *viewBase) Count() *ScalarValue {
	return newCountValue(b.self)
}

// aggregate builds a single-row global aggregate over self and watches its
// value column. The intermediate GroupByView is owned by the returned
// ScalarValue and closed with it.
func (b *viewBase) aggregate(kind AggKind, col, alias string) *ScalarValue {
	view := newGroupByView(b.db, b.self, nil, []Aggregate{
		{Name: alias, Kind: kind, Column: col},
		{Name: "_count", Kind: AggCount},
	})
	sv := ColumnValue(view, alias)
	sv.owned = append(sv.owned, view)
	return sv
}

// Sum returns a ScalarValue tracking the live sum of col over self.
func (b *viewBase) Sum(col string) *ScalarValue { return b.aggregate(AggSum, col, "sum") }

// Avg returns a ScalarValue tracking the live average of col over self,
// nil while self is empty.
func (b *viewBase) Avg(col string) *ScalarValue { return b.aggregate(AggAvg, col, "avg") }

// Min returns a ScalarValue tracking the live minimum of col over self,
// nil while self is empty.
func (b *viewBase) Min(col string) *ScalarValue { return b.aggregate(AggMin, col, "min") }

// Max returns a ScalarValue tracking the live maximum of col over self,
// nil while self is empty.
func (b *viewBase) Max(col string) *ScalarValue { return b.aggregate(AggMax, col, "max") }

// Only wraps the single-row contents of self.
func (b *viewBase) Only() *ScalarValue { return RowValue(b.self) }

// FetchOne returns the first row of self matching every given equality,
// or ok=false when none does. A nil where returns the first row outright.
func (b *viewBase) FetchOne(ctx context.Context, where Values) (Row, bool, error) {
	rows, err := b.self.FetchAll(ctx)
	if err != nil {
		return Row{}, false, err
	}
	for _, r := range rows {
		matched := true
		for c, v := range where {
			if !valuesEqual(r.Values[c], v) {
				matched = false
				break
			}
		}
		if matched {
			return r, true, nil
		}
	}
	return Row{}, false, nil
}

// FetchOne returns the single row of v, or ok=false if it holds zero or
// more than one row.
func FetchOne(ctx context.Context, v View) (Row, bool, error) {
	rows, err := v.FetchAll(ctx)
	if err != nil {
		return Row{}, false, err
	}
	if len(rows) != 1 {
		return Row{}, false, nil
	}
	return rows[0], true, nil
}

// Database is the root of the view DAG: it owns the StoreGateway and the
// registry of BaseTables constructed over it.
type Database struct {
	gw       *store.Gateway
	tables   map[string]*BaseTable
	declared map[string][]store.ColumnDef
}

// NewDatabase wraps an already-constructed gateway.
func NewDatabase(gw *store.Gateway) *Database {
	return &Database{gw: gw, tables: make(map[string]*BaseTable)}
}

// Gateway returns the underlying StoreGateway.
func (d *Database) Gateway() *store.Gateway { return d.gw }

// Table returns the view over the named base table, constructing it on
// first use.
func (d *Database) Table(ctx context.Context, name string) (*BaseTable, error) {
	if bt, ok := d.tables[name]; ok {
		return bt, nil
	}
	bt, err := newBaseTable(ctx, d, name)
	if err != nil {
		return nil, fmt.Errorf("table %s: %w", name, err)
	}
	d.tables[name] = bt
	return bt, nil
}
