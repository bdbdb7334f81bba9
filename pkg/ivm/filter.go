package ivm

import "context"

// FilterView narrows its parent to rows matching a predicate. The
// predicate is a SQL boolean expression over the parent's columns,
// re-evaluated per delta through a one-row gateway round-trip rather than
// re-implemented in Go; a pure conjunction of column = literal terms (and
// every WhereEq filter) is matched locally instead.
type FilterView struct {
	*viewBase

	parent     View
	predicate  string
	args       []any
	equalities map[string]any // non-nil when predicate is a pure literal equality conjunction

	subs []SubscriptionToken
}

func newFilterView(db *Database, parent View, predicate string, args []any) *FilterView {
	fv := &FilterView{parent: parent, predicate: predicate, args: args}
	fv.viewBase = newViewBase(db, fv)
	fv.compilePredicate()
	fv.subscribe()
	return fv
}

// newFilterViewEq builds a filter from explicit column equalities, always
// evaluated locally.
func newFilterViewEq(db *Database, parent View, equalities Values) *FilterView {
	fv := &FilterView{parent: parent, equalities: cloneValues(equalities)}
	fv.viewBase = newViewBase(db, fv)
	fv.subscribe()
	return fv
}

func (fv *FilterView) subscribe() {
	pb := fv.parent.base()
	fv.subs = []SubscriptionToken{
		pb.OnInsert(fv.onParentInsert),
		pb.OnDelete(fv.onParentDelete),
		pb.OnUpdate(fv.onParentUpdate),
		pb.OnReset(fv.emitReset),
	}
}

// compilePredicate classifies the predicate once at construction time: a
// pure conjunction of column = literal comparisons is evaluated locally on
// every delta instead of round-tripping through the gateway. Any
// free-form fragment (functions, placeholders, inequalities,
// disjunctions) keeps using the general one-row evaluator.
func (fv *FilterView) compilePredicate() {
	if eq, ok := ExtractEqualities(fv.predicate); ok {
		fv.equalities = eq
		return
	}
	fv.equalities = nil
}

func (fv *FilterView) matches(row Row) bool {
	if fv.equalities != nil {
		for col, want := range fv.equalities {
			if !valuesEqual(row.Get(col), want) {
				return false
			}
		}
		return true
	}
	ok, err := evalBoolExpr(context.Background(), fv.db.Gateway(), fv.predicate, fv.args, row.Values)
	if err != nil {
		// A predicate evaluation failure is treated as non-match rather
		// than panicking a propagation chain the caller cannot unwind.
		return false
	}
	return ok
}

func (fv *FilterView) onParentInsert(row Row, _ int) {
	if fv.matches(row) {
		fv.emitInsert(Row{View: fv, Values: row.Values}, -1)
	}
}

func (fv *FilterView) onParentDelete(row Row, _ int) {
	if fv.matches(row) {
		fv.emitDelete(Row{View: fv, Values: row.Values}, -1)
	}
}

func (fv *FilterView) onParentUpdate(old, new Row, _, _ int) {
	wasIn := fv.matches(old)
	isIn := fv.matches(new)
	switch {
	case wasIn && isIn:
		fv.emitUpdate(Row{View: fv, Values: old.Values}, Row{View: fv, Values: new.Values}, -1, -1)
	case wasIn && !isIn:
		fv.emitDelete(Row{View: fv, Values: old.Values}, -1)
	case !wasIn && isIn:
		fv.emitInsert(Row{View: fv, Values: new.Values}, -1)
	}
}

// SetFilter replaces the predicate wholesale and emits a reset, since the
// new predicate may admit or reject an arbitrary subset of rows that
// cannot be expressed as an incremental delta.
func (fv *FilterView) SetFilter(predicate string, args ...any) {
	fv.predicate = predicate
	fv.args = args
	fv.compilePredicate()
	fv.emitReset()
}

// updateByID forwards straight to the parent: a Where view preserves the
// parent's row identity verbatim, so its own predicate narrows visibility
// only — the id already names exactly one parent row.
func (fv *FilterView) updateByID(ctx context.Context, id any, set Values) error {
	return fv.parent.updateByID(ctx, id, set)
}

// deleteByID forwards straight to the parent.
func (fv *FilterView) deleteByID(ctx context.Context, id any) error {
	return fv.parent.deleteByID(ctx, id)
}

// Columns returns the parent's column names unchanged.
func (fv *FilterView) Columns() []string { return fv.parent.Columns() }

// FetchAll re-derives the filtered set straight from the parent's current
// contents.
func (fv *FilterView) FetchAll(ctx context.Context) ([]Row, error) {
	parentRows, err := fv.parent.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Row, 0, len(parentRows))
	for _, r := range parentRows {
		if fv.matches(r) {
			out = append(out, Row{View: fv, Values: r.Values})
		}
	}
	return out, nil
}

// Close unsubscribes from the parent.
func (fv *FilterView) Close() {
	if fv.isClosed() {
		return
	}
	for _, s := range fv.subs {
		s.Unsubscribe()
	}
	fv.markClosed()
}
