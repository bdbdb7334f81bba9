package ivm

import "context"

// UnionAllView concatenates two parents without deduplication: every
// insert/delete/update from either parent is spliced straight through.
// Both parents must share the same column set.
type UnionAllView struct {
	*viewBase

	left, right View
	columns     []string

	subs []SubscriptionToken
}

func newUnionAllView(db *Database, left, right View) *UnionAllView {
	uv := &UnionAllView{left: left, right: right, columns: left.Columns()}
	uv.viewBase = newViewBase(db, uv)

	lb, rb := left.base(), right.base()
	uv.subs = []SubscriptionToken{
		lb.OnInsert(uv.splice(uv.emitInsert)),
		lb.OnDelete(DeleteFunc(uv.splice(uv.emitDelete))),
		lb.OnUpdate(uv.spliceUpdate),
		lb.OnReset(uv.emitReset),
		rb.OnInsert(uv.splice(uv.emitInsert)),
		rb.OnDelete(DeleteFunc(uv.splice(uv.emitDelete))),
		rb.OnUpdate(uv.spliceUpdate),
		rb.OnReset(uv.emitReset),
	}
	return uv
}

func (uv *UnionAllView) splice(emit func(Row, int)) InsertFunc {
	return func(row Row, _ int) {
		emit(Row{View: uv, Values: row.Values}, -1)
	}
}

func (uv *UnionAllView) spliceUpdate(old, new Row, _, _ int) {
	uv.emitUpdate(Row{View: uv, Values: old.Values}, Row{View: uv, Values: new.Values}, -1, -1)
}

// updateByID is unsupported: a spliced row's id may name a row in either
// parent, so there is no unambiguous target.
func (uv *UnionAllView) updateByID(ctx context.Context, id any, set Values) error {
	return ErrRowMutationUnsupported("union_all")
}

// deleteByID forwards to the left parent; a caller deleting through a
// UnionAll is expected to hold ids originating there.
func (uv *UnionAllView) deleteByID(ctx context.Context, id any) error {
	return uv.left.deleteByID(ctx, id)
}

// Columns returns the shared column set of both parents.
func (uv *UnionAllView) Columns() []string { return uv.columns }

// FetchAll concatenates both parents' current contents.
func (uv *UnionAllView) FetchAll(ctx context.Context) ([]Row, error) {
	leftRows, err := uv.left.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	rightRows, err := uv.right.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Row, 0, len(leftRows)+len(rightRows))
	for _, r := range leftRows {
		out = append(out, Row{View: uv, Values: r.Values})
	}
	for _, r := range rightRows {
		out = append(out, Row{View: uv, Values: r.Values})
	}
	return out, nil
}

// Close unsubscribes from both parents.
func (uv *UnionAllView) Close() {
	if uv.isClosed() {
		return
	}
	for _, s := range uv.subs {
		s.Unsubscribe()
	}
	uv.markClosed()
}

// UnionView is UnionAll followed by Distinct, expressed directly: a row
// present in both parents (or repeated within one parent) is visible
// exactly once, governed by the same multiplicity map Distinct uses.
type UnionView struct {
	*DistinctView
	all *UnionAllView
}

func newUnionView(db *Database, left, right View) (*UnionView, error) {
	// Column lists must match as sets, case-insensitively; output ordering
	// follows the left parent.
	leftCols, rightCols := left.Columns(), right.Columns()
	if len(leftCols) != len(rightCols) {
		return nil, ErrUnionColumnMismatch(leftCols, rightCols)
	}
	folded := make(map[string]bool, len(leftCols))
	for _, c := range leftCols {
		folded[foldName(c)] = true
	}
	for _, c := range rightCols {
		if !folded[foldName(c)] {
			return nil, ErrUnionColumnMismatch(leftCols, rightCols)
		}
	}
	all := newUnionAllView(db, left, right)
	return &UnionView{DistinctView: newDistinctView(db, all), all: all}, nil
}

// Close unsubscribes the Distinct stage and the underlying UnionAll stage.
func (uv *UnionView) Close() {
	uv.DistinctView.Close()
	uv.all.Close()
}
