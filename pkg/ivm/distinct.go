package ivm

import "context"

// DistinctView deduplicates its parent by full row value, tracking a
// multiplicity per distinct tuple: a row is visible exactly once no
// matter how many parent rows share its value, and only disappears once
// its multiplicity drops to zero.
type DistinctView struct {
	*viewBase

	parent  View
	columns []string
	counts  map[string]int
	values  map[string]Values

	subs []SubscriptionToken
}

func newDistinctView(db *Database, parent View) *DistinctView {
	dv := &DistinctView{
		parent:  parent,
		columns: parent.Columns(),
		counts:  make(map[string]int),
		values:  make(map[string]Values),
	}
	dv.viewBase = newViewBase(db, dv)

	pb := parent.base()
	dv.subs = []SubscriptionToken{
		pb.OnInsert(dv.onParentInsert),
		pb.OnDelete(dv.onParentDelete),
		pb.OnUpdate(dv.onParentUpdate),
		pb.OnReset(dv.onParentReset),
	}
	return dv
}

func (dv *DistinctView) onParentInsert(row Row, _ int) {
	key := rowKey(row.Values, dv.columns)
	dv.counts[key]++
	if dv.counts[key] == 1 {
		dv.values[key] = cloneValues(row.Values)
		dv.emitInsert(Row{View: dv, Values: dv.values[key]}, -1)
	}
}

func (dv *DistinctView) onParentDelete(row Row, _ int) {
	key := rowKey(row.Values, dv.columns)
	if dv.counts[key] == 0 {
		// Deleting a value-tuple whose multiplicity is already zero is an
		// internal consistency violation, not a normal no-op.
		raiseInvariantBroken("distinct: delete for a non-existing row %v", row.Values)
	}
	dv.counts[key]--
	if dv.counts[key] == 0 {
		vals := dv.values[key]
		delete(dv.counts, key)
		delete(dv.values, key)
		dv.emitDelete(Row{View: dv, Values: vals}, -1)
	}
}

// onParentUpdate coalesces a value-changing update into a single emitted
// update whenever the distinct view's own visible representative simply
// changes identity (old tuple's last member disappearing while the new
// tuple is fresh), rather than always doing delete+insert.
func (dv *DistinctView) onParentUpdate(old, new Row, _, _ int) {
	oldKey := rowKey(old.Values, dv.columns)
	newKey := rowKey(new.Values, dv.columns)
	if oldKey == newKey {
		// Value tuple unchanged (an update only touching a column not in
		// this view's output, or a no-op write) — nothing to propagate.
		return
	}

	oldCount := dv.counts[oldKey]
	newCount := dv.counts[newKey]
	dv.counts[oldKey] = oldCount - 1
	dv.counts[newKey] = newCount + 1

	switch {
	case oldCount == 1 && newCount == 0:
		// The old tuple's only member disappears and the new tuple had no
		// visible representative yet: one visible row changes identity.
		oldVals := dv.values[oldKey]
		delete(dv.values, oldKey)
		delete(dv.counts, oldKey)
		newVals := cloneValues(new.Values)
		dv.values[newKey] = newVals
		dv.emitUpdate(Row{View: dv, Values: oldVals}, Row{View: dv, Values: newVals}, -1, -1)
	case oldCount == 1:
		// The old tuple's only member disappears, but the new tuple
		// already had a visible representative: just retract the old one.
		vals := dv.values[oldKey]
		delete(dv.values, oldKey)
		delete(dv.counts, oldKey)
		dv.emitDelete(Row{View: dv, Values: vals}, -1)
	case newCount == 0:
		// The old tuple survives via another member; the new tuple is fresh.
		newVals := cloneValues(new.Values)
		dv.values[newKey] = newVals
		dv.emitInsert(Row{View: dv, Values: newVals}, -1)
	}
}

func (dv *DistinctView) onParentReset() {
	dv.counts = make(map[string]int)
	dv.values = make(map[string]Values)
	dv.emitReset()
}

// updateByID is unsupported: collapsing multiple parent rows onto one
// value-tuple leaves no single row an update could unambiguously target.
func (dv *DistinctView) updateByID(ctx context.Context, id any, set Values) error {
	return ErrRowMutationUnsupported("distinct")
}

// deleteByID forwards to the parent: deduplication never changes which
// base row an id names.
func (dv *DistinctView) deleteByID(ctx context.Context, id any) error {
	return dv.parent.deleteByID(ctx, id)
}

// Columns returns the parent's column names unchanged.
func (dv *DistinctView) Columns() []string { return dv.columns }

// FetchAll re-derives the distinct set from the parent's current contents.
func (dv *DistinctView) FetchAll(ctx context.Context) ([]Row, error) {
	parentRows, err := dv.parent.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(parentRows))
	out := make([]Row, 0, len(parentRows))
	for _, r := range parentRows {
		key := rowKey(r.Values, dv.columns)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, Row{View: dv, Values: cloneValues(r.Values)})
	}
	return out, nil
}

// Close unsubscribes from the parent.
func (dv *DistinctView) Close() {
	if dv.isClosed() {
		return
	}
	for _, s := range dv.subs {
		s.Unsubscribe()
	}
	dv.markClosed()
}
