package ivm

import (
	"context"
	"sort"
)

// OrderTerm is one ORDER BY clause term.
type OrderTerm struct {
	Column string
	Desc   bool
}

// SortView maintains an ordered, windowed view over its parent. A
// LIMIT/OFFSET window means only the rows currently inside the window
// are visible; insert/delete/update
// deltas that shift rows across the window boundary are translated into
// the corresponding insert/delete of whichever row entered or left.
type SortView struct {
	*viewBase

	parent  View
	orderBy []OrderTerm
	limit   int // <=0 means unlimited
	offset  int

	rows []Values // full, unwindowed, kept in sorted order

	subs []SubscriptionToken
}

func newSortView(db *Database, parent View, orderBy []OrderTerm, limit, offset int) *SortView {
	sv := &SortView{parent: parent, orderBy: orderBy, limit: limit, offset: offset}
	sv.viewBase = newViewBase(db, sv)

	pb := parent.base()
	sv.subs = []SubscriptionToken{
		pb.OnInsert(sv.onParentInsert),
		pb.OnDelete(sv.onParentDelete),
		pb.OnUpdate(sv.onParentUpdate),
		pb.OnReset(sv.onParentReset),
	}
	return sv
}

// compareValues orders nil as less than any non-nil value: NULLs sort
// first ascending and last descending.
func compareValues(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}
	switch av := a.(type) {
	case int, int64, float64:
		af, bf := asFloat(av), asFloat(b)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0
		}
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	default:
		return 0
	}
}

func (sv *SortView) less(a, b Values) bool {
	for _, t := range sv.orderBy {
		c := compareValues(a[t.Column], b[t.Column])
		if t.Desc {
			c = -c
		}
		if c != 0 {
			return c < 0
		}
	}
	return false
}

func (sv *SortView) insertSorted(v Values) int {
	idx := sort.Search(len(sv.rows), func(i int) bool { return sv.less(v, sv.rows[i]) })
	sv.rows = append(sv.rows, nil)
	copy(sv.rows[idx+1:], sv.rows[idx:])
	sv.rows[idx] = v
	return idx
}

func (sv *SortView) findIndex(v Values) int {
	for i, r := range sv.rows {
		if valuesEqualAll(r, v) {
			return i
		}
	}
	return -1
}

func (sv *SortView) windowBounds() (lo, hi int) {
	lo = sv.offset
	if lo > len(sv.rows) {
		lo = len(sv.rows)
	}
	if sv.limit <= 0 {
		return lo, len(sv.rows)
	}
	hi = lo + sv.limit
	if hi > len(sv.rows) {
		hi = len(sv.rows)
	}
	return lo, hi
}

func (sv *SortView) inWindow(idx int) bool {
	lo, hi := sv.windowBounds()
	return idx >= lo && idx < hi
}

func (sv *SortView) onParentInsert(row Row, _ int) {
	idx := sv.insertSorted(cloneValues(row.Values))
	lo, hi := sv.windowBounds()
	switch {
	case idx >= lo && idx < hi:
		sv.emitInsert(Row{View: sv, Values: sv.rows[idx]}, idx-lo)
		// The insertion shifted every subsequent visible row down by one
		// index; if the window has a limit, the previous last row (now at
		// hi, just past the new boundary) has been pushed out.
		if sv.limit > 0 && hi < len(sv.rows) {
			sv.emitDelete(Row{View: sv, Values: sv.rows[hi]}, sv.limit)
		}
	case idx < lo:
		// The new row lands ahead of an offset window: it doesn't appear
		// itself, but it shifts the row that used to sit just below the
		// cutoff into view at the head, and (for a bounded window)
		// pushes the previous tail back out past the cutoff.
		if lo < len(sv.rows) {
			sv.emitInsert(Row{View: sv, Values: sv.rows[lo]}, 0)
		}
		if sv.limit > 0 && hi < len(sv.rows) {
			sv.emitDelete(Row{View: sv, Values: sv.rows[hi]}, hi-lo-1)
		}
	}
}

func (sv *SortView) onParentDelete(row Row, _ int) {
	idx := sv.findIndex(row.Values)
	if idx == -1 {
		return
	}
	lo, hi := sv.windowBounds()
	removed := sv.rows[idx]

	switch {
	case idx >= lo && idx < hi:
		sv.rows = append(sv.rows[:idx], sv.rows[idx+1:]...)
		sv.emitDelete(Row{View: sv, Values: removed}, idx-lo)
		// A row below the window (if any) slides up into view.
		if sv.limit > 0 && hi-1 < len(sv.rows) {
			sv.emitInsert(Row{View: sv, Values: sv.rows[hi-1]}, sv.limit-1)
		}
	case idx < lo:
		// The removed row sat ahead of an offset window: it wasn't
		// visible itself, but losing it shifts the window's head out
		// (the old head no longer clears the cutoff) and, if bounded,
		// pulls a new tail in from just past the old boundary.
		var headDrop, tailEnter Values
		if lo < len(sv.rows) {
			headDrop = sv.rows[lo]
		}
		if sv.limit > 0 && hi < len(sv.rows) {
			tailEnter = sv.rows[hi]
		}
		sv.rows = append(sv.rows[:idx], sv.rows[idx+1:]...)
		if headDrop != nil {
			sv.emitDelete(Row{View: sv, Values: headDrop}, 0)
		}
		if tailEnter != nil {
			sv.emitInsert(Row{View: sv, Values: tailEnter}, hi-lo-1)
		}
	default:
		sv.rows = append(sv.rows[:idx], sv.rows[idx+1:]...)
	}
}

// onParentUpdate reindexes a visible row in place and emits a single
// ordered update when the row stays inside the window. A row outside the
// window decomposes into the delete and insert paths; a row leaving the
// window is reported as a delete plus whichever row slid in across the
// boundary.
func (sv *SortView) onParentUpdate(old, new Row, _, _ int) {
	oldIdx := sv.findIndex(old.Values)
	if oldIdx == -1 || !sv.inWindow(oldIdx) {
		sv.onParentDelete(old, -1)
		sv.onParentInsert(new, -1)
		return
	}
	// Removing one row and reinserting one keeps the length, and with it
	// the window bounds, unchanged.
	lo, hi := sv.windowBounds()
	sv.rows = append(sv.rows[:oldIdx], sv.rows[oldIdx+1:]...)
	newIdx := sv.insertSorted(cloneValues(new.Values))

	switch {
	case newIdx >= lo && newIdx < hi:
		sv.emitUpdate(Row{View: sv, Values: old.Values}, Row{View: sv, Values: sv.rows[newIdx]}, oldIdx-lo, newIdx-lo)
	case newIdx < lo:
		// The row moved past the offset cutoff: it leaves the window and
		// the row previously just below the cutoff slides in as the head.
		sv.emitDelete(Row{View: sv, Values: old.Values}, oldIdx-lo)
		sv.emitInsert(Row{View: sv, Values: sv.rows[lo]}, 0)
	default:
		// The row moved past the window tail; the first row beyond the
		// old boundary slides into the last slot.
		sv.emitDelete(Row{View: sv, Values: old.Values}, oldIdx-lo)
		sv.emitInsert(Row{View: sv, Values: sv.rows[hi-1]}, hi-lo-1)
	}
}

func (sv *SortView) onParentReset() {
	sv.rows = nil
	sv.emitReset()
}

// SetLimit changes the window size incrementally:
// growing the limit fetches the newly-included tail rows from the
// already-sorted cache and emits one insert per row; shrinking pops rows
// off the tail and emits one delete per row. Unlike SetOrderBy/SetOffset,
// this never resets.
func (sv *SortView) SetLimit(limit int) {
	_, oldHi := sv.windowBounds()
	sv.limit = limit
	lo, newHi := sv.windowBounds()

	switch {
	case newHi > oldHi:
		for i := oldHi; i < newHi; i++ {
			sv.emitInsert(Row{View: sv, Values: sv.rows[i]}, i-lo)
		}
	case newHi < oldHi:
		for i := oldHi - 1; i >= newHi; i-- {
			sv.emitDelete(Row{View: sv, Values: sv.rows[i]}, i-lo)
		}
	}
}

// SetOffset changes the window start and emits a reset.
func (sv *SortView) SetOffset(offset int) {
	sv.offset = offset
	sv.emitReset()
}

// SetOrderBy replaces the sort order and emits a reset.
func (sv *SortView) SetOrderBy(orderBy []OrderTerm) {
	sv.orderBy = orderBy
	sv.emitReset()
}

// updateByID forwards straight to the parent: windowing/ordering never
// changes row identity.
func (sv *SortView) updateByID(ctx context.Context, id any, set Values) error {
	return sv.parent.updateByID(ctx, id, set)
}

// deleteByID forwards straight to the parent.
func (sv *SortView) deleteByID(ctx context.Context, id any) error {
	return sv.parent.deleteByID(ctx, id)
}

// Columns returns the parent's column names unchanged.
func (sv *SortView) Columns() []string { return sv.parent.Columns() }

// FetchAll re-sorts the parent's current contents and applies the window.
func (sv *SortView) FetchAll(ctx context.Context) ([]Row, error) {
	parentRows, err := sv.parent.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	all := make([]Values, len(parentRows))
	for i, r := range parentRows {
		all[i] = r.Values
	}
	sort.SliceStable(all, func(i, j int) bool { return sv.lessStatic(all[i], all[j]) })

	lo := sv.offset
	if lo > len(all) {
		lo = len(all)
	}
	hi := len(all)
	if sv.limit > 0 {
		hi = lo + sv.limit
		if hi > len(all) {
			hi = len(all)
		}
	}
	out := make([]Row, 0, hi-lo)
	for _, v := range all[lo:hi] {
		out = append(out, Row{View: sv, Values: v})
	}
	return out, nil
}

func (sv *SortView) lessStatic(a, b Values) bool { return sv.less(a, b) }

// Close unsubscribes from the parent.
func (sv *SortView) Close() {
	if sv.isClosed() {
		return
	}
	for _, s := range sv.subs {
		s.Unsubscribe()
	}
	sv.markClosed()
}
