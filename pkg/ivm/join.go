package ivm

import (
	"context"
	"fmt"
	"sort"
)

// JoinView maintains an equi-join between two parents.
// on pairs left columns with right columns (may be empty, yielding a
// cross product, or carry several pairs for a composite key).
// leftOuter/rightOuter control whether a row with no match on the other
// side is still emitted, padded with NULLs for the other side's columns.
// A right-side column colliding with an output name already taken gets a
// numeric suffix (value, value1, value2, ...) until unique; for a
// non-outer join the right-side key columns are dropped from the output
// entirely rather than duplicated.
type JoinView struct {
	*viewBase

	left, right           View
	on                    map[string]string // left column -> right column
	leftKeys, rightKeys   []string          // paired, stable order; both empty means cross product
	leftOuter, rightOuter bool
	columns               []string
	leftNames, rightNames map[string]string // output name for each parent column

	nextID     int64
	leftRows   map[int64]Values
	rightRows  map[int64]Values
	leftByKey  map[string]map[int64]bool
	rightByKey map[string]map[int64]bool

	subs []SubscriptionToken
}

func newJoinView(db *Database, left, right View, on map[string]string, leftOuter, rightOuter bool) *JoinView {
	jv := &JoinView{
		left: left, right: right,
		on:        on,
		leftOuter: leftOuter, rightOuter: rightOuter,
		leftRows: make(map[int64]Values), rightRows: make(map[int64]Values),
		leftByKey: make(map[string]map[int64]bool), rightByKey: make(map[string]map[int64]bool),
	}
	jv.leftKeys = make([]string, 0, len(on))
	for l := range on {
		jv.leftKeys = append(jv.leftKeys, l)
	}
	sort.Strings(jv.leftKeys)
	jv.rightKeys = make([]string, len(jv.leftKeys))
	for i, l := range jv.leftKeys {
		jv.rightKeys[i] = on[l]
	}

	jv.viewBase = newViewBase(db, jv)
	jv.buildSchema()

	lb, rb := left.base(), right.base()
	jv.subs = []SubscriptionToken{
		lb.OnInsert(jv.onLeftInsert),
		lb.OnDelete(jv.onLeftDelete),
		lb.OnUpdate(jv.onLeftUpdate),
		lb.OnReset(jv.emitReset),
		rb.OnInsert(jv.onRightInsert),
		rb.OnDelete(jv.onRightDelete),
		rb.OnUpdate(jv.onRightUpdate),
		rb.OnReset(jv.emitReset),
	}
	return jv
}

func (jv *JoinView) buildSchema() {
	leftCols := jv.left.Columns()
	rightCols := jv.right.Columns()
	rightKeySet := make(map[string]bool, len(jv.rightKeys))
	for _, c := range jv.rightKeys {
		rightKeySet[c] = true
	}
	outer := jv.leftOuter || jv.rightOuter

	taken := make(map[string]bool, len(leftCols)+len(rightCols))
	jv.leftNames = make(map[string]string, len(leftCols))
	jv.rightNames = make(map[string]string, len(rightCols))
	for _, c := range leftCols {
		jv.leftNames[c] = c
		taken[c] = true
		jv.columns = append(jv.columns, c)
	}
	for _, c := range rightCols {
		if !outer && rightKeySet[c] {
			// Inner join: the right-side join-key column is already
			// represented by its left-side counterpart.
			continue
		}
		name := c
		for i := 1; taken[name]; i++ {
			name = fmt.Sprintf("%s%d", c, i)
		}
		jv.rightNames[c] = name
		taken[name] = true
		jv.columns = append(jv.columns, name)
	}
}

func (jv *JoinView) combine(left, right Values) Values {
	out := make(Values, len(jv.leftNames)+len(jv.rightNames))
	for src, dst := range jv.leftNames {
		if left != nil {
			out[dst] = left[src]
		} else {
			out[dst] = nil
		}
	}
	for src, dst := range jv.rightNames {
		if right != nil {
			out[dst] = right[src]
		} else {
			out[dst] = nil
		}
	}
	return out
}

// Columns returns the combined, collision-resolved output column names.
func (jv *JoinView) Columns() []string { return jv.columns }

// leftKey and rightKey build a bucket key from the join-column values
// alone, so a left and a right row with equal key values share a bucket
// even when the paired columns have different names.
func (jv *JoinView) leftKey(values Values) string {
	return fmt.Sprint(projectValues(values, jv.leftKeys))
}
func (jv *JoinView) rightKey(values Values) string {
	return fmt.Sprint(projectValues(values, jv.rightKeys))
}

func (jv *JoinView) onLeftInsert(row Row, _ int) {
	id := jv.nextID
	jv.nextID++
	jv.leftRows[id] = cloneValues(row.Values)
	key := jv.leftKey(row.Values)
	if jv.leftByKey[key] == nil {
		jv.leftByKey[key] = make(map[int64]bool)
	}
	jv.leftByKey[key][id] = true

	matched := false
	for rid := range jv.rightByKey[key] {
		matched = true
		// A right-outer padded row must be retracted now that a real match exists.
		if jv.rightOuter && jv.matchCountForRight(rid, key) == 1 {
			jv.emitDelete(Row{View: jv, Values: jv.combine(nil, jv.rightRows[rid])}, -1)
		}
		jv.emitInsert(Row{View: jv, Values: jv.combine(row.Values, jv.rightRows[rid])}, -1)
	}
	if !matched && jv.leftOuter {
		jv.emitInsert(Row{View: jv, Values: jv.combine(row.Values, nil)}, -1)
	}
}

func (jv *JoinView) findLeft(key string, values Values) int64 {
	for candidate := range jv.leftByKey[key] {
		if valuesEqualAll(jv.leftRows[candidate], values) {
			return candidate
		}
	}
	return -1
}

func (jv *JoinView) findRight(key string, values Values) int64 {
	for candidate := range jv.rightByKey[key] {
		if valuesEqualAll(jv.rightRows[candidate], values) {
			return candidate
		}
	}
	return -1
}

func (jv *JoinView) onLeftDelete(row Row, _ int) {
	key := jv.leftKey(row.Values)
	id := jv.findLeft(key, row.Values)
	if id == -1 {
		return
	}
	delete(jv.leftRows, id)
	delete(jv.leftByKey[key], id)

	matched := false
	for rid := range jv.rightByKey[key] {
		matched = true
		jv.emitDelete(Row{View: jv, Values: jv.combine(row.Values, jv.rightRows[rid])}, -1)
		// l was possibly the sole left match for this right row; re-pad it.
		if jv.rightOuter && jv.matchCountForRight(rid, key) == 0 {
			jv.emitInsert(Row{View: jv, Values: jv.combine(nil, jv.rightRows[rid])}, -1)
		}
	}
	if !matched && jv.leftOuter {
		jv.emitDelete(Row{View: jv, Values: jv.combine(row.Values, nil)}, -1)
	}
}

// onLeftUpdate keeps the update shape whenever the joined rows can be
// patched in place: an unchanged key updates every joined row (or the
// padded row), and a key move retracting exactly one joined row while
// producing exactly one is coalesced into a single update. Everything
// else decomposes into the delete and insert paths.
func (jv *JoinView) onLeftUpdate(old, new Row, _, _ int) {
	oldKey := jv.leftKey(old.Values)
	newKey := jv.leftKey(new.Values)
	id := jv.findLeft(oldKey, old.Values)
	if id == -1 {
		jv.onLeftDelete(old, -1)
		jv.onLeftInsert(new, -1)
		return
	}

	if oldKey == newKey {
		jv.leftRows[id] = cloneValues(new.Values)
		matched := false
		for rid := range jv.rightByKey[oldKey] {
			matched = true
			jv.emitUpdate(
				Row{View: jv, Values: jv.combine(old.Values, jv.rightRows[rid])},
				Row{View: jv, Values: jv.combine(new.Values, jv.rightRows[rid])}, -1, -1)
		}
		if !matched && jv.leftOuter {
			jv.emitUpdate(
				Row{View: jv, Values: jv.combine(old.Values, nil)},
				Row{View: jv, Values: jv.combine(new.Values, nil)}, -1, -1)
		}
		return
	}

	if !jv.leftOuter && !jv.rightOuter &&
		len(jv.rightByKey[oldKey]) == 1 && len(jv.rightByKey[newKey]) == 1 {
		delete(jv.leftByKey[oldKey], id)
		jv.leftRows[id] = cloneValues(new.Values)
		if jv.leftByKey[newKey] == nil {
			jv.leftByKey[newKey] = make(map[int64]bool)
		}
		jv.leftByKey[newKey][id] = true
		var oldRight, newRight Values
		for rid := range jv.rightByKey[oldKey] {
			oldRight = jv.rightRows[rid]
		}
		for rid := range jv.rightByKey[newKey] {
			newRight = jv.rightRows[rid]
		}
		jv.emitUpdate(
			Row{View: jv, Values: jv.combine(old.Values, oldRight)},
			Row{View: jv, Values: jv.combine(new.Values, newRight)}, -1, -1)
		return
	}

	jv.onLeftDelete(old, -1)
	jv.onLeftInsert(new, -1)
}

func (jv *JoinView) onRightInsert(row Row, _ int) {
	id := jv.nextID
	jv.nextID++
	jv.rightRows[id] = cloneValues(row.Values)
	key := jv.rightKey(row.Values)
	if jv.rightByKey[key] == nil {
		jv.rightByKey[key] = make(map[int64]bool)
	}
	jv.rightByKey[key][id] = true

	matched := false
	for lid := range jv.leftByKey[key] {
		leftVals := jv.leftRows[lid]
		matched = true
		// A left-outer padded row must be retracted now that a real match exists.
		if jv.leftOuter && jv.matchCountForLeft(lid, key) == 1 {
			jv.emitDelete(Row{View: jv, Values: jv.combine(leftVals, nil)}, -1)
		}
		jv.emitInsert(Row{View: jv, Values: jv.combine(leftVals, row.Values)}, -1)
	}
	if !matched && jv.rightOuter {
		jv.emitInsert(Row{View: jv, Values: jv.combine(nil, row.Values)}, -1)
	}
}

func (jv *JoinView) onRightDelete(row Row, _ int) {
	key := jv.rightKey(row.Values)
	id := jv.findRight(key, row.Values)
	if id == -1 {
		return
	}
	delete(jv.rightRows, id)
	delete(jv.rightByKey[key], id)

	matched := false
	for lid := range jv.leftByKey[key] {
		leftVals := jv.leftRows[lid]
		matched = true
		jv.emitDelete(Row{View: jv, Values: jv.combine(leftVals, row.Values)}, -1)
		if jv.leftOuter && jv.matchCountForLeft(lid, key) == 0 {
			jv.emitInsert(Row{View: jv, Values: jv.combine(leftVals, nil)}, -1)
		}
	}
	if !matched && jv.rightOuter {
		jv.emitDelete(Row{View: jv, Values: jv.combine(nil, row.Values)}, -1)
	}
}

// onRightUpdate mirrors onLeftUpdate for deltas arriving on the right
// parent.
func (jv *JoinView) onRightUpdate(old, new Row, _, _ int) {
	oldKey := jv.rightKey(old.Values)
	newKey := jv.rightKey(new.Values)
	id := jv.findRight(oldKey, old.Values)
	if id == -1 {
		jv.onRightDelete(old, -1)
		jv.onRightInsert(new, -1)
		return
	}

	if oldKey == newKey {
		jv.rightRows[id] = cloneValues(new.Values)
		matched := false
		for lid := range jv.leftByKey[oldKey] {
			matched = true
			jv.emitUpdate(
				Row{View: jv, Values: jv.combine(jv.leftRows[lid], old.Values)},
				Row{View: jv, Values: jv.combine(jv.leftRows[lid], new.Values)}, -1, -1)
		}
		if !matched && jv.rightOuter {
			jv.emitUpdate(
				Row{View: jv, Values: jv.combine(nil, old.Values)},
				Row{View: jv, Values: jv.combine(nil, new.Values)}, -1, -1)
		}
		return
	}

	if !jv.leftOuter && !jv.rightOuter &&
		len(jv.leftByKey[oldKey]) == 1 && len(jv.leftByKey[newKey]) == 1 {
		delete(jv.rightByKey[oldKey], id)
		jv.rightRows[id] = cloneValues(new.Values)
		if jv.rightByKey[newKey] == nil {
			jv.rightByKey[newKey] = make(map[int64]bool)
		}
		jv.rightByKey[newKey][id] = true
		var oldLeft, newLeft Values
		for lid := range jv.leftByKey[oldKey] {
			oldLeft = jv.leftRows[lid]
		}
		for lid := range jv.leftByKey[newKey] {
			newLeft = jv.leftRows[lid]
		}
		jv.emitUpdate(
			Row{View: jv, Values: jv.combine(oldLeft, old.Values)},
			Row{View: jv, Values: jv.combine(newLeft, new.Values)}, -1, -1)
		return
	}

	jv.onRightDelete(old, -1)
	jv.onRightInsert(new, -1)
}

func (jv *JoinView) matchCountForLeft(leftID int64, key string) int {
	return len(jv.rightByKey[key])
}

func (jv *JoinView) matchCountForRight(rightID int64, key string) int {
	return len(jv.leftByKey[key])
}

func valuesEqualAll(a, b Values) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if !valuesEqual(v, b[k]) {
			return false
		}
	}
	return true
}

// FetchAll recomputes the join from both parents' current contents.
func (jv *JoinView) FetchAll(ctx context.Context) ([]Row, error) {
	leftRows, err := jv.left.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	rightRows, err := jv.right.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string][]Values, len(rightRows))
	for _, r := range rightRows {
		key := jv.rightKey(r.Values)
		byKey[key] = append(byKey[key], r.Values)
	}
	rightMatched := make(map[string]bool, len(rightRows))

	var out []Row
	for _, l := range leftRows {
		key := jv.leftKey(l.Values)
		matches := byKey[key]
		if len(matches) == 0 {
			if jv.leftOuter {
				out = append(out, Row{View: jv, Values: jv.combine(l.Values, nil)})
			}
			continue
		}
		for _, r := range matches {
			out = append(out, Row{View: jv, Values: jv.combine(l.Values, r)})
		}
		rightMatched[key] = true
	}
	if jv.rightOuter {
		for _, r := range rightRows {
			key := jv.rightKey(r.Values)
			if !rightMatched[key] {
				out = append(out, Row{View: jv, Values: jv.combine(nil, r.Values)})
			}
		}
	}
	return out, nil
}

// updateByID forwards to the left parent after checking every touched
// output column belongs to the left side; touching a right-side column is
// rejected rather than routed.
func (jv *JoinView) updateByID(ctx context.Context, id any, set Values) error {
	translated := make(Values, len(set))
	for col, v := range set {
		parentCol, ok := reverseLookup(jv.leftNames, col)
		if !ok {
			return ErrJoinUpdateCrossesSides(col)
		}
		translated[parentCol] = v
	}
	return jv.left.updateByID(ctx, id, translated)
}

// deleteByID forwards to the left parent only.
func (jv *JoinView) deleteByID(ctx context.Context, id any) error {
	return jv.left.deleteByID(ctx, id)
}

func reverseLookup(names map[string]string, output string) (string, bool) {
	for src, dst := range names {
		if dst == output {
			return src, true
		}
	}
	return "", false
}

// Close unsubscribes from both parents.
func (jv *JoinView) Close() {
	if jv.isClosed() {
		return
	}
	for _, s := range jv.subs {
		s.Unsubscribe()
	}
	jv.markClosed()
}
