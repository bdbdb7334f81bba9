package ivm

import "context"

// AggKind enumerates the aggregate functions GroupBy can maintain
// incrementally.
type AggKind int

const (
	AggCount AggKind = iota
	AggSum
	AggAvg
	AggMin
	AggMax
)

// Aggregate names one output aggregate column.
type Aggregate struct {
	Name   string
	Kind   AggKind
	Column string // source column; ignored for AggCount
}

// GroupByBuilder accumulates the aggregate list before GroupByView is
// constructed, letting callers write db.Table(...).GroupBy("a").Count().Sum("b", "total").Build().
type GroupByBuilder struct {
	db     *Database
	parent View
	keys   []string
	aggs   []Aggregate
}

func (b *GroupByBuilder) Count() *GroupByBuilder {
	b.aggs = append(b.aggs, Aggregate{Name: "count", Kind: AggCount})
	return b
}

func (b *GroupByBuilder) Sum(column, name string) *GroupByBuilder {
	b.aggs = append(b.aggs, Aggregate{Name: name, Kind: AggSum, Column: column})
	return b
}

func (b *GroupByBuilder) Avg(column, name string) *GroupByBuilder {
	b.aggs = append(b.aggs, Aggregate{Name: name, Kind: AggAvg, Column: column})
	return b
}

func (b *GroupByBuilder) Min(column, name string) *GroupByBuilder {
	b.aggs = append(b.aggs, Aggregate{Name: name, Kind: AggMin, Column: column})
	return b
}

func (b *GroupByBuilder) Max(column, name string) *GroupByBuilder {
	b.aggs = append(b.aggs, Aggregate{Name: name, Kind: AggMax, Column: column})
	return b
}

// Build finalizes the aggregate list into a live GroupByView. If the
// caller never asked for a COUNT, one is added automatically under the
// name "_count".
func (b *GroupByBuilder) Build() *GroupByView {
	hasCount := false
	for _, a := range b.aggs {
		if a.Kind == AggCount {
			hasCount = true
			break
		}
	}
	aggs := b.aggs
	if !hasCount {
		aggs = append(append([]Aggregate(nil), b.aggs...), Aggregate{Name: "_count", Kind: AggCount})
	}
	return newGroupByView(b.db, b.parent, b.keys, aggs)
}

type groupState struct {
	key     Values
	count   int
	sums    map[string]float64
	members map[string][]float64 // for min/max recomputation after extremum removal
}

// GroupByView aggregates its parent over a set of key columns. A group
// with zero members is not emitted; losing the last member of a keyed
// group retracts its row, while the keyless singleton transitions to its
// zero-state via update instead.
type GroupByView struct {
	*viewBase

	parent View
	keys   []string
	aggs   []Aggregate
	groups map[string]*groupState

	subs []SubscriptionToken
}

func newGroupByView(db *Database, parent View, keys []string, aggs []Aggregate) *GroupByView {
	gv := &GroupByView{
		parent: parent, keys: keys, aggs: aggs,
		groups: make(map[string]*groupState),
	}
	gv.viewBase = newViewBase(db, gv)
	if gv.isGlobal() {
		gv.groups[gv.groupKey(Values{})] = gv.zeroState()
	}

	pb := parent.base()
	gv.subs = []SubscriptionToken{
		pb.OnInsert(gv.onParentInsert),
		pb.OnDelete(gv.onParentDelete),
		pb.OnUpdate(gv.onParentUpdate),
		pb.OnReset(gv.onParentReset),
	}
	return gv
}

// isGlobal reports whether this GroupBy has no key columns, making its
// group map a single "empty-key singleton" that always logically exists —
// even over zero source rows — rather than appearing/disappearing with
// membership.
func (gv *GroupByView) isGlobal() bool { return len(gv.keys) == 0 }

func (gv *GroupByView) zeroState() *groupState {
	return &groupState{key: Values{}, sums: make(map[string]float64), members: make(map[string][]float64)}
}

func (gv *GroupByView) groupKey(values Values) string { return rowKey(values, gv.keys) }

func (gv *GroupByView) outputRow(st *groupState) Values {
	out := cloneValues(st.key)
	for _, a := range gv.aggs {
		switch a.Kind {
		case AggCount:
			out[a.Name] = int64(st.count)
		case AggSum:
			out[a.Name] = st.sums[a.Name]
		case AggAvg:
			if st.count == 0 {
				out[a.Name] = nil
			} else {
				out[a.Name] = st.sums[a.Name] / float64(st.count)
			}
		case AggMin:
			out[a.Name] = extremum(st.members[a.Name], false)
		case AggMax:
			out[a.Name] = extremum(st.members[a.Name], true)
		}
	}
	return out
}

func extremum(vals []float64, max bool) any {
	if len(vals) == 0 {
		return nil
	}
	best := vals[0]
	for _, v := range vals[1:] {
		if (max && v > best) || (!max && v < best) {
			best = v
		}
	}
	return best
}

func asFloat(v any) float64 {
	switch t := v.(type) {
	case int64:
		return float64(t)
	case int:
		return float64(t)
	case float64:
		return t
	default:
		return 0
	}
}

func (gv *GroupByView) onParentInsert(row Row, _ int) {
	key := gv.groupKey(row.Values)
	st, existed := gv.groups[key]
	var old Values
	if !existed {
		st = &groupState{key: projectToMap(row.Values, gv.keys), sums: make(map[string]float64), members: make(map[string][]float64)}
		gv.groups[key] = st
	} else {
		old = gv.outputRow(st)
	}
	st.count++
	for _, a := range gv.aggs {
		switch a.Kind {
		case AggSum, AggAvg:
			st.sums[a.Name] += asFloat(row.Values[a.Column])
		case AggMin, AggMax:
			st.members[a.Name] = append(st.members[a.Name], asFloat(row.Values[a.Column]))
		}
	}
	newRow := gv.outputRow(st)
	if !existed {
		gv.emitInsert(Row{View: gv, Values: newRow}, -1)
	} else {
		gv.emitUpdate(Row{View: gv, Values: old}, Row{View: gv, Values: newRow}, -1, -1)
	}
}

func (gv *GroupByView) onParentDelete(row Row, _ int) {
	key := gv.groupKey(row.Values)
	st, ok := gv.groups[key]
	if !ok {
		return
	}
	old := gv.outputRow(st)
	st.count--
	for _, a := range gv.aggs {
		switch a.Kind {
		case AggSum, AggAvg:
			st.sums[a.Name] -= asFloat(row.Values[a.Column])
		case AggMin, AggMax:
			st.members[a.Name] = removeOne(st.members[a.Name], asFloat(row.Values[a.Column]))
		}
	}
	if st.count <= 0 {
		if gv.isGlobal() {
			// The empty-key singleton always logically exists; losing its
			// last member transitions it to the zero-state via update
			// rather than retracting the row outright.
			gv.groups[key] = gv.zeroState()
			gv.emitUpdate(Row{View: gv, Values: old}, Row{View: gv, Values: gv.outputRow(gv.groups[key])}, -1, -1)
			return
		}
		delete(gv.groups, key)
		gv.emitDelete(Row{View: gv, Values: old}, -1)
		return
	}
	gv.emitUpdate(Row{View: gv, Values: old}, Row{View: gv, Values: gv.outputRow(st)}, -1, -1)
}

func removeOne(vals []float64, target float64) []float64 {
	for i, v := range vals {
		if v == target {
			return append(vals[:i], vals[i+1:]...)
		}
	}
	return vals
}

// onParentUpdate recomputes the affected group's aggregates in place when
// the group key is unchanged, emitting exactly one update; a key move
// leaves one group and joins another, which is the delete+insert pair.
func (gv *GroupByView) onParentUpdate(old, new Row, _, _ int) {
	oldKey := gv.groupKey(old.Values)
	newKey := gv.groupKey(new.Values)
	if oldKey != newKey {
		gv.onParentDelete(old, -1)
		gv.onParentInsert(new, -1)
		return
	}
	st, ok := gv.groups[oldKey]
	if !ok {
		gv.onParentInsert(new, -1)
		return
	}
	before := gv.outputRow(st)
	for _, a := range gv.aggs {
		switch a.Kind {
		case AggSum, AggAvg:
			st.sums[a.Name] += asFloat(new.Values[a.Column]) - asFloat(old.Values[a.Column])
		case AggMin, AggMax:
			st.members[a.Name] = removeOne(st.members[a.Name], asFloat(old.Values[a.Column]))
			st.members[a.Name] = append(st.members[a.Name], asFloat(new.Values[a.Column]))
		}
	}
	gv.emitUpdate(Row{View: gv, Values: before}, Row{View: gv, Values: gv.outputRow(st)}, -1, -1)
}

func (gv *GroupByView) onParentReset() {
	gv.groups = make(map[string]*groupState)
	if gv.isGlobal() {
		gv.groups[gv.groupKey(Values{})] = gv.zeroState()
	}
	gv.emitReset()
}

func projectToMap(values Values, keys []string) Values {
	out := make(Values, len(keys))
	for _, k := range keys {
		out[k] = values[k]
	}
	return out
}

// updateByID is unsupported: an aggregated row has no single parent row
// an update could target.
func (gv *GroupByView) updateByID(ctx context.Context, id any, set Values) error {
	return ErrRowMutationUnsupported("group_by")
}

// deleteByID forwards to the parent, even though a GroupBy row's id
// rarely names a meaningful parent row.
func (gv *GroupByView) deleteByID(ctx context.Context, id any) error {
	return gv.parent.deleteByID(ctx, id)
}

// Columns returns the key columns followed by the aggregate names.
func (gv *GroupByView) Columns() []string {
	out := append([]string(nil), gv.keys...)
	for _, a := range gv.aggs {
		out = append(out, a.Name)
	}
	return out
}

// FetchAll recomputes every group from the parent's current contents.
func (gv *GroupByView) FetchAll(ctx context.Context) ([]Row, error) {
	parentRows, err := gv.parent.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	groups := make(map[string]*groupState)
	order := make([]string, 0)
	for _, r := range parentRows {
		key := gv.groupKey(r.Values)
		st, ok := groups[key]
		if !ok {
			st = &groupState{key: projectToMap(r.Values, gv.keys), sums: make(map[string]float64), members: make(map[string][]float64)}
			groups[key] = st
			order = append(order, key)
		}
		st.count++
		for _, a := range gv.aggs {
			switch a.Kind {
			case AggSum, AggAvg:
				st.sums[a.Name] += asFloat(r.Values[a.Column])
			case AggMin, AggMax:
				st.members[a.Name] = append(st.members[a.Name], asFloat(r.Values[a.Column]))
			}
		}
	}
	if len(order) == 0 && gv.isGlobal() {
		// A global aggregate over zero source rows still yields one
		// zero-state row, matching SQL's own COUNT(*)-with-no-GROUP-BY
		// behaviour.
		return []Row{{View: gv, Values: gv.outputRow(gv.zeroState())}}, nil
	}
	out := make([]Row, 0, len(order))
	for _, key := range order {
		out = append(out, Row{View: gv, Values: gv.outputRow(groups[key])})
	}
	return out, nil
}

// Close unsubscribes from the parent.
func (gv *GroupByView) Close() {
	if gv.isClosed() {
		return
	}
	for _, s := range gv.subs {
		s.Unsubscribe()
	}
	gv.markClosed()
}
