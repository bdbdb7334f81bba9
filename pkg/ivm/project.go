package ivm

import "context"

// ProjectColumn is one output column of a ProjectView: either a bare
// passthrough of a parent column (Expr == Name) or a computed SQL
// expression aliased to Name.
type ProjectColumn struct {
	Name string
	Expr string
}

// ProjectView narrows its parent's schema to a column list, optionally
// computing new columns from SQL expressions. MirrorsID reports whether
// the view preserves the parent's row identity one-to-one; Update/Delete
// issued against a ProjectView are only meaningful when MirrorsID is
// true, since otherwise there is no unambiguous parent row to mutate.
type ProjectView struct {
	*viewBase

	parent       View
	columns      []ProjectColumn
	mirrors      bool
	dependencies map[string][]string // output column -> parent columns its expression reads

	subs []SubscriptionToken
}

func newProjectView(db *Database, parent View, columns []string) *ProjectView {
	cols := make([]ProjectColumn, len(columns))
	for i, c := range columns {
		cols[i] = ProjectColumn{Name: c, Expr: c}
	}
	return newProjectViewExpr(db, parent, cols)
}

// SelectExpr builds a ProjectView whose columns may include computed
// expressions, e.g. SelectExpr(db, parent, []ProjectColumn{{Name: "doubled", Expr: "n*2"}}).
func SelectExpr(db *Database, parent View, columns []ProjectColumn) *ProjectView {
	return newProjectViewExpr(db, parent, columns)
}

func newProjectViewExpr(db *Database, parent View, columns []ProjectColumn) *ProjectView {
	pv := &ProjectView{parent: parent, columns: columns}
	pv.viewBase = newViewBase(db, pv)
	pv.mirrors = pv.computeMirrorsID()
	pv.dependencies = make(map[string][]string, len(columns))
	for _, c := range columns {
		if c.Name == c.Expr {
			pv.dependencies[c.Name] = []string{c.Expr}
			continue
		}
		if cols, err := ExtractColumns(c.Expr); err == nil {
			pv.dependencies[c.Name] = cols
		}
	}

	pb := parent.base()
	pv.subs = []SubscriptionToken{
		pb.OnInsert(pv.onParentInsert),
		pb.OnDelete(pv.onParentDelete),
		pb.OnUpdate(pv.onParentUpdate),
		pb.OnReset(pv.emitReset),
	}
	return pv
}

// computeMirrorsID is true iff the output column named "id" is a bare
// passthrough of the parent's own "id" column. Other output columns may be
// renamed or computed freely without affecting identity: what matters for
// Update/Delete is whether the projected "id" value still names exactly
// one parent row.
func (pv *ProjectView) computeMirrorsID() bool {
	for _, c := range pv.columns {
		if c.Name == "id" {
			return c.Expr == "id"
		}
	}
	return false
}

// MirrorsID reports whether rows of this view correspond 1:1 to parent
// rows, making Update/Delete against a fetched row well-defined.
func (pv *ProjectView) MirrorsID() bool { return pv.mirrors }

// Dependencies returns the parent columns that output column's expression
// reads, parsed once at construction time.
func (pv *ProjectView) Dependencies(column string) []string { return pv.dependencies[column] }

func (pv *ProjectView) project(ctx context.Context, values Values) (Values, error) {
	out := make(Values, len(pv.columns))
	for _, c := range pv.columns {
		if c.Name == c.Expr {
			out[c.Name] = values[c.Expr]
			continue
		}
		v, err := evalScalarExpr(ctx, pv.db.Gateway(), c.Expr, nil, values)
		if err != nil {
			return nil, err
		}
		out[c.Name] = v
	}
	return out, nil
}

func (pv *ProjectView) onParentInsert(row Row, _ int) {
	projected, err := pv.project(context.Background(), row.Values)
	if err != nil {
		return
	}
	pv.emitInsert(Row{View: pv, Values: projected}, -1)
}

func (pv *ProjectView) onParentDelete(row Row, _ int) {
	projected, err := pv.project(context.Background(), row.Values)
	if err != nil {
		return
	}
	pv.emitDelete(Row{View: pv, Values: projected}, -1)
}

func (pv *ProjectView) onParentUpdate(old, new Row, _, _ int) {
	ctx := context.Background()
	oldP, err := pv.project(ctx, old.Values)
	if err != nil {
		return
	}
	newP, err := pv.project(ctx, new.Values)
	if err != nil {
		return
	}
	pv.emitUpdate(Row{View: pv, Values: oldP}, Row{View: pv, Values: newP}, -1, -1)
}

// updateByID forwards to the parent when MirrorsID is true, and fails
// otherwise — a projection that doesn't pass the parent's id through
// unchanged has no unambiguous parent row to target.
func (pv *ProjectView) updateByID(ctx context.Context, id any, set Values) error {
	if !pv.mirrors {
		return ErrProjectNotMirrorsID()
	}
	return pv.parent.updateByID(ctx, id, set)
}

// deleteByID forwards to the parent when MirrorsID is true.
func (pv *ProjectView) deleteByID(ctx context.Context, id any) error {
	if !pv.mirrors {
		return ErrProjectNotMirrorsID()
	}
	return pv.parent.deleteByID(ctx, id)
}

// Columns returns this view's output column names.
func (pv *ProjectView) Columns() []string {
	out := make([]string, len(pv.columns))
	for i, c := range pv.columns {
		out[i] = c.Name
	}
	return out
}

// FetchAll projects every current parent row.
func (pv *ProjectView) FetchAll(ctx context.Context) ([]Row, error) {
	parentRows, err := pv.parent.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Row, 0, len(parentRows))
	for _, r := range parentRows {
		projected, err := pv.project(ctx, r.Values)
		if err != nil {
			return nil, err
		}
		out = append(out, Row{View: pv, Values: projected})
	}
	return out, nil
}

// Close unsubscribes from the parent.
func (pv *ProjectView) Close() {
	if pv.isClosed() {
		return
	}
	for _, s := range pv.subs {
		s.Unsubscribe()
	}
	pv.markClosed()
}
