package ivm

import (
	"context"
	"fmt"

	"github.com/kasuganosora/reactivesql/pkg/store"
	"golang.org/x/text/cases"
)

var foldCase = cases.Fold()

func foldName(s string) string {
	return foldCase.String(s)
}

// BaseTable is the leaf of the view DAG: a live mirror of one physical
// table, fed directly by StoreGateway change callbacks.
type BaseTable struct {
	*viewBase

	name    string
	columns []store.ColumnDef
	colFold map[string]string // folded name -> canonical name
	unsub   func()
}

func newBaseTable(ctx context.Context, db *Database, name string) (*BaseTable, error) {
	gw := db.Gateway()

	exists, err := gw.TableExists(ctx, name)
	if err != nil {
		return nil, err
	}

	declared, hasDeclared := db.declaredSchema(name)

	var cols []store.ColumnDef
	switch {
	case exists:
		info, err := gw.ColumnInfo(ctx, name)
		if err != nil {
			return nil, err
		}
		cols = columnDefsFromInfo(info)
		if hasDeclared {
			cols, err = reconcileSchema(ctx, gw, name, cols, declared)
			if err != nil {
				return nil, err
			}
		}
	case hasDeclared:
		if err := gw.CreateTable(ctx, name, false, declared); err != nil {
			return nil, err
		}
		cols = declared
	default:
		return nil, store.ErrTableMissing(name)
	}

	if err := gw.RegisterTable(ctx, name, cols); err != nil {
		return nil, err
	}

	bt := &BaseTable{
		name:    name,
		columns: cols,
		colFold: make(map[string]string, len(cols)),
	}
	bt.viewBase = newViewBase(db, bt)
	for _, c := range cols {
		bt.colFold[foldName(c.Name)] = c.Name
	}

	bt.unsub = gw.Subscribe(name, bt.onChange)
	return bt, nil
}

// declaredSchema is a hook for callers that register an expected schema
// ahead of time (e.g. via Database.DeclareTable); BaseTable itself treats
// an absent declaration as "trust the physical schema".
func (d *Database) declaredSchema(name string) ([]store.ColumnDef, bool) {
	cols, ok := d.declared[name]
	return cols, ok
}

// DeclareTable registers the schema BaseTable should reconcile against
// when name is opened, used for column-folding and non-destructive
// migration.
func (d *Database) DeclareTable(name string, cols []store.ColumnDef) {
	if d.declared == nil {
		d.declared = make(map[string][]store.ColumnDef)
	}
	d.declared[name] = cols
}

func columnDefsFromInfo(info []store.ColumnInfo) []store.ColumnDef {
	cols := make([]store.ColumnDef, len(info))
	for i, c := range info {
		cols[i] = store.ColumnDef{Name: c.Name, Type: store.ColumnType(c.SQLType), NotNull: c.NotNull}
	}
	return cols
}

// reconcileSchema matches declared columns against the physical schema
// case-insensitively, adding (never dropping or renaming) anything
// declared but absent. A declared column that IS present physically but
// maps to a different engine affinity is a fatal SchemaMismatch. Where
// both sides agree, the declared logical type wins in the result so that
// a boolean column re-opened over its physical INTEGER storage keeps its
// round-trip coercion.
func reconcileSchema(ctx context.Context, gw *store.Gateway, table string, physical, declared []store.ColumnDef) ([]store.ColumnDef, error) {
	out := append([]store.ColumnDef(nil), physical...)
	present := make(map[string]int, len(physical))
	for i, c := range physical {
		present[foldName(c.Name)] = i
	}
	for _, want := range declared {
		idx, ok := present[foldName(want.Name)]
		if !ok {
			if err := gw.AddColumn(ctx, table, want); err != nil {
				return nil, fmt.Errorf("reconcile %s.%s: %w", table, want.Name, err)
			}
			out = append(out, want)
			continue
		}
		existing := out[idx]
		if foldName(string(existing.Type)) != foldName(want.Type.SQLType()) {
			return nil, store.ErrSchemaMismatch(table, fmt.Sprintf(
				"column %s declared as %s but physical column is %s", want.Name, want.Type, existing.Type))
		}
		out[idx].Type = want.Type
	}
	return out, nil
}

// Columns returns the base table's column names in declaration order.
func (bt *BaseTable) Columns() []string {
	out := make([]string, len(bt.columns))
	for i, c := range bt.columns {
		out[i] = c.Name
	}
	return out
}

func (bt *BaseTable) coerce(values store.Values) store.Values {
	out := make(store.Values, len(values))
	for k, v := range values {
		canon, ok := bt.colFold[foldName(k)]
		if !ok {
			canon = k
		}
		out[canon] = v
	}
	for _, c := range bt.columns {
		if !c.IsBool() {
			continue
		}
		if v, ok := out[c.Name]; ok {
			out[c.Name] = coerceBool(v)
		}
	}
	return out
}

func coerceBool(v any) any {
	switch t := v.(type) {
	case bool:
		if t {
			return int64(1)
		}
		return int64(0)
	default:
		return v
	}
}

func decodeBools(columns []store.ColumnDef, values store.Values) store.Values {
	out := cloneValues(values)
	for _, c := range columns {
		if !c.IsBool() {
			continue
		}
		if v, ok := out[c.Name]; ok {
			out[c.Name] = asBool(v)
		}
	}
	return out
}

func asBool(v any) any {
	switch t := v.(type) {
	case int64:
		return t != 0
	case int:
		return t != 0
	case bool:
		return t
	default:
		return v
	}
}

// FetchAll reads the table's current contents straight from the gateway.
func (bt *BaseTable) FetchAll(ctx context.Context) ([]Row, error) {
	gw := bt.db.Gateway()
	rows, _, err := gw.FetchAll(ctx, fmt.Sprintf("SELECT * FROM %s", bt.name))
	if err != nil {
		return nil, err
	}
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = Row{View: bt, Values: decodeBools(bt.columns, r)}
	}
	return out, nil
}

// Insert adds one row through the gateway; a boolean column may be passed
// as Go bool and is coerced to the engine's 0/1 integer representation.
// A downstream InvariantBroken panic (e.g. Distinct's delete-on-absent-key)
// surfacing from fan-out triggered by this mutation is recovered here and
// returned as an ordinary error.
func (bt *BaseTable) Insert(ctx context.Context, values store.Values, ignoreDup bool) (err error) {
	defer recoverInvariantBroken(&err)
	return bt.db.Gateway().Insert(ctx, bt.name, bt.coerce(values), ignoreDup)
}

// Update applies set to every row matching where.
func (bt *BaseTable) Update(ctx context.Context, where, set store.Values) (err error) {
	defer recoverInvariantBroken(&err)
	return bt.db.Gateway().Update(ctx, bt.name, bt.coerce(where), bt.coerce(set))
}

// Delete removes every row matching where.
func (bt *BaseTable) Delete(ctx context.Context, where store.Values) (err error) {
	defer recoverInvariantBroken(&err)
	return bt.db.Gateway().Delete(ctx, bt.name, bt.coerce(where))
}

// updateByID applies set to the single row identified by id.
func (bt *BaseTable) updateByID(ctx context.Context, id any, set Values) error {
	return bt.Update(ctx, store.Values{"id": id}, set)
}

// deleteByID removes the single row identified by id.
func (bt *BaseTable) deleteByID(ctx context.Context, id any) error {
	return bt.Delete(ctx, store.Values{"id": id})
}

// Close unsubscribes this table from the gateway.
func (bt *BaseTable) Close() {
	if bt.isClosed() {
		return
	}
	if bt.unsub != nil {
		bt.unsub()
	}
	bt.markClosed()
}

func (bt *BaseTable) onChange(table string, action store.Action, old, new store.Values) {
	switch action {
	case store.ActionInsert:
		row := Row{View: bt, Values: decodeBools(bt.columns, new)}
		bt.emitInsert(row, -1)
	case store.ActionDelete:
		row := Row{View: bt, Values: decodeBools(bt.columns, old)}
		bt.emitDelete(row, -1)
	case store.ActionUpdate:
		oldRow := Row{View: bt, Values: decodeBools(bt.columns, old)}
		newRow := Row{View: bt, Values: decodeBools(bt.columns, new)}
		bt.emitUpdate(oldRow, newRow, -1, -1)
	}
}
