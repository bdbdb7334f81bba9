package store

import (
	"context"
	"fmt"
	"strings"
)

// RegisterTable tells the gateway about a base table's columns so it can
// capture changes against it. Safe to call more than once with the same
// definition; a changed definition (e.g. after an ALTER TABLE ADD COLUMN)
// replaces the stored shadow-table schema on the next registration.
func (g *Gateway) RegisterTable(ctx context.Context, table string, cols []ColumnDef) error {
	g.mu.Lock()
	meta, known := g.tables[table]
	if !known {
		meta = &tableMeta{}
		g.tables[table] = meta
	}
	meta.columns = cols
	meta.shadowReady = false
	g.mu.Unlock()

	if g.mode != CaptureTrigger {
		return nil
	}
	return g.ensureShadow(ctx, table)
}

func (g *Gateway) ensureShadow(ctx context.Context, table string) error {
	g.mu.Lock()
	meta := g.tables[table]
	if meta.shadowReady {
		g.mu.Unlock()
		return nil
	}
	cols := meta.columns
	g.mu.Unlock()

	shadow := table + "_rows"
	colDefs := make([]string, 0, len(cols)*2+1)
	colDefs = append(colDefs, "action INTEGER")
	colNames := make([]string, len(cols))
	for i, c := range cols {
		colNames[i] = c.Name
		colDefs = append(colDefs, fmt.Sprintf("old_%s %s", c.Name, c.Type.SQLType()))
		colDefs = append(colDefs, fmt.Sprintf("new_%s %s", c.Name, c.Type.SQLType()))
	}

	stmts := []string{
		fmt.Sprintf("DROP TRIGGER IF EXISTS %s_insert", table),
		fmt.Sprintf("DROP TRIGGER IF EXISTS %s_update", table),
		fmt.Sprintf("DROP TRIGGER IF EXISTS %s_delete", table),
		fmt.Sprintf("DROP TABLE IF EXISTS %s", quoteIdent(shadow)),
		fmt.Sprintf("CREATE TEMP TABLE %s (%s)", quoteIdent(shadow), strings.Join(colDefs, ", ")),
		fmt.Sprintf(
			"CREATE TEMP TRIGGER %s_insert AFTER INSERT ON %s BEGIN INSERT INTO %s (action, %s) VALUES (1, %s); END",
			table, quoteIdent(table), quoteIdent(shadow),
			prefixedList("new_", colNames), prefixedRefs("NEW.", colNames)),
		fmt.Sprintf(
			"CREATE TEMP TRIGGER %s_update AFTER UPDATE ON %s BEGIN INSERT INTO %s (action, %s) VALUES (2, %s); END",
			table, quoteIdent(table), quoteIdent(shadow),
			oldNewList(colNames), oldNewRefs(colNames)),
		fmt.Sprintf(
			"CREATE TEMP TRIGGER %s_delete AFTER DELETE ON %s BEGIN INSERT INTO %s (action, %s) VALUES (3, %s); END",
			table, quoteIdent(table), quoteIdent(shadow),
			prefixedList("old_", colNames), prefixedRefs("OLD.", colNames)),
	}
	for _, s := range stmts {
		if err := g.ExecDDL(ctx, s); err != nil {
			return err
		}
	}

	g.mu.Lock()
	meta.shadowReady = true
	g.mu.Unlock()
	return nil
}

func prefixedList(prefix string, cols []string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = prefix + c
	}
	return strings.Join(out, ", ")
}

func prefixedRefs(prefix string, cols []string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = prefix + c
	}
	return strings.Join(out, ", ")
}

func oldNewList(cols []string) string {
	out := make([]string, 0, len(cols)*2)
	for _, c := range cols {
		out = append(out, "old_"+c, "new_"+c)
	}
	return strings.Join(out, ", ")
}

func oldNewRefs(cols []string) string {
	out := make([]string, 0, len(cols)*2)
	for _, c := range cols {
		out = append(out, "OLD."+c, "NEW."+c)
	}
	return strings.Join(out, ", ")
}

// drainShadow reads the shadow table in insertion order, dispatches one
// callback per logged action, then truncates it. Must be called with the
// gateway lock held.
func (g *Gateway) drainShadow(ctx context.Context, table string) error {
	g.mu.RLock()
	meta := g.tables[table]
	g.mu.RUnlock()
	cols := meta.columns

	shadow := table + "_rows"
	rows, _, err := g.queryLocked(ctx, fmt.Sprintf("SELECT * FROM %s ORDER BY rowid", quoteIdent(shadow)))
	if err != nil {
		return err
	}
	for _, r := range rows {
		action := Action(asInt64(r["action"]))
		var oldV, newV Values
		if action == ActionUpdate || action == ActionDelete {
			oldV = make(Values, len(cols))
			for _, c := range cols {
				oldV[c.Name] = r["old_"+c.Name]
			}
		}
		if action == ActionInsert || action == ActionUpdate {
			newV = make(Values, len(cols))
			for _, c := range cols {
				newV[c.Name] = r["new_"+c.Name]
			}
		}
		g.dispatch(table, action, oldV, newV)
	}
	_, err = g.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", quoteIdent(shadow)))
	if err != nil {
		return ErrEngine("drain shadow", err)
	}
	return nil
}

// Insert inserts one row into table and dispatches the resulting change.
// If ignoreDup is set and the engine's INSERT OR IGNORE skipped the row
// (a uniqueness conflict), no callback fires.
func (g *Gateway) Insert(ctx context.Context, table string, values Values, ignoreDup bool) error {
	g.lock.Lock()
	defer g.lock.Unlock()

	cols := values.SortedColumns()
	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		placeholders[i] = "?"
		args[i] = values[c]
	}
	verb := "INSERT"
	if ignoreDup {
		verb = "INSERT OR IGNORE"
	}
	stmt := fmt.Sprintf("%s INTO %s (%s) VALUES (%s)", verb, quoteIdent(table), strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	res, err := g.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return ErrEngine("insert", err)
	}
	affected, _ := res.RowsAffected()
	if ignoreDup && affected == 0 {
		return nil
	}

	if g.mode == CaptureTrigger {
		return g.drainShadow(ctx, table)
	}

	lastID, err := res.LastInsertId()
	if err != nil {
		return ErrEngine("insert lastrowid", err)
	}
	row, _, err := g.queryLocked(ctx, fmt.Sprintf("SELECT * FROM %s WHERE rowid=?", quoteIdent(table)), lastID)
	if err != nil {
		return err
	}
	if len(row) == 1 {
		g.dispatch(table, ActionInsert, nil, row[0])
	}
	return nil
}

// Update applies set to every row of table matching where (NULL-safe), and
// dispatches one change per affected row. An update matching zero rows is
// an InvariantBroken condition and is rejected.
func (g *Gateway) Update(ctx context.Context, table string, where, set Values) error {
	g.lock.Lock()
	defer g.lock.Unlock()

	whereCols := where.SortedColumns()
	whereVals := make([]any, len(whereCols))
	for i, c := range whereCols {
		whereVals[i] = where[c]
	}
	whereClause, whereArgs := BuildWhereNullSafe(whereCols, whereVals)

	before, _, err := g.queryLocked(ctx, fmt.Sprintf("SELECT * FROM %s %s", quoteIdent(table), whereClause), whereArgs...)
	if err != nil {
		return err
	}
	if len(before) == 0 {
		return ErrUpdateMatchedZeroRows(table)
	}

	setCols := set.SortedColumns()
	setParts := make([]string, len(setCols))
	setArgs := make([]any, len(setCols))
	for i, c := range setCols {
		setParts[i] = c + "=?"
		setArgs[i] = set[c]
	}
	stmt := fmt.Sprintf("UPDATE %s SET %s %s", quoteIdent(table), strings.Join(setParts, ", "), whereClause)
	args := append(append([]any(nil), setArgs...), whereArgs...)

	res, err := g.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return ErrEngine("update", err)
	}
	affected, _ := res.RowsAffected()
	if int(affected) != len(before) {
		return ErrUpdateMatchedZeroRows(table)
	}

	if g.mode == CaptureTrigger {
		return g.drainShadow(ctx, table)
	}

	for _, oldRow := range before {
		newRow := make(Values, len(oldRow))
		for k, v := range oldRow {
			newRow[k] = v
		}
		for k, v := range set {
			newRow[k] = v
		}
		g.dispatch(table, ActionUpdate, oldRow, newRow)
	}
	return nil
}

// Delete removes every row of table matching where (NULL-safe) and
// dispatches one change per removed row.
func (g *Gateway) Delete(ctx context.Context, table string, where Values) error {
	g.lock.Lock()
	defer g.lock.Unlock()

	whereCols := where.SortedColumns()
	whereVals := make([]any, len(whereCols))
	for i, c := range whereCols {
		whereVals[i] = where[c]
	}
	whereClause, whereArgs := BuildWhereNullSafe(whereCols, whereVals)

	before, _, err := g.queryLocked(ctx, fmt.Sprintf("SELECT * FROM %s %s", quoteIdent(table), whereClause), whereArgs...)
	if err != nil {
		return err
	}

	stmt := fmt.Sprintf("DELETE FROM %s %s", quoteIdent(table), whereClause)
	if _, err := g.db.ExecContext(ctx, stmt, whereArgs...); err != nil {
		return ErrEngine("delete", err)
	}

	if g.mode == CaptureTrigger {
		return g.drainShadow(ctx, table)
	}

	for _, oldRow := range before {
		g.dispatch(table, ActionDelete, oldRow, nil)
	}
	return nil
}
