package store

import (
	"context"
	"fmt"
	"strings"
)

// CreateTable issues CREATE TABLE for a brand new base table.
func (g *Gateway) CreateTable(ctx context.Context, table string, temp bool, cols []ColumnDef) error {
	defs := make([]string, len(cols))
	for i, c := range cols {
		def := fmt.Sprintf("%s %s", c.Name, c.Type.SQLType())
		if c.PrimaryKey {
			def += " PRIMARY KEY"
			if c.AutoIncrement {
				def += " AUTOINCREMENT"
			}
		} else if c.NotNull {
			def += " NOT NULL"
		}
		defs[i] = def
	}
	kind := "TABLE"
	if temp {
		kind = "TEMP TABLE"
	}
	stmt := fmt.Sprintf("CREATE %s %s (%s)", kind, quoteIdent(table), strings.Join(defs, ", "))
	return g.ExecDDL(ctx, stmt)
}

// AddColumn issues ALTER TABLE ... ADD COLUMN for a column missing from the
// physical schema. BaseTable never rewrites or drops existing columns.
func (g *Gateway) AddColumn(ctx context.Context, table string, col ColumnDef) error {
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quoteIdent(table), col.Name, col.Type.SQLType())
	return g.ExecDDL(ctx, stmt)
}
