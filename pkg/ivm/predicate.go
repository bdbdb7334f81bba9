package ivm

import (
	"context"
	"fmt"
	"strings"

	"github.com/kasuganosora/reactivesql/pkg/store"
)

// evalScalarExpr evaluates a SQL scalar expression against a single row by
// round-tripping through the gateway: the row's columns are bound as a
// one-row subquery and expr is evaluated against it. This keeps Filter and
// Project predicate/expression semantics identical to whatever the
// embedded engine itself would compute for a WHERE clause or SELECT list,
// instead of re-implementing SQL expression evaluation in Go.
func evalScalarExpr(ctx context.Context, gw *store.Gateway, expr string, exprArgs []any, row store.Values) (any, error) {
	cols := row.SortedColumns()
	selects := make([]string, len(cols))
	rowArgs := make([]any, len(cols))
	for i, c := range cols {
		selects[i] = fmt.Sprintf("? AS %s", quoteIdentLocal(c))
		rowArgs[i] = row[c]
	}
	subquery := "SELECT " + strings.Join(selects, ", ")
	if len(cols) == 0 {
		subquery = "SELECT 0 WHERE 0" // no columns: predicate cannot reference any, still must run
	}
	query := fmt.Sprintf("SELECT (%s) AS v FROM (%s) reactivesql_row", expr, subquery)

	args := make([]any, 0, len(exprArgs)+len(rowArgs))
	args = append(args, exprArgs...)
	args = append(args, rowArgs...)

	rows, _, err := gw.FetchAll(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("eval expr %q: %w", expr, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0]["v"], nil
}

// evalBoolExpr evaluates a predicate against row and reports whether the
// engine's truthiness rules consider it true (SQLite: nonzero, non-NULL).
func evalBoolExpr(ctx context.Context, gw *store.Gateway, expr string, exprArgs []any, row store.Values) (bool, error) {
	v, err := evalScalarExpr(ctx, gw, expr, exprArgs, row)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case int64:
		return t != 0
	case int:
		return t != 0
	case float64:
		return t != 0
	case bool:
		return t
	case string:
		return t != ""
	default:
		return true
	}
}

func quoteIdentLocal(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
