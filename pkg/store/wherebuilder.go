package store

import (
	"fmt"
	"sort"
	"strings"
)

// Values is a canonical column -> value mapping for a single row, used
// throughout the gateway and the IVM layer above it.
type Values map[string]any

// SortedColumns returns the keys of v in a stable, deterministic order,
// used wherever a where-clause or column list must be built reproducibly.
func (v Values) SortedColumns() []string {
	cols := make([]string, 0, len(v))
	for c := range v {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// BuildWhereNullSafe builds a "col1=? AND col2 IS NULL AND ..." clause from
// the given columns/values, treating NULL with IS NULL rather than
// "= NULL" (which never matches in SQL). It returns the
// clause (including the leading WHERE keyword, or empty if there are no
// columns) and the positional arguments for the remaining "=?" comparisons.
func BuildWhereNullSafe(columns []string, values []any) (string, []any) {
	if len(columns) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(columns))
	args := make([]any, 0, len(columns))
	for i, col := range columns {
		if values[i] == nil {
			parts = append(parts, fmt.Sprintf("%s IS NULL", col))
		} else {
			parts = append(parts, fmt.Sprintf("%s=?", col))
			args = append(args, values[i])
		}
	}
	return "WHERE " + strings.Join(parts, " AND "), args
}

// BuildWhereNullSafeFromValues is a Values-keyed convenience wrapper around
// BuildWhereNullSafe that iterates columns in sorted order for determinism.
func BuildWhereNullSafeFromValues(values Values) (string, []any) {
	cols := values.SortedColumns()
	vals := make([]any, len(cols))
	for i, c := range cols {
		vals[i] = values[c]
	}
	return BuildWhereNullSafe(cols, vals)
}
