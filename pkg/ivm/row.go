// Package ivm implements the incremental view-maintenance core: the
// operator DAG, its delta algebra, and the scalar value wrappers layered
// on top of it.
package ivm

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/kasuganosora/reactivesql/pkg/store"
)

// Values is re-exported from pkg/store so call sites never need to import
// both packages for the same concept.
type Values = store.Values

// Row is an immutable snapshot of one tuple over a view's schema, plus a
// back-reference to the view that produced it. The back-reference is only
// needed for a user-invoked Update/Delete on a fetched row.
type Row struct {
	View   View
	Values Values
}

// Get returns the value of a named column, or nil if absent.
func (r Row) Get(col string) any {
	if r.Values == nil {
		return nil
	}
	return r.Values[col]
}

// Update applies set to the row's source, routed back through the view it
// was fetched from to whichever BaseTable owns its identity. The row must
// carry an "id" column; whether the view can honor the call at all
// depends on the view kind.
func (r Row) Update(ctx context.Context, set Values) error {
	id, ok := r.Values["id"]
	if !ok {
		return ErrRowHasNoID()
	}
	return r.View.updateByID(ctx, id, set)
}

// Delete removes the row's source through the same routing Update uses.
func (r Row) Delete(ctx context.Context) error {
	id, ok := r.Values["id"]
	if !ok {
		return ErrRowHasNoID()
	}
	return r.View.deleteByID(ctx, id)
}

// Equal reports value-tuple equality over the given column order.
func (r Row) Equal(other Row, columns []string) bool {
	for _, c := range columns {
		if !valuesEqual(r.Values[c], other.Values[c]) {
			return false
		}
	}
	return true
}

// Hash returns a canonical hash of the (column, value) multiset over the
// given columns, independent of their order.
func (r Row) Hash(columns []string) uint64 {
	h := fnv.New64a()
	cols := append([]string(nil), columns...)
	sort.Strings(cols)
	for _, c := range cols {
		fmt.Fprintf(h, "%s=%v|", c, r.Values[c])
	}
	return h.Sum64()
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// rowKey produces a map key for a row over the given columns in order: the
// hex FNV-64a hash of the column=value pairs. It is the key the Distinct
// and GroupBy maps use; as a hash, distinct rows can collide.
func rowKey(values Values, columns []string) string {
	h := fnv.New64a()
	for _, c := range columns {
		fmt.Fprintf(h, "%s=%v|", c, values[c])
	}
	return fmt.Sprintf("%x", h.Sum64())
}

// projectValues extracts columns from values in order, defaulting missing
// entries to nil.
func projectValues(values Values, columns []string) []any {
	out := make([]any, len(columns))
	for i, c := range columns {
		out[i] = values[c]
	}
	return out
}

func cloneValues(v Values) Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}
