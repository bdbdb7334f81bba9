package ivm

import "context"

// ScalarValue is a live, single value derived from a view, re-evaluated
// synchronously whenever the view it watches changes.
// Count, ColumnValue, RowValue, and MapValue are all built on it.
type ScalarValue struct {
	view    View
	compute func(ctx context.Context) (any, error)
	value   any
	subs    []SubscriptionToken
	owned   []View // intermediate views closed together with this value

	onChange []func(old, new any)
}

func newScalarValue(view View, compute func(ctx context.Context) (any, error)) *ScalarValue {
	sv := &ScalarValue{view: view, compute: compute}
	sv.recompute()

	b := view.base()
	sv.subs = []SubscriptionToken{
		b.OnReset(func() { sv.recompute() }),
		b.OnInsert(func(Row, int) { sv.recompute() }),
		b.OnDelete(func(Row, int) { sv.recompute() }),
		b.OnUpdate(func(Row, Row, int, int) { sv.recompute() }),
	}
	return sv
}

// Close unsubscribes from the underlying view and closes any intermediate
// view this value constructed for itself (e.g. the global GroupBy behind
// Sum/Avg/Min/Max). Values built from another ScalarValue (via Map) have
// nothing to release.
func (sv *ScalarValue) Close() {
	for _, s := range sv.subs {
		s.Unsubscribe()
	}
	for _, v := range sv.owned {
		v.Close()
	}
}

func (sv *ScalarValue) recompute() {
	old := sv.value
	v, err := sv.compute(context.Background())
	if err != nil {
		return
	}
	sv.value = v
	if !valuesEqual(old, v) {
		for _, fn := range sv.onChange {
			fn(old, v)
		}
	}
}

// Value returns the value as of the most recent recomputation.
func (sv *ScalarValue) Value() any { return sv.value }

// OnChange subscribes to value changes; fn fires with the old and new
// value on every later change. It is not called at subscription time.
func (sv *ScalarValue) OnChange(fn func(old, new any)) {
	sv.onChange = append(sv.onChange, fn)
}

// OnValue immediately invokes fn with the current value, then again on
// every subsequent change.
func (sv *ScalarValue) OnValue(fn func(v any)) {
	fn(sv.value)
	sv.OnChange(func(_, new any) { fn(new) })
}

// newCountValue builds the ScalarValue backing viewBase.Count.
func newCountValue(view View) *ScalarValue {
	return newScalarValue(view, func(ctx context.Context) (any, error) {
		rows, err := view.FetchAll(ctx)
		if err != nil {
			return nil, err
		}
		return int64(len(rows)), nil
	})
}

// ColumnValue watches a single column of a view expected to hold exactly
// one row (e.g. a GroupBy'd-to-nothing aggregate, or a Where narrowed to
// one identity), going nil whenever the view holds zero or more than one
// row.
func ColumnValue(view View, column string) *ScalarValue {
	return newScalarValue(view, func(ctx context.Context) (any, error) {
		row, ok, err := FetchOne(ctx, view)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		return row.Get(column), nil
	})
}

// RowValue watches a view expected to hold exactly one row, exposing its
// full Values, or nil when the view holds zero or more than one row.
func RowValue(view View) *ScalarValue {
	return newScalarValue(view, func(ctx context.Context) (any, error) {
		row, ok, err := FetchOne(ctx, view)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		return row.Values, nil
	})
}

// Map derives a new ScalarValue by applying fn to this one.
func (sv *ScalarValue) Map(fn func(v any) any) *ScalarValue {
	return MapValue(sv, fn)
}

// MapValue applies fn synchronously to whatever RowValue/ColumnValue (or
// any other ScalarValue) currently holds, re-running it every time the
// source value changes.
func MapValue(source *ScalarValue, fn func(v any) any) *ScalarValue {
	mapped := &ScalarValue{value: fn(source.Value())}
	source.OnChange(func(_, new any) {
		old := mapped.value
		mapped.value = fn(new)
		if !valuesEqual(old, mapped.value) {
			for _, cb := range mapped.onChange {
				cb(old, mapped.value)
			}
		}
	})
	return mapped
}
