// Package xlsxsnap exports a view's current contents to an .xlsx workbook,
// an alternate terminal consumer for ad hoc inspection and debugging
// alongside whatever live UI binding a caller wires up.
package xlsxsnap

import (
	"context"
	"fmt"

	"github.com/kasuganosora/reactivesql/pkg/ivm"
	"github.com/xuri/excelize/v2"
)

// Snapshot writes view's current fetchall() result to path, one sheet
// named "Snapshot" with a header row of column names.
func Snapshot(ctx context.Context, view ivm.View, path string) error {
	rows, err := view.FetchAll(ctx)
	if err != nil {
		return fmt.Errorf("xlsxsnap: fetch rows: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()
	const sheet = "Snapshot"
	f.SetSheetName(f.GetSheetName(0), sheet)

	cols := view.Columns()
	for i, c := range cols {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, c); err != nil {
			return fmt.Errorf("xlsxsnap: header: %w", err)
		}
	}

	for r, row := range rows {
		for i, c := range cols {
			cell, _ := excelize.CoordinatesToCellName(i+1, r+2)
			if err := f.SetCellValue(sheet, cell, row.Get(c)); err != nil {
				return fmt.Errorf("xlsxsnap: row %d: %w", r, err)
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("xlsxsnap: save %s: %w", path, err)
	}
	return nil
}

// Live keeps path refreshed on every insert/delete/update/reset of view,
// until Close is called. Each change triggers a full re-snapshot rather
// than an incremental spreadsheet edit, since the goal is a simple debug
// artifact, not a second maintained view.
type Live struct {
	view  ivm.View
	path  string
	subs  []ivm.SubscriptionToken
	errFn func(error)
}

// NewLive starts mirroring view to path on every change. errFn receives
// any write failure; pass nil to ignore them.
func NewLive(ctx context.Context, view ivm.View, path string, errFn func(error)) (*Live, error) {
	if errFn == nil {
		errFn = func(error) {}
	}
	l := &Live{view: view, path: path, errFn: errFn}

	refresh := func() {
		if err := Snapshot(ctx, view, path); err != nil {
			l.errFn(err)
		}
	}
	l.subs = []ivm.SubscriptionToken{
		view.OnInsert(func(ivm.Row, int) { refresh() }),
		view.OnDelete(func(ivm.Row, int) { refresh() }),
		view.OnUpdate(func(ivm.Row, ivm.Row, int, int) { refresh() }),
		view.OnReset(refresh),
	}
	refresh()
	return l, nil
}

// Close stops mirroring.
func (l *Live) Close() {
	for _, s := range l.subs {
		s.Unsubscribe()
	}
}
