package ivm

import (
	"context"
	"fmt"
	"testing"

	"github.com/kasuganosora/reactivesql/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTicTacToeWinDetectionPipeline exercises GroupBy+Union composition:
// a 3x3 board table with per-row and per-column GroupBy branches counting
// marks per line, unioned together and filtered down to any line where
// one mark fills all three cells.
func TestTicTacToeWinDetectionPipeline(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t, "trigger")

	cells := mustTable(t, db, "cells", []store.ColumnDef{
		{Name: "row", Type: store.TypeInteger},
		{Name: "col", Type: store.TypeInteger},
		{Name: "mark", Type: store.TypeText},
	})

	rowLines := cells.GroupBy("row", "mark").Count().Build()
	colLines := cells.GroupBy("col", "mark").Count().Build()

	allLines, err := rowLines.Select("mark", "count").Union(colLines.Select("mark", "count"))
	require.NoError(t, err)
	winners := allLines.Where("count = 3")

	var wins []Row
	winners.OnInsert(func(row Row, _ int) { wins = append(wins, row) })

	require.NoError(t, cells.Insert(ctx, Values{"row": 0, "col": 0, "mark": "X"}, false))
	require.NoError(t, cells.Insert(ctx, Values{"row": 0, "col": 1, "mark": "X"}, false))
	assert.Empty(t, wins)

	require.NoError(t, cells.Insert(ctx, Values{"row": 0, "col": 2, "mark": "X"}, false))
	require.NotEmpty(t, wins, "completing row 0 with X should surface a winning line")
}

// TestFilteredCountReactivity exercises Where composed with Count: the
// scalar must track only the rows currently admitted by the predicate.
func TestFilteredCountReactivity(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t, "trigger")
	players := mustTable(t, db, "players", playerCols())
	activeCount := players.Where("score > 0").Count()

	require.NoError(t, players.Insert(ctx, Values{"name": "ada", "score": 10}, false))
	require.NoError(t, players.Insert(ctx, Values{"name": "grace", "score": 0}, false))
	assert.Equal(t, int64(1), activeCount.Value())

	require.NoError(t, players.Update(ctx, Values{"name": "grace"}, Values{"score": 5}))
	assert.Equal(t, int64(2), activeCount.Value())
}

// TestCountReactivity follows the plain live-count lifecycle: zero on an
// empty table, tracking every insert, dropping on delete.
func TestCountReactivity(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t, "trigger")
	tbl := mustTable(t, db, "t", []store.ColumnDef{
		{Name: "id", Type: store.TypeInteger, PrimaryKey: true, AutoIncrement: true},
		{Name: "b", Type: store.TypeInteger},
	})

	c := tbl.Count()
	assert.Equal(t, int64(0), c.Value())

	require.NoError(t, tbl.Insert(ctx, Values{"b": 1}, false))
	assert.Equal(t, int64(1), c.Value())

	require.NoError(t, tbl.Insert(ctx, Values{"b": 2}, false))
	assert.Equal(t, int64(2), c.Value())

	require.NoError(t, tbl.Delete(ctx, Values{"id": 1}))
	assert.Equal(t, int64(1), c.Value())
}

// TestLeftOuterJoinRetractsPaddingBeforeMatch pins down the delta ordering
// when a padded row gains a real match: the NULL-padded row must be
// retracted before the joined row is emitted, so a consumer patching a UI
// never shows both at once.
func TestLeftOuterJoinRetractsPaddingBeforeMatch(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t, "trigger")
	l := mustTable(t, db, "l", []store.ColumnDef{
		{Name: "id", Type: store.TypeInteger, PrimaryKey: true},
		{Name: "name", Type: store.TypeText},
	})
	r := mustTable(t, db, "r", []store.ColumnDef{
		{Name: "id", Type: store.TypeInteger, PrimaryKey: true},
		{Name: "value", Type: store.TypeInteger},
	})

	v := l.Join(r, map[string]string{"id": "id"}, true, false)

	require.NoError(t, l.Insert(ctx, Values{"id": 1, "name": "a"}, false))
	require.NoError(t, l.Insert(ctx, Values{"id": 2, "name": "b"}, false))
	require.NoError(t, r.Insert(ctx, Values{"id": 1, "value": 10}, false))

	rows, err := v.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	var events []string
	v.OnInsert(func(row Row, _ int) {
		events = append(events, fmt.Sprintf("insert %v value=%v", row.Get("name"), row.Get("value")))
	})
	v.OnDelete(func(row Row, _ int) {
		events = append(events, fmt.Sprintf("delete %v value=%v", row.Get("name"), row.Get("value")))
	})

	require.NoError(t, r.Insert(ctx, Values{"id": 2, "value": 20}, false))
	assert.Equal(t, []string{"delete b value=<nil>", "insert b value=20"}, events)
}

// TestSortWindowInsertIntoMiddle: an insert landing inside a full window
// pushes the tail out, reported as insert-at-index plus delete-at-limit.
func TestSortWindowInsertIntoMiddle(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t, "trigger")
	players := mustTable(t, db, "players", playerCols())

	s := players.Sort([]OrderTerm{{Column: "name"}}, 3, 0)

	for _, n := range []string{"a", "c", "e"} {
		require.NoError(t, players.Insert(ctx, Values{"name": n, "score": 0}, false))
	}

	type event struct {
		kind string
		name any
		idx  int
	}
	var events []event
	s.OnInsert(func(row Row, idx int) { events = append(events, event{"insert", row.Get("name"), idx}) })
	s.OnDelete(func(row Row, idx int) { events = append(events, event{"delete", row.Get("name"), idx}) })

	require.NoError(t, players.Insert(ctx, Values{"name": "b", "score": 0}, false))
	require.Equal(t, []event{{"insert", "b", 1}, {"delete", "e", 3}}, events)

	rows, err := s.FetchAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b", "c"}, names(rows))
}

// TestTicTacToeFourLineBranchesWithCountValue builds the full win
// detector: marks grouped per row, per column, and per both diagonals,
// each filtered to a filled line, spliced with UnionAll, and counted. The
// winning move must flip the count value 0 -> 1 in exactly one change.
func TestTicTacToeFourLineBranchesWithCountValue(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t, "trigger")
	cells := mustTable(t, db, "cells", []store.ColumnDef{
		{Name: "row", Type: store.TypeInteger},
		{Name: "col", Type: store.TypeInteger},
		{Name: "mark", Type: store.TypeText},
	})

	line := func(v View) View {
		return v.base().Where("count = 3")
	}
	diag := func(expr string) View {
		projected := SelectExpr(db, cells, []ProjectColumn{
			{Name: "d", Expr: expr},
			{Name: "mark", Expr: "mark"},
		})
		return line(projected.GroupBy("d", "mark").Count().Build().Select("mark", "count"))
	}

	rowWins := line(cells.GroupBy("row", "mark").Count().Build().Select("mark", "count"))
	colWins := line(cells.GroupBy("col", "mark").Count().Build().Select("mark", "count"))
	winners := rowWins.base().UnionAll(colWins).UnionAll(diag("col - row")).UnionAll(diag("col + row"))

	winCount := winners.Count()
	var changes []any
	winCount.OnChange(func(_, new any) { changes = append(changes, new) })

	moves := []Values{
		{"row": 0, "col": 0, "mark": "X"},
		{"row": 0, "col": 1, "mark": "O"},
		{"row": 1, "col": 0, "mark": "X"},
		{"row": 1, "col": 1, "mark": "O"},
	}
	for _, mv := range moves {
		require.NoError(t, cells.Insert(ctx, mv, false))
	}
	assert.Empty(t, changes, "no line is full yet")
	assert.Equal(t, int64(0), winCount.Value())

	require.NoError(t, cells.Insert(ctx, Values{"row": 2, "col": 0, "mark": "X"}, false))
	assert.Equal(t, []any{int64(1)}, changes, "completing the column fires exactly one change")
	assert.Equal(t, int64(1), winCount.Value())
}

// TestUpdateRoundTripIsIdentityOnContents: updating a row and updating it
// back emits two update deltas whose net effect leaves the observed
// contents untouched.
func TestUpdateRoundTripIsIdentityOnContents(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t, "trigger")
	players := mustTable(t, db, "players", playerCols())
	require.NoError(t, players.Insert(ctx, Values{"name": "ada", "score": 10}, false))

	before, err := players.FetchAll(ctx)
	require.NoError(t, err)

	var updates int
	players.OnUpdate(func(old, new Row, _, _ int) { updates++ })

	require.NoError(t, players.Update(ctx, Values{"id": 1}, Values{"score": 99}))
	require.NoError(t, players.Update(ctx, Values{"id": 1}, Values{"score": 10}))

	assert.Equal(t, 2, updates)
	after, err := players.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, after, len(before))
	assert.True(t, before[0].Equal(after[0], players.Columns()))
}
