package ivm

import (
	"context"
	"testing"

	"github.com/kasuganosora/reactivesql/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func teamCols() []store.ColumnDef {
	return []store.ColumnDef{
		{Name: "id", Type: store.TypeInteger, PrimaryKey: true, AutoIncrement: true},
		{Name: "player_id", Type: store.TypeInteger},
		{Name: "team", Type: store.TypeText},
	}
}

func TestJoinViewInnerMaintenance(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t, "trigger")
	players := mustTable(t, db, "players", playerCols())
	teams := mustTable(t, db, "teams", teamCols())

	joined := players.Join(teams, map[string]string{"id": "player_id"}, false, false)

	var ins, del int
	joined.OnInsert(func(Row, int) { ins++ })
	joined.OnDelete(func(Row, int) { del++ })

	require.NoError(t, players.Insert(ctx, Values{"name": "ada", "score": 10}, false))
	rows, err := joined.FetchAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows, "no match yet, inner join hides the player")

	require.NoError(t, teams.Insert(ctx, Values{"player_id": 1, "team": "red"}, false))
	assert.Equal(t, 1, ins)

	rows, err = joined.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "ada", rows[0].Get("name"))
	assert.Equal(t, "red", rows[0].Get("team"))

	require.NoError(t, teams.Delete(ctx, Values{"player_id": 1}))
	assert.Equal(t, 1, del)
}

func TestJoinViewLeftOuterPadding(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t, "trigger")
	players := mustTable(t, db, "players", playerCols())
	teams := mustTable(t, db, "teams", teamCols())

	joined := players.Join(teams, map[string]string{"id": "player_id"}, true, false)

	require.NoError(t, players.Insert(ctx, Values{"name": "ada", "score": 10}, false))
	rows, err := joined.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].Get("team"), "left-outer padding for an unmatched player")

	require.NoError(t, teams.Insert(ctx, Values{"player_id": 1, "team": "red"}, false))
	rows, err = joined.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "red", rows[0].Get("team"))
}

func TestJoinViewFullOuterRetractsPaddingOnLateMatch(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t, "trigger")
	players := mustTable(t, db, "players", playerCols())
	teams := mustTable(t, db, "teams", teamCols())

	joined := players.Join(teams, map[string]string{"id": "player_id"}, true, true)

	var ins, del int
	joined.OnInsert(func(Row, int) { ins++ })
	joined.OnDelete(func(Row, int) { del++ })

	// An unmatched team row appears padded on the left (right-outer).
	require.NoError(t, teams.Insert(ctx, Values{"player_id": 1, "team": "red"}, false))
	rows, err := joined.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].Get("name"))
	assert.Equal(t, 1, ins)

	// A late-arriving matching player must retract the padded row and emit
	// the real joined row instead, not just add to it.
	require.NoError(t, players.Insert(ctx, Values{"name": "ada", "score": 10}, false))
	assert.Equal(t, 1, del, "the right-outer padded row is retracted once a real match appears")
	assert.Equal(t, 2, ins)

	rows, err = joined.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "ada", rows[0].Get("name"))
	assert.Equal(t, "red", rows[0].Get("team"))

	// Removing the player should re-pad the team row on the left (right-outer).
	require.NoError(t, players.Delete(ctx, Values{"name": "ada"}))
	assert.Equal(t, 2, del)
	assert.Equal(t, 3, ins)

	rows, err = joined.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].Get("name"))
	assert.Equal(t, "red", rows[0].Get("team"))
}

func TestJoinViewSameKeyUpdateEmitsSingleUpdate(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t, "trigger")
	players := mustTable(t, db, "players", playerCols())
	teams := mustTable(t, db, "teams", teamCols())

	joined := players.Join(teams, map[string]string{"id": "player_id"}, false, false)

	require.NoError(t, players.Insert(ctx, Values{"name": "ada", "score": 10}, false))
	require.NoError(t, teams.Insert(ctx, Values{"player_id": 1, "team": "red"}, false))

	var ins, del, upd int
	var updated Row
	joined.OnInsert(func(Row, int) { ins++ })
	joined.OnDelete(func(Row, int) { del++ })
	joined.OnUpdate(func(old, new Row, _, _ int) { upd++; updated = new })

	// A non-key change on the left side patches the joined row in place.
	require.NoError(t, players.Update(ctx, Values{"id": 1}, Values{"name": "grace"}))
	assert.Equal(t, 1, upd)
	assert.Zero(t, ins)
	assert.Zero(t, del)
	assert.Equal(t, "grace", updated.Get("name"))
	assert.Equal(t, "red", updated.Get("team"))

	// Same on the right side.
	require.NoError(t, teams.Update(ctx, Values{"player_id": 1}, Values{"team": "blue"}))
	assert.Equal(t, 2, upd)
	assert.Zero(t, ins)
	assert.Zero(t, del)
	assert.Equal(t, "blue", updated.Get("team"))
}

func TestJoinViewKeyMoveCoalescesIntoSingleUpdate(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t, "trigger")
	players := mustTable(t, db, "players", playerCols())
	teams := mustTable(t, db, "teams", teamCols())

	joined := players.Join(teams, map[string]string{"id": "player_id"}, false, false)

	require.NoError(t, players.Insert(ctx, Values{"name": "ada", "score": 10}, false))
	require.NoError(t, players.Insert(ctx, Values{"name": "grace", "score": 20}, false))
	require.NoError(t, teams.Insert(ctx, Values{"player_id": 1, "team": "red"}, false))

	var ins, del, upd int
	var updated Row
	joined.OnInsert(func(Row, int) { ins++ })
	joined.OnDelete(func(Row, int) { del++ })
	joined.OnUpdate(func(old, new Row, _, _ int) { upd++; updated = new })

	// The team moves from ada to grace: one joined row is retracted and
	// exactly one appears, coalesced into a single update.
	require.NoError(t, teams.Update(ctx, Values{"player_id": 1}, Values{"player_id": 2}))
	assert.Equal(t, 1, upd)
	assert.Zero(t, ins)
	assert.Zero(t, del)
	assert.Equal(t, "grace", updated.Get("name"))
	assert.Equal(t, "red", updated.Get("team"))

	rows, err := joined.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "grace", rows[0].Get("name"))
}

func TestJoinViewOuterUpdateSameKeyPatchesPaddedRow(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t, "trigger")
	players := mustTable(t, db, "players", playerCols())
	teams := mustTable(t, db, "teams", teamCols())

	joined := players.Join(teams, map[string]string{"id": "player_id"}, true, false)

	require.NoError(t, players.Insert(ctx, Values{"name": "ada", "score": 10}, false))

	var upd int
	var updated Row
	joined.OnUpdate(func(old, new Row, _, _ int) { upd++; updated = new })

	require.NoError(t, players.Update(ctx, Values{"id": 1}, Values{"name": "grace"}))
	assert.Equal(t, 1, upd, "an unmatched left row's padded output is patched in place")
	assert.Equal(t, "grace", updated.Get("name"))
	assert.Nil(t, updated.Get("team"))
}
