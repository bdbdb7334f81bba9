package ivm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScalarValueCountTracksInserts(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t, "trigger")
	players := mustTable(t, db, "players", playerCols())

	count := players.Count()
	assert.Equal(t, int64(0), count.Value())

	var seen []any
	count.OnChange(func(_, new any) { seen = append(seen, new) })

	require.NoError(t, players.Insert(ctx, Values{"name": "ada", "score": 10}, false))
	require.NoError(t, players.Insert(ctx, Values{"name": "grace", "score": 20}, false))

	assert.Equal(t, int64(2), count.Value())
	assert.Equal(t, []any{int64(1), int64(2)}, seen)
}

func TestColumnValueAndMapValue(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t, "trigger")
	players := mustTable(t, db, "players", playerCols())
	ada := players.Where("name = 'ada'")

	score := ColumnValue(ada, "score")
	doubled := MapValue(score, func(v any) any {
		if v == nil {
			return nil
		}
		return v.(int64) * 2
	})

	require.NoError(t, players.Insert(ctx, Values{"name": "ada", "score": 10}, false))
	assert.Equal(t, int64(10), score.Value())
	assert.Equal(t, int64(20), doubled.Value())

	require.NoError(t, players.Update(ctx, Values{"name": "ada"}, Values{"score": 25}))
	assert.Equal(t, int64(25), score.Value())
	assert.Equal(t, int64(50), doubled.Value())
}

func TestAggregateValuesTrackMutations(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t, "trigger")
	players := mustTable(t, db, "players", playerCols())

	total := players.Sum("score")
	lowest := players.Min("score")
	assert.Equal(t, 0.0, total.Value())
	assert.Nil(t, lowest.Value(), "an empty source has no minimum")

	require.NoError(t, players.Insert(ctx, Values{"name": "ada", "score": 10}, false))
	require.NoError(t, players.Insert(ctx, Values{"name": "grace", "score": 30}, false))
	assert.Equal(t, 40.0, total.Value())
	assert.Equal(t, 10.0, lowest.Value())

	require.NoError(t, players.Delete(ctx, Values{"name": "ada"}))
	assert.Equal(t, 30.0, total.Value())
	assert.Equal(t, 30.0, lowest.Value(), "deleting the minimum recomputes from survivors")
}

func TestOnlyWrapsSingleRow(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t, "trigger")
	players := mustTable(t, db, "players", playerCols())

	ada := players.WhereEq(Values{"name": "ada"}).Only()
	assert.Nil(t, ada.Value())

	require.NoError(t, players.Insert(ctx, Values{"name": "ada", "score": 10}, false))
	row, ok := ada.Value().(Values)
	require.True(t, ok)
	assert.EqualValues(t, 10, row["score"])

	require.NoError(t, players.Insert(ctx, Values{"name": "grace", "score": 20}, false))
	_, ok = ada.Value().(Values)
	assert.True(t, ok, "a second non-matching row leaves the single-row wrapper intact")
}

func TestWhereEqMatchesNullValues(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t, "trigger")
	players := mustTable(t, db, "players", playerCols())

	unscored := players.WhereEq(Values{"score": nil})

	require.NoError(t, players.Insert(ctx, Values{"name": "ada"}, false))
	require.NoError(t, players.Insert(ctx, Values{"name": "grace", "score": 5}, false))

	rows, err := unscored.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "ada", rows[0].Get("name"))
}

func TestFetchOneWithEqualities(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t, "trigger")
	players := mustTable(t, db, "players", playerCols())

	require.NoError(t, players.Insert(ctx, Values{"name": "ada", "score": 10}, false))
	require.NoError(t, players.Insert(ctx, Values{"name": "grace", "score": 20}, false))

	row, ok, err := players.FetchOne(ctx, Values{"name": "grace"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 20, row.Get("score"))

	_, ok, err = players.FetchOne(ctx, Values{"name": "nobody"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOnValueFiresImmediatelyThenOnChange(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t, "trigger")
	players := mustTable(t, db, "players", playerCols())

	count := players.Count()
	var seen []any
	count.OnValue(func(v any) { seen = append(seen, v) })
	assert.Equal(t, []any{int64(0)}, seen)

	require.NoError(t, players.Insert(ctx, Values{"name": "ada", "score": 10}, false))
	assert.Equal(t, []any{int64(0), int64(1)}, seen)
}
