package ivm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterViewIncrementalMaintenance(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t, "trigger")
	players := mustTable(t, db, "players", playerCols())
	highScorers := players.Where("score >= 50")

	var ins, del int
	highScorers.OnInsert(func(Row, int) { ins++ })
	highScorers.OnDelete(func(Row, int) { del++ })

	require.NoError(t, players.Insert(ctx, Values{"name": "ada", "score": 10}, false))
	require.NoError(t, players.Insert(ctx, Values{"name": "grace", "score": 80}, false))
	assert.Equal(t, 1, ins)

	// Crossing the threshold upward fires an insert on the filtered view.
	require.NoError(t, players.Update(ctx, Values{"name": "ada"}, Values{"score": 60}))
	assert.Equal(t, 2, ins)

	// Crossing back down fires a delete.
	require.NoError(t, players.Update(ctx, Values{"name": "ada"}, Values{"score": 5}))
	assert.Equal(t, 1, del)

	rows, err := highScorers.FetchAll(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, "grace", rows[0].Get("name"))
}
