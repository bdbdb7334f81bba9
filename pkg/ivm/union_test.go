package ivm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnionAllSplicesBothParents(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t, "trigger")
	lefts := mustTable(t, db, "lefts", playerCols())
	rights := mustTable(t, db, "rights", playerCols())

	all := lefts.Select("name").UnionAll(rights.Select("name"))

	var ins int
	all.OnInsert(func(Row, int) { ins++ })

	require.NoError(t, lefts.Insert(ctx, Values{"name": "ada", "score": 10}, false))
	require.NoError(t, rights.Insert(ctx, Values{"name": "ada", "score": 20}, false))
	assert.Equal(t, 2, ins, "a splice forwards both parents' inserts, duplicates included")

	rows, err := all.FetchAll(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestUnionDeduplicatesAcrossParents(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t, "trigger")
	lefts := mustTable(t, db, "lefts", playerCols())
	rights := mustTable(t, db, "rights", playerCols())

	union, err := lefts.Select("name").Union(rights.Select("name"))
	require.NoError(t, err)

	var ins, del int
	union.OnInsert(func(Row, int) { ins++ })
	union.OnDelete(func(Row, int) { del++ })

	require.NoError(t, lefts.Insert(ctx, Values{"name": "ada", "score": 10}, false))
	require.NoError(t, rights.Insert(ctx, Values{"name": "ada", "score": 20}, false))
	assert.Equal(t, 1, ins, "the same tuple arriving from the second parent must not re-emit")

	require.NoError(t, lefts.Delete(ctx, Values{"name": "ada"}))
	assert.Equal(t, 0, del, "one parent still contributes the tuple")

	require.NoError(t, rights.Delete(ctx, Values{"name": "ada"}))
	assert.Equal(t, 1, del, "the last contributing parent retracting drops the union row")

	rows, err := union.FetchAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestUnionColumnOrderingFollowsFirstParent(t *testing.T) {
	db := newTestDatabase(t, "trigger")
	lefts := mustTable(t, db, "lefts", playerCols())
	rights := mustTable(t, db, "rights", playerCols())

	union, err := lefts.Select("name", "score").Union(rights.Select("score", "name"))
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "score"}, union.Columns())
}

func TestUnionRejectsColumnMismatch(t *testing.T) {
	db := newTestDatabase(t, "trigger")
	lefts := mustTable(t, db, "lefts", playerCols())
	rights := mustTable(t, db, "rights", playerCols())

	_, err := lefts.Select("name").Union(rights.Select("score"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "column sets differ")

	_, err = lefts.Select("name").Union(rights.Select("name", "score"))
	require.Error(t, err)
}
